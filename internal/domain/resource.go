package domain

import "time"

// Resource is a bookable unit (a court) with operating hours expressed as
// minutes from midnight UTC.
type Resource struct {
	ID           string
	OrgID        string
	Name         string
	Active       bool
	OpensAtMin   int
	ClosesAtMin  int
	CancelPolicy CancellationPolicy
	CreatedAt    time.Time
}

// WithinOperatingHours reports whether the interval falls inside the
// resource's daily opening window.
func (r Resource) WithinOperatingHours(start, end time.Time) bool {
	if r.OpensAtMin == 0 && r.ClosesAtMin == 0 {
		return true
	}
	startMin := start.UTC().Hour()*60 + start.UTC().Minute()
	endMin := end.UTC().Hour()*60 + end.UTC().Minute()
	if endMin == 0 {
		endMin = 24 * 60
	}
	// Bookings never span midnight; a longer interval cannot fit a daily window.
	if !start.Truncate(24 * time.Hour).Equal(end.Add(-time.Nanosecond).Truncate(24 * time.Hour)) {
		return false
	}
	return startMin >= r.OpensAtMin && endMin <= r.ClosesAtMin
}

type BlockReason string

const (
	BlockMaintenance BlockReason = "maintenance"
	BlockAdminHold   BlockReason = "admin_hold"
)

// BlockedSlot is an administrative hold over a time range. An empty
// ResourceID blocks the whole organizational scope.
type BlockedSlot struct {
	ID         string
	OrgID      string
	ResourceID string
	StartsAt   time.Time
	EndsAt     time.Time
	Reason     BlockReason
	CreatedAt  time.Time
}
