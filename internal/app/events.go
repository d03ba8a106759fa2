package app

import (
	"context"
	"log/slog"
	"time"
)

// EventPublisher delivers notifications after state transitions. Failures
// are logged and never roll back the transition that produced the event.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// fireAndForget publishes on a detached context so a slow broker cannot
// hold up the request path.
func fireAndForget(pub EventPublisher, routingKey string, payload any) {
	if pub == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := pub.Publish(ctx, routingKey, payload); err != nil {
			slog.Warn("event publish failed", "routing_key", routingKey, "error", err)
		}
	}()
}

type ReservationEvent struct {
	ReservationID string    `json:"reservation_id"`
	ResourceID    string    `json:"resource_id"`
	Status        string    `json:"status"`
	StartsAt      time.Time `json:"starts_at"`
	EndsAt        time.Time `json:"ends_at"`
}

type TransactionEvent struct {
	TransactionID string `json:"transaction_id"`
	Type          string `json:"type"`
	Status        string `json:"status"`
	Amount        string `json:"amount"`
	Reference     string `json:"reference,omitempty"`
}
