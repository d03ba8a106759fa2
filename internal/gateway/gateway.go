// Package gateway adapts external payment providers to the executor's
// Gateway interface.
package gateway

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nvila/courtbook/internal/app"
)

// Direct settles captures synchronously against the local ledger, which
// suits wallet and on-site payments where no external round trip exists.
type Direct struct{}

func NewDirect() Direct { return Direct{} }

func (Direct) Authorize(_ context.Context, _ decimal.Decimal, _, _ string) (app.GatewayResult, error) {
	return app.GatewayResult{Ref: "auth-" + uuid.NewString(), Confirmed: false}, nil
}

func (Direct) Capture(_ context.Context, ref string) (app.GatewayResult, error) {
	return app.GatewayResult{Ref: ref, Confirmed: true}, nil
}

func (Direct) Refund(_ context.Context, _ string, _ decimal.Decimal) error {
	return nil
}
