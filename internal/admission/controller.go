// Package admission gates generation attempts behind ticket consumption and
// owns the compensating refund when an admitted attempt fails.
package admission

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"genpipe/internal/domain"
)

// ReasonPipelineFailed is the standard reason code attached to refunds issued
// after a post-admission failure.
const ReasonPipelineFailed = "pipeline_failed"

// TicketAPI is the billing collaborator surface the controller needs.
type TicketAPI interface {
	ConsumeTicket(ctx context.Context, identity string, count int, reason string) (*domain.Receipt, error)
	RefundTicket(ctx context.Context, usageID, reason string) error
}

// Controller consumes and refunds admission tickets.
type Controller struct {
	tickets TicketAPI
	logger  zerolog.Logger
}

// NewController constructs a controller.
func NewController(tickets TicketAPI, logger zerolog.Logger) *Controller {
	return &Controller{tickets: tickets, logger: logger}
}

// Consume spends exactly one ticket for the identity. Callers invoke it once
// per attempt, strictly before launching a job.
func (c *Controller) Consume(ctx context.Context, identity string) (*domain.Receipt, error) {
	receipt, err := c.tickets.ConsumeTicket(ctx, identity, 1, "generation")
	if err != nil {
		return nil, fmt.Errorf("admission: %w", err)
	}
	c.logger.Info().Str("usage_id", receipt.UsageID).Msg("ticket consumed")
	return receipt, nil
}

// Refund reverses a prior consumption. It is best-effort: failures are logged
// with the usage id for operator reconciliation and never surface to the
// caller, so the original pipeline error is always what gets reported. The
// backend deduplicates by usage id; this side issues the call once and does
// not retry.
func (c *Controller) Refund(ctx context.Context, receipt *domain.Receipt, reason string) {
	if receipt == nil || receipt.UsageID == "" {
		return
	}
	if err := c.tickets.RefundTicket(ctx, receipt.UsageID, reason); err != nil {
		c.logger.Error().
			Str("usage_id", receipt.UsageID).
			Str("reason", reason).
			Err(err).
			Msg("ticket refund failed; credit may be lost")
		return
	}
	c.logger.Info().Str("usage_id", receipt.UsageID).Str("reason", reason).Msg("ticket refunded")
}
