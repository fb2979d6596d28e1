// Package credit implements the credit gate: the atomic check-and-reserve
// step every paid generation request passes through before dispatch, plus
// the compensating refunds the dispatcher and pollers issue.
package credit

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

// Gate reserves and refunds credits against the ledger. Atomicity lives in
// the ledger itself; the gate adds validation and the audit reasons.
type Gate struct {
	ledger domain.CreditLedger
	logger zerolog.Logger
}

func NewGate(ledger domain.CreditLedger, logger zerolog.Logger) *Gate {
	return &Gate{ledger: ledger, logger: logger}
}

// Reserve atomically decrements the user's balance by cost. Returns
// domain.ErrInsufficientCredits without mutation when the balance is short.
func (g *Gate) Reserve(ctx context.Context, userID string, tool domain.Tool, cost int) (int, error) {
	if cost <= 0 {
		return 0, fmt.Errorf("reserve: cost must be positive, got %d", cost)
	}
	balance, err := g.ledger.Reserve(ctx, userID, cost, "reserve:"+string(tool))
	if err != nil {
		return balance, err
	}
	g.logger.Debug().
		Str("user_id", userID).
		Str("tool", string(tool)).
		Int("cost", cost).
		Int("balance", balance).
		Msg("credits reserved")
	return balance, nil
}

// Refund is the compensating action for a reservation whose job never ran
// (or terminally failed, depending on policy). Refund failures are logged
// loudly; losing a refund means a user paid for nothing.
func (g *Gate) Refund(ctx context.Context, userID string, tool domain.Tool, amount int, reason string) {
	if amount <= 0 {
		return
	}
	balance, err := g.ledger.Refund(ctx, userID, amount, reason+":"+string(tool))
	if err != nil {
		g.logger.Error().Err(err).
			Str("user_id", userID).
			Str("tool", string(tool)).
			Int("amount", amount).
			Str("reason", reason).
			Msg("credit refund failed")
		return
	}
	g.logger.Info().
		Str("user_id", userID).
		Str("tool", string(tool)).
		Int("amount", amount).
		Str("reason", reason).
		Int("balance", balance).
		Msg("credits refunded")
}
