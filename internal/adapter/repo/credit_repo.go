package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"
)

// CreditLedgerPG implements domain.CreditLedger on PostgreSQL. Reservation
// is a single conditional UPDATE, which is atomic against concurrent
// reserves for the same user and strongly consistent: the decremented
// balance is visible to the next reservation attempt immediately.
type CreditLedgerPG struct {
	db infra.SQLExecutor
}

// NewCreditLedger creates a credit ledger over the given executor.
func NewCreditLedger(db infra.SQLExecutor) *CreditLedgerPG {
	return &CreditLedgerPG{db: db}
}

// Reserve decrements the balance by amount. When the balance is short the
// UPDATE matches no row and nothing is mutated.
func (l *CreditLedgerPG) Reserve(ctx context.Context, userID string, amount int, reason string) (int, error) {
	var balance int
	err := l.db.QueryRow(ctx, sqlinline.QReserveCredits, userID, amount).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return l.classifyMiss(ctx, userID)
		}
		return 0, err
	}
	l.recordEvent(ctx, userID, -amount, reason)
	return balance, nil
}

// Refund credits amount back to the user.
func (l *CreditLedgerPG) Refund(ctx context.Context, userID string, amount int, reason string) (int, error) {
	var balance int
	err := l.db.QueryRow(ctx, sqlinline.QRefundCredits, userID, amount).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}
	l.recordEvent(ctx, userID, amount, reason)
	return balance, nil
}

// Balance returns the current credit balance.
func (l *CreditLedgerPG) Balance(ctx context.Context, userID string) (int, error) {
	var balance int
	if err := l.db.QueryRow(ctx, sqlinline.QSelectCreditBalance, userID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}
	return balance, nil
}

// classifyMiss distinguishes an unknown user from a short balance after a
// reservation matched no row.
func (l *CreditLedgerPG) classifyMiss(ctx context.Context, userID string) (int, error) {
	var balance int
	if err := l.db.QueryRow(ctx, sqlinline.QSelectCreditBalance, userID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}
	return balance, domain.ErrInsufficientCredits
}

// recordEvent appends to the audit trail. Failures are swallowed: the
// balance mutation already committed and the trail is advisory.
func (l *CreditLedgerPG) recordEvent(ctx context.Context, userID string, delta int, reason string) {
	_, _ = l.db.Exec(ctx, sqlinline.QInsertCreditEvent, uuid.NewString(), userID, delta, reason)
}

var _ domain.CreditLedger = (*CreditLedgerPG)(nil)
