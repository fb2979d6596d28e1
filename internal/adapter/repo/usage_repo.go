package repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"
)

// UsageRepositoryPG persists submit outcomes for the usage dashboard.
type UsageRepositoryPG struct {
	db infra.SQLExecutor
}

func NewUsageRepository(db infra.SQLExecutor) *UsageRepositoryPG {
	return &UsageRepositoryPG{db: db}
}

func (r *UsageRepositoryPG) Insert(ctx context.Context, ev *domain.UsageEvent) error {
	id := ev.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := r.db.Exec(ctx, sqlinline.QInsertUsageEvent,
		id, ev.UserID, ev.Tool, ev.Success, ev.ErrorCode, ev.LatencyMS, ev.Country)
	return err
}

func (r *UsageRepositoryPG) Summary(ctx context.Context, since time.Time) ([]domain.UsageSummaryRow, error) {
	rows, err := r.db.Query(ctx, sqlinline.QUsageSummary, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.UsageSummaryRow
	for rows.Next() {
		var row domain.UsageSummaryRow
		if err := rows.Scan(&row.Tool, &row.Total, &row.Succeeded); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

var _ domain.UsageRepository = (*UsageRepositoryPG)(nil)
