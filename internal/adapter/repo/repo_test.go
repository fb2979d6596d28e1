package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"server/internal/domain"
)

type simpleRow struct {
	scan func(dest ...any) error
}

func (r simpleRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

// stubExecutor answers Exec and QueryRow from canned responses, in order of
// invocation per method.
type stubExecutor struct {
	execTags []pgconn.CommandTag
	execErrs []error
	execs    int

	rows     []simpleRow
	rowCalls int
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	i := s.execs
	s.execs++
	var tag pgconn.CommandTag
	var err error
	if i < len(s.execTags) {
		tag = s.execTags[i]
	}
	if i < len(s.execErrs) {
		err = s.execErrs[i]
	}
	return tag, err
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	i := s.rowCalls
	s.rowCalls++
	if i < len(s.rows) {
		return s.rows[i]
	}
	return simpleRow{}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("query not stubbed")
}

func TestCreateMapsUniqueViolation(t *testing.T) {
	db := &stubExecutor{
		execErrs: []error{&pgconn.PgError{Code: "23505", ConstraintName: "jobs_single_flight"}},
	}
	r := NewJobRepository(db)

	err := r.Create(context.Background(), &domain.Job{ID: "j1", UserID: "u1", Tool: domain.ToolBabyImage, Status: domain.JobStatusQueued})
	if !errors.Is(err, domain.ErrActiveJobExists) {
		t.Fatalf("err = %v, want ErrActiveJobExists", err)
	}
}

func TestCreatePassesThroughOtherErrors(t *testing.T) {
	boom := errors.New("connection reset")
	db := &stubExecutor{execErrs: []error{boom}}
	r := NewJobRepository(db)

	err := r.Create(context.Background(), &domain.Job{ID: "j1"})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want passthrough", err)
	}
}

func TestTransitionZeroRows(t *testing.T) {
	tests := []struct {
		name    string
		status  func(dest ...any) error
		wantErr error
	}{
		{
			name:    "job gone",
			status:  nil, // QSelectJobStatus returns no rows
			wantErr: domain.ErrNotFound,
		},
		{
			name: "already terminal",
			status: func(dest ...any) error {
				*(dest[0].(*string)) = string(domain.JobStatusCompleted)
				return nil
			},
			wantErr: domain.ErrInvalidTransition,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db := &stubExecutor{
				execTags: []pgconn.CommandTag{pgconn.NewCommandTag("UPDATE 0")},
				execErrs: []error{nil},
				rows:     []simpleRow{{scan: tc.status}},
			}
			r := NewJobRepository(db)

			err := r.Transition(context.Background(), "j1", domain.JobStatusTimedOut, domain.TransitionFields{})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestTransitionIntoQueuedRefused(t *testing.T) {
	r := NewJobRepository(&stubExecutor{})
	err := r.Transition(context.Background(), "j1", domain.JobStatusQueued, domain.TransitionFields{})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestReserveClassifiesMiss(t *testing.T) {
	tests := []struct {
		name        string
		balanceScan func(dest ...any) error
		wantErr     error
		wantBalance int
	}{
		{
			name:    "unknown user",
			wantErr: domain.ErrNotFound,
		},
		{
			name: "short balance",
			balanceScan: func(dest ...any) error {
				*(dest[0].(*int)) = 2
				return nil
			},
			wantErr:     domain.ErrInsufficientCredits,
			wantBalance: 2,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db := &stubExecutor{
				rows: []simpleRow{
					{}, // QReserveCredits matched no row
					{scan: tc.balanceScan},
				},
			}
			l := NewCreditLedger(db)

			balance, err := l.Reserve(context.Background(), "u1", 5, "reserve:baby_image")
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if balance != tc.wantBalance {
				t.Fatalf("balance = %d, want %d", balance, tc.wantBalance)
			}
		})
	}
}
