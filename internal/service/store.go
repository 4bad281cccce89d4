package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sellershub/settlement-engine/internal/domain"
	"github.com/sellershub/settlement-engine/internal/repository"
)

// Queries is the data access contract services run against. The pgx
// repository implements it for production; tests substitute an in-memory
// store with the same semantics.
type Queries interface {
	// Accounts. GetAccountForUpdate takes the account's row lock for the
	// remainder of the transaction; it is the account-granularity mutual
	// exclusion for the eligibility check+insert and for snapshot writes.
	GetAccount(ctx context.Context, id uuid.UUID) (domain.SellerAccount, error)
	GetAccountForUpdate(ctx context.Context, id uuid.UUID) (domain.SellerAccount, error)
	ListAccountIDs(ctx context.Context) ([]uuid.UUID, error)

	// Ledger: append-only. No update or delete exists anywhere.
	AppendLedgerEntry(ctx context.Context, e domain.LedgerEntry) error
	ListLedgerEntries(ctx context.Context, accountID uuid.UUID, since *time.Time) ([]domain.LedgerEntry, error)
	HasPayoutDebit(ctx context.Context, payoutID uuid.UUID) (bool, error)

	// Balance snapshots: one row per account+currency, written only by the
	// projector path.
	GetSnapshot(ctx context.Context, accountID uuid.UUID, currency string) (domain.BalanceSnapshot, error)
	UpsertSnapshot(ctx context.Context, s domain.BalanceSnapshot) error

	// Payouts: insert plus conditional status transitions. The WHERE
	// status=... guards make claim and completion idempotent under
	// concurrent orchestration calls.
	InsertPayout(ctx context.Context, p domain.PayoutRequest) error
	GetPayout(ctx context.Context, id uuid.UUID) (domain.PayoutRequest, error)
	ClaimPayout(ctx context.Context, id uuid.UUID, processedAt time.Time) (bool, error)
	CompletePayout(ctx context.Context, id uuid.UUID, transferID string, completedAt time.Time) (bool, error)
	FailPayout(ctx context.Context, id uuid.UUID, from domain.PayoutStatus, reason string) (bool, error)
	HasOpenPayout(ctx context.Context, accountID uuid.UUID) (bool, error)
	LastCompletedPayout(ctx context.Context, accountID uuid.UUID) (*domain.PayoutRequest, error)
	ListPayouts(ctx context.Context, accountID uuid.UUID, limit, offset int32) ([]domain.PayoutRequest, error)
	ListStalePendingPayouts(ctx context.Context, olderThan time.Time, limit int32) ([]domain.PayoutRequest, error)
	ListCompletedPayoutsMissingDebit(ctx context.Context, limit int32) ([]domain.PayoutRequest, error)

	InsertAuditLog(ctx context.Context, rec domain.AuditRecord) error
}

// QueryStore provides the query set and transaction scoping.
type QueryStore interface {
	Queries() Queries
	RunInTx(ctx context.Context, fn func(q Queries) error) error
}

// PgxStore adapts the repository store to the service contracts.
type PgxStore struct {
	store *repository.Store
}

func NewPgxStore(store *repository.Store) *PgxStore {
	return &PgxStore{store: store}
}

func (p *PgxStore) Queries() Queries {
	return p.store.Queries()
}

func (p *PgxStore) RunInTx(ctx context.Context, fn func(q Queries) error) error {
	return p.store.RunInTx(ctx, func(q *repository.Queries) error {
		return fn(q)
	})
}
