package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sellershub/settlement-engine/internal/domain"
)

// memStore is an in-memory QueryStore with real transaction semantics:
// RunInTx works on a clone and swaps it in on success, so a failed
// transaction leaves no partial writes. A single mutex serializes all access,
// which is stricter than Postgres but never weaker.
type memStore struct {
	mu   sync.Mutex
	data *memData

	// failAppendDebit simulates a ledger write failing mid-commit.
	failAppendDebit error
}

type snapKey struct {
	accountID uuid.UUID
	currency  string
}

type memData struct {
	accounts  map[uuid.UUID]domain.SellerAccount
	entries   []domain.LedgerEntry
	snapshots map[snapKey]domain.BalanceSnapshot
	payouts   map[uuid.UUID]domain.PayoutRequest
	audits    []domain.AuditRecord
}

func newMemStore() *memStore {
	return &memStore{data: &memData{
		accounts:  make(map[uuid.UUID]domain.SellerAccount),
		snapshots: make(map[snapKey]domain.BalanceSnapshot),
		payouts:   make(map[uuid.UUID]domain.PayoutRequest),
	}}
}

func (d *memData) clone() *memData {
	c := &memData{
		accounts:  make(map[uuid.UUID]domain.SellerAccount, len(d.accounts)),
		entries:   append([]domain.LedgerEntry(nil), d.entries...),
		snapshots: make(map[snapKey]domain.BalanceSnapshot, len(d.snapshots)),
		payouts:   make(map[uuid.UUID]domain.PayoutRequest, len(d.payouts)),
		audits:    append([]domain.AuditRecord(nil), d.audits...),
	}
	for k, v := range d.accounts {
		c.accounts[k] = v
	}
	for k, v := range d.snapshots {
		c.snapshots[k] = v
	}
	for k, v := range d.payouts {
		c.payouts[k] = v
	}
	return c
}

func (m *memStore) Queries() Queries {
	return &lockedQueries{store: m}
}

func (m *memStore) RunInTx(ctx context.Context, fn func(q Queries) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := m.data.clone()
	if err := fn(&memQueries{d: clone, store: m}); err != nil {
		return err
	}
	m.data = clone
	return nil
}

func (m *memStore) addAccount(a domain.SellerAccount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.accounts[a.ID] = a
}

func (m *memStore) payout(id uuid.UUID) domain.PayoutRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.payouts[id]
}

func (m *memStore) auditActions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	actions := make([]string, 0, len(m.data.audits))
	for _, rec := range m.data.audits {
		actions = append(actions, rec.Action)
	}
	return actions
}

// memQueries operates on one memData; callers hold the store mutex.
type memQueries struct {
	d     *memData
	store *memStore
}

func (q *memQueries) GetAccount(ctx context.Context, id uuid.UUID) (domain.SellerAccount, error) {
	a, ok := q.d.accounts[id]
	if !ok {
		return domain.SellerAccount{}, domain.ErrAccountNotFound
	}
	return a, nil
}

func (q *memQueries) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (domain.SellerAccount, error) {
	return q.GetAccount(ctx, id)
}

func (q *memQueries) ListAccountIDs(ctx context.Context) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(q.d.accounts))
	for id := range q.d.accounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (q *memQueries) AppendLedgerEntry(ctx context.Context, e domain.LedgerEntry) error {
	if e.Type == domain.EntryPayoutDebit && q.store.failAppendDebit != nil {
		return q.store.failAppendDebit
	}
	q.d.entries = append(q.d.entries, e)
	return nil
}

func (q *memQueries) ListLedgerEntries(ctx context.Context, accountID uuid.UUID, since *time.Time) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	for _, e := range q.d.entries {
		if e.AccountID != accountID {
			continue
		}
		if since != nil && e.CreatedAt.Before(*since) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (q *memQueries) HasPayoutDebit(ctx context.Context, payoutID uuid.UUID) (bool, error) {
	for _, e := range q.d.entries {
		if e.Type == domain.EntryPayoutDebit && e.RelatedPayoutID != nil && *e.RelatedPayoutID == payoutID {
			return true, nil
		}
	}
	return false, nil
}

func (q *memQueries) GetSnapshot(ctx context.Context, accountID uuid.UUID, currency string) (domain.BalanceSnapshot, error) {
	s, ok := q.d.snapshots[snapKey{accountID, currency}]
	if !ok {
		return domain.BalanceSnapshot{}, domain.ErrSnapshotNotFound
	}
	return s, nil
}

func (q *memQueries) UpsertSnapshot(ctx context.Context, s domain.BalanceSnapshot) error {
	s.UpdatedAt = time.Now()
	q.d.snapshots[snapKey{s.AccountID, s.Currency}] = s
	return nil
}

func (q *memQueries) InsertPayout(ctx context.Context, p domain.PayoutRequest) error {
	q.d.payouts[p.ID] = p
	return nil
}

func (q *memQueries) GetPayout(ctx context.Context, id uuid.UUID) (domain.PayoutRequest, error) {
	p, ok := q.d.payouts[id]
	if !ok {
		return domain.PayoutRequest{}, domain.ErrPayoutNotFound
	}
	return p, nil
}

func (q *memQueries) ClaimPayout(ctx context.Context, id uuid.UUID, processedAt time.Time) (bool, error) {
	p, ok := q.d.payouts[id]
	if !ok || p.Status != domain.PayoutPending {
		return false, nil
	}
	p.Status = domain.PayoutProcessing
	p.ProcessedAt = &processedAt
	q.d.payouts[id] = p
	return true, nil
}

func (q *memQueries) CompletePayout(ctx context.Context, id uuid.UUID, transferID string, completedAt time.Time) (bool, error) {
	p, ok := q.d.payouts[id]
	if !ok || p.Status != domain.PayoutProcessing {
		return false, nil
	}
	p.Status = domain.PayoutCompleted
	p.TransferID = &transferID
	p.CompletedAt = &completedAt
	q.d.payouts[id] = p
	return true, nil
}

func (q *memQueries) FailPayout(ctx context.Context, id uuid.UUID, from domain.PayoutStatus, reason string) (bool, error) {
	p, ok := q.d.payouts[id]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = domain.PayoutFailed
	p.FailureReason = &reason
	q.d.payouts[id] = p
	return true, nil
}

func (q *memQueries) HasOpenPayout(ctx context.Context, accountID uuid.UUID) (bool, error) {
	for _, p := range q.d.payouts {
		if p.AccountID == accountID && (p.Status == domain.PayoutPending || p.Status == domain.PayoutProcessing) {
			return true, nil
		}
	}
	return false, nil
}

func (q *memQueries) LastCompletedPayout(ctx context.Context, accountID uuid.UUID) (*domain.PayoutRequest, error) {
	var last *domain.PayoutRequest
	for _, p := range q.d.payouts {
		if p.AccountID != accountID || p.Status != domain.PayoutCompleted || p.CompletedAt == nil {
			continue
		}
		p := p
		if last == nil || p.CompletedAt.After(*last.CompletedAt) {
			last = &p
		}
	}
	return last, nil
}

func (q *memQueries) ListPayouts(ctx context.Context, accountID uuid.UUID, limit, offset int32) ([]domain.PayoutRequest, error) {
	var out []domain.PayoutRequest
	for _, p := range q.d.payouts {
		if p.AccountID == accountID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	if int(offset) >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if int(limit) < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (q *memQueries) ListStalePendingPayouts(ctx context.Context, olderThan time.Time, limit int32) ([]domain.PayoutRequest, error) {
	var out []domain.PayoutRequest
	for _, p := range q.d.payouts {
		if p.Status == domain.PayoutPending && p.RequestedAt.Before(olderThan) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	if int(limit) < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (q *memQueries) ListCompletedPayoutsMissingDebit(ctx context.Context, limit int32) ([]domain.PayoutRequest, error) {
	var out []domain.PayoutRequest
	for _, p := range q.d.payouts {
		if p.Status != domain.PayoutCompleted {
			continue
		}
		has, _ := q.HasPayoutDebit(ctx, p.ID)
		if !has {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	if int(limit) < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (q *memQueries) InsertAuditLog(ctx context.Context, rec domain.AuditRecord) error {
	q.d.audits = append(q.d.audits, rec)
	return nil
}

// lockedQueries adapts memQueries for non-transactional use: every call takes
// the store mutex and operates on live data.
type lockedQueries struct {
	store *memStore
}

func (l *lockedQueries) with(fn func(q *memQueries) error) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	return fn(&memQueries{d: l.store.data, store: l.store})
}

func (l *lockedQueries) GetAccount(ctx context.Context, id uuid.UUID) (a domain.SellerAccount, err error) {
	err = l.with(func(q *memQueries) error { a, err = q.GetAccount(ctx, id); return err })
	return
}

func (l *lockedQueries) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (a domain.SellerAccount, err error) {
	err = l.with(func(q *memQueries) error { a, err = q.GetAccountForUpdate(ctx, id); return err })
	return
}

func (l *lockedQueries) ListAccountIDs(ctx context.Context) (ids []uuid.UUID, err error) {
	err = l.with(func(q *memQueries) error { ids, err = q.ListAccountIDs(ctx); return err })
	return
}

func (l *lockedQueries) AppendLedgerEntry(ctx context.Context, e domain.LedgerEntry) error {
	return l.with(func(q *memQueries) error { return q.AppendLedgerEntry(ctx, e) })
}

func (l *lockedQueries) ListLedgerEntries(ctx context.Context, accountID uuid.UUID, since *time.Time) (entries []domain.LedgerEntry, err error) {
	err = l.with(func(q *memQueries) error { entries, err = q.ListLedgerEntries(ctx, accountID, since); return err })
	return
}

func (l *lockedQueries) HasPayoutDebit(ctx context.Context, payoutID uuid.UUID) (has bool, err error) {
	err = l.with(func(q *memQueries) error { has, err = q.HasPayoutDebit(ctx, payoutID); return err })
	return
}

func (l *lockedQueries) GetSnapshot(ctx context.Context, accountID uuid.UUID, currency string) (s domain.BalanceSnapshot, err error) {
	err = l.with(func(q *memQueries) error { s, err = q.GetSnapshot(ctx, accountID, currency); return err })
	return
}

func (l *lockedQueries) UpsertSnapshot(ctx context.Context, s domain.BalanceSnapshot) error {
	return l.with(func(q *memQueries) error { return q.UpsertSnapshot(ctx, s) })
}

func (l *lockedQueries) InsertPayout(ctx context.Context, p domain.PayoutRequest) error {
	return l.with(func(q *memQueries) error { return q.InsertPayout(ctx, p) })
}

func (l *lockedQueries) GetPayout(ctx context.Context, id uuid.UUID) (p domain.PayoutRequest, err error) {
	err = l.with(func(q *memQueries) error { p, err = q.GetPayout(ctx, id); return err })
	return
}

func (l *lockedQueries) ClaimPayout(ctx context.Context, id uuid.UUID, processedAt time.Time) (ok bool, err error) {
	err = l.with(func(q *memQueries) error { ok, err = q.ClaimPayout(ctx, id, processedAt); return err })
	return
}

func (l *lockedQueries) CompletePayout(ctx context.Context, id uuid.UUID, transferID string, completedAt time.Time) (ok bool, err error) {
	err = l.with(func(q *memQueries) error { ok, err = q.CompletePayout(ctx, id, transferID, completedAt); return err })
	return
}

func (l *lockedQueries) FailPayout(ctx context.Context, id uuid.UUID, from domain.PayoutStatus, reason string) (ok bool, err error) {
	err = l.with(func(q *memQueries) error { ok, err = q.FailPayout(ctx, id, from, reason); return err })
	return
}

func (l *lockedQueries) HasOpenPayout(ctx context.Context, accountID uuid.UUID) (open bool, err error) {
	err = l.with(func(q *memQueries) error { open, err = q.HasOpenPayout(ctx, accountID); return err })
	return
}

func (l *lockedQueries) LastCompletedPayout(ctx context.Context, accountID uuid.UUID) (p *domain.PayoutRequest, err error) {
	err = l.with(func(q *memQueries) error { p, err = q.LastCompletedPayout(ctx, accountID); return err })
	return
}

func (l *lockedQueries) ListPayouts(ctx context.Context, accountID uuid.UUID, limit, offset int32) (ps []domain.PayoutRequest, err error) {
	err = l.with(func(q *memQueries) error { ps, err = q.ListPayouts(ctx, accountID, limit, offset); return err })
	return
}

func (l *lockedQueries) ListStalePendingPayouts(ctx context.Context, olderThan time.Time, limit int32) (ps []domain.PayoutRequest, err error) {
	err = l.with(func(q *memQueries) error { ps, err = q.ListStalePendingPayouts(ctx, olderThan, limit); return err })
	return
}

func (l *lockedQueries) ListCompletedPayoutsMissingDebit(ctx context.Context, limit int32) (ps []domain.PayoutRequest, err error) {
	err = l.with(func(q *memQueries) error { ps, err = q.ListCompletedPayoutsMissingDebit(ctx, limit); return err })
	return
}

func (l *lockedQueries) InsertAuditLog(ctx context.Context, rec domain.AuditRecord) error {
	return l.with(func(q *memQueries) error { return q.InsertAuditLog(ctx, rec) })
}
