//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"product-entitlements/internal/domain"
	"product-entitlements/internal/domain/model"
	"product-entitlements/internal/domain/ports/repository"
	"product-entitlements/internal/infra/catalog"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func days(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

func intPtr(v int) *int { return &v }

func timePtr(t time.Time) *time.Time { return &t }

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func newTestCatalog() repository.ProductCatalog {
	c, err := catalog.New([]model.Product{
		{Slug: "screener", Name: "Market Screener", RequiredLevel: model.LevelMonthly, PriceType: model.PriceMembership, TrialEnabled: true, TrialQuota: 5},
		{Slug: "reports", Name: "Research Reports", RequiredLevel: model.LevelYearly, PriceType: model.PriceBoth, TrialEnabled: true, TrialQuota: 3},
		{Slug: "course", Name: "Options Course", RequiredLevel: model.LevelLifetime, PriceType: model.PriceStandalone},
	})
	if err != nil {
		panic(err)
	}
	return c
}

// ---- MockTxManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// ---- In-memory activation codes ----

type memCodeRepo struct {
	mu    sync.Mutex
	codes map[string]*model.ActivationCode

	SaveBatchFunc func(ctx context.Context, codes []*model.ActivationCode) error
	existingCalls int
}

var _ repository.ActivationCodeRepository = (*memCodeRepo)(nil)

func newMemCodeRepo() *memCodeRepo {
	return &memCodeRepo{codes: make(map[string]*model.ActivationCode)}
}

func (m *memCodeRepo) SaveBatch(ctx context.Context, _ repository.Tx, codes []*model.ActivationCode) error {
	if m.SaveBatchFunc != nil {
		if err := m.SaveBatchFunc(ctx, codes); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range codes {
		if _, ok := m.codes[c.Code]; ok {
			return domain.ErrAlreadyExists
		}
	}
	for _, c := range codes {
		cp := *c
		m.codes[c.Code] = &cp
	}
	return nil
}

func (m *memCodeRepo) Existing(_ context.Context, _ repository.Tx, candidates []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.existingCalls++
	var out []string
	for _, c := range candidates {
		if _, ok := m.codes[c]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memCodeRepo) FindByCode(_ context.Context, _ repository.Tx, code string) (*model.ActivationCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[code]
	if !ok {
		return nil, domain.ErrCodeNotFound
	}
	cp := *c
	return &cp, nil
}

// MarkUsed is a compare-and-set under the repo mutex.
func (m *memCodeRepo) MarkUsed(_ context.Context, _ repository.Tx, code, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[code]
	if !ok {
		return domain.ErrCodeNotFound
	}
	if c.Used {
		return domain.ErrCodeAlreadyUsed
	}
	c.Used = true
	c.UsedBy = &userID
	c.UsedAt = &at
	return nil
}

func (m *memCodeRepo) ListByBatch(_ context.Context, _ repository.Tx, batchID string) ([]*model.ActivationCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ActivationCode
	for _, c := range m.codes {
		if c.BatchID == batchID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *memCodeRepo) put(c *model.ActivationCode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[c.Code] = c
}

func (m *memCodeRepo) get(code string) *model.ActivationCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.codes[code]; ok {
		cp := *c
		return &cp
	}
	return nil
}

func (m *memCodeRepo) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.codes)
}

// ---- In-memory memberships ----

type memMembershipRepo struct {
	mu   sync.Mutex
	rows map[string]*model.Membership

	SaveFunc func(ctx context.Context, m *model.Membership) error
}

var _ repository.MembershipRepository = (*memMembershipRepo)(nil)

func newMemMembershipRepo() *memMembershipRepo {
	return &memMembershipRepo{rows: make(map[string]*model.Membership)}
}

func (r *memMembershipRepo) FindByUser(_ context.Context, _ repository.Tx, userID string) (*model.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *memMembershipRepo) LockForUpdate(_ context.Context, _ repository.Tx, userID string) (*model.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[userID]
	if !ok {
		m = model.NoMembership(userID)
		r.rows[userID] = m
	}
	cp := *m
	return &cp, nil
}

func (r *memMembershipRepo) Save(ctx context.Context, _ repository.Tx, m *model.Membership) error {
	if r.SaveFunc != nil {
		if err := r.SaveFunc(ctx, m); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.rows[m.UserID] = &cp
	return nil
}

func (r *memMembershipRepo) CountActiveByLevel(_ context.Context, _ repository.Tx, now time.Time) (map[model.Level]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[model.Level]int)
	for _, m := range r.rows {
		if l := m.EffectiveLevel(now); l != model.LevelNone {
			out[l]++
		}
	}
	return out, nil
}

func (r *memMembershipRepo) put(m *model.Membership) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[m.UserID] = m
}

// ---- In-memory purchases ----

type memPurchaseRepo struct {
	mu   sync.Mutex
	rows []*model.ProductPurchase
}

var _ repository.PurchaseRepository = (*memPurchaseRepo)(nil)

func (r *memPurchaseRepo) Save(_ context.Context, _ repository.Tx, p *model.ProductPurchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.rows = append(r.rows, &cp)
	return nil
}

func (r *memPurchaseRepo) FindActive(_ context.Context, _ repository.Tx, userID, productSlug string, now time.Time) (*model.ProductPurchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *model.ProductPurchase
	for _, p := range r.rows {
		if p.UserID != userID || p.ProductSlug != productSlug || !p.Active(now) {
			continue
		}
		switch {
		case best == nil:
			best = p
		case best.ExpiresAt == nil:
		case p.ExpiresAt == nil || p.ExpiresAt.After(*best.ExpiresAt):
			best = p
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (r *memPurchaseRepo) ListByUser(_ context.Context, _ repository.Tx, userID string) ([]*model.ProductPurchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.ProductPurchase
	for _, p := range r.rows {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---- In-memory trials ----

type trialKey struct{ user, product string }

type memTrialRepo struct {
	mu       sync.Mutex
	counters map[trialKey]int
	logs     []*model.TrialLog
	writes   int

	AppendLogFunc func(ctx context.Context, l *model.TrialLog) error
}

var _ repository.TrialRepository = (*memTrialRepo)(nil)

func newMemTrialRepo() *memTrialRepo {
	return &memTrialRepo{counters: make(map[trialKey]int)}
}

func (r *memTrialRepo) FindCounter(_ context.Context, _ repository.Tx, userID, productSlug string) (*model.TrialCounter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rem, ok := r.counters[trialKey{userID, productSlug}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &model.TrialCounter{UserID: userID, ProductSlug: productSlug, Remaining: rem}, nil
}

func (r *memTrialRepo) Consume(_ context.Context, _ repository.Tx, userID, productSlug string, quota int, _ time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := trialKey{userID, productSlug}
	rem, ok := r.counters[k]
	if !ok {
		rem = quota
	}
	if rem <= 0 {
		r.counters[k] = rem
		return 0, domain.ErrTrialExhausted
	}
	rem--
	r.counters[k] = rem
	r.writes++
	return rem, nil
}

func (r *memTrialRepo) Reset(_ context.Context, _ repository.Tx, userID, productSlug string, quota int, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[trialKey{userID, productSlug}] = quota
	r.writes++
	return nil
}

func (r *memTrialRepo) AppendLog(ctx context.Context, _ repository.Tx, l *model.TrialLog) error {
	if r.AppendLogFunc != nil {
		if err := r.AppendLogFunc(ctx, l); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *l
	r.logs = append(r.logs, &cp)
	return nil
}

func (r *memTrialRepo) LatestLogSince(_ context.Context, _ repository.Tx, userID, productSlug string, since time.Time) (*model.TrialLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *model.TrialLog
	for _, l := range r.logs {
		if l.UserID != userID || l.ProductSlug != productSlug || l.ConsumedAt.Before(since) {
			continue
		}
		if best == nil || l.ConsumedAt.After(best.ConsumedAt) {
			best = l
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (r *memTrialRepo) remaining(userID, productSlug string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rem, ok := r.counters[trialKey{userID, productSlug}]
	return rem, ok
}

// ---- Audit ----

type recordingAudit struct {
	mu     sync.Mutex
	events []model.AuditEvent
}

func (a *recordingAudit) Append(_ context.Context, ev model.AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
}

func (a *recordingAudit) types() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.events))
	for _, ev := range a.events {
		out = append(out, ev.Type)
	}
	return out
}

// ---- Failing attempt store ----

type brokenStore struct{ err error }

func (b brokenStore) Get(context.Context, string) (int, time.Duration, error) { return 0, 0, b.err }
func (b brokenStore) Incr(context.Context, string, time.Duration) (int, time.Duration, error) {
	return 0, 0, b.err
}
func (b brokenStore) Reset(context.Context, string) error { return b.err }
