package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/spec-kit/netcafe-service/internal/domain"
	"github.com/spec-kit/netcafe-service/internal/repository"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: epoch} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeAccounts struct {
	mu       sync.Mutex
	byID     map[int64]*domain.Account
	nextID   int64
	getErr   error
	getFails int
	// readDelay widens the gap between a read and the write that follows it.
	readDelay time.Duration

	charges     int
	onlineFlips map[int64][]bool
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{byID: make(map[int64]*domain.Account), onlineFlips: make(map[int64][]bool)}
}

func (f *fakeAccounts) add(username string, role domain.Role, balance string) *domain.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	account := &domain.Account{
		ID:       f.nextID,
		Username: username,
		Role:     role,
		Balance:  decimal.RequireFromString(balance),
	}
	f.byID[account.ID] = account
	return account
}

// update mutates the stored account directly.
func (f *fakeAccounts) update(id int64, fn func(*domain.Account)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f.byID[id])
}

func (f *fakeAccounts) snapshot(id int64) domain.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyAccount(f.byID[id])
}

// failNextGets makes the next n GetByID calls return err.
func (f *fakeAccounts) failNextGets(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getFails = n
	f.getErr = err
}

func (f *fakeAccounts) chargeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.charges
}

func (f *fakeAccounts) flips(id int64) []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.onlineFlips[id]...)
}

func copyAccount(a *domain.Account) domain.Account {
	out := *a
	if a.LastActivity != nil {
		t := *a.LastActivity
		out.LastActivity = &t
	}
	return out
}

func (f *fakeAccounts) Create(_ context.Context, account *domain.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	account.ID = f.nextID
	account.CreatedAt = epoch
	stored := copyAccount(account)
	f.byID[account.ID] = &stored
	return nil
}

func (f *fakeAccounts) GetByID(_ context.Context, id int64) (*domain.Account, error) {
	out, delay, err := f.get(id)
	if delay > 0 {
		time.Sleep(delay)
	}
	return out, err
}

func (f *fakeAccounts) get(id int64) (*domain.Account, time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getFails > 0 {
		f.getFails--
		return nil, f.readDelay, f.getErr
	}
	account, ok := f.byID[id]
	if !ok {
		return nil, f.readDelay, pgx.ErrNoRows
	}
	out := copyAccount(account)
	return &out, f.readDelay, nil
}

func (f *fakeAccounts) GetByUsername(_ context.Context, username string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, account := range f.byID {
		if account.Username == username {
			out := copyAccount(account)
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeAccounts) list(keep func(*domain.Account) bool) []domain.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Account
	for _, account := range f.byID {
		if keep(account) {
			out = append(out, copyAccount(account))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeAccounts) ListCustomers(context.Context) ([]domain.Account, error) {
	return f.list(func(a *domain.Account) bool { return !a.IsStaff() }), nil
}

func (f *fakeAccounts) ListOnline(context.Context) ([]domain.Account, error) {
	return f.list(func(a *domain.Account) bool { return a.IsOnline }), nil
}

func (f *fakeAccounts) FirstStaffID(context.Context) (int64, error) {
	staff := f.list(func(a *domain.Account) bool { return a.IsStaff() })
	if len(staff) == 0 {
		return 0, pgx.ErrNoRows
	}
	return staff[0].ID, nil
}

func (f *fakeAccounts) SetBalanceAndActivity(_ context.Context, id int64, balance decimal.Decimal, activity time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	f.charges++
	account.Balance = balance
	account.LastActivity = &activity
	return nil
}

func (f *fakeAccounts) Deplete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	f.charges++
	account.Balance = decimal.Zero
	account.IsOnline = false
	f.onlineFlips[id] = append(f.onlineFlips[id], false)
	return nil
}

func (f *fakeAccounts) SetOnline(_ context.Context, id int64, online bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	account.IsOnline = online
	if online {
		account.LastActivity = nil
	}
	f.onlineFlips[id] = append(f.onlineFlips[id], online)
	return nil
}

func (f *fakeAccounts) Credit(_ context.Context, id int64, amount decimal.Decimal, activity time.Time) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.byID[id]
	if !ok {
		return decimal.Zero, pgx.ErrNoRows
	}
	account.Balance = account.Balance.Add(amount)
	account.LastActivity = &activity
	return account.Balance, nil
}

type fakeMessages struct {
	mu        sync.Mutex
	clock     *fakeClock
	rows      []domain.Message
	readDelay time.Duration
}

func newFakeMessages(clock *fakeClock) *fakeMessages {
	return &fakeMessages{clock: clock}
}

func (f *fakeMessages) all() []domain.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Message(nil), f.rows...)
}

func (f *fakeMessages) Create(_ context.Context, msg *domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg.ID = int64(len(f.rows) + 1)
	msg.CreatedAt = f.clock.Now()
	f.rows = append(f.rows, *msg)
	return nil
}

func (f *fakeMessages) FindRecentDuplicate(_ context.Context, senderID, recipientID int64, content string, window time.Duration) (*domain.Message, error) {
	msg, err := f.findDuplicate(senderID, recipientID, content, window)
	f.mu.Lock()
	delay := f.readDelay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	return msg, err
}

func (f *fakeMessages) findDuplicate(senderID, recipientID int64, content string, window time.Duration) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := f.clock.Now().Add(-window)
	for i := len(f.rows) - 1; i >= 0; i-- {
		m := f.rows[i]
		if m.SenderID == senderID && m.RecipientID == recipientID && m.Content == content && !m.CreatedAt.Before(cutoff) {
			return &m, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeMessages) ListConversation(_ context.Context, a, b int64, limit int) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Message
	for _, m := range f.rows {
		if (m.SenderID == a && m.RecipientID == b) || (m.SenderID == b && m.RecipientID == a) {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type fakeTopUps struct {
	mu       sync.Mutex
	accounts *fakeAccounts
	rows     map[int64]*domain.TopUpRequest
	nextID   int64
}

func newFakeTopUps(accounts *fakeAccounts) *fakeTopUps {
	return &fakeTopUps{accounts: accounts, rows: make(map[int64]*domain.TopUpRequest)}
}

func (f *fakeTopUps) get(id int64) domain.TopUpRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.rows[id]
}

func (f *fakeTopUps) Create(_ context.Context, req *domain.TopUpRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	req.ID = f.nextID
	req.Status = domain.TopUpStatusPending
	req.CreatedAt = epoch
	stored := *req
	f.rows[req.ID] = &stored
	return nil
}

func (f *fakeTopUps) GetByID(_ context.Context, id int64) (*domain.TopUpRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := *req
	return &out, nil
}

func (f *fakeTopUps) filter(keep func(*domain.TopUpRequest) bool) []domain.TopUpRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.TopUpRequest
	for _, req := range f.rows {
		if keep(req) {
			out = append(out, *req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeTopUps) ListByAccount(_ context.Context, accountID int64) ([]domain.TopUpRequest, error) {
	return f.filter(func(r *domain.TopUpRequest) bool { return r.AccountID == accountID }), nil
}

func (f *fakeTopUps) List(_ context.Context, limit int) ([]domain.TopUpRequest, error) {
	out := f.filter(func(*domain.TopUpRequest) bool { return true })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeTopUps) Approve(ctx context.Context, id int64, activity time.Time) (*domain.TopUpRequest, decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.rows[id]
	if !ok {
		return nil, decimal.Zero, pgx.ErrNoRows
	}
	if req.Status != domain.TopUpStatusPending {
		return nil, decimal.Zero, repository.ErrRequestNotPending
	}
	balance, err := f.accounts.Credit(ctx, req.AccountID, decimal.NewFromInt(req.Amount), activity)
	if err != nil {
		return nil, decimal.Zero, err
	}
	req.Status = domain.TopUpStatusApproved
	req.UserNotified = false
	out := *req
	return &out, balance, nil
}

func (f *fakeTopUps) ListUnnotified(_ context.Context, accountID int64) ([]domain.TopUpRequest, error) {
	return f.filter(func(r *domain.TopUpRequest) bool {
		return r.AccountID == accountID && r.Status == domain.TopUpStatusApproved && !r.UserNotified
	}), nil
}

func (f *fakeTopUps) MarkNotified(_ context.Context, ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		if req, ok := f.rows[id]; ok {
			req.UserNotified = true
		}
	}
	return nil
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, int64) bool { return false }
