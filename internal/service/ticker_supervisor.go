package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spec-kit/netcafe-service/internal/domain"
	"github.com/spec-kit/netcafe-service/internal/events"
	"github.com/spec-kit/netcafe-service/internal/realtime"
	"github.com/spec-kit/netcafe-service/internal/repository"
)

const tickTimeout = 5 * time.Second

// TickerSupervisor runs at most one billing loop per online account.
type TickerSupervisor struct {
	meter      *MeteringService
	accounts   repository.AccountRepository
	presence   Presence
	dispatcher events.Dispatcher
	logger     *zap.Logger
	interval   time.Duration

	mu     sync.Mutex
	active map[int64]*tickerHandle
	closed bool
	wg     sync.WaitGroup
}

type tickerHandle struct {
	stop chan struct{}
	once sync.Once
}

func (h *tickerHandle) signal() {
	h.once.Do(func() { close(h.stop) })
}

// TickerDependencies bundles supervisor collaborators.
type TickerDependencies struct {
	Meter       *MeteringService
	AccountRepo repository.AccountRepository
	Presence    Presence
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Interval    time.Duration
}

// NewTickerSupervisor constructs the supervisor.
func NewTickerSupervisor(deps TickerDependencies) *TickerSupervisor {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := deps.Interval
	if interval <= 0 {
		interval = time.Second
	}
	return &TickerSupervisor{
		meter:      deps.Meter,
		accounts:   deps.AccountRepo,
		presence:   deps.Presence,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		interval:   interval,
		active:     make(map[int64]*tickerHandle),
	}
}

// Start launches the loop for accountID unless one is already running.
// It reports whether a new loop was started.
func (s *TickerSupervisor) Start(accountID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if _, running := s.active[accountID]; running {
		return false
	}
	h := &tickerHandle{stop: make(chan struct{})}
	s.active[accountID] = h
	s.wg.Add(1)
	go s.run(accountID, h)
	return true
}

// Stop signals the loop for accountID. An in-flight charge completes first.
func (s *TickerSupervisor) Stop(accountID int64) bool {
	s.mu.Lock()
	h, ok := s.active[accountID]
	if ok {
		delete(s.active, accountID)
	}
	s.mu.Unlock()

	if ok {
		h.signal()
	}
	return ok
}

// Running reports whether accountID has a live loop.
func (s *TickerSupervisor) Running(accountID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[accountID]
	return ok
}

// ActiveCount returns the number of live loops.
func (s *TickerSupervisor) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Shutdown stops every loop and waits for in-flight charges.
func (s *TickerSupervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	handles := make([]*tickerHandle, 0, len(s.active))
	for id, h := range s.active {
		handles = append(handles, h)
		delete(s.active, id)
	}
	s.mu.Unlock()

	for _, h := range handles {
		h.signal()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *TickerSupervisor) run(accountID int64, h *tickerHandle) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
		}
		if !s.owns(accountID, h) {
			return
		}
		if done := s.tick(accountID, h); done {
			return
		}
	}
}

// owns reports whether h is still the registered loop for accountID.
func (s *TickerSupervisor) owns(accountID int64, h *tickerHandle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[accountID] == h
}

// release removes h only if it is still the registered loop, so a stale loop
// never unregisters its replacement.
func (s *TickerSupervisor) release(accountID int64, h *tickerHandle) {
	s.mu.Lock()
	if s.active[accountID] == h {
		delete(s.active, accountID)
	}
	s.mu.Unlock()
	h.signal()
}

func (s *TickerSupervisor) tick(accountID int64, h *tickerHandle) bool {
	ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
	defer cancel()

	status, err := s.meter.Charge(ctx, accountID)
	if err != nil {
		s.logger.Warn("charge failed, skipping tick", zap.Int64("account_id", accountID), zap.Error(err))
		return false
	}

	switch status {
	case domain.ChargeNoAccount:
		s.release(accountID, h)
		return true
	case domain.ChargeOut:
		s.presence.Emit(realtime.AccountRoom(accountID), realtime.EventTimeUpdate, realtime.TimeUpdate{
			AccountID: accountID,
			Balance:   decimal.Zero,
			Status:    domain.ChargeOut,
		})
		s.release(accountID, h)
		s.depleted(ctx, accountID)
		return true
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.release(accountID, h)
			return true
		}
		s.logger.Warn("balance refresh failed", zap.Int64("account_id", accountID), zap.Error(err))
		return false
	}
	if !account.IsOnline {
		s.release(accountID, h)
		return true
	}

	s.presence.Emit(realtime.AccountRoom(accountID), realtime.EventTimeUpdate, realtime.TimeUpdate{
		AccountID:   accountID,
		Balance:     account.Balance,
		SecondsLeft: s.meter.SecondsLeft(account.Balance),
		Status:      domain.ChargeOK,
	})
	return false
}

// depleted ends every session of an account whose balance ran out.
func (s *TickerSupervisor) depleted(ctx context.Context, accountID int64) {
	s.logger.Info("balance depleted", zap.Int64("account_id", accountID))

	s.presence.Emit(realtime.AccountRoom(accountID), realtime.EventError, realtime.ErrorPayload{
		Code:    "BALANCE_DEPLETED",
		Message: "balance depleted, please top up to continue",
	})
	s.presence.Emit(realtime.StaffRoom, realtime.EventUserStatus, realtime.UserStatus{
		AccountID: accountID,
		Online:    false,
		Reason:    reasonBalanceDepleted,
	})
	publishEvent(ctx, s.dispatcher, events.Event{
		Type:      events.EventAccountDepleted,
		AccountID: accountID,
		Payload:   events.SessionPayload{Balance: decimal.Zero, Reason: reasonBalanceDepleted},
	})
	s.presence.CloseAccount(accountID)
}
