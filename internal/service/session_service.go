package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/netcafe-service/internal/domain"
	"github.com/spec-kit/netcafe-service/internal/events"
	"github.com/spec-kit/netcafe-service/internal/realtime"
	"github.com/spec-kit/netcafe-service/internal/repository"
	apperrors "github.com/spec-kit/netcafe-service/pkg/util/errorutil"
)

// SessionService tracks live connections and drives session start and end.
// Connect and Disconnect for one account are serialized.
type SessionService struct {
	accounts   repository.AccountRepository
	registry   *realtime.Registry
	meter      *MeteringService
	supervisor *TickerSupervisor
	chat       *ChatService
	topups     *TopUpService
	dispatcher events.Dispatcher
	logger     *zap.Logger
	sessions   *KeyedMutex[int64]
}

// SessionDependencies bundles session collaborators.
type SessionDependencies struct {
	AccountRepo repository.AccountRepository
	Registry    *realtime.Registry
	Meter       *MeteringService
	Supervisor  *TickerSupervisor
	Chat        *ChatService
	TopUps      *TopUpService
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// NewSessionService constructs the service.
func NewSessionService(deps SessionDependencies) *SessionService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		accounts:   deps.AccountRepo,
		registry:   deps.Registry,
		meter:      deps.Meter,
		supervisor: deps.Supervisor,
		chat:       deps.Chat,
		topups:     deps.TopUps,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		sessions:   NewKeyedMutex[int64](),
	}
}

// Connect registers conn for accountID. A customer's first connection opens a
// session: online with a fresh billing epoch, and a running ticker. Customers
// with no balance are refused.
func (s *SessionService) Connect(ctx context.Context, conn realtime.Conn, accountID int64, targetID *int64) error {
	unlock := s.sessions.Lock(accountID)
	defer unlock()

	account, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if account.IsStaff() {
		s.registry.Join(conn, account.ID, account.Role)
		s.registry.SendTo(conn.ID(), realtime.EventJoined, realtime.Joined{
			AccountID: account.ID,
			Role:      account.Role,
			Room:      realtime.StaffRoom,
		})
		if targetID != nil {
			if err := s.SwitchTarget(ctx, conn, *targetID); err != nil {
				s.ReportError(conn, err)
			}
		}
		return nil
	}

	if !account.Balance.IsPositive() {
		return apperrors.NewInvalidState("balance depleted, top up to continue", map[string]any{"account_id": accountID})
	}

	s.registry.Join(conn, account.ID, account.Role)
	if !s.supervisor.Running(account.ID) {
		if err := s.meter.MarkOnline(ctx, account.ID); err != nil {
			s.registry.Leave(conn)
			return err
		}
		s.supervisor.Start(account.ID)
		s.registry.Emit(realtime.StaffRoom, realtime.EventUserStatus, realtime.UserStatus{AccountID: account.ID, Online: true})
		publishEvent(ctx, s.dispatcher, events.Event{
			Type:      events.EventSessionStarted,
			AccountID: account.ID,
			Payload:   events.SessionPayload{Balance: account.Balance},
		})
		s.logger.Info("session started", zap.Int64("account_id", account.ID))
	}

	s.registry.SendTo(conn.ID(), realtime.EventJoined, realtime.Joined{
		AccountID: account.ID,
		Role:      account.Role,
		Room:      realtime.AccountRoom(account.ID),
	})
	s.registry.SendTo(conn.ID(), realtime.EventTimeUpdate, realtime.TimeUpdate{
		AccountID:   account.ID,
		Balance:     account.Balance,
		SecondsLeft: s.meter.SecondsLeft(account.Balance),
		Status:      domain.ChargeOK,
	})
	if s.topups != nil {
		if _, err := s.topups.DeliverPending(ctx, account.ID); err != nil {
			s.logger.Warn("deliver pending top-ups", zap.Int64("account_id", account.ID), zap.Error(err))
		}
	}
	return nil
}

// Disconnect unregisters conn. When it was the customer's last connection the
// session ends with exactly one final charge.
func (s *SessionService) Disconnect(ctx context.Context, conn realtime.Conn) {
	m, ok := s.registry.Lookup(conn.ID())
	if !ok {
		return
	}
	unlock := s.sessions.Lock(m.AccountID)
	defer unlock()

	left, ok := s.registry.Leave(conn)
	if !ok || left.Role == domain.RoleStaff || left.Remaining > 0 {
		return
	}
	s.endSession(ctx, left.AccountID, reasonDisconnected)
}

// Logout closes every connection of an account and ends its session.
func (s *SessionService) Logout(ctx context.Context, accountID int64) {
	s.terminate(ctx, accountID, reasonLoggedOut)
}

// CloseAll ends every live session with a final charge. It returns the number
// of accounts it closed.
func (s *SessionService) CloseAll(ctx context.Context) int {
	accounts := s.registry.ConnectedAccounts()
	for _, accountID := range accounts {
		s.terminate(ctx, accountID, reasonShutdown)
	}
	return len(accounts)
}

func (s *SessionService) terminate(ctx context.Context, accountID int64, reason string) {
	s.registry.CloseAccount(accountID)

	unlock := s.sessions.Lock(accountID)
	defer unlock()
	s.endSession(ctx, accountID, reason)
}

// endSession must run under the account's session lock.
func (s *SessionService) endSession(ctx context.Context, accountID int64, reason string) {
	s.supervisor.Stop(accountID)

	status, wasOnline, err := s.meter.Settle(ctx, accountID)
	if err != nil {
		s.logger.Warn("final charge failed", zap.Int64("account_id", accountID), zap.Error(err))
		return
	}
	if !wasOnline {
		return
	}
	if status == domain.ChargeOut {
		reason = reasonBalanceDepleted
	}

	s.registry.Emit(realtime.StaffRoom, realtime.EventUserStatus, realtime.UserStatus{
		AccountID: accountID,
		Online:    false,
		Reason:    reason,
	})
	publishEvent(ctx, s.dispatcher, events.Event{
		Type:      events.EventSessionEnded,
		AccountID: accountID,
		Payload:   events.SessionPayload{Reason: reason},
	})
	s.logger.Info("session ended", zap.Int64("account_id", accountID), zap.String("reason", reason))
}

// SwitchTarget points a staff connection at a customer.
func (s *SessionService) SwitchTarget(ctx context.Context, conn realtime.Conn, targetID int64) error {
	m, err := s.member(conn)
	if err != nil {
		return err
	}
	if m.Role != domain.RoleStaff {
		return apperrors.NewForbidden("only staff can switch target")
	}
	target, err := s.loadAccount(ctx, targetID)
	if err != nil {
		return err
	}
	if target.IsStaff() {
		return apperrors.NewInvalidInput("target must be a customer")
	}
	if err := s.registry.SetStaffTarget(conn.ID(), target.ID); err != nil {
		return apperrors.NewInvalidInput(err.Error())
	}
	s.registry.SendTo(conn.ID(), realtime.EventJoined, realtime.Joined{
		AccountID: m.AccountID,
		Role:      m.Role,
		Room:      realtime.StaffRoom,
		TargetID:  &target.ID,
	})
	return nil
}

// SendMessage relays a send_message from conn.
func (s *SessionService) SendMessage(ctx context.Context, conn realtime.Conn, to *int64, content string) error {
	m, err := s.member(conn)
	if err != nil {
		return err
	}
	in := SendInput{SenderID: m.AccountID, RecipientID: to, Content: content}
	if m.Role == domain.RoleStaff {
		if target, ok := s.registry.StaffTarget(conn.ID()); ok {
			in.StaffTarget = &target
		}
	}
	_, err = s.chat.Send(ctx, in)
	return err
}

// LoadMessages answers a load_messages from conn with its conversation history.
func (s *SessionService) LoadMessages(ctx context.Context, conn realtime.Conn, a, b int64, limit int) error {
	m, err := s.member(conn)
	if err != nil {
		return err
	}
	msgs, err := s.chat.History(ctx, m.AccountID, m.Role, a, b, limit)
	if err != nil {
		return err
	}
	payload := realtime.MessageHistory{PeerA: a, PeerB: b, Messages: make([]realtime.MessagePayload, 0, len(msgs))}
	for i := range msgs {
		payload.Messages = append(payload.Messages, realtime.NewMessagePayload(&msgs[i]))
	}
	s.registry.SendTo(conn.ID(), realtime.EventMessageHistory, payload)
	return nil
}

// SweepStale takes offline any customer marked online with no live
// connection and no ticker. It returns how many accounts it touched.
func (s *SessionService) SweepStale(ctx context.Context) (int, error) {
	online, err := s.accounts.ListOnline(ctx)
	if err != nil {
		return 0, apperrors.NewStoreError(err)
	}

	swept := 0
	for _, account := range online {
		if account.IsStaff() {
			continue
		}
		if s.sweepOne(ctx, account.ID) {
			swept++
		}
	}
	return swept, nil
}

func (s *SessionService) sweepOne(ctx context.Context, accountID int64) bool {
	unlock := s.sessions.Lock(accountID)
	defer unlock()

	if s.registry.ConnectionCount(accountID) > 0 || s.supervisor.Running(accountID) {
		return false
	}
	if err := s.meter.MarkOffline(ctx, accountID); err != nil {
		s.logger.Warn("sweep stale session", zap.Int64("account_id", accountID), zap.Error(err))
		return false
	}
	s.registry.Emit(realtime.StaffRoom, realtime.EventUserStatus, realtime.UserStatus{
		AccountID: accountID,
		Online:    false,
		Reason:    reasonStale,
	})
	return true
}

// ReportError sends err to conn only.
func (s *SessionService) ReportError(conn realtime.Conn, err error) {
	payload := realtime.ErrorPayload{Code: apperrors.CodeInternal, Message: "internal error"}
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		payload.Code = domainErr.Code
		payload.Message = domainErr.Message
	} else {
		s.logger.Error("realtime request failed", zap.Error(err))
	}
	conn.Send(realtime.Frame{Event: realtime.EventError, Data: payload})
}

func (s *SessionService) member(conn realtime.Conn) (realtime.Membership, error) {
	m, ok := s.registry.Lookup(conn.ID())
	if !ok {
		return realtime.Membership{}, apperrors.NewUnauthorized("connection is not joined")
	}
	return m, nil
}

func (s *SessionService) loadAccount(ctx context.Context, id int64) (*domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("account", map[string]any{"account_id": id})
		}
		return nil, apperrors.NewStoreError(err)
	}
	return account, nil
}
