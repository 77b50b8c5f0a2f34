package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spec-kit/netcafe-service/internal/domain"
	"github.com/spec-kit/netcafe-service/internal/events"
	"github.com/spec-kit/netcafe-service/internal/realtime"
	"github.com/spec-kit/netcafe-service/internal/repository"
	apperrors "github.com/spec-kit/netcafe-service/pkg/util/errorutil"
)

// TopUpService credits balances and keeps customers and staff in sync.
type TopUpService struct {
	accounts   repository.AccountRepository
	topups     repository.TopUpRepository
	chat       *ChatService
	meter      *MeteringService
	locks      *KeyedMutex[int64]
	presence   Broadcaster
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        Clock
	minAmount  int64
}

// TopUpDependencies bundles top-up collaborators. Locks must be the table the
// meter uses.
type TopUpDependencies struct {
	AccountRepo repository.AccountRepository
	TopUpRepo   repository.TopUpRepository
	Chat        *ChatService
	Meter       *MeteringService
	Locks       *KeyedMutex[int64]
	Presence    Broadcaster
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Clock       Clock
	MinAmount   int64
}

// NewTopUpService constructs the service.
func NewTopUpService(deps TopUpDependencies) *TopUpService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TopUpService{
		accounts:   deps.AccountRepo,
		topups:     deps.TopUpRepo,
		chat:       deps.Chat,
		meter:      deps.Meter,
		locks:      deps.Locks,
		presence:   deps.Presence,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		now:        clockOrNow(deps.Clock),
		minAmount:  deps.MinAmount,
	}
}

// ApprovalResult is the outcome of an approval. Notice is nil when the chat
// notification could not be recorded.
type ApprovalResult struct {
	Request *domain.TopUpRequest
	Balance decimal.Decimal
	Notice  *domain.Message
}

// Approve credits a pending request and notifies the requester.
func (s *TopUpService) Approve(ctx context.Context, staffID, requestID int64) (*ApprovalResult, error) {
	req, err := s.topups.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("topup_request", map[string]any{"request_id": requestID})
		}
		return nil, apperrors.NewStoreError(err)
	}
	if req.Status != domain.TopUpStatusPending {
		return nil, notPending(req)
	}

	unlock := s.locks.Lock(req.AccountID)
	approved, balance, err := s.topups.Approve(ctx, requestID, s.now())
	unlock()
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRequestNotPending):
			return nil, notPending(req)
		case errors.Is(err, pgx.ErrNoRows):
			return nil, apperrors.NewNotFound("topup_request", map[string]any{"request_id": requestID})
		}
		return nil, apperrors.NewStoreError(err)
	}

	result := &ApprovalResult{Request: approved, Balance: balance}
	result.Notice = s.recordNotice(ctx, approved)

	s.pushBalance(approved.AccountID, balance)
	payload := realtime.NewTopUpRequestPayload(approved)
	s.presence.Emit(realtime.StaffRoom, realtime.EventTopUpRequestUpdated, payload)
	if s.presence.Emit(realtime.AccountRoom(approved.AccountID), realtime.EventTopUpRequestUpdated, payload) > 0 {
		if err := s.topups.MarkNotified(ctx, []int64{approved.ID}); err != nil {
			s.logger.Warn("mark top-up notified", zap.Int64("request_id", approved.ID), zap.Error(err))
		} else {
			approved.UserNotified = true
		}
	}

	publishEvent(ctx, s.dispatcher, events.Event{
		Type:      events.EventTopUpApproved,
		AccountID: approved.AccountID,
		Payload: events.TopUpPayload{
			RequestID:  approved.ID,
			Amount:     approved.Amount,
			NewBalance: balance,
			StaffID:    staffID,
		},
	})
	return result, nil
}

// recordNotice stores the approval chat message from the first staff account.
// The credit is already committed, so failures here are logged only.
func (s *TopUpService) recordNotice(ctx context.Context, req *domain.TopUpRequest) *domain.Message {
	if s.chat == nil {
		return nil
	}
	staffID, err := s.accounts.FirstStaffID(ctx)
	if err != nil {
		s.logger.Warn("no staff account for top-up notice", zap.Int64("request_id", req.ID), zap.Error(err))
		return nil
	}
	content := fmt.Sprintf("Your top-up request #%d for %d has been approved.", req.ID, req.Amount)
	msg, err := s.chat.Notify(ctx, staffID, req.AccountID, content)
	if err != nil {
		s.logger.Warn("record top-up notice", zap.Int64("request_id", req.ID), zap.Error(err))
		return nil
	}
	return msg
}

// ManualTopUp credits an account directly, without a request or chat notice.
func (s *TopUpService) ManualTopUp(ctx context.Context, staffID, accountID, amount int64) (decimal.Decimal, error) {
	if amount <= 0 {
		return decimal.Zero, apperrors.NewInvalidInput("amount must be positive")
	}
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, apperrors.NewNotFound("account", map[string]any{"account_id": accountID})
		}
		return decimal.Zero, apperrors.NewStoreError(err)
	}
	if account.IsStaff() {
		return decimal.Zero, apperrors.NewInvalidInput("staff accounts carry no balance")
	}

	unlock := s.locks.Lock(accountID)
	balance, err := s.accounts.Credit(ctx, accountID, decimal.NewFromInt(amount), s.now())
	unlock()
	if err != nil {
		return decimal.Zero, apperrors.NewStoreError(err)
	}

	s.pushBalance(accountID, balance)
	publishEvent(ctx, s.dispatcher, events.Event{
		Type:      events.EventTopUpCredited,
		AccountID: accountID,
		Payload:   events.TopUpPayload{Amount: amount, NewBalance: balance, StaffID: staffID},
	})
	return balance, nil
}

// CreateRequest files a pending top-up request and alerts staff.
func (s *TopUpService) CreateRequest(ctx context.Context, accountID, amount int64) (*domain.TopUpRequest, error) {
	if amount <= 0 || amount < s.minAmount {
		return nil, apperrors.NewValidationError("amount below minimum", map[string]any{"min_amount": s.minAmount})
	}
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("account", map[string]any{"account_id": accountID})
		}
		return nil, apperrors.NewStoreError(err)
	}
	if account.IsStaff() {
		return nil, apperrors.NewForbidden("staff cannot request top-ups")
	}

	req := &domain.TopUpRequest{AccountID: accountID, Username: account.Username, Amount: amount}
	if err := s.topups.Create(ctx, req); err != nil {
		return nil, apperrors.NewStoreError(err)
	}
	s.presence.Emit(realtime.StaffRoom, realtime.EventNewTopUpRequest, realtime.NewTopUpRequestPayload(req))
	return req, nil
}

// ListForAccount returns a customer's own requests, newest first.
func (s *TopUpService) ListForAccount(ctx context.Context, accountID int64) ([]domain.TopUpRequest, error) {
	reqs, err := s.topups.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, apperrors.NewStoreError(err)
	}
	return reqs, nil
}

// List returns the most recent requests across all customers.
func (s *TopUpService) List(ctx context.Context, limit int) ([]domain.TopUpRequest, error) {
	reqs, err := s.topups.List(ctx, limit)
	if err != nil {
		return nil, apperrors.NewStoreError(err)
	}
	return reqs, nil
}

// DeliverPending pushes approvals the customer has not seen yet and marks
// them notified once at least one connection accepted them.
func (s *TopUpService) DeliverPending(ctx context.Context, accountID int64) (int, error) {
	reqs, err := s.topups.ListUnnotified(ctx, accountID)
	if err != nil {
		return 0, apperrors.NewStoreError(err)
	}
	ids := make([]int64, 0, len(reqs))
	for i := range reqs {
		if s.presence.Emit(realtime.AccountRoom(accountID), realtime.EventTopUpRequestUpdated, realtime.NewTopUpRequestPayload(&reqs[i])) > 0 {
			ids = append(ids, reqs[i].ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := s.topups.MarkNotified(ctx, ids); err != nil {
		return 0, apperrors.NewStoreError(err)
	}
	return len(ids), nil
}

func (s *TopUpService) pushBalance(accountID int64, balance decimal.Decimal) {
	s.presence.Emit(realtime.AccountRoom(accountID), realtime.EventTimeUpdate, realtime.TimeUpdate{
		AccountID:   accountID,
		Balance:     balance,
		SecondsLeft: s.meter.SecondsLeft(balance),
		Status:      domain.ChargeOK,
	})
}

func notPending(req *domain.TopUpRequest) error {
	return apperrors.NewInvalidState("top-up request is not pending", map[string]any{
		"request_id": req.ID,
		"status":     req.Status,
	})
}
