package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/netcafe-service/internal/domain"
	"github.com/spec-kit/netcafe-service/internal/events"
	"github.com/spec-kit/netcafe-service/internal/realtime"
	"github.com/spec-kit/netcafe-service/internal/repository"
	apperrors "github.com/spec-kit/netcafe-service/pkg/util/errorutil"
)

const (
	defaultDedupWindow   = 2 * time.Second
	defaultPreviewLength = 80
	defaultHistoryLimit  = 100
)

// SendLimiter throttles message sends per account.
type SendLimiter interface {
	Allow(ctx context.Context, accountID int64) bool
}

// ChatService persists and fans out chat messages between customers and staff.
type ChatService struct {
	accounts      repository.AccountRepository
	messages      repository.MessageRepository
	presence      Broadcaster
	limiter       SendLimiter
	dispatcher    events.Dispatcher
	logger        *zap.Logger
	dedup         *KeyedMutex[string]
	dedupWindow   time.Duration
	previewLength int
	historyLimit  int
}

// ChatDependencies bundles relay collaborators.
type ChatDependencies struct {
	AccountRepo   repository.AccountRepository
	MessageRepo   repository.MessageRepository
	Presence      Broadcaster
	Limiter       SendLimiter
	Dispatcher    events.Dispatcher
	Logger        *zap.Logger
	DedupWindow   time.Duration
	PreviewLength int
	HistoryLimit  int
}

// NewChatService constructs the relay.
func NewChatService(deps ChatDependencies) *ChatService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	window := deps.DedupWindow
	if window <= 0 {
		window = defaultDedupWindow
	}
	preview := deps.PreviewLength
	if preview <= 0 {
		preview = defaultPreviewLength
	}
	history := deps.HistoryLimit
	if history <= 0 {
		history = defaultHistoryLimit
	}
	return &ChatService{
		accounts:      deps.AccountRepo,
		messages:      deps.MessageRepo,
		presence:      deps.Presence,
		limiter:       deps.Limiter,
		dispatcher:    deps.Dispatcher,
		logger:        logger,
		dedup:         NewKeyedMutex[string](),
		dedupWindow:   window,
		previewLength: preview,
		historyLimit:  history,
	}
}

// SendInput describes one inbound send_message.
type SendInput struct {
	SenderID int64
	// RecipientID is the explicit target, if the client named one.
	RecipientID *int64
	// StaffTarget is the customer the sending staff connection is viewing.
	StaffTarget *int64
	Content     string
}

// SendResult is the stored message; Duplicate marks a suppressed resend.
type SendResult struct {
	Message   *domain.Message
	Duplicate bool
}

// Send validates, de-duplicates, persists and fans out a message.
func (s *ChatService) Send(ctx context.Context, in SendInput) (*SendResult, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, apperrors.NewInvalidInput("message content is required")
	}

	sender, err := s.loadAccount(ctx, in.SenderID)
	if err != nil {
		return nil, err
	}
	if s.limiter != nil && !s.limiter.Allow(ctx, sender.ID) {
		return nil, apperrors.NewRateLimited("too many messages, slow down")
	}

	recipientID, err := s.resolveRecipient(ctx, sender, in)
	if err != nil {
		return nil, err
	}
	if recipientID == sender.ID {
		return nil, apperrors.NewInvalidInput("cannot send a message to yourself")
	}
	recipient, err := s.loadAccount(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	if !sender.IsStaff() && !recipient.IsStaff() {
		return nil, apperrors.NewInvalidInput("customers can only message staff")
	}

	msg, duplicate, err := s.store(ctx, sender.ID, recipient.ID, content)
	if err != nil {
		return nil, err
	}

	s.fanOut(sender, msg, duplicate)
	publishEvent(ctx, s.dispatcher, events.Event{
		Type:      events.EventMessageRelayed,
		AccountID: sender.ID,
		Payload: events.MessageRelayedPayload{
			MessageID:   msg.ID,
			RecipientID: msg.RecipientID,
			Duplicate:   duplicate,
			BodyPreview: stringPreview(msg.Content, s.previewLength),
		},
	})
	return &SendResult{Message: msg, Duplicate: duplicate}, nil
}

// Notify stores a message from staffID to accountID without de-duplication
// and delivers it like any staff message.
func (s *ChatService) Notify(ctx context.Context, staffID, accountID int64, content string) (*domain.Message, error) {
	msg := &domain.Message{SenderID: staffID, RecipientID: accountID, Content: content}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, apperrors.NewStoreError(err)
	}
	s.fanOut(&domain.Account{ID: staffID, Role: domain.RoleStaff}, msg, false)
	return msg, nil
}

// History returns the conversation between a and b, oldest first. Customers
// may only read their own conversations.
func (s *ChatService) History(ctx context.Context, viewerID int64, viewerRole domain.Role, a, b int64, limit int) ([]domain.Message, error) {
	if a <= 0 || b <= 0 {
		return nil, apperrors.NewInvalidInput("both conversation participants are required")
	}
	if viewerRole != domain.RoleStaff && viewerID != a && viewerID != b {
		return nil, apperrors.NewForbidden("cannot read another account's conversation")
	}
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}
	msgs, err := s.messages.ListConversation(ctx, a, b, limit)
	if err != nil {
		return nil, apperrors.NewStoreError(err)
	}
	return msgs, nil
}

// resolveRecipient picks the recipient. Staff: explicit id, then the
// connection's target. Customers: explicit id, then the first staff account.
func (s *ChatService) resolveRecipient(ctx context.Context, sender *domain.Account, in SendInput) (int64, error) {
	if in.RecipientID != nil && *in.RecipientID > 0 {
		return *in.RecipientID, nil
	}
	if sender.IsStaff() {
		if in.StaffTarget != nil && *in.StaffTarget > 0 {
			return *in.StaffTarget, nil
		}
		return 0, apperrors.NewInvalidInput("no recipient: select a customer first")
	}
	staffID, err := s.accounts.FirstStaffID(ctx)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperrors.NewInvalidState("no staff account available", nil)
		}
		return 0, apperrors.NewStoreError(err)
	}
	return staffID, nil
}

// store inserts the message unless an identical one landed within the dedup
// window. The tuple lock makes check-then-insert atomic per (from, to, content).
func (s *ChatService) store(ctx context.Context, senderID, recipientID int64, content string) (*domain.Message, bool, error) {
	unlock := s.dedup.Lock(fmt.Sprintf("%d:%d:%s", senderID, recipientID, content))
	defer unlock()

	existing, err := s.messages.FindRecentDuplicate(ctx, senderID, recipientID, content, s.dedupWindow)
	switch {
	case err == nil:
		return existing, true, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, false, apperrors.NewStoreError(err)
	}

	msg := &domain.Message{SenderID: senderID, RecipientID: recipientID, Content: content}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, false, apperrors.NewStoreError(err)
	}
	return msg, false, nil
}

// fanOut delivers to the recipient room, the sender room, and for customer
// senders a user_active notice to staff. Duplicates only echo to the sender.
func (s *ChatService) fanOut(sender *domain.Account, msg *domain.Message, duplicate bool) {
	payload := realtime.NewMessagePayload(msg)
	if duplicate {
		s.presence.Emit(realtime.AccountRoom(sender.ID), realtime.EventNewMessage, payload)
		return
	}

	s.presence.Emit(realtime.AccountRoom(msg.RecipientID), realtime.EventNewMessage, payload)
	s.presence.Emit(realtime.AccountRoom(sender.ID), realtime.EventNewMessage, payload)
	if !sender.IsStaff() {
		s.presence.Emit(realtime.StaffRoom, realtime.EventUserActive, realtime.UserActive{
			AccountID: sender.ID,
			Username:  sender.Username,
			Preview:   stringPreview(msg.Content, s.previewLength),
			Timestamp: msg.CreatedAt,
		})
	}
}

func (s *ChatService) loadAccount(ctx context.Context, id int64) (*domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("account", map[string]any{"account_id": id})
		}
		return nil, apperrors.NewStoreError(err)
	}
	return account, nil
}
