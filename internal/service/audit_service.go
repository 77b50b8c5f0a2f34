package service

import (
	"context"
	"encoding/json"
	"strconv"

	"go.uber.org/zap"

	"github.com/spec-kit/netcafe-service/internal/config"
	"github.com/spec-kit/netcafe-service/internal/events"
)

// EventSink receives serialized audit records.
type EventSink interface {
	Publish(topic, key string, value []byte) error
	Enabled() bool
}

// AuditService logs every domain event and forwards it to the audit stream.
// Handlers only enqueue; Run does the broker I/O so a slow broker never
// blocks a charge or a relay.
type AuditService struct {
	dispatcher events.Dispatcher
	sink       EventSink
	logger     *zap.Logger
	topic      string
	queue      chan events.Event
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, sink EventSink, logger *zap.Logger, cfg config.KafkaConfig) *AuditService {
	size := cfg.QueueSize
	if size <= 0 {
		size = 256
	}
	return &AuditService{
		dispatcher: dispatcher,
		sink:       sink,
		logger:     logger,
		topic:      cfg.AuditTopic,
		queue:      make(chan events.Event, size),
	}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	for _, eventType := range events.AllTypes {
		a.dispatcher.Subscribe(eventType, a.handle)
	}
}

func (a *AuditService) handle(_ context.Context, event events.Event) error {
	a.logger.Info(string(event.Type),
		zap.String("event_id", event.ID),
		zap.Int64("account_id", event.AccountID),
		zap.Any("payload", event.Payload))

	if a.sink == nil || !a.sink.Enabled() {
		return nil
	}
	select {
	case a.queue <- event:
	default:
		a.logger.Warn("audit queue full, dropping event",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)))
	}
	return nil
}

// Run forwards queued events until ctx is done, then flushes what is left.
func (a *AuditService) Run(ctx context.Context) {
	for {
		select {
		case event := <-a.queue:
			a.forward(event)
		case <-ctx.Done():
			for {
				select {
				case event := <-a.queue:
					a.forward(event)
				default:
					return
				}
			}
		}
	}
}

func (a *AuditService) forward(event events.Event) {
	body, err := json.Marshal(event)
	if err != nil {
		a.logger.Error("encode audit event", zap.String("event_id", event.ID), zap.Error(err))
		return
	}
	if err := a.sink.Publish(a.topic, strconv.FormatInt(event.AccountID, 10), body); err != nil {
		a.logger.Warn("publish audit event",
			zap.String("event_id", event.ID),
			zap.String("topic", a.topic),
			zap.Error(err))
	}
}
