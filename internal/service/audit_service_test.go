package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/netcafe-service/internal/config"
	"github.com/spec-kit/netcafe-service/internal/events"
)

type recordingSink struct {
	mu      sync.Mutex
	enabled bool
	keys    []string
	bodies  [][]byte
}

func (s *recordingSink) Publish(topic, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, topic+"/"+key)
	s.bodies = append(s.bodies, value)
	return nil
}

func (s *recordingSink) Enabled() bool { return s.enabled }

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

func TestAuditForwardsEventsToSink(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	sink := &recordingSink{enabled: true}
	audit := NewAuditService(dispatcher, sink, zap.NewNop(), config.KafkaConfig{AuditTopic: "netcafe.audit", QueueSize: 8})
	audit.RegisterHandlers()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		audit.Run(ctx)
		close(done)
	}()

	require.NoError(t, dispatcher.Publish(context.Background(), events.Event{
		Type:      events.EventSessionStarted,
		AccountID: 7,
	}))
	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, "netcafe.audit/7", sink.keys[0])
	var decoded events.Event
	require.NoError(t, json.Unmarshal(sink.bodies[0], &decoded))
	assert.Equal(t, events.EventSessionStarted, decoded.Type)
	assert.NotEmpty(t, decoded.ID)
}

func TestAuditSkipsDisabledSink(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	sink := &recordingSink{}
	audit := NewAuditService(dispatcher, sink, zap.NewNop(), config.KafkaConfig{QueueSize: 1})
	audit.RegisterHandlers()

	require.NoError(t, dispatcher.Publish(context.Background(), events.Event{Type: events.EventTopUpCredited, AccountID: 1}))
	assert.Empty(t, audit.queue)
}

func TestAuditDropsWhenQueueIsFull(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	audit := NewAuditService(dispatcher, &recordingSink{enabled: true}, zap.NewNop(), config.KafkaConfig{QueueSize: 1})
	audit.RegisterHandlers()

	for i := 0; i < 3; i++ {
		require.NoError(t, dispatcher.Publish(context.Background(), events.Event{Type: events.EventMessageRelayed, AccountID: 1}))
	}
	assert.Len(t, audit.queue, 1)
}
