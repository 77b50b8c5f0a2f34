package ws

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/netcafe-service/internal/realtime"
	"github.com/spec-kit/netcafe-service/internal/realtime/realtimetest"
	apperrors "github.com/spec-kit/netcafe-service/pkg/util/errorutil"
)

type recordedCall struct {
	name    string
	target  int64
	to      *int64
	content string
	a, b    int64
	limit   int
}

type fakeSessions struct {
	calls []recordedCall
}

func (f *fakeSessions) SwitchTarget(_ context.Context, _ realtime.Conn, targetID int64) error {
	f.calls = append(f.calls, recordedCall{name: eventSwitchTarget, target: targetID})
	return nil
}

func (f *fakeSessions) SendMessage(_ context.Context, _ realtime.Conn, to *int64, content string) error {
	f.calls = append(f.calls, recordedCall{name: eventSendMessage, to: to, content: content})
	return nil
}

func (f *fakeSessions) LoadMessages(_ context.Context, _ realtime.Conn, a, b int64, limit int) error {
	f.calls = append(f.calls, recordedCall{name: eventLoadMessages, a: a, b: b, limit: limit})
	return nil
}

func TestDispatchRoutesEvents(t *testing.T) {
	sessions := &fakeSessions{}
	conn := realtimetest.NewConn()
	ctx := context.Background()

	require.NoError(t, dispatch(ctx, sessions, conn, []byte(`{"event":"switch_target","data":{"prevId":3,"newId":7}}`)))
	require.NoError(t, dispatch(ctx, sessions, conn, []byte(`{"event":"send_message","data":{"toId":7,"content":"hi"}}`)))
	require.NoError(t, dispatch(ctx, sessions, conn, []byte(`{"event":"send_message","data":{"content":"no target"}}`)))
	require.NoError(t, dispatch(ctx, sessions, conn, []byte(`{"event":"load_messages","data":{"a":1,"b":7,"limit":20}}`)))

	require.Len(t, sessions.calls, 4)
	assert.Equal(t, int64(7), sessions.calls[0].target)
	require.NotNil(t, sessions.calls[1].to)
	assert.Equal(t, int64(7), *sessions.calls[1].to)
	assert.Equal(t, "hi", sessions.calls[1].content)
	assert.Nil(t, sessions.calls[2].to)
	assert.Equal(t, recordedCall{name: eventLoadMessages, a: 1, b: 7, limit: 20}, sessions.calls[3])
}

func TestDispatchRejectsBadFrames(t *testing.T) {
	sessions := &fakeSessions{}
	conn := realtimetest.NewConn()

	for _, raw := range []string{
		`not json`,
		`{"event":"dance","data":{}}`,
		`{"event":"send_message"}`,
		`{"event":"switch_target","data":{"newId":0}}`,
	} {
		err := dispatch(context.Background(), sessions, conn, []byte(raw))
		assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidInput), raw)
	}
	assert.Empty(t, sessions.calls)
}
