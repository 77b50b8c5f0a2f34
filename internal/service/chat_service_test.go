package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/netcafe-service/internal/domain"
	"github.com/spec-kit/netcafe-service/internal/realtime"
	"github.com/spec-kit/netcafe-service/internal/realtime/realtimetest"
	apperrors "github.com/spec-kit/netcafe-service/pkg/util/errorutil"
)

type chatFixture struct {
	clock     *fakeClock
	accounts  *fakeAccounts
	messages  *fakeMessages
	registry  *realtime.Registry
	chat      *ChatService
	staff     *domain.Account
	customer  *domain.Account
	other     *domain.Account
	staffConn *realtimetest.Conn
	custConn  *realtimetest.Conn
}

func newChatFixture(t *testing.T, limiter SendLimiter) *chatFixture {
	t.Helper()
	f := &chatFixture{clock: newFakeClock(), accounts: newFakeAccounts(), registry: realtime.NewRegistry(nil)}
	f.messages = newFakeMessages(f.clock)
	f.staff = f.accounts.add("admin", domain.RoleStaff, "0")
	f.customer = f.accounts.add("alice", domain.RoleCustomer, "100")
	f.other = f.accounts.add("bob", domain.RoleCustomer, "100")
	f.staffConn = realtimetest.NewConn()
	f.custConn = realtimetest.NewConn()
	f.registry.Join(f.staffConn, f.staff.ID, domain.RoleStaff)
	f.registry.Join(f.custConn, f.customer.ID, domain.RoleCustomer)
	f.chat = NewChatService(ChatDependencies{
		AccountRepo: f.accounts,
		MessageRepo: f.messages,
		Presence:    f.registry,
		Limiter:     limiter,
	})
	return f
}

func int64Ptr(v int64) *int64 { return &v }

func TestCustomerMessageGoesToFirstStaff(t *testing.T) {
	f := newChatFixture(t, nil)

	res, err := f.chat.Send(context.Background(), SendInput{SenderID: f.customer.ID, Content: " hello "})
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, f.staff.ID, res.Message.RecipientID)
	assert.Equal(t, "hello", res.Message.Content)

	assert.Len(t, f.custConn.Events(realtime.EventNewMessage), 1)
	assert.Len(t, f.staffConn.Events(realtime.EventNewMessage), 1)
	active, ok := f.staffConn.Last(realtime.EventUserActive)
	require.True(t, ok)
	assert.Equal(t, "alice", active.Data.(realtime.UserActive).Username)
}

func TestConcurrentIdenticalSendsStoreOneMessage(t *testing.T) {
	f := newChatFixture(t, nil)
	f.messages.readDelay = time.Millisecond
	in := SendInput{SenderID: f.customer.ID, Content: "hi"}

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		duplicates int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.chat.Send(context.Background(), in)
			if !assert.NoError(t, err) {
				return
			}
			if res.Duplicate {
				mu.Lock()
				duplicates++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, f.messages.all(), 1)
	assert.Equal(t, 49, duplicates)
	assert.Len(t, f.staffConn.Events(realtime.EventNewMessage), 1)
}

func TestDuplicateWithinWindowIsSuppressed(t *testing.T) {
	f := newChatFixture(t, nil)
	in := SendInput{SenderID: f.customer.ID, Content: "need help"}

	first, err := f.chat.Send(context.Background(), in)
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	second, err := f.chat.Send(context.Background(), in)
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Message.ID, second.Message.ID)
	assert.Len(t, f.messages.all(), 1)
	assert.Len(t, f.staffConn.Events(realtime.EventNewMessage), 1)
	assert.Len(t, f.staffConn.Events(realtime.EventUserActive), 1)
	assert.Len(t, f.custConn.Events(realtime.EventNewMessage), 2)
}

func TestDuplicateAfterWindowIsStored(t *testing.T) {
	f := newChatFixture(t, nil)
	in := SendInput{SenderID: f.customer.ID, Content: "need help"}

	_, err := f.chat.Send(context.Background(), in)
	require.NoError(t, err)
	f.clock.Advance(3 * time.Second)
	second, err := f.chat.Send(context.Background(), in)
	require.NoError(t, err)

	assert.False(t, second.Duplicate)
	assert.Len(t, f.messages.all(), 2)
}

func TestStaffWithoutTargetIsRejected(t *testing.T) {
	f := newChatFixture(t, nil)

	_, err := f.chat.Send(context.Background(), SendInput{SenderID: f.staff.ID, Content: "hi"})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidInput))
	assert.Empty(t, f.messages.all())
}

func TestStaffExplicitRecipientBeatsTarget(t *testing.T) {
	f := newChatFixture(t, nil)

	res, err := f.chat.Send(context.Background(), SendInput{
		SenderID:    f.staff.ID,
		RecipientID: int64Ptr(f.other.ID),
		StaffTarget: int64Ptr(f.customer.ID),
		Content:     "hi bob",
	})
	require.NoError(t, err)
	assert.Equal(t, f.other.ID, res.Message.RecipientID)

	res, err = f.chat.Send(context.Background(), SendInput{
		SenderID:    f.staff.ID,
		StaffTarget: int64Ptr(f.customer.ID),
		Content:     "hi alice",
	})
	require.NoError(t, err)
	assert.Equal(t, f.customer.ID, res.Message.RecipientID)
	assert.Len(t, f.custConn.Events(realtime.EventNewMessage), 1)
	assert.Empty(t, f.staffConn.Events(realtime.EventUserActive))
}

func TestCustomerCannotMessageCustomer(t *testing.T) {
	f := newChatFixture(t, nil)

	_, err := f.chat.Send(context.Background(), SendInput{
		SenderID:    f.customer.ID,
		RecipientID: int64Ptr(f.other.ID),
		Content:     "psst",
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidInput))
}

func TestEmptyContentIsRejected(t *testing.T) {
	f := newChatFixture(t, nil)

	_, err := f.chat.Send(context.Background(), SendInput{SenderID: f.customer.ID, Content: "   "})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidInput))
	assert.Empty(t, f.custConn.Frames())
}

func TestSendIsRateLimited(t *testing.T) {
	f := newChatFixture(t, denyLimiter{})

	_, err := f.chat.Send(context.Background(), SendInput{SenderID: f.customer.ID, Content: "hi"})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeRateLimited))
	assert.Empty(t, f.messages.all())
}

func TestHistoryIsScopedForCustomers(t *testing.T) {
	f := newChatFixture(t, nil)
	_, err := f.chat.Send(context.Background(), SendInput{SenderID: f.customer.ID, Content: "one"})
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	_, err = f.chat.Send(context.Background(), SendInput{SenderID: f.staff.ID, StaffTarget: int64Ptr(f.customer.ID), Content: "two"})
	require.NoError(t, err)

	msgs, err := f.chat.History(context.Background(), f.customer.ID, domain.RoleCustomer, f.customer.ID, f.staff.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, "two", msgs[1].Content)

	_, err = f.chat.History(context.Background(), f.other.ID, domain.RoleCustomer, f.customer.ID, f.staff.ID, 0)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	msgs, err = f.chat.History(context.Background(), f.staff.ID, domain.RoleStaff, f.staff.ID, f.customer.ID, 1)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestStringPreview(t *testing.T) {
	assert.Equal(t, "short", stringPreview("  short  ", 10))
	assert.Equal(t, "abcdefg...", stringPreview("abcdefghijklmnop", 10))
	assert.Equal(t, "héllo w...", stringPreview("héllo wörld!", 10))
}
