package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/netcafe-service/internal/domain"
	apperrors "github.com/spec-kit/netcafe-service/pkg/util/errorutil"
)

func newTestMeter(accounts *fakeAccounts, clock *fakeClock) *MeteringService {
	return NewMeteringService(MeteringDependencies{
		AccountRepo:  accounts,
		PricePerHour: 5000,
		Clock:        clock.Now,
	})
}

func onlineSince(accounts *fakeAccounts, id int64, at time.Time) {
	accounts.update(id, func(a *domain.Account) {
		a.IsOnline = true
		a.LastActivity = &at
	})
}

func TestChargeFullHourDepletesExactBalance(t *testing.T) {
	clock := newFakeClock()
	accounts := newFakeAccounts()
	acc := accounts.add("alice", domain.RoleCustomer, "5000")
	onlineSince(accounts, acc.ID, clock.Now().Add(-time.Hour))

	status, err := newTestMeter(accounts, clock).Charge(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChargeOut, status)

	stored := accounts.snapshot(acc.ID)
	assert.True(t, stored.Balance.IsZero())
	assert.False(t, stored.IsOnline)
}

func TestChargeOneSecond(t *testing.T) {
	clock := newFakeClock()
	accounts := newFakeAccounts()
	acc := accounts.add("alice", domain.RoleCustomer, "100")
	onlineSince(accounts, acc.ID, clock.Now().Add(-time.Second))

	status, err := newTestMeter(accounts, clock).Charge(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChargeOK, status)

	stored := accounts.snapshot(acc.ID)
	assert.InDelta(t, 98.6111, stored.Balance.InexactFloat64(), 0.0001)
	require.NotNil(t, stored.LastActivity)
	assert.Equal(t, clock.Now(), *stored.LastActivity)
	assert.True(t, stored.IsOnline)
}

func TestChargeTwiceAtSameInstantIsIdempotent(t *testing.T) {
	clock := newFakeClock()
	accounts := newFakeAccounts()
	acc := accounts.add("alice", domain.RoleCustomer, "100")
	onlineSince(accounts, acc.ID, clock.Now().Add(-10*time.Second))
	meter := newTestMeter(accounts, clock)

	_, err := meter.Charge(context.Background(), acc.ID)
	require.NoError(t, err)
	first := accounts.snapshot(acc.ID).Balance

	status, err := meter.Charge(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChargeOK, status)
	assert.True(t, first.Equal(accounts.snapshot(acc.ID).Balance))
}

func TestConcurrentChargesDebitElapsedTimeOnce(t *testing.T) {
	clock := newFakeClock()
	accounts := newFakeAccounts()
	acc := accounts.add("alice", domain.RoleCustomer, "100")
	onlineSince(accounts, acc.ID, clock.Now().Add(-36*time.Second))
	accounts.readDelay = time.Millisecond
	meter := newTestMeter(accounts, clock)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, err := meter.Charge(context.Background(), acc.ID)
			assert.NoError(t, err)
			assert.Equal(t, domain.ChargeOK, status)
		}()
	}
	wg.Wait()

	stored := accounts.snapshot(acc.ID)
	assert.True(t, stored.Balance.Equal(decimal.NewFromInt(50)), stored.Balance.String())
	assert.Equal(t, 1, accounts.chargeCount())
}

func TestChargeAndCreditDoNotLoseEitherUpdate(t *testing.T) {
	clock := newFakeClock()
	accounts := newFakeAccounts()
	acc := accounts.add("alice", domain.RoleCustomer, "100")
	onlineSince(accounts, acc.ID, clock.Now().Add(-36*time.Second))
	accounts.readDelay = 5 * time.Millisecond
	locks := NewKeyedMutex[int64]()
	meter := NewMeteringService(MeteringDependencies{
		AccountRepo:  accounts,
		Locks:        locks,
		PricePerHour: 5000,
		Clock:        clock.Now,
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := meter.Charge(context.Background(), acc.ID)
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		unlock := locks.Lock(acc.ID)
		defer unlock()
		_, err := accounts.Credit(context.Background(), acc.ID, decimal.NewFromInt(1000), clock.Now())
		assert.NoError(t, err)
	}()
	wg.Wait()

	// Charge first leaves 1050. Credit first resets the epoch, so the charge is free: 1100.
	stored := accounts.snapshot(acc.ID)
	assert.True(t, stored.Balance.Equal(decimal.NewFromInt(1050)) || stored.Balance.Equal(decimal.NewFromInt(1100)), stored.Balance.String())
}

func TestChargeOfflineAccountIsNoop(t *testing.T) {
	clock := newFakeClock()
	accounts := newFakeAccounts()
	acc := accounts.add("alice", domain.RoleCustomer, "100")
	since := clock.Now().Add(-time.Minute)
	accounts.update(acc.ID, func(a *domain.Account) { a.LastActivity = &since })

	status, err := newTestMeter(accounts, clock).Charge(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChargeOK, status)
	assert.Equal(t, 0, accounts.chargeCount())
	assert.Equal(t, since, *accounts.snapshot(acc.ID).LastActivity)
}

func TestChargeWithoutEpochEstablishesIt(t *testing.T) {
	clock := newFakeClock()
	accounts := newFakeAccounts()
	acc := accounts.add("alice", domain.RoleCustomer, "100")
	accounts.update(acc.ID, func(a *domain.Account) { a.IsOnline = true })

	status, err := newTestMeter(accounts, clock).Charge(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChargeOK, status)

	stored := accounts.snapshot(acc.ID)
	assert.True(t, stored.Balance.Equal(decimal.NewFromInt(100)))
	require.NotNil(t, stored.LastActivity)
	assert.Equal(t, clock.Now(), *stored.LastActivity)
}

func TestChargeUnknownAccount(t *testing.T) {
	status, err := newTestMeter(newFakeAccounts(), newFakeClock()).Charge(context.Background(), 99)
	require.NoError(t, err)
	assert.Equal(t, domain.ChargeNoAccount, status)
}

func TestChargeStoreFailure(t *testing.T) {
	accounts := newFakeAccounts()
	acc := accounts.add("alice", domain.RoleCustomer, "100")
	accounts.failNextGets(1, errors.New("connection reset"))

	_, err := newTestMeter(accounts, newFakeClock()).Charge(context.Background(), acc.ID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeStoreError))
}

func TestSettleChargesOnceAndGoesOffline(t *testing.T) {
	clock := newFakeClock()
	accounts := newFakeAccounts()
	acc := accounts.add("alice", domain.RoleCustomer, "100")
	onlineSince(accounts, acc.ID, clock.Now().Add(-36*time.Second))
	meter := newTestMeter(accounts, clock)

	status, wasOnline, err := meter.Settle(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChargeOK, status)
	assert.True(t, wasOnline)

	stored := accounts.snapshot(acc.ID)
	assert.True(t, stored.Balance.Equal(decimal.NewFromInt(50)), stored.Balance.String())
	assert.False(t, stored.IsOnline)

	_, wasOnline, err = meter.Settle(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.False(t, wasOnline)
	assert.Equal(t, 1, accounts.chargeCount())
	assert.Equal(t, []bool{false}, accounts.flips(acc.ID))
}

func TestMarkOnlineClearsEpoch(t *testing.T) {
	clock := newFakeClock()
	accounts := newFakeAccounts()
	acc := accounts.add("alice", domain.RoleCustomer, "100")
	stale := clock.Now().Add(-24 * time.Hour)
	accounts.update(acc.ID, func(a *domain.Account) { a.LastActivity = &stale })
	meter := newTestMeter(accounts, clock)

	require.NoError(t, meter.MarkOnline(context.Background(), acc.ID))
	_, err := meter.Charge(context.Background(), acc.ID)
	require.NoError(t, err)

	assert.True(t, accounts.snapshot(acc.ID).Balance.Equal(decimal.NewFromInt(100)))
}

func TestMarkOnlineRefusesDepletedAccount(t *testing.T) {
	clock := newFakeClock()
	accounts := newFakeAccounts()
	acc := accounts.add("alice", domain.RoleCustomer, "0")

	err := newTestMeter(accounts, clock).MarkOnline(context.Background(), acc.ID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState))
	assert.False(t, accounts.snapshot(acc.ID).IsOnline)
	assert.Empty(t, accounts.flips(acc.ID))
}

func TestMarkOnlineUnknownAccount(t *testing.T) {
	err := newTestMeter(newFakeAccounts(), newFakeClock()).MarkOnline(context.Background(), 42)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestSecondsLeft(t *testing.T) {
	meter := newTestMeter(newFakeAccounts(), newFakeClock())

	assert.Equal(t, int64(3600), meter.SecondsLeft(decimal.NewFromInt(5000)))
	assert.Equal(t, int64(72), meter.SecondsLeft(decimal.NewFromInt(100)))
	assert.Equal(t, int64(0), meter.SecondsLeft(decimal.Zero))
	assert.Equal(t, int64(0), meter.SecondsLeft(decimal.NewFromInt(-3)))
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	km := NewKeyedMutex[int64]()
	unlock := km.Lock(1)
	assert.Equal(t, 1, km.size())
	unlock()
	assert.Equal(t, 0, km.size())
}
