package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/spec-kit/netcafe-service/internal/domain"
	"github.com/spec-kit/netcafe-service/internal/repository"
	apperrors "github.com/spec-kit/netcafe-service/pkg/util/errorutil"
)

var nanosPerHour = decimal.NewFromInt(int64(time.Hour))

// MeteringService is the only writer that debits balance for time used.
//
// Every read-compute-write runs under the per-account lock shared with the
// top-up path, so a tick racing a final settlement or a credit never bills the
// same interval twice or loses a credit.
type MeteringService struct {
	accounts     repository.AccountRepository
	locks        *KeyedMutex[int64]
	pricePerHour decimal.Decimal
	now          Clock
}

// MeteringDependencies bundles metering collaborators.
type MeteringDependencies struct {
	AccountRepo  repository.AccountRepository
	Locks        *KeyedMutex[int64]
	PricePerHour int64
	Clock        Clock
}

// NewMeteringService constructs the service.
func NewMeteringService(deps MeteringDependencies) *MeteringService {
	locks := deps.Locks
	if locks == nil {
		locks = NewKeyedMutex[int64]()
	}
	return &MeteringService{
		accounts:     deps.AccountRepo,
		locks:        locks,
		pricePerHour: decimal.NewFromInt(deps.PricePerHour),
		now:          clockOrNow(deps.Clock),
	}
}

// Charge debits the time elapsed since the account's billing epoch.
func (s *MeteringService) Charge(ctx context.Context, accountID int64) (domain.ChargeStatus, error) {
	unlock := s.locks.Lock(accountID)
	defer unlock()

	status, _, err := s.chargeLocked(ctx, accountID)
	return status, err
}

// Settle applies the final charge of a session and takes the account offline.
// wasOnline is false when there was nothing to settle.
func (s *MeteringService) Settle(ctx context.Context, accountID int64) (status domain.ChargeStatus, wasOnline bool, err error) {
	unlock := s.locks.Lock(accountID)
	defer unlock()

	status, account, err := s.chargeLocked(ctx, accountID)
	if err != nil || status != domain.ChargeOK {
		return status, account != nil && account.IsOnline, err
	}
	if !account.IsOnline {
		return status, false, nil
	}
	if err := s.accounts.SetOnline(ctx, accountID, false); err != nil {
		return status, true, apperrors.NewStoreError(err)
	}
	return status, true, nil
}

// MarkOnline starts a fresh session: online, with no billing epoch yet. The
// balance is re-read under the account lock; a ticker may have depleted it
// since the caller last looked.
func (s *MeteringService) MarkOnline(ctx context.Context, accountID int64) error {
	unlock := s.locks.Lock(accountID)
	defer unlock()

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("account", map[string]any{"account_id": accountID})
		}
		return apperrors.NewStoreError(err)
	}
	if !account.IsStaff() && !account.Balance.IsPositive() {
		return apperrors.NewInvalidState("balance depleted, top up to continue", map[string]any{"account_id": accountID})
	}

	if err := s.accounts.SetOnline(ctx, accountID, true); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("account", map[string]any{"account_id": accountID})
		}
		return apperrors.NewStoreError(err)
	}
	return nil
}

// MarkOffline ends a session without charging for it.
func (s *MeteringService) MarkOffline(ctx context.Context, accountID int64) error {
	unlock := s.locks.Lock(accountID)
	defer unlock()

	if err := s.accounts.SetOnline(ctx, accountID, false); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewStoreError(err)
	}
	return nil
}

// chargeLocked returns the account as read before mutation; it is nil for
// ChargeNoAccount.
func (s *MeteringService) chargeLocked(ctx context.Context, accountID int64) (domain.ChargeStatus, *domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ChargeNoAccount, nil, nil
		}
		return "", nil, apperrors.NewStoreError(err)
	}
	if !account.IsOnline {
		return domain.ChargeOK, account, nil
	}

	now := s.now()
	if account.LastActivity == nil {
		if err := s.accounts.SetBalanceAndActivity(ctx, accountID, account.Balance, now); err != nil {
			return "", account, apperrors.NewStoreError(err)
		}
		return domain.ChargeOK, account, nil
	}

	elapsed := now.Sub(*account.LastActivity)
	if elapsed <= 0 {
		return domain.ChargeOK, account, nil
	}

	balance := account.Balance.Sub(s.Cost(elapsed))
	if !balance.IsPositive() {
		if err := s.accounts.Deplete(ctx, accountID); err != nil {
			return "", account, apperrors.NewStoreError(err)
		}
		return domain.ChargeOut, account, nil
	}
	if err := s.accounts.SetBalanceAndActivity(ctx, accountID, balance, now); err != nil {
		return "", account, apperrors.NewStoreError(err)
	}
	return domain.ChargeOK, account, nil
}

// Cost prices an elapsed interval. Multiplying before dividing keeps whole
// hours exact.
func (s *MeteringService) Cost(elapsed time.Duration) decimal.Decimal {
	return decimal.NewFromInt(elapsed.Nanoseconds()).Mul(s.pricePerHour).Div(nanosPerHour)
}

// RatePerSecond is price_per_hour / 3600.
func (s *MeteringService) RatePerSecond() decimal.Decimal {
	return s.pricePerHour.Div(decimal.NewFromInt(3600))
}

// SecondsLeft is floor(balance / rate_per_second), never negative.
func (s *MeteringService) SecondsLeft(balance decimal.Decimal) int64 {
	if !balance.IsPositive() || !s.pricePerHour.IsPositive() {
		return 0
	}
	return balance.Mul(decimal.NewFromInt(3600)).Div(s.pricePerHour).Floor().IntPart()
}
