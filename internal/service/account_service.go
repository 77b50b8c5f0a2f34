package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spec-kit/netcafe-service/internal/auth"
	"github.com/spec-kit/netcafe-service/internal/domain"
	"github.com/spec-kit/netcafe-service/internal/repository"
	apperrors "github.com/spec-kit/netcafe-service/pkg/util/errorutil"
)

// ConnectionCounter reports live connections per account.
type ConnectionCounter interface {
	ConnectionCount(accountID int64) int
}

// AccountService provisions accounts and builds dashboard views.
type AccountService struct {
	accounts    repository.AccountRepository
	meter       *MeteringService
	connections ConnectionCounter
	logger      *zap.Logger
	bcryptCost  int
}

// AccountDependencies bundles account collaborators.
type AccountDependencies struct {
	AccountRepo repository.AccountRepository
	Meter       *MeteringService
	Connections ConnectionCounter
	Logger      *zap.Logger
	BcryptCost  int
}

// NewAccountService constructs the service.
func NewAccountService(deps AccountDependencies) *AccountService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{
		accounts:    deps.AccountRepo,
		meter:       deps.Meter,
		connections: deps.Connections,
		logger:      logger,
		bcryptCost:  deps.BcryptCost,
	}
}

// AccountView is an account with its derived live figures.
type AccountView struct {
	domain.Account
	SecondsLeft int64
	Connections int
}

// CreateCustomer provisions an offline customer with a zero balance.
func (s *AccountService) CreateCustomer(ctx context.Context, username, password string) (*domain.Account, error) {
	return s.create(ctx, username, password, domain.RoleCustomer)
}

// EnsureStaff creates the bootstrap staff account when none exists yet.
func (s *AccountService) EnsureStaff(ctx context.Context, username, password string) (bool, error) {
	if _, err := s.accounts.FirstStaffID(ctx); err == nil {
		return false, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return false, apperrors.NewStoreError(err)
	}
	if strings.TrimSpace(username) == "" || password == "" {
		s.logger.Warn("no staff account exists and no bootstrap credentials are configured")
		return false, nil
	}
	if _, err := s.create(ctx, username, password, domain.RoleStaff); err != nil {
		return false, err
	}
	s.logger.Info("bootstrap staff account created", zap.String("username", username))
	return true, nil
}

func (s *AccountService) create(ctx context.Context, username, password string, role domain.Role) (*domain.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperrors.NewInvalidInput("username and password are required")
	}

	if _, err := s.accounts.GetByUsername(ctx, username); err == nil {
		return nil, apperrors.NewConflict("username already taken", map[string]any{"username": username})
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewStoreError(err)
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	account := &domain.Account{
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		Balance:      decimal.Zero,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, apperrors.NewStoreError(err)
	}
	return account, nil
}

// Get returns one account with its live figures.
func (s *AccountService) Get(ctx context.Context, id int64) (*AccountView, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("account", map[string]any{"account_id": id})
		}
		return nil, apperrors.NewStoreError(err)
	}
	view := s.view(*account)
	return &view, nil
}

// ListCustomers returns every customer for the staff dashboard.
func (s *AccountService) ListCustomers(ctx context.Context) ([]AccountView, error) {
	accounts, err := s.accounts.ListCustomers(ctx)
	if err != nil {
		return nil, apperrors.NewStoreError(err)
	}
	views := make([]AccountView, 0, len(accounts))
	for _, account := range accounts {
		views = append(views, s.view(account))
	}
	return views, nil
}

// ListOnline returns customers currently marked online.
func (s *AccountService) ListOnline(ctx context.Context) ([]AccountView, error) {
	accounts, err := s.accounts.ListOnline(ctx)
	if err != nil {
		return nil, apperrors.NewStoreError(err)
	}
	views := make([]AccountView, 0, len(accounts))
	for _, account := range accounts {
		if account.IsStaff() {
			continue
		}
		views = append(views, s.view(account))
	}
	return views, nil
}

func (s *AccountService) view(account domain.Account) AccountView {
	view := AccountView{Account: account}
	if !account.IsStaff() && s.meter != nil {
		view.SecondsLeft = s.meter.SecondsLeft(account.Balance)
	}
	if s.connections != nil {
		view.Connections = s.connections.ConnectionCount(account.ID)
	}
	return view
}
