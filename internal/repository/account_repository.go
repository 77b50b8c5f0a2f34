package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/spec-kit/netcafe-service/internal/domain"
)

// AccountRepository defines persistence access for accounts and their balance.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id int64) (*domain.Account, error)
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)
	ListCustomers(ctx context.Context) ([]domain.Account, error)
	ListOnline(ctx context.Context) ([]domain.Account, error)
	FirstStaffID(ctx context.Context) (int64, error)
	SetBalanceAndActivity(ctx context.Context, id int64, balance decimal.Decimal, activity time.Time) error
	Deplete(ctx context.Context, id int64) error
	SetOnline(ctx context.Context, id int64, online bool) error
	Credit(ctx context.Context, id int64, amount decimal.Decimal, activity time.Time) (decimal.Decimal, error)
}

type accountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository returns a Postgres-backed implementation.
func NewAccountRepository(pool *pgxpool.Pool) AccountRepository {
	return &accountRepository{pool: pool}
}

const accountColumns = `id, username, password_hash, role, balance, is_online, last_active, created_at`

func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	const query = `
        INSERT INTO users (username, password_hash, role, balance, is_online, last_active)
        VALUES ($1, $2, $3, 0, FALSE, NULL)
        RETURNING id, balance, is_online, last_active, created_at`

	return r.pool.QueryRow(ctx, query,
		account.Username,
		account.PasswordHash,
		account.Role,
	).Scan(&account.ID, &account.Balance, &account.IsOnline, &account.LastActivity, &account.CreatedAt)
}

func (r *accountRepository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM users WHERE id=$1`
	return scanAccount(r.pool.QueryRow(ctx, query, id))
}

func (r *accountRepository) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM users WHERE username=$1`
	return scanAccount(r.pool.QueryRow(ctx, query, username))
}

func (r *accountRepository) ListCustomers(ctx context.Context) ([]domain.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM users WHERE role='customer' ORDER BY id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAccounts(rows)
}

func (r *accountRepository) ListOnline(ctx context.Context) ([]domain.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM users WHERE is_online ORDER BY id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAccounts(rows)
}

func (r *accountRepository) FirstStaffID(ctx context.Context) (int64, error) {
	const query = `SELECT id FROM users WHERE role='staff' ORDER BY id LIMIT 1`
	var id int64
	if err := r.pool.QueryRow(ctx, query).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *accountRepository) SetBalanceAndActivity(ctx context.Context, id int64, balance decimal.Decimal, activity time.Time) error {
	const query = `UPDATE users SET balance=$1, last_active=$2 WHERE id=$3`
	return execOne(ctx, r.pool, query, balance, activity, id)
}

// Deplete clamps the balance to zero and clears the online flag in one statement.
func (r *accountRepository) Deplete(ctx context.Context, id int64) error {
	const query = `UPDATE users SET balance=0, is_online=FALSE WHERE id=$1`
	return execOne(ctx, r.pool, query, id)
}

// SetOnline flips the online flag. Going online clears the billing epoch so
// the first charge after a connect never bills the offline gap.
func (r *accountRepository) SetOnline(ctx context.Context, id int64, online bool) error {
	if online {
		return execOne(ctx, r.pool, `UPDATE users SET is_online=TRUE, last_active=NULL WHERE id=$1`, id)
	}
	return execOne(ctx, r.pool, `UPDATE users SET is_online=FALSE WHERE id=$1`, id)
}

func (r *accountRepository) Credit(ctx context.Context, id int64, amount decimal.Decimal, activity time.Time) (decimal.Decimal, error) {
	const query = `UPDATE users SET balance = balance + $1, last_active=$2 WHERE id=$3 RETURNING balance`
	var balance decimal.Decimal
	if err := r.pool.QueryRow(ctx, query, amount, activity, id).Scan(&balance); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var account domain.Account
	if err := row.Scan(
		&account.ID,
		&account.Username,
		&account.PasswordHash,
		&account.Role,
		&account.Balance,
		&account.IsOnline,
		&account.LastActivity,
		&account.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &account, nil
}

func scanAccounts(rows pgx.Rows) ([]domain.Account, error) {
	var result []domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *account)
	}
	return result, rows.Err()
}
