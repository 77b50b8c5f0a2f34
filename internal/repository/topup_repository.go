package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/spec-kit/netcafe-service/internal/domain"
)

// TopUpRepository manages customer top-up requests.
type TopUpRepository interface {
	Create(ctx context.Context, req *domain.TopUpRequest) error
	GetByID(ctx context.Context, id int64) (*domain.TopUpRequest, error)
	ListByAccount(ctx context.Context, accountID int64) ([]domain.TopUpRequest, error)
	List(ctx context.Context, limit int) ([]domain.TopUpRequest, error)
	// Approve credits the requester and flips the request to approved in one
	// transaction. Returns ErrRequestNotPending if the request already left pending.
	Approve(ctx context.Context, id int64, activity time.Time) (*domain.TopUpRequest, decimal.Decimal, error)
	ListUnnotified(ctx context.Context, accountID int64) ([]domain.TopUpRequest, error)
	MarkNotified(ctx context.Context, ids []int64) error
}

type topUpRepository struct {
	pool *pgxpool.Pool
}

// NewTopUpRepository builds repository.
func NewTopUpRepository(pool *pgxpool.Pool) TopUpRepository {
	return &topUpRepository{pool: pool}
}

const topUpSelect = `
        SELECT tr.id, tr.user_id, u.username, tr.amount, tr.status, tr.user_notified, tr.created_at
        FROM topup_requests tr JOIN users u ON u.id = tr.user_id`

func (r *topUpRepository) Create(ctx context.Context, req *domain.TopUpRequest) error {
	const query = `
        INSERT INTO topup_requests (user_id, amount, status, user_notified)
        VALUES ($1, $2, 'pending', FALSE)
        RETURNING id, status, user_notified, created_at`
	return r.pool.QueryRow(ctx, query, req.AccountID, req.Amount).
		Scan(&req.ID, &req.Status, &req.UserNotified, &req.CreatedAt)
}

func (r *topUpRepository) GetByID(ctx context.Context, id int64) (*domain.TopUpRequest, error) {
	return scanTopUp(r.pool.QueryRow(ctx, topUpSelect+` WHERE tr.id=$1`, id))
}

func (r *topUpRepository) ListByAccount(ctx context.Context, accountID int64) ([]domain.TopUpRequest, error) {
	rows, err := r.pool.Query(ctx, topUpSelect+` WHERE tr.user_id=$1 ORDER BY tr.created_at DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTopUps(rows)
}

func (r *topUpRepository) List(ctx context.Context, limit int) ([]domain.TopUpRequest, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, topUpSelect+` ORDER BY tr.created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTopUps(rows)
}

func (r *topUpRepository) Approve(ctx context.Context, id int64, activity time.Time) (*domain.TopUpRequest, decimal.Decimal, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, decimal.Zero, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	req, err := scanTopUp(tx.QueryRow(ctx, topUpSelect+` WHERE tr.id=$1 FOR UPDATE OF tr`, id))
	if err != nil {
		return nil, decimal.Zero, err
	}
	if req.Status != domain.TopUpStatusPending {
		return nil, decimal.Zero, ErrRequestNotPending
	}

	var balance decimal.Decimal
	if err := tx.QueryRow(ctx,
		`UPDATE users SET balance = balance + $1, last_active=$2 WHERE id=$3 RETURNING balance`,
		decimal.NewFromInt(req.Amount), activity, req.AccountID,
	).Scan(&balance); err != nil {
		return nil, decimal.Zero, err
	}

	if err := execOne(ctx, tx,
		`UPDATE topup_requests SET status='approved', user_notified=FALSE WHERE id=$1`, id,
	); err != nil {
		return nil, decimal.Zero, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, decimal.Zero, err
	}
	req.Status = domain.TopUpStatusApproved
	req.UserNotified = false
	return req, balance, nil
}

func (r *topUpRepository) ListUnnotified(ctx context.Context, accountID int64) ([]domain.TopUpRequest, error) {
	rows, err := r.pool.Query(ctx,
		topUpSelect+` WHERE tr.user_id=$1 AND tr.status='approved' AND NOT tr.user_notified ORDER BY tr.created_at`,
		accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTopUps(rows)
}

func (r *topUpRepository) MarkNotified(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `UPDATE topup_requests SET user_notified=TRUE WHERE id = ANY($1)`, ids)
	return err
}

func scanTopUp(row pgx.Row) (*domain.TopUpRequest, error) {
	var req domain.TopUpRequest
	if err := row.Scan(
		&req.ID,
		&req.AccountID,
		&req.Username,
		&req.Amount,
		&req.Status,
		&req.UserNotified,
		&req.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &req, nil
}

func scanTopUps(rows pgx.Rows) ([]domain.TopUpRequest, error) {
	var result []domain.TopUpRequest
	for rows.Next() {
		req, err := scanTopUp(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *req)
	}
	return result, rows.Err()
}
