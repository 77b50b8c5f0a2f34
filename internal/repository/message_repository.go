package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/netcafe-service/internal/domain"
)

// MessageRepository manages direct messages.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	// FindRecentDuplicate returns the newest identical message created within
	// window, or pgx.ErrNoRows.
	FindRecentDuplicate(ctx context.Context, senderID, recipientID int64, content string, window time.Duration) (*domain.Message, error)
	ListConversation(ctx context.Context, a, b int64, limit int) ([]domain.Message, error)
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository builds repository.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	const query = `
        INSERT INTO messages (sender_id, recipient_id, content)
        VALUES ($1,$2,$3)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		msg.SenderID,
		msg.RecipientID,
		msg.Content,
	).Scan(&msg.ID, &msg.CreatedAt)
}

func (r *messageRepository) FindRecentDuplicate(ctx context.Context, senderID, recipientID int64, content string, window time.Duration) (*domain.Message, error) {
	const query = `
        SELECT id, sender_id, recipient_id, content, created_at
        FROM messages
        WHERE sender_id=$1 AND recipient_id=$2 AND content=$3
          AND created_at >= NOW() - make_interval(secs => $4)
        ORDER BY created_at DESC
        LIMIT 1`
	var msg domain.Message
	if err := r.pool.QueryRow(ctx, query, senderID, recipientID, content, window.Seconds()).Scan(
		&msg.ID,
		&msg.SenderID,
		&msg.RecipientID,
		&msg.Content,
		&msg.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepository) ListConversation(ctx context.Context, a, b int64, limit int) ([]domain.Message, error) {
	const query = `
        SELECT id, sender_id, recipient_id, content, created_at FROM (
            SELECT id, sender_id, recipient_id, content, created_at
            FROM messages
            WHERE (sender_id=$1 AND recipient_id=$2) OR (sender_id=$2 AND recipient_id=$1)
            ORDER BY created_at DESC, id DESC
            LIMIT $3
        ) recent ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, a, b, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.SenderID,
			&msg.RecipientID,
			&msg.Content,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}
