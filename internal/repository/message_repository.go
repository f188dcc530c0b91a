package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opsdesk/case-triage/internal/domain"
)

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository builds the postgres-backed repository.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

func (r *messageRepository) ListByCase(ctx context.Context, caseID string) ([]domain.Message, error) {
	const query = `
        SELECT id, case_id, sender, sender_id, body, attachments, created_at
        FROM case_messages WHERE case_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.CaseID,
			&msg.Sender,
			&msg.SenderID,
			&msg.Body,
			&msg.Attachments,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}
