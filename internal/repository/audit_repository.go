package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opsdesk/case-triage/internal/domain"
)

type auditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository builds the postgres-backed repository.
func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepository{pool: pool}
}

const auditColumns = `id, entry_id, case_id, actor_type, actor_id, action, before_state, after_state, created_at`

func (r *auditRepository) ListByCase(ctx context.Context, caseID string) ([]domain.AuditEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM audit_entries WHERE case_id=$1 ORDER BY id ASC`, auditColumns)
	rows, err := r.pool.Query(ctx, query, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAuditEntries(rows)
}

func (r *auditRepository) ListPage(ctx context.Context, filter AuditFilter, afterSeq int64, limit int) ([]domain.AuditEntry, int64, error) {
	if limit <= 0 {
		limit = 500
	}
	clauses := []string{"id > $1"}
	args := []any{afterSeq}

	if filter.CaseID != nil {
		args = append(args, *filter.CaseID)
		clauses = append(clauses, fmt.Sprintf("case_id=$%d", len(args)))
	}
	if filter.ActorID != nil {
		args = append(args, *filter.ActorID)
		clauses = append(clauses, fmt.Sprintf("actor_id=$%d", len(args)))
	}
	if len(filter.Actions) > 0 {
		placeholders := make([]string, len(filter.Actions))
		for i, action := range filter.Actions {
			args = append(args, action)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("action IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	query := fmt.Sprintf(`SELECT %s FROM audit_entries WHERE %s ORDER BY id ASC LIMIT %d`,
		auditColumns, strings.Join(clauses, " AND "), limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, afterSeq, err
	}
	defer rows.Close()

	entries, err := scanAuditEntries(rows)
	if err != nil {
		return nil, afterSeq, err
	}
	cursor := afterSeq
	if len(entries) > 0 {
		cursor = entries[len(entries)-1].Seq
	}
	return entries, cursor, nil
}

func scanAuditEntries(rows pgx.Rows) ([]domain.AuditEntry, error) {
	var result []domain.AuditEntry
	for rows.Next() {
		var entry domain.AuditEntry
		if err := rows.Scan(
			&entry.Seq,
			&entry.ID,
			&entry.CaseID,
			&entry.ActorType,
			&entry.ActorID,
			&entry.Action,
			&entry.BeforeState,
			&entry.AfterState,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
