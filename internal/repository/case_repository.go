package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opsdesk/case-triage/internal/domain"
)

type caseRepository struct {
	pool *pgxpool.Pool
}

// NewCaseRepository instantiates the postgres-backed repository.
func NewCaseRepository(pool *pgxpool.Pool) CaseRepository {
	return &caseRepository{pool: pool}
}

const caseColumns = `id, case_key, kind, subject_user_id, category, severity, status,
    assigned_to, title, description, detector_type, resolution, evidence, tags,
    version, created_at, updated_at`

func (r *caseRepository) CreateWithAudit(ctx context.Context, c *domain.Case, entry *domain.AuditEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const insertCase = `
        INSERT INTO cases (case_key, kind, subject_user_id, category, severity, status,
            assigned_to, title, description, detector_type, resolution, evidence, tags)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        RETURNING id, version, created_at, updated_at`
	if err := tx.QueryRow(ctx, insertCase,
		c.Key,
		c.Kind,
		c.SubjectUserID,
		c.Category,
		c.Severity,
		c.Status,
		c.AssignedTo,
		c.Title,
		c.Description,
		c.DetectorType,
		c.Resolution,
		c.Evidence,
		c.Tags,
	).Scan(&c.ID, &c.Version, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return err
	}

	entry.CaseID = c.ID
	if err := insertAuditTx(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *caseRepository) GetByID(ctx context.Context, id string) (*domain.Case, error) {
	query := fmt.Sprintf(`SELECT %s FROM cases WHERE id=$1`, caseColumns)
	var c domain.Case
	if err := scanCase(r.pool.QueryRow(ctx, query, id), &c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *caseRepository) UpdateWithAudit(ctx context.Context, c *domain.Case, entry *domain.AuditEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := updateCaseTx(ctx, tx, c, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *caseRepository) UpdateWithMessage(ctx context.Context, c *domain.Case, entry *domain.AuditEntry, msg *domain.Message) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := updateCaseTx(ctx, tx, c, entry); err != nil {
		return err
	}

	const insertMessage = `
        INSERT INTO case_messages (case_id, sender, sender_id, body, attachments)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	msg.CaseID = c.ID
	if err := tx.QueryRow(ctx, insertMessage,
		msg.CaseID,
		msg.Sender,
		msg.SenderID,
		msg.Body,
		msg.Attachments,
	).Scan(&msg.ID, &msg.CreatedAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func updateCaseTx(ctx context.Context, tx pgx.Tx, c *domain.Case, entry *domain.AuditEntry) error {
	const update = `
        UPDATE cases SET category=$1, severity=$2, status=$3, assigned_to=$4,
            resolution=$5, evidence=$6, tags=$7, version=version+1, updated_at=NOW()
        WHERE id=$8 AND version=$9
        RETURNING version, updated_at`
	if err := tx.QueryRow(ctx, update,
		c.Category,
		c.Severity,
		c.Status,
		c.AssignedTo,
		c.Resolution,
		c.Evidence,
		c.Tags,
		c.ID,
		c.Version,
	).Scan(&c.Version, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrVersionConflict
		}
		return err
	}

	if entry != nil {
		entry.CaseID = c.ID
		if err := insertAuditTx(ctx, tx, entry); err != nil {
			return err
		}
	}
	return nil
}

func (r *caseRepository) ListWithFilter(ctx context.Context, filter CaseFilter) ([]domain.Case, error) {
	base := fmt.Sprintf(`SELECT %s FROM cases`, caseColumns)
	clauses := []string{"1=1"}
	args := []any{}

	appendIn := func(column string, values []string) {
		if len(values) == 0 {
			return
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			args = append(args, v)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ",")))
	}

	appendIn("kind", asStrings(filter.Kinds))
	appendIn("status", asStrings(filter.Statuses))
	appendIn("severity", asStrings(filter.Severities))
	appendIn("category", asStrings(filter.Categories))

	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("assigned_to=$%d", len(args)))
	}
	if filter.Unassigned {
		clauses = append(clauses, "assigned_to IS NULL")
	}
	if filter.SubjectUserID != nil {
		args = append(args, *filter.SubjectUserID)
		clauses = append(clauses, fmt.Sprintf("subject_user_id=$%d", len(args)))
	}
	if filter.Tag != nil {
		args = append(args, *filter.Tag)
		clauses = append(clauses, fmt.Sprintf("$%d = ANY(tags)", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(title) LIKE %s OR LOWER(description) LIKE %s)", placeholder, placeholder))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCases(rows)
}

func (r *caseRepository) ListUnassigned(ctx context.Context, limit int) ([]domain.Case, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`
        SELECT %s FROM cases
        WHERE assigned_to IS NULL AND status NOT IN ('RESOLVED','REJECTED','FALSE_POSITIVE','CLOSED')
        ORDER BY CASE severity
            WHEN 'CRITICAL' THEN 0 WHEN 'HIGH' THEN 1 WHEN 'MEDIUM' THEN 2 ELSE 3
        END, created_at ASC
        LIMIT %d`, caseColumns, limit)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCases(rows)
}

func (r *caseRepository) ListFlagsBySubject(ctx context.Context, subjectUserID string, since time.Time) ([]domain.Case, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM cases
        WHERE kind=$1 AND subject_user_id=$2 AND created_at >= $3
        ORDER BY created_at ASC`, caseColumns)
	rows, err := r.pool.Query(ctx, query, domain.KindAntiCheatFlag, subjectUserID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCases(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner, c *domain.Case) error {
	return row.Scan(
		&c.ID,
		&c.Key,
		&c.Kind,
		&c.SubjectUserID,
		&c.Category,
		&c.Severity,
		&c.Status,
		&c.AssignedTo,
		&c.Title,
		&c.Description,
		&c.DetectorType,
		&c.Resolution,
		&c.Evidence,
		&c.Tags,
		&c.Version,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
}

func scanCases(rows pgx.Rows) ([]domain.Case, error) {
	var result []domain.Case
	for rows.Next() {
		var c domain.Case
		if err := scanCase(rows, &c); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func asStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

func insertAuditTx(ctx context.Context, tx pgx.Tx, entry *domain.AuditEntry) error {
	const insert = `
        INSERT INTO audit_entries (case_id, actor_type, actor_id, action, before_state, after_state)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, entry_id, created_at`
	return tx.QueryRow(ctx, insert,
		entry.CaseID,
		entry.ActorType,
		entry.ActorID,
		entry.Action,
		entry.BeforeState,
		entry.AfterState,
	).Scan(&entry.Seq, &entry.ID, &entry.CreatedAt)
}
