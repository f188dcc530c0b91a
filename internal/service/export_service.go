package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/opsdesk/case-triage/internal/domain"
	"github.com/opsdesk/case-triage/internal/repository"
	apperrors "github.com/opsdesk/case-triage/pkg/util"
)

// ExportFormat selects the export encoding.
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportJSON ExportFormat = "json"
)

// ExportService streams the audit trail. It reads in keyset pages so the
// unbounded history is never held in memory, takes no case locks, and
// stops as soon as the request context is cancelled.
type ExportService struct {
	audit    repository.AuditRepository
	pageSize int
}

// NewExportService creates the service.
func NewExportService(audit repository.AuditRepository, pageSize int) *ExportService {
	if pageSize <= 0 {
		pageSize = 500
	}
	return &ExportService{audit: audit, pageSize: pageSize}
}

// Export writes matching audit entries to w in the requested format.
func (s *ExportService) Export(ctx context.Context, filter repository.AuditFilter, format ExportFormat, w io.Writer) error {
	switch format {
	case ExportCSV:
		return s.exportCSV(ctx, filter, w)
	case ExportJSON:
		return s.exportJSON(ctx, filter, w)
	default:
		return apperrors.NewValidationError("unsupported export format", map[string]any{"format": string(format)})
	}
}

func (s *ExportService) exportCSV(ctx context.Context, filter repository.AuditFilter, w io.Writer) error {
	writer := csv.NewWriter(w)
	header := []string{"seq", "entry_id", "case_id", "actor_type", "actor_id", "action", "before_state", "after_state", "created_at"}
	if err := writer.Write(header); err != nil {
		return apperrors.MapError(err)
	}

	err := s.forEachPage(ctx, filter, func(entries []domain.AuditEntry) error {
		for _, entry := range entries {
			if err := writer.Write(csvRecord(entry)); err != nil {
				return err
			}
		}
		writer.Flush()
		return writer.Error()
	})
	if err != nil {
		return err
	}
	writer.Flush()
	return apperrors.MapError(writer.Error())
}

func (s *ExportService) exportJSON(ctx context.Context, filter repository.AuditFilter, w io.Writer) error {
	if _, err := io.WriteString(w, "["); err != nil {
		return apperrors.MapError(err)
	}
	encoder := json.NewEncoder(w)
	first := true

	err := s.forEachPage(ctx, filter, func(entries []domain.AuditEntry) error {
		for _, entry := range entries {
			if !first {
				if _, err := io.WriteString(w, ","); err != nil {
					return err
				}
			}
			first = false
			if err := encoder.Encode(exportRecord(entry)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, "]"); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

func (s *ExportService) forEachPage(ctx context.Context, filter repository.AuditFilter, emit func([]domain.AuditEntry) error) error {
	cursor := int64(0)
	for {
		if err := ctx.Err(); err != nil {
			return apperrors.MapError(err)
		}
		entries, next, err := s.audit.ListPage(ctx, filter, cursor, s.pageSize)
		if err != nil {
			return apperrors.MapError(err)
		}
		if len(entries) == 0 {
			return nil
		}
		if err := emit(entries); err != nil {
			return apperrors.MapError(err)
		}
		cursor = next
	}
}

type auditExportRecord struct {
	Seq         int64          `json:"seq"`
	EntryID     string         `json:"entry_id"`
	CaseID      string         `json:"case_id"`
	ActorType   string         `json:"actor_type"`
	ActorID     *string        `json:"actor_id,omitempty"`
	Action      string         `json:"action"`
	BeforeState map[string]any `json:"before_state,omitempty"`
	AfterState  map[string]any `json:"after_state,omitempty"`
	CreatedAt   string         `json:"created_at"`
}

func exportRecord(entry domain.AuditEntry) auditExportRecord {
	return auditExportRecord{
		Seq:         entry.Seq,
		EntryID:     entry.ID,
		CaseID:      entry.CaseID,
		ActorType:   string(entry.ActorType),
		ActorID:     entry.ActorID,
		Action:      string(entry.Action),
		BeforeState: entry.BeforeState,
		AfterState:  entry.AfterState,
		CreatedAt:   entry.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

func csvRecord(entry domain.AuditEntry) []string {
	actorID := ""
	if entry.ActorID != nil {
		actorID = *entry.ActorID
	}
	return []string{
		strconv.FormatInt(entry.Seq, 10),
		entry.ID,
		entry.CaseID,
		string(entry.ActorType),
		actorID,
		string(entry.Action),
		jsonString(entry.BeforeState),
		jsonString(entry.AfterState),
		entry.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

func jsonString(state map[string]any) string {
	if len(state) == 0 {
		return ""
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Sprintf("%v", state)
	}
	return string(raw)
}
