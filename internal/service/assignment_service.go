package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/opsdesk/case-triage/internal/domain"
	"github.com/opsdesk/case-triage/internal/events"
	"github.com/opsdesk/case-triage/internal/repository"
	apperrors "github.com/opsdesk/case-triage/pkg/util"
)

// bulkAssignConcurrency bounds parallel items in a bulk operation.
const bulkAssignConcurrency = 8

// AssignmentService routes cases to admin operators.
type AssignmentService struct {
	cases      repository.CaseRepository
	dispatcher events.Dispatcher
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	CaseRepo   repository.CaseRepository
	Dispatcher events.Dispatcher
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	return &AssignmentService{
		cases:      deps.CaseRepo,
		dispatcher: deps.Dispatcher,
	}
}

// AssignInput describes one assignment request.
type AssignInput struct {
	CaseID     string
	OperatorID string
	// Reassign must be explicit to move an already-assigned case.
	Reassign bool
	bulk     bool
}

// Assign binds a case to an operator, advancing OPEN to INVESTIGATING
// as a side effect. Assigning to the current assignee is a no-op.
func (s *AssignmentService) Assign(ctx context.Context, actor Actor, input AssignInput) (*domain.Case, *domain.AuditEntry, error) {
	if input.OperatorID == "" {
		return nil, nil, apperrors.NewValidationError("operator_id required", nil)
	}

	for attempt := 0; attempt < updateRetries; attempt++ {
		c, err := s.cases.GetByID(ctx, input.CaseID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, nil, apperrors.NewNotFound("case", map[string]any{"case_id": input.CaseID})
			}
			return nil, nil, apperrors.MapError(err)
		}
		if c.Status == domain.StatusClosed {
			return nil, nil, apperrors.NewCaseClosed(c.ID)
		}
		if c.AssignedTo != nil {
			if *c.AssignedTo == input.OperatorID {
				return c, nil, nil
			}
			if !input.Reassign {
				return nil, nil, apperrors.NewAlreadyAssigned(c.ID, *c.AssignedTo)
			}
		}

		before := c.Snapshot()
		operatorID := input.OperatorID
		c.AssignedTo = &operatorID
		if c.Status == domain.StatusNew || c.Status == domain.StatusOpen {
			c.Status = domain.StatusInvestigating
		}
		entry := &domain.AuditEntry{
			ActorType:   actor.Type,
			ActorID:     actor.ID,
			Action:      domain.AuditAssigned,
			BeforeState: before,
			AfterState:  c.Snapshot(),
		}
		if input.bulk {
			entry.AfterState["bulk"] = true
		}

		err = s.cases.UpdateWithAudit(ctx, c, entry)
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, nil, apperrors.MapError(err)
		}

		s.publish(ctx, events.Event{
			Type:   events.EventCaseAssigned,
			CaseID: c.ID,
			Actor:  eventActor(actor),
			Payload: events.CaseAssignedPayload{
				AssignedTo: c.AssignedTo,
				Reassigned: input.Reassign,
				Bulk:       input.bulk,
			},
		})
		return c, entry, nil
	}
	return nil, nil, apperrors.NewTimeout(repository.ErrVersionConflict)
}

// BulkResult reports one item outcome of a bulk operation.
type BulkResult struct {
	CaseID    string
	OK        bool
	ErrorCode string
	Error     string
	Case      *domain.Case
}

// BulkAssign applies Assign to each case independently. A failing item
// never aborts its siblings; results come back in input order.
func (s *AssignmentService) BulkAssign(ctx context.Context, actor Actor, caseIDs []string, operatorID string, reassign bool) []BulkResult {
	results := make([]BulkResult, len(caseIDs))

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(bulkAssignConcurrency)

	for i, caseID := range caseIDs {
		i, caseID := i, caseID
		group.Go(func() error {
			c, _, err := s.Assign(groupCtx, actor, AssignInput{
				CaseID:     caseID,
				OperatorID: operatorID,
				Reassign:   reassign,
				bulk:       true,
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				domainErr := apperrors.ToDomainError(err)
				results[i] = BulkResult{CaseID: caseID, ErrorCode: domainErr.Code, Error: domainErr.Message}
				return nil
			}
			results[i] = BulkResult{CaseID: caseID, OK: true, Case: c}
			return nil
		})
	}
	_ = group.Wait()
	return results
}

// Queue returns unassigned cases ordered by (severity desc, createdAt
// asc), recomputed on every read.
func (s *AssignmentService) Queue(ctx context.Context, limit int) ([]domain.Case, error) {
	queue, err := s.cases.ListUnassigned(ctx, limit)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return queue, nil
}

func (s *AssignmentService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
