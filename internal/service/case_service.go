package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opsdesk/case-triage/internal/classify"
	"github.com/opsdesk/case-triage/internal/domain"
	"github.com/opsdesk/case-triage/internal/events"
	"github.com/opsdesk/case-triage/internal/repository"
	"github.com/opsdesk/case-triage/internal/workflow"
	apperrors "github.com/opsdesk/case-triage/pkg/util"
)

// updateRetries bounds optimistic-concurrency retries before the caller
// gets a retryable TIMEOUT.
const updateRetries = 3

// CaseService coordinates intake, triage and workflow transitions.
type CaseService struct {
	cases      repository.CaseRepository
	messages   repository.MessageRepository
	audit      repository.AuditRepository
	dispatcher events.Dispatcher
	escalator  *classify.Escalator
	identity   IdentityResolver
	logger     *zap.Logger
	now        func() time.Time
}

// CaseDependencies bundles collaborators for the case service.
type CaseDependencies struct {
	CaseRepo    repository.CaseRepository
	MessageRepo repository.MessageRepository
	AuditRepo   repository.AuditRepository
	Dispatcher  events.Dispatcher
	Escalator   *classify.Escalator
	// Identity resolves subject display fields for case detail views.
	// Optional.
	Identity IdentityResolver
	// Logger is optional and defaults to a no-op logger.
	Logger *zap.Logger
	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

// NewCaseService constructs the service.
func NewCaseService(deps CaseDependencies) *CaseService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	escalator := deps.Escalator
	if escalator == nil {
		escalator = classify.NewEscalator(0, 0)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CaseService{
		cases:      deps.CaseRepo,
		messages:   deps.MessageRepo,
		audit:      deps.AuditRepo,
		dispatcher: deps.Dispatcher,
		escalator:  escalator,
		identity:   deps.Identity,
		logger:     logger,
		now:        now,
	}
}

// CreateCaseInput describes intake payload for any case kind.
type CreateCaseInput struct {
	Kind             domain.CaseKind
	SubjectUserID    *string
	Title            string
	Description      string
	Category         domain.Category
	DeclaredPriority domain.Severity
	DetectorType     string
	SignalStrength   float64
	Evidence         []domain.EvidenceRef
	Tags             []string
}

// Actor identifies who performs an operation.
type Actor struct {
	Type domain.SubjectType
	ID   *string
}

// SystemActor is used for detector intake and synthetic cases.
var SystemActor = Actor{Type: domain.SubjectTypeSystem}

// UserActor builds an actor for the reporting user.
func UserActor(userID string) Actor {
	return Actor{Type: domain.SubjectTypeUser, ID: &userID}
}

// StaffActor builds an actor for an admin operator.
func StaffActor(operatorID string) Actor {
	return Actor{Type: domain.SubjectTypeStaff, ID: &operatorID}
}

// CreateCase classifies and stores a new case. The case lands in OPEN:
// classification is total, so intake always completes triage tagging.
// Anti-cheat flags additionally feed the cluster escalation rule.
func (s *CaseService) CreateCase(ctx context.Context, actor Actor, input CreateCaseInput) (*domain.Case, *domain.AuditEntry, error) {
	if !domain.ValidKind(input.Kind) {
		return nil, nil, apperrors.NewValidationError("unknown case kind", map[string]any{"kind": string(input.Kind)})
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, nil, apperrors.NewValidationError("title required", nil)
	}
	if input.Category != "" && !domain.ValidCategory(input.Category) {
		return nil, nil, apperrors.NewValidationError("malformed category", map[string]any{"category": string(input.Category)})
	}
	if input.Kind != domain.KindAntiCheatFlag && input.SubjectUserID == nil {
		return nil, nil, apperrors.NewValidationError("subject_user_id required", nil)
	}

	category, severity := classify.Classify(input.Kind, classify.Payload{
		Category:         input.Category,
		DeclaredPriority: input.DeclaredPriority,
		DetectorType:     input.DetectorType,
		SignalStrength:   input.SignalStrength,
		Title:            input.Title,
		Description:      input.Description,
	})

	c := &domain.Case{
		Key:           generateCaseKey(),
		Kind:          input.Kind,
		SubjectUserID: input.SubjectUserID,
		Category:      category,
		Severity:      severity,
		Status:        domain.StatusOpen,
		Title:         strings.TrimSpace(input.Title),
		Description:   strings.TrimSpace(input.Description),
		DetectorType:  input.DetectorType,
		Evidence:      input.Evidence,
		Tags:          input.Tags,
	}

	entry := &domain.AuditEntry{
		ActorType:  actor.Type,
		ActorID:    actor.ID,
		Action:     domain.AuditCaseCreated,
		AfterState: c.Snapshot(),
	}
	if err := s.cases.CreateWithAudit(ctx, c, entry); err != nil {
		return nil, nil, apperrors.MapError(err)
	}

	s.publish(ctx, events.Event{
		Type:   events.EventCaseCreated,
		CaseID: c.ID,
		Actor:  eventActor(actor),
		Payload: events.CaseCreatedPayload{
			Kind:     c.Kind,
			Category: c.Category,
			Severity: c.Severity,
			Title:    c.Title,
		},
	})

	if c.Kind == domain.KindAntiCheatFlag && c.SubjectUserID != nil && !c.HasTag(domain.TagSynthetic) {
		// The flag is committed at this point; an escalation failure
		// must not make the caller re-submit it. The next flag for the
		// subject re-runs the cluster rule.
		if err := s.evaluateEscalation(ctx, *c.SubjectUserID); err != nil {
			s.logger.Error("cluster escalation failed after flag intake",
				zap.String("case_id", c.ID),
				zap.String("subject_user_id", *c.SubjectUserID),
				zap.Error(err))
		}
		// Escalation may have bumped this case; return the fresh state.
		refreshed, err := s.cases.GetByID(ctx, c.ID)
		if err == nil {
			c = refreshed
		}
	}
	return c, entry, nil
}

// GetCase returns the case with its thread and audit trail.
func (s *CaseService) GetCase(ctx context.Context, id string) (*domain.Case, []domain.Message, []domain.AuditEntry, error) {
	c, err := s.cases.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, nil, apperrors.NewNotFound("case", map[string]any{"case_id": id})
		}
		return nil, nil, nil, apperrors.MapError(err)
	}
	msgs, err := s.messages.ListByCase(ctx, id)
	if err != nil {
		return nil, nil, nil, apperrors.MapError(err)
	}
	trail, err := s.audit.ListByCase(ctx, id)
	if err != nil {
		return nil, nil, nil, apperrors.MapError(err)
	}
	return c, msgs, trail, nil
}

// ResolveSubject denormalizes the subject's display fields via the
// identity collaborator. Best effort: lookup failure leaves the view
// without them, never fails the request.
func (s *CaseService) ResolveSubject(ctx context.Context, c *domain.Case) *Identity {
	if s.identity == nil || c.SubjectUserID == nil {
		return nil
	}
	identity, err := s.identity.ResolveUser(ctx, *c.SubjectUserID)
	if err != nil {
		return nil
	}
	return &identity
}

// ListCases returns cases matching the filter.
func (s *CaseService) ListCases(ctx context.Context, filter repository.CaseFilter) ([]domain.Case, error) {
	cases, err := s.cases.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return cases, nil
}

// Transition applies a workflow transition. Replaying a transition whose
// target equals the current status is a no-op: the current case comes
// back with a nil audit entry and nothing is written.
func (s *CaseService) Transition(ctx context.Context, actor Actor, caseID string, req workflow.Request) (*domain.Case, *domain.AuditEntry, error) {
	var result *domain.Case
	var entry *domain.AuditEntry

	err := s.retryUpdate(ctx, caseID, func(c *domain.Case) (*domain.AuditEntry, bool, error) {
		replay, err := workflow.Validate(c, req)
		if err != nil {
			return nil, false, err
		}
		if replay {
			result = c
			entry = nil
			return nil, false, nil
		}

		before := c.Snapshot()
		workflow.Apply(c, req)
		e := &domain.AuditEntry{
			ActorType:   actor.Type,
			ActorID:     actor.ID,
			Action:      domain.AuditStatusChanged,
			BeforeState: before,
			AfterState:  c.Snapshot(),
		}
		result = c
		entry = e
		return e, true, nil
	})
	if err != nil {
		return nil, nil, err
	}

	if entry != nil {
		s.publish(ctx, events.Event{
			Type:   events.EventCaseStatusChanged,
			CaseID: result.ID,
			Actor:  eventActor(actor),
			Payload: events.CaseStatusChangedPayload{
				OldStatus: statusFromSnapshot(entry.BeforeState),
				NewStatus: result.Status,
				Reason:    req.Reason,
			},
		})
	}
	return result, entry, nil
}

// AppendMessage appends to the case thread. Closed cases are read-only.
// The first staff reply on a NEW/OPEN case implicitly advances it to
// INVESTIGATING, claiming it for the sender when unassigned.
func (s *CaseService) AppendMessage(ctx context.Context, actor Actor, caseID, body string, attachments []domain.EvidenceRef) (*domain.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, apperrors.NewValidationError("message body required", nil)
	}

	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("case", map[string]any{"case_id": caseID})
		}
		return nil, apperrors.MapError(err)
	}
	if c.Status == domain.StatusClosed {
		return nil, apperrors.NewCaseClosed(caseID)
	}

	msg := &domain.Message{
		CaseID:      c.ID,
		Sender:      actor.Type,
		SenderID:    actor.ID,
		Body:        strings.TrimSpace(body),
		Attachments: attachments,
	}

	// The message commits with the version-guarded case write, so a
	// concurrent close-out leaves the thread untouched.
	err = s.retryPersist(ctx, caseID, func(cur *domain.Case) (*domain.AuditEntry, bool, error) {
		if cur.Status == domain.StatusClosed {
			return nil, false, apperrors.NewCaseClosed(caseID)
		}
		if actor.Type == domain.SubjectTypeStaff &&
			(cur.Status == domain.StatusNew || cur.Status == domain.StatusOpen) {
			before := cur.Snapshot()
			if cur.AssignedTo == nil && actor.ID != nil {
				cur.AssignedTo = actor.ID
			}
			cur.Status = domain.StatusInvestigating
			e := &domain.AuditEntry{
				ActorType:   actor.Type,
				ActorID:     actor.ID,
				Action:      domain.AuditStatusChanged,
				BeforeState: before,
				AfterState:  cur.Snapshot(),
			}
			return e, true, nil
		}
		// Message append still advances updatedAt, without an audit entry.
		return nil, true, nil
	}, func(ctx context.Context, cur *domain.Case, entry *domain.AuditEntry) error {
		return s.cases.UpdateWithMessage(ctx, cur, entry, msg)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:   events.EventCaseMessageAdded,
		CaseID: c.ID,
		Actor:  eventActor(actor),
		Payload: events.CaseMessageAddedPayload{
			MessageID:   msg.ID,
			Sender:      msg.Sender,
			SenderID:    msg.SenderID,
			BodyPreview: stringPreview(msg.Body, 120),
		},
	})
	return msg, nil
}

// evaluateEscalation applies the cluster rule for one subject. It is
// idempotent: an existing non-terminal synthetic case for the subject
// suppresses creating another.
func (s *CaseService) evaluateEscalation(ctx context.Context, subjectUserID string) error {
	now := s.now()
	flags, err := s.cases.ListFlagsBySubject(ctx, subjectUserID, now.Add(-s.escalator.Window))
	if err != nil {
		return apperrors.MapError(err)
	}

	decision := s.escalator.Evaluate(flags, now)
	if !decision.Escalate {
		return nil
	}

	// Escalate the newest clustered flag case to critical.
	newestID := decision.ClusterCaseIDs[len(decision.ClusterCaseIDs)-1]
	err = s.retryUpdate(ctx, newestID, func(c *domain.Case) (*domain.AuditEntry, bool, error) {
		if c.Severity == domain.SeverityCritical && c.HasTag(domain.TagEscalated) {
			return nil, false, nil
		}
		before := c.Snapshot()
		c.Severity = domain.SeverityCritical
		c.AddTag(domain.TagEscalated)
		e := &domain.AuditEntry{
			ActorType:   domain.SubjectTypeSystem,
			Action:      domain.AuditEscalated,
			BeforeState: before,
			AfterState:  c.Snapshot(),
		}
		return e, true, nil
	})
	if err != nil {
		return err
	}

	clusterTag := domain.ClusterTag(subjectUserID)
	existing, err := s.cases.ListWithFilter(ctx, repository.CaseFilter{
		Kinds: []domain.CaseKind{domain.KindAntiCheatFlag},
		Tag:   &clusterTag,
	})
	if err != nil {
		return apperrors.MapError(err)
	}
	for _, c := range existing {
		if c.HasTag(domain.TagSynthetic) && !c.Status.Terminal() {
			return nil
		}
	}

	synthetic := &domain.Case{
		Key:           generateCaseKey(),
		Kind:          domain.KindAntiCheatFlag,
		SubjectUserID: &subjectUserID,
		Category:      domain.CategoryFraud,
		Severity:      domain.SeverityCritical,
		Status:        domain.StatusOpen,
		Title:         "Flag cluster for user " + subjectUserID,
		Description:   "Clustered anti-cheat flags: " + strings.Join(decision.ClusterCaseIDs, ", "),
		Tags:          []string{domain.TagSynthetic, clusterTag},
	}
	entry := &domain.AuditEntry{
		ActorType:  domain.SubjectTypeSystem,
		Action:     domain.AuditEscalated,
		AfterState: synthetic.Snapshot(),
	}
	if err := s.cases.CreateWithAudit(ctx, synthetic, entry); err != nil {
		return apperrors.MapError(err)
	}

	s.publish(ctx, events.Event{
		Type:   events.EventCaseEscalated,
		CaseID: synthetic.ID,
		Actor:  events.Actor{Type: domain.SubjectTypeSystem},
		Payload: events.CaseEscalatedPayload{
			SubjectUserID:   subjectUserID,
			ClusterCaseIDs:  decision.ClusterCaseIDs,
			SyntheticCaseID: synthetic.ID,
		},
	})
	return nil
}

// retryUpdate runs the read-mutate-write cycle, retrying on concurrent
// modification. mutate returns the audit entry to commit and whether
// the write should happen at all.
func (s *CaseService) retryUpdate(ctx context.Context, caseID string, mutate func(*domain.Case) (*domain.AuditEntry, bool, error)) error {
	return s.retryPersist(ctx, caseID, mutate, s.cases.UpdateWithAudit)
}

// retryPersist is retryUpdate with a pluggable write step, for
// mutations that persist more than the case row.
func (s *CaseService) retryPersist(ctx context.Context, caseID string, mutate func(*domain.Case) (*domain.AuditEntry, bool, error), persist func(context.Context, *domain.Case, *domain.AuditEntry) error) error {
	for attempt := 0; attempt < updateRetries; attempt++ {
		c, err := s.cases.GetByID(ctx, caseID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.NewNotFound("case", map[string]any{"case_id": caseID})
			}
			return apperrors.MapError(err)
		}
		entry, write, err := mutate(c)
		if err != nil {
			return err
		}
		if !write {
			return nil
		}
		err = persist(ctx, c, entry)
		if err == nil {
			return nil
		}
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		return apperrors.MapError(err)
	}
	return apperrors.NewTimeout(repository.ErrVersionConflict)
}

func (s *CaseService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func eventActor(actor Actor) events.Actor {
	out := events.Actor{Type: actor.Type}
	switch actor.Type {
	case domain.SubjectTypeUser:
		out.UserID = actor.ID
	case domain.SubjectTypeStaff:
		out.OperatorID = actor.ID
	}
	return out
}

func statusFromSnapshot(snap map[string]any) domain.CaseStatus {
	if snap == nil {
		return ""
	}
	if status, ok := snap["status"].(string); ok {
		return domain.CaseStatus(status)
	}
	return ""
}

func generateCaseKey() string {
	return "CASE-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// stringPreview truncates on rune boundaries so multi-byte text never
// gets split mid-character.
func stringPreview(body string, max int) string {
	runes := []rune(strings.TrimSpace(body))
	if len(runes) <= max {
		return string(runes)
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
