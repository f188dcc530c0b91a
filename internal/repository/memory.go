package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opsdesk/case-triage/internal/domain"
)

// MemoryStore is the in-process implementation of all three
// repositories, used when no Postgres DSN is configured and by tests.
// Mutations to one case are serialized by a per-ID lock; different
// cases proceed independently.
type MemoryStore struct {
	mu       sync.RWMutex
	cases    map[string]*domain.Case
	messages map[string][]domain.Message
	audit    []domain.AuditEntry
	auditSeq int64

	lockMu    sync.Mutex
	caseLocks map[string]*sync.Mutex
}

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cases:     make(map[string]*domain.Case),
		messages:  make(map[string][]domain.Message),
		caseLocks: make(map[string]*sync.Mutex),
	}
}

// Cases returns the CaseRepository view.
func (s *MemoryStore) Cases() CaseRepository { return &memoryCaseRepo{store: s} }

// Messages returns the MessageRepository view.
func (s *MemoryStore) Messages() MessageRepository { return &memoryMessageRepo{store: s} }

// Audit returns the AuditRepository view.
func (s *MemoryStore) Audit() AuditRepository { return &memoryAuditRepo{store: s} }

func (s *MemoryStore) lockCase(id string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.caseLocks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.caseLocks[id] = lock
	}
	return lock
}

func (s *MemoryStore) appendAudit(entry *domain.AuditEntry) {
	s.auditSeq++
	entry.Seq = s.auditSeq
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	s.audit = append(s.audit, *entry)
}

func cloneCase(c *domain.Case) *domain.Case {
	cp := *c
	cp.Evidence = append([]domain.EvidenceRef(nil), c.Evidence...)
	cp.Tags = append([]string(nil), c.Tags...)
	if c.SubjectUserID != nil {
		v := *c.SubjectUserID
		cp.SubjectUserID = &v
	}
	if c.AssignedTo != nil {
		v := *c.AssignedTo
		cp.AssignedTo = &v
	}
	return &cp
}

type memoryCaseRepo struct {
	store *MemoryStore
}

func (r *memoryCaseRepo) CreateWithAudit(ctx context.Context, c *domain.Case, entry *domain.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.Version = 1
	c.CreatedAt = now
	c.UpdatedAt = now

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.cases[c.ID] = cloneCase(c)
	entry.CaseID = c.ID
	r.store.appendAudit(entry)
	return nil
}

func (r *memoryCaseRepo) GetByID(ctx context.Context, id string) (*domain.Case, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	c, ok := r.store.cases[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneCase(c), nil
}

func (r *memoryCaseRepo) UpdateWithAudit(ctx context.Context, c *domain.Case, entry *domain.AuditEntry) error {
	return r.update(ctx, c, entry, nil)
}

func (r *memoryCaseRepo) UpdateWithMessage(ctx context.Context, c *domain.Case, entry *domain.AuditEntry, msg *domain.Message) error {
	return r.update(ctx, c, entry, msg)
}

func (r *memoryCaseRepo) update(ctx context.Context, c *domain.Case, entry *domain.AuditEntry, msg *domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lock := r.store.lockCase(c.ID)
	lock.Lock()
	defer lock.Unlock()

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	current, ok := r.store.cases[c.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != c.Version {
		return ErrVersionConflict
	}
	c.Version++
	c.UpdatedAt = time.Now()
	r.store.cases[c.ID] = cloneCase(c)
	if entry != nil {
		entry.CaseID = c.ID
		r.store.appendAudit(entry)
	}
	if msg != nil {
		msg.CaseID = c.ID
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = time.Now()
		}
		r.store.messages[msg.CaseID] = append(r.store.messages[msg.CaseID], *msg)
	}
	return nil
}

func (r *memoryCaseRepo) ListWithFilter(ctx context.Context, filter CaseFilter) ([]domain.Case, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.store.mu.RLock()
	matched := make([]domain.Case, 0)
	for _, c := range r.store.cases {
		if matchesFilter(c, filter) {
			matched = append(matched, *cloneCase(c))
		}
	}
	r.store.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})
	return paginate(matched, filter.Limit, filter.Offset), nil
}

func (r *memoryCaseRepo) ListUnassigned(ctx context.Context, limit int) ([]domain.Case, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.store.mu.RLock()
	queue := make([]domain.Case, 0)
	for _, c := range r.store.cases {
		if c.AssignedTo == nil && !c.Status.Terminal() {
			queue = append(queue, *cloneCase(c))
		}
	}
	r.store.mu.RUnlock()

	sort.Slice(queue, func(i, j int) bool {
		if queue[i].Severity.Rank() != queue[j].Severity.Rank() {
			return queue[i].Severity.Rank() > queue[j].Severity.Rank()
		}
		return queue[i].CreatedAt.Before(queue[j].CreatedAt)
	})
	if limit > 0 && len(queue) > limit {
		queue = queue[:limit]
	}
	return queue, nil
}

func (r *memoryCaseRepo) ListFlagsBySubject(ctx context.Context, subjectUserID string, since time.Time) ([]domain.Case, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.store.mu.RLock()
	flags := make([]domain.Case, 0)
	for _, c := range r.store.cases {
		if c.Kind != domain.KindAntiCheatFlag {
			continue
		}
		if c.SubjectUserID == nil || *c.SubjectUserID != subjectUserID {
			continue
		}
		if c.CreatedAt.Before(since) {
			continue
		}
		flags = append(flags, *cloneCase(c))
	}
	r.store.mu.RUnlock()

	sort.Slice(flags, func(i, j int) bool {
		return flags[i].CreatedAt.Before(flags[j].CreatedAt)
	})
	return flags, nil
}

func matchesFilter(c *domain.Case, filter CaseFilter) bool {
	if len(filter.Kinds) > 0 && !containsString(asStrings(filter.Kinds), string(c.Kind)) {
		return false
	}
	if len(filter.Statuses) > 0 && !containsString(asStrings(filter.Statuses), string(c.Status)) {
		return false
	}
	if len(filter.Severities) > 0 && !containsString(asStrings(filter.Severities), string(c.Severity)) {
		return false
	}
	if len(filter.Categories) > 0 && !containsString(asStrings(filter.Categories), string(c.Category)) {
		return false
	}
	if filter.AssignedTo != nil && (c.AssignedTo == nil || *c.AssignedTo != *filter.AssignedTo) {
		return false
	}
	if filter.Unassigned && c.AssignedTo != nil {
		return false
	}
	if filter.SubjectUserID != nil && (c.SubjectUserID == nil || *c.SubjectUserID != *filter.SubjectUserID) {
		return false
	}
	if filter.Tag != nil && !c.HasTag(*filter.Tag) {
		return false
	}
	if filter.CreatedFrom != nil && c.CreatedAt.Before(*filter.CreatedFrom) {
		return false
	}
	if filter.CreatedTo != nil && c.CreatedAt.After(*filter.CreatedTo) {
		return false
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		needle := strings.ToLower(strings.TrimSpace(*filter.SearchTerm))
		text := strings.ToLower(c.Title + " " + c.Description)
		if !strings.Contains(text, needle) {
			return false
		}
	}
	return true
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func paginate(items []domain.Case, limit, offset int) []domain.Case {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []domain.Case{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

type memoryMessageRepo struct {
	store *MemoryStore
}

func (r *memoryMessageRepo) ListByCase(ctx context.Context, caseID string) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return append([]domain.Message(nil), r.store.messages[caseID]...), nil
}

type memoryAuditRepo struct {
	store *MemoryStore
}

func (r *memoryAuditRepo) ListByCase(ctx context.Context, caseID string) ([]domain.AuditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var result []domain.AuditEntry
	for _, entry := range r.store.audit {
		if entry.CaseID == caseID {
			result = append(result, entry)
		}
	}
	return result, nil
}

func (r *memoryAuditRepo) ListPage(ctx context.Context, filter AuditFilter, afterSeq int64, limit int) ([]domain.AuditEntry, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, afterSeq, err
	}
	if limit <= 0 {
		limit = 500
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var result []domain.AuditEntry
	cursor := afterSeq
	for _, entry := range r.store.audit {
		if entry.Seq <= afterSeq {
			continue
		}
		if !matchesAuditFilter(entry, filter) {
			continue
		}
		result = append(result, entry)
		cursor = entry.Seq
		if len(result) >= limit {
			break
		}
	}
	return result, cursor, nil
}

func matchesAuditFilter(entry domain.AuditEntry, filter AuditFilter) bool {
	if filter.CaseID != nil && entry.CaseID != *filter.CaseID {
		return false
	}
	if filter.ActorID != nil && (entry.ActorID == nil || *entry.ActorID != *filter.ActorID) {
		return false
	}
	if len(filter.Actions) > 0 {
		found := false
		for _, action := range filter.Actions {
			if entry.Action == action {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.From != nil && entry.CreatedAt.Before(*filter.From) {
		return false
	}
	if filter.To != nil && entry.CreatedAt.After(*filter.To) {
		return false
	}
	return true
}
