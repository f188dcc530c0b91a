package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opsdesk/case-triage/internal/domain"
)

func seedCase(t *testing.T, store *MemoryStore, c *domain.Case) *domain.Case {
	t.Helper()
	entry := &domain.AuditEntry{
		ActorType:  domain.SubjectTypeSystem,
		Action:     domain.AuditCaseCreated,
		AfterState: c.Snapshot(),
	}
	if err := store.Cases().CreateWithAudit(context.Background(), c, entry); err != nil {
		t.Fatalf("CreateWithAudit: %v", err)
	}
	return c
}

func TestMemoryCreateAssignsIdentityAndVersion(t *testing.T) {
	store := NewMemoryStore()
	c := seedCase(t, store, &domain.Case{
		Key:    "CASE-AAAA0001",
		Kind:   domain.KindDispute,
		Status: domain.StatusOpen,
		Title:  "seed",
	})

	if c.ID == "" {
		t.Fatal("expected generated ID")
	}
	if c.Version != 1 {
		t.Fatalf("Version = %d, expected 1", c.Version)
	}

	trail, err := store.Audit().ListByCase(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("ListByCase: %v", err)
	}
	if len(trail) != 1 || trail[0].Seq != 1 {
		t.Fatalf("trail = %+v, expected one entry with seq 1", trail)
	}
}

func TestMemoryVersionConflict(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	c := seedCase(t, store, &domain.Case{Kind: domain.KindDispute, Status: domain.StatusOpen, Title: "seed"})

	stale, err := store.Cases().GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	fresh, err := store.Cases().GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}

	fresh.Title = "first writer"
	if err := store.Cases().UpdateWithAudit(ctx, fresh, nil); err != nil {
		t.Fatalf("first update: %v", err)
	}

	stale.Title = "second writer"
	err = store.Cases().UpdateWithAudit(ctx, stale, nil)
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	cur, err := store.Cases().GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if cur.Title != "first writer" {
		t.Fatalf("Title = %q, lost update", cur.Title)
	}
	if cur.Version != 2 {
		t.Fatalf("Version = %d, expected 2", cur.Version)
	}
}

func TestMemoryUpdateWithMessageIsAtomic(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	c := seedCase(t, store, &domain.Case{Kind: domain.KindSupportTicket, Status: domain.StatusOpen, Title: "seed"})

	stale, err := store.Cases().GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	fresh, err := store.Cases().GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}

	if err := store.Cases().UpdateWithAudit(ctx, fresh, nil); err != nil {
		t.Fatalf("first update: %v", err)
	}

	msg := &domain.Message{Sender: domain.SubjectTypeUser, Body: "lost race"}
	err = store.Cases().UpdateWithMessage(ctx, stale, nil, msg)
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	msgs, err := store.Messages().ListByCase(ctx, c.ID)
	if err != nil {
		t.Fatalf("ListByCase: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("message stored despite rejected case write: %+v", msgs)
	}

	cur, err := store.Cases().GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	winner := &domain.Message{Sender: domain.SubjectTypeUser, Body: "kept"}
	if err := store.Cases().UpdateWithMessage(ctx, cur, nil, winner); err != nil {
		t.Fatalf("UpdateWithMessage: %v", err)
	}
	if winner.ID == "" || winner.CaseID != c.ID {
		t.Fatalf("message identity not filled: %+v", winner)
	}
	msgs, err = store.Messages().ListByCase(ctx, c.ID)
	if err != nil {
		t.Fatalf("ListByCase: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Body != "kept" {
		t.Fatalf("msgs = %+v, expected the committed message only", msgs)
	}
}

func TestMemoryNilEntryUpdateSkipsAudit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	c := seedCase(t, store, &domain.Case{Kind: domain.KindSupportTicket, Status: domain.StatusOpen, Title: "seed"})

	cur, _ := store.Cases().GetByID(ctx, c.ID)
	if err := store.Cases().UpdateWithAudit(ctx, cur, nil); err != nil {
		t.Fatalf("update: %v", err)
	}

	trail, _ := store.Audit().ListByCase(ctx, c.ID)
	if len(trail) != 1 {
		t.Fatalf("trail length = %d, expected 1", len(trail))
	}
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	c := seedCase(t, store, &domain.Case{
		Kind:   domain.KindDispute,
		Status: domain.StatusOpen,
		Title:  "seed",
		Tags:   []string{"a"},
	})

	got, _ := store.Cases().GetByID(ctx, c.ID)
	got.Title = "mutated"
	got.AddTag("b")

	again, _ := store.Cases().GetByID(ctx, c.ID)
	if again.Title != "seed" || again.HasTag("b") {
		t.Fatal("stored case leaked through returned pointer")
	}
}

func TestMemoryListUnassignedOrdering(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	low := seedCase(t, store, &domain.Case{Kind: domain.KindSupportTicket, Status: domain.StatusOpen, Severity: domain.SeverityLow, Title: "low"})
	high := seedCase(t, store, &domain.Case{Kind: domain.KindDispute, Status: domain.StatusOpen, Severity: domain.SeverityHigh, Title: "high"})
	op := "op1"
	seedCase(t, store, &domain.Case{Kind: domain.KindDispute, Status: domain.StatusInvestigating, Severity: domain.SeverityCritical, AssignedTo: &op, Title: "taken"})
	closed := seedCase(t, store, &domain.Case{Kind: domain.KindDispute, Status: domain.StatusOpen, Severity: domain.SeverityCritical, Title: "closing"})
	cur, _ := store.Cases().GetByID(ctx, closed.ID)
	cur.Status = domain.StatusClosed
	if err := store.Cases().UpdateWithAudit(ctx, cur, nil); err != nil {
		t.Fatalf("close: %v", err)
	}

	queue, err := store.Cases().ListUnassigned(ctx, 10)
	if err != nil {
		t.Fatalf("ListUnassigned: %v", err)
	}
	if len(queue) != 2 {
		t.Fatalf("queue length = %d, expected 2", len(queue))
	}
	if queue[0].ID != high.ID || queue[1].ID != low.ID {
		t.Fatalf("queue order = [%s %s], expected high before low", queue[0].Title, queue[1].Title)
	}
}

func TestMemoryListFlagsBySubject(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	subject := "u1"
	other := "u2"

	f1 := seedCase(t, store, &domain.Case{Kind: domain.KindAntiCheatFlag, Status: domain.StatusOpen, SubjectUserID: &subject, Title: "f1"})
	seedCase(t, store, &domain.Case{Kind: domain.KindAntiCheatFlag, Status: domain.StatusOpen, SubjectUserID: &other, Title: "other subject"})
	seedCase(t, store, &domain.Case{Kind: domain.KindDispute, Status: domain.StatusOpen, SubjectUserID: &subject, Title: "not a flag"})
	f2 := seedCase(t, store, &domain.Case{Kind: domain.KindAntiCheatFlag, Status: domain.StatusOpen, SubjectUserID: &subject, Title: "f2"})

	flags, err := store.Cases().ListFlagsBySubject(ctx, subject, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ListFlagsBySubject: %v", err)
	}
	if len(flags) != 2 {
		t.Fatalf("flags length = %d, expected 2", len(flags))
	}
	if flags[0].ID != f1.ID || flags[1].ID != f2.ID {
		t.Fatal("expected oldest-first ordering")
	}
}

func TestMemoryAuditListPage(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		seedCase(t, store, &domain.Case{Kind: domain.KindDispute, Status: domain.StatusOpen, Title: "seed"})
	}

	var seen []int64
	cursor := int64(0)
	for {
		page, next, err := store.Audit().ListPage(ctx, AuditFilter{}, cursor, 2)
		if err != nil {
			t.Fatalf("ListPage: %v", err)
		}
		if len(page) == 0 {
			break
		}
		if len(page) > 2 {
			t.Fatalf("page length = %d, exceeds limit", len(page))
		}
		for _, entry := range page {
			seen = append(seen, entry.Seq)
		}
		cursor = next
	}

	if len(seen) != 5 {
		t.Fatalf("saw %d entries, expected 5", len(seen))
	}
	for i, seq := range seen {
		if seq != int64(i+1) {
			t.Fatalf("seen = %v, expected contiguous ascending sequence", seen)
		}
	}
}

func TestMemoryCaseFilter(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	subject := "u1"

	seedCase(t, store, &domain.Case{Kind: domain.KindDispute, Status: domain.StatusOpen, SubjectUserID: &subject, Title: "Chargeback question", Category: domain.CategoryPayment})
	seedCase(t, store, &domain.Case{Kind: domain.KindSupportTicket, Status: domain.StatusOpen, SubjectUserID: &subject, Title: "Login broken", Category: domain.CategoryAccount})

	got, err := store.Cases().ListWithFilter(ctx, CaseFilter{Kinds: []domain.CaseKind{domain.KindDispute}})
	if err != nil {
		t.Fatalf("ListWithFilter: %v", err)
	}
	if len(got) != 1 || got[0].Kind != domain.KindDispute {
		t.Fatalf("got %+v, expected the dispute only", got)
	}

	term := "login"
	got, err = store.Cases().ListWithFilter(ctx, CaseFilter{SearchTerm: &term})
	if err != nil {
		t.Fatalf("ListWithFilter: %v", err)
	}
	if len(got) != 1 || got[0].Category != domain.CategoryAccount {
		t.Fatalf("got %+v, expected the support ticket only", got)
	}
}
