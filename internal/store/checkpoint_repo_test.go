package store

import (
	"context"
	"errors"
	"testing"

	"github.com/rogers-f/deliberate/internal/domain"
)

func limits() map[domain.Role]int {
	return map[domain.Role]int{domain.RolePlanner: 3, domain.RoleResearcher: 5, domain.RoleExpert: 5}
}

func TestCheckpointRepo_SaveAndGetLatest(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := &CheckpointRepo{}

	s := domain.NewSessionState("s-1", "What is 2 + 2?", "", limits())
	s.CurrentStep = domain.StepPlanner
	s.Invocations = 1
	cp1, err := NewCheckpoint(s, 2, 100)
	if err != nil {
		t.Fatalf("NewCheckpoint: %v", err)
	}

	s.CurrentStep = domain.StepResearcher
	s.Invocations = 3
	s.Plan = domain.Plan{ResearchSteps: []string{"find x"}, ExpertSteps: []string{"compute"}}
	s.ResearchCursor = 0
	s.ResearchState[0] = &domain.ResearchSlot{History: []domain.ChatMessage{{Role: domain.ChatUser, Content: "find x"}}}
	s.SetVerdict(domain.RolePlanner, domain.Verdict{Decision: domain.DecisionApprove})
	s.RetryCount[domain.RolePlanner] = 1
	cp2, err := NewCheckpoint(s, 6, 101)
	if err != nil {
		t.Fatalf("NewCheckpoint: %v", err)
	}

	for _, cp := range []domain.Checkpoint{cp1, cp2} {
		tx, _ := db.Begin()
		if err := repo.SaveTx(ctx, tx, cp); err != nil {
			t.Fatalf("SaveTx seq=%d: %v", cp.Seq, err)
		}
		tx.Commit()
	}

	got, err := repo.GetLatest(ctx, db, "s-1")
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if got == nil {
		t.Fatal("expected checkpoint, got nil")
	}
	if got.Seq != 6 || got.Step != domain.StepResearcher {
		t.Errorf("latest = seq %d step %s, want seq 6 step researcher", got.Seq, got.Step)
	}

	restored, err := Decode(got)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if restored.Invocations != 3 || restored.ResearchCursor != 0 {
		t.Errorf("restored invocations=%d cursor=%d", restored.Invocations, restored.ResearchCursor)
	}
	slot := restored.ResearchState[0]
	if slot == nil || len(slot.History) != 1 || slot.History[0].Content != "find x" {
		t.Errorf("research slot = %+v", slot)
	}
	if restored.Verdict(domain.RolePlanner).Decision != domain.DecisionApprove {
		t.Errorf("planner verdict = %+v", restored.Verdict(domain.RolePlanner))
	}
	if restored.RetryCount[domain.RolePlanner] != 1 || restored.RetryLimit[domain.RoleResearcher] != 5 {
		t.Errorf("retry count=%v limit=%v", restored.RetryCount, restored.RetryLimit)
	}
}

func TestCheckpointRepo_GetLatest_None(t *testing.T) {
	db := openTestDB(t)
	repo := &CheckpointRepo{}

	got, err := repo.GetLatest(context.Background(), db, "missing")
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestCheckpointRepo_ChecksumMismatch(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := &CheckpointRepo{}

	s := domain.NewSessionState("s-bad", "q", "", limits())
	cp, _ := NewCheckpoint(s, 0, 1)
	cp.StateJSON = `{"id":"s-bad","question":"tampered"}`

	tx, _ := db.Begin()
	if err := repo.SaveTx(ctx, tx, cp); err != nil {
		t.Fatalf("SaveTx: %v", err)
	}
	tx.Commit()

	_, err := repo.GetLatest(ctx, db, "s-bad")
	if !errors.Is(err, domain.ErrCheckpointCorrupt) {
		t.Errorf("expected ErrCheckpointCorrupt, got %v", err)
	}
}

func TestUsageRepo_Totals(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := &UsageRepo{}

	rows := []domain.Usage{
		{SessionID: "s-1", Agent: domain.AgentPlanner, Provider: "openai", Model: "gpt-4o", InputTokens: 100, OutputTokens: 20},
		{SessionID: "s-1", Agent: domain.AgentExpert, Provider: "openai", Model: "gpt-4o", InputTokens: 50, OutputTokens: 5},
		{SessionID: "s-2", Agent: domain.AgentPlanner, InputTokens: 7, OutputTokens: 7},
	}
	for _, u := range rows {
		if err := repo.Create(ctx, db, u, 1); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	in, out, err := repo.Totals(ctx, db, "s-1")
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if in != 150 || out != 25 {
		t.Errorf("totals = %d/%d, want 150/25", in, out)
	}

	list, err := repo.ListBySession(ctx, db, "s-1")
	if err != nil {
		t.Fatalf("ListBySession: %v", err)
	}
	if len(list) != 2 || list[1].Agent != domain.AgentExpert {
		t.Errorf("usage rows = %+v", list)
	}

	in, out, _ = repo.Totals(ctx, db, "none")
	if in != 0 || out != 0 {
		t.Errorf("empty totals = %d/%d", in, out)
	}
}
