package store

import (
	"context"
	"errors"
	"testing"

	"github.com/rogers-f/deliberate/internal/domain"
)

func TestSessionRepo_CreateAndGet(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := &SessionRepo{}

	rec := domain.SessionRecord{
		ID:           "session-001",
		Question:     "What is 2 + 2?",
		AttachedFile: "notes.txt",
		Status:       domain.SessionRunning,
		CurrentStep:  domain.StepInput,
		StateVersion: 1,
		CreatedAt:    100,
		UpdatedAt:    100,
	}

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	if err := repo.CreateTx(ctx, tx, rec); err != nil {
		t.Fatalf("CreateTx: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, err := repo.GetByID(ctx, db, "session-001")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Question != rec.Question {
		t.Errorf("Question = %q, want %q", got.Question, rec.Question)
	}
	if got.AttachedFile != "notes.txt" {
		t.Errorf("AttachedFile = %q, want %q", got.AttachedFile, "notes.txt")
	}
	if got.Status != domain.SessionRunning {
		t.Errorf("Status = %q, want %q", got.Status, domain.SessionRunning)
	}
	if got.CurrentStep != domain.StepInput {
		t.Errorf("CurrentStep = %q, want %q", got.CurrentStep, domain.StepInput)
	}
	if got.StateVersion != 1 {
		t.Errorf("StateVersion = %d, want 1", got.StateVersion)
	}
}

func TestSessionRepo_GetByID_NotFound(t *testing.T) {
	db := openTestDB(t)
	repo := &SessionRepo{}

	_, err := repo.GetByID(context.Background(), db, "nonexistent")
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionRepo_UpdateState_OptimisticLock(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := &SessionRepo{}

	rec := domain.SessionRecord{ID: "session-lock", Question: "q", Status: domain.SessionRunning, CurrentStep: domain.StepInput, StateVersion: 1}
	tx, _ := db.Begin()
	if err := repo.CreateTx(ctx, tx, rec); err != nil {
		t.Fatalf("CreateTx: %v", err)
	}
	tx.Commit()

	rec.CurrentStep = domain.StepPlanner
	tx, _ = db.Begin()
	if err := repo.UpdateStateTx(ctx, tx, rec); err != nil {
		t.Fatalf("first update: %v", err)
	}
	tx.Commit()

	// Same stale version again must conflict.
	rec.CurrentStep = domain.StepCriticPlanner
	tx, _ = db.Begin()
	err := repo.UpdateStateTx(ctx, tx, rec)
	tx.Rollback()
	if !errors.Is(err, domain.ErrOptimisticLock) {
		t.Fatalf("expected ErrOptimisticLock, got %v", err)
	}

	got, err := repo.GetByID(ctx, db, "session-lock")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.StateVersion != 2 {
		t.Errorf("StateVersion = %d, want 2", got.StateVersion)
	}
	if got.CurrentStep != domain.StepPlanner {
		t.Errorf("CurrentStep = %q, want %q", got.CurrentStep, domain.StepPlanner)
	}
}

func TestSessionRepo_List(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := &SessionRepo{}

	for i, id := range []string{"a", "b", "c"} {
		tx, _ := db.Begin()
		rec := domain.SessionRecord{ID: id, Question: "q", Status: domain.SessionRunning, CurrentStep: domain.StepInput, StateVersion: 1, UpdatedAt: int64(i)}
		if err := repo.CreateTx(ctx, tx, rec); err != nil {
			t.Fatalf("CreateTx %s: %v", id, err)
		}
		tx.Commit()
	}

	got, err := repo.List(ctx, db, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "c" || got[1].ID != "b" {
		t.Errorf("order = %s, %s; want c, b", got[0].ID, got[1].ID)
	}
}
