package client

import (
	"reflect"
	"testing"

	"weekplan-api/domain"
)

func TestTaskStoreUpsertAndSnapshot(t *testing.T) {
	s := NewTaskStore()
	s.UpsertTask("2024-01-01", 0, domain.Task{ID: "a", Text: "x"})
	s.UpsertTask("2024-01-01", 0, domain.Task{ID: "b", Text: "y"})
	s.UpsertTask("2024-01-01", 0, domain.Task{ID: "a", Text: "x2"})

	want := []domain.Task{{ID: "a", Text: "x2"}, {ID: "b", Text: "y"}}
	if got := s.DayList("2024-01-01", 0); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected day list: %#v", got)
	}

	// Snapshots are copies; mutating them does not touch the store.
	snap := s.Week("2024-01-01")
	snap[0][0].Text = "mutated"
	if got := s.DayList("2024-01-01", 0); got[0].Text != "x2" {
		t.Fatalf("snapshot mutation leaked into store: %#v", got)
	}
}

func TestTaskStoreRemoveIsNoOpWhenAbsent(t *testing.T) {
	s := NewTaskStore()
	s.UpsertTask("2024-01-01", 2, domain.Task{ID: "a", Text: "x"})

	if s.RemoveTask("2024-01-01", 2, "nope") {
		t.Fatalf("expected removal of unknown id to be a no-op")
	}
	if s.RemoveTask("2099-01-01", 0, "a") {
		t.Fatalf("expected removal from unknown week to be a no-op")
	}
	if !s.RemoveTask("2024-01-01", 2, "a") {
		t.Fatalf("expected removal of present id to succeed")
	}
}

func TestRemoveTaskIfMatchesGuardsConcurrentEdits(t *testing.T) {
	s := NewTaskStore()
	sent := domain.Task{ID: "a", Text: "original"}
	s.UpsertTask("2024-01-01", 0, sent)

	// The user edited the task while the create was in flight; rollback
	// must not destroy the edit.
	s.UpsertTask("2024-01-01", 0, domain.Task{ID: "a", Text: "edited"})
	if s.RemoveTaskIfMatches("2024-01-01", 0, sent) {
		t.Fatalf("expected rollback to be skipped after concurrent edit")
	}
	if got := s.DayList("2024-01-01", 0); len(got) != 1 || got[0].Text != "edited" {
		t.Fatalf("concurrent edit was lost: %#v", got)
	}

	// With matching id and text the entry is removed.
	s.UpsertTask("2024-01-01", 0, domain.Task{ID: "a", Text: "original"})
	if !s.RemoveTaskIfMatches("2024-01-01", 0, sent) {
		t.Fatalf("expected matching entry to be rolled back")
	}
}

func TestTaskStoreClear(t *testing.T) {
	s := NewTaskStore()
	s.UpsertTask("2024-01-01", 0, domain.Task{ID: "a", Text: "x"})
	s.UpsertTask("2024-01-01", 5, domain.Task{ID: "b", Text: "y"})
	s.Clear("2024-01-01")
	if got := s.Week("2024-01-01"); len(got) != 0 {
		t.Fatalf("expected empty week after clear, got %#v", got)
	}
}

func TestReplaceWeekCopiesInput(t *testing.T) {
	s := NewTaskStore()
	days := domain.Days{0: {{ID: "a", Text: "x"}}}
	s.ReplaceWeek("2024-01-01", days)
	days[0][0].Text = "mutated"
	if got := s.DayList("2024-01-01", 0); got[0].Text != "x" {
		t.Fatalf("store shares caller's slice: %#v", got)
	}
}
