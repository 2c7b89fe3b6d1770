package automation

import (
	"context"
	"errors"
	"testing"
	"time"
)

// TestRuleStoreInterface verifies at compile time that both stores
// implement RuleStore.
func TestRuleStoreInterface(t *testing.T) {
	var _ RuleStore = (*InMemoryRuleStore)(nil)
	var _ RuleStore = (*PostgresRuleStore)(nil)
}

// TestInMemoryStoreAddGet verifies basic round-tripping.
func TestInMemoryStoreAddGet(t *testing.T) {
	store := NewInMemoryRuleStore()
	ctx := context.Background()

	rule := &Rule{
		ID:         "r1",
		Name:       "Discard weekly",
		Event:      EventNewArticle,
		MatchType:  MatchAll,
		Conditions: []Condition{{ID: "c1", Field: CondTitleContains, Value: "weekly"}},
		Actions:    []Action{{ID: "a1", Type: ActionDiscard}},
	}
	if err := store.Add(ctx, rule); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	got, err := store.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Name != rule.Name || len(got.Conditions) != 1 || len(got.Actions) != 1 {
		t.Errorf("Get() = %+v", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("Add() should stamp CreatedAt and UpdatedAt")
	}
}

// TestInMemoryStoreDuplicateAdd verifies duplicate ids are rejected.
func TestInMemoryStoreDuplicateAdd(t *testing.T) {
	store := NewInMemoryRuleStore()
	ctx := context.Background()

	if err := store.Add(ctx, &Rule{ID: "r1", Name: "a"}); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	err := store.Add(ctx, &Rule{ID: "r1", Name: "b"})
	if !errors.Is(err, ErrRuleExists) {
		t.Errorf("Add() duplicate error = %v, want ErrRuleExists", err)
	}
}

// TestInMemoryStoreListOrder verifies creation order is preserved.
func TestInMemoryStoreListOrder(t *testing.T) {
	store := NewInMemoryRuleStore()
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		if err := store.Add(ctx, &Rule{ID: id, Name: id}); err != nil {
			t.Fatalf("Add(%s) failed: %v", id, err)
		}
	}

	rules, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	want := []string{"c", "a", "b"}
	for i, id := range want {
		if rules[i].ID != id {
			t.Errorf("List()[%d] = %s, want %s", i, rules[i].ID, id)
		}
	}
}

// TestInMemoryStoreReturnsClones verifies callers cannot mutate stored
// rules through returned values.
func TestInMemoryStoreReturnsClones(t *testing.T) {
	store := NewInMemoryRuleStore()
	ctx := context.Background()

	if err := store.Add(ctx, &Rule{
		ID:         "r1",
		Name:       "original",
		Conditions: []Condition{{ID: "c1", Field: CondAlways}},
	}); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	got, _ := store.Get(ctx, "r1")
	got.Name = "mutated"
	got.Conditions[0].Field = "mutated"

	again, _ := store.Get(ctx, "r1")
	if again.Name != "original" || again.Conditions[0].Field != CondAlways {
		t.Error("mutating a returned rule must not affect the store")
	}
}

// TestInMemoryStoreUpdate verifies updates keep position and CreatedAt.
func TestInMemoryStoreUpdate(t *testing.T) {
	store := NewInMemoryRuleStore()
	ctx := context.Background()

	store.Add(ctx, &Rule{ID: "r1", Name: "first"})
	store.Add(ctx, &Rule{ID: "r2", Name: "second"})

	created, _ := store.Get(ctx, "r1")
	time.Sleep(time.Millisecond)

	if err := store.Update(ctx, &Rule{ID: "r1", Name: "renamed"}); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	rules, _ := store.List(ctx)
	if rules[0].ID != "r1" {
		t.Error("update must keep the rule's position")
	}
	if rules[0].Name != "renamed" {
		t.Errorf("name = %s, want renamed", rules[0].Name)
	}
	if !rules[0].CreatedAt.Equal(created.CreatedAt) {
		t.Error("update must preserve CreatedAt")
	}
	if !rules[0].UpdatedAt.After(created.UpdatedAt) {
		t.Error("update should advance UpdatedAt")
	}

	err := store.Update(ctx, &Rule{ID: "missing", Name: "x"})
	if !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrRuleNotFound", err)
	}
}

// TestInMemoryStoreDelete verifies removal and the not-found case.
func TestInMemoryStoreDelete(t *testing.T) {
	store := NewInMemoryRuleStore()
	ctx := context.Background()

	store.Add(ctx, &Rule{ID: "r1", Name: "a"})

	if err := store.Delete(ctx, "r1"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := store.Get(ctx, "r1"); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("Get() after delete = %v, want ErrRuleNotFound", err)
	}
	if err := store.Delete(ctx, "r1"); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("Delete() twice = %v, want ErrRuleNotFound", err)
	}
}
