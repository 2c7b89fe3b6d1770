package automation

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RuleStore persists the user's rule list. List returns rules in
// creation order; that order is the execution order, so stores must
// preserve it.
type RuleStore interface {
	// Add inserts a new rule. Fails with ErrRuleExists on a duplicate id.
	Add(ctx context.Context, rule *Rule) error

	// Get returns a rule by id, or ErrRuleNotFound.
	Get(ctx context.Context, id string) (*Rule, error)

	// List returns all rules in creation order.
	List(ctx context.Context) ([]*Rule, error)

	// Update replaces an existing rule, or fails with ErrRuleNotFound.
	Update(ctx context.Context, rule *Rule) error

	// Delete removes a rule by id, or fails with ErrRuleNotFound.
	Delete(ctx context.Context, id string) error
}

// InMemoryRuleStore implements RuleStore with a mutex-guarded slice.
// Used by tests and by hosts that keep rules in their own settings
// storage and seed the engine at startup.
type InMemoryRuleStore struct {
	rules []*Rule
	mu    sync.RWMutex
}

// NewInMemoryRuleStore creates an empty in-memory rule store.
func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{}
}

// Add appends a rule to the list.
func (s *InMemoryRuleStore) Add(_ context.Context, rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rules {
		if r.ID == rule.ID {
			return fmt.Errorf("rule %s: %w", rule.ID, ErrRuleExists)
		}
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	s.rules = append(s.rules, rule.Clone())
	return nil
}

// Get retrieves a rule by id.
func (s *InMemoryRuleStore) Get(_ context.Context, id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.rules {
		if r.ID == id {
			return r.Clone(), nil
		}
	}
	return nil, fmt.Errorf("rule %s: %w", id, ErrRuleNotFound)
}

// List returns a snapshot of all rules in creation order. The returned
// rules are clones; callers can read them while an edit is in flight
// without ever observing a half-updated rule.
func (s *InMemoryRuleStore) List(_ context.Context) ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Rule, len(s.rules))
	for i, r := range s.rules {
		out[i] = r.Clone()
	}
	return out, nil
}

// Update replaces an existing rule in place, preserving its position
// and CreatedAt.
func (s *InMemoryRuleStore) Update(_ context.Context, rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range s.rules {
		if r.ID == rule.ID {
			cp := rule.Clone()
			cp.CreatedAt = r.CreatedAt
			cp.UpdatedAt = time.Now()
			s.rules[i] = cp
			return nil
		}
	}
	return fmt.Errorf("rule %s: %w", rule.ID, ErrRuleNotFound)
}

// Delete removes a rule by id.
func (s *InMemoryRuleStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range s.rules {
		if r.ID == id {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("rule %s: %w", id, ErrRuleNotFound)
}
