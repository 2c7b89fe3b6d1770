package automation

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/freed-reader/automations/internal/logger"
)

// Engine evaluates the stored rule list against targets and manages
// rule CRUD. Evaluation takes an immutable snapshot of the rule list at
// the start of every run, so an edit landing mid-scan can never be
// observed half-applied.
type Engine struct {
	registry *Registry
	store    RuleStore
	cache    RulesCache
}

// ApplyResult is the outcome of one evaluation run: the (possibly
// mutated) working copy of the target and whether any action modified
// it.
type ApplyResult struct {
	Target   Target
	Modified bool
}

// NewEngine creates an engine over the given registry and rule store.
func NewEngine(registry *Registry, store RuleStore) *Engine {
	return &Engine{
		registry: registry,
		store:    store,
		cache:    NewInMemoryRulesCache(DefaultCacheConfig()),
	}
}

// Registry returns the engine's definition registry.
func (en *Engine) Registry() *Registry {
	return en.registry
}

// ApplyRules runs every stored rule for eventType against the target
// and returns the mutated working copy. Rules run in list order;
// within a rule, actions run sequentially in list order so a later
// action observes an earlier action's mutation. Unknown condition or
// action ids are skipped silently: stale rule data must not crash
// evaluation. External I/O failures (entity lookups, entity saves)
// abort evaluation of this target and propagate.
func (en *Engine) ApplyRules(ctx context.Context, target Target, targetType TargetType, eventType string, extra Extra) (ApplyResult, error) {
	rules, err := en.rulesSnapshot(ctx)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("load rules: %w", err)
	}

	logger.TotalEvaluations.Add(1)

	working := target.Clone()
	modified := false

	for _, rule := range rules {
		if rule.Event != eventType {
			continue
		}
		if _, ok := en.registry.Event(rule.Event); !ok {
			continue
		}

		matched, matchContext, err := en.evaluateConditions(ctx, rule, working, extra)
		if err != nil {
			return ApplyResult{}, err
		}
		if !matched {
			continue
		}

		logger.TotalRuleMatches.Add(1)

		for _, action := range rule.Actions {
			def, ok := en.registry.Action(action.Type)
			if !ok {
				continue
			}

			value := Interpolate(action.Value, working, targetType, matchContext, extra)
			res, err := def.Execute(ctx, working, value, extra, rule.Name, rule.Event)
			if err != nil {
				return ApplyResult{}, fmt.Errorf("rule %q action %s: %w", rule.Name, action.Type, err)
			}
			if res.Modified {
				// Monotonic: once any action modifies the target the run
				// reports modified, even across later rules.
				modified = true
			}
		}
	}

	return ApplyResult{Target: working, Modified: modified}, nil
}

// evaluateConditions runs every condition of a rule to completion
// before combining, then applies the rule's match type. A rule with no
// conditions matches unconditionally. Inverting a condition clears its
// match context: the negation of a match carries no meaningful
// substring.
func (en *Engine) evaluateConditions(ctx context.Context, rule *Rule, target Target, extra Extra) (bool, string, error) {
	if len(rule.Conditions) == 0 {
		return true, "", nil
	}

	var results []MatchResult
	for _, cond := range rule.Conditions {
		def, ok := en.registry.Condition(cond.Field)
		if !ok {
			continue
		}

		res, err := def.Evaluate(ctx, target, cond.Value, extra)
		if err != nil {
			return false, "", fmt.Errorf("rule %q condition %s: %w", rule.Name, cond.Field, err)
		}
		if cond.Invert {
			res.IsMatch = !res.IsMatch
			res.MatchContext = ""
		}
		results = append(results, res)
	}

	if rule.MatchType == MatchAny {
		for _, res := range results {
			if res.IsMatch {
				return true, res.MatchContext, nil
			}
		}
		return false, "", nil
	}

	// "all" (the default)
	for _, res := range results {
		if !res.IsMatch {
			return false, "", nil
		}
	}
	for _, res := range results {
		if res.MatchContext != "" {
			return true, res.MatchContext, nil
		}
	}
	return true, "", nil
}

// HasRulesFor reports whether any stored rule targets the given event.
// The scheduler uses it to skip scans when nothing listens.
func (en *Engine) HasRulesFor(ctx context.Context, eventType string) (bool, error) {
	rules, err := en.rulesSnapshot(ctx)
	if err != nil {
		return false, err
	}
	for _, rule := range rules {
		if rule.Event == eventType {
			return true, nil
		}
	}
	return false, nil
}

// rulesSnapshot returns the current rule list, serving from cache when
// valid and falling through to the store otherwise.
func (en *Engine) rulesSnapshot(ctx context.Context) ([]*Rule, error) {
	if rules := en.cache.Get(); rules != nil {
		return rules, nil
	}

	rules, err := en.store.List(ctx)
	if err != nil {
		return nil, err
	}
	en.cache.Set(rules)
	return rules, nil
}

// AddRule validates and stores a new rule. A missing id is generated;
// validation failures surface to the editor and nothing is stored.
func (en *Engine) AddRule(ctx context.Context, rule *Rule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if err := ValidateRule(en.registry, rule); err != nil {
		return err
	}
	if err := en.store.Add(ctx, rule); err != nil {
		return err
	}
	en.cache.Invalidate()
	return nil
}

// UpdateRule validates and replaces an existing rule.
func (en *Engine) UpdateRule(ctx context.Context, rule *Rule) error {
	if err := ValidateRule(en.registry, rule); err != nil {
		return err
	}
	if err := en.store.Update(ctx, rule); err != nil {
		return err
	}
	en.cache.Invalidate()
	return nil
}

// DeleteRule removes a rule.
func (en *Engine) DeleteRule(ctx context.Context, id string) error {
	if err := en.store.Delete(ctx, id); err != nil {
		return err
	}
	en.cache.Invalidate()
	return nil
}

// GetRule returns a single rule by id.
func (en *Engine) GetRule(ctx context.Context, id string) (*Rule, error) {
	return en.store.Get(ctx, id)
}

// ListRules returns all rules in execution order.
func (en *Engine) ListRules(ctx context.Context) ([]*Rule, error) {
	return en.store.List(ctx)
}
