package automation

import (
	"context"
	"sync"
)

// MatchResult is the outcome of evaluating a single condition.
// MatchContext carries the substring or value responsible for a
// positive match; it feeds the {{condition.match}} template variable.
type MatchResult struct {
	IsMatch      bool
	MatchContext string
}

// ActionResult reports whether an action changed the rule's own target.
// Mutations an action makes to other entities (e.g. an article rule
// tagging the owning feed) are persisted by the action itself and do
// not set Modified.
type ActionResult struct {
	Modified bool
}

// ConditionFunc decides whether a target matches. Implementations may
// perform external lookups through the context; I/O failures are
// returned and abort evaluation of the current target, while malformed
// values are treated as no-match without error.
type ConditionFunc func(ctx context.Context, target Target, value string, extra Extra) (MatchResult, error)

// ActionFunc applies a side effect when a rule matches. The value has
// already been through template interpolation.
type ActionFunc func(ctx context.Context, target Target, value string, extra Extra, ruleName, eventType string) (ActionResult, error)

// EventDefinition names a trigger and the entity type it delivers.
type EventDefinition struct {
	ID         string     `json:"id"`
	Label      string     `json:"label"`
	TargetType TargetType `json:"targetType"`
}

// ConditionDefinition is a pluggable predicate. An empty TargetTypes
// set means the condition applies to every target type.
type ConditionDefinition struct {
	ID          string        `json:"id"`
	Label       string        `json:"label"`
	TargetTypes []TargetType  `json:"targetTypes,omitempty"`
	Evaluate    ConditionFunc `json:"-"`
}

// ActionDefinition is a pluggable effect. An empty TargetTypes set
// means the action applies to every target type.
type ActionDefinition struct {
	ID          string       `json:"id"`
	Label       string       `json:"label"`
	TargetTypes []TargetType `json:"targetTypes,omitempty"`
	Execute     ActionFunc   `json:"-"`
}

func compatible(types []TargetType, t TargetType) bool {
	if len(types) == 0 {
		return true
	}
	for _, tt := range types {
		if tt == t {
			return true
		}
	}
	return false
}

// Registry holds event, condition, and action definitions in three
// independent namespaces. It carries no evaluation logic: the evaluator
// depends only on the lookup contract, so new definition kinds plug in
// without touching it. Registration order is preserved per namespace;
// registering an existing id overwrites the definition in place, which
// lets a later-loaded definition pack override a built-in.
//
// Writes happen during startup, reads during evaluation; the mutex
// keeps late registration safe but evaluation never depends on it.
type Registry struct {
	events     map[string]EventDefinition
	conditions map[string]ConditionDefinition
	actions    map[string]ActionDefinition

	eventOrder     []string
	conditionOrder []string
	actionOrder    []string

	mu sync.RWMutex
}

// NewRegistry creates an empty definition registry.
func NewRegistry() *Registry {
	return &Registry{
		events:     make(map[string]EventDefinition),
		conditions: make(map[string]ConditionDefinition),
		actions:    make(map[string]ActionDefinition),
	}
}

// RegisterEvent adds or replaces an event definition.
func (r *Registry) RegisterEvent(def EventDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.events[def.ID]; !exists {
		r.eventOrder = append(r.eventOrder, def.ID)
	}
	r.events[def.ID] = def
}

// RegisterCondition adds or replaces a condition definition.
func (r *Registry) RegisterCondition(def ConditionDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conditions[def.ID]; !exists {
		r.conditionOrder = append(r.conditionOrder, def.ID)
	}
	r.conditions[def.ID] = def
}

// RegisterAction adds or replaces an action definition.
func (r *Registry) RegisterAction(def ActionDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.actions[def.ID]; !exists {
		r.actionOrder = append(r.actionOrder, def.ID)
	}
	r.actions[def.ID] = def
}

// Event looks up an event definition by id.
func (r *Registry) Event(id string) (EventDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.events[id]
	return def, ok
}

// Condition looks up a condition definition by id.
func (r *Registry) Condition(id string) (ConditionDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.conditions[id]
	return def, ok
}

// Action looks up an action definition by id.
func (r *Registry) Action(id string) (ActionDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.actions[id]
	return def, ok
}

// Events returns all event definitions in registration order.
func (r *Registry) Events() []EventDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]EventDefinition, 0, len(r.eventOrder))
	for _, id := range r.eventOrder {
		out = append(out, r.events[id])
	}
	return out
}

// Conditions returns the condition definitions compatible with the
// given target type, in registration order.
func (r *Registry) Conditions(t TargetType) []ConditionDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ConditionDefinition
	for _, id := range r.conditionOrder {
		if def := r.conditions[id]; compatible(def.TargetTypes, t) {
			out = append(out, def)
		}
	}
	return out
}

// AllConditions returns every condition definition in registration
// order.
func (r *Registry) AllConditions() []ConditionDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ConditionDefinition, 0, len(r.conditionOrder))
	for _, id := range r.conditionOrder {
		out = append(out, r.conditions[id])
	}
	return out
}

// AllActions returns every action definition in registration order.
func (r *Registry) AllActions() []ActionDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ActionDefinition, 0, len(r.actionOrder))
	for _, id := range r.actionOrder {
		out = append(out, r.actions[id])
	}
	return out
}

// Actions returns the action definitions compatible with the given
// target type, in registration order.
func (r *Registry) Actions(t TargetType) []ActionDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ActionDefinition
	for _, id := range r.actionOrder {
		if def := r.actions[id]; compatible(def.TargetTypes, t) {
			out = append(out, def)
		}
	}
	return out
}
