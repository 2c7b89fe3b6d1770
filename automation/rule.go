package automation

import (
	"time"

	"github.com/google/uuid"
)

// MatchType combines a rule's condition results.
type MatchType string

const (
	// MatchAll fires the rule only when every condition matches.
	MatchAll MatchType = "all"
	// MatchAny fires the rule when at least one condition matches.
	MatchAny MatchType = "any"
)

// Condition is one predicate row inside a rule. Field names a
// ConditionDefinition; Invert negates the result and clears its match
// context.
type Condition struct {
	ID     string `json:"id"`
	Field  string `json:"field"`
	Invert bool   `json:"invert"`
	Value  string `json:"value"`
}

// Action is one effect row inside a rule. Type names an
// ActionDefinition; Value goes through template interpolation before
// execution.
type Action struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Rule binds one event to a combinator over conditions and an ordered
// list of actions. Rules are user-authored and persisted; they carry no
// behavior of their own.
type Rule struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Event      string      `json:"event"`
	MatchType  MatchType   `json:"matchType"`
	Conditions []Condition `json:"conditions"`
	Actions    []Action    `json:"actions"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// NewRule returns the scaffold a rule editor starts from: one
// title-contains condition and one discard action on the new-article
// event.
func NewRule() *Rule {
	return &Rule{
		ID:        uuid.NewString(),
		Name:      "New Rule",
		Event:     EventNewArticle,
		MatchType: MatchAll,
		Conditions: []Condition{
			{ID: uuid.NewString(), Field: CondTitleContains},
		},
		Actions: []Action{
			{ID: uuid.NewString(), Type: ActionDiscard},
		},
	}
}

// Clone returns a deep copy of the rule. Evaluation snapshots and edit
// sessions work on clones so an in-progress edit can never be observed
// half-applied.
func (r *Rule) Clone() *Rule {
	cp := *r
	cp.Conditions = append([]Condition(nil), r.Conditions...)
	cp.Actions = append([]Action(nil), r.Actions...)
	return &cp
}
