package automation

import (
	"errors"
	"fmt"
	"strings"
)

// ValidateRule checks a rule at edit time: non-empty name, known event,
// and condition/action references that exist and are compatible with
// the event's target type. Evaluation itself is fail-open and skips
// stale references; validation is where the user hears about them.
func ValidateRule(reg *Registry, rule *Rule) error {
	var errs []string

	if strings.TrimSpace(rule.Name) == "" {
		errs = append(errs, "rule name is required")
	}

	event, ok := reg.Event(rule.Event)
	if !ok {
		errs = append(errs, fmt.Sprintf("unknown event %q", rule.Event))
	}

	if ok {
		for _, cond := range rule.Conditions {
			def, found := reg.Condition(cond.Field)
			switch {
			case !found:
				errs = append(errs, fmt.Sprintf("unknown condition %q", cond.Field))
			case !compatible(def.TargetTypes, event.TargetType):
				errs = append(errs, fmt.Sprintf("condition %q does not apply to %s rules", cond.Field, event.TargetType))
			}
		}
		for _, action := range rule.Actions {
			def, found := reg.Action(action.Type)
			switch {
			case !found:
				errs = append(errs, fmt.Sprintf("unknown action %q", action.Type))
			case !compatible(def.TargetTypes, event.TargetType):
				errs = append(errs, fmt.Sprintf("action %q does not apply to %s rules", action.Type, event.TargetType))
			}
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// FilterForEvent drops conditions and actions that are incompatible
// with the rule's current event. Editors call it after the user changes
// a rule's event, mirroring how saving is blocked on invalid
// references.
func FilterForEvent(reg *Registry, rule *Rule) {
	event, ok := reg.Event(rule.Event)
	if !ok {
		return
	}

	kept := rule.Conditions[:0]
	for _, cond := range rule.Conditions {
		if def, found := reg.Condition(cond.Field); found && compatible(def.TargetTypes, event.TargetType) {
			kept = append(kept, cond)
		}
	}
	rule.Conditions = kept

	keptActions := rule.Actions[:0]
	for _, action := range rule.Actions {
		if def, found := reg.Action(action.Type); found && compatible(def.TargetTypes, event.TargetType) {
			keptActions = append(keptActions, action)
		}
	}
	rule.Actions = keptActions
}
