package automation

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/cel-go/cel"
)

// registerExpressionCondition installs the CEL-backed condition. The
// condition value is a CEL expression over `article`, `feed`, and
// `extra` variables, e.g. `article.readingProgress > 0.5 &&
// article.favorite`. Compiled programs are cached by expression text;
// compile and evaluation failures mean no match, never an evaluation
// error, so a broken expression cannot take down an otherwise valid
// rule.
func registerExpressionCondition(reg *Registry) {
	env, envErr := cel.NewEnv(
		cel.Variable("article", cel.DynType),
		cel.Variable("feed", cel.DynType),
		cel.Variable("extra", cel.DynType),
	)

	var (
		mu       sync.Mutex
		programs = make(map[string]cel.Program)
	)

	compile := func(expression string) (cel.Program, bool) {
		mu.Lock()
		defer mu.Unlock()

		if prog, ok := programs[expression]; ok {
			return prog, prog != nil
		}

		ast, issues := env.Compile(expression)
		if issues != nil && issues.Err() != nil {
			// Negative-cache broken expressions so each evaluation run
			// doesn't re-parse them.
			programs[expression] = nil
			return nil, false
		}

		prog, err := env.Program(ast, cel.CostLimit(1000000))
		if err != nil {
			programs[expression] = nil
			return nil, false
		}

		programs[expression] = prog
		return prog, true
	}

	reg.RegisterCondition(ConditionDefinition{
		ID:    CondExpression,
		Label: "Expression Matches",
		Evaluate: func(_ context.Context, target Target, value string, extra Extra) (MatchResult, error) {
			if envErr != nil || value == "" {
				return MatchResult{}, nil
			}

			prog, ok := compile(value)
			if !ok {
				return MatchResult{}, nil
			}

			out, _, err := prog.Eval(map[string]any{
				"article": entityVars(target.Article),
				"feed":    entityVars(target.Feed),
				"extra":   extraVars(extra),
			})
			if err != nil {
				return MatchResult{}, nil
			}

			matched, ok := out.Value().(bool)
			return MatchResult{IsMatch: ok && matched}, nil
		},
	})
}

// entityVars exposes an entity to CEL as a plain map via its JSON
// shape, so expressions use the same field names the API does. A nil
// entity becomes an empty map rather than an absent variable.
func entityVars(entity any) map[string]any {
	vars := map[string]any{}
	if entity == nil {
		return vars
	}
	raw, err := json.Marshal(entity)
	if err != nil {
		return vars
	}
	_ = json.Unmarshal(raw, &vars)
	return vars
}

func extraVars(extra Extra) map[string]any {
	vars := make(map[string]any, len(extra))
	for k, v := range extra {
		vars[k] = v
	}
	return vars
}
