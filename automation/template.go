package automation

import "strings"

// Interpolate substitutes template variables in an action value.
// Unknown placeholders stay verbatim. The match context goes in last,
// so entity text carried in it is never re-expanded.
//
// Recognized variables: {{condition.match}} (the propagated match
// context), {{article.title}} and {{article.url}} for article targets,
// {{feed.title}} and {{feed.url}} for feed targets, and {{tag}} when
// the triggering event supplied one.
func Interpolate(text string, target Target, targetType TargetType, matchContext string, extra Extra) string {
	if text == "" {
		return ""
	}

	res := text
	switch targetType {
	case TargetArticle:
		res = strings.ReplaceAll(res, "{{article.title}}", target.Title())
		res = strings.ReplaceAll(res, "{{article.url}}", target.URL())
	case TargetFeed:
		res = strings.ReplaceAll(res, "{{feed.title}}", target.Title())
		res = strings.ReplaceAll(res, "{{feed.url}}", target.URL())
	}
	if tag, ok := extra["tag"]; ok {
		res = strings.ReplaceAll(res, "{{tag}}", tag)
	}
	return strings.ReplaceAll(res, "{{condition.match}}", matchContext)
}
