package automation

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// Built-in event ids.
const (
	EventNewArticle       = "new_article"
	EventArticleFavorited = "article_favorited"
	EventArticleRead      = "article_read"
	EventFeedAdded        = "feed_added"
	EventFeedTagAdded     = "feed_tag_added"
	EventScheduled        = "scheduled"
)

// Built-in condition ids.
const (
	CondAlways          = "always"
	CondTitleContains   = "title_contains"
	CondContentContains = "content_contains"
	CondURLContains     = "url_contains"
	CondFeedIs          = "feed_is"
	CondHasMedia        = "has_media"
	CondHasTag          = "has_tag"
	CondDateCheck       = "date_check"
	CondExpression      = "expression"
)

// Built-in action ids.
const (
	ActionDiscard        = "discard"
	ActionMarkRead       = "mark_read"
	ActionFavorite       = "favorite"
	ActionAddTag         = "add_tag"
	ActionRemoveTag      = "remove_tag"
	ActionNotify         = "notify"
	ActionTriggerWebhook = "trigger_webhook"
)

// BuiltinDeps are the host collaborators the built-in definitions close
// over. Conditions use Host for lookups; actions use the rest for side
// effects outside the rule's target.
type BuiltinDeps struct {
	Host      HostStore
	Notifier  Notifier
	Refresher Refresher
	Webhooks  WebhookSender
}

// RegisterBuiltins installs the stock event, condition, and action
// definitions. Call once at startup before the first evaluation;
// definition packs loaded afterwards may override individual ids.
func RegisterBuiltins(reg *Registry, deps BuiltinDeps) {
	registerBuiltinEvents(reg)
	registerBuiltinConditions(reg, deps)
	registerBuiltinActions(reg, deps)
}

func registerBuiltinEvents(reg *Registry) {
	reg.RegisterEvent(EventDefinition{ID: EventNewArticle, Label: "New Article Fetched", TargetType: TargetArticle})
	reg.RegisterEvent(EventDefinition{ID: EventArticleFavorited, Label: "Article Favorited", TargetType: TargetArticle})
	reg.RegisterEvent(EventDefinition{ID: EventArticleRead, Label: "Article Read", TargetType: TargetArticle})
	reg.RegisterEvent(EventDefinition{ID: EventFeedAdded, Label: "Feed Added", TargetType: TargetFeed})
	reg.RegisterEvent(EventDefinition{ID: EventFeedTagAdded, Label: "Tag Added to Feed", TargetType: TargetFeed})
	reg.RegisterEvent(EventDefinition{ID: EventScheduled, Label: "Scheduled Time (Hourly)", TargetType: TargetArticle})
}

func registerBuiltinConditions(reg *Registry, deps BuiltinDeps) {
	reg.RegisterCondition(ConditionDefinition{
		ID:    CondAlways,
		Label: "Always (No Condition)",
		Evaluate: func(_ context.Context, _ Target, _ string, _ Extra) (MatchResult, error) {
			return MatchResult{IsMatch: true}, nil
		},
	})

	reg.RegisterCondition(ConditionDefinition{
		ID:    CondTitleContains,
		Label: "Title Contains",
		Evaluate: func(_ context.Context, target Target, value string, _ Extra) (MatchResult, error) {
			return substringMatch(target.Title(), value), nil
		},
	})

	reg.RegisterCondition(ConditionDefinition{
		ID:          CondContentContains,
		Label:       "Content Contains",
		TargetTypes: []TargetType{TargetArticle},
		Evaluate: func(_ context.Context, target Target, value string, _ Extra) (MatchResult, error) {
			var content string
			if target.Article != nil {
				content = target.Article.Content + " " + target.Article.Snippet
			}
			return substringMatch(content, value), nil
		},
	})

	reg.RegisterCondition(ConditionDefinition{
		ID:    CondURLContains,
		Label: "URL Contains",
		Evaluate: func(_ context.Context, target Target, value string, _ Extra) (MatchResult, error) {
			return substringMatch(target.URL(), value), nil
		},
	})

	reg.RegisterCondition(ConditionDefinition{
		ID:          CondFeedIs,
		Label:       "Feed Is",
		TargetTypes: []TargetType{TargetArticle},
		Evaluate: func(_ context.Context, target Target, value string, _ Extra) (MatchResult, error) {
			if target.Article == nil {
				return MatchResult{}, nil
			}
			return MatchResult{IsMatch: target.Article.FeedID == value}, nil
		},
	})

	reg.RegisterCondition(ConditionDefinition{
		ID:          CondHasMedia,
		Label:       "Has Media (Audio/Video)",
		TargetTypes: []TargetType{TargetArticle},
		Evaluate: func(_ context.Context, target Target, _ string, _ Extra) (MatchResult, error) {
			return MatchResult{IsMatch: target.Article != nil && target.Article.MediaType != ""}, nil
		},
	})

	reg.RegisterCondition(ConditionDefinition{
		ID:    CondHasTag,
		Label: "Has Tag",
		Evaluate: func(ctx context.Context, target Target, value string, _ Extra) (MatchResult, error) {
			tags, err := tagsOf(ctx, deps.Host, target)
			if err != nil {
				return MatchResult{}, err
			}

			for _, required := range parseTagList(value) {
				for _, tag := range tags {
					if strings.EqualFold(tag, required) {
						return MatchResult{IsMatch: true}, nil
					}
				}
			}
			return MatchResult{}, nil
		},
	})

	reg.RegisterCondition(ConditionDefinition{
		ID:    CondDateCheck,
		Label: "Date Check",
		Evaluate: func(_ context.Context, target Target, value string, _ Extra) (MatchResult, error) {
			return MatchResult{IsMatch: dateCheck(target, value, time.Now())}, nil
		},
	})

	registerExpressionCondition(reg)
}

func registerBuiltinActions(reg *Registry, deps BuiltinDeps) {
	reg.RegisterAction(ActionDefinition{
		ID:          ActionDiscard,
		Label:       "Discard Article",
		TargetTypes: []TargetType{TargetArticle},
		Execute: func(_ context.Context, target Target, _ string, _ Extra, _, _ string) (ActionResult, error) {
			if target.Article == nil || target.Article.Discarded {
				return ActionResult{}, nil
			}
			target.Article.Discarded = true
			return ActionResult{Modified: true}, nil
		},
	})

	reg.RegisterAction(ActionDefinition{
		ID:          ActionMarkRead,
		Label:       "Mark as Read",
		TargetTypes: []TargetType{TargetArticle},
		Execute: func(_ context.Context, target Target, _ string, _ Extra, _, _ string) (ActionResult, error) {
			a := target.Article
			if a == nil || (a.Read && a.ReadingProgress == 1) {
				return ActionResult{}, nil
			}
			a.ReadingProgress = 1
			a.Read = true
			return ActionResult{Modified: true}, nil
		},
	})

	reg.RegisterAction(ActionDefinition{
		ID:          ActionFavorite,
		Label:       "Mark as Favorite",
		TargetTypes: []TargetType{TargetArticle},
		Execute: func(_ context.Context, target Target, _ string, _ Extra, _, _ string) (ActionResult, error) {
			if target.Article == nil || target.Article.Favorite {
				return ActionResult{}, nil
			}
			target.Article.Favorite = true
			return ActionResult{Modified: true}, nil
		},
	})

	reg.RegisterAction(ActionDefinition{
		ID:    ActionAddTag,
		Label: "Add Tag to Feed",
		Execute: func(ctx context.Context, target Target, value string, _ Extra, _, _ string) (ActionResult, error) {
			return mutateFeedTags(ctx, deps, target, func(f *Feed) bool {
				changed := false
				for _, tag := range parseTagList(value) {
					if !containsTag(f.Tags, tag) {
						f.Tags = append(f.Tags, tag)
						changed = true
					}
				}
				return changed
			})
		},
	})

	reg.RegisterAction(ActionDefinition{
		ID:    ActionRemoveTag,
		Label: "Remove Tag from Feed",
		Execute: func(ctx context.Context, target Target, value string, _ Extra, _, _ string) (ActionResult, error) {
			return mutateFeedTags(ctx, deps, target, func(f *Feed) bool {
				remove := parseTagList(value)
				kept := f.Tags[:0]
				for _, tag := range f.Tags {
					if !containsTag(remove, tag) {
						kept = append(kept, tag)
					}
				}
				changed := len(kept) != len(f.Tags)
				f.Tags = kept
				return changed
			})
		},
	})

	reg.RegisterAction(ActionDefinition{
		ID:    ActionNotify,
		Label: "Show Notification",
		Execute: func(_ context.Context, _ Target, value string, _ Extra, ruleName, _ string) (ActionResult, error) {
			if value == "" {
				value = "Automation: " + ruleName + " triggered"
			}
			deps.Notifier.Notify(value)
			return ActionResult{}, nil
		},
	})

	reg.RegisterAction(ActionDefinition{
		ID:    ActionTriggerWebhook,
		Label: "Trigger Webhook",
		Execute: func(ctx context.Context, target Target, value string, extra Extra, ruleName, eventType string) (ActionResult, error) {
			deps.Webhooks.Send(ctx, value, WebhookPayload{
				Event:        eventType,
				Rule:         ruleName,
				TargetType:   target.Type(),
				Target:       target,
				ExtraContext: extra,
			})
			return ActionResult{}, nil
		},
	})
}

// substringMatch is the shared case-insensitive containment test. The
// matched needle becomes the match context.
func substringMatch(haystack, needle string) MatchResult {
	n := strings.ToLower(needle)
	if strings.Contains(strings.ToLower(haystack), n) {
		return MatchResult{IsMatch: true, MatchContext: n}
	}
	return MatchResult{}
}

// tagsOf resolves the tags relevant to a target: a feed's own tags, or
// for an article the tags of its owning feed. A missing feed yields an
// empty tag set rather than an error.
func tagsOf(ctx context.Context, host HostStore, target Target) ([]string, error) {
	if target.Feed != nil {
		return target.Feed.Tags, nil
	}
	if target.Article == nil || target.Article.FeedID == "" {
		return nil, nil
	}

	feed, err := host.GetFeed(ctx, target.Article.FeedID)
	if errors.Is(err, ErrFeedNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return feed.Tags, nil
}

// mutateFeedTags applies a tag mutation to the right feed. For a feed
// target the mutation lands on the working copy itself and Modified
// reports whether it changed. For an article target the mutation lands
// on the owning feed, which is persisted and followed by a refresh
// request; the article itself is untouched, so Modified stays false.
func mutateFeedTags(ctx context.Context, deps BuiltinDeps, target Target, mutate func(*Feed) bool) (ActionResult, error) {
	if target.Feed != nil {
		return ActionResult{Modified: mutate(target.Feed)}, nil
	}
	if target.Article == nil || target.Article.FeedID == "" {
		return ActionResult{}, nil
	}

	feed, err := deps.Host.GetFeed(ctx, target.Article.FeedID)
	if errors.Is(err, ErrFeedNotFound) {
		return ActionResult{}, nil
	}
	if err != nil {
		return ActionResult{}, err
	}

	if !mutate(feed) {
		return ActionResult{}, nil
	}
	if err := deps.Host.SaveFeed(ctx, feed); err != nil {
		return ActionResult{}, err
	}
	deps.Refresher.RequestRefresh()
	return ActionResult{}, nil
}

// parseTagList accepts either a JSON string array or a single bare tag.
// Malformed JSON falls back to treating the whole value as one tag.
func parseTagList(value string) []string {
	if value == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(value), &tags); err != nil {
		return []string{value}
	}
	return tags
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// dateCheck evaluates a "operator:operand" value against the target's
// date, defaulting to now when the target carries none. Day differences
// round up whole days. Unparseable operands mean no match, never an
// error.
func dateCheck(target Target, value string, now time.Time) bool {
	operator, operand, _ := strings.Cut(value, ":")

	targetDate := target.Date()
	if targetDate.IsZero() {
		targetDate = now
	}

	switch operator {
	case "more_recent_than":
		days, err := strconv.Atoi(operand)
		if err != nil {
			return false
		}
		return diffDays(now, targetDate) <= days
	case "older_than":
		days, err := strconv.Atoi(operand)
		if err != nil {
			return false
		}
		return diffDays(now, targetDate) > days
	case "before":
		compare, ok := parseAbsoluteDate(operand)
		return ok && targetDate.Before(compare)
	case "after":
		compare, ok := parseAbsoluteDate(operand)
		return ok && targetDate.After(compare)
	}
	return false
}

func diffDays(now, targetDate time.Time) int {
	diff := now.Sub(targetDate)
	if diff < 0 {
		diff = -diff
	}
	return int(math.Ceil(diff.Hours() / 24))
}

func parseAbsoluteDate(s string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
