package main

import "github.com/freed-reader/automations/automation"

// API request and response models.

// SaveRuleRequest is the body for creating or updating a rule.
type SaveRuleRequest struct {
	Name       string                 `json:"name"`
	Event      string                 `json:"event"`
	MatchType  automation.MatchType   `json:"matchType"`
	Conditions []automation.Condition `json:"conditions"`
	Actions    []automation.Action    `json:"actions"`
}

// RulesListResponse is the body for listing rules.
type RulesListResponse struct {
	Rules []*automation.Rule `json:"rules"`
}

// DefinitionsResponse lists the registered definitions for the rule
// editor, filtered by target type when one is given.
type DefinitionsResponse struct {
	Events     []automation.EventDefinition     `json:"events"`
	Conditions []automation.ConditionDefinition `json:"conditions"`
	Actions    []automation.ActionDefinition    `json:"actions"`
}

// ArticleBatchRequest is the new-article pipeline hook body.
type ArticleBatchRequest struct {
	Articles []*automation.Article `json:"articles"`
}

// ArticleBatchResponse returns the evaluated batch in original order.
type ArticleBatchResponse struct {
	Articles []*automation.Article `json:"articles"`
}

// ArticleEventRequest is the body for a single-article event trigger.
type ArticleEventRequest struct {
	Event string `json:"event"`
}

// FeedEventRequest is the body for a single-feed event trigger. Tag is
// only read for the feed-tag-added event.
type FeedEventRequest struct {
	Event string `json:"event"`
	Tag   string `json:"tag,omitempty"`
}

// HealthResponse is the health check body.
type HealthResponse struct {
	Status          string `json:"status"`
	Rules           int    `json:"rules"`
	Evaluations     int64  `json:"evaluations"`
	RuleMatches     int64  `json:"ruleMatches"`
	WebhookFailures int64  `json:"webhookFailures"`
	ScanErrors      int64  `json:"scanErrors"`
}
