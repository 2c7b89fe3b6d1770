package automation

import "errors"

// Sentinel errors shared across store implementations so callers can
// branch with errors.Is regardless of the backing store.
var (
	ErrRuleNotFound    = errors.New("rule not found")
	ErrRuleExists      = errors.New("rule already exists")
	ErrArticleNotFound = errors.New("article not found")
	ErrFeedNotFound    = errors.New("feed not found")
)
