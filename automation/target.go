package automation

import "time"

// TargetType identifies which kind of entity a rule operates on.
type TargetType string

const (
	TargetArticle TargetType = "article"
	TargetFeed    TargetType = "feed"
)

// Article is a feed item as handed over by the host reader. The engine
// never owns article state: it receives a value, produces a modified
// copy, and hands it back for persistence.
type Article struct {
	GUID            string    `json:"guid"`
	Title           string    `json:"title"`
	Link            string    `json:"link"`
	Content         string    `json:"content"`
	Snippet         string    `json:"snippet"`
	FeedID          string    `json:"feedId"`
	PubDate         time.Time `json:"pubDate"`
	MediaType       string    `json:"mediaType,omitempty"`
	Discarded       bool      `json:"discarded"`
	Read            bool      `json:"read"`
	ReadingProgress float64   `json:"readingProgress"`
	Favorite        bool      `json:"favorite"`
}

// Feed is a subscription as handed over by the host reader.
type Feed struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	URL     string    `json:"url"`
	Tags    []string  `json:"tags"`
	AddedAt time.Time `json:"addedAt"`
}

// Target wraps either an Article or a Feed. Exactly one field is
// non-nil; Type reports which. Condition and action implementations go
// through the accessor methods instead of switching on the concrete
// shape wherever the fields overlap.
type Target struct {
	Article *Article `json:"article,omitempty"`
	Feed    *Feed    `json:"feed,omitempty"`
}

// ArticleTarget wraps an article for evaluation.
func ArticleTarget(a *Article) Target { return Target{Article: a} }

// FeedTarget wraps a feed for evaluation.
func FeedTarget(f *Feed) Target { return Target{Feed: f} }

// Type returns the target type of the wrapped entity.
func (t Target) Type() TargetType {
	if t.Feed != nil {
		return TargetFeed
	}
	return TargetArticle
}

// Title returns the entity's display title.
func (t Target) Title() string {
	switch {
	case t.Article != nil:
		return t.Article.Title
	case t.Feed != nil:
		return t.Feed.Title
	}
	return ""
}

// URL returns the article link or the feed URL.
func (t Target) URL() string {
	switch {
	case t.Article != nil:
		return t.Article.Link
	case t.Feed != nil:
		return t.Feed.URL
	}
	return ""
}

// Date returns the entity's relevant date: publication date for an
// article, subscription date for a feed. A zero time means the entity
// carries no date; callers substitute the current time.
func (t Target) Date() time.Time {
	switch {
	case t.Article != nil:
		return t.Article.PubDate
	case t.Feed != nil:
		return t.Feed.AddedAt
	}
	return time.Time{}
}

// Clone returns an independent copy of the target. Mutations made by
// actions land on the clone, never on the caller's value. Feed tag
// slices are copied so the clone cannot alias the original's backing
// array.
func (t Target) Clone() Target {
	switch {
	case t.Article != nil:
		a := *t.Article
		return Target{Article: &a}
	case t.Feed != nil:
		f := *t.Feed
		f.Tags = append([]string(nil), t.Feed.Tags...)
		return Target{Feed: &f}
	}
	return Target{}
}

// Extra carries event-specific context into condition and action
// evaluation, e.g. the tag name for a feed-tag-added event.
type Extra map[string]string
