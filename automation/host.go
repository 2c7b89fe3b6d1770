package automation

import "context"

// HostStore is the host reader's article/feed repository. The engine
// only ever reads entities through it and hands modified copies back
// for persistence. Load and save failures propagate to the dispatcher;
// the dispatcher aborts that one target and continues with the rest of
// a batch.
type HostStore interface {
	GetArticle(ctx context.Context, guid string) (*Article, error)
	GetFeed(ctx context.Context, id string) (*Feed, error)
	GetAllFeeds(ctx context.Context) ([]*Feed, error)
	// GetArticlesByFeed returns the articles in scope. The scope "all"
	// selects every accessible article; any other value selects one feed
	// by id.
	GetArticlesByFeed(ctx context.Context, scope string) ([]*Article, error)
	SaveArticle(ctx context.Context, a *Article) error
	SaveFeed(ctx context.Context, f *Feed) error
}

// Notifier shows a transient user notification. Fire and forget; the
// engine never inspects an outcome.
type Notifier interface {
	Notify(message string)
}

// Refresher hints that downstream views should re-read entities.
type Refresher interface {
	RequestRefresh()
}

// WebhookPayload is the JSON body of an outbound webhook call.
type WebhookPayload struct {
	Event        string     `json:"event"`
	Rule         string     `json:"rule"`
	TargetType   TargetType `json:"targetType"`
	Target       Target     `json:"target"`
	ExtraContext Extra      `json:"extraContext,omitempty"`
}

// WebhookSender delivers a payload to a URL. Implementations log and
// swallow transport failures and non-2xx responses; a webhook can never
// abort the rule that fired it.
type WebhookSender interface {
	Send(ctx context.Context, url string, payload WebhookPayload)
}
