// Package dispatch adapts host triggers — the new-article pipeline
// hook, discrete entity events, and a recurring timer — into uniform
// engine evaluation runs, and pushes mutated entities back out for
// persistence.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/freed-reader/automations/automation"
	"github.com/freed-reader/automations/internal/logger"
)

// Dispatcher funnels external triggers into the engine. Evaluation is
// sequential per trigger; targets in a batch are independent working
// copies, but the shared refresh signal fires at most once per batch to
// avoid refresh storms.
type Dispatcher struct {
	engine    *automation.Engine
	host      automation.HostStore
	refresher automation.Refresher

	interval     time.Duration
	initialDelay time.Duration

	running bool
	stopCh  chan struct{}
	mu      sync.Mutex
}

// Config carries the scheduler cadence.
type Config struct {
	ScanInterval     time.Duration
	ScanInitialDelay time.Duration
}

// DefaultConfig returns the default cadence: an hourly scan, with a
// first run shortly after startup.
func DefaultConfig() Config {
	return Config{
		ScanInterval:     time.Hour,
		ScanInitialDelay: 5 * time.Second,
	}
}

// New creates a dispatcher over the engine and host collaborators.
func New(engine *automation.Engine, host automation.HostStore, refresher automation.Refresher, cfg Config) *Dispatcher {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = time.Hour
	}
	return &Dispatcher{
		engine:       engine,
		host:         host,
		refresher:    refresher,
		interval:     cfg.ScanInterval,
		initialDelay: cfg.ScanInitialDelay,
		stopCh:       make(chan struct{}),
	}
}

// ProcessNewArticles runs the new-article rules over a freshly fetched
// batch and replaces each article with its evaluated copy in place. The
// host pipeline persists the batch itself, so no save happens here. A
// failing target keeps its original value and processing continues;
// per-target errors are aggregated into the return.
func (d *Dispatcher) ProcessNewArticles(ctx context.Context, articles []*automation.Article) ([]*automation.Article, error) {
	var errs error
	for i, article := range articles {
		result, err := d.engine.ApplyRules(ctx, automation.ArticleTarget(article), automation.TargetArticle, automation.EventNewArticle, nil)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("article %s: %w", article.GUID, err))
			continue
		}
		articles[i] = result.Target.Article
	}
	return articles, errs
}

// HandleArticleEvent loads one article, evaluates the given event
// against it, and persists the result only when something changed.
func (d *Dispatcher) HandleArticleEvent(ctx context.Context, guid, eventType string) error {
	article, err := d.host.GetArticle(ctx, guid)
	if err != nil {
		return err
	}

	result, err := d.engine.ApplyRules(ctx, automation.ArticleTarget(article), automation.TargetArticle, eventType, nil)
	if err != nil {
		return err
	}
	if !result.Modified {
		return nil
	}

	if err := d.host.SaveArticle(ctx, result.Target.Article); err != nil {
		return err
	}
	d.refresher.RequestRefresh()
	return nil
}

// HandleFeedEvent evaluates a feed event against an already-loaded
// feed and persists the result only when something changed.
func (d *Dispatcher) HandleFeedEvent(ctx context.Context, feed *automation.Feed, eventType string, extra automation.Extra) error {
	result, err := d.engine.ApplyRules(ctx, automation.FeedTarget(feed), automation.TargetFeed, eventType, extra)
	if err != nil {
		return err
	}
	if !result.Modified {
		return nil
	}

	if err := d.host.SaveFeed(ctx, result.Target.Feed); err != nil {
		return err
	}
	d.refresher.RequestRefresh()
	return nil
}

// HandleFeedTagAdded loads the feed and runs the tag-added event with
// the tag in the extra context, where it feeds the {{tag}} template
// variable.
func (d *Dispatcher) HandleFeedTagAdded(ctx context.Context, feedID, tag string) error {
	feed, err := d.host.GetFeed(ctx, feedID)
	if err != nil {
		return err
	}
	return d.HandleFeedEvent(ctx, feed, automation.EventFeedTagAdded, automation.Extra{"tag": tag})
}

// Start launches the scheduled scan loop: one run after the initial
// delay, then one per interval. Idempotent.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return
	}
	d.running = true
	go d.scanLoop()
}

// Stop halts the scan loop. Idempotent; an in-flight scan finishes.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return
	}
	d.running = false
	close(d.stopCh)
	d.stopCh = make(chan struct{})
}

func (d *Dispatcher) scanLoop() {
	d.mu.Lock()
	stopCh := d.stopCh
	d.mu.Unlock()

	if d.initialDelay > 0 {
		select {
		case <-time.After(d.initialDelay):
		case <-stopCh:
			return
		}
	}
	if err := d.RunScheduledScan(context.Background()); err != nil {
		logger.Error("scheduled scan failed", "error", err)
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := d.RunScheduledScan(context.Background()); err != nil {
				logger.Error("scheduled scan failed", "error", err)
			}
		case <-stopCh:
			return
		}
	}
}

// RunScheduledScan evaluates the scheduled event against every
// accessible article, persisting the modified ones. It is a no-op when
// no stored rule targets the scheduled event. One refresh fires after
// the whole batch, and only if something was modified. A failing target
// is skipped and the scan continues; errors aggregate into the return.
func (d *Dispatcher) RunScheduledScan(ctx context.Context) error {
	hasRules, err := d.engine.HasRulesFor(ctx, automation.EventScheduled)
	if err != nil {
		return err
	}
	if !hasRules {
		return nil
	}

	articles, err := d.host.GetArticlesByFeed(ctx, "all")
	if err != nil {
		return err
	}

	var errs error
	modifiedCount := 0
	for _, article := range articles {
		result, err := d.engine.ApplyRules(ctx, automation.ArticleTarget(article), automation.TargetArticle, automation.EventScheduled, nil)
		if err != nil {
			logger.TotalScanErrors.Add(1)
			errs = multierr.Append(errs, fmt.Errorf("article %s: %w", article.GUID, err))
			continue
		}
		if !result.Modified {
			continue
		}
		if err := d.host.SaveArticle(ctx, result.Target.Article); err != nil {
			logger.TotalScanErrors.Add(1)
			errs = multierr.Append(errs, fmt.Errorf("save article %s: %w", article.GUID, err))
			continue
		}
		modifiedCount++
	}

	if modifiedCount > 0 {
		d.refresher.RequestRefresh()
	}

	logger.Debug("scheduled scan complete", "articles", len(articles), "modified", modifiedCount)
	return errs
}
