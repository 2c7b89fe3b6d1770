package automation

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresHostStore implements HostStore against the reader's articles
// and feeds tables. Hosts with their own repository implement HostStore
// directly instead.
type PostgresHostStore struct {
	db *sql.DB
}

// NewPostgresHostStore creates a PostgreSQL-backed host store.
func NewPostgresHostStore(db *sql.DB) *PostgresHostStore {
	return &PostgresHostStore{db: db}
}

const articleColumns = `guid, title, link, content, snippet, feed_id, pub_date,
	media_type, discarded, read, reading_progress, favorite`

// GetArticle loads one article by guid.
func (s *PostgresHostStore) GetArticle(ctx context.Context, guid string) (*Article, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+articleColumns+`
		FROM articles
		WHERE guid = $1
	`, guid)

	article, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("article %s: %w", guid, ErrArticleNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article: %w", err)
	}
	return article, nil
}

// GetFeed loads one feed by id.
func (s *PostgresHostStore) GetFeed(ctx context.Context, id string) (*Feed, error) {
	var feed Feed
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, url, tags, added_at
		FROM feeds
		WHERE id = $1
	`, id).Scan(&feed.ID, &feed.Title, &feed.URL, pq.Array(&feed.Tags), &feed.AddedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("feed %s: %w", id, ErrFeedNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}
	return &feed, nil
}

// GetAllFeeds returns every feed.
func (s *PostgresHostStore) GetAllFeeds(ctx context.Context) ([]*Feed, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, url, tags, added_at
		FROM feeds
		ORDER BY added_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	defer rows.Close()

	var feeds []*Feed
	for rows.Next() {
		var feed Feed
		if err := rows.Scan(&feed.ID, &feed.Title, &feed.URL, pq.Array(&feed.Tags), &feed.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feed: %w", err)
		}
		feeds = append(feeds, &feed)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feeds: %w", err)
	}
	return feeds, nil
}

// GetArticlesByFeed returns the articles in scope: every article for
// the "all" scope, one feed's articles otherwise.
func (s *PostgresHostStore) GetArticlesByFeed(ctx context.Context, scope string) ([]*Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles`
	args := []any{}
	if scope != "all" {
		query += ` WHERE feed_id = $1`
		args = append(args, scope)
	}
	query += ` ORDER BY pub_date DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	defer rows.Close()

	var articles []*Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, article)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating articles: %w", err)
	}
	return articles, nil
}

// SaveArticle upserts an article by guid.
func (s *PostgresHostStore) SaveArticle(ctx context.Context, a *Article) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO articles (`+articleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (guid) DO UPDATE SET
			title = EXCLUDED.title,
			link = EXCLUDED.link,
			content = EXCLUDED.content,
			snippet = EXCLUDED.snippet,
			feed_id = EXCLUDED.feed_id,
			pub_date = EXCLUDED.pub_date,
			media_type = EXCLUDED.media_type,
			discarded = EXCLUDED.discarded,
			read = EXCLUDED.read,
			reading_progress = EXCLUDED.reading_progress,
			favorite = EXCLUDED.favorite
	`, a.GUID, a.Title, a.Link, a.Content, a.Snippet, a.FeedID, a.PubDate,
		a.MediaType, a.Discarded, a.Read, a.ReadingProgress, a.Favorite)
	if err != nil {
		return fmt.Errorf("failed to save article: %w", err)
	}
	return nil
}

// SaveFeed upserts a feed by id.
func (s *PostgresHostStore) SaveFeed(ctx context.Context, f *Feed) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feeds (id, title, url, tags, added_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			url = EXCLUDED.url,
			tags = EXCLUDED.tags,
			added_at = EXCLUDED.added_at
	`, f.ID, f.Title, f.URL, pq.Array(f.Tags), f.AddedAt)
	if err != nil {
		return fmt.Errorf("failed to save feed: %w", err)
	}
	return nil
}

func scanArticle(row rowScanner) (*Article, error) {
	var a Article
	err := row.Scan(&a.GUID, &a.Title, &a.Link, &a.Content, &a.Snippet,
		&a.FeedID, &a.PubDate, &a.MediaType, &a.Discarded, &a.Read,
		&a.ReadingProgress, &a.Favorite)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
