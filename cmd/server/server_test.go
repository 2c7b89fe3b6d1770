//go:build integration
// +build integration

package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/freed-reader/automations/automation"
	"github.com/freed-reader/automations/internal/config"
)

// setupTestDB creates a PostgreSQL testcontainer and runs migrations.
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "automations_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	connStr := fmt.Sprintf("host=%s port=%s user=test password=test dbname=automations_test sslmode=disable", host, port.Port())

	var db *sql.DB
	for i := 0; i < 30; i++ {
		db, err = sql.Open("postgres", connStr)
		if err == nil {
			if err = db.Ping(); err == nil {
				break
			}
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	migrationSQL, err := os.ReadFile("../../migrations/000001_initial_schema.up.sql")
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}
	if _, err := db.Exec(string(migrationSQL)); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		db.Close()
		container.Terminate(ctx)
	}
	return db, cleanup
}

func newTestServer(t *testing.T) (*Server, func()) {
	t.Helper()
	db, cleanup := setupTestDB(t)
	server := NewServerWithDB(db, config.Config{WebhookTimeout: 5 * time.Second})
	return server, cleanup
}

func doJSON(t *testing.T, server http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

// TestEndToEndRuleLifecycle drives the rule CRUD API and then an
// article batch through the evaluation pipeline.
func TestEndToEndRuleLifecycle(t *testing.T) {
	server, cleanup := newTestServer(t)
	defer cleanup()

	// Create a rule.
	rec := doJSON(t, server, http.MethodPost, "/api/v1/rules", SaveRuleRequest{
		Name:  "Discard weekly digests",
		Event: automation.EventNewArticle,
		Conditions: []automation.Condition{
			{ID: "c1", Field: automation.CondTitleContains, Value: "weekly"},
		},
		Actions: []automation.Action{
			{ID: "a1", Type: automation.ActionDiscard},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create rule = %d: %s", rec.Code, rec.Body.String())
	}

	var created automation.Rule
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created rule: %v", err)
	}
	if created.ID == "" {
		t.Fatal("created rule should carry an id")
	}

	// List shows it.
	rec = doJSON(t, server, http.MethodGet, "/api/v1/rules", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list rules = %d", rec.Code)
	}
	var list RulesListResponse
	json.Unmarshal(rec.Body.Bytes(), &list)
	if len(list.Rules) != 1 {
		t.Fatalf("listed %d rules, want 1", len(list.Rules))
	}

	// Evaluate a batch through the pipeline hook.
	rec = doJSON(t, server, http.MethodPost, "/api/v1/events/articles", ArticleBatchRequest{
		Articles: []*automation.Article{
			{GUID: "a1", Title: "Weekly Digest", FeedID: "f1"},
			{GUID: "a2", Title: "Breaking News", FeedID: "f1"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("article batch = %d: %s", rec.Code, rec.Body.String())
	}
	var batch ArticleBatchResponse
	json.Unmarshal(rec.Body.Bytes(), &batch)
	if len(batch.Articles) != 2 {
		t.Fatalf("batch returned %d articles, want 2", len(batch.Articles))
	}
	if !batch.Articles[0].Discarded || batch.Articles[1].Discarded {
		t.Errorf("batch evaluation wrong: %+v", batch.Articles)
	}

	// Update to a non-matching needle and delete.
	rec = doJSON(t, server, http.MethodPut, "/api/v1/rules/"+created.ID, SaveRuleRequest{
		Name:  "Discard sports",
		Event: automation.EventNewArticle,
		Conditions: []automation.Condition{
			{ID: "c1", Field: automation.CondTitleContains, Value: "sports"},
		},
		Actions: []automation.Action{{ID: "a1", Type: automation.ActionDiscard}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update rule = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, server, http.MethodDelete, "/api/v1/rules/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete rule = %d", rec.Code)
	}

	rec = doJSON(t, server, http.MethodGet, "/api/v1/rules/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get deleted rule = %d, want 404", rec.Code)
	}
}

// TestRuleValidationRejected verifies invalid rules are refused with a
// 400 and the problem named in the body.
func TestRuleValidationRejected(t *testing.T) {
	server, cleanup := newTestServer(t)
	defer cleanup()

	rec := doJSON(t, server, http.MethodPost, "/api/v1/rules", SaveRuleRequest{
		Name:  "Bad",
		Event: "no_such_event",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid rule = %d, want 400", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("no_such_event")) {
		t.Errorf("body should name the bad event: %s", rec.Body.String())
	}
}

// TestDefinitionsEndpoint verifies the catalog endpoint and its
// target-type filter.
func TestDefinitionsEndpoint(t *testing.T) {
	server, cleanup := newTestServer(t)
	defer cleanup()

	rec := doJSON(t, server, http.MethodGet, "/api/v1/definitions?targetType=feed", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("definitions = %d", rec.Code)
	}

	var defs DefinitionsResponse
	json.Unmarshal(rec.Body.Bytes(), &defs)
	if len(defs.Events) == 0 || len(defs.Conditions) == 0 || len(defs.Actions) == 0 {
		t.Fatalf("definitions incomplete: %+v", defs)
	}
	for _, action := range defs.Actions {
		if action.ID == automation.ActionDiscard {
			t.Error("article-only action should be filtered out for feed")
		}
	}
}

// TestSingleArticleEvent verifies the discrete event trigger persists
// a modified article.
func TestSingleArticleEvent(t *testing.T) {
	server, cleanup := newTestServer(t)
	defer cleanup()
	ctx := context.Background()

	if err := server.host.SaveFeed(ctx, &automation.Feed{ID: "f1", Title: "Blog", AddedAt: time.Now()}); err != nil {
		t.Fatalf("SaveFeed() failed: %v", err)
	}
	if err := server.host.SaveArticle(ctx, &automation.Article{
		GUID: "a1", Title: "Deep Dive", FeedID: "f1", PubDate: time.Now(),
	}); err != nil {
		t.Fatalf("SaveArticle() failed: %v", err)
	}

	rec := doJSON(t, server, http.MethodPost, "/api/v1/rules", SaveRuleRequest{
		Name:    "Favorite on read",
		Event:   automation.EventArticleRead,
		Actions: []automation.Action{{ID: "a1", Type: automation.ActionFavorite}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create rule = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, server, http.MethodPost, "/api/v1/events/article/a1", ArticleEventRequest{
		Event: automation.EventArticleRead,
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("article event = %d: %s", rec.Code, rec.Body.String())
	}

	article, err := server.host.GetArticle(ctx, "a1")
	if err != nil {
		t.Fatalf("GetArticle() failed: %v", err)
	}
	if !article.Favorite {
		t.Error("article should be persisted as favorite")
	}

	rec = doJSON(t, server, http.MethodPost, "/api/v1/events/article/missing", ArticleEventRequest{
		Event: automation.EventArticleRead,
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing article event = %d, want 404", rec.Code)
	}
}

// TestHealthEndpoint verifies the health body carries rule and counter
// state.
func TestHealthEndpoint(t *testing.T) {
	server, cleanup := newTestServer(t)
	defer cleanup()

	rec := doJSON(t, server, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health = %d: %s", rec.Code, rec.Body.String())
	}

	var health HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("status = %s, want healthy", health.Status)
	}
}
