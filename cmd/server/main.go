package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"

	"github.com/freed-reader/automations/automation"
	"github.com/freed-reader/automations/dispatch"
	"github.com/freed-reader/automations/internal/config"
	"github.com/freed-reader/automations/internal/logger"
	"github.com/freed-reader/automations/notifier"
	"github.com/freed-reader/automations/webhook"
)

type Server struct {
	db         *sql.DB
	engine     *automation.Engine
	dispatcher *dispatch.Dispatcher
	host       automation.HostStore
	hub        *notifier.Hub
	router     *chi.Mux
}

func NewServer(cfg config.Config) (*Server, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewServerWithDB(db, cfg), nil
}

// NewServerWithDB wires a server over an already-open connection.
func NewServerWithDB(db *sql.DB, cfg config.Config) *Server {
	hub := notifier.NewHub()
	host := automation.NewPostgresHostStore(db)

	registry := automation.NewRegistry()
	automation.RegisterBuiltins(registry, automation.BuiltinDeps{
		Host:      host,
		Notifier:  hub,
		Refresher: hub,
		Webhooks:  webhook.NewSender(cfg.WebhookTimeout),
	})

	engine := automation.NewEngine(registry, automation.NewPostgresRuleStore(db))
	dispatcher := dispatch.New(engine, host, hub, dispatch.Config{
		ScanInterval:     cfg.ScanInterval,
		ScanInitialDelay: cfg.ScanInitialDelay,
	})

	s := &Server{
		db:         db,
		engine:     engine,
		dispatcher: dispatcher,
		host:       host,
		hub:        hub,
	}
	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)
	r.Get("/api/v1/definitions", s.handleDefinitions)

	r.Route("/api/v1/rules", func(r chi.Router) {
		r.Get("/", s.handleListRules)
		r.Post("/", s.handleCreateRule)
		r.Get("/template", s.handleRuleTemplate)

		r.Route("/{ruleId}", func(r chi.Router) {
			r.Get("/", s.handleGetRule)
			r.Put("/", s.handleUpdateRule)
			r.Delete("/", s.handleDeleteRule)
		})
	})

	r.Route("/api/v1/events", func(r chi.Router) {
		r.Post("/articles", s.handleArticleBatch)
		r.Post("/article/{guid}", s.handleArticleEvent)
		r.Post("/feed/{feedId}", s.handleFeedEvent)
	})

	r.Post("/api/v1/scan", s.handleScan)
	r.Get("/ws", s.hub.ServeHTTP)

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	rules, err := s.engine.ListRules(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list rules", err)
		return
	}

	respondJSON(w, http.StatusOK, HealthResponse{
		Status:          "healthy",
		Rules:           len(rules),
		Evaluations:     logger.TotalEvaluations.Load(),
		RuleMatches:     logger.TotalRuleMatches.Load(),
		WebhookFailures: logger.TotalWebhookFailures.Load(),
		ScanErrors:      logger.TotalScanErrors.Load(),
	})
}

// handleDefinitions returns the registered definitions. With a
// targetType query parameter, conditions and actions are filtered to
// the ones a rule editor may offer for that type.
func (s *Server) handleDefinitions(w http.ResponseWriter, r *http.Request) {
	registry := s.engine.Registry()

	targetType := automation.TargetType(r.URL.Query().Get("targetType"))
	resp := DefinitionsResponse{Events: registry.Events()}
	if targetType != "" {
		resp.Conditions = registry.Conditions(targetType)
		resp.Actions = registry.Actions(targetType)
	} else {
		resp.Conditions = registry.AllConditions()
		resp.Actions = registry.AllActions()
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.engine.ListRules(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list rules", err)
		return
	}
	if rules == nil {
		rules = []*automation.Rule{}
	}
	respondJSON(w, http.StatusOK, RulesListResponse{Rules: rules})
}

func (s *Server) handleRuleTemplate(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, automation.NewRule())
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req SaveRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule := ruleFromRequest(req)
	if err := s.engine.AddRule(r.Context(), rule); err != nil {
		respondError(w, http.StatusBadRequest, "failed to add rule", err)
		return
	}

	respondJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.engine.GetRule(r.Context(), chi.URLParam(r, "ruleId"))
	if err != nil {
		respondError(w, http.StatusNotFound, "rule not found", err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var req SaveRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule := ruleFromRequest(req)
	rule.ID = chi.URLParam(r, "ruleId")

	if err := s.engine.UpdateRule(r.Context(), rule); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, automation.ErrRuleNotFound) {
			status = http.StatusNotFound
		}
		respondError(w, status, "failed to update rule", err)
		return
	}

	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteRule(r.Context(), chi.URLParam(r, "ruleId")); err != nil {
		respondError(w, http.StatusNotFound, "rule not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleArticleBatch is the pipeline hook: the host posts freshly
// fetched articles, gets the evaluated copies back, and persists the
// batch itself.
func (s *Server) handleArticleBatch(w http.ResponseWriter, r *http.Request) {
	var req ArticleBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	articles, err := s.dispatcher.ProcessNewArticles(r.Context(), req.Articles)
	if err != nil {
		// Failed targets kept their original values; the batch is still
		// usable, so report the error without failing the hook.
		logger.Error("article batch partially failed", "error", err)
	}

	respondJSON(w, http.StatusOK, ArticleBatchResponse{Articles: articles})
}

func (s *Server) handleArticleEvent(w http.ResponseWriter, r *http.Request) {
	var req ArticleEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Event == "" {
		respondError(w, http.StatusBadRequest, "event is required", nil)
		return
	}

	err := s.dispatcher.HandleArticleEvent(r.Context(), chi.URLParam(r, "guid"), req.Event)
	if errors.Is(err, automation.ErrArticleNotFound) {
		respondError(w, http.StatusNotFound, "article not found", err)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "event processing failed", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFeedEvent(w http.ResponseWriter, r *http.Request) {
	var req FeedEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Event == "" {
		respondError(w, http.StatusBadRequest, "event is required", nil)
		return
	}

	feedID := chi.URLParam(r, "feedId")

	var err error
	if req.Event == automation.EventFeedTagAdded {
		err = s.dispatcher.HandleFeedTagAdded(r.Context(), feedID, req.Tag)
	} else {
		var feed *automation.Feed
		feed, err = s.host.GetFeed(r.Context(), feedID)
		if err == nil {
			err = s.dispatcher.HandleFeedEvent(r.Context(), feed, req.Event, nil)
		}
	}

	if errors.Is(err, automation.ErrFeedNotFound) {
		respondError(w, http.StatusNotFound, "feed not found", err)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "event processing failed", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleScan triggers the scheduled scan immediately, outside its
// normal cadence.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if err := s.dispatcher.RunScheduledScan(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "scan failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func ruleFromRequest(req SaveRuleRequest) *automation.Rule {
	matchType := req.MatchType
	if matchType == "" {
		matchType = automation.MatchAll
	}
	return &automation.Rule{
		Name:       req.Name,
		Event:      req.Event,
		MatchType:  matchType,
		Conditions: req.Conditions,
		Actions:    req.Actions,
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}
	if level, err := logger.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	server, err := NewServer(cfg)
	if err != nil {
		logger.Fatal("failed to create server", "error", err)
	}
	defer server.db.Close()

	server.dispatcher.Start()
	defer server.dispatcher.Stop()

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	server.hub.Close()
	if err := logger.Shutdown(ctx); err != nil {
		logger.Error("logger shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
