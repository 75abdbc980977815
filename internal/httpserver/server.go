package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/radiusdt/adpulse/internal/analytics"
	"github.com/radiusdt/adpulse/internal/config"
	"github.com/radiusdt/adpulse/internal/database"
	"github.com/radiusdt/adpulse/internal/geo"
	"github.com/radiusdt/adpulse/internal/metrics"
	"github.com/radiusdt/adpulse/internal/middleware"
	"github.com/radiusdt/adpulse/internal/models"
	"github.com/radiusdt/adpulse/internal/storage"
	"github.com/radiusdt/adpulse/internal/stream"
	"go.uber.org/zap"
)

const (
	campaignsPrefix = "/api/analytics/campaigns/"
	maxBodyBytes    = 1 << 20
)

// Dependencies holds all external dependencies for the server. Events and
// Campaigns, when set, take precedence over the database connections.
type Dependencies struct {
	DB         *database.PostgresDB
	Redis      *database.RedisDB
	ClickHouse *database.ClickHouseDB

	Events    storage.EventStore
	Campaigns storage.CampaignDirectory

	Locator   geo.Locator
	Publisher stream.Publisher

	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

// Server adapts HTTP requests to the analytics service.
type Server struct {
	analytics *analytics.Service
	checks    map[string]func(context.Context) error
	logger    *zap.Logger
}

// NewServer constructs a new http.Handler with all routes registered.
func NewServer(deps *Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	events := deps.Events
	if events == nil {
		if deps.ClickHouse != nil {
			events = storage.NewClickHouseEventStore(deps.ClickHouse.Conn, deps.Config.ClickHouse.Table, logger)
		} else {
			events = storage.NewInMemoryEventStore()
		}
	}

	campaigns := deps.Campaigns
	if campaigns == nil {
		if deps.DB != nil {
			campaigns = storage.NewPostgresCampaignDirectory(deps.DB.Pool)
		} else {
			campaigns = newMemoryDirectory(deps.Config.Database.Campaigns, logger)
		}
	}
	if deps.Redis != nil {
		campaigns = storage.NewCachedCampaignDirectory(
			campaigns,
			deps.Redis.Client,
			deps.Config.Analytics.CampaignCacheTTL,
			logger,
			deps.Metrics,
		)
	}

	svc := analytics.NewService(analytics.Dependencies{
		Events:    events,
		Campaigns: campaigns,
		Locator:   deps.Locator,
		Publisher: deps.Publisher,
		Config:    deps.Config.Analytics,
		Logger:    logger,
		Metrics:   deps.Metrics,
	})

	s := &Server{
		analytics: svc,
		checks:    make(map[string]func(context.Context) error),
		logger:    logger,
	}
	if deps.DB != nil {
		s.checks["postgres"] = deps.DB.Health
	}
	if deps.Redis != nil {
		s.checks["redis"] = deps.Redis.Health
	}
	if deps.ClickHouse != nil {
		s.checks["clickhouse"] = deps.ClickHouse.Health
	}

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Prometheus metrics
	if deps.Config.Metrics.Enabled {
		mux.Handle(deps.Config.Metrics.Path, metrics.Handler(deps.Gatherer))
	}

	// Analytics
	mux.HandleFunc("/api/analytics/overview", s.handleOverview)
	mux.HandleFunc(middleware.IngestPath, s.handleIngest)
	mux.HandleFunc(campaignsPrefix, s.handleCampaign)

	return mux
}

// newMemoryDirectory builds the campaign directory used without PostgreSQL.
func newMemoryDirectory(seeds []config.CampaignSeed, logger *zap.Logger) *storage.InMemoryCampaignDirectory {
	dir := storage.NewInMemoryCampaignDirectory()
	for _, seed := range seeds {
		name := seed.Name
		if name == "" {
			name = seed.ID
		}
		dir.Upsert(&models.Campaign{
			ID:      seed.ID,
			OwnerID: seed.Owner,
			Name:    name,
			Status:  models.CampaignActive,
		})
	}

	if len(seeds) == 0 {
		logger.Warn("in-memory campaign directory is empty, every campaign lookup will fail; set ADPULSE_DB_CAMPAIGNS or database.campaigns")
	} else {
		logger.Info("loaded campaigns into in-memory directory", zap.Int("campaigns", len(seeds)))
	}
	return dir
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	components := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			s.logger.Warn("health check failed", zap.String("component", name), zap.Error(err))
			components[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	s.jsonResponse(w, status, map[string]any{
		"success":    status == http.StatusOK,
		"status":     http.StatusText(status),
		"components": components,
	})
}

// ---- Analytics ----

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	req, ok := s.requester(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	tr, err := analytics.ParseTimeRange(q.Get("startDate"), q.Get("endDate"))
	if err != nil {
		s.serviceError(w, r, err)
		return
	}

	report, err := s.analytics.Overview(r.Context(), req, tr)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.success(w, http.StatusOK, report)
}

// handleCampaign serves /api/analytics/campaigns/{id} and
// /api/analytics/campaigns/{id}/simulate.
func (s *Server) handleCampaign(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, campaignsPrefix), "/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.campaignAnalytics(w, r, id)
	case action == "simulate" && r.Method == http.MethodPost:
		s.simulate(w, r, id)
	case action == "" || action == "simulate":
		s.errorResponse(w, "Method not allowed", http.StatusMethodNotAllowed)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) campaignAnalytics(w http.ResponseWriter, r *http.Request, campaignID string) {
	req, ok := s.requester(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	tr, err := analytics.ParseTimeRange(q.Get("startDate"), q.Get("endDate"))
	if err != nil {
		s.serviceError(w, r, err)
		return
	}

	report, err := s.analytics.CampaignAnalytics(r.Context(), req, campaignID, tr, analytics.ParseGranularity(q.Get("groupBy")))
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.success(w, http.StatusOK, report)
}

type simulateRequest struct {
	Days int `json:"days"`
}

func (s *Server) simulate(w http.ResponseWriter, r *http.Request, campaignID string) {
	req, ok := s.requester(w, r)
	if !ok {
		return
	}

	var body simulateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		s.errorResponse(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	result, err := s.analytics.Simulate(r.Context(), req, campaignID, body.Days)
	if err != nil {
		if result != nil && result.EventsCreated > 0 {
			s.logger.Error("simulation stopped early",
				zap.String("campaign_id", campaignID),
				zap.Int("events_created", result.EventsCreated),
				zap.Error(err),
			)
			s.jsonResponse(w, http.StatusInternalServerError, map[string]any{
				"success": false,
				"message": fmt.Sprintf("Stored %d simulated analytics events before failing", result.EventsCreated),
				"data":    result,
			})
			return
		}
		s.serviceError(w, r, err)
		return
	}

	s.jsonResponse(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Generated %d simulated analytics events", result.EventsCreated),
		"data":    result,
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	req, ok := s.requester(w, r)
	if !ok {
		return
	}

	var e models.Event
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&e); err != nil {
		s.errorResponse(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	stored, err := s.analytics.IngestEvent(r.Context(), req, e)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.success(w, http.StatusCreated, stored)
}

// ---- Helper Methods ----

func (s *Server) requester(w http.ResponseWriter, r *http.Request) (models.Requester, bool) {
	req, ok := middleware.RequesterFromContext(r.Context())
	if !ok {
		s.errorResponse(w, "Not authorized, no requester identity", http.StatusUnauthorized)
	}
	return req, ok
}

// serviceError maps an analytics error to its status. Store failures are
// logged and reported without detail.
func (s *Server) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, analytics.ErrNotFound):
		s.errorResponse(w, "Campaign not found", http.StatusNotFound)
	case errors.Is(err, analytics.ErrForbidden):
		s.errorResponse(w, "Not authorized to access this campaign", http.StatusForbidden)
	case errors.Is(err, analytics.ErrInvalidRange), errors.Is(err, analytics.ErrValidation):
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
	default:
		s.logger.Error("analytics request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		s.errorResponse(w, "Server error", http.StatusInternalServerError)
	}
}

func (s *Server) success(w http.ResponseWriter, status int, data any) {
	s.jsonResponse(w, status, map[string]any{"success": true, "data": data})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	s.jsonResponse(w, code, map[string]any{"success": false, "message": message})
}
