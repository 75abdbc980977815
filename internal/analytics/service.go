package analytics

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/radiusdt/adpulse/internal/config"
	"github.com/radiusdt/adpulse/internal/geo"
	"github.com/radiusdt/adpulse/internal/metrics"
	"github.com/radiusdt/adpulse/internal/models"
	"github.com/radiusdt/adpulse/internal/storage"
	"github.com/radiusdt/adpulse/internal/stream"
	"github.com/radiusdt/adpulse/internal/synthetic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CampaignReport is the full analytics view of one campaign.
type CampaignReport struct {
	Summary           AggregateStats    `json:"summary"`
	TimeSeries        []TimeSeriesPoint `json:"timeSeries"`
	DeviceBreakdown   []BreakdownRow    `json:"deviceBreakdown"`
	LocationBreakdown []BreakdownRow    `json:"locationBreakdown"`
}

// OverviewReport summarizes everything a requester can see.
type OverviewReport struct {
	Overview     AggregateStats   `json:"overview"`
	TopCampaigns []RankedCampaign `json:"topCampaigns"`
}

// SimulationResult reports how many synthetic events were stored.
type SimulationResult struct {
	EventsCreated int `json:"eventsCreated"`
	Days          int `json:"days"`
}

// Dependencies holds the collaborators of a Service. Locator and Publisher
// are optional.
type Dependencies struct {
	Events    storage.EventStore
	Campaigns storage.CampaignDirectory
	Generator *synthetic.Generator
	Locator   geo.Locator
	Publisher stream.Publisher
	Config    config.AnalyticsConfig
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

// Service exposes the analytics operations on behalf of a requester. Every
// operation resolves the requester's scope once and runs all of its queries
// against that scope.
type Service struct {
	engine    *Engine
	scopes    *ScopeResolver
	events    storage.EventStore
	generator *synthetic.Generator
	locator   geo.Locator
	publisher stream.Publisher
	cfg       config.AnalyticsConfig
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewService wires a Service from deps.
func NewService(deps Dependencies) *Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	generator := deps.Generator
	if generator == nil {
		generator = synthetic.NewGenerator(rand.New(rand.NewSource(now().UnixNano())), now)
	}

	return &Service{
		engine:    NewEngine(deps.Events, deps.Campaigns, deps.Config.LocationLimit),
		scopes:    NewScopeResolver(deps.Campaigns, deps.Metrics),
		events:    deps.Events,
		generator: generator,
		locator:   deps.Locator,
		publisher: deps.Publisher,
		cfg:       deps.Config,
		logger:    logger,
		metrics:   deps.Metrics,
		now:       now,
	}
}

// =============================================
// READ OPERATIONS
// =============================================

// CampaignAnalytics returns the summary, time series and breakdowns of one
// campaign. The four queries run concurrently; the first failure cancels the
// others and no partial report is returned.
func (s *Service) CampaignAnalytics(ctx context.Context, req models.Requester, campaignID string, r TimeRange, g Granularity) (report *CampaignReport, err error) {
	defer s.observe("campaign_analytics", time.Now(), &err)

	if err := r.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.authorize(ctx, req, campaignID); err != nil {
		return nil, err
	}

	target := Campaigns(campaignID)
	report = &CampaignReport{}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		stats, err := s.engine.Summarize(egCtx, target, r)
		report.Summary = stats
		return err
	})
	eg.Go(func() error {
		points, err := s.engine.TimeSeries(egCtx, target, r, g)
		report.TimeSeries = points
		return err
	})
	eg.Go(func() error {
		rows, err := s.engine.Breakdown(egCtx, target, r, DimensionDevice)
		report.DeviceBreakdown = rows
		return err
	})
	eg.Go(func() error {
		rows, err := s.engine.Breakdown(egCtx, target, r, DimensionCountry)
		report.LocationBreakdown = rows
		return err
	})

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return report, nil
}

// Overview returns the summary over every campaign the requester can see,
// plus the top campaigns by impressions.
func (s *Service) Overview(ctx context.Context, req models.Requester, r TimeRange) (report *OverviewReport, err error) {
	defer s.observe("overview", time.Now(), &err)

	if err := r.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	scope, err := s.scopes.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	report = &OverviewReport{}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		stats, err := s.engine.Summarize(egCtx, scope, r)
		report.Overview = stats
		return err
	})
	eg.Go(func() error {
		top, err := s.engine.TopCampaigns(egCtx, scope, s.cfg.TopCampaignsLimit)
		report.TopCampaigns = top
		return err
	})

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return report, nil
}

// =============================================
// WRITE OPERATIONS
// =============================================

// IngestEvent validates and stores one event for a campaign the requester
// can see. The stored event gets a fresh id; a missing timestamp means now.
func (s *Service) IngestEvent(ctx context.Context, req models.Requester, in models.Event) (stored *models.Event, err error) {
	defer s.observe("ingest_event", time.Now(), &err)

	e := in
	if err := e.Validate(); err != nil {
		return nil, validationErr("%v", err)
	}

	now := s.now().UTC()
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	e.Timestamp = e.Timestamp.UTC()
	if s.cfg.MaxClockSkew > 0 && e.Timestamp.After(now.Add(s.cfg.MaxClockSkew)) {
		return nil, validationErr("timestamp %s is in the future", e.Timestamp.Format(time.RFC3339))
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.authorize(ctx, req, e.CampaignID); err != nil {
		return nil, err
	}

	e.ID = uuid.NewString()
	if e.Metadata.Location != nil {
		loc := *e.Metadata.Location
		e.Metadata.Location = &loc
	}
	if _, err := geo.Enrich(s.locator, &e); err != nil {
		s.logger.Debug("geo enrichment skipped",
			zap.String("ip", e.Metadata.IPAddress),
			zap.Error(err),
		)
	}

	if _, err := s.events.InsertBatch(ctx, []*models.Event{&e}); err != nil {
		return nil, storeErr("insert event", err)
	}
	s.metrics.RecordIngest(string(e.Type))

	s.mirror(ctx, &e)
	return &e, nil
}

// Simulate generates and stores synthetic events for days days of a campaign
// the requester can see. Events are written in batches; if a batch fails the
// result still reports how many events were stored before it.
func (s *Service) Simulate(ctx context.Context, req models.Requester, campaignID string, days int) (result *SimulationResult, err error) {
	defer s.observe("simulate", time.Now(), &err)

	if days == 0 {
		days = s.cfg.DefaultSimulationDays
	}
	if days < 1 || days > s.cfg.MaxSimulationDays {
		return nil, validationErr("days must be between 1 and %d", s.cfg.MaxSimulationDays)
	}

	if _, err := s.authorize(ctx, req, campaignID); err != nil {
		return nil, err
	}

	events := s.generator.Generate(campaignID, days)
	result = &SimulationResult{Days: days}

	batchSize := s.cfg.InsertBatchSize
	if batchSize <= 0 {
		batchSize = len(events)
	}

	for start := 0; start < len(events); start += batchSize {
		end := start + batchSize
		if end > len(events) {
			end = len(events)
		}

		n, err := s.events.InsertBatch(ctx, events[start:end])
		s.recordSynthetic(events[start : start+n])
		result.EventsCreated += n
		if err != nil {
			s.logger.Error("synthetic insert failed",
				zap.String("campaign_id", campaignID),
				zap.Int("inserted", result.EventsCreated),
				zap.Int("total", len(events)),
				zap.Error(err),
			)
			return result, storeErr("insert synthetic events", err)
		}
	}

	s.logger.Info("generated synthetic events",
		zap.String("campaign_id", campaignID),
		zap.Int("events", result.EventsCreated),
		zap.Int("days", days),
	)
	return result, nil
}

// =============================================
// HELPERS
// =============================================

func (s *Service) authorize(ctx context.Context, req models.Requester, campaignID string) (*models.Campaign, error) {
	scope, err := s.scopes.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.scopes.Authorize(ctx, scope, campaignID)
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.QueryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.QueryTimeout)
}

func (s *Service) mirror(ctx context.Context, e *models.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.metrics.RecordStreamError()
		s.logger.Warn("failed to mirror event",
			zap.String("event_id", e.ID),
			zap.String("campaign_id", e.CampaignID),
			zap.Error(err),
		)
	}
}

func (s *Service) recordSynthetic(events []*models.Event) {
	if s.metrics == nil {
		return
	}
	counts := make(map[models.EventType]int)
	for _, e := range events {
		counts[e.Type]++
	}
	for t, n := range counts {
		s.metrics.RecordSynthetic(string(t), n)
	}
}

func (s *Service) observe(op string, start time.Time, errp *error) {
	err := *errp
	s.metrics.ObserveQuery(op, err, time.Since(start))
	if err != nil {
		s.metrics.RecordQueryError(op, ErrorKind(err))
	}
}
