package analytics

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/radiusdt/adpulse/internal/config"
	"github.com/radiusdt/adpulse/internal/metrics"
	"github.com/radiusdt/adpulse/internal/models"
	"github.com/radiusdt/adpulse/internal/storage"
	"github.com/radiusdt/adpulse/internal/synthetic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	admin = models.Requester{ID: "root", Role: models.RoleAdmin}
	alice = models.Requester{ID: "alice", Role: "advertiser"}
	bob   = models.Requester{ID: "bob", Role: "advertiser"}
	carol = models.Requester{ID: "carol", Role: "advertiser"}
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, e *models.Event) error {
	return m.Called(ctx, e).Error(0)
}

func (m *MockPublisher) Close() error {
	return m.Called().Error(0)
}

type MockLocator struct {
	mock.Mock
}

func (m *MockLocator) Locate(ip string) (*models.Location, error) {
	args := m.Called(ip)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Location), args.Error(1)
}

func testConfig() config.AnalyticsConfig {
	return config.Default().Analytics
}

func fixedNow() time.Time { return baseTime }

type serviceFixture struct {
	svc     *Service
	store   *storage.InMemoryEventStore
	metrics *metrics.Metrics
}

func newServiceFixture(t *testing.T, mutate func(*Dependencies)) *serviceFixture {
	t.Helper()

	store := storage.NewInMemoryEventStore()
	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	deps := Dependencies{
		Events:    store,
		Campaigns: newDirectory(campaign("A", "alice"), campaign("B", "alice"), campaign("C", "bob")),
		Generator: synthetic.NewGenerator(rand.New(rand.NewSource(42)), fixedNow),
		Config:    testConfig(),
		Logger:    zap.NewNop(),
		Metrics:   m,
		Now:       fixedNow,
	}
	if mutate != nil {
		mutate(&deps)
	}
	return &serviceFixture{svc: NewService(deps), store: store, metrics: m}
}

func TestCampaignAnalytics_Report(t *testing.T) {
	f := newServiceFixture(t, nil)
	seedEvents(t, f.store,
		repeat(100, "A", models.EventImpression, device(models.DeviceMobile), country("France")),
		repeat(5, "A", models.EventClick, device(models.DeviceMobile), country("France")),
		repeat(1, "A", models.EventConversion, worth(50), country("UK")),
		repeat(7, "B", models.EventImpression),
	)

	report, err := f.svc.CampaignAnalytics(context.Background(), alice, "A", TimeRange{}, GranularityDay)
	require.NoError(t, err)

	assert.Equal(t, AggregateStats{
		Impressions: 100, Clicks: 5, Conversions: 1,
		CTR: 5, ConversionRate: 20, TotalValue: 50,
	}, report.Summary)
	require.Len(t, report.TimeSeries, 1)
	assert.Equal(t, "2024-03-01", report.TimeSeries[0].BucketKey)
	assert.Equal(t, []BreakdownRow{
		{DimensionValue: "mobile", Funnel: Funnel{Impressions: 100, Clicks: 5}},
		{DimensionValue: models.UnknownDimension, Funnel: Funnel{Conversions: 1}},
	}, report.DeviceBreakdown)
	assert.Equal(t, "France", report.LocationBreakdown[0].DimensionValue)
}

func TestCampaignAnalytics_AccessErrors(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.CampaignAnalytics(ctx, alice, "C", TimeRange{}, GranularityDay)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.CampaignAnalytics(ctx, carol, "A", TimeRange{}, GranularityDay)
	assert.ErrorIs(t, err, ErrForbidden, "owner without campaigns")

	_, err = f.svc.CampaignAnalytics(ctx, admin, "nope", TimeRange{}, GranularityDay)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.CampaignAnalytics(ctx, admin, "C", TimeRange{}, GranularityDay)
	assert.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.QueryErrors.WithLabelValues("campaign_analytics", "not_found")))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.QueryErrors.WithLabelValues("campaign_analytics", "forbidden")))
}

func TestCampaignAnalytics_InvalidRange(t *testing.T) {
	f := newServiceFixture(t, nil)

	_, err := f.svc.CampaignAnalytics(context.Background(), alice, "A", TimeRange{End: baseTime}, GranularityDay)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestCampaignAnalytics_StoreFailureReturnsNoReport(t *testing.T) {
	boom := errors.New("clickhouse unavailable")
	f := newServiceFixture(t, func(d *Dependencies) {
		d.Events = &failingEventStore{findErr: boom}
	})

	report, err := f.svc.CampaignAnalytics(context.Background(), alice, "A", TimeRange{}, GranularityDay)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, ErrStoreFailure)
	assert.ErrorIs(t, err, boom)
}

func TestOverview_ScopedByRequester(t *testing.T) {
	f := newServiceFixture(t, nil)
	seedEvents(t, f.store,
		repeat(10, "A", models.EventImpression),
		repeat(20, "B", models.EventImpression),
		repeat(40, "C", models.EventImpression),
		repeat(2, "C", models.EventClick),
	)
	ctx := context.Background()

	mine, err := f.svc.Overview(ctx, alice, TimeRange{})
	require.NoError(t, err)
	assert.EqualValues(t, 30, mine.Overview.Impressions)
	require.Len(t, mine.TopCampaigns, 2)
	assert.Equal(t, "B", mine.TopCampaigns[0].CampaignID)
	assert.Equal(t, "A", mine.TopCampaigns[1].CampaignID)

	all, err := f.svc.Overview(ctx, admin, TimeRange{})
	require.NoError(t, err)
	assert.EqualValues(t, 70, all.Overview.Impressions)
	assert.Equal(t, 2.86, all.Overview.CTR)
	assert.Equal(t, "C", all.TopCampaigns[0].CampaignID)

	nobody, err := f.svc.Overview(ctx, carol, TimeRange{})
	require.NoError(t, err)
	assert.Equal(t, AggregateStats{}, nobody.Overview)
	assert.Empty(t, nobody.TopCampaigns)
}

func TestOverview_RangeAppliesToSummaryOnly(t *testing.T) {
	f := newServiceFixture(t, nil)
	seedEvents(t, f.store,
		repeat(3, "A", models.EventImpression, at(baseTime)),
		repeat(5, "B", models.EventImpression, at(baseTime.Add(-72*time.Hour))),
	)

	r := TimeRange{Start: baseTime.Add(-time.Hour), End: baseTime.Add(time.Hour)}
	report, err := f.svc.Overview(context.Background(), alice, r)
	require.NoError(t, err)

	assert.EqualValues(t, 3, report.Overview.Impressions)
	require.Len(t, report.TopCampaigns, 2)
	assert.Equal(t, "B", report.TopCampaigns[0].CampaignID)
}

func TestIngestEvent_Stores(t *testing.T) {
	publisher := new(MockPublisher)
	publisher.On("Publish", mock.Anything, mock.AnythingOfType("*models.Event")).Return(nil)

	f := newServiceFixture(t, func(d *Dependencies) { d.Publisher = publisher })

	in := models.Event{
		ID:         "client-supplied",
		CampaignID: "A",
		Type:       models.EventClick,
		Metadata:   models.EventMetadata{DeviceType: models.DeviceTablet},
	}

	stored, err := f.svc.IngestEvent(context.Background(), alice, in)
	require.NoError(t, err)

	assert.NotEmpty(t, stored.ID)
	assert.NotEqual(t, "client-supplied", stored.ID)
	assert.Equal(t, baseTime, stored.Timestamp)
	assert.Equal(t, 1, f.store.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.EventsIngested.WithLabelValues("click")))
	publisher.AssertExpectations(t)
}

func TestIngestEvent_PublishFailureIsNotFatal(t *testing.T) {
	publisher := new(MockPublisher)
	publisher.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	f := newServiceFixture(t, func(d *Dependencies) { d.Publisher = publisher })

	_, err := f.svc.IngestEvent(context.Background(), alice, models.Event{CampaignID: "A", Type: models.EventImpression})
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.StreamPublishErr))
}

func TestIngestEvent_GeoEnrichment(t *testing.T) {
	locator := new(MockLocator)
	locator.On("Locate", "81.2.69.142").Return(&models.Location{Country: "United Kingdom", City: "London"}, nil)

	f := newServiceFixture(t, func(d *Dependencies) { d.Locator = locator })

	stored, err := f.svc.IngestEvent(context.Background(), alice, models.Event{
		CampaignID: "A",
		Type:       models.EventImpression,
		Metadata:   models.EventMetadata{IPAddress: "81.2.69.142"},
	})
	require.NoError(t, err)
	assert.Equal(t, "United Kingdom", stored.Metadata.Country())
	locator.AssertExpectations(t)
}

func TestIngestEvent_Rejections(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		req   models.Requester
		event models.Event
		want  error
	}{
		{"missing campaign", alice, models.Event{Type: models.EventClick}, ErrValidation},
		{"bad type", alice, models.Event{CampaignID: "A", Type: "hover"}, ErrValidation},
		{"bad device", alice, models.Event{CampaignID: "A", Type: models.EventClick,
			Metadata: models.EventMetadata{DeviceType: "watch"}}, ErrValidation},
		{"negative value", alice, models.Event{CampaignID: "A", Type: models.EventConversion, Value: -1}, ErrValidation},
		{"future timestamp", alice, models.Event{CampaignID: "A", Type: models.EventClick,
			Timestamp: baseTime.Add(time.Hour)}, ErrValidation},
		{"other owner", alice, models.Event{CampaignID: "C", Type: models.EventClick}, ErrForbidden},
		{"unknown campaign", admin, models.Event{CampaignID: "Z", Type: models.EventClick}, ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.IngestEvent(ctx, tt.req, tt.event)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Zero(t, f.store.Len())
}

func TestSimulate_DefaultDays(t *testing.T) {
	f := newServiceFixture(t, nil)

	result, err := f.svc.Simulate(context.Background(), alice, "A", 0)
	require.NoError(t, err)

	assert.Equal(t, 7, result.Days)
	assert.Equal(t, f.store.Len(), result.EventsCreated)
	assert.GreaterOrEqual(t, result.EventsCreated, 7*500)

	stats, err := f.svc.engine.Summarize(context.Background(), Campaigns("A"), TimeRange{})
	require.NoError(t, err)
	assert.EqualValues(t, result.EventsCreated, stats.Impressions+stats.Clicks+stats.Conversions)
	assert.Equal(t, float64(stats.Impressions),
		testutil.ToFloat64(f.metrics.SyntheticEvents.WithLabelValues("impression")))
}

func TestSimulate_Validation(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Simulate(ctx, alice, "A", -1)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Simulate(ctx, alice, "A", 91)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Simulate(ctx, alice, "C", 1)
	assert.ErrorIs(t, err, ErrForbidden)

	assert.Zero(t, f.store.Len())
}

func TestSimulate_PartialFailureReportsInsertedCount(t *testing.T) {
	boom := errors.New("disk full")
	store := &failingEventStore{insertErr: boom, insertCap: 250}

	f := newServiceFixture(t, func(d *Dependencies) {
		d.Events = store
		d.Config.InsertBatchSize = 100
	})

	result, err := f.svc.Simulate(context.Background(), alice, "A", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreFailure)
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, result)
	assert.Equal(t, 250, result.EventsCreated)
	assert.Equal(t, 1, result.Days)
}
