package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/radiusdt/adpulse/internal/models"
	"github.com/radiusdt/adpulse/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, groups ...[]*models.Event) *Engine {
	t.Helper()
	store := storage.NewInMemoryEventStore()
	seedEvents(t, store, groups...)
	return NewEngine(store, newDirectory(campaign("A", "u1"), campaign("B", "u1"), campaign("C", "u2")), 10)
}

func TestSummarize_Scenario(t *testing.T) {
	engine := newTestEngine(t,
		repeat(100, "A", models.EventImpression),
		repeat(5, "A", models.EventClick),
		repeat(1, "A", models.EventConversion, worth(50)),
	)

	stats, err := engine.Summarize(context.Background(), Campaigns("A"), TimeRange{})
	require.NoError(t, err)

	assert.Equal(t, AggregateStats{
		Impressions:    100,
		Clicks:         5,
		Conversions:    1,
		CTR:            5.00,
		ConversionRate: 20.00,
		TotalValue:     50,
	}, stats)
}

func TestSummarize_TotalValueOnlyFromConversions(t *testing.T) {
	engine := newTestEngine(t,
		repeat(3, "A", models.EventImpression, worth(7)),
		repeat(2, "A", models.EventClick, worth(11)),
		repeat(2, "A", models.EventConversion, worth(25.5)),
		repeat(4, "A", models.EventView, worth(3)),
	)

	stats, err := engine.Summarize(context.Background(), Campaigns("A"), TimeRange{})
	require.NoError(t, err)

	assert.Equal(t, 51.0, stats.TotalValue)
	assert.EqualValues(t, 4, stats.Views)
}

func TestSummarize_ZeroDenominators(t *testing.T) {
	engine := newTestEngine(t, repeat(2, "A", models.EventConversion))

	stats, err := engine.Summarize(context.Background(), Campaigns("A"), TimeRange{})
	require.NoError(t, err)

	assert.Zero(t, stats.CTR)
	assert.Zero(t, stats.ConversionRate)
	assert.EqualValues(t, 2, stats.Conversions)
}

func TestSummarize_InclusiveTimeRange(t *testing.T) {
	start := baseTime
	end := baseTime.Add(24 * time.Hour)

	engine := newTestEngine(t,
		repeat(1, "A", models.EventImpression, at(start)),
		repeat(1, "A", models.EventImpression, at(end)),
		repeat(1, "A", models.EventImpression, at(start.Add(-time.Nanosecond))),
		repeat(1, "A", models.EventImpression, at(end.Add(time.Nanosecond))),
	)

	stats, err := engine.Summarize(context.Background(), Campaigns("A"), TimeRange{Start: start, End: end})
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Impressions)
}

func TestSummarize_HalfOpenRange(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.Summarize(context.Background(), AllCampaigns(), TimeRange{Start: baseTime})
	assert.True(t, errors.Is(err, ErrInvalidRange))
}

func TestSummarize_ScopeFiltersEvents(t *testing.T) {
	engine := newTestEngine(t,
		repeat(10, "A", models.EventImpression),
		repeat(20, "B", models.EventImpression),
		repeat(40, "C", models.EventImpression),
	)
	ctx := context.Background()

	all, err := engine.Summarize(ctx, AllCampaigns(), TimeRange{})
	require.NoError(t, err)
	assert.EqualValues(t, 70, all.Impressions)

	owned, err := engine.Summarize(ctx, Campaigns("A", "B"), TimeRange{})
	require.NoError(t, err)
	assert.EqualValues(t, 30, owned.Impressions)

	none, err := engine.Summarize(ctx, Campaigns(), TimeRange{})
	require.NoError(t, err)
	assert.Equal(t, AggregateStats{}, none)
}

func TestTimeSeries_SortedZeroFilled(t *testing.T) {
	day1 := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)
	day3 := day2.Add(24 * time.Hour)

	engine := newTestEngine(t,
		repeat(3, "A", models.EventImpression, at(day3)),
		repeat(2, "A", models.EventImpression, at(day1)),
		repeat(1, "A", models.EventClick, at(day1)),
		repeat(1, "A", models.EventConversion, at(day2)),
		repeat(5, "A", models.EventView, at(day2)),
	)

	points, err := engine.TimeSeries(context.Background(), Campaigns("A"), TimeRange{}, GranularityDay)
	require.NoError(t, err)

	assert.Equal(t, []TimeSeriesPoint{
		{BucketKey: "2024-03-01", Funnel: Funnel{Impressions: 2, Clicks: 1}},
		{BucketKey: "2024-03-02", Funnel: Funnel{Conversions: 1}},
		{BucketKey: "2024-03-03", Funnel: Funnel{Impressions: 3}},
	}, points)
}

func TestTimeSeries_Granularities(t *testing.T) {
	engine := newTestEngine(t,
		repeat(1, "A", models.EventImpression, at(time.Date(2024, 12, 30, 1, 0, 0, 0, time.UTC))),
		repeat(1, "A", models.EventImpression, at(time.Date(2024, 12, 30, 2, 30, 0, 0, time.UTC))),
		repeat(1, "A", models.EventImpression, at(time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))),
	)
	ctx := context.Background()

	keys := func(g Granularity) []string {
		points, err := engine.TimeSeries(ctx, Campaigns("A"), TimeRange{}, g)
		require.NoError(t, err)
		out := make([]string, 0, len(points))
		for _, p := range points {
			out = append(out, p.BucketKey)
		}
		return out
	}

	assert.Equal(t, []string{"2024-12-30-01", "2024-12-30-02", "2025-01-02-00"}, keys(GranularityHour))
	assert.Equal(t, []string{"2024-12-30", "2025-01-02"}, keys(GranularityDay))
	assert.Equal(t, []string{"2025-W01"}, keys(GranularityWeek))
	assert.Equal(t, []string{"2024-12", "2025-01"}, keys(GranularityMonth))
}

func TestBreakdown_Device(t *testing.T) {
	engine := newTestEngine(t,
		repeat(4, "A", models.EventImpression, device(models.DeviceMobile)),
		repeat(1, "A", models.EventClick, device(models.DeviceMobile)),
		repeat(2, "A", models.EventImpression, device(models.DeviceDesktop)),
		repeat(3, "A", models.EventImpression),
		repeat(7, "A", models.EventView, device(models.DeviceTablet)),
	)

	rows, err := engine.Breakdown(context.Background(), Campaigns("A"), TimeRange{}, DimensionDevice)
	require.NoError(t, err)

	assert.Equal(t, []BreakdownRow{
		{DimensionValue: "desktop", Funnel: Funnel{Impressions: 2}},
		{DimensionValue: "mobile", Funnel: Funnel{Impressions: 4, Clicks: 1}},
		{DimensionValue: "tablet", Funnel: Funnel{}},
		{DimensionValue: models.UnknownDimension, Funnel: Funnel{Impressions: 3}},
	}, rows)
}

func TestBreakdown_LocationSortedAndCapped(t *testing.T) {
	var groups [][]*models.Event
	countries := []string{"C01", "C02", "C03", "C04", "C05", "C06", "C07", "C08", "C09", "C10", "C11", "C12"}
	for i, c := range countries {
		groups = append(groups, repeat(i+1, "A", models.EventImpression, country(c)))
	}
	groups = append(groups, repeat(12, "A", models.EventImpression))

	engine := newTestEngine(t, groups...)

	rows, err := engine.Breakdown(context.Background(), Campaigns("A"), TimeRange{}, DimensionCountry)
	require.NoError(t, err)
	require.Len(t, rows, 10)

	// C12 and unknown tie at 12; the label breaks the tie.
	assert.Equal(t, "C12", rows[0].DimensionValue)
	assert.Equal(t, models.UnknownDimension, rows[1].DimensionValue)
	assert.Equal(t, "C11", rows[2].DimensionValue)
	assert.Equal(t, "C04", rows[9].DimensionValue)
	for i := 1; i < len(rows); i++ {
		assert.GreaterOrEqual(t, rows[i-1].Impressions, rows[i].Impressions)
	}
}

func TestBreakdown_SumsMatchSummary(t *testing.T) {
	engine := newTestEngine(t,
		repeat(9, "A", models.EventImpression, device(models.DeviceMobile), country("France")),
		repeat(4, "A", models.EventImpression, device(models.DeviceDesktop)),
		repeat(3, "A", models.EventClick, country("UK")),
		repeat(2, "A", models.EventConversion, device(models.DeviceTablet), country("UK")),
	)
	ctx := context.Background()

	stats, err := engine.Summarize(ctx, Campaigns("A"), TimeRange{})
	require.NoError(t, err)

	for _, dim := range []Dimension{DimensionDevice, DimensionCountry} {
		rows, err := engine.Breakdown(ctx, Campaigns("A"), TimeRange{}, dim)
		require.NoError(t, err)

		var sum Funnel
		for _, r := range rows {
			sum.Impressions += r.Impressions
			sum.Clicks += r.Clicks
			sum.Conversions += r.Conversions
		}
		assert.Equal(t, Funnel{stats.Impressions, stats.Clicks, stats.Conversions}, sum, dim.String())
	}
}

type failingEventStore struct {
	findErr   error
	insertErr error
	insertCap int // events accepted before insertErr is returned
	inserted  int
}

func (s *failingEventStore) Find(ctx context.Context, _ storage.EventFilter) ([]*models.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, s.findErr
}

func (s *failingEventStore) InsertBatch(_ context.Context, events []*models.Event) (int, error) {
	if s.insertErr == nil || s.inserted+len(events) <= s.insertCap {
		s.inserted += len(events)
		return len(events), nil
	}
	n := s.insertCap - s.inserted
	s.inserted += n
	return n, s.insertErr
}

func TestEngine_StoreFailure(t *testing.T) {
	boom := errors.New("connection reset")
	engine := NewEngine(&failingEventStore{findErr: boom}, newDirectory(), 10)

	_, err := engine.Summarize(context.Background(), AllCampaigns(), TimeRange{})
	assert.ErrorIs(t, err, ErrStoreFailure)
	assert.ErrorIs(t, err, boom)
}
