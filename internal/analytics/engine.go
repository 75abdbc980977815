package analytics

import (
	"context"
	"sort"

	"github.com/radiusdt/adpulse/internal/models"
	"github.com/radiusdt/adpulse/internal/storage"
)

// AggregateStats summarizes the events of a campaign or scope.
type AggregateStats struct {
	Impressions    int64   `json:"impressions"`
	Clicks         int64   `json:"clicks"`
	Conversions    int64   `json:"conversions"`
	Views          int64   `json:"views"`
	CTR            float64 `json:"ctr"`
	ConversionRate float64 `json:"conversionRate"`
	TotalValue     float64 `json:"totalValue"`
}

// TimeSeriesPoint is one bucket of a time series.
type TimeSeriesPoint struct {
	BucketKey string `json:"bucketKey"`
	Funnel
}

// BreakdownRow is one group of a device or location breakdown.
type BreakdownRow struct {
	DimensionValue string `json:"dimensionValue"`
	Funnel
}

// Engine computes aggregates over the event store. It never checks access;
// callers pass a Scope that has already been resolved and authorized.
type Engine struct {
	events        storage.EventStore
	campaigns     storage.CampaignDirectory
	locationLimit int
}

// NewEngine creates an engine. locationLimit caps location breakdowns and
// defaults to 10.
func NewEngine(events storage.EventStore, campaigns storage.CampaignDirectory, locationLimit int) *Engine {
	if locationLimit <= 0 {
		locationLimit = 10
	}
	return &Engine{
		events:        events,
		campaigns:     campaigns,
		locationLimit: locationLimit,
	}
}

func (e *Engine) find(ctx context.Context, scope Scope, r TimeRange) ([]*models.Event, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	events, err := e.events.Find(ctx, scope.Filter(r))
	if err != nil {
		return nil, storeErr("find events", err)
	}
	return events, nil
}

// Summarize returns the summary statistics of the events in scope and r.
// TotalValue sums the value of conversions only.
func (e *Engine) Summarize(ctx context.Context, scope Scope, r TimeRange) (AggregateStats, error) {
	events, err := e.find(ctx, scope, r)
	if err != nil {
		return AggregateStats{}, err
	}

	var stats AggregateStats
	for t, group := range groupBy(events, func(ev *models.Event) models.EventType { return ev.Type }) {
		n := int64(len(group))
		switch t {
		case models.EventImpression:
			stats.Impressions = n
		case models.EventClick:
			stats.Clicks = n
		case models.EventConversion:
			stats.Conversions = n
			for _, ev := range group {
				stats.TotalValue += ev.Value
			}
		case models.EventView:
			stats.Views = n
		}
	}

	stats.CTR = CTR(stats.Impressions, stats.Clicks)
	stats.ConversionRate = ConversionRate(stats.Clicks, stats.Conversions)
	return stats, nil
}

// TimeSeries returns one point per bucket holding at least one event, in
// ascending bucket order.
func (e *Engine) TimeSeries(ctx context.Context, scope Scope, r TimeRange, g Granularity) ([]TimeSeriesPoint, error) {
	events, err := e.find(ctx, scope, r)
	if err != nil {
		return nil, err
	}

	buckets := groupBy(events, func(ev *models.Event) string { return g.BucketKey(ev.Timestamp) })

	points := make([]TimeSeriesPoint, 0, len(buckets))
	for _, key := range sortedKeys(buckets) {
		points = append(points, TimeSeriesPoint{
			BucketKey: key,
			Funnel:    countFunnel(buckets[key]),
		})
	}
	return points, nil
}

// Breakdown groups the events by dim. Device rows come back in label order.
// Country rows are ordered by impressions, highest first, and capped at the
// engine's location limit.
func (e *Engine) Breakdown(ctx context.Context, scope Scope, r TimeRange, dim Dimension) ([]BreakdownRow, error) {
	events, err := e.find(ctx, scope, r)
	if err != nil {
		return nil, err
	}

	groups := groupBy(events, dim.label)

	rows := make([]BreakdownRow, 0, len(groups))
	for _, key := range sortedKeys(groups) {
		rows = append(rows, BreakdownRow{
			DimensionValue: key,
			Funnel:         countFunnel(groups[key]),
		})
	}

	if dim == DimensionCountry {
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].Impressions > rows[j].Impressions
		})
		if len(rows) > e.locationLimit {
			rows = rows[:e.locationLimit]
		}
	}
	return rows, nil
}
