package analytics

import (
	"sort"

	"github.com/radiusdt/adpulse/internal/models"
)

// Dimension selects the event attribute a breakdown groups by.
type Dimension int

const (
	DimensionDevice Dimension = iota
	DimensionCountry
)

func (d Dimension) String() string {
	switch d {
	case DimensionDevice:
		return "device"
	case DimensionCountry:
		return "country"
	default:
		return "unknown"
	}
}

// label returns the value of the dimension for e, or UnknownDimension when
// the event does not carry it.
func (d Dimension) label(e *models.Event) string {
	var v string
	switch d {
	case DimensionDevice:
		v = string(e.Metadata.DeviceType)
	case DimensionCountry:
		v = e.Metadata.Country()
	}
	if v == "" {
		return models.UnknownDimension
	}
	return v
}

// groupBy partitions items by key, keeping input order inside each group.
func groupBy[T any, K comparable](items []T, key func(T) K) map[K][]T {
	groups := make(map[K][]T)
	for _, item := range items {
		k := key(item)
		groups[k] = append(groups[k], item)
	}
	return groups
}

// sortedKeys returns the keys of m in ascending order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Funnel counts the impression, click and conversion events of a group.
// Views are not part of it.
type Funnel struct {
	Impressions int64 `json:"impressions"`
	Clicks      int64 `json:"clicks"`
	Conversions int64 `json:"conversions"`
}

func countFunnel(events []*models.Event) Funnel {
	var f Funnel
	for _, e := range events {
		switch e.Type {
		case models.EventImpression:
			f.Impressions++
		case models.EventClick:
			f.Clicks++
		case models.EventConversion:
			f.Conversions++
		}
	}
	return f
}
