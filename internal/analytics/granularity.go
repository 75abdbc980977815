package analytics

import (
	"fmt"
	"strings"
	"time"
)

// Granularity is the width of a time-series bucket.
type Granularity string

const (
	GranularityHour  Granularity = "hour"
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// ParseGranularity maps a request value to a Granularity. Anything
// unrecognized, including the empty string, is a day.
func ParseGranularity(s string) Granularity {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case GranularityHour, GranularityWeek, GranularityMonth:
		return g
	default:
		return GranularityDay
	}
}

// BucketKey labels the bucket containing t. Keys are computed in UTC and
// sort lexicographically in time order within one granularity. Weeks use
// the ISO 8601 week-numbering year, so 2024-12-30 is 2025-W01.
func (g Granularity) BucketKey(t time.Time) string {
	t = t.UTC()
	switch g {
	case GranularityHour:
		return t.Format("2006-01-02-15")
	case GranularityWeek:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case GranularityMonth:
		return t.Format("2006-01")
	default:
		return t.Format(dateOnly)
	}
}
