package analytics

import (
	"fmt"
	"strings"
	"time"
)

// TimeRange bounds a query by event timestamp, inclusive on both ends. The
// zero value means no bounds.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// IsZero reports whether no bound is set.
func (r TimeRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Validate rejects ranges with a single bound and ranges that end before
// they start.
func (r TimeRange) Validate() error {
	if r.IsZero() {
		return nil
	}
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("%w: startDate and endDate must be given together", ErrInvalidRange)
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("%w: endDate %s is before startDate %s",
			ErrInvalidRange, r.End.Format(time.RFC3339), r.Start.Format(time.RFC3339))
	}
	return nil
}

const dateOnly = "2006-01-02"

// ParseTimeRange builds a range from the raw startDate and endDate values of
// a request. Both accept RFC 3339 or YYYY-MM-DD; a bare end date covers the
// whole day. Empty strings leave the bound unset.
func ParseTimeRange(start, end string) (TimeRange, error) {
	var r TimeRange
	var err error

	if start = strings.TrimSpace(start); start != "" {
		if r.Start, _, err = parseDate(start); err != nil {
			return TimeRange{}, fmt.Errorf("%w: startDate: %v", ErrInvalidRange, err)
		}
	}
	if end = strings.TrimSpace(end); end != "" {
		var bare bool
		if r.End, bare, err = parseDate(end); err != nil {
			return TimeRange{}, fmt.Errorf("%w: endDate: %v", ErrInvalidRange, err)
		}
		if bare {
			r.End = r.End.Add(24*time.Hour - time.Nanosecond)
		}
	}

	return r, r.Validate()
}

func parseDate(s string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), false, nil
	}
	t, err := time.Parse(dateOnly, s)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("unrecognized date %q", s)
	}
	return t, true, nil
}
