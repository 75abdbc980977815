package storage

import (
	"context"
	"time"

	"github.com/radiusdt/adpulse/internal/models"
)

// =============================================
// EVENT STORE
// =============================================

// EventStore is the append-only event log the analytics engine reads from.
type EventStore interface {
	// Find returns every event matching the filter, in no particular order.
	Find(ctx context.Context, filter EventFilter) ([]*models.Event, error)

	// InsertBatch appends events and returns how many were written. On error
	// the returned count tells how many made it before the failure.
	InsertBatch(ctx context.Context, events []*models.Event) (int, error)
}

// EventFilter restricts which events a query sees. A filter that is neither
// AllCampaigns nor lists any campaign ID matches nothing.
type EventFilter struct {
	AllCampaigns bool
	CampaignIDs  []string
	Type         models.EventType // empty matches every type

	// Start and End are inclusive. Both zero means unbounded.
	Start time.Time
	End   time.Time
}

// MatchesNothing reports whether the filter can be answered without a query.
func (f EventFilter) MatchesNothing() bool {
	return !f.AllCampaigns && len(f.CampaignIDs) == 0
}

// Bounded reports whether a time window applies.
func (f EventFilter) Bounded() bool {
	return !f.Start.IsZero() && !f.End.IsZero()
}

// Match reports whether a single event passes the filter.
func (f EventFilter) Match(e *models.Event) bool {
	if !f.AllCampaigns {
		found := false
		for _, id := range f.CampaignIDs {
			if id == e.CampaignID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.Bounded() && (e.Timestamp.Before(f.Start) || e.Timestamp.After(f.End)) {
		return false
	}
	return true
}

// =============================================
// CAMPAIGN DIRECTORY
// =============================================

// CampaignDirectory looks up campaigns owned by the campaign management
// system. FindByID returns nil, nil when the campaign does not exist.
type CampaignDirectory interface {
	FindByID(ctx context.Context, id string) (*models.Campaign, error)
	FindByOwner(ctx context.Context, ownerID string) ([]*models.Campaign, error)
}
