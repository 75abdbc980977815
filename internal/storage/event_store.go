package storage

import (
	"context"
	"sync"

	"github.com/radiusdt/adpulse/internal/models"
)

// InMemoryEventStore keeps events in memory. It is not durable and is meant
// for development and tests.
type InMemoryEventStore struct {
	mu     sync.RWMutex
	events []*models.Event

	// Index for faster campaign lookups
	byCampaign map[string][]int
}

// NewInMemoryEventStore creates a new in-memory event store.
func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{
		byCampaign: make(map[string][]int),
	}
}

// InsertBatch appends copies of the given events.
func (s *InMemoryEventStore) InsertBatch(ctx context.Context, events []*models.Event) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range events {
		if e == nil {
			continue
		}
		cp := copyEvent(e)
		s.byCampaign[cp.CampaignID] = append(s.byCampaign[cp.CampaignID], len(s.events))
		s.events = append(s.events, cp)
		n++
	}
	return n, nil
}

// Find returns copies of the events matching the filter in insertion order.
func (s *InMemoryEventStore) Find(ctx context.Context, filter EventFilter) ([]*models.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if filter.MatchesNothing() {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Event, 0)
	if filter.AllCampaigns {
		for _, e := range s.events {
			if filter.Match(e) {
				result = append(result, copyEvent(e))
			}
		}
		return result, nil
	}

	seen := make(map[string]struct{}, len(filter.CampaignIDs))
	for _, id := range filter.CampaignIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		for _, idx := range s.byCampaign[id] {
			if e := s.events[idx]; filter.Match(e) {
				result = append(result, copyEvent(e))
			}
		}
	}
	return result, nil
}

// Len returns the number of stored events.
func (s *InMemoryEventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// copyEvent returns a copy of e that shares no memory with it.
func copyEvent(e *models.Event) *models.Event {
	cp := *e
	if e.Metadata.Location != nil {
		loc := *e.Metadata.Location
		cp.Metadata.Location = &loc
	}
	return &cp
}
