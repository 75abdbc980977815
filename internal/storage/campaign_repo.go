package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/radiusdt/adpulse/internal/models"
)

// InMemoryCampaignDirectory is a simple in-memory implementation of
// CampaignDirectory. It stores campaigns in a map keyed by campaign ID and
// is intended for development and tests. Production deployments read
// campaigns from PostgreSQL.
type InMemoryCampaignDirectory struct {
	mu        sync.RWMutex
	campaigns map[string]*models.Campaign
}

// NewInMemoryCampaignDirectory creates a new empty in-memory directory.
func NewInMemoryCampaignDirectory() *InMemoryCampaignDirectory {
	return &InMemoryCampaignDirectory{
		campaigns: make(map[string]*models.Campaign),
	}
}

// FindByID returns the campaign with the given ID or nil if not found.
func (r *InMemoryCampaignDirectory) FindByID(ctx context.Context, id string) (*models.Campaign, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.campaigns[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

// FindByOwner returns every campaign owned by ownerID, ordered by ID.
func (r *InMemoryCampaignDirectory) FindByOwner(ctx context.Context, ownerID string) ([]*models.Campaign, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]*models.Campaign, 0)
	for _, c := range r.campaigns {
		if c.OwnerID == ownerID {
			cp := *c
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

// Upsert inserts or replaces the given campaign. It stores a shallow copy
// so later changes by the caller are not visible.
func (r *InMemoryCampaignDirectory) Upsert(c *models.Campaign) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.campaigns[c.ID] = &cp
}

// Delete removes a campaign. Events referring to it are kept.
func (r *InMemoryCampaignDirectory) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.campaigns, id)
}
