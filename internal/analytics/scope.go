package analytics

import (
	"context"
	"fmt"
	"sort"

	"github.com/radiusdt/adpulse/internal/metrics"
	"github.com/radiusdt/adpulse/internal/models"
	"github.com/radiusdt/adpulse/internal/storage"
)

// Scope is the set of campaigns a request may read. It is resolved once per
// request and every event query is filtered through it.
type Scope struct {
	all bool
	ids map[string]struct{}
}

// AllCampaigns returns the unrestricted scope.
func AllCampaigns() Scope {
	return Scope{all: true}
}

// Campaigns returns a scope limited to ids. With no ids it sees nothing.
func Campaigns(ids ...string) Scope {
	s := Scope{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}

// Unrestricted reports whether the scope covers every campaign.
func (s Scope) Unrestricted() bool {
	return s.all
}

// Contains reports whether campaignID is visible.
func (s Scope) Contains(campaignID string) bool {
	if s.all {
		return true
	}
	_, ok := s.ids[campaignID]
	return ok
}

// IDs returns the visible campaign ids in ascending order, or nil for the
// unrestricted scope.
func (s Scope) IDs() []string {
	if s.all {
		return nil
	}
	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Filter returns the event filter covering the scope within r.
func (s Scope) Filter(r TimeRange) storage.EventFilter {
	return storage.EventFilter{
		AllCampaigns: s.all,
		CampaignIDs:  s.IDs(),
		Start:        r.Start,
		End:          r.End,
	}
}

// ScopeResolver turns a requester into a Scope and checks campaign access.
type ScopeResolver struct {
	campaigns storage.CampaignDirectory
	metrics   *metrics.Metrics
}

// NewScopeResolver creates a resolver reading ownership from campaigns.
func NewScopeResolver(campaigns storage.CampaignDirectory, m *metrics.Metrics) *ScopeResolver {
	return &ScopeResolver{campaigns: campaigns, metrics: m}
}

// Resolve returns the scope of req. Admins see every campaign; everyone else
// sees exactly the campaigns they own, which may be none.
func (r *ScopeResolver) Resolve(ctx context.Context, req models.Requester) (Scope, error) {
	if req.IsAdmin() {
		r.metrics.RecordScopeResolution(string(models.RoleAdmin))
		return AllCampaigns(), nil
	}

	owned, err := r.campaigns.FindByOwner(ctx, req.ID)
	if err != nil {
		return Scope{}, storeErr("resolve scope", err)
	}

	ids := make([]string, 0, len(owned))
	for _, c := range owned {
		ids = append(ids, c.ID)
	}
	r.metrics.RecordScopeResolution("owner")
	return Campaigns(ids...), nil
}

// Authorize checks that campaignID is visible in scope and exists. A
// campaign outside a restricted scope is forbidden whether or not it exists.
func (r *ScopeResolver) Authorize(ctx context.Context, scope Scope, campaignID string) (*models.Campaign, error) {
	if !scope.Contains(campaignID) {
		r.metrics.RecordAccessDenial("out_of_scope")
		return nil, fmt.Errorf("%w: %s", ErrForbidden, campaignID)
	}

	c, err := r.campaigns.FindByID(ctx, campaignID)
	if err != nil {
		return nil, storeErr("find campaign", err)
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, campaignID)
	}
	return c, nil
}
