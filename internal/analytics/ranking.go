package analytics

import (
	"context"
	"sort"

	"github.com/radiusdt/adpulse/internal/models"
)

// DefaultTopCampaigns is the ranking size used when none is given.
const DefaultTopCampaigns = 5

// RankedCampaign is one row of a campaign ranking. Campaign is nil when the
// directory no longer knows the campaign.
type RankedCampaign struct {
	CampaignID string `json:"campaignId"`
	Funnel
	Campaign *models.CampaignLabel `json:"campaign"`
}

// TopCampaigns ranks the campaigns in scope by impressions, highest first,
// breaking ties by campaign id. The ranking covers all stored events.
func (e *Engine) TopCampaigns(ctx context.Context, scope Scope, limit int) ([]RankedCampaign, error) {
	if limit <= 0 {
		limit = DefaultTopCampaigns
	}

	events, err := e.find(ctx, scope, TimeRange{})
	if err != nil {
		return nil, err
	}

	groups := groupBy(events, func(ev *models.Event) string { return ev.CampaignID })

	ranked := make([]RankedCampaign, 0, len(groups))
	for id, group := range groups {
		ranked = append(ranked, RankedCampaign{CampaignID: id, Funnel: countFunnel(group)})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Impressions != ranked[j].Impressions {
			return ranked[i].Impressions > ranked[j].Impressions
		}
		return ranked[i].CampaignID < ranked[j].CampaignID
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	for i := range ranked {
		c, err := e.campaigns.FindByID(ctx, ranked[i].CampaignID)
		if err != nil {
			return nil, storeErr("enrich ranking", err)
		}
		if c != nil {
			ranked[i].Campaign = c.Label()
		}
	}
	return ranked, nil
}
