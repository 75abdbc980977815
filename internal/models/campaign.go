package models

import (
	"time"
)

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
)

// Campaign is the advertiser-facing campaign record. Campaigns are managed
// elsewhere; analytics only reads them to decide visibility and to label
// ranking rows.
type Campaign struct {
	ID        string         `json:"id"`
	OwnerID   string         `json:"owner"`
	Name      string         `json:"name"`
	Status    CampaignStatus `json:"status"`
	Budget    float64        `json:"budget"`
	Spent     float64        `json:"spent"`
	Currency  string         `json:"currency"`
	StartDate time.Time      `json:"startDate"`
	EndDate   time.Time      `json:"endDate"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// CampaignLabel is the display subset of a campaign attached to rankings.
type CampaignLabel struct {
	Name   string         `json:"name"`
	Status CampaignStatus `json:"status"`
}

// Label returns the display fields of the campaign.
func (c *Campaign) Label() *CampaignLabel {
	return &CampaignLabel{Name: c.Name, Status: c.Status}
}
