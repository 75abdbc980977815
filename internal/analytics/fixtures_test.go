package analytics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/radiusdt/adpulse/internal/models"
	"github.com/radiusdt/adpulse/internal/storage"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type eventOpt func(*models.Event)

func at(ts time.Time) eventOpt {
	return func(e *models.Event) { e.Timestamp = ts }
}

func device(d models.DeviceType) eventOpt {
	return func(e *models.Event) { e.Metadata.DeviceType = d }
}

func country(c string) eventOpt {
	return func(e *models.Event) { e.Metadata.Location = &models.Location{Country: c} }
}

func worth(v float64) eventOpt {
	return func(e *models.Event) { e.Value = v }
}

var seq int

func newEvent(campaignID string, t models.EventType, opts ...eventOpt) *models.Event {
	seq++
	e := &models.Event{
		ID:         fmt.Sprintf("evt-%d", seq),
		CampaignID: campaignID,
		Type:       t,
		Timestamp:  baseTime,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func repeat(n int, campaignID string, t models.EventType, opts ...eventOpt) []*models.Event {
	events := make([]*models.Event, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, newEvent(campaignID, t, opts...))
	}
	return events
}

func seedEvents(t *testing.T, store *storage.InMemoryEventStore, groups ...[]*models.Event) {
	t.Helper()
	for _, g := range groups {
		_, err := store.InsertBatch(context.Background(), g)
		require.NoError(t, err)
	}
}

func newDirectory(campaigns ...*models.Campaign) *storage.InMemoryCampaignDirectory {
	dir := storage.NewInMemoryCampaignDirectory()
	for _, c := range campaigns {
		dir.Upsert(c)
	}
	return dir
}

func campaign(id, owner string) *models.Campaign {
	return &models.Campaign{
		ID:      id,
		OwnerID: owner,
		Name:    "Campaign " + id,
		Status:  models.CampaignActive,
	}
}
