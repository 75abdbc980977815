// Package synthetic produces plausible demo traffic for a campaign.
package synthetic

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/radiusdt/adpulse/internal/models"
)

const day = 24 * time.Hour

// Funnel bounds. Clicks are a 2-5% share of impressions and conversions a
// 5-10% share of clicks; both round down.
const (
	minImpressions   = 500
	impressionSpread = 1000
	minClickShare    = 0.02
	clickShareSpread = 0.03
	minConvShare     = 0.05
	convShareSpread  = 0.05
	minConvValue     = 20
	convValueSpread  = 100
)

// Place is a country with one of its cities.
type Place struct {
	Country string
	City    string
}

// Places is the geography catalog synthetic events draw from.
var Places = []Place{
	{Country: "USA", City: "New York"},
	{Country: "UK", City: "London"},
	{Country: "Canada", City: "Toronto"},
	{Country: "Germany", City: "Berlin"},
	{Country: "France", City: "Paris"},
}

// Generator builds synthetic events. A Generator seeded with the same source
// and clock produces the same events, ids included. It is safe for
// concurrent use.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
	now func() time.Time
}

// NewGenerator creates a generator drawing from rnd. A nil now uses
// time.Now.
func NewGenerator(rnd *rand.Rand, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{rnd: rnd, now: now}
}

// Generate returns the events of days whole days ending now. Day d covers
// [now-(d+1)*24h, now-d*24h). Events are returned, not stored.
func (g *Generator) Generate(campaignID string, days int) []*models.Event {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().UTC()
	var events []*models.Event

	for d := 0; d < days; d++ {
		start := now.Add(-time.Duration(d+1) * day)

		impressions := minImpressions + g.rnd.Intn(impressionSpread)
		for i := 0; i < impressions; i++ {
			events = append(events, g.event(campaignID, models.EventImpression, start, 0))
		}

		clicks := int(float64(impressions) * (minClickShare + g.rnd.Float64()*clickShareSpread))
		for i := 0; i < clicks; i++ {
			events = append(events, g.event(campaignID, models.EventClick, start, 0))
		}

		conversions := int(float64(clicks) * (minConvShare + g.rnd.Float64()*convShareSpread))
		for i := 0; i < conversions; i++ {
			value := float64(minConvValue + g.rnd.Intn(convValueSpread))
			events = append(events, g.event(campaignID, models.EventConversion, start, value))
		}
	}
	return events
}

func (g *Generator) event(campaignID string, t models.EventType, dayStart time.Time, value float64) *models.Event {
	place := Places[g.rnd.Intn(len(Places))]
	return &models.Event{
		ID:         uuid.Must(uuid.NewRandomFromReader(g.rnd)).String(),
		CampaignID: campaignID,
		Type:       t,
		Timestamp:  dayStart.Add(time.Duration(g.rnd.Int63n(int64(day)))),
		Value:      value,
		Metadata: models.EventMetadata{
			DeviceType: models.DeviceTypes[g.rnd.Intn(len(models.DeviceTypes))],
			Location:   &models.Location{Country: place.Country, City: place.City},
		},
	}
}
