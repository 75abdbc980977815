package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/radiusdt/adpulse/internal/metrics"
	"github.com/radiusdt/adpulse/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// campaignCache is the part of *redis.Client the cache uses.
type campaignCache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// CachedCampaignDirectory decorates a CampaignDirectory with a Redis
// read-through cache for FindByID. Only campaigns that exist are cached, so a
// newly created campaign is visible as soon as the directory has it.
// FindByOwner is never cached: it decides what a requester may see and must
// reflect the directory as it is now.
type CachedCampaignDirectory struct {
	next    CampaignDirectory
	client  campaignCache
	ttl     time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewCachedCampaignDirectory wraps next with a cache stored in client.
func NewCachedCampaignDirectory(next CampaignDirectory, client *redis.Client, ttl time.Duration, logger *zap.Logger, m *metrics.Metrics) *CachedCampaignDirectory {
	return newCachedCampaignDirectory(next, client, ttl, logger, m)
}

func newCachedCampaignDirectory(next CampaignDirectory, client campaignCache, ttl time.Duration, logger *zap.Logger, m *metrics.Metrics) *CachedCampaignDirectory {
	return &CachedCampaignDirectory{
		next:    next,
		client:  client,
		ttl:     ttl,
		logger:  logger,
		metrics: m,
	}
}

// FindByID serves the campaign from Redis when present and falls back to
// the wrapped directory otherwise. Redis failures degrade to a direct
// lookup; only errors of the wrapped directory are returned.
func (d *CachedCampaignDirectory) FindByID(ctx context.Context, id string) (*models.Campaign, error) {
	key := cacheKey(id)

	raw, err := d.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		d.record("hit")
		var c models.Campaign
		if err := json.Unmarshal([]byte(raw), &c); err == nil {
			return &c, nil
		}
		d.logger.Warn("dropping undecodable cached campaign", zap.String("campaign_id", id))
	case errors.Is(err, redis.Nil):
		d.record("miss")
	default:
		d.record("error")
		d.logger.Warn("campaign cache read failed", zap.String("campaign_id", id), zap.Error(err))
	}

	c, err := d.next.FindByID(ctx, id)
	if err != nil || c == nil {
		return c, err
	}

	data, err := json.Marshal(c)
	if err != nil {
		return c, nil
	}
	if err := d.client.Set(ctx, key, string(data), d.ttl).Err(); err != nil {
		d.logger.Warn("campaign cache write failed", zap.String("campaign_id", id), zap.Error(err))
	}
	return c, nil
}

// FindByOwner always goes to the wrapped directory.
func (d *CachedCampaignDirectory) FindByOwner(ctx context.Context, ownerID string) ([]*models.Campaign, error) {
	return d.next.FindByOwner(ctx, ownerID)
}

func (d *CachedCampaignDirectory) record(result string) {
	d.metrics.RecordCacheResult(result)
}

func cacheKey(id string) string {
	return fmt.Sprintf("analytics:campaign:%s", id)
}
