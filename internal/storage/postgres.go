package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/radiusdt/adpulse/internal/models"
)

const campaignColumns = `id, owner_id, name, status, budget, spent, currency,
		start_date, end_date, created_at, updated_at`

// PostgresCampaignDirectory implements CampaignDirectory on the campaign
// management database.
type PostgresCampaignDirectory struct {
	pool *pgxpool.Pool
}

func NewPostgresCampaignDirectory(pool *pgxpool.Pool) *PostgresCampaignDirectory {
	return &PostgresCampaignDirectory{pool: pool}
}

func (r *PostgresCampaignDirectory) FindByID(ctx context.Context, id string) (*models.Campaign, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id)

	c, err := scanCampaign(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return c, nil
}

func (r *PostgresCampaignDirectory) FindByOwner(ctx context.Context, ownerID string) ([]*models.Campaign, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns WHERE owner_id = $1 ORDER BY id
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns by owner: %w", err)
	}
	defer rows.Close()

	var campaigns []*models.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate campaigns: %w", err)
	}

	return campaigns, nil
}

func scanCampaign(row pgx.Row) (*models.Campaign, error) {
	var c models.Campaign
	var currency *string

	if err := row.Scan(
		&c.ID, &c.OwnerID, &c.Name, &c.Status, &c.Budget, &c.Spent, &currency,
		&c.StartDate, &c.EndDate, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}

	c.Currency = "USD"
	if currency != nil && *currency != "" {
		c.Currency = *currency
	}
	return &c, nil
}
