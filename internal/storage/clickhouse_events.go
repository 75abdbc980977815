package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/radiusdt/adpulse/internal/models"
	"go.uber.org/zap"
)

// ClickHouseEventStore implements EventStore on a ClickHouse MergeTree
// table. The table is append-only; nothing here updates or deletes rows.
type ClickHouseEventStore struct {
	conn   driver.Conn
	table  string
	logger *zap.Logger
}

// NewClickHouseEventStore creates a store writing to table.
func NewClickHouseEventStore(conn driver.Conn, table string, logger *zap.Logger) *ClickHouseEventStore {
	if table == "" {
		table = "ad_events"
	}
	return &ClickHouseEventStore{conn: conn, table: table, logger: logger}
}

// EnsureSchema creates the events table if it does not exist.
func (s *ClickHouseEventStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		event_id String,
		campaign_id String,
		creative_id String,
		event_type LowCardinality(String),
		timestamp DateTime64(3, 'UTC'),
		value Float64,
		device_type LowCardinality(String),
		browser LowCardinality(String),
		os LowCardinality(String),
		country LowCardinality(String),
		city String,
		referrer String,
		ip_address String
	) ENGINE = MergeTree
	PARTITION BY toYYYYMM(timestamp)
	ORDER BY (campaign_id, event_type, timestamp)
	`, s.table)

	if err := s.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create %s table: %w", s.table, err)
	}

	s.logger.Info("ClickHouse event schema ready", zap.String("table", s.table))
	return nil
}

// InsertBatch sends the events as one native batch. A batch is written
// completely or not at all.
func (s *ClickHouseEventStore) InsertBatch(ctx context.Context, events []*models.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO "+s.table)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare batch: %w", err)
	}

	appended := 0
	for _, e := range events {
		if e == nil {
			continue
		}
		var country, city string
		if loc := e.Metadata.Location; loc != nil {
			country, city = loc.Country, loc.City
		}

		if err := batch.Append(
			e.ID,
			e.CampaignID,
			e.CreativeID,
			string(e.Type),
			e.Timestamp.UTC(),
			e.Value,
			string(e.Metadata.DeviceType),
			e.Metadata.Browser,
			e.Metadata.OS,
			country,
			city,
			e.Metadata.Referrer,
			e.Metadata.IPAddress,
		); err != nil {
			_ = batch.Abort()
			return 0, fmt.Errorf("failed to append event to batch: %w", err)
		}
		appended++
	}

	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("failed to send batch: %w", err)
	}

	return appended, nil
}

// Find runs a filtered scan over the events table.
func (s *ClickHouseEventStore) Find(ctx context.Context, filter EventFilter) ([]*models.Event, error) {
	if filter.MatchesNothing() {
		return nil, nil
	}

	where, args := buildWhere(filter)
	query := fmt.Sprintf(`
		SELECT event_id, campaign_id, creative_id, event_type, timestamp, value,
			device_type, browser, os, country, city, referrer, ip_address
		FROM %s
		%s
	`, s.table, where)

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer func(rows driver.Rows) {
		if err := rows.Close(); err != nil {
			s.logger.Error("failed to close event rows", zap.Error(err))
		}
	}(rows)

	events := make([]*models.Event, 0)
	for rows.Next() {
		var (
			e                     models.Event
			eventType, deviceType string
			country, city         string
		)
		if err := rows.Scan(
			&e.ID, &e.CampaignID, &e.CreativeID, &eventType, &e.Timestamp, &e.Value,
			&deviceType, &e.Metadata.Browser, &e.Metadata.OS, &country, &city,
			&e.Metadata.Referrer, &e.Metadata.IPAddress,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		e.Type = models.EventType(eventType)
		e.Metadata.DeviceType = models.DeviceType(deviceType)
		if country != "" || city != "" {
			e.Metadata.Location = &models.Location{Country: country, City: city}
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}
	return events, nil
}

// buildWhere renders the filter with one positional placeholder per value.
func buildWhere(filter EventFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)

	if !filter.AllCampaigns {
		placeholders := make([]string, len(filter.CampaignIDs))
		for i, id := range filter.CampaignIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		clauses = append(clauses, "campaign_id IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.Type != "" {
		clauses = append(clauses, "event_type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Bounded() {
		clauses = append(clauses, "timestamp >= ? AND timestamp <= ?")
		args = append(args, filter.Start.UTC(), filter.End.UTC())
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}
