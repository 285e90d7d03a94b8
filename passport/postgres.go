package passport

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Append(ctx context.Context, evt *Event) error {
	meta, _ := json.Marshal(evt.Metadata)
	if meta == nil {
		meta = []byte("{}")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO passport_events (id, entity_type, entity_id, reason, kind, message, metadata, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		evt.ID, evt.EntityType, evt.EntityID, evt.Reason, evt.Kind, evt.Message, meta, evt.Timestamp,
	)
	return err
}

func (s *PostgresStore) ListByEntity(ctx context.Context, entityType, entityID string) ([]Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, entity_type, entity_id, reason, kind, message, metadata, timestamp
		 FROM passport_events WHERE entity_type = $1 AND entity_id = $2 ORDER BY timestamp ASC`,
		entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, entity_type, entity_id, reason, kind, message, metadata, timestamp
		 FROM passport_events ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

type scannable interface {
	Next() bool
	Scan(dest ...interface{}) error
}

func scanEvents(rows scannable) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var evt Event
		var meta []byte
		if err := rows.Scan(&evt.ID, &evt.EntityType, &evt.EntityID, &evt.Reason, &evt.Kind, &evt.Message, &meta, &evt.Timestamp); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			json.Unmarshal(meta, &evt.Metadata)
		}
		events = append(events, evt)
	}
	return events, nil
}
