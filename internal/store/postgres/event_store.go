package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtvlabs/marketledger/internal/domain"
)

// EventStore journals ledger events to PostgreSQL. The payload column holds
// the full event JSON so indexers can replay history without touching any
// other table.
type EventStore struct {
	pool *pgxpool.Pool
}

func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append writes one event. Events are immutable; an id collision is an error.
func (s *EventStore) Append(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("postgres: marshal event %s: %w", ev.ID, err)
	}

	const query = `
		INSERT INTO ledger_events (id, event_type, at, payload)
		VALUES ($1, $2, $3, $4)`

	if _, err := s.pool.Exec(ctx, query, ev.ID, string(ev.Type), ev.At, payload); err != nil {
		return fmt.Errorf("postgres: append event %s: %w", ev.ID, err)
	}
	return nil
}

// ListSince returns events recorded at or after since, oldest first, up to
// limit rows.
func (s *EventStore) ListSince(ctx context.Context, since time.Time, limit int) ([]domain.Event, error) {
	const query = `
		SELECT payload
		FROM ledger_events
		WHERE at >= $1
		ORDER BY at, id
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("postgres: list events: %w", err)
		}
		var ev domain.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("postgres: decode event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	return out, nil
}
