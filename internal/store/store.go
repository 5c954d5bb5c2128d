package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store aggregates repositories backed by PostgreSQL. Fields are interfaces
// so tests can plug in fakes.
type Store struct {
	pool *pgxpool.Pool

	Calendars   CalendarRepository
	Events      EventRepository
	Credentials CredentialRepository
}

// New wires concrete repository implementations with a shared connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:        pool,
		Calendars:   &calendarRepo{pool: pool},
		Events:      &eventRepo{pool: pool},
		Credentials: &credentialRepo{pool: pool},
	}
}

// HealthCheck verifies that the underlying database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	defer observeDB(ctx, "db.healthcheck")()
	return s.pool.Ping(ctx)
}
