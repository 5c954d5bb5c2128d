package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const calendarColumns = `id, owner_id, title, description, color, calendar_order, created_at, updated_at`

type calendarRepo struct {
	pool *pgxpool.Pool
}

func (r *calendarRepo) GetByID(ctx context.Context, id int64) (*Calendar, error) {
	defer observeDB(ctx, "calendars.get_by_id")()
	row := r.pool.QueryRow(ctx, `SELECT `+calendarColumns+` FROM calendars WHERE id = $1`, id)
	return scanCalendar(row)
}

func (r *calendarRepo) UpdateAppearance(ctx context.Context, id int64, order, color *string) error {
	defer observeDB(ctx, "calendars.update_appearance")()
	tag, err := r.pool.Exec(ctx, `
		UPDATE calendars
		SET calendar_order = COALESCE($2, calendar_order),
		    color = COALESCE($3, color),
		    updated_at = now()
		WHERE id = $1`, id, order, color)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCalendar(row pgx.Row) (*Calendar, error) {
	var c Calendar
	err := row.Scan(&c.ID, &c.OwnerID, &c.Title, &c.Description, &c.Color, &c.Order, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

const eventColumns = `id, calendar_id, title, description, location, color, start_time, end_time, created_at, updated_at`

type eventRepo struct {
	pool *pgxpool.Pool
}

func (r *eventRepo) GetByID(ctx context.Context, id int64) (*Event, error) {
	defer observeDB(ctx, "events.get_by_id")()
	row := r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	return scanEvent(row)
}

func (r *eventRepo) ListForCalendar(ctx context.Context, calendarID int64) ([]Event, error) {
	defer observeDB(ctx, "events.list_for_calendar")()
	rows, err := r.pool.Query(ctx, `SELECT `+eventColumns+` FROM events WHERE calendar_id = $1 ORDER BY start_time, id`, calendarID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.CalendarID, &e.Title, &e.Description, &e.Location, &e.Color,
			&e.StartTime, &e.EndTime, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanEvent(row pgx.Row) (*Event, error) {
	var e Event
	err := row.Scan(&e.ID, &e.CalendarID, &e.Title, &e.Description, &e.Location, &e.Color,
		&e.StartTime, &e.EndTime, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

const credentialColumns = `id, calendar_id, username, password, created_at, updated_at`

type credentialRepo struct {
	pool *pgxpool.Pool
}

func (r *credentialRepo) GetByCalendar(ctx context.Context, calendarID int64) (*CaldavCredential, error) {
	defer observeDB(ctx, "caldav_credentials.get_by_calendar")()
	row := r.pool.QueryRow(ctx, `SELECT `+credentialColumns+` FROM caldav_credentials WHERE calendar_id = $1`, calendarID)
	return scanCredential(row)
}

func (r *credentialRepo) GetByUsername(ctx context.Context, username string) (*CaldavCredential, error) {
	defer observeDB(ctx, "caldav_credentials.get_by_username")()
	row := r.pool.QueryRow(ctx, `SELECT `+credentialColumns+` FROM caldav_credentials WHERE username = $1`, username)
	return scanCredential(row)
}

func scanCredential(row pgx.Row) (*CaldavCredential, error) {
	var c CaldavCredential
	err := row.Scan(&c.ID, &c.CalendarID, &c.Username, &c.Password, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
