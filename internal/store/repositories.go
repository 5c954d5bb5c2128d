package store

import "context"

// CalendarRepository reads calendars and persists PROPPATCH appearance
// updates. Lookups return (nil, nil) when no row exists.
type CalendarRepository interface {
	GetByID(ctx context.Context, id int64) (*Calendar, error)
	UpdateAppearance(ctx context.Context, id int64, order, color *string) error
}

// EventRepository reads events for the CalDAV layer.
type EventRepository interface {
	GetByID(ctx context.Context, id int64) (*Event, error)
	ListForCalendar(ctx context.Context, calendarID int64) ([]Event, error)
}

// CredentialRepository resolves CalDAV Basic-auth credentials either by the
// username presented by the client or by the calendar id embedded in the
// request path.
type CredentialRepository interface {
	GetByCalendar(ctx context.Context, calendarID int64) (*CaldavCredential, error)
	GetByUsername(ctx context.Context, username string) (*CaldavCredential, error)
}
