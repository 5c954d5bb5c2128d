package store

import "time"

// Calendar is owned by the main application; the CalDAV layer reads it and
// only ever writes the Apple appearance properties via PROPPATCH.
type Calendar struct {
	ID          int64
	OwnerID     int64
	Title       string
	Description *string
	Color       *string
	Order       *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Event is a single VEVENT under a calendar. Times are UTC instants; the
// end-after-start invariant is enforced where events are written, not here.
type Event struct {
	ID          int64
	CalendarID  int64
	Title       string
	Description *string
	Location    *string
	Color       *string
	StartTime   time.Time
	EndTime     time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CaldavCredential is the per-calendar username/password pair used for HTTP
// Basic auth. Password may be stored plain or as a bcrypt hash; the auth
// service handles both.
type CaldavCredential struct {
	ID         int64
	CalendarID int64
	Username   string
	Password   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
