package dav

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/daybook-app/daybook/internal/auth"
	"github.com/daybook-app/daybook/internal/config"
	"github.com/daybook-app/daybook/internal/store"
)

type fakeCalendarRepo struct {
	calendars map[int64]*store.Calendar

	// last UpdateAppearance call, for assertions
	appearanceID    int64
	appearanceOrder *string
	appearanceColor *string
}

func (f *fakeCalendarRepo) GetByID(_ context.Context, id int64) (*store.Calendar, error) {
	return f.calendars[id], nil
}

func (f *fakeCalendarRepo) UpdateAppearance(_ context.Context, id int64, order, color *string) error {
	f.appearanceID = id
	f.appearanceOrder = order
	f.appearanceColor = color
	return nil
}

type fakeEventRepo struct {
	events map[int64]*store.Event
}

func (f *fakeEventRepo) GetByID(_ context.Context, id int64) (*store.Event, error) {
	return f.events[id], nil
}

func (f *fakeEventRepo) ListForCalendar(_ context.Context, calendarID int64) ([]store.Event, error) {
	var out []store.Event
	// Stable order by id so test assertions do not depend on map iteration.
	for id := int64(1); id <= 100; id++ {
		if ev, ok := f.events[id]; ok && ev.CalendarID == calendarID {
			out = append(out, *ev)
		}
	}
	return out, nil
}

var (
	testCreatedAt = time.Date(2025, 1, 10, 9, 30, 0, 0, time.UTC)
	testUpdatedAt = time.Date(2025, 1, 16, 11, 0, 0, 0, time.UTC)
)

func testCalendar() *store.Calendar {
	desc := "Personal schedule"
	return &store.Calendar{
		ID:          1,
		OwnerID:     7,
		Title:       "Personal",
		Description: &desc,
		CreatedAt:   testCreatedAt,
		UpdatedAt:   testUpdatedAt,
	}
}

func testEvent() *store.Event {
	return &store.Event{
		ID:         1,
		CalendarID: 1,
		Title:      "Test Event",
		StartTime:  time.Date(2025, 1, 16, 10, 0, 0, 0, time.UTC),
		EndTime:    time.Date(2025, 1, 16, 11, 0, 0, 0, time.UTC),
		CreatedAt:  testCreatedAt,
		UpdatedAt:  testUpdatedAt,
	}
}

func testCredential() *store.CaldavCredential {
	return &store.CaldavCredential{
		ID:         1,
		CalendarID: 1,
		Username:   "alice",
		Password:   "secret",
		CreatedAt:  testCreatedAt,
		UpdatedAt:  testUpdatedAt,
	}
}

func newTestHandler(events ...*store.Event) (*Handler, *fakeCalendarRepo) {
	cals := &fakeCalendarRepo{calendars: map[int64]*store.Calendar{1: testCalendar()}}
	evs := &fakeEventRepo{events: map[int64]*store.Event{}}
	for _, ev := range events {
		evs.events[ev.ID] = ev
	}
	cfg := &config.Config{Domain: "example.com", Realm: "Daybook"}
	st := &store.Store{Calendars: cals, Events: evs}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(cfg, st, logger), cals
}

// authedRequest builds a request carrying the calendar context the auth
// middleware would attach.
func authedRequest(method, target, body string) *http.Request {
	return authedRequestAs(testCalendar(), method, target, body)
}

func authedRequestAs(cal *store.Calendar, method, target, body string) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	cc := &auth.CalendarContext{Calendar: cal, Credential: testCredential()}
	return req.WithContext(auth.WithCalendar(req.Context(), cc))
}
