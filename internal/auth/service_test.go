package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/daybook-app/daybook/internal/config"
	"github.com/daybook-app/daybook/internal/store"
)

type fakeCalendarRepo struct {
	calendars map[int64]*store.Calendar
}

func (f *fakeCalendarRepo) GetByID(_ context.Context, id int64) (*store.Calendar, error) {
	return f.calendars[id], nil
}

func (f *fakeCalendarRepo) UpdateAppearance(context.Context, int64, *string, *string) error {
	return nil
}

type fakeCredentialRepo struct {
	byUsername map[string]*store.CaldavCredential
	byCalendar map[int64]*store.CaldavCredential
}

func (f *fakeCredentialRepo) GetByUsername(_ context.Context, username string) (*store.CaldavCredential, error) {
	return f.byUsername[username], nil
}

func (f *fakeCredentialRepo) GetByCalendar(_ context.Context, calendarID int64) (*store.CaldavCredential, error) {
	return f.byCalendar[calendarID], nil
}

func newTestService(creds *fakeCredentialRepo) *Service {
	now := time.Date(2025, 1, 10, 9, 30, 0, 0, time.UTC)
	cals := &fakeCalendarRepo{calendars: map[int64]*store.Calendar{
		1: {ID: 1, OwnerID: 7, Title: "Personal", CreatedAt: now, UpdatedAt: now},
	}}
	cfg := &config.Config{Realm: "Daybook", Domain: "example.com"}
	st := &store.Store{Calendars: cals, Credentials: creds}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(cfg, st, logger)
}

func plainCredential() *store.CaldavCredential {
	return &store.CaldavCredential{ID: 1, CalendarID: 1, Username: "alice", Password: "secret"}
}

// next records whether the wrapped handler ran and what context it saw.
type nextRecorder struct {
	called bool
	cc     *CalendarContext
}

func (n *nextRecorder) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n.called = true
		n.cc, _ = CalendarFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireCalDAVAuthMissingCredentials(t *testing.T) {
	svc := newTestService(&fakeCredentialRepo{})
	next := &nextRecorder{}

	rec := httptest.NewRecorder()
	svc.RequireCalDAVAuth(next.handler()).ServeHTTP(rec, httptest.NewRequest("PROPFIND", "/caldav/calendars/1/", nil))

	if next.called {
		t.Fatal("handler must not run without credentials")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if got := rec.Header().Get("WWW-Authenticate"); !strings.Contains(got, `Basic realm="Daybook"`) {
		t.Errorf("WWW-Authenticate = %q", got)
	}
	if !strings.Contains(rec.Body.String(), `<error xmlns="DAV:">`) {
		t.Errorf("challenge body should be a DAV error document:\n%s", rec.Body.String())
	}
}

func TestRequireCalDAVAuthWrongPassword(t *testing.T) {
	svc := newTestService(&fakeCredentialRepo{
		byUsername: map[string]*store.CaldavCredential{"alice": plainCredential()},
	})
	next := &nextRecorder{}

	req := httptest.NewRequest("PROPFIND", "/caldav/calendars/1/", nil)
	req.SetBasicAuth("alice", "wrong")
	rec := httptest.NewRecorder()
	svc.RequireCalDAVAuth(next.handler()).ServeHTTP(rec, req)

	if next.called {
		t.Fatal("handler must not run with a bad password")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireCalDAVAuthByUsername(t *testing.T) {
	svc := newTestService(&fakeCredentialRepo{
		byUsername: map[string]*store.CaldavCredential{"alice": plainCredential()},
	})
	next := &nextRecorder{}

	// Principal discovery happens before the client knows a calendar id,
	// so username-only resolution must work on the service root.
	req := httptest.NewRequest("PROPFIND", "/caldav/", nil)
	req.SetBasicAuth("alice", "secret")
	rec := httptest.NewRecorder()
	svc.RequireCalDAVAuth(next.handler()).ServeHTTP(rec, req)

	if !next.called {
		t.Fatalf("handler did not run; status = %d", rec.Code)
	}
	if next.cc == nil || next.cc.Calendar == nil || next.cc.Calendar.ID != 1 {
		t.Errorf("calendar context not attached: %+v", next.cc)
	}
}

func TestRequireCalDAVAuthByCalendarPath(t *testing.T) {
	// The credential is only findable through the path calendar id, but
	// the presented username must still match it.
	svc := newTestService(&fakeCredentialRepo{
		byCalendar: map[int64]*store.CaldavCredential{1: plainCredential()},
	})

	tests := []struct {
		name     string
		username string
		wantNext bool
	}{
		{"matching username", "alice", true},
		{"mismatched username", "mallory", false},
	}
	for _, tc := range tests {
		next := &nextRecorder{}
		req := httptest.NewRequest("PROPFIND", "/caldav/calendars/1/", nil)
		req.SetBasicAuth(tc.username, "secret")
		rec := httptest.NewRecorder()
		svc.RequireCalDAVAuth(next.handler()).ServeHTTP(rec, req)

		if next.called != tc.wantNext {
			t.Errorf("%s: handler called = %v, want %v (status %d)", tc.name, next.called, tc.wantNext, rec.Code)
		}
	}
}

func TestRequireCalDAVAuthBcryptPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	cred := plainCredential()
	cred.Password = string(hash)
	svc := newTestService(&fakeCredentialRepo{
		byUsername: map[string]*store.CaldavCredential{"alice": cred},
	})
	next := &nextRecorder{}

	req := httptest.NewRequest("PROPFIND", "/caldav/calendars/1/", nil)
	req.SetBasicAuth("alice", "secret")
	rec := httptest.NewRecorder()
	svc.RequireCalDAVAuth(next.handler()).ServeHTTP(rec, req)

	if !next.called {
		t.Errorf("bcrypt-stored credential rejected; status = %d", rec.Code)
	}
}

func TestVerifyPassword(t *testing.T) {
	if !verifyPassword("secret", "secret") {
		t.Error("plain match rejected")
	}
	if verifyPassword("secret", "Secret") {
		t.Error("case-differing password accepted")
	}
	if verifyPassword("secret", "") {
		t.Error("empty password accepted")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	if !verifyPassword(string(hash), "pw") {
		t.Error("bcrypt match rejected")
	}
	if verifyPassword(string(hash), "other") {
		t.Error("bcrypt mismatch accepted")
	}
}

func TestCalendarIDFromPath(t *testing.T) {
	tests := []struct {
		path string
		want int64
	}{
		{"/caldav/calendars/12", 12},
		{"/caldav/calendars/12/", 12},
		{"/caldav/calendars/12/event-3.ics", 12},
		{"/caldav/principals/4/", 4},
		{"/caldav/", 0},
		{"/caldav/calendars/abc", 0},
		{"/caldav/calendars/-2", 0},
	}
	for _, tc := range tests {
		if got := calendarIDFromPath(tc.path); got != tc.want {
			t.Errorf("calendarIDFromPath(%q) = %d, want %d", tc.path, got, tc.want)
		}
	}
}
