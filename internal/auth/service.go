package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/daybook-app/daybook/internal/config"
	"github.com/daybook-app/daybook/internal/store"
)

// Service authenticates CalDAV clients with per-calendar Basic credentials.
type Service struct {
	cfg    *config.Config
	store  *store.Store
	logger *slog.Logger
}

func NewService(cfg *config.Config, store *store.Store, logger *slog.Logger) *Service {
	return &Service{cfg: cfg, store: store, logger: logger}
}

// RequireCalDAVAuth enforces Basic auth and attaches the resolved calendar
// context. The credential is looked up by username first (principal discovery
// happens before the client knows any calendar id), then by the calendar id
// embedded in the path. The failure body never reveals which check failed.
func (s *Service) RequireCalDAVAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok || username == "" {
			s.challenge(w)
			return
		}

		cc, err := s.resolve(r.Context(), username, password, calendarIDFromPath(r.URL.Path))
		if err != nil {
			s.logger.Warn("caldav auth failed", "username", username, "path", r.URL.Path)
			s.challenge(w)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithCalendar(r.Context(), cc)))
	})
}

func (s *Service) resolve(ctx context.Context, username, password string, pathCalendarID int64) (*CalendarContext, error) {
	cred, err := s.store.Credentials.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if cred == nil && pathCalendarID > 0 {
		cred, err = s.store.Credentials.GetByCalendar(ctx, pathCalendarID)
		if err != nil {
			return nil, err
		}
		// A path-resolved credential must also match the presented username.
		if cred != nil && cred.Username != username {
			cred = nil
		}
	}
	if cred == nil || !verifyPassword(cred.Password, password) {
		return nil, errAuthFailed
	}

	cal, err := s.store.Calendars.GetByID(ctx, cred.CalendarID)
	if err != nil {
		return nil, err
	}
	if cal == nil {
		return nil, errAuthFailed
	}
	return &CalendarContext{Calendar: cal, Credential: cred}, nil
}

var errAuthFailed = fmt.Errorf("caldav authentication failed")

// verifyPassword accepts either a bcrypt hash or a plain stored value. Plain
// values are compared in constant time over digests so neither content nor
// length leaks through timing.
func verifyPassword(stored, presented string) bool {
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(presented)) == nil
	}
	a := sha256.Sum256([]byte(stored))
	b := sha256.Sum256([]byte(presented))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

func (s *Service) challenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", s.cfg.Realm))
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = fmt.Fprint(w, `<?xml version="1.0" encoding="utf-8"?><error xmlns="DAV:">authentication required</error>`)
}

// calendarIDFromPath extracts the numeric calendar id from paths like
// /caldav/calendars/12 or /caldav/principals/12/, returning 0 when absent.
func calendarIDFromPath(rawPath string) int64 {
	cleanPath := path.Clean(rawPath)
	for _, prefix := range []string{"/caldav/calendars/", "/caldav/principals/"} {
		if !strings.HasPrefix(cleanPath, prefix) {
			continue
		}
		rest := strings.TrimPrefix(cleanPath, prefix)
		seg := strings.SplitN(rest, "/", 2)[0]
		if id, err := strconv.ParseInt(seg, 10, 64); err == nil && id > 0 {
			return id
		}
	}
	return 0
}
