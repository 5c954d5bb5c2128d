package dav

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/daybook-app/daybook/internal/auth"
	"github.com/daybook-app/daybook/internal/config"
	"github.com/daybook-app/daybook/internal/store"
)

// Handler serves the CalDAV/WebDAV surface mounted under BasePath. Each
// request is handled atomically: authenticate (upstream middleware),
// classify, resolve namespaces, gather properties from the store, render.
type Handler struct {
	cfg    *config.Config
	store  *store.Store
	logger *slog.Logger
}

func NewHandler(cfg *config.Config, store *store.Store, logger *slog.Logger) *Handler {
	return &Handler{cfg: cfg, store: store, logger: logger}
}

// BasePath is the fixed mount point of the CalDAV surface.
const BasePath = "/caldav"

// maxDAVBodyBytes caps request bodies for DAV requests.
const maxDAVBodyBytes int64 = 10 * 1024 * 1024

// Deployment policy, decided once instead of accreting per-client special
// cases.
const (
	// eventContentType is the fixed content type of event resources.
	// The component token is upper case everywhere.
	eventContentType = "text/calendar; component=VEVENT"

	// calendarBodyContentType is used for served iCalendar bodies.
	calendarBodyContentType = "text/calendar; charset=utf-8"

	// proppatchAcceptsAppleProps: the Apple calendar-order/calendar-color
	// extension properties are accepted and persisted; everything else is
	// rejected with 403.
	proppatchAcceptsAppleProps = true

	// mutationNoOpStatus is returned for PUT/DELETE on calendar and event
	// resources. This deployment is read-mostly; the writes are accepted
	// as no-ops so clients do not surface sync errors.
	mutationNoOpStatus = http.StatusOK

	// defaultDepth applies when a PROPFIND omits the Depth header.
	defaultDepth = "1"
)

type pathKind int

const (
	pathUnknown pathKind = iota
	pathServiceRoot
	pathPrincipalCollection
	pathPrincipal
	pathCalendar
	pathEvent
	pathSchedule
)

type resourcePath struct {
	kind       pathKind
	calendarID int64
	eventID    int64
}

// parsePath classifies a request path below the mount point.
func parsePath(rawPath string) resourcePath {
	p := path.Clean(rawPath)
	p = strings.TrimPrefix(p, BasePath)
	p = strings.Trim(p, "/")

	if p == "" {
		return resourcePath{kind: pathServiceRoot}
	}

	segs := strings.Split(p, "/")
	switch segs[0] {
	case "principals":
		if len(segs) == 1 {
			return resourcePath{kind: pathPrincipalCollection}
		}
		if id, err := strconv.ParseInt(segs[1], 10, 64); err == nil && len(segs) == 2 {
			return resourcePath{kind: pathPrincipal, calendarID: id}
		}
	case "calendars":
		if len(segs) < 2 {
			return resourcePath{kind: pathUnknown}
		}
		id, err := strconv.ParseInt(segs[1], 10, 64)
		if err != nil {
			return resourcePath{kind: pathUnknown}
		}
		if len(segs) == 2 {
			return resourcePath{kind: pathCalendar, calendarID: id}
		}
		if len(segs) == 3 {
			if segs[2] == "schedule-inbox" || segs[2] == "schedule-outbox" {
				return resourcePath{kind: pathSchedule, calendarID: id}
			}
			if eventID, ok := parseEventFilename(segs[2]); ok {
				return resourcePath{kind: pathEvent, calendarID: id, eventID: eventID}
			}
		}
	case "schedule-inbox", "schedule-outbox":
		if len(segs) == 1 {
			return resourcePath{kind: pathSchedule}
		}
	}
	return resourcePath{kind: pathUnknown}
}

// parseEventFilename extracts the event id from the event-<id>.ics resource
// filename convention.
func parseEventFilename(name string) (int64, bool) {
	rest, ok := strings.CutPrefix(name, "event-")
	if !ok {
		return 0, false
	}
	rest, ok = strings.CutSuffix(rest, ".ics")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	limited := http.MaxBytesReader(w, r.Body, maxDAVBodyBytes)
	body, err := io.ReadAll(limited)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeDAVError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeDAVError(w, http.StatusBadRequest, "failed to read request body")
		}
		return nil, false
	}
	return body, true
}

// calendarContext fetches the authenticated calendar context and enforces
// that a path-addressed calendar is the one the credentials resolve to.
func (h *Handler) calendarContext(w http.ResponseWriter, r *http.Request, rp resourcePath) (*auth.CalendarContext, bool) {
	cc, ok := auth.CalendarFromContext(r.Context())
	if !ok {
		writeDAVError(w, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	if rp.calendarID != 0 && rp.calendarID != cc.Calendar.ID {
		writeDAVError(w, http.StatusNotFound, "resource not found")
		return nil, false
	}
	return cc, true
}

func (h *Handler) renderContextFor(cc *auth.CalendarContext, ns *nsContext, requested []requestedProp) *renderContext {
	return &renderContext{
		ns:        ns,
		requested: requested,
		base:      BasePath,
		domain:    h.cfg.Domain,
		cal:       cc.Calendar,
		cred:      cc.Credential,
	}
}

// Options advertises capabilities. Exempt from authentication: clients probe
// before they have credentials.
func (h *Handler) Options(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "OPTIONS, GET, PUT, DELETE, PROPFIND, PROPPATCH, REPORT")
	w.Header().Set("DAV", "1, 2, calendar-access")
	w.WriteHeader(http.StatusNoContent)
}

// WellKnown redirects /.well-known/caldav to the service root.
func (h *Handler) WellKnown(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, BasePath+"/", http.StatusMovedPermanently)
}

// NotImplemented answers verb/resource combinations without a handler.
// Never a silent 200: clients must learn the method is unsupported.
func (h *Handler) NotImplemented(w http.ResponseWriter, r *http.Request) {
	writeDAVError(w, http.StatusNotImplemented, fmt.Sprintf("%s is not implemented", r.Method))
}

func (h *Handler) Propfind(w http.ResponseWriter, r *http.Request) {
	rp := parsePath(r.URL.Path)
	if rp.kind == pathSchedule {
		w.WriteHeader(http.StatusOK)
		return
	}
	if rp.kind == pathUnknown {
		writeDAVError(w, http.StatusNotFound, "resource not found")
		return
	}

	cc, ok := h.calendarContext(w, r, rp)
	if !ok {
		return
	}
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	depth := strings.TrimSpace(r.Header.Get("Depth"))
	if depth == "" {
		depth = defaultDepth
	}

	doc := parseBody(body)
	ns := resolveNamespaces(doc)
	rc := h.renderContextFor(cc, ns, parsePropfind(doc))
	ms := newMultistatus(ns)

	switch rp.kind {
	case pathServiceRoot:
		ms.AddResource(BasePath+"/", kindServiceRoot, rc)
		if depth != "0" {
			ms.AddResource(BasePath+"/principals/", kindPrincipalCollection, rc)
			ms.AddResource(rc.calendarHref(), kindCalendar, rc)
		}
	case pathPrincipalCollection:
		ms.AddResource(BasePath+"/principals/", kindPrincipalCollection, rc)
		if depth != "0" {
			ms.AddResource(rc.principalHref(), kindPrincipal, rc)
		}
	case pathPrincipal:
		ms.AddResource(rc.principalHref(), kindPrincipal, rc)
	case pathCalendar:
		ms.AddResource(rc.calendarHref(), kindCalendar, rc)
		if depth != "0" {
			events, err := h.store.Events.ListForCalendar(r.Context(), cc.Calendar.ID)
			if err != nil {
				h.internalError(w, r, err, "list events")
				return
			}
			for i := range events {
				evRC := *rc
				evRC.event = &events[i]
				ms.AddResource(rc.eventHref(events[i].ID), kindEvent, &evRC)
			}
		}
	case pathEvent:
		event, err := h.store.Events.GetByID(r.Context(), rp.eventID)
		if err != nil {
			h.internalError(w, r, err, "load event")
			return
		}
		if event == nil || event.CalendarID != cc.Calendar.ID {
			writeDAVError(w, http.StatusNotFound, "resource not found")
			return
		}
		evRC := *rc
		evRC.event = event
		ms.AddResource(rc.eventHref(event.ID), kindEvent, &evRC)
	}

	ms.Write(w)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	rp := parsePath(r.URL.Path)
	switch rp.kind {
	case pathSchedule:
		w.WriteHeader(http.StatusOK)
		return
	case pathCalendar, pathEvent:
	default:
		writeDAVError(w, http.StatusNotFound, "resource not found")
		return
	}

	cc, ok := h.calendarContext(w, r, rp)
	if !ok {
		return
	}

	if rp.kind == pathCalendar {
		events, err := h.store.Events.ListForCalendar(r.Context(), cc.Calendar.ID)
		if err != nil {
			h.internalError(w, r, err, "list events")
			return
		}
		body, err := SerializeCalendar(cc.Calendar, events, h.cfg.Domain)
		if err != nil {
			h.internalError(w, r, err, "serialize calendar")
			return
		}
		w.Header().Set("Content-Type", calendarBodyContentType)
		w.Header().Set("ETag", CollectionETag(cc.Calendar.ID, cc.Calendar.CreatedAt))
		_, _ = io.WriteString(w, body)
		return
	}

	event, err := h.store.Events.GetByID(r.Context(), rp.eventID)
	if err != nil {
		h.internalError(w, r, err, "load event")
		return
	}
	if event == nil || event.CalendarID != cc.Calendar.ID {
		writeDAVError(w, http.StatusNotFound, "resource not found")
		return
	}
	body, err := SerializeEvent(event, h.cfg.Domain)
	if err != nil {
		h.internalError(w, r, err, "serialize event")
		return
	}
	w.Header().Set("Content-Type", calendarBodyContentType)
	w.Header().Set("ETag", EventETag(event.ID, event.UpdatedAt))
	w.Header().Set("Last-Modified", event.UpdatedAt.UTC().Format(http.TimeFormat))
	_, _ = io.WriteString(w, body)
}

// Put accepts event/calendar writes as no-ops; event mutation happens through
// the application's own API, not CalDAV.
func (h *Handler) Put(w http.ResponseWriter, r *http.Request) {
	h.mutationNoOp(w, r)
}

// Delete mirrors Put: accepted, not applied.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	h.mutationNoOp(w, r)
}

func (h *Handler) mutationNoOp(w http.ResponseWriter, r *http.Request) {
	rp := parsePath(r.URL.Path)
	switch rp.kind {
	case pathSchedule:
		w.WriteHeader(http.StatusOK)
		return
	case pathCalendar, pathEvent:
	default:
		h.NotImplemented(w, r)
		return
	}
	if _, ok := h.calendarContext(w, r, rp); !ok {
		return
	}
	h.logger.Debug("caldav mutation accepted as no-op", "method", r.Method, "path", r.URL.Path)
	w.WriteHeader(mutationNoOpStatus)
}

// Schedule answers the scheduling inbox/outbox stubs for any method.
func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error, op string) {
	h.logger.Error("caldav request failed", "op", op, "method", r.Method, "path", r.URL.Path, "err", err)
	writeDAVError(w, http.StatusInternalServerError, "internal server error")
}
