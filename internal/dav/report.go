package dav

import (
	"net/http"
	"path"

	"github.com/beevik/etree"
)

func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	rp := parsePath(r.URL.Path)
	if rp.kind == pathSchedule {
		w.WriteHeader(http.StatusOK)
		return
	}
	if rp.kind != pathCalendar {
		h.NotImplemented(w, r)
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

	doc := parseBody(body)
	ns := resolveNamespaces(doc)
	rb := parseReport(doc)

	// Clients cache on (etag, data) pairs: whenever calendar-data is
	// requested, getetag rides along even if it was not asked for.
	rb.Props = ensureETagPairing(rb.Props)

	rc := h.renderContextFor(cc, ns, rb.Props)

	switch rb.Kind {
	case reportFreeBusy:
		h.writeFreeBusy(w, ns)
	case reportCalendarMultiget:
		h.calendarMultiget(w, r, rc, ns, rb.Hrefs)
	default:
		h.calendarQuery(w, r, rc, ns)
	}
}

func ensureETagPairing(props []requestedProp) []requestedProp {
	hasData, hasETag := false, false
	for _, p := range props {
		switch p.Lower {
		case "calendar-data":
			hasData = true
		case "getetag":
			hasETag = true
		}
	}
	if hasData && !hasETag {
		return append([]requestedProp{{Lower: "getetag", Original: "getetag"}}, props...)
	}
	return props
}

// calendarQuery returns every event under the calendar. Filter evaluation is
// not performed; the whole collection is the default query result.
func (h *Handler) calendarQuery(w http.ResponseWriter, r *http.Request, rc *renderContext, ns *nsContext) {
	events, err := h.store.Events.ListForCalendar(r.Context(), rc.cal.ID)
	if err != nil {
		h.internalError(w, r, err, "list events")
		return
	}

	ms := newMultistatus(ns)
	for i := range events {
		data, err := SerializeEvent(&events[i], h.cfg.Domain)
		if err != nil {
			h.internalError(w, r, err, "serialize event")
			return
		}
		evRC := *rc
		evRC.event = &events[i]
		evRC.eventData = data
		ms.AddResource(rc.eventHref(events[i].ID), kindEventReport, &evRC)
	}
	ms.Write(w)
}

// calendarMultiget resolves each requested href through the event-<id>.ics
// filename convention. Hrefs that do not resolve to a live event of this
// calendar get an href-only 404 response.
func (h *Handler) calendarMultiget(w http.ResponseWriter, r *http.Request, rc *renderContext, ns *nsContext, hrefs []string) {
	ms := newMultistatus(ns)
	for _, href := range hrefs {
		eventID, ok := parseEventFilename(path.Base(href))
		if !ok {
			ms.AddNotFound(href)
			continue
		}
		event, err := h.store.Events.GetByID(r.Context(), eventID)
		if err != nil {
			h.internalError(w, r, err, "load event")
			return
		}
		if event == nil || event.CalendarID != rc.cal.ID {
			ms.AddNotFound(href)
			continue
		}
		data, err := SerializeEvent(event, h.cfg.Domain)
		if err != nil {
			h.internalError(w, r, err, "serialize event")
			return
		}
		evRC := *rc
		evRC.event = event
		evRC.eventData = data
		ms.AddResource(href, kindEventReport, &evRC)
	}
	ms.Write(w)
}

// writeFreeBusy answers a free-busy-query with a fixed empty VFREEBUSY in a
// schedule-response envelope. Busy intervals are not computed here.
func (h *Handler) writeFreeBusy(w http.ResponseWriter, ns *nsContext) {
	const emptyFreeBusy = "BEGIN:VCALENDAR\r\n" +
		"VERSION:2.0\r\n" +
		"PRODID:" + prodID + "\r\n" +
		"BEGIN:VFREEBUSY\r\n" +
		"END:VFREEBUSY\r\n" +
		"END:VCALENDAR\r\n"

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	root := doc.CreateElement(ns.Prefix(nsCalDAV) + ":schedule-response")
	root.CreateAttr("xmlns:"+ns.Prefix(nsDAV), nsDAV)
	root.CreateAttr("xmlns:"+ns.Prefix(nsCalDAV), nsCalDAV)
	resp := root.CreateElement(ns.Prefix(nsCalDAV) + ":response")
	resp.CreateElement(ns.Prefix(nsCalDAV) + ":calendar-data").CreateCData(emptyFreeBusy)

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = doc.WriteTo(w)
}
