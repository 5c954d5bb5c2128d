package dav

import (
	"net/http"
	"strings"
)

const statusForbidden = "HTTP/1.1 403 Forbidden"

// Proppatch handles vendor property updates on the calendar collection. The
// Apple appearance properties are persisted; everything else is rejected.
// Every submitted property name is echoed back in either the 200 or the 403
// propstat, never dropped.
func (h *Handler) Proppatch(w http.ResponseWriter, r *http.Request) {
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
	props := parseProppatch(doc, ns)

	var accepted, rejected []proppatchProp
	var order, color *string
	for _, p := range props {
		if proppatchAcceptsAppleProps && isAppleAppearanceProp(p) {
			switch strings.ToLower(p.Name) {
			case "calendar-order":
				v := p.Value
				order = &v
			case "calendar-color":
				v := p.Value
				color = &v
			}
			accepted = append(accepted, p)
			continue
		}
		rejected = append(rejected, p)
	}

	if order != nil || color != nil {
		if err := h.store.Calendars.UpdateAppearance(r.Context(), cc.Calendar.ID, order, color); err != nil {
			h.internalError(w, r, err, "update calendar appearance")
			return
		}
	}

	rc := h.renderContextFor(cc, ns, nil)
	ms := newMultistatus(ns)
	resp := ms.response(rc.calendarHref())
	if len(accepted) > 0 {
		prop := ms.propstat(resp, statusOK)
		for _, p := range accepted {
			rc.createEl(prop, proppatchElementNS(p), p.Name)
		}
	}
	if len(rejected) > 0 {
		prop := ms.propstat(resp, statusForbidden)
		for _, p := range rejected {
			rc.createEl(prop, proppatchElementNS(p), p.Name)
		}
	}
	ms.Write(w)
}

// isAppleAppearanceProp matches the calendar-order/calendar-color extension
// properties, tolerating clients that never declared the Apple namespace.
func isAppleAppearanceProp(p proppatchProp) bool {
	lower := strings.ToLower(p.Name)
	if lower != "calendar-order" && lower != "calendar-color" {
		return false
	}
	return p.Space == nsAppleICal || p.Space == ""
}

// proppatchElementNS picks the namespace for echoing a property name back.
func proppatchElementNS(p proppatchProp) string {
	switch p.Space {
	case nsDAV, nsCalDAV, nsCalendarServer, nsAppleICal:
		return p.Space
	}
	if isAppleAppearanceProp(p) {
		return nsAppleICal
	}
	return namespaceForUnknown(strings.ToLower(p.Name))
}
