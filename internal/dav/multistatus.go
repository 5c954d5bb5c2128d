package dav

import (
	"net/http"

	"github.com/beevik/etree"
)

const (
	statusOK       = "HTTP/1.1 200 OK"
	statusNotFound = "HTTP/1.1 404 Not Found"
)

// multistatusWriter assembles a 207 body. Exactly one prefix per namespace is
// used throughout, all declared at the multistatus root in the prefixes the
// client itself used.
type multistatusWriter struct {
	doc  *etree.Document
	root *etree.Element
	ns   *nsContext
}

func newMultistatus(ns *nsContext) *multistatusWriter {
	doc := etree.NewDocument()
	// Canonical text keeps the quotes of ETag values literal instead of
	// escaping them to &quot;.
	doc.WriteSettings.CanonicalText = true
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	root := doc.CreateElement(ns.Prefix(nsDAV) + ":multistatus")
	for _, uri := range []string{nsDAV, nsCalDAV, nsCalendarServer, nsAppleICal} {
		root.CreateAttr("xmlns:"+ns.Prefix(uri), uri)
	}
	return &multistatusWriter{doc: doc, root: root, ns: ns}
}

// AddResource emits one response element for a resource: a 200 propstat for
// the properties this kind supports and a 404 propstat for everything else
// the client asked about. Either block is omitted when empty, so every
// requested property lands in exactly one of the two.
func (m *multistatusWriter) AddResource(href string, kind resourceKind, rc *renderContext) {
	providers := providersFor(kind)
	supported := make(map[string]propProvider, len(providers))
	order := make([]string, 0, len(providers))
	for _, def := range providers {
		lower := lowerASCII(def.name)
		supported[lower] = def.provide
		order = append(order, lower)
	}

	requested := make(map[string]requestedProp, len(rc.requested))
	var unknown []requestedProp
	for _, req := range rc.requested {
		if _, ok := supported[req.Lower]; ok {
			requested[req.Lower] = req
		} else {
			unknown = append(unknown, req)
		}
	}

	resp := m.response(href)

	if len(requested) > 0 {
		prop := m.propstat(resp, statusOK)
		for _, lower := range order {
			if _, ok := requested[lower]; ok {
				supported[lower](rc, prop)
			}
		}
	}

	if len(unknown) > 0 {
		prop := m.propstat(resp, statusNotFound)
		for _, req := range unknown {
			// Self-closing element, original casing preserved.
			rc.createEl(prop, namespaceForUnknown(req.Lower), req.Original)
		}
	}
}

// AddNotFound emits the href-only 404 response used for multiget hrefs that
// do not resolve to a live resource.
func (m *multistatusWriter) AddNotFound(href string) {
	resp := m.response(href)
	m.el(resp, "status").SetText(statusNotFound)
}

func (m *multistatusWriter) response(href string) *etree.Element {
	resp := m.el(m.root, "response")
	m.el(resp, "href").SetText(href)
	return resp
}

// propstat creates a propstat block and returns its prop element. The status
// element must follow prop in document order, so it is appended afterwards.
func (m *multistatusWriter) propstat(resp *etree.Element, status string) *etree.Element {
	ps := m.el(resp, "propstat")
	prop := m.el(ps, "prop")
	m.el(ps, "status").SetText(status)
	return prop
}

func (m *multistatusWriter) el(parent *etree.Element, local string) *etree.Element {
	return parent.CreateElement(m.ns.Prefix(nsDAV) + ":" + local)
}

// Write renders the document as a 207 multistatus response.
func (m *multistatusWriter) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("DAV", "1, 2, calendar-access")
	w.WriteHeader(http.StatusMultiStatus)
	_, _ = m.doc.WriteTo(w)
}
