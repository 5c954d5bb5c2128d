package dav

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/daybook-app/daybook/internal/store"
)

type resourceKind int

const (
	kindServiceRoot resourceKind = iota
	kindPrincipalCollection
	kindPrincipal
	kindCalendar
	kindEvent
	kindEventReport // event inside a REPORT response, calendar-data allowed
)

// renderContext is the immutable request-scoped value threaded through the
// property providers and the multistatus builder: namespace table, requested
// set, and the resources being described.
type renderContext struct {
	ns        *nsContext
	requested []requestedProp
	base      string // service mount, e.g. /caldav
	domain    string

	cal  *store.Calendar
	cred *store.CaldavCredential

	event     *store.Event
	eventData string // serialized iCalendar for REPORT responses
}

func (rc *renderContext) principalHref() string {
	return fmt.Sprintf("%s/principals/%d/", rc.base, rc.cal.ID)
}

func (rc *renderContext) calendarHref() string {
	return fmt.Sprintf("%s/calendars/%d/", rc.base, rc.cal.ID)
}

func (rc *renderContext) eventHref(eventID int64) string {
	return fmt.Sprintf("%s/calendars/%d/event-%d.ics", rc.base, rc.cal.ID, eventID)
}

// createEl makes a child element in the given canonical namespace using the
// prefix resolved for this request.
func (rc *renderContext) createEl(parent *etree.Element, uri, local string) *etree.Element {
	return parent.CreateElement(rc.ns.Prefix(uri) + ":" + local)
}

func (rc *renderContext) hrefEl(parent *etree.Element, uri, local, href string) {
	el := rc.createEl(parent, uri, local)
	rc.createEl(el, nsDAV, "href").SetText(href)
}

// propProvider renders one supported property value under the 200 propstat's
// prop element.
type propProvider func(rc *renderContext, prop *etree.Element)

type propDef struct {
	name    string
	provide propProvider
}

// Provider tables, one per resource kind, in the preferred rendering order:
// identity and content-type properties first, display properties next, then
// principal/ownership links, cache tokens last. Some clients' refresh state
// machines depend on this order.

var serviceRootProps = []propDef{
	{"resourcetype", func(rc *renderContext, p *etree.Element) {
		rt := rc.createEl(p, nsDAV, "resourcetype")
		rc.createEl(rt, nsDAV, "collection")
	}},
	{"current-user-principal", func(rc *renderContext, p *etree.Element) {
		rc.hrefEl(p, nsDAV, "current-user-principal", rc.principalHref())
	}},
	{"calendar-home-set", func(rc *renderContext, p *etree.Element) {
		rc.hrefEl(p, nsCalDAV, "calendar-home-set", rc.calendarHref())
	}},
	{"owner", func(rc *renderContext, p *etree.Element) {
		rc.hrefEl(p, nsDAV, "owner", rc.principalHref())
	}},
}

var principalProps = []propDef{
	{"resourcetype", func(rc *renderContext, p *etree.Element) {
		rt := rc.createEl(p, nsDAV, "resourcetype")
		rc.createEl(rt, nsDAV, "principal")
	}},
	{"displayname", func(rc *renderContext, p *etree.Element) {
		rc.createEl(p, nsDAV, "displayname").SetText(rc.cal.Title)
	}},
	{"calendar-home-set", func(rc *renderContext, p *etree.Element) {
		rc.hrefEl(p, nsCalDAV, "calendar-home-set", rc.calendarHref())
	}},
	{"email-address-set", func(rc *renderContext, p *etree.Element) {
		rc.createEl(p, nsCalendarServer, "email-address-set").SetText(rc.emailAddress())
	}},
	{"principal-URL", func(rc *renderContext, p *etree.Element) {
		rc.hrefEl(p, nsDAV, "principal-URL", rc.principalHref())
	}},
	{"current-user-principal", func(rc *renderContext, p *etree.Element) {
		rc.hrefEl(p, nsDAV, "current-user-principal", rc.principalHref())
	}},
	{"owner", func(rc *renderContext, p *etree.Element) {
		rc.hrefEl(p, nsDAV, "owner", rc.principalHref())
	}},
}

var calendarProps = []propDef{
	{"resourcetype", func(rc *renderContext, p *etree.Element) {
		rt := rc.createEl(p, nsDAV, "resourcetype")
		rc.createEl(rt, nsDAV, "collection")
		rc.createEl(rt, nsCalDAV, "calendar")
	}},
	{"supported-calendar-component-set", func(rc *renderContext, p *etree.Element) {
		set := rc.createEl(p, nsCalDAV, "supported-calendar-component-set")
		rc.createEl(set, nsCalDAV, "comp").CreateAttr("name", "VEVENT")
	}},
	{"displayname", func(rc *renderContext, p *etree.Element) {
		rc.createEl(p, nsDAV, "displayname").SetText(rc.cal.Title)
	}},
	{"calendar-description", func(rc *renderContext, p *etree.Element) {
		el := rc.createEl(p, nsCalDAV, "calendar-description")
		if rc.cal.Description != nil {
			el.SetText(*rc.cal.Description)
		}
	}},
	// The Apple appearance pair reads back what PROPPATCH persisted.
	{"calendar-order", func(rc *renderContext, p *etree.Element) {
		el := rc.createEl(p, nsAppleICal, "calendar-order")
		if rc.cal.Order != nil {
			el.SetText(*rc.cal.Order)
		}
	}},
	{"calendar-color", func(rc *renderContext, p *etree.Element) {
		el := rc.createEl(p, nsAppleICal, "calendar-color")
		if rc.cal.Color != nil {
			el.SetText(*rc.cal.Color)
		}
	}},
	{"owner", func(rc *renderContext, p *etree.Element) {
		rc.hrefEl(p, nsDAV, "owner", rc.principalHref())
	}},
	{"current-user-principal", func(rc *renderContext, p *etree.Element) {
		rc.hrefEl(p, nsDAV, "current-user-principal", rc.principalHref())
	}},
	{"calendar-home-set", func(rc *renderContext, p *etree.Element) {
		rc.hrefEl(p, nsCalDAV, "calendar-home-set", rc.calendarHref())
	}},
	{"current-user-privilege-set", func(rc *renderContext, p *etree.Element) {
		// Privilege tiers are not enforced at this layer.
		set := rc.createEl(p, nsDAV, "current-user-privilege-set")
		for _, priv := range []string{"read", "write", "all"} {
			rc.createEl(rc.createEl(set, nsDAV, "privilege"), nsDAV, priv)
		}
	}},
	{"supported-report-set", func(rc *renderContext, p *etree.Element) {
		set := rc.createEl(p, nsDAV, "supported-report-set")
		for _, report := range []string{"calendar-query", "calendar-multiget"} {
			sr := rc.createEl(set, nsDAV, "supported-report")
			rc.createEl(rc.createEl(sr, nsDAV, "report"), nsCalDAV, report)
		}
	}},
	{"getetag", func(rc *renderContext, p *etree.Element) {
		rc.createEl(p, nsDAV, "getetag").SetText(CollectionETag(rc.cal.ID, rc.cal.CreatedAt))
	}},
	{"getctag", func(rc *renderContext, p *etree.Element) {
		rc.createEl(p, nsCalendarServer, "getctag").SetText(CollectionCTag(rc.cal.ID, rc.cal.UpdatedAt))
	}},
	{"sync-token", func(rc *renderContext, p *etree.Element) {
		rc.createEl(p, nsDAV, "sync-token").SetText(CollectionSyncToken(rc.cal.ID, rc.cal.UpdatedAt))
	}},
	// getcontenttype is deliberately unsupported on the collection even
	// though some clients request it; it always lands in the 404 propstat.
}

var eventProps = []propDef{
	{"getetag", func(rc *renderContext, p *etree.Element) {
		rc.createEl(p, nsDAV, "getetag").SetText(EventETag(rc.event.ID, rc.event.UpdatedAt))
	}},
	{"getcontenttype", func(rc *renderContext, p *etree.Element) {
		rc.createEl(p, nsDAV, "getcontenttype").SetText(eventContentType)
	}},
}

var eventReportProps = append(eventProps[:len(eventProps):len(eventProps)], propDef{
	"calendar-data", func(rc *renderContext, p *etree.Element) {
		rc.createEl(p, nsCalDAV, "calendar-data").CreateCData(rc.eventData)
	},
})

func providersFor(kind resourceKind) []propDef {
	switch kind {
	case kindServiceRoot, kindPrincipalCollection:
		return serviceRootProps
	case kindPrincipal:
		return principalProps
	case kindCalendar:
		return calendarProps
	case kindEventReport:
		return eventReportProps
	default:
		return eventProps
	}
}

func (rc *renderContext) emailAddress() string {
	username := rc.cred.Username
	if strings.Contains(username, "@") {
		return username
	}
	return username + "@" + rc.domain
}

// csUnknownProps are CalendarServer-namespace names recognized for 404
// rendering: presence/push tracking plus getctag on kinds that lack it.
var csUnknownProps = map[string]bool{
	"getctag":           true,
	"email-address-set": true,
	"checksum-versions": true,
	"notification-url":  true,
	"push-transports":   true,
	"pushkey":           true,
}

// namespaceForUnknown picks the namespace an unsupported property is rendered
// in: calendar-prefixed names belong to CalDAV, presence-tracking names to
// CalendarServer, everything else defaults to DAV.
func namespaceForUnknown(lower string) string {
	switch {
	case strings.HasPrefix(lower, "calendar-") || strings.HasPrefix(lower, "supported-calendar"):
		return nsCalDAV
	case csUnknownProps[lower]:
		return nsCalendarServer
	default:
		return nsDAV
	}
}
