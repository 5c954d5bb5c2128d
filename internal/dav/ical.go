package dav

import (
	"fmt"
	"strings"

	"github.com/emersion/go-ical"

	"github.com/daybook-app/daybook/internal/store"
)

const prodID = "-//Daybook//CalDAV Server//EN"

func eventUID(id int64, domain string) string {
	return fmt.Sprintf("event-%d@%s", id, domain)
}

// cleanText drops bare carriage returns, which RFC 5545 text values cannot
// carry.
func cleanText(s string) string {
	return strings.ReplaceAll(s, "\r", "")
}

func newEventComponent(ev *store.Event, domain string) *ical.Component {
	e := ical.NewEvent()
	e.Props.SetText(ical.PropUID, eventUID(ev.ID, domain))
	// DTSTAMP from the persisted timestamp keeps serialization deterministic.
	e.Props.SetDateTime(ical.PropDateTimeStamp, ev.UpdatedAt.UTC())
	e.Props.SetDateTime(ical.PropDateTimeStart, ev.StartTime.UTC())
	e.Props.SetDateTime(ical.PropDateTimeEnd, ev.EndTime.UTC())
	e.Props.SetText(ical.PropSummary, cleanText(ev.Title))
	if ev.Description != nil && *ev.Description != "" {
		e.Props.SetText(ical.PropDescription, cleanText(*ev.Description))
	}
	if ev.Location != nil && *ev.Location != "" {
		e.Props.SetText(ical.PropLocation, cleanText(*ev.Location))
	}
	if ev.Color != nil && *ev.Color != "" {
		e.Props.SetText("COLOR", *ev.Color)
	}
	return e.Component
}

func newCalendarEnvelope() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, prodID)
	cal.Props.SetText(ical.PropCalendarScale, "GREGORIAN")
	return cal
}

// SerializeEvent renders a single event as a standalone VCALENDAR.
func SerializeEvent(ev *store.Event, domain string) (string, error) {
	cal := newCalendarEnvelope()
	cal.Children = append(cal.Children, newEventComponent(ev, domain))
	return encodeICal(cal)
}

// SerializeCalendar renders the whole calendar, with the X-WR extension
// properties most clients use for subscribed-calendar display.
func SerializeCalendar(c *store.Calendar, events []store.Event, domain string) (string, error) {
	cal := newCalendarEnvelope()
	cal.Props.SetText(ical.PropMethod, "PUBLISH")
	cal.Props.SetText("X-WR-CALNAME", cleanText(c.Title))
	if c.Description != nil && *c.Description != "" {
		cal.Props.SetText("X-WR-CALDESC", cleanText(*c.Description))
	}
	cal.Props.SetText("X-WR-TIMEZONE", "UTC")
	for i := range events {
		cal.Children = append(cal.Children, newEventComponent(&events[i], domain))
	}
	return encodeICal(cal)
}

func encodeICal(cal *ical.Calendar) (string, error) {
	var buf strings.Builder
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return "", err
	}
	return buf.String(), nil
}
