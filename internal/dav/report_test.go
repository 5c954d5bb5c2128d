package dav

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestReportCalendarQueryReturnsAllEvents(t *testing.T) {
	ev1 := testEvent()
	ev2 := testEvent()
	ev2.ID = 2
	ev2.Title = "Second Event"
	ev2.StartTime = time.Date(2025, 1, 17, 9, 0, 0, 0, time.UTC)
	ev2.EndTime = time.Date(2025, 1, 17, 10, 0, 0, 0, time.UTC)

	h, _ := newTestHandler(ev1, ev2)

	body := `<C:calendar-query xmlns:C="urn:ietf:params:xml:ns:caldav" xmlns:D="DAV:">
  <D:prop><D:getetag/><C:calendar-data/></D:prop>
  <C:filter><C:comp-filter name="VCALENDAR"><C:comp-filter name="VEVENT"/></C:comp-filter></C:filter>
</C:calendar-query>`
	rec := httptest.NewRecorder()
	h.Report(rec, authedRequest("REPORT", "/caldav/calendars/1/", body))

	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("status = %d, want 207", rec.Code)
	}
	out := rec.Body.String()
	if got := strings.Count(out, "<D:response>"); got != 2 {
		t.Fatalf("expected 2 responses, got %d in:\n%s", got, out)
	}
	if !strings.Contains(out, "SUMMARY:Test Event") || !strings.Contains(out, "SUMMARY:Second Event") {
		t.Errorf("calendar-data missing event bodies:\n%s", out)
	}
	if got := strings.Count(out, "<D:getetag>"); got != 2 {
		t.Errorf("every response needs a getetag, got %d", got)
	}
	if !strings.Contains(out, "<![CDATA[BEGIN:VCALENDAR") {
		t.Errorf("calendar-data should be CDATA-wrapped:\n%s", out)
	}
}

func TestReportCalendarDataImpliesETag(t *testing.T) {
	h, _ := newTestHandler(testEvent())

	// Only calendar-data is requested; getetag must ride along.
	body := `<C:calendar-query xmlns:C="urn:ietf:params:xml:ns:caldav" xmlns:D="DAV:">
  <D:prop><C:calendar-data/></D:prop>
</C:calendar-query>`
	rec := httptest.NewRecorder()
	h.Report(rec, authedRequest("REPORT", "/caldav/calendars/1/", body))

	if !strings.Contains(rec.Body.String(), "<D:getetag>") {
		t.Errorf("getetag should pair with calendar-data:\n%s", rec.Body.String())
	}
}

func TestReportCalendarMultiget(t *testing.T) {
	ev1 := testEvent()
	ev3 := testEvent()
	ev3.ID = 3
	ev3.Title = "Third Event"

	h, _ := newTestHandler(ev1, ev3)

	// Three hrefs: two live, one deleted. The deleted one gets an
	// href-only 404 response with no propstat.
	body := `<C:calendar-multiget xmlns:C="urn:ietf:params:xml:ns:caldav" xmlns:D="DAV:">
  <D:prop><D:getetag/><C:calendar-data/></D:prop>
  <D:href>/caldav/calendars/1/event-1.ics</D:href>
  <D:href>/caldav/calendars/1/event-2.ics</D:href>
  <D:href>/caldav/calendars/1/event-3.ics</D:href>
</C:calendar-multiget>`
	rec := httptest.NewRecorder()
	h.Report(rec, authedRequest("REPORT", "/caldav/calendars/1/", body))

	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("status = %d, want 207", rec.Code)
	}
	out := rec.Body.String()
	if got := strings.Count(out, "<D:response>"); got != 3 {
		t.Fatalf("every requested href gets a response, got %d in:\n%s", got, out)
	}
	if got := strings.Count(out, "<D:propstat>"); got != 2 {
		t.Errorf("only live events carry propstats, got %d", got)
	}
	if !strings.Contains(out, "<D:href>/caldav/calendars/1/event-2.ics</D:href>") {
		t.Errorf("missing event href must still be echoed:\n%s", out)
	}
	if got := strings.Count(out, "HTTP/1.1 404 Not Found"); got != 1 {
		t.Errorf("expected exactly one 404 status, got %d", got)
	}
}

func TestReportMultigetForeignCalendarEvent(t *testing.T) {
	foreign := testEvent()
	foreign.ID = 5
	foreign.CalendarID = 2

	h, _ := newTestHandler(foreign)

	body := `<C:calendar-multiget xmlns:C="urn:ietf:params:xml:ns:caldav" xmlns:D="DAV:">
  <D:prop><D:getetag/></D:prop>
  <D:href>/caldav/calendars/1/event-5.ics</D:href>
</C:calendar-multiget>`
	rec := httptest.NewRecorder()
	h.Report(rec, authedRequest("REPORT", "/caldav/calendars/1/", body))

	out := rec.Body.String()
	// The event exists but belongs to another calendar: 404, not 200.
	if strings.Contains(out, "HTTP/1.1 200 OK") {
		t.Errorf("foreign calendar event must not be served:\n%s", out)
	}
	if !strings.Contains(out, "HTTP/1.1 404 Not Found") {
		t.Errorf("expected 404 response:\n%s", out)
	}
}

func TestReportFreeBusy(t *testing.T) {
	h, _ := newTestHandler(testEvent())

	body := `<C:free-busy-query xmlns:C="urn:ietf:params:xml:ns:caldav">
  <C:time-range start="20250101T000000Z" end="20250201T000000Z"/>
</C:free-busy-query>`
	rec := httptest.NewRecorder()
	h.Report(rec, authedRequest("REPORT", "/caldav/calendars/1/", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	out := rec.Body.String()
	if !strings.Contains(out, ":schedule-response") {
		t.Errorf("expected schedule-response envelope:\n%s", out)
	}
	if !strings.Contains(out, "BEGIN:VFREEBUSY") || !strings.Contains(out, "END:VFREEBUSY") {
		t.Errorf("expected empty VFREEBUSY body:\n%s", out)
	}
}

func TestReportOnEventResourceNotImplemented(t *testing.T) {
	h, _ := newTestHandler(testEvent())

	rec := httptest.NewRecorder()
	h.Report(rec, authedRequest("REPORT", "/caldav/calendars/1/event-1.ics", ""))

	if rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rec.Code)
	}
}
