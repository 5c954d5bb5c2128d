package auth

import (
	"context"

	"github.com/daybook-app/daybook/internal/store"
)

type contextKey string

const contextKeyCalendar contextKey = "caldav_calendar"

// CalendarContext carries the calendar and credential record resolved by the
// Basic-auth gate for the duration of one request.
type CalendarContext struct {
	Calendar   *store.Calendar
	Credential *store.CaldavCredential
}

func WithCalendar(ctx context.Context, cc *CalendarContext) context.Context {
	return context.WithValue(ctx, contextKeyCalendar, cc)
}

func CalendarFromContext(ctx context.Context) (*CalendarContext, bool) {
	cc, ok := ctx.Value(contextKeyCalendar).(*CalendarContext)
	return cc, ok
}
