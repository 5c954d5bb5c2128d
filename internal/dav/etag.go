package dav

import (
	"fmt"
	"strconv"
	"time"
)

// Cache tokens are derived from persisted timestamps only, so they survive
// restarts and change exactly when the underlying row changes (RFC 7232
// strong-etag syntax, hex epoch millis).
//
// The collection ETag is keyed on createdAt and the CTag on updatedAt, with
// distinct prefixes: clients that cache the collection resource itself must
// never confuse its identity token with the content-version token.

func hexMillis(t time.Time) string {
	return strconv.FormatInt(t.UTC().UnixMilli(), 16)
}

// EventETag identifies one version of one event. The event id is embedded to
// avoid collisions between events updated in the same millisecond.
func EventETag(id int64, updatedAt time.Time) string {
	return fmt.Sprintf("%q", fmt.Sprintf("event-%d-%s", id, hexMillis(updatedAt)))
}

// CollectionETag identifies the calendar collection resource itself.
func CollectionETag(id int64, createdAt time.Time) string {
	return fmt.Sprintf("%q", fmt.Sprintf("cal-%d-%s", id, hexMillis(createdAt)))
}

// CollectionCTag changes whenever any event under the calendar, or the
// calendar's own updatable fields, changed. It is insensitive to activity on
// other calendars.
func CollectionCTag(id int64, updatedAt time.Time) string {
	return fmt.Sprintf("%q", fmt.Sprintf("ctag-%d-%s", id, hexMillis(updatedAt)))
}

// CollectionSyncToken is the sync-token form of the CTag.
func CollectionSyncToken(id int64, updatedAt time.Time) string {
	return fmt.Sprintf("urn:daybook-sync:cal:%d:%s", id, hexMillis(updatedAt))
}
