package dav

import "github.com/beevik/etree"

// Namespaces understood by this layer.
const (
	nsDAV            = "DAV:"
	nsCalDAV         = "urn:ietf:params:xml:ns:caldav"
	nsCalendarServer = "http://calendarserver.org/ns/"
	nsAppleICal      = "http://apple.com/ns/ical/"
)

// Conventional prefixes, used when a client does not declare its own.
var defaultPrefixes = map[string]string{
	nsDAV:            "D",
	nsCalDAV:         "C",
	nsCalendarServer: "CS",
	nsAppleICal:      "APPLE",
}

// Local names that identify a namespace when a client uses a prefix without
// declaring it. Consulted as a last resort against the parse tree.
var tagHints = map[string]string{
	"propfind":             nsDAV,
	"prop":                 nsDAV,
	"href":                 nsDAV,
	"calendar-query":       nsCalDAV,
	"calendar-multiget":    nsCalDAV,
	"calendar-data":        nsCalDAV,
	"calendar-home-set":    nsCalDAV,
	"free-busy-query":      nsCalDAV,
	"getctag":              nsCalendarServer,
	"calendar-color":       nsAppleICal,
	"calendar-order":       nsAppleICal,
}

// nsContext is the request-scoped namespace table: which prefix to mirror
// back for each canonical URI, and the client's declared prefix-to-URI map
// used to resolve PROPPATCH property namespaces. Immutable once built.
type nsContext struct {
	prefixFor map[string]string
	uriFor    map[string]string
}

// resolveNamespaces scans the parsed request body once for xmlns
// declarations and mirrors the client's prefixes. Strict clients reject
// multistatus bodies whose prefixes differ from their own request.
func resolveNamespaces(doc *etree.Document) *nsContext {
	ns := &nsContext{
		prefixFor: make(map[string]string, len(defaultPrefixes)),
		uriFor:    make(map[string]string),
	}
	for uri, prefix := range defaultPrefixes {
		ns.prefixFor[uri] = prefix
	}
	if doc == nil || doc.Root() == nil {
		return ns
	}

	walkElements(doc.Root(), func(el *etree.Element) {
		for _, attr := range el.Attr {
			if attr.Space == "" && attr.Key == "xmlns" {
				// Default namespace declaration; remembered for PROPPATCH
				// resolution but never mirrored as a prefix.
				ns.uriFor[""] = attr.Value
				continue
			}
			if attr.Space != "xmlns" || attr.Key == "" {
				continue
			}
			ns.uriFor[attr.Key] = attr.Value
			if _, known := defaultPrefixes[attr.Value]; known {
				ns.prefixFor[attr.Value] = attr.Key
			}
		}
	})

	// Clients occasionally use a prefix without declaring it; recover it
	// from how the prefix is actually used in the tree.
	walkElements(doc.Root(), func(el *etree.Element) {
		if el.Space == "" {
			return
		}
		if _, declared := ns.uriFor[el.Space]; declared {
			return
		}
		if uri, ok := tagHints[lowerASCII(el.Tag)]; ok {
			ns.uriFor[el.Space] = uri
			ns.prefixFor[uri] = el.Space
		}
	})

	return ns
}

// Prefix returns the prefix to emit for a canonical namespace URI.
func (ns *nsContext) Prefix(uri string) string {
	if p, ok := ns.prefixFor[uri]; ok && p != "" {
		return p
	}
	return defaultPrefixes[uri]
}

// URI resolves a client prefix to its namespace URI, or "" when undeclared.
func (ns *nsContext) URI(prefix string) string {
	return ns.uriFor[prefix]
}

func walkElements(el *etree.Element, fn func(*etree.Element)) {
	fn(el)
	for _, child := range el.ChildElements() {
		walkElements(child, fn)
	}
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
