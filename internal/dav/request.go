package dav

import (
	"strings"

	"github.com/beevik/etree"
)

// requestedProp is one property name asked for by the client. Lookup happens
// on the lower-cased form, but the original casing is kept because some
// clients expect unsupported names echoed back verbatim.
type requestedProp struct {
	Lower    string
	Original string
}

// parseBody parses a raw request body into a DOM, returning nil for empty or
// malformed XML. Callers degrade to documented defaults instead of failing.
func parseBody(body []byte) *etree.Document {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil
	}
	if doc.Root() == nil {
		return nil
	}
	return doc
}

// defaultPropfindProps is what an absent or empty PROPFIND body asks for.
var defaultPropfindProps = []requestedProp{{Lower: "resourcetype", Original: "resourcetype"}}

// parsePropfind extracts the requested property set from a PROPFIND body.
// The prop element is located by local name irrespective of prefix; a missing
// prop element means the default set.
func parsePropfind(doc *etree.Document) []requestedProp {
	props := requestedPropsFrom(doc)
	if len(props) == 0 {
		return defaultPropfindProps
	}
	return props
}

func requestedPropsFrom(doc *etree.Document) []requestedProp {
	if doc == nil {
		return nil
	}
	propEl := findByLocalName(doc.Root(), "prop")
	if propEl == nil {
		return nil
	}
	var props []requestedProp
	seen := make(map[string]bool)
	for _, child := range propEl.ChildElements() {
		lower := lowerASCII(child.Tag)
		if seen[lower] {
			continue
		}
		seen[lower] = true
		props = append(props, requestedProp{Lower: lower, Original: child.Tag})
	}
	return props
}

type reportKind int

const (
	reportCalendarQuery reportKind = iota
	reportCalendarMultiget
	reportFreeBusy
)

// reportBody is the classified REPORT request.
type reportBody struct {
	Kind  reportKind
	Hrefs []string
	Props []requestedProp
}

// defaultReportProps is used when a REPORT names no properties; clients that
// send a bare report still expect etag/data pairs back.
var defaultReportProps = []requestedProp{
	{Lower: "getetag", Original: "getetag"},
	{Lower: "calendar-data", Original: "calendar-data"},
}

// parseReport classifies the REPORT body: calendar-multiget when href
// children are present, a free-busy query on keyword match, and the default
// calendar-query (all events) otherwise.
func parseReport(doc *etree.Document) reportBody {
	rb := reportBody{Kind: reportCalendarQuery}
	if doc == nil {
		rb.Props = defaultReportProps
		return rb
	}

	rootTag := lowerASCII(doc.Root().Tag)
	walkElements(doc.Root(), func(el *etree.Element) {
		if lowerASCII(el.Tag) == "href" {
			if href := strings.TrimSpace(el.Text()); href != "" {
				rb.Hrefs = append(rb.Hrefs, href)
			}
		}
	})

	switch {
	case rootTag == "calendar-multiget" || len(rb.Hrefs) > 0:
		rb.Kind = reportCalendarMultiget
	case strings.Contains(rootTag, "free-busy-query") || strings.Contains(rootTag, "freebusy"):
		rb.Kind = reportFreeBusy
	}

	rb.Props = requestedPropsFrom(doc)
	if len(rb.Props) == 0 {
		rb.Props = defaultReportProps
	}
	return rb
}

// proppatchProp is one (namespace, name, value) triple from a PROPPATCH set.
type proppatchProp struct {
	Space string // canonical namespace URI, "" when the client never declared it
	Name  string // original-case local name
	Value string
}

// parseProppatch collects the set/prop subtree, resolving each element's
// namespace through the declarations gathered from the whole envelope.
func parseProppatch(doc *etree.Document, ns *nsContext) []proppatchProp {
	if doc == nil {
		return nil
	}
	setEl := findByLocalName(doc.Root(), "set")
	if setEl == nil {
		return nil
	}
	propEl := findByLocalName(setEl, "prop")
	if propEl == nil {
		return nil
	}
	var props []proppatchProp
	for _, child := range propEl.ChildElements() {
		props = append(props, proppatchProp{
			Space: ns.URI(child.Space),
			Name:  child.Tag,
			Value: strings.TrimSpace(child.Text()),
		})
	}
	return props
}

// findByLocalName returns the first element in document order whose local
// name matches, regardless of prefix or casing.
func findByLocalName(el *etree.Element, local string) *etree.Element {
	if el == nil {
		return nil
	}
	var found *etree.Element
	walkElements(el, func(e *etree.Element) {
		if found == nil && lowerASCII(e.Tag) == local {
			found = e
		}
	})
	return found
}
