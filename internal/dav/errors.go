package dav

import (
	"net/http"

	"github.com/beevik/etree"
)

// writeDAVError emits a minimal DAV-namespaced XML error body. CalDAV clients
// choke on JSON error payloads, so every failure surface here is XML.
func writeDAVError(w http.ResponseWriter, status int, message string) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	el := doc.CreateElement("error")
	el.CreateAttr("xmlns", "DAV:")
	el.SetText(message)

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(status)
	_, _ = doc.WriteTo(w)
}
