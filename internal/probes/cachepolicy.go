package probes

import (
	"net/http"
	"strings"
)

// analyzeCachePolicy notes weak or legacy cache configuration for the
// report. These observations are informational and never become issues.
func analyzeCachePolicy(h http.Header) []string {
	cacheControl := h.Get("Cache-Control")
	expires := h.Get("Expires")
	pragma := h.Get("Pragma")

	var notes []string
	if cacheControl == "" && expires == "" {
		notes = append(notes, "no caching headers (Cache-Control or Expires) are set")
	}
	if cc := strings.ToLower(cacheControl); cacheControl != "" &&
		!strings.Contains(cc, "max-age") && !strings.Contains(cc, "no-cache") && !strings.Contains(cc, "no-store") {
		notes = append(notes, "Cache-Control lacks explicit max-age or no-cache directives")
	}
	if pragma == "no-cache" {
		notes = append(notes, "legacy Pragma: no-cache directive in use")
	}
	return notes
}
