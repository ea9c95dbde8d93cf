package progress

import (
	"regexp"
	"strings"
)

const (
	markerOpen  = "〔SRCID:"
	markerClose = "〕"
)

var markerPattern = regexp.MustCompile(`〔SRCID:([a-zA-Z0-9_-]+)〕`)

// FormatMarker returns the correlation token for id.
func FormatMarker(id string) string {
	return markerOpen + id + markerClose
}

// ExtractMarkers returns every source id embedded in description.
func ExtractMarkers(description string) []string {
	matches := markerPattern.FindAllStringSubmatch(description, -1)
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m[1])
	}
	return ids
}

// AppendMarker removes any existing markers from description and appends
// the marker for id after a blank line. When limit is positive the body is
// shortened (in runes) so the result, marker included, fits within limit.
func AppendMarker(description, id string, limit int) string {
	body := strings.TrimSpace(markerPattern.ReplaceAllString(description, ""))
	marker := FormatMarker(id)
	if body == "" {
		return marker
	}
	const sep = "\n\n"
	if limit > 0 {
		room := limit - len([]rune(marker)) - len(sep)
		if room <= 0 {
			return marker
		}
		if runes := []rune(body); len(runes) > room {
			body = strings.TrimSpace(string(runes[:room]))
		}
	}
	return body + sep + marker
}
