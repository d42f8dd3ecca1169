package codec

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// maintMarker ends the fixed preamble of an instrument maintenance
// document. New notes are prepended immediately after it.
const maintMarker = "Maintenance Log\n---"

var currentSiteRe = regexp.MustCompile(`(?m)^Currently at (.+)$`)

// BuildMaintDocument returns a fresh maintenance document. site is
// included as a "Currently at" location line only for instruments that
// move between sites; pass "" for bench instruments.
func BuildMaintDocument(instrument, site string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Instrument: **%s**\n\n", instrument)
	if site != "" {
		fmt.Fprintf(&b, "Currently at %s\n\n", site)
	}
	b.WriteString(maintMarker + "\n")
	return b.String()
}

// BuildMaintNote renders one maintenance note line.
func BuildMaintNote(ts time.Time, author, note string) string {
	return fmt.Sprintf("- %s [%s] %s\n", ts.UTC().Format(timeLayout), Sanitize(author), Sanitize(note))
}

// PrependMaintNote inserts a note immediately after the maintenance
// marker, before all prior notes. A document missing the marker gains
// one at the end, so the note is never lost.
func PrependMaintNote(doc, note string) string {
	idx := strings.Index(doc, maintMarker)
	if idx < 0 {
		if doc != "" && !strings.HasSuffix(doc, "\n") {
			doc += "\n"
		}
		return doc + maintMarker + "\n" + note
	}
	insertAt := idx + len(maintMarker)
	if insertAt < len(doc) && doc[insertAt] == '\n' {
		insertAt++
	}
	return doc[:insertAt] + note + doc[insertAt:]
}

// CurrentSite returns the instrument's current location line, or "".
func CurrentSite(doc string) string {
	if m := currentSiteRe.FindStringSubmatch(doc); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// SetCurrentSite replaces the "Currently at" line, or inserts one above
// the maintenance marker when the document has none.
func SetCurrentSite(doc, site string) string {
	line := "Currently at " + site
	if currentSiteRe.MatchString(doc) {
		return currentSiteRe.ReplaceAllString(doc, line)
	}
	idx := strings.Index(doc, maintMarker)
	if idx < 0 {
		return doc + line + "\n"
	}
	return doc[:idx] + line + "\n\n" + doc[idx:]
}
