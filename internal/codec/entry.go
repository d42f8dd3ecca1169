// Package codec converts between the field documents (markdown entry
// logs, the visit log, the tank-ledger CSV, maintenance logs, bad-data
// CSVs) and typed records. All functions are pure; parsing is total and
// degrades to nil fields instead of failing, because remote documents
// are occasionally hand-edited and the app must stay usable regardless.
package codec

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mkovach/fieldsync/internal/models"
)

const (
	entryDelimiter = "---\n"
	timeLayout     = time.RFC3339
)

var siteHeaderRe = regexp.MustCompile(`^# Site id: \*\*(.*?)\*\*`)

// Field matchers, applied per line and independently of each other.
// A line matching none of them is free-text and lands in AdditionalNotes.
var (
	timeInRe     = regexp.MustCompile(`^- Time in: (.+)$`)
	timeOutRe    = regexp.MustCompile(`^- Time out: (.+)$`)
	nameRe       = regexp.MustCompile(`^- Name: "(.*)"$`)
	instrumentRe = regexp.MustCompile(`^- Instrument: (.+)$`)
	n2Re         = regexp.MustCompile(`^- N2 pressure: (.+)$`)

	// Tank slot lines: "- LTS: <id> - <value> <unit> - <pressure>".
	slotRes = map[models.SlotName]*regexp.Regexp{
		models.SlotLTS:     regexp.MustCompile(`^- LTS: (.*?) - (.*?) ([^ ]+) - (.*)$`),
		models.SlotLowCal:  regexp.MustCompile(`^- Low cal: (.*?) - (.*?) ([^ ]+) - (.*)$`),
		models.SlotMidCal:  regexp.MustCompile(`^- Mid cal: (.*?) - (.*?) ([^ ]+) - (.*)$`),
		models.SlotHighCal: regexp.MustCompile(`^- High cal: (.*?) - (.*?) ([^ ]+) - (.*)$`),
	}
)

var slotLabels = map[models.SlotName]string{
	models.SlotLTS:     "LTS",
	models.SlotLowCal:  "Low cal",
	models.SlotMidCal:  "Mid cal",
	models.SlotHighCal: "High cal",
}

// BuildNoteDocument returns the fixed header of a fresh site note
// document. Entry blocks are prepended below it by MergePrepend.
func BuildNoteDocument(site string) string {
	return fmt.Sprintf("# Site id: **%s**\n", site)
}

// ParseNote splits a site note document into its header and entry
// blocks. Blocks are delimited by "---\n" and returned newest-first,
// matching their order in the document. A block with no recognizable
// fields yields an all-nil Entry; it is never dropped.
func ParseNote(data []byte) *models.ParsedNote {
	segments := strings.Split(string(data), entryDelimiter)
	pn := &models.ParsedNote{}
	if m := siteHeaderRe.FindStringSubmatch(segments[0]); m != nil {
		pn.Site = m[1]
	}
	for _, seg := range segments[1:] {
		if strings.TrimSpace(seg) == "" {
			continue
		}
		pn.Entries = append(pn.Entries, parseEntryBlock(seg))
	}
	return pn
}

// parseEntryBlock extracts each field with an independent pattern match.
// Absent fields stay nil; unmatched non-blank lines become notes.
func parseEntryBlock(block string) models.Entry {
	var e models.Entry
	var notes []string

	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if m := timeInRe.FindStringSubmatch(line); m != nil {
			e.TimeIn = parseTime(m[1])
			continue
		}
		if m := timeOutRe.FindStringSubmatch(line); m != nil {
			e.TimeOut = parseTime(m[1])
			continue
		}
		if m := nameRe.FindStringSubmatch(line); m != nil {
			e.Names = Unsanitize(m[1])
			continue
		}
		if m := instrumentRe.FindStringSubmatch(line); m != nil {
			v := Unsanitize(strings.TrimSpace(m[1]))
			e.Instrument = &v
			continue
		}
		if m := n2Re.FindStringSubmatch(line); m != nil {
			v := Unsanitize(strings.TrimSpace(m[1]))
			e.N2Pressure = &v
			continue
		}
		matched := false
		for slot, re := range slotRes {
			m := re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			info := &models.TankInfo{
				ID:       Unsanitize(strings.TrimSpace(m[1])),
				Value:    Unsanitize(strings.TrimSpace(m[2])),
				Unit:     Unsanitize(m[3]),
				Pressure: Unsanitize(strings.TrimSpace(m[4])),
			}
			setSlot(&e, slot, info)
			matched = true
			break
		}
		if matched {
			continue
		}
		notes = append(notes, line)
	}

	if len(notes) > 0 {
		e.AdditionalNotes = Unsanitize(strings.Join(notes, "\n"))
	}
	return e
}

func setSlot(e *models.Entry, name models.SlotName, info *models.TankInfo) {
	switch name {
	case models.SlotLTS:
		e.LTS = info
	case models.SlotLowCal:
		e.LowCal = info
	case models.SlotMidCal:
		e.MidCal = info
	case models.SlotHighCal:
		e.HighCal = info
	}
}

func parseTime(s string) *time.Time {
	t, err := time.Parse(timeLayout, strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

// BuildEntry renders a single entry block. Optional lines appear only
// when the corresponding field is set, so parse(build(e)) reconstructs
// exactly the non-nil fields of e.
func BuildEntry(e models.Entry) string {
	var b strings.Builder
	if e.TimeIn != nil {
		fmt.Fprintf(&b, "- Time in: %s\n", e.TimeIn.UTC().Format(timeLayout))
	}
	if e.TimeOut != nil {
		fmt.Fprintf(&b, "- Time out: %s\n", e.TimeOut.UTC().Format(timeLayout))
	}
	if e.Names != "" {
		fmt.Fprintf(&b, "- Name: \"%s\"\n", Sanitize(e.Names))
	}
	if e.Instrument != nil {
		fmt.Fprintf(&b, "- Instrument: %s\n", Sanitize(*e.Instrument))
	}
	if e.N2Pressure != nil {
		fmt.Fprintf(&b, "- N2 pressure: %s\n", Sanitize(*e.N2Pressure))
	}
	for _, slot := range models.SlotNames {
		info := e.Slot(slot)
		if info == nil {
			continue
		}
		unit := info.Unit
		if unit == "" {
			unit = "ppm"
		}
		fmt.Fprintf(&b, "- %s: %s - %s %s - %s\n", slotLabels[slot],
			Sanitize(info.ID), Sanitize(info.Value), Sanitize(unit), Sanitize(info.Pressure))
	}
	if e.AdditionalNotes != "" {
		b.WriteString(Sanitize(e.AdditionalNotes) + "\n")
	}
	return b.String()
}

// MergePrepend inserts a new entry block immediately after the site
// header line and before every prior entry, so ParseNote always sees
// newest-first ordering.
func MergePrepend(doc, entryText string) string {
	block := entryDelimiter + strings.TrimRight(entryText, "\n") + "\n"
	idx := strings.Index(doc, "\n")
	if idx < 0 {
		return doc + "\n" + block
	}
	return doc[:idx+1] + block + doc[idx+1:]
}
