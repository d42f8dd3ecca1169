package codec

import (
	"encoding/json"
	"strings"

	"github.com/mkovach/fieldsync/internal/models"
)

// ParseVisits decodes the flat visit log: one JSON object per line.
// Lines that fail to decode, or records without a date, are dropped.
// (Asymmetric with entry parsing, which preserves unparseable blocks;
// a visit without a date cannot be placed on any calendar.)
func ParseVisits(data []byte) []models.VisitInfo {
	var out []models.VisitInfo
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var v models.VisitInfo
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			continue
		}
		if v.Date == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

// BuildVisitLine serializes one visit as a single JSON line.
func BuildVisitLine(v models.VisitInfo) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b) + "\n"
}

// AppendVisitLine appends a visit line at the end of the log document.
// Unlike site notes, the visit log grows downward.
func AppendVisitLine(doc, line string) string {
	if doc != "" && !strings.HasSuffix(doc, "\n") {
		doc += "\n"
	}
	return doc + line
}
