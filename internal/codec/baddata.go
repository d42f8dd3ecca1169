package codec

import (
	"encoding/csv"
	"strings"

	"github.com/mkovach/fieldsync/internal/models"
)

// BuildBadDataRow encodes one flagged interval as a CSV row:
// startTime,endTime,oldId,newId,loggedAt,name,reason.
func BuildBadDataRow(r models.BadDataRow) string {
	logged := ""
	if !r.LoggedAt.IsZero() {
		logged = r.LoggedAt.UTC().Format(timeLayout)
	}
	var b strings.Builder
	w := csv.NewWriter(&b)
	_ = w.Write([]string{r.StartTime, r.EndTime, r.OldID, r.NewID, logged, r.Name, r.Reason})
	w.Flush()
	return b.String()
}

// AppendBadDataRow appends a row at the end of a bad-data document.
func AppendBadDataRow(doc, row string) string {
	if doc != "" && !strings.HasSuffix(doc, "\n") {
		doc += "\n"
	}
	return doc + row
}
