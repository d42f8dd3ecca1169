package codec

import (
	"bytes"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/mkovach/fieldsync/internal/models"
)

// tankCSVColumns is the fixed column order of the tank ledger CSV.
// The tail of the row carries calibration metadata that is copied
// through unchanged when a record is derived from a prior one.
var tankCSVColumns = []string{
	"fill_id", "serial", "updated_at", "pressure", "location", "owner",
	"co2", "co2_stdev", "co2_sterr", "co2_n", "co2_relative_to", "co2_calibration_file", "co2_instrument_id",
	"ch4", "ch4_stdev", "ch4_sterr", "ch4_n", "ch4_relative_to", "ch4_calibration_file", "ch4_instrument_id",
	"co", "co_stdev", "co_sterr", "co_n", "co_relative_to", "co_calibration_file", "co_instrument_id",
	"d13c", "d13c_stdev", "d13c_sterr", "d13c_n",
	"otto_calibration_file", "test_code", "comment", "user_id", "tank_id",
}

// TankCSVHeader is the header row of the tank ledger document.
var TankCSVHeader = strings.Join(tankCSVColumns, ",") + "\n"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseTankCSV decodes the full ledger CSV into records, in file order.
// The blob may carry a UTF-8 BOM (a quirk of the upstream storage);
// short or malformed rows are skipped rather than failing the rebuild.
func ParseTankCSV(data []byte) []models.TankRecord {
	data = bytes.TrimPrefix(data, utf8BOM)
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	var out []models.TankRecord
	first := true
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if first {
			first = false
			if len(row) > 0 && row[0] == "fill_id" {
				continue
			}
		}
		if len(row) < 4 {
			continue
		}
		out = append(out, tankRecordFromRow(row))
	}
	return out
}

func tankRecordFromRow(row []string) models.TankRecord {
	// Pad so positional access below never goes out of range.
	if len(row) < len(tankCSVColumns) {
		padded := make([]string, len(tankCSVColumns))
		copy(padded, row)
		row = padded
	}

	var rec models.TankRecord
	rec.FillID = row[0]
	rec.Serial = row[1]
	if t, err := time.Parse(timeLayout, row[2]); err == nil {
		rec.UpdatedAt = t.UTC()
	}
	if p, err := strconv.ParseFloat(row[3], 64); err == nil {
		rec.Pressure = p
	}
	rec.Location = row[4]
	rec.Owner = row[5]
	rec.CO2 = speciesFromRow(row[6:13])
	rec.CH4 = speciesFromRow(row[13:20])
	rec.CO = speciesFromRow(row[20:27])
	rec.D13C = models.IsotopeStats{Value: row[27], Stdev: row[28], Sterr: row[29], N: row[30]}
	rec.OttoFile = row[31]
	rec.TestCode = row[32]
	rec.Comment = row[33]
	rec.UserID = row[34]
	rec.TankID = row[35]
	return rec
}

func speciesFromRow(cols []string) models.SpeciesStats {
	return models.SpeciesStats{
		Value:           cols[0],
		Stdev:           cols[1],
		Sterr:           cols[2],
		N:               cols[3],
		RelativeTo:      cols[4],
		CalibrationFile: cols[5],
		InstrumentID:    cols[6],
	}
}

// BuildTankRecordString encodes one record as a CSV row (with trailing
// newline). Free-text fields are quoted by the CSV writer as needed.
func BuildTankRecordString(rec models.TankRecord) string {
	row := make([]string, 0, len(tankCSVColumns))
	updated := ""
	if !rec.UpdatedAt.IsZero() {
		updated = rec.UpdatedAt.UTC().Format(timeLayout)
	}
	row = append(row, rec.FillID, rec.Serial, updated,
		strconv.FormatFloat(rec.Pressure, 'f', -1, 64), rec.Location, rec.Owner)
	row = append(row, speciesCols(rec.CO2)...)
	row = append(row, speciesCols(rec.CH4)...)
	row = append(row, speciesCols(rec.CO)...)
	row = append(row, rec.D13C.Value, rec.D13C.Stdev, rec.D13C.Sterr, rec.D13C.N)
	row = append(row, rec.OttoFile, rec.TestCode, rec.Comment, rec.UserID, rec.TankID)

	var b strings.Builder
	w := csv.NewWriter(&b)
	_ = w.Write(row)
	w.Flush()
	return b.String()
}

func speciesCols(s models.SpeciesStats) []string {
	return []string{s.Value, s.Stdev, s.Sterr, s.N, s.RelativeTo, s.CalibrationFile, s.InstrumentID}
}

// PrependTankRows inserts new rows after the header row and before all
// prior rows. An empty document gains the fixed header first.
func PrependTankRows(doc string, rows []string) string {
	if strings.TrimSpace(doc) == "" {
		doc = TankCSVHeader
	}
	var block strings.Builder
	for _, r := range rows {
		block.WriteString(strings.TrimRight(r, "\n") + "\n")
	}
	idx := strings.Index(doc, "\n")
	if idx < 0 {
		return doc + "\n" + block.String()
	}
	return doc[:idx+1] + block.String() + doc[idx+1:]
}
