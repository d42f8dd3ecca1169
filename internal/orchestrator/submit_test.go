package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mkovach/fieldsync/internal/apperr"
	"github.com/mkovach/fieldsync/internal/codec"
	"github.com/mkovach/fieldsync/internal/models"
)

func noteForm(site string) NoteForm {
	return NoteForm{
		Site:       site,
		TimeIn:     fixedNow.Add(-2 * time.Hour),
		TimeOut:    fixedNow.Add(-1 * time.Hour),
		Names:      "R. Alvarez",
		Instrument: "lgr-7",
		LTS:        &TankSlotForm{ID: "CA07119", Value: "412.2", Unit: "ppm", Pressure: "1850"},
		Notes:      "routine check",
		UserID:     "ralvarez",
	}
}

func TestSubmitSiteNote_OnlineWritesNoteAndDerived(t *testing.T) {
	st := newStubStore()
	s := testService(t, st)

	res, err := s.SubmitSiteNote(context.Background(), noteForm("BRW"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Queued {
		t.Error("online submit reported queued")
	}

	note := codec.ParseNote([]byte(st.doc("site_notes/BRW.md")))
	if note.Site != "BRW" || len(note.Entries) != 1 {
		t.Fatalf("note = %+v", note)
	}
	if note.Entries[0].LTS == nil || note.Entries[0].LTS.ID != "CA07119" {
		t.Errorf("LTS slot = %+v", note.Entries[0].LTS)
	}

	recs := codec.ParseTankCSV([]byte(st.doc(tankLedgerPath)))
	if len(recs) != 1 || recs[0].TankID != "CA07119" || recs[0].Pressure != 1850 {
		t.Errorf("ledger rows = %+v", recs)
	}
	if rec, ok := s.ledger.Latest("CA07119"); !ok || rec.Location != "BRW" {
		t.Errorf("in-memory ledger = %+v, %v", rec, ok)
	}

	maint := st.doc(maintPath("analyzers", "lgr-7"))
	if !strings.Contains(maint, "Installed at BRW") {
		t.Errorf("maintenance doc = %q", maint)
	}
	if got := codec.CurrentSite(maint); got != "BRW" {
		t.Errorf("current site = %q", got)
	}
}

func TestSubmitSiteNote_TankSwapWritesRemovalFirst(t *testing.T) {
	st := newStubStore()
	s := testService(t, st)

	prevEntry := codec.BuildEntry(models.Entry{
		Names: "prior crew",
		LTS:   &models.TankInfo{ID: "CA05561", Value: "409.9", Unit: "ppm", Pressure: "400"},
	})
	st.seed("site_notes/MLO.md", codec.MergePrepend(codec.BuildNoteDocument("MLO"), prevEntry))
	s.ledger.Insert(models.TankRecord{
		TankID: "CA05561", UpdatedAt: fixedNow.AddDate(0, -6, 0), Pressure: 400, Location: "MLO",
		CO2: models.SpeciesStats{Value: "409.87", CalibrationFile: "cal_2025.txt"},
	})

	f := noteForm("MLO")
	if _, err := s.SubmitSiteNote(context.Background(), f); err != nil {
		t.Fatal(err)
	}

	recs := codec.ParseTankCSV([]byte(st.doc(tankLedgerPath)))
	if len(recs) != 2 {
		t.Fatalf("want removal + install rows, got %+v", recs)
	}
	// Rows are newest-first; the removal was written before the install
	// within the same prepend, so it keeps its earlier position.
	removal, install := recs[0], recs[1]
	if removal.TankID != "CA05561" {
		removal, install = install, removal
	}
	if removal.Location != depotLocation || removal.Pressure != depotPressure {
		t.Errorf("removal record = %+v", removal)
	}
	if removal.CO2.CalibrationFile != "cal_2025.txt" {
		t.Errorf("calibration metadata not carried through: %+v", removal.CO2)
	}
	if install.TankID != "CA07119" || install.Location != "MLO" {
		t.Errorf("install record = %+v", install)
	}
}

func TestSubmitSiteNote_InstrumentSwapUpdatesBothDocs(t *testing.T) {
	st := newStubStore()
	s := testService(t, st)

	old := "picarro-3"
	prevEntry := codec.BuildEntry(models.Entry{Names: "prior crew", Instrument: &old})
	st.seed("site_notes/SPO.md", codec.MergePrepend(codec.BuildNoteDocument("SPO"), prevEntry))

	if _, err := s.SubmitSiteNote(context.Background(), noteForm("SPO")); err != nil {
		t.Fatal(err)
	}

	removed := st.doc(maintPath("analyzers", "picarro-3"))
	if !strings.Contains(removed, "Removed from SPO") || codec.CurrentSite(removed) != depotLocation {
		t.Errorf("old instrument doc = %q", removed)
	}
	installed := st.doc(maintPath("analyzers", "lgr-7"))
	if !strings.Contains(installed, "Installed at SPO") || codec.CurrentSite(installed) != "SPO" {
		t.Errorf("new instrument doc = %q", installed)
	}
}

func TestSubmitSiteNote_PartialFailureAggregates(t *testing.T) {
	st := newStubStore()
	st.failPuts = 1 // site note lands, tank ledger put fails
	s := testService(t, st)

	res, err := s.SubmitSiteNote(context.Background(), noteForm("BRW"))
	var agg *apperr.AggregateError
	if !errors.As(err, &agg) {
		t.Fatalf("err = %v, want AggregateError", err)
	}
	if len(agg.Completed) != 1 || agg.Completed[0] != stepSiteNote || agg.Failed != stepTankLedger {
		t.Errorf("aggregate = %+v", agg)
	}
	if !strings.Contains(agg.Error(), "site note saved; tank ledger failed") {
		t.Errorf("message = %q", agg.Error())
	}
	// The landed note is not rolled back and nothing was queued.
	if st.doc("site_notes/BRW.md") == "" {
		t.Error("completed step rolled back")
	}
	if n, _ := s.queue.Depth(models.FamilySiteNotes); n != 0 {
		t.Error("partially failed submission was queued")
	}
	if res == nil || len(res.Steps) != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestSubmitSiteNote_OfflineQueuesEverything(t *testing.T) {
	st := newStubStore()
	st.offline = true
	s := testService(t, st)

	res, err := s.SubmitSiteNote(context.Background(), noteForm("BRW"))
	if err != nil {
		t.Fatalf("offline submit: %v", err)
	}
	if !res.Queued {
		t.Error("offline submit not reported queued")
	}
	if n, _ := s.queue.Depth(models.FamilySiteNotes); n != 1 {
		t.Errorf("site-notes depth = %d", n)
	}
	if n, _ := s.queue.Depth(models.FamilyTankUpdates); n != 1 {
		t.Errorf("tank-updates depth = %d", n)
	}
	if n, _ := s.queue.Depth(models.FamilyInstrumentMaint); n != 1 {
		t.Errorf("maintenance depth = %d", n)
	}
	// Queued tank records are visible locally right away.
	if _, ok := s.ledger.Latest("CA07119"); !ok {
		t.Error("queued tank record missing from in-memory ledger")
	}
}

func TestSubmitSiteNote_TransportBeforeFirstWriteFallsBack(t *testing.T) {
	st := newStubStore()
	st.failPuts = 0 // probe succeeds, first write does not
	s := testService(t, st)

	res, err := s.SubmitSiteNote(context.Background(), noteForm("BRW"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Queued {
		t.Error("fallback submission not queued")
	}
	if n, _ := s.queue.Depth(models.FamilySiteNotes); n != 1 {
		t.Errorf("site-notes depth = %d", n)
	}
}

func TestSubmitSiteNote_PriorEntryTransportErrorFallsBack(t *testing.T) {
	st := newStubStore()
	st.getErr = &apperr.TransportError{Op: "get", Err: errors.New("reset by peer")}
	s := testService(t, st)

	res, err := s.SubmitSiteNote(context.Background(), noteForm("BRW"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Queued {
		t.Error("submission not rerouted offline")
	}
	if n, _ := s.queue.Depth(models.FamilySiteNotes); n != 1 {
		t.Errorf("site-notes depth = %d", n)
	}
	// No writes may have been issued against an unreadable prior entry:
	// skipping derivation would lose the depot-removal records a swap owes.
	if len(st.putPaths) != 0 {
		t.Errorf("writes issued: %v", st.putPaths)
	}
}

func TestSubmitSiteNote_PriorEntryReadErrorFailsSubmission(t *testing.T) {
	st := newStubStore()
	st.getErr = errors.New("boom")
	s := testService(t, st)

	if _, err := s.SubmitSiteNote(context.Background(), noteForm("BRW")); err == nil {
		t.Error("non-transport read error ignored")
	}
	if n, _ := s.queue.Depth(models.FamilySiteNotes); n != 0 {
		t.Error("failed submission queued")
	}
	if len(st.putPaths) != 0 {
		t.Errorf("writes issued: %v", st.putPaths)
	}
}

func TestSubmitSiteNote_OfflinePartialQueueReported(t *testing.T) {
	st := newStubStore()
	st.offline = true
	queueDir := t.TempDir()
	// A directory where the tank family's log belongs makes that enqueue
	// fail after the site note is already queued.
	if err := os.Mkdir(filepath.Join(queueDir, "tank_updates.txt"), 0o755); err != nil {
		t.Fatal(err)
	}
	s := testServiceWithQueue(t, st, queueDir)

	res, err := s.SubmitSiteNote(context.Background(), noteForm("BRW"))
	var agg *apperr.AggregateError
	if !errors.As(err, &agg) {
		t.Fatalf("err = %v, want AggregateError", err)
	}
	if len(agg.Completed) != 1 || agg.Completed[0] != stepSiteNote || agg.Failed != stepTankLedger {
		t.Errorf("aggregate = %+v", agg)
	}
	// The caller learns the note is already queued, so a retry is a
	// deliberate choice rather than a silent duplicate.
	if res == nil || !res.Queued || len(res.Steps) != 1 {
		t.Errorf("result = %+v", res)
	}
	if n, _ := s.queue.Depth(models.FamilySiteNotes); n != 1 {
		t.Errorf("site-notes depth = %d", n)
	}
}

func TestSubmitSiteNote_ConflictNotQueued(t *testing.T) {
	st := newStubStore()
	st.putErr = apperr.ErrVersionConflict
	s := testService(t, st)

	_, err := s.SubmitSiteNote(context.Background(), noteForm("BRW"))
	if !errors.Is(err, apperr.ErrVersionConflict) {
		t.Fatalf("err = %v, want version conflict", err)
	}
	if n, _ := s.queue.Depth(models.FamilySiteNotes); n != 0 {
		t.Error("conflict submission was queued for replay")
	}
}

func TestSubmitSiteNote_ValidationRejectsBadSite(t *testing.T) {
	s := testService(t, newStubStore())
	f := noteForm("../escape")
	if _, err := s.SubmitSiteNote(context.Background(), f); err == nil {
		t.Error("path-escaping site id accepted")
	}
}

func TestSubmitTankReading_CarriesMetadata(t *testing.T) {
	st := newStubStore()
	s := testService(t, st)
	s.ledger.Insert(models.TankRecord{
		TankID: "CB09220", UpdatedAt: fixedNow.AddDate(0, -1, 0), Pressure: 1200,
		Serial: "SN-2214",
		CO2:    models.SpeciesStats{Value: "421.03", Stdev: "0.04", N: "12"},
	})

	_, err := s.SubmitTankReading(context.Background(), TankReadingForm{
		TankID: "CB09220", Pressure: 900, Location: "depot", UserID: "ralvarez",
	})
	if err != nil {
		t.Fatal(err)
	}

	recs := codec.ParseTankCSV([]byte(st.doc(tankLedgerPath)))
	if len(recs) != 1 {
		t.Fatalf("rows = %+v", recs)
	}
	got := recs[0]
	if got.Pressure != 900 || got.Serial != "SN-2214" || got.CO2.Value != "421.03" {
		t.Errorf("metadata not carried: %+v", got)
	}
}

func TestSubmitVisit_AppendsAtEnd(t *testing.T) {
	st := newStubStore()
	st.seed(visitLogPath, `{"date":"2026-03-01","name":"J. Kim","site":"BRW","equipment":"","notes":""}`+"\n")
	s := testService(t, st)

	_, err := s.SubmitVisit(context.Background(), VisitForm{Date: "2026-04-02", Name: "R. Alvarez", Site: "MLO"})
	if err != nil {
		t.Fatal(err)
	}
	visits := codec.ParseVisits([]byte(st.doc(visitLogPath)))
	if len(visits) != 2 || visits[1].Site != "MLO" {
		t.Errorf("visits = %+v", visits)
	}
}

func TestSubmitMaintenance_OfflineQueues(t *testing.T) {
	st := newStubStore()
	st.offline = true
	s := testService(t, st)

	res, err := s.SubmitMaintenance(context.Background(), MaintenanceForm{
		Instrument: "lgr-7", Note: "pump rebuilt", Name: "R. Alvarez",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Queued {
		t.Error("offline maintenance not queued")
	}
	if n, _ := s.queue.Depth(models.FamilyInstrumentMaint); n != 1 {
		t.Errorf("depth = %d", n)
	}
}

func TestSubmitBadData_OnlineAppendsRow(t *testing.T) {
	st := newStubStore()
	s := testService(t, st)

	_, err := s.SubmitBadData(context.Background(), BadDataForm{
		Site: "BRW", Instrument: "lgr-7",
		StartTime: "2026-03-10T00:00:00Z", EndTime: "2026-03-11T00:00:00Z",
		Reason: "pump failure", Name: "R. Alvarez",
	})
	if err != nil {
		t.Fatal(err)
	}
	doc := st.doc(badDataPath("BRW", "lgr-7"))
	if !strings.Contains(doc, "pump failure") {
		t.Errorf("bad data doc = %q", doc)
	}
}
