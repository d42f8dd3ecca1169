package orchestrator

import (
	"context"
	"testing"

	"github.com/mkovach/fieldsync/internal/codec"
	"github.com/mkovach/fieldsync/internal/models"
)

func TestBootstrap_PrimesMirrorAndLedger(t *testing.T) {
	st := newStubStore()
	st.seed("site_notes/BRW.md", codec.BuildNoteDocument("BRW"))
	st.seed("site_notes/MLO.md", codec.BuildNoteDocument("MLO"))
	st.seed(tankLedgerPath, codec.PrependTankRows("", []string{
		codec.BuildTankRecordString(models.TankRecord{TankID: "CA07119", UpdatedAt: fixedNow, Pressure: 1850}),
	}))
	st.seed(visitLogPath, `{"date":"2026-04-02","name":"R. Alvarez","site":"BRW","equipment":"","notes":""}`+"\n")
	s := testService(t, st)

	if err := s.Bootstrap(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for _, path := range []string{"site_notes/BRW.md", "site_notes/MLO.md", tankLedgerPath, visitLogPath} {
		if _, err := s.mirror.Get(ctx, path); err != nil {
			t.Errorf("mirror missing %s: %v", path, err)
		}
	}
	if rec, ok := s.ledger.Latest("CA07119"); !ok || rec.Pressure != 1850 {
		t.Errorf("ledger = %+v, %v", rec, ok)
	}
}

func TestBootstrap_OfflineFallsBackToMirror(t *testing.T) {
	st := newStubStore()
	s := testService(t, st)

	// A previous session left a ledger CSV in the mirror.
	csv := codec.PrependTankRows("", []string{
		codec.BuildTankRecordString(models.TankRecord{TankID: "CB09220", UpdatedAt: fixedNow, Pressure: 700}),
	})
	if err := s.mirror.Write(tankLedgerPath, []byte(csv)); err != nil {
		t.Fatal(err)
	}

	st.offline = true
	if err := s.Bootstrap(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.ledger.Latest("CB09220"); !ok {
		t.Error("ledger not rebuilt from mirror while offline")
	}
}

func TestBootstrap_QueriesFallBackWhileOffline(t *testing.T) {
	st := newStubStore()
	s := testService(t, st)
	if err := s.mirror.Write(visitLogPath, []byte(`{"date":"2026-04-02","name":"J. Kim","site":"SPO","equipment":"","notes":""}`+"\n")); err != nil {
		t.Fatal(err)
	}

	st.offline = true
	visits, err := s.Visits(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(visits) != 1 || visits[0].Site != "SPO" {
		t.Errorf("visits = %+v", visits)
	}
}
