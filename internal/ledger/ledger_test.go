package ledger

import (
	"testing"
	"time"

	"github.com/mkovach/fieldsync/internal/codec"
	"github.com/mkovach/fieldsync/internal/models"
)

func rec(id string, at time.Time, pressure float64) models.TankRecord {
	return models.TankRecord{TankID: id, UpdatedAt: at, Pressure: pressure, Location: "BRW"}
}

func TestLatest_MonotonicRegardlessOfInsertOrder(t *testing.T) {
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(24 * time.Hour)
	t3 := t2.Add(24 * time.Hour)

	orders := [][]models.TankRecord{
		{rec("T1", t1, 2000), rec("T1", t2, 1800), rec("T1", t3, 1600)},
		{rec("T1", t3, 1600), rec("T1", t1, 2000), rec("T1", t2, 1800)},
		{rec("T1", t2, 1800), rec("T1", t3, 1600), rec("T1", t1, 2000)},
	}
	for i, order := range orders {
		l := New()
		for _, r := range order {
			l.Insert(r)
		}
		latest, ok := l.Latest("T1")
		if !ok || !latest.UpdatedAt.Equal(t3) {
			t.Errorf("order %d: latest.UpdatedAt = %v, want %v", i, latest.UpdatedAt, t3)
		}
	}
}

func TestLatest_TieLaterInsertWins(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := New()
	l.Insert(rec("T1", at, 1000))
	second := rec("T1", at, 990)
	second.Comment = "re-read"
	l.Insert(second)

	latest, ok := l.Latest("T1")
	if !ok || latest.Comment != "re-read" {
		t.Errorf("tie broken wrong way: %+v", latest)
	}
}

func TestLatest_UnknownTank(t *testing.T) {
	l := New()
	if _, ok := l.Latest("nope"); ok {
		t.Error("Latest on unknown tank reported ok")
	}
}

func TestLatestFold_CaseFallback(t *testing.T) {
	l := New()
	l.Insert(rec("CA07232", time.Now().UTC(), 1500))
	if _, ok := l.Latest("ca07232"); ok {
		t.Error("Latest should be case-sensitive")
	}
	if _, ok := l.LatestFold("ca07232"); !ok {
		t.Error("LatestFold missed case-insensitive match")
	}
}

func TestRebuild_ThenInsert(t *testing.T) {
	t1 := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	blob := codec.PrependTankRows("", []string{
		codec.BuildTankRecordString(rec("T1", t1, 2000)),
		codec.BuildTankRecordString(rec("T2", t1, 1100)),
	})

	l := New()
	l.Rebuild([]byte(blob))
	if got := l.IDs(); len(got) != 2 {
		t.Fatalf("ids = %v, want 2 tanks", got)
	}

	l.Insert(rec("T1", t1.Add(time.Hour), 1950))
	latest, _ := l.Latest("T1")
	if latest.Pressure != 1950 {
		t.Errorf("latest pressure = %v, want 1950", latest.Pressure)
	}
	if len(l.History("T1")) != 2 {
		t.Errorf("history length = %d, want 2", len(l.History("T1")))
	}

	// Rebuild replaces everything, including prior inserts.
	l.Rebuild([]byte(blob))
	if len(l.History("T1")) != 1 {
		t.Errorf("rebuild did not replace ledger")
	}
}
