package orchestrator

// Repository layout of the document families.
const (
	siteNotesDir       = "site_notes"
	instrumentMaintDir = "instrument_maint"
	badDataDir         = "bad"
	tankLedgerPath     = "tank_tracker/tank_db.csv"
	visitLogPath       = "researchflow_data/visits.md"
)

// Tanks removed from a site are recorded back at the depot with the
// pressure sentinel, so the ledger shows them off-site.
const (
	depotLocation = "depot"
	depotPressure = 0
)

func siteNotePath(site string) string {
	return siteNotesDir + "/" + site + ".md"
}

func maintPath(family, instrument string) string {
	return instrumentMaintDir + "/" + family + "/" + instrument + ".md"
}

func badDataPath(site, instrument string) string {
	return badDataDir + "/" + site + "/" + instrument + ".csv"
}
