package worker

import "github.com/nexconsult/rera-harvester/internal/models"

// Existing reports IDs already in the record table.
type Existing interface {
	Contains(projectID int) bool
}

// Outstanding lists the entries of the failed ledger.
type Outstanding interface {
	Entries() []models.FailedEntry
}

// Plan is the work of one run.
type Plan struct {
	IDs      []int
	RetryIDs []int
	Skipped  int
}

// PlanRange builds the work for [start, end]. With skipExisting, IDs already
// recorded are left out. With includeFailed, outstanding ledger entries that
// are not yet recorded go straight to the retry queue and are removed from the
// primary list so no ID is scheduled twice.
func PlanRange(start, end int, records Existing, ledger Outstanding, skipExisting, includeFailed bool) Plan {
	var plan Plan

	seeded := make(map[int]bool)
	if includeFailed && ledger != nil {
		for _, e := range ledger.Entries() {
			if seeded[e.ProjectID] || (records != nil && records.Contains(e.ProjectID)) {
				continue
			}
			seeded[e.ProjectID] = true
			plan.RetryIDs = append(plan.RetryIDs, e.ProjectID)
		}
	}

	for id := start; id <= end; id++ {
		if seeded[id] {
			continue
		}
		if skipExisting && records != nil && records.Contains(id) {
			plan.Skipped++
			continue
		}
		plan.IDs = append(plan.IDs, id)
	}
	return plan
}
