package worker

import (
	"testing"

	"github.com/nexconsult/rera-harvester/internal/models"
	"github.com/stretchr/testify/assert"
)

type idSet map[int]bool

func (s idSet) Contains(id int) bool { return s[id] }

type entries []models.FailedEntry

func (e entries) Entries() []models.FailedEntry { return e }

func TestPlanRange(t *testing.T) {
	records := idSet{2: true, 4: true, 40: true}
	ledger := entries{{ProjectID: 3}, {ProjectID: 40}, {ProjectID: 99}, {ProjectID: 3}}

	tests := []struct {
		name          string
		skipExisting  bool
		includeFailed bool
		want          Plan
	}{
		{"everything", false, false, Plan{IDs: []int{1, 2, 3, 4, 5}}},
		{"skip existing", true, false, Plan{IDs: []int{1, 3, 5}, Skipped: 2}},
		{"include failed", false, true, Plan{IDs: []int{1, 2, 4, 5}, RetryIDs: []int{3, 99}}},
		{"resume", true, true, Plan{IDs: []int{1, 5}, RetryIDs: []int{3, 99}, Skipped: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PlanRange(1, 5, records, ledger, tt.skipExisting, tt.includeFailed)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlanRangeWithoutTables(t *testing.T) {
	got := PlanRange(7, 9, nil, nil, true, true)
	assert.Equal(t, []int{7, 8, 9}, got.IDs)
	assert.Empty(t, got.RetryIDs)
}
