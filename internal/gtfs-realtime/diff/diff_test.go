package diff

import (
	"testing"

	"github.com/hsltracker-data/pkg/gtfs/models"
)

func vehicle(id string, lat, lon float64) models.VehicleRecord {
	return models.VehicleRecord{
		VehicleID: id,
		RouteID:   "1001",
		Latitude:  lat,
		Longitude: lon,
		Speed:     "36 km/h",
	}
}

func TestCompareIdenticalSnapshots(t *testing.T) {
	snap := models.Snapshot{
		"a": vehicle("a", 60.17, 24.94),
		"b": vehicle("b", 60.18, 24.95),
	}

	delta := Compare(snap, snap)
	if !delta.IsEmpty() {
		t.Errorf("Expected empty delta for identical snapshots, got added=%d updated=%d removed=%d",
			len(delta.Added), len(delta.Updated), len(delta.Removed))
	}
}

func TestCompareAddedAndRemoved(t *testing.T) {
	previous := models.Snapshot{
		"a": vehicle("a", 60.17, 24.94),
		"b": vehicle("b", 60.18, 24.95),
	}
	current := models.Snapshot{
		"a": vehicle("a", 60.17, 24.94),
		"c": vehicle("c", 60.19, 24.96),
	}

	delta := Compare(previous, current)

	if len(delta.Added) != 1 || delta.Added[0].VehicleID != "c" {
		t.Errorf("Expected vehicle c added, got %v", delta.Added)
	}
	if len(delta.Removed) != 1 || delta.Removed[0] != "b" {
		t.Errorf("Expected vehicle b removed, got %v", delta.Removed)
	}
	if len(delta.Updated) != 0 {
		t.Errorf("Expected no updates, got %v", delta.Updated)
	}
}

func TestCompareAddedRemovedDisjoint(t *testing.T) {
	previous := models.Snapshot{"a": vehicle("a", 60.17, 24.94)}
	current := models.Snapshot{"b": vehicle("b", 60.18, 24.95)}

	delta := Compare(previous, current)

	added := make(map[string]bool)
	for _, v := range delta.Added {
		added[v.VehicleID] = true
	}
	for _, id := range delta.Removed {
		if added[id] {
			t.Errorf("Vehicle %s appears in both added and removed", id)
		}
	}
}

func TestCompareTrackedFieldChanges(t *testing.T) {
	base := vehicle("a", 60.17, 24.94)

	tests := []struct {
		name    string
		mutate  func(*models.VehicleRecord)
		changed bool
	}{
		{"latitude", func(v *models.VehicleRecord) { v.Latitude = 60.20 }, true},
		{"longitude", func(v *models.VehicleRecord) { v.Longitude = 24.99 }, true},
		{"bearing", func(v *models.VehicleRecord) { v.Bearing = 180 }, true},
		{"speed", func(v *models.VehicleRecord) { v.Speed = "40 km/h" }, true},
		{"stop id", func(v *models.VehicleRecord) { v.StopID = "HSL:1010105" }, true},
		{"current status", func(v *models.VehicleRecord) { v.CurrentStatus = "STOPPED_AT" }, true},
		{"headsign only", func(v *models.VehicleRecord) { v.Headsign = "Elsewhere" }, false},
		{"route name only", func(v *models.VehicleRecord) { v.RouteName = "2" }, false},
		{"timestamp only", func(v *models.VehicleRecord) { v.Timestamp = "2026-01-01T00:00:00Z" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mutated := base
			tt.mutate(&mutated)

			delta := Compare(models.Snapshot{"a": base}, models.Snapshot{"a": mutated})
			got := len(delta.Updated) == 1
			if got != tt.changed {
				t.Errorf("Expected changed=%v, got updated=%v", tt.changed, delta.Updated)
			}
			if len(delta.Added) != 0 || len(delta.Removed) != 0 {
				t.Errorf("Expected no additions or removals, got added=%v removed=%v", delta.Added, delta.Removed)
			}
		})
	}
}

func TestCompareEmptyPrevious(t *testing.T) {
	current := models.Snapshot{
		"a": vehicle("a", 60.17, 24.94),
		"b": vehicle("b", 60.18, 24.95),
	}

	delta := Compare(models.Snapshot{}, current)
	if len(delta.Added) != 2 {
		t.Errorf("Expected 2 added, got %d", len(delta.Added))
	}
	if len(delta.Updated) != 0 || len(delta.Removed) != 0 {
		t.Errorf("Expected only additions, got updated=%v removed=%v", delta.Updated, delta.Removed)
	}
}

func TestIsEmpty(t *testing.T) {
	if !(Delta{}).IsEmpty() {
		t.Error("Expected zero delta to be empty")
	}
	if (Delta{Removed: []string{"a"}}).IsEmpty() {
		t.Error("Expected delta with a removal to be non-empty")
	}
}
