package diff

import "github.com/hsltracker-data/pkg/gtfs/models"

// Delta is the minimal add/update/remove reduction between two consecutive
// snapshots.
type Delta struct {
	Added   []models.VehicleRecord `json:"added"`
	Updated []models.VehicleRecord `json:"updated"`
	Removed []string               `json:"removed"`
}

// IsEmpty reports whether the delta carries no changes at all. An empty
// delta is never broadcast.
func (d Delta) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Updated) == 0 && len(d.Removed) == 0
}

// Compare reduces two successive full snapshots to a delta. A vehicle
// absent one cycle and reappearing later comes back as a fresh add; no
// identity continuity is preserved across the gap.
func Compare(previous, current models.Snapshot) Delta {
	var d Delta

	for id, curr := range current {
		prev, exists := previous[id]
		if !exists {
			d.Added = append(d.Added, curr)
		} else if changed(prev, curr) {
			d.Updated = append(d.Updated, curr)
		}
	}

	for id := range previous {
		if _, exists := current[id]; !exists {
			d.Removed = append(d.Removed, id)
		}
	}

	return d
}

// changed compares only the fields that represent actual vehicle movement
// or state. Display-only fields from the reference join are excluded to
// avoid churn when static data resolves differently.
func changed(prev, curr models.VehicleRecord) bool {
	return prev.Latitude != curr.Latitude ||
		prev.Longitude != curr.Longitude ||
		prev.Bearing != curr.Bearing ||
		prev.Speed != curr.Speed ||
		prev.StopID != curr.StopID ||
		prev.CurrentStatus != curr.CurrentStatus
}
