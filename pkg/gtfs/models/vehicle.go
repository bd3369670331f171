package models

// VehicleRecord is the enriched, serializable unit pushed to viewers.
// Field names follow the wire contract the map client consumes.
type VehicleRecord struct {
	VehicleID       string  `json:"vehicleId"`
	RouteID         string  `json:"routeId"`
	RouteName       string  `json:"routeName"`
	RouteLongName   string  `json:"routeLongName"`
	DirectionID     int     `json:"directionId"`
	Headsign        string  `json:"headsign"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	Bearing         float64 `json:"bearing"`
	Speed           string  `json:"speed"`
	Timestamp       string  `json:"timestamp"`
	StopID          string  `json:"stopId"`
	StopName        string  `json:"stopName"`
	CurrentStatus   string  `json:"currentStatus"`
	OccupancyStatus *string `json:"occupancyStatus"`
	StartTime       string  `json:"startTime"`
	VehicleType     string  `json:"vehicleType"`
}

// Snapshot maps vehicle id to its latest enriched record. A snapshot is
// replaced wholesale after each successful poll, never mutated in place.
type Snapshot map[string]VehicleRecord

// Records returns the snapshot's records as a slice for serialization.
func (s Snapshot) Records() []VehicleRecord {
	out := make([]VehicleRecord, 0, len(s))
	for _, rec := range s {
		out = append(out, rec)
	}
	return out
}
