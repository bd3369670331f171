package enricher

import (
	"fmt"
	"math"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"

	"github.com/hsltracker-data/internal/common/logger"
	"github.com/hsltracker-data/internal/gtfs-static/store"
	"github.com/hsltracker-data/pkg/gtfs/models"
)

// routeAliases collapses the known variants of the H tram line into one
// canonical id. This is a finite alias table, not a prefix rule: the feed
// emits per-branch ids for what the map treats as a single line.
var routeAliases = map[string]string{
	"100HI": "100HE",
	"100HA": "100HE",
	"100HF": "100HE",
	"100HC": "100HE",
}

// CanonicalRouteID maps a feed route id to its canonical form.
func CanonicalRouteID(routeID string) string {
	if canonical, ok := routeAliases[routeID]; ok {
		return canonical
	}
	return routeID
}

// Exact route_type codes checked before the range buckets, so specific
// codes like the trunk bus override the generic bus range.
var vehicleTypeExact = map[int]string{
	0:   "tram",
	1:   "metro",
	2:   "train",
	3:   "bus",
	4:   "ferry",
	109: "train",
	702: "trunk-bus",
}

var vehicleTypeRanges = []struct {
	lo, hi int
	label  string
}{
	{100, 199, "train"},
	{400, 499, "metro"},
	{700, 799, "bus"},
	{900, 999, "tram"},
	{1000, 1199, "ferry"},
}

// ClassifyVehicleType buckets a GTFS route_type into a display label.
func ClassifyVehicleType(routeType int) string {
	if label, ok := vehicleTypeExact[routeType]; ok {
		return label
	}
	for _, r := range vehicleTypeRanges {
		if routeType >= r.lo && routeType <= r.hi {
			return r.label
		}
	}
	return "unknown"
}

// FormatSpeed renders a meters-per-second reading as a rounded km/h display
// string, e.g. 10 m/s -> "36 km/h".
func FormatSpeed(metersPerSecond float64) string {
	kmh := metersPerSecond * 3.6
	return fmt.Sprintf("%d km/h", int(math.Round(kmh)))
}

// occupancyLabels keys off the protobuf enum value so an upstream
// renumbering breaks at compile time instead of silently mistranslating.
// NO_DATA_AVAILABLE and values outside the table translate to null.
var occupancyLabels = map[gtfsrt.VehiclePosition_OccupancyStatus]string{
	gtfsrt.VehiclePosition_EMPTY:                      "Empty",
	gtfsrt.VehiclePosition_MANY_SEATS_AVAILABLE:       "Many seats available",
	gtfsrt.VehiclePosition_FEW_SEATS_AVAILABLE:        "Few seats available",
	gtfsrt.VehiclePosition_STANDING_ROOM_ONLY:         "Standing room only",
	gtfsrt.VehiclePosition_CRUSHED_STANDING_ROOM_ONLY: "Crushed standing room only",
	gtfsrt.VehiclePosition_FULL:                       "Full",
	gtfsrt.VehiclePosition_NOT_ACCEPTING_PASSENGERS:   "Not accepting passengers",
}

// OccupancyLabel translates the occupancy enum to a human-readable string,
// or nil when the feed carries no usable occupancy information.
func OccupancyLabel(status *gtfsrt.VehiclePosition_OccupancyStatus) *string {
	if status == nil {
		return nil
	}
	label, ok := occupancyLabels[*status]
	if !ok {
		return nil
	}
	return &label
}

// Enricher joins raw feed entities with the reference store into
// normalized vehicle records.
type Enricher struct {
	store  *store.Store
	logger logger.Logger
}

func New(refStore *store.Store, log logger.Logger) *Enricher {
	return &Enricher{store: refStore, logger: log}
}

// Normalize converts a decoded feed message into a snapshot. Missing
// reference data degrades to blank display fields and a malformed entity is
// skipped; neither fails the batch.
func (e *Enricher) Normalize(feed *gtfsrt.FeedMessage) models.Snapshot {
	snapshot := make(models.Snapshot, len(feed.Entity))

	for _, entity := range feed.Entity {
		vp := entity.GetVehicle()
		if vp == nil {
			continue
		}

		// Some producers omit the inner vehicle descriptor id; the feed
		// entity's own id is the documented fallback.
		vehicleID := vp.GetVehicle().GetId()
		if vehicleID == "" {
			vehicleID = entity.GetId()
		}
		if vehicleID == "" {
			e.logger.Debug("Skipping entity without a vehicle id")
			continue
		}

		trip := vp.GetTrip()
		routeID := CanonicalRouteID(trip.GetRouteId())
		directionID := int(trip.GetDirectionId())

		record := models.VehicleRecord{
			VehicleID:       vehicleID,
			RouteID:         routeID,
			DirectionID:     directionID,
			CurrentStatus:   vp.GetCurrentStatus().String(),
			OccupancyStatus: OccupancyLabel(vp.OccupancyStatus),
			StartTime:       trip.GetStartTime(),
			StopID:          vp.GetStopId(),
		}

		if pos := vp.GetPosition(); pos != nil {
			record.Latitude = float64(pos.GetLatitude())
			record.Longitude = float64(pos.GetLongitude())
			record.Bearing = float64(pos.GetBearing())
			record.Speed = FormatSpeed(float64(pos.GetSpeed()))
		}

		if ts := vp.GetTimestamp(); ts != 0 {
			record.Timestamp = time.Unix(int64(ts), 0).UTC().Format(time.RFC3339)
		}

		if route, ok := e.store.Route(routeID); ok {
			record.RouteName = route.RouteShortName
			record.RouteLongName = route.RouteLongName
			record.VehicleType = ClassifyVehicleType(route.RouteType)
		} else {
			record.VehicleType = "unknown"
		}

		if tripRec, ok := e.store.Trip(routeID, directionID); ok {
			record.Headsign = tripRec.TripHeadsign
		}

		if stop, ok := e.store.Stop(record.StopID); ok {
			record.StopName = stop.StopName
		}

		snapshot[vehicleID] = record
	}

	return snapshot
}
