package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"

	"github.com/hsltracker-data/internal/common/logger"
	"github.com/hsltracker-data/internal/gtfs-static/parser"
	"github.com/hsltracker-data/internal/gtfs-static/store"
	"github.com/hsltracker-data/internal/hub"
	"github.com/hsltracker-data/pkg/gtfs/models"
)

var apiFixture = map[string]string{
	"routes.txt": "route_id,route_short_name,route_long_name,route_type\n" +
		"1001,1,Eira - Kapyla,0\n" +
		"2002,2,Katajanokka - Lansiterminaali,0\n",
	"stops.txt": "stop_id,stop_name,stop_lat,stop_lon\n" +
		"HSL:1010101,Kauppatori,60.1675,24.9525\n" +
		"HSL:1010102,Senaatintori,60.1695,24.9522\n" +
		"HSL:1010103,Pasila,60.1988,24.9335\n",
	"calendar.txt": "service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date\n" +
		"always,1,1,1,1,1,1,1,20200101,20401231\n" +
		"never,0,0,0,0,0,0,0,20200101,20401231\n",
	"calendar_dates.txt": "service_id,date,exception_type\n",
	"shapes.txt": "shape_id,shape_pt_lat,shape_pt_lon,shape_pt_sequence\n" +
		"shape1,60.168,24.952,1\n" +
		"shape1,60.169,24.951,2\n",
	"trips.txt": "trip_id,route_id,service_id,shape_id,trip_headsign,direction_id\n" +
		"t1,1001,always,shape1,Kapyla,0\n" +
		"t2,2002,never,,Lansiterminaali,0\n",
	"emissions.txt": "route_id,avg_co2_per_vehicle_per_km,avg_passenger_count\n" +
		"1001,72.5,24.1\n",
}

type stubStopTimes struct {
	byTrip []models.StopTime
	byStop []models.StopTime
}

func (s *stubStopTimes) StopTimesForTrip(ctx context.Context, tripID string) ([]models.StopTime, error) {
	return s.byTrip, nil
}

func (s *stubStopTimes) DeparturesAfter(ctx context.Context, stopID, minDeparture string) ([]models.StopTime, error) {
	return s.byStop, nil
}

type nopFetcher struct{}

func (nopFetcher) Fetch(ctx context.Context) (*gtfsrt.FeedMessage, error) {
	return &gtfsrt.FeedMessage{}, nil
}

type nopNormalizer struct{}

func (nopNormalizer) Normalize(*gtfsrt.FeedMessage) models.Snapshot {
	return models.Snapshot{}
}

func newTestRouter(t *testing.T, stopTimes StopTimeSource) http.Handler {
	t.Helper()
	dir := t.TempDir()
	for name, content := range apiFixture {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write fixture %s: %v", name, err)
		}
	}

	refStore := store.New(logger.Nop())
	if err := refStore.Load(context.Background(), dir, parser.New(logger.Nop())); err != nil {
		t.Fatalf("Failed to load store: %v", err)
	}

	h := hub.New(nopFetcher{}, nopNormalizer{}, time.Hour, time.Hour, logger.Nop())
	srv := NewServer(refStore, stopTimes, h, logger.Nop())
	return srv.Router([]string{"*"})
}

func doGet(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("Failed to decode body %q: %v", rec.Body.String(), err)
	}
}

func TestGetAllStops(t *testing.T) {
	router := newTestRouter(t, &stubStopTimes{})

	rec := doGet(t, router, "/api/stops")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var stops []StopResponse
	decodeBody(t, rec, &stops)
	if len(stops) != 3 {
		t.Errorf("Expected 3 stops, got %d", len(stops))
	}
}

func TestGetStopsInBounds(t *testing.T) {
	router := newTestRouter(t, &stubStopTimes{})

	rec := doGet(t, router, "/api/stops/bounds?minLat=60.16&maxLat=60.18&minLon=24.94&maxLon=24.96")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var stops []StopResponse
	decodeBody(t, rec, &stops)
	if len(stops) != 2 {
		t.Errorf("Expected 2 stops inside bounds, got %d", len(stops))
	}

	rec = doGet(t, router, "/api/stops/bounds?minLat=60.16&maxLat=60.18&minLon=24.94")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing bound, got %d", rec.Code)
	}

	rec = doGet(t, router, "/api/stops/bounds?minLat=abc&maxLat=60.18&minLon=24.94&maxLon=24.96")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a non-numeric bound, got %d", rec.Code)
	}
}

func TestGetStopDetailsFiltersInactiveServices(t *testing.T) {
	stopTimes := &stubStopTimes{
		byStop: []models.StopTime{
			{TripID: "t1", DepartureTime: "23:10:00", StopID: "HSL:1010101", StopSequence: 4},
			{TripID: "t2", DepartureTime: "23:20:00", StopID: "HSL:1010101", StopSequence: 2},
			{TripID: "ghost", DepartureTime: "23:30:00", StopID: "HSL:1010101", StopSequence: 1},
		},
	}
	router := newTestRouter(t, stopTimes)

	rec := doGet(t, router, "/api/stops/HSL:1010101")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var details StopDetailsResponse
	decodeBody(t, rec, &details)
	if details.Stop.StopName != "Kauppatori" {
		t.Errorf("Expected stop Kauppatori, got %s", details.Stop.StopName)
	}
	// t2 runs on a service with no operating days and ghost has no trip
	// record; only t1 survives the filter.
	if len(details.Departures) != 1 {
		t.Fatalf("Expected 1 departure, got %d", len(details.Departures))
	}
	if details.Departures[0].RouteID != "1001" || details.Departures[0].RouteName != "1" {
		t.Errorf("Unexpected departure route data: %+v", details.Departures[0])
	}
	if details.Departures[0].Headsign != "Kapyla" {
		t.Errorf("Expected headsign Kapyla, got %s", details.Departures[0].Headsign)
	}
}

func TestGetStopDetailsUnknownStop(t *testing.T) {
	router := newTestRouter(t, &stubStopTimes{})

	rec := doGet(t, router, "/api/stops/nope")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown stop, got %d", rec.Code)
	}
}

func TestGetStopsForRoute(t *testing.T) {
	stopTimes := &stubStopTimes{
		byTrip: []models.StopTime{
			{TripID: "t1", ArrivalTime: "08:00:00", StopID: "HSL:1010101", StopSequence: 1},
			{TripID: "t1", ArrivalTime: "08:02:00", StopID: "HSL:1010102", StopSequence: 2},
			{TripID: "t1", ArrivalTime: "08:04:00", StopID: "unknown", StopSequence: 3},
		},
	}
	router := newTestRouter(t, stopTimes)

	rec := doGet(t, router, "/api/stops/route/1001/0")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var stops []RouteStopResponse
	decodeBody(t, rec, &stops)
	if len(stops) != 2 {
		t.Fatalf("Expected 2 resolvable stops, got %d", len(stops))
	}
	if stops[0].StopSequence != 1 || stops[1].StopSequence != 2 {
		t.Errorf("Expected stops in sequence order, got %+v", stops)
	}

	rec = doGet(t, router, "/api/stops/route/1001/2")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for direction 2, got %d", rec.Code)
	}

	rec = doGet(t, router, "/api/stops/route/9999/0")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown route, got %d", rec.Code)
	}
}

func TestGetShape(t *testing.T) {
	router := newTestRouter(t, &stubStopTimes{})

	rec := doGet(t, router, "/api/shape/1001/0")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var coords []ShapePointResponse
	decodeBody(t, rec, &coords)
	if len(coords) != 2 {
		t.Errorf("Expected 2 polyline points, got %d", len(coords))
	}

	rec = doGet(t, router, "/api/shape/1001/5")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid direction, got %d", rec.Code)
	}

	rec = doGet(t, router, "/api/shape/1001/abc")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for non-numeric direction, got %d", rec.Code)
	}

	// Route 2002's trip has no shape id.
	rec = doGet(t, router, "/api/shape/2002/0")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for route without shape, got %d", rec.Code)
	}
}

func TestGetEmission(t *testing.T) {
	router := newTestRouter(t, &stubStopTimes{})

	rec := doGet(t, router, "/api/emission/1001")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var e models.Emission
	decodeBody(t, rec, &e)
	if e.AvgCO2PerVehiclePerKm != 72.5 {
		t.Errorf("Expected avg CO2 72.5, got %v", e.AvgCO2PerVehiclePerKm)
	}

	rec = doGet(t, router, "/api/emission/2002")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for route without emission data, got %d", rec.Code)
	}
}

func TestGetHealth(t *testing.T) {
	router := newTestRouter(t, &stubStopTimes{})

	rec := doGet(t, router, "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var health HealthResponse
	decodeBody(t, rec, &health)
	if health.Status != "ok" {
		t.Errorf("Expected status ok, got %s", health.Status)
	}
	if health.LastPoll != 0 {
		t.Errorf("Expected zero last poll before any cycle, got %d", health.LastPoll)
	}
}
