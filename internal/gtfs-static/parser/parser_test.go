package parser

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hsltracker-data/internal/common/logger"
	"github.com/hsltracker-data/pkg/gtfs/models"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	return dir
}

func TestParseRoutesWithBOMAndQuotedFields(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"routes.txt": "\uFEFFroute_id,route_short_name,route_long_name,route_type\n" +
			"1001,1,\"Eira, Kapyla\",0\n",
	})

	var routes []models.Route
	p := New(logger.Nop())
	err := p.ParseDir(context.Background(), dir, ParseCallbacks{
		OnRoute: func(r *models.Route) error {
			routes = append(routes, *r)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("ParseDir failed: %v", err)
	}

	if len(routes) != 1 {
		t.Fatalf("Expected 1 route, got %d", len(routes))
	}
	if routes[0].RouteID != "1001" {
		t.Errorf("Expected route_id 1001 despite BOM, got %q", routes[0].RouteID)
	}
	if routes[0].RouteLongName != "Eira, Kapyla" {
		t.Errorf("Expected quoted long name preserved, got %q", routes[0].RouteLongName)
	}
}

func TestMissingRequiredFile(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"routes.txt": "route_id,route_short_name,route_long_name,route_type\n",
	})

	p := New(logger.Nop())
	err := p.ParseDir(context.Background(), dir, ParseCallbacks{
		OnRoute: func(*models.Route) error { return nil },
		OnStop:  func(*models.Stop) error { return nil },
	})
	if err == nil {
		t.Error("Expected error for missing stops.txt")
	}
}

func TestFileWithoutCallbackIsSkipped(t *testing.T) {
	// stops.txt is absent but no OnStop callback is registered, so the
	// parse only touches routes.txt.
	dir := writeFiles(t, map[string]string{
		"routes.txt": "route_id,route_short_name,route_long_name,route_type\n" +
			"1001,1,Eira - Kapyla,0\n",
	})

	p := New(logger.Nop())
	err := p.ParseDir(context.Background(), dir, ParseCallbacks{
		OnRoute: func(*models.Route) error { return nil },
	})
	if err != nil {
		t.Errorf("Expected files without callbacks to be skipped, got %v", err)
	}
}

func TestMissingOptionalEmissions(t *testing.T) {
	dir := writeFiles(t, map[string]string{})

	p := New(logger.Nop())
	err := p.ParseDir(context.Background(), dir, ParseCallbacks{
		OnEmission: func(*models.Emission) error { return nil },
	})
	if err != nil {
		t.Errorf("Expected missing emissions.txt to be tolerated, got %v", err)
	}
}

func TestMissingColumnsFallBackToDefaults(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"trips.txt": "trip_id,route_id,service_id\n" +
			"t1,1001,wk\n",
	})

	var trips []models.Trip
	p := New(logger.Nop())
	err := p.ParseDir(context.Background(), dir, ParseCallbacks{
		OnTrip: func(tr *models.Trip) error {
			trips = append(trips, *tr)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("ParseDir failed: %v", err)
	}

	if len(trips) != 1 {
		t.Fatalf("Expected 1 trip, got %d", len(trips))
	}
	if trips[0].DirectionID != 0 {
		t.Errorf("Expected default direction 0, got %d", trips[0].DirectionID)
	}
	if trips[0].TripHeadsign != "" {
		t.Errorf("Expected blank headsign, got %q", trips[0].TripHeadsign)
	}
}

func TestOnFileCompleteReportsRowCount(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"stops.txt": "stop_id,stop_name,stop_lat,stop_lon\n" +
			"s1,A,60.1,24.9\n" +
			"s2,B,60.2,24.8\n" +
			"s3,C,60.3,24.7\n",
	})

	completed := make(map[string]int)
	p := New(logger.Nop())
	err := p.ParseDir(context.Background(), dir, ParseCallbacks{
		OnStop: func(*models.Stop) error { return nil },
		OnFileComplete: func(fileName string, rows int) error {
			completed[fileName] = rows
			return nil
		},
	})
	if err != nil {
		t.Fatalf("ParseDir failed: %v", err)
	}

	if completed["stops.txt"] != 3 {
		t.Errorf("Expected 3 rows reported for stops.txt, got %d", completed["stops.txt"])
	}
}
