package parser

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hsltracker-data/internal/common/logger"
	"github.com/hsltracker-data/pkg/gtfs/models"
)

type Parser struct {
	logger logger.Logger
}

func New(logger logger.Logger) *Parser {
	return &Parser{logger: logger}
}

type ParseCallbacks struct {
	OnRoute        func(route *models.Route) error
	OnStop         func(stop *models.Stop) error
	OnTrip         func(trip *models.Trip) error
	OnShapePoint   func(point *models.ShapePoint) error
	OnCalendar     func(calendar *models.Calendar) error
	OnCalendarDate func(calendarDate *models.CalendarDate) error
	OnEmission     func(emission *models.Emission) error
	OnStopTime     func(stopTime *models.StopTime) error
	OnFileComplete func(fileName string, rows int) error
}

// Parsing order matters for referential integrity: trips reference routes,
// stop_times reference trips and stops.
var parseOrder = []string{
	"routes.txt",
	"stops.txt",
	"calendar.txt",
	"calendar_dates.txt",
	"shapes.txt",
	"trips.txt",
	"emissions.txt",
	"stop_times.txt",
}

// optionalFiles may be absent from a feed without failing the load.
var optionalFiles = map[string]bool{
	"emissions.txt": true,
}

// ParseDir parses the GTFS static tables found in dir, invoking the
// registered callback for every row. A required table without a file is an
// error; the caller treats that as fatal.
func (p *Parser) ParseDir(ctx context.Context, dir string, callbacks ParseCallbacks) error {
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("GTFS data directory not found at %s: %w", dir, err)
	}

	p.logger.Info("Parsing GTFS static data", "dir", dir)

	for _, fileName := range parseOrder {
		if !hasCallback(fileName, callbacks) {
			continue
		}
		path := filepath.Join(dir, fileName)
		if _, err := os.Stat(path); err != nil {
			if optionalFiles[fileName] {
				p.logger.Debug("Optional file not found, skipping", "file", fileName)
				continue
			}
			return fmt.Errorf("%s not found at %s", fileName, path)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := p.parseFile(path, fileName, callbacks); err != nil {
			return fmt.Errorf("parsing %s: %w", fileName, err)
		}
	}

	p.logger.Info("GTFS parsing completed successfully")
	return nil
}

func hasCallback(fileName string, callbacks ParseCallbacks) bool {
	switch fileName {
	case "routes.txt":
		return callbacks.OnRoute != nil
	case "stops.txt":
		return callbacks.OnStop != nil
	case "trips.txt":
		return callbacks.OnTrip != nil
	case "shapes.txt":
		return callbacks.OnShapePoint != nil
	case "calendar.txt":
		return callbacks.OnCalendar != nil
	case "calendar_dates.txt":
		return callbacks.OnCalendarDate != nil
	case "emissions.txt":
		return callbacks.OnEmission != nil
	case "stop_times.txt":
		return callbacks.OnStopTime != nil
	}
	return false
}

func (p *Parser) parseFile(path, fileName string, callbacks ParseCallbacks) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // Variable number of fields
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("reading header: %w", err)
	}

	headerMap := make(map[string]int)
	for i, h := range header {
		headerMap[strings.TrimSpace(stripBOM(h))] = i
	}

	count := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading record: %w", err)
		}

		switch fileName {
		case "routes.txt":
			if err := callbacks.OnRoute(p.parseRoute(record, headerMap)); err != nil {
				return err
			}
		case "stops.txt":
			if err := callbacks.OnStop(p.parseStop(record, headerMap)); err != nil {
				return err
			}
		case "trips.txt":
			if err := callbacks.OnTrip(p.parseTrip(record, headerMap)); err != nil {
				return err
			}
		case "shapes.txt":
			if err := callbacks.OnShapePoint(p.parseShapePoint(record, headerMap)); err != nil {
				return err
			}
		case "calendar.txt":
			if err := callbacks.OnCalendar(p.parseCalendar(record, headerMap)); err != nil {
				return err
			}
		case "calendar_dates.txt":
			if err := callbacks.OnCalendarDate(p.parseCalendarDate(record, headerMap)); err != nil {
				return err
			}
		case "emissions.txt":
			if err := callbacks.OnEmission(p.parseEmission(record, headerMap)); err != nil {
				return err
			}
		case "stop_times.txt":
			if err := callbacks.OnStopTime(p.parseStopTime(record, headerMap)); err != nil {
				return err
			}
		}
		count++
	}

	p.logger.Debug("Parsed file", "file", fileName, "rows", count)

	if callbacks.OnFileComplete != nil {
		if err := callbacks.OnFileComplete(fileName, count); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) parseRoute(record []string, headerMap map[string]int) *models.Route {
	return &models.Route{
		RouteID:        p.getString(record, headerMap, "route_id"),
		RouteShortName: p.getString(record, headerMap, "route_short_name"),
		RouteLongName:  p.getString(record, headerMap, "route_long_name"),
		RouteType:      p.getInt(record, headerMap, "route_type", 0),
		RouteURL:       p.getString(record, headerMap, "route_url"),
	}
}

func (p *Parser) parseStop(record []string, headerMap map[string]int) *models.Stop {
	return &models.Stop{
		StopID:   p.getString(record, headerMap, "stop_id"),
		StopName: p.getString(record, headerMap, "stop_name"),
		StopLat:  p.getFloat(record, headerMap, "stop_lat", 0),
		StopLon:  p.getFloat(record, headerMap, "stop_lon", 0),
	}
}

func (p *Parser) parseTrip(record []string, headerMap map[string]int) *models.Trip {
	return &models.Trip{
		TripID:       p.getString(record, headerMap, "trip_id"),
		RouteID:      p.getString(record, headerMap, "route_id"),
		ServiceID:    p.getString(record, headerMap, "service_id"),
		ShapeID:      p.getString(record, headerMap, "shape_id"),
		TripHeadsign: p.getString(record, headerMap, "trip_headsign"),
		DirectionID:  p.getInt(record, headerMap, "direction_id", 0),
	}
}

func (p *Parser) parseShapePoint(record []string, headerMap map[string]int) *models.ShapePoint {
	return &models.ShapePoint{
		ShapeID:  p.getString(record, headerMap, "shape_id"),
		Lat:      p.getFloat(record, headerMap, "shape_pt_lat", 0),
		Lon:      p.getFloat(record, headerMap, "shape_pt_lon", 0),
		Sequence: p.getInt(record, headerMap, "shape_pt_sequence", 0),
	}
}

func (p *Parser) parseCalendar(record []string, headerMap map[string]int) *models.Calendar {
	return &models.Calendar{
		ServiceID: p.getString(record, headerMap, "service_id"),
		Monday:    p.getInt(record, headerMap, "monday", 0),
		Tuesday:   p.getInt(record, headerMap, "tuesday", 0),
		Wednesday: p.getInt(record, headerMap, "wednesday", 0),
		Thursday:  p.getInt(record, headerMap, "thursday", 0),
		Friday:    p.getInt(record, headerMap, "friday", 0),
		Saturday:  p.getInt(record, headerMap, "saturday", 0),
		Sunday:    p.getInt(record, headerMap, "sunday", 0),
		StartDate: p.getString(record, headerMap, "start_date"),
		EndDate:   p.getString(record, headerMap, "end_date"),
	}
}

func (p *Parser) parseCalendarDate(record []string, headerMap map[string]int) *models.CalendarDate {
	return &models.CalendarDate{
		ServiceID:     p.getString(record, headerMap, "service_id"),
		Date:          p.getString(record, headerMap, "date"),
		ExceptionType: p.getInt(record, headerMap, "exception_type", 0),
	}
}

func (p *Parser) parseEmission(record []string, headerMap map[string]int) *models.Emission {
	return &models.Emission{
		RouteID:               p.getString(record, headerMap, "route_id"),
		AvgCO2PerVehiclePerKm: p.getFloat(record, headerMap, "avg_co2_per_vehicle_per_km", 0),
		AvgPassengerCount:     p.getFloat(record, headerMap, "avg_passenger_count", 0),
	}
}

func (p *Parser) parseStopTime(record []string, headerMap map[string]int) *models.StopTime {
	return &models.StopTime{
		TripID:        p.getString(record, headerMap, "trip_id"),
		ArrivalTime:   p.getString(record, headerMap, "arrival_time"),
		DepartureTime: p.getString(record, headerMap, "departure_time"),
		StopID:        p.getString(record, headerMap, "stop_id"),
		StopSequence:  p.getInt(record, headerMap, "stop_sequence", 0),
		PickupType:    p.getInt(record, headerMap, "pickup_type", 0),
		DropOffType:   p.getInt(record, headerMap, "drop_off_type", 0),
	}
}

func (p *Parser) getString(record []string, headerMap map[string]int, field string) string {
	idx, exists := headerMap[field]
	if !exists || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func (p *Parser) getInt(record []string, headerMap map[string]int, field string, defaultValue int) int {
	s := p.getString(record, headerMap, field)
	if s == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return v
}

func (p *Parser) getFloat(record []string, headerMap map[string]int, field string, defaultValue float64) float64 {
	s := p.getString(record, headerMap, field)
	if s == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return defaultValue
	}
	return v
}

// Some exporters prefix the first header cell with a UTF-8 BOM.
func stripBOM(s string) string {
	return strings.TrimPrefix(s, "\uFEFF")
}
