package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hsltracker-data/internal/common/logger"
	"github.com/hsltracker-data/internal/gtfs-static/parser"
	"github.com/hsltracker-data/pkg/gtfs/models"
)

// Store indexes the GTFS static reference tables in memory. It is loaded
// once at startup and read-only afterwards; every lookup on a store that has
// not finished loading reports not-found instead of blocking.
type Store struct {
	logger logger.Logger

	mu                    sync.RWMutex
	loaded                bool
	routes                map[string]models.Route
	stops                 map[string]models.Stop
	trips                 map[string]models.Trip
	tripsByRouteDirection map[string]models.Trip
	shapes                map[string][]models.ShapePoint
	emissions             map[string]models.Emission
	calendars             map[string]models.Calendar
	calendarDates         map[string][]models.CalendarDate
}

func New(log logger.Logger) *Store {
	return &Store{
		logger:                log,
		routes:                make(map[string]models.Route),
		stops:                 make(map[string]models.Stop),
		trips:                 make(map[string]models.Trip),
		tripsByRouteDirection: make(map[string]models.Trip),
		shapes:                make(map[string][]models.ShapePoint),
		emissions:             make(map[string]models.Emission),
		calendars:             make(map[string]models.Calendar),
		calendarDates:         make(map[string][]models.CalendarDate),
	}
}

// Load parses the reference tables from dir into the store. An error here is
// fatal for the process: the store cannot serve partial reference data.
func (s *Store) Load(ctx context.Context, dir string, p *parser.Parser) error {
	callbacks := parser.ParseCallbacks{
		OnRoute: func(route *models.Route) error {
			s.routes[route.RouteID] = *route
			return nil
		},
		OnStop: func(stop *models.Stop) error {
			s.stops[stop.StopID] = *stop
			return nil
		},
		OnTrip: func(trip *models.Trip) error {
			s.trips[trip.TripID] = *trip
			// First trip seen per (route, direction) is the representative;
			// later trips for the same key are intentionally ignored.
			key := compositeKey(trip.RouteID, trip.DirectionID)
			if _, exists := s.tripsByRouteDirection[key]; !exists {
				s.tripsByRouteDirection[key] = *trip
			}
			return nil
		},
		OnShapePoint: func(point *models.ShapePoint) error {
			s.shapes[point.ShapeID] = append(s.shapes[point.ShapeID], *point)
			return nil
		},
		OnCalendar: func(calendar *models.Calendar) error {
			s.calendars[calendar.ServiceID] = *calendar
			return nil
		},
		OnCalendarDate: func(cd *models.CalendarDate) error {
			s.calendarDates[cd.ServiceID] = append(s.calendarDates[cd.ServiceID], *cd)
			return nil
		},
		OnEmission: func(emission *models.Emission) error {
			s.emissions[emission.RouteID] = *emission
			return nil
		},
		OnFileComplete: func(fileName string, rows int) error {
			s.logger.Info("Loaded reference table", "file", fileName, "rows", rows)
			return nil
		},
	}

	if err := p.ParseDir(ctx, dir, callbacks); err != nil {
		return fmt.Errorf("loading GTFS reference data: %w", err)
	}

	// Source files are not guaranteed sorted; an unsorted polyline corrupts
	// rendering, so the sort is mandatory.
	for shapeID, points := range s.shapes {
		sort.SliceStable(points, func(i, j int) bool {
			return points[i].Sequence < points[j].Sequence
		})
		s.shapes[shapeID] = points
	}

	s.mu.Lock()
	s.loaded = true
	s.mu.Unlock()

	s.logger.Info("GTFS reference store ready",
		"routes", len(s.routes),
		"stops", len(s.stops),
		"trips", len(s.trips),
		"shapes", len(s.shapes),
		"emissions", len(s.emissions),
	)
	return nil
}

func (s *Store) isLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Route returns the route for the given id.
func (s *Store) Route(routeID string) (models.Route, bool) {
	if !s.isLoaded() {
		return models.Route{}, false
	}
	r, ok := s.routes[routeID]
	return r, ok
}

// Stop returns the stop for the given id.
func (s *Store) Stop(stopID string) (models.Stop, bool) {
	if !s.isLoaded() {
		return models.Stop{}, false
	}
	st, ok := s.stops[stopID]
	return st, ok
}

// TripByID returns the trip for the given trip id.
func (s *Store) TripByID(tripID string) (models.Trip, bool) {
	if !s.isLoaded() {
		return models.Trip{}, false
	}
	t, ok := s.trips[tripID]
	return t, ok
}

// Trip returns the representative trip for a route and direction.
func (s *Store) Trip(routeID string, directionID int) (models.Trip, bool) {
	if !s.isLoaded() {
		return models.Trip{}, false
	}
	t, ok := s.tripsByRouteDirection[compositeKey(routeID, directionID)]
	return t, ok
}

// ShapePoints returns the polyline for a shape, ordered ascending by
// sequence number.
func (s *Store) ShapePoints(shapeID string) []models.ShapePoint {
	if !s.isLoaded() {
		return nil
	}
	return s.shapes[shapeID]
}

// ShapeForRoute resolves the representative trip's shape polyline.
func (s *Store) ShapeForRoute(routeID string, directionID int) []models.ShapePoint {
	trip, ok := s.Trip(routeID, directionID)
	if !ok || trip.ShapeID == "" {
		return nil
	}
	return s.ShapePoints(trip.ShapeID)
}

// Emission returns the emissions row for a route.
func (s *Store) Emission(routeID string) (models.Emission, bool) {
	if !s.isLoaded() {
		return models.Emission{}, false
	}
	e, ok := s.emissions[routeID]
	return e, ok
}

// AllStops returns every stop in the feed.
func (s *Store) AllStops() []models.Stop {
	if !s.isLoaded() {
		return nil
	}
	out := make([]models.Stop, 0, len(s.stops))
	for _, st := range s.stops {
		out = append(out, st)
	}
	return out
}

// StopsInBounds returns the stops inside the given bounding box (inclusive).
func (s *Store) StopsInBounds(minLat, maxLat, minLon, maxLon float64) []models.Stop {
	if !s.isLoaded() {
		return nil
	}
	out := make([]models.Stop, 0)
	for _, st := range s.stops {
		if st.StopLat >= minLat && st.StopLat <= maxLat && st.StopLon >= minLon && st.StopLon <= maxLon {
			out = append(out, st)
		}
	}
	return out
}

// IsServiceActiveOn decides whether a service operates on the given date.
// Precedence: an explicit calendar_dates exception for the exact date wins,
// then the calendar row's date range, then its weekday flag.
func (s *Store) IsServiceActiveOn(serviceID string, date time.Time) bool {
	if !s.isLoaded() {
		return false
	}

	dateStr := date.Format("20060102")

	for _, ex := range s.calendarDates[serviceID] {
		if ex.Date == dateStr {
			return ex.ExceptionType == 1 // 1 = service added
		}
	}

	calendar, ok := s.calendars[serviceID]
	if !ok {
		return false
	}

	if dateStr < calendar.StartDate || dateStr > calendar.EndDate {
		return false
	}

	return calendar.ActiveOnWeekday(date.Weekday())
}

func compositeKey(routeID string, directionID int) string {
	return fmt.Sprintf("%s:%d", routeID, directionID)
}
