package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hsltracker-data/pkg/gtfs/models"
)

const maxDepartures = 30

// StopResponse is the JSON shape for a single stop.
type StopResponse struct {
	StopID    string  `json:"stopId"`
	StopName  string  `json:"stopName"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func toStopResponse(s models.Stop) StopResponse {
	return StopResponse{
		StopID:    s.StopID,
		StopName:  s.StopName,
		Latitude:  s.StopLat,
		Longitude: s.StopLon,
	}
}

func toStopResponses(stops []models.Stop) []StopResponse {
	out := make([]StopResponse, 0, len(stops))
	for _, s := range stops {
		out = append(out, toStopResponse(s))
	}
	return out
}

// GetAllStops handles GET /api/stops.
func (s *Server) GetAllStops(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, toStopResponses(s.store.AllStops()))
}

// GetStopsInBounds handles GET /api/stops/bounds. All four bound
// parameters are required.
func (s *Server) GetStopsInBounds(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	bounds := make(map[string]float64, 4)
	for _, name := range []string{"minLat", "maxLat", "minLon", "maxLon"} {
		v, err := strconv.ParseFloat(q.Get(name), 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, name+" must be a number")
			return
		}
		bounds[name] = v
	}

	stops := s.store.StopsInBounds(bounds["minLat"], bounds["maxLat"], bounds["minLon"], bounds["maxLon"])
	s.writeJSON(w, http.StatusOK, toStopResponses(stops))
}

// DepartureResponse is one upcoming departure from a stop.
type DepartureResponse struct {
	RouteID       string `json:"routeId"`
	RouteName     string `json:"routeName"`
	Headsign      string `json:"headsign"`
	DepartureTime string `json:"departureTime"`
}

// StopDetailsResponse is the JSON shape for GET /api/stops/{stopID}.
type StopDetailsResponse struct {
	Stop       StopResponse        `json:"stop"`
	Departures []DepartureResponse `json:"departures"`
}

// GetStopDetails handles GET /api/stops/{stopID}. Departures are filtered
// to trips whose service operates today and capped at maxDepartures.
func (s *Server) GetStopDetails(w http.ResponseWriter, r *http.Request) {
	stopID := chi.URLParam(r, "stopID")

	stop, ok := s.store.Stop(stopID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "Stop not found")
		return
	}

	now := time.Now()
	stopTimes, err := s.stopTimes.DeparturesAfter(r.Context(), stopID, now.Format("15:04:05"))
	if err != nil {
		s.logger.Error("Failed to query departures", "stopID", stopID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve departures")
		return
	}

	departures := make([]DepartureResponse, 0, maxDepartures)
	for _, st := range stopTimes {
		trip, ok := s.store.TripByID(st.TripID)
		if !ok {
			continue
		}
		if !s.store.IsServiceActiveOn(trip.ServiceID, now) {
			continue
		}
		dep := DepartureResponse{
			RouteID:       trip.RouteID,
			Headsign:      trip.TripHeadsign,
			DepartureTime: st.DepartureTime,
		}
		if route, ok := s.store.Route(trip.RouteID); ok {
			dep.RouteName = route.RouteShortName
		}
		departures = append(departures, dep)
		if len(departures) == maxDepartures {
			break
		}
	}

	s.writeJSON(w, http.StatusOK, StopDetailsResponse{
		Stop:       toStopResponse(stop),
		Departures: departures,
	})
}

// RouteStopResponse is one stop along a route, in trip order.
type RouteStopResponse struct {
	StopID       string  `json:"stopId"`
	StopName     string  `json:"stopName"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	ArrivalTime  string  `json:"arrivalTime"`
	StopSequence int     `json:"stopSequence"`
}

// GetStopsForRoute handles GET /api/stops/route/{routeID}/{directionID}.
// Stops come from the representative trip for the route and direction.
func (s *Server) GetStopsForRoute(w http.ResponseWriter, r *http.Request) {
	routeID := chi.URLParam(r, "routeID")
	directionID, err := strconv.Atoi(chi.URLParam(r, "directionID"))
	if err != nil || (directionID != 0 && directionID != 1) {
		s.writeError(w, http.StatusBadRequest, "directionID must be 0 or 1")
		return
	}

	trip, ok := s.store.Trip(routeID, directionID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "No trip found for route and direction")
		return
	}

	stopTimes, err := s.stopTimes.StopTimesForTrip(r.Context(), trip.TripID)
	if err != nil {
		s.logger.Error("Failed to query stop times", "tripID", trip.TripID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve stops for route")
		return
	}

	stops := make([]RouteStopResponse, 0, len(stopTimes))
	for _, st := range stopTimes {
		stop, ok := s.store.Stop(st.StopID)
		if !ok {
			continue
		}
		stops = append(stops, RouteStopResponse{
			StopID:       stop.StopID,
			StopName:     stop.StopName,
			Latitude:     stop.StopLat,
			Longitude:    stop.StopLon,
			ArrivalTime:  st.ArrivalTime,
			StopSequence: st.StopSequence,
		})
	}

	s.writeJSON(w, http.StatusOK, stops)
}

// ShapePointResponse is one vertex of a route polyline.
type ShapePointResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// GetShape handles GET /api/shape/{routeID}/{directionID}.
func (s *Server) GetShape(w http.ResponseWriter, r *http.Request) {
	routeID := chi.URLParam(r, "routeID")
	directionID, err := strconv.Atoi(chi.URLParam(r, "directionID"))
	if err != nil || (directionID != 0 && directionID != 1) {
		s.writeError(w, http.StatusBadRequest, "directionID must be 0 or 1")
		return
	}

	points := s.store.ShapeForRoute(routeID, directionID)
	if len(points) == 0 {
		s.writeError(w, http.StatusNotFound, "No shape found for route and direction")
		return
	}

	coords := make([]ShapePointResponse, 0, len(points))
	for _, p := range points {
		coords = append(coords, ShapePointResponse{Latitude: p.Lat, Longitude: p.Lon})
	}
	s.writeJSON(w, http.StatusOK, coords)
}

// GetEmission handles GET /api/emission/{routeID}.
func (s *Server) GetEmission(w http.ResponseWriter, r *http.Request) {
	routeID := chi.URLParam(r, "routeID")

	emission, ok := s.store.Emission(routeID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "No emission data for route")
		return
	}
	s.writeJSON(w, http.StatusOK, emission)
}

// HealthResponse is the JSON shape for GET /api/health.
type HealthResponse struct {
	Status    string    `json:"status"`
	LastPoll  int64     `json:"lastPoll"`
	Clients   int       `json:"clients"`
	Timestamp time.Time `json:"timestamp"`
}

// GetHealth handles GET /api/health. LastPoll is 0 until the first
// successful feed poll completes.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		LastPoll:  s.hub.LastPollUnix(),
		Clients:   s.hub.ClientCount(),
		Timestamp: time.Now().UTC(),
	})
}
