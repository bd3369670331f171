package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/hsltracker-data/internal/common/logger"
	"github.com/hsltracker-data/internal/gtfs-static/store"
	"github.com/hsltracker-data/internal/hub"
	"github.com/hsltracker-data/pkg/gtfs/models"
)

// StopTimeSource is the stop time lookup surface the handlers depend on.
type StopTimeSource interface {
	StopTimesForTrip(ctx context.Context, tripID string) ([]models.StopTime, error)
	DeparturesAfter(ctx context.Context, stopID, minDeparture string) ([]models.StopTime, error)
}

// Server bundles the reference store, the stop time lookups and the
// broadcast hub behind the HTTP surface.
type Server struct {
	store     *store.Store
	stopTimes StopTimeSource
	hub       *hub.Hub
	logger    logger.Logger
}

func NewServer(refStore *store.Store, stopTimes StopTimeSource, h *hub.Hub, log logger.Logger) *Server {
	return &Server{
		store:     refStore,
		stopTimes: stopTimes,
		hub:       h,
		logger:    log,
	}
}

// Router builds the chi router with CORS and every API route mounted.
func (s *Server) Router(allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	r.Get("/api/stops", s.GetAllStops)
	r.Get("/api/stops/bounds", s.GetStopsInBounds)
	r.Get("/api/stops/route/{routeID}/{directionID}", s.GetStopsForRoute)
	r.Get("/api/stops/{stopID}", s.GetStopDetails)
	r.Get("/api/shape/{routeID}/{directionID}", s.GetShape)
	r.Get("/api/emission/{routeID}", s.GetEmission)
	r.Get("/api/health", s.GetHealth)
	r.Get("/ws", s.hub.HandleWS)

	return r
}

// ErrorResponse is the JSON body for every non-2xx API reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}
