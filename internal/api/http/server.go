package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appCheckin "github.com/geocheckin/geocheckin/internal/application/checkin"
	appQuery "github.com/geocheckin/geocheckin/internal/application/query"
	appSession "github.com/geocheckin/geocheckin/internal/application/session"
	"github.com/geocheckin/geocheckin/internal/domain/geo"
	"github.com/geocheckin/geocheckin/internal/infrastructure/sse"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	sessionSvc          *appSession.Service
	checkinSvc          *appCheckin.Service
	querySvc            *appQuery.Service
	sseHub              *sse.Hub
	defaultHostLocation geo.Coordinate
	allowedOrigins      []string
	logger              zerolog.Logger
	now                 func() time.Time
}

const (
	maxBodyBytes = 64 << 10
	maxIDLength  = 256
)

func NewServer(
	sessionSvc *appSession.Service,
	checkinSvc *appCheckin.Service,
	querySvc *appQuery.Service,
	sseHub *sse.Hub,
	defaultHostLocation geo.Coordinate,
	allowedOrigins []string,
	logger zerolog.Logger,
) *Server {
	return &Server{
		sessionSvc:          sessionSvc,
		checkinSvc:          checkinSvc,
		querySvc:            querySvc,
		sseHub:              sseHub,
		defaultHostLocation: defaultHostLocation,
		allowedOrigins:      allowedOrigins,
		logger:              logger.With().Str("component", "http").Logger(),
		now:                 func() time.Time { return time.Now().UTC() },
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.healthz)

	r.Route("/v1", func(r chi.Router) {
		// long-lived, so outside the request timeout
		r.Get("/sessions/{sessionId}/stream", s.streamSession)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Post("/sessions", s.createSession)
			r.Get("/sessions/{sessionId}", s.getSession)
			r.Post("/sessions/{sessionId}/end", s.endSession)

			r.Route("/attendance", func(r chi.Router) {
				r.Post("/", s.markAttendance)
				r.Get("/session/{sessionId}", s.listSessionAttendance)
				r.Get("/session/{sessionId}/export", s.exportSessionAttendance)
				r.Get("/student/{studentId}", s.listStudentAttendance)
			})
		})
	})

	return r
}

// accessLog writes one line per request.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("request")
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	return uuid.Parse(val)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// validID reports whether an identifier is present and short enough to be
// used as a storage key.
func validID(id string) bool {
	return id != "" && len(id) <= maxIDLength
}

func validCoordinate(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
