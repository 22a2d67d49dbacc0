package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/geocheckin/geocheckin/internal/domain/geo"
	domainSession "github.com/geocheckin/geocheckin/internal/domain/session"
	"github.com/geocheckin/geocheckin/internal/infrastructure/sse"
)

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req sessionCreateRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	req.HostID = strings.TrimSpace(req.HostID)
	if !validID(req.HostID) {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "host_id required, at most 256 bytes")
		return
	}

	loc := s.defaultHostLocation
	switch {
	case req.HostLocationLat != nil && req.HostLocationLng != nil:
		loc = geo.Coordinate{Latitude: *req.HostLocationLat, Longitude: *req.HostLocationLng}
		if !validCoordinate(loc.Latitude, loc.Longitude) {
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", "host location out of range")
			return
		}
	case req.HostLocationLat != nil || req.HostLocationLng != nil:
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "host_location_lat and host_location_lng must be given together")
		return
	}

	sess, err := s.sessionSvc.Create(r.Context(), req.HostID, loc)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, newSessionResponse(sess, s.now()))
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid sessionId")
		return
	}
	sess, err := s.sessionSvc.Get(r.Context(), id)
	if err != nil {
		s.respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newSessionResponse(sess, s.now()))
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid sessionId")
		return
	}
	sess, err := s.sessionSvc.End(r.Context(), id)
	if err != nil {
		s.respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newSessionResponse(sess, s.now()))
}

func (s *Server) respondSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, domainSession.ErrNotFound) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
}

// streamSession follows a session's admitted check-ins over SSE.
func (s *Server) streamSession(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid sessionId")
		return
	}
	if _, err := s.sessionSvc.Get(r.Context(), id); err != nil {
		s.respondSessionError(w, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming not supported")
		return
	}

	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = uuid.NewString()
	} else if !validID(clientID) {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "client_id longer than 256 bytes")
		return
	}
	client := sse.NewClient(clientID, id)
	s.sseHub.Register(client)
	defer s.sseHub.Unregister(client)

	// the server's write timeout does not apply to a stream
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case msg, ok := <-client.MessageChan:
			if !ok || msg == nil {
				return
			}
			payload, _ := json.Marshal(msg)
			_, _ = w.Write([]byte("event: " + msg.Event + "\n"))
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}
