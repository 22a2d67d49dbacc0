package httpapi

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/geocheckin/geocheckin/internal/domain/attendance"
	"github.com/geocheckin/geocheckin/internal/domain/session"
)

type sessionCreateRequest struct {
	HostID          string   `json:"host_id"`
	HostLocationLat *float64 `json:"host_location_lat,omitempty"`
	HostLocationLng *float64 `json:"host_location_lng,omitempty"`
}

type attendanceMarkRequest struct {
	SessionID          string   `json:"session_id"`
	StudentID          string   `json:"student_id"`
	StudentName        string   `json:"student_name"`
	StudentLocationLat *float64 `json:"student_location_lat"`
	StudentLocationLng *float64 `json:"student_location_lng"`
}

type sessionResponse struct {
	SessionID        uuid.UUID `json:"session_id"`
	HostID           string    `json:"host_id"`
	HostLocationLat  float64   `json:"host_location_lat"`
	HostLocationLng  float64   `json:"host_location_lng"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	IsActive         bool      `json:"is_active"`
	OpenForCheckIn   bool      `json:"open_for_check_in"`
	SecondsRemaining int64     `json:"seconds_remaining"`
}

func newSessionResponse(s *session.Session, now time.Time) sessionResponse {
	return sessionResponse{
		SessionID:        s.SessionID,
		HostID:           s.HostID,
		HostLocationLat:  s.HostLocation.Latitude,
		HostLocationLng:  s.HostLocation.Longitude,
		CreatedAt:        s.CreatedAt,
		ExpiresAt:        s.ExpiresAt,
		IsActive:         s.IsActive,
		OpenForCheckIn:   s.IsOpenForCheckIn(now),
		SecondsRemaining: int64(s.Remaining(now) / time.Second),
	}
}

type recordResponse struct {
	SessionID          uuid.UUID `json:"session_id"`
	StudentID          string    `json:"student_id"`
	StudentName        string    `json:"student_name"`
	StudentLocationLat float64   `json:"student_location_lat"`
	StudentLocationLng float64   `json:"student_location_lng"`
	DistanceMeters     float64   `json:"distance_meters"`
	MarkedAt           time.Time `json:"marked_at"`
}

func newRecordResponse(r *attendance.Record) recordResponse {
	return recordResponse{
		SessionID:          r.SessionID,
		StudentID:          r.StudentID,
		StudentName:        r.StudentName,
		StudentLocationLat: r.StudentLocation.Latitude,
		StudentLocationLng: r.StudentLocation.Longitude,
		DistanceMeters:     r.DistanceMeters,
		MarkedAt:           r.MarkedAt,
	}
}

func newRecordResponses(records []*attendance.Record) []recordResponse {
	out := make([]recordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, newRecordResponse(r))
	}
	return out
}

// EncodeRecord renders a record in the same shape the REST endpoints use.
// It is meant to be handed to sse.NewHub.
func EncodeRecord(r *attendance.Record) ([]byte, error) {
	return json.Marshal(newRecordResponse(r))
}
