package attendance

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/geocheckin/geocheckin/internal/domain/geo"
)

const (
	// GeofenceRadiusMeters is the maximum admissible distance from the host.
	GeofenceRadiusMeters = 500.0
	// DefaultHistoryLimit bounds a student's history listing.
	DefaultHistoryLimit = 5
)

var (
	ErrDuplicate       = errors.New("attendance already recorded for student in session")
	ErrOutsideGeofence = errors.New("attendance distance exceeds geofence radius")
)

// Record is one admitted check-in. It is immutable once stored.
type Record struct {
	ID              int64          `json:"-"`
	SessionID       uuid.UUID      `json:"session_id"`
	StudentID       string         `json:"student_id"`
	StudentName     string         `json:"student_name"`
	StudentLocation geo.Coordinate `json:"student_location"`
	DistanceMeters  float64        `json:"distance_meters"`
	MarkedAt        time.Time      `json:"marked_at"`
}

// WithinGeofence reports whether the stored distance satisfies the radius.
func (r *Record) WithinGeofence() bool {
	return r.DistanceMeters <= GeofenceRadiusMeters
}
