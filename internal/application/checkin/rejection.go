package checkin

import (
	"errors"
	"fmt"

	domainSession "github.com/geocheckin/geocheckin/internal/domain/session"
)

// Reason is the machine-readable code of a rejected check-in.
type Reason string

const (
	ReasonSessionNotFound Reason = "SessionNotFound"
	ReasonSessionClosed   Reason = "SessionClosed"
	ReasonAlreadyMarked   Reason = "AlreadyMarked"
	ReasonOutOfRange      Reason = "OutOfRange"
)

// Rejection is a business refusal of a check-in. It is returned as an error
// but is never an infrastructure failure.
type Rejection struct {
	Reason Reason
	// Closed distinguishes an ended session from an expired one.
	Closed domainSession.ClosedReason
	// DistanceMeters is set for ReasonOutOfRange.
	DistanceMeters float64
}

func (r *Rejection) Error() string {
	switch r.Reason {
	case ReasonSessionNotFound:
		return "session not found"
	case ReasonSessionClosed:
		if r.Closed == domainSession.ClosedExpired {
			return "session expired"
		}
		return "session is no longer active"
	case ReasonAlreadyMarked:
		return "attendance already marked"
	case ReasonOutOfRange:
		return fmt.Sprintf("not within geofence: %.1f meters from host", r.DistanceMeters)
	default:
		return string(r.Reason)
	}
}

// AsRejection extracts a *Rejection from err.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}
