package attendance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithinGeofence(t *testing.T) {
	cases := []struct {
		distance float64
		want     bool
	}{
		{0, true},
		{499.99, true},
		{GeofenceRadiusMeters, true},
		{500.0000001, false},
		{600, false},
	}
	for _, tc := range cases {
		r := &Record{DistanceMeters: tc.distance}
		assert.Equal(t, tc.want, r.WithinGeofence(), "distance %v", tc.distance)
	}
}
