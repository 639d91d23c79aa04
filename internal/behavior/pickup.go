// internal/behavior/pickup.go
package behavior

import (
	"math"
	"time"

	"sphero-behavior/internal/models"
)

// PickupThreshold is the quaternion similarity below which two samples mean
// the robot is being handled.
const PickupThreshold = 0.95

type quaternion struct{ w, x, y, z float64 }

// toQuaternion converts a yaw-pitch-roll sample in degrees.
func toQuaternion(o models.Orientation) quaternion {
	rad := math.Pi / 180
	cy, sy := math.Cos(o.Yaw*rad/2), math.Sin(o.Yaw*rad/2)
	cp, sp := math.Cos(o.Pitch*rad/2), math.Sin(o.Pitch*rad/2)
	cr, sr := math.Cos(o.Roll*rad/2), math.Sin(o.Roll*rad/2)
	return quaternion{
		w: cr*cp*cy + sr*sp*sy,
		x: sr*cp*cy - cr*sp*sy,
		y: cr*sp*cy + sr*cp*sy,
		z: cr*cp*sy - sr*sp*cy,
	}
}

func (q quaternion) dot(o quaternion) float64 {
	return q.w*o.w + q.x*o.x + q.y*o.y + q.z*o.z
}

// pickupDetector samples attitude at most once per interval and reports when
// the robot starts or stops being handled.
type pickupDetector struct {
	threshold float64
	interval  time.Duration
	prev      *quaternion
	last      time.Time
	held      bool
}

func newPickupDetector(threshold float64, interval time.Duration) *pickupDetector {
	return &pickupDetector{threshold: threshold, interval: interval}
}

// observe returns the current held flag and whether it changed on this sample.
func (d *pickupDetector) observe(o models.Orientation, now time.Time) (held, changed bool) {
	if d.prev != nil && now.Sub(d.last) < d.interval {
		return d.held, false
	}
	q := toQuaternion(o)
	d.last = now
	if d.prev == nil {
		d.prev = &q
		return d.held, false
	}
	// q 와 -q 는 같은 자세
	moving := math.Abs(q.dot(*d.prev)) < d.threshold
	*d.prev = q
	if moving == d.held {
		return d.held, false
	}
	d.held = moving
	return d.held, true
}

// reset drops the reference sample; the next sample only primes the detector.
func (d *pickupDetector) reset() {
	d.prev = nil
}
