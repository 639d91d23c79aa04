// internal/behavior/shake.go
package behavior

import "sphero-behavior/internal/models"

// ShakeThreshold is the pitch/roll delta above which a sample counts as a shake.
const ShakeThreshold = 0.3

// shakeDetector compares each orientation sample with the previous one.
// The first sample only primes the detector.
type shakeDetector struct {
	threshold float64
	prev      *models.Orientation
}

func newShakeDetector(threshold float64) *shakeDetector {
	return &shakeDetector{threshold: threshold}
}

func (d *shakeDetector) observe(o models.Orientation) bool {
	if d.prev == nil {
		d.prev = &o
		return false
	}
	shook := o.Delta(*d.prev) > d.threshold
	*d.prev = o
	return shook
}

func (d *shakeDetector) reset() {
	d.prev = nil
}
