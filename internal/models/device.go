// internal/models/device.go
package models

import "math"

// Color is an RGB triple as understood by the robot's LEDs.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

var (
	ColorOff   = Color{0, 0, 0}
	ColorWhite = Color{255, 255, 255}
	ColorRed   = Color{255, 0, 0}
	ColorWarm  = Color{220, 80, 0}
)

// Scale returns the color dimmed to brightness/255.
func (c Color) Scale(brightness int) Color {
	if brightness <= 0 {
		return ColorOff
	}
	if brightness >= 255 {
		return c
	}
	return Color{
		R: uint8(int(c.R) * brightness / 255),
		G: uint8(int(c.G) * brightness / 255),
		B: uint8(int(c.B) * brightness / 255),
	}
}

// MatrixSize is the edge length of the LED matrix.
const MatrixSize = 8

// Matrix is an 8x8 grid of optional colors indexed [row][col]; nil pixels are off.
type Matrix [MatrixSize][MatrixSize]*Color

// Indicator selects one of the single-color LEDs.
type Indicator string

const (
	IndicatorFront Indicator = "front"
	IndicatorBack  Indicator = "back"
)

// Orientation is an attitude sample in degrees.
type Orientation struct {
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
	Yaw   float64 `json:"yaw"`
}

// Delta returns the Euclidean pitch/roll distance between two samples.
func (o Orientation) Delta(prev Orientation) float64 {
	dp := math.Abs(o.Pitch - prev.Pitch)
	dr := math.Abs(o.Roll - prev.Roll)
	return math.Sqrt(dp*dp + dr*dr)
}

// Connection states reported by the device gateway.
const (
	ConnectionOnline  = "ONLINE"
	ConnectionOffline = "OFFLINE"
	ConnectionBroken  = "CONNECTIONBROKEN"
)

// IsValidConnectionState reports whether the gateway state is recognized.
func IsValidConnectionState(state string) bool {
	switch state {
	case ConnectionOnline, ConnectionOffline, ConnectionBroken:
		return true
	}
	return false
}
