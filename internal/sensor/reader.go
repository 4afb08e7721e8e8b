// Package sensor abstracts GPS, I2C and network acquisition behind one
// capability interface. Every method is a single best-effort attempt,
// failures degrade to "unavailable" or documented defaults and never
// reach the caller as errors.
package sensor

import "github.com/geovan/vehicle-node/hardware/sensors"

type PositionReading struct {
	Lat        float64
	Lng        float64
	Accuracy   float64
	Altitude   float64
	SpeedKmh   float64
	Heading    float64
	Satellites int
}

type EnvironmentReading struct {
	Temperature   float64
	Humidity      float64
	Pressure      float64
	Accelerometer sensors.Vector3
	Compass       sensors.Vector3
}

// Sentinels for network diagnostics when the platform facility fails.
const (
	UnknownSSID     = "Unknown"
	WorstLatencyMs  = 999.0
	PlaceholderMbps = 100.0
	UnknownLocalIP  = "0.0.0.0"
)

type NetworkReading struct {
	SignalStrength int
	ConnectionType string
	SSID           string
	LocalIP        string
	LatencyMs      float64
	BandwidthMbps  float64
}

type Reader interface {
	// ReadPosition returns ok=false when there is no usable fix.
	ReadPosition() (PositionReading, bool)
	// ReadEnvironment is total, returns defaults when hardware is absent.
	ReadEnvironment() EnvironmentReading
	// ReadNetworkDiagnostics is best-effort with sentinel values.
	ReadNetworkDiagnostics() NetworkReading
}
