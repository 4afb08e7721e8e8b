// Package telemetry assembles the vehicle state snapshot.
// The Aggregator is the only writer, everything downstream gets a
// read-only pointer through the Slot.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/geovan/vehicle-node/hardware/sensors"
	"github.com/geovan/vehicle-node/internal/state"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Thresholds for status classification. Units follow the respective
// reading fields: accuracy in meters, latency in milliseconds,
// temperature in degrees C.
const (
	AccuracyErrorThreshold   = 50.0
	LatencyWarningThreshold  = 500.0
	TemperatureWarnThreshold = 80.0

	// accuracy reported while there is no fix at all
	NoFixAccuracy = 999.0
)

// Classify is a pure function of the inputs, first match wins:
// no fix or bad accuracy beats high latency beats hot sensor.
func Classify(hasFix bool, accuracy, latencyMs, temperature float64) Status {
	if !hasFix || accuracy > AccuracyErrorThreshold {
		return StatusError
	}
	if latencyMs > LatencyWarningThreshold {
		return StatusWarning
	}
	if temperature > TemperatureWarnThreshold {
		return StatusWarning
	}
	return StatusActive
}

// Signature is an opaque freshness tag over (vehicle id, timestamp).
// It is not an authentication mechanism.
func Signature(vehicleID string, ts time.Time) string {
	sum := sha256.Sum256([]byte(vehicleID + ts.Format(time.RFC3339Nano)))
	return hex.EncodeToString(sum[:])
}

type Position struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Accuracy float64 `json:"accuracy"`
	Altitude float64 `json:"altitude"`
}

type Velocity struct {
	Speed        float64 `json:"speed"`
	Heading      float64 `json:"heading"`
	Acceleration float64 `json:"acceleration"`
}

type SensorBlock struct {
	Temperature   float64         `json:"temperature"`
	Humidity      float64         `json:"humidity"`
	Pressure      float64         `json:"pressure"`
	Accelerometer sensors.Vector3 `json:"accelerometer"`
	Compass       sensors.Vector3 `json:"compass"`
}

// Security carries fixed placeholder values plus the freshness
// signature. Kept for wire compatibility, promises nothing.
type Security struct {
	TrustScore       float64 `json:"trustScore"`
	CertificateValid bool    `json:"certificateValid"`
	LastSignature    string  `json:"lastSignature"`
	EncryptionLevel  string  `json:"encryptionLevel"`
}

type Network struct {
	SignalStrength int     `json:"signalStrength"`
	ConnectionType string  `json:"connectionType"`
	SSID           string  `json:"ssid"`
	LocalIP        string  `json:"localIP"`
	Latency        float64 `json:"latency"`
	Bandwidth      float64 `json:"bandwidth"`
}

// VehicleSnapshot is immutable once published. Field names follow the
// server wire format.
type VehicleSnapshot struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Status     Status            `json:"status"`
	Position   Position          `json:"position"`
	Velocity   Velocity          `json:"velocity"`
	Metadata   state.VehicleMeta `json:"metadata"`
	Sensors    SensorBlock       `json:"sensors"`
	Security   Security          `json:"security"`
	Network    Network           `json:"network"`
	Hardware   HardwareHealth    `json:"hardware"`
	Timestamp  time.Time         `json:"timestamp"`
	LastUpdate time.Time         `json:"lastUpdate"`
}
