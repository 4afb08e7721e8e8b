package sensor

import (
	"github.com/geovan/vehicle-node/hardware/gps"
	"github.com/geovan/vehicle-node/hardware/sensors"
)

// Hardware is the production Reader. Any field may be nil after a
// failed acquisition, the corresponding capability degrades.
type Hardware struct {
	Gps *gps.Receiver
	Env *sensors.Set
	Net *NetProbe
}

var _ Reader = (*Hardware)(nil)

func (h *Hardware) ReadPosition() (PositionReading, bool) {
	if h.Gps == nil {
		return PositionReading{}, false
	}
	fix, ok := h.Gps.CurrentFix()
	if !ok {
		return PositionReading{}, false
	}
	return PositionReading{
		Lat:        fix.Lat,
		Lng:        fix.Lon,
		Accuracy:   fix.Accuracy,
		Altitude:   fix.Altitude,
		SpeedKmh:   fix.SpeedKmh,
		Heading:    fix.Heading,
		Satellites: fix.Satellites,
	}, true
}

func (h *Hardware) ReadEnvironment() EnvironmentReading {
	r := h.Env.Read() // nil-safe, returns defaults
	return EnvironmentReading{
		Temperature:   r.Temperature,
		Humidity:      r.Humidity,
		Pressure:      r.Pressure,
		Accelerometer: r.Accelerometer,
		Compass:       r.Compass,
	}
}

func (h *Hardware) ReadNetworkDiagnostics() NetworkReading {
	if h.Net == nil {
		return NetworkReading{
			SignalStrength: 0,
			ConnectionType: "Unknown",
			SSID:           UnknownSSID,
			LocalIP:        UnknownLocalIP,
			LatencyMs:      WorstLatencyMs,
			BandwidthMbps:  0,
		}
	}
	return h.Net.Read()
}
