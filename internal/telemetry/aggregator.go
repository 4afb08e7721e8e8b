package telemetry

import (
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"

	"github.com/geovan/vehicle-node/helpers"
	"github.com/geovan/vehicle-node/internal/sensor"
	"github.com/geovan/vehicle-node/internal/state"
	"github.com/geovan/vehicle-node/log2"
)

const (
	DefaultCollectInterval = 1 * time.Second
	// extra delay after a failed tick, on top of the regular cadence
	failBackoffMax = 5 * time.Second
)

// Fixed security placeholders, see Security doc.
const (
	fixedTrustScore      = 95.0
	fixedEncryptionLabel = "AES-256"
)

// Aggregator runs the collection loop: one reading set per tick, one
// wholesale snapshot publish. A failed tick leaves the previous
// snapshot in place.
type Aggregator struct {
	Reader   sensor.Reader
	Slot     *Slot
	Meta     state.VehicleMeta
	Interval time.Duration
	Log      *log2.Log

	// Health is a seam for tests, nil means ReadHostHealth.
	Health func(*log2.Log) HardwareHealth
	// OnStatus, when set, observes the status of every published
	// snapshot (feeds the MQTT beacon).
	OnStatus func(Status)

	now func() time.Time
}

// Run is an alive task: caller did alive.Add(1), Run owns Done.
func (a *Aggregator) Run(lifecycle *alive.Alive) {
	defer lifecycle.Done()
	if a.Interval == 0 {
		a.Interval = DefaultCollectInterval
	}
	backoff := helpers.Backoff{Min: a.Interval, Max: failBackoffMax, K: 2}
	stopCh := lifecycle.StopChan()
	for {
		delay := a.Interval
		if err := a.Tick(); err != nil {
			a.Log.Errorf("collect: %v", err)
			backoff.Failure()
			delay += backoff.DelayBefore()
		} else {
			backoff.Reset()
		}

		select {
		case <-stopCh:
			return
		case <-time.After(delay):
		}
	}
}

// Tick performs one collection. The sensor Reader contract is total,
// so the only failure mode left is a misbehaving Reader
// implementation, which is contained here instead of killing the loop.
func (a *Aggregator) Tick() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("collect tick panic: %v", r)
		}
	}()

	snap := a.collect()
	a.Slot.Store(snap)
	if a.OnStatus != nil {
		a.OnStatus(snap.Status)
	}
	a.Log.Infof("collected status=%s position=%.6f,%.6f", snap.Status, snap.Position.Lat, snap.Position.Lng)
	return nil
}

func (a *Aggregator) collect() *VehicleSnapshot {
	pos, hasFix := a.Reader.ReadPosition()
	env := a.Reader.ReadEnvironment()
	netr := a.Reader.ReadNetworkDiagnostics()

	health := ReadHostHealth
	if a.Health != nil {
		health = a.Health
	}
	nowf := time.Now
	if a.now != nil {
		nowf = a.now
	}
	now := nowf()

	snap := &VehicleSnapshot{
		ID:       a.Meta.ID,
		Name:     a.Meta.Name,
		Metadata: a.Meta,
		Sensors: SensorBlock{
			Temperature:   env.Temperature,
			Humidity:      env.Humidity,
			Pressure:      env.Pressure,
			Accelerometer: env.Accelerometer,
			Compass:       env.Compass,
		},
		Network: Network{
			SignalStrength: netr.SignalStrength,
			ConnectionType: netr.ConnectionType,
			SSID:           netr.SSID,
			LocalIP:        netr.LocalIP,
			Latency:        netr.LatencyMs,
			Bandwidth:      netr.BandwidthMbps,
		},
		Security: Security{
			TrustScore:       fixedTrustScore,
			CertificateValid: true,
			LastSignature:    Signature(a.Meta.ID, now),
			EncryptionLevel:  fixedEncryptionLabel,
		},
		Hardware:   health(a.Log),
		Timestamp:  now,
		LastUpdate: now,
	}

	if hasFix {
		snap.Position = Position{Lat: pos.Lat, Lng: pos.Lng, Accuracy: pos.Accuracy, Altitude: pos.Altitude}
		snap.Velocity = Velocity{Speed: pos.SpeedKmh, Heading: pos.Heading}
	} else {
		snap.Position = Position{Accuracy: NoFixAccuracy}
	}
	snap.Status = Classify(hasFix, snap.Position.Accuracy, netr.LatencyMs, env.Temperature)

	return snap
}
