// Package agent wires the collection and delivery loops to the
// hardware and owns their lifecycle.
package agent

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"

	"github.com/geovan/vehicle-node/hardware/gps"
	"github.com/geovan/vehicle-node/hardware/i2c"
	"github.com/geovan/vehicle-node/hardware/sensors"
	"github.com/geovan/vehicle-node/helpers"
	"github.com/geovan/vehicle-node/internal/beacon"
	"github.com/geovan/vehicle-node/internal/sensor"
	"github.com/geovan/vehicle-node/internal/state"
	"github.com/geovan/vehicle-node/internal/telemetry"
	"github.com/geovan/vehicle-node/internal/transmit"
	"github.com/geovan/vehicle-node/log2"
)

type Agent struct {
	Log *log2.Log

	cfg   *state.Config
	alive *alive.Alive
	slot  *telemetry.Slot

	gpsRecv *gps.Receiver
	i2cBus  i2c.Bus
	beacon  *beacon.Beacon

	// test seams, nil means production path in Start
	reader    sensor.Reader
	transport http.RoundTripper

	releaseOnce sync.Once
}

// New validates the config. This is the only fatal error path, a
// started agent keeps running whatever the hardware does.
func New(cfg *state.Config, log *log2.Log) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Agent{
		Log:   log,
		cfg:   cfg,
		alive: alive.NewAlive(),
		slot:  new(telemetry.Slot),
	}, nil
}

// Snapshot returns the latest published snapshot or nil.
func (a *Agent) Snapshot() *telemetry.VehicleSnapshot { return a.slot.Load() }

// Start acquires hardware best-effort and launches the loops. A failed
// GPS or I2C acquisition degrades the respective capability, it never
// fails Start.
func (a *Agent) Start(ctx context.Context) error {
	if a.reader == nil {
		a.reader = a.acquireHardware()
	}

	a.beacon = new(beacon.Beacon)
	if err := a.beacon.Init(ctx, a.Log, a.cfg.Tele, a.cfg.VehicleID); err != nil {
		a.Log.Errorf("agent: beacon err=%v, running without beacon", err)
		a.beacon = nil
	}

	agg := &telemetry.Aggregator{
		Reader:   a.reader,
		Slot:     a.slot,
		Meta:     a.cfg.Vehicle,
		Interval: time.Duration(a.cfg.CollectIntervalSec) * time.Second,
		Log:      a.Log,
	}
	if a.beacon != nil {
		agg.OnStatus = a.beacon.SetStatus
	}
	trans := &transmit.Transmitter{
		Slot:      a.slot,
		VehicleID: a.cfg.VehicleID,
		ServerURL: a.cfg.ServerURL,
		Interval:  time.Duration(a.cfg.TransmitIntervalSec) * time.Second,
		Log:       a.Log,
	}
	if a.transport != nil {
		trans.Client = &http.Client{Transport: a.transport, Timeout: transmit.DefaultNetworkTimeout}
	}

	a.alive.Add(2)
	go agg.Run(a.alive)
	go trans.Run(a.alive)
	a.Log.Infof("agent: started vehicle=%s server=%s collect=%ds transmit=%ds",
		a.cfg.VehicleID, a.cfg.ServerURL, a.cfg.CollectIntervalSec, a.cfg.TransmitIntervalSec)
	return nil
}

func (a *Agent) acquireHardware() sensor.Reader {
	h := &sensor.Hardware{}

	if recv, err := gps.Open(a.cfg.Gps, a.Log); err != nil {
		a.Log.Errorf("agent: gps err=%v, running without GPS", err)
	} else {
		a.gpsRecv = recv
		h.Gps = recv
	}

	bus := i2c.NewBus(byte(a.cfg.Sensors.Bus))
	if err := bus.Init(); err != nil {
		a.Log.Errorf("agent: i2c bus=%d err=%v, running with default sensor values", a.cfg.Sensors.Bus, err)
		bus = nil
	} else {
		a.i2cBus = bus
	}
	h.Env = sensors.NewSet(bus, a.cfg.Sensors.SensorConfig(), a.Log)

	h.Net = sensor.NewNetProbe(a.cfg.ServerURL, a.Log)
	return h
}

// Stop signals the loops to finish. Safe to call more than once.
func (a *Agent) Stop() { a.alive.Stop() }

// StopWait stops and waits for the loops to exit, releasing hardware
// afterwards. Returns false if the deadline passed first.
func (a *Agent) StopWait(timeout time.Duration) bool {
	a.Stop()
	select {
	case <-a.alive.WaitChan():
	case <-time.After(timeout):
		a.Log.Errorf("agent: shutdown timeout=%v", timeout)
		return false
	}
	a.release()
	return true
}

func (a *Agent) release() {
	a.releaseOnce.Do(func() {
		errs := make([]error, 0, 2)
		if a.gpsRecv != nil {
			errs = append(errs, errors.Annotate(a.gpsRecv.Close(), "gps close"))
		}
		if a.i2cBus != nil {
			errs = append(errs, errors.Annotate(a.i2cBus.Close(), "i2c close"))
		}
		if a.beacon != nil {
			a.beacon.Close()
		}
		if err := helpers.FoldErrors(errs); err != nil {
			a.Log.Errorf("agent: release err=%v", err)
		}
	})
}
