// Package beacon publishes a one-byte vehicle state over MQTT so the
// fleet side can tell a silent vehicle from a dead one. State messages
// may be lost, the full telemetry goes over HTTP.
package beacon

import (
	"context"
	"time"

	"github.com/juju/errors"

	"github.com/geovan/vehicle-node/helpers"
	beacon_config "github.com/geovan/vehicle-node/internal/beacon/config"
	"github.com/geovan/vehicle-node/internal/telemetry"
	"github.com/geovan/vehicle-node/log2"
)

type State byte

const (
	StateInvalid State = iota
	StateBoot
	StateNominal
	StateDegraded
	StateProblem
	StateDisconnected
)

const (
	defaultStateInterval  = 5 * time.Minute
	defaultNetworkTimeout = 30 * time.Second
)

// StateOfStatus maps a snapshot status to the beacon wire byte.
func StateOfStatus(s telemetry.Status) State {
	switch s {
	case telemetry.StatusActive:
		return StateNominal
	case telemetry.StatusWarning:
		return StateDegraded
	case telemetry.StatusError:
		return StateProblem
	default:
		return StateInvalid
	}
}

// Beacon contract:
// - Init() fails only with invalid config, network issues ignored
// - SetState() never blocks the caller
// - Close() disconnects the transport
type Beacon struct {
	enabled       bool
	log           *log2.Log
	transport     Transporter
	stateCh       chan State
	stopCh        chan struct{}
	stateInterval time.Duration
}

func (self *Beacon) Init(ctx context.Context, log *log2.Log, cfg beacon_config.Config, vehicleID string) error {
	self.enabled = cfg.Enabled
	self.log = log.Clone(log2.LInfo)
	if cfg.LogDebug {
		self.log.SetLevel(log2.LDebug)
	}
	if !self.enabled {
		return nil
	}

	self.stopCh = make(chan struct{})
	self.stateCh = make(chan State, 1)
	self.stateInterval = helpers.IntSecondDefault(cfg.StateIntervalSec, defaultStateInterval)

	willPayload := []byte{byte(StateDisconnected)}
	// test code sets .transport
	if self.transport == nil { // production path
		self.transport = &transportMqtt{}
	}
	if err := self.transport.Init(ctx, self.log, cfg, vehicleID, willPayload); err != nil {
		return errors.Annotate(err, "beacon transport")
	}

	go self.stateWorker()
	self.stateCh <- StateBoot
	return nil
}

func (self *Beacon) Close() {
	if !self.enabled {
		return
	}
	close(self.stopCh)
	self.transport.Close()
}

// SetState hands the next state to the worker. Disabled or busy beacon
// drops it, the regular tick resends the current byte anyway.
func (self *Beacon) SetState(next State) {
	if !self.enabled {
		return
	}
	select {
	case self.stateCh <- next:
	case <-self.stopCh:
	default:
	}
}

func (self *Beacon) SetStatus(s telemetry.Status) { self.SetState(StateOfStatus(s)) }

func (self *Beacon) stateWorker() {
	const retryInterval = 17 * time.Second
	var b [1]byte
	var sent bool
	tmrRegular := time.NewTicker(self.stateInterval)
	tmrRetry := time.NewTicker(retryInterval)
	defer tmrRegular.Stop()
	defer tmrRetry.Stop()
	for {
		select {
		case next := <-self.stateCh:
			if next != State(b[0]) {
				b[0] = byte(next)
				sent = self.transport.SendState(b[:])
			}

		case <-tmrRegular.C:
			sent = self.transport.SendState(b[:])

		case <-tmrRetry.C:
			if !sent {
				sent = self.transport.SendState(b[:])
			}

		case <-self.stopCh:
			return
		}
	}
}
