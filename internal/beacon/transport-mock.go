package beacon

import (
	"context"
	"testing"
	"time"

	beacon_config "github.com/geovan/vehicle-node/internal/beacon/config"
	"github.com/geovan/vehicle-node/log2"
)

type transportMock struct {
	t              testing.TB
	networkTimeout time.Duration
	outBuffer      int
	outState       chan []byte
}

func (self *transportMock) Init(ctx context.Context, log *log2.Log, cfg beacon_config.Config, vehicleID string, willPayload []byte) error {
	if self.networkTimeout == 0 {
		self.networkTimeout = defaultNetworkTimeout
	}
	self.outState = make(chan []byte, self.outBuffer)
	return nil
}

func (self *transportMock) Close() {}

func (self *transportMock) SendState(payload []byte) bool {
	p := append([]byte(nil), payload...)
	select {
	case self.outState <- p:
		self.t.Logf("mock delivered state=%x", p)
	case <-time.After(self.networkTimeout):
		self.t.Logf("mock network timeout")
		return false
	}
	return true
}
