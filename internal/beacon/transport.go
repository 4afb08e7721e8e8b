package beacon

import (
	"context"

	beacon_config "github.com/geovan/vehicle-node/internal/beacon/config"
	"github.com/geovan/vehicle-node/log2"
)

type Transporter interface {
	Init(ctx context.Context, log *log2.Log, cfg beacon_config.Config, vehicleID string, willPayload []byte) error
	SendState(payload []byte) bool
	Close()
}
