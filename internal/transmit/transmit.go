// Package transmit pushes the latest snapshot to the fleet server.
// Delivery is fire-and-forget: a failed send is logged and the next
// tick tries again with fresher data, there is no retry queue.
package transmit

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"

	"github.com/geovan/vehicle-node/internal/telemetry"
	"github.com/geovan/vehicle-node/log2"
)

const (
	DefaultTransmitInterval = 5 * time.Second
	DefaultNetworkTimeout   = 10 * time.Second

	updatePath = "/api/vehicle/update"
)

// Envelope is the POST body wire format.
type Envelope struct {
	VehicleID string                     `json:"vehicle_id"`
	Data      *telemetry.VehicleSnapshot `json:"data"`
	Timestamp time.Time                  `json:"timestamp"`
	Checksum  string                     `json:"checksum"`
}

// Result reports the outcome of one send attempt.
// Skipped means there was nothing to send yet.
type Result struct {
	Delivered  bool
	Skipped    bool
	StatusCode int
	Err        error
}

type Transmitter struct {
	Slot      *telemetry.Slot
	VehicleID string
	ServerURL string
	Interval  time.Duration
	Log       *log2.Log

	// Client must carry the network timeout. nil means a fresh client
	// with DefaultNetworkTimeout.
	Client *http.Client

	// OnResult, when set, observes every send outcome.
	OnResult func(Result)

	now func() time.Time
}

func (t *Transmitter) client() *http.Client {
	if t.Client == nil {
		t.Client = &http.Client{Timeout: DefaultNetworkTimeout}
	}
	return t.Client
}

// Run is an alive task: caller did alive.Add(1), Run owns Done.
func (t *Transmitter) Run(lifecycle *alive.Alive) {
	defer lifecycle.Done()
	if t.Interval == 0 {
		t.Interval = DefaultTransmitInterval
	}
	stopCh := lifecycle.StopChan()
	for {
		select {
		case <-stopCh:
			return
		case <-time.After(t.Interval):
		}

		r := t.SendOnce(context.Background())
		switch {
		case r.Skipped:
			t.Log.Debugf("transmit: no snapshot yet")
		case r.Err != nil:
			t.Log.Errorf("transmit: %v", r.Err)
		case !r.Delivered:
			t.Log.Errorf("transmit: server responded %d", r.StatusCode)
		default:
			t.Log.Debugf("transmit: delivered code=%d", r.StatusCode)
		}
		if t.OnResult != nil {
			t.OnResult(r)
		}
	}
}

// SendOnce takes the current snapshot and POSTs it to the server.
// The snapshot is read-only shared data, it is never mutated here.
func (t *Transmitter) SendOnce(ctx context.Context) Result {
	snap := t.Slot.Load()
	if snap == nil {
		return Result{Skipped: true}
	}

	nowf := time.Now
	if t.now != nil {
		nowf = t.now
	}
	now := nowf()

	env := Envelope{
		VehicleID: t.VehicleID,
		Data:      snap,
		Timestamp: now,
		Checksum:  telemetry.Signature(t.VehicleID, now),
	}
	body, err := json.Marshal(env)
	if err != nil {
		return Result{Err: errors.Annotate(err, "transmit marshal")}
	}

	url := strings.TrimRight(t.ServerURL, "/") + updatePath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{Err: errors.Annotatef(err, "transmit request url=%s", url)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client().Do(req)
	if err != nil {
		return Result{Err: errors.Annotate(err, "transmit send")}
	}
	defer resp.Body.Close()
	// drain so the connection can be reused
	_, _ = io.Copy(ioutil.Discard, resp.Body)

	return Result{
		Delivered:  resp.StatusCode == http.StatusOK,
		StatusCode: resp.StatusCode,
	}
}
