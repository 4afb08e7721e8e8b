package transmit

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/alive/v2"

	"github.com/geovan/vehicle-node/helpers"
	"github.com/geovan/vehicle-node/internal/sensor"
	"github.com/geovan/vehicle-node/internal/state"
	"github.com/geovan/vehicle-node/internal/telemetry"
	"github.com/geovan/vehicle-node/log2"
)

func testTransmitter(t testing.TB, rt http.RoundTripper) (*Transmitter, *telemetry.Slot) {
	slot := new(telemetry.Slot)
	return &Transmitter{
		Slot:      slot,
		VehicleID: "v-1",
		ServerURL: "http://fleet.example.com",
		Interval:  time.Millisecond,
		Log:       log2.NewTest(t, log2.LDebug),
		Client:    &http.Client{Transport: rt, Timeout: time.Second},
	}, slot
}

func storeSnapshot(slot *telemetry.Slot) *telemetry.VehicleSnapshot {
	snap := &telemetry.VehicleSnapshot{ID: "v-1", Status: telemetry.StatusActive}
	slot.Store(snap)
	return snap
}

func TestSendOnceEmptySlot(t *testing.T) {
	t.Parallel()

	tr, _ := testTransmitter(t, &helpers.MockHTTP{
		Fun: func(*http.Request) (*http.Response, error) {
			t.Fatal("must not send before first snapshot")
			return nil, nil
		},
	})
	r := tr.SendOnce(context.Background())
	assert.True(t, r.Skipped)
	assert.False(t, r.Delivered)
	assert.NoError(t, r.Err)
}

func TestSendOnceDelivered(t *testing.T) {
	t.Parallel()

	var got *http.Request
	var gotBody []byte
	mock := &helpers.MockHTTP{Fun: func(req *http.Request) (*http.Response, error) {
		got = req
		gotBody, _ = ioutil.ReadAll(req.Body)
		return (&helpers.MockHTTP{}).RoundTrip(req)
	}}
	tr, slot := testTransmitter(t, mock)
	snap := storeSnapshot(slot)
	sendTime := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return sendTime }

	r := tr.SendOnce(context.Background())
	require.NoError(t, r.Err)
	assert.True(t, r.Delivered)
	assert.Equal(t, http.StatusOK, r.StatusCode)

	require.NotNil(t, got)
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "http://fleet.example.com/api/vehicle/update", got.URL.String())
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))

	var env Envelope
	require.NoError(t, json.Unmarshal(gotBody, &env))
	assert.Equal(t, "v-1", env.VehicleID)
	assert.Equal(t, telemetry.Signature("v-1", sendTime), env.Checksum)
	require.NotNil(t, env.Data)
	assert.Equal(t, snap.ID, env.Data.ID)
}

func TestSendOnceServerError(t *testing.T) {
	t.Parallel()

	tr, slot := testTransmitter(t, &helpers.MockHTTP{
		Header: []byte("HTTP/1.0 503 Service Unavailable\r\n\r\n"),
	})
	storeSnapshot(slot)

	r := tr.SendOnce(context.Background())
	assert.NoError(t, r.Err)
	assert.False(t, r.Delivered)
	assert.Equal(t, http.StatusServiceUnavailable, r.StatusCode)
}

func TestSendOnceTransportError(t *testing.T) {
	t.Parallel()

	tr, slot := testTransmitter(t, &helpers.MockHTTP{Err: context.DeadlineExceeded})
	storeSnapshot(slot)

	r := tr.SendOnce(context.Background())
	assert.Error(t, r.Err)
	assert.False(t, r.Delivered)
}

type countingReader struct {
	reads int64
}

func (r *countingReader) ReadPosition() (sensor.PositionReading, bool) {
	atomic.AddInt64(&r.reads, 1)
	return sensor.PositionReading{Accuracy: 5}, true
}

func (r *countingReader) ReadEnvironment() sensor.EnvironmentReading {
	return sensor.EnvironmentReading{Temperature: 25.0, Humidity: 50.0, Pressure: 1013.25}
}

func (r *countingReader) ReadNetworkDiagnostics() sensor.NetworkReading {
	return sensor.NetworkReading{}
}

// A stalled send must not delay collection: the loops share only the
// snapshot slot.
func TestSlowDeliveryDoesNotStallCollection(t *testing.T) {
	t.Parallel()

	reader := new(countingReader)
	slot := new(telemetry.Slot)
	agg := &telemetry.Aggregator{
		Reader:   reader,
		Slot:     slot,
		Meta:     state.VehicleMeta{ID: "v-1"},
		Interval: time.Millisecond,
		Log:      log2.NewTest(t, log2.LError),
		Health:   func(*log2.Log) telemetry.HardwareHealth { return telemetry.HardwareHealth{} },
	}

	var once sync.Once
	sendStarted := make(chan struct{})
	release := make(chan struct{})
	tr, _ := testTransmitter(t, &helpers.MockHTTP{Fun: func(req *http.Request) (*http.Response, error) {
		once.Do(func() { close(sendStarted) })
		<-release
		return (&helpers.MockHTTP{}).RoundTrip(req)
	}})
	tr.Slot = slot

	a := alive.NewAlive()
	a.Add(2)
	go agg.Run(a)
	go tr.Run(a)

	select {
	case <-sendStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("no send within deadline")
	}
	before := atomic.LoadInt64(&reader.reads)
	time.Sleep(100 * time.Millisecond)
	after := atomic.LoadInt64(&reader.reads)
	assert.Greater(t, after, before+5, "collection stalled behind delivery")

	close(release)
	a.Stop()
	a.Wait()
}

func TestRunLoop(t *testing.T) {
	t.Parallel()

	tr, slot := testTransmitter(t, &helpers.MockHTTP{})
	storeSnapshot(slot)
	results := make(chan Result, 16)
	tr.OnResult = func(r Result) {
		select {
		case results <- r:
		default:
		}
	}

	a := alive.NewAlive()
	a.Add(1)
	go tr.Run(a)

	select {
	case r := <-results:
		assert.True(t, r.Delivered)
	case <-time.After(time.Second):
		t.Fatal("no send within deadline")
	}
	a.Stop()
	a.Wait()
}
