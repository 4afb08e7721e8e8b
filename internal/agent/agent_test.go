package agent

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geovan/vehicle-node/helpers"
	"github.com/geovan/vehicle-node/internal/sensor"
	"github.com/geovan/vehicle-node/internal/state"
	"github.com/geovan/vehicle-node/internal/telemetry"
	"github.com/geovan/vehicle-node/internal/transmit"
	"github.com/geovan/vehicle-node/log2"
)

type staticReader struct {
	pos    sensor.PositionReading
	hasFix bool
}

func (r *staticReader) ReadPosition() (sensor.PositionReading, bool) { return r.pos, r.hasFix }
func (r *staticReader) ReadEnvironment() sensor.EnvironmentReading {
	return sensor.EnvironmentReading{Temperature: 25.0, Humidity: 50.0, Pressure: 1013.25}
}
func (r *staticReader) ReadNetworkDiagnostics() sensor.NetworkReading {
	return sensor.NetworkReading{SSID: sensor.UnknownSSID, LatencyMs: sensor.WorstLatencyMs, ConnectionType: "Unknown", LocalIP: sensor.UnknownLocalIP}
}

func testConfig() *state.Config {
	return &state.Config{
		VehicleID:           "v-test",
		ServerURL:           "http://fleet.example.com",
		CollectIntervalSec:  1,
		TransmitIntervalSec: 1,
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	t.Parallel()

	log := log2.NewTest(t, log2.LDebug)
	_, err := New(&state.Config{ServerURL: "http://x"}, log)
	assert.Error(t, err)
	_, err = New(&state.Config{VehicleID: "v-1"}, log)
	assert.Error(t, err)
}

// No GPS, no I2C, unreachable wifi tooling: the agent still publishes
// error-status snapshots and pushes them to the server.
func TestDegradedEndToEnd(t *testing.T) {
	t.Parallel()

	envelopes := make(chan transmit.Envelope, 16)
	mock := &helpers.MockHTTP{Fun: func(req *http.Request) (*http.Response, error) {
		body, _ := ioutil.ReadAll(req.Body)
		var env transmit.Envelope
		if err := json.Unmarshal(body, &env); err != nil {
			t.Errorf("envelope unmarshal err=%v", err)
		}
		select {
		case envelopes <- env:
		default:
		}
		return (&helpers.MockHTTP{}).RoundTrip(req)
	}}

	a, err := New(testConfig(), log2.NewTest(t, log2.LDebug))
	require.NoError(t, err)
	a.reader = &staticReader{hasFix: false}
	a.transport = mock
	require.NoError(t, a.Start(context.Background()))

	select {
	case env := <-envelopes:
		assert.Equal(t, "v-test", env.VehicleID)
		require.NotNil(t, env.Data)
		assert.Equal(t, telemetry.StatusError, env.Data.Status)
		assert.Equal(t, telemetry.NoFixAccuracy, env.Data.Position.Accuracy)
		assert.Equal(t, 25.0, env.Data.Sensors.Temperature)
	case <-time.After(5 * time.Second):
		t.Fatal("no transmission within deadline")
	}

	require.NotNil(t, a.Snapshot())
	assert.True(t, a.StopWait(3*time.Second))
}

func TestStopIdempotent(t *testing.T) {
	t.Parallel()

	a, err := New(testConfig(), log2.NewTest(t, log2.LDebug))
	require.NoError(t, err)
	a.reader = &staticReader{hasFix: true, pos: sensor.PositionReading{Accuracy: 5}}
	a.transport = &helpers.MockHTTP{}
	require.NoError(t, a.Start(context.Background()))

	a.Stop()
	a.Stop()
	assert.True(t, a.StopWait(3*time.Second))
	assert.True(t, a.StopWait(3*time.Second))
}
