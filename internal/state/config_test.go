package state

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geovan/vehicle-node/log2"
)

const configFull = `
vehicle_id = "rpi-7"
server_url = "https://geovan.example.com"
collect_interval_sec = 2
transmit_interval_sec = 10

vehicle {
  name = "Courier 7"
  make = "Tarka"
  model = "Box"
  year = 2023
  license_plate = "AB-123"
  driver_id = "d-7"
}

gps {
  device = "/dev/ttyUSB0"
  baud = 4800
}

sensors {
  bus = 3
  thermometer_addr = 73
}

network {
  wifi_ssid = "fleet"
  wifi_password = "hunter2"
}

log {
  level = "debug"
}

tele {
  enabled = true
  broker = "tcp://mqtt.example.com:1883"
  state_interval_sec = 60
}
`

func TestReadConfigFull(t *testing.T) {
	t.Parallel()

	c, err := ReadConfig(strings.NewReader(configFull))
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, "rpi-7", c.VehicleID)
	assert.Equal(t, "https://geovan.example.com", c.ServerURL)
	assert.Equal(t, 2, c.CollectIntervalSec)
	assert.Equal(t, 10, c.TransmitIntervalSec)

	assert.Equal(t, "rpi-7", c.Vehicle.ID)
	assert.Equal(t, "Courier 7", c.Vehicle.Name)
	assert.Equal(t, "AB-123", c.Vehicle.LicensePlate)

	assert.Equal(t, "/dev/ttyUSB0", c.Gps.Device)
	assert.Equal(t, 4800, c.Gps.Baud)

	assert.Equal(t, 3, c.Sensors.Bus)
	assert.Equal(t, byte(73), c.Sensors.SensorConfig().ThermometerAddr)

	assert.Equal(t, "fleet", c.Network.WifiSSID)
	assert.Equal(t, log2.LDebug, c.LogLevel())
	assert.Equal(t, "vehicle_rpi-7.log", c.Log.File)

	assert.True(t, c.Tele.Enabled)
	assert.Equal(t, "tcp://mqtt.example.com:1883", c.Tele.Broker)
}

func TestValidateDefaults(t *testing.T) {
	t.Parallel()

	c, err := ReadConfig(strings.NewReader("vehicle_id=\"v9\"\nserver_url=\"http://s\"\n"))
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, DefaultCollectIntervalSec, c.CollectIntervalSec)
	assert.Equal(t, DefaultTransmitIntervalSec, c.TransmitIntervalSec)
	assert.Equal(t, DefaultSensorBus, c.Sensors.Bus)
	assert.Equal(t, "Vehicle-v9", c.Vehicle.Name)
	assert.Equal(t, "Custom", c.Vehicle.Make)
	assert.Equal(t, "IoT Node", c.Vehicle.Model)
	assert.Equal(t, 2024, c.Vehicle.Year)
	assert.Equal(t, "PI-v9", c.Vehicle.LicensePlate)
	assert.Equal(t, "driver-v9", c.Vehicle.DriverID)
	assert.Equal(t, "vehicle_v9.log", c.Log.File)
	assert.False(t, c.Tele.Enabled)
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		config string
	}{
		{"missing-id", "server_url=\"http://s\"\n"},
		{"missing-url", "vehicle_id=\"v\"\n"},
		{"bad-url", "vehicle_id=\"v\"\nserver_url=\"ftp://nope\"\n"},
		{"bad-level", "vehicle_id=\"v\"\nserver_url=\"http://s\"\nlog { level=\"chatty\" }\n"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			cfg, err := ReadConfig(strings.NewReader(c.config))
			require.NoError(t, err)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateClampsTransmitInterval(t *testing.T) {
	t.Parallel()

	cfg, err := ReadConfig(strings.NewReader(
		"vehicle_id=\"v\"\nserver_url=\"http://s\"\ncollect_interval_sec=10\ntransmit_interval_sec=3\n"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10, cfg.TransmitIntervalSec)
}
