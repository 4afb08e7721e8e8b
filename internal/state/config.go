// Package state holds the externally-loaded agent configuration.
package state

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"

	"github.com/geovan/vehicle-node/hardware/gps"
	"github.com/geovan/vehicle-node/hardware/sensors"
	beacon_config "github.com/geovan/vehicle-node/internal/beacon/config"
	"github.com/geovan/vehicle-node/log2"
)

const (
	DefaultCollectIntervalSec  = 1
	DefaultTransmitIntervalSec = 5
	DefaultSensorBus           = 1 // Raspberry Pi exposes sensors on i2c-1
)

// VehicleMeta is static vehicle identity, sent verbatim in every snapshot.
type VehicleMeta struct {
	ID              string `json:"id"` // always overwritten with vehicle_id
	Name            string `hcl:"name" json:"name"`
	Make            string `hcl:"make" json:"make"`
	Model           string `hcl:"model" json:"model"`
	Year            int    `hcl:"year" json:"year"`
	LicensePlate    string `hcl:"license_plate" json:"licensePlate"`
	DriverID        string `hcl:"driver_id" json:"driverId"`
	Emergency       bool   `hcl:"emergency" json:"emergencyVehicle"`
	AutonomousLevel int    `hcl:"autonomous_level" json:"autonomousLevel"`
}

type Config struct {
	VehicleID string      `hcl:"vehicle_id"`
	ServerURL string      `hcl:"server_url"`
	Vehicle   VehicleMeta `hcl:"vehicle"`

	Gps     gps.Config           `hcl:"gps"`
	Sensors sensorsSection       `hcl:"sensors"`
	Network networkSection       `hcl:"network"`
	Log     logSection           `hcl:"log"`
	Tele    beacon_config.Config `hcl:"tele"`

	CollectIntervalSec  int `hcl:"collect_interval_sec"`
	TransmitIntervalSec int `hcl:"transmit_interval_sec"`
}

type sensorsSection struct {
	Bus               int `hcl:"bus"`
	ThermometerAddr   int `hcl:"thermometer_addr"`
	AccelerometerAddr int `hcl:"accelerometer_addr"`
	CompassAddr       int `hcl:"compass_addr"`
}

func (s *sensorsSection) SensorConfig() sensors.Config {
	return sensors.Config{
		ThermometerAddr:   byte(s.ThermometerAddr),
		AccelerometerAddr: byte(s.AccelerometerAddr),
		CompassAddr:       byte(s.CompassAddr),
	}
}

type networkSection struct {
	WifiSSID     string `hcl:"wifi_ssid"`
	WifiPassword string `hcl:"wifi_password"`
	Interface    string `hcl:"interface"`
}

type logSection struct {
	Level string `hcl:"level"`
	File  string `hcl:"file"`
}

// Validate fills defaults derived from the vehicle id and rejects
// configuration the agent cannot start with. This is the only fatal
// error path in the whole program.
func (c *Config) Validate() error {
	if c.VehicleID == "" {
		return errors.NotValidf("config: vehicle_id is required")
	}
	if c.ServerURL == "" {
		return errors.NotValidf("config: server_url is required")
	}
	if !strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://") {
		return errors.NotValidf("config: server_url=%s must be http(s)", c.ServerURL)
	}
	if c.CollectIntervalSec < 0 || c.TransmitIntervalSec < 0 {
		return errors.NotValidf("config: negative interval")
	}
	if _, err := log2.ParseLevel(c.Log.Level); err != nil {
		return errors.NotValidf("config: %v", err)
	}

	if c.CollectIntervalSec == 0 {
		c.CollectIntervalSec = DefaultCollectIntervalSec
	}
	if c.TransmitIntervalSec == 0 {
		c.TransmitIntervalSec = DefaultTransmitIntervalSec
	}
	// transmit cadence must not be shorter than collection
	if c.TransmitIntervalSec < c.CollectIntervalSec {
		c.TransmitIntervalSec = c.CollectIntervalSec
	}
	if c.Sensors.Bus == 0 {
		c.Sensors.Bus = DefaultSensorBus
	}

	c.Vehicle.ID = c.VehicleID
	if c.Vehicle.Name == "" {
		c.Vehicle.Name = fmt.Sprintf("Vehicle-%s", c.VehicleID)
	}
	if c.Vehicle.Make == "" {
		c.Vehicle.Make = "Custom"
	}
	if c.Vehicle.Model == "" {
		c.Vehicle.Model = "IoT Node"
	}
	if c.Vehicle.Year == 0 {
		c.Vehicle.Year = 2024
	}
	if c.Vehicle.LicensePlate == "" {
		c.Vehicle.LicensePlate = fmt.Sprintf("PI-%s", c.VehicleID)
	}
	if c.Vehicle.DriverID == "" {
		c.Vehicle.DriverID = fmt.Sprintf("driver-%s", c.VehicleID)
	}
	if c.Log.File == "" {
		c.Log.File = fmt.Sprintf("vehicle_%s.log", c.VehicleID)
	}
	return nil
}

func (c *Config) LogLevel() log2.Level {
	lvl, err := log2.ParseLevel(c.Log.Level)
	if err != nil {
		return log2.LInfo
	}
	return lvl
}

func ReadConfig(r io.Reader) (*Config, error) {
	b, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, err
	}
	c := new(Config)
	if err = hcl.Unmarshal(b, c); err != nil {
		return nil, errors.Annotate(err, "config parse")
	}
	return c, nil
}

func ReadConfigFile(path string, log *log2.Log) (*Config, error) {
	if pathAbs, err := filepath.Abs(path); err != nil {
		log.Errorf("filepath.Abs(%s) error=%v", path, err)
	} else {
		path = pathAbs
	}
	log.Debugf("reading config file %s", path)

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadConfig(f)
}

func MustReadConfig(r io.Reader, log *log2.Log) *Config {
	c, err := ReadConfig(r)
	if err != nil {
		log.Fatal(err)
	}
	return c
}
