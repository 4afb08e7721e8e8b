// Package sensors reads the environment sensor set on the I2C bus.
// Read() is total: hardware problems degrade to documented defaults,
// the caller always gets a complete record.
package sensors

import (
	"github.com/geovan/vehicle-node/hardware/i2c"
	"github.com/geovan/vehicle-node/log2"
)

// Common I2C addresses on the vehicle board.
const (
	DefaultThermometerAddr   byte = 0x48 // ADS1115 or similar
	DefaultAccelerometerAddr byte = 0x68 // MPU6050
	DefaultCompassAddr       byte = 0x1e // HMC5883L
)

// Defaults reported when hardware is absent or erroring.
const (
	DefaultTemperature = 25.0
	DefaultHumidity    = 50.0
	DefaultPressure    = 1013.25
)

type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type Reading struct {
	Temperature   float64
	Humidity      float64
	Pressure      float64
	Accelerometer Vector3
	Compass       Vector3
}

// DefaultReading is what Read returns with no working hardware at all.
func DefaultReading() Reading {
	return Reading{
		Temperature: DefaultTemperature,
		Humidity:    DefaultHumidity,
		Pressure:    DefaultPressure,
	}
}

type Config struct {
	ThermometerAddr   byte
	AccelerometerAddr byte
	CompassAddr       byte
}

type Set struct {
	bus   i2c.Bus
	log   *log2.Log
	cfg   Config
	woken bool
}

// NewSet wraps bus. bus=nil is valid and yields defaults on every Read.
func NewSet(bus i2c.Bus, cfg Config, log *log2.Log) *Set {
	if cfg.ThermometerAddr == 0 {
		cfg.ThermometerAddr = DefaultThermometerAddr
	}
	if cfg.AccelerometerAddr == 0 {
		cfg.AccelerometerAddr = DefaultAccelerometerAddr
	}
	if cfg.CompassAddr == 0 {
		cfg.CompassAddr = DefaultCompassAddr
	}
	return &Set{bus: bus, cfg: cfg, log: log}
}

// Read never fails outward. Each sensor is one attempt; a failing
// sensor leaves its default in place.
func (s *Set) Read() Reading {
	r := DefaultReading()
	if s == nil || s.bus == nil {
		return r
	}

	if t, err := s.readTemperature(); err != nil {
		s.log.Debugf("sensors: thermometer addr=%02x err=%v", s.cfg.ThermometerAddr, err)
	} else {
		r.Temperature = t
	}

	if v, err := s.readAccelerometer(); err != nil {
		s.log.Debugf("sensors: accelerometer addr=%02x err=%v", s.cfg.AccelerometerAddr, err)
	} else {
		r.Accelerometer = v
	}

	if v, err := s.readCompass(); err != nil {
		s.log.Debugf("sensors: compass addr=%02x err=%v", s.cfg.CompassAddr, err)
	} else {
		r.Compass = v
	}

	return r
}

func (s *Set) readTemperature() (float64, error) {
	b, err := s.bus.ReadRegister(s.cfg.ThermometerAddr, 0x00, 2)
	if err != nil {
		return 0, err
	}
	raw := int16(uint16(b[0])<<8 | uint16(b[1]))
	return float64(raw) * 0.125, nil
}

func (s *Set) readAccelerometer() (Vector3, error) {
	// MPU6050 boots in sleep mode, clear PWR_MGMT_1 once
	if !s.woken {
		if err := s.bus.Tx(s.cfg.AccelerometerAddr, []byte{0x6b, 0x00}, nil); err != nil {
			return Vector3{}, err
		}
		s.woken = true
	}
	b, err := s.bus.ReadRegister(s.cfg.AccelerometerAddr, 0x3b, 6)
	if err != nil {
		return Vector3{}, err
	}
	const scale = 16384.0 // LSB per g at +-2g range
	return Vector3{
		X: float64(int16(uint16(b[0])<<8|uint16(b[1]))) / scale,
		Y: float64(int16(uint16(b[2])<<8|uint16(b[3]))) / scale,
		Z: float64(int16(uint16(b[4])<<8|uint16(b[5]))) / scale,
	}, nil
}

func (s *Set) readCompass() (Vector3, error) {
	// HMC5883L data output registers X,Z,Y starting at 0x03
	b, err := s.bus.ReadRegister(s.cfg.CompassAddr, 0x03, 6)
	if err != nil {
		return Vector3{}, err
	}
	const scale = 1090.0 // LSB per gauss at default gain
	return Vector3{
		X: float64(int16(uint16(b[0])<<8|uint16(b[1]))) / scale,
		Z: float64(int16(uint16(b[2])<<8|uint16(b[3]))) / scale,
		Y: float64(int16(uint16(b[4])<<8|uint16(b[5]))) / scale,
	}, nil
}
