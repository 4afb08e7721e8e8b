// Package gps reads NMEA sentences from a serial GPS receiver and keeps
// the last known fix. Callers poll CurrentFix, the serial line is owned
// by a background reader.
package gps

import (
	"bufio"
	"io"
	"strings"
	"sync"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	"github.com/jacobsa/go-serial/serial"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"

	"github.com/geovan/vehicle-node/log2"
)

const (
	DefaultDevice = "/dev/ttyAMA0"
	DefaultBaud   = 9600

	// HDOP to meters, rough single-band GPS figure
	hdopAccuracyScale = 5.0
	knotsToKmh        = 1.852
)

type Config struct {
	Device string `hcl:"device"`
	Baud   int    `hcl:"baud"`
}

// Fix is the latest usable position solution.
type Fix struct {
	Lat        float64
	Lon        float64
	Accuracy   float64 // meters, derived from HDOP
	Altitude   float64 // meters
	SpeedKmh   float64
	Heading    float64 // degrees true
	Satellites int
	Time       time.Time
}

type Receiver struct {
	dev   io.ReadCloser
	log   *log2.Log
	alive *alive.Alive

	mu       sync.Mutex
	fix      Fix
	hasFix   bool
	hdop     float64
	sawHDOP  bool
	lastLine time.Time
}

// Open opens the serial device and starts the reader goroutine.
func Open(cfg Config, log *log2.Log) (*Receiver, error) {
	if cfg.Device == "" {
		cfg.Device = DefaultDevice
	}
	if cfg.Baud == 0 {
		cfg.Baud = DefaultBaud
	}
	options := serial.OpenOptions{
		PortName:        cfg.Device,
		BaudRate:        uint(cfg.Baud),
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 4,
	}
	dev, err := serial.Open(options)
	if err != nil {
		return nil, errors.Annotatef(err, "gps: open device=%s baud=%d", cfg.Device, cfg.Baud)
	}
	return newReceiver(dev, log), nil
}

func newReceiver(dev io.ReadCloser, log *log2.Log) *Receiver {
	g := &Receiver{
		dev:   dev,
		log:   log,
		alive: alive.NewAlive(),
	}
	g.alive.Add(1)
	go g.run()
	return g
}

// CurrentFix returns the last valid fix. ok=false before the first fix
// or after the receiver reported loss of validity.
func (g *Receiver) CurrentFix() (Fix, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fix, g.hasFix
}

// Close stops the reader and releases the serial line. Safe to call twice.
func (g *Receiver) Close() error {
	g.alive.Stop()
	err := g.dev.Close()
	g.alive.Wait()
	if err != nil && strings.Contains(err.Error(), "already closed") {
		return nil
	}
	return err
}

func (g *Receiver) run() {
	defer g.alive.Done()
	scanner := bufio.NewScanner(g.dev)
	for scanner.Scan() {
		if !g.alive.IsRunning() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		g.handleLine(line)
	}
	if err := scanner.Err(); err != nil && g.alive.IsRunning() {
		g.log.Errorf("gps: read err=%v", err)
	}
}

func (g *Receiver) handleLine(line string) {
	s, err := nmea.Parse(line)
	if err != nil {
		// receivers emit proprietary sentences too, not worth a log line each
		g.log.Debugf("gps: skip line=%q err=%v", line, err)
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastLine = time.Now()

	switch m := s.(type) {
	case nmea.RMC:
		if m.Validity != nmea.ValidRMC {
			g.hasFix = false
			return
		}
		g.fix.Lat = m.Latitude
		g.fix.Lon = m.Longitude
		g.fix.SpeedKmh = m.Speed * knotsToKmh
		g.fix.Heading = m.Course
		g.fix.Time = time.Now()
		if g.sawHDOP {
			g.fix.Accuracy = g.hdop * hdopAccuracyScale
		}
		g.hasFix = true

	case nmea.GGA:
		if m.FixQuality == nmea.Invalid {
			g.hasFix = false
			return
		}
		g.fix.Altitude = m.Altitude
		g.fix.Satellites = int(m.NumSatellites)
		g.hdop = m.HDOP
		g.sawHDOP = true
		g.fix.Accuracy = g.hdop * hdopAccuracyScale

	case nmea.GSA:
		if m.HDOP > 0 {
			g.hdop = m.HDOP
			g.sawHDOP = true
			g.fix.Accuracy = g.hdop * hdopAccuracyScale
		}
	}
}
