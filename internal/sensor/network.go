package sensor

import (
	"net"
	"net/url"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/geovan/vehicle-node/log2"
)

const (
	latencyDialTimeout = 2 * time.Second
	probeAddr          = "8.8.8.8:80" // never dialed for latency, only for local address discovery
)

// NetProbe measures network diagnostics against the telemetry server.
// All probes are one attempt, failures produce sentinel values.
type NetProbe struct {
	log        *log2.Log
	serverAddr string // host:port for the latency dial

	// test seams
	runIwconfig func() ([]byte, error)
	dial        func(network, addr string, timeout time.Duration) (net.Conn, error)
}

func NewNetProbe(serverURL string, log *log2.Log) *NetProbe {
	return &NetProbe{
		log:        log,
		serverAddr: serverDialAddr(serverURL),
		runIwconfig: func() ([]byte, error) {
			return exec.Command("iwconfig").Output()
		},
		dial: net.DialTimeout,
	}
}

func (p *NetProbe) Read() NetworkReading {
	r := NetworkReading{
		ConnectionType: "Unknown",
		SSID:           UnknownSSID,
		LocalIP:        UnknownLocalIP,
		LatencyMs:      WorstLatencyMs,
		BandwidthMbps:  PlaceholderMbps,
	}

	if out, err := p.runIwconfig(); err != nil {
		p.log.Debugf("netprobe: iwconfig err=%v", err)
	} else if ssid, signal, ok := parseIwconfig(string(out)); ok {
		r.SSID = ssid
		r.SignalStrength = signal
		r.ConnectionType = "WiFi"
	}

	if ip, err := localIP(); err != nil {
		p.log.Debugf("netprobe: local ip err=%v", err)
	} else {
		r.LocalIP = ip
	}

	if ms, err := p.measureLatency(); err != nil {
		p.log.Debugf("netprobe: latency addr=%s err=%v", p.serverAddr, err)
	} else {
		r.LatencyMs = ms
	}

	return r
}

func (p *NetProbe) measureLatency() (float64, error) {
	begin := time.Now()
	conn, err := p.dial("tcp", p.serverAddr, latencyDialTimeout)
	if err != nil {
		return 0, err
	}
	_ = conn.Close()
	return float64(time.Since(begin)) / float64(time.Millisecond), nil
}

// parseIwconfig pulls ESSID and signal level out of iwconfig output.
// Format varies between wireless drivers, hence ok=false on anything odd.
func parseIwconfig(out string) (ssid string, signal int, ok bool) {
	i := strings.Index(out, `ESSID:"`)
	if i < 0 {
		return "", 0, false
	}
	rest := out[i+len(`ESSID:"`):]
	j := strings.IndexByte(rest, '"')
	if j <= 0 {
		return "", 0, false
	}
	ssid = rest[:j]

	if k := strings.Index(out, "Signal level="); k >= 0 {
		f := strings.Fields(out[k+len("Signal level="):])
		if len(f) > 0 {
			if n, err := strconv.Atoi(strings.TrimSuffix(f[0], "dBm")); err == nil {
				signal = n
			}
		}
	}
	return ssid, signal, true
}

func localIP() (string, error) {
	// no packets are sent over UDP "connect", kernel just picks a route
	conn, err := net.Dial("udp", probeAddr)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}

func serverDialAddr(serverURL string) string {
	u, err := url.Parse(serverURL)
	if err != nil || u.Host == "" {
		return serverURL
	}
	host := u.Host
	if u.Port() == "" {
		switch u.Scheme {
		case "https":
			host = net.JoinHostPort(u.Hostname(), "443")
		default:
			host = net.JoinHostPort(u.Hostname(), "80")
		}
	}
	return host
}
