package main

import (
	"context"
	"flag"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"

	"github.com/geovan/vehicle-node/internal/agent"
	"github.com/geovan/vehicle-node/internal/state"
	"github.com/geovan/vehicle-node/log2"
)

const shutdownTimeout = 10 * time.Second

func main() {
	flagConfig := flag.String("config", "vnode.hcl", "")
	flagVehicleID := flag.String("vehicle-id", "", "override config vehicle_id")
	flagServerURL := flag.String("server-url", "", "override config server_url")
	flagWifiSSID := flag.String("wifi-ssid", "", "override config network wifi_ssid")
	flagWifiPassword := flag.String("wifi-password", "", "override config network wifi_password")
	flag.Parse()

	const logFlagsService = stdlog.Lshortfile
	const logFlagsInteractive = stdlog.Lshortfile | stdlog.Ltime | stdlog.Lmicroseconds
	log := log2.NewStderr(log2.LDebug)
	logFlags := logFlagsInteractive
	if sdnotify(log, "start") {
		// we're under systemd, assume systemd journal logging, remove timestamp
		logFlags = logFlagsService
	}
	log.SetFlags(logFlags)
	log.Info("hello")

	config, err := state.ReadConfigFile(*flagConfig, log)
	if err != nil {
		if *flagVehicleID == "" || *flagServerURL == "" {
			log.Fatal(errors.Annotatef(err, "config=%s", *flagConfig))
		}
		log.Errorf("config=%s err=%v, using flags only", *flagConfig, err)
		config = new(state.Config)
	}
	if *flagVehicleID != "" {
		config.VehicleID = *flagVehicleID
	}
	if *flagServerURL != "" {
		config.ServerURL = *flagServerURL
	}
	if *flagWifiSSID != "" {
		config.Network.WifiSSID = *flagWifiSSID
	}
	if *flagWifiPassword != "" {
		config.Network.WifiPassword = *flagWifiPassword
	}

	a, err := agent.New(config, log)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	log.SetLevel(config.LogLevel())

	// Validate filled Log.File, mirror everything there from now on
	if tee, err := log2.NewTee(config.Log.File, config.LogLevel()); err != nil {
		log.Errorf("log file=%s err=%v, console only", config.Log.File, err)
	} else {
		tee.SetFlags(logFlags)
		log = tee
		a.Log = log
	}
	log.Infof("vehicle=%s server=%s", config.VehicleID, config.ServerURL)

	probeServer(config.ServerURL, log)

	if err := a.Start(context.Background()); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	sdnotify(log, daemon.SdNotifyReady)
	log.Infof("agent running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Infof("signal=%v, stopping", sig)
	sdnotify(log, daemon.SdNotifyStopping)
	if !a.StopWait(shutdownTimeout) {
		os.Exit(1)
	}
	log.Infof("goodbye")
}

// One connectivity probe at startup, outcome is informational only.
func probeServer(serverURL string, log *log2.Log) {
	client := &http.Client{Timeout: 5 * time.Second}
	url := strings.TrimRight(serverURL, "/") + "/api/health"
	resp, err := client.Get(url)
	if err != nil {
		log.Errorf("server probe url=%s err=%v, will keep trying", url, err)
		return
	}
	resp.Body.Close()
	log.Infof("server probe url=%s code=%d", url, resp.StatusCode)
}

func sdnotify(log *log2.Log, s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		log.Fatal("sdnotify: ", errors.ErrorStack(err))
	}
	return ok
}
