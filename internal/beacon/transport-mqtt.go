package beacon

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io/ioutil"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"

	"github.com/geovan/vehicle-node/helpers"
	beacon_config "github.com/geovan/vehicle-node/internal/beacon/config"
	"github.com/geovan/vehicle-node/log2"
)

type transportMqtt struct {
	log    *log2.Log
	m      mqtt.Client
	mopt   *mqtt.ClientOptions
	stopCh chan struct{}

	topicState string
}

func (self *transportMqtt) Init(ctx context.Context, log *log2.Log, cfg beacon_config.Config, vehicleID string, willPayload []byte) error {
	self.log = log
	self.stopCh = make(chan struct{})

	mqttLog := self.log.Clone(log2.LDebug)
	mqtt.CRITICAL = mqttLog
	mqtt.ERROR = mqttLog
	mqtt.WARN = mqttLog
	if cfg.LogDebug {
		mqtt.DEBUG = mqttLog
	}

	clientId := vehicleID
	credFun := func() (string, string) {
		return clientId, cfg.Password
	}
	self.topicState = fmt.Sprintf("%s/w/1s", vehicleID)

	networkTimeout := helpers.IntSecondDefault(cfg.NetworkTimeoutSec, defaultNetworkTimeout)
	if networkTimeout < 1*time.Second {
		networkTimeout = 1 * time.Second
	}
	connectTimeout := networkTimeout * 3

	defaultHandler := func(_ mqtt.Client, msg mqtt.Message) {
		self.log.Errorf("unexpected mqtt message: %v", msg)
	}

	tlsconf := new(tls.Config)
	if cfg.TlsCaFile != "" {
		tlsconf.RootCAs = x509.NewCertPool()
		cabytes, err := ioutil.ReadFile(cfg.TlsCaFile)
		if err != nil {
			return errors.Annotate(err, "beacon tls ca")
		}
		tlsconf.RootCAs.AppendCertsFromPEM(cabytes)
	}
	self.mopt = mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetAutoReconnect(true).
		SetBinaryWill(self.topicState, willPayload, 1, true).
		SetCleanSession(false).
		SetClientID(clientId).
		SetConnectTimeout(connectTimeout).
		SetCredentialsProvider(credFun).
		SetDefaultPublishHandler(defaultHandler).
		SetKeepAlive(networkTimeout / 2).
		SetMaxReconnectInterval(connectTimeout).
		SetOrderMatters(false).
		SetPingTimeout(networkTimeout).
		SetTLSConfig(tlsconf).
		SetWriteTimeout(networkTimeout)
	self.m = mqtt.NewClient(self.mopt)

	go self.online()
	return nil
}

func (self *transportMqtt) Close() {
	close(self.stopCh)
	// online() only disconnects while still in its retry loop, an
	// established session must be torn down here
	self.m.Disconnect(uint(self.mopt.PingTimeout / time.Millisecond))
	for self.m.IsConnected() {
		time.Sleep(100 * time.Millisecond)
	}
}

func (self *transportMqtt) SendState(payload []byte) bool {
	t := self.m.Publish(self.topicState, 1, true, payload)
	err := self.tokenWait(t, "publish state")
	self.log.Debugf("beacon sendstate payload=%x err=%v", payload, err)
	return err == nil
}

func (self *transportMqtt) online() {
	if self.m.IsConnected() {
		return
	}
	for self.isRunning() {
		t := self.m.Connect()
		if self.tokenWait(t, "connect") == nil {
			break // success path
		}
		time.Sleep(1 * time.Second)
	}
}

func (self *transportMqtt) isRunning() bool {
	select {
	case <-self.stopCh:
		self.m.Disconnect(uint(self.mopt.PingTimeout / time.Millisecond))
		return false
	default:
		return true
	}
}

func (self *transportMqtt) tokenWait(t mqtt.Token, tag string) error {
	if !t.Wait() {
		err := errors.Errorf("%s timeout", tag)
		self.log.Errorf("beacon: MQTT %s", err.Error())
		return err
	}
	if err := t.Error(); err != nil {
		err = errors.Annotate(err, tag)
		self.log.Errorf("beacon: MQTT %s", err.Error())
		return err
	}
	return nil
}
