package display

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/rfmetrics/powermeter/internal/meter"
)

// MQTTConfig holds broker connection settings for the MQTT sink.
type MQTTConfig struct {
	Broker      string // e.g. tcp://broker.local:1883
	ClientID    string // generated when empty
	Username    string
	Password    string
	TopicPrefix string // readings go to <prefix>/reading, state to <prefix>/status
	QoS         byte
	Retain      bool // retain reading messages
}

// MQTTSink publishes every reading as JSON to an MQTT broker. A retained
// status message marks the meter online so late subscribers see its state
// as soon as they attach.
type MQTTSink struct {
	client mqtt.Client
	cfg    MQTTConfig
	logger *slog.Logger
}

// NewMQTTSink connects to the broker and announces the meter online.
// The connection retries in the background for the life of the sink.
func NewMQTTSink(cfg MQTTConfig, logger *slog.Logger) (*MQTTSink, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger
	}
	if cfg.ClientID == "" {
		cfg.ClientID = generateClientID()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		logger.Info("mqtt connected", slog.String("broker", cfg.Broker))
		c.Publish(cfg.TopicPrefix+"/status", cfg.QoS, true, "online")
	})
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", slog.String("error", err.Error()))
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("display: connecting to MQTT broker: %w", token.Error())
	}

	return &MQTTSink{client: client, cfg: cfg, logger: logger}, nil
}

// Publish sends the reading without waiting for broker acknowledgement, so
// a slow broker cannot stall the measurement loop. Delivery failures are
// logged from a background goroutine.
func (s *MQTTSink) Publish(r meter.Reading) error {
	r.Window = nil // subscribers get the readout, not the raw trace

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("display: marshaling reading: %w", err)
	}

	token := s.client.Publish(s.cfg.TopicPrefix+"/reading", s.cfg.QoS, s.cfg.Retain, data)
	go func() {
		if token.Wait() && token.Error() != nil {
			s.logger.Warn("mqtt publish failed", slog.String("error", token.Error().Error()))
		}
	}()

	return nil
}

// Close marks the meter offline and disconnects from the broker.
func (s *MQTTSink) Close() {
	if s.client.IsConnected() {
		token := s.client.Publish(s.cfg.TopicPrefix+"/status", s.cfg.QoS, true, "offline")
		token.WaitTimeout(time.Second)
		s.client.Disconnect(250)
	}
}

func generateClientID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return "powermeter_" + hex.EncodeToString(b)
}
