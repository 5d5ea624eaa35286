package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/glmanhtu/PapyrusViz-sub000/config"
	"github.com/glmanhtu/PapyrusViz-sub000/internal/core/jobs"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Publisher announces job lifecycle events on an MQTT topic so external
// automation can react to imports and matchings finishing.
type Publisher struct {
	cfg    config.MQTTConfig
	client mqtt.Client
}

// NewPublisher creates a publisher from the MQTT config section.
func NewPublisher(cfg config.MQTTConfig) *Publisher {
	return &Publisher{cfg: cfg}
}

// Start connects to the broker. Returns without error when MQTT is disabled.
func (p *Publisher) Start() error {
	if !p.cfg.Enabled {
		log.Info("MQTT publisher is disabled in configuration")
		return nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", p.cfg.Broker, p.cfg.Port))
	opts.SetClientID(p.cfg.ClientID)
	if p.cfg.Username != "" {
		opts.SetUsername(p.cfg.Username)
		opts.SetPassword(p.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Infof("Connected to MQTT broker %s:%d", p.cfg.Broker, p.cfg.Port)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warnf("MQTT connection lost: %v", err)
	})

	p.client = mqtt.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("timed out connecting to MQTT broker")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return nil
}

// Stop disconnects from the broker.
func (p *Publisher) Stop() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
		log.Info("MQTT publisher disconnected")
	}
}

// PublishJobEvent sends one job event. Failures are logged, never returned:
// job execution must not depend on the broker being reachable.
func (p *Publisher) PublishJobEvent(event jobs.Event) {
	if p.client == nil || !p.client.IsConnected() {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Errorf("Failed to marshal job event: %v", err)
		return
	}
	token := p.client.Publish(p.cfg.Topic, 0, false, payload)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			log.Warnf("Failed to publish job event: %v", err)
		}
	}()
}
