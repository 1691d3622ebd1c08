package mqtt

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/rookeryhq/rookery/pkg/log"
)

// Config holds broker connection settings
type Config struct {
	// BrokerURL is the broker address, e.g. tcp://localhost:1883
	BrokerURL string
	Username  string
	Password  string
	// ClientID defaults to a randomized rookery-<n> identity
	ClientID string
}

// Client is the narrow broker surface the control plane needs. Payloads are
// raw bytes; callers own the encoding.
type Client interface {
	Connect() error
	Publish(topic string, payload []byte) error
	Subscribe(topic string, handler func(topic string, payload []byte)) error
	Disconnect()
}

type pahoClient struct {
	cfg Config

	mu     sync.Mutex
	client paho.Client
}

// NewClient creates a broker client. No connection is made until Connect.
func NewClient(cfg Config) Client {
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("rookery-%d", rand.Intn(1_000_000))
	}
	return &pahoClient{cfg: cfg}
}

// Connect dials the broker. Calling Connect on a connected client is a no-op.
func (c *pahoClient) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *pahoClient) connectLocked() error {
	if c.client != nil {
		return nil
	}

	log.Logger.Info().
		Str("component", "mqtt").
		Str("broker", c.cfg.BrokerURL).
		Str("client_id", c.cfg.ClientID).
		Msg("Connecting to broker")

	opts := paho.NewClientOptions()
	opts.AddBroker(c.cfg.BrokerURL)
	opts.SetClientID(c.cfg.ClientID)
	opts.SetUsername(c.cfg.Username)
	opts.SetPassword(c.cfg.Password)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetResumeSubs(true)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Logger.Warn().
			Str("component", "mqtt").
			Err(err).
			Msg("Broker connection lost, reconnecting")
	})
	opts.SetOnConnectHandler(func(_ paho.Client) {
		log.Logger.Info().
			Str("component", "mqtt").
			Msg("Broker connection established")
	})
	opts.SetDefaultPublishHandler(func(_ paho.Client, msg paho.Message) {
		log.Logger.Warn().
			Str("component", "mqtt").
			Str("topic", msg.Topic()).
			Msg("Message on unexpected topic")
	})

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect to broker %s: %w", c.cfg.BrokerURL, token.Error())
	}
	c.client = client
	return nil
}

// Publish sends a payload at QoS 1. Commands and acks need at-least-once
// delivery; consumers deduplicate by command ID.
func (c *pahoClient) Publish(topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(); err != nil {
		return err
	}
	token := c.client.Publish(topic, 1, false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish to %s: %w", topic, token.Error())
	}
	return nil
}

// Subscribe registers a handler at QoS 1. Subscriptions survive reconnects.
func (c *pahoClient) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(); err != nil {
		return err
	}
	token := c.client.Subscribe(topic, 1, func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, token.Error())
	}
	log.Logger.Info().
		Str("component", "mqtt").
		Str("topic", topic).
		Msg("Subscribed")
	return nil
}

// Disconnect closes the broker connection, waiting briefly for in-flight
// messages to drain. Safe to call on a disconnected client.
func (c *pahoClient) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return
	}
	c.client.Disconnect(1000)
	c.client = nil
	log.Logger.Info().
		Str("component", "mqtt").
		Msg("Disconnected from broker")
}
