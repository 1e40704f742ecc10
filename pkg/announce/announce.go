// Package announce publishes saved photos to an MQTT broker and accepts
// remote capture commands.
package announce

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"twin-shutter/pkg/config"
	"twin-shutter/pkg/types"
	"twin-shutter/pkg/utils"
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}

// Client is the broker connection. *PahoClient implements it.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	Close()
}

type PahoClient struct {
	client mqtt.Client
}

// Dial connects to the broker in cfg.
func Dial(cfg config.MQTTConfig) (*PahoClient, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker())
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	cli := mqtt.NewClient(opts)
	token := cli.Connect()
	if ok := token.WaitTimeout(10 * time.Second); !ok {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	return &PahoClient{client: cli}, nil
}

func (c *PahoClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	token.Wait()
	return token.Error()
}

func (c *PahoClient) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	token := c.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	token.Wait()
	return token.Error()
}

func (c *PahoClient) Close() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
	}
}

// Message is published on <topic> for every saved photo.
type Message struct {
	Name    string    `json:"name"`
	Bytes   int       `json:"bytes"`
	SavedAt time.Time `json:"savedAt"`
}

// Command is accepted on <topic>/capture.
type Command struct {
	Rotation int `json:"rotation"`
}

type Announcer struct {
	client Client
	topic  string
}

func New(client Client, topic string) *Announcer {
	return &Announcer{client: client, topic: topic}
}

func (a *Announcer) CommandTopic() string {
	return a.topic + "/capture"
}

// OnSaved is a storage.Listener.
func (a *Announcer) OnSaved(p types.Photo) {
	payload, err := json.Marshal(Message{Name: p.Name, Bytes: p.Bytes, SavedAt: p.SavedAt})
	if err != nil {
		logger.Errorf("announce: marshal: %s", err)
		return
	}
	if err := a.client.Publish(a.topic, 1, false, payload); err != nil {
		logger.Warnf("announce: publish %s: %s", p.Name, err)
	}
}

// HandleCaptures calls capture for every command received. Malformed
// commands are logged and dropped; an empty payload means rotation 0.
func (a *Announcer) HandleCaptures(capture func(rotation int) error) error {
	return a.client.Subscribe(a.CommandTopic(), 1, func(topic string, payload []byte) {
		var cmd Command
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &cmd); err != nil {
				logger.Warnf("announce: bad command on %s: %s", topic, err)
				return
			}
		}
		if err := capture(cmd.Rotation); err != nil {
			logger.Warnf("announce: remote capture: %s", err)
		}
	})
}

func (a *Announcer) Close() {
	a.client.Close()
}
