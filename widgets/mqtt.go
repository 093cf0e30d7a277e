package widgets

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/watsonkit/watsonkit/config"
	"github.com/watsonkit/watsonkit/widget"
)

// MQTTClient is the part of mqtt.Client used by MQTTBridge.
type MQTTClient interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

// NewMQTTClient creates a paho client for the configured broker. The
// client is not connected.
func NewMQTTClient(cfg *config.SDKConfig, clientID string, logger widget.Logger) mqtt.Client {
	if logger == nil {
		logger = widget.NopLogger{}
	}
	if clientID == "" {
		clientID = cfg.MQTTClientID
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTTBroker)
	opts.SetClientID(clientID)
	opts.SetKeepAlive(30 * time.Second)
	opts.AutoReconnect = true
	opts.CleanSession = true
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt_connection_lost", "broker", cfg.MQTTBroker, "error", err.Error())
	}
	return mqtt.NewClient(opts)
}

// MQTTBridgeConfig names the topics of a bridge.
type MQTTBridgeConfig struct {
	// PublishTopic receives every TextData sent to the bridge.
	PublishTopic string
	// SubscribeTopic messages are emitted as TextData.
	SubscribeTopic string
	QoS            byte
	// Quiesce is how long Disconnect waits for pending work, in
	// milliseconds.
	Quiesce uint
	// Timeout bounds connect, subscribe and publish.
	Timeout time.Duration
}

// MQTTBridge links the widget graph to an MQTT broker.
type MQTTBridge struct {
	*widget.Base
	TextIn *widget.Input[*widget.TextData]
	Text   *widget.Output[*widget.TextData]

	client    MQTTClient
	cfg       MQTTBridgeConfig
	mu        sync.Mutex
	connected bool
}

// NewMQTTBridge creates a bridge over client. The bridge connects in Init
// and disconnects in Shutdown.
func NewMQTTBridge(name string, client MQTTClient, cfg MQTTBridgeConfig, logger widget.Logger) *MQTTBridge {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Quiesce == 0 {
		cfg.Quiesce = 250
	}
	b := &MQTTBridge{client: client, cfg: cfg}
	b.TextIn = widget.NewInput("Text", b.onText)
	b.Text = widget.NewOutput[*widget.TextData]("Text")
	b.Base = widget.NewBase(name, logger).WithInputs(b.TextIn).WithOutputs(b.Text)
	return b
}

// Init connects to the broker and subscribes.
func (b *MQTTBridge) Init(ctx context.Context) error {
	if err := b.wait(b.client.Connect(), "connect"); err != nil {
		return err
	}
	b.Logger().Info("mqtt_connected", "widget", b.WidgetName())

	if b.cfg.SubscribeTopic != "" {
		if err := b.wait(b.client.Subscribe(b.cfg.SubscribeTopic, b.cfg.QoS, b.onMessage), "subscribe"); err != nil {
			b.client.Disconnect(b.cfg.Quiesce)
			return err
		}
	}
	b.mu.Lock()
	b.connected = true
	b.mu.Unlock()
	if b.cfg.SubscribeTopic == "" {
		return nil
	}
	b.Logger().Info("mqtt_subscribed", "widget", b.WidgetName(), "topic", b.cfg.SubscribeTopic)
	return nil
}

// Shutdown unsubscribes and disconnects. It does nothing when the bridge is
// not connected.
func (b *MQTTBridge) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	connected := b.connected
	b.connected = false
	b.mu.Unlock()
	if !connected {
		return nil
	}

	var err error
	if b.cfg.SubscribeTopic != "" {
		err = b.wait(b.client.Unsubscribe(b.cfg.SubscribeTopic), "unsubscribe")
	}
	b.client.Disconnect(b.cfg.Quiesce)
	return err
}

func (b *MQTTBridge) onText(d *widget.TextData) error {
	if b.cfg.PublishTopic == "" {
		return nil
	}
	return b.wait(b.client.Publish(b.cfg.PublishTopic, b.cfg.QoS, false, []byte(d.Text())), "publish")
}

func (b *MQTTBridge) onMessage(_ mqtt.Client, msg mqtt.Message) {
	b.Logger().Debug("mqtt_message_received", "widget", b.WidgetName(), "topic", msg.Topic())
	b.Text.SendData(widget.NewTextData(string(msg.Payload())))
}

func (b *MQTTBridge) wait(token mqtt.Token, operation string) error {
	if !token.WaitTimeout(b.cfg.Timeout) {
		return fmt.Errorf("mqtt %s: timed out after %s", operation, b.cfg.Timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt %s: %w", operation, err)
	}
	return nil
}
