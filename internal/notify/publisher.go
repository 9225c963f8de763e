// Package notify publishes reward and reload events to an MQTT broker.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cleancredit/internal/config"
	"github.com/sells-group/cleancredit/internal/model"
)

const publishTimeout = 2 * time.Second

// Client is the subset of mqtt.Client the publisher uses.
type Client interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher sends events under a topic prefix. A nil *Publisher is valid
// and drops every event, which is how a disabled broker is represented.
type Publisher struct {
	client Client
	prefix string
	qos    byte
}

// ReloadEvent is published after the observation set is swapped.
type ReloadEvent struct {
	Observations int   `json:"observations"`
	Timestamp    int64 `json:"timestamp"`
}

// NewPublisher wraps an existing client. An empty prefix defaults to
// "cleancredit".
func NewPublisher(client Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = "cleancredit"
	}
	return &Publisher{client: client, prefix: prefix, qos: 1}
}

// Connect builds a paho client from cfg and starts connecting in the
// background. It returns nil, nil when no broker is configured.
func Connect(cfg config.MQTTConfig) (*Publisher, error) {
	if cfg.Broker == "" {
		zap.L().Info("notify: mqtt disabled, no broker configured")
		return nil, nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "cleancredit"
	}
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		zap.L().Info("notify: mqtt connected", zap.String("broker", cfg.Broker))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		zap.L().Warn("notify: mqtt connection lost", zap.Error(err))
	})

	client := mqtt.NewClient(opts)
	// With ConnectRetry set the token only completes once connected, so
	// don't block startup on it.
	token := client.Connect()
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		return nil, eris.Wrapf(token.Error(), "notify: connect %s", cfg.Broker)
	}

	return NewPublisher(client, cfg.TopicPrefix), nil
}

// Topic returns the full topic for a suffix.
func (p *Publisher) Topic(suffix string) string {
	return fmt.Sprintf("%s/%s", p.prefix, suffix)
}

// PublishReward sends ev to <prefix>/rewards.
func (p *Publisher) PublishReward(ev *model.RewardEvent) error {
	if p == nil {
		return nil
	}
	return p.publish(p.Topic("rewards"), false, ev)
}

// PublishReload sends a retained ReloadEvent to <prefix>/observations.
func (p *Publisher) PublishReload(count int) error {
	if p == nil {
		return nil
	}
	return p.publish(p.Topic("observations"), true, ReloadEvent{
		Observations: count,
		Timestamp:    time.Now().Unix(),
	})
}

func (p *Publisher) publish(topic string, retain bool, v any) error {
	if p.client == nil || !p.client.IsConnected() {
		return eris.New("notify: mqtt client not connected")
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return eris.Wrapf(err, "notify: marshal %s", topic)
	}

	token := p.client.Publish(topic, p.qos, retain, payload)
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		return eris.Wrapf(token.Error(), "notify: publish %s", topic)
	}
	zap.L().Debug("notify: published", zap.String("topic", topic), zap.Int("bytes", len(payload)))
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	if p == nil || p.client == nil {
		return
	}
	p.client.Disconnect(250)
}
