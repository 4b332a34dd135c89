package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/okieraised/thermostat-alerts/internal/models"
	"github.com/pkg/errors"
)

// Publisher fans an alert event out to other consumers.
type Publisher interface {
	Publish(ctx context.Context, entry *models.AlertLog) error
}

// mqttPublisher is the part of mqtt.Client the publisher needs.
type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type AlertEvent struct {
	AlertLogID     uint                   `json:"alert_log_id"`
	SubscriptionID uint                   `json:"subscription_id"`
	Kind           models.AlertKind       `json:"alert_type"`
	DeviceID       *uint                  `json:"device_id"`
	Message        string                 `json:"message"`
	TriggeredAt    time.Time              `json:"triggered_at"`
	Data           map[string]interface{} `json:"data,omitempty"`
}

// MQTTPublisher publishes alert events to {prefix}/{device}/{kind}, using
// "all" for alerts without a device.
type MQTTPublisher struct {
	client  mqttPublisher
	prefix  string
	qos     byte
	timeout time.Duration
}

func NewMQTTPublisher(client mqttPublisher, prefix string, qos byte, timeout time.Duration) *MQTTPublisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MQTTPublisher{
		client:  client,
		prefix:  strings.TrimRight(prefix, "/"),
		qos:     qos,
		timeout: timeout,
	}
}

func (p *MQTTPublisher) Topic(entry *models.AlertLog) string {
	device := "all"
	if entry.DeviceID != nil {
		device = fmt.Sprintf("%d", *entry.DeviceID)
	}
	return fmt.Sprintf("%s/%s/%s", p.prefix, device, entry.Subscription.AlertKind)
}

func (p *MQTTPublisher) Publish(ctx context.Context, entry *models.AlertLog) error {
	payload, err := json.Marshal(AlertEvent{
		AlertLogID:     entry.ID,
		SubscriptionID: entry.AlertSubscriptionID,
		Kind:           entry.Subscription.AlertKind,
		DeviceID:       entry.DeviceID,
		Message:        entry.Message,
		TriggeredAt:    entry.TriggeredAt,
		Data:           entry.Data,
	})
	if err != nil {
		return err
	}

	tok := p.client.Publish(p.Topic(entry), p.qos, false, payload)
	select {
	case <-tok.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.timeout):
		return errors.Errorf("mqtt publish timeout after %s", p.timeout)
	}
	return tok.Error()
}
