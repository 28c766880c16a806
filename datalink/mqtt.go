package datalink

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/jrwynneiii/plcmodem/config"
)

type Message struct {
	Timestamp int64  `json:"timestamp"`
	Session   string `json:"session,omitempty"`
	Text      string `json:"text"`
	Bytes     []byte `json:"bytes"`
}

// MQTT publishes decoded batches as JSON messages on one topic.
type MQTT struct {
	client mqtt.Client
	topic  string
	qos    byte
}

func clientID(prefix string) string {
	return prefix + "_" + uuid.NewString()[:8]
}

func NewMQTT(conf config.MQTTConf) (*MQTT, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(conf.Broker)
	opts.SetClientID(clientID(conf.ClientID))
	if conf.Username != "" {
		opts.SetUsername(conf.Username)
	}
	if conf.Password != "" {
		opts.SetPassword(conf.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Warnf("MQTT connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	log.Infof("Connected to MQTT broker %s, publishing on %s", conf.Broker, conf.Topic)
	return &MQTT{client: client, topic: conf.Topic, qos: conf.QoS}, nil
}

func encodeMessage(session string, payload []byte, now time.Time) ([]byte, error) {
	return json.Marshal(Message{
		Timestamp: now.UnixMilli(),
		Session:   session,
		Text:      string(payload),
		Bytes:     payload,
	})
}

func (m *MQTT) Publish(session string, payload []byte) error {
	data, err := encodeMessage(session, payload, time.Now())
	if err != nil {
		return err
	}
	token := m.client.Publish(m.topic, m.qos, false, data)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", m.topic, token.Error())
	}
	return nil
}

func (m *MQTT) Close() {
	m.client.Disconnect(250)
}
