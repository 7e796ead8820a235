package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"nvr-worker-go/internal/config"
	"nvr-worker-go/internal/models"
)

type Client struct {
	client paho.Client
	prefix string
}

type Config struct {
	Host        string
	Port        int
	Username    string
	Password    string
	ClientID    string
	TopicPrefix string
}

func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Host:        cfg.MQTTHost,
		Port:        cfg.MQTTPort,
		Username:    cfg.MQTTUsername,
		Password:    cfg.MQTTPassword,
		ClientID:    cfg.MQTTClientID,
		TopicPrefix: cfg.MQTTTopicPrefix,
	}
}

func NewClient(cfg Config) (*Client, error) {
	broker := fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)

	opts := paho.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Warn().Err(err).Str("broker", broker).Msg("MQTT connection lost")
	})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	cli := paho.NewClient(opts)
	token := cli.Connect()
	if ok := token.WaitTimeout(10 * time.Second); !ok {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect error: %w", err)
	}

	log.Info().Str("broker", broker).Str("client_id", cfg.ClientID).Msg("MQTT connection established")

	return &Client{client: cli, prefix: cfg.TopicPrefix}, nil
}

func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt publish timeout on %s", topic)
	}
	return token.Error()
}

func (c *Client) Close() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
	}
}

// Notifier publishes detection batches to <prefix>/<camera>/detections
type Notifier struct {
	publish func(topic string, qos byte, retained bool, payload []byte) error
	prefix  string
}

func NewNotifier(c *Client) *Notifier {
	return &Notifier{publish: c.Publish, prefix: c.prefix}
}

func DetectionTopic(prefix, cameraID string) string {
	if prefix == "" {
		return fmt.Sprintf("%s/detections", cameraID)
	}
	return fmt.Sprintf("%s/%s/detections", prefix, cameraID)
}

type detectionPayload struct {
	CameraID   string                  `json:"camera_id"`
	Timestamp  time.Time               `json:"timestamp"`
	Count      int                     `json:"count"`
	Classes    []string                `json:"classes"`
	ImagePath  string                  `json:"image_path,omitempty"`
	VideoPath  *string                 `json:"video_path,omitempty"`
	Detections []models.DetectionEvent `json:"detections"`
}

func (n *Notifier) Name() string { return "mqtt" }

func (n *Notifier) NotifyDetections(ctx context.Context, cameraID string, events []models.DetectionEvent) error {
	if len(events) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	classes := make([]string, 0, len(events))
	for _, e := range events {
		if !seen[e.Class] {
			seen[e.Class] = true
			classes = append(classes, e.Class)
		}
	}

	payload, err := json.Marshal(detectionPayload{
		CameraID:   cameraID,
		Timestamp:  events[0].Timestamp,
		Count:      len(events),
		Classes:    classes,
		ImagePath:  events[0].ImagePath,
		VideoPath:  events[0].VideoPath,
		Detections: events,
	})
	if err != nil {
		return err
	}

	return n.publish(DetectionTopic(n.prefix, cameraID), 1, false, payload)
}
