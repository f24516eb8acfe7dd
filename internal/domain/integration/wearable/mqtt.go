package wearable

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// IngestTopic matches careadmin/{tenantID}/wearables/{deviceID}/readings.
const IngestTopic = "careadmin/+/wearables/+/readings"

const ingestTimeout = 10 * time.Second

// Ingestor stores pushed readings. *Service implements it.
type Ingestor interface {
	Ingest(ctx context.Context, tenantID, deviceID uuid.UUID, readings []ReadingInput) (SyncResult, error)
}

type MQTTConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
}

// Subscriber feeds readings published by device gateways into the store.
type Subscriber struct {
	client mqtt.Client
	ingest Ingestor
	logger zerolog.Logger
}

func NewSubscriber(cfg MQTTConfig, ingest Ingestor, logger zerolog.Logger) *Subscriber {
	s := &Subscriber{
		ingest: ingest,
		logger: logger.With().Str("component", "wearable-mqtt").Logger(),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetCleanSession(false)
	// subscriptions are lost with the connection, so renew them on every connect
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		if token := c.Subscribe(IngestTopic, 1, s.onMessage); token.Wait() && token.Error() != nil {
			s.logger.Error().Err(token.Error()).Str("topic", IngestTopic).Msg("subscribe failed")
			return
		}
		s.logger.Info().Str("topic", IngestTopic).Msg("subscribed")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.Warn().Err(err).Msg("mqtt connection lost")
	})

	s.client = mqtt.NewClient(opts)
	return s
}

// Run connects and blocks until ctx is done.
func (s *Subscriber) Run(ctx context.Context) error {
	token := s.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("connect to mqtt broker: %w", err)
		}
	case <-ctx.Done():
		s.client.Disconnect(250)
		return nil
	}

	<-ctx.Done()
	s.client.Disconnect(250)
	s.logger.Info().Msg("mqtt subscriber stopped")
	return nil
}

func (s *Subscriber) onMessage(_ mqtt.Client, msg mqtt.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()
	if err := s.handle(ctx, msg.Topic(), msg.Payload()); err != nil {
		s.logger.Error().Err(err).Str("topic", msg.Topic()).Msg("ingest wearable readings")
	}
}

type pushMessage struct {
	Readings []ReadingInput `json:"readings"`
}

func (s *Subscriber) handle(ctx context.Context, topic string, payload []byte) error {
	tenantID, deviceID, err := parseTopic(topic)
	if err != nil {
		return err
	}
	var msg pushMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if len(msg.Readings) == 0 {
		return nil
	}
	res, err := s.ingest.Ingest(ctx, tenantID, deviceID, msg.Readings)
	if err != nil {
		return err
	}
	s.logger.Debug().
		Str("device_id", deviceID.String()).
		Int("stored", res.Stored).
		Int("skipped", res.Skipped).
		Msg("readings ingested")
	return nil
}

func parseTopic(topic string) (tenantID, deviceID uuid.UUID, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 || parts[0] != "careadmin" || parts[2] != "wearables" || parts[4] != "readings" {
		return uuid.Nil, uuid.Nil, fmt.Errorf("unexpected topic %q", topic)
	}
	if tenantID, err = uuid.Parse(parts[1]); err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("topic tenant id: %w", err)
	}
	if deviceID, err = uuid.Parse(parts[3]); err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("topic device id: %w", err)
	}
	return tenantID, deviceID, nil
}
