// internal/services/events_service.go
package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/protrace/backend/internal/config"
)

// EventsService publishes status-change events to a message queue for
// downstream consumers (logistics dashboards, inspection tooling). Like the
// ledger anchor it is strictly best-effort: failures are logged and dropped.
type EventsService struct {
	cfg config.EventsConfig
}

type StatusChangedEvent struct {
	ProductID    string    `json:"product_id"`
	Status       string    `json:"status"`
	Location     string    `json:"location"`
	IdentityHash string    `json:"identity_hash"`
	Timestamp    time.Time `json:"timestamp"`
}

func NewEventsService(cfg config.EventsConfig) *EventsService {
	return &EventsService{cfg: cfg}
}

func (s *EventsService) Enabled() bool {
	return s.cfg.URL != ""
}

// PublishStatusChanged sends one event to the configured queue. The
// connection is opened per publish; status changes are infrequent enough
// that a persistent channel is not worth the reconnect handling.
func (s *EventsService) PublishStatusChanged(ctx context.Context, event StatusChangedEvent) error {
	if !s.Enabled() {
		return nil
	}

	conn, err := amqp.Dial(s.cfg.URL)
	if err != nil {
		logrus.WithError(err).Warn("Event broker dial failed")
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logrus.WithError(err).Warn("Event broker channel open failed")
		return err
	}
	defer ch.Close()

	// Idempotent declare; durable so events survive broker restarts.
	if _, err := ch.QueueDeclare(s.cfg.Queue, true, false, false, false, nil); err != nil {
		logrus.WithError(err).Warn("Event queue declare failed")
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := ch.PublishWithContext(ctx,
		"",          // default exchange
		s.cfg.Queue, // routing key = queue name
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	); err != nil {
		logrus.WithError(err).Warn("Event publish failed")
		return err
	}

	return nil
}
