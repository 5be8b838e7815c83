package services

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/streadway/amqp"
)

// Event types emitted to the notification collaborator. Payload is the
// affected entity id plus the user id; delivery and formatting are the
// collaborator's problem.
const (
	EventSessionEnded       = "session_ended"
	EventBadgeAwarded       = "badge_awarded"
	EventLevelUp            = "level_up"
	EventStreakMilestone    = "streak_milestone"
	EventChallengeCompleted = "challenge_completed"
)

type Event struct {
	Type           string    `json:"event"`
	ExternalUserID string    `json:"user_id"`
	EntityID       string    `json:"entity_id"`
	OccurredAt     time.Time `json:"occurred_at"`
}

type EventPublisher interface {
	Publish(event Event) error
}

// AMQPPublisher pushes events onto a durable queue consumed by the
// notification service.
type AMQPPublisher struct {
	channel *amqp.Channel
	queue   string
}

func NewAMQPPublisher(url, queueName string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	notifyClose := make(chan *amqp.Error)
	conn.NotifyClose(notifyClose)
	go func() {
		if closeErr := <-notifyClose; closeErr != nil {
			log.Printf("❌ Event broker connection closed: %v", closeErr)
		}
	}()

	return &AMQPPublisher{channel: ch, queue: queueName}, nil
}

func (p *AMQPPublisher) Publish(event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.channel.Publish(
		"",      // default exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// NopPublisher is used when no broker is configured; events are logged and
// dropped. Event delivery is never allowed to fail a user request.
type NopPublisher struct{}

func (NopPublisher) Publish(event Event) error {
	log.Printf("📣 Event (no broker): %s user=%s entity=%s", event.Type, event.ExternalUserID, event.EntityID)
	return nil
}

// emit publishes an event and logs failures instead of propagating them.
func emit(pub EventPublisher, eventType, userID, entityID string) {
	if pub == nil {
		return
	}
	if err := pub.Publish(Event{Type: eventType, ExternalUserID: userID, EntityID: entityID}); err != nil {
		log.Printf("⚠️ Failed to publish %s event for user %s: %v", eventType, userID, err)
	}
}
