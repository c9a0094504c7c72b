package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/lrspeiser/Grue.is-sub000/internal/models"
)

// ActionEventPublisher defines the interface for publishing player action events.
type ActionEventPublisher interface {
	PublishActionEvent(ctx context.Context, rec *models.ActionRecord) error
}

// ActionEventPayload - сообщение о действии игрока для внешних
// потребителей (аналитика, модерация).
type ActionEventPayload struct {
	UserID    string          `json:"user_id"`
	WorldID   string          `json:"world_id"`
	Action    string          `json:"action"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// rabbitMQPublisher implements ActionEventPublisher for RabbitMQ.
type rabbitMQPublisher struct {
	channel   *amqp.Channel
	queueName string
}

// NewRabbitMQActionEventPublisher creates a new instance of ActionEventPublisher.
// Паблишер объявляет очередь сам: порядок запуска сервисов не должен
// влиять на доставку событий.
func NewRabbitMQActionEventPublisher(conn *amqp.Connection, queueName string) (ActionEventPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("action event publisher: не удалось открыть канал: %w", err)
	}
	_, err = ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("action event publisher: не удалось объявить очередь '%s': %w", queueName, err)
	}
	log.Printf("ActionEventPublisher: очередь '%s' успешно объявлена/найдена", queueName)
	return &rabbitMQPublisher{channel: ch, queueName: queueName}, nil
}

// PublishActionEvent publishes a player action event.
func (p *rabbitMQPublisher) PublishActionEvent(ctx context.Context, rec *models.ActionRecord) error {
	payload := ActionEventPayload{
		UserID:    rec.UserID,
		WorldID:   rec.WorldID.String(),
		Action:    rec.Action,
		Details:   rec.Details,
		CreatedAt: rec.CreatedAt,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[UserID: %s] Ошибка сериализации ActionEventPayload: %v", rec.UserID, err)
		return fmt.Errorf("ошибка сериализации события действия для user %s: %w", rec.UserID, err)
	}

	if err := p.publishMessage(ctx, body); err != nil {
		log.Printf("[UserID: %s] Ошибка публикации ActionEvent: %v", rec.UserID, err)
		return fmt.Errorf("ошибка публикации события действия для user %s: %w", rec.UserID, err)
	}
	return nil
}

func (p *rabbitMQPublisher) publishMessage(ctx context.Context, body []byte) error {
	if p.channel == nil {
		return errors.New("канал RabbitMQ не инициализирован")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var err error
	// Попытка публикации с retry до 3 раз
	for attempt := 1; attempt <= 3; attempt++ {
		err = p.channel.PublishWithContext(ctx,
			"",          // exchange (используем default)
			p.queueName, // routing key (имя очереди)
			false,       // mandatory
			false,       // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Body:         body,
				Timestamp:    time.Now(),
				AppId:        "grue-server",
			},
		)
		if err == nil {
			break
		}
		log.Printf("Ошибка публикации (attempt %d) в очередь '%s': %v", attempt, p.queueName, err)
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	if err != nil {
		return fmt.Errorf("ошибка публикации в очередь %s после retries: %w", p.queueName, err)
	}
	return nil
}
