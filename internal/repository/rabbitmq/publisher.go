package rabbitmq

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/domain/entity"
	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/pkg/utils"
)

type EventPublisher struct {
	channel    *amqp.Channel
	exchange   string
	routingKey string
}

func NewEventPublisher(conn *amqp.Connection, exchange, routingKey string) (*EventPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true, // durable
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, err
	}

	return &EventPublisher{
		channel:    ch,
		exchange:   exchange,
		routingKey: routingKey,
	}, nil
}

// PublishJobEvent mirrors one lifecycle event onto the bus. Transient broker
// errors are retried with exponential backoff, bounded so a dead broker
// cannot stall job finalization for long.
func (p *EventPublisher) PublishJobEvent(ctx context.Context, ev entity.JobEvent) error {
	body, err := utils.ToRawMessage(ev)
	if err != nil {
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		return p.channel.PublishWithContext(ctx,
			p.exchange,
			p.routingKey,
			false,
			false,
			amqp.Publishing{
				ContentType: "application/json",
				Body:        body,
			},
		)
	}, backoff.WithContext(bo, ctx))
}
