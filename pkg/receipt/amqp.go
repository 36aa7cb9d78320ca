package receipt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeName = "receipts"
	ExchangeType = "topic"
)

// SetupConn dials RabbitMQ and declares the receipts exchange.
func SetupConn(url string) (*amqp.Connection, *amqp.Channel, error) {
	var (
		conn *amqp.Connection
		err  error
	)
	for i := 0; i < 5; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "connect to rabbitmq")
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, errors.Wrap(err, "open channel")
	}
	err = ch.ExchangeDeclare(
		ExchangeName, // name
		ExchangeType, // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, errors.Wrap(err, "declare exchange")
	}
	return conn, ch, nil
}

// AMQPPrinter publishes tickets to the receipts exchange.
type AMQPPrinter struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPPrinter(conn *amqp.Connection, ch *amqp.Channel) *AMQPPrinter {
	return &AMQPPrinter{conn: conn, ch: ch}
}

func (p *AMQPPrinter) Print(ctx context.Context, t Ticket) error {
	body, err := json.Marshal(t)
	if err != nil {
		return errors.Wrap(err, "marshal ticket")
	}
	headers := amqpHeaders{}
	inject(ctx, headers)

	// Routing key: receipt.<company>
	routingKey := fmt.Sprintf("receipt.%d", t.CompanyID)
	err = p.ch.PublishWithContext(ctx,
		ExchangeName, // exchange
		routingKey,   // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    t.OrderID,
			Timestamp:    t.PrintedAt,
			Headers:      amqp.Table(headers),
			Body:         body,
		},
	)
	return errors.Wrap(err, "publish ticket")
}

func (p *AMQPPrinter) Close() error {
	if err := p.ch.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}

type amqpHeaders map[string]any

func (h amqpHeaders) Get(key string) string {
	s, _ := h[key].(string)
	return s
}

func (h amqpHeaders) Set(key, value string) { h[key] = value }

func (h amqpHeaders) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	return keys
}
