package receipt

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// KafkaPrinter publishes tickets to a Kafka topic keyed by order id, so
// reprints of one order land on the same partition.
type KafkaPrinter struct {
	writer *kafka.Writer
}

// batchTimeout caps how long a single ticket waits for batch companions;
// Print blocks the order response until the write is acknowledged.
const batchTimeout = 10 * time.Millisecond

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           batchTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaPrinter(writer *kafka.Writer) *KafkaPrinter {
	return &KafkaPrinter{writer: writer}
}

func (p *KafkaPrinter) Print(ctx context.Context, t Ticket) error {
	body, err := json.Marshal(t)
	if err != nil {
		return errors.Wrap(err, "marshal ticket")
	}
	msg := kafka.Message{
		Key:   []byte(t.OrderID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "company-id", Value: []byte(strconv.FormatInt(t.CompanyID, 10))},
		},
	}
	inject(ctx, (*kafkaHeaders)(&msg.Headers))
	return errors.Wrap(p.writer.WriteMessages(ctx, msg), "write ticket")
}

func (p *KafkaPrinter) Close() error {
	return p.writer.Close()
}

// kafkaHeaders adapts message headers to propagation.TextMapCarrier.
type kafkaHeaders []kafka.Header

func (h *kafkaHeaders) Get(key string) string {
	for _, v := range *h {
		if v.Key == key {
			return string(v.Value)
		}
	}
	return ""
}

func (h *kafkaHeaders) Set(key, value string) {
	for i, v := range *h {
		if v.Key == key {
			(*h)[i].Value = []byte(value)
			return
		}
	}
	*h = append(*h, kafka.Header{Key: key, Value: []byte(value)})
}

func (h *kafkaHeaders) Keys() []string {
	keys := make([]string, 0, len(*h))
	for _, v := range *h {
		keys = append(keys, v.Key)
	}
	return keys
}
