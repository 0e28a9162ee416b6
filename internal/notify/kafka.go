package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// bookingMessage задаёт тело сообщения в топике изменений заказов.
type bookingMessage struct {
	EventID     string  `json:"event_id"`
	BookingID   string  `json:"booking_id"`
	CustomerID  string  `json:"customer_id"`
	ProviderID  *string `json:"provider_id,omitempty"`
	ServiceType string  `json:"service_type"`
	From        string  `json:"from,omitempty"`
	To          string  `json:"to"`
	Event       string  `json:"event,omitempty"`
	Actor       string  `json:"actor,omitempty"`
	ScheduledAt string  `json:"scheduled_at"`
	Window      string  `json:"window"`
	OccurredAt  string  `json:"occurred_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier публикует изменения в Kafka, ключ: ID заказа.
type KafkaNotifier struct {
	w   messageWriter
	loc *time.Location
}

func NewKafkaNotifier(brokers []string, topic string, loc *time.Location) *KafkaNotifier {
	return &KafkaNotifier{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
		loc: loc,
	}
}

func (n *KafkaNotifier) Notify(ctx context.Context, c Change) error {
	msg, err := n.message(ctx, c)
	if err != nil {
		return err
	}
	if err := n.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.w.Close()
}

func (n *KafkaNotifier) message(ctx context.Context, c Change) (kafka.Message, error) {
	eventID := uuid.NewString()
	body := bookingMessage{
		EventID:     eventID,
		BookingID:   c.Booking.ID.String(),
		CustomerID:  c.Booking.CustomerID.String(),
		ServiceType: string(c.Booking.ServiceType),
		From:        string(c.From),
		To:          string(c.To),
		Event:       c.Event,
		Actor:       c.Actor,
		ScheduledAt: c.Booking.ScheduledAt.UTC().Format(time.RFC3339),
		Window:      c.Window(n.loc),
		OccurredAt:  c.At.UTC().Format(time.RFC3339Nano),
	}
	if c.Booking.ProviderID != nil {
		pid := c.Booking.ProviderID.String()
		body.ProviderID = &pid
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal booking message: %w", err)
	}

	headers := []kafka.Header{
		{Key: "event_id", Value: []byte(eventID)},
		{Key: "event_type", Value: []byte("booking." + string(c.To))},
	}
	return kafka.Message{
		Key:     []byte(c.Booking.ID.String()),
		Value:   raw,
		Headers: injectTraceHeaders(ctx, headers),
		Time:    c.At,
	}, nil
}

// SplitBrokers разбирает "host1:9092, host2:9092".
func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func injectTraceHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	carrier := &headerCarrier{headers: headers}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier.headers
}

type headerCarrier struct {
	headers []kafka.Header
}

func (c *headerCarrier) Get(key string) string {
	for _, h := range c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.headers))
	for _, h := range c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

func (c *headerCarrier) Set(key, value string) {
	for i := range c.headers {
		if c.headers[i].Key == key {
			c.headers[i].Value = []byte(value)
			return
		}
	}
	c.headers = append(c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

var _ propagation.TextMapCarrier = (*headerCarrier)(nil)
