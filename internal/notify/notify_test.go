package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Leganyst/cleaning-platform/internal/model"
)

type captureWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *captureWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error { return nil }

type recorder struct {
	mu      sync.Mutex
	changes []Change
	err     error
}

func (r *recorder) Notify(ctx context.Context, c Change) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
	return r.err
}

func assignedChange() Change {
	pid := uuid.New()
	return Change{
		Booking: model.Booking{
			ID:            uuid.New(),
			CustomerID:    uuid.New(),
			ProviderID:    &pid,
			ServiceType:   model.ServiceTypeDeep,
			ScheduledAt:   time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC),
			DurationHours: decimal.RequireFromString("3.5"),
			Status:        model.BookingStatusAssigned,
		},
		From:  model.BookingStatusPending,
		To:    model.BookingStatusAssigned,
		Event: "assign_provider",
		Actor: "system",
		At:    time.Date(2025, 1, 14, 9, 0, 0, 0, time.UTC),
	}
}

const testTraceID = "4bf92f3577b34da6a3ce929d0e0e4736"

func sampledContext() context.Context {
	traceID, _ := trace.TraceIDFromHex(testTraceID)
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	return trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))
}

func TestKafkaNotifier_Message(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	w := &captureWriter{}
	n := &KafkaNotifier{w: w, loc: time.UTC}
	c := assignedChange()

	if err := n.Notify(sampledContext(), c); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != c.Booking.ID.String() {
		t.Fatalf("expected booking id as key, got %s", msg.Key)
	}

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["event_type"] != "booking.assigned" || headers["event_id"] == "" {
		t.Fatalf("unexpected headers %v", headers)
	}
	if headers["traceparent"] == "" {
		t.Fatalf("expected traceparent header, got %v", headers)
	}

	var body bookingMessage
	if err := json.Unmarshal(msg.Value, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.To != "assigned" || body.From != "pending" || body.ProviderID == nil {
		t.Fatalf("unexpected body %+v", body)
	}
	if body.Window != "Wednesday, 15.01.2025, 10:00–13:30" {
		t.Fatalf("unexpected window %q", body.Window)
	}
}

func TestKafkaNotifier_WriteError(t *testing.T) {
	n := &KafkaNotifier{w: &captureWriter{err: errors.New("broker down")}, loc: time.UTC}
	if err := n.Notify(context.Background(), assignedChange()); err == nil {
		t.Fatalf("expected write error")
	}
}

func TestMulti_JoinsErrors(t *testing.T) {
	ok := &recorder{}
	bad := &recorder{err: errors.New("boom")}

	err := Multi{ok, bad, NewLogNotifier(zap.NewNop(), time.UTC)}.Notify(context.Background(), assignedChange())
	if err == nil || len(ok.changes) != 1 || len(bad.changes) != 1 {
		t.Fatalf("expected all notifiers called and error returned, got %v", err)
	}
}

func TestDispatcher_SendAndWait(t *testing.T) {
	rec := &recorder{err: errors.New("ignored")}
	d := NewDispatcher(rec, time.Second, nil)

	for i := 0; i < 5; i++ {
		d.Send(context.Background(), assignedChange())
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if len(rec.changes) != 5 {
		t.Fatalf("expected 5 notifications, got %d", len(rec.changes))
	}
}

func TestDispatcher_CarriesTraceToKafka(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	w := &captureWriter{}
	d := NewDispatcher(&KafkaNotifier{w: w, loc: time.UTC}, time.Second, nil)

	// Запрос уже завершился, а уведомление должно уйти с его трассой.
	reqCtx, cancelReq := context.WithCancel(sampledContext())
	d.Send(reqCtx, assignedChange())
	cancelReq()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	var traceparent string
	for _, h := range w.msgs[0].Headers {
		if h.Key == "traceparent" {
			traceparent = string(h.Value)
		}
	}
	if !strings.Contains(traceparent, testTraceID) {
		t.Fatalf("expected traceparent with trace %s, got %q", testTraceID, traceparent)
	}
}

func TestDispatcher_NilIsNoop(t *testing.T) {
	var d *Dispatcher
	d.Send(context.Background(), assignedChange())
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka-1:9092, ,kafka-2:9092 ")
	if len(got) != 2 || got[0] != "kafka-1:9092" || got[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", got)
	}
}
