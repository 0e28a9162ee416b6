// Package notify сообщает внешним системам об изменениях заказов.
// Доставка не влияет на результат операции: ошибки только логируются.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Leganyst/cleaning-platform/internal/calendar"
	"github.com/Leganyst/cleaning-platform/internal/model"
)

// Change описывает изменение статуса заказа.
type Change struct {
	Booking model.Booking
	From    model.BookingStatus
	To      model.BookingStatus
	Event   string
	Actor   string
	At      time.Time
}

// Window отдаёт окно работ в читаемом виде.
func (c Change) Window(loc *time.Location) string {
	return calendar.FormatRange(calendar.TimeRange{Start: c.Booking.ScheduledAt, End: c.Booking.End()}, loc)
}

type Notifier interface {
	Notify(ctx context.Context, c Change) error
}

// LogNotifier пишет изменения в лог.
type LogNotifier struct {
	logger *zap.Logger
	loc    *time.Location
}

func NewLogNotifier(logger *zap.Logger, loc *time.Location) *LogNotifier {
	return &LogNotifier{logger: logger, loc: loc}
}

func (n *LogNotifier) Notify(_ context.Context, c Change) error {
	fields := []zap.Field{
		zap.String("booking_id", c.Booking.ID.String()),
		zap.String("from", string(c.From)),
		zap.String("to", string(c.To)),
		zap.String("event", c.Event),
		zap.String("actor", c.Actor),
		zap.String("window", c.Window(n.loc)),
	}
	if c.Booking.ProviderID != nil {
		fields = append(fields, zap.String("provider_id", c.Booking.ProviderID.String()))
	}
	n.logger.Info("booking status changed", fields...)
	return nil
}

// Multi рассылает изменение во все получатели и собирает ошибки.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, c Change) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dispatcher отправляет уведомления в фоне, каждое со своим таймаутом.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	logger   *zap.Logger
	wg       sync.WaitGroup
}

func NewDispatcher(notifier Notifier, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{notifier: notifier, timeout: timeout, logger: logger}
}

// Send не блокирует вызывающего. Из ctx берутся значения (контекст трассировки),
// но не отмена: уведомление переживает завершившийся запрос.
func (d *Dispatcher) Send(ctx context.Context, c Change) {
	if d == nil || d.notifier == nil {
		return
	}
	base := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(base, d.timeout)
		defer cancel()
		if err := d.notifier.Notify(ctx, c); err != nil {
			d.logger.Warn("notification failed",
				zap.String("booking_id", c.Booking.ID.String()),
				zap.String("to", string(c.To)),
				zap.Error(err),
			)
		}
	}()
}

// Wait дожидается отправки уже запущенных уведомлений или отмены ctx.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
