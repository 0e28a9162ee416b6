package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Leganyst/cleaning-platform/internal/apperror"
	"github.com/Leganyst/cleaning-platform/internal/calendar"
	"github.com/Leganyst/cleaning-platform/internal/coverage"
	"github.com/Leganyst/cleaning-platform/internal/estimate"
	"github.com/Leganyst/cleaning-platform/internal/lifecycle"
	"github.com/Leganyst/cleaning-platform/internal/locker"
	"github.com/Leganyst/cleaning-platform/internal/matching"
	"github.com/Leganyst/cleaning-platform/internal/model"
	"github.com/Leganyst/cleaning-platform/internal/notify"
	"github.com/Leganyst/cleaning-platform/internal/pool"
	"github.com/Leganyst/cleaning-platform/internal/pricing"
	"github.com/Leganyst/cleaning-platform/internal/repository"
)

var tracer = otel.Tracer("github.com/Leganyst/cleaning-platform/internal/service")

// Deps собирает зависимости BookingService.
type Deps struct {
	Bookings  repository.BookingRepository
	Providers repository.ProviderRepository
	Index     *coverage.Index
	Matcher   *matching.Matcher
	Machine   *lifecycle.Machine
	Pool      *pool.Pool
	Locker    locker.Locker
	Pricing   *pricing.Calculator
	Notifier  *notify.Dispatcher
	// Пул делят несколько экземпляров над одной БД: перед выдачей
	// он сверяется с хранилищем.
	SharedPool bool
	// Таймаут одного обращения к хранилищу или блокировке.
	Timeout time.Duration
	Logger  *zap.Logger
}

// BookingService служит точкой входа в ядро заказов: оценка, создание, переходы,
// подбор исполнителей и взятие заказа из пула.
type BookingService struct {
	bookings  repository.BookingRepository
	providers repository.ProviderRepository
	index     *coverage.Index
	matcher   *matching.Matcher
	machine   *lifecycle.Machine
	pool      *pool.Pool
	locker    locker.Locker
	pricing   *pricing.Calculator
	notifier  *notify.Dispatcher
	shared    bool
	timeout   time.Duration
	logger    *zap.Logger
}

func NewBookingService(d Deps) *BookingService {
	if d.Timeout <= 0 {
		d.Timeout = 2 * time.Second
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Locker == nil {
		d.Locker = locker.NewKeyedMutex()
	}
	if d.Pricing == nil {
		d.Pricing = pricing.NewCalculator(nil)
	}
	return &BookingService{
		bookings:  d.Bookings,
		providers: d.Providers,
		index:     d.Index,
		matcher:   d.Matcher,
		machine:   d.Machine,
		pool:      d.Pool,
		locker:    d.Locker,
		pricing:   d.Pricing,
		notifier:  d.Notifier,
		shared:    d.SharedPool,
		timeout:   d.Timeout,
		logger:    d.Logger,
	}
}

// EstimateDuration возвращает рекомендуемую длительность уборки.
func (s *BookingService) EstimateDuration(in estimate.Input) estimate.Result {
	return estimate.Estimate(in)
}

type CreateBookingInput struct {
	CustomerID  uuid.UUID
	ServiceType model.ServiceType
	ScheduledAt time.Time
	PostalCode  string
	Address     string

	// Явная длительность; если не задана, считается по Property.
	DurationHours *decimal.Decimal
	Property      *estimate.Input
	// Явная цена; если не задана, считается по тарифу.
	TotalPrice *decimal.Decimal

	Actor lifecycle.Actor
}

// CreateBooking создаёт заказ в статусе pending и кладёт его в пул.
func (s *BookingService) CreateBooking(ctx context.Context, in CreateBookingInput) (b model.Booking, err error) {
	const op = "create booking"
	ctx, span := tracer.Start(ctx, "BookingService.CreateBooking")
	defer func() { endSpan(span, err) }()

	if in.Actor.Role == lifecycle.RoleCustomer && in.Actor.ID != in.CustomerID {
		return model.Booking{}, apperror.Forbidden(op, "customers may only create their own bookings")
	}
	if in.Actor.Role == lifecycle.RoleProvider {
		return model.Booking{}, apperror.Forbidden(op, "providers may not create bookings")
	}

	var hours decimal.Decimal
	switch {
	case in.DurationHours != nil:
		hours = *in.DurationHours
	case in.Property != nil:
		hours = estimate.Estimate(*in.Property).Hours
	default:
		return model.Booking{}, apperror.Validation(op, "either duration or property details are required")
	}

	var price decimal.Decimal
	if in.TotalPrice != nil {
		price = *in.TotalPrice
	} else if _, perr := model.ParseServiceType(string(in.ServiceType)); perr == nil {
		q, qerr := s.pricing.Quote(in.ServiceType, hours)
		if qerr != nil {
			return model.Booking{}, apperror.Validation(op, "%v", qerr)
		}
		price = q.Total
	}

	out, err := s.machine.Create(model.Booking{
		CustomerID:    in.CustomerID,
		ServiceType:   in.ServiceType,
		ScheduledAt:   in.ScheduledAt.UTC(),
		DurationHours: hours,
		PostalCode:    in.PostalCode,
		Address:       in.Address,
		TotalPrice:    price,
	})
	if err != nil {
		return model.Booking{}, err
	}
	b = out.Booking

	ev := pool.AuditEvent(out, in.Actor)
	ev.EventType = model.EventTypeBookingCreated
	ev.Event = "create"

	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.bookings.Create(sctx, &b, ev); err != nil {
		return model.Booking{}, apperror.Collaborator(op, "booking store", err)
	}
	if err := s.pool.Enqueue(b); err != nil {
		return model.Booking{}, err
	}

	span.SetAttributes(attribute.String("booking.id", b.ID.String()))
	s.logger.Info("booking created",
		zap.String("booking_id", b.ID.String()),
		zap.String("service_type", string(b.ServiceType)),
		zap.String("duration_hours", b.DurationHours.String()),
	)
	s.notify(ctx, out, in.Actor)
	return b, nil
}

// Transition применяет событие жизненного цикла к заказу.
// Назначение исполнителя идёт через пул, как и ClaimBooking.
func (s *BookingService) Transition(ctx context.Context, id uuid.UUID, event lifecycle.Event, p lifecycle.Payload) (b model.Booking, err error) {
	const op = "transition booking"

	if event == lifecycle.EventAssignProvider {
		if p.ProviderID == nil {
			return model.Booking{}, apperror.Validation(op, "provider id is required for %s", event)
		}
		return s.ClaimBooking(ctx, id, *p.ProviderID, p.Actor)
	}

	ctx, span := tracer.Start(ctx, "BookingService.Transition", trace.WithAttributes(
		attribute.String("booking.id", id.String()),
		attribute.String("booking.event", string(event)),
	))
	defer func() { endSpan(span, err) }()

	unlock, err := s.lock(ctx, op, id)
	if err != nil {
		return model.Booking{}, err
	}
	defer unlock()

	cur, err := s.load(ctx, op, id)
	if err != nil {
		return model.Booking{}, err
	}

	out, err := s.machine.Transition(ctx, cur, event, p)
	if err != nil {
		return model.Booking{}, err
	}

	// Пока запись не сохранена, заказ не должен выдаваться из пула.
	held := false
	if out.Effect == lifecycle.PoolRemove {
		_, held = s.pool.Hold(id)
	}

	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err = s.bookings.UpdateIfVersion(sctx, &out.Booking, cur.Status, cur.Version, pool.AuditEvent(out, p.Actor))
	switch {
	case errors.Is(err, repository.ErrConflict):
		latest, lerr := s.load(ctx, op, id)
		if lerr != nil {
			if held {
				s.pool.Unhold(id)
			}
			return model.Booking{}, lerr
		}
		s.pool.Apply(latest)
		return model.Booking{}, apperror.InvalidTransition(op, string(latest.Status), string(event), "booking was changed concurrently")
	case err != nil:
		if held {
			s.pool.Unhold(id)
		}
		return model.Booking{}, apperror.Collaborator(op, "booking store", err)
	}

	s.pool.Apply(out.Booking)
	s.logger.Info("booking transitioned",
		zap.String("booking_id", id.String()),
		zap.String("event", string(event)),
		zap.String("from", string(out.From)),
		zap.String("to", string(out.To)),
		zap.String("actor", p.Actor.String()),
	)
	s.notify(ctx, out, p.Actor)
	return out.Booking, nil
}

// ClaimBooking назначает исполнителя на заказ из пула. Из нескольких
// одновременных попыток успешна ровно одна.
func (s *BookingService) ClaimBooking(ctx context.Context, id, providerID uuid.UUID, actor lifecycle.Actor) (b model.Booking, err error) {
	const op = "claim booking"
	ctx, span := tracer.Start(ctx, "BookingService.ClaimBooking", trace.WithAttributes(
		attribute.String("booking.id", id.String()),
		attribute.String("provider.id", providerID.String()),
	))
	defer func() { endSpan(span, err) }()

	unlock, err := s.lock(ctx, op, id)
	if err != nil {
		return model.Booking{}, err
	}
	defer unlock()

	b, err = s.pool.Claim(ctx, id, providerID, actor)
	if err != nil {
		return model.Booking{}, err
	}
	s.notify(ctx, lifecycle.Outcome{
		Booking: b,
		From:    model.BookingStatusPending,
		To:      b.Status,
		Event:   lifecycle.EventAssignProvider,
	}, actor)
	return b, nil
}

// MatchProviders возвращает подходящих исполнителей, лучших первыми.
func (s *BookingService) MatchProviders(ctx context.Context, job matching.Job) (list []model.Provider, err error) {
	ctx, span := tracer.Start(ctx, "BookingService.MatchProviders", trace.WithAttributes(
		attribute.String("job.service_type", string(job.ServiceType)),
		attribute.String("job.postal_code", job.PostalCode),
	))
	defer func() { endSpan(span, err) }()

	list, err = s.matcher.MatchIndexed(ctx, job)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("match.count", len(list)))
	return list, nil
}

// MatchForBooking подбирает исполнителей под уже созданный заказ.
func (s *BookingService) MatchForBooking(ctx context.Context, id uuid.UUID) ([]model.Provider, error) {
	b, err := s.load(ctx, "match for booking", id)
	if err != nil {
		return nil, err
	}
	return s.MatchProviders(ctx, matching.JobFromBooking(b))
}

func (s *BookingService) GetBooking(ctx context.Context, id uuid.UUID) (model.Booking, error) {
	return s.load(ctx, "get booking", id)
}

// History возвращает журнал изменений заказа.
func (s *BookingService) History(ctx context.Context, id uuid.UUID) ([]model.BookingEvent, error) {
	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	events, err := s.bookings.ListEvents(sctx, id)
	if err != nil {
		return nil, apperror.Collaborator("booking history", "booking store", err)
	}
	return events, nil
}

// ListPending отдаёт страницу свободных заказов пула.
func (s *BookingService) ListPending(ctx context.Context, f pool.Filter, page, pageSize int) (calendar.Page[model.Booking], error) {
	if s.shared {
		if _, err := s.pool.Sync(ctx); err != nil {
			return calendar.Page[model.Booking]{}, err
		}
	}
	return calendar.Collect(s.pool.List(f), page, pageSize), nil
}

// RestorePool заполняет пул заказами pending из хранилища.
func (s *BookingService) RestorePool(ctx context.Context) (int, error) {
	n, err := s.pool.Sync(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Info("pending pool restored", zap.Int("bookings", n))
	return n, nil
}

func (s *BookingService) lock(ctx context.Context, op string, id uuid.UUID) (func(), error) {
	lctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	unlock, err := s.locker.Lock(lctx, id.String())
	if err != nil {
		return nil, apperror.Collaborator(op, "booking lock", err)
	}
	return unlock, nil
}

func (s *BookingService) load(ctx context.Context, op string, id uuid.UUID) (model.Booking, error) {
	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	b, err := s.bookings.GetByID(sctx, id)
	if err != nil {
		return model.Booking{}, apperror.Collaborator(op, "booking store", err)
	}
	return *b, nil
}

func (s *BookingService) notify(ctx context.Context, out lifecycle.Outcome, actor lifecycle.Actor) {
	s.notifier.Send(ctx, notify.Change{
		Booking: out.Booking.Clone(),
		From:    out.From,
		To:      out.To,
		Event:   string(out.Event),
		Actor:   actor.String(),
		At:      out.Booking.UpdatedAt,
	})
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperror.KindOf(err)))
	}
	span.End()
}
