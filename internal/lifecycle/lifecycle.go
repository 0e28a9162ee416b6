// Package lifecycle содержит единственное место, где меняется статус заказа.
//
// Transition не мутирует входное значение: возвращается новый заказ и явный
// эффект для пула ожидающих заказов. При ошибке заказ остаётся прежним.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Leganyst/cleaning-platform/internal/apperror"
	"github.com/Leganyst/cleaning-platform/internal/matching"
	"github.com/Leganyst/cleaning-platform/internal/model"
)

// Event задаёт событие жизненного цикла, строковое значение используется в API.
type Event string

const (
	EventAssignProvider   Event = "assign_provider"
	EventProviderConfirms Event = "provider_confirms"
	EventProviderRejects  Event = "provider_rejects"
	EventComplete         Event = "complete"
	EventCancel           Event = "cancel"
)

func ParseEvent(v string) (Event, error) {
	switch e := Event(v); e {
	case EventAssignProvider, EventProviderConfirms, EventProviderRejects, EventComplete, EventCancel:
		return e, nil
	}
	return "", fmt.Errorf("unknown event %q", v)
}

// PoolEffect говорит, что нужно сделать с пулом после перехода.
type PoolEffect int

const (
	PoolNone PoolEffect = iota
	PoolInsert
	PoolRemove
)

func (e PoolEffect) String() string {
	switch e {
	case PoolInsert:
		return "insert"
	case PoolRemove:
		return "remove"
	}
	return "none"
}

// transitions[from][event] = to
var transitions = map[model.BookingStatus]map[Event]model.BookingStatus{
	model.BookingStatusPending: {
		EventAssignProvider:  model.BookingStatusAssigned,
		EventProviderRejects: model.BookingStatusPending,
		EventCancel:          model.BookingStatusCancelled,
	},
	model.BookingStatusAssigned: {
		EventProviderConfirms: model.BookingStatusConfirmed,
		EventProviderRejects:  model.BookingStatusPending,
		EventComplete:         model.BookingStatusCompleted,
		EventCancel:           model.BookingStatusCancelled,
	},
	model.BookingStatusConfirmed: {
		EventComplete: model.BookingStatusCompleted,
		EventCancel:   model.BookingStatusCancelled,
	},
}

func CanTransition(from model.BookingStatus, event Event) bool {
	_, ok := transitions[from][event]
	return ok
}

// Allowed перечисляет события, допустимые из статуса, в стабильном порядке.
func Allowed(from model.BookingStatus) []Event {
	var out []Event
	for _, e := range []Event{EventAssignProvider, EventProviderConfirms, EventProviderRejects, EventComplete, EventCancel} {
		if CanTransition(from, e) {
			out = append(out, e)
		}
	}
	return out
}

const maxReasonLen = 500

// Явно заданная длительность, часы.
var (
	minDuration = decimal.NewFromInt(1)
	maxDuration = decimal.NewFromInt(24)
)

type Payload struct {
	// Для assign_provider.
	ProviderID *uuid.UUID
	// Для cancel и provider_rejects.
	Reason string
	Actor  Actor
}

type Outcome struct {
	Booking model.Booking
	From    model.BookingStatus
	To      model.BookingStatus
	Event   Event
	Effect  PoolEffect
}

// Eligibility проверяет исполнителя при назначении.
type Eligibility interface {
	Eligible(ctx context.Context, job matching.Job, providerID uuid.UUID) error
}

type Machine struct {
	eligibility Eligibility
	now         func() time.Time
}

func NewMachine(eligibility Eligibility, now func() time.Time) *Machine {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Machine{eligibility: eligibility, now: now}
}

// Create проверяет черновик и возвращает заказ в статусе pending.
func (m *Machine) Create(draft model.Booking) (Outcome, error) {
	const op = "create booking"

	switch {
	case draft.CustomerID == uuid.Nil:
		return Outcome{}, apperror.Validation(op, "customer id is required")
	case draft.ScheduledAt.IsZero():
		return Outcome{}, apperror.Validation(op, "scheduled time is required")
	case draft.PostalCode == "":
		return Outcome{}, apperror.Validation(op, "postal code is required")
	case draft.Address == "":
		return Outcome{}, apperror.Validation(op, "address is required")
	case draft.DurationHours.LessThan(minDuration) || draft.DurationHours.GreaterThan(maxDuration):
		return Outcome{}, apperror.Validation(op, "duration must be between %s and %s hours, got %s", minDuration, maxDuration, draft.DurationHours)
	case draft.TotalPrice.IsNegative():
		return Outcome{}, apperror.Validation(op, "total price must not be negative")
	}
	if _, err := model.ParseServiceType(string(draft.ServiceType)); err != nil {
		return Outcome{}, apperror.Validation(op, "%v", err)
	}

	now := m.now()
	b := draft.Clone()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.Status = model.BookingStatusPending
	b.ProviderID = nil
	b.AssignedAt, b.ConfirmedAt, b.CompletedAt, b.CancelledAt = nil, nil, nil, nil
	b.CancelReason = ""
	b.Version = 1
	if b.RequestedAt.IsZero() {
		b.RequestedAt = now
	}
	b.CreatedAt, b.UpdatedAt = now, now

	return Outcome{Booking: b, To: b.Status, Effect: PoolInsert}, nil
}

// Transition применяет событие к заказу. Входной заказ не изменяется.
func (m *Machine) Transition(ctx context.Context, b model.Booking, event Event, p Payload) (Outcome, error) {
	const op = "transition"

	to, ok := transitions[b.Status][event]
	if !ok {
		reason := "event not allowed in current state"
		if b.Status.Terminal() {
			reason = "booking is in a terminal state"
		}
		return Outcome{}, apperror.InvalidTransition(op, string(b.Status), string(event), reason)
	}
	if err := authorize(op, b, event, p); err != nil {
		return Outcome{}, err
	}

	now := m.now()
	next := b.Clone()

	switch event {
	case EventAssignProvider:
		if p.ProviderID == nil || *p.ProviderID == uuid.Nil {
			return Outcome{}, apperror.Validation(op, "provider id is required for %s", event)
		}
		if m.eligibility != nil {
			if err := m.eligibility.Eligible(ctx, matching.JobFromBooking(b), *p.ProviderID); err != nil {
				return Outcome{}, err
			}
		}
		pid := *p.ProviderID
		next.ProviderID = &pid
		next.AssignedAt = &now

	case EventProviderConfirms:
		next.ConfirmedAt = &now

	case EventProviderRejects:
		next.ProviderID = nil
		next.AssignedAt = nil

	case EventComplete:
		if b.ScheduledAt.After(now) {
			return Outcome{}, apperror.InvalidTransition(op, string(b.Status), string(event), "scheduled time has not been reached")
		}
		next.CompletedAt = &now

	case EventCancel:
		if len(p.Reason) > maxReasonLen {
			return Outcome{}, apperror.Validation(op, "cancel reason is longer than %d characters", maxReasonLen)
		}
		next.CancelledAt = &now
		next.CancelReason = p.Reason
	}

	next.Status = to
	next.Version++
	next.UpdatedAt = now

	if err := next.CheckInvariant(); err != nil {
		return Outcome{}, fmt.Errorf("%s %s: %w", op, event, err)
	}

	return Outcome{
		Booking: next,
		From:    b.Status,
		To:      to,
		Event:   event,
		Effect:  poolEffect(b.Status, to),
	}, nil
}

func poolEffect(from, to model.BookingStatus) PoolEffect {
	switch {
	case from == to:
		return PoolNone
	case to == model.BookingStatusPending:
		return PoolInsert
	case from == model.BookingStatusPending:
		return PoolRemove
	}
	return PoolNone
}
