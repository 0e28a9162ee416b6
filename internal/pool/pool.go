// Package pool хранит заказы, которые ждут исполнителя.
//
// Заказ находится в пуле тогда и только тогда, когда он в статусе pending.
// Пул держит копию в памяти; при нескольких экземплярах над одной БД
// копию перед выдачей сверяют с хранилищем через Sync.
// Claim гарантирует не больше одного успешного назначения: сначала
// compare-and-swap флага held в памяти, затем compare-and-swap статуса
// и версии в хранилище.
package pool

import (
	"context"
	"errors"
	"iter"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Leganyst/cleaning-platform/internal/apperror"
	"github.com/Leganyst/cleaning-platform/internal/lifecycle"
	"github.com/Leganyst/cleaning-platform/internal/model"
	"github.com/Leganyst/cleaning-platform/internal/repository"
)

// Store описывает, что пулу нужно от хранилища заказов.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Booking, error)
	UpdateIfVersion(
		ctx context.Context,
		booking *model.Booking,
		expectedStatus model.BookingStatus,
		expectedVersion int64,
		event *model.BookingEvent,
	) error
	ListByStatus(ctx context.Context, status model.BookingStatus, limit, offset int) ([]model.Booking, int64, error)
}

type Transitioner interface {
	Transition(ctx context.Context, b model.Booking, event lifecycle.Event, p lifecycle.Payload) (lifecycle.Outcome, error)
}

type entry struct {
	booking model.Booking
	// Захвачен идущим Claim или переходом; в List не показывается.
	held bool
}

type Pool struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*entry

	machine Transitioner
	store   Store
	timeout time.Duration
	logger  *zap.Logger
}

func New(machine Transitioner, store Store, timeout time.Duration, logger *zap.Logger) *Pool {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		entries: make(map[uuid.UUID]*entry),
		machine: machine,
		store:   store,
		timeout: timeout,
		logger:  logger,
	}
}

// Enqueue добавляет или обновляет заказ. Принимаются только pending.
func (p *Pool) Enqueue(b model.Booking) error {
	if b.Status != model.BookingStatusPending {
		return apperror.Validation("enqueue", "only pending bookings can be pooled, got %s", b.Status)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[b.ID] = &entry{booking: b.Clone()}
	return nil
}

// Release убирает заказ из пула. Повторный вызов — не ошибка.
func (p *Pool) Release(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, id)
}

// Hold помечает заказ как захваченный, если он в пуле и свободен.
// Возвращает копию заказа.
func (p *Pool) Hold(id uuid.UUID) (model.Booking, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[id]
	if !ok || e.held {
		return model.Booking{}, false
	}
	e.held = true
	return e.booking.Clone(), true
}

// Unhold возвращает захваченный заказ в выдачу.
func (p *Pool) Unhold(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[id]; ok {
		e.held = false
	}
}

func (p *Pool) Contains(id uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries[id]
	return ok
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Claim назначает исполнителя на ожидающий заказ.
// Проигравший конкурентный вызов получает ClaimAlreadyAssigned и ничего не меняет.
func (p *Pool) Claim(ctx context.Context, id, providerID uuid.UUID, actor lifecycle.Actor) (model.Booking, error) {
	const op = "claim booking"

	b, ok := p.Hold(id)
	if !ok {
		var err error
		b, err = p.holdFromStore(ctx, op, id)
		if err != nil {
			return model.Booking{}, err
		}
	}

	out, err := p.machine.Transition(ctx, b, lifecycle.EventAssignProvider, lifecycle.Payload{
		ProviderID: &providerID,
		Actor:      actor,
	})
	if err != nil {
		p.Unhold(id)
		return model.Booking{}, err
	}

	sctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	err = p.store.UpdateIfVersion(sctx, &out.Booking, b.Status, b.Version, AuditEvent(out, actor))
	switch {
	case errors.Is(err, repository.ErrConflict):
		// В хранилище заказ уже другой: наша копия устарела.
		p.refresh(ctx, id)
		return model.Booking{}, apperror.AlreadyAssigned(op)
	case err != nil:
		p.Unhold(id)
		return model.Booking{}, apperror.Collaborator(op, "booking store", err)
	}

	p.Release(id)
	p.logger.Info("booking claimed",
		zap.String("booking_id", id.String()),
		zap.String("provider_id", providerID.String()),
		zap.String("actor", actor.String()),
	)
	return out.Booking, nil
}

// holdFromStore разбирается, почему заказа нет в пуле: его уже взяли,
// он отменён или пул этого экземпляра ещё не знает о нём.
func (p *Pool) holdFromStore(ctx context.Context, op string, id uuid.UUID) (model.Booking, error) {
	if p.Contains(id) {
		// Запись есть, но захвачена параллельным Claim.
		return model.Booking{}, apperror.AlreadyAssigned(op)
	}

	sctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	cur, err := p.store.GetByID(sctx, id)
	if err != nil {
		return model.Booking{}, apperror.Collaborator(op, "booking store", err)
	}

	switch {
	case cur.Status == model.BookingStatusPending:
		if err := p.Enqueue(*cur); err != nil {
			return model.Booking{}, err
		}
		b, ok := p.Hold(id)
		if !ok {
			return model.Booking{}, apperror.AlreadyAssigned(op)
		}
		return b, nil
	case cur.Status == model.BookingStatusCancelled:
		return model.Booking{}, apperror.InvalidTransition(op, string(cur.Status), string(lifecycle.EventAssignProvider), "booking is in a terminal state")
	}
	return model.Booking{}, apperror.AlreadyAssigned(op)
}

// refresh перечитывает заказ и приводит членство в пуле к статусу в хранилище.
func (p *Pool) refresh(ctx context.Context, id uuid.UUID) {
	sctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cur, err := p.store.GetByID(sctx, id)
	if err != nil {
		p.Release(id)
		p.logger.Warn("pool refresh failed", zap.String("booking_id", id.String()), zap.Error(err))
		return
	}
	p.Apply(*cur)
}

// Apply выставляет членство по статусу заказа: pending: в пуле, иначе нет.
func (p *Pool) Apply(b model.Booking) {
	if b.Status == model.BookingStatusPending {
		_ = p.Enqueue(b)
		return
	}
	p.Release(b.ID)
}

// Filter для List. Пустые поля не ограничивают выборку.
type Filter struct {
	ServiceType  model.ServiceType
	PostalPrefix string
	From         time.Time
	To           time.Time
}

func (f Filter) match(b model.Booking) bool {
	switch {
	case f.ServiceType != "" && b.ServiceType != f.ServiceType:
		return false
	case f.PostalPrefix != "" && !strings.HasPrefix(b.PostalCode, f.PostalPrefix):
		return false
	case !f.From.IsZero() && b.ScheduledAt.Before(f.From):
		return false
	case !f.To.IsZero() && !b.ScheduledAt.Before(f.To):
		return false
	}
	return true
}

// List отдаёт свободные заказы пула по возрастанию ScheduledAt.
// Снимок берётся при первом обращении; захваченные заказы пропускаются.
func (p *Pool) List(f Filter) iter.Seq[model.Booking] {
	return func(yield func(model.Booking) bool) {
		p.mu.Lock()
		snapshot := make([]model.Booking, 0, len(p.entries))
		for _, e := range p.entries {
			if !e.held {
				snapshot = append(snapshot, e.booking.Clone())
			}
		}
		p.mu.Unlock()

		sort.Slice(snapshot, func(i, j int) bool {
			if !snapshot[i].ScheduledAt.Equal(snapshot[j].ScheduledAt) {
				return snapshot[i].ScheduledAt.Before(snapshot[j].ScheduledAt)
			}
			return snapshot[i].ID.String() < snapshot[j].ID.String()
		})

		for _, b := range snapshot {
			if !f.match(b) {
				continue
			}
			if !yield(b) {
				return
			}
		}
	}
}

// Sync приводит пул к заказам pending из хранилища: добавляет новые,
// обновляет устаревшие копии и убирает заказы, ушедшие из pending.
// Захваченные записи не трогаются, их судьбу решит идущий Claim или переход.
func (p *Pool) Sync(ctx context.Context) (int, error) {
	sctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	pending, _, err := p.store.ListByStatus(sctx, model.BookingStatusPending, 0, 0)
	if err != nil {
		return 0, apperror.Collaborator("sync pool", "booking store", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	next := make(map[uuid.UUID]*entry, len(pending))
	for _, b := range pending {
		if e, ok := p.entries[b.ID]; ok && e.held {
			next[b.ID] = e
			continue
		}
		next[b.ID] = &entry{booking: b.Clone()}
	}
	for id, e := range p.entries {
		if _, ok := next[id]; !ok && e.held {
			next[id] = e
		}
	}
	p.entries = next
	return len(pending), nil
}
