// Package matching подбирает исполнителей под работу.
//
// Фильтры применяются от дешёвых к дорогим: активность, навык, окно
// доступности и только потом зона выезда, которая может ходить во внешний
// сервис расстояний. Пустой результат — нормальный исход, а не ошибка.
package matching

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Leganyst/cleaning-platform/internal/apperror"
	"github.com/Leganyst/cleaning-platform/internal/calendar"
	"github.com/Leganyst/cleaning-platform/internal/coverage"
	"github.com/Leganyst/cleaning-platform/internal/model"
)

var (
	ErrUnknownProvider = errors.New("provider is not known to the index")
	ErrInactive        = errors.New("provider is inactive")
	ErrMissingSkill    = errors.New("provider lacks the service type")
	ErrUnavailable     = errors.New("provider is not available in the job window")
	ErrOutOfArea       = errors.New("job is outside provider service areas")
)

// Job описывает работу, под которую ищем исполнителя.
type Job struct {
	ServiceType model.ServiceType
	PostalCode  string
	ScheduledAt time.Time
	// Заполняется по ScheduledAt в часовом поясе расписания.
	Weekday  time.Weekday
	Duration time.Duration
}

func JobFromBooking(b model.Booking) Job {
	return Job{
		ServiceType: b.ServiceType,
		PostalCode:  b.PostalCode,
		ScheduledAt: b.ScheduledAt,
		Weekday:     b.ScheduledAt.Weekday(),
		Duration:    model.HoursToDuration(b.DurationHours),
	}
}

// LoadCounter отдаёт число активных (assigned + confirmed) заказов по исполнителям.
type LoadCounter interface {
	CountActiveByProvider(ctx context.Context, providerIDs []uuid.UUID) (map[uuid.UUID]int64, error)
}

type Config struct {
	// Таймаут на внешние вызовы одного подбора.
	Timeout time.Duration
	// Сколько проверок зоны выполнять параллельно.
	Concurrency int
}

type Matcher struct {
	index  *coverage.Index
	load   LoadCounter
	cfg    Config
	logger *zap.Logger
}

func NewMatcher(index *coverage.Index, load LoadCounter, cfg Config, logger *zap.Logger) *Matcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{index: index, load: load, cfg: cfg, logger: logger}
}

// MatchIndexed подбирает среди текущего снимка индекса.
func (m *Matcher) MatchIndexed(ctx context.Context, job Job) ([]model.Provider, error) {
	return m.Match(ctx, job, m.index.Snapshot())
}

// Match возвращает подходящих исполнителей, лучшие первыми: рейтинг по
// убыванию, затем меньше активных заказов, затем ID.
func (m *Matcher) Match(ctx context.Context, job Job, providers []model.Provider) ([]model.Provider, error) {
	const op = "match providers"

	window, err := m.normalize(op, &job)
	if err != nil {
		return nil, err
	}

	candidates := make([]model.Provider, 0, len(providers))
	for _, p := range providers {
		if !p.Active || !p.HasSkill(job.ServiceType) || !m.index.AvailableFor(p, window) {
			continue
		}
		candidates = append(candidates, p)
	}
	if len(candidates) == 0 {
		return []model.Provider{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	serves := make([]bool, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Concurrency)
	for i := range candidates {
		g.Go(func() error {
			ok, err := m.index.ServesPostalCode(gctx, candidates[i], job.PostalCode)
			if err != nil {
				return err
			}
			serves[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperror.Collaborator(op, "distance service", err)
	}

	eligible := make([]model.Provider, 0, len(candidates))
	for i, p := range candidates {
		if serves[i] {
			eligible = append(eligible, p)
		}
	}
	if len(eligible) == 0 {
		return eligible, nil
	}

	load, err := m.activeJobs(ctx, eligible)
	if err != nil {
		return nil, apperror.Collaborator(op, "booking store", err)
	}
	sortByPreference(eligible, load)

	m.logger.Debug("providers matched",
		zap.String("service_type", string(job.ServiceType)),
		zap.String("postal_code", job.PostalCode),
		zap.Int("considered", len(providers)),
		zap.Int("eligible", len(eligible)),
	)
	return eligible, nil
}

// Eligible повторяет цепочку фильтров для одного исполнителя из индекса.
// Причина отказа доступна через errors.Is (ErrInactive, ErrOutOfArea, ...).
func (m *Matcher) Eligible(ctx context.Context, job Job, providerID uuid.UUID) error {
	const op = "check eligibility"

	window, err := m.normalize(op, &job)
	if err != nil {
		return err
	}
	p, ok := m.index.Get(providerID)
	switch {
	case !ok:
		return apperror.NotEligible(op, ErrUnknownProvider)
	case !p.Active:
		return apperror.NotEligible(op, ErrInactive)
	case !p.HasSkill(job.ServiceType):
		return apperror.NotEligible(op, ErrMissingSkill)
	case !m.index.AvailableFor(p, window):
		return apperror.NotEligible(op, ErrUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()
	serves, err := m.index.ServesPostalCode(ctx, p, job.PostalCode)
	if err != nil {
		return apperror.Collaborator(op, "distance service", err)
	}
	if !serves {
		return apperror.NotEligible(op, ErrOutOfArea)
	}
	return nil
}

func (m *Matcher) normalize(op string, job *Job) (calendar.TimeRange, error) {
	switch {
	case job.ServiceType == "":
		return calendar.TimeRange{}, apperror.Validation(op, "service type is required")
	case job.PostalCode == "":
		return calendar.TimeRange{}, apperror.Validation(op, "postal code is required")
	case job.ScheduledAt.IsZero():
		return calendar.TimeRange{}, apperror.Validation(op, "scheduled time is required")
	}
	if job.Duration <= 0 {
		job.Duration = time.Hour
	}
	job.Weekday = job.ScheduledAt.In(m.index.Location()).Weekday()
	return calendar.NewTimeRange(job.ScheduledAt, job.Duration)
}

func (m *Matcher) activeJobs(ctx context.Context, providers []model.Provider) (map[uuid.UUID]int64, error) {
	if m.load == nil {
		return nil, nil
	}
	ids := make([]uuid.UUID, len(providers))
	for i, p := range providers {
		ids[i] = p.ID
	}
	return m.load.CountActiveByProvider(ctx, ids)
}

func sortByPreference(list []model.Provider, load map[uuid.UUID]int64) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Rating != b.Rating {
			return a.Rating > b.Rating
		}
		if load[a.ID] != load[b.ID] {
			return load[a.ID] < load[b.ID]
		}
		return a.ID.String() < b.ID.String()
	})
}
