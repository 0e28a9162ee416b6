// Package coverage хранит зоны выезда и окна доступности исполнителей
// и отвечает, может ли исполнитель взять конкретную работу.
package coverage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Leganyst/cleaning-platform/internal/calendar"
	"github.com/Leganyst/cleaning-platform/internal/geo"
	"github.com/Leganyst/cleaning-platform/internal/model"
)

// ProviderSource отдаёт всех исполнителей для полной загрузки индекса.
type ProviderSource interface {
	ListAll(ctx context.Context) ([]model.Provider, error)
}

type Index struct {
	mu        sync.RWMutex
	providers map[uuid.UUID]model.Provider

	distance geo.DistanceService
	loc      *time.Location
}

func NewIndex(distance geo.DistanceService, loc *time.Location) *Index {
	if loc == nil {
		loc = time.UTC
	}
	return &Index{
		providers: make(map[uuid.UUID]model.Provider),
		distance:  distance,
		loc:       loc,
	}
}

// Location возвращает часовой пояс, в котором заданы окна доступности.
func (ix *Index) Location() *time.Location { return ix.loc }

// Load заменяет содержимое индекса данными из источника.
func (ix *Index) Load(ctx context.Context, src ProviderSource) (int, error) {
	list, err := src.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load providers: %w", err)
	}
	next := make(map[uuid.UUID]model.Provider, len(list))
	for _, p := range list {
		next[p.ID] = p.Clone()
	}

	ix.mu.Lock()
	ix.providers = next
	ix.mu.Unlock()
	return len(next), nil
}

func (ix *Index) Put(p model.Provider) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.providers[p.ID] = p.Clone()
}

func (ix *Index) Remove(id uuid.UUID) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.providers, id)
}

func (ix *Index) Get(id uuid.UUID) (model.Provider, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	p, ok := ix.providers[id]
	if !ok {
		return model.Provider{}, false
	}
	return p.Clone(), true
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.providers)
}

// Snapshot возвращает копии всех исполнителей, отсортированные по ID.
// Изменения индекса после вызова на снимок не влияют.
func (ix *Index) Snapshot() []model.Provider {
	ix.mu.RLock()
	out := make([]model.Provider, 0, len(ix.providers))
	for _, p := range ix.providers {
		out = append(out, p.Clone())
	}
	ix.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// ServesPostalCode проверяет, есть ли у исполнителя зона, из которой postal в пределах радиуса.
// Точное совпадение индекса засчитывается без обращения к сервису расстояний.
func (ix *Index) ServesPostalCode(ctx context.Context, p model.Provider, postal string) (bool, error) {
	target := geo.NormalizePostalCode(postal)
	for _, a := range p.ServiceAreas {
		if geo.NormalizePostalCode(a.PostalCode) == target {
			return true, nil
		}
	}
	if ix.distance == nil {
		return false, nil
	}
	for _, a := range p.ServiceAreas {
		if a.TravelDistanceKm <= 0 {
			continue
		}
		ok, err := ix.distance.WithinKm(ctx, a.PostalCode, target, a.TravelDistanceKm)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// AvailableFor проверяет, что окно работы целиком лежит внутри одного окна доступности
// исполнителя на этот день недели.
func (ix *Index) AvailableFor(p model.Provider, job calendar.TimeRange) bool {
	local := job.In(ix.loc)
	weekday := local.Start.Weekday()
	for _, w := range p.Availability {
		if w.Weekday != weekday {
			continue
		}
		window, ok := calendar.WindowOn(local.Start, w.StartsAt, w.EndsAt, ix.loc)
		if ok && window.Contains(local) {
			return true
		}
	}
	return false
}

// CanServe проверяет зону и доступность исполнителя из индекса.
func (ix *Index) CanServe(ctx context.Context, providerID uuid.UUID, postal string, job calendar.TimeRange) (bool, error) {
	p, ok := ix.Get(providerID)
	if !ok {
		return false, nil
	}
	if !ix.AvailableFor(p, job) {
		return false, nil
	}
	return ix.ServesPostalCode(ctx, p, postal)
}
