package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Leganyst/cleaning-platform/internal/apperror"
	"github.com/Leganyst/cleaning-platform/internal/geo"
	"github.com/Leganyst/cleaning-platform/internal/model"
)

// UpsertProvider сохраняет исполнителя и сразу обновляет индекс зон.
func (s *BookingService) UpsertProvider(ctx context.Context, p model.Provider) (model.Provider, error) {
	const op = "upsert provider"
	if err := validateProvider(&p); err != nil {
		return model.Provider{}, apperror.Validation(op, "%v", err)
	}

	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.providers.Save(sctx, &p); err != nil {
		return model.Provider{}, apperror.Collaborator(op, "provider store", err)
	}
	s.index.Put(p)

	s.logger.Info("provider saved",
		zap.String("provider_id", p.ID.String()),
		zap.Bool("active", p.Active),
		zap.Int("areas", len(p.ServiceAreas)),
		zap.Int("windows", len(p.Availability)),
	)
	return p.Clone(), nil
}

// GetProvider отдаёт исполнителя из индекса, при промахе читает хранилище.
func (s *BookingService) GetProvider(ctx context.Context, id uuid.UUID) (model.Provider, error) {
	if p, ok := s.index.Get(id); ok {
		return p, nil
	}
	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	p, err := s.providers.GetByID(sctx, id)
	if err != nil {
		return model.Provider{}, apperror.Collaborator("get provider", "provider store", err)
	}
	return *p, nil
}

// ReloadProviders перечитывает всех исполнителей в индекс.
func (s *BookingService) ReloadProviders(ctx context.Context) (int, error) {
	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	n, err := s.index.Load(sctx, s.providers)
	if err != nil {
		return 0, apperror.Collaborator("reload providers", "provider store", err)
	}
	s.logger.Info("provider index loaded", zap.Int("providers", n))
	return n, nil
}

func validateProvider(p *model.Provider) error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if p.Rating < 0 || p.Rating > 5 {
		return fmt.Errorf("rating must be between 0 and 5, got %v", p.Rating)
	}
	for i := range p.ServiceAreas {
		a := &p.ServiceAreas[i]
		a.PostalCode = geo.NormalizePostalCode(a.PostalCode)
		if a.PostalCode == "" {
			return fmt.Errorf("service area %d: postal code is required", i)
		}
		if a.TravelDistanceKm < 0 {
			return fmt.Errorf("service area %s: travel distance must not be negative", a.PostalCode)
		}
	}
	for i, w := range p.Availability {
		if w.Weekday < 0 || w.Weekday > 6 {
			return fmt.Errorf("availability window %d: bad weekday %d", i, w.Weekday)
		}
		if w.StartsAt >= w.EndsAt {
			return fmt.Errorf("availability window %d: start must be before end", i)
		}
	}
	for _, sk := range p.Skills {
		if _, err := model.ParseServiceType(string(sk.ServiceType)); err != nil {
			return err
		}
	}
	return nil
}
