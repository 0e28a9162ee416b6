package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Leganyst/cleaning-platform/internal/apperror"
	"github.com/Leganyst/cleaning-platform/internal/model"
)

type ProviderRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Provider, error)
	// Все исполнители вместе с зонами, окнами и навыками.
	ListAll(ctx context.Context) ([]model.Provider, error)
	// Создать или полностью заменить исполнителя вместе с вложенными данными.
	Save(ctx context.Context, provider *model.Provider) error
}

type GormProviderRepository struct {
	db *gorm.DB
}

func NewGormProviderRepository(db *gorm.DB) *GormProviderRepository {
	return &GormProviderRepository{db: db}
}

func (r *GormProviderRepository) withDetails(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("ServiceAreas").
		Preload("Availability", func(db *gorm.DB) *gorm.DB {
			return db.Order("weekday ASC").Order("starts_at ASC")
		}).
		Preload("Skills")
}

func (r *GormProviderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Provider, error) {
	var p model.Provider
	if err := r.withDetails(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("get provider", "provider "+id.String(), err)
		}
		return nil, fmt.Errorf("get provider: %w", err)
	}
	return &p, nil
}

func (r *GormProviderRepository) ListAll(ctx context.Context) ([]model.Provider, error) {
	var providers []model.Provider
	if err := r.withDetails(ctx).Order("id ASC").Find(&providers).Error; err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	return providers, nil
}

func (r *GormProviderRepository) Save(ctx context.Context, p *model.Provider) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(p).Error; err != nil {
			return fmt.Errorf("save provider: %w", err)
		}

		// Вложенные данные заменяем целиком.
		for _, child := range []any{&model.ServiceArea{}, &model.AvailabilityWindow{}, &model.ProviderSkill{}} {
			if err := tx.Where("provider_id = ?", p.ID).Delete(child).Error; err != nil {
				return fmt.Errorf("clear provider details: %w", err)
			}
		}

		for i := range p.ServiceAreas {
			p.ServiceAreas[i].ProviderID = p.ID
		}
		for i := range p.Availability {
			p.Availability[i].ProviderID = p.ID
		}
		for i := range p.Skills {
			p.Skills[i].ProviderID = p.ID
		}

		if len(p.ServiceAreas) > 0 {
			if err := tx.Create(&p.ServiceAreas).Error; err != nil {
				return fmt.Errorf("save service areas: %w", err)
			}
		}
		if len(p.Availability) > 0 {
			if err := tx.Create(&p.Availability).Error; err != nil {
				return fmt.Errorf("save availability: %w", err)
			}
		}
		if len(p.Skills) > 0 {
			if err := tx.Create(&p.Skills).Error; err != nil {
				return fmt.Errorf("save skills: %w", err)
			}
		}
		return nil
	})
}
