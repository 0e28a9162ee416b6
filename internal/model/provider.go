package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Provider — исполнитель (клинер), которому назначаются заказы.
type Provider struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	// Имя/отображаемое название в интерфейсе.
	Name string `gorm:"type:varchar(255);not null"`

	// Неактивные не участвуют в подборе.
	Active bool `gorm:"not null;index"`

	// Средняя историческая оценка, 0..5.
	Rating float64 `gorm:"not null"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	ServiceAreas []ServiceArea        `gorm:"foreignKey:ProviderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Availability []AvailabilityWindow `gorm:"foreignKey:ProviderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Skills       []ProviderSkill      `gorm:"foreignKey:ProviderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (p *Provider) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (p Provider) HasSkill(st ServiceType) bool {
	for _, s := range p.Skills {
		if s.ServiceType == st {
			return true
		}
	}
	return false
}

// Clone копирует вложенные срезы, чтобы снимок не делил память с индексом.
func (p Provider) Clone() Provider {
	c := p
	c.ServiceAreas = append([]ServiceArea(nil), p.ServiceAreas...)
	c.Availability = append([]AvailabilityWindow(nil), p.Availability...)
	c.Skills = append([]ProviderSkill(nil), p.Skills...)
	return c
}

// service_areas — почтовый индекс и радиус выезда от него.
type ServiceArea struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	ProviderID uuid.UUID `gorm:"type:uuid;not null;index"`

	PostalCode       string  `gorm:"type:varchar(16);not null;index"`
	TravelDistanceKm float64 `gorm:"not null"`
}

func (a *ServiceArea) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// availability_windows — еженедельное окно доступности [StartsAt, EndsAt)
// в часовом поясе расписания.
type AvailabilityWindow struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	ProviderID uuid.UUID `gorm:"type:uuid;not null;index"`

	Weekday  time.Weekday   `gorm:"not null"`
	StartsAt datatypes.Time `gorm:"not null"`
	EndsAt   datatypes.Time `gorm:"not null"`
}

func (w *AvailabilityWindow) BeforeCreate(*gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

// provider_skills — виды уборки, на которые допущен исполнитель.
type ProviderSkill struct {
	ProviderID  uuid.UUID   `gorm:"type:uuid;primaryKey"`
	ServiceType ServiceType `gorm:"type:varchar(32);primaryKey"`
}
