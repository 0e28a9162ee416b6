package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Тип события аудита.
type EventType string

const (
	EventTypeBookingCreated      EventType = "booking_created"
	EventTypeBookingTransitioned EventType = "booking_transitioned"
)

// booking_events — журнал изменений заказа, пишется в одной транзакции
// с изменением статуса.
type BookingEvent struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	BookingID uuid.UUID `gorm:"type:uuid;not null;index"`
	EventType EventType `gorm:"type:varchar(64);not null;index"`

	// Имя события жизненного цикла (assign_provider, cancel, ...).
	Event      string        `gorm:"type:varchar(64)"`
	FromStatus BookingStatus `gorm:"type:varchar(32)"`
	ToStatus   BookingStatus `gorm:"type:varchar(32);not null"`

	ActorID   *uuid.UUID `gorm:"type:uuid;index"`
	ActorRole string     `gorm:"type:varchar(32)"`

	Details datatypes.JSON

	CreatedAt time.Time `gorm:"not null;index"`
}

func (e *BookingEvent) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
