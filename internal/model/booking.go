package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Статус бронирования. Строковые значения — контракт хранения и API,
// переименовывать только вместе с миграцией.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusAssigned  BookingStatus = "assigned"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// Terminal сообщает, что из статуса нет переходов.
func (s BookingStatus) Terminal() bool {
	return s == BookingStatusCompleted || s == BookingStatusCancelled
}

// Bound — статусы, в которых к заказу обязательно привязан исполнитель.
func (s BookingStatus) Bound() bool {
	switch s {
	case BookingStatusAssigned, BookingStatusConfirmed, BookingStatusCompleted:
		return true
	}
	return false
}

func ParseBookingStatus(v string) (BookingStatus, error) {
	switch s := BookingStatus(v); s {
	case BookingStatusPending, BookingStatusAssigned, BookingStatusConfirmed,
		BookingStatusCompleted, BookingStatusCancelled:
		return s, nil
	}
	return "", fmt.Errorf("unknown booking status %q", v)
}

var ErrProviderBinding = errors.New("provider binding does not match status")

// bookings
type Booking struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	CustomerID uuid.UUID  `gorm:"type:uuid;not null;index"`
	ProviderID *uuid.UUID `gorm:"type:uuid;index"`

	ServiceType ServiceType `gorm:"type:varchar(32);not null;index"`

	RequestedAt time.Time `gorm:"not null"`
	ScheduledAt time.Time `gorm:"not null;index"`

	// Длительность в часах, шаг 0.5, не меньше 1.
	DurationHours decimal.Decimal `gorm:"type:numeric(4,1);not null"`

	PostalCode string `gorm:"type:varchar(16);not null;index"`
	Address    string `gorm:"type:text;not null"`

	Status     BookingStatus   `gorm:"type:varchar(32);not null;index"`
	TotalPrice decimal.Decimal `gorm:"type:numeric(12,2);not null"`

	CancelReason string `gorm:"type:text"`
	AssignedAt   *time.Time
	ConfirmedAt  *time.Time
	CompletedAt  *time.Time
	CancelledAt  *time.Time

	// Счётчик для compare-and-swap при обновлении.
	Version int64 `gorm:"not null"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (b *Booking) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// End — конец окна работ.
func (b Booking) End() time.Time {
	return b.ScheduledAt.Add(HoursToDuration(b.DurationHours))
}

// Clone возвращает копию без общих указателей.
func (b Booking) Clone() Booking {
	c := b
	c.ProviderID = clonePtr(b.ProviderID)
	c.AssignedAt = clonePtr(b.AssignedAt)
	c.ConfirmedAt = clonePtr(b.ConfirmedAt)
	c.CompletedAt = clonePtr(b.CompletedAt)
	c.CancelledAt = clonePtr(b.CancelledAt)
	return c
}

// CheckInvariant: исполнитель задан тогда и только тогда, когда статус
// assigned/confirmed/completed. Отменённый заказ хранит того, кто был.
func (b Booking) CheckInvariant() error {
	if b.Status == BookingStatusCancelled {
		return nil
	}
	if b.Status.Bound() != (b.ProviderID != nil) {
		return fmt.Errorf("%w: status=%s provider=%v", ErrProviderBinding, b.Status, b.ProviderID != nil)
	}
	return nil
}

// HoursToDuration переводит десятичные часы в time.Duration с точностью до минуты.
func HoursToDuration(h decimal.Decimal) time.Duration {
	return time.Duration(h.Mul(decimal.NewFromInt(60)).Round(0).IntPart()) * time.Minute
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
