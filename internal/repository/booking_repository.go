package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/cleaning-platform/internal/apperror"
	"github.com/Leganyst/cleaning-platform/internal/model"
)

// ErrConflict — заказ в БД уже не в том статусе или версии, что ожидал вызывающий.
var ErrConflict = errors.New("booking was modified concurrently")

type BookingRepository interface {
	// Создать заказ и событие аудита в одной транзакции.
	Create(ctx context.Context, booking *model.Booking, event *model.BookingEvent) error
	// Получить заказ по ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Booking, error)
	// Сохранить заказ, если в БД всё ещё expectedStatus и expectedVersion.
	// Иначе ErrConflict и никаких изменений.
	UpdateIfVersion(
		ctx context.Context,
		booking *model.Booking,
		expectedStatus model.BookingStatus,
		expectedVersion int64,
		event *model.BookingEvent,
	) error
	// Заказы в статусе с пагинацией, ближайшие первыми.
	ListByStatus(ctx context.Context, status model.BookingStatus, limit, offset int) ([]model.Booking, int64, error)
	// Число активных (assigned + confirmed) заказов по исполнителям.
	CountActiveByProvider(ctx context.Context, providerIDs []uuid.UUID) (map[uuid.UUID]int64, error)
	// Журнал заказа по времени.
	ListEvents(ctx context.Context, bookingID uuid.UUID) ([]model.BookingEvent, error)
}

// Реализация на GORM.
type GormBookingRepository struct {
	db *gorm.DB
}

func NewGormBookingRepository(db *gorm.DB) *GormBookingRepository {
	return &GormBookingRepository{db: db}
}

func (r *GormBookingRepository) Create(ctx context.Context, booking *model.Booking, event *model.BookingEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(booking).Error; err != nil {
			return fmt.Errorf("create booking: %w", err)
		}
		if event != nil {
			event.BookingID = booking.ID
			if err := tx.Create(event).Error; err != nil {
				return fmt.Errorf("create booking event: %w", err)
			}
		}
		return nil
	})
}

func (r *GormBookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	var b model.Booking
	if err := r.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("get booking", "booking "+id.String(), err)
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return &b, nil
}

func (r *GormBookingRepository) UpdateIfVersion(
	ctx context.Context,
	booking *model.Booking,
	expectedStatus model.BookingStatus,
	expectedVersion int64,
	event *model.BookingEvent,
) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(booking).
			Where("status = ? AND version = ?", expectedStatus, expectedVersion).
			Select("*").
			Omit("id", "created_at").
			Updates(booking)
		if res.Error != nil {
			return fmt.Errorf("update booking: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		if event != nil {
			event.BookingID = booking.ID
			if err := tx.Create(event).Error; err != nil {
				return fmt.Errorf("create booking event: %w", err)
			}
		}
		return nil
	})
}

func (r *GormBookingRepository) ListByStatus(
	ctx context.Context,
	status model.BookingStatus,
	limit, offset int,
) ([]model.Booking, int64, error) {
	var (
		bookings []model.Booking
		total    int64
	)

	q := r.db.WithContext(ctx).
		Model(&model.Booking{}).
		Where("status = ?", status)

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}

	if err := q.Order("scheduled_at ASC").Order("id ASC").Find(&bookings).Error; err != nil {
		return nil, 0, err
	}

	return bookings, total, nil
}

func (r *GormBookingRepository) CountActiveByProvider(ctx context.Context, providerIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	out := make(map[uuid.UUID]int64, len(providerIDs))
	if len(providerIDs) == 0 {
		return out, nil
	}

	var rows []struct {
		ProviderID uuid.UUID
		N          int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.Booking{}).
		Select("provider_id, COUNT(*) AS n").
		Where("provider_id IN ?", providerIDs).
		Where("status IN ?", []model.BookingStatus{model.BookingStatusAssigned, model.BookingStatusConfirmed}).
		Group("provider_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count active bookings: %w", err)
	}
	for _, row := range rows {
		out[row.ProviderID] = row.N
	}
	return out, nil
}

func (r *GormBookingRepository) ListEvents(ctx context.Context, bookingID uuid.UUID) ([]model.BookingEvent, error) {
	var events []model.BookingEvent
	err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("list booking events: %w", err)
	}
	return events, nil
}
