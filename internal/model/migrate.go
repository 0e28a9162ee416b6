package model

import "gorm.io/gorm"

// AutoMigrate выполняет миграцию всех сущностей ядра заказов.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Provider{},
		&ServiceArea{},
		&AvailabilityWindow{},
		&ProviderSkill{},
		&Booking{},
		&BookingEvent{},
	)
}
