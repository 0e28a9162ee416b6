package lifecycle

import (
	"github.com/google/uuid"

	"github.com/Leganyst/cleaning-platform/internal/apperror"
	"github.com/Leganyst/cleaning-platform/internal/model"
)

// Роль участника, инициирующего событие.
type Role string

const (
	RoleSystem   Role = ""
	RoleCustomer Role = "customer"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

func ParseRole(v string) (Role, error) {
	switch r := Role(v); r {
	case RoleSystem, RoleCustomer, RoleProvider, RoleAdmin:
		return r, nil
	case "system":
		return RoleSystem, nil
	}
	return "", apperror.Validation("parse role", "unknown role %q", v)
}

type Actor struct {
	ID   uuid.UUID
	Role Role
}

func (a Actor) String() string {
	if a.Role == RoleSystem {
		return "system"
	}
	return string(a.Role) + ":" + a.ID.String()
}

// authorize:
//   - admin и system могут всё;
//   - клиент может только отменить свой заказ;
//   - исполнитель может взять заказ на себя, отказаться от ожидающего
//     и вести дальше только заказ, назначенный ему.
func authorize(op string, b model.Booking, event Event, p Payload) error {
	a := p.Actor
	switch a.Role {
	case RoleSystem, RoleAdmin:
		return nil

	case RoleCustomer:
		if event != EventCancel {
			return apperror.Forbidden(op, "customers may only cancel bookings")
		}
		if b.CustomerID != a.ID {
			return apperror.Forbidden(op, "booking belongs to another customer")
		}
		return nil

	case RoleProvider:
		switch {
		case event == EventAssignProvider:
			if p.ProviderID == nil || *p.ProviderID != a.ID {
				return apperror.Forbidden(op, "providers may only assign bookings to themselves")
			}
			return nil
		case event == EventProviderRejects && b.Status == model.BookingStatusPending:
			return nil
		case event == EventCancel:
			return apperror.Forbidden(op, "providers may not cancel bookings")
		case b.ProviderID == nil || *b.ProviderID != a.ID:
			return apperror.Forbidden(op, "booking is assigned to another provider")
		}
		return nil
	}
	return apperror.Forbidden(op, "unknown role %q", a.Role)
}
