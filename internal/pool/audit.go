package pool

import (
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/Leganyst/cleaning-platform/internal/lifecycle"
	"github.com/Leganyst/cleaning-platform/internal/model"
)

// AuditEvent строит запись журнала для перехода.
func AuditEvent(out lifecycle.Outcome, actor lifecycle.Actor) *model.BookingEvent {
	ev := &model.BookingEvent{
		BookingID:  out.Booking.ID,
		EventType:  model.EventTypeBookingTransitioned,
		Event:      string(out.Event),
		FromStatus: out.From,
		ToStatus:   out.To,
		ActorRole:  string(actor.Role),
	}
	if ev.ActorRole == "" {
		ev.ActorRole = "system"
	}
	if actor.ID != uuid.Nil {
		id := actor.ID
		ev.ActorID = &id
	}

	details := map[string]any{"version": out.Booking.Version}
	if out.Booking.ProviderID != nil {
		details["provider_id"] = out.Booking.ProviderID.String()
	}
	if out.Booking.CancelReason != "" && out.Event == lifecycle.EventCancel {
		details["reason"] = out.Booking.CancelReason
	}
	if raw, err := json.Marshal(details); err == nil {
		ev.Details = datatypes.JSON(raw)
	}
	return ev
}
