package httpapi

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/Leganyst/cleaning-platform/internal/calendar"
	"github.com/Leganyst/cleaning-platform/internal/estimate"
	"github.com/Leganyst/cleaning-platform/internal/model"
)

type estimateRequest struct {
	PropertySizeM2       float64 `json:"propertySizeM2"`
	Bedrooms             int     `json:"bedrooms"`
	Bathrooms            int     `json:"bathrooms"`
	DirtinessLevel       int     `json:"dirtinessLevel"`
	MonthsSinceLastClean int     `json:"monthsSinceLastClean"`
	Pace                 string  `json:"pace"`
}

func (r estimateRequest) input() estimate.Input {
	return estimate.Input{
		PropertySizeM2:       r.PropertySizeM2,
		Bedrooms:             r.Bedrooms,
		Bathrooms:            r.Bathrooms,
		DirtinessLevel:       r.DirtinessLevel,
		MonthsSinceLastClean: r.MonthsSinceLastClean,
		Pace:                 estimate.Pace(r.Pace),
	}
}

type estimateView struct {
	Hours         decimal.Decimal `json:"hours"`
	Raw           float64         `json:"raw"`
	InputClamped  bool            `json:"inputClamped"`
	OutputClamped bool            `json:"outputClamped"`
}

func newEstimateView(r estimate.Result) estimateView {
	return estimateView{Hours: r.Hours, Raw: r.Raw, InputClamped: r.InputClamped, OutputClamped: r.OutputClamped}
}

type createBookingRequest struct {
	CustomerID    uuid.UUID        `json:"customerId"`
	ServiceType   string           `json:"serviceType"`
	ScheduledAt   time.Time        `json:"scheduledAt"`
	PostalCode    string           `json:"postalCode"`
	Address       string           `json:"address"`
	DurationHours *decimal.Decimal `json:"durationHours"`
	Property      *estimateRequest `json:"property"`
	TotalPrice    *decimal.Decimal `json:"totalPrice"`
}

type transitionRequest struct {
	Event      string     `json:"event"`
	ProviderID *uuid.UUID `json:"providerId"`
	Reason     string     `json:"reason"`
}

type claimRequest struct {
	ProviderID uuid.UUID `json:"providerId"`
}

type matchRequest struct {
	BookingID     *uuid.UUID       `json:"bookingId"`
	ServiceType   string           `json:"serviceType"`
	PostalCode    string           `json:"postalCode"`
	ScheduledAt   time.Time        `json:"scheduledAt"`
	DurationHours *decimal.Decimal `json:"durationHours"`
}

type bookingView struct {
	ID            uuid.UUID       `json:"id"`
	CustomerID    uuid.UUID       `json:"customerId"`
	ProviderID    *uuid.UUID      `json:"providerId,omitempty"`
	ServiceType   string          `json:"serviceType"`
	Status        string          `json:"status"`
	RequestedAt   time.Time       `json:"requestedAt"`
	ScheduledAt   time.Time       `json:"scheduledAt"`
	DurationHours decimal.Decimal `json:"durationHours"`
	Window        string          `json:"window"`
	PostalCode    string          `json:"postalCode"`
	Address       string          `json:"address"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
	CancelReason  string          `json:"cancelReason,omitempty"`
	AssignedAt    *time.Time      `json:"assignedAt,omitempty"`
	ConfirmedAt   *time.Time      `json:"confirmedAt,omitempty"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
	CancelledAt   *time.Time      `json:"cancelledAt,omitempty"`
	Version       int64           `json:"version"`
}

func newBookingView(b model.Booking, loc *time.Location) bookingView {
	return bookingView{
		ID:            b.ID,
		CustomerID:    b.CustomerID,
		ProviderID:    b.ProviderID,
		ServiceType:   string(b.ServiceType),
		Status:        string(b.Status),
		RequestedAt:   b.RequestedAt,
		ScheduledAt:   b.ScheduledAt,
		DurationHours: b.DurationHours,
		Window:        bookingWindow(b, loc),
		PostalCode:    b.PostalCode,
		Address:       b.Address,
		TotalPrice:    b.TotalPrice,
		CancelReason:  b.CancelReason,
		AssignedAt:    b.AssignedAt,
		ConfirmedAt:   b.ConfirmedAt,
		CompletedAt:   b.CompletedAt,
		CancelledAt:   b.CancelledAt,
		Version:       b.Version,
	}
}

// poolItemView — заказ в пуле. До назначения исполнитель не видит
// ни адреса, ни клиента.
type poolItemView struct {
	ID            uuid.UUID       `json:"id"`
	ServiceType   string          `json:"serviceType"`
	ScheduledAt   time.Time       `json:"scheduledAt"`
	DurationHours decimal.Decimal `json:"durationHours"`
	Window        string          `json:"window"`
	PostalCode    string          `json:"postalCode"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
}

func newPoolItemView(b model.Booking, loc *time.Location) poolItemView {
	return poolItemView{
		ID:            b.ID,
		ServiceType:   string(b.ServiceType),
		ScheduledAt:   b.ScheduledAt,
		DurationHours: b.DurationHours,
		Window:        bookingWindow(b, loc),
		PostalCode:    b.PostalCode,
		TotalPrice:    b.TotalPrice,
	}
}

type poolPageView struct {
	Items      []poolItemView `json:"items"`
	Page       int            `json:"page"`
	PageSize   int            `json:"pageSize"`
	TotalPages int            `json:"totalPages"`
	HasNext    bool           `json:"hasNext"`
	HasPrev    bool           `json:"hasPrev"`
	Total      int            `json:"total"`
}

func newPoolPageView(p calendar.Page[model.Booking], loc *time.Location) poolPageView {
	items := make([]poolItemView, 0, len(p.Items))
	for _, b := range p.Items {
		items = append(items, newPoolItemView(b, loc))
	}
	return poolPageView{
		Items:      items,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalPages: p.TotalPages,
		HasNext:    p.HasNext,
		HasPrev:    p.HasPrev,
		Total:      p.Total,
	}
}

type eventView struct {
	EventType string    `json:"eventType"`
	Event     string    `json:"event,omitempty"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to"`
	ActorRole string    `json:"actorRole,omitempty"`
	At        time.Time `json:"at"`
}

func newEventViews(events []model.BookingEvent) []eventView {
	out := make([]eventView, 0, len(events))
	for _, e := range events {
		out = append(out, eventView{
			EventType: string(e.EventType),
			Event:     e.Event,
			From:      string(e.FromStatus),
			To:        string(e.ToStatus),
			ActorRole: e.ActorRole,
			At:        e.CreatedAt,
		})
	}
	return out
}

func bookingWindow(b model.Booking, loc *time.Location) string {
	return calendar.FormatRange(calendar.TimeRange{Start: b.ScheduledAt, End: b.End()}, loc)
}

type serviceAreaDTO struct {
	PostalCode       string  `json:"postalCode"`
	TravelDistanceKm float64 `json:"travelDistanceKm"`
}

type availabilityDTO struct {
	Weekday  string `json:"weekday"`
	StartsAt string `json:"startsAt"`
	EndsAt   string `json:"endsAt"`
}

type providerDTO struct {
	ID           uuid.UUID         `json:"id"`
	Name         string            `json:"name"`
	Active       bool              `json:"active"`
	Rating       float64           `json:"rating"`
	ServiceAreas []serviceAreaDTO  `json:"serviceAreas"`
	Availability []availabilityDTO `json:"availability"`
	Skills       []string          `json:"skills"`
}

func newProviderDTO(p model.Provider) providerDTO {
	dto := providerDTO{
		ID:           p.ID,
		Name:         p.Name,
		Active:       p.Active,
		Rating:       p.Rating,
		ServiceAreas: make([]serviceAreaDTO, 0, len(p.ServiceAreas)),
		Availability: make([]availabilityDTO, 0, len(p.Availability)),
		Skills:       make([]string, 0, len(p.Skills)),
	}
	for _, a := range p.ServiceAreas {
		dto.ServiceAreas = append(dto.ServiceAreas, serviceAreaDTO{PostalCode: a.PostalCode, TravelDistanceKm: a.TravelDistanceKm})
	}
	for _, w := range p.Availability {
		dto.Availability = append(dto.Availability, availabilityDTO{
			Weekday:  strings.ToLower(w.Weekday.String()),
			StartsAt: clock(w.StartsAt),
			EndsAt:   clock(w.EndsAt),
		})
	}
	for _, s := range p.Skills {
		dto.Skills = append(dto.Skills, string(s.ServiceType))
	}
	return dto
}

// model переводит DTO в модель; id берётся из пути.
func (dto providerDTO) model(id uuid.UUID) (model.Provider, error) {
	p := model.Provider{
		ID:     id,
		Name:   dto.Name,
		Active: dto.Active,
		Rating: dto.Rating,
	}
	for _, a := range dto.ServiceAreas {
		p.ServiceAreas = append(p.ServiceAreas, model.ServiceArea{ProviderID: id, PostalCode: a.PostalCode, TravelDistanceKm: a.TravelDistanceKm})
	}
	for i, w := range dto.Availability {
		day, ok := weekdays[strings.ToLower(w.Weekday)]
		if !ok {
			return model.Provider{}, fmt.Errorf("availability %d: unknown weekday %q", i, w.Weekday)
		}
		from, err := parseClock(w.StartsAt)
		if err != nil {
			return model.Provider{}, fmt.Errorf("availability %d: %w", i, err)
		}
		to, err := parseClock(w.EndsAt)
		if err != nil {
			return model.Provider{}, fmt.Errorf("availability %d: %w", i, err)
		}
		p.Availability = append(p.Availability, model.AvailabilityWindow{ProviderID: id, Weekday: day, StartsAt: from, EndsAt: to})
	}
	for _, s := range dto.Skills {
		p.Skills = append(p.Skills, model.ProviderSkill{ProviderID: id, ServiceType: model.ServiceType(s)})
	}
	return p, nil
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func parseClock(v string) (datatypes.Time, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("bad time of day %q, want HH:MM", v)
	}
	return datatypes.NewTime(t.Hour(), t.Minute(), 0, 0), nil
}

func clock(t datatypes.Time) string {
	d := time.Duration(t)
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}
