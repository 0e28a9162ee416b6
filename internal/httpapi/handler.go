// Package httpapi реализует REST-интерфейс ядра заказов поверх gin.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Leganyst/cleaning-platform/internal/apperror"
	"github.com/Leganyst/cleaning-platform/internal/calendar"
	"github.com/Leganyst/cleaning-platform/internal/estimate"
	"github.com/Leganyst/cleaning-platform/internal/lifecycle"
	"github.com/Leganyst/cleaning-platform/internal/matching"
	"github.com/Leganyst/cleaning-platform/internal/model"
	"github.com/Leganyst/cleaning-platform/internal/pool"
	"github.com/Leganyst/cleaning-platform/internal/service"
)

// Заголовки, которыми шлюз передаёт уже проверенного участника.
const (
	ActorIDHeader   = "X-Actor-Id"
	ActorRoleHeader = "X-Actor-Role"
)

// Bookings перечисляет операции ядра, которые нужны обработчикам.
type Bookings interface {
	EstimateDuration(in estimate.Input) estimate.Result
	CreateBooking(ctx context.Context, in service.CreateBookingInput) (model.Booking, error)
	GetBooking(ctx context.Context, id uuid.UUID) (model.Booking, error)
	History(ctx context.Context, id uuid.UUID) ([]model.BookingEvent, error)
	Transition(ctx context.Context, id uuid.UUID, event lifecycle.Event, p lifecycle.Payload) (model.Booking, error)
	ClaimBooking(ctx context.Context, id, providerID uuid.UUID, actor lifecycle.Actor) (model.Booking, error)
	ListPending(ctx context.Context, f pool.Filter, page, pageSize int) (calendar.Page[model.Booking], error)
	MatchProviders(ctx context.Context, job matching.Job) ([]model.Provider, error)
	MatchForBooking(ctx context.Context, id uuid.UUID) ([]model.Provider, error)
	UpsertProvider(ctx context.Context, p model.Provider) (model.Provider, error)
	GetProvider(ctx context.Context, id uuid.UUID) (model.Provider, error)
}

type Handler struct {
	svc    Bookings
	loc    *time.Location
	logger *zap.Logger
}

func NewHandler(svc Bookings, loc *time.Location, logger *zap.Logger) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, loc: loc, logger: logger}
}

// Estimate обрабатывает POST /api/v1/estimates
func (h *Handler) Estimate(c *gin.Context) {
	var req estimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, newEstimateView(h.svc.EstimateDuration(req.input())))
}

// CreateBooking обрабатывает POST /api/v1/bookings
func (h *Handler) CreateBooking(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	in := service.CreateBookingInput{
		CustomerID:    req.CustomerID,
		ServiceType:   model.ServiceType(req.ServiceType),
		ScheduledAt:   req.ScheduledAt,
		PostalCode:    req.PostalCode,
		Address:       req.Address,
		DurationHours: req.DurationHours,
		TotalPrice:    req.TotalPrice,
		Actor:         actor,
	}
	if req.Property != nil {
		p := req.Property.input()
		in.Property = &p
	}

	b, err := h.svc.CreateBooking(c.Request.Context(), in)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, newBookingView(b, h.loc))
}

// GetBooking обрабатывает GET /api/v1/bookings/:id
func (h *Handler) GetBooking(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	b, err := h.svc.GetBooking(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"booking":       newBookingView(b, h.loc),
		"allowedEvents": lifecycle.Allowed(b.Status),
	})
}

// History обрабатывает GET /api/v1/bookings/:id/events
func (h *Handler) History(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	events, err := h.svc.History(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": newEventViews(events)})
}

// Transition обрабатывает POST /api/v1/bookings/:id/transitions
func (h *Handler) Transition(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	event, err := lifecycle.ParseEvent(req.Event)
	if err != nil {
		badRequest(c, err)
		return
	}

	b, err := h.svc.Transition(c.Request.Context(), id, event, lifecycle.Payload{
		ProviderID: req.ProviderID,
		Reason:     req.Reason,
		Actor:      actor,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newBookingView(b, h.loc))
}

// Claim обрабатывает POST /api/v1/bookings/:id/claim
// Без тела исполнитель берётся из заголовка участника.
func (h *Handler) Claim(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req claimRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	if req.ProviderID == uuid.Nil && actor.Role == lifecycle.RoleProvider {
		req.ProviderID = actor.ID
	}
	if req.ProviderID == uuid.Nil {
		badRequest(c, errors.New("providerId is required"))
		return
	}

	b, err := h.svc.ClaimBooking(c.Request.Context(), id, req.ProviderID, actor)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newBookingView(b, h.loc))
}

// Pool обрабатывает GET /api/v1/pool
func (h *Handler) Pool(c *gin.Context) {
	f := pool.Filter{
		ServiceType:  model.ServiceType(c.Query("serviceType")),
		PostalPrefix: c.Query("postalPrefix"),
	}
	var err error
	if f.From, err = queryTime(c, "from"); err != nil {
		badRequest(c, err)
		return
	}
	if f.To, err = queryTime(c, "to"); err != nil {
		badRequest(c, err)
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	list, err := h.svc.ListPending(c.Request.Context(), f, page, size)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newPoolPageView(list, h.loc))
}

// Match обрабатывает POST /api/v1/matches
// Либо bookingId, либо параметры работы.
func (h *Handler) Match(c *gin.Context) {
	var req matchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	var (
		list []model.Provider
		err  error
	)
	if req.BookingID != nil {
		list, err = h.svc.MatchForBooking(c.Request.Context(), *req.BookingID)
	} else {
		job := matching.Job{
			ServiceType: model.ServiceType(req.ServiceType),
			PostalCode:  req.PostalCode,
			ScheduledAt: req.ScheduledAt,
		}
		if req.DurationHours != nil {
			job.Duration = model.HoursToDuration(*req.DurationHours)
		}
		list, err = h.svc.MatchProviders(c.Request.Context(), job)
	}
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	out := make([]providerDTO, 0, len(list))
	for _, p := range list {
		out = append(out, newProviderDTO(p))
	}
	c.JSON(http.StatusOK, gin.H{"providers": out})
}

// PutProvider обрабатывает PUT /api/v1/providers/:id
// Карточки исполнителей правят только admin и system.
func (h *Handler) PutProvider(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	if actor.Role != lifecycle.RoleAdmin && actor.Role != lifecycle.RoleSystem {
		writeError(c, h.logger, apperror.Forbidden("upsert provider", "role %s may not edit providers", actor.Role))
		return
	}
	var dto providerDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		badRequest(c, err)
		return
	}
	p, err := dto.model(id)
	if err != nil {
		badRequest(c, err)
		return
	}
	saved, err := h.svc.UpsertProvider(c.Request.Context(), p)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newProviderDTO(saved))
}

// GetProvider обрабатывает GET /api/v1/providers/:id
func (h *Handler) GetProvider(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	p, err := h.svc.GetProvider(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newProviderDTO(p))
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// actor читает участника из заголовков; без заголовков: system.
func (h *Handler) actor(c *gin.Context) (lifecycle.Actor, bool) {
	role, err := lifecycle.ParseRole(c.GetHeader(ActorRoleHeader))
	if err != nil {
		writeError(c, h.logger, err)
		return lifecycle.Actor{}, false
	}
	a := lifecycle.Actor{Role: role}
	if raw := c.GetHeader(ActorIDHeader); raw != "" {
		if a.ID, err = uuid.Parse(raw); err != nil {
			badRequest(c, errors.New("bad "+ActorIDHeader+" header"))
			return lifecycle.Actor{}, false
		}
	}
	if a.Role != lifecycle.RoleSystem && a.ID == uuid.Nil {
		writeError(c, h.logger, apperror.Forbidden("authenticate", "%s header is required for role %s", ActorIDHeader, a.Role))
		return lifecycle.Actor{}, false
	}
	return a, true
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, zap.NewNop(), apperror.Validation("parse id", "bad id %q", c.Param("id")))
		return uuid.Nil, false
	}
	return id, true
}

func queryTime(c *gin.Context, key string) (time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, errors.New("bad " + key + ": want RFC3339")
	}
	return t, nil
}
