package httpapi

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RouterConfig struct {
	RateLimitRPS   float64
	RateLimitBurst int
	CORSOrigins    []string
}

// NewRouter собирает gin.Engine со всеми маршрутами и middleware.
func NewRouter(h *Handler, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := gin.New()
	r.Use(
		RequestID(),
		Recovery(logger),
		AccessLog(logger),
		CORS(cfg.CORSOrigins),
	)

	r.GET("/healthz", h.Health)

	api := r.Group("/api/v1")
	api.Use(RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, logger))
	{
		api.POST("/estimates", h.Estimate)
		api.POST("/matches", h.Match)

		api.POST("/bookings", h.CreateBooking)
		api.GET("/bookings/:id", h.GetBooking)
		api.GET("/bookings/:id/events", h.History)
		api.POST("/bookings/:id/transitions", h.Transition)
		api.POST("/bookings/:id/claim", h.Claim)

		api.GET("/pool", h.Pool)

		api.GET("/providers/:id", h.GetProvider)
		api.PUT("/providers/:id", h.PutProvider)
	}
	return r
}
