package server

import (
	"context"
	"net/http"
	"time"

	"github.com/andresedu1996/agenda-backend/internal/booking"
	"github.com/andresedu1996/agenda-backend/internal/config"
	"github.com/andresedu1996/agenda-backend/internal/middleware"
	"github.com/andresedu1996/agenda-backend/internal/storage"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Server is the HTTP front of the booking service.
type Server struct {
	httpServer  *http.Server
	cfg         *config.Config
	rateLimiter *middleware.RateLimiter
	handler     *Handler
	health      *HealthChecker
}

// New assembles the router and middleware stack.
func New(cfg *config.Config, store storage.Storage, svc *booking.Service, version string) *Server {
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:         cfg,
		rateLimiter: middleware.NewRateLimiter(100, time.Minute),
		handler:     NewHandler(cfg, svc),
		health:      NewHealthChecker(store, version),
	}

	s.httpServer = &http.Server{
		Addr:           ":" + cfg.Server.Port,
		Handler:        s.setupRoutes(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	return s
}

// setupRoutes wires middleware and routes.
func (s *Server) setupRoutes() http.Handler {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.Prometheus())
	router.Use(middleware.RateLimit(s.rateLimiter))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", s.health.HealthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/auth/token", s.handler.IssueToken)

		v1.GET("/providers", middleware.OptionalAuth(s.cfg), s.handler.ListProviders)
		v1.GET("/providers/:id", s.handler.GetProvider)
		v1.POST("/providers", s.handler.CreateProvider)
		v1.GET("/providers/:id/availability", s.handler.GetAvailability)

		v1.POST("/bookings", s.handler.CreateBooking)
		v1.GET("/bookings/pending", s.handler.GetPendingQueue)
		v1.GET("/bookings/history", s.handler.GetHistory)
		v1.GET("/bookings/:id", s.handler.GetBooking)
		v1.PATCH("/bookings/:id/cancel", s.handler.CancelBooking)

		staff := v1.Group("")
		staff.Use(middleware.Auth(s.cfg), middleware.RequireRole(middleware.RoleStaff))
		{
			staff.PATCH("/providers/:id/approve", s.handler.ApproveProvider)
			staff.POST("/bookings/advance", s.handler.AdvanceQueue)
			staff.PATCH("/bookings/:id/priority", s.handler.SetBookingPriority)
		}
	}

	return router
}

// Start runs the server until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		log.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.rateLimiter.Close()
	return s.httpServer.Shutdown(shutdownCtx)
}
