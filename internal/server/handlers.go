package server

import (
	"net/http"

	"github.com/andresedu1996/agenda-backend/internal/booking"
	"github.com/andresedu1996/agenda-backend/internal/config"
	"github.com/andresedu1996/agenda-backend/internal/middleware"
	"github.com/andresedu1996/agenda-backend/internal/storage/models"
	apperrors "github.com/andresedu1996/agenda-backend/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handler exposes the booking service over HTTP.
type Handler struct {
	cfg *config.Config
	svc *booking.Service
}

// NewHandler creates the API handler.
func NewHandler(cfg *config.Config, svc *booking.Service) *Handler {
	return &Handler{cfg: cfg, svc: svc}
}

// respondError maps coded errors to HTTP statuses. Every failure gets a
// specific code and message; unexpected errors are logged and masked.
func respondError(c *gin.Context, err error) {
	appErr, ok := apperrors.GetError(err)
	if !ok {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("unhandled error")
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL",
			"error": "internal server error",
		})
		return
	}

	status := http.StatusInternalServerError
	switch appErr.Code {
	case apperrors.ErrProviderNotFound.Code,
		apperrors.ErrRequesterNotFound.Code,
		apperrors.ErrBookingNotFound.Code:
		status = http.StatusNotFound
	case apperrors.ErrSlotExhausted.Code,
		apperrors.ErrBookingNotPending.Code,
		apperrors.ErrQueueHeadChanged.Code:
		status = http.StatusConflict
	case apperrors.ErrDateNotPermitted.Code:
		status = http.StatusUnprocessableEntity
	case apperrors.ErrInvalidInput.Code,
		apperrors.ErrInvalidDate.Code,
		apperrors.ErrInvalidSlot.Code,
		apperrors.ErrInvalidPriority.Code:
		status = http.StatusBadRequest
	case apperrors.ErrProviderNotApproved.Code:
		status = http.StatusForbidden
	case apperrors.ErrUnauthorized.Code:
		status = http.StatusUnauthorized
	case apperrors.ErrStoreUnavailable.Code:
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"code":  appErr.Code,
		"error": appErr.Message,
	})
}

// ---- providers ----

type createProviderRequest struct {
	Name        string            `json:"name"`
	ServiceArea string            `json:"service_area"`
	Capacity    int               `json:"capacity"`
	OfferSlots  models.OfferSlots `json:"offer_slots"`
	Contact     string            `json:"contact"`
}

// CreateProvider handles POST /api/v1/providers.
func (h *Handler) CreateProvider(c *gin.Context) {
	var req createProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.ErrInvalidInput.WithError(err))
		return
	}

	provider, err := h.svc.CreateProvider(c.Request.Context(), &models.Provider{
		Name:        req.Name,
		ServiceArea: req.ServiceArea,
		Capacity:    req.Capacity,
		OfferSlots:  req.OfferSlots,
		Contact:     req.Contact,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, provider)
}

// ListProviders handles GET /api/v1/providers. Staff tokens also see
// unapproved providers.
func (h *Handler) ListProviders(c *gin.Context) {
	claims := middleware.ClaimsFromContext(c)
	includeUnapproved := claims != nil && claims.Role == middleware.RoleStaff

	providers, err := h.svc.ListProviders(c.Request.Context(), c.Query("area"), includeUnapproved)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, providers)
}

// GetProvider handles GET /api/v1/providers/:id.
func (h *Handler) GetProvider(c *gin.Context) {
	provider, err := h.svc.GetProvider(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, provider)
}

// ApproveProvider handles PATCH /api/v1/providers/:id/approve.
func (h *Handler) ApproveProvider(c *gin.Context) {
	claims := middleware.ClaimsFromContext(c)
	approvedBy := "staff"
	if claims != nil && claims.Subject != "" {
		approvedBy = claims.Subject
	}

	if err := h.svc.ApproveProvider(c.Request.Context(), c.Param("id"), approvedBy); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"approved": true})
}

// GetAvailability handles GET /api/v1/providers/:id/availability?date=.
func (h *Handler) GetAvailability(c *gin.Context) {
	date := c.Query("date")

	slots, err := h.svc.Availability(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		respondError(c, err)
		return
	}

	if slots == nil {
		slots = []booking.SlotAvailability{}
	}
	c.JSON(http.StatusOK, gin.H{
		"date":  date,
		"slots": slots,
	})
}

// ---- bookings ----

// CreateBooking handles POST /api/v1/bookings.
func (h *Handler) CreateBooking(c *gin.Context) {
	var req booking.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.ErrInvalidInput.WithError(err))
		return
	}

	b, err := h.svc.Book(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, b)
}

// GetBooking handles GET /api/v1/bookings/:id.
func (h *Handler) GetBooking(c *gin.Context) {
	b, err := h.svc.GetBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, b)
}

// GetPendingQueue handles GET /api/v1/bookings/pending.
func (h *Handler) GetPendingQueue(c *gin.Context) {
	queue, err := h.svc.PendingQueue(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	if queue == nil {
		queue = []*models.Booking{}
	}
	c.JSON(http.StatusOK, queue)
}

type advanceRequest struct {
	BookingID string `json:"booking_id"`
}

// AdvanceQueue handles POST /api/v1/bookings/advance: resolves the head of
// the priority queue. Callers may pin the head they saw via booking_id, so
// a double submit reports advanced=false and a head that moved underneath
// them is a conflict instead of resolving the wrong booking.
func (h *Handler) AdvanceQueue(c *gin.Context) {
	var req advanceRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, apperrors.ErrInvalidInput.WithError(err))
			return
		}
	}

	b, changed, err := h.svc.AdvanceNext(c.Request.Context(), req.BookingID)
	if err != nil {
		respondError(c, err)
		return
	}
	if b == nil {
		c.JSON(http.StatusOK, gin.H{"advanced": false, "reason": "queue is empty"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"advanced": changed, "booking": b})
}

// CancelBooking handles PATCH /api/v1/bookings/:id/cancel.
func (h *Handler) CancelBooking(c *gin.Context) {
	b, changed, err := h.svc.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"cancelled": changed, "booking": b})
}

type setPriorityRequest struct {
	Priority string `json:"priority"`
}

// SetBookingPriority handles PATCH /api/v1/bookings/:id/priority.
func (h *Handler) SetBookingPriority(c *gin.Context) {
	var req setPriorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.ErrInvalidInput.WithError(err))
		return
	}

	b, err := h.svc.SetPriority(c.Request.Context(), c.Param("id"), req.Priority)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, b)
}

// GetHistory handles GET /api/v1/bookings/history?priority=&q=.
func (h *Handler) GetHistory(c *gin.Context) {
	filter := booking.HistoryFilter{Query: c.Query("q")}
	if p := c.Query("priority"); p != "" {
		filter.Priority = models.NormalizePriority(p)
	}

	items, err := h.svc.History(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	if items == nil {
		items = []*models.Booking{}
	}
	c.JSON(http.StatusOK, items)
}
