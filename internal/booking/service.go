package booking

import (
	"context"
	"time"

	"github.com/andresedu1996/agenda-backend/internal/scheduler"
	"github.com/andresedu1996/agenda-backend/internal/storage"
	"github.com/andresedu1996/agenda-backend/internal/storage/models"
	"github.com/andresedu1996/agenda-backend/internal/validation"
	apperrors "github.com/andresedu1996/agenda-backend/pkg/errors"
	"github.com/andresedu1996/agenda-backend/pkg/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Service owns the booking workflows: availability resolution, the
// transactional booking write with its denormalized follow-ups, the
// priority queue, and the attended history.
type Service struct {
	store        storage.Storage
	scheduler    scheduler.ReminderScheduler
	reminderLead time.Duration
}

// NewService creates the booking service.
func NewService(store storage.Storage, sched scheduler.ReminderScheduler, reminderLead time.Duration) *Service {
	return &Service{
		store:        store,
		scheduler:    sched,
		reminderLead: reminderLead,
	}
}

// Request carries the input of a booking attempt. RequesterID is an
// identifier lookup (exact id or exact name); when it misses and
// RequesterName is set, the requester is auto-provisioned.
type Request struct {
	ProviderID       string        `json:"provider_id"`
	RequesterID      string        `json:"requester_id"`
	RequesterName    string        `json:"requester_name"`
	RequesterContact string        `json:"requester_contact"`
	RequesterChatID  int64         `json:"requester_chat_id"`
	Date             string        `json:"date"`
	Slot             string        `json:"slot"`
	Priority         string        `json:"priority"`
	InitialStatus    models.Status `json:"initial_status"`
	Reason           string        `json:"reason"`
	Notes            string        `json:"notes"`
}

// Availability resolves the open slots of a provider on a date. The result
// is recomputed from the pending bookings on every call; nothing
// denormalized participates.
func (s *Service) Availability(ctx context.Context, providerID, date string) ([]SlotAvailability, error) {
	if _, err := validation.ValidateDate(date); err != nil {
		return nil, err
	}

	provider, err := s.store.GetProviderByID(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if !provider.Approved {
		return nil, apperrors.ErrProviderNotApproved
	}

	bookings, err := s.store.ListBookingsForProviderOnDate(ctx, providerID, date, models.PendingStatuses)
	if err != nil {
		return nil, err
	}

	return ResolveAvailability(provider.OfferSlots, provider.EffectiveCapacity(), date, bookings)
}

// Book validates the request, resolves or provisions the requester, and
// creates the booking through the transactional slot check. Denormalized
// requester fields and the reminder are sequenced after the commit and
// their failures never undo the booking.
func (s *Service) Book(ctx context.Context, req Request) (*models.Booking, error) {
	if _, err := validation.ValidateDate(req.Date); err != nil {
		return nil, err
	}
	if err := validation.ValidateSlotLabel(req.Slot); err != nil {
		return nil, err
	}
	if err := validation.ValidateRequired("provider_id", req.ProviderID); err != nil {
		return nil, err
	}

	priority := models.PriorityMedium
	if req.Priority != "" {
		p, err := validation.ValidatePriority(req.Priority)
		if err != nil {
			return nil, err
		}
		priority = p
	}

	status := models.StatusWaiting
	if req.InitialStatus != "" {
		if !req.InitialStatus.Pending() {
			return nil, apperrors.ErrInvalidInput.WithContext("initial status must be a pending status")
		}
		status = req.InitialStatus
	}

	provider, err := s.store.GetProviderByID(ctx, req.ProviderID)
	if err != nil {
		return nil, err
	}
	if !provider.Approved {
		return nil, apperrors.ErrProviderNotApproved
	}
	if !slotOffered(provider.OfferSlots, req.Slot) {
		return nil, apperrors.ErrInvalidSlot
	}

	// Weekday restrictions reject the date before any write is attempted.
	existing, err := s.store.ListBookingsForProviderOnDate(ctx, req.ProviderID, req.Date, models.PendingStatuses)
	if err != nil {
		return nil, err
	}
	if _, err := ResolveAvailability(provider.OfferSlots, provider.EffectiveCapacity(), req.Date, existing); err != nil {
		return nil, err
	}

	requester, err := s.resolveRequester(ctx, req)
	if err != nil {
		return nil, err
	}

	booking := &models.Booking{
		ID:            uuid.NewString(),
		ProviderID:    provider.ID,
		RequesterID:   requester.ID,
		ProviderName:  provider.Name,
		RequesterName: requester.Name,
		Date:          req.Date,
		Slot:          req.Slot,
		Priority:      priority,
		Status:        status,
		Reason:        req.Reason,
		Notes:         req.Notes,
		CreatedAt:     time.Now(),
	}

	// The availability snapshot above is advisory; the store re-checks
	// occupancy inside the transaction and this call is the only one that
	// decides the race.
	if err := s.store.CreateBookingIfSlotAvailable(ctx, booking, provider.EffectiveCapacity()); err != nil {
		return nil, err
	}

	metrics.RecordBookingCreated(provider.ServiceArea, string(priority))

	// Best-effort cache refresh; the booking row stays the source of truth.
	if err := s.store.UpdateRequesterDenormalized(ctx, requester.ID, true, booking.ID, booking.Date); err != nil {
		log.Warn().Err(err).Str("requester_id", requester.ID).Msg("failed to update requester denormalized fields")
	}

	s.scheduleReminder(ctx, booking, requester.ChatID)

	return booking, nil
}

// resolveRequester finds the requester by identifier or provisions one on
// a miss when the request carries a name.
func (s *Service) resolveRequester(ctx context.Context, req Request) (*models.Requester, error) {
	identifier := req.RequesterID
	if identifier == "" {
		identifier = req.RequesterName
	}
	if identifier == "" {
		return nil, apperrors.ErrInvalidInput.WithContext("requester_id or requester_name is required")
	}

	requester, err := s.store.FindRequesterByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if requester != nil {
		return requester, nil
	}

	if req.RequesterName == "" {
		return nil, apperrors.ErrRequesterNotFound
	}

	now := time.Now()
	requester = &models.Requester{
		ID:        uuid.NewString(),
		Name:      req.RequesterName,
		Contact:   req.RequesterContact,
		ChatID:    req.RequesterChatID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateRequester(ctx, requester); err != nil {
		return nil, err
	}

	metrics.RecordRequesterProvisioned()
	return requester, nil
}

// scheduleReminder plans the pre-slot reminder. Slot labels that do not
// parse as a clock time simply get no reminder.
func (s *Service) scheduleReminder(ctx context.Context, b *models.Booking, chatID int64) {
	start, err := b.SlotStart()
	if err != nil {
		log.Debug().Str("booking_id", b.ID).Str("slot", b.Slot).Msg("slot label has no parseable start time, skipping reminder")
		return
	}

	reminder := scheduler.Reminder{
		BookingID:     b.ID,
		ChatID:        chatID,
		RequesterName: b.RequesterName,
		ProviderName:  b.ProviderName,
		Date:          b.Date,
		Slot:          b.Slot,
	}

	if err := s.scheduler.Schedule(ctx, reminder, start.Add(-s.reminderLead)); err != nil {
		log.Warn().Err(err).Str("booking_id", b.ID).Msg("failed to schedule reminder")
	}
}

// PendingQueue returns the pending bookings in serve order.
func (s *Service) PendingQueue(ctx context.Context) ([]*models.Booking, error) {
	pending, err := s.store.ListBookingsByStatus(ctx, models.PendingStatuses)
	if err != nil {
		return nil, err
	}

	queue := OrderPending(pending)
	metrics.SetPendingBookings(float64(len(queue)))
	return queue, nil
}

// WatchQueue delivers the freshly ordered pending queue after every
// mutation until ctx is cancelled.
func (s *Service) WatchQueue(ctx context.Context) (<-chan []*models.Booking, error) {
	updates, err := s.store.WatchBookingsByStatus(ctx, models.PendingStatuses)
	if err != nil {
		return nil, err
	}

	out := make(chan []*models.Booking, 1)
	go func() {
		defer close(out)
		for set := range updates {
			queue := OrderPending(set)
			metrics.SetPendingBookings(float64(len(queue)))
			select {
			case out <- queue:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// AdvanceNext resolves the head of the priority queue. A non-empty
// expectedHeadID pins the head the caller saw: a double submit of an
// already-resolved head is reported as changed=false, and a head that
// moved underneath the caller returns ErrQueueHeadChanged instead of
// resolving a different booking. Returns nil when the queue is empty.
func (s *Service) AdvanceNext(ctx context.Context, expectedHeadID string) (*models.Booking, bool, error) {
	queue, err := s.PendingQueue(ctx)
	if err != nil {
		return nil, false, err
	}

	var head *models.Booking
	if len(queue) > 0 {
		head = queue[0]
	}

	if expectedHeadID != "" && (head == nil || head.ID != expectedHeadID) {
		booking, err := s.store.GetBookingByID(ctx, expectedHeadID)
		if err != nil {
			return nil, false, err
		}
		if booking.Status.Resolved() {
			return booking, false, nil
		}
		return nil, false, apperrors.ErrQueueHeadChanged
	}

	if head == nil {
		return nil, false, nil
	}
	return s.Advance(ctx, head.ID)
}

// Advance moves a booking to its resolved status (waiting becomes
// attended, scheduled becomes completed). Idempotent: a second invocation
// reports changed=false and leaves everything untouched.
func (s *Service) Advance(ctx context.Context, bookingID string) (*models.Booking, bool, error) {
	booking, err := s.store.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, false, err
	}

	to := booking.Status.ResolvedStatus()
	if booking.Status.Resolved() {
		return booking, false, nil
	}

	now := time.Now()
	changed, err := s.store.TransitionBookingStatus(ctx, bookingID, models.PendingStatuses, to, &now)
	if err != nil {
		return nil, false, err
	}
	if !changed {
		// Lost the race against another station; already resolved.
		booking, err := s.store.GetBookingByID(ctx, bookingID)
		return booking, false, err
	}

	metrics.RecordBookingResolved(string(to))
	s.afterResolution(ctx, booking)

	booking.Status = to
	booking.ResolvedAt = &now
	return booking, true, nil
}

// Cancel moves a pending booking to cancelled, freeing its slot.
// Idempotent like Advance.
func (s *Service) Cancel(ctx context.Context, bookingID string) (*models.Booking, bool, error) {
	booking, err := s.store.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, false, err
	}
	if booking.Status.Resolved() {
		return booking, false, nil
	}

	now := time.Now()
	changed, err := s.store.TransitionBookingStatus(ctx, bookingID, models.PendingStatuses, models.StatusCancelled, &now)
	if err != nil {
		return nil, false, err
	}
	if !changed {
		booking, err := s.store.GetBookingByID(ctx, bookingID)
		return booking, false, err
	}

	metrics.RecordBookingResolved(string(models.StatusCancelled))
	s.afterResolution(ctx, booking)

	booking.Status = models.StatusCancelled
	booking.ResolvedAt = &now
	return booking, true, nil
}

// afterResolution refreshes the requester's waiting flag from the bookings
// table and drops the reminder. Both are best-effort: the status
// transition has already committed.
func (s *Service) afterResolution(ctx context.Context, booking *models.Booking) {
	if err := s.scheduler.Cancel(ctx, booking.ID); err != nil {
		log.Warn().Err(err).Str("booking_id", booking.ID).Msg("failed to cancel reminder")
	}

	stillPending, err := s.store.ListBookingsForRequester(ctx, booking.RequesterID, models.PendingStatuses)
	if err != nil {
		log.Warn().Err(err).Str("requester_id", booking.RequesterID).Msg("failed to recompute waiting flag")
		return
	}

	waiting := len(stillPending) > 0
	if err := s.store.UpdateRequesterDenormalized(ctx, booking.RequesterID, waiting, booking.ID, booking.Date); err != nil {
		log.Warn().Err(err).Str("requester_id", booking.RequesterID).Msg("failed to update requester denormalized fields")
	}
}

// SetPriority changes a pending booking's priority tier. The queue view
// re-derives its order from the store, so no reordering happens here.
func (s *Service) SetPriority(ctx context.Context, bookingID, priority string) (*models.Booking, error) {
	p, err := validation.ValidatePriority(priority)
	if err != nil {
		return nil, err
	}

	booking, err := s.store.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.Status.Pending() {
		return nil, apperrors.ErrBookingNotPending
	}

	if err := s.store.UpdateBookingPriority(ctx, bookingID, p); err != nil {
		return nil, err
	}

	booking.Priority = p
	return booking, nil
}

// History returns resolved bookings, newest first, narrowed by the filter.
func (s *Service) History(ctx context.Context, filter HistoryFilter) ([]*models.Booking, error) {
	resolved, err := s.store.ListBookingsByStatus(ctx, models.HistoryStatuses)
	if err != nil {
		return nil, err
	}

	nav := NewHistoryNavigator()
	nav.Set(resolved, filter)
	return nav.Items(), nil
}

// RescheduleReminders re-plans reminders for all pending bookings, used on
// boot since the in-memory scheduler loses its timers on restart.
func (s *Service) RescheduleReminders(ctx context.Context) error {
	pending, err := s.store.ListBookingsByStatus(ctx, models.PendingStatuses)
	if err != nil {
		return err
	}

	for _, b := range pending {
		requester, err := s.store.GetRequesterByID(ctx, b.RequesterID)
		if err != nil {
			log.Warn().Err(err).Str("booking_id", b.ID).Msg("failed to load requester for reminder")
			continue
		}
		s.scheduleReminder(ctx, b, requester.ChatID)
	}

	return nil
}

// CreateProvider registers a provider. Self-registered providers start
// unapproved and stay invisible to availability and booking until a staff
// user approves them.
func (s *Service) CreateProvider(ctx context.Context, p *models.Provider) (*models.Provider, error) {
	if err := validation.ValidateRequired("name", p.Name); err != nil {
		return nil, err
	}
	if err := validation.ValidateRequired("service_area", p.ServiceArea); err != nil {
		return nil, err
	}

	now := time.Now()
	p.ID = uuid.NewString()
	p.Capacity = p.EffectiveCapacity()
	p.Approved = false
	p.ApprovedBy = ""
	p.ApprovedAt = nil
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := s.store.CreateProvider(ctx, p); err != nil {
		return nil, err
	}

	return p, nil
}

// ApproveProvider marks a provider approved, recording who and when.
func (s *Service) ApproveProvider(ctx context.Context, providerID, approvedBy string) error {
	return s.store.ApproveProvider(ctx, providerID, approvedBy, time.Now())
}

// ListProviders lists providers by service area; non-staff callers only
// see approved ones.
func (s *Service) ListProviders(ctx context.Context, serviceArea string, includeUnapproved bool) ([]*models.Provider, error) {
	return s.store.ListProviders(ctx, serviceArea, !includeUnapproved)
}

// GetProvider fetches one provider.
func (s *Service) GetProvider(ctx context.Context, id string) (*models.Provider, error) {
	return s.store.GetProviderByID(ctx, id)
}

// GetBooking fetches one booking.
func (s *Service) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return s.store.GetBookingByID(ctx, id)
}
