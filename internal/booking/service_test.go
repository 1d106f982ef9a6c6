package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/andresedu1996/agenda-backend/internal/scheduler"
	"github.com/andresedu1996/agenda-backend/internal/storage/models"
	apperrors "github.com/andresedu1996/agenda-backend/pkg/errors"
)

// fakeStore is an in-memory Storage used to exercise the service without a
// database. Slot capacity checks mirror the SQLite implementation.
type fakeStore struct {
	mu         sync.Mutex
	providers  map[string]*models.Provider
	requesters map[string]*models.Requester
	bookings   map[string]*models.Booking
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		providers:  make(map[string]*models.Provider),
		requesters: make(map[string]*models.Requester),
		bookings:   make(map[string]*models.Booking),
	}
}

func (f *fakeStore) CreateProvider(ctx context.Context, p *models.Provider) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.providers[p.ID] = p
	return nil
}

func (f *fakeStore) GetProviderByID(ctx context.Context, id string) (*models.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.providers[id]
	if !ok {
		return nil, apperrors.ErrProviderNotFound
	}
	return p, nil
}

func (f *fakeStore) ListProviders(ctx context.Context, serviceArea string, approvedOnly bool) ([]*models.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Provider
	for _, p := range f.providers {
		if serviceArea != "" && p.ServiceArea != serviceArea {
			continue
		}
		if approvedOnly && !p.Approved {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeStore) ApproveProvider(ctx context.Context, id, approvedBy string, approvedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.providers[id]
	if !ok {
		return apperrors.ErrProviderNotFound
	}
	p.Approved = true
	p.ApprovedBy = approvedBy
	p.ApprovedAt = &approvedAt
	return nil
}

func (f *fakeStore) CreateRequester(ctx context.Context, r *models.Requester) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requesters[r.ID] = r
	return nil
}

func (f *fakeStore) GetRequesterByID(ctx context.Context, id string) (*models.Requester, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requesters[id]
	if !ok {
		return nil, apperrors.ErrRequesterNotFound
	}
	return r, nil
}

func (f *fakeStore) FindRequesterByIdentifier(ctx context.Context, identifier string) (*models.Requester, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.requesters[identifier]; ok {
		return r, nil
	}
	for _, r := range f.requesters {
		if r.Name == identifier {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) UpdateRequesterDenormalized(ctx context.Context, id string, waiting bool, lastBookingID, lastBookingDate string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requesters[id]
	if !ok {
		return apperrors.ErrRequesterNotFound
	}
	r.Waiting = waiting
	r.LastBookingID = lastBookingID
	r.LastBookingDate = lastBookingDate
	return nil
}

func (f *fakeStore) CreateBookingIfSlotAvailable(ctx context.Context, b *models.Booking, capacity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if capacity <= 0 {
		capacity = 1
	}
	used := 0
	for _, existing := range f.bookings {
		if existing.ProviderID == b.ProviderID && existing.Date == b.Date &&
			existing.Slot == b.Slot && existing.Status.Pending() {
			used++
		}
	}
	if used >= capacity {
		return apperrors.ErrSlotExhausted
	}
	f.bookings[b.ID] = b
	return nil
}

func (f *fakeStore) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return nil, apperrors.ErrBookingNotFound
	}
	clone := *b
	return &clone, nil
}

func (f *fakeStore) listBookings(match func(*models.Booking) bool) []*models.Booking {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Booking
	for _, b := range f.bookings {
		if match(b) {
			clone := *b
			out = append(out, &clone)
		}
	}
	return out
}

func statusIn(s models.Status, statuses []models.Status) bool {
	for _, st := range statuses {
		if s == st {
			return true
		}
	}
	return false
}

func (f *fakeStore) ListBookingsForProviderOnDate(ctx context.Context, providerID, date string, statuses []models.Status) ([]*models.Booking, error) {
	return f.listBookings(func(b *models.Booking) bool {
		return b.ProviderID == providerID && b.Date == date && statusIn(b.Status, statuses)
	}), nil
}

func (f *fakeStore) ListBookingsByStatus(ctx context.Context, statuses []models.Status) ([]*models.Booking, error) {
	return f.listBookings(func(b *models.Booking) bool {
		return statusIn(b.Status, statuses)
	}), nil
}

func (f *fakeStore) ListBookingsForRequester(ctx context.Context, requesterID string, statuses []models.Status) ([]*models.Booking, error) {
	return f.listBookings(func(b *models.Booking) bool {
		return b.RequesterID == requesterID && statusIn(b.Status, statuses)
	}), nil
}

func (f *fakeStore) TransitionBookingStatus(ctx context.Context, id string, from []models.Status, to models.Status, resolvedAt *time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return false, apperrors.ErrBookingNotFound
	}
	if !statusIn(b.Status, from) {
		return false, nil
	}
	b.Status = to
	b.ResolvedAt = resolvedAt
	return true, nil
}

func (f *fakeStore) UpdateBookingPriority(ctx context.Context, id string, priority models.Priority) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return apperrors.ErrBookingNotFound
	}
	b.Priority = priority
	return nil
}

func (f *fakeStore) WatchBookingsByStatus(ctx context.Context, statuses []models.Status) (<-chan []*models.Booking, error) {
	set, _ := f.ListBookingsByStatus(ctx, statuses)
	out := make(chan []*models.Booking, 1)
	out <- set
	go func() {
		<-ctx.Done()
		close(out)
	}()
	return out, nil
}

func (f *fakeStore) Close() error                   { return nil }
func (f *fakeStore) Ping(ctx context.Context) error { return nil }

// fakeScheduler records Schedule and Cancel calls.
type fakeScheduler struct {
	mu        sync.Mutex
	scheduled map[string]time.Time
	cancelled []string
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{scheduled: make(map[string]time.Time)}
}

func (f *fakeScheduler) Schedule(ctx context.Context, r scheduler.Reminder, notifyAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled[r.BookingID] = notifyAt
	return nil
}

func (f *fakeScheduler) Cancel(ctx context.Context, bookingID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.scheduled, bookingID)
	f.cancelled = append(f.cancelled, bookingID)
	return nil
}

func (f *fakeScheduler) Stop() error { return nil }

func (f *fakeScheduler) scheduledFor(bookingID string) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	at, ok := f.scheduled[bookingID]
	return at, ok
}

func newTestService(t *testing.T) (*Service, *fakeStore, *fakeScheduler) {
	t.Helper()
	store := newFakeStore()
	sched := newFakeScheduler()
	return NewService(store, sched, 15*time.Minute), store, sched
}

func seedProvider(t *testing.T, store *fakeStore, approved bool) *models.Provider {
	t.Helper()
	p := &models.Provider{
		ID:          "prov-1",
		Name:        "Dr. Garcia",
		ServiceArea: "general",
		Capacity:    1,
		OfferSlots:  models.OfferSlots{Slots: []string{"09:00", "10:00"}},
		Approved:    approved,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := store.CreateProvider(context.Background(), p); err != nil {
		t.Fatalf("Failed to seed provider: %v", err)
	}
	return p
}

func TestBook_ProvisionsRequesterAndSchedulesReminder(t *testing.T) {
	svc, store, sched := newTestService(t)
	seedProvider(t, store, true)
	ctx := context.Background()

	b, err := svc.Book(ctx, Request{
		ProviderID:    "prov-1",
		RequesterName: "Ana Lopez",
		Date:          "2026-09-07",
		Slot:          "09:00",
		Priority:      "high",
	})
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	if b.Status != models.StatusWaiting {
		t.Errorf("Expected waiting status, got %s", b.Status)
	}
	if b.Priority != models.PriorityHigh {
		t.Errorf("Expected high priority, got %s", b.Priority)
	}

	// The requester was auto-provisioned and its denormalized fields set.
	requester, err := store.GetRequesterByID(ctx, b.RequesterID)
	if err != nil {
		t.Fatalf("Expected requester to exist: %v", err)
	}
	if !requester.Waiting || requester.LastBookingID != b.ID {
		t.Errorf("Expected waiting requester with last booking %s, got %+v", b.ID, requester)
	}

	// Reminder lands reminderLead before the slot start.
	at, ok := sched.scheduledFor(b.ID)
	if !ok {
		t.Fatal("Expected a reminder to be scheduled")
	}
	start, _ := b.SlotStart()
	if !at.Equal(start.Add(-15 * time.Minute)) {
		t.Errorf("Expected reminder at %v, got %v", start.Add(-15*time.Minute), at)
	}
}

func TestBook_ReusesExistingRequesterByName(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedProvider(t, store, true)
	ctx := context.Background()

	existing := &models.Requester{ID: "req-1", Name: "Ana Lopez"}
	if err := store.CreateRequester(ctx, existing); err != nil {
		t.Fatalf("Failed to seed requester: %v", err)
	}

	b, err := svc.Book(ctx, Request{
		ProviderID:    "prov-1",
		RequesterName: "Ana Lopez",
		Date:          "2026-09-07",
		Slot:          "09:00",
	})
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if b.RequesterID != "req-1" {
		t.Errorf("Expected existing requester req-1, got %s", b.RequesterID)
	}
}

func TestBook_RequesterIDMissWithoutName(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedProvider(t, store, true)

	_, err := svc.Book(context.Background(), Request{
		ProviderID:  "prov-1",
		RequesterID: "no-such-requester",
		Date:        "2026-09-07",
		Slot:        "09:00",
	})
	if !errors.Is(err, apperrors.ErrRequesterNotFound) {
		t.Fatalf("Expected ErrRequesterNotFound, got %v", err)
	}
}

func TestBook_Validation(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedProvider(t, store, true)
	ctx := context.Background()

	cases := []struct {
		name string
		req  Request
		want *apperrors.Error
	}{
		{"bad date", Request{ProviderID: "prov-1", RequesterName: "a", Date: "nope", Slot: "09:00"}, apperrors.ErrInvalidDate},
		{"slot not offered", Request{ProviderID: "prov-1", RequesterName: "a", Date: "2026-09-07", Slot: "23:00"}, apperrors.ErrInvalidSlot},
		{"unknown priority", Request{ProviderID: "prov-1", RequesterName: "a", Date: "2026-09-07", Slot: "09:00", Priority: "urgent"}, apperrors.ErrInvalidPriority},
		{"missing provider", Request{ProviderID: "no-such", RequesterName: "a", Date: "2026-09-07", Slot: "09:00"}, apperrors.ErrProviderNotFound},
		{"resolved initial status", Request{ProviderID: "prov-1", RequesterName: "a", Date: "2026-09-07", Slot: "09:00", InitialStatus: models.StatusAttended}, apperrors.ErrInvalidInput},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Book(ctx, tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestBook_UnapprovedProvider(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedProvider(t, store, false)

	_, err := svc.Book(context.Background(), Request{
		ProviderID:    "prov-1",
		RequesterName: "Ana Lopez",
		Date:          "2026-09-07",
		Slot:          "09:00",
	})
	if !errors.Is(err, apperrors.ErrProviderNotApproved) {
		t.Fatalf("Expected ErrProviderNotApproved, got %v", err)
	}

	if _, err := svc.Availability(context.Background(), "prov-1", "2026-09-07"); !errors.Is(err, apperrors.ErrProviderNotApproved) {
		t.Fatalf("Expected ErrProviderNotApproved from Availability, got %v", err)
	}
}

func TestBook_WeekdayNotPermitted(t *testing.T) {
	svc, store, _ := newTestService(t)
	p := seedProvider(t, store, true)
	p.OfferSlots = models.OfferSlots{
		RecurringTime:   "09:00",
		AllowedWeekdays: []time.Weekday{time.Monday, time.Wednesday},
	}

	// 2026-09-08 is a Tuesday
	_, err := svc.Book(context.Background(), Request{
		ProviderID:    "prov-1",
		RequesterName: "Ana Lopez",
		Date:          "2026-09-08",
		Slot:          "09:00",
	})
	if !errors.Is(err, apperrors.ErrDateNotPermitted) {
		t.Fatalf("Expected ErrDateNotPermitted, got %v", err)
	}
}

func TestBook_SlotExhausted(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedProvider(t, store, true)
	ctx := context.Background()

	req := Request{
		ProviderID:    "prov-1",
		RequesterName: "Ana Lopez",
		Date:          "2026-09-07",
		Slot:          "09:00",
	}
	if _, err := svc.Book(ctx, req); err != nil {
		t.Fatalf("First booking failed: %v", err)
	}

	req.RequesterName = "Carlos Ruiz"
	_, err := svc.Book(ctx, req)
	if !errors.Is(err, apperrors.ErrSlotExhausted) {
		t.Fatalf("Expected ErrSlotExhausted, got %v", err)
	}

	// The losing attempt leaves the availability view unchanged.
	slots, err := svc.Availability(ctx, "prov-1", "2026-09-07")
	if err != nil {
		t.Fatalf("Availability failed: %v", err)
	}
	for _, s := range slots {
		if s.Slot == "09:00" && s.Available {
			t.Error("Expected 09:00 to stay unavailable")
		}
		if s.Slot == "10:00" && !s.Available {
			t.Error("Expected 10:00 to stay available")
		}
	}
}

func TestAdvance_Idempotent(t *testing.T) {
	svc, store, sched := newTestService(t)
	seedProvider(t, store, true)
	ctx := context.Background()

	b, err := svc.Book(ctx, Request{
		ProviderID:    "prov-1",
		RequesterName: "Ana Lopez",
		Date:          "2026-09-07",
		Slot:          "09:00",
	})
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	advanced, changed, err := svc.Advance(ctx, b.ID)
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if !changed {
		t.Error("Expected first advance to change the booking")
	}
	if advanced.Status != models.StatusAttended {
		t.Errorf("Expected attended, got %s", advanced.Status)
	}
	if advanced.ResolvedAt == nil {
		t.Error("Expected resolved_at to be set")
	}

	// Reminder is dropped and the requester is no longer waiting.
	if _, ok := sched.scheduledFor(b.ID); ok {
		t.Error("Expected reminder to be cancelled after advance")
	}
	requester, _ := store.GetRequesterByID(ctx, b.RequesterID)
	if requester.Waiting {
		t.Error("Expected requester waiting flag cleared")
	}

	// Second advance reports no change and leaves the booking alone.
	again, changed, err := svc.Advance(ctx, b.ID)
	if err != nil {
		t.Fatalf("Second advance failed: %v", err)
	}
	if changed {
		t.Error("Expected second advance to be a no-op")
	}
	if again.Status != models.StatusAttended {
		t.Errorf("Expected attended after second advance, got %s", again.Status)
	}
}

func TestAdvance_ScheduledBecomesCompleted(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedProvider(t, store, true)
	ctx := context.Background()

	b, err := svc.Book(ctx, Request{
		ProviderID:    "prov-1",
		RequesterName: "Ana Lopez",
		Date:          "2026-09-07",
		Slot:          "09:00",
		InitialStatus: models.StatusScheduled,
	})
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	advanced, _, err := svc.Advance(ctx, b.ID)
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if advanced.Status != models.StatusCompleted {
		t.Errorf("Expected completed, got %s", advanced.Status)
	}
}

func TestAdvanceNext_PicksQueueHead(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedProvider(t, store, true)
	ctx := context.Background()

	low, err := svc.Book(ctx, Request{
		ProviderID: "prov-1", RequesterName: "Ana", Date: "2026-09-07", Slot: "09:00", Priority: "low",
	})
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	high, err := svc.Book(ctx, Request{
		ProviderID: "prov-1", RequesterName: "Carlos", Date: "2026-09-07", Slot: "10:00", Priority: "high",
	})
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	advanced, changed, err := svc.AdvanceNext(ctx, "")
	if err != nil {
		t.Fatalf("AdvanceNext failed: %v", err)
	}
	if !changed || advanced.ID != high.ID {
		t.Errorf("Expected high-priority head %s, got %s", high.ID, advanced.ID)
	}

	advanced, changed, err = svc.AdvanceNext(ctx, "")
	if err != nil {
		t.Fatalf("AdvanceNext failed: %v", err)
	}
	if !changed || advanced.ID != low.ID {
		t.Errorf("Expected remaining booking %s, got %s", low.ID, advanced.ID)
	}

	// Empty queue yields neither a booking nor an error.
	advanced, _, err = svc.AdvanceNext(ctx, "")
	if err != nil {
		t.Fatalf("AdvanceNext on empty queue failed: %v", err)
	}
	if advanced != nil {
		t.Errorf("Expected nil on empty queue, got %+v", advanced)
	}
}

func TestAdvanceNext_PinnedHeadDoubleInvocation(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedProvider(t, store, true)
	ctx := context.Background()

	first, err := svc.Book(ctx, Request{
		ProviderID: "prov-1", RequesterName: "Ana", Date: "2026-09-07", Slot: "09:00", Priority: "high",
	})
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	second, err := svc.Book(ctx, Request{
		ProviderID: "prov-1", RequesterName: "Carlos", Date: "2026-09-07", Slot: "10:00", Priority: "low",
	})
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	advanced, changed, err := svc.AdvanceNext(ctx, first.ID)
	if err != nil {
		t.Fatalf("AdvanceNext failed: %v", err)
	}
	if !changed || advanced.ID != first.ID {
		t.Fatalf("Expected pinned head to be resolved, got changed=%v id=%s", changed, advanced.ID)
	}

	// The double submit resolves nothing further: the second booking must
	// stay pending and the call reports no change.
	again, changed, err := svc.AdvanceNext(ctx, first.ID)
	if err != nil {
		t.Fatalf("Second AdvanceNext failed: %v", err)
	}
	if changed {
		t.Error("Expected double invocation to report no change")
	}
	if again.ID != first.ID || !again.Status.Resolved() {
		t.Errorf("Expected the already-resolved head back, got %+v", again)
	}

	remaining, err := store.GetBookingByID(ctx, second.ID)
	if err != nil {
		t.Fatalf("Failed to get second booking: %v", err)
	}
	if !remaining.Status.Pending() {
		t.Errorf("Expected second booking to stay pending, got %s", remaining.Status)
	}
}

func TestAdvanceNext_HeadChangedConflict(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedProvider(t, store, true)
	ctx := context.Background()

	if _, err := svc.Book(ctx, Request{
		ProviderID: "prov-1", RequesterName: "Ana", Date: "2026-09-07", Slot: "09:00", Priority: "high",
	}); err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	stale, err := svc.Book(ctx, Request{
		ProviderID: "prov-1", RequesterName: "Carlos", Date: "2026-09-07", Slot: "10:00", Priority: "low",
	})
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	// Pinning a pending booking that is not the current head must not
	// resolve anything.
	_, _, err = svc.AdvanceNext(ctx, stale.ID)
	if !errors.Is(err, apperrors.ErrQueueHeadChanged) {
		t.Fatalf("Expected ErrQueueHeadChanged, got %v", err)
	}

	got, err := store.GetBookingByID(ctx, stale.ID)
	if err != nil {
		t.Fatalf("Failed to get booking: %v", err)
	}
	if !got.Status.Pending() {
		t.Errorf("Expected pinned booking untouched, got %s", got.Status)
	}
}

func TestCancel_FreesSlotAndIsIdempotent(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedProvider(t, store, true)
	ctx := context.Background()

	b, err := svc.Book(ctx, Request{
		ProviderID: "prov-1", RequesterName: "Ana", Date: "2026-09-07", Slot: "09:00",
	})
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	cancelled, changed, err := svc.Cancel(ctx, b.ID)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if !changed || cancelled.Status != models.StatusCancelled {
		t.Fatalf("Expected cancelled booking, got changed=%v status=%s", changed, cancelled.Status)
	}

	_, changed, err = svc.Cancel(ctx, b.ID)
	if err != nil {
		t.Fatalf("Second cancel failed: %v", err)
	}
	if changed {
		t.Error("Expected second cancel to be a no-op")
	}

	// The slot is bookable again.
	if _, err := svc.Book(ctx, Request{
		ProviderID: "prov-1", RequesterName: "Carlos", Date: "2026-09-07", Slot: "09:00",
	}); err != nil {
		t.Fatalf("Expected slot to be free after cancel, got %v", err)
	}
}

func TestSetPriority(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedProvider(t, store, true)
	ctx := context.Background()

	b, err := svc.Book(ctx, Request{
		ProviderID: "prov-1", RequesterName: "Ana", Date: "2026-09-07", Slot: "09:00", Priority: "low",
	})
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	updated, err := svc.SetPriority(ctx, b.ID, "HIGH")
	if err != nil {
		t.Fatalf("SetPriority failed: %v", err)
	}
	if updated.Priority != models.PriorityHigh {
		t.Errorf("Expected high priority, got %s", updated.Priority)
	}

	if _, err := svc.SetPriority(ctx, b.ID, "urgent"); !errors.Is(err, apperrors.ErrInvalidPriority) {
		t.Fatalf("Expected ErrInvalidPriority, got %v", err)
	}

	if _, _, err := svc.Advance(ctx, b.ID); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if _, err := svc.SetPriority(ctx, b.ID, "low"); !errors.Is(err, apperrors.ErrBookingNotPending) {
		t.Fatalf("Expected ErrBookingNotPending on resolved booking, got %v", err)
	}
}

func TestHistory_ExcludesCancelledAndPending(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedProvider(t, store, true)
	ctx := context.Background()

	attended, err := svc.Book(ctx, Request{
		ProviderID: "prov-1", RequesterName: "Ana", Date: "2026-09-07", Slot: "09:00",
	})
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	cancelled, err := svc.Book(ctx, Request{
		ProviderID: "prov-1", RequesterName: "Carlos", Date: "2026-09-07", Slot: "10:00",
	})
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	if _, _, err := svc.Advance(ctx, attended.ID); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if _, _, err := svc.Cancel(ctx, cancelled.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	items, err := svc.History(ctx, HistoryFilter{})
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(items) != 1 || items[0].ID != attended.ID {
		t.Fatalf("Expected only the attended booking in history, got %v", queueIDs(items))
	}
}

func TestWatchQueue_DeliversOrderedSet(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedProvider(t, store, true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := svc.Book(ctx, Request{
		ProviderID: "prov-1", RequesterName: "Ana", Date: "2026-09-07", Slot: "09:00", Priority: "low",
	}); err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	high, err := svc.Book(ctx, Request{
		ProviderID: "prov-1", RequesterName: "Carlos", Date: "2026-09-07", Slot: "10:00", Priority: "high",
	})
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	updates, err := svc.WatchQueue(ctx)
	if err != nil {
		t.Fatalf("WatchQueue failed: %v", err)
	}

	select {
	case queue := <-updates:
		if len(queue) != 2 || queue[0].ID != high.ID {
			t.Errorf("Expected high-priority booking at the head, got %v", queueIDs(queue))
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for the initial queue delivery")
	}
}

func TestRescheduleReminders(t *testing.T) {
	svc, store, sched := newTestService(t)
	seedProvider(t, store, true)
	ctx := context.Background()

	b, err := svc.Book(ctx, Request{
		ProviderID: "prov-1", RequesterName: "Ana", Date: "2026-09-07", Slot: "09:00",
	})
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	// Simulate a restart: the scheduler forgot everything.
	if err := sched.Cancel(ctx, b.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	if err := svc.RescheduleReminders(ctx); err != nil {
		t.Fatalf("RescheduleReminders failed: %v", err)
	}
	if _, ok := sched.scheduledFor(b.ID); !ok {
		t.Error("Expected the pending booking's reminder to be re-planned")
	}
}

func TestCreateProvider_StartsUnapproved(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.CreateProvider(ctx, &models.Provider{
		Name:        "Dr. Mejia",
		ServiceArea: "pediatrics",
		Approved:    true, // callers cannot self-approve
		ApprovedBy:  "me",
	})
	if err != nil {
		t.Fatalf("CreateProvider failed: %v", err)
	}
	if p.Approved || p.ApprovedBy != "" {
		t.Errorf("Expected unapproved provider, got %+v", p)
	}
	if p.ID == "" {
		t.Error("Expected generated provider id")
	}
	if p.Capacity != 1 {
		t.Errorf("Expected default capacity 1, got %d", p.Capacity)
	}

	if _, err := svc.CreateProvider(ctx, &models.Provider{Name: "", ServiceArea: "x"}); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("Expected ErrInvalidInput for missing name, got %v", err)
	}
}
