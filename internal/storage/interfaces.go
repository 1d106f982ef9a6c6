package storage

import (
	"context"
	"time"

	"github.com/andresedu1996/agenda-backend/internal/storage/models"
)

// ProviderRepository defines access to providers.
type ProviderRepository interface {
	CreateProvider(ctx context.Context, p *models.Provider) error
	GetProviderByID(ctx context.Context, id string) (*models.Provider, error)
	ListProviders(ctx context.Context, serviceArea string, approvedOnly bool) ([]*models.Provider, error)
	ApproveProvider(ctx context.Context, id, approvedBy string, approvedAt time.Time) error
}

// RequesterRepository defines access to requesters.
type RequesterRepository interface {
	CreateRequester(ctx context.Context, r *models.Requester) error
	GetRequesterByID(ctx context.Context, id string) (*models.Requester, error)
	FindRequesterByIdentifier(ctx context.Context, identifier string) (*models.Requester, error)
	UpdateRequesterDenormalized(ctx context.Context, id string, waiting bool, lastBookingID, lastBookingDate string) error
}

// BookingRepository defines access to bookings. CreateBookingIfSlotAvailable
// is the single transactional entry point for consuming slot capacity.
type BookingRepository interface {
	// CreateBookingIfSlotAvailable re-checks occupancy of the booking's
	// (provider, date, slot) inside a transaction and inserts only while
	// the count of pending bookings is below capacity. Returns
	// errors.ErrSlotExhausted when the race is lost; nothing is written
	// in that case.
	CreateBookingIfSlotAvailable(ctx context.Context, b *models.Booking, capacity int) error

	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	ListBookingsForProviderOnDate(ctx context.Context, providerID, date string, statuses []models.Status) ([]*models.Booking, error)
	ListBookingsByStatus(ctx context.Context, statuses []models.Status) ([]*models.Booking, error)
	ListBookingsForRequester(ctx context.Context, requesterID string, statuses []models.Status) ([]*models.Booking, error)

	// TransitionBookingStatus moves the booking to a new status only if
	// its current status is in from, and reports whether a row changed.
	// A false result with a nil error means the transition already
	// happened, which keeps double-invocation idempotent.
	TransitionBookingStatus(ctx context.Context, id string, from []models.Status, to models.Status, resolvedAt *time.Time) (bool, error)

	UpdateBookingPriority(ctx context.Context, id string, priority models.Priority) error

	// WatchBookingsByStatus delivers the full matching set once
	// immediately and again after every booking mutation, until ctx is
	// cancelled. Consumers must treat each delivery as a replacement,
	// never as a patch.
	WatchBookingsByStatus(ctx context.Context, statuses []models.Status) (<-chan []*models.Booking, error)
}

// Storage aggregates all repositories behind a single handle.
type Storage interface {
	ProviderRepository
	RequesterRepository
	BookingRepository
	Close() error
	Ping(ctx context.Context) error
}
