package models

import (
	"strings"
	"time"
)

// Priority is the urgency tier of a booking.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank returns the fixed sort rank of a priority: high=0 < medium=1 < low=2.
// Unknown values rank as medium, matching how legacy records are treated.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// Valid reports whether p is one of the three canonical tiers.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// NormalizePriority maps free-form input to a canonical tier. Empty or
// unrecognized input normalizes to medium.
func NormalizePriority(s string) Priority {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if p.Valid() {
		return p
	}
	return PriorityMedium
}

// Status is the lifecycle state of a booking. Two vocabularies coexist:
// waiting/attended for appointment-style bookings and
// scheduled/completed/cancelled for ride-style bookings.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusScheduled Status = "scheduled"
	StatusAttended  Status = "attended"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Pending reports whether the booking still occupies its slot and belongs
// in the priority queue.
func (s Status) Pending() bool {
	return s == StatusWaiting || s == StatusScheduled
}

// Resolved reports whether the booking reached a terminal state.
func (s Status) Resolved() bool {
	return s == StatusAttended || s == StatusCompleted || s == StatusCancelled
}

// ResolvedStatus returns the terminal state Advance moves s to.
func (s Status) ResolvedStatus() Status {
	if s == StatusScheduled {
		return StatusCompleted
	}
	return StatusAttended
}

// PendingStatuses are the statuses that consume slot capacity.
var PendingStatuses = []Status{StatusWaiting, StatusScheduled}

// HistoryStatuses are the statuses shown in the attended history.
var HistoryStatuses = []Status{StatusAttended, StatusCompleted}

// OfferSlots is a provider's declared offer: either an explicit ordered
// list of slot labels, or a single recurring time restricted to certain
// weekdays. When both are set the explicit list wins.
type OfferSlots struct {
	Slots           []string       `json:"slots,omitempty"`
	RecurringTime   string         `json:"recurring_time,omitempty"`
	AllowedWeekdays []time.Weekday `json:"allowed_weekdays,omitempty"`
}

// Empty reports whether the offer defines no candidate slots at all.
func (o OfferSlots) Empty() bool {
	return len(o.Slots) == 0 && strings.TrimSpace(o.RecurringTime) == ""
}

// Candidates returns the ordered slot labels the offer generates for any
// permitted date.
func (o OfferSlots) Candidates() []string {
	if len(o.Slots) > 0 {
		return o.Slots
	}
	if t := strings.TrimSpace(o.RecurringTime); t != "" {
		return []string{t}
	}
	return nil
}

// PermitsWeekday reports whether the offer admits the given weekday. An
// empty restriction list permits every day.
func (o OfferSlots) PermitsWeekday(d time.Weekday) bool {
	if len(o.AllowedWeekdays) == 0 {
		return true
	}
	for _, allowed := range o.AllowedWeekdays {
		if allowed == d {
			return true
		}
	}
	return false
}

// Provider offers bookable slots: a doctor with a fixed schedule or a
// driver with seats and a departure time.
type Provider struct {
	ID          string     `json:"id" db:"id"`
	Name        string     `json:"name" db:"name"`
	ServiceArea string     `json:"service_area" db:"service_area"`
	Capacity    int        `json:"capacity" db:"capacity"`
	OfferSlots  OfferSlots `json:"offer_slots" db:"offer_slots"`
	Contact     string     `json:"contact" db:"contact"`
	Approved    bool       `json:"approved" db:"approved"`
	ApprovedBy  string     `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty" db:"approved_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// EffectiveCapacity returns the slot capacity, defaulting to 1 when unset.
func (p *Provider) EffectiveCapacity() int {
	if p.Capacity <= 0 {
		return 1
	}
	return p.Capacity
}

// Requester books slots: a patient or a passenger. Waiting and the
// last-booking fields are denormalized conveniences; the bookings table is
// the source of truth.
type Requester struct {
	ID              string    `json:"id" db:"id"`
	Name            string    `json:"name" db:"name"`
	Contact         string    `json:"contact" db:"contact"`
	ChatID          int64     `json:"chat_id,omitempty" db:"chat_id"`
	Waiting         bool      `json:"waiting" db:"waiting"`
	LastBookingID   string    `json:"last_booking_id,omitempty" db:"last_booking_id"`
	LastBookingDate string    `json:"last_booking_date,omitempty" db:"last_booking_date"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// Booking occupies one unit of a provider's capacity at a (date, slot).
// Provider and requester names are denormalized for display.
type Booking struct {
	ID            string     `json:"id" db:"id"`
	ProviderID    string     `json:"provider_id" db:"provider_id"`
	RequesterID   string     `json:"requester_id" db:"requester_id"`
	ProviderName  string     `json:"provider_name" db:"provider_name"`
	RequesterName string     `json:"requester_name" db:"requester_name"`
	Date          string     `json:"date" db:"date"`
	Slot          string     `json:"slot" db:"slot"`
	Priority      Priority   `json:"priority" db:"priority"`
	Status        Status     `json:"status" db:"status"`
	Reason        string     `json:"reason,omitempty" db:"reason"`
	Notes         string     `json:"notes,omitempty" db:"notes"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
}

// SlotStart parses the starting time of the booking's slot label. Labels
// are either "15:04" or "15:04 - 16:04" ranges.
func (b *Booking) SlotStart() (time.Time, error) {
	label := b.Slot
	if idx := strings.Index(label, "-"); idx >= 0 {
		label = label[:idx]
	}
	label = strings.TrimSpace(label)

	return time.ParseInLocation("2006-01-02 15:04", b.Date+" "+label, time.Local)
}

// ResolutionTime returns the timestamp the history is ordered by:
// resolution time when present, creation time otherwise.
func (b *Booking) ResolutionTime() time.Time {
	if b.ResolvedAt != nil {
		return *b.ResolvedAt
	}
	return b.CreatedAt
}
