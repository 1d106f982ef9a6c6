package booking

import (
	"time"

	"github.com/andresedu1996/agenda-backend/internal/storage/models"
	apperrors "github.com/andresedu1996/agenda-backend/pkg/errors"
)

// SlotAvailability describes one candidate slot on a date.
type SlotAvailability struct {
	Slot      string `json:"slot"`
	Available bool   `json:"available"`
	Remaining int    `json:"remaining"`
}

// ResolveAvailability computes which of a provider's offer slots are still
// open on date, given the pending bookings for that provider and date. It
// is pure: callers re-run it whenever the booking set changes.
//
// A weekday the offer does not permit is reported as
// errors.ErrDateNotPermitted so callers can surface it distinctly from
// "permitted but fully booked". An empty offer yields an empty result, not
// an error.
func ResolveAvailability(offer models.OfferSlots, capacity int, date string, bookings []*models.Booking) ([]SlotAvailability, error) {
	if offer.Empty() {
		return nil, nil
	}

	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, apperrors.ErrInvalidDate.WithError(err)
	}

	if !offer.PermitsWeekday(day.Weekday()) {
		return nil, apperrors.ErrDateNotPermitted
	}

	if capacity <= 0 {
		capacity = 1
	}

	// Pending occupancy per slot. Only bookings that match the date and
	// still hold capacity count; the caller usually pre-filters but the
	// resolver does not rely on it.
	used := make(map[string]int)
	for _, b := range bookings {
		if b.Date == date && b.Status.Pending() {
			used[b.Slot]++
		}
	}

	candidates := offer.Candidates()
	result := make([]SlotAvailability, 0, len(candidates))
	for _, slot := range candidates {
		remaining := capacity - used[slot]
		if remaining < 0 {
			remaining = 0
		}
		result = append(result, SlotAvailability{
			Slot:      slot,
			Available: remaining > 0,
			Remaining: remaining,
		})
	}

	return result, nil
}

// slotOffered reports whether slot is one of the offer's candidates.
func slotOffered(offer models.OfferSlots, slot string) bool {
	for _, candidate := range offer.Candidates() {
		if candidate == slot {
			return true
		}
	}
	return false
}
