package booking

import (
	"sort"

	"github.com/andresedu1996/agenda-backend/internal/storage/models"
)

// OrderPending returns the pending bookings in serve order: priority tier
// first (high before medium before low), creation time ascending within a
// tier, booking id as the final tiebreak so the order is total and
// deterministic. The input is not modified; resolved bookings are dropped.
func OrderPending(bookings []*models.Booking) []*models.Booking {
	queue := make([]*models.Booking, 0, len(bookings))
	for _, b := range bookings {
		if b.Status.Pending() {
			queue = append(queue, b)
		}
	}

	sort.SliceStable(queue, func(i, j int) bool {
		a, b := queue[i], queue[j]
		if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
			return ra < rb
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	return queue
}
