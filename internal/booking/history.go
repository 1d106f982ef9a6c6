package booking

import (
	"sort"
	"strings"

	"github.com/andresedu1996/agenda-backend/internal/storage/models"
)

// HistoryFilter narrows the history before navigation. Query matches
// case-insensitively against requester name, provider name and reason;
// Priority empty means all tiers.
type HistoryFilter struct {
	Query    string
	Priority models.Priority
}

// matches reports whether b passes the filter.
func (f HistoryFilter) matches(b *models.Booking) bool {
	if f.Priority != "" && models.NormalizePriority(string(b.Priority)) != f.Priority {
		return false
	}

	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(b.RequesterName), q) ||
		strings.Contains(strings.ToLower(b.ProviderName), q) ||
		strings.Contains(strings.ToLower(b.Reason), q)
}

// SortResolved orders resolved bookings newest first by resolution time,
// falling back to creation time, with booking id as the deterministic
// tiebreak. Returns a new slice.
func SortResolved(bookings []*models.Booking) []*models.Booking {
	sorted := make([]*models.Booking, len(bookings))
	copy(sorted, bookings)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		ta, tb := a.ResolutionTime(), b.ResolutionTime()
		if !ta.Equal(tb) {
			return ta.After(tb)
		}
		return a.ID < b.ID
	})

	return sorted
}

// HistoryNavigator is a bidirectional cursor over the filtered, sorted
// history. It is a plain index into a freshly materialized slice: the
// sequence is rebuilt wholesale on every data or filter change, so there is
// nothing a linked structure would add.
type HistoryNavigator struct {
	items  []*models.Booking
	cursor int // -1 when the filtered set is empty
}

// NewHistoryNavigator returns an empty navigator.
func NewHistoryNavigator() *HistoryNavigator {
	return &HistoryNavigator{cursor: -1}
}

// Set replaces the underlying result set, re-sorts, applies the filter and
// repositions the cursor: it stays on the current item when that item
// survives the filter, otherwise it resets to the first item of the new
// set, or to none when the set is empty.
func (n *HistoryNavigator) Set(bookings []*models.Booking, filter HistoryFilter) {
	var currentID string
	if n.cursor >= 0 && n.cursor < len(n.items) {
		currentID = n.items[n.cursor].ID
	}

	sorted := SortResolved(bookings)
	filtered := make([]*models.Booking, 0, len(sorted))
	for _, b := range sorted {
		if filter.matches(b) {
			filtered = append(filtered, b)
		}
	}

	n.items = filtered
	n.cursor = -1
	if len(filtered) == 0 {
		return
	}

	n.cursor = 0
	for i, b := range filtered {
		if b.ID == currentID {
			n.cursor = i
			break
		}
	}
}

// Current returns the item under the cursor, or nil when the set is empty.
func (n *HistoryNavigator) Current() *models.Booking {
	if n.cursor < 0 || n.cursor >= len(n.items) {
		return nil
	}
	return n.items[n.cursor]
}

// Next advances the cursor by one; a no-op at the last item.
func (n *HistoryNavigator) Next() {
	if n.cursor >= 0 && n.cursor < len(n.items)-1 {
		n.cursor++
	}
}

// Prev moves the cursor back by one; a no-op at the first item.
func (n *HistoryNavigator) Prev() {
	if n.cursor > 0 {
		n.cursor--
	}
}

// Len returns the size of the filtered set.
func (n *HistoryNavigator) Len() int {
	return len(n.items)
}

// Index returns the cursor position, -1 when the set is empty.
func (n *HistoryNavigator) Index() int {
	return n.cursor
}

// Items returns the filtered, sorted sequence.
func (n *HistoryNavigator) Items() []*models.Booking {
	return n.items
}
