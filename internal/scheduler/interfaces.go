package scheduler

import (
	"context"
	"time"
)

// Reminder is the payload delivered to a requester shortly before their
// booked slot.
type Reminder struct {
	BookingID     string
	ChatID        int64
	RequesterName string
	ProviderName  string
	Date          string
	Slot          string
}

// ReminderScheduler plans reminder deliveries.
type ReminderScheduler interface {
	// Schedule plans a reminder at notifyAt, replacing any reminder
	// already scheduled for the same booking.
	Schedule(ctx context.Context, r Reminder, notifyAt time.Time) error

	// Cancel drops a scheduled reminder. Unknown booking ids are a no-op.
	Cancel(ctx context.Context, bookingID string) error

	// Stop cancels all pending reminders and shuts the scheduler down.
	Stop() error
}

// ReminderSender delivers reminders to the requester.
type ReminderSender interface {
	Send(ctx context.Context, r Reminder) error
}
