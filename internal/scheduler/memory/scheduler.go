package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/andresedu1996/agenda-backend/internal/scheduler"
	"github.com/andresedu1996/agenda-backend/pkg/metrics"

	"github.com/rs/zerolog/log"
)

// MemoryScheduler plans reminders with in-process timers. Reminders do not
// survive a restart; the service re-schedules pending ones on boot.
type MemoryScheduler struct {
	timers   map[string]*time.Timer
	mu       sync.Mutex
	sender   scheduler.ReminderSender
	ctx      context.Context
	cancel   context.CancelFunc
	stopped  bool
	stopOnce sync.Once
}

// NewMemoryScheduler creates an in-memory reminder scheduler.
func NewMemoryScheduler(sender scheduler.ReminderSender) *MemoryScheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &MemoryScheduler{
		timers: make(map[string]*time.Timer),
		sender: sender,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Schedule plans a reminder, replacing any timer already set for the
// booking. A notifyAt in the past fires immediately.
func (s *MemoryScheduler) Schedule(ctx context.Context, r scheduler.Reminder, notifyAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler is stopped")
	}

	if timer, exists := s.timers[r.BookingID]; exists {
		timer.Stop()
		delete(s.timers, r.BookingID)
	}

	delay := time.Until(notifyAt)
	if delay <= 0 {
		go s.deliver(r)
		return nil
	}

	s.timers[r.BookingID] = time.AfterFunc(delay, func() {
		s.deliver(r)
	})

	return nil
}

// Cancel drops the reminder scheduled for a booking.
func (s *MemoryScheduler) Cancel(ctx context.Context, bookingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, exists := s.timers[bookingID]; exists {
		timer.Stop()
		delete(s.timers, bookingID)
	}

	return nil
}

// Stop cancels all timers and shuts the scheduler down.
func (s *MemoryScheduler) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.stopped = true

		for id, timer := range s.timers {
			timer.Stop()
			delete(s.timers, id)
		}

		s.cancel()
	})

	return nil
}

// deliver sends one reminder and drops its timer.
func (s *MemoryScheduler) deliver(r scheduler.Reminder) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.timers, r.BookingID)
	s.mu.Unlock()

	if err := s.sender.Send(s.ctx, r); err != nil {
		metrics.RecordNotification("error")
		log.Warn().Err(err).Str("booking_id", r.BookingID).Msg("failed to send reminder")
		return
	}

	metrics.RecordNotification("ok")
}

// ActiveTimers returns the number of scheduled reminders.
func (s *MemoryScheduler) ActiveTimers() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.timers)
}
