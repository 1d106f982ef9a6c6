package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors for the booking service.
var (
	// Booking metrics
	BookingsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenda_bookings_created_total",
			Help: "Total number of bookings created",
		},
		[]string{"service_area", "priority"},
	)

	BookingsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenda_bookings_resolved_total",
			Help: "Total number of bookings moved to a resolved status",
		},
		[]string{"status"},
	)

	SlotConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agenda_slot_conflicts_total",
			Help: "Total number of booking attempts rejected because the slot was exhausted",
		},
	)

	PendingBookings = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agenda_pending_bookings",
			Help: "Current number of bookings in a pending status",
		},
	)

	// Requester metrics
	RequestersProvisioned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agenda_requesters_provisioned_total",
			Help: "Total number of requesters auto-provisioned on first booking",
		},
	)

	// Notification metrics
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenda_notifications_sent_total",
			Help: "Total number of reminder notifications sent",
		},
		[]string{"status"},
	)

	// Database metrics
	DatabaseOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenda_database_operations_total",
			Help: "Total number of database operations",
		},
		[]string{"operation", "table", "status"},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenda_errors_total",
			Help: "Total number of errors by component",
		},
		[]string{"component", "code"},
	)

	// HTTP server metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenda_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agenda_http_request_duration_seconds",
			Help:    "HTTP request processing time in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

// RecordBookingCreated records a successful booking creation.
func RecordBookingCreated(serviceArea, priority string) {
	BookingsCreated.WithLabelValues(serviceArea, priority).Inc()
}

// RecordBookingResolved records a booking transition to a resolved status.
func RecordBookingResolved(status string) {
	BookingsResolved.WithLabelValues(status).Inc()
}

// RecordSlotConflict records a lost booking race.
func RecordSlotConflict() {
	SlotConflicts.Inc()
}

// RecordRequesterProvisioned records a requester auto-provisioned on search miss.
func RecordRequesterProvisioned() {
	RequestersProvisioned.Inc()
}

// RecordNotification records a reminder delivery attempt.
func RecordNotification(status string) {
	NotificationsSent.WithLabelValues(status).Inc()
}

// RecordDatabaseOperation records a database operation.
func RecordDatabaseOperation(operation, table, status string) {
	DatabaseOperations.WithLabelValues(operation, table, status).Inc()
}

// RecordError records an error by component and code.
func RecordError(component, code string) {
	ErrorsTotal.WithLabelValues(component, code).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(method, endpoint, status string) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
}

// SetPendingBookings updates the pending bookings gauge.
func SetPendingBookings(count float64) {
	PendingBookings.Set(count)
}
