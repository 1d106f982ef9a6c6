package errors

import "fmt"

// Error is a coded application error that carries enough context to map
// onto both log output and HTTP responses.
type Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Err     error       `json:"-"`
	Context interface{} `json:"context,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap enables errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches coded errors by code, so copies created with WithError or
// WithContext still compare equal to the predeclared vars.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithContext returns a copy of the error with attached context.
func (e *Error) WithContext(ctx interface{}) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Context: ctx,
	}
}

// WithError returns a copy of the error with an underlying cause.
func (e *Error) WithError(err error) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
		Context: e.Context,
	}
}

// Predeclared errors.
var (
	// Not-found family
	ErrProviderNotFound = &Error{
		Code:    "PROVIDER_NOT_FOUND",
		Message: "provider does not exist",
	}

	ErrRequesterNotFound = &Error{
		Code:    "REQUESTER_NOT_FOUND",
		Message: "requester does not exist",
	}

	ErrBookingNotFound = &Error{
		Code:    "BOOKING_NOT_FOUND",
		Message: "booking does not exist",
	}

	// Slot contention
	ErrSlotExhausted = &Error{
		Code:    "SLOT_EXHAUSTED",
		Message: "slot is already at capacity, pick another time",
	}

	ErrDateNotPermitted = &Error{
		Code:    "DATE_NOT_PERMITTED",
		Message: "provider does not offer slots on this weekday",
	}

	// Input validation
	ErrInvalidInput = &Error{
		Code:    "INVALID_INPUT",
		Message: "missing or malformed input",
	}

	ErrInvalidDate = &Error{
		Code:    "INVALID_DATE",
		Message: "date must be in YYYY-MM-DD format",
	}

	ErrInvalidSlot = &Error{
		Code:    "INVALID_SLOT",
		Message: "slot is not offered by this provider",
	}

	ErrInvalidPriority = &Error{
		Code:    "INVALID_PRIORITY",
		Message: "priority must be high, medium or low",
	}

	// Business rules
	ErrProviderNotApproved = &Error{
		Code:    "PROVIDER_NOT_APPROVED",
		Message: "provider has not been approved yet",
	}

	ErrBookingNotPending = &Error{
		Code:    "BOOKING_NOT_PENDING",
		Message: "booking is not in a pending status",
	}

	ErrQueueHeadChanged = &Error{
		Code:    "QUEUE_HEAD_CHANGED",
		Message: "queue head changed, re-read the queue and retry",
	}

	// Infrastructure
	ErrStoreUnavailable = &Error{
		Code:    "STORE_UNAVAILABLE",
		Message: "data store temporarily unavailable, retry the operation",
	}

	ErrUnauthorized = &Error{
		Code:    "UNAUTHORIZED",
		Message: "missing or invalid credentials",
	}
)

// New creates a new coded error.
func New(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps a plain error into a coded error.
func Wrap(err error, code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// GetError extracts a coded error from err.
func GetError(err error) (*Error, bool) {
	appErr, ok := err.(*Error)
	return appErr, ok
}
