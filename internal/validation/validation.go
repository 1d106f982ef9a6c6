package validation

import (
	"regexp"
	"strings"
	"time"

	"github.com/andresedu1996/agenda-backend/internal/storage/models"
	"github.com/andresedu1996/agenda-backend/pkg/errors"
)

// Validation patterns
var (
	dateRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	slotRegex = regexp.MustCompile(`^[0-9A-Za-z:. \-]{1,32}$`)
)

// ValidateDate validates a calendar date in YYYY-MM-DD format.
func ValidateDate(dateStr string) (*time.Time, error) {
	if dateStr == "" {
		return nil, errors.ErrInvalidDate.WithContext("date cannot be empty")
	}

	if !dateRegex.MatchString(dateStr) {
		return nil, errors.ErrInvalidDate.WithContext(map[string]interface{}{
			"date":   dateStr,
			"reason": "date must be in YYYY-MM-DD format",
		})
	}

	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return nil, errors.ErrInvalidDate.WithError(err).WithContext(map[string]interface{}{
			"date": dateStr,
		})
	}

	return &date, nil
}

// ValidateSlotLabel validates a slot label. Labels are short free-form
// strings like "09:00" or "08:00 - 09:00"; the provider's offer defines
// which labels exist.
func ValidateSlotLabel(slot string) error {
	if strings.TrimSpace(slot) == "" {
		return errors.ErrInvalidSlot.WithContext("slot cannot be empty")
	}

	if !slotRegex.MatchString(slot) {
		return errors.ErrInvalidSlot.WithContext(map[string]interface{}{
			"slot":   slot,
			"reason": "slot contains unsupported characters or is too long",
		})
	}

	return nil
}

// ValidatePriority validates a priority tier strictly: unlike reads, writes
// never coerce unknown tiers to medium.
func ValidatePriority(priority string) (models.Priority, error) {
	p := models.Priority(strings.ToLower(strings.TrimSpace(priority)))
	if !p.Valid() {
		return "", errors.ErrInvalidPriority.WithContext(map[string]interface{}{
			"priority": priority,
		})
	}

	return p, nil
}

// ValidateRequired checks that a required text field is non-empty.
func ValidateRequired(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return errors.ErrInvalidInput.WithContext(map[string]interface{}{
			"field":  field,
			"reason": "required field is empty",
		})
	}

	return nil
}
