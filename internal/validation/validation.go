package validation

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// Error kinds carried on validation results and domain.ValidationError.
const (
	KindRequired = "required"
	KindFormat   = "format"
	KindRange    = "range"
	KindUnique   = "unique"
	KindDate     = "date"
)

// Result is the outcome of validating a single field value.
type Result struct {
	IsValid      bool
	ErrorMessage string
	Kind         string
}

func ok() Result {
	return Result{IsValid: true}
}

func fail(kind string, format string, args ...any) Result {
	return Result{IsValid: false, Kind: kind, ErrorMessage: fmt.Sprintf(format, args...)}
}

// Validate checks a field value by name. Every field must be non-empty after
// trimming; email fields must additionally parse as an address.
func Validate(value string, fieldName string) Result {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fail(KindRequired, "%s is required", fieldName)
	}
	if isEmailField(fieldName) {
		if _, err := mail.ParseAddress(trimmed); err != nil {
			return fail(KindFormat, "%s is not a valid email address", fieldName)
		}
	}
	return ok()
}

// ValidateUnique checks the value against already-taken values,
// case-insensitively.
func ValidateUnique(value string, fieldName string, taken []string) Result {
	if base := Validate(value, fieldName); !base.IsValid {
		return base
	}
	needle := strings.ToLower(strings.TrimSpace(value))
	for _, existing := range taken {
		if strings.ToLower(strings.TrimSpace(existing)) == needle {
			return fail(KindUnique, "%s %q is already in use", fieldName, strings.TrimSpace(value))
		}
	}
	return ok()
}

// ValidateDate checks a timestamp. With allowPast false, dates strictly
// before the start of today are rejected; a due date later today is fine.
func ValidateDate(date time.Time, label string, allowPast bool) Result {
	if date.IsZero() {
		return fail(KindRequired, "%s is required", label)
	}
	if !allowPast {
		now := time.Now().UTC()
		startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		if date.Before(startOfToday) {
			return fail(KindDate, "%s must not be in the past", label)
		}
	}
	return ok()
}

func isEmailField(fieldName string) bool {
	return strings.Contains(strings.ToLower(fieldName), "email")
}
