package core

import "errors"

var (
	// ErrVersionConflict is returned when a replace carries a stale
	// precondition version. No mutation has occurred; the caller should
	// re-read and retry with the fresh version.
	ErrVersionConflict = errors.New("version conflict")

	// ErrNotFound is returned when the referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNameTaken is returned when a user name is already registered.
	ErrNameTaken = errors.New("name already taken")

	// ErrConstraint is returned when the storage layer rejects a write
	// wholesale (duplicate queue position, dangling user reference). The
	// transaction has been rolled back; retrying the same input will fail
	// the same way.
	ErrConstraint = errors.New("constraint violation")
)

// ValidationError rejects malformed client input before any database
// interaction.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validation builds a ValidationError with the given message.
func Validation(msg string) error { return &ValidationError{Msg: msg} }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Retryable reports whether the caller may safely retry the whole
// operation. Version conflicts are retryable after a re-read; validation
// and constraint failures are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrVersionConflict) {
		return true
	}
	if IsValidation(err) || errors.Is(err, ErrConstraint) ||
		errors.Is(err, ErrNotFound) || errors.Is(err, ErrNameTaken) {
		return false
	}
	// Anything else is treated as a transient storage failure: the
	// transaction rolled back, so no partial effect is visible.
	return true
}
