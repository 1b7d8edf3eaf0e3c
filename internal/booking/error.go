package booking

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrIdempotencyKey = errors.New("idempotency key not found")
	ErrNextID         = errors.New("get next id from generator")
	ErrRecordNotFound = errors.New("record not found")

	// ErrNotFound is returned when a reservation does not exist or is no
	// longer cancellable (already cancelled or completed).
	ErrNotFound = errors.New("reservation not found")

	// ErrTxConflict signals that storage could not serialize the unit
	// section; the manager retries the whole operation.
	ErrTxConflict = errors.New("unit section conflict")

	// ErrConcurrencyConflict is surfaced after the retry budget for
	// ErrTxConflict is exhausted. Transient: callers should retry.
	ErrConcurrencyConflict = errors.New("concurrent admission conflict, retry the request")
)

// UnavailableError is returned when a requested interval collides with at
// least one active reservation. It carries the conflicting intervals so the
// caller can show them and offer waiting-list enrollment instead.
type UnavailableError struct {
	UnitID    string
	Requested Interval
	Conflicts []Interval
}

func NewUnavailableError(unitID string, requested Interval) *UnavailableError {
	//nolint:exhaustruct
	return &UnavailableError{
		UnitID:    unitID,
		Requested: requested,
	}
}

func IsUnavailableError(err error) *UnavailableError {
	if err == nil {
		return nil
	}

	var unavailableError *UnavailableError

	if errors.As(err, &unavailableError) {
		return unavailableError
	}

	return nil
}

func (e *UnavailableError) AddConflict(iv Interval) {
	e.Conflicts = append(e.Conflicts, iv)
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf(
		"unit '%v' is unavailable for [%v, %v): %d conflicting reservation(s)",
		e.UnitID,
		e.Requested.CheckIn.Format(time.DateOnly),
		e.Requested.CheckOut.Format(time.DateOnly),
		len(e.Conflicts),
	)
}

type InputError struct {
	fields map[string][]string
}

func newInputError() *InputError {
	return &InputError{
		fields: make(map[string][]string),
	}
}

// NewInputError builds an empty field-error accumulator for sibling packages
// that validate their own inputs.
func NewInputError() *InputError {
	return newInputError()
}

func (ie *InputError) AddError(field, msg string) {
	ie.addError(field, msg)
}

func (ie *InputError) HasErrors() bool {
	return ie.fieldsCount() > 0
}

func IsInputError(err error) *InputError {
	if err == nil {
		return nil
	}

	var inputError *InputError

	if errors.As(err, &inputError) {
		return inputError
	}

	return nil
}

func (ie *InputError) fieldsCount() int {
	return len(ie.fields)
}

func (ie *InputError) addError(field, msg string) {
	ie.fields[field] = append(ie.fields[field], msg)
}

func (ie *InputError) Error() string {
	return fmt.Sprintf("%+v", ie.fields)
}

func (ie *InputError) Fields() map[string][]string {
	return ie.fields
}
