package domain

import (
	"errors"
	"fmt"
)

var (
	ErrReminderNotFound = errors.New("reminder not found")
	ErrMemberNotFound   = errors.New("member not found")
	ErrReminderPaid     = errors.New("reminder is already paid")
	ErrNoEmail          = errors.New("member has no email address")
	ErrSendInProgress   = errors.New("reminder is already being sent")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// DeliveryError reports that the mail gateway did not accept a reminder.
type DeliveryError struct {
	ReminderID int64
	Err        error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver reminder %d: %v", e.ReminderID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
