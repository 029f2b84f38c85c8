package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ReminderStatus string

const (
	StatusPending ReminderStatus = "pending"
	StatusSent    ReminderStatus = "sent"
	StatusPaid    ReminderStatus = "paid"
	StatusOverdue ReminderStatus = "overdue"
)

func (s ReminderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusPaid, StatusOverdue:
		return true
	}
	return false
}

func ParseReminderStatus(s string) (ReminderStatus, bool) {
	st := ReminderStatus(s)
	return st, st.Valid()
}

// PaymentReminder is an amount a member owes by DueDate. Status holds the
// persisted value only; overdue is never stored by this service.
type PaymentReminder struct {
	ID       int64
	MemberID int64
	Amount   decimal.Decimal
	DueDate  time.Time
	Status   ReminderStatus
	SentAt   *time.Time
	Notes    *string

	CreatedAt time.Time
	UpdatedAt *time.Time
}

// EffectiveStatus classifies r against now. See ClassifyStatus.
func (r PaymentReminder) EffectiveStatus(now time.Time) ReminderStatus {
	return ClassifyStatus(r.Status, r.DueDate, now)
}

// ClassifyStatus derives the status used for display and aggregation.
// Paid is terminal. Any other reminder whose due date lies strictly before
// the calendar day of now is overdue; the due day itself is not.
func ClassifyStatus(status ReminderStatus, dueDate time.Time, now time.Time) ReminderStatus {
	if status == StatusPaid {
		return StatusPaid
	}
	if CalendarDay(dueDate).Before(CalendarDay(now)) {
		return StatusOverdue
	}
	return status
}

// CalendarDay drops the clock part of t, keeping the date as seen in t's
// own location. Postgres DATE values scan as UTC midnight, so "now" must be
// passed in the club's local zone for the comparison to be meaningful.
func CalendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
