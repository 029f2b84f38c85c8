package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestClassifyStatus(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata not available: %v", err)
	}
	now := time.Date(2025, 1, 1, 10, 30, 0, 0, berlin)

	tests := []struct {
		name   string
		status ReminderStatus
		due    time.Time
		want   ReminderStatus
	}{
		{name: "paid in the past stays paid", status: StatusPaid, due: date("2020-01-01"), want: StatusPaid},
		{name: "paid in the future stays paid", status: StatusPaid, due: date("2099-01-01"), want: StatusPaid},
		{name: "pending past due", status: StatusPending, due: date("2024-01-01"), want: StatusOverdue},
		{name: "sent past due", status: StatusSent, due: date("2024-12-31"), want: StatusOverdue},
		{name: "due today is not overdue", status: StatusPending, due: date("2025-01-01"), want: StatusPending},
		{name: "sent due tomorrow", status: StatusSent, due: date("2025-01-02"), want: StatusSent},
		{name: "stored overdue in the future is reported as stored", status: StatusOverdue, due: date("2099-01-01"), want: StatusOverdue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyStatus(tt.status, tt.due, now))
		})
	}
}

func TestClassifyStatus_UsesLocalCalendarDay(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata not available: %v", err)
	}
	// 00:30 on Jan 2nd in Berlin is still Jan 1st in UTC.
	now := time.Date(2025, 1, 2, 0, 30, 0, 0, berlin)

	assert.Equal(t, StatusOverdue, ClassifyStatus(StatusPending, date("2025-01-01"), now))
	assert.Equal(t, StatusPending, ClassifyStatus(StatusPending, date("2025-01-01"), now.UTC()))
}

func TestPaymentReminder_EffectiveStatus(t *testing.T) {
	r := PaymentReminder{Status: StatusPending, DueDate: date("2024-01-01")}
	assert.Equal(t, StatusOverdue, r.EffectiveStatus(date("2025-01-01")))
}

func TestParseReminderStatus(t *testing.T) {
	st, ok := ParseReminderStatus("sent")
	assert.True(t, ok)
	assert.Equal(t, StatusSent, st)

	_, ok = ParseReminderStatus("cancelled")
	assert.False(t, ok)
}

func TestMember_HasEmail(t *testing.T) {
	blank := "  "
	mail := "kasse@example.org"

	assert.False(t, Member{}.HasEmail())
	assert.False(t, Member{Email: &blank}.HasEmail())
	assert.True(t, Member{Email: &mail}.HasEmail())
	assert.Equal(t, "Erika Mustermann", Member{FirstName: "Erika", LastName: "Mustermann"}.FullName())
}
