package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Member is read-only here; the membership subsystem owns it.
type Member struct {
	ID             int64
	FirstName      string
	LastName       string
	Email          *string
	BeitragMonthly *decimal.Decimal
	Status         string
}

func (m Member) FullName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

func (m Member) HasEmail() bool {
	return m.Email != nil && strings.TrimSpace(*m.Email) != ""
}

// MemberPaymentOverview is a projection rebuilt on every read.
type MemberPaymentOverview struct {
	MemberID       int64
	MemberName     string
	Email          *string
	BeitragMonthly *decimal.Decimal

	OpenReminders int
	OverdueCount  int
	TotalDue      decimal.Decimal
}
