package service

import (
	"sort"
	"time"

	"vereinskasse/internal/domain"

	"github.com/shopspring/decimal"
)

// MemberSummary is the fold of one member's reminders.
type MemberSummary struct {
	OpenReminders int
	OverdueCount  int
	TotalDue      decimal.Decimal
}

// PaidUp reports whether nothing is outstanding.
func (s MemberSummary) PaidUp() bool {
	return s.OpenReminders == 0
}

// Summarize folds reminders into open/overdue counts and the exact sum of
// every unpaid amount. Effective status comes from domain.ClassifyStatus.
func Summarize(reminders []domain.PaymentReminder, now time.Time) MemberSummary {
	sum := MemberSummary{TotalDue: decimal.Zero}
	for _, r := range reminders {
		switch r.EffectiveStatus(now) {
		case domain.StatusPaid:
			continue
		case domain.StatusOverdue:
			sum.OverdueCount++
		}
		sum.OpenReminders++
		sum.TotalDue = sum.TotalDue.Add(r.Amount)
	}
	return sum
}

// BuildOverview produces one overview per member, in roster order. Reminders
// of members not in the roster are ignored.
func BuildOverview(members []domain.Member, reminders []domain.PaymentReminder, now time.Time) []domain.MemberPaymentOverview {
	byMember := make(map[int64][]domain.PaymentReminder, len(members))
	for _, r := range reminders {
		byMember[r.MemberID] = append(byMember[r.MemberID], r)
	}

	out := make([]domain.MemberPaymentOverview, 0, len(members))
	for _, m := range members {
		s := Summarize(byMember[m.ID], now)
		out = append(out, domain.MemberPaymentOverview{
			MemberID:       m.ID,
			MemberName:     m.FullName(),
			Email:          m.Email,
			BeitragMonthly: m.BeitragMonthly,
			OpenReminders:  s.OpenReminders,
			OverdueCount:   s.OverdueCount,
			TotalDue:       s.TotalDue,
		})
	}
	return out
}

type Tier int

const (
	TierOverdue Tier = iota
	TierOpen
	TierPaidUp
)

func (t Tier) String() string {
	switch t {
	case TierOverdue:
		return "overdue"
	case TierOpen:
		return "open"
	default:
		return "paid_up"
	}
}

func TierOf(o domain.MemberPaymentOverview) Tier {
	switch {
	case o.OverdueCount > 0:
		return TierOverdue
	case o.OpenReminders > 0:
		return TierOpen
	default:
		return TierPaidUp
	}
}

// OrderByTier returns a copy ordered overdue, open, paid-up. Order within a
// tier is the input order.
func OrderByTier(overviews []domain.MemberPaymentOverview) []domain.MemberPaymentOverview {
	out := make([]domain.MemberPaymentOverview, len(overviews))
	copy(out, overviews)
	sort.SliceStable(out, func(i, j int) bool {
		return TierOf(out[i]) < TierOf(out[j])
	})
	return out
}

type Dashboard struct {
	TotalDue                      decimal.Decimal
	OverdueMemberCount            int
	MembersWithOpenRemindersCount int
	Members                       []domain.MemberPaymentOverview
}

func BuildDashboard(overviews []domain.MemberPaymentOverview) Dashboard {
	d := Dashboard{TotalDue: decimal.Zero}
	for _, o := range overviews {
		d.TotalDue = d.TotalDue.Add(o.TotalDue)
		if o.OverdueCount > 0 {
			d.OverdueMemberCount++
		}
		if o.OpenReminders > 0 {
			d.MembersWithOpenRemindersCount++
		}
	}
	d.Members = OrderByTier(overviews)
	return d
}
