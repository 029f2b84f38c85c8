package rest

import (
	"time"

	"vereinskasse/internal/domain"
	"vereinskasse/internal/service"

	"github.com/shopspring/decimal"
)

// Amounts leave the API as decimal strings with two places.
func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func moneyPtr(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := money(*d)
	return &s
}

type reminderDTO struct {
	ID              int64      `json:"id"`
	MemberID        int64      `json:"member_id"`
	Amount          string     `json:"amount"`
	AmountFormatted string     `json:"amount_formatted"`
	DueDate         string     `json:"due_date"`
	Status          string     `json:"status"`
	EffectiveStatus string     `json:"effective_status"`
	SentAt          *time.Time `json:"sent_at"`
	Notes           *string    `json:"notes"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at"`
}

func toReminderDTO(v service.ReminderView) reminderDTO {
	return reminderDTO{
		ID:              v.ID,
		MemberID:        v.MemberID,
		Amount:          money(v.Amount),
		AmountFormatted: service.FormatEUR(v.Amount),
		DueDate:         v.DueDate.Format("2006-01-02"),
		Status:          string(v.Status),
		EffectiveStatus: string(v.Effective),
		SentAt:          v.SentAt,
		Notes:           v.Notes,
		CreatedAt:       v.CreatedAt,
		UpdatedAt:       v.UpdatedAt,
	}
}

type summaryDTO struct {
	OpenReminders int    `json:"open_reminders"`
	OverdueCount  int    `json:"overdue_count"`
	TotalDue      string `json:"total_due"`
	PaidUp        bool   `json:"paid_up"`
}

type memberDTO struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Email          *string `json:"email"`
	BeitragMonthly *string `json:"beitrag_monthly"`
}

type memberRemindersDTO struct {
	Member    memberDTO     `json:"member"`
	Reminders []reminderDTO `json:"reminders"`
	Summary   summaryDTO    `json:"summary"`
}

func toMemberRemindersDTO(m service.MemberReminders) memberRemindersDTO {
	out := memberRemindersDTO{
		Member: memberDTO{
			ID:             m.Member.ID,
			Name:           m.Member.FullName(),
			Email:          m.Member.Email,
			BeitragMonthly: moneyPtr(m.Member.BeitragMonthly),
		},
		Reminders: make([]reminderDTO, 0, len(m.Reminders)),
		Summary: summaryDTO{
			OpenReminders: m.Summary.OpenReminders,
			OverdueCount:  m.Summary.OverdueCount,
			TotalDue:      money(m.Summary.TotalDue),
			PaidUp:        m.Summary.PaidUp(),
		},
	}
	for _, r := range m.Reminders {
		out.Reminders = append(out.Reminders, toReminderDTO(r))
	}
	return out
}

type mutationDTO struct {
	Reminder        *reminderDTO       `json:"reminder"`
	MemberReminders memberRemindersDTO `json:"member_reminders"`
}

func toMutationDTO(m *service.Mutation) mutationDTO {
	out := mutationDTO{MemberReminders: toMemberRemindersDTO(m.Member)}
	if m.Reminder != nil {
		r := toReminderDTO(*m.Reminder)
		out.Reminder = &r
	}
	return out
}

type draftDTO struct {
	MemberID int64   `json:"member_id"`
	Amount   *string `json:"amount"`
}

type overviewDTO struct {
	MemberID       int64   `json:"member_id"`
	MemberName     string  `json:"member_name"`
	Email          *string `json:"email"`
	BeitragMonthly *string `json:"beitrag_monthly"`
	OpenReminders  int     `json:"open_reminders"`
	OverdueCount   int     `json:"overdue_count"`
	TotalDue       string  `json:"total_due"`
}

func toOverviewDTO(o domain.MemberPaymentOverview) overviewDTO {
	return overviewDTO{
		MemberID:       o.MemberID,
		MemberName:     o.MemberName,
		Email:          o.Email,
		BeitragMonthly: moneyPtr(o.BeitragMonthly),
		OpenReminders:  o.OpenReminders,
		OverdueCount:   o.OverdueCount,
		TotalDue:       money(o.TotalDue),
	}
}

func toOverviewDTOs(in []domain.MemberPaymentOverview) []overviewDTO {
	out := make([]overviewDTO, 0, len(in))
	for _, o := range in {
		out = append(out, toOverviewDTO(o))
	}
	return out
}

type dashboardMemberDTO struct {
	overviewDTO
	Tier string `json:"tier"`
}

type dashboardDTO struct {
	TotalDue                      string               `json:"total_due"`
	TotalDueFormatted             string               `json:"total_due_formatted"`
	OverdueMemberCount            int                  `json:"overdue_member_count"`
	MembersWithOpenRemindersCount int                  `json:"members_with_open_reminders_count"`
	Members                       []dashboardMemberDTO `json:"members"`
}

func toDashboardDTO(d *service.Dashboard) dashboardDTO {
	out := dashboardDTO{
		TotalDue:                      money(d.TotalDue),
		TotalDueFormatted:             service.FormatEUR(d.TotalDue),
		OverdueMemberCount:            d.OverdueMemberCount,
		MembersWithOpenRemindersCount: d.MembersWithOpenRemindersCount,
		Members:                       make([]dashboardMemberDTO, 0, len(d.Members)),
	}
	for _, o := range d.Members {
		out.Members = append(out.Members, dashboardMemberDTO{
			overviewDTO: toOverviewDTO(o),
			Tier:        service.TierOf(o).String(),
		})
	}
	return out
}
