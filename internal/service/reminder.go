package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"vereinskasse/internal/clients"
	"vereinskasse/internal/domain"
	"vereinskasse/internal/metrics"
	"vereinskasse/internal/repository"

	"github.com/shopspring/decimal"
)

// Transition names used for change notifications and metrics.
const (
	ActionCreate   = "create"
	ActionUpdate   = "update"
	ActionSend     = "send"
	ActionMarkPaid = "mark_paid"
	ActionDelete   = "delete"
)

const sendLockPrefix = "reminder_send:"

// maxAmount matches numeric(10,2).
var maxAmount = decimal.New(1, 8)

type ReminderRepository interface {
	ListByMember(ctx context.Context, memberID int64) ([]domain.PaymentReminder, error)
	ListUnpaid(ctx context.Context) ([]domain.PaymentReminder, error)
	Get(ctx context.Context, memberID, id int64) (*domain.PaymentReminder, error)
	Create(ctx context.Context, rem *domain.PaymentReminder) error
	Update(ctx context.Context, memberID, id int64, u repository.ReminderUpdate) error
	MarkSent(ctx context.Context, memberID, id int64, sentAt time.Time) error
	Delete(ctx context.Context, memberID, id int64) error
}

type MemberRepository interface {
	Get(ctx context.Context, id int64) (*domain.Member, error)
	List(ctx context.Context) ([]domain.Member, error)
}

type Mailer interface {
	Send(ctx context.Context, m clients.Mail) error
}

// Locker guards a reminder while its email is in flight.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

type ChangeNotifier interface {
	NotifyRemindersChanged(ctx context.Context, memberID int64, action string) error
}

// ReminderView is a stored reminder together with its classification at
// read time.
type ReminderView struct {
	domain.PaymentReminder
	Effective domain.ReminderStatus
}

// MemberReminders is the freshly read state of one member's reminder panel.
type MemberReminders struct {
	Member    domain.Member
	Reminders []ReminderView
	Summary   MemberSummary
}

// Mutation is what every successful transition returns: the touched
// reminder (nil after delete) and the member's state re-read afterwards.
type Mutation struct {
	Reminder *ReminderView
	Member   MemberReminders
}

type CreateReminderInput struct {
	Amount  *decimal.Decimal
	DueDate *time.Time
	Notes   *string
}

type UpdateReminderInput struct {
	Status  *domain.ReminderStatus
	Amount  *decimal.Decimal
	DueDate *time.Time
	Notes   *string
}

// Draft holds the values a creation form starts with.
type Draft struct {
	MemberID int64
	Amount   *decimal.Decimal
}

type ReminderServiceConfig struct {
	Location    *time.Location
	SendLockTTL time.Duration
	MailFrom    string
}

type ReminderService struct {
	reminders ReminderRepository
	members   MemberRepository
	mailer    Mailer
	locker    Locker
	notifier  ChangeNotifier
	metrics   *metrics.Metrics

	loc     *time.Location
	lockTTL time.Duration
	from    string
	now     func() time.Time
}

func NewReminderService(
	reminders ReminderRepository,
	members MemberRepository,
	mailer Mailer,
	locker Locker,
	notifier ChangeNotifier,
	m *metrics.Metrics,
	cfg ReminderServiceConfig,
) *ReminderService {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	ttl := cfg.SendLockTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &ReminderService{
		reminders: reminders,
		members:   members,
		mailer:    mailer,
		locker:    locker,
		notifier:  notifier,
		metrics:   m,
		loc:       loc,
		lockTTL:   ttl,
		from:      cfg.MailFrom,
		now:       time.Now,
	}
}

// Now is the current instant in the club's timezone.
func (s *ReminderService) Now() time.Time {
	return s.now().In(s.loc)
}

func (s *ReminderService) view(r domain.PaymentReminder, now time.Time) ReminderView {
	return ReminderView{PaymentReminder: r, Effective: r.EffectiveStatus(now)}
}

// Draft returns the prefilled amount for a new reminder.
func (s *ReminderService) Draft(ctx context.Context, memberID int64) (*Draft, error) {
	member, err := s.members.Get(ctx, memberID)
	if err != nil {
		return nil, err
	}
	return &Draft{MemberID: member.ID, Amount: member.BeitragMonthly}, nil
}

// List reads a member's reminders. A non-empty status filters on the
// effective status, so "overdue" selects reminders that are past due.
func (s *ReminderService) List(ctx context.Context, memberID int64, status domain.ReminderStatus) (*MemberReminders, error) {
	state, err := s.load(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return state, nil
	}

	filtered := make([]ReminderView, 0, len(state.Reminders))
	for _, r := range state.Reminders {
		if r.Effective == status {
			filtered = append(filtered, r)
		}
	}
	state.Reminders = filtered
	return state, nil
}

func (s *ReminderService) Get(ctx context.Context, memberID, id int64) (*ReminderView, error) {
	rem, err := s.reminders.Get(ctx, memberID, id)
	if err != nil {
		return nil, err
	}
	v := s.view(*rem, s.Now())
	return &v, nil
}

// load re-reads the member and all of its reminders and aggregates them.
// Summary always covers every reminder.
func (s *ReminderService) load(ctx context.Context, memberID int64) (*MemberReminders, error) {
	member, err := s.members.Get(ctx, memberID)
	if err != nil {
		return nil, err
	}

	rems, err := s.reminders.ListByMember(ctx, memberID)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	views := make([]ReminderView, 0, len(rems))
	for _, r := range rems {
		views = append(views, s.view(r, now))
	}

	return &MemberReminders{
		Member:    *member,
		Reminders: views,
		Summary:   Summarize(rems, now),
	}, nil
}

// settle finishes a successful transition: notify, count, and re-read.
// The write already happened, so a failed notification is only logged.
func (s *ReminderService) settle(ctx context.Context, memberID, reminderID int64, action string) (*Mutation, error) {
	if s.notifier != nil {
		if err := s.notifier.NotifyRemindersChanged(ctx, memberID, action); err != nil {
			slog.Warn("notify reminders changed failed", "member_id", memberID, "action", action, "error", err)
		}
	}
	s.metrics.ObserveTransition(action, metrics.OutcomeOK)

	return s.reread(ctx, memberID, reminderID)
}

func (s *ReminderService) reread(ctx context.Context, memberID, reminderID int64) (*Mutation, error) {
	state, err := s.load(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("reload reminders of member %d: %w", memberID, err)
	}

	out := &Mutation{Member: *state}
	if reminderID == 0 {
		return out, nil
	}
	for i := range state.Reminders {
		if state.Reminders[i].ID == reminderID {
			v := state.Reminders[i]
			out.Reminder = &v
			return out, nil
		}
	}
	return nil, domain.ErrReminderNotFound
}

func validateAmount(a decimal.Decimal) error {
	if !a.IsPositive() {
		return domain.NewValidationError("amount", "Der Betrag muss größer als 0 sein.")
	}
	if !a.Equal(a.Truncate(2)) {
		return domain.NewValidationError("amount", "Der Betrag darf höchstens zwei Nachkommastellen haben.")
	}
	if a.GreaterThanOrEqual(maxAmount) {
		return domain.NewValidationError("amount", "Der Betrag ist zu groß.")
	}
	return nil
}

func validateDueDate(d time.Time) error {
	if d.IsZero() {
		return domain.NewValidationError("due_date", "Bitte ein gültiges Fälligkeitsdatum angeben.")
	}
	return nil
}

func normalizeNotes(n *string) *string {
	if n == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*n)
	return &trimmed
}

// Create adds a pending reminder. Without an amount the member's monthly
// fee is used.
func (s *ReminderService) Create(ctx context.Context, memberID int64, in CreateReminderInput) (*Mutation, error) {
	member, err := s.members.Get(ctx, memberID)
	if err != nil {
		return nil, err
	}

	amount := in.Amount
	if amount == nil {
		amount = member.BeitragMonthly
	}
	if amount == nil {
		return nil, domain.NewValidationError("amount", "Bitte einen Betrag angeben.")
	}
	if err := validateAmount(*amount); err != nil {
		return nil, err
	}
	if in.DueDate == nil {
		return nil, domain.NewValidationError("due_date", "Bitte ein Fälligkeitsdatum angeben.")
	}
	if err := validateDueDate(*in.DueDate); err != nil {
		return nil, err
	}

	rem := &domain.PaymentReminder{
		MemberID: member.ID,
		Amount:   *amount,
		DueDate:  domain.CalendarDay(*in.DueDate),
		Status:   domain.StatusPending,
	}
	if notes := normalizeNotes(in.Notes); notes != nil && *notes != "" {
		rem.Notes = notes
	}

	if err := s.reminders.Create(ctx, rem); err != nil {
		s.metrics.ObserveTransition(ActionCreate, metrics.OutcomeFailed)
		return nil, err
	}
	slog.Info("reminder created", "member_id", memberID, "reminder_id", rem.ID, "amount", rem.Amount.StringFixed(2))

	return s.settle(ctx, memberID, rem.ID, ActionCreate)
}

// MarkPaid moves a reminder to its terminal state. Paying a paid reminder
// changes nothing and is reported as success.
func (s *ReminderService) MarkPaid(ctx context.Context, memberID, id int64) (*Mutation, error) {
	rem, err := s.reminders.Get(ctx, memberID, id)
	if err != nil {
		return nil, err
	}

	if rem.Status == domain.StatusPaid {
		s.metrics.ObserveTransition(ActionMarkPaid, metrics.OutcomeNoop)
		return s.reread(ctx, memberID, id)
	}

	paid := domain.StatusPaid
	if err := s.reminders.Update(ctx, memberID, id, repository.ReminderUpdate{Status: &paid}); err != nil {
		if errors.Is(err, domain.ErrReminderPaid) {
			s.metrics.ObserveTransition(ActionMarkPaid, metrics.OutcomeNoop)
			return s.reread(ctx, memberID, id)
		}
		s.metrics.ObserveTransition(ActionMarkPaid, metrics.OutcomeFailed)
		return nil, err
	}
	slog.Info("reminder marked paid", "member_id", memberID, "reminder_id", id)

	return s.settle(ctx, memberID, id, ActionMarkPaid)
}

// Update applies a partial edit. The only status a caller may set is paid;
// overdue is derived and pending/sent are reached through create and send.
func (s *ReminderService) Update(ctx context.Context, memberID, id int64, in UpdateReminderInput) (*Mutation, error) {
	rem, err := s.reminders.Get(ctx, memberID, id)
	if err != nil {
		return nil, err
	}

	markPaid := false
	if in.Status != nil {
		switch st := *in.Status; {
		case st == domain.StatusOverdue:
			return nil, domain.NewValidationError("status", "Der Status „überfällig“ wird automatisch ermittelt und kann nicht gesetzt werden.")
		case !st.Valid():
			return nil, domain.NewValidationError("status", "Unbekannter Status %q.", string(st))
		case st == domain.StatusPaid:
			markPaid = rem.Status != domain.StatusPaid
		case rem.Status == domain.StatusPaid:
			return nil, domain.ErrReminderPaid
		case st != rem.Status:
			return nil, domain.NewValidationError("status", "Der Status kann nur auf „bezahlt“ gesetzt werden.")
		}
	}

	fieldsChanged := in.Amount != nil || in.DueDate != nil || in.Notes != nil
	if rem.Status == domain.StatusPaid {
		if fieldsChanged {
			return nil, domain.ErrReminderPaid
		}
		if in.Status != nil {
			s.metrics.ObserveTransition(ActionMarkPaid, metrics.OutcomeNoop)
		}
		return s.reread(ctx, memberID, id)
	}

	var u repository.ReminderUpdate
	if in.Amount != nil {
		if err := validateAmount(*in.Amount); err != nil {
			return nil, err
		}
		u.Amount = in.Amount
	}
	if in.DueDate != nil {
		if err := validateDueDate(*in.DueDate); err != nil {
			return nil, err
		}
		d := domain.CalendarDay(*in.DueDate)
		u.DueDate = &d
	}
	u.Notes = normalizeNotes(in.Notes)
	if markPaid {
		paid := domain.StatusPaid
		u.Status = &paid
	}

	if u.Empty() {
		return s.reread(ctx, memberID, id)
	}

	action := ActionUpdate
	if markPaid && !fieldsChanged {
		action = ActionMarkPaid
	}

	if err := s.reminders.Update(ctx, memberID, id, u); err != nil {
		if action == ActionMarkPaid && errors.Is(err, domain.ErrReminderPaid) {
			s.metrics.ObserveTransition(action, metrics.OutcomeNoop)
			return s.reread(ctx, memberID, id)
		}
		s.metrics.ObserveTransition(action, metrics.OutcomeFailed)
		return nil, err
	}
	slog.Info("reminder updated", "member_id", memberID, "reminder_id", id, "mark_paid", markPaid)

	return s.settle(ctx, memberID, id, action)
}

// Send emails the reminder to the member and records it as sent. Nothing is
// written when delivery fails.
func (s *ReminderService) Send(ctx context.Context, memberID, id int64) (*Mutation, error) {
	member, err := s.members.Get(ctx, memberID)
	if err != nil {
		return nil, err
	}
	rem, err := s.reminders.Get(ctx, memberID, id)
	if err != nil {
		return nil, err
	}
	if rem.Status == domain.StatusPaid {
		return nil, domain.ErrReminderPaid
	}
	if !member.HasEmail() {
		return nil, domain.ErrNoEmail
	}

	if s.locker != nil {
		key := fmt.Sprintf("%s%d", sendLockPrefix, id)
		ok, err := s.locker.TryLock(ctx, key, s.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire send lock for reminder %d: %w", id, err)
		}
		if !ok {
			return nil, domain.ErrSendInProgress
		}
		defer func() {
			if err := s.locker.Unlock(context.WithoutCancel(ctx), key); err != nil {
				slog.Warn("release send lock failed", "reminder_id", id, "error", err)
			}
		}()
	}

	if err := s.mailer.Send(ctx, s.reminderMail(*member, *rem)); err != nil {
		s.metrics.ObserveDeliveryFailure()
		s.metrics.ObserveTransition(ActionSend, metrics.OutcomeFailed)
		slog.Warn("reminder delivery failed", "member_id", memberID, "reminder_id", id, "error", err)
		return nil, &domain.DeliveryError{ReminderID: id, Err: err}
	}

	if err := s.reminders.MarkSent(ctx, memberID, id, s.Now()); err != nil {
		s.metrics.ObserveTransition(ActionSend, metrics.OutcomeFailed)
		if errors.Is(err, domain.ErrReminderPaid) {
			slog.Warn("reminder paid while mail was in flight", "member_id", memberID, "reminder_id", id)
		}
		return nil, err
	}
	slog.Info("reminder sent", "member_id", memberID, "reminder_id", id)

	return s.settle(ctx, memberID, id, ActionSend)
}

func (s *ReminderService) reminderMail(m domain.Member, r domain.PaymentReminder) clients.Mail {
	due := FormatDate(r.DueDate)

	var b strings.Builder
	fmt.Fprintf(&b, "Hallo %s,\n\n", strings.TrimSpace(m.FirstName))
	fmt.Fprintf(&b, "für deinen Mitgliedsbeitrag ist ein Betrag von %s offen, fällig am %s.\n", FormatEUR(r.Amount), due)
	if r.Notes != nil && *r.Notes != "" {
		fmt.Fprintf(&b, "\n%s\n", *r.Notes)
	}
	b.WriteString("\nBitte überweise den Betrag auf das Vereinskonto. ")
	b.WriteString("Falls du bereits gezahlt hast, betrachte diese Nachricht als gegenstandslos.\n\n")
	b.WriteString("Viele Grüße\nDeine Vereinskasse\n")

	return clients.Mail{
		From:    s.from,
		To:      *m.Email,
		Subject: "Zahlungserinnerung: Mitgliedsbeitrag fällig am " + due,
		Text:    b.String(),
		Tags: map[string]string{
			"member_id":   fmt.Sprint(m.ID),
			"reminder_id": fmt.Sprint(r.ID),
		},
	}
}

// Delete removes a reminder for good.
func (s *ReminderService) Delete(ctx context.Context, memberID, id int64) (*Mutation, error) {
	if err := s.reminders.Delete(ctx, memberID, id); err != nil {
		if !errors.Is(err, domain.ErrReminderNotFound) {
			s.metrics.ObserveTransition(ActionDelete, metrics.OutcomeFailed)
		}
		return nil, err
	}
	slog.Info("reminder deleted", "member_id", memberID, "reminder_id", id)

	return s.settle(ctx, memberID, 0, ActionDelete)
}

// Overview aggregates every member in roster order.
func (s *ReminderService) Overview(ctx context.Context) ([]domain.MemberPaymentOverview, error) {
	started := time.Now()

	members, err := s.members.List(ctx)
	if err != nil {
		return nil, err
	}
	unpaid, err := s.reminders.ListUnpaid(ctx)
	if err != nil {
		return nil, err
	}

	out := BuildOverview(members, unpaid, s.Now())
	s.metrics.ObserveOverview(started, len(out))
	return out, nil
}

func (s *ReminderService) Dashboard(ctx context.Context) (*Dashboard, error) {
	overviews, err := s.Overview(ctx)
	if err != nil {
		return nil, err
	}
	d := BuildDashboard(overviews)
	return &d, nil
}
