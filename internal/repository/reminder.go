package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"vereinskasse/internal/domain"

	"github.com/shopspring/decimal"
)

const reminderColumns = `r.id, r.member_id, r.amount, r.due_date, r.status, r.sent_at, r.notes, r.created_at, r.updated_at`

// ReminderUpdate carries the fields of a partial update; nil means untouched.
type ReminderUpdate struct {
	Amount  *decimal.Decimal
	DueDate *time.Time
	Notes   *string
	Status  *domain.ReminderStatus
}

func (u ReminderUpdate) Empty() bool {
	return u.Amount == nil && u.DueDate == nil && u.Notes == nil && u.Status == nil
}

type ReminderRepository struct {
	db *sql.DB
}

func NewReminderRepository(db *sql.DB) *ReminderRepository {
	return &ReminderRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (domain.PaymentReminder, error) {
	var (
		r       domain.PaymentReminder
		status  string
		sentAt  sql.NullTime
		notes   sql.NullString
		updated sql.NullTime
	)
	if err := row.Scan(
		&r.ID,
		&r.MemberID,
		&r.Amount,
		&r.DueDate,
		&status,
		&sentAt,
		&notes,
		&r.CreatedAt,
		&updated,
	); err != nil {
		return r, err
	}

	r.Status = domain.ReminderStatus(status)
	if sentAt.Valid {
		r.SentAt = &sentAt.Time
	}
	if notes.Valid {
		r.Notes = &notes.String
	}
	if updated.Valid {
		r.UpdatedAt = &updated.Time
	}
	return r, nil
}

func (r *ReminderRepository) query(ctx context.Context, query string, args ...any) ([]domain.PaymentReminder, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PaymentReminder
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rem)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListByMember returns every reminder of a member, oldest due date first.
func (r *ReminderRepository) ListByMember(ctx context.Context, memberID int64) ([]domain.PaymentReminder, error) {
	q := `SELECT ` + reminderColumns + ` FROM payment_reminders r WHERE r.member_id = $1 ORDER BY r.due_date, r.id`
	out, err := r.query(ctx, q, memberID)
	if err != nil {
		return nil, fmt.Errorf("list reminders of member %d: %w", memberID, err)
	}
	return out, nil
}

// ListUnpaid returns the reminders of all members that are not paid. Paid
// reminders never contribute to an overview, so they are not loaded.
func (r *ReminderRepository) ListUnpaid(ctx context.Context) ([]domain.PaymentReminder, error) {
	q := `SELECT ` + reminderColumns + ` FROM payment_reminders r WHERE r.status <> $1 ORDER BY r.member_id, r.due_date, r.id`
	out, err := r.query(ctx, q, string(domain.StatusPaid))
	if err != nil {
		return nil, fmt.Errorf("list unpaid reminders: %w", err)
	}
	return out, nil
}

func (r *ReminderRepository) Get(ctx context.Context, memberID, id int64) (*domain.PaymentReminder, error) {
	q := `SELECT ` + reminderColumns + ` FROM payment_reminders r WHERE r.id = $1 AND r.member_id = $2`
	rem, err := scanReminder(r.db.QueryRowContext(ctx, q, id, memberID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrReminderNotFound
		}
		return nil, fmt.Errorf("get reminder %d: %w", id, err)
	}
	return &rem, nil
}

// Create inserts rem in state pending and fills in the backend-assigned
// fields.
func (r *ReminderRepository) Create(ctx context.Context, rem *domain.PaymentReminder) error {
	q := `
		INSERT INTO payment_reminders (member_id, amount, due_date, status, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id, status, created_at`

	var notes sql.NullString
	if rem.Notes != nil {
		notes = sql.NullString{String: *rem.Notes, Valid: true}
	}

	var status string
	err := r.db.QueryRowContext(ctx, q,
		rem.MemberID,
		rem.Amount,
		rem.DueDate,
		string(domain.StatusPending),
		notes,
	).Scan(&rem.ID, &status, &rem.CreatedAt)
	if err != nil {
		return fmt.Errorf("create reminder for member %d: %w", rem.MemberID, err)
	}
	rem.Status = domain.ReminderStatus(status)
	return nil
}

func (r *ReminderRepository) Update(ctx context.Context, memberID, id int64, u ReminderUpdate) error {
	if u.Empty() {
		return nil
	}

	set := []string{}
	args := []any{}
	i := 1

	if u.Amount != nil {
		set = append(set, fmt.Sprintf("amount = $%d", i))
		args = append(args, *u.Amount)
		i++
	}
	if u.DueDate != nil {
		set = append(set, fmt.Sprintf("due_date = $%d", i))
		args = append(args, *u.DueDate)
		i++
	}
	if u.Notes != nil {
		set = append(set, fmt.Sprintf("notes = $%d", i))
		args = append(args, *u.Notes)
		i++
	}
	if u.Status != nil {
		set = append(set, fmt.Sprintf("status = $%d", i))
		args = append(args, string(*u.Status))
		i++
	}
	set = append(set, "updated_at = now()")

	q := fmt.Sprintf(`UPDATE payment_reminders SET %s WHERE id = $%d AND member_id = $%d AND status <> $%d`,
		strings.Join(set, ", "), i, i+1, i+2)
	args = append(args, id, memberID, string(domain.StatusPaid))

	return r.execUnpaid(ctx, q, memberID, id, args...)
}

// MarkSent records a successful delivery. A reminder paid in the meantime
// stays paid and ErrReminderPaid is returned.
func (r *ReminderRepository) MarkSent(ctx context.Context, memberID, id int64, sentAt time.Time) error {
	q := `UPDATE payment_reminders SET status = $1, sent_at = $2, updated_at = now() WHERE id = $3 AND member_id = $4 AND status <> $5`
	return r.execUnpaid(ctx, q, memberID, id, string(domain.StatusSent), sentAt, id, memberID, string(domain.StatusPaid))
}

func (r *ReminderRepository) Delete(ctx context.Context, memberID, id int64) error {
	q := `DELETE FROM payment_reminders WHERE id = $1 AND member_id = $2`
	return r.exec(ctx, q, id, id, memberID)
}

// execUnpaid runs a write guarded by status <> 'paid'. When nothing matched,
// the row is looked up again to tell a paid reminder from a missing one.
func (r *ReminderRepository) execUnpaid(ctx context.Context, q string, memberID, id int64, args ...any) error {
	err := r.exec(ctx, q, id, args...)
	if !errors.Is(err, domain.ErrReminderNotFound) {
		return err
	}

	var status string
	row := r.db.QueryRowContext(ctx, `SELECT status FROM payment_reminders WHERE id = $1 AND member_id = $2`, id, memberID)
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrReminderNotFound
		}
		return fmt.Errorf("reminder %d: %w", id, err)
	}
	if domain.ReminderStatus(status) == domain.StatusPaid {
		return domain.ErrReminderPaid
	}
	return domain.ErrReminderNotFound
}

func (r *ReminderRepository) exec(ctx context.Context, q string, id int64, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("reminder %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reminder %d: %w", id, err)
	}
	if n == 0 {
		return domain.ErrReminderNotFound
	}
	return nil
}
