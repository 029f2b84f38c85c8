package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"vereinskasse/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

var reminderRowColumns = []string{"id", "member_id", "amount", "due_date", "status", "sent_at", "notes", "created_at", "updated_at"}

func TestReminderRepository_ListByMember(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewReminderRepository(db)

	created := time.Date(2024, 12, 1, 9, 0, 0, 0, time.UTC)
	sentAt := time.Date(2024, 12, 2, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(reminderRowColumns).
		AddRow(int64(1), int64(7), "20.00", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "pending", nil, nil, created, nil).
		AddRow(int64(2), int64(7), "9.99", time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC), "sent", sentAt, "zweite Mahnung", created, sentAt)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM payment_reminders r WHERE r.member_id = $1 ORDER BY r.due_date, r.id`)).
		WithArgs(int64(7)).
		WillReturnRows(rows)

	out, err := repo.ListByMember(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.True(t, out[0].Amount.Equal(decimal.RequireFromString("20.00")))
	assert.Equal(t, domain.StatusPending, out[0].Status)
	assert.Nil(t, out[0].SentAt)
	assert.Nil(t, out[0].Notes)

	assert.Equal(t, domain.StatusSent, out[1].Status)
	require.NotNil(t, out[1].SentAt)
	assert.True(t, out[1].SentAt.Equal(sentAt))
	require.NotNil(t, out[1].Notes)
	assert.Equal(t, "zweite Mahnung", *out[1].Notes)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReminderRepository_ListUnpaid(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewReminderRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE r.status <> $1`)).
		WithArgs("paid").
		WillReturnRows(sqlmock.NewRows(reminderRowColumns))

	out, err := repo.ListUnpaid(context.Background())
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReminderRepository_Get_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewReminderRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE r.id = $1 AND r.member_id = $2`)).
		WithArgs(int64(99), int64(7)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), 7, 99)
	assert.ErrorIs(t, err, domain.ErrReminderNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReminderRepository_Create(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewReminderRepository(db)

	notes := "Beitrag Q1"
	due := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	created := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO payment_reminders (member_id, amount, due_date, status, notes, created_at)`)).
		WithArgs(int64(7), sqlmock.AnyArg(), due, "pending", notes).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "created_at"}).AddRow(int64(42), "pending", created))

	rem := &domain.PaymentReminder{
		MemberID: 7,
		Amount:   decimal.RequireFromString("15.00"),
		DueDate:  due,
		Notes:    &notes,
	}
	require.NoError(t, repo.Create(context.Background(), rem))

	assert.Equal(t, int64(42), rem.ID)
	assert.Equal(t, domain.StatusPending, rem.Status)
	assert.True(t, rem.CreatedAt.Equal(created))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReminderRepository_Update_BuildsPartialSet(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewReminderRepository(db)

	paid := domain.StatusPaid
	notes := "bar bezahlt"

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE payment_reminders SET notes = $1, status = $2, updated_at = now() WHERE id = $3 AND member_id = $4 AND status <> $5`)).
		WithArgs(notes, "paid", int64(5), int64(7), "paid").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), 7, 5, ReminderUpdate{Notes: &notes, Status: &paid})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReminderRepository_Update_EmptyIsNoop(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewReminderRepository(db)

	require.NoError(t, repo.Update(context.Background(), 7, 5, ReminderUpdate{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReminderRepository_MarkSent(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewReminderRepository(db)

	sentAt := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE payment_reminders SET status = $1, sent_at = $2`)).
		WithArgs("sent", sentAt, int64(5), int64(7), "paid").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkSent(context.Background(), 7, 5, sentAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReminderRepository_WritesLeavePaidRemindersAlone(t *testing.T) {
	sentAt := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	notes := "korrigiert"

	tests := []struct {
		name   string
		status any
		want   error
		write  func(repo *ReminderRepository) error
	}{
		{
			name:   "mark sent on paid",
			status: "paid",
			want:   domain.ErrReminderPaid,
			write:  func(repo *ReminderRepository) error { return repo.MarkSent(context.Background(), 7, 5, sentAt) },
		},
		{
			name:   "update on paid",
			status: "paid",
			want:   domain.ErrReminderPaid,
			write: func(repo *ReminderRepository) error {
				return repo.Update(context.Background(), 7, 5, ReminderUpdate{Notes: &notes})
			},
		},
		{
			name:  "mark sent on missing",
			want:  domain.ErrReminderNotFound,
			write: func(repo *ReminderRepository) error { return repo.MarkSent(context.Background(), 7, 5, sentAt) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			repo := NewReminderRepository(db)

			mock.ExpectExec(regexp.QuoteMeta(`AND status <> $`)).
				WillReturnResult(sqlmock.NewResult(0, 0))
			q := mock.ExpectQuery(regexp.QuoteMeta(`SELECT status FROM payment_reminders WHERE id = $1 AND member_id = $2`)).
				WithArgs(int64(5), int64(7))
			if tt.status != nil {
				q.WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(tt.status))
			} else {
				q.WillReturnError(sql.ErrNoRows)
			}

			assert.ErrorIs(t, tt.write(repo), tt.want)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestReminderRepository_Delete(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewReminderRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM payment_reminders WHERE id = $1 AND member_id = $2`)).
		WithArgs(int64(5), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM payment_reminders WHERE id = $1 AND member_id = $2`)).
		WithArgs(int64(5), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(context.Background(), 7, 5))
	assert.ErrorIs(t, repo.Delete(context.Background(), 7, 5), domain.ErrReminderNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
