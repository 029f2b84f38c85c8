package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"vereinskasse/internal/domain"

	"github.com/shopspring/decimal"
)

type MemberRepository struct {
	db *sql.DB
}

func NewMemberRepository(db *sql.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

const memberColumns = `m.id, m.first_name, m.last_name, m.email, m.beitrag_monthly, m.status`

func scanMember(row rowScanner) (domain.Member, error) {
	var (
		m       domain.Member
		email   sql.NullString
		beitrag decimal.NullDecimal
	)
	if err := row.Scan(&m.ID, &m.FirstName, &m.LastName, &email, &beitrag, &m.Status); err != nil {
		return m, err
	}
	if email.Valid {
		m.Email = &email.String
	}
	if beitrag.Valid {
		b := beitrag.Decimal
		m.BeitragMonthly = &b
	}
	return m, nil
}

func (r *MemberRepository) Get(ctx context.Context, id int64) (*domain.Member, error) {
	q := `SELECT ` + memberColumns + ` FROM members m WHERE m.id = $1 AND m.deleted_at IS NULL`
	m, err := scanMember(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMemberNotFound
		}
		return nil, fmt.Errorf("get member %d: %w", id, err)
	}
	return &m, nil
}

// List returns the roster in id order, which is the order the overview
// keeps within a tier.
func (r *MemberRepository) List(ctx context.Context) ([]domain.Member, error) {
	q := `SELECT ` + memberColumns + ` FROM members m WHERE m.deleted_at IS NULL ORDER BY m.id`

	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []domain.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
