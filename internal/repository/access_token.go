package repository

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"vereinskasse/internal/domain"
)

var ErrTokenNotFound = errors.New("token not found")

type AccessTokenRepository struct {
	db *sql.DB
}

func NewAccessTokenRepository(db *sql.DB) *AccessTokenRepository {
	return &AccessTokenRepository{db: db}
}

// HashToken returns the stored form of the secret part of a plain token.
func HashToken(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// SplitPlainToken splits "<id>|<secret>" into its parts. Tokens without an
// id prefix yield a nil id.
func SplitPlainToken(plain string) (*int64, string) {
	plain = strings.TrimSpace(plain)
	idx := strings.Index(plain, "|")
	if idx <= 0 {
		return nil, plain
	}
	id, err := strconv.ParseInt(plain[:idx], 10, 64)
	if err != nil {
		return nil, plain[idx+1:]
	}
	return &id, plain[idx+1:]
}

func (r *AccessTokenRepository) FindByPlainToken(ctx context.Context, plain string) (*domain.AccessToken, error) {
	id, secret := SplitPlainToken(plain)
	if secret == "" {
		return nil, ErrTokenNotFound
	}
	hash := HashToken(secret)

	var (
		query string
		args  []any
	)
	if id != nil {
		query = `
			SELECT id, token_hash, user_id, abilities, expires_at
			FROM access_tokens
			WHERE id = $1 AND token_hash = $2
			  AND (expires_at IS NULL OR expires_at > $3)`
		args = []any{*id, hash, time.Now()}
	} else {
		query = `
			SELECT id, token_hash, user_id, abilities, expires_at
			FROM access_tokens
			WHERE token_hash = $1
			  AND (expires_at IS NULL OR expires_at > $2)
			ORDER BY created_at DESC
			LIMIT 1`
		args = []any{hash, time.Now()}
	}

	var (
		tok       domain.AccessToken
		expiresAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&tok.ID,
		&tok.TokenHash,
		&tok.UserID,
		&tok.Abilities,
		&expiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("find access token: %w", err)
	}
	if expiresAt.Valid {
		tok.ExpiresAt = &expiresAt.Time
	}

	// best effort; a failed touch must not reject a valid token
	_, _ = r.db.ExecContext(ctx, `UPDATE access_tokens SET last_used_at = now() WHERE id = $1`, tok.ID)

	return &tok, nil
}
