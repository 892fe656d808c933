package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/fintrack/fintrack/internal/domain/user"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// ErrStaleRefreshToken signals a lost rotation race: the stored token changed
// between read and write. Callers treat it like an invalid token.
var ErrStaleRefreshToken = errors.New("refresh token no longer current")

const userColumns = `id, email, password_hash, first_name, last_name, currency,
	profile_image, is_active, last_login, refresh_token, refresh_token_expires_at,
	created_at, updated_at`

type UsersRepo struct {
	pool *pgxpool.Pool
}

func NewUsersRepo(pool *pgxpool.Pool) *UsersRepo {
	return &UsersRepo{pool: pool}
}

func scanUser(row pgx.Row) (user.User, error) {
	var u user.User

	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.Currency,
		&u.ProfileImage,
		&u.IsActive,
		&u.LastLogin,
		&u.RefreshToken,
		&u.RefreshTokenExpiresAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}

		return user.User{}, err
	}
	return u, nil
}

func (r *UsersRepo) Create(ctx context.Context, email, passwordHash, firstName, lastName, currency string) (user.User, error) {
	id := uuid.NewString()

	u, err := scanUser(r.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, password_hash, first_name, last_name, currency)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+userColumns,
		id, email, passwordHash, firstName, lastName, currency,
	))

	if err != nil {
		var pgErr *pgconn.PgError

		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return user.User{}, user.ErrEmailAlreadyUsed
		}

		return user.User{}, err
	}
	return u, nil
}

// GetByEmail matches exactly as stored; no case folding.
func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// UpdateProfile applies only the non-nil fields. Email and password never
// pass through here; those have dedicated flows.
func (r *UsersRepo) UpdateProfile(ctx context.Context, id string, req user.UpdateProfileRequest) (user.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`UPDATE users
		 SET first_name    = COALESCE($2, first_name),
		     last_name     = COALESCE($3, last_name),
		     currency      = COALESCE($4, currency),
		     profile_image = COALESCE($5, profile_image),
		     updated_at    = NOW()
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, req.FirstName, req.LastName, req.Currency, req.ProfileImage,
	))
}

func (r *UsersRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`,
		id, passwordHash)

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}

	return nil
}

func (r *UsersRepo) TouchLastLogin(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET last_login = NOW() WHERE id = $1`, id)

	return err
}

// SetRefreshToken overwrites the single refresh slot (login and registration).
func (r *UsersRepo) SetRefreshToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users
		 SET refresh_token = $2, refresh_token_expires_at = $3, updated_at = NOW()
		 WHERE id = $1`,
		id, token, expiresAt)

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}

	return nil
}

// GetByRefreshToken finds the holder of a still-unexpired refresh token.
func (r *UsersRepo) GetByRefreshToken(ctx context.Context, token string) (user.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+`
		 FROM users
		 WHERE refresh_token = $1 AND refresh_token_expires_at > NOW()`,
		token))
}

// RotateRefreshToken replaces oldToken only if it is still the stored value.
// Two concurrent refreshes cannot both win; the loser sees ErrStaleRefreshToken.
func (r *UsersRepo) RotateRefreshToken(ctx context.Context, id, oldToken, newToken string, expiresAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users
		 SET refresh_token = $3, refresh_token_expires_at = $4, updated_at = NOW()
		 WHERE id = $1 AND refresh_token = $2`,
		id, oldToken, newToken, expiresAt)

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return ErrStaleRefreshToken
	}

	return nil
}

// ClearRefreshTokenByValue revokes whichever session holds the token.
// No-op when nothing matches; logout is idempotent.
func (r *UsersRepo) ClearRefreshTokenByValue(ctx context.Context, token string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users
		 SET refresh_token = NULL, refresh_token_expires_at = NULL, updated_at = NOW()
		 WHERE refresh_token = $1`,
		token)

	return err
}

func (r *UsersRepo) ClearRefreshToken(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users
		 SET refresh_token = NULL, refresh_token_expires_at = NULL, updated_at = NOW()
		 WHERE id = $1`,
		id)

	return err
}

// Deactivate flips is_active and clears the refresh slot in one statement,
// so both happen or neither.
func (r *UsersRepo) Deactivate(ctx context.Context, id string) (user.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`UPDATE users
		 SET is_active = FALSE,
		     refresh_token = NULL,
		     refresh_token_expires_at = NULL,
		     updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+userColumns,
		id))
}
