package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cadot-io/user-api/internal/apperrors"
	"github.com/cadot-io/user-api/internal/domain/entity"
	"github.com/cadot-io/user-api/internal/domain/repository"
)

const uniqueViolation = "23505"

const userColumns = `id, email, username, full_name, phone_number, avatar_url,
	hashed_password, is_active, is_superuser, created_at, updated_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create inserts the user and fills in the store-assigned fields. Duplicate
// email or username surfaces as the matching conflict error; insertion is
// atomic under concurrent registration because the unique constraints do the
// enforcement, not a pre-check.
func (r *UserRepository) Create(ctx context.Context, u *entity.User) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (email, username, full_name, phone_number, avatar_url,
		                   hashed_password, is_active, is_superuser)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`, u.Email, u.Username, u.FullName, u.PhoneNumber, u.AvatarURL,
		u.HashedPassword, u.IsActive, u.IsSuperuser)

	if err := row.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return mapConstraintErr(err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	return r.getBy(ctx, "id = $1", id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.getBy(ctx, "email = $1", email)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	return r.getBy(ctx, "username = $1", username)
}

func (r *UserRepository) getBy(ctx context.Context, where string, arg any) (*entity.User, error) {
	u := &entity.User{}
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg)
	if err := scanUser(row, u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// Update persists all mutable columns; updated_at is set by the row trigger.
func (r *UserRepository) Update(ctx context.Context, u *entity.User) error {
	row := r.pool.QueryRow(ctx, `
		UPDATE users
		SET email = $1, username = $2, full_name = $3, phone_number = $4,
		    avatar_url = $5, hashed_password = $6, is_active = $7, is_superuser = $8
		WHERE id = $9
		RETURNING updated_at
	`, u.Email, u.Username, u.FullName, u.PhoneNumber, u.AvatarURL,
		u.HashedPassword, u.IsActive, u.IsSuperuser, u.ID)

	if err := row.Scan(&u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrUserNotFound
		}
		return mapConstraintErr(err)
	}
	return nil
}

// ListPage returns one page of users ordered by creation time, plus the
// total row count for pagination metadata.
func (r *UserRepository) ListPage(ctx context.Context, offset, limit int) ([]*entity.User, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		ORDER BY created_at, id
		OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []*entity.User
	for rows.Next() {
		u := &entity.User{}
		if err := scanUser(rows, u); err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func scanUser(row pgx.Row, u *entity.User) error {
	return row.Scan(&u.ID, &u.Email, &u.Username, &u.FullName, &u.PhoneNumber,
		&u.AvatarURL, &u.HashedPassword, &u.IsActive, &u.IsSuperuser,
		&u.CreatedAt, &u.UpdatedAt)
}

// mapConstraintErr translates unique-violation errors into the taxonomy,
// keyed on constraint name so email and username collisions stay distinct.
func mapConstraintErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case "users_email_key":
			return apperrors.ErrEmailTaken
		case "users_username_key":
			return apperrors.ErrUsernameTaken
		default:
			return apperrors.Wrap(apperrors.KindConflict, "duplicate value", err)
		}
	}
	return err
}

var _ repository.UserRepository = (*UserRepository)(nil)
