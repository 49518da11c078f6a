package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"profile-api/internal/domain"
)

// ErrDuplicate se devuelve cuando un INSERT viola una restriccion unique.
var ErrDuplicate = errors.New("duplicate record")

const pgUniqueViolation = "23505"

// UserRepository define el contrato de persistencia para usuarios y perfiles.
type UserRepository interface {
	CreateWithProfile(ctx context.Context, user domain.User, profile domain.Profile) error
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateAccount(ctx context.Context, id string, update domain.AccountUpdate) error
	SetAvatar(ctx context.Context, id string, avatar *string) error
	GetProfile(ctx context.Context, userID string) (domain.UserProfile, error)
}

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

// CreateWithProfile inserta usuario y perfil en una misma transaccion.
func (r *PgUserRepository) CreateWithProfile(ctx context.Context, user domain.User, profile domain.Profile) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const insertUser = `
			INSERT INTO users (id, email, password_hash, first_name, last_name, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		if _, err := tx.Exec(ctx, insertUser,
			user.ID,
			user.Email,
			user.PasswordHash,
			user.FirstName,
			user.LastName,
			user.CreatedAt,
			user.UpdatedAt,
		); err != nil {
			return mapWriteError(err)
		}

		const insertProfile = `
			INSERT INTO profiles (id, user_id, phone, description, latitude, longitude, commercial, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`
		_, err := tx.Exec(ctx, insertProfile,
			profile.ID,
			profile.UserID,
			profile.Phone,
			profile.Description,
			profile.Latitude,
			profile.Longitude,
			profile.Commercial,
			profile.CreatedAt,
			profile.UpdatedAt,
		)
		return mapWriteError(err)
	})
}

const selectUser = `
	SELECT id, email, password_hash, first_name, last_name, COALESCE(avatar, ''), created_at, updated_at
	FROM users
`

func (r *PgUserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	return r.scanUser(r.pool.QueryRow(ctx, selectUser+` WHERE id = $1`, id))
}

func (r *PgUserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.scanUser(r.pool.QueryRow(ctx, selectUser+` WHERE email = $1`, email))
}

func (r *PgUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists)
	return exists, err
}

func (r *PgUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	const query = `
		UPDATE users SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, passwordHash, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// UpdateAccount aplica un update parcial sobre users y profiles en una transaccion.
func (r *PgUserRepository) UpdateAccount(ctx context.Context, id string, update domain.AccountUpdate) error {
	now := time.Now().UTC()
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if update.TouchesUser() {
			const query = `
				UPDATE users SET
					first_name = COALESCE($2, first_name),
					last_name = COALESCE($3, last_name),
					updated_at = $4
				WHERE id = $1
			`
			tag, err := tx.Exec(ctx, query, id, update.FirstName, update.LastName, now)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return pgx.ErrNoRows
			}
		}
		if update.TouchesProfile() {
			const query = `
				UPDATE profiles SET
					phone = COALESCE($2, phone),
					description = COALESCE($3, description),
					latitude = COALESCE($4, latitude),
					longitude = COALESCE($5, longitude),
					commercial = COALESCE($6, commercial),
					updated_at = $7
				WHERE user_id = $1
			`
			tag, err := tx.Exec(ctx, query, id,
				update.Phone,
				update.Description,
				update.Latitude,
				update.Longitude,
				update.Commercial,
				now,
			)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return pgx.ErrNoRows
			}
		}
		return nil
	})
}

func (r *PgUserRepository) SetAvatar(ctx context.Context, id string, avatar *string) error {
	const query = `
		UPDATE users SET avatar = $2, updated_at = $3
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, avatar, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgUserRepository) GetProfile(ctx context.Context, userID string) (domain.UserProfile, error) {
	const query = `
		SELECT u.first_name, u.last_name, u.email, COALESCE(u.avatar, ''),
		       p.phone, p.description, p.latitude, p.longitude, p.commercial
		FROM users u
		JOIN profiles p ON p.user_id = u.id
		WHERE u.id = $1
	`
	var p domain.UserProfile
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&p.FirstName,
		&p.LastName,
		&p.Email,
		&p.Avatar,
		&p.Phone,
		&p.Description,
		&p.Latitude,
		&p.Longitude,
		&p.Commercial,
	)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return p, nil
}

func (r *PgUserRepository) scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.Avatar,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrDuplicate
	}
	return err
}
