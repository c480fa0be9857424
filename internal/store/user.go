package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/nvisust/authserver/types"
)

const uniqueViolation = "23505"

// userColumns is the shared select list: every user column plus the
// LEFT JOINed profile columns.
const userColumns = `
	u.id, u.username, u.email, u.first_name, u.last_name, u.role,
	u.phone, u.department, u.is_active, u.password_hash, u.created_at,
	p.user_id, p.bio, p.avatar, p.address, p.date_of_birth`

const userFrom = `
	FROM users u
	LEFT JOIN user_profiles p ON p.user_id = u.id`

// UserRepository handles persistence for users and their profiles.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	return r.getBy(ctx, "u.id = $1", id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return r.getBy(ctx, "u.email = $1", email)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return r.getBy(ctx, "u.username = $1", username)
}

func (r *UserRepository) getBy(ctx context.Context, where string, arg any) (types.User, error) {
	query := `SELECT` + userColumns + userFrom + ` WHERE ` + where
	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

// ExistsUsername reports whether any user holds the given username.
func (r *UserRepository) ExistsUsername(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username)
}

// ExistsPhone reports whether any user holds the given phone number.
func (r *UserRepository) ExistsPhone(ctx context.Context, phone string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE phone = $1)`, phone)
}

func (r *UserRepository) exists(ctx context.Context, query string, arg any) (bool, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, arg).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// List returns all users ordered by creation time, newest first.
func (r *UserRepository) List(ctx context.Context) ([]types.User, error) {
	query := `SELECT` + userColumns + userFrom + ` ORDER BY u.created_at DESC`
	return r.list(ctx, query)
}

// ListByRole returns users holding the given role, newest first.
func (r *UserRepository) ListByRole(ctx context.Context, role types.Role) ([]types.User, error) {
	query := `SELECT` + userColumns + userFrom + ` WHERE u.role = $1 ORDER BY u.created_at DESC`
	return r.list(ctx, query, role)
}

func (r *UserRepository) list(ctx context.Context, query string, args ...any) ([]types.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []types.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	const query = `
		INSERT INTO users (username, email, first_name, last_name, role, phone, department, is_active, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`
	err := r.db.QueryRowContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.FirstName,
		user.LastName,
		user.Role,
		nullableString(user.Phone),
		user.Department,
		user.IsActive,
		user.PasswordHash,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return types.User{}, mapConflict(err)
	}
	return user, nil
}

// Update persists the mutable user columns. created_at and password_hash
// are never touched here.
func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	const query = `
		UPDATE users
		SET first_name = $1,
			last_name = $2,
			role = $3,
			phone = $4,
			department = $5,
			is_active = $6
		WHERE id = $7`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.FirstName,
		user.LastName,
		user.Role,
		nullableString(user.Phone),
		user.Department,
		user.IsActive,
		user.ID,
	)
	if err != nil {
		return types.User{}, mapConflict(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.User{}, err
	}
	if affected == 0 {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

// Delete removes a user. The profile row cascades in SQL.
func (r *UserRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM users WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertProfile creates the profile row on first write and overwrites it
// afterwards. Callers merge partial updates before calling.
func (r *UserRepository) UpsertProfile(ctx context.Context, userID int, profile types.UserProfile) error {
	const query = `
		INSERT INTO user_profiles (user_id, bio, avatar, address, date_of_birth)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET bio = EXCLUDED.bio,
			avatar = EXCLUDED.avatar,
			address = EXCLUDED.address,
			date_of_birth = EXCLUDED.date_of_birth`
	_, err := r.db.ExecContext(ctx, query, userID, profile.Bio, profile.Avatar, profile.Address, profile.DateOfBirth)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (types.User, error) {
	var (
		user       types.User
		phone      sql.NullString
		profileID  sql.NullInt64
		bio        sql.NullString
		avatar     sql.NullString
		address    sql.NullString
		dob        sql.NullTime
	)
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.Role,
		&phone,
		&user.Department,
		&user.IsActive,
		&user.PasswordHash,
		&user.CreatedAt,
		&profileID,
		&bio,
		&avatar,
		&address,
		&dob,
	)
	if err != nil {
		return types.User{}, err
	}
	user.Phone = phone.String
	if profileID.Valid {
		user.Profile = &types.UserProfile{
			Bio:         nullStringPtr(bio),
			Avatar:      nullStringPtr(avatar),
			Address:     nullStringPtr(address),
			DateOfBirth: nullDatePtr(dob),
		}
	}
	return user, nil
}

func mapConflict(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrConflict
	}
	return err
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullDatePtr(nt sql.NullTime) *string {
	if !nt.Valid {
		return nil
	}
	s := nt.Time.Format(time.DateOnly)
	return &s
}
