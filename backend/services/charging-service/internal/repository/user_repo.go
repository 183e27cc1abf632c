package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"chargeway/backend/services/charging-service/internal/models"
)

// UserRepository handles CRUD for users table.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository returns repository instance.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// CreateUser inserts a new user. A taken email yields ErrDuplicate.
func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.ID.IsZero() {
		user.ID = models.NewID()
	}
	const query = `
		INSERT INTO users (id, name, region, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query, user.ID, user.Name, user.Region, user.Email, user.PasswordHash, user.Role).
		Scan(&user.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetUserByEmail fetches a user by email.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, region, email, password_hash, role, created_at
		FROM users
		WHERE email = $1
		LIMIT 1
	`, strings.ToLower(strings.TrimSpace(email)))
	return scanUser(row)
}

// GetUser fetches a user by id.
func (r *UserRepository) GetUser(ctx context.Context, id models.ID) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, region, email, password_hash, role, created_at
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

// SetRole changes the user's role.
func (r *UserRepository) SetRole(ctx context.Context, id models.ID, role models.Role) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET role = $2 WHERE id = $1`, id, role)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUsers returns every account, oldest first.
func (r *UserRepository) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, region, email, password_hash, role, created_at
		FROM users
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// UpdateUser overwrites the editable account fields. A taken email yields ErrDuplicate.
func (r *UserRepository) UpdateUser(ctx context.Context, user *models.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET name = $2, region = $3, email = $4, password_hash = $5, role = $6
		WHERE id = $1
	`, user.ID, user.Name, user.Region, user.Email, user.PasswordHash, user.Role)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	if err := row.Scan(&user.ID, &user.Name, &user.Region, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}
