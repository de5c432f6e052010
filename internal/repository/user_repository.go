package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/confhub/confhub/internal/model"
	"github.com/confhub/confhub/internal/utils"
)

// UserRepo persists user records in the 'users' table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// Create hashes the password and inserts a user, returning its ID.
// Email uniqueness is enforced by the unique index; a duplicate-key
// failure maps to ErrEmailExists.
func (r *UserRepo) Create(ctx context.Context, email, name, password string, roles model.RoleSet, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, name, password_hash, roles) VALUES (?,?,?,?)",
		email, name, hash, roles.String())
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT id,email,name,password_hash,roles,created_at,updated_at FROM users WHERE email=? LIMIT 1",
		email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT id,email,name,password_hash,roles,created_at,updated_at FROM users WHERE id=? LIMIT 1",
		id))
}

// UpdateRoles replaces a user's role set.
func (r *UserRepo) UpdateRoles(ctx context.Context, id uint64, roles model.RoleSet) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET roles=? WHERE id=?", roles.String(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Distinguish "no such user" from "roles unchanged".
		var one int
		if scanErr := r.DB.QueryRowContext(ctx,
			"SELECT 1 FROM users WHERE id=? LIMIT 1", id).Scan(&one); scanErr != nil {
			if errors.Is(scanErr, sql.ErrNoRows) {
				return ErrNotFound
			}
			return scanErr
		}
	}
	return nil
}

func (r *UserRepo) scanOne(row *sql.Row) (model.User, error) {
	var (
		u        model.User
		rolesRaw string
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &rolesRaw, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, err
	}
	u.Roles, err = model.ParseRoleSet(rolesRaw)
	if err != nil {
		return model.User{}, err
	}
	return u, nil
}
