package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/confhub/confhub/internal/model"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestUserRepoCreate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	mock.ExpectExec("INSERT INTO users (email, name, password_hash, roles) VALUES (?,?,?,?)").
		WithArgs("ann@example.com", "Ann", sqlmock.AnyArg(), "attendee").
		WillReturnResult(sqlmock.NewResult(7, 1))

	id, err := repo.Create(context.Background(), " Ann@Example.com ", "Ann", "Passw0rd1", model.NewRoleSet(model.RoleAttendee), 4)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if id != 7 {
		t.Errorf("Create() id = %d, want 7", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUserRepoCreate_DuplicateEmail(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	mock.ExpectExec("INSERT INTO users (email, name, password_hash, roles) VALUES (?,?,?,?)").
		WithArgs("ann@example.com", "Ann", sqlmock.AnyArg(), "attendee").
		WillReturnError(errors.New("Error 1062 (23000): Duplicate entry 'ann@example.com' for key 'users.email'"))

	_, err := repo.Create(context.Background(), "ann@example.com", "Ann", "AnotherPass1", model.NewRoleSet(model.RoleAttendee), 4)
	if !errors.Is(err, ErrEmailExists) {
		t.Errorf("Create() error = %v, want ErrEmailExists", err)
	}
}

func TestUserRepoGetByEmail(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "email", "name", "password_hash", "roles", "created_at", "updated_at"}).
		AddRow(3, "ann@example.com", "Ann", "$2a$04$hash", "organizer,admin", now, now)
	mock.ExpectQuery("SELECT id,email,name,password_hash,roles,created_at,updated_at FROM users WHERE email=? LIMIT 1").
		WithArgs("ann@example.com").
		WillReturnRows(rows)

	u, err := repo.GetByEmail(context.Background(), "ANN@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if u.ID != 3 {
		t.Errorf("ID = %d, want 3", u.ID)
	}
	if !u.Roles.Has(model.RoleAdmin) || !u.Roles.Has(model.RoleOrganizer) {
		t.Errorf("Roles = %v, want admin+organizer", u.Roles)
	}
}

func TestUserRepoGetByEmail_CorruptRoles(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "email", "name", "password_hash", "roles", "created_at", "updated_at"}).
		AddRow(3, "ann@example.com", "Ann", "$2a$04$hash", "root", now, now)
	mock.ExpectQuery("SELECT id,email,name,password_hash,roles,created_at,updated_at FROM users WHERE email=? LIMIT 1").
		WithArgs("ann@example.com").
		WillReturnRows(rows)

	if _, err := repo.GetByEmail(context.Background(), "ann@example.com"); err == nil {
		t.Error("GetByEmail() should surface a corrupted roles column")
	}
}

func TestUserRepoUpdateRoles(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	mock.ExpectExec("UPDATE users SET roles=? WHERE id=?").
		WithArgs("organizer", uint64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateRoles(context.Background(), 3, model.NewRoleSet(model.RoleOrganizer)); err != nil {
		t.Fatalf("UpdateRoles() error = %v", err)
	}
}

func TestUserRepoUpdateRoles_MissingUser(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	mock.ExpectExec("UPDATE users SET roles=? WHERE id=?").
		WithArgs("organizer", uint64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1 FROM users WHERE id=? LIMIT 1").
		WithArgs(uint64(99)).
		WillReturnError(sql.ErrNoRows)

	err := repo.UpdateRoles(context.Background(), 99, model.NewRoleSet(model.RoleOrganizer))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateRoles() error = %v, want ErrNotFound", err)
	}
}
