package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/confhub/confhub/internal/model"
)

// ConferenceRepo stores the owner-bearing conference rows the
// authorization layer checks against. Full conference management is
// handled elsewhere; the auth core only needs creation and the owner
// reference.
type ConferenceRepo struct{ DB *sql.DB }

func NewConferenceRepo(db *sql.DB) *ConferenceRepo { return &ConferenceRepo{DB: db} }

// Create inserts a conference owned by createdBy and returns its ID.
func (r *ConferenceRepo) Create(ctx context.Context, title string, createdBy uint64) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO conferences (title, created_by) VALUES (?,?)",
		title, createdBy)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByID fetches a conference by id.
func (r *ConferenceRepo) GetByID(ctx context.Context, id uint64) (model.Conference, error) {
	var cf model.Conference
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, title, created_by, created_at FROM conferences WHERE id=? LIMIT 1",
		id).Scan(&cf.ID, &cf.Title, &cf.CreatedBy, &cf.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Conference{}, ErrNotFound
		}
		return model.Conference{}, err
	}
	return cf, nil
}

// OwnerID returns the owning user of a conference. Used by the
// ownership middleware as an explicit per-route lookup.
func (r *ConferenceRepo) OwnerID(ctx context.Context, id uint64) (uint64, error) {
	var owner uint64
	err := r.DB.QueryRowContext(ctx,
		"SELECT created_by FROM conferences WHERE id=? LIMIT 1",
		id).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return owner, nil
}
