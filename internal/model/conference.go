package model

import "time"

// Conference is the minimal owner-bearing resource the authorization
// layer protects. Full conference management (sections, slots,
// submissions) lives outside the auth core and only needs the owner
// reference modeled here.
//
// Fields:
//  ID        – primary key identifier.
//  Title     – conference title.
//  CreatedBy – user ID of the organizer who created it.
//  CreatedAt – timestamp when the conference was created.
type Conference struct {
	ID        uint64    `json:"id"`        // conferences.id
	Title     string    `json:"title"`     // conferences.title
	CreatedBy uint64    `json:"createdBy"` // conferences.created_by
	CreatedAt time.Time `json:"createdAt"` // conferences.created_at
}
