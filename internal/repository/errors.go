// Package repository implements the credential store on top of
// database/sql. Sentinel errors defined here let handlers translate
// failure scenarios into typed HTTP responses without inspecting
// driver-specific errors.
package repository

import "errors"

// ErrEmailExists is returned when registration collides with an
// existing email. Handlers translate this into the generic
// "already exists" conflict response.
var ErrEmailExists = errors.New("email already exists")

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyRotated is returned when the compare-and-swap step of a
// refresh rotation finds the token already revoked. Under a concurrent
// double-rotate exactly one caller succeeds; the other receives this.
var ErrAlreadyRotated = errors.New("refresh token already rotated")
