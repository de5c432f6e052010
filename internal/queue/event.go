// Package queue defines the auth audit events published to RabbitMQ and
// the background consumer that records them.
package queue

import "time"

// AuditQueueName is the durable queue carrying auth audit events.
const AuditQueueName = "auth.audit"

// Audit event types.
const (
	EventUserRegistered    = "user.registered"
	EventUserLogin         = "user.login"
	EventUserLoginFailed   = "user.login_failed"
	EventUserLogout        = "user.logout"
	EventRoleUpdated       = "user.role_updated"
	EventTokenReuse        = "token.reuse_detected"
)

// AuthEvent is the payload published for every security-relevant auth
// action. Operators get the detail here; clients only ever see the
// generic error responses.
type AuthEvent struct {
	EventID  string    `json:"event_id"`
	Type     string    `json:"type"`
	UserID   uint64    `json:"user_id,omitempty"`
	Email    string    `json:"email,omitempty"`
	ClientIP string    `json:"client_ip,omitempty"`
	Detail   string    `json:"detail,omitempty"`
	At       time.Time `json:"at"`
}
