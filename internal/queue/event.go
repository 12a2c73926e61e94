// Package queue defines the user lifecycle messages exchanged over RabbitMQ,
// the publisher used by the services and the audit-log consumer.
package queue

import "time"

// UserEventsQueue is the durable queue carrying user lifecycle events.
const UserEventsQueue = "user.events"

// Event names.
const (
	EventUserRegistered   = "user.registered"
	EventUserUpdated      = "user.updated"
	EventUserDeleted      = "user.deleted"
	EventUserRestored     = "user.restored"
	EventUserForceDeleted = "user.force_deleted"
)

// UserEvent is published after a successful user mutation. It carries enough
// for downstream consumers to log or notify without querying the database.
type UserEvent struct {
	Event      string    `json:"event"`
	UserID     uint64    `json:"user_id"`
	Email      string    `json:"email"`
	OccurredAt time.Time `json:"occurred_at"`
}
