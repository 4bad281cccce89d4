package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditRecord is one immutable row in the operator-visible audit trail.
type AuditRecord struct {
	EntityType string
	EntityID   uuid.UUID
	ActorID    *uuid.UUID
	Action     string
	PrevState  string
	NextState  string
	Metadata   map[string]string
	CreatedAt  time.Time
}
