package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sellershub/settlement-engine/internal/domain"
)

// AuditService writes the immutable, operator-visible audit trail. Failure
// reasons for payouts land here in addition to the payout row itself.
type AuditService struct{}

func NewAuditService() *AuditService {
	return &AuditService{}
}

// Write stores a single audit record through the supplied query set, so it
// joins whatever transaction the caller is in.
func (s *AuditService) Write(ctx context.Context, q Queries, entityType string, entityID uuid.UUID, actorID *uuid.UUID, action string, prev, next domain.PayoutStatus, metadata map[string]string) error {
	if err := q.InsertAuditLog(ctx, domain.AuditRecord{
		EntityType: entityType,
		EntityID:   entityID,
		ActorID:    actorID,
		Action:     action,
		PrevState:  string(prev),
		NextState:  string(next),
		Metadata:   metadata,
		CreatedAt:  time.Now(),
	}); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func reasonMetadata(reason string) map[string]string {
	return map[string]string{"reason": reason}
}
