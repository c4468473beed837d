package usecase

import (
	"context"
	"encoding/json"
	"time"

	"delivery/internal/domain/model"
	repo "delivery/internal/repository"
)

// writeAudit は管理者操作を同じトランザクション内で記録する
func writeAudit(
	ctx context.Context,
	r repo.TxRepos,
	actor *model.User,
	action model.AuditAction,
	resource model.AuditResourceType,
	resourceID int64,
	before, after any,
) error {
	b, err := json.Marshal(before)
	if err != nil {
		return err
	}
	a, err := json.Marshal(after)
	if err != nil {
		return err
	}
	return r.AuditLogs().Create(ctx, model.AuditLog{
		ActorUserID:  actor.ID,
		Action:       action,
		ResourceType: resource,
		ResourceID:   resourceID,
		BeforeJSON:   string(b),
		AfterJSON:    string(a),
		CreatedAt:    time.Now(),
	})
}
