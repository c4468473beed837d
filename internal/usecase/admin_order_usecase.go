package usecase

import (
	"context"
	"strings"
	"time"

	"delivery/internal/domain/apperr"
	"delivery/internal/domain/model"
	repo "delivery/internal/repository"
)

type AdminOrderUsecase struct {
	repos repo.TxRepos
}

func NewAdminOrderUsecase(repos repo.TxRepos) *AdminOrderUsecase {
	return &AdminOrderUsecase{repos: repos}
}

// 管理者の注文一覧の条件（handlerでクエリ文字列から作る）
type AdminOrderListInput struct {
	Page   int
	Limit  int
	Status string
	UserID *int64
	From   string // RFC3339
	To     string // RFC3339
}

// 全ユーザーの注文一覧
func (u *AdminOrderUsecase) List(ctx context.Context, actor *model.User, in AdminOrderListInput) (OrderListOutput, error) {
	if !actor.IsAdmin() {
		return OrderListOutput{}, apperr.ErrForbidden
	}

	page, limit, err := normalizePage(in.Page, in.Limit)
	if err != nil {
		return OrderListOutput{}, err
	}

	f := repo.AdminOrderListFilter{Page: page, Limit: limit, UserID: in.UserID}
	if s := strings.TrimSpace(in.Status); s != "" {
		st, ok := model.ParseOrderStatus(s)
		if !ok {
			return OrderListOutput{}, apperr.Validation("status must be one of PENDING, CONFIRMED, COMPLETED, CANCELED")
		}
		f.Status = string(st)
	}
	if f.From, err = parseDateTimeRFC3339("from", in.From); err != nil {
		return OrderListOutput{}, err
	}
	if f.To, err = parseDateTimeRFC3339("to", in.To); err != nil {
		return OrderListOutput{}, err
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return OrderListOutput{}, apperr.Validation("from must be before to")
	}

	orders, total, err := u.repos.Orders().ListAdmin(ctx, f)
	if err != nil {
		return OrderListOutput{}, storageErr("orders.list_admin", err)
	}

	outs := make([]OrderOutput, 0, len(orders))
	for _, o := range orders {
		items, err := u.repos.OrderItems().ListByOrderID(ctx, o.ID)
		if err != nil {
			return OrderListOutput{}, storageErr("order_items.list", err)
		}
		outs = append(outs, toOrderOutput(o, items))
	}
	return OrderListOutput{Items: outs, Page: page, Limit: limit, Total: total}, nil
}

type AuditLogListInput struct {
	ActorUserID  *int64
	Action       string
	ResourceType string
	ResourceID   *int64
	Limit        int
	Offset       int
}

// 監査ログ一覧（新しい順）
func (u *AdminOrderUsecase) ListAuditLogs(ctx context.Context, actor *model.User, in AuditLogListInput) ([]model.AuditLog, error) {
	if !actor.IsAdmin() {
		return nil, apperr.ErrForbidden
	}
	if in.Limit < 0 || in.Limit > 200 {
		return nil, apperr.Validation("limit must be between 1 and 200")
	}
	if in.Offset < 0 {
		return nil, apperr.Validation("offset must be >= 0")
	}

	f := repo.AuditLogFilter{
		ActorUserID: in.ActorUserID,
		ResourceID:  in.ResourceID,
		Limit:       in.Limit,
		Offset:      in.Offset,
	}
	if in.Action != "" {
		a := model.AuditAction(strings.ToUpper(in.Action))
		f.Action = &a
	}
	if in.ResourceType != "" {
		rt := model.AuditResourceType(strings.ToLower(in.ResourceType))
		f.ResourceType = &rt
	}

	logs, err := u.repos.AuditLogs().List(ctx, f)
	if err != nil {
		return nil, storageErr("audit_logs.list", err)
	}
	return logs, nil
}

// 期間パラメータ。空ならnil
func parseDateTimeRFC3339(field, s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, apperr.Validation("%s must be an RFC3339 timestamp", field)
	}
	return &t, nil
}
