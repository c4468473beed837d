package usecase

import (
	"context"
	"fmt"

	"delivery/internal/domain/apperr"
	"delivery/internal/domain/model"
	repo "delivery/internal/repository"
)

const (
	maxItemsPerOrder = 50
	maxItemQuantity  = 1000
)

// OrderUsecase は注文と明細の読み書き、所有者チェックを担当する。
// 所有者チェックはここだけで行い、handlerでは行わない
type OrderUsecase struct {
	tx    repo.TransactionManager
	repos repo.TxRepos
}

func NewOrderUsecase(tx repo.TransactionManager, repos repo.TxRepos) *OrderUsecase {
	return &OrderUsecase{tx: tx, repos: repos}
}

type OrderItemInput struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gte=1,lte=1000"`
}

type CreateOrderInput struct {
	Items []OrderItemInput `json:"items" validate:"required,min=1,max=50,dive"`
}

// 本人か管理者だけ。それ以外は403（存在を隠すための404にはしない）
func authorize(actor *model.User, o model.Order) error {
	if actor == nil {
		return apperr.ErrMissingToken
	}
	if o.UserID != actor.ID && !actor.IsAdmin() {
		return apperr.ErrForbidden
	}
	return nil
}

// prefixはエラーメッセージのフィールド名の前に付ける（"items[0]." など）
func validateItem(prefix string, in OrderItemInput) error {
	if in.ProductID <= 0 {
		return apperr.Validation("%sproduct_id must be a positive integer", prefix)
	}
	if in.Quantity <= 0 || in.Quantity > maxItemQuantity {
		return apperr.Validation("%squantity must be between 1 and %d", prefix, maxItemQuantity)
	}
	return nil
}

// 商品を引いてスナップショット付きの明細にする。非公開・存在しない商品は入力エラー
func buildItems(ctx context.Context, r repo.TxRepos, in []OrderItemInput) ([]model.OrderItem, error) {
	ids := make([]int64, 0, len(in))
	for _, it := range in {
		ids = append(ids, it.ProductID)
	}
	products, err := r.Products().FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	items := make([]model.OrderItem, 0, len(in))
	for i, it := range in {
		p, ok := byID[it.ProductID]
		if !ok || !p.IsActive {
			return nil, apperr.Validation("items[%d].product_id %d does not refer to an available product", i, it.ProductID)
		}
		items = append(items, model.OrderItem{
			ProductID:           p.ID,
			ProductNameSnapshot: p.Name,
			SizeSnapshot:        p.Size,
			UnitPriceSnapshot:   p.Price,
			Quantity:            it.Quantity,
		})
	}
	return items, nil
}

// CreateOrder は注文と明細を1つのトランザクションで作る
func (u *OrderUsecase) CreateOrder(ctx context.Context, actor *model.User, in CreateOrderInput) (OrderOutput, error) {
	if actor == nil {
		return OrderOutput{}, apperr.ErrMissingToken
	}
	if len(in.Items) == 0 {
		return OrderOutput{}, apperr.Validation("an order needs at least one item")
	}
	if len(in.Items) > maxItemsPerOrder {
		return OrderOutput{}, apperr.Validation("an order can have at most %d items", maxItemsPerOrder)
	}
	for i, it := range in.Items {
		if err := validateItem(fmt.Sprintf("items[%d].", i), it); err != nil {
			return OrderOutput{}, err
		}
	}

	var out OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		items, err := buildItems(ctx, r, in.Items)
		if err != nil {
			return err
		}

		total, err := orderTotal(items)
		if err != nil {
			return err
		}
		order := model.Order{
			UserID:     actor.ID,
			Status:     model.OrderStatusPending,
			TotalPrice: total,
		}
		orderID, err := r.Orders().Create(ctx, order)
		if err != nil {
			return err
		}
		if err := r.OrderItems().CreateBulk(ctx, orderID, items); err != nil {
			return err
		}

		created, err := r.Orders().FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		out = toOrderOutput(created, items)
		return nil
	})
	if err != nil {
		return OrderOutput{}, storageErr("orders.create", err)
	}
	return out, nil
}

// GetOrder は本人または管理者にだけ注文を返す
func (u *OrderUsecase) GetOrder(ctx context.Context, actor *model.User, orderID int64) (OrderOutput, error) {
	o, err := u.loadAuthorized(ctx, actor, orderID)
	if err != nil {
		return OrderOutput{}, err
	}
	items, err := u.repos.OrderItems().ListByOrderID(ctx, o.ID)
	if err != nil {
		return OrderOutput{}, storageErr("order_items.list", err)
	}
	return toOrderOutput(o, items), nil
}

// ListMyOrders はログインユーザー自身の注文一覧
func (u *OrderUsecase) ListMyOrders(ctx context.Context, actor *model.User, page, limit int) (OrderListOutput, error) {
	if actor == nil {
		return OrderListOutput{}, apperr.ErrMissingToken
	}
	return u.listByUser(ctx, actor.ID, page, limit)
}

// ListUserOrders は指定ユーザーの注文一覧。本人か管理者のみ
func (u *OrderUsecase) ListUserOrders(ctx context.Context, actor *model.User, userID int64, page, limit int) (OrderListOutput, error) {
	if actor == nil {
		return OrderListOutput{}, apperr.ErrMissingToken
	}
	if actor.ID != userID && !actor.IsAdmin() {
		return OrderListOutput{}, apperr.ErrForbidden
	}
	return u.listByUser(ctx, userID, page, limit)
}

func (u *OrderUsecase) listByUser(ctx context.Context, userID int64, page, limit int) (OrderListOutput, error) {
	page, limit, err := normalizePage(page, limit)
	if err != nil {
		return OrderListOutput{}, err
	}
	orders, total, err := u.repos.Orders().ListByUserID(ctx, userID, page, limit)
	if err != nil {
		return OrderListOutput{}, storageErr("orders.list", err)
	}
	outs, err := u.withItems(ctx, orders)
	if err != nil {
		return OrderListOutput{}, err
	}
	return OrderListOutput{Items: outs, Page: page, Limit: limit, Total: total}, nil
}

func (u *OrderUsecase) withItems(ctx context.Context, orders []model.Order) ([]OrderOutput, error) {
	outs := make([]OrderOutput, 0, len(orders))
	for _, o := range orders {
		items, err := u.repos.OrderItems().ListByOrderID(ctx, o.ID)
		if err != nil {
			return nil, storageErr("order_items.list", err)
		}
		outs = append(outs, toOrderOutput(o, items))
	}
	return outs, nil
}

// UpdateOrderStatus は許可された遷移だけを行う。
// 直前のステータスを条件にした更新なので、同時更新は片方がConflictになる
func (u *OrderUsecase) UpdateOrderStatus(ctx context.Context, actor *model.User, orderID int64, status string) (OrderOutput, error) {
	o, err := u.loadAuthorized(ctx, actor, orderID)
	if err != nil {
		return OrderOutput{}, err
	}

	next, ok := model.ParseOrderStatus(status)
	if !ok {
		return OrderOutput{}, apperr.Validation("status must be one of PENDING, CONFIRMED, COMPLETED, CANCELED")
	}
	if !o.Status.CanTransitionTo(next) {
		return OrderOutput{}, apperr.Wrap(apperr.ErrIllegalTransition, "%s -> %s", o.Status, next)
	}

	var out OrderOutput
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if err := r.Orders().UpdateStatus(ctx, o.ID, o.Status, next); err != nil {
			return err
		}

		// 管理者の操作は監査ログに残す
		if actor.IsAdmin() {
			err := writeAudit(ctx, r, actor, model.AuditActionUpdateOrderStatus, model.AuditResourceOrder, o.ID,
				map[string]string{"status": string(o.Status)},
				map[string]string{"status": string(next)},
			)
			if err != nil {
				return err
			}
		}

		updated, err := r.Orders().FindByID(ctx, o.ID)
		if err != nil {
			return err
		}
		items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
		if err != nil {
			return err
		}
		out = toOrderOutput(updated, items)
		return nil
	})
	if err != nil {
		return OrderOutput{}, storageErr("orders.update_status", err)
	}
	return out, nil
}

// DeleteOrder は明細ごと注文を削除する。確定済み・完了済みは削除できない
func (u *OrderUsecase) DeleteOrder(ctx context.Context, actor *model.User, orderID int64) error {
	if _, err := u.loadAuthorized(ctx, actor, orderID); err != nil {
		return err
	}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// ロックを取ってからステータスを見る
		o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !o.Status.Deletable() {
			return apperr.Wrap(apperr.ErrConflict, "order is %s and can no longer be deleted", o.Status)
		}

		if err := r.OrderItems().DeleteByOrderID(ctx, o.ID); err != nil {
			return err
		}
		if err := r.Orders().Delete(ctx, o.ID); err != nil {
			return err
		}

		if actor.IsAdmin() {
			return writeAudit(ctx, r, actor, model.AuditActionDeleteOrder, model.AuditResourceOrder, o.ID,
				map[string]any{"status": o.Status, "user_id": o.UserID, "total_price": o.TotalPrice},
				nil,
			)
		}
		return nil
	})
	return storageErr("orders.delete", err)
}

// AddItem はPENDINGの注文に明細を追加し、合計を再計算する
func (u *OrderUsecase) AddItem(ctx context.Context, actor *model.User, orderID int64, in OrderItemInput) (OrderOutput, error) {
	if _, err := u.loadAuthorized(ctx, actor, orderID); err != nil {
		return OrderOutput{}, err
	}
	if err := validateItem("", in); err != nil {
		return OrderOutput{}, err
	}

	var out OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := lockEditable(ctx, r, orderID)
		if err != nil {
			return err
		}

		current, err := r.OrderItems().ListByOrderID(ctx, o.ID)
		if err != nil {
			return err
		}
		if len(current) >= maxItemsPerOrder {
			return apperr.Validation("an order can have at most %d items", maxItemsPerOrder)
		}

		newItems, err := buildItems(ctx, r, []OrderItemInput{in})
		if err != nil {
			return err
		}
		if err := r.OrderItems().CreateBulk(ctx, o.ID, newItems); err != nil {
			return err
		}

		out, err = recomputeTotal(ctx, r, o.ID)
		return err
	})
	if err != nil {
		return OrderOutput{}, storageErr("order_items.add", err)
	}
	return out, nil
}

// RemoveItem はPENDINGの注文から明細を1つ削除する。最後の1件は削除できない
func (u *OrderUsecase) RemoveItem(ctx context.Context, actor *model.User, orderID int64, itemID int64) (OrderOutput, error) {
	if _, err := u.loadAuthorized(ctx, actor, orderID); err != nil {
		return OrderOutput{}, err
	}

	var out OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := lockEditable(ctx, r, orderID)
		if err != nil {
			return err
		}

		item, err := r.OrderItems().FindByID(ctx, itemID)
		if err != nil {
			return err
		}
		// 別の注文の明細は存在しないものとして扱う
		if item.OrderID != o.ID {
			return apperr.ErrNotFound
		}

		items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
		if err != nil {
			return err
		}
		if len(items) <= 1 {
			return apperr.Wrap(apperr.ErrConflict, "an order must keep at least one item, delete the order instead")
		}

		if err := r.OrderItems().Delete(ctx, item.ID); err != nil {
			return err
		}
		out, err = recomputeTotal(ctx, r, o.ID)
		return err
	})
	if err != nil {
		return OrderOutput{}, storageErr("order_items.remove", err)
	}
	return out, nil
}

// loadAuthorized は注文を取得して所有者チェックをする。
// 他の引数の妥当性より先に確認するので、他人の注文には常に403
func (u *OrderUsecase) loadAuthorized(ctx context.Context, actor *model.User, orderID int64) (model.Order, error) {
	if actor == nil {
		return model.Order{}, apperr.ErrMissingToken
	}
	if orderID <= 0 {
		return model.Order{}, apperr.ErrNotFound
	}

	o, err := u.repos.Orders().FindByID(ctx, orderID)
	if err != nil {
		return model.Order{}, storageErr("orders.find", err)
	}
	if err := authorize(actor, o); err != nil {
		return model.Order{}, err
	}
	return o, nil
}

func lockEditable(ctx context.Context, r repo.TxRepos, orderID int64) (model.Order, error) {
	o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
	if err != nil {
		return model.Order{}, err
	}
	if !o.Status.Editable() {
		return model.Order{}, apperr.Wrap(apperr.ErrConflict, "order is %s and its items can no longer be changed", o.Status)
	}
	return o, nil
}

// 合計があふれる注文は作らない。トランザクションごと巻き戻す
func orderTotal(items []model.OrderItem) (int64, error) {
	total, ok := model.OrderTotal(items)
	if !ok {
		return 0, apperr.Validation("order total is too large")
	}
	return total, nil
}

func recomputeTotal(ctx context.Context, r repo.TxRepos, orderID int64) (OrderOutput, error) {
	items, err := r.OrderItems().ListByOrderID(ctx, orderID)
	if err != nil {
		return OrderOutput{}, err
	}
	total, err := orderTotal(items)
	if err != nil {
		return OrderOutput{}, err
	}
	if err := r.Orders().UpdateTotal(ctx, orderID, total); err != nil {
		return OrderOutput{}, err
	}
	o, err := r.Orders().FindByID(ctx, orderID)
	if err != nil {
		return OrderOutput{}, err
	}
	return toOrderOutput(o, items), nil
}
