package repository

import (
	"context"

	"delivery/internal/domain/model"
)

type OrderItemRepository interface {
	// itemsのOrderIDとIDはこの呼び出しで埋まる
	CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error
	FindByID(ctx context.Context, itemID int64) (model.OrderItem, error)
	ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error)
	Delete(ctx context.Context, itemID int64) error
	DeleteByOrderID(ctx context.Context, orderID int64) error
	//ユーザーの全注文の明細を削除（退会時）
	DeleteByUserID(ctx context.Context, userID int64) error
}
