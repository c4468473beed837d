package repository

import (
	"context"

	"delivery/internal/domain/model"
)

// 一覧検索
type ProductListQuery struct {
	Page       int
	Limit      int
	Q          string
	MinPrice   *int64
	MaxPrice   *int64
	Sort       string // new / price_asc / price_desc
	ActiveOnly bool
}

type ProductRepository interface {
	FindByID(ctx context.Context, productID int64) (model.Product, error)
	//注文作成時にまとめて取得（存在しないIDは結果に含まれない）
	FindByIDs(ctx context.Context, productIDs []int64) ([]model.Product, error)
	List(ctx context.Context, q ProductListQuery) ([]model.Product, int64, error)
	Create(ctx context.Context, p *model.Product) error
	Update(ctx context.Context, p *model.Product) error
}
