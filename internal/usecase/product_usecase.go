package usecase

import (
	"context"
	"strings"
	"unicode/utf8"

	"delivery/internal/domain/apperr"
	"delivery/internal/domain/model"
	repo "delivery/internal/repository"
)

type ProductUsecase struct {
	tx          repo.TransactionManager
	productRepo repo.ProductRepository
}

// DI
func NewProductUsecase(tx repo.TransactionManager, productRepo repo.ProductRepository) *ProductUsecase {
	return &ProductUsecase{tx: tx, productRepo: productRepo}
}

// GET /productsの入力DTO
type ListProductsInput struct {
	Page     int
	Limit    int
	Q        string
	MinPrice *int64
	MaxPrice *int64
	Sort     string
}

type ProductListOutput struct {
	Items []model.Product `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

// 公開中の商品だけを返す
func (u *ProductUsecase) ListPublicProducts(ctx context.Context, in ListProductsInput) (ProductListOutput, error) {
	page, limit, err := normalizePage(in.Page, in.Limit)
	if err != nil {
		return ProductListOutput{}, err
	}
	q := strings.TrimSpace(in.Q)
	if utf8.RuneCountInString(q) > 100 {
		return ProductListOutput{}, apperr.Validation("q must be at most 100 characters")
	}
	if in.MinPrice != nil && *in.MinPrice < 0 {
		return ProductListOutput{}, apperr.Validation("min_price must be >= 0")
	}
	if in.MaxPrice != nil && *in.MaxPrice < 0 {
		return ProductListOutput{}, apperr.Validation("max_price must be >= 0")
	}
	if in.MinPrice != nil && in.MaxPrice != nil && *in.MinPrice > *in.MaxPrice {
		return ProductListOutput{}, apperr.Validation("min_price must be <= max_price")
	}
	switch in.Sort {
	case "", "new", "price_asc", "price_desc":
	default:
		return ProductListOutput{}, apperr.Validation("sort must be one of new, price_asc, price_desc")
	}

	items, total, err := u.productRepo.List(ctx, repo.ProductListQuery{
		Page:       page,
		Limit:      limit,
		Q:          q,
		MinPrice:   in.MinPrice,
		MaxPrice:   in.MaxPrice,
		Sort:       in.Sort,
		ActiveOnly: true,
	})
	if err != nil {
		return ProductListOutput{}, storageErr("products.list", err)
	}
	return ProductListOutput{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// 非公開の商品は存在しないものとして扱う
func (u *ProductUsecase) GetProductDetail(ctx context.Context, productID int64) (model.Product, error) {
	if productID <= 0 {
		return model.Product{}, apperr.ErrNotFound
	}
	p, err := u.productRepo.FindByID(ctx, productID)
	if err != nil {
		return model.Product{}, storageErr("products.find", err)
	}
	if !p.IsActive {
		return model.Product{}, apperr.ErrNotFound
	}
	return p, nil
}

// 単価の上限。数量・明細数の上限と合わせて合計がint64に収まる
const maxProductPrice = 100_000_000

type AdminCreateProductInput struct {
	Name        string `json:"name" validate:"required,max=255"`
	Size        string `json:"size" validate:"max=50"`
	Description string `json:"description"`
	Price       int64  `json:"price" validate:"gte=0,lte=100000000"`
	IsActive    bool   `json:"is_active"`
}

// 部分更新。nilの項目は変更しない
type AdminUpdateProductInput struct {
	Name        *string `json:"name" validate:"omitempty,max=255"`
	Size        *string `json:"size" validate:"omitempty,max=50"`
	Description *string `json:"description"`
	Price       *int64  `json:"price" validate:"omitempty,gte=0,lte=100000000"`
	IsActive    *bool   `json:"is_active"`
}

func validateProduct(p model.Product) error {
	if p.Name == "" {
		return apperr.Validation("name is required")
	}
	if utf8.RuneCountInString(p.Name) > 255 {
		return apperr.Validation("name must be at most 255 characters")
	}
	if utf8.RuneCountInString(p.Size) > 50 {
		return apperr.Validation("size must be at most 50 characters")
	}
	if p.Price < 0 || p.Price > maxProductPrice {
		return apperr.Validation("price must be between 0 and %d", maxProductPrice)
	}
	return nil
}

func (u *ProductUsecase) AdminCreateProduct(ctx context.Context, actor *model.User, in AdminCreateProductInput) (model.Product, error) {
	if !actor.IsAdmin() {
		return model.Product{}, apperr.ErrForbidden
	}

	p := model.Product{
		Name:        strings.TrimSpace(in.Name),
		Size:        strings.TrimSpace(in.Size),
		Description: in.Description,
		Price:       in.Price,
		IsActive:    in.IsActive,
	}
	if err := validateProduct(p); err != nil {
		return model.Product{}, err
	}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if err := r.Products().Create(ctx, &p); err != nil {
			return err
		}
		return writeAudit(ctx, r, actor, model.AuditActionCreateProduct, model.AuditResourceProduct, p.ID, nil, p)
	})
	if err != nil {
		return model.Product{}, storageErr("products.create", err)
	}
	return p, nil
}

// 価格を変えても既存の注文明細はスナップショットのまま
func (u *ProductUsecase) AdminUpdateProduct(ctx context.Context, actor *model.User, productID int64, in AdminUpdateProductInput) (model.Product, error) {
	if !actor.IsAdmin() {
		return model.Product{}, apperr.ErrForbidden
	}
	if productID <= 0 {
		return model.Product{}, apperr.ErrNotFound
	}

	var out model.Product
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		before, err := r.Products().FindByID(ctx, productID)
		if err != nil {
			return err
		}

		after := before
		if in.Name != nil {
			after.Name = strings.TrimSpace(*in.Name)
		}
		if in.Size != nil {
			after.Size = strings.TrimSpace(*in.Size)
		}
		if in.Description != nil {
			after.Description = *in.Description
		}
		if in.Price != nil {
			after.Price = *in.Price
		}
		if in.IsActive != nil {
			after.IsActive = *in.IsActive
		}
		if err := validateProduct(after); err != nil {
			return err
		}

		if err := r.Products().Update(ctx, &after); err != nil {
			return err
		}
		out = after
		return writeAudit(ctx, r, actor, model.AuditActionUpdateProduct, model.AuditResourceProduct, productID, before, after)
	})
	if err != nil {
		return model.Product{}, storageErr("products.update", err)
	}
	return out, nil
}
