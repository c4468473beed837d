package repository

import (
	"context"

	repo "delivery/internal/repository"

	"gorm.io/gorm"
)

type txReposGorm struct {
	users         repo.UserRepository
	orders        repo.OrderRepository
	orderItems    repo.OrderItemRepository
	products      repo.ProductRepository
	refreshTokens repo.RefreshTokenRepository
	auditLogs     repo.AuditLogRepository
}

func (r *txReposGorm) Users() repo.UserRepository                 { return r.users }
func (r *txReposGorm) Orders() repo.OrderRepository               { return r.orders }
func (r *txReposGorm) OrderItems() repo.OrderItemRepository       { return r.orderItems }
func (r *txReposGorm) Products() repo.ProductRepository           { return r.products }
func (r *txReposGorm) RefreshTokens() repo.RefreshTokenRepository { return r.refreshTokens }
func (r *txReposGorm) AuditLogs() repo.AuditLogRepository         { return r.auditLogs }

func newTxRepos(db *gorm.DB) *txReposGorm {
	return &txReposGorm{
		users:         NewUserGormRepository(db),
		orders:        NewOrderGormRepository(db),
		orderItems:    NewOrderItemGormRepository(db),
		products:      NewProductGormRepository(db),
		refreshTokens: NewRefreshTokenRepository(db),
		auditLogs:     NewAuditLogGormRepository(db),
	}
}

// NewRepos はトランザクション外で使うrepo一式
func NewRepos(db *gorm.DB) repo.TxRepos {
	return newTxRepos(db)
}

type TxManagerGorm struct {
	db *gorm.DB
}

func NewTxManagerGorm(db *gorm.DB) *TxManagerGorm {
	return &TxManagerGorm{db: db}
}

func (tm *TxManagerGorm) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		//repoはtxを持ったDBで作り直す
		return fn(newTxRepos(tx))
	})
}

var (
	_ repo.TransactionManager  = (*TxManagerGorm)(nil)
	_ repo.OrderRepository     = (*OrderGormRepository)(nil)
	_ repo.OrderItemRepository = (*OrderItemGormRepository)(nil)
	_ repo.ProductRepository   = (*ProductGormRepository)(nil)
)
