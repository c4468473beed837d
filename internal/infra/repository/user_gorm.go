package repository

import (
	"context"
	"time"

	"delivery/internal/domain/model"
	domainrepo "delivery/internal/repository"

	"gorm.io/gorm"
)

type userGormRepository struct {
	db *gorm.DB
}

// DI
// main.goでこれをnewしてusecaseに注入します。
func NewUserGormRepository(db *gorm.DB) domainrepo.UserRepository {
	return &userGormRepository{db: db}
}

// Create はユーザーを新規作成。email重複はErrDuplicate
func (r *userGormRepository) Create(ctx context.Context, user *model.User) error {
	return translateError(r.db.WithContext(ctx).Create(user).Error)
}

// emailでユーザーを1件取得
func (r *userGormRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User

	err := r.db.WithContext(ctx).
		Where("email = ?", email).
		First(&u).Error
	if err != nil {
		return nil, translateError(err)
	}

	return &u, nil
}

// IDでユーザーを1件取得
func (r *userGormRepository) FindByID(ctx context.Context, id int64) (*model.User, error) {
	var u model.User

	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&u).Error
	if err != nil {
		return nil, translateError(err)
	}

	return &u, nil
}

// 初期ADMIN作成用のadvisory lockのキー
const adminBootstrapLockKey int64 = 0x61646d696e

// トランザクション外で呼ぶと即座に解放されるので、必ずWithinTxの中で使う
func (r *userGormRepository) LockAdminBootstrap(ctx context.Context) error {
	return r.db.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(?)", adminBootstrapLockKey).Error
}

func (r *userGormRepository) ExistsAdmin(ctx context.Context) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("role = ?", model.RoleAdmin).
		Limit(1).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *userGormRepository) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	return r.updateColumns(ctx, id, map[string]any{"last_login_at": at})
}

// パスワードとtoken_versionを同時に更新する
func (r *userGormRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return r.updateColumns(ctx, id, map[string]any{
		"password_hash": passwordHash,
		"token_version": gorm.Expr("token_version + ?", 1),
		"updated_at":    time.Now(),
	})
}

// token_versionを+1 します。
func (r *userGormRepository) IncrementTokenVersion(ctx context.Context, id int64) error {
	return r.updateColumns(ctx, id, map[string]any{
		"token_version": gorm.Expr("token_version + ?", 1),
	})
}

func (r *userGormRepository) Delete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.User{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domainrepo.ErrNotFound
	}
	return nil
}

func (r *userGormRepository) updateColumns(ctx context.Context, id int64, cols map[string]any) error {
	res := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", id).
		UpdateColumns(cols)

	if res.Error != nil {
		return res.Error
	}

	// 0件更新は「対象がない」
	if res.RowsAffected == 0 {
		return domainrepo.ErrNotFound
	}
	return nil
}
