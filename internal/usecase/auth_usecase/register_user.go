package auth

import (
	"context"
	"errors"
	"strings"

	"delivery/internal/domain/apperr"
	"delivery/internal/domain/model"
	"delivery/internal/repository"
	"delivery/internal/validator"
)

// 会員登録の入力
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	// 空ならUSER
	Role string
}

// Register はユーザーを作成する。
// ADMINの作成は、管理者がまだいない間（初期構築）か、actorが管理者のときだけ許可する
func (s *CredentialStore) Register(ctx context.Context, in RegisterInput, actor *model.User) (*model.User, error) {
	email, err := validator.NormalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	name, err := validator.NormalizeName(in.Name)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Check(in.Password); err != nil {
		return nil, err
	}

	role, err := parseRequestedRole(in.Role)
	if err != nil {
		return nil, err
	}

	// パスワードをハッシュ化（平文は保存しない）。重いのでトランザクションの外で
	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperr.Internal("password.hash", err)
	}

	user := &model.User{
		Name:         name,
		Email:        email,
		PasswordHash: hashed,
		Role:         role,
		TokenVersion: 0,
		IsActive:     true,
	}
	err = s.tm.WithinTx(ctx, func(r repository.TxRepos) error {
		users := r.Users()
		if role == model.RoleAdmin && !actor.IsAdmin() {
			if err := s.checkBootstrap(ctx, users); err != nil {
				return err
			}
		}

		// email重複チェック（最終的にはunique制約で守る）
		_, err := users.FindByEmail(ctx, email)
		if err == nil {
			return apperr.ErrDuplicateIdentity
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return apperr.Internal("users.find_by_email", err)
		}

		if err := users.Create(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperr.ErrDuplicateIdentity
			}
			return apperr.Internal("users.create", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func parseRequestedRole(requested string) (model.Role, error) {
	switch model.Role(strings.ToUpper(strings.TrimSpace(requested))) {
	case "", model.RoleUser:
		return model.RoleUser, nil
	case model.RoleAdmin:
		return model.RoleAdmin, nil
	}
	return "", apperr.Validation("role must be USER or ADMIN")
}

// 管理者がまだいないときだけ、非管理者によるADMIN作成を許す。
// 同時に2人がADMINにならないよう、ロックを取ってから数える
func (s *CredentialStore) checkBootstrap(ctx context.Context, users repository.UserRepository) error {
	if err := users.LockAdminBootstrap(ctx); err != nil {
		return apperr.Internal("users.lock_admin_bootstrap", err)
	}
	exists, err := users.ExistsAdmin(ctx)
	if err != nil {
		return apperr.Internal("users.exists_admin", err)
	}
	if exists {
		return apperr.Wrap(apperr.ErrForbidden, "only an admin can create another admin")
	}
	return nil
}
