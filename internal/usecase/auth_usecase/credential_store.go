package auth

import (
	"context"
	"encoding/json"
	"errors"

	"delivery/internal/domain/apperr"
	"delivery/internal/domain/model"
	"delivery/internal/repository"
	"delivery/internal/validator"
)

// CredentialStore はユーザーの登録とパスワード照合を担当する
type CredentialStore struct {
	users  repository.UserRepository
	tm     repository.TransactionManager
	hasher PasswordHasher
	policy validator.PasswordPolicy
	clock  Clock

	// 存在しないemailでも同じ時間だけ照合するためのハッシュ
	dummyHash string
}

func NewCredentialStore(
	users repository.UserRepository,
	tm repository.TransactionManager,
	hasher PasswordHasher,
	policy validator.PasswordPolicy,
	clock Clock,
) (*CredentialStore, error) {
	dummy, err := hasher.Hash("dummy-password-0")
	if err != nil {
		return nil, err
	}
	return &CredentialStore{
		users:     users,
		tm:        tm,
		hasher:    hasher,
		policy:    policy,
		clock:     clock,
		dummyHash: dummy,
	}, nil
}

// Verify はemailとパスワードを照合する。
// emailが無い場合もパスワード違いも同じErrInvalidCredentials
func (s *CredentialStore) Verify(ctx context.Context, identity string, password string) (*model.User, error) {
	email, err := validator.NormalizeEmail(identity)
	if err != nil || password == "" {
		return nil, apperr.ErrInvalidCredentials
	}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		_, _ = s.hasher.Verify(password, s.dummyHash)
		return nil, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return nil, apperr.Internal("users.find_by_email", err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, apperr.Internal("password.verify", err)
	}
	if !ok {
		return nil, apperr.ErrInvalidCredentials
	}

	//停止ユーザーはログイン不可（パスワードが合っている場合だけ区別する）
	if !user.IsActive {
		return nil, apperr.Wrap(apperr.ErrForbidden, "user is inactive")
	}
	return user, nil
}

// ChangePassword は現在のパスワードを確認してから新しいハッシュを保存する。
// 発行済みのアクセストークンとリフレッシュトークンは無効になる
func (s *CredentialStore) ChangePassword(ctx context.Context, userID int64, current string, next string) error {
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.ErrUnknownSubject
	}
	if err != nil {
		return apperr.Internal("users.find_by_id", err)
	}

	ok, err := s.hasher.Verify(current, user.PasswordHash)
	if err != nil {
		return apperr.Internal("password.verify", err)
	}
	if !ok {
		return apperr.ErrInvalidCredentials
	}

	if err := s.policy.Check(next); err != nil {
		return err
	}
	if next == current {
		return apperr.Wrap(apperr.ErrWeakCredential, "new password must differ from the current one")
	}

	hashed, err := s.hasher.Hash(next)
	if err != nil {
		return apperr.Internal("password.hash", err)
	}

	err = s.tm.WithinTx(ctx, func(r repository.TxRepos) error {
		if err := r.Users().UpdatePassword(ctx, userID, hashed); err != nil {
			return err
		}
		return r.RefreshTokens().DeleteAllByUserID(ctx, userID)
	})
	if err != nil {
		return apperr.Internal("users.update_password", err)
	}
	return nil
}

// DeleteAccount はユーザーと、その注文・明細・リフレッシュトークンをまとめて削除する
func (s *CredentialStore) DeleteAccount(ctx context.Context, userID int64) error {
	err := s.tm.WithinTx(ctx, func(r repository.TxRepos) error {
		if err := r.OrderItems().DeleteByUserID(ctx, userID); err != nil {
			return err
		}
		if err := r.Orders().DeleteByUserID(ctx, userID); err != nil {
			return err
		}
		if err := r.RefreshTokens().DeleteAllByUserID(ctx, userID); err != nil {
			return err
		}
		return r.Users().Delete(ctx, userID)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.ErrUnknownSubject
	}
	if err != nil {
		return apperr.Internal("users.delete", err)
	}
	return nil
}

type ForceLogoutOutput struct {
	UserID          int64 `json:"user_id"`
	NewTokenVersion int   `json:"new_token_version"`
}

// ForceLogout は対象ユーザーのtoken_versionを上げて、全セッションを無効にする（管理者のみ）
func (s *CredentialStore) ForceLogout(ctx context.Context, actor *model.User, targetUserID int64) (ForceLogoutOutput, error) {
	if !actor.IsAdmin() {
		return ForceLogoutOutput{}, apperr.ErrForbidden
	}
	if err := validator.PositiveID("user_id", targetUserID); err != nil {
		return ForceLogoutOutput{}, err
	}

	var out ForceLogoutOutput
	err := s.tm.WithinTx(ctx, func(r repository.TxRepos) error {
		target, err := r.Users().FindByID(ctx, targetUserID)
		if err != nil {
			return err
		}
		if err := r.Users().IncrementTokenVersion(ctx, targetUserID); err != nil {
			return err
		}
		if err := r.RefreshTokens().DeleteAllByUserID(ctx, targetUserID); err != nil {
			return err
		}

		out = ForceLogoutOutput{UserID: targetUserID, NewTokenVersion: target.TokenVersion + 1}

		before, _ := json.Marshal(map[string]int{"token_version": target.TokenVersion})
		after, _ := json.Marshal(map[string]int{"token_version": out.NewTokenVersion})
		return r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  actor.ID,
			Action:       model.AuditActionForceLogout,
			ResourceType: model.AuditResourceUser,
			ResourceID:   targetUserID,
			BeforeJSON:   string(before),
			AfterJSON:    string(after),
			CreatedAt:    s.clock.Now(),
		})
	})
	if errors.Is(err, repository.ErrNotFound) {
		return ForceLogoutOutput{}, apperr.ErrNotFound
	}
	if err != nil {
		return ForceLogoutOutput{}, apperr.Internal("users.force_logout", err)
	}
	return out, nil
}
