package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"delivery/internal/domain/apperr"
	"delivery/internal/domain/model"
	"delivery/internal/repository"

	"go.uber.org/zap"
)

// handlerからusecaseに渡す入力
type LoginInput struct {
	Email     string
	Password  string
	UserAgent string
}

// token 形
type JwtAccessToken struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
	TokenVersion int       `json:"token_version"`
}

// handlerがJSONにして返す
type LoginOutput struct {
	User  *model.User    `json:"user"`
	Token JwtAccessToken `json:"token"`
	// handlerがCookieに詰める。JSONには出さない
	PlainRefreshToken string `json:"-"`
}

type RefreshOutput struct {
	Token             JwtAccessToken
	PlainRefreshToken string
}

type LoginUsecase struct {
	creds      *CredentialStore
	auth       *Authenticator
	users      repository.UserRepository
	rtRepo     repository.RefreshTokenRepository
	tm         repository.TransactionManager
	limiter    LoginLimiter
	idGen      IDGenerator
	clock      Clock
	refreshTTL time.Duration
	log        *zap.Logger
}

func NewLoginUsecase(
	creds *CredentialStore,
	auth *Authenticator,
	users repository.UserRepository,
	rtRepo repository.RefreshTokenRepository,
	tm repository.TransactionManager,
	limiter LoginLimiter,
	idGen IDGenerator,
	clock Clock,
	refreshTTL time.Duration,
	log *zap.Logger,
) *LoginUsecase {
	if limiter == nil {
		limiter = NoopLimiter{}
	}
	return &LoginUsecase{
		creds:      creds,
		auth:       auth,
		users:      users,
		rtRepo:     rtRepo,
		tm:         tm,
		limiter:    limiter,
		idGen:      idGen,
		clock:      clock,
		refreshTTL: refreshTTL,
		log:        log,
	}
}

// ログイン処理を実行する
func (u *LoginUsecase) Execute(ctx context.Context, in LoginInput) (LoginOutput, error) {
	key := strings.ToLower(strings.TrimSpace(in.Email))

	// redisが落ちていてもログインは止めない
	allowed, err := u.limiter.Allow(ctx, key)
	if err != nil {
		u.log.Warn("login limiter unavailable", zap.Error(err))
		allowed = true
	}
	if !allowed {
		return LoginOutput{}, apperr.ErrTooManyAttempts
	}

	user, err := u.creds.Verify(ctx, in.Email, in.Password)
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidCredentials) {
			if lerr := u.limiter.RecordFailure(ctx, key); lerr != nil {
				u.log.Warn("record login failure", zap.Error(lerr))
			}
		}
		return LoginOutput{}, err
	}
	if lerr := u.limiter.Reset(ctx, key); lerr != nil {
		u.log.Warn("reset login failures", zap.Error(lerr))
	}

	access, err := u.auth.IssueToken(user)
	if err != nil {
		return LoginOutput{}, err
	}

	plain, err := u.saveNewRefreshToken(ctx, u.rtRepo, user.ID, in.UserAgent, access.IssuedAt)
	if err != nil {
		return LoginOutput{}, err
	}

	//最終ログイン時刻更新（失敗してもログインは成功扱い）
	if err := u.users.UpdateLastLogin(ctx, user.ID, access.IssuedAt); err != nil {
		u.log.Warn("update last login", zap.Int64("user_id", user.ID), zap.Error(err))
	} else {
		user.LastLoginAt = &access.IssuedAt
	}

	return LoginOutput{
		User:              user,
		Token:             u.toTokenDTO(access, user.TokenVersion),
		PlainRefreshToken: plain,
	}, nil
}

// Refresh はリフレッシュトークンをローテーションし、新しいアクセストークンを返す。
// 使用済みトークンが再度来たら盗用とみなして、そのユーザーの全トークンを消す
func (u *LoginUsecase) Refresh(ctx context.Context, plain string, userAgent string) (RefreshOutput, error) {
	if strings.TrimSpace(plain) == "" {
		return RefreshOutput{}, apperr.ErrMissingToken
	}

	rt, err := u.rtRepo.FindByTokenHash(ctx, hashToken(plain))
	if errors.Is(err, repository.ErrNotFound) {
		return RefreshOutput{}, apperr.ErrInvalidToken
	}
	if err != nil {
		return RefreshOutput{}, apperr.Internal("refresh_tokens.find", err)
	}

	now := u.clock.Now()
	if rt.Expired(now) {
		_ = u.rtRepo.DeleteByID(ctx, rt.ID)
		return RefreshOutput{}, apperr.ErrExpiredToken
	}

	//used済みが来たら replay → 全削除
	//user_agent違いも同様
	if rt.UsedAt != nil || (userAgent != "" && rt.UserAgent != "" && userAgent != rt.UserAgent) {
		u.revokeAll(ctx, rt.UserID, "refresh token reuse detected")
		return RefreshOutput{}, apperr.ErrInvalidToken
	}

	user, err := u.users.FindByID(ctx, rt.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return RefreshOutput{}, apperr.ErrUnknownSubject
	}
	if err != nil {
		return RefreshOutput{}, apperr.Internal("users.find_by_id", err)
	}
	if !user.IsActive {
		return RefreshOutput{}, apperr.Wrap(apperr.ErrForbidden, "user is inactive")
	}

	var newPlain string
	err = u.tm.WithinTx(ctx, func(r repository.TxRepos) error {
		//旧tokenをusedにする（同時に2回来たら片方はErrConflict）
		if err := r.RefreshTokens().MarkUsed(ctx, rt.ID, now); err != nil {
			return err
		}
		var err error
		newPlain, err = u.saveNewRefreshToken(ctx, r.RefreshTokens(), user.ID, userAgent, now)
		return err
	})
	if errors.Is(err, repository.ErrConflict) {
		u.revokeAll(ctx, rt.UserID, "concurrent refresh token use")
		return RefreshOutput{}, apperr.ErrInvalidToken
	}
	if err != nil {
		return RefreshOutput{}, apperr.Internal("refresh_tokens.rotate", err)
	}

	access, err := u.auth.IssueToken(user)
	if err != nil {
		return RefreshOutput{}, err
	}
	return RefreshOutput{Token: u.toTokenDTO(access, user.TokenVersion), PlainRefreshToken: newPlain}, nil
}

// Logout はリフレッシュトークンを削除する。知らないトークンでも成功扱い
func (u *LoginUsecase) Logout(ctx context.Context, plain string) error {
	if strings.TrimSpace(plain) == "" {
		return nil
	}
	rt, err := u.rtRepo.FindByTokenHash(ctx, hashToken(plain))
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return apperr.Internal("refresh_tokens.find", err)
	}
	if err := u.rtRepo.DeleteByID(ctx, rt.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return apperr.Internal("refresh_tokens.delete", err)
	}
	return nil
}

func (u *LoginUsecase) revokeAll(ctx context.Context, userID int64, reason string) {
	u.log.Warn(reason, zap.Int64("user_id", userID))
	if err := u.rtRepo.DeleteAllByUserID(ctx, userID); err != nil {
		u.log.Error("revoke refresh tokens", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (u *LoginUsecase) saveNewRefreshToken(ctx context.Context, repo repository.RefreshTokenRepository, userID int64, userAgent string, now time.Time) (string, error) {
	plain, err := generateSecureToken(32)
	if err != nil {
		return "", apperr.Internal("refresh_tokens.generate", err)
	}
	rt := &model.RefreshToken{
		ID:        u.idGen.NewID(),
		UserID:    userID,
		TokenHash: hashToken(plain),
		UserAgent: userAgent,
		ExpiresAt: now.Add(u.refreshTTL),
		CreatedAt: now,
	}
	if err := repo.Create(ctx, rt); err != nil {
		return "", apperr.Internal("refresh_tokens.create", err)
	}
	return plain, nil
}

func (u *LoginUsecase) toTokenDTO(t AccessToken, tokenVersion int) JwtAccessToken {
	return JwtAccessToken{
		AccessToken:  t.Token,
		TokenType:    "bearer",
		ExpiresIn:    int(t.ExpiresAt.Sub(t.IssuedAt).Seconds()),
		ExpiresAt:    t.ExpiresAt,
		TokenVersion: tokenVersion,
	}
}

// DBにはsha256だけ保存する
func hashToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

func generateSecureToken(bytesLen int) (string, error) {
	if bytesLen <= 0 {
		return "", fmt.Errorf("bytesLen must be positive")
	}

	// ランダムなバイト列を作る（OSが持つ安全な乱数）
	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}
