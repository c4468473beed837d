package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"delivery/internal/domain/apperr"
	"delivery/internal/domain/model"
	"delivery/internal/repository"

	"github.com/golang-jwt/jwt/v5"
)

// TokenConfig は起動時に一度だけ作られ、以後変更しない
type TokenConfig struct {
	Secret    []byte
	Algorithm string // HS256 / HS384 / HS512
	AccessTTL time.Duration
	Issuer    string
}

// アクセストークンのクレーム。subはユーザーID
type Claims struct {
	Role         model.Role `json:"role"`
	TokenVersion int        `json:"tv"`
	jwt.RegisteredClaims
}

// UserID はsubを数値にする
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("subject %q is not a user id", c.Subject)
	}
	return id, nil
}

type AccessToken struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Authenticator はアクセストークンの発行と検証、現在ユーザーの解決を行う
type Authenticator struct {
	cfg    TokenConfig
	method jwt.SigningMethod
	parser *jwt.Parser
	users  repository.UserRepository
	clock  Clock
	idGen  IDGenerator
}

func NewAuthenticator(cfg TokenConfig, users repository.UserRepository, clock Clock, idGen IDGenerator) (*Authenticator, error) {
	var method jwt.SigningMethod
	switch cfg.Algorithm {
	case "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("unsupported signing algorithm %q", cfg.Algorithm)
	}
	if len(cfg.Secret) == 0 {
		return nil, errors.New("signing secret is empty")
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("access token lifetime must be positive")
	}

	// 呼び出し元のsliceを後から書き換えられても影響しないようにコピー
	cfg.Secret = append([]byte(nil), cfg.Secret...)

	opts := []jwt.ParserOption{
		// alg=none や別アルゴリズムへのすり替えを拒否
		jwt.WithValidMethods([]string{method.Alg()}),
		jwt.WithTimeFunc(clock.Now),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	return &Authenticator{
		cfg:    cfg,
		method: method,
		parser: jwt.NewParser(opts...),
		users:  users,
		clock:  clock,
		idGen:  idGen,
	}, nil
}

func (a *Authenticator) AccessTTL() time.Duration { return a.cfg.AccessTTL }

// IssueToken はsub=ユーザーID、iat=now、exp=now+TTLのトークンに署名する
func (a *Authenticator) IssueToken(user *model.User) (AccessToken, error) {
	// JWTの時刻は秒単位
	now := a.clock.Now().Truncate(time.Second)
	exp := now.Add(a.cfg.AccessTTL)

	claims := Claims{
		Role:         user.Role,
		TokenVersion: user.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			Issuer:    a.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        a.idGen.NewID(),
		},
	}

	signed, err := jwt.NewWithClaims(a.method, claims).SignedString(a.cfg.Secret)
	if err != nil {
		return AccessToken{}, apperr.Internal("jwt.sign", err)
	}
	return AccessToken{Token: signed, IssuedAt: now, ExpiresAt: exp}, nil
}

// VerifyToken は署名を確認してから期限を確認する。
// 署名が正しく期限だけ切れている場合のみErrExpiredToken、それ以外はErrInvalidToken
func (a *Authenticator) VerifyToken(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := a.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.cfg.Secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.ErrExpiredToken
		}
		return nil, apperr.ErrInvalidToken
	}

	if _, err := claims.UserID(); err != nil {
		return nil, apperr.ErrInvalidToken
	}
	return claims, nil
}

// ResolveCurrentUser はトークンを検証し、subのユーザーを返す
func (a *Authenticator) ResolveCurrentUser(ctx context.Context, raw string) (*model.User, error) {
	claims, err := a.VerifyToken(raw)
	if err != nil {
		return nil, err
	}
	userID, _ := claims.UserID()

	user, err := a.users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.ErrUnknownSubject
	}
	if err != nil {
		return nil, apperr.Internal("users.find_by_id", err)
	}

	// パスワード変更・強制ログアウト後の古いトークン
	if claims.TokenVersion != user.TokenVersion {
		return nil, apperr.ErrInvalidToken
	}
	if !user.IsActive {
		return nil, apperr.Wrap(apperr.ErrForbidden, "user is inactive")
	}
	return user, nil
}
