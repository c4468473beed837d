package handler

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"time"

	"delivery/internal/domain/apperr"
	"delivery/internal/middleware"
	auth "delivery/internal/usecase/auth_usecase"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	refreshCookieName = "refresh"
	csrfCookieName    = "csrf_token"
	csrfHeaderName    = "X-CSRF-Token"
)

type AuthHandler struct {
	creds        *auth.CredentialStore
	loginUC      *auth.LoginUsecase
	resolver     middleware.CurrentUserResolver
	refreshTTL   time.Duration // refresh/csrf cookie の有効期限
	cookieSecure bool
	log          *zap.Logger
}

// DIコンストラクタ
func NewAuthHandler(
	creds *auth.CredentialStore,
	loginUC *auth.LoginUsecase,
	resolver middleware.CurrentUserResolver,
	refreshTTL time.Duration,
	cookieSecure bool,
	log *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		creds:        creds,
		loginUC:      loginUC,
		resolver:     resolver,
		refreshTTL:   refreshTTL,
		cookieSecure: cookieSecure,
		log:          log,
	}
}

func (h *AuthHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/auth")

	// 管理者がADMINを作るときだけトークンを付ける
	g.POST("/register", h.register, middleware.OptionalAuthJWT(h.resolver))
	g.POST("/login", h.login)
	g.POST("/login_form", h.loginForm)
	g.POST("/refresh", h.refresh)
	g.POST("/logout", h.logout)

	authed := middleware.AuthJWT(h.resolver)
	g.GET("/me", h.me, authed)
	g.DELETE("/me", h.deleteMe, authed)
	g.PUT("/password", h.changePassword, authed)
}

// /auth/register のリクエストボディ。
type registerRequest struct {
	Name     string `json:"name" validate:"max=255"`
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"omitempty,oneof=USER ADMIN user admin"`
}

// /auth/login のリクエストボディ。
type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) register(c echo.Context) error {
	var req registerRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	// 匿名ならnil
	actor, _ := middleware.CurrentUser(c)

	user, err := h.creds.Register(c.Request().Context(), auth.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	}, actor)
	if err != nil {
		return err
	}

	h.log.Info("user registered", zap.Int64("user_id", user.ID), zap.String("role", string(user.Role)))
	return c.JSON(http.StatusCreated, user)
}

func (h *AuthHandler) login(c echo.Context) error {
	var req loginRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	out, err := h.doLogin(c, req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

// OAuth2のpassword grant形式（usernameにemailを入れる）。
// レスポンスもaccess_token/token_typeをトップレベルに置く
func (h *AuthHandler) loginForm(c echo.Context) error {
	username := c.FormValue("username")
	password := c.FormValue("password")
	if username == "" || password == "" {
		return apperr.Validation("username and password are required")
	}

	out, err := h.doLogin(c, username, password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out.Token)
}

func (h *AuthHandler) doLogin(c echo.Context, email, password string) (auth.LoginOutput, error) {
	out, err := h.loginUC.Execute(c.Request().Context(), auth.LoginInput{
		Email:    email,
		Password: password,
		// User-Agentを取得（refreshtokenに紐付ける）
		UserAgent: c.Request().UserAgent(),
	})
	if err != nil {
		return auth.LoginOutput{}, err
	}

	if err := h.setSessionCookies(c, out.PlainRefreshToken); err != nil {
		return auth.LoginOutput{}, err
	}
	return out, nil
}

// refresh tokenはcookie優先。cookieから来た場合はCSRFトークンも確認する
func (h *AuthHandler) refresh(c echo.Context) error {
	plain, err := h.refreshTokenFrom(c)
	if err != nil {
		return err
	}

	out, err := h.loginUC.Refresh(c.Request().Context(), plain, c.Request().UserAgent())
	if err != nil {
		h.clearSessionCookies(c)
		return err
	}

	if err := h.setSessionCookies(c, out.PlainRefreshToken); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out.Token)
}

func (h *AuthHandler) logout(c echo.Context) error {
	plain, err := h.refreshTokenFrom(c)
	if err != nil && !apperr.Known(err) {
		return err
	}
	// トークンが無くてもcookieは消して成功にする
	if plain != "" {
		if err := h.loginUC.Logout(c.Request().Context(), plain); err != nil {
			return err
		}
	}
	h.clearSessionCookies(c)
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHandler) me(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

func (h *AuthHandler) changePassword(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req changePasswordRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	if err := h.creds.ChangePassword(c.Request().Context(), user.ID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	// 全セッション失効済みなのでcookieも消す
	h.clearSessionCookies(c)
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHandler) deleteMe(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := h.creds.DeleteAccount(c.Request().Context(), user.ID); err != nil {
		return err
	}
	h.clearSessionCookies(c)
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHandler) refreshTokenFrom(c echo.Context) (string, error) {
	if ck, err := c.Cookie(refreshCookieName); err == nil && ck.Value != "" {
		if err := checkCSRF(c); err != nil {
			return "", err
		}
		return ck.Value, nil
	}

	var req refreshRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return "", apperr.Validation("request body is not valid JSON")
		}
	}
	if req.RefreshToken == "" {
		return "", apperr.ErrMissingToken
	}
	return req.RefreshToken, nil
}

// double submit cookie。csrf cookieが無い（非ブラウザ）なら確認しない
func checkCSRF(c echo.Context) error {
	ck, err := c.Cookie(csrfCookieName)
	if err != nil || ck.Value == "" {
		return nil
	}
	header := c.Request().Header.Get(csrfHeaderName)
	if subtle.ConstantTimeCompare([]byte(header), []byte(ck.Value)) != 1 {
		return apperr.Wrap(apperr.ErrForbidden, "csrf token mismatch")
	}
	return nil
}

func (h *AuthHandler) setSessionCookies(c echo.Context, plainRefresh string) error {
	csrfToken, err := generateSecureToken(32)
	if err != nil {
		return apperr.Internal("csrf.generate", err)
	}

	exp := time.Now().Add(h.refreshTTL)
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    plainRefresh,
		Path:     "/auth",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		Expires:  exp,
	})
	// JSから読んでヘッダに載せるのでHttpOnlyにしない
	c.SetCookie(&http.Cookie{
		Name:     csrfCookieName,
		Value:    csrfToken,
		Path:     "/",
		HttpOnly: false,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		Expires:  exp,
	})
	return nil
}

func (h *AuthHandler) clearSessionCookies(c echo.Context) {
	for _, ck := range []struct{ name, path string }{{refreshCookieName, "/auth"}, {csrfCookieName, "/"}} {
		c.SetCookie(&http.Cookie{
			Name:     ck.name,
			Value:    "",
			Path:     ck.path,
			HttpOnly: ck.name == refreshCookieName,
			Secure:   h.cookieSecure,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   -1,
		})
	}
}

// ランダム文字列を作る。
func generateSecureToken(bytesLen int) (string, error) {
	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
