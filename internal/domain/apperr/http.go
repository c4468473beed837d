package apperr

import (
	"errors"
	"net/http"
	"strings"
)

// 全エンドポイント共通のエラーレスポンス
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type mapping struct {
	kind   error
	status int
	code   string
	// trueならメッセージも返す
	detailed bool
}

// 認証系は詳細を返さない（emailの存在有無を漏らさない）
var mappings = []mapping{
	{ErrValidation, http.StatusBadRequest, "VALIDATION_ERROR", true},
	{ErrWeakCredential, http.StatusUnprocessableEntity, "WEAK_CREDENTIAL", true},
	{ErrDuplicateIdentity, http.StatusConflict, "DUPLICATE_IDENTITY", false},
	{ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS", false},
	{ErrMissingToken, http.StatusUnauthorized, "MISSING_TOKEN", false},
	{ErrExpiredToken, http.StatusUnauthorized, "EXPIRED_TOKEN", false},
	{ErrInvalidToken, http.StatusUnauthorized, "INVALID_TOKEN", false},
	{ErrUnknownSubject, http.StatusUnauthorized, "UNKNOWN_SUBJECT", false},
	{ErrForbidden, http.StatusForbidden, "FORBIDDEN", false},
	{ErrIllegalTransition, http.StatusUnprocessableEntity, "ILLEGAL_TRANSITION", true},
	{ErrConflict, http.StatusConflict, "CONFLICT", true},
	{ErrNotFound, http.StatusNotFound, "NOT_FOUND", false},
	{ErrTooManyAttempts, http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS", false},
}

// エラーをステータスとレスポンスに変換する。想定外のエラーとErrInternalは中身を出さずに500
func ToHTTP(err error) (int, ErrorBody) {
	if err == nil || errors.Is(err, ErrInternal) {
		return http.StatusInternalServerError, ErrorBody{Error: "INTERNAL", Message: ErrInternal.Error()}
	}

	for _, m := range mappings {
		if !errors.Is(err, m.kind) {
			continue
		}
		msg := m.kind.Error()
		if m.detailed {
			msg = err.Error()
		}
		return m.status, ErrorBody{Error: m.code, Message: msg}
	}

	return http.StatusInternalServerError, ErrorBody{Error: "INTERNAL", Message: ErrInternal.Error()}
}

// クライアント向けの種類が既に付いているか
func Known(err error) bool {
	for _, m := range mappings {
		if errors.Is(err, m.kind) {
			return true
		}
	}
	return false
}

// 500になるエラーか
func IsServerFault(err error) bool {
	status, _ := ToHTTP(err)
	return status >= http.StatusInternalServerError
}

// Wrapしたメッセージから種類の接頭辞を除く
func Detail(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if i := strings.Index(msg, ": "); i >= 0 {
		return msg[i+2:]
	}
	return msg
}
