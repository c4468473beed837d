package validator

import (
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"delivery/internal/domain/apperr"
)

const (
	MaxPasswordLength = 128
	maxEmailLength    = 254
)

// よく使われる弱いパスワード（小文字で比較）
var commonPasswords = map[string]struct{}{
	"password": {}, "password1": {}, "passw0rd": {}, "12345678": {}, "123456": {},
	"qwerty": {}, "qwerty1": {}, "qwerty123": {}, "abc123": {}, "letmein1": {},
	"welcome1": {}, "admin123": {}, "iloveyou1": {}, "monkey1": {}, "dragon1": {},
}

// PasswordPolicy はパスワードの強度ルール
type PasswordPolicy struct {
	MinLength int
}

// Check は弱いパスワードならErrWeakCredentialを返す
func (p PasswordPolicy) Check(password string) error {
	n := utf8.RuneCountInString(password)
	if n < p.MinLength {
		return apperr.Wrap(apperr.ErrWeakCredential, "password must be at least %d characters", p.MinLength)
	}
	if n > MaxPasswordLength {
		return apperr.Wrap(apperr.ErrWeakCredential, "password must be at most %d characters", MaxPasswordLength)
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return apperr.Wrap(apperr.ErrWeakCredential, "password must contain a letter and a digit")
	}

	if _, ok := commonPasswords[strings.ToLower(password)]; ok {
		return apperr.Wrap(apperr.ErrWeakCredential, "password is too common")
	}
	return nil
}

// NormalizeEmail は前後の空白を除き小文字にして、形式をチェックする
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", apperr.Validation("email is required")
	}
	if len(email) > maxEmailLength {
		return "", apperr.Validation("email is too long")
	}

	// "Alice <a@example.com>" のような表示名付きは受け付けない
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return "", apperr.Validation("email %q is not a valid address", raw)
	}
	return email, nil
}

// NormalizeName は表示名の前後空白を除く
func NormalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if utf8.RuneCountInString(name) > 255 {
		return "", apperr.Validation("name must be at most 255 characters")
	}
	return name, nil
}

func PositiveID(field string, id int64) error {
	if id <= 0 {
		return apperr.Validation("%s must be a positive integer", field)
	}
	return nil
}
