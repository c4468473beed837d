package validator

import (
	"strings"
	"testing"

	"delivery/internal/domain/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordPolicy(t *testing.T) {
	p := PasswordPolicy{MinLength: 6}

	assert.NoError(t, p.Check("Secr3t!"))

	for _, weak := range []string{
		"a1",                     // 短い
		"abcdefgh",               // 数字なし
		"12345678",               // 英字なし
		"Password1",              // よくある
		strings.Repeat("a1", 65), // 長すぎ
	} {
		err := p.Check(weak)
		assert.ErrorIs(t, err, apperr.ErrWeakCredential, weak)
	}
}

func TestNormalizeEmail(t *testing.T) {
	email, err := NormalizeEmail("  Alice@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", email)

	for _, bad := range []string{"", "alice", "alice@localhost", "Alice <alice@example.com>", "a b@example.com"} {
		_, err := NormalizeEmail(bad)
		assert.ErrorIs(t, err, apperr.ErrValidation, bad)
	}
}

type createOrderReq struct {
	Items []itemReq `json:"items" validate:"required,min=1,dive"`
}

type itemReq struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gte=1,lte=1000"`
}

func TestRequestValidator(t *testing.T) {
	v := NewRequestValidator()

	assert.NoError(t, v.Validate(&createOrderReq{Items: []itemReq{{ProductID: 1, Quantity: 3}}}))

	err := v.Validate(&createOrderReq{})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, err.Error(), "items")

	err = v.Validate(&createOrderReq{Items: []itemReq{{ProductID: 1, Quantity: 1001}}})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, err.Error(), "items[0].quantity must be 1000 or less")
}
