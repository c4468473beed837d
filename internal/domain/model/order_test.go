package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatus_Transitions(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		ok       bool
	}{
		{OrderStatusPending, OrderStatusConfirmed, true},
		{OrderStatusPending, OrderStatusCanceled, true},
		{OrderStatusConfirmed, OrderStatusCompleted, true},
		{OrderStatusConfirmed, OrderStatusCanceled, true},
		{OrderStatusConfirmed, OrderStatusPending, false},
		{OrderStatusPending, OrderStatusCompleted, false},
		{OrderStatusPending, OrderStatusPending, false},
		{OrderStatusCanceled, OrderStatusPending, false},
		{OrderStatusCompleted, OrderStatusCanceled, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestOrderStatus_EditableAndDeletable(t *testing.T) {
	assert.True(t, OrderStatusPending.Editable())
	assert.False(t, OrderStatusConfirmed.Editable())

	assert.True(t, OrderStatusPending.Deletable())
	assert.True(t, OrderStatusCanceled.Deletable())
	assert.False(t, OrderStatusConfirmed.Deletable())
	assert.False(t, OrderStatusCompleted.Deletable())
}

func TestParseOrderStatus(t *testing.T) {
	st, ok := ParseOrderStatus(" confirmed ")
	assert.True(t, ok)
	assert.Equal(t, OrderStatusConfirmed, st)

	st, ok = ParseOrderStatus("cancelled")
	assert.True(t, ok)
	assert.Equal(t, OrderStatusCanceled, st)

	_, ok = ParseOrderStatus("shipped")
	assert.False(t, ok)
}

func TestOrderTotal(t *testing.T) {
	items := []OrderItem{
		{UnitPriceSnapshot: 10, Quantity: 3},
		{UnitPriceSnapshot: 5, Quantity: 1},
	}
	total, ok := OrderTotal(items)
	assert.True(t, ok)
	assert.Equal(t, int64(35), total)

	total, ok = OrderTotal(nil)
	assert.True(t, ok)
	assert.Equal(t, int64(0), total)
}

func TestOrderTotal_Overflow(t *testing.T) {
	// 1<<62 × 4 はちょうど0に折り返す
	_, ok := OrderTotal([]OrderItem{{UnitPriceSnapshot: 1 << 62, Quantity: 4}})
	assert.False(t, ok)

	// 1件ずつは収まるが足すとあふれる
	_, ok = OrderTotal([]OrderItem{
		{UnitPriceSnapshot: math.MaxInt64 / 2, Quantity: 1},
		{UnitPriceSnapshot: math.MaxInt64 / 2, Quantity: 1},
		{UnitPriceSnapshot: 2, Quantity: 1},
	})
	assert.False(t, ok)

	total, ok := OrderTotal([]OrderItem{{UnitPriceSnapshot: math.MaxInt64, Quantity: 1}})
	assert.True(t, ok)
	assert.Equal(t, int64(math.MaxInt64), total)

	_, ok = OrderItem{UnitPriceSnapshot: -1, Quantity: 1}.CheckedSubtotal()
	assert.False(t, ok)
}
