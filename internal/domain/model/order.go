package model

import (
	"strings"
	"time"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCanceled  OrderStatus = "CANCELED"
)

// 許可されている遷移。COMPLETED / CANCELED は終端。
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCanceled},
	OrderStatusConfirmed: {OrderStatusCompleted, OrderStatusCanceled},
}

// 大文字小文字は区別しない。"cancelled" の綴りも受け付ける
func ParseOrderStatus(s string) (OrderStatus, bool) {
	v := strings.ToUpper(strings.TrimSpace(s))
	if v == "CANCELLED" {
		v = string(OrderStatusCanceled)
	}

	switch st := OrderStatus(v); st {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusCompleted, OrderStatusCanceled:
		return st, true
	}
	return "", false
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// 明細の追加・削除はPENDINGの間だけ
func (s OrderStatus) Editable() bool {
	return s == OrderStatusPending
}

// 確定済みの注文は削除できない
func (s OrderStatus) Deletable() bool {
	return s == OrderStatusPending || s == OrderStatusCanceled
}

type Order struct {
	ID         int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     int64       `gorm:"not null;index" json:"user_id"`
	Status     OrderStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	TotalPrice int64       `gorm:"not null" json:"total_price"`
	CreatedAt  time.Time   `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time   `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
