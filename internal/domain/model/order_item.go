package model

import (
	"math"
	"math/bits"
	"time"
)

// 商品名・サイズ・単価は注文時点のスナップショット。後から商品を更新しても変わらない。
type OrderItem struct {
	ID                  int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID             int64     `gorm:"not null;index" json:"order_id"`
	ProductID           int64     `gorm:"not null;index" json:"product_id"`
	ProductNameSnapshot string    `gorm:"type:varchar(255);not null" json:"product_name_snapshot"`
	SizeSnapshot        string    `gorm:"type:varchar(50);not null;default:''" json:"size_snapshot"`
	UnitPriceSnapshot   int64     `gorm:"not null" json:"unit_price_snapshot"`
	Quantity            int64     `gorm:"not null" json:"quantity"`
	CreatedAt           time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (i OrderItem) Subtotal() int64 {
	return i.UnitPriceSnapshot * i.Quantity
}

// 単価×数量。負数かint64に収まらないときはok=false
func (i OrderItem) CheckedSubtotal() (int64, bool) {
	if i.UnitPriceSnapshot < 0 || i.Quantity < 0 {
		return 0, false
	}
	hi, lo := bits.Mul64(uint64(i.UnitPriceSnapshot), uint64(i.Quantity))
	if hi != 0 || lo > math.MaxInt64 {
		return 0, false
	}
	return int64(lo), true
}

// 明細の合計。途中であふれたらok=false
func OrderTotal(items []OrderItem) (int64, bool) {
	var total int64
	for _, it := range items {
		sub, ok := it.CheckedSubtotal()
		if !ok || total > math.MaxInt64-sub {
			return 0, false
		}
		total += sub
	}
	return total, true
}
