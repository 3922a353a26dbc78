package cart

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartItem is the immutable snapshot of a cart line: unit price and discount
// are captured when the item is added and are the source of truth for the
// order total, even if the catalog price changes afterwards.
type CartItem struct {
	ID           uuid.UUID       `gorm:"type:uuid;default:uuid_generate_v4();primary_key" json:"id"`
	UserID       uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_cart_user_product" json:"user_id"`
	ProductID    uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_cart_user_product" json:"product_id"`
	ProductName  string          `gorm:"not null" json:"product_name"`
	ImageURL     *string         `json:"image_url,omitempty"`
	UnitPrice    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price"`
	UnitDiscount decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"unit_discount"`
	Quantity     int             `gorm:"not null" json:"quantity"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// LineTotal is (unit_price - unit_discount) * quantity, floored at zero.
func (i CartItem) LineTotal() decimal.Decimal {
	total := i.UnitPrice.Sub(i.UnitDiscount).Mul(decimal.NewFromInt(int64(i.Quantity)))
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

type Summary struct {
	Items    []CartItem
	Subtotal decimal.Decimal
}

func Summarize(items []CartItem) Summary {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal())
	}
	return Summary{Items: items, Subtotal: subtotal}
}
