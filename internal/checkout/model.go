package checkout

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/grovia/settlement/pkg/database"
)

type OrderStatus string

const (
	OrderAwaitingPayment OrderStatus = "AWAITING_PAYMENT"
	OrderInTransit       OrderStatus = "IN_TRANSIT"
	OrderDelivered       OrderStatus = "DELIVERED"
	OrderCanceled        OrderStatus = "CANCELED"
)

type OrderPaymentStatus string

const (
	OrderPaymentPending OrderPaymentStatus = "PENDING"
	OrderPaymentPaid    OrderPaymentStatus = "PAID"
	OrderPaymentFailed  OrderPaymentStatus = "FAILED"
)

type PaymentMethod string

const (
	MethodWallet  PaymentMethod = "wallet"
	MethodGateway PaymentMethod = "gateway"
)

type PaymentStatus string

const (
	PaymentInitialized PaymentStatus = "INITIALIZED"
	PaymentSuccess     PaymentStatus = "SUCCESS"
	PaymentFailed      PaymentStatus = "FAILED"
)

type Order struct {
	ID                uuid.UUID          `gorm:"type:uuid;default:uuid_generate_v4();primary_key" json:"id"`
	OrderNumber       string             `gorm:"uniqueIndex;not null" json:"order_number"`
	UserID            uuid.UUID          `gorm:"type:uuid;not null;index" json:"user_id"`
	Status            OrderStatus        `gorm:"not null" json:"status"`
	PaymentMethod     PaymentMethod      `gorm:"not null" json:"payment_method"`
	PaymentStatus     OrderPaymentStatus `gorm:"not null" json:"payment_status"`
	Subtotal          decimal.Decimal    `gorm:"type:numeric(12,2);not null" json:"subtotal"`
	DeliveryFee       decimal.Decimal    `gorm:"type:numeric(12,2);not null;default:0" json:"delivery_fee"`
	ServiceFee        decimal.Decimal    `gorm:"type:numeric(12,2);not null;default:0" json:"service_fee"`
	AffiliateDiscount decimal.Decimal    `gorm:"type:numeric(12,2);not null;default:0" json:"affiliate_discount"`
	Total             decimal.Decimal    `gorm:"type:numeric(12,2);not null" json:"total"`
	DeliveryAddress   string             `gorm:"not null" json:"delivery_address"`
	DeliveryPhone     string             `gorm:"not null" json:"delivery_phone"`
	DeliveryNote      *string            `json:"delivery_note,omitempty"`
	Items             []OrderItem        `gorm:"foreignKey:OrderID" json:"items,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// OrderItem is the frozen cart line: later catalog price changes never touch
// a placed order.
type OrderItem struct {
	ID           uuid.UUID       `gorm:"type:uuid;default:uuid_generate_v4();primary_key" json:"id"`
	OrderID      uuid.UUID       `gorm:"type:uuid;not null;index" json:"order_id"`
	ProductID    uuid.UUID       `gorm:"type:uuid;not null" json:"product_id"`
	ProductName  string          `gorm:"not null" json:"product_name"`
	ImageURL     *string         `json:"image_url,omitempty"`
	UnitPrice    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price"`
	UnitDiscount decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"unit_discount"`
	Quantity     int             `gorm:"not null" json:"quantity"`
	LineTotal    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"line_total"`
	CreatedAt    time.Time       `json:"created_at"`
}

// PaymentTransaction is the order-bound payment record. INITIALIZED is the
// only non-terminal state; SUCCESS and FAILED are first-writer-wins.
type PaymentTransaction struct {
	ID               uuid.UUID        `gorm:"type:uuid;default:uuid_generate_v4();primary_key" json:"id"`
	UserID           uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_order_payment_idem" json:"user_id"`
	OrderID          uuid.UUID        `gorm:"type:uuid;not null;index" json:"order_id"`
	Method           PaymentMethod    `gorm:"not null;uniqueIndex:idx_order_payment_idem" json:"method"`
	IdempotencyKey   string           `gorm:"not null;uniqueIndex:idx_order_payment_idem" json:"idempotency_key"`
	Reference        *string          `gorm:"uniqueIndex" json:"reference,omitempty"`
	Amount           decimal.Decimal  `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency         string           `gorm:"not null" json:"currency"`
	Status           PaymentStatus    `gorm:"not null;default:INITIALIZED" json:"status"`
	LastWebhookEvent *string          `json:"last_webhook_event,omitempty"`
	ProcessedAt      *time.Time       `json:"processed_at,omitempty"`
	GatewayResponse  database.JSONMap `gorm:"type:jsonb" json:"gateway_response,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

func (p PaymentTransaction) Terminal() bool {
	return p.Status == PaymentSuccess || p.Status == PaymentFailed
}
