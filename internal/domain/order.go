package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending     PaymentStatus = "pending"
	PaymentProcessing  PaymentStatus = "processing"
	PaymentOTPRequired PaymentStatus = "otp-required"
	PaymentPayOffline  PaymentStatus = "pay-offline"
	PaymentCompleted   PaymentStatus = "completed"
	PaymentFailed      PaymentStatus = "failed"
	PaymentRefunded    PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	MethodMobileMoney PaymentMethod = "mobile_money"
	MethodCash        PaymentMethod = "cash"
)

func (m PaymentMethod) Valid() bool {
	return m == MethodMobileMoney || m == MethodCash
}

type MobileOperator string

const (
	OperatorAirtel MobileOperator = "airtel"
	OperatorMTN    MobileOperator = "mtn"
)

// NormalizeOperator falls back to airtel for anything it does not recognise.
func NormalizeOperator(s string) MobileOperator {
	switch MobileOperator(strings.ToLower(strings.TrimSpace(s))) {
	case OperatorMTN:
		return OperatorMTN
	default:
		return OperatorAirtel
	}
}

type PaymentChoice struct {
	Method   PaymentMethod  `json:"method"`
	Operator MobileOperator `json:"operator,omitempty"`
}

type BuyerInfo struct {
	FirstName  string `json:"firstName" validate:"required,max=100"`
	LastName   string `json:"lastName" validate:"required,max=100"`
	Email      string `json:"email" validate:"required,email"`
	Address    string `json:"address" validate:"required,max=255"`
	City       string `json:"city" validate:"required,max=100"`
	PostalCode string `json:"postalCode" validate:"required,max=20"`
	Phone      string `json:"phone" validate:"required,min=7,max=20"`
}

// ProviderPayload keeps every raw gateway response seen for an order.
type ProviderPayload struct {
	Charge      json.RawMessage `json:"charge,omitempty"`
	OTP         json.RawMessage `json:"otpResponse,omitempty"`
	StatusCheck json.RawMessage `json:"statusCheck,omitempty"`
}

func (p ProviderPayload) Empty() bool {
	return len(p.Charge) == 0 && len(p.OTP) == 0 && len(p.StatusCheck) == 0
}

type OrderItem struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"orderId"`
	ProductID   string          `json:"productId"`
	StoreID     string          `json:"storeId"`
	ProductName string          `json:"productName"`
	VariantInfo string          `json:"variantInfo,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID               string          `json:"id"`
	UserID           string          `json:"userId"`
	CartID           string          `json:"cartId"`
	StoreID          string          `json:"storeId,omitempty"`
	Buyer            BuyerInfo       `json:"buyer"`
	Items            []OrderItem     `json:"items"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	Shipping         decimal.Decimal `json:"shipping"`
	Tax              decimal.Decimal `json:"tax"`
	Total            decimal.Decimal `json:"total"`
	PaymentMethod    PaymentMethod   `json:"paymentMethod"`
	MobileOperator   MobileOperator  `json:"mobileOperator,omitempty"`
	PaymentStatus    PaymentStatus   `json:"paymentStatus"`
	Status           OrderStatus     `json:"status"`
	TransactionRef   string          `json:"transactionRef,omitempty"`
	PaymentReference string          `json:"paymentReference,omitempty"`
	Payload          ProviderPayload `json:"-"`
	PaymentConfirmed bool            `json:"paymentConfirmed"`
	DeliveredAt      *time.Time      `json:"deliveredAt,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// OrderState is the pair of fields guarded by conditional updates.
type OrderState struct {
	Status        OrderStatus
	PaymentStatus PaymentStatus
}

func (o *Order) State() OrderState {
	return OrderState{Status: o.Status, PaymentStatus: o.PaymentStatus}
}

// HoldsCart reports whether the order still has a mobile-money payment in
// flight, which blocks another checkout of the same cart.
func (o *Order) HoldsCart() bool {
	return o.PaymentMethod == MethodMobileMoney && o.PaymentInFlight()
}

func (o *Order) PaymentInFlight() bool {
	switch o.PaymentStatus {
	case PaymentPending, PaymentProcessing, PaymentOTPRequired, PaymentPayOffline:
		return true
	}
	return false
}

// ProductDetails renders "name (xN), ..." for messages.
func (o *Order) ProductDetails() string {
	parts := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		parts = append(parts, it.ProductName+" (x"+strconv.Itoa(it.Quantity)+")")
	}
	return strings.Join(parts, ", ")
}
