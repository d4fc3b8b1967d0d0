package usecase

import (
	"context"

	"github.com/shopspring/decimal"

	"storefront-backend/internal/domain"
)

// CartRepo lookups return domain.ErrRecordNotFound on a miss. CreateCart and
// ClaimCart return domain.ErrDuplicateOwner when the user or session already
// owns another cart.
type CartRepo interface {
	GetCart(ctx context.Context, id string) (*domain.Cart, error)
	CartByUser(ctx context.Context, userID string) (*domain.Cart, error)
	CartBySession(ctx context.Context, sessionID string) (*domain.Cart, error)
	CreateCart(ctx context.Context, c *domain.Cart) error
	ClaimCart(ctx context.Context, cartID, userID string) error
	PutItem(ctx context.Context, item *domain.CartItem) error
	DeleteItem(ctx context.Context, cartID, itemID string) error
	ClearCart(ctx context.Context, cartID string) error
}

// OrderRepo.CreateOrder stores the order and its items atomically and fails
// with domain.ErrPaymentInFlight when another order still holds the cart.
// UpdateOrder only applies when the stored state still equals prev, otherwise
// it returns domain.ErrStaleOrder.
type OrderRepo interface {
	CreateOrder(ctx context.Context, o *domain.Order) error
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListOrdersByUser(ctx context.Context, userID string, page, pageSize int) ([]domain.Order, int, error)
	UpdateOrder(ctx context.Context, o *domain.Order, prev domain.OrderState) error
	RecordAttempt(ctx context.Context, orderID, reference string) error
	SumStoreTotals(ctx context.Context, storeID string) (decimal.Decimal, error)
}

type Catalog interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetVariant(ctx context.Context, id string) (*domain.ProductVariant, error)
	GetStore(ctx context.Context, id string) (*domain.Store, error)
}

type PaymentGateway interface {
	Charge(ctx context.Context, req domain.ChargeRequest) (domain.GatewayResult, error)
	SubmitOTP(ctx context.Context, otp, reference string) (domain.GatewayResult, error)
	CollectionStatus(ctx context.Context, reference string) (domain.GatewayResult, error)
}

// Notifier sends best-effort; it never reports failures to the caller.
type Notifier interface {
	Notify(ctx context.Context, msgs ...domain.Message)
}

// IdempotencyStore remembers which order a checkout key produced. Reserve
// returns fresh=true when the caller now owns the key; otherwise orderID is
// the bound order, or empty while the owner is still working.
type IdempotencyStore interface {
	Reserve(ctx context.Context, key string) (orderID string, fresh bool, err error)
	Bind(ctx context.Context, key, orderID string) error
	Release(ctx context.Context, key string) error
}

type CheckoutMetrics interface {
	ObserveCheckout(method, outcome string)
	ObserveOTP(outcome string)
}
