package usecase

import (
	"context"
	"errors"
	"time"

	"storefront-backend/internal/domain"
)

type OrderBuilder struct {
	Orders  OrderRepo
	Catalog Catalog
	Pricing domain.Pricing
	Now     func() time.Time
}

// PlaceOrder snapshots the cart into a pending order. Prices and variant
// descriptions are copied so later catalog edits do not touch the order. The
// cart itself is left as it is.
func (b *OrderBuilder) PlaceOrder(ctx context.Context, cart *domain.Cart, buyer domain.BuyerInfo, choice domain.PaymentChoice) (*domain.Order, error) {
	if cart == nil || cart.Empty() {
		id := ""
		if cart != nil {
			id = cart.ID
		}
		return nil, &domain.EmptyCartError{CartID: id}
	}
	buyer = trimBuyer(buyer)
	if err := validateCheckout(buyer, choice); err != nil {
		return nil, err
	}
	lines, subtotal, err := priceCart(ctx, b.Catalog, cart)
	if err != nil {
		return nil, err
	}
	totals := b.Pricing.Totals(subtotal)
	now := b.now()

	o := &domain.Order{
		ID:            randomID(),
		UserID:        cart.UserID,
		CartID:        cart.ID,
		Buyer:         buyer,
		Items:         make([]domain.OrderItem, 0, len(lines)),
		Subtotal:      totals.Subtotal,
		Shipping:      totals.Shipping,
		Tax:           totals.Tax,
		Total:         totals.Total,
		PaymentMethod: choice.Method,
		PaymentStatus: domain.PaymentPending,
		Status:        domain.OrderPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if choice.Method == domain.MethodMobileMoney {
		o.MobileOperator = domain.NormalizeOperator(string(choice.Operator))
	}
	stores := map[string]struct{}{}
	for _, l := range lines {
		o.Items = append(o.Items, domain.OrderItem{
			ID:          randomID(),
			OrderID:     o.ID,
			ProductID:   l.Product.ID,
			StoreID:     l.Product.StoreID,
			ProductName: l.Product.Name,
			VariantInfo: l.VariantInfo,
			Price:       l.UnitPrice,
			Quantity:    l.Item.Quantity,
		})
		stores[l.Product.StoreID] = struct{}{}
	}
	if len(stores) == 1 {
		o.StoreID = o.Items[0].StoreID
	}

	if err := b.Orders.CreateOrder(ctx, o); err != nil {
		if errors.Is(err, domain.ErrPaymentInFlight) {
			return nil, ErrConflict("a payment for this cart is already in progress")
		}
		return nil, err
	}
	return o, nil
}

func (b *OrderBuilder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now().UTC()
}
