package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"storefront-backend/internal/domain"
	"storefront-backend/internal/logger"
)

// OrderService holds the post-checkout lifecycle: reads, merchant delivery
// updates, cash confirmation, cancellation and refunds.
type OrderService struct {
	Orders   OrderRepo
	Catalog  Catalog
	Notifier Notifier
	Now      func() time.Time
}

func (s *OrderService) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	o, err := s.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, notFound(err, "order")
	}
	return o, nil
}

// GetForUser returns the order only when it belongs to userID.
func (s *OrderService) GetForUser(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotFound("order")
	}
	return o, nil
}

func (s *OrderService) ListForUser(ctx context.Context, userID string, page, pageSize int) ([]domain.Order, int, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return s.Orders.ListOrdersByUser(ctx, userID, page, pageSize)
}

// AuthorizeMerchant loads the order and checks that merchantID owns at least
// one store with items on it.
func (s *OrderService) AuthorizeMerchant(ctx context.Context, merchantID, orderID string) (*domain.Order, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	for _, st := range storeOwners(ctx, s.Catalog, o) {
		if st.OwnerID == merchantID {
			return o, nil
		}
	}
	return nil, ErrForbidden("order belongs to another store")
}

// MarkShipped is a no-op for orders already shipped or delivered.
func (s *OrderService) MarkShipped(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.advance(ctx, orderID, domain.OrderShipped, EventOrderShipped)
}

// MarkDelivered is a no-op for delivered orders. The first delivery stamps
// DeliveredAt.
func (s *OrderService) MarkDelivered(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.advance(ctx, orderID, domain.OrderDelivered, EventOrderDelivered)
}

func (s *OrderService) advance(ctx context.Context, orderID string, to domain.OrderStatus, event string) (*domain.Order, error) {
	o, changed, err := s.mutate(ctx, orderID, func(o *domain.Order) (bool, error) {
		if o.Status == domain.OrderCancelled {
			return false, ErrConflict("order is cancelled")
		}
		if o.Status.Reached(to) {
			return false, nil
		}
		if o.PaymentStatus == domain.PaymentFailed || o.PaymentStatus == domain.PaymentRefunded {
			return false, ErrConflict("order payment is " + string(o.PaymentStatus))
		}
		if err := o.MoveStatus(to, s.now()); err != nil {
			return false, ErrConflict(err.Error())
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		logger.Info(ctx, "order status changed", "order_id", o.ID, "to", to)
		notifyOrder(ctx, s.Notifier, s.Catalog, o, event)
	}
	return o, nil
}

// ConfirmCashPayment records that a cash-on-delivery order has been paid.
// Confirming twice returns the order unchanged.
func (s *OrderService) ConfirmCashPayment(ctx context.Context, orderID string) (*domain.Order, error) {
	o, changed, err := s.mutate(ctx, orderID, func(o *domain.Order) (bool, error) {
		if o.PaymentMethod != domain.MethodCash {
			return false, ErrConflict("order is not cash on delivery")
		}
		if o.PaymentStatus == domain.PaymentCompleted && o.PaymentConfirmed {
			return false, nil
		}
		if o.Status == domain.OrderCancelled {
			return false, ErrConflict("order is cancelled")
		}
		if err := o.CompletePayment(s.now()); err != nil {
			return false, ErrConflict(err.Error())
		}
		o.PaymentConfirmed = true
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		logger.Info(ctx, "cash payment confirmed", "order_id", o.ID, "total", o.Total.StringFixed(2))
		notifyOrder(ctx, s.Notifier, s.Catalog, o, EventPaymentReceipt)
	}
	return o, nil
}

// Cancel stops delivery of a non-terminal order. A mobile-money payment still
// in flight is failed with it; completed payments are left for Refund.
func (s *OrderService) Cancel(ctx context.Context, orderID string) (*domain.Order, error) {
	o, changed, err := s.mutate(ctx, orderID, func(o *domain.Order) (bool, error) {
		if o.Status == domain.OrderCancelled {
			return false, nil
		}
		now := s.now()
		if err := o.MoveStatus(domain.OrderCancelled, now); err != nil {
			return false, ErrConflict(err.Error())
		}
		if o.PaymentMethod == domain.MethodMobileMoney && o.PaymentInFlight() {
			if err := o.MovePayment(domain.PaymentFailed, now); err != nil {
				return false, ErrConflict(err.Error())
			}
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		logger.Info(ctx, "order cancelled", "order_id", o.ID, "payment_status", o.PaymentStatus)
		notifyOrder(ctx, s.Notifier, s.Catalog, o, EventOrderCancelled)
	}
	return o, nil
}

func (s *OrderService) Refund(ctx context.Context, orderID string) (*domain.Order, error) {
	o, changed, err := s.mutate(ctx, orderID, func(o *domain.Order) (bool, error) {
		if o.PaymentStatus == domain.PaymentRefunded {
			return false, nil
		}
		if err := o.MovePayment(domain.PaymentRefunded, s.now()); err != nil {
			return false, ErrConflict(err.Error())
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		logger.Info(ctx, "payment refunded", "order_id", o.ID, "total", o.Total.StringFixed(2))
	}
	return o, nil
}

const staleRetries = 3

// mutate reads the order, lets step change it and writes it back under the
// state it was read with. When another request wrote first, the order is read
// again so step decides against the new state; an order that already reached
// the target comes back unchanged.
func (s *OrderService) mutate(ctx context.Context, orderID string, step func(*domain.Order) (bool, error)) (*domain.Order, bool, error) {
	for attempt := 1; ; attempt++ {
		o, err := s.Get(ctx, orderID)
		if err != nil {
			return nil, false, err
		}
		prev := o.State()
		changed, err := step(o)
		if err != nil {
			return nil, false, err
		}
		if !changed {
			return o, false, nil
		}
		err = s.Orders.UpdateOrder(ctx, o, prev)
		if err == nil {
			return o, true, nil
		}
		if !errors.Is(err, domain.ErrStaleOrder) || attempt == staleRetries {
			return nil, false, s.stale(err)
		}
		logger.Debug(ctx, "order changed underneath, reloading", "order_id", orderID, "attempt", attempt)
	}
}

// StoreRevenue sums the totals of single-store orders placed with storeID plus
// the store's own lines on orders that span several stores.
func (s *OrderService) StoreRevenue(ctx context.Context, merchantID, storeID string) (decimal.Decimal, error) {
	st, err := s.Catalog.GetStore(ctx, storeID)
	if err != nil {
		return decimal.Zero, notFound(err, "store")
	}
	if st.OwnerID != merchantID {
		return decimal.Zero, ErrForbidden("store belongs to another merchant")
	}
	return s.Orders.SumStoreTotals(ctx, storeID)
}

func (s *OrderService) stale(err error) error {
	if errors.Is(err, domain.ErrStaleOrder) {
		return ErrConflict("order was updated by another request")
	}
	return err
}

func (s *OrderService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
