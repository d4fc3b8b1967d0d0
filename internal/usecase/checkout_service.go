package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"storefront-backend/internal/domain"
	"storefront-backend/internal/logger"
)

type Outcome string

const (
	OutcomeCompleted   Outcome = "completed"
	OutcomeOTPRequired Outcome = "otp-required"
	OutcomePayOffline  Outcome = "pay-offline"
	OutcomeProcessing  Outcome = "processing"
	OutcomeDeferred    Outcome = "deferred"
	OutcomeFailed      Outcome = "failed"
)

type CheckoutRequest struct {
	Cart           *domain.Cart
	Buyer          domain.BuyerInfo
	Payment        domain.PaymentChoice
	IdempotencyKey string
}

type CheckoutResult struct {
	Order   *domain.Order `json:"order"`
	Outcome Outcome       `json:"outcome"`
	Message string        `json:"message,omitempty"`
}

// CheckoutService drives the payment side of an order: the initial charge,
// OTP authorization, status verification and the cash-on-delivery shortcut.
type CheckoutService struct {
	Carts       CartRepo
	Orders      OrderRepo
	Catalog     Catalog
	Builder     *OrderBuilder
	Gateway     PaymentGateway
	Notifier    Notifier
	Idempotency IdempotencyStore
	Metrics     CheckoutMetrics
	Currency    string
	Now         func() time.Time
}

// Checkout places an order for the cart and starts payment. On a gateway
// failure the result still carries the (failed) order together with a
// *domain.GatewayRejectedError or *domain.GatewayTransportError.
func (s *CheckoutService) Checkout(ctx context.Context, req CheckoutRequest) (res *CheckoutResult, err error) {
	if req.IdempotencyKey != "" && s.Idempotency != nil {
		orderID, fresh, err := s.Idempotency.Reserve(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if !fresh {
			if orderID == "" {
				return nil, ErrConflict("checkout with this idempotency key is in progress")
			}
			o, err := s.Orders.GetOrder(ctx, orderID)
			if err != nil {
				return nil, notFound(err, "order")
			}
			return &CheckoutResult{Order: o, Outcome: outcomeOf(o)}, nil
		}
		defer func() {
			if res == nil || res.Order == nil {
				if rerr := s.Idempotency.Release(ctx, req.IdempotencyKey); rerr != nil {
					logger.Warn(ctx, "release idempotency key failed", "error", rerr)
				}
			}
		}()
	}

	o, err := s.Builder.PlaceOrder(ctx, req.Cart, req.Buyer, req.Payment)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "order placed", "order_id", o.ID, "cart_id", o.CartID, "method", o.PaymentMethod, "total", o.Total.StringFixed(2))
	if req.IdempotencyKey != "" && s.Idempotency != nil {
		if err := s.Idempotency.Bind(ctx, req.IdempotencyKey, o.ID); err != nil {
			logger.Warn(ctx, "bind idempotency key failed", "order_id", o.ID, "error", err)
		}
	}

	switch o.PaymentMethod {
	case domain.MethodCash:
		res, err = s.deferToDelivery(ctx, o)
	default:
		res, err = s.charge(ctx, o)
	}
	if s.Metrics != nil && res != nil {
		s.Metrics.ObserveCheckout(string(o.PaymentMethod), string(res.Outcome))
	}
	return res, err
}

// deferToDelivery is the cash path: no gateway, payment stays pending.
func (s *CheckoutService) deferToDelivery(ctx context.Context, o *domain.Order) (*CheckoutResult, error) {
	s.clearCart(ctx, o)
	notifyOrder(ctx, s.Notifier, s.Catalog, o, EventOrderConfirmed)
	return &CheckoutResult{Order: o, Outcome: OutcomeDeferred, Message: "Order placed. Pay on delivery."}, nil
}

func (s *CheckoutService) charge(ctx context.Context, o *domain.Order) (*CheckoutResult, error) {
	ref := newTransactionRef(o.ID)
	if err := s.Orders.RecordAttempt(ctx, o.ID, ref); err != nil {
		return s.fail(ctx, o, err)
	}
	prev := o.State()
	o.TransactionRef = ref
	if err := o.MovePayment(domain.PaymentProcessing, s.now()); err != nil {
		return nil, err
	}
	if err := s.Orders.UpdateOrder(ctx, o, prev); err != nil {
		// the row still holds prev; fail from there so the cart is released
		o.PaymentStatus = prev.PaymentStatus
		return s.fail(ctx, o, s.stale(err))
	}

	currency := s.currencyFor(ctx, o)
	logger.Info(ctx, "mobile money charge", "order_id", o.ID, "reference", ref, "operator", o.MobileOperator, "currency", currency)
	gres, gerr := s.Gateway.Charge(ctx, domain.ChargeRequest{
		Amount:    o.Total,
		Phone:     o.Buyer.Phone,
		Currency:  currency,
		Operator:  o.MobileOperator,
		Reference: ref,
	})
	o.Payload.Charge = gres.Raw
	return s.apply(ctx, o, gres, gerr, false)
}

// SubmitOTP forwards the buyer's OTP for an order awaiting authorization.
func (s *CheckoutService) SubmitOTP(ctx context.Context, orderID, otp string) (*CheckoutResult, error) {
	o, err := s.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, notFound(err, "order")
	}
	if o.PaymentReference == "" {
		return nil, &domain.MissingReferenceError{OrderID: o.ID}
	}
	otp = strings.TrimSpace(otp)
	if otp == "" {
		return nil, &domain.ValidationError{Fields: map[string]string{"otp": "OTP is required"}}
	}
	if o.PaymentStatus != domain.PaymentOTPRequired && o.PaymentStatus != domain.PaymentProcessing {
		return nil, ErrConflict("payment is not awaiting an OTP")
	}
	gres, gerr := s.Gateway.SubmitOTP(ctx, otp, o.PaymentReference)
	o.Payload.OTP = gres.Raw
	res, err := s.apply(ctx, o, gres, gerr, true)
	if s.Metrics != nil && res != nil {
		s.Metrics.ObserveOTP(string(res.Outcome))
	}
	return res, err
}

// VerifyPayment asks the gateway once for the collection status. Only a
// terminal answer changes the order; a failed status query leaves it as is.
func (s *CheckoutService) VerifyPayment(ctx context.Context, orderID string) (*CheckoutResult, error) {
	o, err := s.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, notFound(err, "order")
	}
	if o.PaymentMethod != domain.MethodMobileMoney || !o.PaymentInFlight() {
		return &CheckoutResult{Order: o, Outcome: outcomeOf(o)}, nil
	}
	if o.PaymentReference == "" {
		return nil, &domain.MissingReferenceError{OrderID: o.ID}
	}
	gres, gerr := s.Gateway.CollectionStatus(ctx, o.PaymentReference)
	if gerr != nil {
		return &CheckoutResult{Order: o, Outcome: outcomeOf(o), Message: gerr.Error()}, gerr
	}
	switch gres.Status {
	case domain.GatewaySuccessful, domain.GatewayFailed:
		o.Payload.StatusCheck = gres.Raw
		return s.apply(ctx, o, gres, nil, true)
	}
	return &CheckoutResult{Order: o, Outcome: outcomeOf(o), Message: "Payment status: " + statusText(gres)}, nil
}

// apply moves the order according to one gateway answer. With final set,
// anything but success fails the payment (OTP and verification replies).
func (s *CheckoutService) apply(ctx context.Context, o *domain.Order, gres domain.GatewayResult, gerr error, final bool) (*CheckoutResult, error) {
	if ref := gres.PaymentReference(); ref != "" && gerr == nil && o.PaymentReference == "" {
		o.PaymentReference = ref
	}
	if gerr != nil {
		return s.fail(ctx, o, gerr)
	}
	prev := o.State()
	now := s.now()

	switch {
	case gres.Status == domain.GatewaySuccessful:
		if err := o.CompletePayment(now); err != nil {
			return nil, err
		}
		if err := s.Orders.UpdateOrder(ctx, o, prev); err != nil {
			return nil, s.stale(err)
		}
		logger.Info(ctx, "payment completed", "order_id", o.ID, "reference", o.PaymentReference)
		s.clearCart(ctx, o)
		notifyOrder(ctx, s.Notifier, s.Catalog, o, EventOrderConfirmed)
		return &CheckoutResult{Order: o, Outcome: OutcomeCompleted, Message: "Payment successful"}, nil

	case !final && gres.Status == domain.GatewayOTPRequired:
		return s.await(ctx, o, prev, domain.PaymentOTPRequired, OutcomeOTPRequired, "Please enter the OTP sent to your phone")

	case !final && gres.Status == domain.GatewayPayOffline:
		return s.await(ctx, o, prev, domain.PaymentPayOffline, OutcomePayOffline, "Please authorize the payment on your phone")

	case !final && gres.Status == domain.GatewayPending:
		o.UpdatedAt = now
		if err := s.Orders.UpdateOrder(ctx, o, prev); err != nil {
			return nil, s.stale(err)
		}
		return &CheckoutResult{Order: o, Outcome: OutcomeProcessing, Message: "Payment is processing"}, nil
	}

	reason := gres.Reason
	if reason == "" {
		reason = "Payment status: " + statusText(gres)
	}
	return s.fail(ctx, o, &domain.GatewayRejectedError{Op: "interpret", Reason: reason})
}

func (s *CheckoutService) await(ctx context.Context, o *domain.Order, prev domain.OrderState, to domain.PaymentStatus, out Outcome, msg string) (*CheckoutResult, error) {
	if err := o.MovePayment(to, s.now()); err != nil {
		return nil, err
	}
	if err := s.Orders.UpdateOrder(ctx, o, prev); err != nil {
		return nil, s.stale(err)
	}
	logger.Info(ctx, "payment awaiting buyer", "order_id", o.ID, "payment_status", to, "reference", o.PaymentReference)
	return &CheckoutResult{Order: o, Outcome: out, Message: msg}, nil
}

// fail marks the payment failed and returns cause unchanged so the caller can
// show the provider's own message. The cart is not touched.
func (s *CheckoutService) fail(ctx context.Context, o *domain.Order, cause error) (*CheckoutResult, error) {
	prev := o.State()
	if err := o.MovePayment(domain.PaymentFailed, s.now()); err != nil {
		logger.Error(ctx, "cannot mark payment failed", "order_id", o.ID, "payment_status", o.PaymentStatus, "error", err)
		return &CheckoutResult{Order: o, Outcome: outcomeOf(o), Message: cause.Error()}, cause
	}
	if err := s.Orders.UpdateOrder(ctx, o, prev); err != nil {
		logger.Error(ctx, "persist failed payment", "order_id", o.ID, "error", err)
		return nil, s.stale(err)
	}
	logger.Warn(ctx, "payment failed", "order_id", o.ID, "reason", cause.Error())
	return &CheckoutResult{Order: o, Outcome: OutcomeFailed, Message: cause.Error()}, cause
}

func (s *CheckoutService) clearCart(ctx context.Context, o *domain.Order) {
	if o.CartID == "" || s.Carts == nil {
		return
	}
	if err := s.Carts.ClearCart(ctx, o.CartID); err != nil {
		logger.Error(ctx, "clear cart after checkout", "order_id", o.ID, "cart_id", o.CartID, "error", err)
	}
}

func (s *CheckoutService) currencyFor(ctx context.Context, o *domain.Order) string {
	if o.StoreID != "" && s.Catalog != nil {
		if st, err := s.Catalog.GetStore(ctx, o.StoreID); err == nil && st.Currency != "" {
			return st.Currency
		}
	}
	if s.Currency != "" {
		return s.Currency
	}
	return "ZMW"
}

func (s *CheckoutService) stale(err error) error {
	if errors.Is(err, domain.ErrStaleOrder) {
		return ErrConflict("order was updated by another request")
	}
	return err
}

func (s *CheckoutService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func outcomeOf(o *domain.Order) Outcome {
	switch o.PaymentStatus {
	case domain.PaymentCompleted:
		return OutcomeCompleted
	case domain.PaymentOTPRequired:
		return OutcomeOTPRequired
	case domain.PaymentPayOffline:
		return OutcomePayOffline
	case domain.PaymentProcessing:
		return OutcomeProcessing
	case domain.PaymentPending:
		if o.PaymentMethod == domain.MethodCash {
			return OutcomeDeferred
		}
		return OutcomeProcessing
	}
	return OutcomeFailed
}

func statusText(r domain.GatewayResult) string {
	if r.RawStatus != "" {
		return r.RawStatus
	}
	return string(r.Status)
}
