package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-backend/internal/domain"
)

func fillCart(t *testing.T, f *fixture, userID string, lines ...[2]any) *domain.Cart {
	t.Helper()
	ctx := context.Background()
	id := domain.Identity{UserID: userID}
	for _, l := range lines {
		_, _, err := f.carts.AddItem(ctx, id, l[0].(string), "", l[1].(int))
		require.NoError(t, err)
	}
	c, _, err := f.carts.Resolve(ctx, id)
	require.NoError(t, err)
	return c
}

func TestCheckout_EmptyCartCreatesNoOrder(t *testing.T) {
	f := newFixture()
	c := fillCart(t, f, "u1")

	_, err := f.checkout.Checkout(context.Background(), CheckoutRequest{Cart: c, Buyer: validBuyer(), Payment: mobileMoney()})
	var empty *domain.EmptyCartError
	require.ErrorAs(t, err, &empty)
	assert.Empty(t, f.repo.orders)
	assert.Zero(t, f.gateway.count())
}

func TestCheckout_ValidationListsEveryField(t *testing.T) {
	f := newFixture()
	c := fillCart(t, f, "u1", [2]any{"p1", 1})
	b := validBuyer()
	b.Email = "not-an-email"
	b.City = "   "

	_, err := f.checkout.Checkout(context.Background(), CheckoutRequest{Cart: c, Buyer: b, Payment: domain.PaymentChoice{Method: "cheque"}})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "enter a valid email address", verr.Fields["email"])
	assert.Equal(t, "this field is required", verr.Fields["city"])
	assert.Equal(t, "select a valid choice", verr.Fields["paymentMethod"])
	assert.Empty(t, f.repo.orders)
}

func TestCheckout_CashOnDeliveryNeverCallsGateway(t *testing.T) {
	f := newFixture()
	c := fillCart(t, f, "u1", [2]any{"p1", 2})

	res, err := f.checkout.Checkout(context.Background(), CheckoutRequest{Cart: c, Buyer: validBuyer(), Payment: cashOnDelivery()})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeferred, res.Outcome)
	assert.Zero(t, f.gateway.count())

	o := f.repo.stored(res.Order.ID)
	assert.Equal(t, domain.PaymentPending, o.PaymentStatus)
	assert.Equal(t, domain.OrderPending, o.Status)
	assert.Equal(t, "20.00", o.Subtotal.StringFixed(2))
	assert.Equal(t, "5.00", o.Shipping.StringFixed(2))
	assert.Equal(t, "0.40", o.Tax.StringFixed(2))
	assert.Equal(t, "25.40", o.Total.StringFixed(2))
	assert.True(t, o.Total.Equal(o.Subtotal.Add(o.Shipping).Add(o.Tax)))
	assert.Equal(t, "s1", o.StoreID)
	assert.Zero(t, f.repo.cartItems(c.ID))
	require.Len(t, f.notifier.events(EventOrderConfirmed), 1)
	assert.Equal(t, "mwila@example.com", f.notifier.events(EventOrderConfirmed)[0].To)
}

func TestCheckout_MobileMoneySuccess(t *testing.T) {
	f := newFixture()
	c := fillCart(t, f, "u1", [2]any{"p1", 2})

	res, err := f.checkout.Checkout(context.Background(), CheckoutRequest{Cart: c, Buyer: validBuyer(), Payment: mobileMoney()})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)

	require.Equal(t, 1, f.gateway.count())
	req := f.gateway.calls[0].Req
	assert.Equal(t, "25.40", req.Amount.StringFixed(2))
	assert.Equal(t, domain.OperatorMTN, req.Operator)
	assert.Equal(t, "ZMW", req.Currency)
	assert.True(t, strings.HasPrefix(req.Reference, "ORDER-"+res.Order.ID+"-"))
	assert.Len(t, strings.TrimPrefix(req.Reference, "ORDER-"+res.Order.ID+"-"), 6)

	o := f.repo.stored(res.Order.ID)
	assert.Equal(t, domain.PaymentCompleted, o.PaymentStatus)
	assert.Equal(t, domain.OrderProcessing, o.Status)
	assert.Equal(t, req.Reference, o.TransactionRef)
	assert.Equal(t, "LNC-"+req.Reference, o.PaymentReference)
	assert.NotEmpty(t, o.Payload.Charge)
	assert.Zero(t, f.repo.cartItems(c.ID))
	assert.Len(t, f.notifier.events(EventOrderConfirmed), 1)
}

func TestCheckout_OTPRequiredKeepsCart(t *testing.T) {
	f := newFixture()
	f.gateway.charge = func(req domain.ChargeRequest) (domain.GatewayResult, error) {
		return gatewayReply(domain.GatewayOTPRequired, req.Reference), nil
	}
	c := fillCart(t, f, "u1", [2]any{"p1", 1})

	res, err := f.checkout.Checkout(context.Background(), CheckoutRequest{Cart: c, Buyer: validBuyer(), Payment: mobileMoney()})
	require.NoError(t, err)
	assert.Equal(t, OutcomeOTPRequired, res.Outcome)
	assert.Equal(t, domain.PaymentOTPRequired, f.repo.stored(res.Order.ID).PaymentStatus)
	assert.Equal(t, 1, f.repo.cartItems(c.ID))
	assert.Empty(t, f.notifier.events(EventOrderConfirmed))
}

func TestCheckout_PayOfflineAndPending(t *testing.T) {
	cases := map[domain.GatewayStatus]struct {
		outcome Outcome
		status  domain.PaymentStatus
	}{
		domain.GatewayPayOffline: {OutcomePayOffline, domain.PaymentPayOffline},
		domain.GatewayPending:    {OutcomeProcessing, domain.PaymentProcessing},
	}
	for gs, want := range cases {
		t.Run(string(gs), func(t *testing.T) {
			f := newFixture()
			f.gateway.charge = func(req domain.ChargeRequest) (domain.GatewayResult, error) {
				return gatewayReply(gs, req.Reference), nil
			}
			c := fillCart(t, f, "u1", [2]any{"p1", 1})
			res, err := f.checkout.Checkout(context.Background(), CheckoutRequest{Cart: c, Buyer: validBuyer(), Payment: mobileMoney()})
			require.NoError(t, err)
			assert.Equal(t, want.outcome, res.Outcome)
			assert.Equal(t, want.status, f.repo.stored(res.Order.ID).PaymentStatus)
			assert.Equal(t, 1, f.repo.cartItems(c.ID))
		})
	}
}

func TestCheckout_RejectionFailsOrderAndKeepsCart(t *testing.T) {
	f := newFixture()
	f.gateway.charge = func(req domain.ChargeRequest) (domain.GatewayResult, error) {
		return domain.GatewayResult{Status: domain.GatewayUnknown, Raw: raw(map[string]any{"status": false})},
			&domain.GatewayRejectedError{Op: "charge", StatusCode: 400, Reason: "Insufficient balance"}
	}
	c := fillCart(t, f, "u1", [2]any{"p1", 1})

	res, err := f.checkout.Checkout(context.Background(), CheckoutRequest{Cart: c, Buyer: validBuyer(), Payment: mobileMoney()})
	var rej *domain.GatewayRejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "Insufficient balance", err.Error())
	require.NotNil(t, res)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, "Insufficient balance", res.Message)

	o := f.repo.stored(res.Order.ID)
	assert.Equal(t, domain.PaymentFailed, o.PaymentStatus)
	assert.NotEmpty(t, o.Payload.Charge)
	assert.Equal(t, 1, f.repo.cartItems(c.ID))
	assert.Empty(t, f.notifier.events(EventOrderConfirmed))
}

func TestCheckout_FailedStatusUsesProviderReason(t *testing.T) {
	f := newFixture()
	f.gateway.charge = func(req domain.ChargeRequest) (domain.GatewayResult, error) {
		r := gatewayReply(domain.GatewayFailed, req.Reference)
		r.Reason = "Subscriber not found"
		return r, nil
	}
	c := fillCart(t, f, "u1", [2]any{"p1", 1})

	res, err := f.checkout.Checkout(context.Background(), CheckoutRequest{Cart: c, Buyer: validBuyer(), Payment: mobileMoney()})
	require.Error(t, err)
	assert.Equal(t, "Subscriber not found", err.Error())
	assert.Equal(t, OutcomeFailed, res.Outcome)

	f2 := newFixture()
	f2.gateway.charge = func(req domain.ChargeRequest) (domain.GatewayResult, error) {
		return domain.GatewayResult{Status: domain.GatewayUnknown, RawStatus: "queued", Raw: raw(map[string]any{})}, nil
	}
	c2 := fillCart(t, f2, "u1", [2]any{"p1", 1})
	_, err = f2.checkout.Checkout(context.Background(), CheckoutRequest{Cart: c2, Buyer: validBuyer(), Payment: mobileMoney()})
	require.Error(t, err)
	assert.Equal(t, "Payment status: queued", err.Error())
}

func TestCheckout_TransportErrorFailsOrder(t *testing.T) {
	f := newFixture()
	f.gateway.charge = func(req domain.ChargeRequest) (domain.GatewayResult, error) {
		return domain.GatewayResult{Status: domain.GatewayUnknown},
			&domain.GatewayTransportError{Op: "charge", Err: errors.New("dial tcp: connection refused")}
	}
	c := fillCart(t, f, "u1", [2]any{"p1", 1})

	res, err := f.checkout.Checkout(context.Background(), CheckoutRequest{Cart: c, Buyer: validBuyer(), Payment: mobileMoney()})
	var terr *domain.GatewayTransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "dial tcp: connection refused", res.Message)
	assert.Equal(t, domain.PaymentFailed, f.repo.stored(res.Order.ID).PaymentStatus)
	assert.Equal(t, 1, f.repo.cartItems(c.ID))
}

type flakyRepo struct {
	*fakeRepo
	failures int
}

func (r *flakyRepo) UpdateOrder(ctx context.Context, o *domain.Order, prev domain.OrderState) error {
	r.mu.Lock()
	fail := r.failures > 0
	if fail {
		r.failures--
	}
	r.mu.Unlock()
	if fail {
		return errors.New("connection reset")
	}
	return r.fakeRepo.UpdateOrder(ctx, o, prev)
}

func TestCheckout_LostProcessingWriteReleasesCart(t *testing.T) {
	f := newFixture()
	f.checkout.Orders = &flakyRepo{fakeRepo: f.repo, failures: 1}
	c := fillCart(t, f, "u1", [2]any{"p1", 1})
	ctx := context.Background()

	res, err := f.checkout.Checkout(ctx, CheckoutRequest{Cart: c, Buyer: validBuyer(), Payment: mobileMoney()})
	require.Error(t, err)
	assert.Equal(t, "connection reset", err.Error())
	require.NotNil(t, res)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	stored := f.repo.stored(res.Order.ID)
	assert.Equal(t, domain.PaymentFailed, stored.PaymentStatus)
	assert.False(t, stored.HoldsCart())
	assert.Zero(t, f.gateway.count())

	again, err := f.checkout.Checkout(ctx, CheckoutRequest{Cart: c, Buyer: validBuyer(), Payment: mobileMoney()})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, again.Outcome)
	assert.Len(t, f.repo.orders, 2)
}

func TestCheckout_SecondCheckoutWhilePaymentInFlight(t *testing.T) {
	f := newFixture()
	f.gateway.charge = func(req domain.ChargeRequest) (domain.GatewayResult, error) {
		return gatewayReply(domain.GatewayOTPRequired, req.Reference), nil
	}
	c := fillCart(t, f, "u1", [2]any{"p1", 1})
	ctx := context.Background()

	_, err := f.checkout.Checkout(ctx, CheckoutRequest{Cart: c, Buyer: validBuyer(), Payment: mobileMoney()})
	require.NoError(t, err)
	_, err = f.checkout.Checkout(ctx, CheckoutRequest{Cart: c, Buyer: validBuyer(), Payment: mobileMoney()})
	var cf ErrConflict
	require.ErrorAs(t, err, &cf)
	assert.Len(t, f.repo.orders, 1)
}

func TestCheckout_ReusedReferenceIsRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.repo.RecordAttempt(ctx, "o1", "ORDER-o1-abc123"))
	assert.ErrorIs(t, f.repo.RecordAttempt(ctx, "o2", "ORDER-o1-abc123"), domain.ErrDuplicateReference)
}

func TestCheckout_IdempotencyKeyReturnsSameOrder(t *testing.T) {
	f := newFixture()
	f.checkout.Idempotency = &fakeIdempotency{}
	c := fillCart(t, f, "u1", [2]any{"p1", 1})
	ctx := context.Background()
	req := CheckoutRequest{Cart: c, Buyer: validBuyer(), Payment: cashOnDelivery(), IdempotencyKey: "key-1"}

	first, err := f.checkout.Checkout(ctx, req)
	require.NoError(t, err)
	second, err := f.checkout.Checkout(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, OutcomeDeferred, second.Outcome)
	assert.Len(t, f.repo.orders, 1)
}

func TestCheckout_IdempotencyKeyReleasedOnEarlyFailure(t *testing.T) {
	f := newFixture()
	idem := &fakeIdempotency{}
	f.checkout.Idempotency = idem
	c := fillCart(t, f, "u1")

	_, err := f.checkout.Checkout(context.Background(), CheckoutRequest{Cart: c, Buyer: validBuyer(), Payment: cashOnDelivery(), IdempotencyKey: "key-2"})
	require.Error(t, err)
	assert.NotContains(t, idem.keys, "key-2")
}

func TestSubmitOTP_MissingReferenceMakesNoCall(t *testing.T) {
	f := newFixture()
	o := &domain.Order{ID: "o1", PaymentMethod: domain.MethodMobileMoney, PaymentStatus: domain.PaymentOTPRequired, Status: domain.OrderPending}
	require.NoError(t, f.repo.CreateOrder(context.Background(), o))

	_, err := f.checkout.SubmitOTP(context.Background(), "o1", "1234")
	var mr *domain.MissingReferenceError
	require.ErrorAs(t, err, &mr)
	assert.Equal(t, "No payment reference found", err.Error())
	assert.Zero(t, f.gateway.count())
}

func otpFixture(t *testing.T) (*fixture, *domain.Cart, string) {
	f := newFixture()
	f.gateway.charge = func(req domain.ChargeRequest) (domain.GatewayResult, error) {
		return gatewayReply(domain.GatewayOTPRequired, req.Reference), nil
	}
	c := fillCart(t, f, "u1", [2]any{"p1", 1})
	res, err := f.checkout.Checkout(context.Background(), CheckoutRequest{Cart: c, Buyer: validBuyer(), Payment: mobileMoney()})
	require.NoError(t, err)
	return f, c, res.Order.ID
}

func TestSubmitOTP_Success(t *testing.T) {
	f, c, orderID := otpFixture(t)

	res, err := f.checkout.SubmitOTP(context.Background(), orderID, " 4321 ")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)

	call := f.gateway.calls[1]
	assert.Equal(t, "otp", call.Op)
	assert.Equal(t, "4321", call.OTP)
	assert.True(t, strings.HasPrefix(call.Ref, "LNC-ORDER-"))

	o := f.repo.stored(orderID)
	assert.Equal(t, domain.PaymentCompleted, o.PaymentStatus)
	assert.Zero(t, f.repo.cartItems(c.ID))
	assert.Len(t, f.notifier.events(EventOrderConfirmed), 1)
}

func TestSubmitOTP_FailureKeepsBothPayloads(t *testing.T) {
	f, c, orderID := otpFixture(t)
	f.gateway.otp = func(otp, ref string) (domain.GatewayResult, error) {
		return domain.GatewayResult{Status: domain.GatewayUnknown, Raw: raw(map[string]any{"status": false, "message": "Invalid OTP"})},
			&domain.GatewayRejectedError{Op: "otp", StatusCode: 400, Reason: "Invalid OTP"}
	}

	res, err := f.checkout.SubmitOTP(context.Background(), orderID, "0000")
	require.Error(t, err)
	assert.Equal(t, "Invalid OTP", err.Error())
	assert.Equal(t, OutcomeFailed, res.Outcome)

	o := f.repo.stored(orderID)
	assert.Equal(t, domain.PaymentFailed, o.PaymentStatus)
	assert.NotEmpty(t, o.Payload.Charge)
	assert.JSONEq(t, `{"status":false,"message":"Invalid OTP"}`, string(o.Payload.OTP))
	assert.Equal(t, 1, f.repo.cartItems(c.ID))
}

func TestSubmitOTP_SecondPromptIsFailure(t *testing.T) {
	f, _, orderID := otpFixture(t)
	f.gateway.otp = func(otp, ref string) (domain.GatewayResult, error) {
		return gatewayReply(domain.GatewayOTPRequired, ref), nil
	}
	res, err := f.checkout.SubmitOTP(context.Background(), orderID, "1111")
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
}

func TestSubmitOTP_Guards(t *testing.T) {
	f, _, orderID := otpFixture(t)
	ctx := context.Background()

	_, err := f.checkout.SubmitOTP(ctx, orderID, "  ")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = f.checkout.SubmitOTP(ctx, orderID, "1234")
	require.NoError(t, err)
	_, err = f.checkout.SubmitOTP(ctx, orderID, "1234")
	var cf ErrConflict
	require.ErrorAs(t, err, &cf)

	_, err = f.checkout.SubmitOTP(ctx, "nope", "1234")
	var nf ErrNotFound
	require.ErrorAs(t, err, &nf)
}

func TestVerifyPayment(t *testing.T) {
	t.Run("pending leaves order alone", func(t *testing.T) {
		f, _, orderID := otpFixture(t)
		res, err := f.checkout.VerifyPayment(context.Background(), orderID)
		require.NoError(t, err)
		assert.Equal(t, OutcomeOTPRequired, res.Outcome)
		assert.Equal(t, domain.PaymentOTPRequired, f.repo.stored(orderID).PaymentStatus)
	})
	t.Run("successful completes", func(t *testing.T) {
		f, c, orderID := otpFixture(t)
		f.gateway.status = func(ref string) (domain.GatewayResult, error) {
			return gatewayReply(domain.GatewaySuccessful, ref), nil
		}
		res, err := f.checkout.VerifyPayment(context.Background(), orderID)
		require.NoError(t, err)
		assert.Equal(t, OutcomeCompleted, res.Outcome)
		o := f.repo.stored(orderID)
		assert.NotEmpty(t, o.Payload.StatusCheck)
		assert.Zero(t, f.repo.cartItems(c.ID))
	})
	t.Run("failed fails", func(t *testing.T) {
		f, _, orderID := otpFixture(t)
		f.gateway.status = func(ref string) (domain.GatewayResult, error) {
			r := gatewayReply(domain.GatewayFailed, ref)
			r.Reason = "Transaction expired"
			return r, nil
		}
		_, err := f.checkout.VerifyPayment(context.Background(), orderID)
		require.Error(t, err)
		assert.Equal(t, "Transaction expired", err.Error())
		assert.Equal(t, domain.PaymentFailed, f.repo.stored(orderID).PaymentStatus)
	})
	t.Run("transport error changes nothing", func(t *testing.T) {
		f, _, orderID := otpFixture(t)
		f.gateway.status = func(ref string) (domain.GatewayResult, error) {
			return domain.GatewayResult{}, &domain.GatewayTransportError{Op: "status", Err: errors.New("timeout")}
		}
		_, err := f.checkout.VerifyPayment(context.Background(), orderID)
		require.Error(t, err)
		assert.Equal(t, domain.PaymentOTPRequired, f.repo.stored(orderID).PaymentStatus)
	})
	t.Run("cash order is not queried", func(t *testing.T) {
		f := newFixture()
		c := fillCart(t, f, "u1", [2]any{"p1", 1})
		res, err := f.checkout.Checkout(context.Background(), CheckoutRequest{Cart: c, Buyer: validBuyer(), Payment: cashOnDelivery()})
		require.NoError(t, err)
		_, err = f.checkout.VerifyPayment(context.Background(), res.Order.ID)
		require.NoError(t, err)
		assert.Zero(t, f.gateway.count())
	})
}
