package domain

import (
	"fmt"
	"time"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:     {PaymentProcessing, PaymentCompleted, PaymentFailed},
	PaymentProcessing:  {PaymentOTPRequired, PaymentPayOffline, PaymentCompleted, PaymentFailed},
	PaymentOTPRequired: {PaymentCompleted, PaymentFailed},
	PaymentPayOffline:  {PaymentCompleted, PaymentFailed},
	PaymentCompleted:   {PaymentRefunded},
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled},
	OrderProcessing: {OrderShipped, OrderDelivered, OrderCancelled},
	OrderShipped:    {OrderDelivered, OrderCancelled},
}

type TransitionError struct {
	Field string
	From  string
	To    string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s cannot move from %s to %s", e.Field, e.From, e.To)
}

func CanMovePayment(from, to PaymentStatus) bool {
	for _, s := range paymentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func CanMoveOrder(from, to OrderStatus) bool {
	for _, s := range orderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

// rank orders the delivery lifecycle so "already in or past" checks are cheap.
func (s OrderStatus) rank() int {
	switch s {
	case OrderPending:
		return 0
	case OrderProcessing:
		return 1
	case OrderShipped:
		return 2
	case OrderDelivered:
		return 3
	}
	return -1
}

// Reached reports whether s is target or later in the delivery lifecycle.
// Cancelled never reaches anything.
func (s OrderStatus) Reached(target OrderStatus) bool {
	r := s.rank()
	return r >= 0 && r >= target.rank()
}

func (o *Order) MovePayment(to PaymentStatus, now time.Time) error {
	if !CanMovePayment(o.PaymentStatus, to) {
		return &TransitionError{Field: "payment_status", From: string(o.PaymentStatus), To: string(to)}
	}
	o.PaymentStatus = to
	o.UpdatedAt = now
	return nil
}

func (o *Order) MoveStatus(to OrderStatus, now time.Time) error {
	if !CanMoveOrder(o.Status, to) {
		return &TransitionError{Field: "status", From: string(o.Status), To: string(to)}
	}
	o.Status = to
	if to == OrderDelivered {
		t := now
		o.DeliveredAt = &t
	}
	o.UpdatedAt = now
	return nil
}

// CompletePayment is the single success exit: payment completed and, when the
// order has not moved yet, delivery processing starts.
func (o *Order) CompletePayment(now time.Time) error {
	if err := o.MovePayment(PaymentCompleted, now); err != nil {
		return err
	}
	if o.Status == OrderPending {
		o.Status = OrderProcessing
	}
	return nil
}
