package notify

import (
	"context"
	"sync"
	"time"

	"storefront-backend/internal/domain"
	"storefront-backend/internal/logger"
)

type Sender interface {
	Name() string
	Send(ctx context.Context, msg domain.Message) error
}

// Auditor records every delivery attempt, successful or not.
type Auditor interface {
	Record(ctx context.Context, d domain.Delivery) error
}

type Observer interface {
	ObserveNotification(channel, result string)
}

// Dispatcher sends each message on its own goroutine. Failures are logged
// and counted, never returned.
type Dispatcher struct {
	Email   Sender
	SMS     Sender
	Audit   Auditor
	Metrics Observer
	Timeout time.Duration

	wg sync.WaitGroup
}

func (d *Dispatcher) Notify(ctx context.Context, msgs ...domain.Message) {
	base := context.WithoutCancel(ctx)
	for _, m := range msgs {
		d.wg.Add(1)
		go func(m domain.Message) {
			defer d.wg.Done()
			d.deliver(base, m)
		}(m)
	}
}

// Wait blocks until every dispatched message has been handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, m domain.Message) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "notification panic", "event", m.Event, "order_id", m.OrderID, "panic", r)
		}
	}()
	s := d.senderFor(m.Channel)
	if s == nil {
		logger.Warn(ctx, "no sender for channel", "channel", m.Channel, "event", m.Event)
		d.observe(m.Channel, "skipped")
		return
	}
	if m.To == "" {
		logger.Warn(ctx, "notification without recipient", "channel", m.Channel, "event", m.Event, "order_id", m.OrderID)
		d.observe(m.Channel, "skipped")
		return
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := s.Send(sctx, m)
	took := time.Since(start)

	rec := domain.Delivery{Message: m, Sender: s.Name(), SentAt: start.UTC(), Duration: took.String()}
	if err != nil {
		rec.Error = err.Error()
		logger.Error(ctx, "notification failed", "channel", m.Channel, "sender", s.Name(), "event", m.Event, "order_id", m.OrderID, "error", err)
		d.observe(m.Channel, "error")
	} else {
		logger.Info(ctx, "notification sent", "channel", m.Channel, "sender", s.Name(), "event", m.Event, "order_id", m.OrderID, "duration", took)
		d.observe(m.Channel, "ok")
	}
	if d.Audit != nil {
		actx, acancel := context.WithTimeout(ctx, timeout)
		defer acancel()
		if err := d.Audit.Record(actx, rec); err != nil {
			logger.Warn(ctx, "notification audit failed", "order_id", m.OrderID, "error", err)
		}
	}
}

func (d *Dispatcher) senderFor(c domain.Channel) Sender {
	switch c {
	case domain.ChannelEmail:
		return d.Email
	case domain.ChannelSMS:
		return d.SMS
	}
	return nil
}

func (d *Dispatcher) observe(c domain.Channel, result string) {
	if d.Metrics != nil {
		d.Metrics.ObserveNotification(string(c), result)
	}
}
