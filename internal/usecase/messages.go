package usecase

import (
	"bytes"
	"context"
	"text/template"
	"time"

	"github.com/shopspring/decimal"

	"storefront-backend/internal/domain"
	"storefront-backend/internal/logger"
)

const (
	EventOrderConfirmed = "order_confirmed"
	EventOrderShipped   = "order_shipped"
	EventOrderDelivered = "order_delivered"
	EventPaymentReceipt = "payment_receipt"
	EventOrderCancelled = "order_cancelled"
)

var messageTemplates = template.Must(template.New("messages").Funcs(template.FuncMap{
	"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
}).Parse(`
{{- define "confirmation.subject"}}Order Confirmation - #{{.Order.ID}}{{end}}
{{- define "confirmation.body"}}Hi {{.Order.Buyer.FirstName}},

Thank you for your order #{{.Order.ID}}.
{{range .Order.Items}}
- {{.ProductName}}{{if .VariantInfo}} ({{.VariantInfo}}){{end}} x{{.Quantity}} @ {{money .Price}}
{{- end}}

Subtotal: {{money .Order.Subtotal}}
Shipping: {{money .Order.Shipping}}
Tax: {{money .Order.Tax}}
Total: {{money .Order.Total}}

Payment: {{.Order.PaymentMethod}} ({{.Order.PaymentStatus}})
Ship to: {{.Order.Buyer.Address}}, {{.Order.Buyer.City}} {{.Order.Buyer.PostalCode}}
{{end}}
{{- define "shipped.buyer"}}Your order with transaction ID {{.Ref}} has been shipped. Product: {{.Order.ProductDetails}}, Price: {{money .Order.Total}}{{end}}
{{- define "shipped.owner"}}Order with transaction ID {{.Ref}} has been shipped. Product: {{.Order.ProductDetails}}, Price: {{money .Order.Total}}{{end}}
{{- define "delivered.buyer"}}Your order with transaction ID {{.Ref}} has been delivered. Product: {{.Order.ProductDetails}}, Price: {{money .Order.Total}}{{end}}
{{- define "delivered.owner"}}Order with transaction ID {{.Ref}} has been delivered. Product: {{.Order.ProductDetails}}, Price: {{money .Order.Total}}{{end}}
{{- define "receipt"}}Receipt for Transaction ID: {{.Ref}}
Product Details: {{.Order.ProductDetails}}
Price: {{money .Order.Total}}
Delivered At: {{.DeliveredAt}}
Store: {{.Store}}
Thank you for your purchase!{{end}}
{{- define "cancelled.subject"}}Order #{{.Order.ID}} cancelled{{end}}
{{- define "cancelled.body"}}Hi {{.Order.Buyer.FirstName}},

Your order #{{.Order.ID}} for {{money .Order.Total}} has been cancelled.
{{- if eq .Order.PaymentStatus "completed"}} Your payment will be refunded by the store.{{end}}
{{end}}
`))

type messageData struct {
	Order       *domain.Order
	Ref         string
	Store       string
	DeliveredAt string
}

func render(name string, data messageData) string {
	var buf bytes.Buffer
	if err := messageTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return ""
	}
	return buf.String()
}

// orderMessages builds the messages for one order event. Store owners are
// looked up through the catalog; a missing store only drops its message.
func orderMessages(ctx context.Context, catalog Catalog, o *domain.Order, event string) []domain.Message {
	ref := o.TransactionRef
	if ref == "" {
		ref = o.ID
	}
	data := messageData{Order: o, Ref: ref, DeliveredAt: "-"}
	if o.DeliveredAt != nil {
		data.DeliveredAt = o.DeliveredAt.Format(time.RFC1123)
	}
	owners := storeOwners(ctx, catalog, o)
	for i, st := range owners {
		if i > 0 {
			data.Store += ", "
		}
		data.Store += st.Name
	}

	sms := func(to, tpl string) domain.Message {
		return domain.Message{Channel: domain.ChannelSMS, To: to, Body: render(tpl, data), OrderID: o.ID, Event: event}
	}
	var out []domain.Message
	switch event {
	case EventOrderConfirmed:
		out = append(out, domain.Message{
			Channel: domain.ChannelEmail,
			To:      o.Buyer.Email,
			Subject: render("confirmation.subject", data),
			Body:    render("confirmation.body", data),
			OrderID: o.ID,
			Event:   event,
		})
	case EventOrderCancelled:
		out = append(out, domain.Message{
			Channel: domain.ChannelEmail,
			To:      o.Buyer.Email,
			Subject: render("cancelled.subject", data),
			Body:    render("cancelled.body", data),
			OrderID: o.ID,
			Event:   event,
		})
	case EventOrderShipped:
		out = append(out, sms(o.Buyer.Phone, "shipped.buyer"))
		for _, st := range owners {
			out = append(out, sms(st.OwnerPhone, "shipped.owner"))
		}
	case EventOrderDelivered:
		out = append(out, sms(o.Buyer.Phone, "delivered.buyer"))
		for _, st := range owners {
			out = append(out, sms(st.OwnerPhone, "delivered.owner"))
		}
	case EventPaymentReceipt:
		out = append(out, sms(o.Buyer.Phone, "receipt"))
		for _, st := range owners {
			out = append(out, sms(st.OwnerPhone, "receipt"))
		}
	}
	return out
}

func storeOwners(ctx context.Context, catalog Catalog, o *domain.Order) []*domain.Store {
	if catalog == nil {
		return nil
	}
	seen := map[string]bool{}
	var ids []string
	if o.StoreID != "" {
		ids = append(ids, o.StoreID)
		seen[o.StoreID] = true
	}
	for _, it := range o.Items {
		if it.StoreID != "" && !seen[it.StoreID] {
			seen[it.StoreID] = true
			ids = append(ids, it.StoreID)
		}
	}
	out := make([]*domain.Store, 0, len(ids))
	for _, id := range ids {
		st, err := catalog.GetStore(ctx, id)
		if err != nil {
			logger.Warn(ctx, "store lookup for notification failed", "store_id", id, "order_id", o.ID, "error", err)
			continue
		}
		out = append(out, st)
	}
	return out
}

func notifyOrder(ctx context.Context, n Notifier, catalog Catalog, o *domain.Order, event string) {
	if n == nil {
		return
	}
	msgs := orderMessages(ctx, catalog, o, event)
	if len(msgs) == 0 {
		return
	}
	n.Notify(ctx, msgs...)
}
