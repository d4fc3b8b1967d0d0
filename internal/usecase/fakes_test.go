package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"storefront-backend/internal/domain"
)

type fakeRepo struct {
	mu       sync.Mutex
	carts    map[string]*domain.Cart
	orders   map[string]*domain.Order
	attempts map[string]string
	cleared  []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		carts:    map[string]*domain.Cart{},
		orders:   map[string]*domain.Order{},
		attempts: map[string]string{},
	}
}

func copyCart(c *domain.Cart) *domain.Cart {
	cp := *c
	cp.Items = append([]domain.CartItem{}, c.Items...)
	return &cp
}

func copyOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Items = append([]domain.OrderItem{}, o.Items...)
	return &cp
}

func (r *fakeRepo) GetCart(_ context.Context, id string) (*domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.carts[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return copyCart(c), nil
}

func (r *fakeRepo) find(match func(*domain.Cart) bool) (*domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.carts {
		if match(c) {
			return copyCart(c), nil
		}
	}
	return nil, domain.ErrRecordNotFound
}

func (r *fakeRepo) CartByUser(_ context.Context, userID string) (*domain.Cart, error) {
	return r.find(func(c *domain.Cart) bool { return c.UserID == userID })
}

func (r *fakeRepo) CartBySession(_ context.Context, sessionID string) (*domain.Cart, error) {
	return r.find(func(c *domain.Cart) bool { return c.UserID == "" && c.SessionID == sessionID })
}

func (r *fakeRepo) CreateCart(_ context.Context, c *domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.carts {
		if (c.UserID != "" && other.UserID == c.UserID) || (c.SessionID != "" && other.SessionID == c.SessionID) {
			return domain.ErrDuplicateOwner
		}
	}
	r.carts[c.ID] = copyCart(c)
	return nil
}

func (r *fakeRepo) ClaimCart(_ context.Context, cartID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.carts {
		if other.UserID == userID {
			return domain.ErrDuplicateOwner
		}
	}
	c, ok := r.carts[cartID]
	if !ok {
		return domain.ErrRecordNotFound
	}
	c.UserID = userID
	c.SessionID = ""
	return nil
}

func (r *fakeRepo) PutItem(_ context.Context, item *domain.CartItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.carts[item.CartID]
	if !ok {
		return domain.ErrRecordNotFound
	}
	for i := range c.Items {
		if c.Items[i].ID == item.ID {
			c.Items[i] = *item
			return nil
		}
	}
	c.Items = append(c.Items, *item)
	return nil
}

func (r *fakeRepo) DeleteItem(_ context.Context, cartID, itemID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.carts[cartID]
	if !ok {
		return domain.ErrRecordNotFound
	}
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return nil
		}
	}
	return domain.ErrRecordNotFound
}

func (r *fakeRepo) ClearCart(_ context.Context, cartID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.carts[cartID]; ok {
		c.Items = nil
	}
	r.cleared = append(r.cleared, cartID)
	return nil
}

func (r *fakeRepo) CreateOrder(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.orders {
		if other.CartID == o.CartID && other.HoldsCart() {
			return domain.ErrPaymentInFlight
		}
	}
	r.orders[o.ID] = copyOrder(o)
	return nil
}

func (r *fakeRepo) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return copyOrder(o), nil
}

func (r *fakeRepo) ListOrdersByUser(_ context.Context, userID string, page, pageSize int) ([]domain.Order, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Order
	for _, o := range r.orders {
		if o.UserID == userID {
			out = append(out, *copyOrder(o))
		}
	}
	return out, len(out), nil
}

func (r *fakeRepo) UpdateOrder(_ context.Context, o *domain.Order, prev domain.OrderState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.orders[o.ID]
	if !ok {
		return domain.ErrRecordNotFound
	}
	if cur.State() != prev {
		return domain.ErrStaleOrder
	}
	r.orders[o.ID] = copyOrder(o)
	return nil
}

func (r *fakeRepo) RecordAttempt(_ context.Context, orderID, reference string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.attempts[reference]; ok {
		return domain.ErrDuplicateReference
	}
	r.attempts[reference] = orderID
	return nil
}

func (r *fakeRepo) SumStoreTotals(_ context.Context, storeID string) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := decimal.Zero
	for _, o := range r.orders {
		switch o.StoreID {
		case storeID:
			sum = sum.Add(o.Total)
		case "":
			for _, it := range o.Items {
				if it.StoreID == storeID {
					sum = sum.Add(it.Subtotal())
				}
			}
		}
	}
	return sum, nil
}

func (r *fakeRepo) stored(id string) *domain.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orders[id]
}

func (r *fakeRepo) cartItems(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.carts[id].Items)
}

type fakeCatalog struct {
	products map[string]*domain.Product
	variants map[string]*domain.ProductVariant
	stores   map[string]*domain.Store
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		products: map[string]*domain.Product{
			"p1": {ID: "p1", StoreID: "s1", Name: "Chitenge Shirt", Price: decimal.RequireFromString("10.00"), Stock: 10, Available: true},
			"p2": {ID: "p2", StoreID: "s2", Name: "Clay Pot", Price: decimal.RequireFromString("7.50"), Stock: 3, Available: true},
			"p3": {ID: "p3", StoreID: "s1", Name: "Retired Hat", Price: decimal.RequireFromString("4.00"), Available: false},
		},
		variants: map[string]*domain.ProductVariant{
			"v1": {ID: "v1", ProductID: "p1", Color: "red", Size: "M", PriceAdjustment: decimal.RequireFromString("1.50")},
		},
		stores: map[string]*domain.Store{
			"s1": {ID: "s1", Name: "Lusaka Threads", OwnerID: "m1", OwnerPhone: "0977000001", Currency: "ZMW"},
			"s2": {ID: "s2", Name: "Kitwe Crafts", OwnerID: "m2", OwnerPhone: "0977000002"},
		},
	}
}

func (c *fakeCatalog) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	if p, ok := c.products[id]; ok {
		return p, nil
	}
	return nil, domain.ErrRecordNotFound
}

func (c *fakeCatalog) GetVariant(_ context.Context, id string) (*domain.ProductVariant, error) {
	if v, ok := c.variants[id]; ok {
		return v, nil
	}
	return nil, domain.ErrRecordNotFound
}

func (c *fakeCatalog) GetStore(_ context.Context, id string) (*domain.Store, error) {
	if s, ok := c.stores[id]; ok {
		return s, nil
	}
	return nil, domain.ErrRecordNotFound
}

type gatewayCall struct {
	Op  string
	Req domain.ChargeRequest
	OTP string
	Ref string
}

type fakeGateway struct {
	mu     sync.Mutex
	calls  []gatewayCall
	charge func(domain.ChargeRequest) (domain.GatewayResult, error)
	otp    func(otp, ref string) (domain.GatewayResult, error)
	status func(ref string) (domain.GatewayResult, error)
}

func raw(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func gatewayReply(status domain.GatewayStatus, ref string) domain.GatewayResult {
	return domain.GatewayResult{
		Status:            status,
		Reference:         ref,
		ProviderReference: "LNC-" + ref,
		Raw:               raw(map[string]any{"status": true, "data": map[string]any{"status": string(status), "reference": ref}}),
	}
}

func (g *fakeGateway) Charge(_ context.Context, req domain.ChargeRequest) (domain.GatewayResult, error) {
	g.mu.Lock()
	g.calls = append(g.calls, gatewayCall{Op: "charge", Req: req})
	g.mu.Unlock()
	if g.charge == nil {
		return gatewayReply(domain.GatewaySuccessful, req.Reference), nil
	}
	return g.charge(req)
}

func (g *fakeGateway) SubmitOTP(_ context.Context, otp, ref string) (domain.GatewayResult, error) {
	g.mu.Lock()
	g.calls = append(g.calls, gatewayCall{Op: "otp", OTP: otp, Ref: ref})
	g.mu.Unlock()
	if g.otp == nil {
		return gatewayReply(domain.GatewaySuccessful, ref), nil
	}
	return g.otp(otp, ref)
}

func (g *fakeGateway) CollectionStatus(_ context.Context, ref string) (domain.GatewayResult, error) {
	g.mu.Lock()
	g.calls = append(g.calls, gatewayCall{Op: "status", Ref: ref})
	g.mu.Unlock()
	if g.status == nil {
		return gatewayReply(domain.GatewayPending, ref), nil
	}
	return g.status(ref)
}

func (g *fakeGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []domain.Message
}

func (n *fakeNotifier) Notify(_ context.Context, msgs ...domain.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msgs...)
}

func (n *fakeNotifier) events(event string) []domain.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []domain.Message
	for _, m := range n.msgs {
		if m.Event == event {
			out = append(out, m)
		}
	}
	return out
}

type fakeIdempotency struct {
	mu   sync.Mutex
	keys map[string]string
}

func (f *fakeIdempotency) Reserve(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys == nil {
		f.keys = map[string]string{}
	}
	if id, ok := f.keys[key]; ok {
		return id, false, nil
	}
	f.keys[key] = ""
	return "", true, nil
}

func (f *fakeIdempotency) Bind(_ context.Context, key, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[key] = orderID
	return nil
}

func (f *fakeIdempotency) Release(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.keys, key)
	return nil
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

type fixture struct {
	repo     *fakeRepo
	catalog  *fakeCatalog
	gateway  *fakeGateway
	notifier *fakeNotifier
	carts    *CartService
	checkout *CheckoutService
	orders   *OrderService
}

func newFixture() *fixture {
	f := &fixture{
		repo:     newFakeRepo(),
		catalog:  newFakeCatalog(),
		gateway:  &fakeGateway{},
		notifier: &fakeNotifier{},
	}
	f.carts = &CartService{Carts: f.repo, Catalog: f.catalog, Now: clock}
	f.checkout = &CheckoutService{
		Carts:    f.repo,
		Orders:   f.repo,
		Catalog:  f.catalog,
		Builder:  &OrderBuilder{Orders: f.repo, Catalog: f.catalog, Pricing: domain.DefaultPricing(), Now: clock},
		Gateway:  f.gateway,
		Notifier: f.notifier,
		Currency: "ZMW",
		Now:      clock,
	}
	f.orders = &OrderService{Orders: f.repo, Catalog: f.catalog, Notifier: f.notifier, Now: clock}
	return f
}

func validBuyer() domain.BuyerInfo {
	return domain.BuyerInfo{
		FirstName:  "Mwila",
		LastName:   "Banda",
		Email:      "mwila@example.com",
		Address:    "12 Cairo Road",
		City:       "Lusaka",
		PostalCode: "10101",
		Phone:      "0977123456",
	}
}

func mobileMoney() domain.PaymentChoice {
	return domain.PaymentChoice{Method: domain.MethodMobileMoney, Operator: domain.OperatorMTN}
}

func cashOnDelivery() domain.PaymentChoice {
	return domain.PaymentChoice{Method: domain.MethodCash}
}
