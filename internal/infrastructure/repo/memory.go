package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"storefront-backend/internal/domain"
)

// MemoryStore keeps carts, orders and payment attempts behind one lock so
// that order creation and the in-flight check are a single step, like the
// postgres transaction.
type MemoryStore struct {
	mu       sync.RWMutex
	carts    map[string]*domain.Cart
	orders   map[string]*domain.Order
	attempts map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		carts:    make(map[string]*domain.Cart),
		orders:   make(map[string]*domain.Order),
		attempts: make(map[string]string),
	}
}

func cloneCart(c *domain.Cart) *domain.Cart {
	cp := *c
	cp.Items = append(make([]domain.CartItem, 0, len(c.Items)), c.Items...)
	sort.SliceStable(cp.Items, func(i, j int) bool { return cp.Items[i].Position < cp.Items[j].Position })
	return &cp
}

func cloneOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Items = append(make([]domain.OrderItem, 0, len(o.Items)), o.Items...)
	if o.DeliveredAt != nil {
		t := *o.DeliveredAt
		cp.DeliveredAt = &t
	}
	return &cp
}

func (r *MemoryStore) GetCart(_ context.Context, id string) (*domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.carts[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return cloneCart(c), nil
}

func (r *MemoryStore) CartByUser(_ context.Context, userID string) (*domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c := r.cartByUser(userID); c != nil {
		return cloneCart(c), nil
	}
	return nil, domain.ErrRecordNotFound
}

func (r *MemoryStore) CartBySession(_ context.Context, sessionID string) (*domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c := r.cartBySession(sessionID); c != nil {
		return cloneCart(c), nil
	}
	return nil, domain.ErrRecordNotFound
}

func (r *MemoryStore) cartByUser(userID string) *domain.Cart {
	if userID == "" {
		return nil
	}
	for _, c := range r.carts {
		if c.UserID == userID {
			return c
		}
	}
	return nil
}

func (r *MemoryStore) cartBySession(sessionID string) *domain.Cart {
	if sessionID == "" {
		return nil
	}
	for _, c := range r.carts {
		if c.SessionID == sessionID {
			return c
		}
	}
	return nil
}

func (r *MemoryStore) CreateCart(_ context.Context, c *domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cartByUser(c.UserID) != nil || r.cartBySession(c.SessionID) != nil {
		return domain.ErrDuplicateOwner
	}
	r.carts[c.ID] = cloneCart(c)
	return nil
}

func (r *MemoryStore) ClaimCart(_ context.Context, cartID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.carts[cartID]
	if !ok {
		return domain.ErrRecordNotFound
	}
	if other := r.cartByUser(userID); other != nil && other.ID != cartID {
		return domain.ErrDuplicateOwner
	}
	c.UserID = userID
	c.SessionID = ""
	return nil
}

func (r *MemoryStore) PutItem(_ context.Context, item *domain.CartItem) error {
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

func (r *MemoryStore) DeleteItem(_ context.Context, cartID, itemID string) error {
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

func (r *MemoryStore) ClearCart(_ context.Context, cartID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.carts[cartID]
	if !ok {
		return domain.ErrRecordNotFound
	}
	c.Items = nil
	return nil
}

func (r *MemoryStore) CreateOrder(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o.CartID != "" {
		for _, other := range r.orders {
			if other.CartID == o.CartID && other.HoldsCart() {
				return domain.ErrPaymentInFlight
			}
		}
	}
	r.orders[o.ID] = cloneOrder(o)
	return nil
}

func (r *MemoryStore) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return cloneOrder(o), nil
}

func (r *MemoryStore) ListOrdersByUser(_ context.Context, userID string, page, pageSize int) ([]domain.Order, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]domain.Order, 0)
	for _, o := range r.orders {
		if o.UserID == userID {
			all = append(all, *cloneOrder(o))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (r *MemoryStore) UpdateOrder(_ context.Context, o *domain.Order, prev domain.OrderState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.orders[o.ID]
	if !ok {
		return domain.ErrRecordNotFound
	}
	if cur.State() != prev {
		return domain.ErrStaleOrder
	}
	r.orders[o.ID] = cloneOrder(o)
	return nil
}

func (r *MemoryStore) RecordAttempt(_ context.Context, orderID, reference string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.attempts[reference]; ok {
		return domain.ErrDuplicateReference
	}
	r.attempts[reference] = orderID
	return nil
}

func (r *MemoryStore) SumStoreTotals(_ context.Context, storeID string) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
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
