package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"storefront-backend/internal/domain"
	"storefront-backend/internal/logger"
)

type CartService struct {
	Carts   CartRepo
	Catalog Catalog
	Now     func() time.Time
}

type CartView struct {
	Cart     *domain.Cart    `json:"cart"`
	Lines    []PricedLine    `json:"lines"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// Resolve returns the one cart bound to id. The returned identity carries the
// session token to hand back to the browser, which is freshly generated for
// anonymous callers that did not present one.
//
// When an authenticated user has no cart but their session does, the session
// cart is claimed as-is. An existing user cart always wins and the session
// cart is left alone.
func (s *CartService) Resolve(ctx context.Context, id domain.Identity) (*domain.Cart, domain.Identity, error) {
	if id.Authenticated() {
		c, err := s.resolveUser(ctx, id)
		return c, id, err
	}
	if strings.TrimSpace(id.SessionID) == "" {
		id.SessionID = newSessionToken()
	}
	c, err := s.Carts.CartBySession(ctx, id.SessionID)
	if err == nil {
		return c, id, nil
	}
	if !errors.Is(err, domain.ErrRecordNotFound) {
		return nil, id, err
	}
	c = s.newCart("", id.SessionID)
	if err := s.Carts.CreateCart(ctx, c); err != nil {
		if errors.Is(err, domain.ErrDuplicateOwner) {
			c, err = s.Carts.CartBySession(ctx, id.SessionID)
			return c, id, err
		}
		return nil, id, err
	}
	return c, id, nil
}

func (s *CartService) resolveUser(ctx context.Context, id domain.Identity) (*domain.Cart, error) {
	c, err := s.Carts.CartByUser(ctx, id.UserID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, domain.ErrRecordNotFound) {
		return nil, err
	}
	if id.SessionID != "" {
		c, err := s.Carts.CartBySession(ctx, id.SessionID)
		switch {
		case err == nil:
			if err := s.Carts.ClaimCart(ctx, c.ID, id.UserID); err != nil {
				if errors.Is(err, domain.ErrDuplicateOwner) {
					return s.Carts.CartByUser(ctx, id.UserID)
				}
				return nil, err
			}
			logger.Info(ctx, "session cart claimed", "cart_id", c.ID, "user_id", id.UserID)
			c.UserID = id.UserID
			c.SessionID = ""
			return c, nil
		case !errors.Is(err, domain.ErrRecordNotFound):
			return nil, err
		}
	}
	c = s.newCart(id.UserID, "")
	if err := s.Carts.CreateCart(ctx, c); err != nil {
		if errors.Is(err, domain.ErrDuplicateOwner) {
			return s.Carts.CartByUser(ctx, id.UserID)
		}
		return nil, err
	}
	return c, nil
}

func (s *CartService) newCart(userID, sessionID string) *domain.Cart {
	now := s.now()
	return &domain.Cart{
		ID:        randomID(),
		UserID:    userID,
		SessionID: sessionID,
		Items:     []domain.CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *CartService) View(ctx context.Context, id domain.Identity) (*CartView, domain.Identity, error) {
	c, id, err := s.Resolve(ctx, id)
	if err != nil {
		return nil, id, err
	}
	v, err := s.view(ctx, c)
	return v, id, err
}

func (s *CartService) view(ctx context.Context, c *domain.Cart) (*CartView, error) {
	lines, sub, err := priceCart(ctx, s.Catalog, c)
	if err != nil {
		return nil, err
	}
	return &CartView{Cart: c, Lines: lines, Subtotal: sub}, nil
}

// AddItem puts qty of a product (and optional variant) in the cart, growing an
// existing line for the same pair instead of adding a duplicate.
func (s *CartService) AddItem(ctx context.Context, id domain.Identity, productID, variantID string, qty int) (*CartView, domain.Identity, error) {
	if qty <= 0 {
		return nil, id, &domain.ValidationError{Fields: map[string]string{"quantity": "must be at least 1"}}
	}
	p, err := s.Catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, id, notFound(err, "product")
	}
	if !p.Available {
		return nil, id, ErrConflict("product is not available")
	}
	if variantID != "" {
		v, err := s.Catalog.GetVariant(ctx, variantID)
		if err != nil {
			return nil, id, notFound(err, "variant")
		}
		if v.ProductID != p.ID {
			return nil, id, ErrBadRequest("variant does not belong to product")
		}
	}
	c, id, err := s.Resolve(ctx, id)
	if err != nil {
		return nil, id, err
	}
	item, ok := c.FindLine(productID, variantID)
	if ok {
		item.Quantity += qty
	} else {
		c.Items = append(c.Items, domain.CartItem{
			ID:        randomID(),
			CartID:    c.ID,
			ProductID: productID,
			VariantID: variantID,
			Quantity:  qty,
			Position:  c.NextPosition(),
			CreatedAt: s.now(),
		})
		item = &c.Items[len(c.Items)-1]
	}
	if err := s.Carts.PutItem(ctx, item); err != nil {
		return nil, id, err
	}
	v, err := s.view(ctx, c)
	return v, id, err
}

// UpdateItem sets the quantity of one line; zero or less removes it.
func (s *CartService) UpdateItem(ctx context.Context, id domain.Identity, itemID string, qty int) (*CartView, domain.Identity, error) {
	if qty <= 0 {
		return s.RemoveItem(ctx, id, itemID)
	}
	c, id, err := s.Resolve(ctx, id)
	if err != nil {
		return nil, id, err
	}
	item, ok := c.FindItem(itemID)
	if !ok {
		return nil, id, ErrNotFound("cart item")
	}
	item.Quantity = qty
	if err := s.Carts.PutItem(ctx, item); err != nil {
		return nil, id, err
	}
	v, err := s.view(ctx, c)
	return v, id, err
}

func (s *CartService) RemoveItem(ctx context.Context, id domain.Identity, itemID string) (*CartView, domain.Identity, error) {
	c, id, err := s.Resolve(ctx, id)
	if err != nil {
		return nil, id, err
	}
	if _, ok := c.FindItem(itemID); !ok {
		return nil, id, ErrNotFound("cart item")
	}
	if err := s.Carts.DeleteItem(ctx, c.ID, itemID); err != nil {
		return nil, id, notFound(err, "cart item")
	}
	kept := c.Items[:0]
	for _, it := range c.Items {
		if it.ID != itemID {
			kept = append(kept, it)
		}
	}
	c.Items = kept
	v, err := s.view(ctx, c)
	return v, id, err
}

func (s *CartService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
