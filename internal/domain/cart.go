package domain

import "time"

// Identity is who is asking for a cart. UserID wins when both are set.
type Identity struct {
	UserID    string
	SessionID string
}

func (i Identity) Authenticated() bool { return i.UserID != "" }

type CartItem struct {
	ID        string    `json:"id"`
	CartID    string    `json:"cartId"`
	ProductID string    `json:"productId"`
	VariantID string    `json:"variantId,omitempty"`
	Quantity  int       `json:"quantity"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"createdAt"`
}

type Cart struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId,omitempty"`
	SessionID string     `json:"-"`
	Items     []CartItem `json:"items"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (c *Cart) Empty() bool { return len(c.Items) == 0 }

func (c *Cart) FindItem(id string) (*CartItem, bool) {
	for i := range c.Items {
		if c.Items[i].ID == id {
			return &c.Items[i], true
		}
	}
	return nil, false
}

// FindLine returns the item already holding the product/variant pair.
func (c *Cart) FindLine(productID, variantID string) (*CartItem, bool) {
	for i := range c.Items {
		if c.Items[i].ProductID == productID && c.Items[i].VariantID == variantID {
			return &c.Items[i], true
		}
	}
	return nil, false
}

func (c *Cart) NextPosition() int {
	n := 0
	for _, it := range c.Items {
		if it.Position >= n {
			n = it.Position + 1
		}
	}
	return n
}
