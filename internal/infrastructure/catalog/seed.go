package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"storefront-backend/internal/domain"
)

type StoreRow struct {
	ID         string    `gorm:"primaryKey;size:64" json:"id"`
	Name       string    `gorm:"size:255;not null" json:"name"`
	Slug       string    `gorm:"size:255;index" json:"slug"`
	OwnerID    string    `gorm:"size:64;index" json:"ownerId"`
	OwnerName  string    `gorm:"size:255" json:"ownerName"`
	OwnerPhone string    `gorm:"size:32" json:"ownerPhone"`
	OwnerEmail string    `gorm:"size:255" json:"ownerEmail"`
	Currency   string    `gorm:"size:8" json:"currency"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (StoreRow) TableName() string { return "stores" }

type ProductRow struct {
	ID         string          `gorm:"primaryKey;size:64" json:"id"`
	StoreID    string          `gorm:"size:64;index;not null" json:"storeId"`
	CategoryID string          `gorm:"size:64" json:"categoryId"`
	Name       string          `gorm:"size:255;not null" json:"name"`
	Slug       string          `gorm:"size:255" json:"slug"`
	Price      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Stock      int             `json:"stock"`
	Available  bool            `json:"available"`
}

func (ProductRow) TableName() string { return "products" }

type VariantRow struct {
	ID              string          `gorm:"primaryKey;size:64" json:"id"`
	ProductID       string          `gorm:"size:64;index;not null" json:"productId"`
	Color           string          `gorm:"size:64" json:"color"`
	Size            string          `gorm:"size:64" json:"size"`
	PriceAdjustment decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"priceAdjustment"`
	Stock           int             `json:"stock"`
}

func (VariantRow) TableName() string { return "product_variants" }

func (r StoreRow) toDomain() *domain.Store {
	return &domain.Store{
		ID:         r.ID,
		Name:       r.Name,
		Slug:       r.Slug,
		OwnerID:    r.OwnerID,
		OwnerName:  r.OwnerName,
		OwnerPhone: r.OwnerPhone,
		OwnerEmail: r.OwnerEmail,
		Currency:   r.Currency,
		CreatedAt:  r.CreatedAt,
	}
}

func (r ProductRow) toDomain() *domain.Product {
	return &domain.Product{
		ID:         r.ID,
		StoreID:    r.StoreID,
		CategoryID: r.CategoryID,
		Name:       r.Name,
		Slug:       r.Slug,
		Price:      r.Price,
		Stock:      r.Stock,
		Available:  r.Available,
	}
}

func (r VariantRow) toDomain() *domain.ProductVariant {
	return &domain.ProductVariant{
		ID:              r.ID,
		ProductID:       r.ProductID,
		Color:           r.Color,
		Size:            r.Size,
		PriceAdjustment: r.PriceAdjustment,
		Stock:           r.Stock,
	}
}

// Seed is the catalog fixture format read by LoadSeed.
type Seed struct {
	Stores   []StoreRow   `json:"stores"`
	Products []ProductRow `json:"products"`
	Variants []VariantRow `json:"variants"`
}

func LoadSeed(path string) (Seed, error) {
	var s Seed
	b, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("parse seed %s: %w", path, err)
	}
	products := make(map[string]bool, len(s.Products))
	for _, p := range s.Products {
		products[p.ID] = true
	}
	for _, v := range s.Variants {
		if !products[v.ProductID] {
			return s, fmt.Errorf("seed %s: variant %s references unknown product %s", path, v.ID, v.ProductID)
		}
	}
	return s, nil
}
