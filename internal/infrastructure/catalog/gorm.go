package catalog

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"storefront-backend/internal/domain"
)

// GormCatalog reads stores, products and variants from postgres or mysql.
type GormCatalog struct {
	db *gorm.DB
}

func Open(driver, dsn string, maxOpen, maxIdle int) (*GormCatalog, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown catalog driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("connect catalog db: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		sqlDB.SetMaxIdleConns(maxIdle)
	}
	if err := db.AutoMigrate(&StoreRow{}, &ProductRow{}, &VariantRow{}); err != nil {
		return nil, fmt.Errorf("migrate catalog: %w", err)
	}
	return &GormCatalog{db: db}, nil
}

func (c *GormCatalog) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func first[T any](ctx context.Context, db *gorm.DB, id string) (*T, error) {
	var row T
	err := db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (c *GormCatalog) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	row, err := first[ProductRow](ctx, c.db, id)
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (c *GormCatalog) GetVariant(ctx context.Context, id string) (*domain.ProductVariant, error) {
	row, err := first[VariantRow](ctx, c.db, id)
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (c *GormCatalog) GetStore(ctx context.Context, id string) (*domain.Store, error) {
	row, err := first[StoreRow](ctx, c.db, id)
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// Seed upserts the fixture in one transaction.
func (c *GormCatalog) Seed(ctx context.Context, s Seed) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upsert := tx.Clauses(clause.OnConflict{UpdateAll: true})
		if len(s.Stores) > 0 {
			if err := upsert.Create(&s.Stores).Error; err != nil {
				return fmt.Errorf("seed stores: %w", err)
			}
		}
		if len(s.Products) > 0 {
			if err := upsert.Create(&s.Products).Error; err != nil {
				return fmt.Errorf("seed products: %w", err)
			}
		}
		if len(s.Variants) > 0 {
			if err := upsert.Create(&s.Variants).Error; err != nil {
				return fmt.Errorf("seed variants: %w", err)
			}
		}
		return nil
	})
}
