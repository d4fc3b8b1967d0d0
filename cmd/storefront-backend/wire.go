package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"storefront-backend/internal/config"
	"storefront-backend/internal/domain"
	"storefront-backend/internal/idempotency"
	"storefront-backend/internal/infrastructure/catalog"
	"storefront-backend/internal/infrastructure/lenco"
	"storefront-backend/internal/infrastructure/repo"
	"storefront-backend/internal/logger"
	"storefront-backend/internal/metrics"
	"storefront-backend/internal/notify"
	"storefront-backend/internal/server"
	"storefront-backend/internal/usecase"
)

const devSecret = "storefront-dev-secret"

type app struct {
	deps       server.Deps
	dispatcher *notify.Dispatcher
	closers    []func()
}

func (a *app) onClose(f func()) { a.closers = append(a.closers, f) }

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func secret(cfg config.Config) string {
	if cfg.JWTSecret == "" {
		return devSecret
	}
	return cfg.JWTSecret
}

type orderStore interface {
	usecase.CartRepo
	usecase.OrderRepo
}

type catalogStore interface {
	usecase.Catalog
	Seed(ctx context.Context, s catalog.Seed) error
}

func build(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{}
	ready := false
	defer func() {
		if !ready {
			a.close()
		}
	}()
	m := metrics.New()

	store, err := openStore(ctx, cfg, a)
	if err != nil {
		return nil, err
	}
	cat, err := openCatalog(ctx, cfg, a)
	if err != nil {
		return nil, err
	}
	keys, err := openIdempotency(ctx, cfg, a)
	if err != nil {
		return nil, err
	}
	if a.dispatcher, err = openNotifier(ctx, cfg, a, m); err != nil {
		return nil, err
	}

	shipping, taxRate, err := cfg.PricingRules()
	if err != nil {
		return nil, err
	}
	gateway := &lenco.Client{
		BaseURL:  cfg.Lenco.BaseURL,
		APIKey:   cfg.Lenco.APIKey,
		DialCode: cfg.Lenco.DialCode,
		Timeout:  cfg.Lenco.Timeout,
		HTTP:     &http.Client{Timeout: cfg.Lenco.Timeout},
		Observer: m,
	}

	a.deps = server.Deps{
		Carts: &usecase.CartService{Carts: store, Catalog: cat},
		Checkout: &usecase.CheckoutService{
			Carts:   store,
			Orders:  store,
			Catalog: cat,
			Builder: &usecase.OrderBuilder{
				Orders:  store,
				Catalog: cat,
				Pricing: domain.Pricing{Shipping: shipping, TaxRate: taxRate},
			},
			Gateway:     gateway,
			Notifier:    a.dispatcher,
			Idempotency: keys,
			Metrics:     m,
			Currency:    cfg.Lenco.Currency,
		},
		Orders:  &usecase.OrderService{Orders: store, Catalog: cat, Notifier: a.dispatcher},
		Auth:    &usecase.AuthService{JWTSecret: secret(cfg)},
		Metrics: m,
	}
	ready = true
	return a, nil
}

func openStore(ctx context.Context, cfg config.Config, a *app) (orderStore, error) {
	if cfg.Store.Driver != "postgres" {
		return repo.NewMemoryStore(), nil
	}
	pg, err := repo.NewPostgresStore(cfg.Store.DSN)
	if err != nil {
		return nil, err
	}
	a.onClose(func() { _ = pg.Close() })
	logger.Info(ctx, "order store ready", "driver", "postgres")
	return pg, nil
}

func openCatalog(ctx context.Context, cfg config.Config, a *app) (usecase.Catalog, error) {
	var cat catalogStore
	switch cfg.Catalog.Driver {
	case "postgres", "mysql":
		g, err := catalog.Open(cfg.Catalog.Driver, cfg.Catalog.DSN, cfg.Catalog.MaxOpen, cfg.Catalog.MaxIdle)
		if err != nil {
			return nil, err
		}
		a.onClose(func() { _ = g.Close() })
		cat = g
	default:
		cat = catalog.NewMemory()
	}
	if cfg.Catalog.SeedFile != "" {
		seed, err := catalog.LoadSeed(cfg.Catalog.SeedFile)
		if err != nil {
			return nil, err
		}
		if err := cat.Seed(ctx, seed); err != nil {
			return nil, fmt.Errorf("seed catalog: %w", err)
		}
		logger.Info(ctx, "catalog seeded", "stores", len(seed.Stores), "products", len(seed.Products), "variants", len(seed.Variants))
	}
	return cat, nil
}

func openIdempotency(ctx context.Context, cfg config.Config, a *app) (usecase.IdempotencyStore, error) {
	if cfg.Idempotency.Driver != "redis" {
		return idempotency.NewStore(cfg.Idempotency.TTL), nil
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.Idempotency.RedisAddr},
		Password: cfg.Idempotency.RedisPassword,
		DB:       cfg.Idempotency.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	a.onClose(func() { _ = client.Close() })
	return idempotency.NewRedisStore(client, cfg.Idempotency.TTL), nil
}

func openNotifier(ctx context.Context, cfg config.Config, a *app, m *metrics.Metrics) (*notify.Dispatcher, error) {
	d := &notify.Dispatcher{Metrics: m, Timeout: cfg.Notify.Timeout}
	var kafkaSender *notify.KafkaSender
	useKafka := func() notify.Sender {
		if kafkaSender == nil {
			kafkaSender = notify.NewKafkaSender(cfg.Notify.KafkaBrokers, cfg.Notify.KafkaTopic)
			a.onClose(func() { _ = kafkaSender.Close() })
		}
		return kafkaSender
	}

	switch cfg.Notify.Email {
	case "smtp":
		s := cfg.Notify.SMTP
		d.Email = notify.NewSMTPSender(s.Host, s.Port, s.Username, s.Password, s.From)
	case "kafka":
		d.Email = useKafka()
	case "log":
		d.Email = notify.LogSender{}
	}
	switch cfg.Notify.SMS {
	case "webhook":
		d.SMS = notify.NewWebhookSender(cfg.Notify.Webhook.URL, cfg.Notify.Webhook.Token)
	case "kafka":
		d.SMS = useKafka()
	case "log":
		d.SMS = notify.LogSender{}
	}
	if cfg.Notify.Audit == "mongo" {
		audit, err := notify.ConnectMongoAudit(ctx, cfg.Notify.MongoURI, cfg.Notify.MongoDB)
		if err != nil {
			return nil, err
		}
		a.onClose(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = audit.Close(ctx)
		})
		d.Audit = audit
	}
	logger.Info(ctx, "notifications ready", "email", cfg.Notify.Email, "sms", cfg.Notify.SMS, "audit", cfg.Notify.Audit)
	return d, nil
}
