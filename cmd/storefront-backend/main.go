package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"storefront-backend/internal/config"
	"storefront-backend/internal/domain"
	"storefront-backend/internal/env"
	"storefront-backend/internal/logger"
	"storefront-backend/internal/server"
	"storefront-backend/internal/usecase"
)

func main() {
	env.Load(".env", ".env.local")
	envDefaults := config.EnvDefaults()

	cfgPath := flag.String("config", "", "optional TOML/YAML/JSON config file")
	envName := flag.String("env", envDefaults.Env, "")
	port := flag.Int("port", envDefaults.Port, "")
	issue := flag.String("issue-token", "", "print a bearer token for user[:role] and exit")

	flag.Parse()

	cfg := envDefaults
	if *cfgPath != "" {
		c, err := config.Load(*cfgPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		cfg = c
	}
	setFlags := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	if setFlags["env"] || *cfgPath == "" {
		cfg.Env = *envName
	}
	if setFlags["port"] || *cfgPath == "" {
		cfg.Port = *port
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid config:", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Log); err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}

	if *issue != "" {
		if err := issueToken(cfg, *issue); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg); err != nil {
		logger.Error(context.Background(), "server stopped", "error", err)
		os.Exit(1)
	}
}

func issueToken(cfg config.Config, subject string) error {
	user, role, _ := strings.Cut(subject, ":")
	tok, err := (&usecase.AuthService{JWTSecret: secret(cfg)}).Issue(user, domain.Role(role))
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           server.New(cfg, app.deps).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info(ctx, "listening", "addr", srv.Addr, "env", cfg.Env)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	app.dispatcher.Wait()
	return nil
}
