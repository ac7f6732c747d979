package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"invoicely/backend/internal/config"
	"invoicely/backend/internal/connectivity"
	"invoicely/backend/internal/httpapi"
	"invoicely/backend/internal/kv"
	"invoicely/backend/internal/kv/memory"
	pgstore "invoicely/backend/internal/kv/postgres"
	redisstore "invoicely/backend/internal/kv/redis"
	"invoicely/backend/internal/pdf"
	"invoicely/backend/internal/service"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var store kv.Store
	closers := make([]func() error, 0, 2)

	switch {
	case cfg.DatabaseURL != "":
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		store = pg
		closers = append(closers, pg.Close)
		log.Println("store: postgres")
	case cfg.RedisAddr != "":
		rd := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := rd.Ping(ctx); err != nil {
			log.Fatalf("redis unavailable (%v) and REDIS_ADDR is set; refusing to start with in-memory fallback", err)
		}
		store = rd
		closers = append(closers, rd.Close)
		log.Println("store: redis")
	default:
		store = memory.New()
		log.Println("store: in-memory")
	}

	var monitor connectivity.Monitor
	if cfg.ForceOffline {
		monitor = connectivity.NewManual(false)
		log.Println("connectivity: forced offline")
	} else {
		probe := connectivity.NewProbe(store.Ping, time.Duration(cfg.ProbeIntervalSeconds)*time.Second)
		probe.Start(context.Background())
		defer probe.Stop()
		monitor = probe
	}

	invoices := service.NewInvoiceManager(store, monitor)
	clients := service.NewClientRegistry(store)
	settings := service.NewSettingsStore(store)

	if err := invoices.Initialize(ctx); err != nil {
		log.Printf("[main] WARN: initial invoice load failed, continuing in error state: %v", err)
	}
	clients.LoadClients(ctx)
	settings.LoadSettings(ctx)

	userStore := httpapi.NewKVUserStore(store)
	if err := userStore.EnsureAdmin(ctx, cfg.AdminPassword); err != nil {
		log.Printf("[main] WARN: seed admin account: %v", err)
	}
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, userStore)
	api := httpapi.New(invoices, clients, settings, pdf.NewRenderer(), auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("invoicing backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	invoices.Close()
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.AdminPassword) < 8 {
		return fmt.Errorf("ADMIN_PASSWORD must be set and at least 8 characters")
	}
	return nil
}
