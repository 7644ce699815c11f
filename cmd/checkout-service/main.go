package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/ndlong/eshop-checkout/internal/checkout"
	"github.com/ndlong/eshop-checkout/internal/checkout/adapters/sqlite"
	auditsqlite "github.com/ndlong/eshop-checkout/internal/checkout/auditlog/sqlite"
	"github.com/ndlong/eshop-checkout/internal/gateway"
	"github.com/ndlong/eshop-checkout/internal/httpx"
	"github.com/ndlong/eshop-checkout/internal/pkg/cache"
	"github.com/ndlong/eshop-checkout/internal/pkg/events"
	"github.com/ndlong/eshop-checkout/internal/pkg/metrics"
	"github.com/ndlong/eshop-checkout/internal/pkg/telemetry"
)

func main() {
	telemetry.InitLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.SetupTracer(ctx, getEnv("OTEL_SERVICE_NAME", "checkout-service"))
	if err != nil {
		slog.Warn("tracer not initialised, continuing without traces", "error", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				slog.Error("tracer shutdown error", "error", err)
			}
		}()
	}

	dbPath := getEnv("CHECKOUT_DB_PATH", "./data/checkout.db")
	auditDBPath := getEnv("CHECKOUT_AUDIT_DB_PATH", "./data/checkout_audit.db")
	for _, p := range []string{dbPath, auditDBPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			slog.Error("failed to create data directory", "path", p, "error", err)
			os.Exit(1)
		}
	}

	store, err := sqlite.Open(dbPath)
	if err != nil {
		slog.Error("failed to open checkout store", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	auditRepo, err := auditsqlite.Open(auditDBPath)
	if err != nil {
		slog.Error("failed to open audit store", "path", auditDBPath, "error", err)
		os.Exit(1)
	}
	defer auditRepo.Close()

	publisher := events.NewPublisher(
		getEnv("KAFKA_BROKERS", ""),
		getEnv("KAFKA_ORDER_TOPIC", "orders.paid"),
	)
	defer publisher.Close()
	if publisher.Enabled() {
		slog.Info("order event publishing enabled", "topic", getEnv("KAFKA_ORDER_TOPIC", "orders.paid"))
	}

	checkoutMetrics := metrics.NewCheckoutMetrics()

	orchestrator := checkout.New(store, store, store, store, auditRepo, publisher, checkoutMetrics)

	cod := gateway.NewCOD(orchestrator)
	vnpay := gateway.NewVNPay(gateway.VNPayConfig{
		TmnCode:          getEnv("VNPAY_TMN_CODE", ""),
		HashSecret:       getEnv("VNPAY_HASH_SECRET", ""),
		PayURL:           getEnv("VNPAY_URL", "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"),
		ReturnURL:        getEnv("VNPAY_RETURN_URL", "http://localhost:8080/orders/payment-return"),
		AmountMultiplier: getEnvInt64("VNPAY_AMOUNT_MULTIPLIER", 100),
	}, orchestrator)

	var orderCache cache.Cache
	if redisAddr := getEnv("REDIS_ADDR", ""); redisAddr != "" {
		orderCache = cache.NewRedisCache(redisAddr, "checkout")
	}

	handler := httpx.NewHandler(orchestrator, cod, vnpay, orderCache, auditRepo)
	router := httpx.NewRouter(handler)

	addr := getEnv("HTTP_ADDR", ":8080")
	server := &http.Server{Addr: addr, Handler: router}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown error", "error", err)
		}
	}()

	slog.Info("checkout service running", "addr", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server failed", "error", err)
		os.Exit(1)
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		slog.Warn("invalid integer env value, using fallback", "key", key, "value", value)
		return fallback
	}
	return n
}
