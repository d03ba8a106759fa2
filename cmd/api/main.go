package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nvila/courtbook/internal/app"
	"github.com/nvila/courtbook/internal/clock"
	"github.com/nvila/courtbook/internal/config"
	"github.com/nvila/courtbook/internal/gateway"
	"github.com/nvila/courtbook/internal/notify"
	"github.com/nvila/courtbook/internal/storage/postgres"
	"github.com/nvila/courtbook/internal/storage/redisstore"
	transporthttp "github.com/nvila/courtbook/internal/transport/http"
	"github.com/nvila/courtbook/migrations"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := log.Default()
	cfg := config.Load()

	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect to db: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		log.Fatalf("db ping: %v", err)
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}

	var velocity app.VelocityStore
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(startupCtx).Err(); err != nil {
			logger.Printf("WARN: redis unreachable, velocity checks disabled: %v", err)
		} else {
			velocity = redisstore.NewVelocityStore(rdb)
			defer rdb.Close()
		}
	}

	var events app.EventPublisher = notify.Nop{}
	if cfg.AMQPURL != "" {
		pub := notify.NewAMQPPublisher(cfg.AMQPURL)
		defer pub.Close()
		events = pub
	}

	clk := clock.NewSystem()
	validator := app.NewValidator(app.ValidationRules{
		MinAdvance:  cfg.MinAdvance,
		MaxAdvance:  cfg.MaxAdvance,
		MinDuration: cfg.MinDuration,
		MaxDuration: cfg.MaxDuration,
		MaxParty:    cfg.MaxParty,
		MaxAmount:   cfg.MaxAmount,
	})

	bookingRepo := postgres.NewBookingRepository(pool, postgres.WithLockTimeout(cfg.LockTimeout))
	availability := app.NewAvailabilityChecker(bookingRepo)
	bookingSvc := app.NewBookingService(bookingRepo, availability, validator, clk,
		app.WithBookingEvents(events),
		app.WithLockRetry(cfg.LockRetries, 200*time.Millisecond),
	)

	fraud := app.NewFraudDetector(velocity, app.FraudConfig{
		SuspiciousAmount: cfg.SuspiciousAmount,
		VelocityLimit:    cfg.VelocityLimit,
		DailyLimit:       cfg.DailyLimit,
	})

	paymentRepo := postgres.NewPaymentRepository(pool)
	paymentSvc := app.NewPaymentService(paymentRepo, fraud, validator, clk,
		app.PaymentConfig{
			IdempotencyWindow:   cfg.IdempotencyWindow,
			SafetyMargin:        cfg.SafetyMargin,
			FraudBlockThreshold: cfg.FraudBlockThreshold,
		},
		app.WithGateway(gateway.NewDirect()),
		app.WithPaymentEvents(events),
		app.WithReservationMarker(bookingSvc),
	)

	reconcileRepo := postgres.NewReconcileRepository(pool)
	reconcileSvc := app.NewReconcileService(reconcileRepo, clk, cfg.MaxAmount)

	resourceRepo := postgres.NewResourceRepository(pool)
	resourceSvc := app.NewResourceService(resourceRepo, clk)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", transporthttp.HealthHandler)
	mux.Handle("/bookings", transporthttp.HandleCreateBooking(bookingSvc))
	mux.Handle("/bookings/", transporthttp.HandleBookingAction(bookingSvc))
	mux.Handle("/payments", transporthttp.HandleExecutePayment(paymentSvc))
	mux.Handle("/payments/gateway/confirm", transporthttp.HandleGatewayConfirmation(paymentSvc))
	mux.Handle("/payments/", transporthttp.HandleRefundPayment(paymentSvc))
	mux.Handle("/reconciliation", transporthttp.HandleReconcile(reconcileSvc))
	mux.Handle("/admin/resources", transporthttp.HandleResources(resourceSvc))
	mux.Handle("/admin/blocked-slots", transporthttp.HandleBlockSlot(resourceSvc))
	mux.Handle("/", transporthttp.NotFoundHandler())

	corsOrigins := parseCSV(cfg.CORSOrigins)
	handler := transporthttp.RequestLogger(
		transporthttp.CORS(corsOrigins, transporthttp.JWTAuth(cfg.JWTSecret, mux)),
		logger,
	)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	log.Printf("api listening on :%s", cfg.Port)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server error: %v", err)
		}
	case <-stopCtx.Done():
		log.Printf("shutdown signal received, stopping server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("server shutdown error: %v", err)
	}
	log.Printf("server stopped")
}

func parseCSV(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
