package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ms-booking/internal/analytics"
	analytics_api "ms-booking/internal/analytics/api"
	"ms-booking/internal/auth"
	"ms-booking/internal/booking"
	"ms-booking/internal/booking/booking_api"
	bookingdb "ms-booking/internal/booking/db"
	bookingredis "ms-booking/internal/booking/redis"
	"ms-booking/internal/config"
	"ms-booking/internal/database"
	"ms-booking/internal/database/migrations"
	eventsdb "ms-booking/internal/events/db"
	"ms-booking/internal/inventory"
	inventorydb "ms-booking/internal/inventory/db"
	inventoryredis "ms-booking/internal/inventory/redis"
	"ms-booking/internal/kafka"
	"ms-booking/internal/logger"
	"ms-booking/internal/payment"
	"ms-booking/internal/sse"
	"ms-booking/internal/tickets/qr"
	"ms-booking/internal/tickets/ticket_api"
	"ms-booking/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
)

func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("REDIS", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("REDIS", fmt.Sprintf("✅ Redis connection successful to %s (DB: %d)", cfg.Addr, cfg.DB))
	return client
}

func newLedger(ctx context.Context, cfg *config.Config, db *bun.DB, rdb *redis.Client, catalog *eventsdb.Catalog, log *logger.Logger) inventory.Ledger {
	if strings.EqualFold(cfg.Booking.InventoryBackend, "redis") {
		ledger := inventoryredis.NewLedger(rdb, catalog, log)
		n, err := ledger.Prime(ctx)
		if err != nil {
			log.Fatal("INVENTORY", fmt.Sprintf("Failed to prime Redis inventory: %v", err))
		}
		log.Info("INVENTORY", fmt.Sprintf("Redis inventory primed with %d ticket classes", n))
		return ledger
	}
	log.Info("INVENTORY", "Using Postgres inventory ledger")
	return inventorydb.NewLedger(db, catalog)
}

// requestLogger logs every request through the logger's API helper.
func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.LogAPI(r.Method, r.URL.Path, ww.Status(), time.Since(start))
		})
	}
}

func healthHandler(db *bun.DB, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := map[string]string{"database": "ok", "redis": "ok"}
		status := http.StatusOK
		if err := db.PingContext(ctx); err != nil {
			checks["database"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		_ = utils.WriteJSON(w, status, checks)
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println(".env file not found, using environment variables")
	}
	cfg := config.Load()

	log := logger.NewLogger("booking-service")
	defer log.Close()
	log.Info("APP", "Starting Booking Service initialization")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Database.AutoMigrate && !strings.HasPrefix(cfg.Database.DSN, "file:") {
		runner := migrations.NewRunner(cfg.Database.DSN, log)
		if err := runner.Up(); err != nil {
			log.Fatal("MIGRATE", fmt.Sprintf("Migrations failed: %v", err))
		}
		runner.Close()
	}

	db, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer db.Close()

	rdb := connectRedis(ctx, cfg.Redis, log)
	defer rdb.Close()

	catalog := eventsdb.NewCatalog(db)
	ledger := newLedger(ctx, cfg, db, rdb, catalog, log)
	store := bookingdb.NewStore(db, catalog, cfg.Payment.Currency)
	gateway := payment.NewGateway(cfg.Payment, log)
	issuer := qr.NewIssuer(cfg.Tickets.SigningSecret, cfg.Tickets.TokenTTL, cfg.Payment.PublicBaseURL)
	holds := bookingredis.NewHolds(rdb, log)
	feed := sse.NewBookingFeed()
	recorder := analytics.NewRecorder(db, log)

	publishers := []booking.EventPublisher{feed}
	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topics.All(), log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		missing, err := kafka.VerifyTopics(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topics.All())
		switch {
		case err != nil:
			log.Warn("KAFKA", fmt.Sprintf("Could not list topics: %v", err))
		case len(missing) > 0:
			log.Warn("KAFKA", fmt.Sprintf("Topics missing, events for them will fail: %v", missing))
		}
		producer := kafka.NewProducer(cfg.Kafka, log)
		defer producer.Close()
		publishers = append(publishers, producer)

		consumer = kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, []string{cfg.Kafka.Topics.BookingConfirmed}, log)
		go func() {
			if err := consumer.Start(ctx, recorder.HandleBookingEvent); err != nil {
				log.Error("KAFKA", fmt.Sprintf("Consumer stopped: %v", err))
			}
		}()
		log.Info("KAFKA", fmt.Sprintf("Kafka enabled, brokers %v", cfg.Kafka.Brokers))
	} else {
		publishers = append(publishers, recorder)
		log.Warn("KAFKA", "Kafka disabled, sales are recorded in-process")
	}

	svc := booking.NewService(booking.Deps{
		Ledger:      ledger,
		Store:       store,
		Catalog:     catalog,
		Gateway:     gateway,
		Tickets:     issuer,
		Holds:       holds,
		Publishers:  publishers,
		Logger:      log,
		CheckoutTTL: cfg.Booking.CheckoutTTL,
	})

	if err := holds.EnableExpiryEvents(ctx); err != nil {
		log.Warn("REDIS", fmt.Sprintf("%v; relying on the reaper alone", err))
	}
	err = holds.Listen(ctx, func(ctx context.Context, bookingID string) {
		if err := svc.Expire(ctx, bookingID); err != nil {
			log.Error("BOOKING", fmt.Sprintf("Expiring booking %s failed: %v", bookingID, err))
		}
	})
	if err != nil {
		log.Warn("REDIS", fmt.Sprintf("Hold expiry listener not started: %v", err))
	}
	go svc.RunReaper(ctx, cfg.Booking.ReapInterval, cfg.Booking.CheckoutTTL)
	log.Info("REAPER", fmt.Sprintf("Sweeping every %s for bookings older than %s", cfg.Booking.ReapInterval, cfg.Booking.CheckoutTTL))

	authenticator, err := auth.New(ctx, cfg.Auth)
	if err != nil {
		log.Fatal("AUTH", err.Error())
	}

	bookingHandler := booking_api.NewHandler(svc, gateway, feed, log)
	ticketHandler := ticket_api.NewHandler(svc, issuer, log)
	analyticsHandler := analytics_api.NewHandler(recorder, svc, log)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	// --- Public Routes ---
	r.Get("/healthz", healthHandler(db, rdb))
	bookingHandler.RegisterPublicRoutes(r)
	ticketHandler.RegisterRoutes(r)

	// --- Protected Routes ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(authenticator, log))
		bookingHandler.RegisterRoutes(r)
		analyticsHandler.RegisterRoutes(r)
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Booking Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	cancel()
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "✅ Booking Service shutdown complete")
	}
	if consumer != nil {
		consumer.Close()
	}
}
