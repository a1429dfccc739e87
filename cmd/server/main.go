package main // Entry point package

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/oveida/ticketing/internal/config"
	"github.com/oveida/ticketing/internal/database"
	"github.com/oveida/ticketing/internal/handler"
	"github.com/oveida/ticketing/internal/ledger"
	"github.com/oveida/ticketing/internal/notify"
	"github.com/oveida/ticketing/internal/payment"
	"github.com/oveida/ticketing/internal/queue"
	"github.com/oveida/ticketing/internal/repository"
	"github.com/oveida/ticketing/internal/router"
	"github.com/oveida/ticketing/internal/stream"
	"github.com/oveida/ticketing/internal/worker"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments set the environment directly
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Authoritative store.
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	// Derived-state cache. The hold ledger cannot run without it.
	rdb, err := config.NewRedisClient()
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer rdb.Close()

	seatRepo := repository.NewSeatRepo(db)
	eventRepo := repository.NewEventRepo(db)
	orderRepo := repository.NewOrderRepo(db)
	outboxRepo := repository.NewOutboxRepo(db)

	// Seat-change pushes loop back through the internal webhook so the
	// broadcaster sees ledger transitions and stream pushes on one path.
	updateURL := cfg.SeatUpdateURL
	if updateURL == "" {
		updateURL = "http://localhost:" + cfg.Port + "/internal/seat-update"
	}
	notifier := notify.New(updateURL, cfg.NotifyWorkers, cfg.NotifyQueue)
	defer notifier.Close()

	led := ledger.New(ledger.NewRedisStore(rdb), seatRepo, notifier)

	// Rebuild sold markers before serving traffic so the cache never
	// contradicts the database after a restart or flush.
	if err := led.Reconcile(ctx); err != nil {
		log.Fatalf("sold-marker reconciliation failed: %v", err)
	}

	pub, err := queue.NewPublisher(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("broker connection failed: %v", err)
	}
	defer pub.Close()

	// Background loops: outbox relay, payment saga and the event consumer.
	go worker.NewOutboxRelay(outboxRepo, pub, cfg.OutboxInterval).Run(ctx)
	go worker.NewSaga(
		repository.NewSagaStore(db, orderRepo, outboxRepo),
		payment.NewClient(cfg.PaymentURL),
		cfg.SagaInterval,
	).Run(ctx)
	go queue.NewConsumer(cfg.RabbitURL, led, pub).Start(ctx)

	hub := stream.NewHub()

	e := echo.New()
	e.HideBanner = true
	router.Register(e, router.Handlers{
		Reservations: handler.NewReservationHandler(led),
		Orders:       handler.NewOrderHandler(orderRepo),
		Events:       handler.NewEventHandler(eventRepo, seatRepo, led),
		Stream:       handler.NewStreamHandler(hub),
		Admin:        handler.NewAdminHandler(seatRepo, led),
		PaymentStub:  paymentStub(cfg),
	}, config.LoadRateLimitConfig(), rdb)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

// paymentStub mounts the in-process payment simulator outside prod so a
// bare docker-compose stack works without a real gateway.
func paymentStub(cfg config.Config) *handler.PaymentStubHandler {
	if cfg.Env == "prod" {
		return nil
	}
	return &handler.PaymentStubHandler{}
}
