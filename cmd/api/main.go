package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/dbs-storefront/internal/cart"
	"github.com/ariefcatur/dbs-storefront/internal/catalog"
	"github.com/ariefcatur/dbs-storefront/internal/config"
	"github.com/ariefcatur/dbs-storefront/internal/followup"
	"github.com/ariefcatur/dbs-storefront/internal/httpx"
	"github.com/ariefcatur/dbs-storefront/internal/imagery"
	"github.com/ariefcatur/dbs-storefront/internal/inventory"
	kafkax "github.com/ariefcatur/dbs-storefront/internal/kafka"
	"github.com/ariefcatur/dbs-storefront/internal/logging"
	"github.com/ariefcatur/dbs-storefront/internal/orders"
	"github.com/ariefcatur/dbs-storefront/internal/payments"
	"github.com/ariefcatur/dbs-storefront/internal/paystack"
	"github.com/ariefcatur/dbs-storefront/internal/postgres"
	"github.com/ariefcatur/dbs-storefront/internal/pricing"
	"github.com/ariefcatur/dbs-storefront/internal/redisx"
	"github.com/ariefcatur/dbs-storefront/internal/storage"
	"github.com/ariefcatur/dbs-storefront/internal/telemetry"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.With(zap.String("service", cfg.ServiceName))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(cfg.OTelStdout)
	if err != nil {
		logger.Fatal("tracing", zap.Error(err))
	}

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		logger.Fatal("db migrate", zap.Error(err))
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, logger)
	prod.Start(ctx)

	coupons, err := config.LoadCoupons(cfg.CouponsFile)
	if err != nil {
		logger.Fatal("coupons", zap.Error(err))
	}
	rules := pricing.DefaultRules().WithCoupons(coupons)

	gateway := paystack.NewClient(cfg.PaystackBaseURL, cfg.PaystackSecretKey)
	orderRepo := &orders.Repo{DB: db}
	productRepo := &catalog.Repo{DB: db}

	svc := &orders.Service{
		Repo:      orderRepo,
		Publisher: prod,
		Producer:  cfg.ServiceName,
		Log:       logger.Named("orders"),
	}
	if cfg.PaystackVerifyOnOrder {
		svc.Verifier = gateway
	}

	webhook := &payments.Reconciler{
		Secret:    cfg.PaystackWebhookSecret,
		Store:     orderRepo,
		Publisher: prod,
		Dedup:     &payments.RedisDeduper{RDB: rdb, TTL: redisx.TTLDedup},
		Producer:  cfg.ServiceName,
		Log:       logger.Named("webhook"),
	}
	if cfg.PaystackWebhookSecret == "" {
		logger.Warn("webhook secret missing; every webhook call will fail")
	}

	router := httpx.NewRouter(logger)

	store := &httpx.StorefrontHandler{
		Products: productRepo,
		Presenter: catalog.Presenter{
			StorageURL: cfg.StoragePublicURL,
			Width:      imagery.DefaultWidth,
			Quality:    imagery.DefaultQuality,
		},
		Carts: func(ctx context.Context, session string) (*cart.Store, error) {
			return cart.Load(ctx, cart.NewRedisPersister(rdb, session, cfg.CartTTL), rules, logger.Named("cart"))
		},
		Orders:      svc,
		Lookup:      orderRepo,
		Gateway:     gateway,
		Webhook:     webhook,
		Redis:       rdb,
		PublicKey:   cfg.PaystackPublicKey,
		Currency:    cfg.Currency,
		CallbackURL: cfg.PaystackCallbackURL,
		Settings:    cfg.Public(),
		Log:         logger.Named("storefront"),
	}
	store.Register(router)

	if cfg.AdminToken == "" {
		logger.Warn("ADMIN_TOKEN empty; admin api is unauthenticated")
	}
	admin := &httpx.AdminHandler{
		Products:  productRepo,
		Inventory: &inventory.Repo{DB: db},
		Orders:    orderRepo,
		Status:    svc,
		Unmatched: func(ctx context.Context) ([]orders.PaymentUnmatchedPayload, error) {
			return followup.Unmatched(ctx, rdb)
		},
		Resolve: func(ctx context.Context, reference string) (bool, error) {
			return followup.Resolve(ctx, rdb, reference)
		},
		Token: cfg.AdminToken,
		Log:   logger.Named("admin"),
	}
	if cfg.StoreServiceKey != "" {
		admin.Images = storage.NewUploader(cfg.StoragePublicURL, cfg.StoreServiceKey)
	}
	admin.Register(router)

	// HTTP server
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           telemetry.Handler(router, "storefront"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// graceful shutdown
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()      // close inbox, flush and close writer
	cancel()          // stop producer loop
	prod.WaitClosed() // drain
	_ = shutdownTracing(ctx2)
}
