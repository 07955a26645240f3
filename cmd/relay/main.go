package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jacksonzamorano/relay"
	"github.com/jacksonzamorano/relay/config"
	relay_db "github.com/jacksonzamorano/relay/relay-db"
	relay_exchange "github.com/jacksonzamorano/relay/relay-exchange"
	"github.com/jacksonzamorano/relay/services/auth"
	"github.com/jacksonzamorano/relay/services/files"
	"github.com/jacksonzamorano/relay/services/payments"
	"github.com/jacksonzamorano/relay/services/sessions"
	"github.com/jacksonzamorano/relay/services/users"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "relay:", err)
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg config.Config, logger *logrus.Logger) (relay_db.Store, func(), error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("Using the in-memory store; data is lost on exit.")
		return relay_db.NewMemoryStore(), func() {}, nil
	}
	store, err := relay_db.ConnectPostgres(ctx, cfg.Database.GetConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database %s:%s: %w", cfg.Database.Host, cfg.Database.Port, err)
	}
	return store, store.Close, nil
}

func health(rc *relay.RequestContext) (*relay.HttpResponse, error) {
	return relay.StringResponse("ok"), nil
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logrus.New()
	logger.SetLevel(cfg.LogLevel)
	logger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.DefaultKey {
		logger.Warn("SIGNING_KEY is not set; using the built-in development key.")
	}

	router := relay.NewRouter()
	app := relay.NewApplication(cfg.Port, router, logger)
	app.WorkerCount = cfg.Workers
	app.CorsOrigin = cfg.CorsOrigin
	app.MaxBodyBytes = cfg.MaxBodyBytes
	app.LogRequestsLevel = cfg.LogRequests
	app.MetricsPath = "/metrics"
	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store, closeStore, err := openStore(app.Context, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	sealer, err := relay_exchange.NewSealer(cfg.SigningKey)
	if err != nil {
		return err
	}
	storage, err := files.NewDiskStorage(cfg.FilesDir)
	if err != nil {
		return fmt.Errorf("files directory: %w", err)
	}

	userService := users.NewService(store, bcrypt.DefaultCost, logger)
	sessionService := sessions.NewService(store, userService, cfg.SigningKey, cfg.SessionTTL, logger)
	userService.SetRevoker(sessionService)
	paymentService := payments.NewService(store, sealer, cfg.SigningKey, logger)
	fileService := files.NewService(store, storage, sealer, logger)

	for _, setup := range []func(context.Context, relay_db.Store) error{
		userService.Setup,
		sessionService.Setup,
		paymentService.Setup,
		fileService.Setup,
	} {
		if err := setup(app.Context, store); err != nil {
			return fmt.Errorf("prepare collections: %w", err)
		}
	}

	app.Use(
		relay.RequestID(),
		relay.AccessLog(cfg.LogRequests),
		relay.Metrics(app.Registry),
		relay.RateLimit(cfg.RateLimit, cfg.RateBurst),
		relay.BodyLimit(cfg.MaxBodyBytes),
		relay.Timeout(cfg.RequestTimeout),
	)

	authenticate := auth.Authenticate(sessionService)
	router.MustHandleFunc(relay.Get, "/health", health)
	groups := []struct {
		prefix string
		group  *relay.RouteGroup
	}{
		{"/users", userService.Routes(authenticate)},
		{"/sessions", sessionService.Routes()},
		{"/payment-methods", paymentService.Routes(authenticate)},
		{"/files", fileService.Routes(authenticate)},
		{"/shared", fileService.SharedRoutes()},
	}
	for _, g := range groups {
		if err := app.AddRouteGroup(g.prefix, g.group); err != nil {
			return err
		}
	}

	return app.Start()
}
