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

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/caravanmattress/orders-api/internal/handlers"
	"github.com/caravanmattress/orders-api/internal/platform/archive"
	"github.com/caravanmattress/orders-api/internal/platform/auth"
	"github.com/caravanmattress/orders-api/internal/platform/config"
	"github.com/caravanmattress/orders-api/internal/platform/jobs"
	"github.com/caravanmattress/orders-api/internal/platform/observability"
	ppostgres "github.com/caravanmattress/orders-api/internal/platform/postgres"
	"github.com/caravanmattress/orders-api/internal/platform/secrets"
	"github.com/caravanmattress/orders-api/internal/platform/sheets"
	"github.com/caravanmattress/orders-api/internal/repositories"
	pgrepo "github.com/caravanmattress/orders-api/internal/repositories/postgres"
	"github.com/caravanmattress/orders-api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("orders-api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
	)
	if err != nil {
		var secretErr *config.SecretError
		if errors.As(err, &secretErr) {
			logger.Fatal("failed to resolve configured secret", zap.Error(err))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, startedAt)

	dbProvider := ppostgres.NewProvider(cfg.Database)
	pool, err := dbProvider.Pool(ctx)
	if err != nil {
		logger.Fatal("failed to initialise postgres pool", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := dbProvider.Close(closeCtx); err != nil {
			logger.Warn("postgres close error", zap.Error(err))
		}
	}()

	if err := pgrepo.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal("failed to ensure database schema", zap.Error(err))
	}

	subOrderRepo, err := pgrepo.NewSubOrderRepository(pool)
	if err != nil {
		logger.Fatal("failed to initialise sub-order repository", zap.Error(err))
	}
	mappingRepo, err := pgrepo.NewProductMappingRepository(pool)
	if err != nil {
		logger.Fatal("failed to initialise product mapping repository", zap.Error(err))
	}

	suppliers, err := cfg.Suppliers.LoadSuppliers()
	if err != nil {
		logger.Fatal("failed to load supplier registry", zap.Error(err))
	}
	resolver := services.NewSupplierResolver(suppliers)
	logger.Info("supplier registry loaded", zap.Int("suppliers", len(resolver.Suppliers())))

	verifier, err := auth.NewWebhookVerifier(cfg.Stores.StoreRegistry(),
		auth.WithSignatureHeader(cfg.Webhook.SignatureHeader),
		auth.WithStoreHeader(cfg.Webhook.StoreHeader),
		auth.WithVerifierLogger(observability.NewPrintfAdapter(logger.Named("auth"))),
	)
	if err != nil {
		logger.Fatal("failed to initialise webhook verifier", zap.Error(err))
	}

	sheetWriter := sheets.NewWriter(cfg.Sheets)
	sheetLimiter := rate.NewLimiter(rate.Limit(cfg.Sheets.SyncPerSecond), 1)

	var publisher services.OrderEventPublisher
	var pubsubClient *pubsub.Client
	if cfg.Events.ProjectID != "" && cfg.Events.Topic != "" {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.Events.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		eventPublisher, err := jobs.NewPubSubOrderEventPublisher(pubsubClient.Topic(cfg.Events.Topic))
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		publisher = eventPublisher
	}
	defer func() {
		if pubsubClient != nil {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}
	}()

	archiver := archive.NewArchiver(cfg.Archive.Bucket)

	ingestionService, err := services.NewIngestionService(services.IngestionServiceDeps{
		SubOrders: subOrderRepo,
		Mappings:  mappingRepo,
		Resolver:  resolver,
		Sheets:    sheetWriter,
		Publisher: publisher,
		Archiver:  archiver,
		Limiter:   sheetLimiter,
		Logger:    logger.Named("ingestion"),
	})
	if err != nil {
		logger.Fatal("failed to initialise ingestion service", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		SubOrders: subOrderRepo,
		Mappings:  mappingRepo,
		Resolver:  resolver,
		Sheets:    sheetWriter,
		Limiter:   sheetLimiter,
		Logger:    logger.Named("orders"),
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	healthRepo, err := newHealthRepository(dbProvider, fetcher)
	if err != nil {
		logger.Warn("health: dependency checks init failed", zap.Error(err))
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthRepository(healthRepo),
	)
	webhookHandlers := handlers.NewWebhookHandlers(ingestionService,
		handlers.WithWebhookThrottle(cfg.RateLimits.WebhookPerMinute, nil),
		handlers.WithWebhookMaxBodyBytes(cfg.Webhook.MaxBodyBytes),
		handlers.WithWebhookTopicHeader(cfg.Webhook.TopicHeader),
	)
	orderHandlers := handlers.NewOrderHandlers(orderService)
	supplyHandlers := handlers.NewSupplyHandlers(orderService)

	projectID := strings.TrimSpace(cfg.Events.ProjectID)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithWebhookMiddlewares(verifier.Middleware()),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithSupplyRoutes(supplyHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("orders api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromEnv(env map[string]string, started time.Time) handlers.BuildInfo {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}

	version := lookup("ORDERS_BUILD_VERSION")
	if version == "" {
		version = "dev"
	}
	commit := lookup("ORDERS_BUILD_COMMIT_SHA")
	if commit == "" {
		commit = "unknown"
	}
	environment := lookup("ORDERS_ENVIRONMENT")
	if environment == "" {
		environment = "local"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func newHealthRepository(dbProvider *ppostgres.Provider, fetcher *secrets.Fetcher) (repositories.HealthRepository, error) {
	checks := make([]repositories.DependencyCheck, 0, 2)
	if dbProvider != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "postgres",
			Timeout: 1500 * time.Millisecond,
			Check:   dbProvider.Ping,
		})
	}
	if fetcher != nil {
		const secretHealthReference = "secret://system/healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil {
					return nil
				}
				// A missing probe secret still proves the service answers.
				if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	return repositories.NewDependencyHealthRepository(checks)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}

	envLabel := strings.ToLower(lookup("ORDERS_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("ORDERS_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("ORDERS_EVENTS_PROJECT_ID")
	}
	fallbackPath := lookup("ORDERS_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	projectMap := parseKeyValueList(env["ORDERS_SECRET_PROJECT_IDS"])
	credentialsFile := lookup("ORDERS_GOOGLE_CREDENTIALS_FILE")

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if len(projectMap) > 0 {
		opts = append(opts, secrets.WithProjectMap(projectMap))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

func parseKeyValueList(raw string) map[string]string {
	result := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return result
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(parts[0]))
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	return result
}
