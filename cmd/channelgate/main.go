// Command channelgate runs the entitlement engine end to end: Telegram bot
// surface, expiry sweep scheduler, SQL persistence and a small HTTP sidecar
// for health and metrics.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	"github.com/channelgate/channelgate/adapters/cronsched"
	"github.com/channelgate/channelgate/adapters/prommetrics"
	"github.com/channelgate/channelgate/adapters/telegram"
	"github.com/channelgate/channelgate/core"
	gatemigrations "github.com/channelgate/channelgate/migrations"
	sqlstore "github.com/channelgate/channelgate/store/sql"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "channelgate:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, logger := glog.Resolve("channelgate", nil, nil)
	logger = glog.Ensure(logger)

	token := strings.TrimSpace(os.Getenv("CHANNELGATE_BOT_TOKEN"))
	if token == "" {
		return fmt.Errorf("CHANNELGATE_BOT_TOKEN is required")
	}

	driver := envOr("CHANNELGATE_DB_DRIVER", "sqlite3")
	dsn := envOr("CHANNELGATE_DB_DSN", "file:channelgate.db?cache=shared&_foreign_keys=on")
	httpAddr := envOr("CHANNELGATE_HTTP_ADDR", ":8080")

	client, err := openPersistence(ctx, driver, dsn)
	if err != nil {
		return err
	}
	defer client.Close()

	recorder := prommetrics.NewRecorder()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		return fmt.Errorf("repository factory: %w", err)
	}
	cacheConfig := repositorycache.DefaultConfig()
	cacheConfig.TTL = 5 * time.Minute
	cacheService, err := repositorycache.NewCacheService(cacheConfig)
	if err != nil {
		return fmt.Errorf("catalog cache: %w", err)
	}
	catalogStore, err := sqlstore.NewCachedCatalogStore(factory.CatalogStore(), cacheService)
	if err != nil {
		return fmt.Errorf("cached catalog store: %w", err)
	}

	bot, err := telegram.NewBot(token)
	if err != nil {
		return fmt.Errorf("telegram bot: %w", err)
	}
	issuer, err := telegram.NewIssuer(bot)
	if err != nil {
		return err
	}
	revoker, err := telegram.NewRevoker(bot)
	if err != nil {
		return err
	}
	notifier, err := telegram.NewNotifier(bot)
	if err != nil {
		return err
	}

	service, err := core.NewService(core.Config{},
		core.WithLoggerProvider(provider),
		core.WithLogger(logger),
		core.WithMetricsRecorder(recorder),
		core.WithConfigProvider(core.NewCfgxConfigProvider(envConfigLoader{})),
		core.WithPersistenceClient(client),
		core.WithRepositoryFactory(factory),
		core.WithCatalogStore(catalogStore),
		core.WithInviteIssuer(issuer),
		core.WithMembershipRevoker(revoker),
		core.WithNotifier(notifier),
	)
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}

	var handlerOptions []telegram.HandlerOption
	if supportURL := strings.TrimSpace(os.Getenv("CHANNELGATE_SUPPORT_URL")); supportURL != "" {
		handlerOptions = append(handlerOptions, telegram.WithSupportContact(supportURL))
	}
	handler, err := telegram.NewHandler(bot, service, logger, handlerOptions...)
	if err != nil {
		return fmt.Errorf("telegram handler: %w", err)
	}

	scheduler, err := cronsched.NewSweepScheduler(service, logger, service.Config().Sweep)
	if err != nil {
		return fmt.Errorf("sweep scheduler: %w", err)
	}
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer scheduler.Stop()

	server := newHTTPServer(httpAddr, recorder)
	serverErr := make(chan error, 1)
	go func() {
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	logger.Info("channelgate started",
		"operator_id", service.Config().OperatorID,
		"sweep_interval", service.Config().Sweep.Interval.String(),
		"http_addr", httpAddr,
	)

	go handler.Start()
	defer handler.Stop()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", "error", err.Error())
	}
	return nil
}

func openPersistence(ctx context.Context, driver string, dsn string) (*persistence.Client, error) {
	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}

	var dialect schema.Dialect
	migrationTarget := gatemigrations.DialectSQLite
	switch driver {
	case "postgres":
		dialect = pgdialect.New()
		migrationTarget = gatemigrations.DialectPostgres
	case "sqlite3":
		dialect = sqlitedialect.New()
		sqlDB.SetMaxOpenConns(1)
	default:
		_ = sqlDB.Close()
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	client, err := persistence.New(persistenceConfig{driver: driver, server: dsn}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("persistence client: %w", err)
	}

	_, err = gatemigrations.Register(ctx, func(_ context.Context, d string, _ string, fsys fs.FS) error {
		if d != migrationTarget {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, gatemigrations.WithValidationTargets(migrationTarget))
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return client, nil
}

func newHTTPServer(addr string, recorder *prommetrics.Recorder) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(recorder.Registry(), promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

type persistenceConfig struct {
	driver string
	server string
}

func (c persistenceConfig) GetDebug() bool                { return os.Getenv("CHANNELGATE_DB_DEBUG") == "true" }
func (c persistenceConfig) GetDriver() string             { return c.driver }
func (c persistenceConfig) GetServer() string             { return c.server }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return "channelgate" }

// envConfigLoader maps CHANNELGATE_* environment variables onto the raw
// config shape the service resolves through its layered options stack.
type envConfigLoader struct{}

func (envConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	raw := map[string]any{}

	if name := strings.TrimSpace(os.Getenv("CHANNELGATE_SERVICE_NAME")); name != "" {
		raw["service_name"] = name
	}
	if operator := strings.TrimSpace(os.Getenv("CHANNELGATE_OPERATOR_ID")); operator != "" {
		id, err := strconv.ParseInt(operator, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse CHANNELGATE_OPERATOR_ID: %w", err)
		}
		raw["operator_id"] = id
	}
	if timeout, err := envDuration("CHANNELGATE_CALL_TIMEOUT"); err != nil {
		return nil, err
	} else if timeout > 0 {
		raw["call_timeout"] = timeout
	}

	sweep := map[string]any{}
	if interval, err := envDuration("CHANNELGATE_SWEEP_INTERVAL"); err != nil {
		return nil, err
	} else if interval > 0 {
		sweep["interval"] = interval
	}
	if delay, err := envDuration("CHANNELGATE_SWEEP_INITIAL_DELAY"); err != nil {
		return nil, err
	} else if delay > 0 {
		sweep["initial_delay"] = delay
	}
	if len(sweep) > 0 {
		raw["sweep"] = sweep
	}

	return raw, nil
}

func envDuration(key string) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return 0, nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return duration, nil
}

func envOr(key string, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

var _ core.RawConfigLoader = envConfigLoader{}
