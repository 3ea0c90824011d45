package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/sdplabs/ingest/internal/audit"
	"github.com/sdplabs/ingest/internal/clickhouse"
	"github.com/sdplabs/ingest/internal/environments"
	"github.com/sdplabs/ingest/internal/logger"
	"github.com/sdplabs/ingest/internal/metrics"
	"github.com/sdplabs/ingest/internal/objstore"
	"github.com/sdplabs/ingest/internal/pipeline"
	"github.com/sdplabs/ingest/internal/server"
	"github.com/sdplabs/ingest/internal/warehouse"
)

// Set at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	listenAddrFlag := flag.String("listen-addr", ":8080", "HTTP listen address (or set LISTEN_ADDR env var)")

	// Environment registry
	environmentsFileFlag := flag.String("environments-file", "environments.json", "path to the environment registry file (or set ENVIRONMENTS_FILE env var)")
	deployEnvFlag := flag.String("deploy-env", "dev", "deployment environment section to load from the registry file (or set DEPLOY_ENV env var)")

	// ClickHouse configuration
	clickhouseAddrFlag := flag.String("clickhouse-addr", "", "ClickHouse address (host:port) (or set CLICKHOUSE_ADDR_TCP env var)")
	clickhouseDatabaseFlag := flag.String("clickhouse-database", "default", "ClickHouse database name (or set CLICKHOUSE_DATABASE env var)")
	clickhouseUsernameFlag := flag.String("clickhouse-username", "default", "ClickHouse username (or set CLICKHOUSE_USERNAME env var)")
	clickhousePasswordFlag := flag.String("clickhouse-password", "", "ClickHouse password (or set CLICKHOUSE_PASSWORD env var)")
	clickhouseSecureFlag := flag.Bool("clickhouse-secure", false, "Enable TLS for ClickHouse Cloud (or set CLICKHOUSE_SECURE=true env var)")

	// Workflow orchestrator
	pipelineURLFlag := flag.String("pipeline-url", "", "workflow orchestrator base URL; run-product is unavailable when empty (or set PIPELINE_URL env var)")
	pipelineTokenFlag := flag.String("pipeline-token", "", "workflow orchestrator API token (or set PIPELINE_TOKEN env var)")

	// Ingestion behavior
	normalizeCellsFlag := flag.Bool("normalize-cells", false, "fold cell values to ASCII during ingestion, not only column names")
	corsOriginsFlag := flag.StringSlice("cors-origins", nil, "allowed browser origins; empty allows any (or set CORS_ORIGINS env var, comma separated)")

	// Commands
	migrateFlag := flag.Bool("clickhouse-migrate", false, "Run ClickHouse database migrations using goose")
	migrateDownFlag := flag.Bool("clickhouse-migrate-down", false, "Roll back the most recent ClickHouse database migration")
	migrateStatusFlag := flag.Bool("clickhouse-migrate-status", false, "Show ClickHouse database migration status")

	flag.Parse()

	// A local .env file is a development convenience; absence is fine.
	_ = godotenv.Load()

	log := logger.New(*verboseFlag)

	if envListenAddr := os.Getenv("LISTEN_ADDR"); envListenAddr != "" {
		*listenAddrFlag = envListenAddr
	}
	if envFile := os.Getenv("ENVIRONMENTS_FILE"); envFile != "" {
		*environmentsFileFlag = envFile
	}
	if envDeployEnv := os.Getenv("DEPLOY_ENV"); envDeployEnv != "" {
		*deployEnvFlag = envDeployEnv
	}
	if envClickhouseAddr := os.Getenv("CLICKHOUSE_ADDR_TCP"); envClickhouseAddr != "" {
		*clickhouseAddrFlag = envClickhouseAddr
	}
	if envClickhouseDatabase := os.Getenv("CLICKHOUSE_DATABASE"); envClickhouseDatabase != "" {
		*clickhouseDatabaseFlag = envClickhouseDatabase
	}
	if envClickhouseUsername := os.Getenv("CLICKHOUSE_USERNAME"); envClickhouseUsername != "" {
		*clickhouseUsernameFlag = envClickhouseUsername
	}
	if envClickhousePassword := os.Getenv("CLICKHOUSE_PASSWORD"); envClickhousePassword != "" {
		*clickhousePasswordFlag = envClickhousePassword
	}
	if os.Getenv("CLICKHOUSE_SECURE") == "true" {
		*clickhouseSecureFlag = true
	}
	if envPipelineURL := os.Getenv("PIPELINE_URL"); envPipelineURL != "" {
		*pipelineURLFlag = envPipelineURL
	}
	if envPipelineToken := os.Getenv("PIPELINE_TOKEN"); envPipelineToken != "" {
		*pipelineTokenFlag = envPipelineToken
	}
	if envCORSOrigins := os.Getenv("CORS_ORIGINS"); envCORSOrigins != "" {
		*corsOriginsFlag = strings.Split(envCORSOrigins, ",")
	}

	if *clickhouseAddrFlag == "" {
		return fmt.Errorf("--clickhouse-addr is required")
	}

	migrationCfg := clickhouse.MigrationConfig{
		Addr:     *clickhouseAddrFlag,
		Database: *clickhouseDatabaseFlag,
		Username: *clickhouseUsernameFlag,
		Password: *clickhousePasswordFlag,
		Secure:   *clickhouseSecureFlag,
	}
	if *migrateFlag {
		return clickhouse.Up(context.Background(), log, migrationCfg)
	}
	if *migrateDownFlag {
		return clickhouse.Down(context.Background(), log, migrationCfg)
	}
	if *migrateStatusFlag {
		return clickhouse.MigrationStatus(context.Background(), log, migrationCfg)
	}

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
			Release:          version,
			TracesSampleRate: 0.1,
		}); err != nil {
			return fmt.Errorf("initializing sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, err := environments.Load(*environmentsFileFlag, *deployEnvFlag)
	if err != nil {
		return err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}
	store := objstore.NewS3Store(s3.NewFromConfig(awsCfg))

	chClient, err := clickhouse.NewClient(ctx, log, *clickhouseAddrFlag, *clickhouseDatabaseFlag, *clickhouseUsernameFlag, *clickhousePasswordFlag, *clickhouseSecureFlag)
	if err != nil {
		return fmt.Errorf("connecting to ClickHouse: %w", err)
	}
	defer func() {
		if err := chClient.Close(); err != nil {
			log.Error("failed to close ClickHouse client", "error", err)
		}
	}()

	whClient := warehouse.NewClickHouseClient(log, chClient)

	auditStore, err := audit.NewStore(&audit.StoreConfig{
		Logger: log,
		Client: chClient,
	})
	if err != nil {
		return fmt.Errorf("creating audit store: %w", err)
	}
	auditLog := audit.NewCachedLog(auditStore)

	// All environments in one deployment share the storage and warehouse
	// backends; the registry still scopes which buckets each one may touch.
	clients := server.NewClientSet()
	for _, env := range registry.Environments() {
		clients.RegisterProject(env.ProjectID, store, whClient)
	}

	var trigger pipeline.Trigger
	if *pipelineURLFlag != "" {
		client, err := pipeline.NewClient(&pipeline.ClientConfig{
			BaseURL: *pipelineURLFlag,
			Token:   *pipelineTokenFlag,
		})
		if err != nil {
			return fmt.Errorf("creating pipeline client: %w", err)
		}
		trigger = client
	} else {
		log.Warn("no pipeline URL configured, run-product will be unavailable")
	}

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	srv, err := server.New(&server.Config{
		Logger:     log,
		ListenAddr: *listenAddrFlag,
		VersionInfo: server.VersionInfo{
			Version: version,
			Commit:  commit,
			Date:    date,
		},
		Registry:       registry,
		Clients:        clients,
		Audit:          auditLog,
		Pipeline:       trigger,
		NormalizeCells: *normalizeCellsFlag,
		CORSOrigins:    *corsOriginsFlag,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	log.Info("starting ingest gateway", "version", version, "commit", commit, "listen_addr", *listenAddrFlag)
	return srv.Run(ctx)
}
