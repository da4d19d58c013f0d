// Package main runs the FlightSurety oracle relay: it registers the node's
// unlocked accounts as oracles, listens for OracleRequest events and submits
// a response from every matching oracle index.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/archon-research/oracle-relay/db/migrator"
	httpadapter "github.com/archon-research/oracle-relay/internal/adapters/inbound/http"
	"github.com/archon-research/oracle-relay/internal/adapters/outbound/ethereum"
	"github.com/archon-research/oracle-relay/internal/adapters/outbound/memory"
	"github.com/archon-research/oracle-relay/internal/adapters/outbound/postgres"
	"github.com/archon-research/oracle-relay/internal/adapters/outbound/redis"
	snsadapter "github.com/archon-research/oracle-relay/internal/adapters/outbound/sns"
	"github.com/archon-research/oracle-relay/internal/adapters/outbound/telemetry"
	"github.com/archon-research/oracle-relay/internal/pkg/blockchain/abis"
	"github.com/archon-research/oracle-relay/internal/pkg/env"
	"github.com/archon-research/oracle-relay/internal/ports/outbound"
	"github.com/archon-research/oracle-relay/internal/services/oracle_relay"
	"github.com/archon-research/oracle-relay/internal/services/shared"
)

const recentOutcomes = 1000

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

type cliConfig struct {
	rpcURL        string
	wsURL         string
	contract      common.Address
	httpAddr      string
	dbURL         string
	migrationsDir string
	redisAddr     string
	snsTopicARN   string
	snsEndpoint   string
	awsRegion     string

	submitRateLimit float64
	submitBurst     int
	submitTimeout   time.Duration

	otlpEndpoint string
	stdoutTraces bool
}

func parseConfig(args []string) (cliConfig, error) {
	fs := flag.NewFlagSet("oracle-relay", flag.ContinueOnError)
	rpcURL := fs.String("rpc", "", "Ethereum JSON-RPC HTTP URL")
	wsURL := fs.String("ws", "", "Ethereum WebSocket URL (derived from -rpc if empty)")
	contract := fs.String("contract", "", "FlightSuretyApp contract address")
	httpAddr := fs.String("addr", "", "HTTP listen address")
	dbURL := fs.String("db", "", "PostgreSQL connection URL (optional)")
	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}

	cfg := cliConfig{
		rpcURL:        *rpcURL,
		wsURL:         *wsURL,
		httpAddr:      *httpAddr,
		dbURL:         *dbURL,
		migrationsDir: env.Get("MIGRATIONS_DIR", "./db/migrations"),
		redisAddr:     env.Get("REDIS_ADDR", ""),
		snsTopicARN:   env.Get("AWS_SNS_OUTCOME_TOPIC_ARN", ""),
		snsEndpoint:   env.Get("AWS_SNS_ENDPOINT", ""),
		awsRegion:     env.Get("AWS_REGION", "eu-west-1"),
		otlpEndpoint:  env.Get("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if cfg.rpcURL == "" {
		cfg.rpcURL = env.Get("ETH_HTTP_URL", "http://127.0.0.1:8545")
	}
	if cfg.wsURL == "" {
		cfg.wsURL = env.Get("ETH_WS_URL", "")
	}
	if cfg.httpAddr == "" {
		cfg.httpAddr = env.Get("HTTP_ADDR", ":3000")
	}
	if cfg.dbURL == "" {
		cfg.dbURL = env.Get("DATABASE_URL", "")
	}

	rawContract := *contract
	if rawContract == "" {
		rawContract = env.Get("APP_CONTRACT_ADDRESS", "")
	}
	if rawContract == "" {
		return cliConfig{}, fmt.Errorf("contract address not provided (use -contract flag or APP_CONTRACT_ADDRESS env var)")
	}
	if !common.IsHexAddress(rawContract) {
		return cliConfig{}, fmt.Errorf("invalid contract address %q", rawContract)
	}
	cfg.contract = common.HexToAddress(rawContract)

	var err error
	if cfg.submitRateLimit, err = env.GetFloat("SUBMIT_RATE_LIMIT", 0); err != nil {
		return cliConfig{}, err
	}
	if cfg.submitBurst, err = env.GetInt("SUBMIT_BURST", 0); err != nil {
		return cliConfig{}, err
	}
	if cfg.submitTimeout, err = env.GetDuration("SUBMIT_TIMEOUT", oracle_relay.ConfigDefaults().SubmitTimeout); err != nil {
		return cliConfig{}, err
	}
	if cfg.stdoutTraces, err = env.GetBool("OTEL_TRACES_STDOUT", false); err != nil {
		return cliConfig{}, err
	}

	return cfg, nil
}

func run(ctx context.Context, args []string) error {
	cfg, err := parseConfig(args)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: env.ParseLogLevel(slog.LevelInfo),
	}))
	slog.SetDefault(logger)

	logger.Info("starting oracle relay", "rpc", cfg.rpcURL, "contract", cfg.contract.Hex())

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "oracle-relay",
		ServiceVersion: "0.1.0",
		Environment:    env.Get("ENVIRONMENT", "development"),
		OTLPEndpoint:   cfg.otlpEndpoint,
		StdoutTraces:   cfg.stdoutTraces,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	metrics, err := shared.NewRelayTelemetry()
	if err != nil {
		return fmt.Errorf("creating relay metrics: %w", err)
	}

	contractABI, err := abis.GetFlightSuretyAppABI()
	if err != nil {
		return fmt.Errorf("loading contract ABI: %w", err)
	}

	gateway, err := ethereum.NewGateway(ctx, ethereum.Config{
		HTTPURL:         cfg.rpcURL,
		WebSocketURL:    cfg.wsURL,
		ContractAddress: cfg.contract,
		Logger:          logger,
	}, contractABI)
	if err != nil {
		return fmt.Errorf("connecting to Ethereum node: %w", err)
	}
	defer gateway.Close()
	logger.Info("Ethereum node connected")

	recent := memory.NewOutcomeSink(recentOutcomes)
	sinks := []outbound.OutcomeSink{recent}

	extra, closeSinks, err := openSinks(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSinks()
	sinks = append(sinks, extra...)

	relayConfig := oracle_relay.ConfigDefaults()
	relayConfig.SubmitTimeout = cfg.submitTimeout
	relayConfig.SubmitRateLimit = cfg.submitRateLimit
	relayConfig.SubmitBurst = cfg.submitBurst
	relayConfig.Logger = logger

	service, err := oracle_relay.NewRelayService(relayConfig, gateway, metrics, sinks...)
	if err != nil {
		return fmt.Errorf("creating relay service: %w", err)
	}

	var shuttingDown atomic.Bool
	server := httpadapter.NewServer(
		httpadapter.ServerConfig{Addr: cfg.httpAddr, Logger: logger},
		service,
		httpadapter.NewHandler(service, recent, logger),
		&shuttingDown,
	)
	if err := server.Start(); err != nil {
		return fmt.Errorf("starting http server: %w", err)
	}

	logger.Info("registering oracles...")
	if err := service.Start(ctx); err != nil {
		_ = server.Shutdown(5 * time.Second)
		return fmt.Errorf("starting relay: %w", err)
	}
	logger.Info("relay started, waiting for oracle requests...", "oracles", service.RegisteredOracles())

	<-ctx.Done()
	logger.Info("shutting down...")
	shuttingDown.Store(true)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), relayConfig.ShutdownTimeout+5*time.Second)
	defer shutdownCancel()

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		if err := service.Stop(); err != nil {
			logger.Error("error stopping relay", "error", err)
		}
	}()

	select {
	case <-shutdownDone:
	case <-shutdownCtx.Done():
		return errors.New("shutdown timed out")
	}

	if err := server.Shutdown(5 * time.Second); err != nil {
		logger.Warn("http server shutdown failed", "error", err)
	}
	total, failed := recent.Counts()
	logger.Info("shutdown complete", "responses", total, "failed", failed)
	return nil
}

// openSinks opens the optional outcome sinks that are configured. The
// returned close function releases everything that was opened.
func openSinks(ctx context.Context, cfg cliConfig, logger *slog.Logger) ([]outbound.OutcomeSink, func(), error) {
	var sinks []outbound.OutcomeSink
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) ([]outbound.OutcomeSink, func(), error) {
		closeAll()
		return nil, func() {}, err
	}

	if cfg.dbURL != "" {
		pool, err := postgres.OpenPool(ctx, postgres.DefaultPoolConfig(cfg.dbURL))
		if err != nil {
			return fail(fmt.Errorf("connecting to database: %w", err))
		}
		closers = append(closers, pool.Close)

		if err := migrator.New(pool, cfg.migrationsDir, logger).ApplyAll(ctx); err != nil {
			return fail(fmt.Errorf("applying migrations: %w", err))
		}

		repo, err := postgres.NewOutcomeRepository(pool, logger)
		if err != nil {
			return fail(fmt.Errorf("creating outcome repository: %w", err))
		}
		sinks = append(sinks, repo)
		logger.Info("PostgreSQL outcome audit enabled")
	}

	if cfg.redisAddr != "" {
		redisCfg := redis.ConfigDefaults()
		redisCfg.Addr = cfg.redisAddr
		redisCfg.Password = env.Get("REDIS_PASSWORD", "")
		tally, err := redis.NewTallySink(redisCfg, logger)
		if err != nil {
			return fail(fmt.Errorf("creating redis tally: %w", err))
		}
		closers = append(closers, func() { _ = tally.Close() })
		if err := tally.Ping(ctx); err != nil {
			return fail(fmt.Errorf("connecting to redis: %w", err))
		}
		sinks = append(sinks, tally)
		logger.Info("Redis response tally enabled", "addr", cfg.redisAddr)
	}

	if cfg.snsTopicARN != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.awsRegion))
		if err != nil {
			return fail(fmt.Errorf("loading AWS config: %w", err))
		}
		var optFns []func(*awssns.Options)
		if cfg.snsEndpoint != "" {
			optFns = append(optFns, func(o *awssns.Options) {
				o.BaseEndpoint = aws.String(cfg.snsEndpoint)
			})
		}
		snsCfg := snsadapter.ConfigDefaults()
		snsCfg.TopicARN = cfg.snsTopicARN
		snsCfg.Logger = logger
		sink, err := snsadapter.NewOutcomeSink(awssns.NewFromConfig(awsCfg, optFns...), snsCfg)
		if err != nil {
			return fail(fmt.Errorf("creating SNS sink: %w", err))
		}
		closers = append(closers, func() { _ = sink.Close() })
		sinks = append(sinks, sink)
		logger.Info("SNS outcome publishing enabled", "topic", cfg.snsTopicARN)
	}

	return sinks, closeAll, nil
}
