package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"questvault/config"
	"questvault/core/events"
	"questvault/core/genesis"
	"questvault/core/state"
	"questvault/crypto"
	"questvault/native/endless"
	"questvault/native/quest"
	"questvault/observability"
	"questvault/observability/logging"
	telemetry "questvault/observability/otel"
	"questvault/services/questd"
	"questvault/storage"
)

var version = "dev"

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./questd.toml", "path to questd config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	env := strings.TrimSpace(os.Getenv("QUESTD_ENV"))
	if cfg.Telemetry.Environment != "" {
		env = cfg.Telemetry.Environment
	}
	logger := logging.Setup("questd", env, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "questd",
		Version:     version,
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		_ = shutdownTelemetry(context.Background())
	}()

	if err := run(cfg, logger); err != nil {
		logger.Error("questd stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()
	manager := state.NewManager(db)

	if cfg.GenesisFile == "" {
		return errors.New("GenesisFile must be set")
	}
	spec, err := genesis.LoadSpec(cfg.GenesisFile)
	if err != nil {
		return fmt.Errorf("load genesis: %w", err)
	}
	rt, applied, err := genesis.Apply(spec, manager)
	if err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	logger.Info("genesis ready", slog.Bool("applied", applied), slog.Int("engines", len(rt.Engines)))

	engine, err := selectEngine(cfg, rt)
	if err != nil {
		return err
	}

	sinks := events.Fanout{observability.Events()}
	var audit *questd.AuditSink
	if cfg.Audit.Driver != "" {
		auditDB, err := questd.OpenAuditDB(cfg.Audit.Driver, cfg.Audit.DSN)
		if err != nil {
			return err
		}
		audit = questd.NewAuditSink(auditDB, logger)
		logger.Info("audit log enabled", slog.String("driver", cfg.Audit.Driver), logging.MaskField("dsn", cfg.Audit.DSN))
		sinks = append(sinks, audit)
	}
	for _, e := range rt.Engines {
		e.SetEmitter(sinks)
		e.SetLogger(logger)
	}
	rt.Custodian.SetEmitter(sinks)
	rt.Custodian.SetLogger(logger)

	authorizer, err := buildAuthorizer(cfg, rt, engine, manager)
	if err != nil {
		return err
	}
	if authorizer != nil {
		authorizer.SetEmitter(sinks)
		authorizer.SetLogger(logger)
	}

	srv, err := questd.New(questd.Config{
		Engine:    engine,
		Custodian: rt.Custodian,
		Endless:   authorizer,
		Audit:     audit,
		Auth: questd.AuthConfig{
			HMACSecret: cfg.JWTSecret(),
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
		},
		RateLimit: questd.RateLimit{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}
	if len(cfg.JWTSecret()) == 0 {
		logger.Warn("no auth secret configured; write routes will reject every request")
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("questd listening",
			slog.String("address", cfg.ListenAddress),
			slog.String("engine", crypto.Format(engine.Address())))
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownSeconds)*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forcing server stop", slog.Any("error", err))
			_ = httpServer.Close()
		}
		return nil
	case err := <-serverErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

func selectEngine(cfg *config.Config, rt *genesis.Runtime) (*quest.Engine, error) {
	if strings.TrimSpace(cfg.Engine) == "" {
		if len(rt.Engines) != 1 {
			return nil, fmt.Errorf("genesis declares %d engines; set Engine", len(rt.Engines))
		}
		return rt.Engines[0], nil
	}
	addr, err := crypto.ParseAddress(cfg.Engine)
	if err != nil {
		return nil, fmt.Errorf("Engine: %w", err)
	}
	engine, ok := rt.Engine(addr)
	if !ok {
		return nil, fmt.Errorf("engine %s not declared in genesis", crypto.Format(addr))
	}
	return engine, nil
}

func buildAuthorizer(cfg *config.Config, rt *genesis.Runtime, engine *quest.Engine, manager *state.Manager) (*endless.Authorizer, error) {
	if strings.TrimSpace(cfg.Endless.Collection) == "" {
		return nil, nil
	}
	collectionAddr, err := crypto.ParseAddress(cfg.Endless.Collection)
	if err != nil {
		return nil, fmt.Errorf("endless.Collection: %w", err)
	}
	collection, ok := rt.Uniques[collectionAddr]
	if !ok {
		return nil, fmt.Errorf("endless collection %s is not a unique asset in genesis", crypto.Format(collectionAddr))
	}
	verifying := engine.Address()
	if strings.TrimSpace(cfg.Endless.VerifyingContract) != "" {
		if verifying, err = crypto.ParseAddress(cfg.Endless.VerifyingContract); err != nil {
			return nil, fmt.Errorf("endless.VerifyingContract: %w", err)
		}
	}
	domain := endless.Domain{
		Name:              cfg.Endless.Name,
		Version:           cfg.Endless.Version,
		ChainID:           new(big.Int).SetUint64(cfg.Endless.ChainID),
		VerifyingContract: verifying,
	}
	return endless.NewAuthorizer(domain, manager, engine.Gate(), endless.CollectibleMinter{Collectible: collection}), nil
}
