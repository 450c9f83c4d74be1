package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/botpass/botpass/agentmod"
	"github.com/botpass/botpass/agentmod/actionstore"
	"github.com/botpass/botpass/agentmod/cachestore"
	"github.com/botpass/botpass/agentmod/content"
	"github.com/botpass/botpass/agentmod/countstore"
	"github.com/botpass/botpass/agentmod/flagstore"
	"github.com/botpass/botpass/agentmod/ratelimit"
	"github.com/botpass/botpass/agentmod/strikes"
	"github.com/botpass/botpass/util/cliutil"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/plugin/opentelemetry/tracing"
)

type Server struct {
	logger     *slog.Logger
	engine     *agentmod.Engine
	actions    actionstore.Reader
	adminToken string
	echo       *echo.Echo
	httpd      *http.Server
	// set when counters are kept in-process, and need periodic pruning
	memCounters *countstore.MemCountStore
}

type Config struct {
	Logger           *slog.Logger
	RedisURL         string
	DatabaseURL      string
	MaxDBConnections int
	DBTracing        bool
	RulesFileJSON    string
	ThrottleDuration time.Duration
	StoreTimeout     time.Duration
	SharedLedger     bool
	LocalFallback    bool
	AdminToken       string
	// records retained in memory when DatabaseURL is empty
	MemoryRecords int
	// source of CONTENT_MOD_* settings; nil means none
	Getenv func(string) string
	// for HTTP metrics; defaults to the global prometheus registry
	Registerer prometheus.Registerer
}

func (c Config) engineConfig() (agentmod.Config, error) {
	ec := agentmod.DefaultConfig()
	if c.RulesFileJSON != "" {
		rules, err := ratelimit.LoadRulesFileJSON(c.RulesFileJSON, ec.Rules)
		if err != nil {
			return ec, fmt.Errorf("loading rate limit rules: %w", err)
		}
		ec.Rules = rules
	}
	if c.Getenv != nil {
		ec.Content = content.ConfigFromEnv(c.Getenv, ec.Content)
	}
	if c.ThrottleDuration != 0 {
		ec.ThrottleDuration = c.ThrottleDuration
	}
	if c.StoreTimeout != 0 {
		ec.StoreTimeout = c.StoreTimeout
	}
	return ec, ec.Validate()
}

func NewServer(config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	engineConfig, err := config.engineConfig()
	if err != nil {
		return nil, err
	}
	if config.RulesFileJSON != "" {
		logger.Info("loaded rate limit rules from JSON", "path", config.RulesFileJSON)
	}
	if config.SharedLedger && config.RedisURL == "" {
		return nil, fmt.Errorf("%w: shared ledger requires a redis URL", agentmod.ErrInvalidConfig)
	}

	var stores agentmod.Stores
	var memCounters *countstore.MemCountStore
	if config.RedisURL != "" {
		cnt, err := countstore.NewRedisCountStore(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("initializing redis countstore: %v", err)
		}
		if config.LocalFallback {
			fb := countstore.NewFallbackCountStore(cnt, logger)
			stores.Counters = fb
			memCounters = fb.Local
		} else {
			stores.Counters = cnt
		}

		csh, err := cachestore.NewRedisContextStore(config.RedisURL, 7*24*time.Hour)
		if err != nil {
			return nil, fmt.Errorf("initializing redis cachestore: %v", err)
		}
		stores.Contexts = csh

		flg, err := flagstore.NewRedisFlagStore(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("initializing redis flagstore: %v", err)
		}
		stores.Flags = flg

		if config.SharedLedger {
			ldg, err := strikes.NewRedisLedgerStore(config.RedisURL)
			if err != nil {
				return nil, fmt.Errorf("initializing redis ledger: %v", err)
			}
			stores.Ledger = ldg
		}
	} else {
		memCounters = countstore.NewMemCountStore()
		stores.Counters = memCounters
		stores.Contexts = cachestore.NewMemContextStore(5_000, 24*time.Hour)
		stores.Flags = flagstore.NewMemFlagStore()
	}
	if stores.Ledger == nil {
		logger.Info("strike ledgers are process-local")
		stores.Ledger = strikes.NewMemLedgerStore()
	}

	var reader actionstore.Reader
	if config.DatabaseURL != "" {
		db, err := cliutil.SetupDatabase(config.DatabaseURL, config.MaxDBConnections)
		if err != nil {
			return nil, fmt.Errorf("setting up database: %w", err)
		}
		if config.DBTracing {
			if err := db.Use(tracing.NewPlugin()); err != nil {
				return nil, fmt.Errorf("enabling database tracing: %w", err)
			}
		}
		gs, err := actionstore.NewGormStore(db)
		if err != nil {
			return nil, fmt.Errorf("initializing action store: %w", err)
		}
		stores.Actions = gs
		stores.Snapshots = gs
		reader = gs
	} else {
		logger.Info("no database configured, moderation records are kept in memory", "retained", config.MemoryRecords)
		ms := actionstore.NewMemStoreSize(config.MemoryRecords)
		stores.Actions = ms
		reader = ms
	}

	engine, err := agentmod.NewEngine(logger, engineConfig, stores)
	if err != nil {
		return nil, err
	}

	s := &Server{
		logger:      logger,
		engine:      engine,
		actions:     reader,
		adminToken:  config.AdminToken,
		memCounters: memCounters,
	}
	s.echo = s.newEcho(config.Registerer)

	var (
		httpTimeout        = 30 * time.Second
		httpMaxHeaderBytes = 1 * (1024 * 1024)
	)
	s.httpd = &http.Server{
		Handler:        s.echo,
		WriteTimeout:   httpTimeout,
		ReadTimeout:    httpTimeout,
		MaxHeaderBytes: httpMaxHeaderBytes,
	}
	return s, nil
}

func (s *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}

// Prunes expired in-process rate counters until the context is cancelled. No-op when counters
// live in redis only.
func (s *Server) RunSweeper(ctx context.Context) {
	if s.memCounters == nil {
		return
	}
	s.memCounters.RunSweeper(ctx, time.Minute)
}

// Serves the API until Shutdown is called. The http.Server is built by NewServer, so Shutdown
// may be called from another goroutine at any time, including before Start.
func (s *Server) Start(listen string) error {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", listen, err)
	}
	s.logger.Info("starting server", "bind", ln.Addr().String())
	if err := s.httpd.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown() error {
	s.logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.httpd.Shutdown(ctx)
}
