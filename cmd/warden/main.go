package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/botpass/botpass/agentmod/actionstore"
	"github.com/botpass/botpass/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "warden",
		Usage:   "abuse containment daemon for agent actions",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			Value:   "info",
			EnvVars: []string{"WARDEN_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log output format (json or text)",
			Value:   "json",
			EnvVars: []string{"WARDEN_LOG_FORMAT"},
		},
		&cli.IntFlag{
			Name:    "max-metadb-connections",
			EnvVars: []string{"MAX_METADB_CONNECTIONS"},
			Value:   40,
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		checkCmd,
	}

	return app.Run(args)
}

var runFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "database-url",
		Usage:   "database for moderation records (sqlite:// or postgres://); in-process only if empty",
		EnvVars: []string{"DATABASE_URL"},
	},
	&cli.IntFlag{
		Name:    "memory-records",
		Usage:   "without --database-url, how many recent moderation records to keep in memory (older ones are dropped)",
		Value:   actionstore.DefaultMemStoreSize,
		EnvVars: []string{"WARDEN_MEMORY_RECORDS"},
	},
	&cli.BoolFlag{
		Name:    "enable-db-tracing",
		Usage:   "trace database queries with OpenTelemetry",
		EnvVars: []string{"WARDEN_ENABLE_DB_TRACING"},
	},
	&cli.StringFlag{
		Name:    "redis-url",
		Usage:   "redis connection URL, for state shared across instances",
		EnvVars: []string{"WARDEN_REDIS_URL"},
	},
	&cli.BoolFlag{
		Name:    "shared-ledger",
		Usage:   "keep strike ledgers in redis instead of in-process (requires --redis-url)",
		EnvVars: []string{"WARDEN_SHARED_LEDGER"},
	},
	&cli.BoolFlag{
		Name:    "local-fallback",
		Usage:   "count in-process when redis counters are unreachable, instead of denying",
		EnvVars: []string{"WARDEN_LOCAL_FALLBACK"},
	},
	&cli.StringFlag{
		Name:    "rules-json",
		Usage:   "path to JSON file with per-action rate limit overrides",
		EnvVars: []string{"WARDEN_RULES_JSON"},
	},
	&cli.DurationFlag{
		Name:    "throttle-duration",
		Usage:   "how long a throttle decision blocks an agent",
		Value:   300 * time.Second,
		EnvVars: []string{"WARDEN_THROTTLE_DURATION"},
	},
	&cli.DurationFlag{
		Name:    "store-timeout",
		Usage:   "timeout for each counter and ledger store call",
		Value:   2 * time.Second,
		EnvVars: []string{"WARDEN_STORE_TIMEOUT"},
	},
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the service",
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for HTTP APIs",
			Value:   ":3700",
			EnvVars: []string{"WARDEN_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3701",
			EnvVars: []string{"WARDEN_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "admin-token",
			Usage:   "bearer token required for /admin endpoints (endpoints are open if unset)",
			EnvVars: []string{"WARDEN_ADMIN_TOKEN"},
		},
	}, runFlags...),
	Action: func(cctx *cli.Context) error {
		logger, err := cliutil.SetupSlog(os.Stdout, cctx.String("log-level"), cctx.String("log-format"))
		if err != nil {
			return err
		}

		shutdownOTEL := configOTEL("warden")
		defer shutdownOTEL()

		srv, err := NewServer(serverConfig(cctx, logger))
		if err != nil {
			return fmt.Errorf("failed to construct server: %v", err)
		}

		ctx, cancel := context.WithCancel(cctx.Context)
		defer cancel()
		go srv.RunSweeper(ctx)

		// prometheus HTTP endpoint: /metrics
		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		go func() {
			if err := srv.Start(cctx.String("bind")); err != nil {
				slog.Error("HTTP server shutting down unexpectedly", "err", err)
				cancel()
			}
		}()

		exitSignals := make(chan os.Signal, 1)
		signal.Notify(exitSignals, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-exitSignals:
			logger.Info("received OS exit signal", "signal", sig)
		case <-ctx.Done():
		}

		if err := srv.Shutdown(); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("graceful shutdown complete")
		return nil
	},
}

var checkCmd = &cli.Command{
	Name:      "check",
	Usage:     "run a single action through the admission checks, with local state",
	ArgsUsage: "<actor> <action> [content]",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "context",
			Usage: "event context (title and description) for relevance checks",
		},
		&cli.StringFlag{
			Name:  "rules-json",
			Usage: "path to JSON file with per-action rate limit overrides",
		},
	},
	Action: func(cctx *cli.Context) error {
		logger, err := cliutil.SetupSlog(os.Stderr, cctx.String("log-level"), "text")
		if err != nil {
			return err
		}
		if cctx.Args().Len() < 2 {
			return fmt.Errorf("expected actor and action arguments")
		}
		srv, err := NewServer(Config{
			Logger:        logger,
			RulesFileJSON: cctx.String("rules-json"),
			Getenv:        os.Getenv,
		})
		if err != nil {
			return err
		}
		req := admitRequest{
			ActorID: cctx.Args().Get(0),
			Action:  cctx.Args().Get(1),
			Content: cctx.Args().Get(2),
			Context: cctx.String("context"),
		}
		status, body := srv.admit(cctx.Context, req)
		fmt.Printf("%d %s\n", status, mustJSON(body))
		return nil
	},
}

func serverConfig(cctx *cli.Context, logger *slog.Logger) Config {
	return Config{
		Logger:           logger,
		RedisURL:         cctx.String("redis-url"),
		DatabaseURL:      cctx.String("database-url"),
		MaxDBConnections: cctx.Int("max-metadb-connections"),
		DBTracing:        cctx.Bool("enable-db-tracing"),
		RulesFileJSON:    cctx.String("rules-json"),
		ThrottleDuration: cctx.Duration("throttle-duration"),
		StoreTimeout:     cctx.Duration("store-timeout"),
		SharedLedger:     cctx.Bool("shared-ledger"),
		LocalFallback:    cctx.Bool("local-fallback"),
		AdminToken:       cctx.String("admin-token"),
		MemoryRecords:    cctx.Int("memory-records"),
		Getenv:           os.Getenv,
	}
}
