package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/protohackers/cacher"
	"github.com/cyberinferno/protohackers/chat"
	"github.com/cyberinferno/protohackers/config"
	"github.com/cyberinferno/protohackers/echo"
	"github.com/cyberinferno/protohackers/isl"
	"github.com/cyberinferno/protohackers/jobcentre"
	"github.com/cyberinferno/protohackers/kvdb"
	"github.com/cyberinferno/protohackers/kvstore"
	"github.com/cyberinferno/protohackers/logger"
	"github.com/cyberinferno/protohackers/lrcp"
	"github.com/cyberinferno/protohackers/means"
	"github.com/cyberinferno/protohackers/metrics"
	"github.com/cyberinferno/protohackers/mitm"
	"github.com/cyberinferno/protohackers/primetime"
	"github.com/cyberinferno/protohackers/tcpclient"
	"github.com/cyberinferno/protohackers/tcpserver"
	"github.com/cyberinferno/protohackers/udpserver"
	"github.com/cyberinferno/protohackers/vcs"
)

// runner is a server that serves until its context is done.
type runner interface {
	Run(ctx context.Context) error
}

type serveFlags struct {
	config      string
	listen      string
	logLevel    string
	metricsAddr string
}

func serveCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve <service|number>",
		Short: "Run one service",
		Long: `Run one service until SIGINT or SIGTERM.

Settings come from the built-in defaults, then the YAML file given by
--config, then the flags below.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := config.LookupService(args[0])
			if err != nil {
				return err
			}

			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, svc, cfg)
		},
	}

	cmd.Flags().StringVarP(&flags.config, "config", "c", "", "YAML config file")
	cmd.Flags().StringVarP(&flags.listen, "listen", "l", "", "Listen address (default 0.0.0.0:1200)")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve /metrics and /healthz on this address")

	return cmd
}

// loadConfig reads the config file and applies the flags that were set.
func loadConfig(cmd *cobra.Command, flags serveFlags) (config.Config, error) {
	cfg, err := config.Load(flags.config)
	if err != nil {
		return cfg, err
	}

	if cmd.Flags().Changed("listen") {
		cfg.Listen = flags.listen
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = flags.logLevel
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.Metrics.Addr = flags.metricsAddr
	}

	return cfg, cfg.Validate()
}

func serve(ctx context.Context, svc config.Service, cfg config.Config) error {
	log, err := logger.New(logger.Config{
		Service: svc.Name,
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Dir:     cfg.Log.Dir,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	var client *redis.Client
	if cfg.UsesRedis(svc.Name) {
		client, err = connectRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()
	}

	reg := metrics.NewRegistry()
	srv, err := newService(svc, cfg, log, reg, client)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})
	if cfg.Metrics.Addr != "" {
		ms := &metrics.Server{Logger: log, Addr: cfg.Metrics.Addr, Gatherer: reg}
		g.Go(func() error {
			return ms.Run(ctx)
		})
	}

	return g.Wait()
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return client, nil
}

// newService builds the server for svc. client is nil unless the service's
// backend is redis.
func newService(svc config.Service, cfg config.Config, log logger.Logger, reg prometheus.Registerer, client *redis.Client) (runner, error) {
	tcp := func(newSession tcpserver.NewSessionFunc) runner {
		srv := tcpserver.New(svc.Name, cfg.Listen, log, newSession)
		srv.Metrics = tcpserver.NewMetrics(reg)
		return srv
	}

	switch svc.Name {
	case "echo":
		return tcp(echo.NewSessionFunc(log)), nil

	case "primetime":
		cache, err := cacher.New[bool](cfg.PrimeTime.Cache, client, "primetime:")
		if err != nil {
			return nil, err
		}
		return tcp(primetime.NewSessionFunc(primetime.NewChecker(cache, cfg.PrimeTime.CacheTTL), log)), nil

	case "means":
		return tcp(means.NewSessionFunc(log)), nil

	case "chat":
		return tcp(chat.NewSessionFunc(chat.NewRoom(), log)), nil

	case "kvdb":
		store, err := kvstore.New(cfg.Database.Backend, client, "kvdb:")
		if err != nil {
			return nil, err
		}
		srv := kvdb.NewServer(cfg.Listen, kvdb.New(store, cfg.Database.Version, log), log)
		srv.Metrics = udpserver.NewMetrics(reg)
		return srv, nil

	case "proxy":
		upstream := tcpclient.DefaultConfig(cfg.Proxy.Upstream)
		upstream.DialTimeout = cfg.Proxy.DialTimeout
		upstream.MaxDialRetry = cfg.Proxy.MaxDialRetry
		return tcp(mitm.NewSessionFunc(mitm.Config{
			Upstream:      cfg.Proxy.Upstream,
			TargetAddress: cfg.Proxy.TargetAddress,
			Client:        upstream,
		}, log)), nil

	case "lrcp":
		srv := lrcp.NewServer(cfg.Listen, cfg.LRCP, lrcp.LineReverser{}, log, lrcp.NewMetrics(reg))
		srv.UDP().Metrics = udpserver.NewMetrics(reg)
		return srv, nil

	case "isl":
		return tcp(isl.NewSessionFunc(log)), nil

	case "jobs":
		return tcp(jobcentre.NewSessionFunc(jobcentre.NewCentre(), log)), nil

	case "vcs":
		return tcp(vcs.NewSessionFunc(vcs.NewRepo(), cfg.Storage.MaxFileSize, log)), nil

	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownService, svc.Name)
	}
}
