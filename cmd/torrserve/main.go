package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"

	"torrserve/internal/app"
	cacheredis "torrserve/internal/cache/redis"
	"torrserve/internal/engine"
	"torrserve/internal/metrics"
	mongorepo "torrserve/internal/repository/mongo"
	"torrserve/internal/telemetry"
	"torrserve/internal/transport"
)

const serviceName = "torrserve"

// runtime is the process-wide state built once before any subcommand runs.
type runtime struct {
	cfg     app.Config
	logger  *slog.Logger
	ec      *engine.Context
	history historyStore
	closers []func(context.Context) error
}

func (rt *runtime) serverURL() string {
	return engine.ServerURL(rt.cfg.Host, rt.cfg.Port)
}

func (rt *runtime) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil && rt.logger != nil {
			rt.logger.Debug("shutdown step failed", slog.String("error", err.Error()))
		}
	}
}

func newRootCommand() (*cobra.Command, *runtime) {
	rt := &runtime{cfg: app.LoadConfig()}

	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Client for TorrServer v1 and MatriX servers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.init(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&rt.cfg.Host, "host", rt.cfg.Host, "TorrServer host")
	flags.IntVar(&rt.cfg.Port, "port", rt.cfg.Port, "TorrServer port")
	flags.StringVar(&rt.cfg.Login, "login", rt.cfg.Login, "basic auth login")
	flags.StringVar(&rt.cfg.Password, "password", rt.cfg.Password, "basic auth password")
	flags.BoolVar(&rt.cfg.Persist, "save", rt.cfg.Persist, "keep added torrents in the server database")
	flags.StringVar(&rt.cfg.LogLevel, "log-level", rt.cfg.LogLevel, "debug|info|warn|error")

	root.AddCommand(
		newVersionCommand(rt),
		newAddCommand(rt),
		newUploadCommand(rt),
		newListCommand(rt),
		newStatCommand(rt),
		newFilesCommand(rt),
		newPlayCommand(rt),
		newDropCommand(rt),
		newRemoveCommand(rt),
		newHistoryCommand(rt),
	)
	return root, rt
}

func (rt *runtime) init(ctx context.Context) error {
	rt.logger = newLogger(rt.cfg.LogLevel, rt.cfg.LogFormat)
	slog.SetDefault(rt.logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: serviceName,
		Endpoint:    rt.cfg.OTLPEndpoint,
		SampleRatio: rt.cfg.TraceSample,
	})
	if err != nil {
		rt.logger.Warn("otel init failed", slog.String("error", err.Error()))
	} else {
		rt.closers = append(rt.closers, shutdownTracer)
	}

	if addr := strings.TrimSpace(rt.cfg.MetricsAddr); addr != "" {
		rt.serveMetrics(addr)
	}

	opts := engine.Options{
		Transport: transport.NewHTTPClient(transport.Config{
			Timeout:   rt.cfg.RequestTimeout,
			Login:     rt.cfg.Login,
			Password:  rt.cfg.Password,
			RateLimit: rt.cfg.RateLimit,
		}),
		Logger:  rt.logger,
		Persist: rt.cfg.Persist,
	}
	if store := rt.connectRedis(ctx); store != nil {
		opts.M3U = store
	}
	rt.ec = engine.NewContext(opts)
	rt.connectMongo(ctx)

	rt.logger.Debug("configuration loaded",
		slog.String("server", rt.serverURL()),
		slog.Bool("persist", rt.cfg.Persist),
		slog.String("logLevel", rt.cfg.LogLevel),
		slog.Bool("history", rt.history != nil),
	)
	return nil
}

func (rt *runtime) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.logger.Warn("metrics listener failed", slog.String("addr", addr), slog.String("error", err.Error()))
		}
	}()
	rt.closers = append(rt.closers, srv.Shutdown)
}

func (rt *runtime) connectRedis(ctx context.Context) engine.M3UStore {
	redisURL := strings.TrimSpace(rt.cfg.RedisURL)
	if redisURL == "" {
		return nil
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		rt.logger.Warn("invalid redis url, using in-memory playlists", slog.String("error", err.Error()))
		return nil
	}
	client := redis.NewClient(redisOpts)
	store := cacheredis.NewM3UStore(client, 0)
	if err := store.Ping(ctx); err != nil {
		rt.logger.Warn("redis not reachable, using in-memory playlists", slog.String("error", err.Error()))
		_ = client.Close()
		return nil
	}
	rt.closers = append(rt.closers, func(context.Context) error { return client.Close() })
	rt.logger.Debug("redis connected", slog.String("addr", redisOpts.Addr))
	return store
}

func (rt *runtime) connectMongo(ctx context.Context) {
	uri := strings.TrimSpace(rt.cfg.MongoURI)
	if uri == "" {
		return
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongorepo.Connect(connectCtx, uri, options.Client().SetMonitor(otelmongo.NewMonitor()))
	if err != nil {
		rt.logger.Warn("mongo connect failed, history disabled", slog.String("error", err.Error()))
		return
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		rt.logger.Warn("mongo ping failed, history disabled", slog.String("error", err.Error()))
		_ = client.Disconnect(context.Background())
		return
	}
	rt.closers = append(rt.closers, client.Disconnect)

	repo := mongorepo.NewHistoryRepository(client, rt.cfg.MongoDB)
	if err := repo.EnsureIndexes(connectCtx); err != nil {
		rt.logger.Warn("mongo ensure indexes failed", slog.String("error", err.Error()))
	}
	rt.history = repo
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: parseLogLevel(levelRaw)}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, handlerOpts))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, rt := newRootCommand()
	err := root.ExecuteContext(ctx)
	rt.close()
	if err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
