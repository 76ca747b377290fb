package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"taskflow/internal/ai"
	"taskflow/internal/cache"
	"taskflow/internal/config"
	"taskflow/internal/db"
	"taskflow/internal/engine"
	"taskflow/internal/events"
	"taskflow/internal/lifecycle"
	"taskflow/internal/logger"
	"taskflow/internal/migrate"
	"taskflow/internal/notify"
	"taskflow/internal/scheduler"
)

// Options carries values resolved from flags and the environment. Non-empty
// values override the config file.
type Options struct {
	Workspace  string
	ConfigPath string
	RedisURL   string
	AIAPIKey   string
	LogLevel   string
	Logger     *zap.Logger
}

// App is the composition root shared by the CLI and the HTTP server.
type App struct {
	Workspace  string
	Config     *config.Config
	DB         *sql.DB
	Engine     engine.Engine
	Notify     notify.Service
	Dispatcher *events.Dispatcher
	Hub        *events.Hub
	Outbox     *events.Outbox
	Webhooks   *events.Webhooks
	Redis      *redislib.Client
	Logger     *zap.Logger

	prefix string
}

func loadConfig(opts Options) (*config.Config, error) {
	if opts.ConfigPath != "" {
		return config.FromFile(opts.ConfigPath)
	}
	return config.LoadOptional(opts.Workspace)
}

// Open loads configuration, migrates the database and wires every component.
// Background workers are not started; see Start.
func Open(ctx context.Context, opts Options) (*App, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.RedisURL != "" {
		cfg.Redis.URL = opts.RedisURL
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	log := opts.Logger
	if log == nil {
		if log, err = logger.New(logger.Config{Level: cfg.Logging.Level, Encoding: cfg.Logging.Encoding}); err != nil {
			return nil, err
		}
	}

	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := migrate.Apply(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	a := &App{Workspace: opts.Workspace, Config: cfg, DB: conn, Logger: log}
	a.prefix = strings.TrimSuffix(cfg.Redis.ChannelPrefix, ":") + ":events"
	if cfg.Redis.ChannelPrefix == "" {
		a.prefix = events.DefaultChannelPrefix
	}

	eng := engine.New(conn, cfg)
	eng.Logger = log
	a.Hub = events.NewHub(cfg.Server.AllowedOrigins, log.Named("ws"))

	var publishers []events.Publisher
	if cfg.Redis.URL != "" {
		client, err := cache.NewClient(cfg.Redis.URL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.Redis = client
		eng.Cache = cache.New(client, cfg.CacheTTL(), log.Named("cache"))
		// Remote instances and this one both receive through the bridge, so
		// the hub is not a direct publisher here.
		publishers = append(publishers, events.RedisPublisher{Client: client, Prefix: a.prefix})
	} else {
		publishers = append(publishers, a.Hub)
	}

	outboxPath := cfg.Events.OutboxPath
	if outboxPath == "" {
		outboxPath = db.DataPath(opts.Workspace, "outbox.db")
	}
	if a.Outbox, err = events.OpenOutbox(outboxPath); err != nil {
		a.Close()
		return nil, fmt.Errorf("open outbox: %w", err)
	}

	a.Dispatcher = &events.Dispatcher{
		Writer:     &events.Writer{Repo: eng.Repo},
		Publishers: publishers,
		Outbox:     a.Outbox,
		Logger:     log.Named("events"),
		MaxRetries: cfg.Events.MaxRetries,
	}
	a.Notify = notify.Service{Repo: eng.Repo, Emitter: a.Dispatcher, Logger: log.Named("notify")}
	eng.Events = a.Dispatcher
	eng.Notify = a.Notify
	eng.AI = newAIClient(cfg, opts.AIAPIKey)
	a.Webhooks = events.NewWebhooks(eng.Repo, cfg.Events.Webhooks, log.Named("webhooks"))
	a.Engine = eng
	return a, nil
}

func newAIClient(cfg *config.Config, apiKey string) ai.Client {
	if !cfg.AI.Enabled || apiKey == "" {
		return ai.Disabled{}
	}
	timeout := time.Duration(cfg.AI.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return ai.NewOpenAI(&http.Client{Timeout: timeout}, cfg.AI.BaseURL, apiKey, cfg.AI.Model)
}

// Start launches the scheduler, the Redis bridge and the webhook poller and
// registers their shutdown with lc.
func (a *App) Start(ctx context.Context, lc *lifecycle.Manager) error {
	sched, err := scheduler.New(a.Engine, a.Dispatcher, a.Logger.Named("scheduler"), scheduler.Config{
		SweepInterval: a.Config.OverdueSweepInterval(),
		DrainInterval: a.Config.DrainInterval(),
	})
	if err != nil {
		return err
	}
	sched.Start()
	lc.Register("scheduler", sched.Stop)

	workerCtx, cancel := context.WithCancel(ctx)
	lc.Register("workers", func(context.Context) error {
		cancel()
		return nil
	})

	if a.Redis != nil {
		bridge := events.Bridge{Client: a.Redis, Prefix: a.prefix, Hub: a.Hub, Logger: a.Logger.Named("bridge")}
		ready := make(chan struct{})
		errCh := make(chan error, 1)
		go func() { errCh <- bridge.Run(workerCtx, ready) }()
		select {
		case <-ready:
		case err := <-errCh:
			return fmt.Errorf("redis bridge: %w", err)
		case <-time.After(5 * time.Second):
			return errors.New("redis bridge: subscribe timed out")
		}
		go func() {
			if err := <-errCh; err != nil {
				a.Logger.Error("redis bridge stopped", zap.Error(err))
			}
		}()
	}
	go a.Webhooks.Run(workerCtx)
	return nil
}

// Close flushes pending publishes, then releases the outbox, Redis and the
// database.
func (a *App) Close() error {
	var result error
	if a.Dispatcher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		result = errors.Join(result, a.Dispatcher.Close(ctx))
		cancel()
	}
	if a.Outbox != nil {
		result = errors.Join(result, a.Outbox.Close())
	}
	if a.Redis != nil {
		result = errors.Join(result, a.Redis.Close())
	}
	if a.DB != nil {
		result = errors.Join(result, a.DB.Close())
	}
	return result
}
