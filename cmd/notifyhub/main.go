package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/notifyhub/modules/notify"
	"github.com/dmitrymomot/notifyhub/pkg/adapter"
	"github.com/dmitrymomot/notifyhub/pkg/bus"
	"github.com/dmitrymomot/notifyhub/pkg/config"
	"github.com/dmitrymomot/notifyhub/pkg/dispatch"
	"github.com/dmitrymomot/notifyhub/pkg/httpserver"
	"github.com/dmitrymomot/notifyhub/pkg/live"
	"github.com/dmitrymomot/notifyhub/pkg/logger"
	"github.com/dmitrymomot/notifyhub/pkg/mongo"
	"github.com/dmitrymomot/notifyhub/pkg/notification"
	"github.com/dmitrymomot/notifyhub/pkg/pg"
	"github.com/dmitrymomot/notifyhub/pkg/preference"
	"github.com/dmitrymomot/notifyhub/pkg/redis"
	"github.com/dmitrymomot/notifyhub/pkg/template"
)

type appConfig struct {
	HTTP httpserver.Config
	PG   pg.Config
	Live live.TokenConfig

	// RedisBusEnabled switches the event bus from in-process to Redis
	// Pub/Sub for multi-instance deployments.
	RedisBusEnabled bool `env:"BUS_REDIS_ENABLED" envDefault:"false"`

	// StorageDriver selects the feed store. Preferences and delivery jobs
	// stay in PostgreSQL either way.
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"postgres"`

	// TemplatesPath points at a YAML catalog overlaid on the embedded
	// defaults. Empty means defaults only.
	TemplatesPath string `env:"TEMPLATES_PATH"`

	// DevMailDir enables the file-based mailer when no Postmark
	// credentials are configured.
	DevMailDir string `env:"DEV_MAIL_DIR"`

	Workers int `env:"DISPATCH_WORKERS" envDefault:"4"`
}

func main() {
	var logCfg logger.Config
	config.MustLoad(&logCfg)
	log := logger.NewFromConfig(logCfg)
	logger.SetAsDefault(log)

	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		log.Error("invalid configuration", logger.Error(err))
		os.Exit(1)
	}

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("notifyhub exited", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, cfg.PG, log); err != nil {
		return err
	}

	prefs := preference.NewResolver(preference.NewPostgresStore(pool))
	jobs := dispatch.NewPostgresJobStore(pool)

	healthchecks := []func(context.Context) error{pg.Healthcheck(pool)}

	var storage notification.Storage
	switch cfg.StorageDriver {
	case "mongo":
		var mongoCfg mongo.Config
		if err := config.Load(&mongoCfg); err != nil {
			return err
		}
		db, err := mongo.Connect(ctx, mongoCfg)
		if err != nil {
			return err
		}
		defer db.Client().Disconnect(context.Background()) //nolint:errcheck
		storage, err = notification.NewMongoStorage(ctx, db)
		if err != nil {
			return err
		}
	default:
		storage = notification.NewPostgresStorage(pool)
	}

	var eventBus bus.Bus
	if cfg.RedisBusEnabled {
		var redisCfg redis.Config
		if err := config.Load(&redisCfg); err != nil {
			return err
		}
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return err
		}
		defer client.Close() //nolint:errcheck
		eventBus = bus.NewRedisBus(client)
		healthchecks = append(healthchecks, redis.Healthcheck(client))
	} else {
		eventBus = bus.NewMemoryBus()
	}
	defer eventBus.Close() //nolint:errcheck

	renderer, err := buildRenderer(cfg.TemplatesPath)
	if err != nil {
		return err
	}

	ingestor := notification.NewIngestor(storage, renderer, notification.WithIngestorLogger(log))
	dispatcher := dispatch.NewDispatcher(prefs, storage, jobs, eventBus,
		dispatch.WithDispatcherLogger(log))

	worker, err := dispatch.NewWorker(jobs, storage, prefs, renderer, buildAdapters(cfg, storage, log),
		dispatch.WithConcurrency(cfg.Workers),
		dispatch.WithWorkerLogger(log))
	if err != nil {
		return err
	}

	tokens, err := live.NewTokenIssuer(cfg.Live)
	if err != nil {
		return err
	}
	manager := live.NewManager(eventBus, storage, tokens, live.WithManagerLogger(log))

	r := chi.NewRouter()
	r.Get("/health", httpserver.HealthCheckHandler(ctx, log, healthchecks...))
	r.Mount("/", notify.Router(notify.RouterOptions{
		API:  notify.NewService(ingestor, dispatcher, storage, prefs, notify.WithServiceLogger(log)),
		Live: notify.NewLiveService(tokens, manager),
	}))

	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(worker.Run(ctx))
	g.Go(func() error {
		return srv.Run(ctx, r)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return manager.Shutdown(shutdownCtx)
	})

	log.InfoContext(ctx, "notifyhub started",
		slog.String("addr", cfg.HTTP.Addr),
		slog.Int("workers", cfg.Workers),
		slog.Bool("redis_bus", cfg.RedisBusEnabled))

	return g.Wait()
}

// buildRenderer loads the embedded catalog and overlays the deployment's
// own templates when TEMPLATES_PATH is set.
func buildRenderer(overlayPath string) (*template.Renderer, error) {
	catalog, err := template.DefaultCatalog()
	if err != nil {
		return nil, err
	}

	if overlayPath != "" {
		dir, file := filepath.Split(overlayPath)
		if dir == "" {
			dir = "."
		}
		overlay, err := template.LoadCatalog(os.DirFS(dir), file)
		if err != nil {
			return nil, err
		}
		catalog = catalog.Merge(overlay)
	}

	renderer, err := template.NewRenderer(catalog)
	if err != nil {
		return nil, err
	}
	// A category/channel gap must stop the boot; discovered at dispatch
	// time it would burn a user's first delivery on that channel.
	if err := renderer.Validate(); err != nil {
		return nil, err
	}
	return renderer, nil
}

// buildAdapters wires every channel whose vendor is configured. The in-app
// adapter is always present; others log and stay out when their
// configuration is missing.
func buildAdapters(cfg appConfig, storage notification.Storage, log *slog.Logger) []adapter.Adapter {
	directory := adapter.NewMemoryDirectory()
	adapters := []adapter.Adapter{adapter.NewInApp(storage)}

	var mailCfg adapter.MailConfig
	if err := config.Load(&mailCfg); err == nil && mailCfg.PostmarkServerToken != "" {
		mailer, err := adapter.NewMailer(mailCfg, directory)
		if err != nil {
			log.Warn("mail adapter disabled", logger.Error(err))
		} else {
			adapters = append(adapters, mailer)
		}
	} else if cfg.DevMailDir != "" {
		adapters = append(adapters, adapter.NewDevMailer(cfg.DevMailDir, directory))
	} else {
		log.Warn("mail adapter disabled: no postmark credentials or dev mail dir")
	}

	var smsCfg adapter.SMSConfig
	if err := config.Load(&smsCfg); err != nil {
		log.Warn("sms adapter disabled", logger.Error(err))
	} else if client, err := adapter.NewSMSClient(smsCfg, directory); err != nil {
		log.Warn("sms adapter disabled", logger.Error(err))
	} else {
		adapters = append(adapters, client)
	}

	var pushCfg adapter.PushConfig
	if err := config.Load(&pushCfg); err != nil {
		log.Warn("push adapter disabled", logger.Error(err))
	} else if client, err := adapter.NewPushClient(pushCfg, directory); err != nil {
		log.Warn("push adapter disabled", logger.Error(err))
	} else {
		adapters = append(adapters, client)
	}

	return adapters
}
