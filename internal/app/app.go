// Package app wires configuration into the storage, sources, channels and
// scheduler shared by the daemon and the CLI.
package app

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/ogulcanaydogan/fare-guardian/internal/config"
	"github.com/ogulcanaydogan/fare-guardian/pkg/alerts"
	"github.com/ogulcanaydogan/fare-guardian/pkg/notify"
	"github.com/ogulcanaydogan/fare-guardian/pkg/pricesource"
	"github.com/ogulcanaydogan/fare-guardian/pkg/scheduler"
	"github.com/ogulcanaydogan/fare-guardian/pkg/storage"
)

// NewLogger creates a structured logger from config.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}

// OpenStorage creates the configured storage backend.
func OpenStorage(cfg *config.Config) (storage.Storage, error) {
	return storage.Open(cfg.Storage.Driver, cfg.Storage.Path, cfg.Storage.DSN)
}

// Sources builds the price source registry. A missing sources file yields a
// single unconfigured source that serves placeholder fares.
func Sources(cfg *config.Config, logger *slog.Logger) (*pricesource.Registry, []io.Closer, error) {
	var registry *pricesource.Registry

	file, err := pricesource.LoadSources(cfg.Sources.File)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Warn("no sources file, using placeholder fares", "path", cfg.Sources.File)
		registry = pricesource.NewRegistry()
		placeholder := pricesource.NewHTTPSource(pricesource.SourceConfig{Name: "placeholder"}, nil, logger)
		if err := registry.Register(placeholder); err != nil {
			return nil, nil, err
		}
	case err != nil:
		return nil, nil, err
	default:
		registry, err = pricesource.NewRegistryFromFile(file, logger)
		if err != nil {
			return nil, nil, err
		}
	}

	if cfg.Sources.Default != "" {
		if err := registry.SetDefault(cfg.Sources.Default); err != nil {
			return nil, nil, err
		}
	}

	var closers []io.Closer
	if cfg.Cache.Enabled {
		cache, err := pricesource.NewRedisCache(cfg.Cache.RedisAddr, cfg.Cache.Password, cfg.Cache.DB)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, cache)
		registry.Wrap(func(s pricesource.Source) pricesource.Source {
			return pricesource.NewCachedSource(s, cache, cfg.Cache.TTL, logger)
		})
	}
	return registry, closers, nil
}

// Channels creates the enabled delivery channels.
func Channels(cfg *config.Config) (*alerts.Channels, []io.Closer, error) {
	channels := alerts.NewChannels(cfg.Notify.DefaultChannel)
	var closers []io.Closer

	if tg := cfg.Channels.Telegram; tg.Enabled {
		if tg.Token == "" {
			return nil, nil, fmt.Errorf("channels.telegram.token is required when telegram is enabled")
		}
		bot, err := alerts.NewTelegramBot(tg.Token)
		if err != nil {
			return nil, nil, err
		}
		channels.Add(alerts.NewTelegramSender(bot))
	}

	if slack := cfg.Channels.Slack; slack.Enabled && slack.WebhookURL != "" {
		channels.Add(alerts.NewSlackSender(slack.WebhookURL, slack.Channel))
	}

	if wh := cfg.Channels.Webhook; wh.Enabled && wh.URL != "" {
		channels.Add(alerts.NewWebhookSender(wh.URL, wh.Secret))
	}

	if k := cfg.Channels.Kafka; k.Enabled {
		producer, err := alerts.NewKafkaProducer(k.Brokers)
		if err != nil {
			closeAll(closers)
			return nil, nil, err
		}
		sender := alerts.NewKafkaSender(producer, k.Topic)
		closers = append(closers, sender)
		channels.Add(sender)
	}

	return channels, closers, nil
}

// Engine is a fully wired alert monitoring engine.
type Engine struct {
	Store     storage.Storage
	Sources   *pricesource.Registry
	Channels  *alerts.Channels
	Notifier  *notify.Notifier
	Scheduler *scheduler.Scheduler

	closers []io.Closer
}

// NewEngine wires sources, channels, notifier and scheduler around store.
// The caller keeps ownership of store.
func NewEngine(cfg *config.Config, store storage.Storage, logger *slog.Logger, dryRun bool) (*Engine, error) {
	sources, sourceClosers, err := Sources(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init sources: %w", err)
	}

	channels, channelClosers, err := Channels(cfg)
	if err != nil {
		closeAll(sourceClosers)
		return nil, fmt.Errorf("init channels: %w", err)
	}
	if len(channels.Names()) == 0 && !dryRun {
		logger.Warn("no delivery channels enabled; matched deals will fail delivery")
	}

	opts := scheduler.Options{
		InterAlertDelay:       cfg.Scheduler.InterAlertDelay,
		PurgeHour:             cfg.Scheduler.PurgeHour,
		DealRetention:         cfg.Scheduler.DealRetention,
		NotificationRetention: cfg.Scheduler.NotificationRetention,
		DryRun:                dryRun,
	}

	notifier := notify.NewNotifier(store, channels, cfg.Notify.Cooldown, logger)
	return &Engine{
		Store:     store,
		Sources:   sources,
		Channels:  channels,
		Notifier:  notifier,
		Scheduler: scheduler.New(store, sources, notifier, opts, logger),
		closers:   append(sourceClosers, channelClosers...),
	}, nil
}

// Close releases cache and producer connections.
func (e *Engine) Close() error {
	return closeAll(e.closers)
}

func closeAll(closers []io.Closer) error {
	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

