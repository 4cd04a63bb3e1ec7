package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"mailwatch/internal/config"
	"mailwatch/internal/notify"
	"mailwatch/internal/sources/gmail"
	"mailwatch/internal/sources/imapsrc"
	"mailwatch/internal/sources/outlook"
	"mailwatch/internal/state"
	"mailwatch/internal/watch"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	setupLogging(cfg.Logging)

	log.Info().Msg("Starting mailwatch daemon")

	dispatcher, err := notify.New(cfg.Notify)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize notification dispatcher")
	}

	// Optional durable cursor/dedup snapshots
	var store *state.Store
	if cfg.State.Enabled {
		store, err = state.Open(cfg.State.Path)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open state store")
		}
		defer store.Close()
		log.Info().Str("path", cfg.State.Path).Msg("State store enabled")
	}

	manager := watch.NewManager(storeOrNil(store))

	// A source that fails to initialize is skipped; its siblings keep going.

	if cfg.Sources.IMAP.Enabled {
		cursor, _ := loadState(store, "imap")
		src, err := imapsrc.New(cfg.Sources.IMAP, dispatcher, cursor)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize IMAP source (skipping)")
		} else {
			manager.RegisterPush(src)
		}
	}

	if cfg.Sources.Gmail.Enabled {
		_, seen := loadState(store, "gmail")
		src, err := gmail.New(cfg.Sources.Gmail, dispatcher, seen)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize Gmail source (skipping)")
		} else {
			manager.RegisterPoll(src)
		}
	}

	if cfg.Sources.Outlook.Enabled {
		_, seen := loadState(store, "outlook")
		src, err := outlook.New(cfg.Sources.Outlook, dispatcher, seen)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize Outlook source (skipping)")
		} else {
			manager.RegisterPoll(src)
		}
	}

	if manager.Sources() == 0 {
		log.Fatal().Msg("No sources could be started")
	}

	// Handle shutdown gracefully
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info().Msg("Shutting down...")
		cancel()
	}()

	if err := manager.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Watch manager failed")
	}

	log.Info().Msg("Daemon stopped")
}

// storeOrNil avoids handing the manager a non-nil interface wrapping a nil
// pointer.
func storeOrNil(s *state.Store) watch.StateStore {
	if s == nil {
		return nil
	}
	return s
}

func loadState(s *state.Store, source string) (uint32, []string) {
	if s == nil {
		return 0, nil
	}
	cursor, seen, err := s.Load(source)
	if err != nil {
		log.Warn().Err(err).Str("source", source).Msg("Failed to load saved state, starting fresh")
		return 0, nil
	}
	return cursor, seen
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var output = os.Stdout
	if cfg.Path != "" {
		file, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to open log file, using stdout")
		} else {
			output = file
		}
	}

	if cfg.Format == "console" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	}
}
