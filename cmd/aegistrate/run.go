package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/keshon/aegistrate/internal/command"
	"github.com/keshon/aegistrate/internal/config"
	"github.com/keshon/aegistrate/internal/cooldown"
	"github.com/keshon/aegistrate/internal/discord"
	"github.com/keshon/aegistrate/internal/dispatch"
	"github.com/keshon/aegistrate/internal/logging"
	"github.com/keshon/aegistrate/internal/plugins"
	"github.com/keshon/aegistrate/internal/registration"
	"github.com/keshon/aegistrate/internal/startup"
	"github.com/keshon/aegistrate/internal/storage"
)

const sweepInterval = time.Minute

// run resolves configuration, connects within the startup timeout,
// registers commands and then serves interactions until ctx is done.
func run(ctx context.Context, configPath string) error {
	began := time.Now()

	cfg, err := (&config.Resolver{Path: configPath}).Resolve(ctx)
	if err != nil {
		return err
	}
	logs, err := logging.Setup(logging.Options{Level: cfg.LogLevel, Dir: cfg.LogDir, Console: os.Stdout})
	if err != nil {
		return err
	}
	defer logs.Close()
	log.Info().Object("config", cfg).Msg("configuration resolved")

	bot, err := discord.New(cfg.BotToken)
	if err != nil {
		return err
	}
	defer func() {
		if err := bot.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close gateway session")
		}
	}()

	var (
		store    storage.Store
		catalog  *command.Catalog
		engine   *dispatch.Engine
		tracker  *cooldown.Tracker
		counters = &dispatch.Counters{}
	)
	err = startup.Sequence(ctx, began, began.Add(cfg.StartupTimeout),
		startup.Step{Name: "store", Run: func(ctx context.Context) error {
			s, err := storage.Open(ctx, cfg.StoreURI)
			if err != nil {
				return err
			}
			store = s
			return nil
		}},
		startup.Step{Name: "catalog", Run: func(context.Context) error {
			c, err := buildCatalog(plugins.Deps{
				Store:      store,
				Moderator:  discord.NewModerator(bot.Session()),
				Authorizer: discord.NewPermissions(bot.Session()),
				Pinger:     bot,
				Counters:   counters,
				Started:    began,
			})
			if err != nil {
				return err
			}
			catalog = c
			tracker = cooldown.NewTracker(catalog)
			engine = dispatch.NewEngine(catalog, tracker,
				dispatch.WithPluginFilter(dispatch.StoreFilter{Source: store}),
				dispatch.WithCounters(counters),
			)
			bot.Attach(engine)
			log.Info().Int("commands", catalog.Len()).Msg("command catalog built")
			return nil
		}},
		startup.Step{Name: "gateway", Run: bot.Open},
	)
	if errors.Is(err, startup.ErrStartupTimeout) {
		// Abandoned steps may still be running.
		return err
	}
	if store != nil {
		defer func() {
			if err := store.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close store")
			}
		}()
	}
	if err != nil {
		return err
	}

	report, err := registration.New(discord.NewPlatform(bot.Session(), cfg.GuildID)).Synchronize(ctx, catalog)
	if err != nil {
		return err
	}
	if len(report.Failures) > 0 {
		log.Warn().Int("failed", len(report.Failures)).Msg("some commands could not be synchronized and may be unavailable")
	}

	engine.MarkReady()
	if err := bot.SetOnline(); err != nil {
		log.Warn().Err(err).Msg("failed to set presence")
	}
	log.Info().Dur("startup", time.Since(began)).Msg("serving commands")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tracker.RunSweeper(gctx, sweepInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutdown signal received, cleaning up...")
		return bot.Close()
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("serve: %w", err)
	}

	s := engine.Stats()
	log.Info().Int64("completed", s.Completed).Int64("failed", s.Failed).Int64("blocked", s.Blocked).Msg("bot exited cleanly")
	return nil
}
