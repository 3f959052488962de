package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/seb-lau/tubeamp/internal/cache"
	"github.com/seb-lau/tubeamp/internal/config"
	"github.com/seb-lau/tubeamp/internal/extract"
	"github.com/seb-lau/tubeamp/internal/fetch"
	"github.com/seb-lau/tubeamp/internal/history"
	"github.com/seb-lau/tubeamp/internal/logging"
	"github.com/seb-lau/tubeamp/internal/orchestrator"
	"github.com/seb-lau/tubeamp/internal/player"
	"github.com/seb-lau/tubeamp/internal/queue"
	"github.com/seb-lau/tubeamp/internal/ui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	configPath := flag.String("config", config.DefaultPath(), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	closeLog, err := logging.Init(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	c, err := cache.New(cfg.Cache.Dir, cfg.CacheTTL())
	if err != nil {
		return err
	}

	extractor, err := extract.New(extract.Options{
		Binary:      cfg.Extractor.Binary,
		CookiesFrom: cfg.Extractor.CookiesFrom,
	})
	if err != nil {
		return err
	}

	fetcher := fetch.NewFetcher(extractor, c, cfg.FetchTimeout())
	sched := fetch.NewScheduler(fetcher, c, fetch.Config{
		MaxConcurrent: cfg.Fetch.MaxConcurrent,
		MaxAttempts:   cfg.Fetch.MaxAttempts,
		Cooldown:      cfg.FetchCooldown(),
	})
	defer sched.Close()

	engine := player.NewEngine(player.OtoDevice{}, cfg.InitialVolume())
	q := queue.New(cfg.Session.HistoryCap)
	store := history.NewStore(cfg.Session.File)
	orch := orchestrator.New(q, sched, engine, c, store, orchestrator.Config{
		WindowSize: cfg.Fetch.WindowSize,
	})

	model := ui.New(orch, c, extractor, ui.Options{
		SeekStep:     cfg.SeekStep(),
		VolumeStep:   cfg.VolumeStepFraction(),
		SearchMax:    cfg.Search.MaxResults,
		SaveDir:      cfg.Save.Dir,
		InitialQuery: strings.Join(flag.Args(), " "),
	})
	program := tea.NewProgram(model, tea.WithAltScreen())

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return orch.Run(ctx) })
	g.Go(func() error { return c.Run(ctx, cfg.SweepInterval()) })

	_, uiErr := program.Run()

	cancel()
	if err := g.Wait(); err != nil && err != context.Canceled {
		zlog.Warn().Err(err).Msg("background shutdown")
	}
	return uiErr
}
