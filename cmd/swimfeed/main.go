// swimfeed ingests FAA SWIM feeds (SFDPS en-route, ASDE-X surface, STARS
// terminal, TDLS tower), merges them into a single flight picture, and serves
// it over REST and live streams.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"swimfeed/internal/adsb"
	"swimfeed/internal/api"
	"swimfeed/internal/config"
	"swimfeed/internal/correlate"
	"swimfeed/internal/decode"
	"swimfeed/internal/fanout"
	"swimfeed/internal/logging"
	"swimfeed/internal/nasr"
	"swimfeed/internal/persist"
	"swimfeed/internal/route"
	"swimfeed/internal/state"
	"swimfeed/internal/swim"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "", "path to JSON config file")
		listen     = pflag.String("listen", "", "HTTP listen address (overrides config)")
		logFile    = pflag.String("log-file", "", "rotated log file (overrides config)")
		logLevel   = pflag.String("log-level", "", "debug, info, warn or error (overrides config)")
		console    = pflag.Bool("console", false, "mirror logs to stderr when logging to a file")
	)
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *logFile != "" {
		cfg.LogFile = *logFile
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	log := logging.New(logging.Config{File: cfg.LogFile, Level: cfg.LogLevel, Console: *console})

	if err := run(cfg, log); err != nil {
		log.Error("exiting", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := state.NewStore()
	tel := decode.NewTelemetry()

	gates, err := correlate.NewGateCodes(cfg.GateCodesFile)
	if err != nil {
		return fmt.Errorf("gate codes: %w", err)
	}
	corr := correlate.New(store, gates)
	hub := fanout.NewHub(store, corr, fanout.Options{}, log)

	nasrMgr := nasr.NewManager(cfg.NASRDir, nil, log)
	resolver := route.NewResolver(nasrMgr.Index)
	nasrMgr.OnSwap(resolver.ClearCache)

	adsbClient := adsb.NewClient(cfg.ADSBBaseURL, nil)
	enricher := adsb.NewEnricher(adsbClient, store, cfg.Regions, 0, log)
	injector := adsb.NewInjector(adsbClient, store, cfg.Coverage, 0, log)

	var history *persist.History
	if cfg.HistoryDB != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.HistoryDB), 0o755); err != nil {
			return fmt.Errorf("history dir: %w", err)
		}
		history, err = persist.OpenHistory(cfg.HistoryDB)
		if err != nil {
			log.Warn("history index unavailable", "path", cfg.HistoryDB, "error", err)
		} else {
			defer history.Close()
		}
	}

	archive := persist.NewArchive(cfg.ArchiveDir, cfg.ArchiveBudget, history, log)
	hub.OnFlightPurge(archive.Append)

	cache := persist.NewCache(cfg.CacheDir, store, log)
	if n, err := cache.Load(); err != nil {
		log.Warn("warm cache not restored", "error", err)
	} else if n > 0 {
		log.Info("warm cache restored", "flights", n)
	}

	feed := swim.New(store, tel, log)
	feed.AddEnRoute(swim.SessionConfig{
		Name:     "enroute",
		URL:      cfg.EnRoute.URL,
		User:     cfg.EnRoute.User,
		Pass:     cfg.EnRoute.Pass,
		Queue:    cfg.EnRoute.Queue,
		Subjects: cfg.EnRoute.Subjects,
	})
	feed.AddTerminalSurface(swim.SessionConfig{
		Name:     "tracks",
		URL:      cfg.Tracks.URL,
		User:     cfg.Tracks.User,
		Pass:     cfg.Tracks.Pass,
		Queue:    cfg.Tracks.Queue,
		Subjects: cfg.Tracks.Subjects,
	})

	heartbeat := persist.NewHeartbeat(hub, store, func() []persist.SessionStatus {
		statuses := feed.Statuses()
		out := make([]persist.SessionStatus, len(statuses))
		for i, st := range statuses {
			out[i] = persist.SessionStatus{
				Name:        st.Name,
				Connected:   st.Connected,
				Messages:    st.Messages,
				LastMessage: st.LastMessage,
			}
		}
		return out
	}, log)

	srv := &api.Server{
		Store:    store,
		Hub:      hub,
		Corr:     corr,
		NASR:     nasrMgr,
		Resolver: resolver,
		Gates:    gates,
		History:  history,
		Tel:      tel,
		Sessions: feed.Statuses,
		Log:      log,
		Started:  time.Now().UTC(),
	}
	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error { return nasrMgr.Run(ctx) })
	g.Go(func() error { return enricher.Run(ctx) })
	g.Go(func() error { return cache.Run(ctx) })
	g.Go(func() error { return archive.Run(ctx) })
	g.Go(func() error { return feed.Run(ctx) })
	g.Go(func() error { return heartbeat.Run(ctx) })
	if len(cfg.Coverage) > 0 {
		g.Go(func() error { return injector.Run(ctx) })
	}
	g.Go(func() error {
		log.Info("listening", "addr", cfg.Listen)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutCtx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	log.Info("shutdown complete")
	return err
}
