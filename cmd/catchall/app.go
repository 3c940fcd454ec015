// MIT License
//
// Copyright (c) 2026 Kolin
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"catchall/internal/api"
	"catchall/internal/api/handlers"
	"catchall/internal/banner"
	"catchall/internal/config"
	"catchall/internal/database"
	"catchall/internal/database/repositories"
	"catchall/internal/enrichment"
	"catchall/internal/pages"
	"catchall/internal/report"
	"catchall/internal/reporting"
	"catchall/internal/sink"

	"github.com/pterm/pterm"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// app owns every long-lived resource. Resources are created in newApp and
// released in reverse order by Close.
type app struct {
	cfg    *config.Config
	logger *pterm.Logger

	client   *http.Client
	db       *gorm.DB
	maxmind  *enrichment.MaxMindResolver
	chain    enrichment.ChainResolver
	geo      *enrichment.GeoCache
	sink     sink.Dispatcher
	reporter *reporting.Reporter
	provider *pages.TemplateProvider
	watcher  *pages.TemplateWatcher
	cleanup  *database.CleanupService
	server   *http.Server
}

func newApp(cfg *config.Config, logger *pterm.Logger) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logger,
		// one client for the lookup service and the webhook
		client: &http.Client{Timeout: cfg.Reporter.HTTPTimeout},
	}

	if err := a.initGeo(); err != nil {
		a.Close()
		return nil, err
	}

	a.sink = a.newSink()
	a.reporter = reporting.NewReporter(a.geo, report.NewFormatter(), a.sink, logger, cfg.Reporter.Timeout)
	if a.cleanup != nil {
		a.reporter.SetPruneCounter(func() int64 { return a.cleanup.GetStats().TotalDeleted })
	}

	if err := a.initPages(); err != nil {
		a.Close()
		return nil, err
	}

	h := handlers.NewCatchAllHandler(a.reporter, a.provider, logger, cfg.Server.MaxBodyBytes)
	router, err := api.NewRouter(api.Config{
		GinMode:        cfg.Server.GinMode,
		TrustedProxies: cfg.Server.TrustedProxies,
	}, h, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

func (a *app) initGeo() error {
	chain := enrichment.ChainResolver{
		enrichment.NewIPInfoResolver(a.client, enrichment.DefaultIPInfoURL, a.cfg.GeoIP.IPInfoToken, a.logger),
	}
	if a.cfg.GeoIP.IPInfoToken == "" {
		a.logger.Warn("IPINFO_TOKEN not set, using unauthenticated ipinfo.io lookups")
	}

	if a.cfg.GeoIP.CityDBPath != "" || a.cfg.GeoIP.ASNDBPath != "" {
		mm, err := enrichment.NewMaxMindResolver(a.cfg.GeoIP.CityDBPath, a.cfg.GeoIP.ASNDBPath, a.logger)
		if err != nil {
			a.logger.Warn("MaxMind fallback disabled", a.logger.Args("error", err))
		} else {
			a.maxmind = mm
			chain = append(chain, mm)
		}
	}

	var store enrichment.Store
	if a.cfg.Database.Path != "" {
		db, err := database.NewConnection(&database.Config{Path: a.cfg.Database.Path}, a.logger)
		if err != nil {
			return err
		}
		a.db = db
		store = repositories.NewIPInfoRepository(db)
		a.cleanup = database.NewCleanupService(db, a.logger,
			time.Duration(a.cfg.Database.RetentionDays)*24*time.Hour, time.Hour)
	}

	a.chain = chain
	geo, err := enrichment.NewGeoCache(chain, store, a.logger, a.cfg.GeoIP.CacheSize)
	if err != nil {
		return err
	}
	a.geo = geo

	if store != nil {
		if err := geo.LoadCache(); err != nil {
			a.logger.Warn("Failed to warm geo cache", a.logger.Args("error", err))
		}
	}
	return nil
}

// newSink never fails: a missing or malformed webhook only disables delivery.
func (a *app) newSink() sink.Dispatcher {
	if a.cfg.Reporter.WebhookURL == "" {
		a.logger.Warn("STATS_WH not set, reports will be discarded")
		return sink.NoopSink{}
	}
	d, err := sink.NewDiscordSink(a.cfg.Reporter.WebhookURL, a.client, a.logger)
	if err != nil {
		a.logger.Warn("Invalid STATS_WH, reports will be discarded", a.logger.Args("error", err))
		return sink.NoopSink{}
	}
	return d
}

func (a *app) initPages() error {
	provider, err := pages.NewTemplateProvider(a.cfg.Pages.Dir, a.logger)
	if err != nil {
		return err
	}
	a.provider = provider
	a.logger.Info("Pages loaded", a.logger.Args("dir", a.cfg.Pages.Dir, "hosts", provider.Hosts()))

	if !a.cfg.Pages.Watch {
		return nil
	}
	w, err := pages.NewTemplateWatcher(a.cfg.Pages.Dir, provider, a.logger)
	if err != nil {
		a.logger.Warn("Template hot reload disabled", a.logger.Args("error", err))
		return nil
	}
	a.watcher = w
	return nil
}

func (a *app) bannerInfo() banner.Info {
	return banner.Info{
		Addr:      a.cfg.Server.ListenAddr,
		Sink:      a.sink.Name(),
		Resolvers: a.chain.Name(),
		Store:     a.cfg.Database.Path,
		Pages:     a.provider.Hosts(),
		Watch:     a.watcher != nil,
	}
}

// Run serves until ctx is cancelled or the listener fails, then drains the
// server and pending reports within the shutdown timeout.
func (a *app) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("Listening", a.logger.Args("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}
	if a.cleanup != nil {
		g.Go(func() error { return a.cleanup.Run(gctx) })
	}
	g.Go(func() error {
		a.reporter.StatsLoop(gctx, a.cfg.Reporter.StatsInterval)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("HTTP server shutdown incomplete", a.logger.Args("error", err))
		}
		// dropped reports are acceptable; the error is already logged
		_ = a.reporter.Shutdown(shutdownCtx)
		return nil
	})

	return g.Wait()
}

// Close releases resources. Pending geo saves finish before the database closes.
func (a *app) Close() {
	if a.geo != nil {
		a.geo.Close()
	}
	if a.maxmind != nil {
		if err := a.maxmind.Close(); err != nil {
			a.logger.Warn("Failed to close GeoIP databases", a.logger.Args("error", err))
		}
	}
	if a.db != nil {
		if err := database.Close(a.db); err != nil {
			a.logger.Warn("Failed to close database", a.logger.Args("error", err))
		}
	}
	a.client.CloseIdleConnections()
}
