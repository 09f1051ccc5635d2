// Package main provides the API router setup.
package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spotlight-ai/storyboard-engine/cmd/storyboard-api/handlers"
	"github.com/spotlight-ai/storyboard-engine/internal/cache"
	"github.com/spotlight-ai/storyboard-engine/internal/config"
	"github.com/spotlight-ai/storyboard-engine/internal/extract"
	"github.com/spotlight-ai/storyboard-engine/internal/grouping"
	"github.com/spotlight-ai/storyboard-engine/internal/locate"
	"github.com/spotlight-ai/storyboard-engine/internal/observability"
	"github.com/spotlight-ai/storyboard-engine/internal/oracle"
	"github.com/spotlight-ai/storyboard-engine/internal/pipeline"
	"github.com/spotlight-ai/storyboard-engine/internal/raster"
)

// NewRouter wires the pipeline and returns the configured router plus a
// cleanup function releasing the cache driver.
func NewRouter(logger *observability.Logger, cfg *config.Config) (http.Handler, func(), error) {
	// The oracle credential is checked here, before the server accepts
	// any work: nothing useful can be produced without it.
	orc, err := oracle.NewClient(cfg.Oracle, logger)
	if err != nil {
		return nil, nil, err
	}

	locator, err := locate.New(cfg.Locator, orc, logger)
	if err != nil {
		return nil, nil, err
	}

	resultCache, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := resultCache.Close(); err != nil {
			logger.Warn().Err(err).Msg("Cache close failed")
		}
	}

	orchestrator := pipeline.New(
		raster.NewEngine(cfg.Raster, logger),
		locator,
		extract.New(orc, logger),
		grouping.NewAnnotator(orc, cfg.Pipeline.GroupingThumbBound, cfg.Pipeline.GroupingMaxFrames, cfg.Raster.JPEGQuality, logger),
		cfg.Pipeline,
		logger,
	)

	storyboardHandler := handlers.NewStoryboardHandler(logger, orchestrator, resultCache, handlers.StoryboardOptions{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		CacheTTL:       cfg.Cache.TTL,
	})

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.Server.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"storyboard-engine"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/storyboards", func(r chi.Router) {
			r.Post("/extract", storyboardHandler.Extract)
		})
	})

	return r, cleanup, nil
}
