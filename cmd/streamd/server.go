// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/Query-farm/streambody/conformance"
	"github.com/Query-farm/streambody/internal/config"
	"github.com/Query-farm/streambody/streambody"
	"github.com/Query-farm/streambody/streambody/fiberbody"
)

// server runs one engine until its context is cancelled.
type server interface {
	Serve(ctx context.Context) error
}

func newServer(cfg *config.Config, store *CityStore, opts []streambody.Option, log *slog.Logger) server {
	if cfg.Server.Engine == config.EngineFiber {
		return &fiberServer{cfg: cfg, app: newFiberApp(store, opts)}
	}
	return &httpServer{cfg: cfg, srv: &http.Server{
		Addr:     cfg.Server.Addr,
		Handler:  newMux(cfg, store, opts),
		ErrorLog: slog.NewLogLogger(log.Handler(), slog.LevelWarn),
	}}
}

func newMux(cfg *config.Config, store *CityStore, opts []streambody.Option) *http.ServeMux {
	mux := http.NewServeMux()
	for path, route := range cityRoutes {
		mux.HandleFunc("GET "+path, func(w http.ResponseWriter, r *http.Request) {
			q, err := url.ParseQuery(r.URL.RawQuery)
			if err != nil {
				http.Error(w, "invalid query: "+err.Error(), http.StatusBadRequest)
				return
			}
			limit, err := parseLimit(q.Get("limit"))
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			route(r.Context(), store, limit, withRequestID(opts)).ServeHTTP(w, r)
		})
	}
	if cfg.Server.Conformance {
		conformance.Register(mux, opts...)
	}
	return mux
}

func newFiberApp(store *CityStore, opts []streambody.Option) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	for path, route := range cityRoutes {
		app.Get(path, fiberbody.Handler(func(c *fiber.Ctx) (*streambody.Body, error) {
			limit, err := parseLimit(c.Query("limit"))
			if err != nil {
				return nil, fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			// The fiber context is recycled once the handler returns, so
			// the query runs detached from it.
			return route(context.Background(), store, limit, withRequestID(opts)), nil
		}))
	}
	return app
}

// withRequestID appends a fresh X-Request-Id header to opts.
func withRequestID(opts []streambody.Option) []streambody.Option {
	return append(opts[:len(opts):len(opts)], streambody.WithHeader("X-Request-Id", uuid.NewString()))
}

type httpServer struct {
	cfg *config.Config
	srv *http.Server
}

func (s *httpServer) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "http shutdown")
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server")
	}
	return nil
}

type fiberServer struct {
	cfg *config.Config
	app *fiber.App
}

func (s *fiberServer) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(s.cfg.Server.Addr)
	}()
	select {
	case err := <-errCh:
		return errors.Wrap(err, "fiber server")
	case <-ctx.Done():
	}
	if err := s.app.ShutdownWithTimeout(s.cfg.Server.ShutdownTimeout); err != nil {
		return errors.Wrap(err, "fiber shutdown")
	}
	return errors.Wrap(<-errCh, "fiber server")
}
