// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sandbox is an in-process Datary backend for tests and local use.
//
// It serves the REST surface the SDK talks to from a badger store:
//
//	POST   /connection/signIn              public, returns X-Set-Token
//	GET    /connection/signOut
//	GET    /me/repos                       POST creates
//	GET    /repos/:repo                    DELETE removes
//	POST   /repos/:repo/commits
//	GET    /commits/:sha1/filetree
//	GET    /workdirs/:wdir/filetree
//	GET    /workdirs/:wdir/changes         POST applies, DELETE clears
//	GET    /datasets/:dataset/metadata
//	GET    /datasets/:dataset/original
//	GET    /search/categories
//	GET    /search/members
//	GET    /healthz, /metrics              public
//
// Every route except sign-in, health and metrics requires a bearer token.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/datary/services/sandbox/store"
)

// DefaultAddr is the listen address of `datary sandbox`.
const DefaultAddr = ":8642"

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 5 * time.Second

// Options configures NewRouter.
type Options struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics defaults to a fresh NewMetrics().
	Metrics *Metrics

	// ServiceName is the otelgin service name, "datary-sandbox" when empty.
	ServiceName string
}

// Server holds the handlers' dependencies.
type Server struct {
	store   *store.Store
	logger  *slog.Logger
	metrics *Metrics
}

// NewRouter builds the gin engine serving st.
func NewRouter(st *store.Store, opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "datary-sandbox"
	}
	s := &Server{store: st, logger: opts.Logger.With("component", "sandbox"), metrics: opts.Metrics}

	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware(opts.ServiceName), opts.Metrics.Middleware())
	s.setupRoutes(router)
	return router
}

func (s *Server) setupRoutes(router *gin.Engine) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	router.POST("/connection/signIn", s.signIn)

	authed := router.Group("/")
	authed.Use(AuthMiddleware(s.store))
	{
		authed.GET("/connection/signOut", s.signOut)

		authed.GET("/me/repos", s.listRepos)
		authed.POST("/me/repos", s.createRepo)
		authed.GET("/repos/:repo", s.getRepo)
		authed.DELETE("/repos/:repo", s.deleteRepo)
		authed.POST("/repos/:repo/commits", s.commit)

		authed.GET("/commits/:sha1/filetree", s.commitFiletree)

		workdirs := authed.Group("/workdirs/:wdir")
		{
			workdirs.GET("/filetree", s.workdirFiletree)
			workdirs.GET("/changes", s.workdirChanges)
			workdirs.POST("/changes", s.applyChange)
			workdirs.DELETE("/changes", s.clearChanges)
		}

		datasets := authed.Group("/datasets/:dataset")
		{
			datasets.GET("/metadata", s.metadata)
			datasets.GET("/original", s.original)
		}

		authed.GET("/search/categories", s.categories)
		authed.GET("/search/members", s.members)
	}
}

// Serve runs handler on addr until ctx is done, then shuts down gracefully.
//
// # Description
//
// The listener is opened before Serve returns control to the goroutines so
// that a bad address fails fast. ready, when non-nil, receives the bound
// address once listening.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger, ready func(net.Addr)) error {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if ready != nil {
		ready(ln.Addr())
	}

	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("sandbox listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("sandbox shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
