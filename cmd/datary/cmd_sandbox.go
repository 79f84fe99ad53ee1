// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/datary/services/sandbox"
	"github.com/AleutianAI/datary/services/sandbox/store"
)

func (a *app) newSandboxCmd() *cobra.Command {
	var (
		addr    string
		dataDir string
	)
	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Run a local fake of the Datary backend",
		Long: `sandbox serves the Datary REST surface from an embedded database so the
SDK and the CLI can be exercised offline. Data lives in memory unless
--data-dir is given. Point the CLI at it with --base-url http://localhost:8642/.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := a.logger.Slog()

			cfg := store.InMemoryConfig()
			if dataDir != "" {
				cfg = store.DefaultConfig(dataDir)
			}
			cfg.Logger = logger
			st, err := store.Open(cfg)
			if err != nil {
				return fmt.Errorf("open sandbox store: %w", err)
			}
			defer st.Close()

			gin.SetMode(gin.ReleaseMode)
			router := sandbox.NewRouter(st, sandbox.Options{Logger: logger})

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			p := printer(cmd)
			return sandbox.Serve(ctx, addr, router, logger, func(bound net.Addr) {
				p.Success("Sandbox listening on " + bound.String())
				p.Hint(fmt.Sprintf("datary --base-url http://%s/ login", bound.String()))
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", sandbox.DefaultAddr, "Listen address")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Persist data in this directory")
	return cmd
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
