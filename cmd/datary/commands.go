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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/datary/cmd/datary/config"
	"github.com/AleutianAI/datary/pkg/logging"
	"github.com/AleutianAI/datary/pkg/telemetry"
	"github.com/AleutianAI/datary/pkg/ux"
)

// globalFlags are the persistent flags of the root command.
type globalFlags struct {
	configPath       string
	baseURL          string
	token            string
	logLevel         string
	jsonOutput       bool
	trace            bool
	quiet            bool
	personalityLevel string // UX personality level (full/standard/minimal/machine)
}

// app is the state shared by every command of one invocation.
type app struct {
	flags globalFlags

	cfg     config.DataryConfig
	cfgPath string

	logger   *logging.Logger
	shutdown func(context.Context) error
}

// newRootCmd builds the datary command tree.
func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "datary",
		Short: "A cli to sync local datasets with Datary repositories",
		Long: `datary compares a local snapshot of datasets with the last commit of a
Datary repository and stages the difference in the repository workdir.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown(cmd.Context())
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.flags.configPath, "config", "", "Config file (default ~/.datary/config.yaml)")
	pf.StringVar(&a.flags.baseURL, "base-url", "", "Datary API root, overrides base_url")
	pf.StringVar(&a.flags.token, "token", "", "Session token, overrides the stored token")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.BoolVar(&a.flags.jsonOutput, "json", false, "Machine-readable output and JSON logs")
	pf.BoolVar(&a.flags.trace, "trace", false, "Print OpenTelemetry spans to stdout")
	pf.BoolVar(&a.flags.quiet, "quiet", false, "Disable console logging")
	pf.StringVar(&a.flags.personalityLevel, "personality", "",
		"Output style: full, standard, minimal, machine (env: "+ux.PersonalityEnv+")")

	rootCmd.AddCommand(
		a.newLoginCmd(),
		a.newLogoutCmd(),
		a.newRepoCmd(),
		a.newTreeCmd(),
		a.newChangesCmd(),
		a.newCategoriesCmd(),
		a.newMembersCmd(),
		a.newDiffCmd(),
		a.newSyncCmd(),
		a.newCleanCmd(),
		a.newExportCmd(),
		a.newSandboxCmd(),
	)
	return rootCmd
}

// setup initialises personality, configuration, logging and telemetry.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	switch {
	case a.flags.jsonOutput:
		ux.SetPersonalityLevel(ux.PersonalityMachine)
	case a.flags.personalityLevel != "":
		ux.SetPersonalityLevel(ux.ParsePersonalityLevel(a.flags.personalityLevel))
	default:
		ux.InitPersonality()
	}

	if err := a.loadConfig(); err != nil {
		return err
	}

	level, ok := logging.ParseLevel(a.cfg.Logging.Level)
	if !ok {
		return fmt.Errorf("unknown log level %q", a.cfg.Logging.Level)
	}
	a.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  a.cfg.Logging.Dir,
		Service: "datary",
		JSON:    a.cfg.Logging.JSON,
		Quiet:   a.flags.quiet,
		Output:  cmd.ErrOrStderr(),
	})

	telCfg := a.cfg.Telemetry
	if a.flags.trace {
		telCfg.TraceExporter = telemetry.ExporterStdout
	}
	shutdown, err := telemetry.Init(cmd.Context(), telCfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	a.shutdown = shutdown
	return nil
}

// loadConfig reads the config file and applies flag overrides.
func (a *app) loadConfig() error {
	if a.flags.configPath != "" {
		cfg, err := config.LoadFrom(a.flags.configPath)
		if err != nil {
			return err
		}
		a.cfg, a.cfgPath = cfg, a.flags.configPath
	} else {
		if err := config.Load(""); err != nil {
			return err
		}
		a.cfg, a.cfgPath = config.Global, config.GlobalPath
	}

	if a.flags.baseURL != "" {
		a.cfg.BaseURL = a.flags.baseURL
	}
	if a.flags.token != "" {
		a.cfg.Token = a.flags.token
	}
	if a.flags.logLevel != "" {
		a.cfg.Logging.Level = a.flags.logLevel
	}
	if a.flags.jsonOutput {
		a.cfg.Logging.JSON = true
	}
	return nil
}

func (a *app) teardown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var err error
	if a.shutdown != nil {
		err = a.shutdown(ctx)
	}
	if a.logger != nil {
		_ = a.logger.Close()
	}
	return err
}

// printer writes to the command's streams so tests can capture output.
func printer(cmd *cobra.Command) *ux.Printer {
	return ux.NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr())
}
