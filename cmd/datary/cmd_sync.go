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
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/datary/cmd/datary/internal/reporting"
	"github.com/AleutianAI/datary/pkg/commitdiff"
	"github.com/AleutianAI/datary/pkg/datary"
)

// =============================================================================
// diff
// =============================================================================

func (a *app) newDiffCmd() *cobra.Command {
	var (
		strict bool
		patch  bool
	)
	cmd := &cobra.Command{
		Use:   "diff <repo> <snapshot.json>",
		Short: "Compare the last commit of a repository with a local snapshot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("strict") {
				strict = a.cfg.Sync.Strict
			}
			client, err := a.authedClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			repo, err := resolveRepo(ctx, client, args[0])
			if err != nil {
				return err
			}
			current, err := LoadSnapshot(args[1])
			if err != nil {
				return err
			}

			d, err := commitdiff.CompareCommits(client.RecollectLastCommit(ctx, *repo), current, strict)
			if err != nil {
				return err
			}
			if patch {
				out, err := commitdiff.FormatPatch(d)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(out)
				return err
			}
			printer(cmd).Diff(d, time.Now())
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Report files missing from the snapshot as deletes")
	cmd.Flags().BoolVar(&patch, "patch", false, "Print a unified patch instead of the report")
	return cmd
}

// =============================================================================
// sync
// =============================================================================

// syncOptions are the flags of "datary sync".
type syncOptions struct {
	strict       bool
	strategy     string
	commit       string
	watch        bool
	influxURL    string
	influxToken  string
	influxOrg    string
	influxBucket string
}

func (a *app) newSyncCmd() *cobra.Command {
	var opts syncOptions
	cmd := &cobra.Command{
		Use:   "sync <repo> <snapshot.json>",
		Short: "Stage the difference between the last commit and a local snapshot",
		Long: `sync compares the last commit of a repository with a local snapshot and
stages adds, updates and deletes in the repository workdir. With --commit the
staged changes are committed in batches of sync.commit_limit changes.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if !flags.Changed("strict") {
				opts.strict = a.cfg.Sync.Strict
			}
			if !flags.Changed("strategy") {
				opts.strategy = a.cfg.Sync.Strategy
			}
			a.applyReportingDefaults(&opts)

			client, err := a.authedClient()
			if err != nil {
				return err
			}
			reporter, err := reporting.New(reporting.Settings{
				URL:    opts.influxURL,
				Token:  opts.influxToken,
				Org:    opts.influxOrg,
				Bucket: opts.influxBucket,
			})
			if err != nil {
				return err
			}
			defer reporter.Close()

			run := func(ctx context.Context) error {
				return a.syncOnce(ctx, cmd, client, reporter, args[0], args[1], opts)
			}
			if err := run(cmd.Context()); err != nil {
				return err
			}
			if !opts.watch {
				return nil
			}

			printer(cmd).Info("Watching " + args[1] + " for changes, press Ctrl+C to stop")
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return watchFile(ctx, args[1], DefaultWatchDebounce, a.logger.Slog(), run)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&opts.strict, "strict", false, "Delete files missing from the snapshot")
	f.StringVar(&opts.strategy, "strategy", "", "Update strategy: override or update-append")
	f.StringVar(&opts.commit, "commit", "", "Commit the staged changes with this message")
	f.BoolVar(&opts.watch, "watch", false, "Sync again every time the snapshot file changes")
	f.StringVar(&opts.influxURL, "influx-url", "", "InfluxDB URL receiving one point per run")
	f.StringVar(&opts.influxToken, "influx-token", "", "InfluxDB token")
	f.StringVar(&opts.influxOrg, "influx-org", "", "InfluxDB organisation")
	f.StringVar(&opts.influxBucket, "influx-bucket", "", "InfluxDB bucket")
	return cmd
}

func (a *app) applyReportingDefaults(opts *syncOptions) {
	r := a.cfg.Reporting
	if opts.influxURL == "" {
		opts.influxURL = r.InfluxURL
	}
	if opts.influxToken == "" {
		opts.influxToken = r.InfluxToken
	}
	if opts.influxOrg == "" {
		opts.influxOrg = r.InfluxOrg
	}
	if opts.influxBucket == "" {
		opts.influxBucket = r.InfluxBucket
	}
}

// syncOnce runs one sync pass and reports it.
func (a *app) syncOnce(ctx context.Context, cmd *cobra.Command, client *datary.Client, reporter reporting.Reporter,
	repoRef, snapshotPath string, opts syncOptions) error {

	start := time.Now()
	repo, err := resolveRepo(ctx, client, repoRef)
	if err != nil {
		return err
	}
	if repo.Workdir.UUID == "" {
		return datary.ErrNoWorkdir
	}
	strategy, err := datary.ParseStrategy(opts.strategy)
	if err != nil {
		return err
	}
	if _, ok := strategy.(datary.AppendUpdate); ok {
		strategy = datary.AppendUpdate{RepoUUID: repo.UUID}
	}

	current, err := LoadSnapshot(snapshotPath)
	if err != nil {
		return err
	}
	previous := client.RecollectLastCommit(ctx, *repo)

	var (
		result  datary.SyncResult
		commits int
	)
	if opts.commit == "" {
		result, err = client.AddCommit(ctx, repo.Workdir.UUID, previous, current,
			datary.SyncOptions{Strict: opts.strict, Strategy: strategy})
		if err != nil {
			return err
		}
	} else {
		result, commits, err = a.syncInBatches(ctx, client, repo, previous, current, strategy, opts)
		if err != nil {
			return err
		}
	}

	p := printer(cmd)
	p.SyncResult(result, time.Now())
	if commits > 0 {
		p.Success(fmt.Sprintf("%d commit(s) created", commits))
	} else if !result.Diff.IsEmpty() {
		p.Hint(`Run "datary changes ` + repoRef + `" to review, or sync again with --commit`)
	}

	add, update, del := result.Diff.Counts()
	run := reporting.Run{
		Repo:      repo.Name,
		Workdir:   repo.Workdir.UUID,
		Strategy:  datary.StrategyName(strategy),
		Strict:    opts.strict,
		Added:     add,
		Updated:   update,
		Deleted:   del,
		Failed:    len(result.Failures),
		Commits:   commits,
		Duration:  time.Since(start),
		Timestamp: start,
	}
	if err := reporter.Report(ctx, run); err != nil {
		a.logger.Warn("report sync run", "repo", repo.Name, "error", err)
	}
	return nil
}

// syncInBatches applies the diff in pieces of sync.commit_limit changes and
// commits after each piece.
func (a *app) syncInBatches(ctx context.Context, client *datary.Client, repo *datary.Repo,
	previous, current []commitdiff.Entry, strategy datary.Strategy, opts syncOptions) (datary.SyncResult, int, error) {

	d := client.CompareCommits(ctx, previous, current, opts.strict)
	total := datary.SyncResult{Diff: d}
	batches := d.Split(a.cfg.Sync.CommitLimit)

	commits := 0
	for i, batch := range batches {
		res, err := client.ApplyDiff(ctx, repo.Workdir.UUID, batch, strategy)
		if err != nil {
			return total, commits, err
		}
		total.Failures = append(total.Failures, res.Failures...)

		message := opts.commit
		if len(batches) > 1 {
			message = fmt.Sprintf("%s (%d/%d)", opts.commit, i+1, len(batches))
		}
		if err := client.Commit(ctx, repo.UUID, message); err != nil {
			return total, commits, fmt.Errorf("commit batch %d: %w", i+1, err)
		}
		commits++
	}
	return total, commits, nil
}

// =============================================================================
// clean
// =============================================================================

func (a *app) newCleanCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clean <repo>",
		Short: "Clear the workdir index and stage the removal of every file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clean %q without --yes", args[0])
			}
			client, err := a.authedClient()
			if err != nil {
				return err
			}
			repo, err := resolveRepo(cmd.Context(), client, args[0])
			if err != nil {
				return err
			}
			deleted, err := client.CleanRepo(cmd.Context(), repo.UUID)
			if err != nil {
				return err
			}
			printer(cmd).Success(fmt.Sprintf("%d files staged for removal", deleted))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm the clean")
	return cmd
}
