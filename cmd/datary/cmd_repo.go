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
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/datary/pkg/datary"
	"github.com/AleutianAI/datary/pkg/pathtree"
)

// =============================================================================
// Repositories
// =============================================================================

func (a *app) newRepoCmd() *cobra.Command {
	repoCmd := &cobra.Command{
		Use:   "repo",
		Short: "Manage your Datary repositories",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List your repositories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.authedClient()
			if err != nil {
				return err
			}
			repos := client.ListRepos(cmd.Context())
			rows := make([][]string, 0, len(repos))
			for _, r := range repos {
				rows = append(rows, []string{r.Name, r.UUID, r.Visibility, r.Apex.Commit})
			}
			printer(cmd).Table([]string{"NAME", "UUID", "VISIBILITY", "HEAD"}, rows)
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <repo>",
		Short: "Describe a repository by name or uuid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.authedClient()
			if err != nil {
				return err
			}
			repo, err := resolveRepo(cmd.Context(), client, args[0])
			if err != nil {
				return err
			}
			printRepo(cmd, repo)
			return nil
		},
	}

	var spec datary.RepoSpec
	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.authedClient()
			if err != nil {
				return err
			}
			spec.Name = args[0]
			repo, err := client.CreateRepo(cmd.Context(), spec)
			if err != nil {
				return err
			}
			if repo == nil {
				return fmt.Errorf("repository %q was not created", spec.Name)
			}
			printer(cmd).Success(fmt.Sprintf("Created %s (%s)", repo.Name, repo.UUID))
			return nil
		},
	}
	createCmd.Flags().StringVar(&spec.Category, "category", "other", "Category, see \"datary categories\"")
	createCmd.Flags().StringVar(&spec.Description, "description", "", "Description (default \"<name> description\")")
	createCmd.Flags().StringVar(&spec.Visibility, "visibility", "private", "public, private or commercial")
	createCmd.Flags().StringVar(&spec.License, "license", "", "License name (default proprietary)")
	createCmd.Flags().IntVar(&spec.Amount, "amount", 0, "Price in cents for commercial repositories")
	createCmd.Flags().StringVar(&spec.Currency, "currency", "", "Price currency (default eur)")
	createCmd.Flags().StringVar(&spec.Modality, "modality", "", "one-time or recurring (default recurring)")
	createCmd.Flags().StringVar(&spec.Interval, "interval", "", "Billing interval (default year)")
	createCmd.Flags().IntVar(&spec.Period, "period", 0, "Intervals between billings (default 1)")

	var yes bool
	deleteCmd := &cobra.Command{
		Use:   "delete <repo>",
		Short: "DANGER: Delete a repository and all its commits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete %q without --yes", args[0])
			}
			client, err := a.authedClient()
			if err != nil {
				return err
			}
			repo, err := resolveRepo(cmd.Context(), client, args[0])
			if err != nil {
				return err
			}
			if err := client.DeleteRepo(cmd.Context(), repo.UUID); err != nil {
				return err
			}
			printer(cmd).Success("Deleted " + repo.Name)
			return nil
		},
	}
	deleteCmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm the deletion")

	repoCmd.AddCommand(listCmd, showCmd, createCmd, deleteCmd)
	return repoCmd
}

func printRepo(cmd *cobra.Command, repo *datary.Repo) {
	head := repo.Apex.Commit
	if head == "" {
		head = "(no commits)"
	}
	printer(cmd).Table([]string{"FIELD", "VALUE"}, [][]string{
		{"name", repo.Name},
		{"uuid", repo.UUID},
		{"description", repo.Description},
		{"category", repo.Category},
		{"visibility", repo.Visibility},
		{"workdir", repo.Workdir.UUID},
		{"head", head},
	})
}

// =============================================================================
// Filetrees and changes
// =============================================================================

func (a *app) newTreeCmd() *cobra.Command {
	var (
		commit  string
		workdir bool
	)
	cmd := &cobra.Command{
		Use:   "tree <repo>",
		Short: "Print the filetree of the last commit, a given commit or the workdir",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if workdir && commit != "" {
				return fmt.Errorf("--commit and --workdir are exclusive")
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

			var tree map[string]any
			switch {
			case workdir:
				tree = client.WorkdirFiletree(ctx, repo.Workdir.UUID)
			case commit != "":
				tree = client.CommitFiletree(ctx, repo.UUID, commit)
			default:
				tree = client.LastCommitFiletree(ctx, *repo)
			}

			rows := [][]string{}
			for _, leaf := range pathtree.Flatten(tree, "", "/") {
				if s, ok := leaf.Value.(string); ok {
					rows = append(rows, []string{leaf.Path, s})
				}
			}
			if len(rows) == 0 {
				printer(cmd).Info("Empty filetree")
				return nil
			}
			slices.SortFunc(rows, func(x, y []string) int { return strings.Compare(x[0], y[0]) })
			printer(cmd).Table([]string{"PATH", "DATASET"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&commit, "commit", "", "Commit sha1 to read instead of the last commit")
	cmd.Flags().BoolVar(&workdir, "workdir", false, "Read the workdir instead of a commit")
	return cmd
}

func (a *app) newChangesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "changes <repo>",
		Short: "Print the changes staged in the repository workdir",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.authedClient()
			if err != nil {
				return err
			}
			repo, err := resolveRepo(cmd.Context(), client, args[0])
			if err != nil {
				return err
			}
			printer(cmd).Changes(client.WorkdirChanges(cmd.Context(), repo.Workdir.UUID))
			return nil
		},
	}
}

// =============================================================================
// Search
// =============================================================================

func (a *app) newCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List repository categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newClient()
			if err != nil {
				return err
			}
			printer(cmd).List(client.Categories(cmd.Context()))
			return nil
		},
	}
}

func (a *app) newMembersCmd() *cobra.Command {
	var q datary.MemberQuery
	cmd := &cobra.Command{
		Use:   "members",
		Short: "Search Datary members",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.authedClient()
			if err != nil {
				return err
			}
			members := client.Members(cmd.Context(), q)
			rows := make([][]string, 0, len(members))
			for _, m := range members {
				rows = append(rows, []string{m.Username, m.UUID})
			}
			printer(cmd).Table([]string{"USERNAME", "UUID"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&q.UUID, "uuid", "", "Return only the member with this uuid")
	cmd.Flags().StringVar(&q.Username, "name", "", "Return only the member with this username")
	cmd.Flags().IntVar(&q.Limit, "limit", datary.DefaultMemberLimit, "Page size")
	return cmd
}
