// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/AleutianAI/datary/pkg/commitdiff"
	"github.com/AleutianAI/datary/pkg/datary"
)

// actionStyle colors the symbol of a diff action.
func actionStyle(a commitdiff.Action) lipgloss.Style {
	switch a {
	case commitdiff.ActionAdd:
		return Styles.Success
	case commitdiff.ActionDelete:
		return Styles.Error
	default:
		return Styles.Warning
	}
}

// Diff prints a diff report.
//
// # Description
//
// Machine level prints commitdiff.FormatDiff unchanged so the output stays
// parseable. The other levels print the same sections with colored
// symbols followed by a count summary. An empty diff prints a single
// "no changes" line.
func (p *Printer) Diff(d commitdiff.Diff, at time.Time) {
	if d.IsEmpty() {
		p.Success("No changes")
		return
	}
	if level() == PersonalityMachine {
		io.WriteString(p.Out, commitdiff.FormatDiff(d, at))
		return
	}

	p.Title("Changes at " + at.Format(commitdiff.ReportTimeLayout))
	for _, action := range commitdiff.Actions {
		entries := d.Entries(action)
		if len(entries) == 0 && level() == PersonalityMinimal {
			continue
		}
		fmt.Fprintln(p.Out, Styles.Bold.Render(strings.ToUpper(string(action))))
		for _, e := range entries {
			fmt.Fprintf(p.Out, "  %s  %s\n", actionStyle(action).Render(action.Symbol()), e.Key())
		}
	}
	add, update, del := d.Counts()
	p.DiffSummary(add, update, del)
}

// DiffSummary prints one line of per-action counts.
func (p *Printer) DiffSummary(add, update, del int) {
	if level() == PersonalityMachine {
		fmt.Fprintf(p.Out, "SUMMARY: add=%d update=%d delete=%d\n", add, update, del)
		return
	}
	fmt.Fprintf(p.Out, "\n%s %s  %s %s  %s %s\n",
		Styles.Success.Render(fmt.Sprintf("%d", add)), Styles.Muted.Render("added"),
		Styles.Warning.Render(fmt.Sprintf("%d", update)), Styles.Muted.Render("updated"),
		Styles.Error.Render(fmt.Sprintf("%d", del)), Styles.Muted.Render("deleted"),
	)
}

// SyncResult prints the diff that was applied and every failed entry.
func (p *Printer) SyncResult(r datary.SyncResult, at time.Time) {
	p.Diff(r.Diff, at)
	if len(r.Failures) == 0 {
		if !r.Diff.IsEmpty() {
			p.Success(fmt.Sprintf("%d changes staged", r.Applied()))
		}
		return
	}

	lines := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		lines = append(lines, fmt.Sprintf("%s %s: %v", f.Action, f.Entry.Key(), f.Err))
	}
	p.WarningBox(fmt.Sprintf("%d of %d changes failed", len(r.Failures), r.Applied()+len(r.Failures)),
		strings.Join(lines, "\n"))
}

// Changes prints the pending changes of a workdir.
func (p *Printer) Changes(c datary.Changes) {
	if c.IsEmpty() {
		p.Success("Workdir is clean")
		return
	}
	groups := []struct {
		name    string
		symbol  string
		style   lipgloss.Style
		changes []datary.Change
	}{
		{"added", "+", Styles.Success, c.Added},
		{"modified", "m", Styles.Warning, c.Modified},
		{"removed", "-", Styles.Error, c.Removed},
		{"renamed", "r", Styles.Highlight, c.Renamed},
	}
	for _, g := range groups {
		for _, ch := range g.changes {
			key := commitdiff.JoinKey(ch.Dirname, ch.Basename)
			if level() == PersonalityMachine {
				fmt.Fprintf(p.Out, "%s\t%s\t%s\n", g.name, key, ch.Inode)
				continue
			}
			fmt.Fprintf(p.Out, "  %s  %s %s\n", g.style.Render(g.symbol), key, Styles.Muted.Render(ch.Inode))
		}
	}
}
