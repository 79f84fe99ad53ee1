// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datary

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/datary/pkg/commitdiff"
	"github.com/AleutianAI/datary/pkg/tabular"
)

// =============================================================================
// Strategy variants
// =============================================================================

// Strategy selects how ModifyFile combines an updated entry with what the
// backend already stores. The only implementations are Override,
// AppendUpdate and Custom.
type Strategy interface {
	strategyName() string
}

// Override replaces the stored content with the entry's content.
type Override struct{}

// AppendUpdate merges the entry's tables into the stored tables: columns are
// unioned and the entry's rows are appended.
type AppendUpdate struct {
	// RepoUUID lets the stored original be found in the repository scope
	// when the workdir does not have it. Optional.
	RepoUUID string
}

// Custom hands the entry to Handler, which decides what to send.
type Custom struct {
	Handler ModifyHandler
}

// WritebackFunc sends a modify change for entry to the workdir scopeID.
type WritebackFunc func(ctx context.Context, scopeID string, entry commitdiff.Entry) error

// ModifyHandler implements a Custom strategy. It calls writeback zero or
// more times.
type ModifyHandler func(ctx context.Context, scopeID string, entry commitdiff.Entry, writeback WritebackFunc) error

func (Override) strategyName() string     { return StrategyOverride }
func (AppendUpdate) strategyName() string { return StrategyUpdateAppend }
func (Custom) strategyName() string       { return "custom" }

// Strategy names accepted by ParseStrategy.
const (
	StrategyOverride     = "override"
	StrategyUpdateAppend = "update-append"
)

// ParseStrategy maps a configured strategy name to its variant.
//
//	s, err := datary.ParseStrategy("update-append") // AppendUpdate{}
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case StrategyOverride, "":
		return Override{}, nil
	case StrategyUpdateAppend:
		return AppendUpdate{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

// StrategyName returns the name of s, "" for nil.
func StrategyName(s Strategy) string {
	if s == nil {
		return ""
	}
	return s.strategyName()
}

func validateStrategy(s Strategy) error {
	switch v := s.(type) {
	case Override, *Override, AppendUpdate, *AppendUpdate:
		return nil
	case Custom:
		if v.Handler == nil {
			return fmt.Errorf("%w: custom strategy without handler", ErrUnknownStrategy)
		}
		return nil
	case *Custom:
		if v == nil || v.Handler == nil {
			return fmt.Errorf("%w: custom strategy without handler", ErrUnknownStrategy)
		}
		return nil
	case nil:
		return fmt.Errorf("%w: nil strategy", ErrUnknownStrategy)
	}
	return fmt.Errorf("%w: %T", ErrUnknownStrategy, s)
}

// =============================================================================
// ModifyFile
// =============================================================================

// ModifyFile sends an updated entry to a workdir using strategy.
//
// Description:
//
//	Override sends the entry as is. AppendUpdate looks up the stored dataset,
//	merges the entry's kern into it with tabular.UpdateElements and sends the
//	merged payload. Custom calls the handler with ModifyRequest as writeback.
//
// Inputs:
//
//	ctx - Context for the requests.
//	wdirUUID - Workdir receiving the change.
//	entry - Updated entry with Data set.
//	strategy - One of Override, AppendUpdate, Custom.
//
// Outputs:
//
//	error - ErrUnknownStrategy (wrapped) for a nil or foreign strategy,
//	        checked before any request. Otherwise the logged failure of the
//	        strategy: ErrDatasetNotFound when AppendUpdate finds nothing
//	        stored, a *tabular.AxisError when a table cannot be merged, or
//	        a *RequestError. A failed merge sends nothing. Kern shapes that
//	        disagree (table against named tables) are logged and skipped:
//	        nothing is sent and nil is returned.
func (c *Client) ModifyFile(ctx context.Context, wdirUUID string, entry commitdiff.Entry, strategy Strategy) error {
	if err := validateStrategy(strategy); err != nil {
		return err
	}

	switch s := strategy.(type) {
	case Override, *Override:
		c.logger.Info("override an existing file", "path", entry.Key())
		return c.ModifyRequest(ctx, wdirUUID, entry)
	case AppendUpdate:
		return c.updateAppend(ctx, wdirUUID, s.RepoUUID, entry)
	case *AppendUpdate:
		return c.updateAppend(ctx, wdirUUID, s.RepoUUID, entry)
	case Custom:
		return s.Handler(ctx, wdirUUID, entry, c.ModifyRequest)
	case *Custom:
		return s.Handler(ctx, wdirUUID, entry, c.ModifyRequest)
	}
	return nil
}

func (c *Client) updateAppend(ctx context.Context, wdirUUID, repoUUID string, entry commitdiff.Entry) error {
	c.logger.Info("update an existing file", "path", entry.Key())

	datasetUUID := c.DatasetUUID(ctx, wdirUUID, entry.Path, entry.Filename)
	stored := c.Original(ctx, datasetUUID, repoUUID, wdirUUID)
	if stored.IsZero() {
		err := fmt.Errorf("%w: original %q of %s in workdir %s", ErrDatasetNotFound, datasetUUID, entry.Key(), wdirUUID)
		c.logger.Error("update append failed", "error", err)
		return err
	}

	err := tabular.UpdateElements(&stored, entryPayload(entry))
	c.metrics.RecordMerge(ctx, err)
	if errors.Is(err, tabular.ErrShapeMismatch) {
		c.logger.Warn("update append skipped, stored element left unchanged",
			"scope_id", wdirUUID, "path", entry.Path, "filename", entry.Filename, "error", err)
		return nil
	}
	if err != nil {
		c.logger.Error("update append failed", "path", entry.Key(), "error", err)
		return fmt.Errorf("merge %s: %w", entry.Key(), err)
	}

	return c.ModifyRequest(ctx, wdirUUID, commitdiff.Entry{
		Path:     entry.Path,
		Filename: entry.Filename,
		Data:     &stored,
	})
}
