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
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/AleutianAI/datary/pkg/commitdiff"
	"github.com/AleutianAI/datary/pkg/tabular"
)

// File modes the backend understands.
const (
	FileModeDir  = "40000"
	FileModeFile = "100644"
)

// Change actions of the workdir changes endpoint.
const (
	ChangeAdd    = "add"
	ChangeModify = "modify"
	ChangeRemove = "remove"
)

func changesEndpoint(wdirUUID string) string {
	return "workdirs/" + segment(wdirUUID) + "/changes"
}

// AddDir creates a directory in a workdir.
//
// Deprecated: the backend creates directories implicitly on AddFile.
func (c *Client) AddDir(ctx context.Context, wdirUUID, path, dirname string) error {
	_, err := c.send(ctx, request{
		op:       "addDir",
		method:   http.MethodPost,
		endpoint: changesEndpoint(wdirUUID),
		form: url.Values{
			"action":   {ChangeAdd},
			"filemode": {FileModeDir},
			"dirname":  {path},
			"basename": {dirname},
		},
	})
	if err != nil {
		c.logger.Error("add dir failed", "wdir", wdirUUID, "path", commitdiff.JoinKey(path, dirname), "error", err)
		return err
	}
	c.logger.Info("directory created in workdir", "wdir", wdirUUID, "path", commitdiff.JoinKey(path, dirname))
	return nil
}

// AddFile stages a new file in a workdir.
//
// Description:
//
//	Sends the kern and meta as JSON-encoded form fields. When meta.size is
//	at least LargePayloadSize the whole payload is uploaded instead as a
//	multipart "blob" part named after the file.
//
// Outputs:
//
//	error - *RequestError when the backend rejects the change.
func (c *Client) AddFile(ctx context.Context, wdirUUID string, entry commitdiff.Entry) error {
	req := request{op: "addFile", method: http.MethodPost, endpoint: changesEndpoint(wdirUUID)}

	payload := entryPayload(entry)
	if payload.Meta.Size() >= LargePayloadSize {
		blob, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s: %w", entry.Key(), err)
		}
		req.blob = &blobPart{filename: entry.Filename, content: blob}
		req.form = url.Values{
			"action":   {ChangeAdd},
			"filemode": {FileModeFile},
			"dirname":  {entry.Path},
			"basename": {entry.Filename},
		}
	} else {
		form, err := fileForm(ChangeAdd, entry)
		if err != nil {
			return err
		}
		req.form = form
	}

	if _, err := c.send(ctx, req); err != nil {
		c.logger.Error("add file failed", "wdir", wdirUUID, "path", entry.Key(), "error", err)
		return err
	}
	c.logger.Info("file added to workdir", "wdir", wdirUUID, "path", entry.Key())
	return nil
}

// ModifyRequest replaces the content of a staged or committed file.
func (c *Client) ModifyRequest(ctx context.Context, wdirUUID string, entry commitdiff.Entry) error {
	form, err := fileForm(ChangeModify, entry)
	if err != nil {
		return err
	}
	if _, err := c.send(ctx, request{op: "modifyFile", method: http.MethodPost, endpoint: changesEndpoint(wdirUUID), form: form}); err != nil {
		c.logger.Error("modify file failed", "wdir", wdirUUID, "path", entry.Key(), "error", err)
		return err
	}
	c.logger.Info("file modified in workdir", "wdir", wdirUUID, "path", entry.Key())
	return nil
}

// DeleteFile removes a file from a workdir by path.
func (c *Client) DeleteFile(ctx context.Context, wdirUUID string, entry commitdiff.Entry) error {
	_, err := c.send(ctx, request{
		op:       "removeFile",
		method:   http.MethodPost,
		endpoint: changesEndpoint(wdirUUID),
		form: url.Values{
			"action":   {ChangeRemove},
			"filemode": {FileModeFile},
			"dirname":  {entry.Path},
			"basename": {entry.Filename},
		},
	})
	if err != nil {
		c.logger.Error("delete file failed", "wdir", wdirUUID, "path", entry.Key(), "error", err)
		return err
	}
	c.logger.Info("file deleted from workdir", "wdir", wdirUUID, "path", entry.Key())
	return nil
}

// DeleteInode removes a file or directory from a workdir by inode.
func (c *Client) DeleteInode(ctx context.Context, wdirUUID, inode string) error {
	if inode == "" {
		return ErrMissingInode
	}
	_, err := c.send(ctx, request{
		op:       "removeInode",
		method:   http.MethodPost,
		endpoint: changesEndpoint(wdirUUID),
		form:     url.Values{"action": {ChangeRemove}, "inode": {inode}},
	})
	if err != nil {
		c.logger.Error("delete inode failed", "wdir", wdirUUID, "inode", inode, "error", err)
		return err
	}
	c.logger.Info("element deleted by inode", "wdir", wdirUUID, "inode", inode)
	return nil
}

// ClearIndex discards every pending change of a workdir.
func (c *Client) ClearIndex(ctx context.Context, wdirUUID string) error {
	if _, err := c.send(ctx, request{op: "clearIndex", method: http.MethodDelete, endpoint: changesEndpoint(wdirUUID)}); err != nil {
		c.logger.Error("clear index failed", "wdir", wdirUUID, "error", err)
		return err
	}
	c.logger.Info("workdir index cleared", "wdir", wdirUUID)
	return nil
}

func entryPayload(entry commitdiff.Entry) tabular.Payload {
	if entry.Data == nil {
		return tabular.Payload{}
	}
	return *entry.Data
}

// fileForm builds the urlencoded body of an add or modify change.
func fileForm(action string, entry commitdiff.Entry) (url.Values, error) {
	payload := entryPayload(entry)
	kern, err := json.Marshal(payload.Kern)
	if err != nil {
		return nil, fmt.Errorf("encode kern of %s: %w", entry.Key(), err)
	}
	meta, err := json.Marshal(payload.Meta)
	if err != nil {
		return nil, fmt.Errorf("encode meta of %s: %w", entry.Key(), err)
	}
	return url.Values{
		"action":   {action},
		"filemode": {FileModeFile},
		"dirname":  {entry.Path},
		"basename": {entry.Filename},
		"kern":     {string(kern)},
		"meta":     {string(meta)},
	}, nil
}
