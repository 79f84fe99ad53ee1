// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gcs uploads exported datasets to Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// ErrNoBucket is returned when no destination bucket is configured.
var ErrNoBucket = errors.New("gcs: bucket name is required")

// ContentTypeJSON is the content type of exported datasets.
const ContentTypeJSON = "application/json"

type Client struct {
	storageClient *storage.Client
	BucketName    string
	logger        *slog.Logger
}

// NewClient creates a client for bucketName.
//
// An empty saKeyPath uses Application Default Credentials. Extra options are
// passed to the storage client and override the credentials choice.
func NewClient(ctx context.Context, bucketName, saKeyPath string, opts ...option.ClientOption) (*Client, error) {
	if bucketName == "" {
		return nil, ErrNoBucket
	}

	var clientOpts []option.ClientOption
	if saKeyPath != "" {
		info, err := os.Stat(saKeyPath)
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s. Please ensure you have the correct key and it is accessible", saKeyPath)
		}
		if err == nil && info.IsDir() {
			return nil, fmt.Errorf("service account key path %s is a directory", saKeyPath)
		}
		clientOpts = append(clientOpts, option.WithCredentialsFile(saKeyPath))
	}
	clientOpts = append(clientOpts, opts...)

	storageClient, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	return &Client{
		storageClient: storageClient,
		BucketName:    bucketName,
		logger:        slog.Default().With("component", "gcs"),
	}, nil
}

// Close releases the storage client.
func (c *Client) Close() error {
	if c.storageClient == nil {
		return nil
	}
	return c.storageClient.Close()
}

// UploadBytes writes data to object and returns its gs:// URL.
func (c *Client) UploadBytes(ctx context.Context, object string, data []byte, contentType string) (string, error) {
	return c.upload(ctx, object, bytes.NewReader(data), contentType)
}

// UploadFile copies a local file to object and returns its gs:// URL.
func (c *Client) UploadFile(ctx context.Context, localPath, object string) (string, error) {
	localFile, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open the local file: %s: %w", localPath, err)
	}
	defer localFile.Close()

	contentType := "application/octet-stream"
	if strings.HasSuffix(localPath, ".json") {
		contentType = ContentTypeJSON
	}
	return c.upload(ctx, object, localFile, contentType)
}

func (c *Client) upload(ctx context.Context, object string, r io.Reader, contentType string) (string, error) {
	if object == "" {
		return "", errors.New("gcs: object name is required")
	}
	if c.storageClient == nil {
		return "", errors.New("gcs: client is not initialised")
	}

	writer := c.storageClient.Bucket(c.BucketName).Object(object).NewWriter(ctx)
	writer.ContentType = contentType
	writer.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := io.Copy(writer, r); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("failed to copy data to GCS object %s: %w", object, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer for %s: %w", object, err)
	}

	url := URL(c.BucketName, object)
	c.logger.Info("uploaded object", "url", url)
	return url, nil
}

// URL returns the gs:// address of object in bucket.
func URL(bucket, object string) string {
	return fmt.Sprintf("gs://%s/%s", bucket, object)
}

// ObjectName derives the default object for a dataset key of a repo:
// "<repo>/<key>.json".
func ObjectName(repoName, key string) string {
	name := path.Join(repoName, strings.TrimPrefix(key, "/"))
	if !strings.HasSuffix(name, ".json") {
		name += ".json"
	}
	return name
}
