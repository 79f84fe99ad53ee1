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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/datary/cmd/datary/gcs"
	"github.com/AleutianAI/datary/pkg/datary"
)

func (a *app) newExportCmd() *cobra.Command {
	var (
		bucket      string
		object      string
		credentials string
		output      string
	)
	cmd := &cobra.Command{
		Use:   "export <repo> <path/filename>",
		Short: "Upload the stored content of a dataset to Google Cloud Storage",
		Long: `export fetches the original of a dataset, looking in the workdir first
and in the last commit otherwise, and uploads it as JSON to a GCS bucket.
With --output the JSON is written to a local file instead.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if bucket == "" {
				bucket = a.cfg.Export.Bucket
			}
			if credentials == "" {
				credentials = a.cfg.Export.CredentialsFile
			}
			if bucket == "" && output == "" {
				return errors.New("--bucket (or export.bucket) or --output is required")
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
			data, err := exportDataset(ctx, client, repo, args[1])
			if err != nil {
				return err
			}

			p := printer(cmd)
			if output != "" {
				if err := os.WriteFile(output, data, 0644); err != nil {
					return fmt.Errorf("write %s: %w", output, err)
				}
				p.Success("Exported " + args[1] + " to " + output)
				return nil
			}

			if object == "" {
				object = gcs.ObjectName(repo.Name, args[1])
			}
			storage, err := gcs.NewClient(ctx, bucket, credentials)
			if err != nil {
				return err
			}
			defer storage.Close()
			url, err := storage.UploadBytes(ctx, object, data, gcs.ContentTypeJSON)
			if err != nil {
				return err
			}
			p.Success("Exported " + args[1] + " to " + url)
			return nil
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "Destination bucket (default export.bucket)")
	cmd.Flags().StringVar(&object, "object", "", "Destination object (default <repo>/<path/filename>.json)")
	cmd.Flags().StringVar(&credentials, "credentials", "", "Service account key file (default: application default credentials)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a local file instead of GCS")
	return cmd
}

// exportDataset returns the indented JSON of the stored payload at key.
func exportDataset(ctx context.Context, client *datary.Client, repo *datary.Repo, key string) ([]byte, error) {
	dir, name := path.Split(key)
	dir = path.Clean(dir)
	if dir == "." || dir == "/" {
		dir = ""
	}

	datasetUUID := client.DatasetUUID(ctx, repo.Workdir.UUID, dir, name)
	if datasetUUID == "" {
		datasetUUID = client.CommittedDatasetUUID(ctx, *repo, dir, name)
	}
	if datasetUUID == "" {
		return nil, fmt.Errorf("%w: %s", datary.ErrDatasetNotFound, key)
	}

	payload := client.Original(ctx, datasetUUID, repo.UUID, repo.Workdir.UUID)
	if payload.IsZero() {
		return nil, fmt.Errorf("%w: %s", datary.ErrDatasetNotFound, key)
	}
	return json.MarshalIndent(payload, "", "  ")
}
