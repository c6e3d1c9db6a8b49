/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package judge

import (
	"context"
	"errors"

	"cloud.google.com/go/compute/metadata"
	"github.com/chainguard-dev/clog"
	"golang.org/x/oauth2/google"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// detectProject finds the Google Cloud project when none is configured:
// first from the GCE metadata server, then from Application Default
// Credentials.
func detectProject(ctx context.Context) (string, error) {
	if metadata.OnGCE() {
		if id, err := metadata.ProjectIDWithContext(ctx); err == nil && id != "" {
			clog.FromContext(ctx).With("project_id", id).Info("Detected Google Cloud project from metadata")
			return id, nil
		}
	}
	creds, err := google.FindDefaultCredentials(ctx, cloudPlatformScope)
	if err == nil && creds.ProjectID != "" {
		clog.FromContext(ctx).With("project_id", creds.ProjectID).Info("Detected Google Cloud project from default credentials")
		return creds.ProjectID, nil
	}
	return "", errors.New("no Google Cloud project configured or detectable; set GOOGLE_CLOUD_PROJECT")
}
