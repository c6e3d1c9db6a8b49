/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agenttrace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"chainguard.dev/agenteval/agents/evalerr"
	"cloud.google.com/go/storage"
)

// GCSStore reads traces stored as <prefix>/<id>.json objects in a bucket.
type GCSStore struct {
	bucket *storage.BucketHandle
	prefix string
}

// NewGCSStore creates a GCSStore from a gs://bucket/prefix URL using
// application default credentials.
func NewGCSStore(ctx context.Context, root string) (*GCSStore, error) {
	bucket, prefix, err := parseGCSURL(root)
	if err != nil {
		return nil, err
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	return &GCSStore{bucket: client.Bucket(bucket), prefix: prefix}, nil
}

// Get implements Reader.
func (s *GCSStore) Get(ctx context.Context, id string) (*Trace, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	r, err := s.bucket.Object(path.Join(s.prefix, id+".json")).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, evalerr.NotFound("trace", id)
	} else if err != nil {
		return nil, fmt.Errorf("opening trace %s: %w", id, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading trace %s: %w", id, err)
	}
	return decode(id, data)
}

func parseGCSURL(root string) (bucket, prefix string, err error) {
	rest, ok := strings.CutPrefix(root, "gs://")
	if !ok {
		return "", "", fmt.Errorf("not a gs:// url: %q", root)
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("missing bucket in %q", root)
	}
	return bucket, strings.Trim(prefix, "/"), nil
}
