/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agenttrace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"chainguard.dev/agenteval/agents/evalerr"
	"github.com/chainguard-dev/clog"
	"github.com/natefinch/atomic"
)

// Reader gives read-only access to captured traces.
type Reader interface {
	// Get returns the trace with the given id, or an error matching
	// evalerr.ErrNotFound.
	Get(ctx context.Context, id string) (*Trace, error)
}

// Open returns a Reader for root. A gs://bucket/prefix root selects the
// Cloud Storage backend; anything else is a local directory.
func Open(ctx context.Context, root string) (Reader, error) {
	if strings.HasPrefix(root, "gs://") {
		return NewGCSStore(ctx, root)
	}
	return NewFileStore(root), nil
}

// FileStore keeps one JSON file per trace under a root directory. Traces may
// sit directly under the root or one level down (for example in a per-day
// directory).
type FileStore struct {
	root string
}

// NewFileStore creates a FileStore rooted at root.
func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

// Root returns the directory the store reads from.
func (s *FileStore) Root() string { return s.root }

// Get implements Reader.
func (s *FileStore) Get(ctx context.Context, id string) (*Trace, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	path, err := s.locate(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading trace %s: %w", id, err)
	}
	return decode(id, data)
}

// Put writes a completed trace. Existing traces are never overwritten.
func (s *FileStore) Put(ctx context.Context, trace *Trace) error {
	if err := checkID(trace.ID); err != nil {
		return err
	}
	path := filepath.Join(s.root, trace.ID+".json")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("trace %s already exists", trace.ID)
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return &evalerr.PersistenceError{Op: "mkdir", Path: s.root, Err: err}
	}

	trace.mu.Lock()
	data, err := json.MarshalIndent(trace, "", "  ")
	trace.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshaling trace %s: %w", trace.ID, err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return &evalerr.PersistenceError{Op: "write", Path: path, Err: err}
	}
	clog.FromContext(ctx).With("trace_id", trace.ID, "path", path).Debug("Stored trace")
	return nil
}

// Recorder returns a TraceCallback that persists every completed trace.
func (s *FileStore) Recorder(ctx context.Context) TraceCallback {
	return func(trace *Trace) {
		if err := s.Put(ctx, trace); err != nil {
			clog.FromContext(ctx).With("trace_id", trace.ID, "error", err).Error("Failed to store trace")
		}
	}
}

// List returns the ids of all stored traces in sorted order.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	for _, pattern := range []string{"*.json", filepath.Join("*", "*.json")} {
		matches, err := filepath.Glob(filepath.Join(s.root, pattern))
		if err != nil {
			return nil, fmt.Errorf("listing traces: %w", err)
		}
		for _, m := range matches {
			ids = append(ids, strings.TrimSuffix(filepath.Base(m), ".json"))
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *FileStore) locate(id string) (string, error) {
	direct := filepath.Join(s.root, id+".json")
	if _, err := os.Stat(direct); err == nil {
		return direct, nil
	}
	matches, err := filepath.Glob(filepath.Join(s.root, "*", id+".json"))
	if err != nil {
		return "", fmt.Errorf("searching for trace %s: %w", id, err)
	}
	if len(matches) == 0 {
		return "", evalerr.NotFound("trace", id)
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

func checkID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return evalerr.Validationf("trace", "invalid trace id %q", id)
	}
	return nil
}

func decode(id string, data []byte) (*Trace, error) {
	var trace Trace
	if err := json.Unmarshal(data, &trace); err != nil {
		return nil, fmt.Errorf("parsing trace %s: %w", id, err)
	}
	if trace.ID == "" {
		trace.ID = id
	}
	return &trace, nil
}
