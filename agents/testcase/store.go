/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package testcase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"chainguard.dev/agenteval/agents/evalerr"
	"github.com/chainguard-dev/clog"
	"github.com/natefinch/atomic"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// Partition directory names under the store root.
const (
	FrameworkDir = "framework"
	StudioDir    = "studio-generated"
)

// loadConcurrency bounds the number of files parsed at once.
const loadConcurrency = 8

// Store persists test cases as one file per case under
// {root}/{framework|studio-generated}/{agent_type}/{id}.{json,yaml}.
type Store struct {
	root string
}

// NewStore creates a Store rooted at root.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// PartitionDir returns the directory name for test cases with the given
// origin.
func PartitionDir(by CreatedBy) string {
	if by == Studio {
		return StudioDir
	}
	return FrameworkDir
}

type loaded struct {
	path string
	tc   *TestCase
}

// Load returns every valid test case for agentType, or for all agent types
// when agentType is empty. Files that fail to parse or validate are logged
// and skipped. Within a partition the first file to claim an id wins.
func (s *Store) Load(ctx context.Context, agentType AgentType) ([]*TestCase, error) {
	paths, err := s.files(agentType)
	if err != nil {
		return nil, err
	}

	results := make([]loaded, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i, path := range paths {
		g.Go(func() error {
			tc, err := s.read(ctx, path)
			if err != nil {
				clog.FromContext(ctx).With("path", path, "error", err).Warn("Skipping invalid test case")
				return nil
			}
			results[i] = loaded{path: path, tc: tc}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]string)
	out := make([]*TestCase, 0, len(results))
	for _, r := range results {
		if r.tc == nil {
			continue
		}
		key := partitionOf(s.root, r.path) + "/" + r.tc.ID
		if prev, ok := seen[key]; ok {
			clog.FromContext(ctx).With("path", r.path, "id", r.tc.ID, "previous", prev).Warn("Skipping duplicate test case id")
			continue
		}
		seen[key] = r.path
		out = append(out, r.tc)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get returns the test case with the given id. Studio-generated cases take
// precedence over framework cases with the same id.
func (s *Store) Get(ctx context.Context, id string) (*TestCase, error) {
	path, err := s.locate(id)
	if errors.Is(err, evalerr.ErrNotFound) {
		// Fall back to a scan for files whose name differs from their id.
		all, lerr := s.Load(ctx, "")
		if lerr != nil {
			return nil, lerr
		}
		for _, by := range []CreatedBy{Studio, Framework} {
			for _, tc := range all {
				if tc.ID == id && tc.CreatedBy == by {
					return tc, nil
				}
			}
		}
		return nil, err
	} else if err != nil {
		return nil, err
	}
	return s.read(ctx, path)
}

// Save validates tc and writes it atomically. An existing file for the same
// id keeps its location and encoding.
func (s *Store) Save(ctx context.Context, tc *TestCase) error {
	if tc.CreatedBy == "" {
		tc.CreatedBy = Framework
	}
	data, err := json.MarshalIndent(tc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding test case %s: %w", tc.ID, err)
	}
	if _, err := Validate(tc.ID, data); err != nil {
		return err
	}

	dir := filepath.Join(s.root, PartitionDir(tc.CreatedBy), string(tc.AgentType))
	path := filepath.Join(dir, tc.ID+".json")
	for _, ext := range []string{".yaml", ".yml"} {
		candidate := filepath.Join(dir, tc.ID+ext)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
			if data, err = toYAML(data); err != nil {
				return fmt.Errorf("encoding test case %s: %w", tc.ID, err)
			}
			break
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &evalerr.PersistenceError{Op: "mkdir", Path: dir, Err: err}
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return &evalerr.PersistenceError{Op: "write", Path: path, Err: err}
	}
	clog.FromContext(ctx).With("id", tc.ID, "path", path).Info("Saved test case")
	return nil
}

func (s *Store) read(_ context.Context, path string) (*TestCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var tc *TestCase
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		tc, err = ValidateYAML(path, data)
	default:
		tc, err = Validate(path, data)
	}
	if err != nil {
		return nil, err
	}

	dirType := AgentType(filepath.Base(filepath.Dir(path)))
	if tc.AgentType != dirType {
		return nil, evalerr.Validationf(path, "agent_type %q does not match directory %q", tc.AgentType, dirType)
	}
	if tc.CreatedBy == "" {
		if partitionOf(s.root, path) == StudioDir {
			tc.CreatedBy = Studio
		} else {
			tc.CreatedBy = Framework
		}
	}
	return tc, nil
}

// files lists candidate test case files in deterministic order.
func (s *Store) files(agentType AgentType) ([]string, error) {
	var paths []string
	for _, part := range []string{FrameworkDir, StudioDir} {
		base := filepath.Join(s.root, part)
		typeDirs := []string{string(agentType)}
		if agentType == "" {
			entries, err := os.ReadDir(base)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			} else if err != nil {
				return nil, fmt.Errorf("listing %s: %w", base, err)
			}
			typeDirs = typeDirs[:0]
			for _, e := range entries {
				if e.IsDir() {
					typeDirs = append(typeDirs, e.Name())
				}
			}
		}
		for _, td := range typeDirs {
			entries, err := os.ReadDir(filepath.Join(base, td))
			if errors.Is(err, fs.ErrNotExist) {
				continue
			} else if err != nil {
				return nil, fmt.Errorf("listing %s: %w", filepath.Join(base, td), err)
			}
			for _, e := range entries {
				if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !isTestCaseFile(e.Name()) {
					continue
				}
				paths = append(paths, filepath.Join(base, td, e.Name()))
			}
		}
	}
	return paths, nil
}

func (s *Store) locate(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", evalerr.Validationf("test case", "invalid test case id %q", id)
	}
	for _, part := range []string{StudioDir, FrameworkDir} {
		for _, ext := range []string{".json", ".yaml", ".yml"} {
			matches, err := filepath.Glob(filepath.Join(s.root, part, "*", id+ext))
			if err != nil {
				return "", fmt.Errorf("searching for test case %s: %w", id, err)
			}
			if len(matches) > 0 {
				sort.Strings(matches)
				return matches[0], nil
			}
		}
	}
	return "", evalerr.NotFound("test case", id)
}

func isTestCaseFile(name string) bool {
	switch filepath.Ext(name) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

func partitionOf(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return ""
	}
	part, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	return part
}

func toYAML(jsonData []byte) ([]byte, error) {
	var doc any
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return nil, err
	}
	return yaml.Marshal(doc)
}

// List returns the distinct ids of the valid test cases for agentType, or
// for every agent type when agentType is empty, in sorted order.
func (s *Store) List(ctx context.Context, agentType AgentType) ([]string, error) {
	all, err := s.Load(ctx, agentType)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(all))
	for _, tc := range all {
		if n := len(ids); n > 0 && ids[n-1] == tc.ID {
			continue
		}
		ids = append(ids, tc.ID)
	}
	return ids, nil
}
