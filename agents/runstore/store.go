/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package runstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"chainguard.dev/agenteval/agents/evalerr"
	"github.com/chainguard-dev/clog"
	"github.com/natefinch/atomic"
	"github.com/oklog/ulid/v2"
)

// Status is the externally visible state of a run. Created and running are
// collapsed into Running.
type Status string

const (
	Running   Status = "running"
	Completed Status = "completed"
	Failed    Status = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == Completed || s == Failed
}

// File and directory names inside a run directory.
const (
	MetadataFile = "metadata.json"
	ResultFile   = "result.json"
	EventsDir    = "events"
	ReportDir    = "report"
)

// DefaultInactivityTimeout is how long a running run may go without a new
// event before readers treat it as failed.
const DefaultInactivityTimeout = 15 * time.Minute

// ErrNotReady is returned by ReadResult while no result has been written.
var ErrNotReady = errors.New("evaluation result not available")

var eventFile = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.json$`)

// Metadata is the persisted state of one run.
type Metadata struct {
	EvaluationID string     `json:"evaluation_id"`
	TestCaseID   string     `json:"test_case_id,omitempty"`
	TestCaseIDs  []string   `json:"test_case_ids,omitempty"`
	AgentType    string     `json:"agent_type,omitempty"`
	Status       Status     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// Event is one immutable record in a run's log.
type Event struct {
	Sequence  int             `json:"sequence_number"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// Page is the answer to a poll: the events from the requested index on,
// the total number of events, and the run's current status.
type Page struct {
	EvaluationID string  `json:"evaluation_id"`
	Events       []Event `json:"events"`
	TotalEvents  int     `json:"total_events"`
	Status       Status  `json:"status"`
	Error        string  `json:"error,omitempty"`
}

// Store keeps runs under {root}/{YYYY-MM-DD}/{evaluation_id}/. The
// directory tree is the only source of truth; any index is rebuilt by
// scanning it.
type Store struct {
	root    string
	timeout time.Duration
	now     func() time.Time
	newID   func() string
}

// Option configures a Store.
type Option func(*Store)

// WithInactivityTimeout overrides DefaultInactivityTimeout. Zero disables
// the timeout.
func WithInactivityTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store rooted at root.
func New(root string, opts ...Option) *Store {
	s := &Store{
		root:    root,
		timeout: DefaultInactivityTimeout,
		now:     time.Now,
		newID:   func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// InactivityTimeout returns the configured inactivity timeout.
func (s *Store) InactivityTimeout() time.Duration { return s.timeout }

// Create allocates a new evaluation id and durably writes the run's
// metadata with status running before returning. The returned Run is the
// run's single writer.
func (s *Store) Create(ctx context.Context, meta Metadata) (*Run, error) {
	now := s.now().UTC()
	meta.EvaluationID = s.newID()
	meta.Status = Running
	meta.StartedAt = now
	meta.UpdatedAt = now
	meta.CompletedAt = nil
	meta.Error = ""

	dir := filepath.Join(s.root, now.Format(time.DateOnly), meta.EvaluationID)
	if err := os.MkdirAll(filepath.Join(dir, EventsDir), 0o755); err != nil {
		return nil, &evalerr.PersistenceError{Op: "mkdir", Path: dir, Err: err}
	}
	if err := writeJSON(filepath.Join(dir, MetadataFile), meta); err != nil {
		return nil, err
	}
	clog.FromContext(ctx).With("evaluation_id", meta.EvaluationID, "status", meta.Status, "dir", dir).Info("Created evaluation run")
	return &Run{store: s, dir: dir, meta: meta, next: 1, last: now}, nil
}

// Resume takes over as writer of a run that is still running but has no
// live writer, for example after a restart. The next event continues the
// existing sequence.
func (s *Store) Resume(ctx context.Context, id string) (*Run, error) {
	dir, err := s.locate(id)
	if err != nil {
		return nil, err
	}
	meta, err := readMetadata(dir)
	if err != nil {
		return nil, err
	}
	if meta.Status.Terminal() {
		return nil, fmt.Errorf("evaluation %s is already %s", id, meta.Status)
	}
	names, err := eventNames(dir)
	if err != nil {
		return nil, err
	}
	last, err := lastEventTime(dir)
	if err != nil {
		return nil, err
	}
	clog.FromContext(ctx).With("evaluation_id", id, "events", len(names)).Info("Resumed evaluation run")
	return &Run{store: s, dir: dir, meta: *meta, next: len(names) + 1, last: last}, nil
}

// ReadEvents returns events[start:] of the run together with the total
// event count and current status. It never blocks; an unchanged run yields
// an empty page. Unknown runs return an error matching evalerr.ErrNotFound.
func (s *Store) ReadEvents(ctx context.Context, id string, start int) (*Page, error) {
	if start < 0 {
		return nil, evalerr.Validationf("start_index", "must not be negative, got %d", start)
	}
	dir, err := s.locate(id)
	if err != nil {
		return nil, err
	}
	// Metadata is read first: a terminal status then implies every event
	// written before it is visible to the listing below.
	meta, err := readMetadata(dir)
	if err != nil {
		return nil, err
	}
	names, err := eventNames(dir)
	if err != nil {
		return nil, err
	}

	page := &Page{
		EvaluationID: id,
		Events:       []Event{},
		TotalEvents:  len(names),
		Status:       meta.Status,
		Error:        meta.Error,
	}
	var last time.Time
	for i := start; i < len(names); i++ {
		ev, err := readEvent(filepath.Join(dir, EventsDir, names[i]))
		if err != nil {
			return nil, err
		}
		page.Events = append(page.Events, ev)
	}
	if len(page.Events) > 0 {
		last = page.Events[len(page.Events)-1].Timestamp
	} else if len(names) > 0 {
		ev, err := readEvent(filepath.Join(dir, EventsDir, names[len(names)-1]))
		if err != nil {
			return nil, err
		}
		last = ev.Timestamp
	}
	if msg, ok := s.expired(meta, last); ok {
		page.Status = Failed
		page.Error = msg
	}
	return page, nil
}

// ReadMetadata returns the run's metadata as readers see it, with the
// inactivity timeout applied.
func (s *Store) ReadMetadata(ctx context.Context, id string) (*Metadata, error) {
	dir, err := s.locate(id)
	if err != nil {
		return nil, err
	}
	return s.effective(dir)
}

// ReadResult returns the raw result document of a completed run. Runs
// without one return an error matching ErrNotReady.
func (s *Store) ReadResult(ctx context.Context, id string) (json.RawMessage, error) {
	dir, err := s.locate(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, ResultFile))
	if errors.Is(err, fs.ErrNotExist) {
		meta, merr := s.effective(dir)
		if merr != nil {
			return nil, merr
		}
		return nil, fmt.Errorf("%w: evaluation %s is %s", ErrNotReady, id, meta.Status)
	} else if err != nil {
		return nil, fmt.Errorf("reading result of %s: %w", id, err)
	}
	return data, nil
}

// Dir returns the directory of the run with the given id.
func (s *Store) Dir(id string) (string, error) {
	return s.locate(id)
}

// List scans the root and returns the metadata of every run, newest first.
// Unreadable runs are logged and skipped.
func (s *Store) List(ctx context.Context) ([]Metadata, error) {
	matches, err := filepath.Glob(filepath.Join(s.root, "*", "*", MetadataFile))
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	out := make([]Metadata, 0, len(matches))
	for _, m := range matches {
		meta, err := s.effective(filepath.Dir(m))
		if err != nil {
			clog.FromContext(ctx).With("path", m, "error", err).Warn("Skipping unreadable run")
			continue
		}
		out = append(out, *meta)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].EvaluationID > out[j].EvaluationID
	})
	return out, nil
}

// Expired reports whether a running run has been inactive for longer than
// the timeout, along with the error message readers are shown.
func (s *Store) Expired(ctx context.Context, id string) (string, bool, error) {
	dir, err := s.locate(id)
	if err != nil {
		return "", false, err
	}
	meta, err := readMetadata(dir)
	if err != nil {
		return "", false, err
	}
	last, err := lastEventTime(dir)
	if err != nil {
		return "", false, err
	}
	msg, ok := s.expired(meta, last)
	return msg, ok, nil
}

func (s *Store) effective(dir string) (*Metadata, error) {
	meta, err := readMetadata(dir)
	if err != nil {
		return nil, err
	}
	last, err := lastEventTime(dir)
	if err != nil {
		return nil, err
	}
	if msg, ok := s.expired(meta, last); ok {
		meta.Status = Failed
		meta.Error = msg
	}
	return meta, nil
}

func (s *Store) expired(meta *Metadata, lastEvent time.Time) (string, bool) {
	if s.timeout <= 0 || meta.Status != Running {
		return "", false
	}
	last := meta.UpdatedAt
	if lastEvent.After(last) {
		last = lastEvent
	}
	if s.now().Sub(last) <= s.timeout {
		return "", false
	}
	return TimeoutMessage(s.timeout), true
}

// TimeoutMessage is the error recorded for runs abandoned after d of
// inactivity.
func TimeoutMessage(d time.Duration) string {
	return fmt.Sprintf("evaluation timed out after %s of inactivity", d)
}

func (s *Store) locate(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\*?[`) || id == "." || id == ".." {
		return "", evalerr.Validationf("evaluation_id", "invalid evaluation id %q", id)
	}
	// ULIDs carry their creation time, which names the day directory.
	if u, err := ulid.ParseStrict(id); err == nil {
		dir := filepath.Join(s.root, ulid.Time(u.Time()).UTC().Format(time.DateOnly), id)
		if _, err := os.Stat(filepath.Join(dir, MetadataFile)); err == nil {
			return dir, nil
		}
	}
	matches, err := filepath.Glob(filepath.Join(s.root, "*", id, MetadataFile))
	if err != nil {
		return "", fmt.Errorf("searching for evaluation %s: %w", id, err)
	}
	if len(matches) == 0 {
		return "", evalerr.NotFound("evaluation", id)
	}
	sort.Strings(matches)
	return filepath.Dir(matches[0]), nil
}

func readMetadata(dir string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if err != nil {
		return nil, fmt.Errorf("reading run metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing run metadata in %s: %w", dir, err)
	}
	return &meta, nil
}

// eventNames returns the contiguous prefix of event file names, ordered by
// sequence number starting at 1. Anything after a gap is not yet visible.
func eventNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(dir, EventsDir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}

	type named struct {
		seq  int
		name string
	}
	var files []named
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		m := eventFile.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		seq, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		files = append(files, named{seq: seq, name: e.Name()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].seq < files[j].seq })

	names := make([]string, 0, len(files))
	for i, f := range files {
		if f.seq != i+1 {
			break
		}
		names = append(names, f.name)
	}
	return names, nil
}

func lastEventTime(dir string) (time.Time, error) {
	names, err := eventNames(dir)
	if err != nil || len(names) == 0 {
		return time.Time{}, err
	}
	ev, err := readEvent(filepath.Join(dir, EventsDir, names[len(names)-1]))
	if err != nil {
		return time.Time{}, err
	}
	return ev.Timestamp, nil
}

func readEvent(path string) (Event, error) {
	var ev Event
	data, err := os.ReadFile(path)
	if err != nil {
		return ev, fmt.Errorf("reading event: %w", err)
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("parsing event %s: %w", filepath.Base(path), err)
	}
	return ev, nil
}

// writeJSON replaces path with the encoding of v in one rename so readers
// never observe a partial record.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return &evalerr.PersistenceError{Op: "write", Path: path, Err: err}
	}
	return nil
}
