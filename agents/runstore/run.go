/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package runstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"chainguard.dev/agenteval/agents/evalerr"
	"github.com/chainguard-dev/clog"
)

// Event types written by the run engine.
const (
	EventTraceLoad          = "trace_load"
	EventDimensionStart     = "dimension_start"
	EventOverallScore       = "overall_score"
	EventEvaluationComplete = "evaluation_complete"
	EventEvaluationError    = "evaluation_error"
)

// PhaseTimeout is the phase of the evaluation_error event written when a
// run exceeds the inactivity timeout.
const PhaseTimeout = "timeout"

// DimensionEventType returns the event type recording one dimension's
// evaluation, e.g. "tool_usage_eval".
func DimensionEventType(dimension string) string {
	return dimension + "_eval"
}

// ErrClosed is returned when writing to a run that reached a terminal status.
var ErrClosed = errors.New("run is closed")

var eventType = regexp.MustCompile(`^[a-z0-9_]+$`)

// Run is the single writer of one run directory. Its methods are safe for
// concurrent use; sequence numbers are assigned under a lock.
//
// A writer that stays inactive past the store's timeout is closed on its
// next write: the run is durably failed and the write returns ErrClosed, so
// readers that were already told the run failed never see it resume.
type Run struct {
	store *Store
	dir   string

	mu   sync.Mutex
	meta Metadata
	next int
	last time.Time
}

// ID returns the run's evaluation id.
func (r *Run) ID() string { return r.meta.EvaluationID }

// Dir returns the run's directory.
func (r *Run) Dir() string { return r.dir }

// Metadata returns a copy of the writer's view of the run metadata.
func (r *Run) Metadata() Metadata {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.meta
}

// Emit appends one event with the next sequence number. A failed write
// returns a *evalerr.PersistenceError and leaves the sequence unchanged.
func (r *Run) Emit(ctx context.Context, typ string, payload any) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.emitLocked(ctx, typ, payload)
}

func (r *Run) emitLocked(ctx context.Context, typ string, payload any) (Event, error) {
	if err := r.openLocked(ctx); err != nil {
		return Event{}, fmt.Errorf("emitting %s: %w", typ, err)
	}
	return r.appendLocked(ctx, typ, payload)
}

// syncLocked adopts a terminal status another writer put on disk.
func (r *Run) syncLocked() {
	if r.meta.Status.Terminal() {
		return
	}
	if disk, err := readMetadata(r.dir); err == nil && disk.Status.Terminal() {
		r.meta = *disk
	}
}

// openLocked returns ErrClosed unless the run may still be written. A run
// past the inactivity timeout is failed here.
func (r *Run) openLocked(ctx context.Context) error {
	r.syncLocked()
	if r.meta.Status.Terminal() {
		return fmt.Errorf("evaluation %s is %s: %w", r.meta.EvaluationID, r.meta.Status, ErrClosed)
	}
	msg, expired := r.store.expired(&r.meta, r.last)
	if !expired {
		return nil
	}
	log := clog.FromContext(ctx).With("evaluation_id", r.meta.EvaluationID)
	if _, err := r.appendLocked(ctx, EventEvaluationError, map[string]string{
		"error": msg,
		"phase": PhaseTimeout,
	}); err != nil {
		log.With("error", err).Warn("Could not record timeout event")
	}
	if err := r.transitionLocked(ctx, Failed, msg); err != nil {
		return errors.Join(err, ErrClosed)
	}
	log.Warn("Closed evaluation run after inactivity")
	return fmt.Errorf("evaluation %s: %s: %w", r.meta.EvaluationID, msg, ErrClosed)
}

func (r *Run) appendLocked(ctx context.Context, typ string, payload any) (Event, error) {
	if !eventType.MatchString(typ) {
		return Event{}, fmt.Errorf("invalid event type %q", typ)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encoding %s payload: %w", typ, err)
	}

	ev := Event{
		Sequence:  r.next,
		Type:      typ,
		Timestamp: r.store.now().UTC(),
		Payload:   body,
	}
	path := filepath.Join(r.dir, EventsDir, fmt.Sprintf("%03d_%s.json", ev.Sequence, typ))
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		return Event{}, &evalerr.PersistenceError{Op: "write", Path: path, Err: fs.ErrExist}
	}
	if err := writeJSON(path, ev); err != nil {
		return Event{}, err
	}
	r.next++
	r.last = ev.Timestamp
	clog.FromContext(ctx).With("evaluation_id", r.meta.EvaluationID, "sequence", ev.Sequence, "type", typ).Debug("Emitted event")
	return ev, nil
}

// Complete writes the result document, appends evaluation_complete with the
// given payload and then marks the run completed.
func (r *Run) Complete(ctx context.Context, result any, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.openLocked(ctx); err != nil {
		return fmt.Errorf("completing: %w", err)
	}

	path := filepath.Join(r.dir, ResultFile)
	if _, err := os.Stat(path); err == nil {
		return &evalerr.PersistenceError{Op: "write", Path: path, Err: fs.ErrExist}
	}
	if err := writeJSON(path, result); err != nil {
		return err
	}
	if _, err := r.appendLocked(ctx, EventEvaluationComplete, payload); err != nil {
		return err
	}
	return r.transitionLocked(ctx, Completed, "")
}

// Fail appends an evaluation_error event naming the phase and marks the run
// failed. If the event cannot be written the status is still updated when
// possible, since a failed run must not stay running.
func (r *Run) Fail(ctx context.Context, phase string, cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncLocked()
	if r.meta.Status.Terminal() {
		return fmt.Errorf("failing evaluation %s: %w", r.meta.EvaluationID, ErrClosed)
	}

	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	_, emitErr := r.appendLocked(ctx, EventEvaluationError, map[string]string{
		"error": msg,
		"phase": phase,
	})
	if err := r.transitionLocked(ctx, Failed, msg); err != nil {
		return errors.Join(emitErr, err)
	}
	return emitErr
}

func (r *Run) transitionLocked(ctx context.Context, to Status, msg string) error {
	if r.meta.Status.Terminal() {
		return fmt.Errorf("evaluation %s is already %s: %w", r.meta.EvaluationID, r.meta.Status, ErrClosed)
	}
	next := r.meta
	now := r.store.now().UTC()
	next.Status = to
	next.UpdatedAt = now
	next.CompletedAt = &now
	next.Error = msg
	if err := writeJSON(filepath.Join(r.dir, MetadataFile), next); err != nil {
		return err
	}
	r.meta = next
	clog.FromContext(ctx).With("evaluation_id", next.EvaluationID, "status", to, "events", r.next-1).Info("Evaluation run finished")
	return nil
}
