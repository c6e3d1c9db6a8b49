/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"chainguard.dev/agenteval/agents/agenttrace"
	"chainguard.dev/agenteval/agents/derive"
	"chainguard.dev/agenteval/agents/runner"
	"chainguard.dev/agenteval/server"
	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"
)

// shutdownGrace bounds how long in-flight requests and runs may take to
// finish once a signal arrives.
const shutdownGrace = 30 * time.Second

func newServeCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the evaluation API over HTTP",
		Long: `Serve the evaluation API over HTTP.

Evaluations replay the trace named by each test case's trace_id. This
binary does not run a live agent, so test cases without a trace_id are
rejected when an evaluation starts. Programs that embed the runner can
supply one with runner.WithAgent.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			mgr, err := e.manager(ctx)
			if err != nil {
				return err
			}
			traces, err := agenttrace.Open(ctx, e.cfg.TraceRoot)
			if err != nil {
				return err
			}
			cases := e.cases()

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", e.cfg.Port),
				Handler:           server.New(mgr, cases, derive.New(traces, cases)),
				ReadHeaderTimeout: 10 * time.Second,
				BaseContext:       func(_ net.Listener) context.Context { return ctx },
			}

			go reapLoop(ctx, mgr, e.cfg.ReapInterval)

			errCh := make(chan error, 1)
			go func() {
				clog.InfoContextf(ctx, "Serving evaluation API on port %d", e.cfg.Port)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("serving: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
			defer cancel()
			clog.InfoContextf(ctx, "Shutting down")
			return errors.Join(srv.Shutdown(shutdownCtx), mgr.Shutdown(shutdownCtx))
		},
	}
}

// reapLoop periodically fails runs that stopped making progress.
func reapLoop(ctx context.Context, mgr *runner.Manager, every time.Duration) {
	if every <= 0 {
		return
	}
	log := clog.FromContext(ctx)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ids, err := mgr.Reap(ctx)
			if err != nil {
				log.With("error", err).Warn("Reaping abandoned runs failed")
				continue
			}
			if len(ids) > 0 {
				log.With("evaluation_ids", ids).Info("Reaped abandoned runs")
			}
		}
	}
}
