/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package runstore persists evaluation runs as directories holding metadata,
an append-only event log and, once complete, a result document.

	{root}/2026-03-01/01JNX.../
	    metadata.json
	    events/001_trace_load.json
	    events/002_dimension_start.json
	    ...
	    result.json

Each run has exactly one writer, a *Run returned by Create or Resume. Every
record is written to a temporary file and renamed into place, so readers
polling with ReadEvents never observe a partial event and need no locks.
Status moves from running to completed or failed and never back.

A running run that sees no activity for longer than the inactivity timeout
is reported as failed by every read. The files are not changed by reads;
the owner of the run, or a process that resumes it, records the failure.
*/
package runstore
