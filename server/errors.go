/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"chainguard.dev/agenteval/agents/evalerr"
	"chainguard.dev/agenteval/agents/runner"
	"chainguard.dev/agenteval/agents/runstore"
	"github.com/chainguard-dev/clog"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// StatusFor maps an error to the HTTP status returned for it.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, evalerr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, evalerr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, evalerr.ErrImmutableField), errors.Is(err, runstore.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, runner.ErrShutdown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error    string   `json:"error"`
	Problems []string `json:"problems,omitempty"`
	Fields   []string `json:"fields,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	body := errorBody{Error: err.Error()}
	var verr *evalerr.ValidationError
	if errors.As(err, &verr) {
		body.Problems = verr.Problems
	}
	var ierr *evalerr.ImmutableFieldError
	if errors.As(err, &ierr) {
		body.Fields = ierr.Fields
	}

	log := clog.FromContext(r.Context()).With("status", status, "error", err)
	if status >= http.StatusInternalServerError {
		log.Error("Request error")
	} else {
		log.Info("Request rejected")
	}
	writeJSON(w, r, status, body)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		clog.FromContext(r.Context()).With("error", err).Warn("Failed to write response")
	}
}

// decode reads a single JSON value from the request body. Malformed bodies
// are validation errors.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return evalerr.Validationf("request", "request body is empty")
		}
		return evalerr.Validationf("request", "malformed JSON body: %v", err)
	}
	if dec.More() {
		return evalerr.Validationf("request", "request body must hold a single JSON value")
	}
	return nil
}

func missing(field string) error {
	return evalerr.Validationf("request", "%s is required", field)
}

func invalidf(format string, args ...any) error {
	return evalerr.Validationf("request", format, args...)
}
