/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"chainguard.dev/agenteval/agents/derive"
	"chainguard.dev/agenteval/agents/runner"
	"chainguard.dev/agenteval/agents/testcase"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Server routes API requests to the run manager, the deriver and the test
// case store.
type Server struct {
	router  *chi.Mux
	runs    *runner.Manager
	cases   *testcase.Store
	deriver *derive.Deriver
}

// New creates a Server.
func New(runs *runner.Manager, cases *testcase.Store, deriver *derive.Deriver) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		runs:    runs,
		cases:   cases,
		deriver: deriver,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(requestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(otelhttp.NewMiddleware("agenteval.api"))

		r.Post("/test-cases/from-trace", s.createFromTrace)
		r.Get("/test-cases", s.listTestCases)
		r.Get("/test-cases/{id}", s.getTestCase)
		r.Patch("/test-cases/{id}", s.updateTestCase)

		r.Post("/evaluations", s.startEvaluation)
		r.Get("/evaluations", s.listEvaluations)
		r.Get("/evaluations/{id}/events", s.getEvents)
		r.Get("/evaluations/{id}/result", s.getResult)

		r.Get("/schemas/{agent_type}", s.getSchema)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type fromTraceRequest struct {
	TraceID string `json:"trace_id"`
}

func (s *Server) createFromTrace(w http.ResponseWriter, r *http.Request) {
	var req fromTraceRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.TraceID == "" {
		writeError(w, r, missing("trace_id"))
		return
	}
	tc, err := s.deriver.Derive(r.Context(), req.TraceID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, tc)
}

type testCaseList struct {
	TestCaseIDs []string `json:"test_case_ids"`
}

func (s *Server) listTestCases(w http.ResponseWriter, r *http.Request) {
	ids, err := s.cases.List(r.Context(), testcase.AgentType(r.URL.Query().Get("agent_type")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, testCaseList{TestCaseIDs: ids})
}

func (s *Server) getTestCase(w http.ResponseWriter, r *http.Request) {
	tc, err := s.cases.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, tc)
}

func (s *Server) updateTestCase(w http.ResponseWriter, r *http.Request) {
	var partial map[string]json.RawMessage
	if err := decode(w, r, &partial); err != nil {
		writeError(w, r, err)
		return
	}
	if partial == nil {
		writeError(w, r, missing("a JSON object body"))
		return
	}
	tc, err := s.deriver.Update(r.Context(), chi.URLParam(r, "id"), partial)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, tc)
}

type startRequest struct {
	TestCaseID  string   `json:"test_case_id,omitempty"`
	TestCaseIDs []string `json:"test_case_ids,omitempty"`
	AgentType   string   `json:"agent_type,omitempty"`
}

type startResponse struct {
	EvaluationID string `json:"evaluation_id"`
	Status       string `json:"status"`
}

func (s *Server) startEvaluation(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sel := runner.Selection{
		TestCaseIDs: req.TestCaseIDs,
		AgentType:   testcase.AgentType(req.AgentType),
	}
	if req.TestCaseID != "" {
		sel.TestCaseIDs = append([]string{req.TestCaseID}, sel.TestCaseIDs...)
	}
	id, err := s.runs.StartSuite(r.Context(), sel)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/evaluations/"+id+"/events")
	writeJSON(w, r, http.StatusAccepted, startResponse{EvaluationID: id, Status: "running"})
}

func (s *Server) listEvaluations(w http.ResponseWriter, r *http.Request) {
	metas, err := s.runs.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"evaluations": metas})
}

func (s *Server) getEvents(w http.ResponseWriter, r *http.Request) {
	start := 0
	if v := r.URL.Query().Get("start_index"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, r, invalidf("start_index must be an integer, got %q", v))
			return
		}
		start = n
	}
	page, err := s.runs.Events(r.Context(), chi.URLParam(r, "id"), start)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, page)
}

func (s *Server) getResult(w http.ResponseWriter, r *http.Request) {
	suite, err := s.runs.Result(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, suite)
}

func (s *Server) getSchema(w http.ResponseWriter, r *http.Request) {
	sch, err := testcase.Schema(testcase.AgentType(chi.URLParam(r, "agent_type")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sch)
}
