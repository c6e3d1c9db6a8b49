/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package testevals adapts testing.TB to the evals.Observer interface so
// checks and dimensions can run inside ordinary Go tests.
//
// Fail reports through tb.Errorf and Log through tb.Logf. Grades are logged,
// and with WithMinScore a grade below the minimum fails the test:
//
//	func TestCMOFixture(t *testing.T) {
//	    obs := evals.NewNamespacedObserver(func(name string) evals.Observer {
//	        return testevals.NewPrefix(t, name, testevals.WithMinScore(0.9))
//	    })
//	    for _, d := range registry.For(tc.AgentType) {
//	        evals.Evaluate(ctx, d, tc, trace, obs.Child(d.Name()))
//	    }
//	}
//
// The adapter is safe for concurrent use because testing.TB is.
package testevals
