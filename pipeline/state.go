// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package pipeline

import (
	"fmt"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/maskpipe/stage"
)

// State is the state of a pipeline run.
type State int

const (
	Pending State = iota
	Extracting
	Masking
	Loading
	Encrypting
	Succeeded
	Failed
)

var stateNames = [...]string{
	Pending:    "pending",
	Extracting: "extracting",
	Masking:    "masking",
	Loading:    "loading",
	Encrypting: "encrypting",
	Succeeded:  "succeeded",
	Failed:     "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal tells whether s is a terminal state.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed
}

// transitions lists the states reachable from each state. Runs
// progress linearly through the stages; any nonterminal state may
// fail.
var transitions = map[State][]State{
	Pending:    {Extracting, Failed},
	Extracting: {Masking, Failed},
	Masking:    {Loading, Failed},
	Loading:    {Encrypting, Failed},
	Encrypting: {Succeeded, Failed},
}

// CanTransition tells whether a run may move from state from to state to.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// stageStates maps each stage to the run state while it executes.
var stageStates = map[stage.Name]State{
	stage.Extract: Extracting,
	stage.Mask:    Masking,
	stage.Load:    Loading,
	stage.Encrypt: Encrypting,
}

// Run records the progress of a pipeline run.
type Run struct {
	// ID is the run id.
	ID string

	mu      sync.Mutex
	history []State
	results []stage.Result
}

func newRun(id string) *Run {
	return &Run{ID: id, history: []State{Pending}}
}

// State returns the current state of the run.
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.history[len(r.history)-1]
}

// History returns every state the run has been in, in order.
func (r *Run) History() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.history...)
}

// Results returns the result of every stage attempt of the run, in
// order. Retried stages contribute one result per attempt.
func (r *Run) Results() []stage.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]stage.Result(nil), r.results...)
}

// Records returns the number of records processed by the last
// successful attempt of the named stage, and whether there was one.
func (r *Run) Records(name stage.Name) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.results) - 1; i >= 0; i-- {
		if res := r.results[i]; res.Stage == name && res.Success {
			return res.Records, true
		}
	}
	return 0, false
}

func (r *Run) transition(to State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	from := r.history[len(r.history)-1]
	if !CanTransition(from, to) {
		return errors.E(errors.Invalid, fmt.Sprintf("run %s: invalid transition %s -> %s", r.ID, from, to))
	}
	r.history = append(r.history, to)
	return nil
}

func (r *Run) add(res stage.Result) {
	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()
}
