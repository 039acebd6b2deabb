// Package scheduler implements the phase-ordered topological admission
// algorithm shared by the single-thread reference backend and the
// parallel backend: law evaluation, AccessSet conflict checking, and
// canonical-order commit emission.
package scheduler

import (
	"github.com/ridgeline/taskcore/execctx"
	"github.com/ridgeline/taskcore/taskir"
)

// Status is the return value of a schedule call, distinguishing "the
// core refused to run" from per-task refusals reported via audit.
type Status int32

const (
	OK Status = iota
	InvalidGraph
	AllocFail
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case InvalidGraph:
		return "INVALID_GRAPH"
	case AllocFail:
		return "ALLOC_FAIL"
	default:
		return "Status(?)"
	}
}

// Sink is invoked once per executed task with the working copy (which
// may carry law-transformed fields) and the decision that admitted it.
type Sink interface {
	OnTask(task *taskir.TaskNode, decision execctx.LawDecision)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(task *taskir.TaskNode, decision execctx.LawDecision)

func (f SinkFunc) OnTask(task *taskir.TaskNode, decision execctx.LawDecision) {
	f(task, decision)
}
