// Package execctx defines ExecutionContext: the capability object
// passed into every scheduler, splitter, and shard-executor call. It
// carries the three user callbacks (law evaluation, audit recording,
// access-set lookup), the determinism mode, and opaque caller state,
// re-expressing the original's function-pointer-plus-user_data design
// as polymorphic Go callables.
package execctx

import (
	"context"
	"time"

	"github.com/ridgeline/taskcore/access"
	"github.com/ridgeline/taskcore/dlog"
	"github.com/ridgeline/taskcore/taskir"
)

// DeterminismMode selects how strictly a run must behave.
type DeterminismMode int32

const (
	Strict DeterminismMode = iota
	Audit
	Test
)

// DecisionKind is the verdict a law evaluation returns for one task.
type DecisionKind int32

const (
	Accept DecisionKind = iota
	Refuse
	Transform
	Constrain
)

func (k DecisionKind) String() string {
	switch k {
	case Accept:
		return "Accept"
	case Refuse:
		return "Refuse"
	case Transform:
		return "Transform"
	case Constrain:
		return "Constrain"
	default:
		return "DecisionKind(?)"
	}
}

// Refusal codes, stable numeric ids preserved exactly so downstream
// fixtures remain valid.
const (
	RefusalInvalidGraph int32 = 1
	RefusalLaw          int32 = 2
	RefusalConflict     int32 = 3
	RefusalReduction    int32 = 4
	RefusalAccessSet    int32 = 5
)

// Audit event ids, stable numeric, preserved exactly.
const (
	EventAdmitted    int32 = 1
	EventRefused     int32 = 2
	EventTransformed int32 = 3
	EventExecuted    int32 = 4
	EventCommitted   int32 = 5
)

// LawDecision is the verdict returned by the law-evaluation callback.
type LawDecision struct {
	Kind                    DecisionKind
	RefusalCode             int32
	TransformedFidelityTier taskir.FidelityTier
	TransformedNextDueTick  uint64
}

// AuditEvent is one record handed to the audit callback.
type AuditEvent struct {
	EventID      int32
	TaskID       uint64
	DecisionKind DecisionKind
	RefusalCode  int32
}

// LawEvaluator decides the fate of a task at admission. A nil
// evaluator behaves as accept-all.
type LawEvaluator func(ctx *ExecutionContext, task *taskir.TaskNode) LawDecision

// AuditRecorder receives one call per audit event.
type AuditRecorder func(ctx *ExecutionContext, event AuditEvent)

// AccessSetLookup resolves an access_set_id to its declaration. A nil
// return means "unknown id" and causes a per-task ACCESS_SET refusal.
type AccessSetLookup func(ctx *ExecutionContext, accessSetID uint64) *access.Set

// PhaseObserver is notified once a phase's admission loop finishes,
// with the number of tasks the phase contained and how long admission
// took. A nil observer disables phase-level instrumentation.
type PhaseObserver func(ctx *ExecutionContext, phaseID uint32, taskCount int, duration time.Duration)

// Evaluator, Recorder, and Resolver are interface equivalents of the
// three callback types above, for callers that prefer to supply an
// object rather than a closure (and for execctxmock's generated-style
// mocks, which mock interfaces rather than bare func types).
type Evaluator interface {
	EvaluateLaw(ctx *ExecutionContext, task *taskir.TaskNode) LawDecision
}

type Recorder interface {
	RecordAudit(ctx *ExecutionContext, event AuditEvent)
}

type Resolver interface {
	LookupAccessSet(ctx *ExecutionContext, accessSetID uint64) *access.Set
}

// FromEvaluator adapts an Evaluator into a LawEvaluator func.
func FromEvaluator(e Evaluator) LawEvaluator {
	if e == nil {
		return nil
	}
	return e.EvaluateLaw
}

// FromRecorder adapts a Recorder into an AuditRecorder func.
func FromRecorder(r Recorder) AuditRecorder {
	if r == nil {
		return nil
	}
	return r.RecordAudit
}

// FromResolver adapts a Resolver into an AccessSetLookup func.
func FromResolver(r Resolver) AccessSetLookup {
	if r == nil {
		return nil
	}
	return r.LookupAccessSet
}

// ExecutionContext is the handle passed into schedulers, the splitter,
// and the shard executor.
type ExecutionContext struct {
	EvaluateLaw     LawEvaluator
	RecordAudit     AuditRecorder
	LookupAccessSet AccessSetLookup
	OnPhase         PhaseObserver

	Mode   DeterminismMode
	ActNow uint64

	Log dlog.Logger

	// UserState is opaque caller state, reachable from inside the three
	// callbacks above via the ctx argument they're given.
	UserState any
}

// HasAccessSetLookup satisfies taskir.ContextChecker.
func (c *ExecutionContext) HasAccessSetLookup() bool {
	return c != nil && c.LookupAccessSet != nil
}

// EvalLaw invokes the law callback, defaulting to Accept when none was
// supplied.
func (c *ExecutionContext) EvalLaw(task *taskir.TaskNode) LawDecision {
	if c.EvaluateLaw == nil {
		return LawDecision{Kind: Accept}
	}
	return c.EvaluateLaw(c, task)
}

// Audit invokes the audit callback, if any.
func (c *ExecutionContext) Audit(event AuditEvent) {
	if c.RecordAudit != nil {
		c.RecordAudit(c, event)
	}
}

// LookupAccess resolves an access set by id, returning nil if the
// callback is absent or the id is unknown.
func (c *ExecutionContext) LookupAccess(accessSetID uint64) *access.Set {
	if c.LookupAccessSet == nil {
		return nil
	}
	return c.LookupAccessSet(c, accessSetID)
}

// ObservePhase invokes the phase observer, if any.
func (c *ExecutionContext) ObservePhase(phaseID uint32, taskCount int, duration time.Duration) {
	if c.OnPhase != nil {
		c.OnPhase(c, phaseID, taskCount, duration)
	}
}

// logger returns a non-nil logger, substituting a no-op logger when
// none was configured so callers never need a nil check.
func (c *ExecutionContext) logger() dlog.Logger {
	if c.Log == nil {
		return dlog.NoOp()
	}
	return c.Log
}

// Logger exposes the context's logger, defaulting to a no-op sink.
func (c *ExecutionContext) Logger() dlog.Logger {
	return c.logger()
}

type contextKeyType struct{}

var contextKey = contextKeyType{}

// WithContext attaches ec to a stdlib context.Context so code that
// holds only a context.Context can recover it with FromContext.
func WithContext(parent context.Context, ec *ExecutionContext) context.Context {
	return context.WithValue(parent, contextKey, ec)
}

// FromContext recovers an ExecutionContext attached by WithContext.
func FromContext(ctx context.Context) (*ExecutionContext, bool) {
	ec, ok := ctx.Value(contextKey).(*ExecutionContext)
	return ec, ok
}
