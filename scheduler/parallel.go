package scheduler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ridgeline/taskcore/execctx"
	"github.com/ridgeline/taskcore/taskir"
)

// ScheduleParallel is externally indistinguishable from Schedule: it
// must produce the same set of Executed tasks, the same multiset of
// Admitted/Refused/Transformed events with identical refusal codes,
// and the identical ordered sequence of Committed events per phase.
// It differs only in mechanism — law evaluation for every task in a
// phase is fanned out across a worker pool, since each task's law
// decision (including its one permitted Transform retry) is pure and
// independent of every other task's. The subsequent admission pass
// that decides Admit/Refuse against already-committed AccessSets
// still walks the phase in the same lowest-index-first order the
// reference scheduler uses, because that order is what the conflict
// outcome (and hence the refusal multiset) depends on; only the sink
// invocation for an admitted task is dispatched onto the worker pool,
// since sink order within a phase is not observable.
func ScheduleParallel(g *taskir.TaskGraph, ctx *execctx.ExecutionContext, sink Sink, workers int) Status {
	if err := taskir.Validate(g, ctx); err != nil {
		return InvalidGraph
	}
	if workers <= 0 {
		workers = 1
	}

	index := buildIndex(g)
	scratch := newArena(len(g.Tasks))

	// Audit and sink calls may be invoked from worker goroutines; the
	// scheduler serializes them so a caller's recorder/sink need not be
	// internally synchronized.
	var mu sync.Mutex
	guardedCtx := wrapWithMutexAudit(ctx, &mu)
	guardedSink := wrapWithMutexSink(sink, &mu)

	for _, rng := range phaseRanges(g.Tasks) {
		if err := runPhaseParallel(g, index, rng, guardedCtx, guardedSink, scratch, workers); err != nil {
			return AllocFail
		}
	}
	return OK
}

func runPhaseParallel(
	g *taskir.TaskGraph,
	index map[uint64]int,
	rng phaseRange,
	ctx *execctx.ExecutionContext,
	sink Sink,
	scratch *arena,
	workers int,
) error {
	n := rng.end - rng.start
	inDegree := scratch.inDegree[:n]
	adj := phaseAdjacency(g, index, rng, inDegree)
	started := time.Now()

	// Precompute every task's law decision concurrently; each
	// evaluation is independent of the others (it only reads the
	// original node and calls user callbacks), so no ordering
	// constraint is lost by computing them out of admission order.
	workingNodes := make([]taskir.TaskNode, n)
	decisions := make([]execctx.LawDecision, n)
	refusedByLaw := make([]bool, n)

	group, gctx := errgroup.WithContext(context.Background())
	group.SetLimit(workers)
	for i := 0; i < n; i++ {
		i := i
		group.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			working, decision, refused := resolveLaw(ctx, &g.Tasks[rng.start+i])
			workingNodes[i] = working
			decisions[i] = decision
			refusedByLaw[i] = refused
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	var committed []committedEntry
	var sinkGroup errgroup.Group
	sinkGroup.SetLimit(workers)

	remaining := n
	for remaining > 0 {
		chosen := -1
		for i := 0; i < n; i++ {
			if !scratch.scheduled.Test(uint(rng.start+i)) && inDegree[i] == 0 {
				chosen = i
				break
			}
		}
		if chosen == -1 {
			break
		}
		scratch.scheduled.Set(uint(rng.start + chosen))
		remaining--

		admitOnePrecomputed(ctx, &sinkGroup, sink, workingNodes[chosen], decisions[chosen], refusedByLaw[chosen], &committed)

		for _, next := range adj[chosen] {
			inDegree[next]--
		}
	}

	if err := sinkGroup.Wait(); err != nil {
		return err
	}

	emitCommitted(ctx, committed)
	ctx.ObservePhase(rng.phaseID, n, time.Since(started))
	return nil
}

func admitOnePrecomputed(
	ctx *execctx.ExecutionContext,
	sinkGroup *errgroup.Group,
	sink Sink,
	working taskir.TaskNode,
	decision execctx.LawDecision,
	refused bool,
	committed *[]committedEntry,
) {
	if refused {
		code := decision.RefusalCode
		if code == 0 {
			code = execctx.RefusalLaw
		}
		ctx.Audit(execctx.AuditEvent{
			EventID:      execctx.EventRefused,
			TaskID:       working.TaskID,
			DecisionKind: execctx.Refuse,
			RefusalCode:  code,
		})
		logRefusal(ctx, working.TaskID, code)
		return
	}

	entry, failCode := tryAdmit(ctx, working, *committed)
	if failCode != 0 {
		ctx.Audit(execctx.AuditEvent{
			EventID:      execctx.EventRefused,
			TaskID:       working.TaskID,
			DecisionKind: execctx.Refuse,
			RefusalCode:  failCode,
		})
		logRefusal(ctx, working.TaskID, failCode)
		return
	}

	ctx.Audit(execctx.AuditEvent{
		EventID:      execctx.EventAdmitted,
		TaskID:       working.TaskID,
		DecisionKind: decision.Kind,
	})
	ctx.Audit(execctx.AuditEvent{
		EventID:      execctx.EventExecuted,
		TaskID:       working.TaskID,
		DecisionKind: decision.Kind,
	})
	*committed = append(*committed, *entry)

	node := entry.node
	sinkGroup.Go(func() error {
		sink.OnTask(&node, decision)
		return nil
	})
}

// wrapWithMutexAudit returns a shallow copy of ctx whose RecordAudit
// callback is serialized, so a user-supplied recorder that isn't
// internally thread-safe can still be used with the parallel backend.
func wrapWithMutexAudit(ctx *execctx.ExecutionContext, mu *sync.Mutex) *execctx.ExecutionContext {
	inner := ctx.RecordAudit
	wrapped := *ctx
	wrapped.RecordAudit = func(c *execctx.ExecutionContext, event execctx.AuditEvent) {
		mu.Lock()
		defer mu.Unlock()
		if inner != nil {
			inner(ctx, event)
		}
	}
	return &wrapped
}

func wrapWithMutexSink(sink Sink, mu *sync.Mutex) Sink {
	return SinkFunc(func(task *taskir.TaskNode, decision execctx.LawDecision) {
		mu.Lock()
		defer mu.Unlock()
		sink.OnTask(task, decision)
	})
}
