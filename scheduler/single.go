package scheduler

import (
	"time"

	"github.com/ridgeline/taskcore/execctx"
	"github.com/ridgeline/taskcore/taskir"
)

// Schedule is the single-thread reference scheduler: the semantic
// ground truth every other backend must reproduce. It processes
// phases in ascending phase_id order; within a phase it repeatedly
// picks the lowest-index unscheduled task whose intra-phase in-degree
// is zero, resolves its law decision, conflict-checks it against
// already-committed AccessSets in the phase, and finally emits
// Committed events in ascending commit-key order.
func Schedule(g *taskir.TaskGraph, ctx *execctx.ExecutionContext, sink Sink) Status {
	if err := taskir.Validate(g, ctx); err != nil {
		return InvalidGraph
	}

	index := buildIndex(g)
	scratch := newArena(len(g.Tasks))

	for _, rng := range phaseRanges(g.Tasks) {
		runPhase(g, index, rng, ctx, sink, scratch)
	}
	return OK
}

func runPhase(
	g *taskir.TaskGraph,
	index map[uint64]int,
	rng phaseRange,
	ctx *execctx.ExecutionContext,
	sink Sink,
	scratch *arena,
) {
	n := rng.end - rng.start
	inDegree := scratch.inDegree[:n]
	adj := phaseAdjacency(g, index, rng, inDegree)

	started := time.Now()
	var committed []committedEntry
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
			// Validate already proved the graph acyclic; this can only
			// happen if the caller mutated the graph mid-call.
			break
		}

		scratch.scheduled.Set(uint(rng.start + chosen))
		remaining--

		original := &g.Tasks[rng.start+chosen]
		admitOne(ctx, sink, original, &committed)

		for _, next := range adj[chosen] {
			inDegree[next]--
		}
	}

	emitCommitted(ctx, committed)
	ctx.ObservePhase(rng.phaseID, n, time.Since(started))
}

// admitOne runs steps (b)-(i) of the phase algorithm for a single
// task, appending to committed on success.
func admitOne(ctx *execctx.ExecutionContext, sink Sink, original *taskir.TaskNode, committed *[]committedEntry) {
	working, decision, refused := resolveLaw(ctx, original)
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
	sink.OnTask(&entry.node, decision)
	ctx.Audit(execctx.AuditEvent{
		EventID:      execctx.EventExecuted,
		TaskID:       working.TaskID,
		DecisionKind: decision.Kind,
	})
	*committed = append(*committed, *entry)
}
