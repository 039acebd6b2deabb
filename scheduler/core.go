package scheduler

import (
	"sort"

	"github.com/bits-and-blooms/bitset"

	"github.com/ridgeline/taskcore/access"
	"github.com/ridgeline/taskcore/dlog"
	"github.com/ridgeline/taskcore/execctx"
	"github.com/ridgeline/taskcore/internal/safemath"
	"github.com/ridgeline/taskcore/taskir"
)

// buildIndex maps task_id to its position in the sorted tasks slice.
func buildIndex(g *taskir.TaskGraph) map[uint64]int {
	idx := make(map[uint64]int, len(g.Tasks))
	for i := range g.Tasks {
		idx[g.Tasks[i].TaskID] = i
	}
	return idx
}

// phaseRange is a contiguous [start, end) slice of the graph's sorted
// tasks sharing one phase_id.
type phaseRange struct {
	phaseID    uint32
	start, end int
}

// phaseRanges splits the already-sorted tasks slice into contiguous
// per-phase ranges.
func phaseRanges(tasks []taskir.TaskNode) []phaseRange {
	if len(tasks) == 0 {
		return nil
	}
	var out []phaseRange
	start := 0
	cur := tasks[0].PhaseID
	for i := 1; i < len(tasks); i++ {
		if tasks[i].PhaseID != cur {
			out = append(out, phaseRange{phaseID: cur, start: start, end: i})
			start = i
			cur = tasks[i].PhaseID
		}
	}
	out = append(out, phaseRange{phaseID: cur, start: start, end: len(tasks)})
	return out
}

// arena is the per-schedule-call scratch space: a scheduled bitmap and
// an in-degree array sized to the whole graph once, sliced and reused
// per phase rather than reallocated.
type arena struct {
	scheduled *bitset.BitSet
	inDegree  []uint32
}

func newArena(taskCount int) *arena {
	return &arena{
		scheduled: bitset.New(uint(taskCount)),
		inDegree:  make([]uint32, taskCount),
	}
}

// phaseAdjacency builds the intra-phase successor adjacency and
// in-degree counts for the tasks in [rng.start, rng.end). Indices
// returned are local to the phase (0-based from rng.start).
func phaseAdjacency(g *taskir.TaskGraph, index map[uint64]int, rng phaseRange, inDegree []uint32) [][]int {
	n := rng.end - rng.start
	adj := make([][]int, n)
	for i := 0; i < n; i++ {
		inDegree[i] = 0
	}
	for _, e := range g.Edges {
		fromIdx, fok := index[e.FromTaskID]
		toIdx, tok := index[e.ToTaskID]
		if !fok || !tok {
			continue
		}
		if fromIdx < rng.start || fromIdx >= rng.end || toIdx < rng.start || toIdx >= rng.end {
			continue
		}
		localFrom := fromIdx - rng.start
		localTo := toIdx - rng.start
		adj[localFrom] = append(adj[localFrom], localTo)
		inDegree[localTo]++
	}
	return adj
}

// committedEntry pairs a working node with its resolved AccessSet, so
// later candidates in the same phase can be conflict-checked against
// it.
type committedEntry struct {
	node   taskir.TaskNode
	access *access.Set
}

// resolveLaw implements steps (c)-(e) of the single-thread algorithm:
// evaluate the law, and if it returns Transform, apply the bounded
// transformation to a working copy and re-evaluate once. A second
// Transform verdict is treated as a Refuse with code LAW, so no
// infinite transform loop can occur.
func resolveLaw(ctx *execctx.ExecutionContext, original *taskir.TaskNode) (taskir.TaskNode, execctx.LawDecision, bool) {
	working := original.Clone()
	decision := ctx.EvalLaw(&working)

	if decision.Kind == execctx.Transform {
		ctx.Audit(execctx.AuditEvent{
			EventID:      execctx.EventTransformed,
			TaskID:       working.TaskID,
			DecisionKind: execctx.Transform,
		})
		ctx.Logger().Debug("scheduler: law transformed task",
			dlog.Uint64("task_id", working.TaskID),
			dlog.Uint32("fidelity_tier", uint32(decision.TransformedFidelityTier)))
		applyTransform(&working, decision)

		second := ctx.EvalLaw(&working)
		if second.Kind == execctx.Transform {
			ctx.Logger().Warn("scheduler: second Transform verdict treated as Refuse",
				dlog.Uint64("task_id", working.TaskID))
			return working, execctx.LawDecision{Kind: execctx.Refuse, RefusalCode: execctx.RefusalLaw}, true
		}
		decision = second
	}

	if decision.Kind == execctx.Refuse {
		return working, decision, true
	}
	return working, decision, false
}

// applyTransform bounds and applies a Transform verdict's fidelity and
// tick fields to working. A proposed tier above working's current tier
// is capped at the current tier, so a Transform can only lower fidelity.
func applyTransform(working *taskir.TaskNode, decision execctx.LawDecision) {
	tier := int32(decision.TransformedFidelityTier)
	if tier > int32(working.FidelityTier) {
		tier = int32(working.FidelityTier)
	}
	working.FidelityTier = taskir.FidelityTier(safemath.ClampFidelity(tier, int32(taskir.Focus)))

	if decision.TransformedNextDueTick != taskir.InvalidTick {
		working.NextDueTick = safemath.ClampTick(decision.TransformedNextDueTick, 0, taskir.InvalidTick-1)
	}
}

// tryAdmit implements steps (f)-(i): resolve the AccessSet, verify its
// reduction rules, conflict-check it against every already-committed
// AccessSet in the phase. On success it returns the entry for the
// caller to append to committed and a code of 0; on failure it returns
// nil and the refusal code.
func tryAdmit(ctx *execctx.ExecutionContext, working taskir.TaskNode, committed []committedEntry) (*committedEntry, int32) {
	set := ctx.LookupAccess(working.AccessSetID)
	if set == nil {
		return nil, execctx.RefusalAccessSet
	}
	if !access.VerifyReductionRules(*set) {
		return nil, execctx.RefusalReduction
	}
	for _, c := range committed {
		if access.DetectConflicts(set, c.access) {
			return nil, execctx.RefusalConflict
		}
	}
	return &committedEntry{node: working, access: set}, 0
}

// emitCommitted stably sorts committed by commit key and emits one
// Committed audit event per entry in that order.
func emitCommitted(ctx *execctx.ExecutionContext, committed []committedEntry) {
	sortCommitted(committed)
	for _, c := range committed {
		ctx.Audit(execctx.AuditEvent{
			EventID: execctx.EventCommitted,
			TaskID:  c.node.TaskID,
		})
	}
}

// logRefusal emits a debug-level log line for a per-task refusal,
// mirroring the Refused audit event without requiring callers to
// re-derive the code-to-name mapping.
func logRefusal(ctx *execctx.ExecutionContext, taskID uint64, code int32) {
	ctx.Logger().Debug("scheduler: task refused",
		dlog.Uint64("task_id", taskID),
		dlog.Int("refusal_code", int(code)))
}

func sortCommitted(committed []committedEntry) {
	sort.SliceStable(committed, func(i, j int) bool {
		return taskir.CompareCommitKey(committed[i].node.CommitKey, committed[j].node.CommitKey) < 0
	})
}
