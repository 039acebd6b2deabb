package taskir

import (
	"fmt"

	"github.com/ridgeline/taskcore/internal/errs"
)

// ContextChecker is the minimal surface taskir needs from an
// execution context to validate a graph, kept here (rather than
// importing execctx directly) so taskir stays a leaf package that
// execctx can depend on without a cycle.
type ContextChecker interface {
	HasAccessSetLookup() bool
}

// ValidationError describes a single structural defect found in a
// node or graph.
type ValidationError struct {
	Code   string
	TaskID uint64
	Detail string
}

func (e *ValidationError) Error() string {
	if e.TaskID != 0 {
		return fmt.Sprintf("taskir: %s (task_id=%d): %s", e.Code, e.TaskID, e.Detail)
	}
	return fmt.Sprintf("taskir: %s: %s", e.Code, e.Detail)
}

func newErr(code string, taskID uint64, detail string) *ValidationError {
	return &ValidationError{Code: code, TaskID: taskID, Detail: detail}
}

// ValidateNode checks a single node's invariants in isolation.
func ValidateNode(t *TaskNode) error {
	if !t.Category.Valid() {
		return newErr("INVALID_ENUM", t.TaskID, "category out of range")
	}
	if !t.DeterminismClass.Valid() {
		return newErr("INVALID_ENUM", t.TaskID, "determinism_class out of range")
	}
	if !t.FidelityTier.Valid() {
		return newErr("INVALID_ENUM", t.TaskID, "fidelity_tier out of range")
	}
	if t.AccessSetID == 0 {
		return newErr("ZERO_ACCESS_SET", t.TaskID, "access_set_id must be non-zero")
	}
	if t.LawScopeRef == 0 {
		return newErr("ZERO_LAW_SCOPE", t.TaskID, "law_scope_ref must be non-zero")
	}
	if t.Category == Authoritative && len(t.LawTargets) == 0 {
		return newErr("MISSING_LAW_TARGETS", t.TaskID, "authoritative task requires non-empty law_targets")
	}
	if t.Category != Authoritative && len(t.LawTargets) != 0 {
		return newErr("UNEXPECTED_LAW_TARGETS", t.TaskID, "only authoritative tasks may declare law_targets")
	}
	if t.CommitKey.PhaseID != t.PhaseID {
		return newErr("COMMIT_KEY_MISMATCH", t.TaskID, "commit_key.phase_id disagrees with phase_id")
	}
	if t.CommitKey.TaskID != t.TaskID {
		return newErr("COMMIT_KEY_MISMATCH", t.TaskID, "commit_key.task_id disagrees with task_id")
	}
	return nil
}

// Validate checks the whole graph, stopping and returning the first
// defect found. schedule/split/execute abort on this error with no
// sink or audit activity.
func Validate(g *TaskGraph, ctx ContextChecker) error {
	if len(g.Tasks) == 0 {
		return newErr("EMPTY_GRAPH", 0, "graph has no tasks")
	}
	if !IsSorted(g.Tasks) {
		return newErr("UNSORTED_GRAPH", 0, "tasks are not in canonical order")
	}
	if ctx == nil || !ctx.HasAccessSetLookup() {
		return newErr("NO_ACCESS_SET_LOOKUP", 0, "context has no access-set lookup callback")
	}

	index := make(map[uint64]int, len(g.Tasks))
	for i := range g.Tasks {
		t := &g.Tasks[i]
		if err := ValidateNode(t); err != nil {
			return err
		}
		if _, dup := index[t.TaskID]; dup {
			return newErr("DUPLICATE_TASK_ID", t.TaskID, "task_id appears more than once in graph")
		}
		index[t.TaskID] = i
	}

	for _, e := range g.Edges {
		fromIdx, ok := index[e.FromTaskID]
		if !ok {
			return newErr("DANGLING_EDGE", e.FromTaskID, "edge from_task_id does not resolve")
		}
		toIdx, ok := index[e.ToTaskID]
		if !ok {
			return newErr("DANGLING_EDGE", e.ToTaskID, "edge to_task_id does not resolve")
		}
		if g.Tasks[fromIdx].PhaseID > g.Tasks[toIdx].PhaseID {
			return newErr("BACKWARD_EDGE", e.FromTaskID, "edge's from-phase exceeds to-phase")
		}
	}

	if cycleAt, ok := findCycle(g, index); ok {
		return newErr("CYCLE", cycleAt, "edge set is not acyclic")
	}

	return nil
}

// ValidateAll runs every structural check and reports every defect
// found, rather than stopping at the first. This is a diagnostic
// enrichment over Validate: tooling that wants a full error report for
// a malformed graph can use it, while schedule/split/execute continue
// to use Validate's first-failure contract.
func ValidateAll(g *TaskGraph, ctx ContextChecker) *errs.Errs {
	out := &errs.Errs{}

	if len(g.Tasks) == 0 {
		out.Add(newErr("EMPTY_GRAPH", 0, "graph has no tasks"))
		return out
	}
	if !IsSorted(g.Tasks) {
		out.Add(newErr("UNSORTED_GRAPH", 0, "tasks are not in canonical order"))
	}
	if ctx == nil || !ctx.HasAccessSetLookup() {
		out.Add(newErr("NO_ACCESS_SET_LOOKUP", 0, "context has no access-set lookup callback"))
	}

	index := make(map[uint64]int, len(g.Tasks))
	for i := range g.Tasks {
		t := &g.Tasks[i]
		if err := ValidateNode(t); err != nil {
			out.Add(err)
		}
		if _, dup := index[t.TaskID]; dup {
			out.Add(newErr("DUPLICATE_TASK_ID", t.TaskID, "task_id appears more than once in graph"))
			continue
		}
		index[t.TaskID] = i
	}

	for _, e := range g.Edges {
		fromIdx, ok := index[e.FromTaskID]
		if !ok {
			out.Add(newErr("DANGLING_EDGE", e.FromTaskID, "edge from_task_id does not resolve"))
			continue
		}
		toIdx, ok := index[e.ToTaskID]
		if !ok {
			out.Add(newErr("DANGLING_EDGE", e.ToTaskID, "edge to_task_id does not resolve"))
			continue
		}
		if g.Tasks[fromIdx].PhaseID > g.Tasks[toIdx].PhaseID {
			out.Add(newErr("BACKWARD_EDGE", e.FromTaskID, "edge's from-phase exceeds to-phase"))
		}
	}

	if cycleAt, ok := findCycle(g, index); ok {
		out.Add(newErr("CYCLE", cycleAt, "edge set is not acyclic"))
	}

	return out
}

// findCycle runs a Kahn-style topological check over the whole graph
// and returns the task_id of a node still unresolved when the queue
// empties, if any.
func findCycle(g *TaskGraph, index map[uint64]int) (uint64, bool) {
	n := len(g.Tasks)
	inDegree := make([]int, n)
	adj := make([][]int, n)
	for _, e := range g.Edges {
		fromIdx, fok := index[e.FromTaskID]
		toIdx, tok := index[e.ToTaskID]
		if !fok || !tok {
			continue
		}
		adj[fromIdx] = append(adj[fromIdx], toIdx)
		inDegree[toIdx]++
	}

	queue := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if inDegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	visited := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range adj[cur] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if visited < n {
		for i := 0; i < n; i++ {
			if inDegree[i] > 0 {
				return g.Tasks[i].TaskID, true
			}
		}
	}
	return 0, false
}
