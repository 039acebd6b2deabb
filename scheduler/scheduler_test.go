package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ridgeline/taskcore/access"
	"github.com/ridgeline/taskcore/execctx"
	"github.com/ridgeline/taskcore/taskir"
)

type sinkRecord struct {
	taskID uint64
	tier   taskir.FidelityTier
}

func recordingSink(out *[]sinkRecord) Sink {
	return SinkFunc(func(task *taskir.TaskNode, _ execctx.LawDecision) {
		*out = append(*out, sinkRecord{taskID: task.TaskID, tier: task.FidelityTier})
	})
}

func recordingAuditCtx(events *[]execctx.AuditEvent, accessSets map[uint64]*access.Set, law execctx.LawEvaluator) *execctx.ExecutionContext {
	return &execctx.ExecutionContext{
		EvaluateLaw: law,
		RecordAudit: func(_ *execctx.ExecutionContext, e execctx.AuditEvent) {
			*events = append(*events, e)
		},
		LookupAccessSet: func(_ *execctx.ExecutionContext, id uint64) *access.Set {
			return accessSets[id]
		},
	}
}

func simpleTask(phase uint32, taskID uint64, accessSetID uint64) taskir.TaskNode {
	return taskir.TaskNode{
		TaskID:      taskID,
		PhaseID:     phase,
		Category:    taskir.Derived,
		AccessSetID: accessSetID,
		LawScopeRef: 1,
		CommitKey:   taskir.CommitKey{PhaseID: phase, TaskID: taskID},
	}
}

func eventIDs(events []execctx.AuditEvent, taskID uint64) []int32 {
	var out []int32
	for _, e := range events {
		if e.TaskID == taskID {
			out = append(out, e.EventID)
		}
	}
	return out
}

func TestScheduleTransformThenAccept(t *testing.T) {
	// S4: Transform on first call (downgrade to Macro), Accept thereafter.
	calls := map[uint64]int{}
	law := func(_ *execctx.ExecutionContext, task *taskir.TaskNode) execctx.LawDecision {
		calls[task.TaskID]++
		if task.TaskID == 12 && calls[task.TaskID] == 1 {
			return execctx.LawDecision{Kind: execctx.Transform, TransformedFidelityTier: taskir.Macro, TransformedNextDueTick: taskir.InvalidTick}
		}
		return execctx.LawDecision{Kind: execctx.Accept}
	}

	accessSets := map[uint64]*access.Set{10: {AccessID: 10}}
	var events []execctx.AuditEvent
	ctx := recordingAuditCtx(&events, accessSets, law)

	task := simpleTask(1, 12, 10)
	task.FidelityTier = taskir.Focus
	g := &taskir.TaskGraph{Tasks: []taskir.TaskNode{task}}

	var sink []sinkRecord
	status := Schedule(g, ctx, recordingSink(&sink))

	require.Equal(t, OK, status)
	require.Len(t, sink, 1)
	require.Equal(t, taskir.Macro, sink[0].tier)
	require.Equal(t, []int32{
		execctx.EventTransformed, execctx.EventAdmitted, execctx.EventExecuted, execctx.EventCommitted,
	}, eventIDs(events, 12))
}

func TestScheduleSecondTransformIsRefused(t *testing.T) {
	law := func(_ *execctx.ExecutionContext, _ *taskir.TaskNode) execctx.LawDecision {
		return execctx.LawDecision{Kind: execctx.Transform}
	}
	accessSets := map[uint64]*access.Set{10: {AccessID: 10}}
	var events []execctx.AuditEvent
	ctx := recordingAuditCtx(&events, accessSets, law)

	g := &taskir.TaskGraph{Tasks: []taskir.TaskNode{simpleTask(1, 1, 10)}}
	var sink []sinkRecord
	status := Schedule(g, ctx, recordingSink(&sink))

	require.Equal(t, OK, status)
	require.Empty(t, sink)
	require.Equal(t, []int32{execctx.EventTransformed, execctx.EventRefused}, eventIDs(events, 1))
}

func TestScheduleCommitOrderRespectsDependencyNotSinkOrder(t *testing.T) {
	// S7: edge 2->1 forces the sink to see task 2 before task 1, but the
	// committed audit order follows the commit-key comparator (1, 2).
	accessSets := map[uint64]*access.Set{10: {AccessID: 10}, 11: {AccessID: 11}}
	var events []execctx.AuditEvent
	ctx := recordingAuditCtx(&events, accessSets, nil)

	g := &taskir.TaskGraph{
		Tasks: []taskir.TaskNode{simpleTask(1, 1, 10), simpleTask(1, 2, 11)},
		Edges: []taskir.DependencyEdge{{FromTaskID: 2, ToTaskID: 1}},
	}
	var sink []sinkRecord
	status := Schedule(g, ctx, recordingSink(&sink))

	require.Equal(t, OK, status)
	require.Equal(t, []uint64{2, 1}, []uint64{sink[0].taskID, sink[1].taskID})

	var committedOrder []uint64
	for _, e := range events {
		if e.EventID == execctx.EventCommitted {
			committedOrder = append(committedOrder, e.TaskID)
		}
	}
	require.Equal(t, []uint64{1, 2}, committedOrder)
}

func TestScheduleLawRefusalAudit(t *testing.T) {
	// S8: law refuses task 11 with code 42; sink sees only task 10.
	law := func(_ *execctx.ExecutionContext, task *taskir.TaskNode) execctx.LawDecision {
		if task.TaskID == 11 {
			return execctx.LawDecision{Kind: execctx.Refuse, RefusalCode: 42}
		}
		return execctx.LawDecision{Kind: execctx.Accept}
	}
	accessSets := map[uint64]*access.Set{10: {AccessID: 10}, 11: {AccessID: 11}}
	var events []execctx.AuditEvent
	ctx := recordingAuditCtx(&events, accessSets, law)

	g := &taskir.TaskGraph{Tasks: []taskir.TaskNode{simpleTask(1, 10, 10), simpleTask(1, 11, 11)}}
	var sink []sinkRecord
	status := Schedule(g, ctx, recordingSink(&sink))

	require.Equal(t, OK, status)
	require.Len(t, sink, 1)
	require.Equal(t, uint64(10), sink[0].taskID)

	found := false
	for _, e := range events {
		if e.TaskID == 11 && e.EventID == execctx.EventRefused {
			require.Equal(t, int32(42), e.RefusalCode)
			found = true
		}
	}
	require.True(t, found)
}

func TestScheduleConflictRefusesLaterTask(t *testing.T) {
	writeRange := access.Range{Kind: access.IndexRange, ComponentID: 1, FieldID: 1, StartID: 0, EndID: 10}
	accessSets := map[uint64]*access.Set{
		10: {AccessID: 10, Writes: []access.Range{writeRange}},
		11: {AccessID: 11, Writes: []access.Range{writeRange}},
	}
	var events []execctx.AuditEvent
	ctx := recordingAuditCtx(&events, accessSets, nil)

	g := &taskir.TaskGraph{Tasks: []taskir.TaskNode{simpleTask(1, 10, 10), simpleTask(1, 11, 11)}}
	var sink []sinkRecord
	status := Schedule(g, ctx, recordingSink(&sink))

	require.Equal(t, OK, status)
	require.Len(t, sink, 1)
	require.Equal(t, uint64(10), sink[0].taskID)

	refusedCode := int32(0)
	for _, e := range events {
		if e.TaskID == 11 && e.EventID == execctx.EventRefused {
			refusedCode = e.RefusalCode
		}
	}
	require.Equal(t, execctx.RefusalConflict, refusedCode)
}

func TestScheduleObservesPhaseSizeAndDuration(t *testing.T) {
	accessSets := map[uint64]*access.Set{10: {AccessID: 10}, 11: {AccessID: 11}, 20: {AccessID: 20}}
	var events []execctx.AuditEvent
	ctx := recordingAuditCtx(&events, accessSets, nil)

	type observation struct {
		phaseID   uint32
		taskCount int
		duration  time.Duration
	}
	var observed []observation
	ctx.OnPhase = func(_ *execctx.ExecutionContext, phaseID uint32, taskCount int, d time.Duration) {
		observed = append(observed, observation{phaseID: phaseID, taskCount: taskCount, duration: d})
	}

	g := &taskir.TaskGraph{Tasks: []taskir.TaskNode{
		simpleTask(1, 10, 10),
		simpleTask(1, 11, 11),
		simpleTask(2, 20, 20),
	}}
	status := Schedule(g, ctx, recordingSink(&[]sinkRecord{}))

	require.Equal(t, OK, status)
	require.Len(t, observed, 2)
	require.Equal(t, uint32(1), observed[0].phaseID)
	require.Equal(t, 2, observed[0].taskCount)
	require.GreaterOrEqual(t, observed[0].duration, time.Duration(0))
	require.Equal(t, uint32(2), observed[1].phaseID)
	require.Equal(t, 1, observed[1].taskCount)
}

func TestScheduleRejectsInvalidGraph(t *testing.T) {
	ctx := recordingAuditCtx(nil, nil, nil)
	g := &taskir.TaskGraph{}
	status := Schedule(g, ctx, SinkFunc(func(*taskir.TaskNode, execctx.LawDecision) {}))
	require.Equal(t, InvalidGraph, status)
}

func TestScheduleParallelMatchesSingleThread(t *testing.T) {
	// S5-style equivalence: run the same mixed graph through both
	// backends and compare the projected (task_id, tier) sink records
	// plus the committed-event sequence per phase.
	accessSets := map[uint64]*access.Set{
		1: {AccessID: 1, Writes: []access.Range{{Kind: access.IndexRange, ComponentID: 1, FieldID: 1, StartID: 0, EndID: 1}}},
		2: {AccessID: 2, Writes: []access.Range{{Kind: access.IndexRange, ComponentID: 1, FieldID: 1, StartID: 2, EndID: 3}}},
		3: {AccessID: 3, Reads: []access.Range{{Kind: access.IndexRange, ComponentID: 2, FieldID: 1, StartID: 0, EndID: 5}}},
		4: {AccessID: 4, Writes: []access.Range{{Kind: access.IndexRange, ComponentID: 3, FieldID: 1, StartID: 0, EndID: 1}}},
		5: {AccessID: 5, Writes: []access.Range{{Kind: access.IndexRange, ComponentID: 3, FieldID: 1, StartID: 0, EndID: 1}}},
	}
	buildGraph := func() *taskir.TaskGraph {
		return &taskir.TaskGraph{
			Tasks: []taskir.TaskNode{
				simpleTask(1, 1, 1),
				simpleTask(1, 2, 2),
				simpleTask(1, 3, 3),
				simpleTask(1, 4, 4),
				simpleTask(1, 5, 5),
			},
		}
	}

	var eventsA, eventsB []execctx.AuditEvent
	ctxA := recordingAuditCtx(&eventsA, accessSets, nil)
	ctxB := recordingAuditCtx(&eventsB, accessSets, nil)

	var sinkA, sinkB []sinkRecord
	statusA := Schedule(buildGraph(), ctxA, recordingSink(&sinkA))
	statusB := ScheduleParallel(buildGraph(), ctxB, recordingSink(&sinkB), 4)

	require.Equal(t, OK, statusA)
	require.Equal(t, OK, statusB)

	projected := func(records []sinkRecord) map[uint64]taskir.FidelityTier {
		m := make(map[uint64]taskir.FidelityTier, len(records))
		for _, r := range records {
			m[r.taskID] = r.tier
		}
		return m
	}
	require.Equal(t, projected(sinkA), projected(sinkB))

	committedSeq := func(events []execctx.AuditEvent) []uint64 {
		var out []uint64
		for _, e := range events {
			if e.EventID == execctx.EventCommitted {
				out = append(out, e.TaskID)
			}
		}
		return out
	}
	require.Equal(t, committedSeq(eventsA), committedSeq(eventsB))
}
