package shardexec

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/ridgeline/taskcore/access"
	"github.com/ridgeline/taskcore/execctx"
	"github.com/ridgeline/taskcore/scheduler"
	"github.com/ridgeline/taskcore/shard"
	"github.com/ridgeline/taskcore/taskir"
	"github.com/ridgeline/taskcore/telemetry"
)

func execCtx(accessSets map[uint64]*access.Set) *execctx.ExecutionContext {
	return &execctx.ExecutionContext{
		LookupAccessSet: func(_ *execctx.ExecutionContext, id uint64) *access.Set {
			return accessSets[id]
		},
	}
}

func authTask(taskID uint64, accessSetID uint64) taskir.TaskNode {
	return taskir.TaskNode{
		TaskID:      taskID,
		PhaseID:     1,
		Category:    taskir.Authoritative,
		AccessSetID: accessSetID,
		LawScopeRef: 1,
		LawTargets:  []uint64{1},
		CommitKey:   taskir.CommitKey{PhaseID: 1, TaskID: taskID},
	}
}

func TestExecutorRejectsCrossShardWrite(t *testing.T) {
	registry := shard.NewRegistry(false)
	require.NoError(t, registry.Add(shard.Shard{ShardID: 1, Scope: shard.Scope{Kind: shard.RangeScope, Start: 0, End: 999}}))
	require.NoError(t, registry.Add(shard.Shard{ShardID: 2, Scope: shard.Scope{Kind: shard.RangeScope, Start: 1000, End: 1999}}))

	accessSets := map[uint64]*access.Set{
		1: {AccessID: 1, Writes: []access.Range{{Kind: access.IndexRange, StartID: 1500}}},
	}
	ctx := execCtx(accessSets)

	exec := NewExecutor(1, scheduler.Schedule, ctx, NewBus(0), &Log{})
	g := &taskir.TaskGraph{Tasks: []taskir.TaskNode{authTask(1, 1)}}

	status, _, err := exec.Execute(g, registry, nil)
	require.Equal(t, PlacementRefused, status)
	require.Error(t, err)
	require.Zero(t, exec.Log.Len())
}

func TestExecutorAdmitsLocalTaskAndForwardsMessage(t *testing.T) {
	registry := shard.NewRegistry(false)
	require.NoError(t, registry.Add(shard.Shard{ShardID: 1, Scope: shard.Scope{Kind: shard.RangeScope, Start: 0, End: 999}}))
	require.NoError(t, registry.Add(shard.Shard{ShardID: 2, Scope: shard.Scope{Kind: shard.RangeScope, Start: 1000, End: 1999}}))

	accessSets := map[uint64]*access.Set{
		1: {AccessID: 1, Writes: []access.Range{{Kind: access.IndexRange, StartID: 500}}},
	}
	ctx := execCtx(accessSets)

	log := &Log{}
	bus := NewBus(0)
	exec := NewExecutor(1, scheduler.Schedule, ctx, bus, log)
	g := &taskir.TaskGraph{Tasks: []taskir.TaskNode{authTask(1, 1)}}

	outbound := []shard.Message{
		{SourceShard: 1, TargetShard: 2, TaskID: 1, MessageID: 42, ArrivalTick: 5},
		{SourceShard: 1, TargetShard: 2, TaskID: 99, MessageID: 43, ArrivalTick: 5},
	}

	status, schedStatus, err := exec.Execute(g, registry, outbound)
	require.NoError(t, err)
	require.Equal(t, OK, status)
	require.Equal(t, scheduler.OK, schedStatus)
	require.Equal(t, 1, log.Len())
	require.Equal(t, uint64(1), log.Entries()[0].TaskID)

	require.Equal(t, 1, bus.Len())
	msg, ok := bus.PopReady(5)
	require.True(t, ok)
	require.Equal(t, uint64(42), msg.MessageID)

	_, ok = bus.PopReady(5)
	require.False(t, ok)
}

func TestExecutorObservesBusDepthAfterForwarding(t *testing.T) {
	registry := shard.NewRegistry(false)
	require.NoError(t, registry.Add(shard.Shard{ShardID: 1, Scope: shard.Scope{Kind: shard.RangeScope, Start: 0, End: 999}}))
	require.NoError(t, registry.Add(shard.Shard{ShardID: 2, Scope: shard.Scope{Kind: shard.RangeScope, Start: 1000, End: 1999}}))

	accessSets := map[uint64]*access.Set{
		1: {AccessID: 1, Writes: []access.Range{{Kind: access.IndexRange, StartID: 500}}},
	}
	ctx := execCtx(accessSets)

	metrics, err := telemetry.New(prometheus.NewRegistry(), "test_executor_bus_depth")
	require.NoError(t, err)

	exec := NewExecutor(1, scheduler.Schedule, ctx, NewBus(0), &Log{})
	exec.Metrics = metrics
	g := &taskir.TaskGraph{Tasks: []taskir.TaskNode{authTask(1, 1)}}

	outbound := []shard.Message{
		{SourceShard: 1, TargetShard: 2, TaskID: 1, MessageID: 1, ArrivalTick: 5},
		{SourceShard: 1, TargetShard: 2, TaskID: 1, MessageID: 2, ArrivalTick: 5},
	}

	status, schedStatus, err := exec.Execute(g, registry, outbound)
	require.NoError(t, err)
	require.Equal(t, OK, status)
	require.Equal(t, scheduler.OK, schedStatus)

	m := &dto.Metric{}
	require.NoError(t, metrics.BusDepth.Write(m))
	require.Equal(t, float64(2), m.GetGauge().GetValue())
}

func TestBusPopReadyOrdersByTickThenMessageID(t *testing.T) {
	bus := NewBus(0)
	require.NoError(t, bus.Enqueue(shard.Message{MessageID: 2, ArrivalTick: 10}))
	require.NoError(t, bus.Enqueue(shard.Message{MessageID: 1, ArrivalTick: 10}))
	require.NoError(t, bus.Enqueue(shard.Message{MessageID: 5, ArrivalTick: 1}))

	msg, ok := bus.PopReady(100)
	require.True(t, ok)
	require.Equal(t, uint64(5), msg.MessageID)

	msg, ok = bus.PopReady(100)
	require.True(t, ok)
	require.Equal(t, uint64(1), msg.MessageID)

	msg, ok = bus.PopReady(100)
	require.True(t, ok)
	require.Equal(t, uint64(2), msg.MessageID)
}

func TestBusPopReadyRespectsArrivalTick(t *testing.T) {
	bus := NewBus(0)
	require.NoError(t, bus.Enqueue(shard.Message{MessageID: 1, ArrivalTick: 50}))

	_, ok := bus.PopReady(10)
	require.False(t, ok)

	msg, ok := bus.PopReady(50)
	require.True(t, ok)
	require.Equal(t, uint64(1), msg.MessageID)
}

func TestBusEnqueueRejectsOverCapacity(t *testing.T) {
	bus := NewBus(1)
	require.NoError(t, bus.Enqueue(shard.Message{MessageID: 1}))
	require.Error(t, bus.Enqueue(shard.Message{MessageID: 2}))
}
