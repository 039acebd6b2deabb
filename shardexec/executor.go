// Package shardexec's Executor type runs a single shard's subgraph
// through any conformant scheduler backend, enforcing that every
// Authoritative task's owner actually belongs to this shard before
// scheduling begins, and forwards accepted outbound messages onto the
// Bus. Grounded on server/shard/shard_executor.{h,cpp} from
// original_source: the placement pre-check, the accepted-task array,
// and the "enqueue only accepted, source-matching messages" rule all
// mirror dom_shard_executor_execute exactly.
package shardexec

import (
	"fmt"
	"sort"

	"github.com/ridgeline/taskcore/execctx"
	"github.com/ridgeline/taskcore/internal/linked"
	"github.com/ridgeline/taskcore/scheduler"
	"github.com/ridgeline/taskcore/shard"
	"github.com/ridgeline/taskcore/taskir"
	"github.com/ridgeline/taskcore/telemetry"
)

// Status is the return value of Execute, distinguishing the executor's
// own pre-flight placement check from the underlying scheduler's
// status.
type Status int32

const (
	OK Status = iota
	PlacementRefused
	ScheduleFailed
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case PlacementRefused:
		return "PLACEMENT_REFUSED"
	case ScheduleFailed:
		return "SCHEDULE_FAILED"
	default:
		return "Status(?)"
	}
}

// Backend is any conformant scheduler call: scheduler.Schedule, or
// scheduler.ScheduleParallel bound to a worker count.
type Backend func(g *taskir.TaskGraph, ctx *execctx.ExecutionContext, sink scheduler.Sink) scheduler.Status

// Executor owns a shard id, a scheduler backend, an execution
// context, an outbound bus, and an accepted-task log.
type Executor struct {
	ShardID uint32
	Backend Backend
	Ctx     *execctx.ExecutionContext
	Bus     *Bus
	Log     *Log

	// Metrics, if set, receives the shard message bus's queue depth
	// after each Execute call forwards its outbound messages. Nil
	// disables this instrumentation.
	Metrics *telemetry.Metrics

	nextEventID uint64
}

// NewExecutor returns an Executor bound to shardID, running subgraphs
// through backend, logging to log and forwarding outbound messages to
// bus. log and bus may be shared across executors on the same
// process, or dedicated per shard.
func NewExecutor(shardID uint32, backend Backend, ctx *execctx.ExecutionContext, bus *Bus, log *Log) *Executor {
	return &Executor{
		ShardID:     shardID,
		Backend:     backend,
		Ctx:         ctx,
		Bus:         bus,
		Log:         log,
		nextEventID: 1,
	}
}

// Execute first checks that every Authoritative task's declared owner
// is local to this shard; if any is not, the whole call returns
// PlacementRefused before the backend runs. Otherwise it runs
// subgraph's tasks through e.Backend, then forwards every outbound
// message whose source_shard is this shard and whose task_id was
// accepted onto e.Bus.
func (e *Executor) Execute(subgraph *taskir.TaskGraph, registry *shard.Registry, outbound []shard.Message) (Status, scheduler.Status, error) {
	for i := range subgraph.Tasks {
		task := &subgraph.Tasks[i]
		if task.Category != taskir.Authoritative {
			continue
		}
		owner, err := e.ownerID(task)
		if err != nil {
			return PlacementRefused, scheduler.OK, err
		}
		if err := registry.ValidateAccess(e.ShardID, owner, shard.WriteAccess); err != nil {
			return PlacementRefused, scheduler.OK, err
		}
	}

	// accepted stages task ids in the order the sink first sees them,
	// deduplicating repeat sink calls for the same task_id, before the
	// final stable numeric sort below.
	accepted := linked.NewHashmap[uint64, struct{}]()
	sink := scheduler.SinkFunc(func(task *taskir.TaskNode, _ execctx.LawDecision) {
		e.Log.Record(Entry{
			EventID: e.nextEventID,
			TaskID:  task.TaskID,
			Tick:    e.Ctx.ActNow,
		})
		e.nextEventID++
		accepted.Put(task.TaskID, struct{}{})
	})

	status := e.Backend(subgraph, e.Ctx, sink)
	if status != scheduler.OK {
		return ScheduleFailed, status, fmt.Errorf("shardexec: scheduler returned %s", status)
	}

	acceptedOrder := accepted.Keys()
	sort.Slice(acceptedOrder, func(i, j int) bool { return acceptedOrder[i] < acceptedOrder[j] })

	if e.Bus != nil {
		for _, msg := range outbound {
			if msg.SourceShard != e.ShardID {
				continue
			}
			if _, ok := accepted.Get(msg.TaskID); !ok {
				continue
			}
			if err := e.Bus.Enqueue(msg); err != nil {
				return ScheduleFailed, scheduler.OK, err
			}
		}
		if e.Metrics != nil {
			e.Metrics.ObserveBusDepth(e.Bus.Len())
		}
	}

	return OK, scheduler.OK, nil
}

// ownerID resolves task's declared owner the same way shard.PlaceTask
// does, via its AccessSet.
func (e *Executor) ownerID(task *taskir.TaskNode) (uint64, error) {
	aset := e.Ctx.LookupAccess(task.AccessSetID)
	owner, ok := shard.DeriveOwnerID(aset)
	if !ok {
		return 0, fmt.Errorf("shardexec: PLACEMENT_REFUSED: task_id %d declares no resolvable owner range", task.TaskID)
	}
	return owner, nil
}
