// Package splitter implements the Task Splitter: deterministically
// partitioning a global Task IR into per-shard subgraphs and emitting
// cross-shard messages for dependency edges whose endpoints land in
// different shards.
package splitter

import (
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/ridgeline/taskcore/dlog"
	"github.com/ridgeline/taskcore/execctx"
	"github.com/ridgeline/taskcore/shard"
	"github.com/ridgeline/taskcore/taskir"
)

// UnroutableError is returned when a task's owner cannot be resolved
// to a registered shard. In DeterminismMode Strict this aborts the
// split; in Audit/Test mode the caller-provided fallback shard is used
// instead and the task still lands in a subgraph (see Split's mode
// handling), so UnroutableError is only ever returned for Strict runs.
type UnroutableError struct {
	TaskID uint64
}

func (e *UnroutableError) Error() string {
	return fmt.Sprintf("splitter: SPLIT_UNROUTABLE: task_id %d has no resolvable owner shard", e.TaskID)
}

// Result is the output of a Split call.
type Result struct {
	Subgraphs map[uint32]*taskir.TaskGraph
	Messages  []shard.Message
	// Placement records which shard each task_id was routed to.
	Placement map[uint64]uint32
}

// Split partitions graph across the shards known to registry. A graph
// that fails taskir.Validate is rejected with that validation error
// before any task is routed.
//
// In Strict mode, a task whose owner cannot be resolved aborts the
// call with UnroutableError and no partial subgraphs are returned. In
// Audit and Test mode, an unresolved owner falls back to
// fallbackShard and a warning is logged through ctx; this mirrors the
// fallback the original splitter takes, confirmed by its routing
// tests exercising both a resolvable-owner case and an explicit
// unroutable-failure case.
func Split(graph *taskir.TaskGraph, registry *shard.Registry, ctx *execctx.ExecutionContext, fallbackShard uint32) (*Result, error) {
	if err := taskir.Validate(graph, ctx); err != nil {
		return nil, err
	}

	subgraphs := make(map[uint32]*taskir.TaskGraph)
	placement := make(map[uint64]uint32, len(graph.Tasks))

	ensureSubgraph := func(shardID uint32) *taskir.TaskGraph {
		sg, ok := subgraphs[shardID]
		if !ok {
			sg = &taskir.TaskGraph{GraphID: graph.GraphID, EpochID: graph.EpochID}
			subgraphs[shardID] = sg
		}
		return sg
	}

	for i := range graph.Tasks {
		task := graph.Tasks[i]
		set := ctx.LookupAccess(task.AccessSetID)

		shardID, resolved := registry.PlaceTask(set, fallbackShard)
		if !resolved {
			if ctx.Mode == execctx.Strict {
				return nil, &UnroutableError{TaskID: task.TaskID}
			}
			ctx.Logger().Warn("splitter: falling back to fallback shard for unresolved owner",
				dlog.Uint64("task_id", task.TaskID))
		}

		sg := ensureSubgraph(shardID)
		sg.Tasks = append(sg.Tasks, task)
		placement[task.TaskID] = shardID
	}

	index := make(map[uint64]int, len(graph.Tasks))
	for i := range graph.Tasks {
		index[graph.Tasks[i].TaskID] = i
	}

	var messages []shard.Message
	for _, e := range graph.Edges {
		fromShard, fromOK := placement[e.FromTaskID]
		toShard, toOK := placement[e.ToTaskID]
		if !fromOK || !toOK {
			continue
		}
		if fromShard == toShard {
			sg := ensureSubgraph(fromShard)
			sg.Edges = append(sg.Edges, e)
			continue
		}

		fromTask := graph.Tasks[index[e.FromTaskID]]
		toTask := graph.Tasks[index[e.ToTaskID]]
		messages = append(messages, shard.Message{
			SourceShard: fromShard,
			TargetShard: toShard,
			TaskID:      e.FromTaskID,
			MessageID:   fnv1a64Pair(e.FromTaskID, e.ToTaskID),
			ArrivalTick: maxIgnoringInvalid(fromTask.NextDueTick, toTask.NextDueTick),
		})
	}

	for _, sg := range subgraphs {
		taskir.StableSort(sg.Tasks)
	}
	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].ArrivalTick != messages[j].ArrivalTick {
			return messages[i].ArrivalTick < messages[j].ArrivalTick
		}
		return messages[i].MessageID < messages[j].MessageID
	})

	return &Result{Subgraphs: subgraphs, Messages: messages, Placement: placement}, nil
}

// fnv1a64Pair hashes the (from, to) task-id pair with 64-bit FNV-1a,
// matching the message_id definition.
func fnv1a64Pair(from, to uint64) uint64 {
	h := fnv.New64a()
	var buf [16]byte
	putUint64(buf[0:8], from)
	putUint64(buf[8:16], to)
	_, _ = h.Write(buf[:])
	return h.Sum64()
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * (7 - i)))
	}
}

func maxIgnoringInvalid(a, b uint64) uint64 {
	aValid := a != taskir.InvalidTick
	bValid := b != taskir.InvalidTick
	switch {
	case aValid && bValid:
		if a > b {
			return a
		}
		return b
	case aValid:
		return a
	case bValid:
		return b
	default:
		return 0
	}
}
