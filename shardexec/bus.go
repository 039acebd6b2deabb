// Package shardexec implements the Shard Executor and its Message
// Bus: running a single shard's subgraph through a scheduler,
// admitting only tasks whose owner is local, appending accepted task
// ids to a log, and forwarding outbound cross-shard messages onto a
// bounded FIFO keyed by (arrival_tick, message_id).
package shardexec

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ridgeline/taskcore/shard"
)

// Bus is the bounded FIFO cross-shard message queue described in
// spec.md §4.9: entries are kept ordered by (arrival_tick ascending,
// message_id ascending) and PopReady dequeues only the single
// minimum-keyed entry whose arrival_tick has passed, matching
// server/shard/message_bus.cpp's pop_ready (it hands back one ready
// message per call, not every ready message at once).
type Bus struct {
	mu       sync.Mutex
	messages []shard.Message
	capacity int
}

// NewBus returns an empty Bus bounded to capacity entries. capacity <=
// 0 means unbounded.
func NewBus(capacity int) *Bus {
	return &Bus{capacity: capacity}
}

func less(a, b shard.Message) bool {
	if a.ArrivalTick != b.ArrivalTick {
		return a.ArrivalTick < b.ArrivalTick
	}
	return a.MessageID < b.MessageID
}

// Enqueue inserts msg keeping the bus's keyed order. It fails if the
// bus is at capacity.
func (b *Bus) Enqueue(msg shard.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.capacity > 0 && len(b.messages) >= b.capacity {
		return fmt.Errorf("shardexec: message bus at capacity %d", b.capacity)
	}
	i := sort.Search(len(b.messages), func(i int) bool {
		return less(msg, b.messages[i])
	})
	b.messages = append(b.messages, shard.Message{})
	copy(b.messages[i+1:], b.messages[i:])
	b.messages[i] = msg
	return nil
}

// PopReady dequeues the minimum-keyed entry whose arrival_tick <= now,
// reporting ok == false if the head of the queue is empty or not yet
// ready (later, higher-keyed entries are never consulted: the queue
// is in keyed order, so if the head isn't ready nothing is).
func (b *Bus) PopReady(now uint64) (shard.Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.messages) == 0 {
		return shard.Message{}, false
	}
	head := b.messages[0]
	if head.ArrivalTick > now {
		return shard.Message{}, false
	}
	b.messages = b.messages[1:]
	return head, true
}

// DrainReady repeatedly pops every currently-ready message. It is
// sugar over PopReady and introduces no new observable ordering.
func (b *Bus) DrainReady(now uint64) []shard.Message {
	var out []shard.Message
	for {
		msg, ok := b.PopReady(now)
		if !ok {
			return out
		}
		out = append(out, msg)
	}
}

// Len reports the number of messages currently queued.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages)
}
