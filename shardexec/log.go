package shardexec

import "sync"

// Entry is one record appended to a shard's log: an executor-local
// monotonic event id, the task that was accepted, and the context's
// logical tick at the moment of acceptance.
type Entry struct {
	EventID uint64
	TaskID  uint64
	Tick    uint64
}

// Log is the shard-local accepted-event record the executor appends
// to for every task the scheduler admits (decision != Refuse).
// Replay equivalence (spec.md §4.9) is checked by concatenating these
// logs across shards, ordered by shard_id, and projecting to
// (task_id, tick).
type Log struct {
	mu      sync.Mutex
	entries []Entry
}

// Record appends e to the log.
func (l *Log) Record(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

// Entries returns a copy of the log's entries in append order.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len reports how many entries have been recorded.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
