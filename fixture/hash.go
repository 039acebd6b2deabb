package fixture

import "github.com/ridgeline/taskcore/execctx"

// fnvOffset and fnvPrime are the 64-bit FNV-1a constants.
const (
	fnvOffset = 14695981039346656037
	fnvPrime  = 1099511628211
)

func fnv1a64(h uint64, b byte) uint64 {
	h ^= uint64(b)
	h *= fnvPrime
	return h
}

func fnv1a64Uint32(h uint64, v int32) uint64 {
	u := uint32(v)
	for i := 0; i < 4; i++ {
		h = fnv1a64(h, byte(u>>(8*i)))
	}
	return h
}

func fnv1a64Uint64(h uint64, v uint64) uint64 {
	for i := 0; i < 8; i++ {
		h = fnv1a64(h, byte(v>>(8*i)))
	}
	return h
}

// CommitHash implements spec.md P4/§9: a deterministic FNV-1a 64 hash
// over the concatenated (event_id, task_id, decision_kind,
// refusal_code) projection of every Committed event in events, in
// order. Two runs with identical inputs produce the same hash
// regardless of backend (single-thread vs parallel) or shard split.
func CommitHash(events []execctx.AuditEvent) uint64 {
	h := uint64(fnvOffset)
	for _, e := range events {
		if e.EventID != execctx.EventCommitted {
			continue
		}
		h = fnv1a64Uint32(h, e.EventID)
		h = fnv1a64Uint64(h, e.TaskID)
		h = fnv1a64Uint32(h, int32(e.DecisionKind))
		h = fnv1a64Uint32(h, e.RefusalCode)
	}
	return h
}
