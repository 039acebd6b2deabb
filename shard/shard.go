// Package shard implements the Shard Registry and Placement component:
// mapping an owner identity, derived from a task's primary access
// range, to the shard that owns it, and rejecting tasks that attempt
// to write outside their shard.
package shard

import (
	"fmt"
	"sync"

	"github.com/ridgeline/taskcore/access"
	"github.com/ridgeline/taskcore/internal/set"
)

// ScopeKind distinguishes a shard's scope: a contiguous id interval
// (derived from IndexRange/Single owner ids) or an exact tag match
// (derived from set-typed owner ids, i.e. a set_id).
type ScopeKind int32

const (
	RangeScope ScopeKind = iota
	TagScope
)

// Scope is the portion of the owner-id space a shard covers.
type Scope struct {
	Kind  ScopeKind
	Start uint64
	End   uint64
	Tag   uint64
}

func (s Scope) covers(ownerID uint64) bool {
	switch s.Kind {
	case RangeScope:
		return s.Start <= ownerID && ownerID <= s.End
	case TagScope:
		return s.Tag == ownerID
	default:
		return false
	}
}

// Shard is a named partition of simulation state.
type Shard struct {
	ShardID           uint32
	Scope             Scope
	DeterminismDomain uint32
}

// AccessKind is the kind of access being validated against a shard.
type AccessKind int32

const (
	ReadAccess AccessKind = iota
	WriteAccess
	ReduceAccess
)

// Registry holds a list of Shard records and answers ownership
// queries. The list has no capacity limit; Add rejects only duplicate
// shard ids. Scopes are declared non-overlapping by the
// caller, so find_owner never needs to break ties.
type Registry struct {
	mu                     sync.RWMutex
	shards                 []Shard
	shardIDs               set.Set[uint32]
	crossShardReadsAllowed bool
}

// NewRegistry returns an empty Registry. allowCrossShardReads governs
// validate_access's Read-only exception.
func NewRegistry(allowCrossShardReads bool) *Registry {
	return &Registry{
		shardIDs:               set.Set[uint32]{},
		crossShardReadsAllowed: allowCrossShardReads,
	}
}

// Add registers a shard. It is the caller's responsibility to ensure
// scopes do not overlap; the registry is read-mostly and mutation
// outside schedule/split/execute calls is the caller's concern.
func (r *Registry) Add(s Shard) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shardIDs.Contains(s.ShardID) {
		return fmt.Errorf("shard: duplicate shard_id %d", s.ShardID)
	}
	r.shardIDs.Add(s.ShardID)
	r.shards = append(r.shards, s)
	return nil
}

// FindOwner returns the shard whose scope covers ownerID.
func (r *Registry) FindOwner(ownerID uint64) (uint32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.shards {
		if s.Scope.covers(ownerID) {
			return s.ShardID, true
		}
	}
	return 0, false
}

// ValidateAccess reports nil iff the effective owner of ownerID is
// shardID, or kind is Read and the registry permits cross-shard reads.
func (r *Registry) ValidateAccess(shardID uint32, ownerID uint64, kind AccessKind) error {
	owner, ok := r.FindOwner(ownerID)
	if ok && owner == shardID {
		return nil
	}
	if kind == ReadAccess && r.crossShardReadsAllowed {
		return nil
	}
	return fmt.Errorf("shard: PLACEMENT_REFUSED: owner_id %d is not owned by shard %d", ownerID, shardID)
}

// DeriveOwnerID derives a task's owner id from its AccessSet, giving
// write ranges priority over reads and reads priority over reduces.
// For IndexRange/Single ranges the owner id is the range's start_id;
// for set-typed ranges it is the range's set_id. ok is false when the
// set declares no ranges at all.
func DeriveOwnerID(set *access.Set) (ownerID uint64, ok bool) {
	if set == nil {
		return 0, false
	}
	if id, found := firstRangeOwnerID(set.Writes); found {
		return id, true
	}
	if id, found := firstRangeOwnerID(set.Reads); found {
		return id, true
	}
	if id, found := firstRangeOwnerID(set.Reduces); found {
		return id, true
	}
	return 0, false
}

func firstRangeOwnerID(ranges []access.Range) (uint64, bool) {
	if len(ranges) == 0 {
		return 0, false
	}
	r := ranges[0]
	if r.Kind == access.IndexRange || r.Kind == access.Single {
		return r.StartID, true
	}
	return r.SetID, true
}

// Message is a cross-shard dependency-edge projection: the splitter
// emits one of these whenever an edge's endpoints land in different
// shards, and the shard executor's message bus delivers it once its
// arrival_tick has passed.
type Message struct {
	SourceShard uint32
	TargetShard uint32
	TaskID      uint64
	MessageID   uint64
	ArrivalTick uint64
	Payload     []byte
}

// PlaceTask derives the owner id from set and resolves it to a shard,
// falling back to fallback when unresolved. resolved reports whether
// the owner id actually matched a registered shard (false means the
// fallback was used).
func (r *Registry) PlaceTask(set *access.Set, fallback uint32) (shardID uint32, resolved bool) {
	ownerID, ok := DeriveOwnerID(set)
	if !ok {
		return fallback, false
	}
	owner, found := r.FindOwner(ownerID)
	if !found {
		return fallback, false
	}
	return owner, true
}
