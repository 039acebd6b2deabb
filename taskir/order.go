package taskir

import "sort"

// Compare returns a negative, zero, or positive value according to
// the canonical ordering: phase_id ascending, then system_id, then
// task_id, then commit_key.sub_index. It never allocates and performs
// no floating-point comparisons, matching the no-hidden-nondeterminism
// requirement on admission ordering.
func Compare(a, b *TaskNode) int {
	if a.PhaseID != b.PhaseID {
		if a.PhaseID < b.PhaseID {
			return -1
		}
		return 1
	}
	if a.SystemID != b.SystemID {
		if a.SystemID < b.SystemID {
			return -1
		}
		return 1
	}
	if a.TaskID != b.TaskID {
		if a.TaskID < b.TaskID {
			return -1
		}
		return 1
	}
	if a.CommitKey.SubIndex != b.CommitKey.SubIndex {
		if a.CommitKey.SubIndex < b.CommitKey.SubIndex {
			return -1
		}
		return 1
	}
	return 0
}

// Less reports whether a sorts strictly before b under Compare.
func Less(a, b *TaskNode) bool {
	return Compare(a, b) < 0
}

// StableSort permutes nodes in place so Compare is non-decreasing
// across adjacent pairs, preserving the relative order of elements
// that compare equal. O(n log n) worst case.
func StableSort(nodes []TaskNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return Less(&nodes[i], &nodes[j])
	})
}

// IsSorted reports whether Compare is non-decreasing across every
// adjacent pair of nodes.
func IsSorted(nodes []TaskNode) bool {
	for i := 1; i < len(nodes); i++ {
		if Compare(&nodes[i-1], &nodes[i]) > 0 {
			return false
		}
	}
	return true
}

// CompareCommitKey orders two commit keys by phase, then task id, then
// sub-index. Unlike Compare it does not consider system_id, so two
// nodes with different system_ids can order differently under the two
// functions. The scheduler's per-phase Committed emission uses this
// commit-key order.
func CompareCommitKey(a, b CommitKey) int {
	if a.PhaseID != b.PhaseID {
		if a.PhaseID < b.PhaseID {
			return -1
		}
		return 1
	}
	if a.TaskID != b.TaskID {
		if a.TaskID < b.TaskID {
			return -1
		}
		return 1
	}
	if a.SubIndex != b.SubIndex {
		if a.SubIndex < b.SubIndex {
			return -1
		}
		return 1
	}
	return 0
}
