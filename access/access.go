// Package access implements the AccessSet conflict engine: range and
// reduction algebra over the reads, writes, and deterministic
// reductions a task declares against shared state, used to gate
// admission within a scheduling phase.
package access

// RangeKind distinguishes interval-typed ranges, whose overlap is
// exact, from set-typed ranges, whose overlap is conservative.
type RangeKind int32

const (
	EntitySet RangeKind = iota
	ComponentSet
	InterestSet
	IndexRange
	Single
)

func (k RangeKind) Valid() bool {
	return k >= EntitySet && k <= Single
}

// isSetKind reports whether k is one of the *_SET kinds, which overlap
// conservatively (true unless component_id/field_id differ) rather
// than by exact interval intersection.
func (k RangeKind) isSetKind() bool {
	return k == EntitySet || k == ComponentSet || k == InterestSet
}

// Range is a single declared access range.
type Range struct {
	Kind        RangeKind
	ComponentID uint32
	FieldID     uint32
	StartID     uint64
	EndID       uint64
	SetID       uint64
}

// interval returns r's closed interval, normalizing a Single range to
// its one-element interval.
func (r Range) interval() (uint64, uint64) {
	if r.Kind == Single {
		return r.StartID, r.StartID
	}
	return r.StartID, r.EndID
}

// Overlaps reports whether a and b describe overlapping access. It
// returns false as soon as component_id or field_id differ; otherwise,
// for interval-typed kinds (IndexRange, Single) it checks closed
// interval intersection, and for set-typed kinds it is conservative:
// any two ranges with matching component_id/field_id are treated as
// overlapping regardless of their declared set_id, per the spec's
// explicit instruction that the engine must not infer tighter
// semantics on its own.
func Overlaps(a, b Range) bool {
	if a.ComponentID != b.ComponentID || a.FieldID != b.FieldID {
		return false
	}
	if a.isSetKind() || b.isSetKind() {
		return true
	}
	aLo, aHi := a.interval()
	bLo, bHi := b.interval()
	return aLo <= bHi && bLo <= aHi
}

// ReductionOp is an allowed deterministic reduction operator.
type ReductionOp int32

const (
	None ReductionOp = iota
	IntSum
	IntMin
	IntMax
	FixedSum
	BitOr
	BitAnd
	BitXor
	HistogramMerge
	SetUnion
)

func (op ReductionOp) allowed() bool {
	return op >= IntSum && op <= SetUnion
}

// Set is the declared access of one task against shared state.
type Set struct {
	AccessID     uint64
	Reads        []Range
	Writes       []Range
	Reduces      []Range
	ReductionOp  ReductionOp
	Commutative  bool
}

// VerifyReductionRules reports whether s's reduction declaration is
// internally consistent: a set with no reduce ranges is always
// accepted regardless of its declared op; any reduce ranges require
// an allowed operator and Commutative == true.
func VerifyReductionRules(s Set) bool {
	if len(s.Reduces) == 0 {
		return true
	}
	return s.ReductionOp.allowed() && s.Commutative
}

func anyOverlap(as, bs []Range) bool {
	for _, a := range as {
		for _, b := range bs {
			if Overlaps(a, b) {
				return true
			}
		}
	}
	return false
}

// DetectConflicts reports whether a and b may not execute within the
// same phase without violating determinism: overlapping writes,
// overlapping write/read, overlapping write/reduce, or a reduce/reduce
// overlap with mismatched (or disallowed) reduction operators. Nil
// arguments are treated as empty sets and never conflict. This routine
// is symmetric in a and b (P2).
func DetectConflicts(a, b *Set) bool {
	if a == nil || b == nil {
		return false
	}
	if anyOverlap(a.Writes, b.Writes) {
		return true
	}
	if anyOverlap(a.Writes, b.Reads) || anyOverlap(b.Writes, a.Reads) {
		return true
	}
	if anyOverlap(a.Writes, b.Reduces) || anyOverlap(b.Writes, a.Reduces) {
		return true
	}
	if len(a.Reduces) > 0 || len(b.Reduces) > 0 {
		if a.ReductionOp != b.ReductionOp || a.ReductionOp == None || !a.ReductionOp.allowed() {
			return true
		}
	}
	return false
}
