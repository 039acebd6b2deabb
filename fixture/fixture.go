// Package fixture reads the flat key=value fixture format named in
// spec.md §6 and builds the synthetic TaskGraph it describes, and
// writes the per-fixture telemetry file the test harness compares
// across runs. The format is explicitly "not versioned" (a human-
// readable regression artifact, per spec.md), so it is read with a
// direct line scanner rather than a config library — see DESIGN.md.
//
// Grounded on
// original_source/engine/tests/execution_perf_regression_tests.cpp's
// parse_fixture/build_graph/write_telemetry: the key set, synthetic
// task/access-set construction, and `perf_<name>_telemetry.txt`
// format all mirror that file.
package fixture

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ridgeline/taskcore/access"
	"github.com/ridgeline/taskcore/taskir"
)

// Config is one parsed fixture file's declared parameters.
type Config struct {
	Name string

	FixtureID        uint32
	StrictCount      uint32
	OrderedCount     uint32
	CommutativeCount uint32
	DerivedCount     uint32
	PhaseCount       uint32
	ShardCount       uint32

	CPUBudget2010    uint32
	CPUBudget2020    uint32
	CPUBudgetServer  uint32
	MemoryBudget2010 uint32
	MemoryBudget2020 uint32
	MemoryBudgetServer uint32
	EventBudget      uint32
	BandwidthBudget  uint32
	DegradeCPUBudget uint32

	ExpectedHash         uint64
	ExpectedDegradedHash uint64
}

// TotalTasks is the sum of the four determinism-class task counts.
func (c *Config) TotalTasks() uint32 {
	return c.StrictCount + c.OrderedCount + c.CommutativeCount + c.DerivedCount
}

// Parse reads a fixture from r: a flat key=value file, blank lines
// and lines starting with '#' ignored, unknown keys ignored.
func Parse(r io.Reader) (*Config, error) {
	cfg := &Config{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("fixture: line %d: missing '=' in %q", lineNo, line)
		}
		if err := applyField(cfg, strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
			return nil, fmt.Errorf("fixture: line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseFile opens path and parses it as a fixture file.
func ParseFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

func applyField(cfg *Config, key, value string) error {
	u32 := func(dst *uint32) error {
		v, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
		*dst = uint32(v)
		return nil
	}
	u64 := func(dst *uint64) error {
		v, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
		*dst = v
		return nil
	}

	switch key {
	case "name":
		cfg.Name = value
	case "fixture_id":
		return u32(&cfg.FixtureID)
	case "strict_count":
		return u32(&cfg.StrictCount)
	case "ordered_count":
		return u32(&cfg.OrderedCount)
	case "commutative_count":
		return u32(&cfg.CommutativeCount)
	case "derived_count":
		return u32(&cfg.DerivedCount)
	case "phase_count":
		return u32(&cfg.PhaseCount)
	case "shard_count":
		return u32(&cfg.ShardCount)
	case "cpu_budget_2010":
		return u32(&cfg.CPUBudget2010)
	case "cpu_budget_2020":
		return u32(&cfg.CPUBudget2020)
	case "cpu_budget_server":
		return u32(&cfg.CPUBudgetServer)
	case "memory_budget_2010":
		return u32(&cfg.MemoryBudget2010)
	case "memory_budget_2020":
		return u32(&cfg.MemoryBudget2020)
	case "memory_budget_server":
		return u32(&cfg.MemoryBudgetServer)
	case "event_budget":
		return u32(&cfg.EventBudget)
	case "bandwidth_budget":
		return u32(&cfg.BandwidthBudget)
	case "degrade_cpu_budget":
		return u32(&cfg.DegradeCPUBudget)
	case "expected_hash":
		return u64(&cfg.ExpectedHash)
	case "expected_degraded_hash":
		return u64(&cfg.ExpectedDegradedHash)
	default:
		// Unknown keys are ignored per spec.md §6.
		return nil
	}
}

// BuildGraph constructs the synthetic TaskGraph a fixture describes:
// strict_count + ordered_count + commutative_count Authoritative
// tasks followed by derived_count Derived tasks, each carrying a
// one-range AccessSet (write for Strict/Ordered, reduce for
// Commutative with IntSum, read for Derived), round-robined across
// phase_count phases. Mirrors build_graph's synthetic construction
// exactly, including its id scheme
// (task_id = fixture_id*100000 + i+1, access_id = fixture_id*1000000 + i+1).
func BuildGraph(cfg *Config) (*taskir.TaskGraph, map[uint64]*access.Set, error) {
	if cfg.PhaseCount == 0 {
		return nil, nil, fmt.Errorf("fixture: phase_count must be non-zero")
	}

	total := cfg.TotalTasks()
	tasks := make([]taskir.TaskNode, 0, total)
	accessSets := make(map[uint64]*access.Set, total)

	authLimit := cfg.StrictCount + cfg.OrderedCount + cfg.CommutativeCount

	for i := uint32(0); i < total; i++ {
		taskID := uint64(cfg.FixtureID)*100000 + uint64(i+1)
		accessID := uint64(cfg.FixtureID)*1000000 + uint64(i+1)
		phaseID := (i % cfg.PhaseCount) + 1

		var category taskir.Category
		var detClass taskir.DeterminismClass
		switch {
		case i < cfg.StrictCount:
			category, detClass = taskir.Authoritative, taskir.Strict
		case i < cfg.StrictCount+cfg.OrderedCount:
			category, detClass = taskir.Authoritative, taskir.Ordered
		case i < authLimit:
			category, detClass = taskir.Authoritative, taskir.Commutative
		default:
			category, detClass = taskir.Derived, taskir.DerivedDeterminism
		}

		rng := access.Range{
			Kind:        access.IndexRange,
			ComponentID: 200 + i,
			FieldID:     1,
			StartID:     uint64(i),
			EndID:       uint64(i),
		}
		set := &access.Set{AccessID: accessID}
		switch {
		case detClass == taskir.Commutative:
			set.Reduces = []access.Range{rng}
			set.ReductionOp = access.IntSum
			set.Commutative = true
		case category == taskir.Derived:
			set.Reads = []access.Range{rng}
		default:
			set.Writes = []access.Range{rng}
		}
		accessSets[accessID] = set

		var lawTargets []uint64
		if category == taskir.Authoritative {
			lawTargets = []uint64{1}
		}

		tasks = append(tasks, taskir.TaskNode{
			TaskID:           taskID,
			SystemID:         cfg.FixtureID,
			Category:         category,
			DeterminismClass: detClass,
			FidelityTier:     taskir.Macro,
			NextDueTick:      taskir.InvalidTick,
			AccessSetID:      accessID,
			CostModelID:      accessID + 100,
			LawTargets:       lawTargets,
			PhaseID:          phaseID,
			CommitKey:        taskir.CommitKey{PhaseID: phaseID, TaskID: taskID},
			LawScopeRef:      1,
		})
	}

	taskir.StableSort(tasks)

	graph := &taskir.TaskGraph{
		GraphID: uint64(cfg.FixtureID),
		EpochID: 1,
		Tasks:   tasks,
	}
	return graph, accessSets, nil
}

// Telemetry is the perf_<name>_telemetry.txt payload for one fixture
// run (spec.md §6). The format is a human-readable regression
// artifact, not versioned.
type Telemetry struct {
	Fixture      string
	CPUCost      uint32
	MemoryCost   uint32
	EventDepth   uint32
	BandwidthCost uint32
}

// WriteFile writes t as perf_<fixture>_telemetry.txt under runRoot. An
// empty runRoot writes to the current directory, matching the
// original's getenv-empty fallback to ".".
func (t Telemetry) WriteFile(runRoot string) error {
	if runRoot == "" {
		runRoot = "."
	}
	path := filepath.Join(runRoot, fmt.Sprintf("perf_%s_telemetry.txt", t.Fixture))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "fixture=%s\n", t.Fixture)
	fmt.Fprintf(w, "cpu_cost=%d\n", t.CPUCost)
	fmt.Fprintf(w, "memory_cost=%d\n", t.MemoryCost)
	fmt.Fprintf(w, "event_depth=%d\n", t.EventDepth)
	fmt.Fprintf(w, "bandwidth_cost=%d\n", t.BandwidthCost)
	return w.Flush()
}
