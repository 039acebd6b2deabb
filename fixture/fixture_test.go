package fixture

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ridgeline/taskcore/taskir"
)

const sampleFixture = `# sample fixture
name=smoke
fixture_id=7
strict_count=2
ordered_count=1
commutative_count=1
derived_count=1
phase_count=2
shard_count=2
cpu_budget_server=1000
expected_hash=12345
unknown_key=ignored
`

func TestParseFixture(t *testing.T) {
	cfg, err := Parse(strings.NewReader(sampleFixture))
	require.NoError(t, err)
	require.Equal(t, "smoke", cfg.Name)
	require.Equal(t, uint32(7), cfg.FixtureID)
	require.Equal(t, uint32(2), cfg.StrictCount)
	require.Equal(t, uint32(1), cfg.OrderedCount)
	require.Equal(t, uint32(1), cfg.CommutativeCount)
	require.Equal(t, uint32(1), cfg.DerivedCount)
	require.Equal(t, uint32(2), cfg.PhaseCount)
	require.Equal(t, uint64(12345), cfg.ExpectedHash)
	require.Equal(t, uint32(5), cfg.TotalTasks())
}

func TestParseFixtureRejectsMalformedLine(t *testing.T) {
	_, err := Parse(strings.NewReader("name=smoke\nnotakeyvalue\n"))
	require.Error(t, err)
}

func TestBuildGraphProducesSortedCategorizedTasks(t *testing.T) {
	cfg, err := Parse(strings.NewReader(sampleFixture))
	require.NoError(t, err)

	graph, accessSets, err := BuildGraph(cfg)
	require.NoError(t, err)
	require.True(t, taskir.IsSorted(graph.Tasks))
	require.Len(t, graph.Tasks, 5)
	require.Len(t, accessSets, 5)

	authoritative, derived := 0, 0
	commutative := 0
	for _, task := range graph.Tasks {
		switch task.Category {
		case taskir.Authoritative:
			authoritative++
		case taskir.Derived:
			derived++
		}
		if task.DeterminismClass == taskir.Commutative {
			commutative++
			set := accessSets[task.AccessSetID]
			require.NotEmpty(t, set.Reduces)
			require.True(t, set.Commutative)
		}
	}
	require.Equal(t, 4, authoritative)
	require.Equal(t, 1, derived)
	require.Equal(t, 1, commutative)
}

func TestBuildGraphRejectsZeroPhaseCount(t *testing.T) {
	cfg := &Config{StrictCount: 1, PhaseCount: 0}
	_, _, err := BuildGraph(cfg)
	require.Error(t, err)
}
