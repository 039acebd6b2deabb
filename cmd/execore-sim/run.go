package main

import (
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ridgeline/taskcore/access"
	"github.com/ridgeline/taskcore/dlog"
	"github.com/ridgeline/taskcore/execctx"
	"github.com/ridgeline/taskcore/fixture"
	"github.com/ridgeline/taskcore/scheduler"
	"github.com/ridgeline/taskcore/taskir"
	"github.com/ridgeline/taskcore/telemetry"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <fixture-file>",
		Short: "Run a fixture through both scheduler backends and compare commit hashes",
		Args:  cobra.ExactArgs(1),
		RunE:  runFixture,
	}
	cmd.Flags().Int("workers", 4, "worker count for the parallel backend")
	cmd.Flags().String("run-root", "", "directory to write perf_<name>_telemetry.txt (defaults to $RUN_ROOT, then '.')")
	return cmd
}

func runFixture(cmd *cobra.Command, args []string) error {
	cfg, err := fixture.ParseFile(args[0])
	if err != nil {
		return fmt.Errorf("parse fixture: %w", err)
	}

	graph, accessSets, err := fixture.BuildGraph(cfg)
	if err != nil {
		return fmt.Errorf("build graph: %w", err)
	}

	workers, _ := cmd.Flags().GetInt("workers")
	runRoot, _ := cmd.Flags().GetString("run-root")
	if runRoot == "" {
		runRoot = os.Getenv("RUN_ROOT")
	}

	reg := prometheus.NewRegistry()
	namespace := fmt.Sprintf("execore_sim_%d", cfg.FixtureID)
	metrics, err := telemetry.New(reg, namespace)
	if err != nil {
		return fmt.Errorf("register telemetry: %w", err)
	}

	singleEvents, singleStatus := runOnce(graph, accessSets, scheduler.Schedule, metrics)
	if singleStatus != scheduler.OK {
		return fmt.Errorf("single-thread scheduler returned %s", singleStatus)
	}

	parallelBackend := func(g *taskir.TaskGraph, ctx *execctx.ExecutionContext, sink scheduler.Sink) scheduler.Status {
		return scheduler.ScheduleParallel(g, ctx, sink, workers)
	}
	parallelEvents, parallelStatus := runOnce(graph, accessSets, parallelBackend, metrics)
	if parallelStatus != scheduler.OK {
		return fmt.Errorf("parallel scheduler returned %s", parallelStatus)
	}

	singleHash := fixture.CommitHash(singleEvents)
	parallelHash := fixture.CommitHash(parallelEvents)

	fmt.Printf("fixture=%s tasks=%d single_hash=%d parallel_hash=%d\n",
		cfg.Name, len(graph.Tasks), singleHash, parallelHash)

	if singleHash != parallelHash {
		return fmt.Errorf("commit hash mismatch between backends: single=%d parallel=%d", singleHash, parallelHash)
	}
	if cfg.ExpectedHash != 0 && singleHash != cfg.ExpectedHash {
		fmt.Printf("WARNING: expected_hash=%d observed=%d\n", cfg.ExpectedHash, singleHash)
	}

	committedCount := countCommitted(singleEvents)
	tel := fixture.Telemetry{
		Fixture:       cfg.Name,
		CPUCost:       uint32(len(graph.Tasks)),
		MemoryCost:    uint32(len(accessSets)),
		EventDepth:    uint32(len(singleEvents)),
		BandwidthCost: uint32(committedCount),
	}
	if err := tel.WriteFile(runRoot); err != nil {
		return fmt.Errorf("write telemetry: %w", err)
	}
	return nil
}

// runOnce schedules graph through backend with an accept-all law, an
// access-set lookup backed by accessSets, and metrics wired in, and
// returns the full audit-event stream.
func runOnce(
	graph *taskir.TaskGraph,
	accessSets map[uint64]*access.Set,
	backend func(*taskir.TaskGraph, *execctx.ExecutionContext, scheduler.Sink) scheduler.Status,
	metrics *telemetry.Metrics,
) ([]execctx.AuditEvent, scheduler.Status) {
	var events []execctx.AuditEvent
	ctx := &execctx.ExecutionContext{
		Mode: execctx.Strict,
		Log:  dlog.NoOp(),
		LookupAccessSet: func(_ *execctx.ExecutionContext, id uint64) *access.Set {
			return accessSets[id]
		},
		RecordAudit: func(_ *execctx.ExecutionContext, e execctx.AuditEvent) {
			events = append(events, e)
			observeEvent(metrics, e)
		},
		OnPhase: func(_ *execctx.ExecutionContext, _ uint32, taskCount int, d time.Duration) {
			metrics.ObservePhase(taskCount, d)
		},
	}

	sink := scheduler.SinkFunc(func(*taskir.TaskNode, execctx.LawDecision) {})
	status := backend(graph, ctx, sink)
	return events, status
}

func observeEvent(metrics *telemetry.Metrics, e execctx.AuditEvent) {
	switch e.EventID {
	case execctx.EventAdmitted:
		metrics.Admitted.Inc()
	case execctx.EventRefused:
		metrics.Refused.Inc()
		metrics.RefusalsByCode.WithLabelValues(fmt.Sprintf("%d", e.RefusalCode)).Inc()
	case execctx.EventTransformed:
		metrics.Transformed.Inc()
	case execctx.EventExecuted:
		metrics.Executed.Inc()
	case execctx.EventCommitted:
		metrics.Committed.Inc()
	}
}

func countCommitted(events []execctx.AuditEvent) int {
	n := 0
	for _, e := range events {
		if e.EventID == execctx.EventCommitted {
			n++
		}
	}
	return n
}
