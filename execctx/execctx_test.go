package execctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ridgeline/taskcore/access"
	"github.com/ridgeline/taskcore/taskir"
)

func TestNilEvaluatorAcceptsAll(t *testing.T) {
	ctx := &ExecutionContext{}
	task := &taskir.TaskNode{TaskID: 1}
	decision := ctx.EvalLaw(task)
	require.Equal(t, Accept, decision.Kind)
}

func TestHasAccessSetLookup(t *testing.T) {
	var ctx *ExecutionContext
	require.False(t, ctx.HasAccessSetLookup())

	ctx = &ExecutionContext{}
	require.False(t, ctx.HasAccessSetLookup())

	ctx.LookupAccessSet = func(*ExecutionContext, uint64) *access.Set { return nil }
	require.True(t, ctx.HasAccessSetLookup())
}

func TestAuditIsOptional(t *testing.T) {
	ctx := &ExecutionContext{}
	require.NotPanics(t, func() {
		ctx.Audit(AuditEvent{EventID: EventAdmitted, TaskID: 1})
	})
}

func TestAuditInvokesRecorder(t *testing.T) {
	var got []AuditEvent
	ctx := &ExecutionContext{
		RecordAudit: func(_ *ExecutionContext, e AuditEvent) {
			got = append(got, e)
		},
	}
	ctx.Audit(AuditEvent{EventID: EventAdmitted, TaskID: 7})
	require.Len(t, got, 1)
	require.Equal(t, uint64(7), got[0].TaskID)
}

func TestWithContextRoundTrip(t *testing.T) {
	ec := &ExecutionContext{Mode: Test}
	ctx := WithContext(context.Background(), ec)
	got, ok := FromContext(ctx)
	require.True(t, ok)
	require.Same(t, ec, got)
}
