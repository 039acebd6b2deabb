// Package execctxmock provides go.uber.org/mock/gomock mocks for
// execctx's three capability interfaces, in the shape mockgen would
// generate, so tests can set explicit call expectations on law
// evaluation, audit recording, and access-set lookup.
package execctxmock

import (
	"reflect"

	"go.uber.org/mock/gomock"

	"github.com/ridgeline/taskcore/access"
	"github.com/ridgeline/taskcore/execctx"
	"github.com/ridgeline/taskcore/taskir"
)

// MockEvaluator mocks execctx.Evaluator.
type MockEvaluator struct {
	ctrl     *gomock.Controller
	recorder *MockEvaluatorRecorder
}

type MockEvaluatorRecorder struct {
	mock *MockEvaluator
}

func NewMockEvaluator(ctrl *gomock.Controller) *MockEvaluator {
	m := &MockEvaluator{ctrl: ctrl}
	m.recorder = &MockEvaluatorRecorder{m}
	return m
}

func (m *MockEvaluator) EXPECT() *MockEvaluatorRecorder {
	return m.recorder
}

func (m *MockEvaluator) EvaluateLaw(ctx *execctx.ExecutionContext, task *taskir.TaskNode) execctx.LawDecision {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "EvaluateLaw", ctx, task)
	ret0, _ := ret[0].(execctx.LawDecision)
	return ret0
}

func (mr *MockEvaluatorRecorder) EvaluateLaw(ctx, task any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "EvaluateLaw",
		reflect.TypeOf((*MockEvaluator)(nil).EvaluateLaw), ctx, task)
}

// MockRecorder mocks execctx.Recorder.
type MockRecorder struct {
	ctrl     *gomock.Controller
	recorder *MockRecorderRecorder
}

type MockRecorderRecorder struct {
	mock *MockRecorder
}

func NewMockRecorder(ctrl *gomock.Controller) *MockRecorder {
	m := &MockRecorder{ctrl: ctrl}
	m.recorder = &MockRecorderRecorder{m}
	return m
}

func (m *MockRecorder) EXPECT() *MockRecorderRecorder {
	return m.recorder
}

func (m *MockRecorder) RecordAudit(ctx *execctx.ExecutionContext, event execctx.AuditEvent) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "RecordAudit", ctx, event)
}

func (mr *MockRecorderRecorder) RecordAudit(ctx, event any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "RecordAudit",
		reflect.TypeOf((*MockRecorder)(nil).RecordAudit), ctx, event)
}

// MockResolver mocks execctx.Resolver.
type MockResolver struct {
	ctrl     *gomock.Controller
	recorder *MockResolverRecorder
}

type MockResolverRecorder struct {
	mock *MockResolver
}

func NewMockResolver(ctrl *gomock.Controller) *MockResolver {
	m := &MockResolver{ctrl: ctrl}
	m.recorder = &MockResolverRecorder{m}
	return m
}

func (m *MockResolver) EXPECT() *MockResolverRecorder {
	return m.recorder
}

func (m *MockResolver) LookupAccessSet(ctx *execctx.ExecutionContext, accessSetID uint64) *access.Set {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "LookupAccessSet", ctx, accessSetID)
	ret0, _ := ret[0].(*access.Set)
	return ret0
}

func (mr *MockResolverRecorder) LookupAccessSet(ctx, accessSetID any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "LookupAccessSet",
		reflect.TypeOf((*MockResolver)(nil).LookupAccessSet), ctx, accessSetID)
}
