// The MIT License
//
// Copyright (c) 2020 Temporal Technologies Inc.  All rights reserved.
//
// Copyright (c) 2020 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package internal

import (
	"context"

	"go.flowbridge.dev/sdk/converter"
	"go.flowbridge.dev/sdk/internal/workflowservice"
)

// Every outbound client operation flows through an ordered chain of
// interceptors before reaching the terminal implementation that speaks
// gRPC. Each hook receives a typed input struct that middleware can read and
// rewrite before passing on; the chain is materialized once at client
// construction by function composition, innermost (terminal) last.

type (
	// ClientInterceptor wraps the next outbound interceptor in the chain.
	// Implementations typically embed ClientOutboundInterceptorBase and
	// override a subset of hooks.
	ClientInterceptor interface {
		InterceptClient(next ClientOutboundInterceptor) ClientOutboundInterceptor
	}

	// ClientOutboundInterceptor has one hook per client operation.
	ClientOutboundInterceptor interface {
		ExecuteWorkflow(ctx context.Context, in *StartWorkflowInput) (WorkflowRun, error)
		SignalWorkflow(ctx context.Context, in *SignalWorkflowInput) error
		SignalWithStartWorkflow(ctx context.Context, in *SignalWithStartWorkflowInput) (WorkflowRun, error)
		QueryWorkflow(ctx context.Context, in *QueryWorkflowInput) (converter.Value, error)
		UpdateWorkflow(ctx context.Context, in *UpdateWorkflowInput) (WorkflowUpdateHandle, error)
		CancelWorkflow(ctx context.Context, in *CancelWorkflowInput) error
		TerminateWorkflow(ctx context.Context, in *TerminateWorkflowInput) error
		DescribeWorkflow(ctx context.Context, in *DescribeWorkflowInput) (*WorkflowExecutionDescription, error)

		HeartbeatAsyncActivity(ctx context.Context, in *HeartbeatAsyncActivityInput) error
		CompleteAsyncActivity(ctx context.Context, in *CompleteAsyncActivityInput) error
		FailAsyncActivity(ctx context.Context, in *FailAsyncActivityInput) error
		ReportCancellationAsyncActivity(ctx context.Context, in *ReportCancellationAsyncActivityInput) error

		CreateSchedule(ctx context.Context, in *CreateScheduleInput) (ScheduleHandle, error)
		DescribeSchedule(ctx context.Context, in *DescribeScheduleInput) (*ScheduleDescription, error)
		UpdateSchedule(ctx context.Context, in *UpdateScheduleInput) error
		PatchSchedule(ctx context.Context, in *PatchScheduleInput) error
		DeleteSchedule(ctx context.Context, in *DeleteScheduleInput) error
		ListSchedules(ctx context.Context, in *ListSchedulesInput) (*workflowservice.ListSchedulesResponse, error)
	}

	// StartWorkflowInput is the input to ExecuteWorkflow.
	StartWorkflowInput struct {
		WorkflowType string
		Options      StartWorkflowOptions
		Args         []interface{}
	}

	// SignalWorkflowInput is the input to SignalWorkflow.
	SignalWorkflowInput struct {
		WorkflowID string
		RunID      string
		SignalName string
		Arg        interface{}
	}

	// SignalWithStartWorkflowInput is the input to SignalWithStartWorkflow.
	SignalWithStartWorkflowInput struct {
		SignalName   string
		SignalArg    interface{}
		WorkflowType string
		Options      StartWorkflowOptions
		Args         []interface{}
	}

	// QueryWorkflowInput is the input to QueryWorkflow.
	QueryWorkflowInput struct {
		WorkflowID      string
		RunID           string
		QueryType       string
		Args            []interface{}
		RejectCondition QueryRejectCondition
	}

	// UpdateWorkflowInput is the input to UpdateWorkflow.
	UpdateWorkflowInput struct {
		WorkflowID   string
		RunID        string
		UpdateName   string
		UpdateID     string
		Args         []interface{}
		WaitForStage workflowservice.UpdateWorkflowStage
	}

	// CancelWorkflowInput is the input to CancelWorkflow.
	CancelWorkflowInput struct {
		WorkflowID string
		RunID      string
		Reason     string
	}

	// TerminateWorkflowInput is the input to TerminateWorkflow.
	TerminateWorkflowInput struct {
		WorkflowID string
		RunID      string
		Reason     string
		Details    []interface{}
	}

	// DescribeWorkflowInput is the input to DescribeWorkflow.
	DescribeWorkflowInput struct {
		WorkflowID string
		RunID      string
	}

	// HeartbeatAsyncActivityInput is the input to HeartbeatAsyncActivity;
	// exactly one of TaskToken or ID addresses the activity.
	HeartbeatAsyncActivityInput struct {
		TaskToken []byte
		ID        *AsyncActivityID
		Details   []interface{}
	}

	// CompleteAsyncActivityInput is the input to CompleteAsyncActivity.
	CompleteAsyncActivityInput struct {
		TaskToken []byte
		ID        *AsyncActivityID
		Result    interface{}
	}

	// FailAsyncActivityInput is the input to FailAsyncActivity.
	FailAsyncActivityInput struct {
		TaskToken []byte
		ID        *AsyncActivityID
		Err       error
	}

	// ReportCancellationAsyncActivityInput is the input to
	// ReportCancellationAsyncActivity.
	ReportCancellationAsyncActivityInput struct {
		TaskToken []byte
		ID        *AsyncActivityID
		Details   []interface{}
	}

	// AsyncActivityID addresses an activity by workflow id, optional run id,
	// and activity id, for callers that never saw the task token.
	AsyncActivityID struct {
		WorkflowID string
		RunID      string
		ActivityID string
	}

	// CreateScheduleInput is the input to CreateSchedule.
	CreateScheduleInput struct {
		Options ScheduleOptions
	}

	// DescribeScheduleInput is the input to DescribeSchedule.
	DescribeScheduleInput struct {
		ID string
	}

	// UpdateScheduleInput is the input to UpdateSchedule.
	UpdateScheduleInput struct {
		ID            string
		Schedule      *workflowservice.Schedule
		ConflictToken []byte
	}

	// PatchScheduleInput is the input to PatchSchedule (trigger, backfill,
	// pause, unpause).
	PatchScheduleInput struct {
		ID    string
		Patch *workflowservice.SchedulePatch
	}

	// DeleteScheduleInput is the input to DeleteSchedule.
	DeleteScheduleInput struct {
		ID string
	}

	// ListSchedulesInput is the input to ListSchedules.
	ListSchedulesInput struct {
		PageSize      int32
		NextPageToken []byte
		Query         string
	}

	// ClientOutboundInterceptorBase is a passthrough implementation of every
	// hook; embed it and override only what you need.
	ClientOutboundInterceptorBase struct {
		Next ClientOutboundInterceptor
	}
)

// QueryRejectCondition makes a query fail instead of answering when the
// workflow is in an unwanted state.
type QueryRejectCondition int

const (
	QueryRejectConditionNone QueryRejectCondition = iota
	QueryRejectConditionNotOpen
	QueryRejectConditionNotCompletedCleanly
)

func (b *ClientOutboundInterceptorBase) ExecuteWorkflow(ctx context.Context, in *StartWorkflowInput) (WorkflowRun, error) {
	return b.Next.ExecuteWorkflow(ctx, in)
}

func (b *ClientOutboundInterceptorBase) SignalWorkflow(ctx context.Context, in *SignalWorkflowInput) error {
	return b.Next.SignalWorkflow(ctx, in)
}

func (b *ClientOutboundInterceptorBase) SignalWithStartWorkflow(ctx context.Context, in *SignalWithStartWorkflowInput) (WorkflowRun, error) {
	return b.Next.SignalWithStartWorkflow(ctx, in)
}

func (b *ClientOutboundInterceptorBase) QueryWorkflow(ctx context.Context, in *QueryWorkflowInput) (converter.Value, error) {
	return b.Next.QueryWorkflow(ctx, in)
}

func (b *ClientOutboundInterceptorBase) UpdateWorkflow(ctx context.Context, in *UpdateWorkflowInput) (WorkflowUpdateHandle, error) {
	return b.Next.UpdateWorkflow(ctx, in)
}

func (b *ClientOutboundInterceptorBase) CancelWorkflow(ctx context.Context, in *CancelWorkflowInput) error {
	return b.Next.CancelWorkflow(ctx, in)
}

func (b *ClientOutboundInterceptorBase) TerminateWorkflow(ctx context.Context, in *TerminateWorkflowInput) error {
	return b.Next.TerminateWorkflow(ctx, in)
}

func (b *ClientOutboundInterceptorBase) DescribeWorkflow(ctx context.Context, in *DescribeWorkflowInput) (*WorkflowExecutionDescription, error) {
	return b.Next.DescribeWorkflow(ctx, in)
}

func (b *ClientOutboundInterceptorBase) HeartbeatAsyncActivity(ctx context.Context, in *HeartbeatAsyncActivityInput) error {
	return b.Next.HeartbeatAsyncActivity(ctx, in)
}

func (b *ClientOutboundInterceptorBase) CompleteAsyncActivity(ctx context.Context, in *CompleteAsyncActivityInput) error {
	return b.Next.CompleteAsyncActivity(ctx, in)
}

func (b *ClientOutboundInterceptorBase) FailAsyncActivity(ctx context.Context, in *FailAsyncActivityInput) error {
	return b.Next.FailAsyncActivity(ctx, in)
}

func (b *ClientOutboundInterceptorBase) ReportCancellationAsyncActivity(ctx context.Context, in *ReportCancellationAsyncActivityInput) error {
	return b.Next.ReportCancellationAsyncActivity(ctx, in)
}

func (b *ClientOutboundInterceptorBase) CreateSchedule(ctx context.Context, in *CreateScheduleInput) (ScheduleHandle, error) {
	return b.Next.CreateSchedule(ctx, in)
}

func (b *ClientOutboundInterceptorBase) DescribeSchedule(ctx context.Context, in *DescribeScheduleInput) (*ScheduleDescription, error) {
	return b.Next.DescribeSchedule(ctx, in)
}

func (b *ClientOutboundInterceptorBase) UpdateSchedule(ctx context.Context, in *UpdateScheduleInput) error {
	return b.Next.UpdateSchedule(ctx, in)
}

func (b *ClientOutboundInterceptorBase) PatchSchedule(ctx context.Context, in *PatchScheduleInput) error {
	return b.Next.PatchSchedule(ctx, in)
}

func (b *ClientOutboundInterceptorBase) DeleteSchedule(ctx context.Context, in *DeleteScheduleInput) error {
	return b.Next.DeleteSchedule(ctx, in)
}

func (b *ClientOutboundInterceptorBase) ListSchedules(ctx context.Context, in *ListSchedulesInput) (*workflowservice.ListSchedulesResponse, error) {
	return b.Next.ListSchedules(ctx, in)
}

// newInterceptorChain composes interceptors around the terminal
// implementation, first interceptor outermost.
func newInterceptorChain(terminal ClientOutboundInterceptor, interceptors []ClientInterceptor) ClientOutboundInterceptor {
	head := terminal
	for i := len(interceptors) - 1; i >= 0; i-- {
		head = interceptors[i].InterceptClient(head)
	}
	return head
}
