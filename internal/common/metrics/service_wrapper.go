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

package metrics

import (
	"context"
	"time"

	"github.com/uber-go/tally"
	"google.golang.org/grpc"

	"go.flowbridge.dev/sdk/internal/workflowservice"
)

// workflowServiceMetricsWrapper instruments every RPC of the service client
// with the standard request counter, failure counter, and latency timer,
// tagged by operation name.
type workflowServiceMetricsWrapper struct {
	service workflowservice.WorkflowServiceClient
	scope   tally.Scope
}

// NewWorkflowServiceWrapper wraps service so every call is counted and
// timed under scope.
func NewWorkflowServiceWrapper(service workflowservice.WorkflowServiceClient, scope tally.Scope) workflowservice.WorkflowServiceClient {
	if scope == nil {
		scope = NewNoopScope()
	}
	return &workflowServiceMetricsWrapper{service: service, scope: scope}
}

// instrument starts the per-operation clock and returns the closure to call
// with the RPC's error once it settles.
func (w *workflowServiceMetricsWrapper) instrument(operation string) func(err error) {
	scope := TaggedScope(w.scope, TagOperation, operation)
	scope.Counter(SDKRequest).Inc(1)
	startTime := time.Now()
	return func(err error) {
		scope.Timer(SDKRequestLatency).Record(time.Since(startTime))
		if err != nil {
			scope.Counter(SDKRequestFailure).Inc(1)
		}
	}
}

func (w *workflowServiceMetricsWrapper) StartWorkflowExecution(ctx context.Context, in *workflowservice.StartWorkflowExecutionRequest, opts ...grpc.CallOption) (*workflowservice.StartWorkflowExecutionResponse, error) {
	record := w.instrument("StartWorkflowExecution")
	resp, err := w.service.StartWorkflowExecution(ctx, in, opts...)
	record(err)
	return resp, err
}

func (w *workflowServiceMetricsWrapper) SignalWorkflowExecution(ctx context.Context, in *workflowservice.SignalWorkflowExecutionRequest, opts ...grpc.CallOption) (*workflowservice.SignalWorkflowExecutionResponse, error) {
	record := w.instrument("SignalWorkflowExecution")
	resp, err := w.service.SignalWorkflowExecution(ctx, in, opts...)
	record(err)
	return resp, err
}

func (w *workflowServiceMetricsWrapper) SignalWithStartWorkflowExecution(ctx context.Context, in *workflowservice.SignalWithStartWorkflowExecutionRequest, opts ...grpc.CallOption) (*workflowservice.SignalWithStartWorkflowExecutionResponse, error) {
	record := w.instrument("SignalWithStartWorkflowExecution")
	resp, err := w.service.SignalWithStartWorkflowExecution(ctx, in, opts...)
	record(err)
	return resp, err
}

func (w *workflowServiceMetricsWrapper) RequestCancelWorkflowExecution(ctx context.Context, in *workflowservice.RequestCancelWorkflowExecutionRequest, opts ...grpc.CallOption) (*workflowservice.RequestCancelWorkflowExecutionResponse, error) {
	record := w.instrument("RequestCancelWorkflowExecution")
	resp, err := w.service.RequestCancelWorkflowExecution(ctx, in, opts...)
	record(err)
	return resp, err
}

func (w *workflowServiceMetricsWrapper) TerminateWorkflowExecution(ctx context.Context, in *workflowservice.TerminateWorkflowExecutionRequest, opts ...grpc.CallOption) (*workflowservice.TerminateWorkflowExecutionResponse, error) {
	record := w.instrument("TerminateWorkflowExecution")
	resp, err := w.service.TerminateWorkflowExecution(ctx, in, opts...)
	record(err)
	return resp, err
}

func (w *workflowServiceMetricsWrapper) GetWorkflowExecutionHistory(ctx context.Context, in *workflowservice.GetWorkflowExecutionHistoryRequest, opts ...grpc.CallOption) (*workflowservice.GetWorkflowExecutionHistoryResponse, error) {
	record := w.instrument("GetWorkflowExecutionHistory")
	resp, err := w.service.GetWorkflowExecutionHistory(ctx, in, opts...)
	record(err)
	return resp, err
}

func (w *workflowServiceMetricsWrapper) QueryWorkflow(ctx context.Context, in *workflowservice.QueryWorkflowRequest, opts ...grpc.CallOption) (*workflowservice.QueryWorkflowResponse, error) {
	record := w.instrument("QueryWorkflow")
	resp, err := w.service.QueryWorkflow(ctx, in, opts...)
	record(err)
	return resp, err
}

func (w *workflowServiceMetricsWrapper) DescribeWorkflowExecution(ctx context.Context, in *workflowservice.DescribeWorkflowExecutionRequest, opts ...grpc.CallOption) (*workflowservice.DescribeWorkflowExecutionResponse, error) {
	record := w.instrument("DescribeWorkflowExecution")
	resp, err := w.service.DescribeWorkflowExecution(ctx, in, opts...)
	record(err)
	return resp, err
}

func (w *workflowServiceMetricsWrapper) UpdateWorkflowExecution(ctx context.Context, in *workflowservice.UpdateWorkflowExecutionRequest, opts ...grpc.CallOption) (*workflowservice.UpdateWorkflowExecutionResponse, error) {
	record := w.instrument("UpdateWorkflowExecution")
	resp, err := w.service.UpdateWorkflowExecution(ctx, in, opts...)
	record(err)
	return resp, err
}

func (w *workflowServiceMetricsWrapper) PollWorkflowExecutionUpdate(ctx context.Context, in *workflowservice.PollWorkflowExecutionUpdateRequest, opts ...grpc.CallOption) (*workflowservice.PollWorkflowExecutionUpdateResponse, error) {
	record := w.instrument("PollWorkflowExecutionUpdate")
	resp, err := w.service.PollWorkflowExecutionUpdate(ctx, in, opts...)
	record(err)
	return resp, err
}

func (w *workflowServiceMetricsWrapper) RecordActivityTaskHeartbeat(ctx context.Context, in *workflowservice.RecordActivityTaskHeartbeatRequest, opts ...grpc.CallOption) (*workflowservice.RecordActivityTaskHeartbeatResponse, error) {
	record := w.instrument("RecordActivityTaskHeartbeat")
	resp, err := w.service.RecordActivityTaskHeartbeat(ctx, in, opts...)
	record(err)
	return resp, err
}

func (w *workflowServiceMetricsWrapper) RecordActivityTaskHeartbeatByID(ctx context.Context, in *workflowservice.RecordActivityTaskHeartbeatByIDRequest, opts ...grpc.CallOption) (*workflowservice.RecordActivityTaskHeartbeatResponse, error) {
	record := w.instrument("RecordActivityTaskHeartbeatByID")
	resp, err := w.service.RecordActivityTaskHeartbeatByID(ctx, in, opts...)
	record(err)
	return resp, err
}

func (w *workflowServiceMetricsWrapper) RespondActivityTaskCompleted(ctx context.Context, in *workflowservice.RespondActivityTaskCompletedRequest, opts ...grpc.CallOption) (*workflowservice.RespondActivityTaskCompletedResponse, error) {
	record := w.instrument("RespondActivityTaskCompleted")
	resp, err := w.service.RespondActivityTaskCompleted(ctx, in, opts...)
	record(err)
	return resp, err
}

func (w *workflowServiceMetricsWrapper) RespondActivityTaskCompletedByID(ctx context.Context, in *workflowservice.RespondActivityTaskCompletedByIDRequest, opts ...grpc.CallOption) (*workflowservice.RespondActivityTaskCompletedResponse, error) {
	record := w.instrument("RespondActivityTaskCompletedByID")
	resp, err := w.service.RespondActivityTaskCompletedByID(ctx, in, opts...)
	record(err)
	return resp, err
}

func (w *workflowServiceMetricsWrapper) RespondActivityTaskFailed(ctx context.Context, in *workflowservice.RespondActivityTaskFailedRequest, opts ...grpc.CallOption) (*workflowservice.RespondActivityTaskFailedResponse, error) {
	record := w.instrument("RespondActivityTaskFailed")
	resp, err := w.service.RespondActivityTaskFailed(ctx, in, opts...)
	record(err)
	return resp, err
}

func (w *workflowServiceMetricsWrapper) RespondActivityTaskFailedByID(ctx context.Context, in *workflowservice.RespondActivityTaskFailedByIDRequest, opts ...grpc.CallOption) (*workflowservice.RespondActivityTaskFailedResponse, error) {
	record := w.instrument("RespondActivityTaskFailedByID")
	resp, err := w.service.RespondActivityTaskFailedByID(ctx, in, opts...)
	record(err)
	return resp, err
}

func (w *workflowServiceMetricsWrapper) RespondActivityTaskCanceled(ctx context.Context, in *workflowservice.RespondActivityTaskCanceledRequest, opts ...grpc.CallOption) (*workflowservice.RespondActivityTaskCanceledResponse, error) {
	record := w.instrument("RespondActivityTaskCanceled")
	resp, err := w.service.RespondActivityTaskCanceled(ctx, in, opts...)
	record(err)
	return resp, err
}

func (w *workflowServiceMetricsWrapper) RespondActivityTaskCanceledByID(ctx context.Context, in *workflowservice.RespondActivityTaskCanceledByIDRequest, opts ...grpc.CallOption) (*workflowservice.RespondActivityTaskCanceledResponse, error) {
	record := w.instrument("RespondActivityTaskCanceledByID")
	resp, err := w.service.RespondActivityTaskCanceledByID(ctx, in, opts...)
	record(err)
	return resp, err
}

func (w *workflowServiceMetricsWrapper) CreateSchedule(ctx context.Context, in *workflowservice.CreateScheduleRequest, opts ...grpc.CallOption) (*workflowservice.CreateScheduleResponse, error) {
	record := w.instrument("CreateSchedule")
	resp, err := w.service.CreateSchedule(ctx, in, opts...)
	record(err)
	return resp, err
}

func (w *workflowServiceMetricsWrapper) DescribeSchedule(ctx context.Context, in *workflowservice.DescribeScheduleRequest, opts ...grpc.CallOption) (*workflowservice.DescribeScheduleResponse, error) {
	record := w.instrument("DescribeSchedule")
	resp, err := w.service.DescribeSchedule(ctx, in, opts...)
	record(err)
	return resp, err
}

func (w *workflowServiceMetricsWrapper) UpdateSchedule(ctx context.Context, in *workflowservice.UpdateScheduleRequest, opts ...grpc.CallOption) (*workflowservice.UpdateScheduleResponse, error) {
	record := w.instrument("UpdateSchedule")
	resp, err := w.service.UpdateSchedule(ctx, in, opts...)
	record(err)
	return resp, err
}

func (w *workflowServiceMetricsWrapper) PatchSchedule(ctx context.Context, in *workflowservice.PatchScheduleRequest, opts ...grpc.CallOption) (*workflowservice.PatchScheduleResponse, error) {
	record := w.instrument("PatchSchedule")
	resp, err := w.service.PatchSchedule(ctx, in, opts...)
	record(err)
	return resp, err
}

func (w *workflowServiceMetricsWrapper) ListSchedules(ctx context.Context, in *workflowservice.ListSchedulesRequest, opts ...grpc.CallOption) (*workflowservice.ListSchedulesResponse, error) {
	record := w.instrument("ListSchedules")
	resp, err := w.service.ListSchedules(ctx, in, opts...)
	record(err)
	return resp, err
}

func (w *workflowServiceMetricsWrapper) DeleteSchedule(ctx context.Context, in *workflowservice.DeleteScheduleRequest, opts ...grpc.CallOption) (*workflowservice.DeleteScheduleResponse, error) {
	record := w.instrument("DeleteSchedule")
	resp, err := w.service.DeleteSchedule(ctx, in, opts...)
	record(err)
	return resp, err
}
