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
	"testing"

	"github.com/gogo/status"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"

	"go.flowbridge.dev/sdk/internal/workflowservice"
)

// fakeService is a scriptable in-memory WorkflowServiceClient: each RPC
// records its request and pops the next scripted response (or returns a
// zero-value response when the script is empty).
type fakeService struct {
	startRequests    []*workflowservice.StartWorkflowExecutionRequest
	startResponses   []*workflowservice.StartWorkflowExecutionResponse
	startErrs        []error
	historyResponses []*workflowservice.GetWorkflowExecutionHistoryResponse
	queryResponse    *workflowservice.QueryWorkflowResponse
	queryRequests    []*workflowservice.QueryWorkflowRequest
	updateResponse   *workflowservice.UpdateWorkflowExecutionResponse
	pollUpdate       *workflowservice.PollWorkflowExecutionUpdateResponse
	heartbeatResp    *workflowservice.RecordActivityTaskHeartbeatResponse
	heartbeatErr     error

	createScheduleRequests   []*workflowservice.CreateScheduleRequest
	patchScheduleRequests    []*workflowservice.PatchScheduleRequest
	updateScheduleRequests   []*workflowservice.UpdateScheduleRequest
	deleteScheduleRequests   []*workflowservice.DeleteScheduleRequest
	describeScheduleResponse *workflowservice.DescribeScheduleResponse
	listSchedulesResponses   []*workflowservice.ListSchedulesResponse
}

func (s *fakeService) StartWorkflowExecution(ctx context.Context, in *workflowservice.StartWorkflowExecutionRequest, opts ...grpc.CallOption) (*workflowservice.StartWorkflowExecutionResponse, error) {
	s.startRequests = append(s.startRequests, in)
	if len(s.startErrs) > 0 {
		err := s.startErrs[0]
		s.startErrs = s.startErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(s.startResponses) > 0 {
		resp := s.startResponses[0]
		s.startResponses = s.startResponses[1:]
		return resp, nil
	}
	return &workflowservice.StartWorkflowExecutionResponse{RunID: "run-1"}, nil
}

func (s *fakeService) SignalWorkflowExecution(ctx context.Context, in *workflowservice.SignalWorkflowExecutionRequest, opts ...grpc.CallOption) (*workflowservice.SignalWorkflowExecutionResponse, error) {
	return &workflowservice.SignalWorkflowExecutionResponse{}, nil
}

func (s *fakeService) SignalWithStartWorkflowExecution(ctx context.Context, in *workflowservice.SignalWithStartWorkflowExecutionRequest, opts ...grpc.CallOption) (*workflowservice.SignalWithStartWorkflowExecutionResponse, error) {
	return &workflowservice.SignalWithStartWorkflowExecutionResponse{RunID: "run-1"}, nil
}

func (s *fakeService) RequestCancelWorkflowExecution(ctx context.Context, in *workflowservice.RequestCancelWorkflowExecutionRequest, opts ...grpc.CallOption) (*workflowservice.RequestCancelWorkflowExecutionResponse, error) {
	return &workflowservice.RequestCancelWorkflowExecutionResponse{}, nil
}

func (s *fakeService) TerminateWorkflowExecution(ctx context.Context, in *workflowservice.TerminateWorkflowExecutionRequest, opts ...grpc.CallOption) (*workflowservice.TerminateWorkflowExecutionResponse, error) {
	return &workflowservice.TerminateWorkflowExecutionResponse{}, nil
}

func (s *fakeService) GetWorkflowExecutionHistory(ctx context.Context, in *workflowservice.GetWorkflowExecutionHistoryRequest, opts ...grpc.CallOption) (*workflowservice.GetWorkflowExecutionHistoryResponse, error) {
	if len(s.historyResponses) == 0 {
		return &workflowservice.GetWorkflowExecutionHistoryResponse{}, nil
	}
	resp := s.historyResponses[0]
	s.historyResponses = s.historyResponses[1:]
	return resp, nil
}

func (s *fakeService) QueryWorkflow(ctx context.Context, in *workflowservice.QueryWorkflowRequest, opts ...grpc.CallOption) (*workflowservice.QueryWorkflowResponse, error) {
	s.queryRequests = append(s.queryRequests, in)
	if s.queryResponse != nil {
		return s.queryResponse, nil
	}
	return &workflowservice.QueryWorkflowResponse{}, nil
}

func (s *fakeService) DescribeWorkflowExecution(ctx context.Context, in *workflowservice.DescribeWorkflowExecutionRequest, opts ...grpc.CallOption) (*workflowservice.DescribeWorkflowExecutionResponse, error) {
	return &workflowservice.DescribeWorkflowExecutionResponse{Status: "Running", WorkflowType: "Greeting"}, nil
}

func (s *fakeService) UpdateWorkflowExecution(ctx context.Context, in *workflowservice.UpdateWorkflowExecutionRequest, opts ...grpc.CallOption) (*workflowservice.UpdateWorkflowExecutionResponse, error) {
	if s.updateResponse != nil {
		return s.updateResponse, nil
	}
	return &workflowservice.UpdateWorkflowExecutionResponse{UpdateID: in.UpdateID, RunID: "run-1"}, nil
}

func (s *fakeService) PollWorkflowExecutionUpdate(ctx context.Context, in *workflowservice.PollWorkflowExecutionUpdateRequest, opts ...grpc.CallOption) (*workflowservice.PollWorkflowExecutionUpdateResponse, error) {
	if s.pollUpdate != nil {
		return s.pollUpdate, nil
	}
	return &workflowservice.PollWorkflowExecutionUpdateResponse{}, nil
}

func (s *fakeService) RecordActivityTaskHeartbeat(ctx context.Context, in *workflowservice.RecordActivityTaskHeartbeatRequest, opts ...grpc.CallOption) (*workflowservice.RecordActivityTaskHeartbeatResponse, error) {
	if s.heartbeatErr != nil {
		return nil, s.heartbeatErr
	}
	if s.heartbeatResp != nil {
		return s.heartbeatResp, nil
	}
	return &workflowservice.RecordActivityTaskHeartbeatResponse{}, nil
}

func (s *fakeService) RecordActivityTaskHeartbeatByID(ctx context.Context, in *workflowservice.RecordActivityTaskHeartbeatByIDRequest, opts ...grpc.CallOption) (*workflowservice.RecordActivityTaskHeartbeatResponse, error) {
	return s.RecordActivityTaskHeartbeat(ctx, nil, opts...)
}

func (s *fakeService) RespondActivityTaskCompleted(ctx context.Context, in *workflowservice.RespondActivityTaskCompletedRequest, opts ...grpc.CallOption) (*workflowservice.RespondActivityTaskCompletedResponse, error) {
	return &workflowservice.RespondActivityTaskCompletedResponse{}, nil
}

func (s *fakeService) RespondActivityTaskCompletedByID(ctx context.Context, in *workflowservice.RespondActivityTaskCompletedByIDRequest, opts ...grpc.CallOption) (*workflowservice.RespondActivityTaskCompletedResponse, error) {
	return &workflowservice.RespondActivityTaskCompletedResponse{}, nil
}

func (s *fakeService) RespondActivityTaskFailed(ctx context.Context, in *workflowservice.RespondActivityTaskFailedRequest, opts ...grpc.CallOption) (*workflowservice.RespondActivityTaskFailedResponse, error) {
	return &workflowservice.RespondActivityTaskFailedResponse{}, nil
}

func (s *fakeService) RespondActivityTaskFailedByID(ctx context.Context, in *workflowservice.RespondActivityTaskFailedByIDRequest, opts ...grpc.CallOption) (*workflowservice.RespondActivityTaskFailedResponse, error) {
	return &workflowservice.RespondActivityTaskFailedResponse{}, nil
}

func (s *fakeService) RespondActivityTaskCanceled(ctx context.Context, in *workflowservice.RespondActivityTaskCanceledRequest, opts ...grpc.CallOption) (*workflowservice.RespondActivityTaskCanceledResponse, error) {
	return &workflowservice.RespondActivityTaskCanceledResponse{}, nil
}

func (s *fakeService) RespondActivityTaskCanceledByID(ctx context.Context, in *workflowservice.RespondActivityTaskCanceledByIDRequest, opts ...grpc.CallOption) (*workflowservice.RespondActivityTaskCanceledResponse, error) {
	return &workflowservice.RespondActivityTaskCanceledResponse{}, nil
}

func (s *fakeService) CreateSchedule(ctx context.Context, in *workflowservice.CreateScheduleRequest, opts ...grpc.CallOption) (*workflowservice.CreateScheduleResponse, error) {
	s.createScheduleRequests = append(s.createScheduleRequests, in)
	return &workflowservice.CreateScheduleResponse{ConflictToken: []byte("token-1")}, nil
}

func (s *fakeService) DescribeSchedule(ctx context.Context, in *workflowservice.DescribeScheduleRequest, opts ...grpc.CallOption) (*workflowservice.DescribeScheduleResponse, error) {
	if s.describeScheduleResponse != nil {
		return s.describeScheduleResponse, nil
	}
	return nil, status.Error(codes.NotFound, "schedule not found")
}

func (s *fakeService) UpdateSchedule(ctx context.Context, in *workflowservice.UpdateScheduleRequest, opts ...grpc.CallOption) (*workflowservice.UpdateScheduleResponse, error) {
	s.updateScheduleRequests = append(s.updateScheduleRequests, in)
	return &workflowservice.UpdateScheduleResponse{}, nil
}

func (s *fakeService) PatchSchedule(ctx context.Context, in *workflowservice.PatchScheduleRequest, opts ...grpc.CallOption) (*workflowservice.PatchScheduleResponse, error) {
	s.patchScheduleRequests = append(s.patchScheduleRequests, in)
	return &workflowservice.PatchScheduleResponse{}, nil
}

func (s *fakeService) ListSchedules(ctx context.Context, in *workflowservice.ListSchedulesRequest, opts ...grpc.CallOption) (*workflowservice.ListSchedulesResponse, error) {
	if len(s.listSchedulesResponses) == 0 {
		return &workflowservice.ListSchedulesResponse{}, nil
	}
	resp := s.listSchedulesResponses[0]
	s.listSchedulesResponses = s.listSchedulesResponses[1:]
	return resp, nil
}

func (s *fakeService) DeleteSchedule(ctx context.Context, in *workflowservice.DeleteScheduleRequest, opts ...grpc.CallOption) (*workflowservice.DeleteScheduleResponse, error) {
	s.deleteScheduleRequests = append(s.deleteScheduleRequests, in)
	return &workflowservice.DeleteScheduleResponse{}, nil
}

func newTestClient(service *fakeService, interceptors ...ClientInterceptor) *WorkflowClient {
	return NewServiceClient(service, nil, ClientOptions{
		Namespace:    "unit-test",
		Identity:     "test-client",
		Interceptors: interceptors,
	})
}

func closeEvent(event *workflowservice.HistoryEvent) *workflowservice.GetWorkflowExecutionHistoryResponse {
	return &workflowservice.GetWorkflowExecutionHistoryResponse{
		History: &workflowservice.History{Events: []*workflowservice.HistoryEvent{event}},
	}
}

func Test_ExecuteWorkflow(t *testing.T) {
	t.Parallel()
	service := &fakeService{}
	client := newTestClient(service)

	run, err := client.ExecuteWorkflow(context.Background(), StartWorkflowOptions{
		ID:                    "wf-1",
		TaskQueue:             "tq",
		WorkflowIDReusePolicy: workflowservice.WorkflowIDReusePolicyRejectDuplicate,
	}, "Greeting", "World")
	require.NoError(t, err)
	require.Equal(t, "wf-1", run.GetID())
	require.Equal(t, "run-1", run.GetRunID())

	require.Len(t, service.startRequests, 1)
	request := service.startRequests[0]
	require.Equal(t, "unit-test", request.Namespace)
	require.Equal(t, "tq", request.TaskQueue)
	require.Equal(t, "Greeting", request.WorkflowType)
	require.Equal(t, workflowservice.WorkflowIDReusePolicyRejectDuplicate, request.WorkflowIDReusePolicy)
	require.NotEmpty(t, request.RequestID, "every start carries a fresh dedupe request id")
}

func Test_ExecuteWorkflow_RequiresTaskQueue(t *testing.T) {
	t.Parallel()
	client := newTestClient(&fakeService{})
	_, err := client.ExecuteWorkflow(context.Background(), StartWorkflowOptions{}, "Greeting")
	require.Error(t, err)
}

func Test_ExecuteWorkflow_AlreadyStarted(t *testing.T) {
	t.Parallel()
	service := &fakeService{
		startErrs: []error{status.Error(codes.AlreadyExists, "already running")},
	}
	client := newTestClient(service)

	_, err := client.ExecuteWorkflow(context.Background(), StartWorkflowOptions{ID: "wf-1", TaskQueue: "tq"}, "Greeting")
	var alreadyStarted *WorkflowExecutionAlreadyStartedError
	require.ErrorAs(t, err, &alreadyStarted)
	require.Equal(t, "wf-1", alreadyStarted.WorkflowID)
	require.Equal(t, "Greeting", alreadyStarted.WorkflowType)
}

func Test_WorkflowRun_GetSuccess(t *testing.T) {
	t.Parallel()
	result, err := getDefaultDataConverter().ToPayloads("Hello, World!")
	require.NoError(t, err)
	service := &fakeService{
		historyResponses: []*workflowservice.GetWorkflowExecutionHistoryResponse{
			closeEvent(&workflowservice.HistoryEvent{
				WorkflowExecutionCompletedEventAttributes: &workflowservice.WorkflowExecutionCompletedEventAttributes{Result: result},
			}),
		},
	}
	client := newTestClient(service)

	var decoded string
	require.NoError(t, client.GetWorkflow(context.Background(), "wf-1", "run-1").Get(context.Background(), &decoded))
	require.Equal(t, "Hello, World!", decoded)
}

func Test_WorkflowRun_GetFollowsContinueAsNew(t *testing.T) {
	t.Parallel()
	result, err := getDefaultDataConverter().ToPayloads("final")
	require.NoError(t, err)
	service := &fakeService{
		historyResponses: []*workflowservice.GetWorkflowExecutionHistoryResponse{
			closeEvent(&workflowservice.HistoryEvent{
				WorkflowExecutionContinuedAsNewEventAttributes: &workflowservice.WorkflowExecutionContinuedAsNewEventAttributes{NewExecutionRunID: "run-2"},
			}),
			closeEvent(&workflowservice.HistoryEvent{
				WorkflowExecutionCompletedEventAttributes: &workflowservice.WorkflowExecutionCompletedEventAttributes{Result: result},
			}),
		},
	}
	client := newTestClient(service)

	var decoded string
	require.NoError(t, client.GetWorkflow(context.Background(), "wf-1", "run-1").Get(context.Background(), &decoded))
	require.Equal(t, "final", decoded)
}

func Test_WorkflowRun_GetFailure(t *testing.T) {
	t.Parallel()
	failure := convertErrorToFailure(
		NewActivityError(5, 6, "w", "Charge", "1", 0,
			NewApplicationError("InsufficientFunds", true, nil)),
		getDefaultDataConverter())
	service := &fakeService{
		historyResponses: []*workflowservice.GetWorkflowExecutionHistoryResponse{
			closeEvent(&workflowservice.HistoryEvent{
				WorkflowExecutionFailedEventAttributes: &workflowservice.WorkflowExecutionFailedEventAttributes{Failure: failure},
			}),
		},
	}
	client := newTestClient(service)

	err := client.GetWorkflow(context.Background(), "wf-1", "run-1").Get(context.Background(), nil)
	var executionErr *WorkflowExecutionError
	require.ErrorAs(t, err, &executionErr)
	var activityErr *ActivityError
	require.ErrorAs(t, err, &activityErr, "failure chain preserved through the wrapper")
	var appErr *ApplicationError
	require.ErrorAs(t, err, &appErr)
	require.True(t, appErr.NonRetryable())
}

func Test_WorkflowRun_GetCanceledAndTerminated(t *testing.T) {
	t.Parallel()
	service := &fakeService{
		historyResponses: []*workflowservice.GetWorkflowExecutionHistoryResponse{
			closeEvent(&workflowservice.HistoryEvent{
				WorkflowExecutionCanceledEventAttributes: &workflowservice.WorkflowExecutionCanceledEventAttributes{},
			}),
			closeEvent(&workflowservice.HistoryEvent{
				WorkflowExecutionTerminatedEventAttributes: &workflowservice.WorkflowExecutionTerminatedEventAttributes{Reason: "ops"},
			}),
		},
	}
	client := newTestClient(service)

	err := client.GetWorkflow(context.Background(), "wf-1", "run-1").Get(context.Background(), nil)
	require.True(t, IsCanceledError(err))

	err = client.GetWorkflow(context.Background(), "wf-1", "run-2").Get(context.Background(), nil)
	var terminatedErr *TerminatedError
	require.ErrorAs(t, err, &terminatedErr)
}

func Test_QueryWorkflow(t *testing.T) {
	t.Parallel()
	result, err := getDefaultDataConverter().ToPayloads("abc")
	require.NoError(t, err)
	service := &fakeService{queryResponse: &workflowservice.QueryWorkflowResponse{Result: result}}
	client := newTestClient(service)

	value, err := client.QueryWorkflow(context.Background(), "wf-1", "run-1", "get")
	require.NoError(t, err)
	var decoded string
	require.NoError(t, value.Get(&decoded))
	require.Equal(t, "abc", decoded)

	service.queryResponse = &workflowservice.QueryWorkflowResponse{QueryRejected: "NotOpen"}
	_, err = client.QueryWorkflowWithOptions(context.Background(), &QueryWorkflowInput{
		WorkflowID:      "wf-1",
		QueryType:       "get",
		RejectCondition: QueryRejectConditionNotOpen,
	})
	require.Error(t, err)
	require.Equal(t, workflowservice.QueryRejectConditionNotOpen, service.queryRequests[1].RejectCondition)
}

func Test_UpdateWorkflow(t *testing.T) {
	t.Parallel()
	result, err := getDefaultDataConverter().ToPayloads("updated")
	require.NoError(t, err)
	service := &fakeService{
		updateResponse: &workflowservice.UpdateWorkflowExecutionResponse{
			UpdateID: "u1",
			RunID:    "run-1",
			Stage:    workflowservice.UpdateWorkflowStageCompleted,
			Outcome:  &workflowservice.UpdateOutcome{Success: result},
		},
	}
	client := newTestClient(service)

	handle, err := client.UpdateWorkflow(context.Background(), UpdateWorkflowOptions{
		WorkflowID: "wf-1",
		UpdateName: "setState",
		Args:       []interface{}{"abc"},
	})
	require.NoError(t, err)
	var decoded string
	require.NoError(t, handle.Get(context.Background(), &decoded))
	require.Equal(t, "updated", decoded)
}

func Test_UpdateWorkflow_Failed(t *testing.T) {
	t.Parallel()
	failure := convertErrorToFailure(NewApplicationError("rejected", false, nil), getDefaultDataConverter())
	service := &fakeService{
		updateResponse: &workflowservice.UpdateWorkflowExecutionResponse{
			UpdateID: "u1",
			RunID:    "run-1",
		},
		pollUpdate: &workflowservice.PollWorkflowExecutionUpdateResponse{
			Outcome: &workflowservice.UpdateOutcome{Failure: failure},
		},
	}
	client := newTestClient(service)

	handle, err := client.UpdateWorkflow(context.Background(), UpdateWorkflowOptions{WorkflowID: "wf-1", UpdateName: "setState"})
	require.NoError(t, err)
	err = handle.Get(context.Background(), nil)
	var updateFailed *WorkflowUpdateFailedError
	require.ErrorAs(t, err, &updateFailed)
	var appErr *ApplicationError
	require.ErrorAs(t, err, &appErr)
}

func Test_AsyncActivityHandle_HeartbeatCancellation(t *testing.T) {
	t.Parallel()
	service := &fakeService{
		heartbeatResp: &workflowservice.RecordActivityTaskHeartbeatResponse{CancelRequested: true},
	}
	client := newTestClient(service)

	handle := client.AsyncActivityHandle([]byte("token"), nil)
	err := handle.Heartbeat(context.Background(), "progress")
	var canceled *AsyncActivityCanceledError
	require.ErrorAs(t, err, &canceled)
}

func Test_AsyncActivityHandle_NotFound(t *testing.T) {
	t.Parallel()
	service := &fakeService{
		heartbeatErr: status.Error(codes.NotFound, "activity gone"),
	}
	client := newTestClient(service)

	handle := client.AsyncActivityHandle(nil, &AsyncActivityID{WorkflowID: "wf-1", ActivityID: "a-1"})
	err := handle.Heartbeat(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "activity gone")
}

type rewritingInterceptor struct {
	ClientOutboundInterceptorBase
	calls *[]string
}

func (i *rewritingInterceptor) ExecuteWorkflow(ctx context.Context, in *StartWorkflowInput) (WorkflowRun, error) {
	*i.calls = append(*i.calls, "outer")
	in.Options.TaskQueue = "rewritten-queue"
	return i.Next.ExecuteWorkflow(ctx, in)
}

type countingInterceptor struct {
	ClientOutboundInterceptorBase
	calls *[]string
}

func (i *countingInterceptor) ExecuteWorkflow(ctx context.Context, in *StartWorkflowInput) (WorkflowRun, error) {
	*i.calls = append(*i.calls, "inner")
	return i.Next.ExecuteWorkflow(ctx, in)
}

type interceptorFunc func(next ClientOutboundInterceptor) ClientOutboundInterceptor

func (f interceptorFunc) InterceptClient(next ClientOutboundInterceptor) ClientOutboundInterceptor {
	return f(next)
}

func Test_InterceptorChainOrderAndRewrite(t *testing.T) {
	t.Parallel()
	var calls []string
	service := &fakeService{}
	client := newTestClient(service,
		interceptorFunc(func(next ClientOutboundInterceptor) ClientOutboundInterceptor {
			return &rewritingInterceptor{ClientOutboundInterceptorBase{Next: next}, &calls}
		}),
		interceptorFunc(func(next ClientOutboundInterceptor) ClientOutboundInterceptor {
			return &countingInterceptor{ClientOutboundInterceptorBase{Next: next}, &calls}
		}),
	)

	_, err := client.ExecuteWorkflow(context.Background(), StartWorkflowOptions{TaskQueue: "original"}, "Greeting")
	require.NoError(t, err)
	require.Equal(t, []string{"outer", "inner"}, calls, "first interceptor is outermost")
	require.Equal(t, "rewritten-queue", service.startRequests[0].TaskQueue,
		"middleware rewrites flow through to the terminal implementation")
}
