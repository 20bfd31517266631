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

// Package workflowservice is the module-owned stand-in for the generated
// gRPC client the bridge speaks to: a plain Go interface plus the request/
// response structs the client layer (internal/client.go,
// internal/schedule_client.go) and its service wrappers call through,
// hand-written since protoc code generation is out of scope.
package workflowservice

import (
	"context"
	"time"

	"go.flowbridge.dev/sdk/converter"
	"google.golang.org/grpc"
)

// WorkflowServiceClient is the RPC surface the SDK drives: workflow
// lifecycle, synchronous queries and updates, async activity completion,
// history reads, and schedule management.
type WorkflowServiceClient interface {
	StartWorkflowExecution(ctx context.Context, in *StartWorkflowExecutionRequest, opts ...grpc.CallOption) (*StartWorkflowExecutionResponse, error)
	SignalWorkflowExecution(ctx context.Context, in *SignalWorkflowExecutionRequest, opts ...grpc.CallOption) (*SignalWorkflowExecutionResponse, error)
	SignalWithStartWorkflowExecution(ctx context.Context, in *SignalWithStartWorkflowExecutionRequest, opts ...grpc.CallOption) (*SignalWithStartWorkflowExecutionResponse, error)
	RequestCancelWorkflowExecution(ctx context.Context, in *RequestCancelWorkflowExecutionRequest, opts ...grpc.CallOption) (*RequestCancelWorkflowExecutionResponse, error)
	TerminateWorkflowExecution(ctx context.Context, in *TerminateWorkflowExecutionRequest, opts ...grpc.CallOption) (*TerminateWorkflowExecutionResponse, error)
	GetWorkflowExecutionHistory(ctx context.Context, in *GetWorkflowExecutionHistoryRequest, opts ...grpc.CallOption) (*GetWorkflowExecutionHistoryResponse, error)
	QueryWorkflow(ctx context.Context, in *QueryWorkflowRequest, opts ...grpc.CallOption) (*QueryWorkflowResponse, error)
	DescribeWorkflowExecution(ctx context.Context, in *DescribeWorkflowExecutionRequest, opts ...grpc.CallOption) (*DescribeWorkflowExecutionResponse, error)

	UpdateWorkflowExecution(ctx context.Context, in *UpdateWorkflowExecutionRequest, opts ...grpc.CallOption) (*UpdateWorkflowExecutionResponse, error)
	PollWorkflowExecutionUpdate(ctx context.Context, in *PollWorkflowExecutionUpdateRequest, opts ...grpc.CallOption) (*PollWorkflowExecutionUpdateResponse, error)

	RecordActivityTaskHeartbeat(ctx context.Context, in *RecordActivityTaskHeartbeatRequest, opts ...grpc.CallOption) (*RecordActivityTaskHeartbeatResponse, error)
	RecordActivityTaskHeartbeatByID(ctx context.Context, in *RecordActivityTaskHeartbeatByIDRequest, opts ...grpc.CallOption) (*RecordActivityTaskHeartbeatResponse, error)
	RespondActivityTaskCompleted(ctx context.Context, in *RespondActivityTaskCompletedRequest, opts ...grpc.CallOption) (*RespondActivityTaskCompletedResponse, error)
	RespondActivityTaskCompletedByID(ctx context.Context, in *RespondActivityTaskCompletedByIDRequest, opts ...grpc.CallOption) (*RespondActivityTaskCompletedResponse, error)
	RespondActivityTaskFailed(ctx context.Context, in *RespondActivityTaskFailedRequest, opts ...grpc.CallOption) (*RespondActivityTaskFailedResponse, error)
	RespondActivityTaskFailedByID(ctx context.Context, in *RespondActivityTaskFailedByIDRequest, opts ...grpc.CallOption) (*RespondActivityTaskFailedResponse, error)
	RespondActivityTaskCanceled(ctx context.Context, in *RespondActivityTaskCanceledRequest, opts ...grpc.CallOption) (*RespondActivityTaskCanceledResponse, error)
	RespondActivityTaskCanceledByID(ctx context.Context, in *RespondActivityTaskCanceledByIDRequest, opts ...grpc.CallOption) (*RespondActivityTaskCanceledResponse, error)

	CreateSchedule(ctx context.Context, in *CreateScheduleRequest, opts ...grpc.CallOption) (*CreateScheduleResponse, error)
	DescribeSchedule(ctx context.Context, in *DescribeScheduleRequest, opts ...grpc.CallOption) (*DescribeScheduleResponse, error)
	UpdateSchedule(ctx context.Context, in *UpdateScheduleRequest, opts ...grpc.CallOption) (*UpdateScheduleResponse, error)
	PatchSchedule(ctx context.Context, in *PatchScheduleRequest, opts ...grpc.CallOption) (*PatchScheduleResponse, error)
	ListSchedules(ctx context.Context, in *ListSchedulesRequest, opts ...grpc.CallOption) (*ListSchedulesResponse, error)
	DeleteSchedule(ctx context.Context, in *DeleteScheduleRequest, opts ...grpc.CallOption) (*DeleteScheduleResponse, error)
}

// WorkflowExecution identifies one run (or the latest run, if RunID is
// empty) of a workflow id.
type WorkflowExecution struct {
	WorkflowID string
	RunID      string
}

// StartWorkflowExecutionRequest starts a new workflow run.
type StartWorkflowExecutionRequest struct {
	Namespace                string
	WorkflowID               string
	WorkflowType             string
	TaskQueue                string
	Input                    *converter.Payloads
	Headers                  map[string]*converter.Payload
	Memo                     map[string]*converter.Payload
	SearchAttributes         map[string]*converter.Payload
	CronSchedule             string
	RetryPolicy              *RetryPolicy
	RequestID                string
	Identity                 string
	WorkflowExecutionTimeout time.Duration
	WorkflowRunTimeout       time.Duration
	WorkflowTaskTimeout      time.Duration
	StartDelay               time.Duration
	WorkflowIDReusePolicy    WorkflowIDReusePolicy
	WorkflowIDConflictPolicy WorkflowIDConflictPolicy
}

// WorkflowIDConflictPolicy governs what happens when a start collides with a
// currently-running execution of the same workflow id.
type WorkflowIDConflictPolicy int

const (
	WorkflowIDConflictPolicyFail WorkflowIDConflictPolicy = iota
	WorkflowIDConflictPolicyUseExisting
	WorkflowIDConflictPolicyTerminateExisting
)

// StartWorkflowExecutionResponse carries the started run's id.
type StartWorkflowExecutionResponse struct {
	RunID string
}

// WorkflowIDReusePolicy governs whether StartWorkflowExecution may reuse a
// workflow id whose previous run already completed.
type WorkflowIDReusePolicy int

const (
	WorkflowIDReusePolicyAllowDuplicate WorkflowIDReusePolicy = iota
	WorkflowIDReusePolicyAllowDuplicateFailedOnly
	WorkflowIDReusePolicyRejectDuplicate
	WorkflowIDReusePolicyTerminateIfRunning
)

// RetryPolicy is the wire shape of a workflow or activity retry policy.
type RetryPolicy struct {
	InitialIntervalNanos    int64
	BackoffCoefficient      float64
	MaximumIntervalNanos    int64
	MaximumAttempts         int32
	NonRetryableErrorTypes  []string
}

// SignalWorkflowExecutionRequest delivers a signal to a running execution.
type SignalWorkflowExecutionRequest struct {
	Namespace  string
	Execution  WorkflowExecution
	SignalName string
	Input      *converter.Payloads
	RequestID  string
}

// SignalWorkflowExecutionResponse is empty; success is the absence of an error.
type SignalWorkflowExecutionResponse struct{}

// SignalWithStartWorkflowExecutionRequest signals a workflow id, starting a
// new run first if none is currently executing.
type SignalWithStartWorkflowExecutionRequest struct {
	Namespace            string
	WorkflowID            string
	WorkflowType          string
	TaskQueue             string
	SignalName            string
	SignalInput           *converter.Payloads
	Input                 *converter.Payloads
	Headers               map[string]*converter.Payload
	Memo                  map[string]*converter.Payload
	SearchAttributes      map[string]*converter.Payload
	CronSchedule          string
	RetryPolicy           *RetryPolicy
	RequestID             string
	WorkflowIDReusePolicy WorkflowIDReusePolicy
}

// SignalWithStartWorkflowExecutionResponse carries the (possibly
// newly-started) run's id.
type SignalWithStartWorkflowExecutionResponse struct {
	RunID string
}

// RequestCancelWorkflowExecutionRequest requests cooperative cancellation.
type RequestCancelWorkflowExecutionRequest struct {
	Namespace string
	Execution WorkflowExecution
	RequestID string
	Reason    string
}

// RequestCancelWorkflowExecutionResponse is empty; success is the absence of
// an error.
type RequestCancelWorkflowExecutionResponse struct{}

// TerminateWorkflowExecutionRequest forcibly stops a running execution.
type TerminateWorkflowExecutionRequest struct {
	Namespace string
	Execution WorkflowExecution
	Reason    string
	Details   *converter.Payloads
}

// TerminateWorkflowExecutionResponse is empty; success is the absence of an
// error.
type TerminateWorkflowExecutionResponse struct{}

// GetWorkflowExecutionHistoryRequest reads back a run's event history,
// paginated via NextPageToken. With WaitNewEvent set the call long-polls
// until at least one new event (typically the close event) is available.
type GetWorkflowExecutionHistoryRequest struct {
	Namespace              string
	Execution              WorkflowExecution
	WaitNewEvent           bool
	HistoryEventFilterType HistoryEventFilterType
	NextPageToken          []byte
}

// HistoryEventFilterType selects whether a history read returns all events
// or only the run's close event.
type HistoryEventFilterType int

const (
	HistoryEventFilterTypeAllEvent HistoryEventFilterType = iota
	HistoryEventFilterTypeCloseEvent
)

// GetWorkflowExecutionHistoryResponse carries one page of history and the
// token for the next one (empty when there is no more history).
type GetWorkflowExecutionHistoryResponse struct {
	History       *History
	NextPageToken []byte
}

// QueryWorkflowRequest runs a synchronous query against a workflow's frozen
// state.
type QueryWorkflowRequest struct {
	Namespace       string
	Execution       WorkflowExecution
	QueryType       string
	Arguments       *converter.Payloads
	Headers         map[string]*converter.Payload
	RejectCondition QueryRejectCondition
}

// QueryRejectCondition makes a query fail instead of answering when the
// workflow is in an unwanted state.
type QueryRejectCondition int

const (
	QueryRejectConditionNone QueryRejectCondition = iota
	QueryRejectConditionNotOpen
	QueryRejectConditionNotCompletedCleanly
)

// QueryWorkflowResponse carries the query's result, or a query-rejected
// reason if the workflow could not accept queries in its current state.
type QueryWorkflowResponse struct {
	Result         *converter.Payloads
	QueryRejected  string
}

// DescribeWorkflowExecutionRequest reads a workflow run's current status and
// metadata.
type DescribeWorkflowExecutionRequest struct {
	Namespace string
	Execution WorkflowExecution
}

// DescribeWorkflowExecutionResponse carries a run's current status and
// metadata.
type DescribeWorkflowExecutionResponse struct {
	Status            string
	WorkflowType      string
	TaskQueue         string
	Memo              map[string]*converter.Payload
	SearchAttributes  map[string]*converter.Payload
	StartTime         int64
	CloseTime         int64
	PendingActivities []*PendingActivityInfo
}

// PendingActivityInfo describes one in-flight activity of a running
// execution.
type PendingActivityInfo struct {
	ActivityID         string
	ActivityType       string
	State              string
	Attempt            int32
	LastHeartbeatTime  int64
	HeartbeatDetails   *converter.Payloads
	LastFailure        *converter.Failure
}
