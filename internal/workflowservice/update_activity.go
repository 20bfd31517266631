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

package workflowservice

import (
	"go.flowbridge.dev/sdk/converter"
)

// UpdateWorkflowExecutionRequest delivers an update to a running execution
// and waits for at least WaitForStage before returning.
type UpdateWorkflowExecutionRequest struct {
	Namespace    string
	Execution    WorkflowExecution
	UpdateID     string
	UpdateName   string
	Arguments    *converter.Payloads
	Headers      map[string]*converter.Payload
	WaitForStage UpdateWorkflowStage
	RequestID    string
}

// UpdateWorkflowStage is how far an update must progress before the RPC
// returns.
type UpdateWorkflowStage int

const (
	UpdateWorkflowStageAdmitted UpdateWorkflowStage = iota
	UpdateWorkflowStageAccepted
	UpdateWorkflowStageCompleted
)

// UpdateWorkflowExecutionResponse carries the update's reference and, if it
// already reached a terminal stage, its outcome.
type UpdateWorkflowExecutionResponse struct {
	UpdateID string
	RunID    string
	Stage    UpdateWorkflowStage
	Outcome  *UpdateOutcome
}

// UpdateOutcome is an update's terminal result: exactly one field is set.
type UpdateOutcome struct {
	Success *converter.Payloads
	Failure *converter.Failure
}

// PollWorkflowExecutionUpdateRequest long-polls for an update's outcome.
type PollWorkflowExecutionUpdateRequest struct {
	Namespace string
	Execution WorkflowExecution
	UpdateID  string
}

// PollWorkflowExecutionUpdateResponse carries the outcome once the update
// reached a terminal stage.
type PollWorkflowExecutionUpdateResponse struct {
	Outcome *UpdateOutcome
	Stage   UpdateWorkflowStage
}

// RecordActivityTaskHeartbeatRequest heartbeats an activity by task token.
type RecordActivityTaskHeartbeatRequest struct {
	Namespace string
	TaskToken []byte
	Details   *converter.Payloads
	Identity  string
}

// RecordActivityTaskHeartbeatByIDRequest heartbeats an activity addressed by
// workflow id / run id / activity id.
type RecordActivityTaskHeartbeatByIDRequest struct {
	Namespace  string
	WorkflowID string
	RunID      string
	ActivityID string
	Details    *converter.Payloads
	Identity   string
}

// RecordActivityTaskHeartbeatResponse reports whether cancellation of the
// activity has been requested.
type RecordActivityTaskHeartbeatResponse struct {
	CancelRequested bool
}

// RespondActivityTaskCompletedRequest completes an async activity by token.
type RespondActivityTaskCompletedRequest struct {
	Namespace string
	TaskToken []byte
	Result    *converter.Payloads
	Identity  string
}

// RespondActivityTaskCompletedByIDRequest completes an async activity by id.
type RespondActivityTaskCompletedByIDRequest struct {
	Namespace  string
	WorkflowID string
	RunID      string
	ActivityID string
	Result     *converter.Payloads
	Identity   string
}

// RespondActivityTaskCompletedResponse is empty; success is the absence of
// an error.
type RespondActivityTaskCompletedResponse struct{}

// RespondActivityTaskFailedRequest fails an async activity by token.
type RespondActivityTaskFailedRequest struct {
	Namespace string
	TaskToken []byte
	Failure   *converter.Failure
	Identity  string
}

// RespondActivityTaskFailedByIDRequest fails an async activity by id.
type RespondActivityTaskFailedByIDRequest struct {
	Namespace  string
	WorkflowID string
	RunID      string
	ActivityID string
	Failure    *converter.Failure
	Identity   string
}

// RespondActivityTaskFailedResponse is empty; success is the absence of an
// error.
type RespondActivityTaskFailedResponse struct{}

// RespondActivityTaskCanceledRequest reports an async activity's
// cancellation by token.
type RespondActivityTaskCanceledRequest struct {
	Namespace string
	TaskToken []byte
	Details   *converter.Payloads
	Identity  string
}

// RespondActivityTaskCanceledByIDRequest reports an async activity's
// cancellation by id.
type RespondActivityTaskCanceledByIDRequest struct {
	Namespace  string
	WorkflowID string
	RunID      string
	ActivityID string
	Details    *converter.Payloads
	Identity   string
}

// RespondActivityTaskCanceledResponse is empty; success is the absence of an
// error.
type RespondActivityTaskCanceledResponse struct{}
