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

package coresdk

import (
	"time"

	"go.flowbridge.dev/sdk/converter"
)

// WorkflowActivationCompletion is what a workflow task executor returns for
// one WorkflowActivation: either the buffered commands from a successful
// turn, or a failure (typically a non-determinism error or an uncaught
// panic in the workflow coroutine itself).
type WorkflowActivationCompletion struct {
	RunID    string
	Success  *Success
	Failed   *converter.Failure
}

// Success carries the ordered commands harvested from one workflow task.
type Success struct {
	Commands []WorkflowCommand
}

// WorkflowCommand is a sum type over every outbound instruction a workflow
// task may emit; exactly one field is non-nil.
type WorkflowCommand struct {
	ScheduleActivity        *ScheduleActivity
	RequestCancelActivity   *RequestCancelActivity
	StartTimer              *StartTimer
	CancelTimer             *CancelTimer
	CompleteWorkflow        *CompleteWorkflow
	FailWorkflow            *FailWorkflow
	ContinueAsNewWorkflow   *ContinueAsNewWorkflow
	StartChildWorkflow      *StartChildWorkflow
	CancelChildWorkflow     *CancelChildWorkflow
	SignalExternalWorkflow  *SignalExternalWorkflow
	CancelExternalWorkflow  *CancelExternalWorkflow
	RecordMarker            *RecordMarker
	UpsertSearchAttributes  *UpsertSearchAttributes
	UpsertMemo              *UpsertMemo
	SetPatchMarker          *SetPatchMarker
	UpdateAccepted          *UpdateAccepted
	UpdateCompleted         *UpdateCompleted
	UpdateRejected          *UpdateRejected
	RespondToQuery          *RespondToQuery
}

// ScheduleActivity requests execution of an activity (normal or local).
type ScheduleActivity struct {
	Seq          uint32
	ActivityID   string
	ActivityType string
	TaskQueue    string
	Input        *converter.Payloads
	Headers      map[string]*converter.Payload
	ScheduleToCloseTimeout time.Duration
	ScheduleToStartTimeout time.Duration
	StartToCloseTimeout    time.Duration
	HeartbeatTimeout       time.Duration
	RetryPolicy            *RetryPolicy
	IsLocal                bool
	CancellationType       ActivityCancellationType
}

// ActivityCancellationType governs how the workflow-side handle reacts when
// the workflow cancels an in-flight activity.
type ActivityCancellationType int

const (
	ActivityCancellationTryCancel ActivityCancellationType = iota
	ActivityCancellationWaitCancellationCompleted
	ActivityCancellationAbandon
)

// RequestCancelActivity requests cancellation of a previously scheduled
// activity.
type RequestCancelActivity struct {
	Seq uint32
}

// StartTimer starts a durable timer. A Duration of zero is normalized by the
// state machine to one millisecond before this command is constructed.
type StartTimer struct {
	Seq      uint32
	Duration time.Duration
	Summary  string
}

// CancelTimer cancels a previously started timer.
type CancelTimer struct {
	Seq uint32
}

// CompleteWorkflow is the terminal success command.
type CompleteWorkflow struct {
	Result *converter.Payloads
}

// FailWorkflow is the terminal failure command.
type FailWorkflow struct {
	Failure *converter.Failure
}

// ContinueAsNewWorkflow replaces the run with a fresh execution, preserving
// lineage via the workflow id.
type ContinueAsNewWorkflow struct {
	WorkflowType string
	TaskQueue    string
	Arguments    *converter.Payloads
	Headers      map[string]*converter.Payload
	WorkflowRunTimeout  time.Duration
	WorkflowTaskTimeout time.Duration
	RetryPolicy         *RetryPolicy
	Memo                map[string]*converter.Payload
	SearchAttributes    map[string]*converter.Payload
}

// StartChildWorkflow requests that a child workflow be started; resolved in
// two stages (ResolveChildWorkflowExecutionStart, then
// ResolveChildWorkflowExecution).
type StartChildWorkflow struct {
	Seq          uint32
	Namespace    string
	WorkflowID   string
	WorkflowType string
	TaskQueue    string
	Input        *converter.Payloads
	Headers      map[string]*converter.Payload
	WorkflowExecutionTimeout time.Duration
	WorkflowRunTimeout       time.Duration
	WorkflowTaskTimeout      time.Duration
	RetryPolicy              *RetryPolicy
	CronSchedule             string
	Memo                     map[string]*converter.Payload
	SearchAttributes         map[string]*converter.Payload
	ParentClosePolicy        ParentClosePolicy
	CancellationType         ChildWorkflowCancellationType
}

// ParentClosePolicy governs what happens to a child workflow when its
// parent closes.
type ParentClosePolicy int

const (
	ParentClosePolicyTerminate ParentClosePolicy = iota
	ParentClosePolicyAbandon
	ParentClosePolicyRequestCancel
)

// ChildWorkflowCancellationType governs how a cancelChildWorkflow command
// propagates.
type ChildWorkflowCancellationType int

const (
	ChildWorkflowCancellationWaitCancellationCompleted ChildWorkflowCancellationType = iota
	ChildWorkflowCancellationTryCancel
	ChildWorkflowCancellationAbandon
)

// CancelChildWorkflow requests cancellation of a started child workflow.
type CancelChildWorkflow struct {
	Seq uint32
}

// SignalExternalWorkflow requests delivery of a signal to another run.
type SignalExternalWorkflow struct {
	Seq        uint32
	Namespace  string
	WorkflowID string
	RunID      string
	SignalName string
	Input      *converter.Payloads
	Headers    map[string]*converter.Payload
}

// CancelExternalWorkflow requests cancellation of another run.
type CancelExternalWorkflow struct {
	Seq        uint32
	Namespace  string
	WorkflowID string
	RunID      string
	Reason     string
}

// RecordMarker records a durable marker that replays as a deterministic
// value. The workflow runtime emits it only for local activity results;
// patches use SetPatchMarker.
type RecordMarker struct {
	MarkerName string
	Details    map[string]*converter.Payload
}

// UpsertSearchAttributes updates the indexed search-attribute view.
type UpsertSearchAttributes struct {
	SearchAttributes map[string]*converter.Payload
}

// UpsertMemo updates the opaque memo view.
type UpsertMemo struct {
	Memo map[string]*converter.Payload
}

// SetPatchMarker records a patch/deprecatePatch marker.
type SetPatchMarker struct {
	PatchID    string
	Deprecated bool
}

// UpdateAccepted acknowledges an update's validator passed.
type UpdateAccepted struct {
	ID string
}

// UpdateCompleted carries an update's successful result.
type UpdateCompleted struct {
	ID     string
	Result *converter.Payloads
}

// UpdateRejected carries an update's validator-rejected failure.
type UpdateRejected struct {
	ID      string
	Failure *converter.Failure
}

// RespondToQuery carries a query's synchronous result (success or failure).
type RespondToQuery struct {
	QueryID string
	Result  *converter.Payloads
	Failure *converter.Failure
}
