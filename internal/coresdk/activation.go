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

// Package coresdk models the SDK-bridge protocol between the worker runtime
// and the entity that actually talks to the server: activations in, a
// completion out. These are hand-written structs mirroring the bridge's
// activation/completion message shapes; nothing here depends on a
// particular wire format.
package coresdk

import (
	"time"

	"go.flowbridge.dev/sdk/converter"
)

// WorkflowActivation is a server-delivered batch of jobs driving one
// workflow run from one stable state to the next.
type WorkflowActivation struct {
	RunID            string
	Timestamp        time.Time
	IsReplaying      bool
	HistoryLength    int64
	HistorySizeBytes int64
	Jobs             []WorkflowActivationJob
}

// WorkflowActivationJob is a sum type over every kind of job a
// WorkflowActivation can carry; exactly one field is non-nil.
type WorkflowActivationJob struct {
	InitializeWorkflow                  *InitializeWorkflow
	FireTimer                           *FireTimer
	ResolveActivity                     *ResolveActivity
	ResolveChildWorkflowExecutionStart  *ResolveChildWorkflowExecutionStart
	ResolveChildWorkflowExecution       *ResolveChildWorkflowExecution
	ResolveSignalExternalWorkflow       *ResolveSignalExternalWorkflow
	ResolveRequestCancelExternalWorkflow *ResolveRequestCancelExternalWorkflow
	SignalWorkflow                      *SignalWorkflow
	QueryWorkflow                       *QueryWorkflow
	CancelWorkflow                      *CancelWorkflow
	DoUpdate                            *DoUpdate
	UpdateRandomSeed                    *UpdateRandomSeed
	NotifyHasPatch                      *NotifyHasPatch
	RemoveFromCache                     *RemoveFromCache
}

// InitializeWorkflow starts a fresh workflow instance.
type InitializeWorkflow struct {
	WorkflowID       string
	WorkflowType     string
	TaskQueue        string
	Arguments        *converter.Payloads
	RandomSeed       uint64
	Headers          map[string]*converter.Payload
	Attempt          int32
	StartTime        time.Time
	WorkflowExecutionTimeout time.Duration
	WorkflowRunTimeout       time.Duration
	WorkflowTaskTimeout      time.Duration
	CronSchedule     string
	Memo             map[string]*converter.Payload
	SearchAttributes map[string]*converter.Payload
	RetryPolicy      *RetryPolicy
	ContinuedFromRunID string
	LastCompletionResult *converter.Payloads
	LastFailure          *converter.Failure
}

// FireTimer resolves a previously started timer by its sequence number.
type FireTimer struct {
	Seq uint32
}

// ResolveActivity resolves a scheduled activity (normal or local) by its
// sequence number.
type ResolveActivity struct {
	Seq    uint32
	Result ActivityResolution
}

// ActivityResolution is the sum type of outcomes a resolved activity carries.
type ActivityResolution struct {
	Completed *ActivityResolutionCompleted
	Failed    *converter.Failure
	Cancelled *converter.Failure
	Backoff   *ActivityResolutionBackoff
}

// ActivityResolutionCompleted carries the activity's successful result.
type ActivityResolutionCompleted struct {
	Result *converter.Payloads
}

// ActivityResolutionBackoff is returned for a local activity that should be
// retried after sleeping for Duration.
type ActivityResolutionBackoff struct {
	Duration time.Duration
	Attempt  int32
}

// ResolveChildWorkflowExecutionStart is the first-stage resolution of a
// startChildWorkflow command: either the child started, or it was refused.
type ResolveChildWorkflowExecutionStart struct {
	Seq           uint32
	RunID         string
	AlreadyExists *WorkflowExecutionAlreadyStarted
	Cancelled     *converter.Failure
}

// WorkflowExecutionAlreadyStarted signals an idempotent-start collision.
type WorkflowExecutionAlreadyStarted struct {
	WorkflowID string
}

// ResolveChildWorkflowExecution is the second-stage resolution of a
// startChildWorkflow command, carrying the child's terminal outcome.
type ResolveChildWorkflowExecution struct {
	Seq    uint32
	Result ChildWorkflowResult
}

// ChildWorkflowResult is the sum type of a child workflow's terminal outcome.
type ChildWorkflowResult struct {
	Completed *converter.Payloads
	Failed    *converter.Failure
	Cancelled *converter.Failure
}

// ResolveSignalExternalWorkflow resolves a signalExternalWorkflow command.
type ResolveSignalExternalWorkflow struct {
	Seq     uint32
	Failure *converter.Failure
}

// ResolveRequestCancelExternalWorkflow resolves a cancelExternalWorkflow
// command.
type ResolveRequestCancelExternalWorkflow struct {
	Seq     uint32
	Failure *converter.Failure
}

// SignalWorkflow delivers a signal to the running instance.
type SignalWorkflow struct {
	SignalName string
	Input      *converter.Payloads
	Identity   string
	Headers    map[string]*converter.Payload
}

// QueryWorkflow runs query QueryType against frozen workflow state.
type QueryWorkflow struct {
	QueryID   string
	QueryType string
	Arguments *converter.Payloads
	Headers   map[string]*converter.Payload
}

// CancelWorkflow requests cooperative cancellation of the main task.
type CancelWorkflow struct {
	Reason string
}

// DoUpdate runs update UpdateName, first through its validator (frozen),
// then (if accepted) through its handler (mutating).
type DoUpdate struct {
	ID        string
	UpdateName string
	Arguments *converter.Payloads
	Headers   map[string]*converter.Payload
	RunValidator bool
}

// UpdateRandomSeed reseeds the workflow's deterministic PRNG.
type UpdateRandomSeed struct {
	RandomSeed uint64
}

// NotifyHasPatch informs the instance that a given patch id is present in
// history, so Patched resolves deterministically during replay.
type NotifyHasPatch struct {
	PatchID string
}

// RemoveFromCache evicts the instance; a forced cancel of every outstanding
// continuation precedes teardown.
type RemoveFromCache struct {
	Reason string
}

// RetryPolicy governs automatic re-execution of a failing activity or
// workflow. MaximumAttempts == 0 means unlimited, 1 means no retry.
type RetryPolicy struct {
	InitialInterval    time.Duration
	BackoffCoefficient float64
	MaximumInterval    time.Duration
	MaximumAttempts    int32
	NonRetryableErrorTypes []string
}

// ActivityTask is what the activity task pump receives from the bridge,
// distinct from a WorkflowActivation job.
type ActivityTask struct {
	TaskToken        []byte
	ActivityID       string
	ActivityType     string
	WorkflowID       string
	WorkflowRunID    string
	WorkflowType     string
	ScheduledEventID int64
	StartedEventID   int64
	Attempt          int32
	ScheduledTime    time.Time
	Input            *converter.Payloads
	Headers          map[string]*converter.Payload
	ScheduleToCloseTimeout time.Duration
	StartToCloseTimeout    time.Duration
	HeartbeatTimeout       time.Duration
	HeartbeatDetails       *converter.Payloads
	RetryPolicy            *RetryPolicy
	IsLocal                bool
}

// ActivityTaskCancel notifies the activity task pump that a running task
// should observe cancellation.
type ActivityTaskCancel struct {
	TaskToken []byte
	Reason    ActivityCancellationReason
}

// ActivityCancellationReason enumerates why an activity's execution context
// observes cancellation, matching the activity execution context's
// cancellationReason field exactly.
type ActivityCancellationReason int

const (
	ActivityCancellationUnknown ActivityCancellationReason = iota
	ActivityCancellationGoneFromServer
	ActivityCancellationServerRequest
	ActivityCancellationTimeout
	ActivityCancellationWorkerShutdown
	ActivityCancellationHeartbeatRecordFailure
	ActivityCancellationPaused
	ActivityCancellationReset
)

func (r ActivityCancellationReason) String() string {
	switch r {
	case ActivityCancellationGoneFromServer:
		return "goneFromServer"
	case ActivityCancellationServerRequest:
		return "serverRequest"
	case ActivityCancellationTimeout:
		return "timeout"
	case ActivityCancellationWorkerShutdown:
		return "workerShutdown"
	case ActivityCancellationHeartbeatRecordFailure:
		return "heartbeatRecordFailure"
	case ActivityCancellationPaused:
		return "paused"
	case ActivityCancellationReset:
		return "reset"
	default:
		return "unknown"
	}
}

// RetryState mirrors converter.RetryState, surfaced on activity/child-workflow
// failure wrappers.
type RetryState = converter.RetryState
