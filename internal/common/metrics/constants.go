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

// Package metrics holds the tally scope tag keys/counter-timer names shared
// by the bridge client queue, task pumps, and client RPC layer.
package metrics

const (
	// SDKRequest is incremented once per RPC call, tagged by operation.
	SDKRequest = "sdk_request"
	// SDKRequestFailure is incremented once per failed RPC call.
	SDKRequestFailure = "sdk_request_failure"
	// SDKRequestLatency records RPC call duration.
	SDKRequestLatency = "sdk_request_latency"

	// WorkflowTaskScheduleToStartLatency is the time between a workflow task
	// becoming schedulable and a worker starting to process it.
	WorkflowTaskScheduleToStartLatency = "workflow_task_schedule_to_start_latency"
	// WorkflowTaskExecutionLatency is the time spent executing a single
	// workflow task on the worker, excluding poll/dispatch.
	WorkflowTaskExecutionLatency = "workflow_task_execution_latency"
	// WorkflowTaskNoCompletionCounter counts forced heartbeat responses to
	// the server (a workflow task that did not complete within one poll).
	WorkflowTaskNoCompletionCounter = "workflow_task_no_completion"

	// ActivityPollNoTaskCounter counts activity poll responses with no task
	// (expected under normal long-poll operation; not an error).
	ActivityPollNoTaskCounter = "activity_poll_no_task"
	// ActivityExecutionLatency is the time spent running a single activity
	// invocation, from dispatch to completion/failure/cancel.
	ActivityExecutionLatency = "activity_execution_latency"
	// ActivityExecutionFailedCounter counts activities that completed with
	// an application-level failure.
	ActivityExecutionFailedCounter = "activity_execution_failed"
	// UnregisteredActivityInvocationCounter counts poll responses naming an
	// activity type this worker never registered.
	UnregisteredActivityInvocationCounter = "unregistered_activity_invocation"

	// CorruptedSignalsCounter counts signal jobs that failed to decode.
	CorruptedSignalsCounter = "corrupted_signals"

	// TagWorkflowType tags a metric by workflow type name.
	TagWorkflowType = "workflow_type"
	// TagActivityType tags a metric by activity type name.
	TagActivityType = "activity_type"
	// TagTaskQueue tags a metric by task queue name.
	TagTaskQueue = "task_queue"
	// TagOperation tags an RPC metric by the operation name.
	TagOperation = "operation"
)
