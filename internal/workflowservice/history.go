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
	"time"

	"go.flowbridge.dev/sdk/converter"
)

// History is one page of a run's event history.
type History struct {
	Events []*HistoryEvent
}

// HistoryEvent is a single history event. Only the attribute sets a client
// needs to interpret (the terminal events of a run) are modeled as typed
// fields; at most one attribute pointer is non-nil.
type HistoryEvent struct {
	EventID   int64
	EventTime time.Time

	WorkflowExecutionCompletedEventAttributes      *WorkflowExecutionCompletedEventAttributes
	WorkflowExecutionFailedEventAttributes         *WorkflowExecutionFailedEventAttributes
	WorkflowExecutionCanceledEventAttributes       *WorkflowExecutionCanceledEventAttributes
	WorkflowExecutionTerminatedEventAttributes     *WorkflowExecutionTerminatedEventAttributes
	WorkflowExecutionTimedOutEventAttributes       *WorkflowExecutionTimedOutEventAttributes
	WorkflowExecutionContinuedAsNewEventAttributes *WorkflowExecutionContinuedAsNewEventAttributes
}

// IsTerminal reports whether this event closes a run.
func (e *HistoryEvent) IsTerminal() bool {
	return e.WorkflowExecutionCompletedEventAttributes != nil ||
		e.WorkflowExecutionFailedEventAttributes != nil ||
		e.WorkflowExecutionCanceledEventAttributes != nil ||
		e.WorkflowExecutionTerminatedEventAttributes != nil ||
		e.WorkflowExecutionTimedOutEventAttributes != nil ||
		e.WorkflowExecutionContinuedAsNewEventAttributes != nil
}

// WorkflowExecutionCompletedEventAttributes closes a run successfully.
type WorkflowExecutionCompletedEventAttributes struct {
	Result                       *converter.Payloads
	NewExecutionRunID            string
}

// WorkflowExecutionFailedEventAttributes closes a run with a failure.
type WorkflowExecutionFailedEventAttributes struct {
	Failure           *converter.Failure
	RetryState        converter.RetryState
	NewExecutionRunID string
}

// WorkflowExecutionCanceledEventAttributes closes a run after cooperative
// cancellation.
type WorkflowExecutionCanceledEventAttributes struct {
	Details *converter.Payloads
}

// WorkflowExecutionTerminatedEventAttributes closes a run forcibly.
type WorkflowExecutionTerminatedEventAttributes struct {
	Reason  string
	Details *converter.Payloads
}

// WorkflowExecutionTimedOutEventAttributes closes a run on timeout.
type WorkflowExecutionTimedOutEventAttributes struct {
	RetryState        converter.RetryState
	NewExecutionRunID string
}

// WorkflowExecutionContinuedAsNewEventAttributes closes a run by replacing
// it with a fresh execution.
type WorkflowExecutionContinuedAsNewEventAttributes struct {
	NewExecutionRunID string
}
