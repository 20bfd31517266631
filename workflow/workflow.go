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

// Package workflow is the API available to workflow function bodies. All of
// it is deterministic by construction: time, randomness, concurrency, and
// communication with the outside world go through the replay engine.
package workflow

import (
	"math/rand"
	"time"

	"github.com/uber-go/tally"
	"go.uber.org/zap"

	"go.flowbridge.dev/sdk/internal"
)

type (
	// Context is the workflow-code analogue of context.Context.
	Context = internal.Context

	// Channel is the deterministic analogue of a Go channel.
	Channel = internal.Channel

	// Selector is the deterministic analogue of a select statement.
	Selector = internal.Selector

	// Future represents the result of an asynchronous operation.
	Future = internal.Future

	// Settable resolves the Future half of a NewFuture pair.
	Settable = internal.Settable

	// ChildWorkflowFuture is the result of ExecuteChildWorkflow.
	ChildWorkflowFuture = internal.ChildWorkflowFuture

	// CancelFunc cancels the cancellation scope it was created with.
	CancelFunc = internal.CancelFunc

	// Info is the read-only view of the current run.
	Info = internal.WorkflowInfo

	// Execution identifies one run of a workflow id.
	Execution = internal.WorkflowExecution

	// ActivityOptions configures ExecuteActivity.
	ActivityOptions = internal.ActivityOptions

	// LocalActivityOptions configures ExecuteLocalActivity.
	LocalActivityOptions = internal.LocalActivityOptions

	// ChildWorkflowOptions configures ExecuteChildWorkflow.
	ChildWorkflowOptions = internal.ChildWorkflowOptions

	// UpdateHandlerOptions configures SetUpdateHandler.
	UpdateHandlerOptions = internal.UpdateHandlerOptions

	// ContinueAsNewError, returned from a workflow function, replaces the
	// run with a fresh execution.
	ContinueAsNewError = internal.ContinueAsNewError
)

// Background returns the root Context; only the runtime itself calls this.
func Background() Context { return internal.Background() }

// WithValue returns a child Context carrying val under key.
func WithValue(parent Context, key, val interface{}) Context {
	return internal.WithValue(parent, key, val)
}

// WithCancel returns a child Context with a fresh cancellation scope.
func WithCancel(parent Context) (Context, CancelFunc) { return internal.WithCancel(parent) }

// NewDisconnectedContext returns a child Context shielded from the parent's
// cancellation, for cleanup work that must run even when the workflow is
// being canceled.
func NewDisconnectedContext(parent Context) (Context, CancelFunc) {
	return internal.NewDisconnectedContext(parent)
}

// Done returns the Channel closed when ctx's scope is canceled.
func Done(ctx Context) Channel { return internal.Done(ctx) }

// Go schedules f as a new workflow coroutine.
func Go(ctx Context, f func(ctx Context)) { internal.Go(ctx, f) }

// GoNamed is Go with a diagnostic name shown in stack-trace queries.
func GoNamed(ctx Context, name string, f func(ctx Context)) { internal.GoNamed(ctx, name, f) }

// NewChannel creates an unbuffered deterministic channel.
func NewChannel(ctx Context) Channel { return internal.NewChannel(ctx) }

// NewNamedChannel is NewChannel with a diagnostic name.
func NewNamedChannel(ctx Context, name string) Channel { return internal.NewNamedChannel(ctx, name) }

// NewBufferedChannel creates a deterministic channel buffering up to size.
func NewBufferedChannel(ctx Context, size int) Channel { return internal.NewBufferedChannel(ctx, size) }

// NewSelector creates an empty Selector.
func NewSelector(ctx Context) Selector { return internal.NewSelector(ctx) }

// NewNamedSelector is NewSelector with a diagnostic name.
func NewNamedSelector(ctx Context, name string) Selector { return internal.NewNamedSelector(ctx, name) }

// NewFuture returns a linked (Future, Settable) pair.
func NewFuture(ctx Context) (Future, Settable) { return internal.NewFuture(ctx) }

// GetInfo returns information about the current run.
func GetInfo(ctx Context) *Info { return internal.GetWorkflowInfo(ctx) }

// GetLogger returns a replay-safe logger.
func GetLogger(ctx Context) *zap.Logger { return internal.GetLogger(ctx) }

// GetMetricsScope returns the worker's scope tagged by workflow type.
func GetMetricsScope(ctx Context) tally.Scope { return internal.GetMetricsScope(ctx) }

// Now returns deterministic workflow time; never use time.Now here.
func Now(ctx Context) time.Time { return internal.Now(ctx) }

// IsReplaying reports whether the current activation replays recorded
// history. Gate non-durable concerns only, never workflow logic.
func IsReplaying(ctx Context) bool { return internal.IsReplaying(ctx) }

// NewRandom returns the run's deterministic PRNG.
func NewRandom(ctx Context) *rand.Rand { return internal.NewRandom(ctx) }

// Sleep pauses the workflow on a durable timer.
func Sleep(ctx Context, d time.Duration) error { return internal.Sleep(ctx, d) }

// NewTimer starts a durable timer and returns its Future.
func NewTimer(ctx Context, d time.Duration) Future { return internal.NewTimer(ctx, d) }

// Await blocks until condition() is true, re-evaluated after every state
// mutation in the current activation.
func Await(ctx Context, condition func() bool) error { return internal.Await(ctx, condition) }

// AwaitWithTimeout is Await bounded by a durable timer.
func AwaitWithTimeout(ctx Context, timeout time.Duration, condition func() bool) (bool, error) {
	return internal.AwaitWithTimeout(ctx, timeout, condition)
}

// WithActivityOptions attaches options for subsequent ExecuteActivity calls.
func WithActivityOptions(ctx Context, options ActivityOptions) Context {
	return internal.WithActivityOptions(ctx, options)
}

// WithLocalActivityOptions attaches options for subsequent
// ExecuteLocalActivity calls.
func WithLocalActivityOptions(ctx Context, options LocalActivityOptions) Context {
	return internal.WithLocalActivityOptions(ctx, options)
}

// WithChildOptions attaches options for subsequent ExecuteChildWorkflow
// calls.
func WithChildOptions(ctx Context, options ChildWorkflowOptions) Context {
	return internal.WithChildWorkflowOptions(ctx, options)
}

// ExecuteActivity schedules an activity and returns its Future.
func ExecuteActivity(ctx Context, activity interface{}, args ...interface{}) Future {
	return internal.ExecuteActivity(ctx, activity, args...)
}

// ExecuteLocalActivity schedules a local activity and returns its Future.
func ExecuteLocalActivity(ctx Context, activity interface{}, args ...interface{}) Future {
	return internal.ExecuteLocalActivity(ctx, activity, args...)
}

// ExecuteChildWorkflow starts a child workflow.
func ExecuteChildWorkflow(ctx Context, childWorkflow interface{}, args ...interface{}) ChildWorkflowFuture {
	return internal.ExecuteChildWorkflow(ctx, childWorkflow, args...)
}

// SignalExternalWorkflow delivers a signal to another execution.
func SignalExternalWorkflow(ctx Context, workflowID, runID, signalName string, arg interface{}) Future {
	return internal.SignalExternalWorkflow(ctx, workflowID, runID, signalName, arg)
}

// RequestCancelExternalWorkflow requests cancellation of another execution.
func RequestCancelExternalWorkflow(ctx Context, workflowID, runID string) Future {
	return internal.RequestCancelExternalWorkflow(ctx, workflowID, runID)
}

// GetSignalChannel returns the Channel carrying signals named signalName.
func GetSignalChannel(ctx Context, signalName string) Channel {
	return internal.GetSignalChannel(ctx, signalName)
}

// SetQueryHandler registers a read-only query handler.
func SetQueryHandler(ctx Context, queryType string, handler interface{}) error {
	return internal.SetQueryHandler(ctx, queryType, handler)
}

// SetUpdateHandler registers an update handler with an optional validator.
func SetUpdateHandler(ctx Context, updateName string, handler interface{}, opts UpdateHandlerOptions) error {
	return internal.SetUpdateHandler(ctx, updateName, handler, opts)
}

// AllHandlersFinished reports whether every signal/update handler returned.
func AllHandlersFinished(ctx Context) bool { return internal.AllHandlersFinished(ctx) }

// Patched branches old/new code paths deterministically across a workflow
// definition migration.
func Patched(ctx Context, patchID string) bool { return internal.Patched(ctx, patchID) }

// DeprecatePatch marks patchID's old code path as gone.
func DeprecatePatch(ctx Context, patchID string) { internal.DeprecatePatch(ctx, patchID) }

// UpsertSearchAttributes merges attributes into the run's indexed view.
func UpsertSearchAttributes(ctx Context, attributes map[string]interface{}) error {
	return internal.UpsertSearchAttributes(ctx, attributes)
}

// UpsertMemo merges memo into the run's opaque metadata.
func UpsertMemo(ctx Context, memo map[string]interface{}) error {
	return internal.UpsertMemo(ctx, memo)
}

// SetCurrentDetails replaces the run's operator-facing details string.
func SetCurrentDetails(ctx Context, details string) { internal.SetCurrentDetails(ctx, details) }

// GetCurrentDetails returns the string last set by SetCurrentDetails.
func GetCurrentDetails(ctx Context) string { return internal.GetCurrentDetails(ctx) }

// NewContinueAsNewError ends the current run and starts a fresh one with
// the same workflow id when returned from the workflow function.
func NewContinueAsNewError(ctx Context, wfn interface{}, args ...interface{}) *ContinueAsNewError {
	return internal.NewContinueAsNewError(ctx, wfn, args...)
}
