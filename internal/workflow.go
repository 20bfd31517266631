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
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"strconv"
	"time"

	"github.com/uber-go/tally"
	"go.uber.org/zap"

	"go.flowbridge.dev/sdk/converter"
	"go.flowbridge.dev/sdk/internal/coresdk"
)

// defaultSignalChannelSize bounds how many undelivered signals a single
// signal channel buffers before SendAsync starts failing. Signals beyond
// this are dropped by the host with a corrupted-signal metric.
const defaultSignalChannelSize = 100000

type (
	// WorkflowExecution identifies one run of a workflow id. RunID may be
	// empty when referring to "whatever run is current".
	WorkflowExecution struct {
		ID    string
		RunID string
	}

	// WorkflowInfo is the read-only view of the current run exposed to
	// workflow code via GetWorkflowInfo.
	WorkflowInfo struct {
		WorkflowExecution        WorkflowExecution
		WorkflowType             WorkflowType
		Namespace                string
		TaskQueue                string
		Attempt                  int32
		WorkflowStartTime        time.Time
		CronSchedule             string
		ContinuedExecutionRunID  string
		ParentWorkflowExecution  *WorkflowExecution
		WorkflowExecutionTimeout time.Duration
		WorkflowRunTimeout       time.Duration
		WorkflowTaskTimeout      time.Duration
		RetryPolicy              *coresdk.RetryPolicy
		Memo                     map[string]*Payload
		SearchAttributes         map[string]*Payload
		Headers                  map[string]*Payload

		lastCompletionResult *Payloads
		lastFailure          *converter.Failure
	}

	// ActivityOptions configures ExecuteActivity. At least one of
	// ScheduleToCloseTimeout or StartToCloseTimeout is required; everything
	// else defaults sensibly.
	ActivityOptions struct {
		TaskQueue              string
		ScheduleToCloseTimeout time.Duration
		ScheduleToStartTimeout time.Duration
		StartToCloseTimeout    time.Duration
		HeartbeatTimeout       time.Duration
		ActivityID             string
		RetryPolicy            *coresdk.RetryPolicy
		// WaitForCancellation makes a canceled ExecuteActivity future wait
		// for the activity's final outcome instead of resuming immediately.
		WaitForCancellation bool
		// AbandonOnCancellation skips the server-side cancel request
		// entirely: the future resumes with a cancellation and the activity
		// runs to completion unobserved.
		AbandonOnCancellation bool
	}

	// LocalActivityOptions configures ExecuteLocalActivity.
	LocalActivityOptions struct {
		ScheduleToCloseTimeout time.Duration
		StartToCloseTimeout    time.Duration
		RetryPolicy            *coresdk.RetryPolicy
	}

	// ChildWorkflowOptions configures ExecuteChildWorkflow.
	ChildWorkflowOptions struct {
		Namespace                string
		WorkflowID               string
		TaskQueue                string
		WorkflowExecutionTimeout time.Duration
		WorkflowRunTimeout       time.Duration
		WorkflowTaskTimeout      time.Duration
		WaitForCancellation      bool
		ParentClosePolicy        coresdk.ParentClosePolicy
		RetryPolicy              *coresdk.RetryPolicy
		CronSchedule             string
		Memo                     map[string]*Payload
		SearchAttributes         map[string]*Payload
	}

	executeActivityParams struct {
		ActivityType string
		Input        *Payloads
		Header       map[string]*Payload
		Options      ActivityOptions
		IsLocal      bool
	}

	executeChildWorkflowParams struct {
		WorkflowType string
		Input        *Payloads
		Header       map[string]*Payload
		Options      ChildWorkflowOptions
	}

	// ChildWorkflowFuture represents the result of a child workflow: the
	// outer Future resolves on the child's terminal outcome, while
	// GetChildWorkflowExecution resolves as soon as the server confirms the
	// child started (or refuses the start).
	ChildWorkflowFuture interface {
		Future
		GetChildWorkflowExecution() Future
		SignalChildWorkflow(ctx Context, signalName string, arg interface{}) Future
	}

	childWorkflowFutureImpl struct {
		*decodeFutureImpl
		executionFuture *futureImpl
	}

	// decodeFutureImpl is a Future whose resolved value is a *Payloads that
	// must be decoded into the caller's typed pointer on Get; used for
	// activity and child workflow results.
	decodeFutureImpl struct {
		*futureImpl
		dataConverter DataConverter
	}

	// CancelFunc cancels the cancellation scope it was created with.
	CancelFunc func()

	cancelState struct {
		channel   *channelImpl
		canceled  bool
		err       error
		callbacks []func(error)
	}
)

// ---------------------------------------------------------------------------
// Cancellation scopes
// ---------------------------------------------------------------------------

// WithCancel returns a child Context carrying a fresh cancellation scope and
// the CancelFunc that cancels it. Cancellation of the parent scope (however
// deep) propagates to the child; the reverse does not.
func WithCancel(parent Context) (Context, CancelFunc) {
	cs := &cancelState{channel: &channelImpl{name: "cancel", dispatcher: getDispatcher(parent)}}
	ctx := WithValue(parent, cancelStateContextKey, cs)
	if parentCS := getCancelStateFrom(parent); parentCS != nil {
		parentCS.onCancel(func(err error) { cs.cancel(err) })
	}
	return ctx, func() { cs.cancel(NewCanceledError()) }
}

// NewDisconnectedContext returns a child Context detached from the parent's
// cancellation scope: operations started under it keep running when the
// parent is canceled. This is the cancellation shield; the caller still
// awaits results through the returned Context's futures as usual.
func NewDisconnectedContext(parent Context) (Context, CancelFunc) {
	cs := &cancelState{channel: &channelImpl{name: "cancel", dispatcher: getDispatcher(parent)}}
	ctx := WithValue(parent, cancelStateContextKey, cs)
	return ctx, func() { cs.cancel(NewCanceledError()) }
}

// Done returns a Channel that is closed when ctx's cancellation scope is
// canceled, for use in a Selector alongside other wait cases. Returns nil
// when no cancellation scope was installed anywhere on ctx's chain.
func Done(ctx Context) Channel {
	cs := getCancelStateFrom(ctx)
	if cs == nil {
		return nil
	}
	return cs.channel
}

func newDecodeFuture(ctx Context, dc DataConverter) (*decodeFutureImpl, Settable) {
	if dc == nil {
		dc = getDefaultDataConverter()
	}
	future, settable := NewFuture(ctx)
	return &decodeFutureImpl{futureImpl: future.(*futureImpl), dataConverter: dc}, settable
}

func (f *decodeFutureImpl) Get(ctx Context, valuePtr interface{}) error {
	if !f.ready {
		f.channel.Receive(ctx, nil)
	}
	if f.err != nil {
		return f.err
	}
	if valuePtr == nil || f.value == nil {
		return nil
	}
	payloads, ok := f.value.(*Payloads)
	if !ok {
		return setReflected(valuePtr, f.value)
	}
	if payloads.Size() == 0 {
		return nil
	}
	return f.dataConverter.FromPayloads(payloads, valuePtr)
}

func getCancelStateFrom(ctx Context) *cancelState {
	cs, _ := ctx.Value(cancelStateContextKey).(*cancelState)
	return cs
}

func (cs *cancelState) cancel(err error) {
	if cs.canceled {
		return
	}
	cs.canceled = true
	cs.err = err
	callbacks := cs.callbacks
	cs.callbacks = nil
	cs.channel.Close()
	for _, cb := range callbacks {
		cb(err)
	}
}

// onCancel registers cb to run at cancellation; if the scope is already
// canceled, cb runs immediately.
func (cs *cancelState) onCancel(cb func(error)) {
	if cs.canceled {
		cb(cs.err)
		return
	}
	cs.callbacks = append(cs.callbacks, cb)
}

func ctxCanceled(ctx Context) error {
	if cs := getCancelStateFrom(ctx); cs != nil && cs.canceled {
		return cs.err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Options plumbing
// ---------------------------------------------------------------------------

// WithActivityOptions returns a Context with options applied to every
// subsequent ExecuteActivity call.
func WithActivityOptions(ctx Context, options ActivityOptions) Context {
	return WithValue(ctx, activityOptionsContextKey, &options)
}

// WithLocalActivityOptions returns a Context with options applied to every
// subsequent ExecuteLocalActivity call.
func WithLocalActivityOptions(ctx Context, options LocalActivityOptions) Context {
	return WithValue(ctx, localActivityOptionsContextKey, &options)
}

// WithChildWorkflowOptions returns a Context with options applied to every
// subsequent ExecuteChildWorkflow call.
func WithChildWorkflowOptions(ctx Context, options ChildWorkflowOptions) Context {
	return WithValue(ctx, childWorkflowOptionsContextKey, &options)
}

func getActivityOptions(ctx Context) ActivityOptions {
	if opts, ok := ctx.Value(activityOptionsContextKey).(*ActivityOptions); ok {
		return *opts
	}
	return ActivityOptions{}
}

func getLocalActivityOptions(ctx Context) LocalActivityOptions {
	if opts, ok := ctx.Value(localActivityOptionsContextKey).(*LocalActivityOptions); ok {
		return *opts
	}
	return LocalActivityOptions{}
}

func getChildWorkflowOptions(ctx Context) ChildWorkflowOptions {
	if opts, ok := ctx.Value(childWorkflowOptionsContextKey).(*ChildWorkflowOptions); ok {
		return *opts
	}
	return ChildWorkflowOptions{}
}

// ---------------------------------------------------------------------------
// Workflow info, time, randomness
// ---------------------------------------------------------------------------

// GetWorkflowInfo returns information about the current workflow run.
func GetWorkflowInfo(ctx Context) *WorkflowInfo {
	return getWorkflowEnvironment(ctx).WorkflowInfo()
}

// Now returns the current activation's timestamp: deterministic, monotonic
// per activation, and identical on replay. Never use time.Now in workflow
// code.
func Now(ctx Context) time.Time {
	return getWorkflowEnvironment(ctx).Now()
}

// IsReplaying reports whether the current activation is a replay of already
// recorded history. Use only to gate non-durable concerns (e.g. log
// de-duplication), never to change workflow logic.
func IsReplaying(ctx Context) bool {
	return getWorkflowEnvironment(ctx).IsReplaying()
}

// NewRandom returns the run's deterministic PRNG: seeded by the server and
// reseeded on every updateRandomSeed job, so the same draws repeat on replay.
func NewRandom(ctx Context) *rand.Rand {
	return getWorkflowEnvironment(ctx).Random()
}

// GetLogger returns a logger that is safe to use in workflow code: the host
// drops entries during replay so each line appears once per run.
func GetLogger(ctx Context) *zap.Logger {
	return getWorkflowEnvironment(ctx).GetLogger()
}

// GetMetricsScope returns the worker's metrics scope tagged with this
// workflow type.
func GetMetricsScope(ctx Context) tally.Scope {
	return getWorkflowEnvironment(ctx).GetMetricsScope()
}

// ---------------------------------------------------------------------------
// Timers and conditions
// ---------------------------------------------------------------------------

// NewTimer starts a durable timer and returns a Future that resolves when it
// fires (nil) or the scope is canceled (CanceledError). A zero duration is
// normalized to one millisecond by the state machine so that a timer event
// is always generated.
func NewTimer(ctx Context, d time.Duration) Future {
	env := getWorkflowEnvironment(ctx)
	future, settable := NewFuture(ctx)
	if d < 0 {
		settable.SetError(fmt.Errorf("negative timer duration: %v", d))
		return future
	}
	if err := ctxCanceled(ctx); err != nil {
		settable.SetError(err)
		return future
	}
	resolved := false
	seq := env.NewTimer(d, "", func(result *Payloads, err error) {
		if resolved {
			return
		}
		resolved = true
		settable.Set(nil, err)
	})
	if cs := getCancelStateFrom(ctx); cs != nil {
		cs.onCancel(func(error) {
			if !resolved {
				env.RequestCancelTimer(seq)
			}
		})
	}
	return future
}

// Sleep pauses the workflow for d. Returns CanceledError if the scope is
// canceled before the timer fires.
func Sleep(ctx Context, d time.Duration) error {
	return NewTimer(ctx, d).Get(ctx, nil)
}

// Await blocks until condition() returns true, re-evaluating after every
// state mutation landed by the current activation, or until the scope is
// canceled.
func Await(ctx Context, condition func() bool) error {
	state := getState(ctx)
	for !condition() {
		if err := ctxCanceled(ctx); err != nil {
			return err
		}
		state.yield("Await")
	}
	return nil
}

// AwaitWithTimeout is Await bounded by a durable timer; it returns false
// with a nil error when the timeout fires first.
func AwaitWithTimeout(ctx Context, timeout time.Duration, condition func() bool) (bool, error) {
	timerCtx, cancelTimer := WithCancel(ctx)
	timer := NewTimer(timerCtx, timeout)
	state := getState(ctx)
	for !condition() {
		if err := ctxCanceled(ctx); err != nil {
			cancelTimer()
			return false, err
		}
		if timer.IsReady() {
			return false, nil
		}
		state.yield("AwaitWithTimeout")
	}
	cancelTimer()
	return true, nil
}

// ---------------------------------------------------------------------------
// Activities
// ---------------------------------------------------------------------------

// ExecuteActivity schedules an activity and returns a Future resolving to
// its result. activity is a registered function or a type name string; args
// are encoded through the data converter. Cancellation of ctx requests
// cancellation of the activity per the context's ActivityOptions.
func ExecuteActivity(ctx Context, activity interface{}, args ...interface{}) Future {
	return scheduleActivity(ctx, activity, args, false)
}

// ExecuteLocalActivity schedules a local activity: executed by this worker
// in-process, retried locally, and resumed via a server-directed backoff
// timer when local retries exhaust the task's lifetime.
func ExecuteLocalActivity(ctx Context, activity interface{}, args ...interface{}) Future {
	return scheduleActivity(ctx, activity, args, true)
}

func scheduleActivity(ctx Context, activity interface{}, args []interface{}, isLocal bool) Future {
	env := getWorkflowEnvironment(ctx)
	options := getWorkflowEnvOptions(ctx)

	var dc DataConverter
	if options != nil {
		dc = options.DataConverter
	}
	future, settable := newDecodeFuture(ctx, dc)
	activityType, err := getActivityFunctionName(activity)
	if err != nil {
		settable.SetError(err)
		return future
	}
	input, err := encodeArgs(dc, args)
	if err != nil {
		settable.SetError(err)
		return future
	}
	if err := ctxCanceled(ctx); err != nil {
		settable.SetError(NewCanceledError("activity canceled before scheduled"))
		return future
	}

	var actOptions ActivityOptions
	if isLocal {
		la := getLocalActivityOptions(ctx)
		actOptions = ActivityOptions{
			ScheduleToCloseTimeout: la.ScheduleToCloseTimeout,
			StartToCloseTimeout:    la.StartToCloseTimeout,
			RetryPolicy:            la.RetryPolicy,
		}
	} else {
		actOptions = getActivityOptions(ctx)
	}

	params := executeActivityParams{
		ActivityType: activityType,
		Input:        input,
		Header:       headerFields(getWorkflowHeader(ctx, contextPropagatorsOf(options))),
		Options:      actOptions,
		IsLocal:      isLocal,
	}
	resolved := false
	seq := env.ExecuteActivity(params, func(result *Payloads, err error) {
		if resolved {
			return
		}
		resolved = true
		settable.Set(result, err)
	})
	if cs := getCancelStateFrom(ctx); cs != nil {
		cs.onCancel(func(error) {
			if !resolved {
				env.RequestCancelActivity(seq)
			}
		})
	}
	return future
}

func getActivityFunctionName(activity interface{}) (string, error) {
	switch a := activity.(type) {
	case string:
		if a == "" {
			return "", errors.New("activity type name must not be empty")
		}
		return a, nil
	default:
		return functionName(activity)
	}
}

func contextPropagatorsOf(options *WorkflowOptions) []ContextPropagator {
	if options == nil {
		return nil
	}
	return options.ContextPropagators
}

func headerFields(h *Header) map[string]*Payload {
	if h == nil || len(h.Fields) == 0 {
		return nil
	}
	return h.Fields
}

// ---------------------------------------------------------------------------
// Child workflows and external workflows
// ---------------------------------------------------------------------------

// ExecuteChildWorkflow starts a child workflow and returns a
// ChildWorkflowFuture. The start itself is a suspension point: the returned
// future's GetChildWorkflowExecution() resolves when the server confirms the
// child started (or refuses with WorkflowExecutionAlreadyStarted), the outer
// future on the child's terminal outcome.
func ExecuteChildWorkflow(ctx Context, childWorkflow interface{}, args ...interface{}) ChildWorkflowFuture {
	env := getWorkflowEnvironment(ctx)
	options := getWorkflowEnvOptions(ctx)

	var dc DataConverter
	if options != nil {
		dc = options.DataConverter
	}
	mainFuture, mainSettable := newDecodeFuture(ctx, dc)
	execFuture, execSettable := NewFuture(ctx)
	result := &childWorkflowFutureImpl{
		decodeFutureImpl: mainFuture,
		executionFuture:  execFuture.(*futureImpl),
	}

	workflowType, input, err := getValidatedWorkflowFunction(childWorkflow, args, dc, env.GetRegistry())
	if err != nil {
		execSettable.SetError(err)
		mainSettable.SetError(err)
		return result
	}
	if err := ctxCanceled(ctx); err != nil {
		cancelErr := NewCanceledError("child workflow canceled before scheduled")
		execSettable.SetError(cancelErr)
		mainSettable.SetError(cancelErr)
		return result
	}

	params := executeChildWorkflowParams{
		WorkflowType: workflowType.Name,
		Input:        input,
		Header:       headerFields(getWorkflowHeader(ctx, contextPropagatorsOf(options))),
		Options:      getChildWorkflowOptions(ctx),
	}
	started := false
	done := false
	seq := env.ExecuteChildWorkflow(params,
		func(execution WorkflowExecution, err error) {
			started = err == nil
			if err != nil {
				execSettable.SetError(err)
			} else {
				execSettable.SetValue(execution)
			}
		},
		func(result *Payloads, err error) {
			done = true
			if !execFuture.IsReady() {
				// Start refused or canceled before start confirmation.
				execSettable.SetError(err)
			}
			mainSettable.Set(result, err)
		})
	if cs := getCancelStateFrom(ctx); cs != nil {
		cs.onCancel(func(error) {
			if started && !done {
				env.RequestCancelChildWorkflow(seq)
			}
		})
	}
	return result
}

func (f *childWorkflowFutureImpl) GetChildWorkflowExecution() Future {
	return f.executionFuture
}

func (f *childWorkflowFutureImpl) SignalChildWorkflow(ctx Context, signalName string, arg interface{}) Future {
	env := getWorkflowEnvironment(ctx)
	options := getWorkflowEnvOptions(ctx)
	future, settable := NewFuture(ctx)

	var dc DataConverter
	if options != nil {
		dc = options.DataConverter
	}
	input, err := encodeArgs(dc, []interface{}{arg})
	if err != nil {
		settable.SetError(err)
		return future
	}
	// The child's execution must be known before a signal can target it.
	GoNamed(ctx, "signal-child", func(ctx Context) {
		var execution WorkflowExecution
		if err := f.executionFuture.Get(ctx, &execution); err != nil {
			settable.SetError(err)
			return
		}
		env.SignalExternalWorkflow(
			env.WorkflowInfo().Namespace, execution.ID, "", signalName, input, nil,
			func(result *Payloads, err error) {
				settable.Set(nil, err)
			})
	})
	return future
}

// SignalExternalWorkflow delivers a signal to another workflow execution.
// The returned Future resolves with nil once the server accepts delivery, or
// with an error if the target does not exist.
func SignalExternalWorkflow(ctx Context, workflowID, runID, signalName string, arg interface{}) Future {
	env := getWorkflowEnvironment(ctx)
	options := getWorkflowEnvOptions(ctx)
	future, settable := NewFuture(ctx)

	var dc DataConverter
	if options != nil {
		dc = options.DataConverter
	}
	input, err := encodeArgs(dc, []interface{}{arg})
	if err != nil {
		settable.SetError(err)
		return future
	}
	env.SignalExternalWorkflow(env.WorkflowInfo().Namespace, workflowID, runID, signalName, input,
		headerFields(getWorkflowHeader(ctx, contextPropagatorsOf(options))),
		func(result *Payloads, err error) {
			settable.Set(nil, err)
		})
	return future
}

// RequestCancelExternalWorkflow requests cooperative cancellation of another
// workflow execution.
func RequestCancelExternalWorkflow(ctx Context, workflowID, runID string) Future {
	env := getWorkflowEnvironment(ctx)
	future, settable := NewFuture(ctx)
	env.RequestCancelExternalWorkflow(env.WorkflowInfo().Namespace, workflowID, runID, "",
		func(result *Payloads, err error) {
			settable.Set(nil, err)
		})
	return future
}

// ---------------------------------------------------------------------------
// Signals, queries, updates
// ---------------------------------------------------------------------------

// GetSignalChannel returns the Channel carrying signals delivered under
// signalName. Signals arriving before the first GetSignalChannel call are
// buffered and delivered in arrival order.
func GetSignalChannel(ctx Context, signalName string) Channel {
	return getWorkflowEnvironment(ctx).GetSignalChannel(ctx, signalName)
}

// SetQueryHandler registers handler for queries of type queryType. The
// handler must be func(args...) (R, error); it runs against frozen workflow
// state and must not mutate anything or block.
func SetQueryHandler(ctx Context, queryType string, handler interface{}) error {
	env := getWorkflowEnvironment(ctx)
	fnType := reflect.TypeOf(handler)
	if fnType == nil || fnType.Kind() != reflect.Func {
		return fmt.Errorf("query handler must be a function, got %T", handler)
	}
	if fnType.NumOut() != 2 || !fnType.Out(1).Implements(errorInterface) {
		return fmt.Errorf("query handler must return (result, error), got %v", fnType)
	}
	dc := dataConverterOf(ctx)
	return env.RegisterQueryHandler(queryType, func(input *Payloads, header map[string]*Payload) (*Payloads, error) {
		args, err := decodeArgsToValues(dc, fnType, input, 0)
		if err != nil {
			return nil, err
		}
		results := reflect.ValueOf(handler).Call(args)
		if errVal := results[1].Interface(); errVal != nil {
			return nil, errVal.(error)
		}
		return encodeArgs(dc, []interface{}{results[0].Interface()})
	})
}

// UpdateHandlerOptions configures SetUpdateHandler.
type UpdateHandlerOptions struct {
	// Validator runs against frozen state before the update is accepted; a
	// non-nil error rejects the update without recording it in history. It
	// takes the same arguments as the handler, without the Context.
	Validator interface{}
}

// SetUpdateHandler registers handler for updates named updateName. The
// handler must be func(ctx Context, args...) (R, error) or
// func(ctx Context, args...) error; it runs as a workflow coroutine and may
// issue commands like the main function.
func SetUpdateHandler(ctx Context, updateName string, handler interface{}, opts UpdateHandlerOptions) error {
	env := getWorkflowEnvironment(ctx)
	fnType := reflect.TypeOf(handler)
	if fnType == nil || fnType.Kind() != reflect.Func {
		return fmt.Errorf("update handler must be a function, got %T", handler)
	}
	if fnType.NumIn() == 0 || fnType.In(0) != contextInterface {
		return fmt.Errorf("update handler's first parameter must be workflow Context, got %v", fnType)
	}
	dc := dataConverterOf(ctx)

	var validatorFn func(input *Payloads) error
	if opts.Validator != nil {
		vType := reflect.TypeOf(opts.Validator)
		if vType == nil || vType.Kind() != reflect.Func {
			return fmt.Errorf("update validator must be a function, got %T", opts.Validator)
		}
		validatorFn = func(input *Payloads) error {
			args, err := decodeArgsToValues(dc, vType, input, 0)
			if err != nil {
				return err
			}
			results := reflect.ValueOf(opts.Validator).Call(args)
			if len(results) == 0 {
				return nil
			}
			if errVal := results[len(results)-1].Interface(); errVal != nil {
				return errVal.(error)
			}
			return nil
		}
	}

	return env.RegisterUpdateHandler(updateName, validatorFn, func(handlerCtx Context, input *Payloads) (*Payloads, error) {
		args, err := decodeArgsToValues(dc, fnType, input, 1)
		if err != nil {
			return nil, err
		}
		callArgs := append([]reflect.Value{reflect.ValueOf(handlerCtx)}, args...)
		results := reflect.ValueOf(handler).Call(callArgs)
		return serializeResults(dc, results)
	})
}

// AllHandlersFinished reports whether every signal/update handler started in
// this run has returned. Workflow code typically awaits this before
// completing so that late handlers are not torn down mid-flight:
//
//	_ = workflow.Await(ctx, func() bool { return workflow.AllHandlersFinished(ctx) })
func AllHandlersFinished(ctx Context) bool {
	return getWorkflowEnvironment(ctx).HandlersInFlight() == 0
}

// ---------------------------------------------------------------------------
// Patches, memo, search attributes, details
// ---------------------------------------------------------------------------

// Patched reports deterministically whether this run executes with the
// given patch: true in a fresh run (recording a patch marker), and on replay
// exactly what history recorded. Use to branch old/new code paths during a
// workflow definition migration.
func Patched(ctx Context, patchID string) bool {
	return getWorkflowEnvironment(ctx).Patched(patchID, false)
}

// DeprecatePatch marks patchID's old code path as gone; runs whose history
// predates the patch will fail replay on this worker, which is the signal to
// keep an old worker fleet alive until they drain.
func DeprecatePatch(ctx Context, patchID string) {
	getWorkflowEnvironment(ctx).Patched(patchID, true)
}

// UpsertSearchAttributes merges attributes into the run's indexed
// search-attribute view and emits the corresponding command.
func UpsertSearchAttributes(ctx Context, attributes map[string]interface{}) error {
	env := getWorkflowEnvironment(ctx)
	encoded, err := encodeValueMap(dataConverterOf(ctx), attributes)
	if err != nil {
		return err
	}
	return env.UpsertSearchAttributes(encoded)
}

// UpsertMemo merges memo into the run's opaque memo view and emits the
// corresponding command.
func UpsertMemo(ctx Context, memo map[string]interface{}) error {
	env := getWorkflowEnvironment(ctx)
	encoded, err := encodeValueMap(dataConverterOf(ctx), memo)
	if err != nil {
		return err
	}
	return env.UpsertMemo(encoded)
}

// SetCurrentDetails replaces the run's operator-facing details string.
func SetCurrentDetails(ctx Context, details string) {
	getWorkflowEnvironment(ctx).SetCurrentDetails(details)
}

// GetCurrentDetails returns the details string last set by
// SetCurrentDetails.
func GetCurrentDetails(ctx Context) string {
	return getWorkflowEnvironment(ctx).GetCurrentDetails()
}

func encodeValueMap(dc DataConverter, values map[string]interface{}) (map[string]*Payload, error) {
	if dc == nil {
		dc = getDefaultDataConverter()
	}
	result := make(map[string]*Payload, len(values))
	for k, v := range values {
		payloads, err := dc.ToPayloads(v)
		if err != nil {
			return nil, fmt.Errorf("encode %q: %w", k, err)
		}
		if payloads.Size() > 0 {
			result[k] = payloads.GetPayloads()[0]
		}
	}
	return result, nil
}

func dataConverterOf(ctx Context) DataConverter {
	if options := getWorkflowEnvOptions(ctx); options != nil && options.DataConverter != nil {
		return options.DataConverter
	}
	return getDefaultDataConverter()
}

// ---------------------------------------------------------------------------
// Reflection helpers shared by workflow, activity, query and update dispatch
// ---------------------------------------------------------------------------

var (
	errorInterface   = reflect.TypeOf((*error)(nil)).Elem()
	contextInterface = reflect.TypeOf((*Context)(nil)).Elem()
)

// decodeArgsToValues decodes input into reflect values matching fnType's
// parameters, skipping the first skip parameters (a leading Context). The
// payload arity must match the remaining parameter arity exactly.
func decodeArgsToValues(dc DataConverter, fnType reflect.Type, input *Payloads, skip int) ([]reflect.Value, error) {
	if dc == nil {
		dc = getDefaultDataConverter()
	}
	argCount := fnType.NumIn() - skip
	if input.Size() != argCount {
		return nil, fmt.Errorf("expected %d arguments, got %d payloads", argCount, input.Size())
	}
	if argCount == 0 {
		return nil, nil
	}
	ptrs := make([]interface{}, argCount)
	values := make([]reflect.Value, argCount)
	for i := 0; i < argCount; i++ {
		v := reflect.New(fnType.In(i + skip))
		ptrs[i] = v.Interface()
		values[i] = v.Elem()
	}
	if err := dc.FromPayloads(input, ptrs...); err != nil {
		return nil, err
	}
	return values, nil
}

// serializeResults maps a reflective call's results onto (payloads, error):
// a trailing error return becomes the error, everything before it is
// encoded.
func serializeResults(dc DataConverter, results []reflect.Value) (*Payloads, error) {
	if dc == nil {
		dc = getDefaultDataConverter()
	}
	if len(results) == 0 {
		return nil, nil
	}
	last := results[len(results)-1]
	var callErr error
	resultValues := results
	if last.Type().Implements(errorInterface) {
		if errVal := last.Interface(); errVal != nil {
			callErr = errVal.(error)
		}
		resultValues = results[:len(results)-1]
	}
	if callErr != nil {
		return nil, callErr
	}
	if len(resultValues) == 0 {
		return nil, nil
	}
	args := make([]interface{}, len(resultValues))
	for i, v := range resultValues {
		args[i] = v.Interface()
	}
	return dc.ToPayloads(args...)
}

// sequenceID renders a sequence number the way command state machine ids
// expect it.
func sequenceID(seq uint32) string {
	return strconv.FormatUint(uint64(seq), 10)
}
