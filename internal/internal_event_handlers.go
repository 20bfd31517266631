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
	"time"

	"github.com/uber-go/tally"
	"go.uber.org/zap"

	"go.flowbridge.dev/sdk/converter"
	"go.flowbridge.dev/sdk/internal/common/metrics"
	"go.flowbridge.dev/sdk/internal/coresdk"
)

type (
	// activityHandle tracks one in-flight activity invocation from schedule
	// to resolution.
	activityHandle struct {
		seq              uint32
		activityID       string
		callback         ResultHandler
		params           executeActivityParams
		waitCancellation bool
		abandoned        bool
	}

	// childWorkflowHandle tracks one in-flight child workflow through its
	// two-stage resolution.
	childWorkflowHandle struct {
		seq             uint32
		workflowID      string
		startedCallback func(execution WorkflowExecution, err error)
		callback        ResultHandler
		started         bool
	}

	updateHandler struct {
		name      string
		validator func(input *Payloads) error
		handler   func(ctx Context, input *Payloads) (*Payloads, error)
	}

	// workflowCompletionState is the workflow's terminal disposition, set
	// exactly once by Complete.
	workflowCompletionState struct {
		completed bool
		result    *Payloads
		err       error
	}

	// workflowEnvironmentImpl is the deterministic state of one workflow
	// run: the source of truth component the coroutines in
	// internal_workflow.go call into. All methods must run on the run's
	// single logical thread (either a dispatcher coroutine or the host's
	// activation loop); the readOnly flag additionally rejects mutations
	// while a query handler or update validator is executing.
	workflowEnvironmentImpl struct {
		workflowInfo       *WorkflowInfo
		registry           *Registry
		dataConverter      DataConverter
		failureConverter   converter.FailureConverter
		contextPropagators []ContextPropagator
		logger             *zap.Logger
		metricsScope       tally.Scope

		commandsHelper *commandsHelper
		dispatcher     *dispatcherImpl
		rootCtx        Context

		timerSeq         uint32
		activitySeq      uint32
		childWorkflowSeq uint32
		signalSeq        uint32
		cancelSeq        uint32
		upsertSeq        uint32

		pendingTimers         map[uint32]ResultHandler
		pendingActivities     map[uint32]*activityHandle
		pendingChildWorkflows map[uint32]*childWorkflowHandle
		pendingSignals        map[uint32]ResultHandler
		pendingCancels        map[uint32]ResultHandler

		signalChannels map[string]Channel
		queryHandlers  map[string]func(input *Payloads, header map[string]*Payload) (*Payloads, error)
		updateHandlers map[string]*updateHandler

		knownPatches map[string]bool
		patchResults map[string]bool

		rng              *rand.Rand
		currentTime      time.Time
		replaying        bool
		historyLength    int64
		historySizeBytes int64

		currentDetails   string
		readOnly         bool
		handlersInFlight int

		cancelRequested bool
		completion      workflowCompletionState
	}
)

func newWorkflowEnvironment(
	info *WorkflowInfo,
	registry *Registry,
	dataConverter DataConverter,
	failureConverter converter.FailureConverter,
	contextPropagators []ContextPropagator,
	logger *zap.Logger,
	metricsScope tally.Scope,
	randomSeed uint64,
) *workflowEnvironmentImpl {
	if dataConverter == nil {
		dataConverter = getDefaultDataConverter()
	}
	if failureConverter == nil {
		failureConverter = converter.DefaultFailureConverterInstance
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metricsScope == nil {
		metricsScope = metrics.NewNoopScope()
	}
	return &workflowEnvironmentImpl{
		workflowInfo:       info,
		registry:           registry,
		dataConverter:      dataConverter,
		failureConverter:   failureConverter,
		contextPropagators: contextPropagators,
		logger: logger.With(
			zap.String("WorkflowType", info.WorkflowType.Name),
			zap.String("WorkflowID", info.WorkflowExecution.ID),
			zap.String("RunID", info.WorkflowExecution.RunID),
		),
		metricsScope: metrics.TaggedScope(metricsScope, metrics.TagWorkflowType, info.WorkflowType.Name),

		commandsHelper: newCommandsHelper(),

		pendingTimers:         make(map[uint32]ResultHandler),
		pendingActivities:     make(map[uint32]*activityHandle),
		pendingChildWorkflows: make(map[uint32]*childWorkflowHandle),
		pendingSignals:        make(map[uint32]ResultHandler),
		pendingCancels:        make(map[uint32]ResultHandler),

		signalChannels: make(map[string]Channel),
		queryHandlers:  make(map[string]func(input *Payloads, header map[string]*Payload) (*Payloads, error)),
		updateHandlers: make(map[string]*updateHandler),

		knownPatches: make(map[string]bool),
		patchResults: make(map[string]bool),

		rng: rand.New(rand.NewSource(int64(randomSeed))),
	}
}

// assertNotReadOnly is the determinism guard's mutation half: queries and
// update validators run with readOnly set, and any operation that would
// append a command while they do is a bug in the workflow definition.
func (env *workflowEnvironmentImpl) assertNotReadOnly(operation string) {
	if env.readOnly {
		panic(fmt.Sprintf("%s not allowed in a read-only context (query handler or update validator)", operation))
	}
}

func (env *workflowEnvironmentImpl) GetRegistry() *Registry              { return env.registry }
func (env *workflowEnvironmentImpl) WorkflowInfo() *WorkflowInfo         { return env.workflowInfo }
func (env *workflowEnvironmentImpl) Now() time.Time                      { return env.currentTime }
func (env *workflowEnvironmentImpl) IsReplaying() bool                   { return env.replaying }
func (env *workflowEnvironmentImpl) Random() *rand.Rand                  { return env.rng }
func (env *workflowEnvironmentImpl) GetDataConverter() DataConverter     { return env.dataConverter }
func (env *workflowEnvironmentImpl) GetMetricsScope() tally.Scope        { return env.metricsScope }
func (env *workflowEnvironmentImpl) GetContextPropagators() []ContextPropagator {
	return env.contextPropagators
}

// GetLogger returns a logger that drops entries during replay, so each line
// is emitted once per run rather than once per replay.
func (env *workflowEnvironmentImpl) GetLogger() *zap.Logger {
	if env.replaying {
		return zap.NewNop()
	}
	return env.logger
}

// ---------------------------------------------------------------------------
// Timers
// ---------------------------------------------------------------------------

func (env *workflowEnvironmentImpl) NewTimer(d time.Duration, summary string, callback ResultHandler) uint32 {
	env.assertNotReadOnly("start timer")
	env.timerSeq++
	seq := env.timerSeq
	if d == 0 {
		// A zero-duration timer still generates a fire event, keeping replay
		// stable when code changes a sleep from nonzero to zero.
		d = time.Millisecond
	}
	attrs := &coresdk.StartTimer{Seq: seq, Duration: d, Summary: summary}
	env.commandsHelper.startTimer(attrs, sequenceID(seq))
	env.pendingTimers[seq] = callback
	return seq
}

func (env *workflowEnvironmentImpl) RequestCancelTimer(seq uint32) {
	env.assertNotReadOnly("cancel timer")
	callback, ok := env.pendingTimers[seq]
	if !ok {
		return // already fired or canceled
	}
	delete(env.pendingTimers, seq)
	env.commandsHelper.cancelTimer(sequenceID(seq))
	callback(nil, NewCanceledError("timer canceled"))
}

func (env *workflowEnvironmentImpl) handleTimerFired(seq uint32) {
	callback, ok := env.pendingTimers[seq]
	if !ok {
		// Fire racing a cancellation that was already commanded; drop it.
		env.logger.Debug("fireTimer for unknown timer sequence", zap.Uint32("Seq", seq))
		return
	}
	delete(env.pendingTimers, seq)
	env.commandsHelper.handleTimerResolved(sequenceID(seq))
	callback(nil, nil)
}

// ---------------------------------------------------------------------------
// Activities
// ---------------------------------------------------------------------------

func (env *workflowEnvironmentImpl) ExecuteActivity(params executeActivityParams, callback ResultHandler) uint32 {
	env.assertNotReadOnly("schedule activity")
	env.activitySeq++
	seq := env.activitySeq
	handle := &activityHandle{
		seq:              seq,
		callback:         callback,
		params:           params,
		waitCancellation: params.Options.WaitForCancellation,
	}
	env.scheduleActivityCommand(handle, seq)
	return seq
}

// scheduleActivityCommand issues the ScheduleActivity command for handle
// under seq and registers it for resolution. Local-activity backoff re-entry
// goes through here too, with a freshly allocated sequence number.
func (env *workflowEnvironmentImpl) scheduleActivityCommand(handle *activityHandle, seq uint32) {
	params := handle.params
	activityID := params.Options.ActivityID
	if activityID == "" {
		activityID = sequenceID(seq)
	}
	taskQueue := params.Options.TaskQueue
	if taskQueue == "" {
		taskQueue = env.workflowInfo.TaskQueue
	}
	cancellationType := coresdk.ActivityCancellationTryCancel
	if params.Options.WaitForCancellation {
		cancellationType = coresdk.ActivityCancellationWaitCancellationCompleted
	}
	if params.Options.AbandonOnCancellation {
		cancellationType = coresdk.ActivityCancellationAbandon
	}
	attrs := &coresdk.ScheduleActivity{
		Seq:                    seq,
		ActivityID:             activityID,
		ActivityType:           params.ActivityType,
		TaskQueue:              taskQueue,
		Input:                  params.Input,
		Headers:                params.Header,
		ScheduleToCloseTimeout: params.Options.ScheduleToCloseTimeout,
		ScheduleToStartTimeout: params.Options.ScheduleToStartTimeout,
		StartToCloseTimeout:    params.Options.StartToCloseTimeout,
		HeartbeatTimeout:       params.Options.HeartbeatTimeout,
		RetryPolicy:            params.Options.RetryPolicy,
		IsLocal:                params.IsLocal,
		CancellationType:       cancellationType,
	}
	handle.seq = seq
	handle.activityID = activityID
	env.commandsHelper.scheduleActivityTask(seq, attrs)
	env.pendingActivities[seq] = handle
}

func (env *workflowEnvironmentImpl) RequestCancelActivity(seq uint32) {
	env.assertNotReadOnly("cancel activity")
	handle, ok := env.pendingActivities[seq]
	if !ok {
		return // already resolved
	}
	cancelErr := NewCanceledError("activity canceled")
	if handle.params.IsLocal {
		// Local activities have no server-side cancellation; resolve locally
		// and let the task pump abandon the invocation.
		delete(env.pendingActivities, seq)
		env.commandsHelper.requestCancelActivityTask(handle.activityID)
		handle.callback(nil, cancelErr)
		return
	}
	if handle.params.Options.AbandonOnCancellation {
		// No server-side cancel request; the eventual resolution job finds
		// the continuation already resumed.
		handle.abandoned = true
		handle.callback(nil, cancelErr)
		return
	}
	command := env.commandsHelper.requestCancelActivityTask(handle.activityID)
	if command.isDone() {
		// Never sent; nothing for the server to resolve.
		delete(env.pendingActivities, seq)
		handle.callback(nil, cancelErr)
		return
	}
	if !handle.waitCancellation {
		// tryCancel: the cancel request is on its way, resume now; the
		// eventual resolution job finds the handle marked abandoned.
		handle.abandoned = true
		handle.callback(nil, cancelErr)
	}
}

func (env *workflowEnvironmentImpl) handleActivityResolved(seq uint32, resolution coresdk.ActivityResolution) {
	handle, ok := env.pendingActivities[seq]
	if !ok {
		env.logger.Debug("resolveActivity for unknown activity sequence", zap.Uint32("Seq", seq))
		return
	}
	delete(env.pendingActivities, seq)

	if resolution.Backoff != nil {
		env.handleLocalActivityBackoff(handle, resolution.Backoff)
		return
	}

	env.commandsHelper.handleActivityTaskResolved(handle.activityID)
	switch {
	case resolution.Completed != nil:
		if handle.params.IsLocal && !env.replaying {
			env.commandsHelper.recordLocalActivityMarker(handle.activityID, resolution.Completed.Result)
		}
		handle.callback(resolution.Completed.Result, nil)
	case resolution.Cancelled != nil:
		handle.callback(nil, convertFailureToError(resolution.Cancelled, env.dataConverter))
	case resolution.Failed != nil:
		handle.callback(nil, convertFailureToError(resolution.Failed, env.dataConverter))
	default:
		handle.callback(nil, NewApplicationError("activity resolution carried no outcome", false, nil))
	}
}

// handleLocalActivityBackoff implements the local-activity retry contract:
// the run sleeps on a server-visible timer for the backoff interval, then
// re-issues the schedule command under a fresh sequence number.
func (env *workflowEnvironmentImpl) handleLocalActivityBackoff(handle *activityHandle, backoff *coresdk.ActivityResolutionBackoff) {
	env.commandsHelper.handleActivityTaskResolved(handle.activityID)
	env.NewTimer(backoff.Duration, "local activity backoff", func(result *Payloads, err error) {
		if err != nil {
			handle.callback(nil, err)
			return
		}
		env.activitySeq++
		env.scheduleActivityCommand(handle, env.activitySeq)
	})
}

// ---------------------------------------------------------------------------
// Child workflows and external workflows
// ---------------------------------------------------------------------------

func (env *workflowEnvironmentImpl) ExecuteChildWorkflow(
	params executeChildWorkflowParams,
	startedCallback func(execution WorkflowExecution, err error),
	callback ResultHandler,
) uint32 {
	env.assertNotReadOnly("start child workflow")
	env.childWorkflowSeq++
	seq := env.childWorkflowSeq

	options := params.Options
	workflowID := options.WorkflowID
	if workflowID == "" {
		workflowID = env.workflowInfo.WorkflowExecution.RunID + "_" + sequenceID(seq)
	}
	namespace := options.Namespace
	if namespace == "" {
		namespace = env.workflowInfo.Namespace
	}
	taskQueue := options.TaskQueue
	if taskQueue == "" {
		taskQueue = env.workflowInfo.TaskQueue
	}
	cancellationType := coresdk.ChildWorkflowCancellationTryCancel
	if options.WaitForCancellation {
		cancellationType = coresdk.ChildWorkflowCancellationWaitCancellationCompleted
	}
	attrs := &coresdk.StartChildWorkflow{
		Seq:                      seq,
		Namespace:                namespace,
		WorkflowID:               workflowID,
		WorkflowType:             params.WorkflowType,
		TaskQueue:                taskQueue,
		Input:                    params.Input,
		Headers:                  params.Header,
		WorkflowExecutionTimeout: options.WorkflowExecutionTimeout,
		WorkflowRunTimeout:       options.WorkflowRunTimeout,
		WorkflowTaskTimeout:      options.WorkflowTaskTimeout,
		RetryPolicy:              options.RetryPolicy,
		CronSchedule:             options.CronSchedule,
		Memo:                     options.Memo,
		SearchAttributes:         options.SearchAttributes,
		ParentClosePolicy:        options.ParentClosePolicy,
		CancellationType:         cancellationType,
	}
	env.commandsHelper.startChildWorkflowExecution(attrs)
	env.pendingChildWorkflows[seq] = &childWorkflowHandle{
		seq:             seq,
		workflowID:      workflowID,
		startedCallback: startedCallback,
		callback:        callback,
	}
	return seq
}

func (env *workflowEnvironmentImpl) RequestCancelChildWorkflow(seq uint32) {
	env.assertNotReadOnly("cancel child workflow")
	handle, ok := env.pendingChildWorkflows[seq]
	if !ok {
		return
	}
	command := env.commandsHelper.requestCancelChildWorkflow(handle.workflowID)
	if command.isDone() {
		// Start command suppressed before it was ever sent.
		delete(env.pendingChildWorkflows, seq)
		cancelErr := NewCanceledError("child workflow canceled before scheduled")
		if !handle.started {
			handle.startedCallback(WorkflowExecution{}, cancelErr)
		}
		handle.callback(nil, cancelErr)
	}
}

func (env *workflowEnvironmentImpl) handleChildWorkflowStartResolved(job *coresdk.ResolveChildWorkflowExecutionStart) {
	handle, ok := env.pendingChildWorkflows[job.Seq]
	if !ok {
		env.logger.Debug("resolveChildWorkflowStart for unknown sequence", zap.Uint32("Seq", job.Seq))
		return
	}
	switch {
	case job.AlreadyExists != nil:
		delete(env.pendingChildWorkflows, job.Seq)
		env.commandsHelper.handleStartChildWorkflowExecutionFailed(handle.workflowID)
		err := &ChildWorkflowExecutionAlreadyStartedError{WorkflowID: job.AlreadyExists.WorkflowID}
		handle.startedCallback(WorkflowExecution{}, err)
		handle.callback(nil, err)
	case job.Cancelled != nil:
		delete(env.pendingChildWorkflows, job.Seq)
		env.commandsHelper.handleStartChildWorkflowExecutionFailed(handle.workflowID)
		err := convertFailureToError(job.Cancelled, env.dataConverter)
		handle.startedCallback(WorkflowExecution{}, err)
		handle.callback(nil, err)
	default:
		handle.started = true
		env.commandsHelper.handleChildWorkflowExecutionStarted(handle.workflowID)
		handle.startedCallback(WorkflowExecution{ID: handle.workflowID, RunID: job.RunID}, nil)
	}
}

func (env *workflowEnvironmentImpl) handleChildWorkflowResolved(seq uint32, result coresdk.ChildWorkflowResult) {
	handle, ok := env.pendingChildWorkflows[seq]
	if !ok {
		env.logger.Debug("resolveChildWorkflowExecution for unknown sequence", zap.Uint32("Seq", seq))
		return
	}
	delete(env.pendingChildWorkflows, seq)
	switch {
	case result.Completed != nil:
		env.commandsHelper.handleChildWorkflowExecutionResolved(handle.workflowID)
		handle.callback(result.Completed, nil)
	case result.Cancelled != nil:
		env.commandsHelper.handleChildWorkflowExecutionCanceled(handle.workflowID)
		handle.callback(nil, convertFailureToError(result.Cancelled, env.dataConverter))
	case result.Failed != nil:
		env.commandsHelper.handleChildWorkflowExecutionResolved(handle.workflowID)
		handle.callback(nil, convertFailureToError(result.Failed, env.dataConverter))
	default:
		env.commandsHelper.handleChildWorkflowExecutionResolved(handle.workflowID)
		handle.callback(nil, NewApplicationError("child workflow resolution carried no outcome", false, nil))
	}
}

func (env *workflowEnvironmentImpl) SignalExternalWorkflow(namespace, workflowID, runID, signalName string, input *Payloads, header map[string]*Payload, callback ResultHandler) {
	env.assertNotReadOnly("signal external workflow")
	env.signalSeq++
	seq := env.signalSeq
	attrs := &coresdk.SignalExternalWorkflow{
		Seq:        seq,
		Namespace:  namespace,
		WorkflowID: workflowID,
		RunID:      runID,
		SignalName: signalName,
		Input:      input,
		Headers:    header,
	}
	env.commandsHelper.signalExternalWorkflowExecution(seq, attrs)
	env.pendingSignals[seq] = callback
}

func (env *workflowEnvironmentImpl) handleSignalExternalResolved(seq uint32, failure *converter.Failure) {
	callback, ok := env.pendingSignals[seq]
	if !ok {
		env.logger.Debug("resolveSignalExternalWorkflow for unknown sequence", zap.Uint32("Seq", seq))
		return
	}
	delete(env.pendingSignals, seq)
	env.commandsHelper.handleSignalExternalWorkflowExecutionResolved(seq)
	if failure != nil {
		callback(nil, convertFailureToError(failure, env.dataConverter))
		return
	}
	callback(nil, nil)
}

func (env *workflowEnvironmentImpl) RequestCancelExternalWorkflow(namespace, workflowID, runID, reason string, callback ResultHandler) {
	env.assertNotReadOnly("cancel external workflow")
	env.cancelSeq++
	seq := env.cancelSeq
	attrs := &coresdk.CancelExternalWorkflow{
		Seq:        seq,
		Namespace:  namespace,
		WorkflowID: workflowID,
		RunID:      runID,
		Reason:     reason,
	}
	env.commandsHelper.requestCancelExternalWorkflowExecution(seq, attrs)
	env.pendingCancels[seq] = callback
}

func (env *workflowEnvironmentImpl) handleCancelExternalResolved(seq uint32, failure *converter.Failure) {
	callback, ok := env.pendingCancels[seq]
	if !ok {
		env.logger.Debug("resolveRequestCancelExternalWorkflow for unknown sequence", zap.Uint32("Seq", seq))
		return
	}
	delete(env.pendingCancels, seq)
	env.commandsHelper.handleRequestCancelExternalWorkflowExecutionResolved(seq)
	if failure != nil {
		callback(nil, convertFailureToError(failure, env.dataConverter))
		return
	}
	callback(nil, nil)
}

// ---------------------------------------------------------------------------
// Signals, queries, updates
// ---------------------------------------------------------------------------

func (env *workflowEnvironmentImpl) GetSignalChannel(ctx Context, signalName string) Channel {
	return env.signalChannel(signalName)
}

func (env *workflowEnvironmentImpl) signalChannel(signalName string) Channel {
	if ch, ok := env.signalChannels[signalName]; ok {
		return ch
	}
	ch := &channelImpl{
		name:       "signal " + signalName,
		size:       defaultSignalChannelSize,
		dispatcher: env.dispatcher,
	}
	env.signalChannels[signalName] = ch
	return ch
}

// handleSignalReceived buffers a delivered signal into its channel; signals
// that overflow the buffer are counted and dropped rather than wedging the
// run.
func (env *workflowEnvironmentImpl) handleSignalReceived(job *coresdk.SignalWorkflow) {
	ch := env.signalChannel(job.SignalName).(*channelImpl)
	if !ch.trySend(newEncodedValues(job.Input, env.dataConverter)) {
		env.metricsScope.Counter(metrics.CorruptedSignalsCounter).Inc(1)
		env.logger.Warn("dropping signal: channel buffer full", zap.String("SignalName", job.SignalName))
	}
}

func (env *workflowEnvironmentImpl) RegisterQueryHandler(queryType string, handler func(input *Payloads, header map[string]*Payload) (*Payloads, error)) error {
	if _, ok := env.queryHandlers[queryType]; ok {
		return fmt.Errorf("query handler already registered for %q", queryType)
	}
	env.queryHandlers[queryType] = handler
	return nil
}

func (env *workflowEnvironmentImpl) RegisterUpdateHandler(updateName string, validator func(input *Payloads) error, handler func(ctx Context, input *Payloads) (*Payloads, error)) error {
	if _, ok := env.updateHandlers[updateName]; ok {
		return fmt.Errorf("update handler already registered for %q", updateName)
	}
	env.updateHandlers[updateName] = &updateHandler{name: updateName, validator: validator, handler: handler}
	return nil
}

// handleQuery runs a registered query handler against frozen state and
// enqueues the RespondToQuery command. The freeze makes any command append
// inside the handler a panic, which surfaces as a query failure rather than
// corrupted history.
func (env *workflowEnvironmentImpl) handleQuery(job *coresdk.QueryWorkflow) {
	result, err := func() (result *Payloads, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("query handler panic: %v", r)
			}
		}()
		if job.QueryType == QueryTypeStackTrace {
			return encodeArgs(env.dataConverter, []interface{}{env.dispatcher.StackTrace()})
		}
		if job.QueryType == QueryTypeCurrentDetails {
			return encodeArgs(env.dataConverter, []interface{}{env.currentDetails})
		}
		handler, ok := env.queryHandlers[job.QueryType]
		if !ok {
			return nil, fmt.Errorf("unknown query type %q", job.QueryType)
		}
		env.readOnly = true
		defer func() { env.readOnly = false }()
		return handler(job.Arguments, job.Headers)
	}()

	if err != nil {
		env.commandsHelper.respondToQuery(job.QueryID, nil, env.errorToFailure(err))
		return
	}
	env.commandsHelper.respondToQuery(job.QueryID, result, nil)
}

// handleUpdate drives one update through validate -> accept -> handle ->
// complete/reject. The validator runs frozen; the handler runs as a fresh
// coroutine and may suspend across activations like any workflow code.
func (env *workflowEnvironmentImpl) handleUpdate(job *coresdk.DoUpdate) {
	handler, ok := env.updateHandlers[job.UpdateName]
	if !ok {
		env.commandsHelper.updateRejected(job.ID, env.errorToFailure(fmt.Errorf("unknown update %q", job.UpdateName)))
		return
	}

	if job.RunValidator && handler.validator != nil {
		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("update validator panic: %v", r)
				}
			}()
			env.readOnly = true
			defer func() { env.readOnly = false }()
			return handler.validator(job.Arguments)
		}()
		if err != nil {
			env.commandsHelper.updateRejected(job.ID, env.errorToFailure(err))
			return
		}
	}

	env.commandsHelper.updateAccepted(job.ID)
	env.handlersInFlight++
	updateID := job.ID
	input := job.Arguments
	GoNamed(env.rootCtx, "update "+job.UpdateName, func(ctx Context) {
		defer func() { env.handlersInFlight-- }()
		result, err := handler.handler(ctx, input)
		if err != nil {
			env.commandsHelper.updateRejected(updateID, env.errorToFailure(err))
			return
		}
		env.commandsHelper.updateCompleted(updateID, result)
	})
}

// ---------------------------------------------------------------------------
// Patches, memo, search attributes, details
// ---------------------------------------------------------------------------

func (env *workflowEnvironmentImpl) Patched(patchID string, deprecated bool) bool {
	if result, ok := env.patchResults[patchID]; ok {
		return result
	}
	use := true
	if env.replaying {
		use = env.knownPatches[patchID]
	}
	if use {
		env.assertNotReadOnly("set patch marker")
		env.commandsHelper.setPatchMarker(patchID, deprecated)
	}
	env.patchResults[patchID] = use
	return use
}

func (env *workflowEnvironmentImpl) handleNotifyHasPatch(patchID string) {
	env.knownPatches[patchID] = true
}

func (env *workflowEnvironmentImpl) UpsertSearchAttributes(attributes map[string]*Payload) error {
	env.assertNotReadOnly("upsert search attributes")
	if len(attributes) == 0 {
		return fmt.Errorf("upsert search attributes requires at least one attribute")
	}
	env.upsertSeq++
	env.commandsHelper.upsertSearchAttributes(sequenceID(env.upsertSeq), attributes)
	if env.workflowInfo.SearchAttributes == nil {
		env.workflowInfo.SearchAttributes = make(map[string]*Payload, len(attributes))
	}
	for k, v := range attributes {
		env.workflowInfo.SearchAttributes[k] = v
	}
	return nil
}

func (env *workflowEnvironmentImpl) UpsertMemo(memo map[string]*Payload) error {
	env.assertNotReadOnly("upsert memo")
	if len(memo) == 0 {
		return fmt.Errorf("upsert memo requires at least one entry")
	}
	env.upsertSeq++
	env.commandsHelper.upsertMemo(sequenceID(env.upsertSeq), memo)
	if env.workflowInfo.Memo == nil {
		env.workflowInfo.Memo = make(map[string]*Payload, len(memo))
	}
	for k, v := range memo {
		env.workflowInfo.Memo[k] = v
	}
	return nil
}

func (env *workflowEnvironmentImpl) SetCurrentDetails(details string) {
	env.currentDetails = details
}

func (env *workflowEnvironmentImpl) GetCurrentDetails() string {
	return env.currentDetails
}

func (env *workflowEnvironmentImpl) HandlersInFlight() int {
	return env.handlersInFlight
}

// ---------------------------------------------------------------------------
// Completion
// ---------------------------------------------------------------------------

func (env *workflowEnvironmentImpl) Complete(result *Payloads, err error) {
	if env.completion.completed {
		return
	}
	env.completion = workflowCompletionState{completed: true, result: result, err: err}
}

// terminalCommand renders the completion state as the turn's final command.
func (env *workflowEnvironmentImpl) terminalCommand() *coresdk.WorkflowCommand {
	if !env.completion.completed {
		return nil
	}
	err := env.completion.err
	if err == nil {
		return &coresdk.WorkflowCommand{
			CompleteWorkflow: &coresdk.CompleteWorkflow{Result: env.completion.result},
		}
	}
	var continueAsNew *ContinueAsNewError
	if errors.As(err, &continueAsNew) {
		params := continueAsNew.params
		return &coresdk.WorkflowCommand{
			ContinueAsNewWorkflow: &coresdk.ContinueAsNewWorkflow{
				WorkflowType:        params.WorkflowType.Name,
				TaskQueue:           params.TaskQueue,
				Arguments:           params.Input,
				Headers:             headerFields(params.Header),
				WorkflowRunTimeout:  params.WorkflowRunTimeout,
				WorkflowTaskTimeout: params.WorkflowTaskTimeout,
				RetryPolicy:         params.RetryPolicy,
				Memo:                params.Memo,
				SearchAttributes:    params.SearchAttributes,
			},
		}
	}
	return &coresdk.WorkflowCommand{
		FailWorkflow: &coresdk.FailWorkflow{Failure: env.errorToFailure(err)},
	}
}

func (env *workflowEnvironmentImpl) errorToFailure(err error) *converter.Failure {
	return env.failureConverter.EncodeFailure(convertErrorToFailure(err, env.dataConverter), env.dataConverter)
}
