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
	"container/list"
	"fmt"
	"math/rand"
	"reflect"
	"sync"
	"time"

	"github.com/uber-go/tally"
	"go.uber.org/zap"

	"go.flowbridge.dev/sdk/converter"
	"go.flowbridge.dev/sdk/internal/common/metrics"
	"go.flowbridge.dev/sdk/internal/coresdk"
)

const defaultWorkflowCacheSize = 600

type (
	// WorkflowTaskHandler turns one server-delivered activation into one
	// completion, hosting every live workflow instance this worker owns.
	WorkflowTaskHandler interface {
		ProcessWorkflowActivation(activation *coresdk.WorkflowActivation) *coresdk.WorkflowActivationCompletion
	}

	workflowTaskHandlerParams struct {
		Namespace          string
		TaskQueue          string
		Identity           string
		Registry           *Registry
		DataConverter      DataConverter
		FailureConverter   converter.FailureConverter
		ContextPropagators []ContextPropagator
		Logger             *zap.Logger
		MetricsScope       tally.Scope
		CacheSize          int
	}

	// workflowExecutionContextImpl hosts one running workflow instance: its
	// environment, its dispatcher, and the root cancellation scope. It lives
	// in the worker's cache from initializeWorkflow until completion or
	// eviction.
	workflowExecutionContextImpl struct {
		runID      string
		env        *workflowEnvironmentImpl
		dispatcher *dispatcherImpl
		rootCancel *cancelState
		destroyed  bool
	}

	workflowTaskHandlerImpl struct {
		namespace          string
		taskQueue          string
		identity           string
		registry           *Registry
		dataConverter      DataConverter
		failureConverter   converter.FailureConverter
		contextPropagators []ContextPropagator
		logger             *zap.Logger
		metricsScope       tally.Scope
		cache              *workflowCache
	}

	// workflowCache is the worker-wide bounded LRU of live workflow
	// instances. Evicting an instance tears it down cooperatively before
	// the slot is released.
	workflowCache struct {
		mu       sync.Mutex
		capacity int
		order    *list.List // front = most recently used
		entries  map[string]*list.Element
	}

	cacheEntry struct {
		runID string
		wc    *workflowExecutionContextImpl
	}
)

func newWorkflowCache(capacity int) *workflowCache {
	if capacity <= 0 {
		capacity = defaultWorkflowCacheSize
	}
	return &workflowCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

func (c *workflowCache) get(runID string) *workflowExecutionContextImpl {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[runID]
	if !ok {
		return nil
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheEntry).wc
}

// put inserts wc and returns the instance evicted to make room, if any. The
// caller tears the evicted instance down outside the cache lock.
func (c *workflowCache) put(runID string, wc *workflowExecutionContextImpl) *workflowExecutionContextImpl {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[runID]; ok {
		c.order.MoveToFront(elem)
		elem.Value.(*cacheEntry).wc = wc
		return nil
	}
	c.entries[runID] = c.order.PushFront(&cacheEntry{runID: runID, wc: wc})
	if c.order.Len() <= c.capacity {
		return nil
	}
	oldest := c.order.Back()
	c.order.Remove(oldest)
	entry := oldest.Value.(*cacheEntry)
	delete(c.entries, entry.runID)
	return entry.wc
}

func (c *workflowCache) remove(runID string) *workflowExecutionContextImpl {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[runID]
	if !ok {
		return nil
	}
	c.order.Remove(elem)
	delete(c.entries, runID)
	return elem.Value.(*cacheEntry).wc
}

func (c *workflowCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func newWorkflowTaskHandler(params workflowTaskHandlerParams) *workflowTaskHandlerImpl {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	scope := params.MetricsScope
	if scope == nil {
		scope = metrics.NewNoopScope()
	}
	if params.DataConverter == nil {
		params.DataConverter = getDefaultDataConverter()
	}
	if params.FailureConverter == nil {
		params.FailureConverter = converter.DefaultFailureConverterInstance
	}
	return &workflowTaskHandlerImpl{
		namespace:          params.Namespace,
		taskQueue:          params.TaskQueue,
		identity:           params.Identity,
		registry:           params.Registry,
		dataConverter:      params.DataConverter,
		failureConverter:   params.FailureConverter,
		contextPropagators: params.ContextPropagators,
		logger:             logger,
		metricsScope:       scope,
		cache:              newWorkflowCache(params.CacheSize),
	}
}

// ProcessWorkflowActivation is the activation drive loop: look up (or
// create) the instance, apply every job in activation order, run the
// coroutines to a fixed point, and harvest the buffered commands. A panic
// anywhere in the turn (including the command ledger's illegal-state panics
// on nondeterministic code) fails the workflow task, never the process; the
// server re-delivers until a replay with corrected code succeeds.
func (wth *workflowTaskHandlerImpl) ProcessWorkflowActivation(activation *coresdk.WorkflowActivation) (completion *coresdk.WorkflowActivationCompletion) {
	startTime := time.Now()
	defer func() {
		wth.metricsScope.Timer(metrics.WorkflowTaskExecutionLatency).Record(time.Since(startTime))
		if r := recover(); r != nil {
			wth.logger.Error("workflow task panic",
				zap.String("RunID", activation.RunID),
				zap.Any("PanicValue", r))
			if wc := wth.cache.remove(activation.RunID); wc != nil {
				wc.destroy()
			}
			completion = failedCompletion(activation.RunID, fmt.Errorf("workflow task panic: %v", r), wth.dataConverter)
		}
	}()

	wc := wth.cache.get(activation.RunID)

	// Split the job batch: queries run against the state left behind by
	// everything else in the activation, and removeFromCache ends the turn.
	var queries []*coresdk.QueryWorkflow
	var removeFromCache *coresdk.RemoveFromCache
	for _, job := range activation.Jobs {
		switch {
		case job.QueryWorkflow != nil:
			queries = append(queries, job.QueryWorkflow)
		case job.RemoveFromCache != nil:
			removeFromCache = job.RemoveFromCache
		case job.InitializeWorkflow != nil:
			if wc != nil {
				return failedCompletion(activation.RunID, fmt.Errorf("initializeWorkflow for already-initialized run %s", activation.RunID), wth.dataConverter)
			}
			var err error
			wc, err = wth.createWorkflowInstance(activation.RunID, job.InitializeWorkflow)
			if err != nil {
				return failedCompletion(activation.RunID, err, wth.dataConverter)
			}
			if evicted := wth.cache.put(activation.RunID, wc); evicted != nil {
				evicted.destroy()
			}
		}
	}

	if wc == nil {
		if removeFromCache != nil {
			// Nothing cached; acknowledge the eviction.
			return &coresdk.WorkflowActivationCompletion{RunID: activation.RunID, Success: &coresdk.Success{}}
		}
		return failedCompletion(activation.RunID, fmt.Errorf("activation for run %s not in cache and no initializeWorkflow job", activation.RunID), wth.dataConverter)
	}

	env := wc.env
	if !activation.Timestamp.IsZero() {
		env.currentTime = activation.Timestamp
	}
	env.replaying = activation.IsReplaying
	env.historyLength = activation.HistoryLength
	env.historySizeBytes = activation.HistorySizeBytes

	for _, job := range activation.Jobs {
		wc.applyJob(job)
	}

	if removeFromCache != nil {
		wth.cache.remove(activation.RunID)
		wc.destroy()
		return &coresdk.WorkflowActivationCompletion{RunID: activation.RunID, Success: &coresdk.Success{}}
	}

	if err := wc.dispatcher.ExecuteUntilAllBlocked(); err != nil {
		wth.cache.remove(activation.RunID)
		wc.destroy()
		return failedCompletion(activation.RunID, err, wth.dataConverter)
	}

	for _, query := range queries {
		env.handleQuery(query)
	}

	commands := env.commandsHelper.getCommands(true)
	if terminal := env.terminalCommand(); terminal != nil {
		commands = append(commands, *terminal)
		wth.cache.remove(activation.RunID)
		wc.destroy()
	}
	return &coresdk.WorkflowActivationCompletion{
		RunID:   activation.RunID,
		Success: &coresdk.Success{Commands: commands},
	}
}

func failedCompletion(runID string, err error, dc DataConverter) *coresdk.WorkflowActivationCompletion {
	return &coresdk.WorkflowActivationCompletion{
		RunID:  runID,
		Failed: convertErrorToFailure(err, dc),
	}
}

func (wth *workflowTaskHandlerImpl) createWorkflowInstance(runID string, init *coresdk.InitializeWorkflow) (*workflowExecutionContextImpl, error) {
	workflowFn, ok := wth.registry.getWorkflow(init.WorkflowType)
	if !ok {
		return nil, fmt.Errorf("workflow type %q is not registered on this worker. Supported types: %v",
			init.WorkflowType, wth.registry.getRegisteredWorkflowTypes())
	}

	taskQueue := init.TaskQueue
	if taskQueue == "" {
		taskQueue = wth.taskQueue
	}
	info := &WorkflowInfo{
		WorkflowExecution:        WorkflowExecution{ID: init.WorkflowID, RunID: runID},
		WorkflowType:             WorkflowType{Name: init.WorkflowType},
		Namespace:                wth.namespace,
		TaskQueue:                taskQueue,
		Attempt:                  init.Attempt,
		WorkflowStartTime:        init.StartTime,
		CronSchedule:             init.CronSchedule,
		ContinuedExecutionRunID:  init.ContinuedFromRunID,
		WorkflowExecutionTimeout: init.WorkflowExecutionTimeout,
		WorkflowRunTimeout:       init.WorkflowRunTimeout,
		WorkflowTaskTimeout:      init.WorkflowTaskTimeout,
		RetryPolicy:              init.RetryPolicy,
		Memo:                     init.Memo,
		SearchAttributes:         init.SearchAttributes,
		Headers:                  init.Headers,
		lastCompletionResult:     init.LastCompletionResult,
		lastFailure:              init.LastFailure,
	}

	env := newWorkflowEnvironment(
		info, wth.registry, wth.dataConverter, wth.failureConverter,
		wth.contextPropagators, wth.logger, wth.metricsScope, init.RandomSeed)
	env.currentTime = init.StartTime

	envOptions := &WorkflowOptions{
		Namespace:                wth.namespace,
		WorkflowID:               init.WorkflowID,
		TaskQueue:                taskQueue,
		WorkflowExecutionTimeout: init.WorkflowExecutionTimeout,
		WorkflowRunTimeout:       init.WorkflowRunTimeout,
		WorkflowTaskTimeout:      init.WorkflowTaskTimeout,
		RetryPolicy:              init.RetryPolicy,
		CronSchedule:             init.CronSchedule,
		Memo:                     init.Memo,
		SearchAttributes:         init.SearchAttributes,
		DataConverter:            env.dataConverter,
		ContextPropagators:       wth.contextPropagators,
	}

	baseCtx := WithValue(Background(), workflowEnvironmentContextKey, WorkflowEnvironment(env))
	baseCtx = WithValue(baseCtx, workflowEnvOptionsContextKey, envOptions)
	if len(init.Headers) > 0 {
		header := &Header{Fields: init.Headers}
		for _, propagator := range wth.contextPropagators {
			extracted, err := propagator.Extract(baseCtx, header)
			if err != nil {
				return nil, fmt.Errorf("extract header: %w", err)
			}
			baseCtx = extracted
		}
	}

	dispatcher := &dispatcherImpl{}
	env.dispatcher = dispatcher
	rootCancel := &cancelState{channel: &channelImpl{name: "cancel", dispatcher: dispatcher}}
	baseCtx = WithValue(baseCtx, cancelStateContextKey, rootCancel)

	wc := &workflowExecutionContextImpl{
		runID:      runID,
		env:        env,
		dispatcher: dispatcher,
		rootCancel: rootCancel,
	}

	input := init.Arguments
	rootCtx := dispatcher.newCoroutine(baseCtx, "root", func(ctx Context) {
		result, err := executeWorkflowFunction(ctx, workflowFn, input, env.dataConverter)
		env.Complete(result, err)
	})
	env.rootCtx = rootCtx
	return wc, nil
}

// applyJob routes one activation job to its state-machine entry point.
// Queries, initialization, and eviction are handled by the caller; this
// covers the resolution and delivery jobs.
func (wc *workflowExecutionContextImpl) applyJob(job coresdk.WorkflowActivationJob) {
	env := wc.env
	switch {
	case job.FireTimer != nil:
		env.handleTimerFired(job.FireTimer.Seq)
	case job.ResolveActivity != nil:
		env.handleActivityResolved(job.ResolveActivity.Seq, job.ResolveActivity.Result)
	case job.ResolveChildWorkflowExecutionStart != nil:
		env.handleChildWorkflowStartResolved(job.ResolveChildWorkflowExecutionStart)
	case job.ResolveChildWorkflowExecution != nil:
		env.handleChildWorkflowResolved(job.ResolveChildWorkflowExecution.Seq, job.ResolveChildWorkflowExecution.Result)
	case job.ResolveSignalExternalWorkflow != nil:
		env.handleSignalExternalResolved(job.ResolveSignalExternalWorkflow.Seq, job.ResolveSignalExternalWorkflow.Failure)
	case job.ResolveRequestCancelExternalWorkflow != nil:
		env.handleCancelExternalResolved(job.ResolveRequestCancelExternalWorkflow.Seq, job.ResolveRequestCancelExternalWorkflow.Failure)
	case job.SignalWorkflow != nil:
		env.handleSignalReceived(job.SignalWorkflow)
	case job.CancelWorkflow != nil:
		wc.handleCancelWorkflow(job.CancelWorkflow.Reason)
	case job.DoUpdate != nil:
		env.handleUpdate(job.DoUpdate)
	case job.UpdateRandomSeed != nil:
		env.rng = newDeterministicRand(job.UpdateRandomSeed.RandomSeed)
	case job.NotifyHasPatch != nil:
		env.handleNotifyHasPatch(job.NotifyHasPatch.PatchID)
	}
}

func (wc *workflowExecutionContextImpl) handleCancelWorkflow(reason string) {
	wc.env.cancelRequested = true
	wc.rootCancel.cancel(NewCanceledError(reason))
}

// destroy abandons every still-parked coroutine so its goroutine unwinds
// instead of leaking; safe to call more than once.
func (wc *workflowExecutionContextImpl) destroy() {
	if wc.destroyed {
		return
	}
	wc.destroyed = true
	wc.dispatcher.Close()
}

// executeWorkflowFunction invokes the registered workflow function with
// decoded arguments; fn's first parameter must be the workflow Context.
func executeWorkflowFunction(ctx Context, fn WorkflowFunc, input *Payloads, dc DataConverter) (*Payloads, error) {
	fnType := reflect.TypeOf(fn)
	if fnType == nil || fnType.Kind() != reflect.Func {
		return nil, fmt.Errorf("workflow must be a function, got %T", fn)
	}
	if fnType.NumIn() == 0 || fnType.In(0) != contextInterface {
		return nil, fmt.Errorf("workflow function's first parameter must be workflow Context, got %v", fnType)
	}
	args, err := decodeArgsToValues(dc, fnType, input, 1)
	if err != nil {
		return nil, NewApplicationError(fmt.Sprintf("unable to decode workflow input: %v", err), true, err)
	}
	callArgs := append([]reflect.Value{reflect.ValueOf(ctx)}, args...)
	results := reflect.ValueOf(fn).Call(callArgs)
	return serializeResults(dc, results)
}

// newDeterministicRand returns the run's PRNG for a given server seed; a
// plain seeded source, never the process-global one, so draws replay
// identically.
func newDeterministicRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewSource(int64(seed)))
}
