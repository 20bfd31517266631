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
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/uber-go/tally"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"go.flowbridge.dev/sdk/internal/common/backoff"
	"go.flowbridge.dev/sdk/internal/common/metrics"
	"go.flowbridge.dev/sdk/internal/coresdk"
	"go.flowbridge.dev/sdk/internal/serviceerror"
)

const (
	defaultHeartbeatThrottleInterval = 30 * time.Second
	defaultMaxHeartbeatThrottle      = 60 * time.Second
	heartbeatTimeoutRatio            = 0.8

	pollRetryInitialInterval = 200 * time.Millisecond
	pollRetryMaxInterval     = 10 * time.Second
)

type (
	// WorkerBridge is the SDK-bridge surface the worker runtime consumes:
	// activation/completion streams for workflow tasks, start/cancel streams
	// for activity tasks, and the heartbeat channel. The bridge owns history
	// reconciliation; implementations may live in-process or across an
	// in-process channel to a native core.
	WorkerBridge interface {
		PollWorkflowActivation(ctx context.Context) (*coresdk.WorkflowActivation, error)
		CompleteWorkflowActivation(ctx context.Context, completion *coresdk.WorkflowActivationCompletion) error
		PollActivityTask(ctx context.Context) (*coresdk.PolledActivityTask, error)
		CompleteActivityTask(ctx context.Context, completion *coresdk.ActivityTaskCompletion) error
		RecordActivityHeartbeat(ctx context.Context, heartbeat *coresdk.ActivityHeartbeat) (*coresdk.ActivityHeartbeatResponse, error)
	}

	baseWorkerOptions struct {
		pollerCount       int
		maxConcurrentTask int
		tasksPerSecond    float64
		shutdownTimeout   time.Duration
		workerType        string
		identity          string
		logger            *zap.Logger
		metricsScope      tally.Scope
	}

	// baseWorker is the shared poll/dispatch pump: pollerCount goroutines
	// long-poll for tasks, a slot semaphore bounds concurrent task
	// processing, and a token bucket optionally throttles dispatch rate.
	baseWorker struct {
		options     baseWorkerOptions
		pollFunc    func(ctx context.Context) (interface{}, error)
		processFunc func(task interface{})

		pollCtx    context.Context
		pollCancel context.CancelFunc
		stopC      chan struct{}
		stopOnce   sync.Once
		stopped    atomic.Bool
		pollerWG   sync.WaitGroup
		taskWG     sync.WaitGroup
		slotsC     chan struct{}
		limiter    *rate.Limiter
		retrier    *backoff.ConcurrentRetrier
	}

	workflowTaskPoller struct {
		bridge      WorkerBridge
		taskHandler WorkflowTaskHandler
		queue       *bridgeClientQueue
		logger      *zap.Logger
		scope       tally.Scope
	}

	activityTaskPoller struct {
		bridge   WorkerBridge
		handler  *activityTaskHandlerImpl
		queue    *bridgeClientQueue
		logger   *zap.Logger
		scope    tally.Scope
		clock    clock.Clock
		identity string

		defaultHeartbeatThrottle time.Duration
		maxHeartbeatThrottle     time.Duration

		mu      sync.Mutex
		running map[string]*runningActivity
	}

	runningActivity struct {
		env   *activityEnvironment
		doneC chan struct{}
	}

	// heartbeatThrottle coalesces heartbeat records so that at most one RPC
	// goes out per throttle interval: the first record in a quiet period is
	// sent immediately, later ones overwrite a pending slot flushed when the
	// interval elapses.
	heartbeatThrottle struct {
		mu          sync.Mutex
		clock       clock.Clock
		interval    time.Duration
		send        func(details *Payloads)
		pending     *Payloads
		hasPending  bool
		timerActive bool
		stopped     bool
	}

	activityTaskHandlerImpl struct {
		registry      *Registry
		dataConverter DataConverter
		logger        *zap.Logger
		scope         tally.Scope
		userContext   context.Context
	}
)

func newBaseWorker(options baseWorkerOptions, pollFunc func(ctx context.Context) (interface{}, error), processFunc func(task interface{})) *baseWorker {
	if options.pollerCount <= 0 {
		options.pollerCount = 2
	}
	if options.maxConcurrentTask <= 0 {
		options.maxConcurrentTask = 1000
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if options.tasksPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(options.tasksPerSecond), 1)
	}
	pollCtx, pollCancel := context.WithCancel(context.Background())
	policy := backoff.NewRetryPolicy(pollRetryInitialInterval)
	policy.MaximumInterval = pollRetryMaxInterval
	return &baseWorker{
		options:     options,
		pollFunc:    pollFunc,
		processFunc: processFunc,
		pollCtx:     pollCtx,
		pollCancel:  pollCancel,
		stopC:       make(chan struct{}),
		slotsC:      make(chan struct{}, options.maxConcurrentTask),
		limiter:     limiter,
		retrier:     backoff.NewConcurrentRetrier(policy),
	}
}

func (bw *baseWorker) Start() {
	for i := 0; i < bw.options.pollerCount; i++ {
		bw.pollerWG.Add(1)
		go bw.runPoller()
	}
}

func (bw *baseWorker) runPoller() {
	defer bw.pollerWG.Done()
	for {
		select {
		case <-bw.stopC:
			return
		case bw.slotsC <- struct{}{}:
		}
		if err := bw.limiter.Wait(bw.pollCtx); err != nil {
			<-bw.slotsC
			return
		}
		bw.retrier.Throttle()
		task, err := bw.pollFunc(bw.pollCtx)
		if err != nil {
			<-bw.slotsC
			if bw.isStopping() || errors.Is(err, context.Canceled) {
				return
			}
			bw.retrier.Failed()
			bw.options.logger.Warn("poll failed", zap.String("WorkerType", bw.options.workerType), zap.Error(err))
			continue
		}
		bw.retrier.Succeeded()
		if task == nil {
			<-bw.slotsC
			continue
		}
		bw.taskWG.Add(1)
		go func() {
			defer func() {
				<-bw.slotsC
				bw.taskWG.Done()
			}()
			bw.processFunc(task)
		}()
	}
}

func (bw *baseWorker) isStopping() bool {
	return bw.stopped.Load()
}

// Stop halts polling immediately and waits up to the shutdown timeout for
// in-flight tasks; it reports whether everything drained in time.
func (bw *baseWorker) Stop() bool {
	bw.stopOnce.Do(func() {
		bw.stopped.Store(true)
		close(bw.stopC)
		bw.pollCancel()
	})
	bw.pollerWG.Wait()

	drained := make(chan struct{})
	go func() {
		bw.taskWG.Wait()
		close(drained)
	}()
	if bw.options.shutdownTimeout <= 0 {
		<-drained
		return true
	}
	select {
	case <-drained:
		return true
	case <-time.After(bw.options.shutdownTimeout):
		return false
	}
}

// ---------------------------------------------------------------------------
// Workflow task poller
// ---------------------------------------------------------------------------

func newWorkflowTaskPoller(bridge WorkerBridge, taskHandler WorkflowTaskHandler, queue *bridgeClientQueue, logger *zap.Logger, scope tally.Scope) *workflowTaskPoller {
	return &workflowTaskPoller{
		bridge:      bridge,
		taskHandler: taskHandler,
		queue:       queue,
		logger:      logger,
		scope:       scope,
	}
}

func (p *workflowTaskPoller) PollTask(ctx context.Context) (interface{}, error) {
	activation, err := p.bridge.PollWorkflowActivation(ctx)
	if err != nil {
		return nil, err
	}
	if activation == nil {
		return nil, nil
	}
	return activation, nil
}

func (p *workflowTaskPoller) ProcessTask(task interface{}) {
	activation := task.(*coresdk.WorkflowActivation)
	completion := p.taskHandler.ProcessWorkflowActivation(activation)
	if completion.Failed != nil {
		p.scope.Counter(metrics.WorkflowTaskNoCompletionCounter).Inc(1)
	}
	err := p.queue.Submit(
		func(ctx context.Context) (interface{}, error) {
			return nil, p.bridge.CompleteWorkflowActivation(ctx, completion)
		},
		func(_ interface{}, err error) {
			if err != nil && !errors.Is(err, ErrBridgeQueueShutdown) {
				p.logger.Error("failed to report workflow activation completion",
					zap.String("RunID", completion.RunID), zap.Error(err))
			}
		})
	if err != nil {
		p.logger.Warn("workflow activation completion dropped: queue shut down",
			zap.String("RunID", completion.RunID))
	}
}

// ---------------------------------------------------------------------------
// Activity task pump
// ---------------------------------------------------------------------------

func newActivityTaskPoller(
	bridge WorkerBridge,
	handler *activityTaskHandlerImpl,
	queue *bridgeClientQueue,
	logger *zap.Logger,
	scope tally.Scope,
	clk clock.Clock,
	identity string,
	maxHeartbeatThrottle time.Duration,
	defaultHeartbeat time.Duration,
) *activityTaskPoller {
	if clk == nil {
		clk = clock.New()
	}
	if maxHeartbeatThrottle <= 0 {
		maxHeartbeatThrottle = defaultMaxHeartbeatThrottle
	}
	if defaultHeartbeat <= 0 {
		defaultHeartbeat = defaultHeartbeatThrottleInterval
	}
	return &activityTaskPoller{
		bridge:                   bridge,
		handler:                  handler,
		queue:                    queue,
		logger:                   logger,
		scope:                    scope,
		clock:                    clk,
		identity:                 identity,
		defaultHeartbeatThrottle: defaultHeartbeat,
		maxHeartbeatThrottle:     maxHeartbeatThrottle,
		running:                  make(map[string]*runningActivity),
	}
}

func (p *activityTaskPoller) PollTask(ctx context.Context) (interface{}, error) {
	task, err := p.bridge.PollActivityTask(ctx)
	if err != nil {
		return nil, err
	}
	if task == nil {
		p.scope.Counter(metrics.ActivityPollNoTaskCounter).Inc(1)
		return nil, nil
	}
	return task, nil
}

func (p *activityTaskPoller) ProcessTask(task interface{}) {
	polled := task.(*coresdk.PolledActivityTask)
	switch {
	case polled.Cancel != nil:
		p.cancelRunning(polled.Cancel.TaskToken, polled.Cancel.Reason)
	case polled.Start != nil:
		p.runActivity(polled.Start)
	}
}

func (p *activityTaskPoller) cancelRunning(taskToken []byte, reason coresdk.ActivityCancellationReason) {
	p.mu.Lock()
	ra, ok := p.running[string(taskToken)]
	p.mu.Unlock()
	if !ok {
		// Completed in the meantime, or a heartbeat after completion; the
		// recommended behavior for both is to ignore.
		p.logger.Debug("activity cancel for unknown task token")
		return
	}
	ra.env.cancelWith(reason, nil)
}

// cancelAll delivers a cancellation reason to every still-running activity;
// used at worker shutdown once the grace deadline has passed.
func (p *activityTaskPoller) cancelAll(reason coresdk.ActivityCancellationReason) {
	p.mu.Lock()
	all := make([]*runningActivity, 0, len(p.running))
	for _, ra := range p.running {
		all = append(all, ra)
	}
	p.mu.Unlock()
	for _, ra := range all {
		ra.env.cancelWith(reason, nil)
	}
}

func (p *activityTaskPoller) runActivity(task *coresdk.ActivityTask) {
	startTime := time.Now()
	ctx, cancel := context.WithCancel(p.handler.userContext)
	defer cancel()

	env := &activityEnvironment{
		info: ActivityInfo{
			TaskToken:         task.TaskToken,
			ActivityID:        task.ActivityID,
			ActivityType:      task.ActivityType,
			WorkflowExecution: WorkflowExecution{ID: task.WorkflowID, RunID: task.WorkflowRunID},
			WorkflowType:      task.WorkflowType,
			Attempt:           task.Attempt,
			ScheduledTime:     task.ScheduledTime,
			HeartbeatTimeout:  task.HeartbeatTimeout,
			IsLocalActivity:   task.IsLocal,
		},
		logger: p.logger.With(
			zap.String("ActivityType", task.ActivityType),
			zap.String("ActivityID", task.ActivityID),
			zap.String("WorkflowID", task.WorkflowID),
			zap.String("RunID", task.WorkflowRunID),
		),
		metricsScope:     metrics.TaggedScope(p.scope, metrics.TagActivityType, task.ActivityType),
		dataConverter:    p.handler.dataConverter,
		heartbeatDetails: task.HeartbeatDetails,
		doCancel:         cancel,
	}

	throttle := &heartbeatThrottle{
		clock:    p.clock,
		interval: heartbeatThrottleInterval(task.HeartbeatTimeout, p.defaultHeartbeatThrottle, p.maxHeartbeatThrottle),
		send: func(details *Payloads) {
			p.sendHeartbeat(task.TaskToken, details, env)
		},
	}
	env.recordHeartbeat = throttle.record

	ra := &runningActivity{env: env, doneC: make(chan struct{})}
	p.mu.Lock()
	p.running[string(task.TaskToken)] = ra
	p.mu.Unlock()
	defer func() {
		throttle.stop()
		p.mu.Lock()
		delete(p.running, string(task.TaskToken))
		p.mu.Unlock()
		close(ra.doneC)
	}()

	completion := p.handler.Execute(withActivityEnvironment(ctx, env), task, env)
	env.metricsScope.Timer(metrics.ActivityExecutionLatency).Record(time.Since(startTime))
	if completion == nil {
		return // nothing to report
	}
	if completion.Result.Failed != nil {
		env.metricsScope.Counter(metrics.ActivityExecutionFailedCounter).Inc(1)
	}
	p.reportCompletion(completion, env)
}

func (p *activityTaskPoller) reportCompletion(completion *coresdk.ActivityTaskCompletion, env *activityEnvironment) {
	err := p.queue.Submit(
		func(ctx context.Context) (interface{}, error) {
			return nil, p.bridge.CompleteActivityTask(ctx, completion)
		},
		func(_ interface{}, err error) {
			if err != nil && !errors.Is(err, ErrBridgeQueueShutdown) {
				env.logger.Error("failed to report activity completion", zap.Error(err))
			}
		})
	if err != nil {
		env.logger.Warn("activity completion dropped: queue shut down")
	}
}

// sendHeartbeat enqueues the heartbeat RPC and folds the server's response
// back into the activity's cancellation reason.
func (p *activityTaskPoller) sendHeartbeat(taskToken []byte, details *Payloads, env *activityEnvironment) {
	submitErr := p.queue.Submit(
		func(ctx context.Context) (interface{}, error) {
			return p.bridge.RecordActivityHeartbeat(ctx, &coresdk.ActivityHeartbeat{TaskToken: taskToken, Details: details})
		},
		func(result interface{}, err error) {
			if err != nil {
				var notFound *serviceerror.NotFound
				if errors.As(err, &notFound) {
					env.cancelWith(coresdk.ActivityCancellationGoneFromServer, nil)
					return
				}
				if !errors.Is(err, ErrBridgeQueueShutdown) {
					env.logger.Warn("heartbeat failed", zap.Error(err))
				}
				return
			}
			response, ok := result.(*coresdk.ActivityHeartbeatResponse)
			if !ok || response == nil {
				return
			}
			if response.CancelRequested {
				env.cancelWith(coresdk.ActivityCancellationServerRequest, nil)
			} else if response.Paused {
				env.cancelWith(coresdk.ActivityCancellationPaused, nil)
			}
		})
	if submitErr != nil {
		env.logger.Debug("heartbeat dropped: queue shut down")
	}
}

func heartbeatThrottleInterval(heartbeatTimeout, defaultInterval, maxInterval time.Duration) time.Duration {
	interval := defaultInterval
	if heartbeatTimeout > 0 {
		interval = time.Duration(heartbeatTimeoutRatio * float64(heartbeatTimeout))
	}
	if interval > maxInterval {
		interval = maxInterval
	}
	return interval
}

func (h *heartbeatThrottle) record(details *Payloads) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	if h.timerActive {
		h.pending = details
		h.hasPending = true
		h.mu.Unlock()
		return
	}
	h.timerActive = true
	h.mu.Unlock()
	h.send(details)
	h.scheduleFlush()
}

func (h *heartbeatThrottle) scheduleFlush() {
	h.clock.AfterFunc(h.interval, func() {
		h.mu.Lock()
		if h.stopped || !h.hasPending {
			h.timerActive = false
			h.mu.Unlock()
			return
		}
		details := h.pending
		h.hasPending = false
		h.mu.Unlock()
		h.send(details)
		h.scheduleFlush()
	})
}

func (h *heartbeatThrottle) stop() {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Activity task handler
// ---------------------------------------------------------------------------

func newActivityTaskHandler(registry *Registry, dataConverter DataConverter, logger *zap.Logger, scope tally.Scope, userContext context.Context) *activityTaskHandlerImpl {
	if userContext == nil {
		userContext = context.Background()
	}
	if dataConverter == nil {
		dataConverter = getDefaultDataConverter()
	}
	if scope == nil {
		scope = metrics.NewNoopScope()
	}
	return &activityTaskHandlerImpl{
		registry:      registry,
		dataConverter: dataConverter,
		logger:        logger,
		scope:         scope,
		userContext:   userContext,
	}
}

var contextContextType = reflect.TypeOf((*context.Context)(nil)).Elem()

func currentStackTrace() string {
	return string(debug.Stack())
}

// Execute runs the registered activity function for task and returns the
// explicit completion tag; it never returns nil. An activity that returns
// ErrActivityResultPending yields a completion with WillCompleteAsync set,
// and is later completed through the client's async-activity handle.
func (ath *activityTaskHandlerImpl) Execute(ctx context.Context, task *coresdk.ActivityTask, env *activityEnvironment) *coresdk.ActivityTaskCompletion {
	completion := &coresdk.ActivityTaskCompletion{TaskToken: task.TaskToken}

	fn, ok := ath.registry.getActivity(task.ActivityType)
	if !ok {
		ath.scope.Counter(metrics.UnregisteredActivityInvocationCounter).Inc(1)
		notFound := NewApplicationError(
			fmt.Sprintf("unable to find activity type %q registered on this worker", task.ActivityType),
			false, nil)
		notFound.originalType = "NotFoundError"
		completion.Result.Failed = convertErrorToFailure(notFound, ath.dataConverter)
		return completion
	}

	result, err := ath.invoke(ctx, fn, task.Input)

	switch {
	case err == nil:
		completion.Result.Completed = result
	case errors.Is(err, ErrActivityResultPending):
		completion.Result.WillCompleteAsync = true
	case IsCanceledError(err) || errors.Is(err, context.Canceled):
		cancelErr := err
		if !IsCanceledError(cancelErr) {
			cancelErr = causeOrReason(env.cancelCause, env.cancelReason)
		}
		completion.Result.Cancelled = convertErrorToFailure(cancelErr, ath.dataConverter)
	default:
		failure := convertErrorToFailure(err, ath.dataConverter)
		if failure.Info.Application != nil && task.RetryPolicy != nil &&
			!IsRetryable(err, task.RetryPolicy.NonRetryableErrorTypes) {
			failure.Info.Application.NonRetryable = true
		}
		completion.Result.Failed = failure
	}
	return completion
}

// invoke calls fn with decoded arguments, translating panics into
// PanicError. The leading context.Context parameter is optional.
func (ath *activityTaskHandlerImpl) invoke(ctx context.Context, fn ActivityFunc, input *Payloads) (result *Payloads, err error) {
	defer func() {
		if r := recover(); r != nil {
			ath.logger.Error("activity panic", zap.Any("PanicValue", r))
			err = newPanicError(r, currentStackTrace())
		}
	}()

	fnType := reflect.TypeOf(fn)
	if fnType == nil || fnType.Kind() != reflect.Func {
		return nil, fmt.Errorf("activity must be a function, got %T", fn)
	}
	skip := 0
	var callArgs []reflect.Value
	if fnType.NumIn() > 0 && fnType.In(0) == contextContextType {
		skip = 1
		callArgs = append(callArgs, reflect.ValueOf(ctx))
	}
	args, err := decodeArgsToValues(ath.dataConverter, fnType, input, skip)
	if err != nil {
		return nil, NewApplicationError(fmt.Sprintf("unable to decode activity input: %v", err), true, err)
	}
	results := reflect.ValueOf(fn).Call(append(callArgs, args...))
	return serializeResults(ath.dataConverter, results)
}
