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
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/opentracing/opentracing-go"
	"github.com/uber-go/tally"
	"go.uber.org/zap"

	"go.flowbridge.dev/sdk/converter"
	"go.flowbridge.dev/sdk/internal/common/metrics"
	"go.flowbridge.dev/sdk/internal/coresdk"
)

type (
	// WorkerOptions configures an aggregated worker. Zero values select
	// defaults throughout.
	WorkerOptions struct {
		// MaxConcurrentActivityExecutionSize bounds concurrently running
		// activity invocations.
		MaxConcurrentActivityExecutionSize int
		// MaxConcurrentWorkflowTaskExecutionSize bounds concurrently
		// processed workflow activations.
		MaxConcurrentWorkflowTaskExecutionSize int
		// WorkflowTaskPollerCount and ActivityTaskPollerCount size the
		// long-poll goroutine pools.
		WorkflowTaskPollerCount int
		ActivityTaskPollerCount int
		// TaskQueueActivitiesPerSecond throttles activity dispatch across
		// this worker; zero means unlimited.
		TaskQueueActivitiesPerSecond float64
		// Identity is reported on polls and completions; defaults to
		// "<pid>@<hostname>".
		Identity string
		// WorkerStopTimeout is the grace period Stop waits for in-flight
		// work before delivering workerShutdown cancellation.
		WorkerStopTimeout time.Duration
		// WorkflowCacheSize bounds the worker-wide LRU of live workflow
		// instances.
		WorkflowCacheSize int
		// MaxHeartbeatThrottleInterval and DefaultHeartbeatThrottleInterval
		// bound the per-activity heartbeat throttle.
		MaxHeartbeatThrottleInterval     time.Duration
		DefaultHeartbeatThrottleInterval time.Duration

		Logger             *zap.Logger
		MetricsScope       tally.Scope
		DataConverter      DataConverter
		FailureConverter   converter.FailureConverter
		ContextPropagators []ContextPropagator
		Tracer             opentracing.Tracer
		// BackgroundActivityContext is the root context handed to every
		// activity invocation.
		BackgroundActivityContext context.Context
		// Clock drives the heartbeat throttle; tests install a mock.
		Clock clock.Clock
	}

	// AggregatedWorker owns one bridge connection and hosts both task pumps
	// over it: workflow activations and activity tasks for one task queue.
	AggregatedWorker struct {
		namespace string
		taskQueue string
		options   WorkerOptions
		registry  *Registry
		logger    *zap.Logger

		bridge         WorkerBridge
		queue          *bridgeClientQueue
		workflowWorker *baseWorker
		activityWorker *baseWorker
		activityPoller *activityTaskPoller

		startOnce sync.Once
		stopOnce  sync.Once
		queueDone chan struct{}
	}
)

func getWorkerIdentity() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%d@%s", os.Getpid(), hostname)
}

// NewAggregatedWorker wires a worker over bridge for one namespace/task
// queue pair. Workflows and activities are registered on the returned worker
// before Start.
func NewAggregatedWorker(bridge WorkerBridge, namespace, taskQueue string, options WorkerOptions) *AggregatedWorker {
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(
		zap.String("Namespace", namespace),
		zap.String("TaskQueue", taskQueue),
	)
	scope := options.MetricsScope
	if scope == nil {
		scope = metrics.NewNoopScope()
	}
	scope = metrics.TaggedScope(scope, metrics.TagTaskQueue, taskQueue)
	if options.Identity == "" {
		options.Identity = getWorkerIdentity()
	}

	registry := NewRegistry()
	propagators := options.ContextPropagators
	if options.Tracer != nil {
		propagators = append(propagators, NewTracingContextPropagator(options.Tracer))
	}

	queue := newBridgeClientQueue()

	taskHandler := newWorkflowTaskHandler(workflowTaskHandlerParams{
		Namespace:          namespace,
		TaskQueue:          taskQueue,
		Identity:           options.Identity,
		Registry:           registry,
		DataConverter:      options.DataConverter,
		FailureConverter:   options.FailureConverter,
		ContextPropagators: propagators,
		Logger:             logger,
		MetricsScope:       scope,
		CacheSize:          options.WorkflowCacheSize,
	})
	workflowPoller := newWorkflowTaskPoller(bridge, taskHandler, queue, logger, scope)
	workflowWorker := newBaseWorker(baseWorkerOptions{
		pollerCount:       options.WorkflowTaskPollerCount,
		maxConcurrentTask: options.MaxConcurrentWorkflowTaskExecutionSize,
		shutdownTimeout:   options.WorkerStopTimeout,
		workerType:        "workflow",
		identity:          options.Identity,
		logger:            logger,
		metricsScope:      scope,
	}, workflowPoller.PollTask, workflowPoller.ProcessTask)

	activityHandler := newActivityTaskHandler(registry, options.DataConverter, logger, scope, options.BackgroundActivityContext)
	activityPoller := newActivityTaskPoller(
		bridge, activityHandler, queue, logger, scope, options.Clock, options.Identity,
		options.MaxHeartbeatThrottleInterval, options.DefaultHeartbeatThrottleInterval)
	activityWorker := newBaseWorker(baseWorkerOptions{
		pollerCount:       options.ActivityTaskPollerCount,
		maxConcurrentTask: options.MaxConcurrentActivityExecutionSize,
		tasksPerSecond:    options.TaskQueueActivitiesPerSecond,
		shutdownTimeout:   options.WorkerStopTimeout,
		workerType:        "activity",
		identity:          options.Identity,
		logger:            logger,
		metricsScope:      scope,
	}, activityPoller.PollTask, activityPoller.ProcessTask)

	return &AggregatedWorker{
		namespace:      namespace,
		taskQueue:      taskQueue,
		options:        options,
		registry:       registry,
		logger:         logger,
		bridge:         bridge,
		queue:          queue,
		workflowWorker: workflowWorker,
		activityWorker: activityWorker,
		activityPoller: activityPoller,
		queueDone:      make(chan struct{}),
	}
}

// RegisterWorkflow registers a workflow function under its function name.
func (aw *AggregatedWorker) RegisterWorkflow(fn WorkflowFunc) {
	aw.registry.RegisterWorkflow(fn, RegisterWorkflowOptions{})
}

// RegisterWorkflowWithOptions registers a workflow function under an
// explicit name.
func (aw *AggregatedWorker) RegisterWorkflowWithOptions(fn WorkflowFunc, opts RegisterWorkflowOptions) {
	aw.registry.RegisterWorkflow(fn, opts)
}

// RegisterActivity registers an activity function under its function name.
func (aw *AggregatedWorker) RegisterActivity(fn ActivityFunc) {
	aw.registry.RegisterActivity(fn, RegisterActivityOptions{})
}

// RegisterActivityWithOptions registers an activity function under an
// explicit name.
func (aw *AggregatedWorker) RegisterActivityWithOptions(fn ActivityFunc, opts RegisterActivityOptions) {
	aw.registry.RegisterActivity(fn, opts)
}

// Registry exposes the worker's registry, used by in-process bridge
// implementations and tests.
func (aw *AggregatedWorker) Registry() *Registry {
	return aw.registry
}

// Start launches the bridge queue and both task pumps without blocking.
func (aw *AggregatedWorker) Start() {
	aw.startOnce.Do(func() {
		go func() {
			defer close(aw.queueDone)
			if err := aw.queue.Run(); err != nil {
				aw.logger.Error("bridge client queue exited", zap.Error(err))
			}
		}()
		aw.workflowWorker.Start()
		aw.activityWorker.Start()
		aw.logger.Info("worker started", zap.String("Identity", aw.options.Identity))
	})
}

// Run starts the worker and blocks until interruptC is closed (or receives),
// then stops.
func (aw *AggregatedWorker) Run(interruptC <-chan interface{}) {
	aw.Start()
	<-interruptC
	aw.Stop()
}

// Stop halts polling, waits up to WorkerStopTimeout for in-flight work,
// delivers workerShutdown cancellation to activities that are still running,
// and shuts the bridge queue down. Completions that finish after the grace
// deadline are reported best effort while the queue drains.
func (aw *AggregatedWorker) Stop() {
	aw.stopOnce.Do(func() {
		workflowsDrained := aw.workflowWorker.Stop()
		activitiesDrained := aw.activityWorker.Stop()
		if !activitiesDrained {
			aw.activityPoller.cancelAll(coresdk.ActivityCancellationWorkerShutdown)
			// One more bounded wait for the canceled activities to settle so
			// their terminal completions can still reach the server.
			waitWithTimeout(&aw.activityWorker.taskWG, aw.options.WorkerStopTimeout)
		}
		if !workflowsDrained {
			aw.logger.Warn("workflow tasks still in flight at shutdown deadline")
		}
		aw.queue.Shutdown()
		<-aw.queueDone
		aw.logger.Info("worker stopped")
	})
}

func waitWithTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	if timeout <= 0 {
		<-done
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
