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

// Package worker hosts workflow and activity implementations: it polls the
// task queue through a bridge connection, replays workflow code
// deterministically, and runs activities on a parallel scheduler.
package worker

import (
	"os"
	"os/signal"
	"syscall"

	"go.flowbridge.dev/sdk/internal"
)

type (
	// Worker hosts workflow and activity implementations for one task queue.
	Worker interface {
		// RegisterWorkflow registers a workflow function under its function
		// name.
		RegisterWorkflow(fn interface{})
		// RegisterWorkflowWithOptions registers a workflow function under an
		// explicit name.
		RegisterWorkflowWithOptions(fn interface{}, options RegisterWorkflowOptions)
		// RegisterActivity registers an activity function under its function
		// name.
		RegisterActivity(fn interface{})
		// RegisterActivityWithOptions registers an activity function under
		// an explicit name.
		RegisterActivityWithOptions(fn interface{}, options RegisterActivityOptions)
		// Start begins polling without blocking.
		Start()
		// Run starts the worker and blocks until interruptC fires, then
		// stops.
		Run(interruptC <-chan interface{})
		// Stop halts polling and drains in-flight work up to the configured
		// grace period.
		Stop()
	}

	// Options configures a worker instance.
	Options = internal.WorkerOptions

	// RegisterWorkflowOptions configures RegisterWorkflowWithOptions.
	RegisterWorkflowOptions = internal.RegisterWorkflowOptions

	// RegisterActivityOptions configures RegisterActivityWithOptions.
	RegisterActivityOptions = internal.RegisterActivityOptions

	// Bridge is the SDK-bridge connection a worker polls tasks over.
	Bridge = internal.WorkerBridge
)

// New creates a worker for one namespace/task queue pair over bridge.
// Register workflows and activities before calling Start.
func New(bridge Bridge, namespace, taskQueue string, options Options) Worker {
	return internal.NewAggregatedWorker(bridge, namespace, taskQueue, options)
}

// InterruptCh returns a channel that fires on SIGINT/SIGTERM, for passing to
// Run in a main function.
func InterruptCh() <-chan interface{} {
	interruptC := make(chan os.Signal, 1)
	signal.Notify(interruptC, os.Interrupt, syscall.SIGTERM)
	result := make(chan interface{}, 1)
	go func() {
		s := <-interruptC
		result <- s
		signal.Stop(interruptC)
	}()
	return result
}
