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

// Package internalbindings contains low level APIs to be used by non Go SDKs
// and bridge implementations built on top of this SDK.
//
// ATTENTION!
// The APIs found in this package should never be referenced from any
// application code. There is absolutely no guarantee of compatibility
// between releases.
package internalbindings

import "go.flowbridge.dev/sdk/internal"

type (
	// WorkflowType information
	WorkflowType = internal.WorkflowType
	// WorkflowExecution identifiers
	WorkflowExecution = internal.WorkflowExecution
	// WorkflowInfo is the read-only view of one run
	WorkflowInfo = internal.WorkflowInfo
	// WorkflowEnvironment exposes the deterministic runtime to workflow code
	WorkflowEnvironment = internal.WorkflowEnvironment
	// ExecuteWorkflowParams parameters of the workflow invocation
	ExecuteWorkflowParams = internal.ExecuteWorkflowParams
	// WorkflowOptions options passed to the workflow function
	WorkflowOptions = internal.WorkflowOptions
	// ResultHandler is the continuation resumed at every suspension point
	ResultHandler = internal.ResultHandler
	// WorkerBridge is the SDK-bridge surface the worker runtime consumes
	WorkerBridge = internal.WorkerBridge
	// WorkflowTaskHandler turns activations into completions
	WorkflowTaskHandler = internal.WorkflowTaskHandler
	// Registry holds explicitly registered workflow and activity functions
	Registry = internal.Registry
	// Header carries propagated context values on the wire
	Header = internal.Header
	// ContextPropagator copies values between contexts and wire headers
	ContextPropagator = internal.ContextPropagator
	// HeaderReader reads fields of a Header
	HeaderReader = internal.HeaderReader
	// HeaderWriter sets fields of a Header
	HeaderWriter = internal.HeaderWriter
)

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry { return internal.NewRegistry() }
