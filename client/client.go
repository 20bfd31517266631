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

// Package client is used by external programs to start workflow executions,
// send signals, run queries and updates, manage schedules, and complete
// activities asynchronously.
package client

import (
	"io"

	"go.flowbridge.dev/sdk/internal"
	"go.flowbridge.dev/sdk/internal/workflowservice"
)

type (
	// Client is the client for starting and interacting with workflow
	// executions.
	Client = internal.Client

	// Options configures a Client.
	Options = internal.ClientOptions

	// StartWorkflowOptions configures one workflow start.
	StartWorkflowOptions = internal.StartWorkflowOptions

	// WorkflowRun is a handle to one started execution chain.
	WorkflowRun = internal.WorkflowRun

	// WorkflowRunGetOptions tunes WorkflowRun.Get.
	WorkflowRunGetOptions = internal.WorkflowRunGetOptions

	// UpdateWorkflowOptions configures one workflow update.
	UpdateWorkflowOptions = internal.UpdateWorkflowOptions

	// WorkflowUpdateHandle tracks one update through completion.
	WorkflowUpdateHandle = internal.WorkflowUpdateHandle

	// AsyncActivityHandle drives async activity completion.
	AsyncActivityHandle = internal.AsyncActivityHandle

	// AsyncActivityID addresses an activity by id instead of task token.
	AsyncActivityID = internal.AsyncActivityID

	// QueryWorkflowInput is the typed input to QueryWorkflowWithOptions.
	QueryWorkflowInput = internal.QueryWorkflowInput

	// Interceptor intercepts outbound client operations.
	Interceptor = internal.ClientInterceptor

	// OutboundInterceptor has one hook per client operation.
	OutboundInterceptor = internal.ClientOutboundInterceptor

	// OutboundInterceptorBase is a passthrough OutboundInterceptor to embed.
	OutboundInterceptorBase = internal.ClientOutboundInterceptorBase

	// ScheduleClient manages server-side schedules.
	ScheduleClient = internal.ScheduleClient

	// ScheduleHandle is a handle to one schedule.
	ScheduleHandle = internal.ScheduleHandle

	// ScheduleOptions configures ScheduleClient.Create.
	ScheduleOptions = internal.ScheduleOptions

	// ScheduleWorkflowAction starts a workflow per triggered action.
	ScheduleWorkflowAction = internal.ScheduleWorkflowAction

	// ScheduleListOptions configures ScheduleClient.List.
	ScheduleListOptions = internal.ScheduleListOptions

	// WorkflowExecutionDescription is the decoded form of a describe call.
	WorkflowExecutionDescription = internal.WorkflowExecutionDescription
)

const (
	// QueryTypeStackTrace is the built-in query returning the blocked
	// coroutine rendering of a running workflow.
	QueryTypeStackTrace = internal.QueryTypeStackTrace

	// QueryTypeCurrentDetails is the built-in query returning the string
	// last set via workflow.SetCurrentDetails.
	QueryTypeCurrentDetails = internal.QueryTypeCurrentDetails
)

// NewServiceClient creates a Client over an established service connection.
// connectionCloser (may be nil) is closed by Client.Close.
func NewServiceClient(service workflowservice.WorkflowServiceClient, connectionCloser io.Closer, options Options) Client {
	return internal.NewServiceClient(service, connectionCloser, options)
}
