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

// Package mocks provides hand-maintained testify mocks of the client
// surface, for applications unit-testing code that takes a client.Client.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"go.flowbridge.dev/sdk/client"
	"go.flowbridge.dev/sdk/converter"
)

// Client is a testify mock of client.Client.
type Client struct {
	mock.Mock
}

// ExecuteWorkflow provides a mock function.
func (m *Client) ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error) {
	callArgs := append([]interface{}{ctx, options, workflow}, args...)
	ret := m.Called(callArgs...)
	var run client.WorkflowRun
	if ret.Get(0) != nil {
		run = ret.Get(0).(client.WorkflowRun)
	}
	return run, ret.Error(1)
}

// GetWorkflow provides a mock function.
func (m *Client) GetWorkflow(ctx context.Context, workflowID, runID string) client.WorkflowRun {
	ret := m.Called(ctx, workflowID, runID)
	var run client.WorkflowRun
	if ret.Get(0) != nil {
		run = ret.Get(0).(client.WorkflowRun)
	}
	return run
}

// SignalWorkflow provides a mock function.
func (m *Client) SignalWorkflow(ctx context.Context, workflowID, runID, signalName string, arg interface{}) error {
	ret := m.Called(ctx, workflowID, runID, signalName, arg)
	return ret.Error(0)
}

// SignalWithStartWorkflow provides a mock function.
func (m *Client) SignalWithStartWorkflow(ctx context.Context, workflowID, signalName string, signalArg interface{},
	options client.StartWorkflowOptions, workflow interface{}, workflowArgs ...interface{}) (client.WorkflowRun, error) {
	callArgs := append([]interface{}{ctx, workflowID, signalName, signalArg, options, workflow}, workflowArgs...)
	ret := m.Called(callArgs...)
	var run client.WorkflowRun
	if ret.Get(0) != nil {
		run = ret.Get(0).(client.WorkflowRun)
	}
	return run, ret.Error(1)
}

// CancelWorkflow provides a mock function.
func (m *Client) CancelWorkflow(ctx context.Context, workflowID, runID string) error {
	ret := m.Called(ctx, workflowID, runID)
	return ret.Error(0)
}

// TerminateWorkflow provides a mock function.
func (m *Client) TerminateWorkflow(ctx context.Context, workflowID, runID, reason string, details ...interface{}) error {
	callArgs := append([]interface{}{ctx, workflowID, runID, reason}, details...)
	ret := m.Called(callArgs...)
	return ret.Error(0)
}

// QueryWorkflow provides a mock function.
func (m *Client) QueryWorkflow(ctx context.Context, workflowID, runID, queryType string, args ...interface{}) (converter.Value, error) {
	callArgs := append([]interface{}{ctx, workflowID, runID, queryType}, args...)
	ret := m.Called(callArgs...)
	var value converter.Value
	if ret.Get(0) != nil {
		value = ret.Get(0).(converter.Value)
	}
	return value, ret.Error(1)
}

// QueryWorkflowWithOptions provides a mock function.
func (m *Client) QueryWorkflowWithOptions(ctx context.Context, in *client.QueryWorkflowInput) (converter.Value, error) {
	ret := m.Called(ctx, in)
	var value converter.Value
	if ret.Get(0) != nil {
		value = ret.Get(0).(converter.Value)
	}
	return value, ret.Error(1)
}

// UpdateWorkflow provides a mock function.
func (m *Client) UpdateWorkflow(ctx context.Context, options client.UpdateWorkflowOptions) (client.WorkflowUpdateHandle, error) {
	ret := m.Called(ctx, options)
	var handle client.WorkflowUpdateHandle
	if ret.Get(0) != nil {
		handle = ret.Get(0).(client.WorkflowUpdateHandle)
	}
	return handle, ret.Error(1)
}

// DescribeWorkflowExecution provides a mock function.
func (m *Client) DescribeWorkflowExecution(ctx context.Context, workflowID, runID string) (*client.WorkflowExecutionDescription, error) {
	ret := m.Called(ctx, workflowID, runID)
	var description *client.WorkflowExecutionDescription
	if ret.Get(0) != nil {
		description = ret.Get(0).(*client.WorkflowExecutionDescription)
	}
	return description, ret.Error(1)
}

// AsyncActivityHandle provides a mock function.
func (m *Client) AsyncActivityHandle(taskToken []byte, id *client.AsyncActivityID) client.AsyncActivityHandle {
	ret := m.Called(taskToken, id)
	var handle client.AsyncActivityHandle
	if ret.Get(0) != nil {
		handle = ret.Get(0).(client.AsyncActivityHandle)
	}
	return handle
}

// ScheduleClient provides a mock function.
func (m *Client) ScheduleClient() client.ScheduleClient {
	ret := m.Called()
	var sc client.ScheduleClient
	if ret.Get(0) != nil {
		sc = ret.Get(0).(client.ScheduleClient)
	}
	return sc
}

// Close provides a mock function.
func (m *Client) Close() {
	m.Called()
}

// WorkflowRun is a testify mock of client.WorkflowRun.
type WorkflowRun struct {
	mock.Mock
}

// GetID provides a mock function.
func (m *WorkflowRun) GetID() string {
	return m.Called().String(0)
}

// GetRunID provides a mock function.
func (m *WorkflowRun) GetRunID() string {
	return m.Called().String(0)
}

// Get provides a mock function.
func (m *WorkflowRun) Get(ctx context.Context, valuePtr interface{}) error {
	return m.Called(ctx, valuePtr).Error(0)
}

// GetWithOptions provides a mock function.
func (m *WorkflowRun) GetWithOptions(ctx context.Context, valuePtr interface{}, options client.WorkflowRunGetOptions) error {
	return m.Called(ctx, valuePtr, options).Error(0)
}
