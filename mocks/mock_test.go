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

package mocks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"go.flowbridge.dev/sdk/client"
)

func Test_MockClient(t *testing.T) {
	testWorkflowID := "test-workflowid"
	testRunID := "test-runid"
	testWorkflowName := "workflow"
	testWorkflowInput := "input"
	mockClient := &Client{}
	var c client.Client = mockClient

	mockWorkflowRun := &WorkflowRun{}
	mockWorkflowRun.On("GetID").Return(testWorkflowID)
	mockWorkflowRun.On("GetRunID").Return(testRunID)
	mockWorkflowRun.On("Get", mock.Anything, mock.Anything).Return(nil)

	mockClient.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(mockWorkflowRun, nil).Once()
	wr, err := c.ExecuteWorkflow(context.Background(), client.StartWorkflowOptions{}, testWorkflowName, testWorkflowInput)
	mockClient.AssertExpectations(t)
	require.NoError(t, err)
	require.Equal(t, testWorkflowID, wr.GetID())
	require.Equal(t, testRunID, wr.GetRunID())
	require.NoError(t, wr.Get(context.Background(), nil))

	mockClient.On("SignalWithStartWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(mockWorkflowRun, nil).Once()
	wr, err = c.SignalWithStartWorkflow(context.Background(), "wid", "signal", "val", client.StartWorkflowOptions{}, testWorkflowName, testWorkflowInput)
	mockClient.AssertExpectations(t)
	require.NoError(t, err)
	require.Equal(t, testWorkflowID, wr.GetID())

	mockClient.On("GetWorkflow", mock.Anything, mock.Anything, mock.Anything).
		Return(mockWorkflowRun).Once()
	wfRun := c.GetWorkflow(context.Background(), testWorkflowID, testRunID)
	mockClient.AssertExpectations(t)
	require.Equal(t, testWorkflowID, wfRun.GetID())
	require.Equal(t, testRunID, wfRun.GetRunID())

	mockClient.On("SignalWorkflow", mock.Anything, testWorkflowID, testRunID, "signal", "value").
		Return(nil).Once()
	require.NoError(t, c.SignalWorkflow(context.Background(), testWorkflowID, testRunID, "signal", "value"))
	mockClient.AssertExpectations(t)

	mockClient.On("CancelWorkflow", mock.Anything, testWorkflowID, testRunID).
		Return(nil).Once()
	require.NoError(t, c.CancelWorkflow(context.Background(), testWorkflowID, testRunID))
	mockClient.AssertExpectations(t)
	mockWorkflowRun.AssertExpectations(t)
}
