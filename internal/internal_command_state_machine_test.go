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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go.flowbridge.dev/sdk/internal/coresdk"
)

func scheduleAttributes(seq uint32) *coresdk.ScheduleActivity {
	return &coresdk.ScheduleActivity{
		Seq:          seq,
		ActivityID:   sequenceID(seq),
		ActivityType: "test-activity",
		TaskQueue:    "test-queue",
	}
}

func Test_ActivityStateMachine_CompleteWithoutCancel(t *testing.T) {
	t.Parallel()
	h := newCommandsHelper()

	m := h.scheduleActivityTask(1, scheduleAttributes(1))
	require.Equal(t, commandStateCreated, m.getState())

	commands := h.getCommands(true)
	require.Equal(t, commandStateInitiated, m.getState())
	require.Len(t, commands, 1)
	require.NotNil(t, commands[0].ScheduleActivity)

	h.handleActivityTaskResolved(sequenceID(1))
	require.Equal(t, commandStateCompleted, m.getState())
	require.Empty(t, h.getCommands(true))
}

func Test_ActivityStateMachine_CancelBeforeSent(t *testing.T) {
	t.Parallel()
	h := newCommandsHelper()

	m := h.scheduleActivityTask(1, scheduleAttributes(1))
	h.requestCancelActivityTask(sequenceID(1))
	require.Equal(t, commandStateCompleted, m.getState())

	// Canceled before harvest suppresses the schedule command entirely.
	require.Empty(t, h.getCommands(true))
}

func Test_ActivityStateMachine_CancelAfterSent(t *testing.T) {
	t.Parallel()
	h := newCommandsHelper()

	m := h.scheduleActivityTask(1, scheduleAttributes(1))
	commands := h.getCommands(true)
	require.Len(t, commands, 1)

	h.requestCancelActivityTask(sequenceID(1))
	require.Equal(t, commandStateCanceledAfterInitiated, m.getState())

	commands = h.getCommands(true)
	require.Len(t, commands, 1)
	require.NotNil(t, commands[0].RequestCancelActivity)
	require.Equal(t, commandStateCancellationCommandSent, m.getState())

	h.handleActivityTaskResolved(sequenceID(1))
	require.Equal(t, commandStateCompletedAfterCancellationCommandSent, m.getState())
	require.True(t, m.isDone())
}

func Test_TimerStateMachine_CancelBeforeSent(t *testing.T) {
	t.Parallel()
	h := newCommandsHelper()

	attrs := &coresdk.StartTimer{Seq: 1, Duration: time.Second}
	m := h.startTimer(attrs, sequenceID(1))
	require.Equal(t, commandStateCreated, m.getState())
	h.cancelTimer(sequenceID(1))
	require.Empty(t, h.getCommands(true))
	require.True(t, m.isDone())
}

func Test_TimerStateMachine_CancelAfterSent(t *testing.T) {
	t.Parallel()
	h := newCommandsHelper()

	attrs := &coresdk.StartTimer{Seq: 1, Duration: time.Second}
	m := h.startTimer(attrs, sequenceID(1))
	commands := h.getCommands(true)
	require.Len(t, commands, 1)
	require.NotNil(t, commands[0].StartTimer)

	h.cancelTimer(sequenceID(1))
	require.Equal(t, commandStateCanceledAfterInitiated, m.getState())
	commands = h.getCommands(true)
	require.Len(t, commands, 1)
	require.NotNil(t, commands[0].CancelTimer)
	require.Equal(t, uint32(1), commands[0].CancelTimer.Seq)
}

func Test_TimerStateMachine_Fired(t *testing.T) {
	t.Parallel()
	h := newCommandsHelper()

	h.startTimer(&coresdk.StartTimer{Seq: 5, Duration: time.Minute}, sequenceID(5))
	require.Len(t, h.getCommands(true), 1)
	m := h.handleTimerResolved(sequenceID(5))
	require.Equal(t, commandStateCompleted, m.getState())
}

func Test_ChildWorkflowStateMachine_Basic(t *testing.T) {
	t.Parallel()
	h := newCommandsHelper()

	attrs := &coresdk.StartChildWorkflow{Seq: 1, WorkflowID: "child-wf", WorkflowType: "child"}
	m := h.startChildWorkflowExecution(attrs)
	require.Equal(t, commandStateCreated, m.getState())

	commands := h.getCommands(true)
	require.Len(t, commands, 1)
	require.NotNil(t, commands[0].StartChildWorkflow)
	require.Equal(t, commandStateInitiated, m.getState())

	h.handleChildWorkflowExecutionStarted("child-wf")
	require.Equal(t, commandStateStarted, m.getState())

	h.handleChildWorkflowExecutionResolved("child-wf")
	require.Equal(t, commandStateCompleted, m.getState())
}

func Test_ChildWorkflowStateMachine_CancelSucceed(t *testing.T) {
	t.Parallel()
	h := newCommandsHelper()

	attrs := &coresdk.StartChildWorkflow{Seq: 1, WorkflowID: "child-wf", WorkflowType: "child"}
	m := h.startChildWorkflowExecution(attrs)
	h.getCommands(true)
	h.handleChildWorkflowExecutionStarted("child-wf")

	h.requestCancelChildWorkflow("child-wf")
	require.Equal(t, commandStateCanceledAfterStarted, m.getState())

	commands := h.getCommands(true)
	require.Len(t, commands, 1)
	require.NotNil(t, commands[0].CancelChildWorkflow)
	require.Equal(t, commandStateCancellationCommandSent, m.getState())

	h.handleChildWorkflowExecutionCanceled("child-wf")
	require.Equal(t, commandStateCompleted, m.getState())
}

func Test_ChildWorkflowStateMachine_InitiationFailed(t *testing.T) {
	t.Parallel()
	h := newCommandsHelper()

	attrs := &coresdk.StartChildWorkflow{Seq: 1, WorkflowID: "child-wf", WorkflowType: "child"}
	m := h.startChildWorkflowExecution(attrs)
	h.getCommands(true)
	h.handleStartChildWorkflowExecutionFailed("child-wf")
	require.Equal(t, commandStateCompleted, m.getState())
}

func Test_SignalExternalWorkflowStateMachine(t *testing.T) {
	t.Parallel()
	h := newCommandsHelper()

	attrs := &coresdk.SignalExternalWorkflow{Seq: 3, WorkflowID: "other", SignalName: "sig"}
	m := h.signalExternalWorkflowExecution(3, attrs)
	commands := h.getCommands(true)
	require.Len(t, commands, 1)
	require.NotNil(t, commands[0].SignalExternalWorkflow)
	require.Equal(t, commandStateInitiated, m.getState())

	h.handleSignalExternalWorkflowExecutionResolved(3)
	require.Equal(t, commandStateCompleted, m.getState())
}

func Test_CancelExternalWorkflowStateMachine(t *testing.T) {
	t.Parallel()
	h := newCommandsHelper()

	attrs := &coresdk.CancelExternalWorkflow{Seq: 7, WorkflowID: "other"}
	m := h.requestCancelExternalWorkflowExecution(7, attrs)
	commands := h.getCommands(true)
	require.Len(t, commands, 1)
	require.NotNil(t, commands[0].CancelExternalWorkflow)

	h.handleRequestCancelExternalWorkflowExecutionResolved(7)
	require.Equal(t, commandStateCompleted, m.getState())
}

func Test_NaiveCommands_CompleteOnSend(t *testing.T) {
	t.Parallel()
	h := newCommandsHelper()

	h.setPatchMarker("my-patch", false)
	h.upsertSearchAttributes("1", map[string]*Payload{"CustomKeyword": nil})
	h.upsertMemo("2", map[string]*Payload{"note": nil})
	h.updateAccepted("update-1")
	h.updateCompleted("update-1", nil)
	h.respondToQuery("query-1", nil, nil)

	commands := h.getCommands(true)
	require.Len(t, commands, 6)
	require.NotNil(t, commands[0].SetPatchMarker)
	require.NotNil(t, commands[1].UpsertSearchAttributes)
	require.NotNil(t, commands[2].UpsertMemo)
	require.NotNil(t, commands[3].UpdateAccepted)
	require.NotNil(t, commands[4].UpdateCompleted)
	require.NotNil(t, commands[5].RespondToQuery)

	// All naive machines complete on send; nothing remains buffered.
	require.Empty(t, h.getCommands(true))
}

func Test_CommandsOrdering(t *testing.T) {
	t.Parallel()
	h := newCommandsHelper()

	for seq := uint32(1); seq <= 10; seq++ {
		h.scheduleActivityTask(seq, scheduleAttributes(seq))
	}
	commands := h.getCommands(true)
	require.Len(t, commands, 10)
	for i, command := range commands {
		require.NotNil(t, command.ScheduleActivity)
		require.Equal(t, uint32(i+1), command.ScheduleActivity.Seq)
	}
}

func Test_UnknownCommandPanics(t *testing.T) {
	t.Parallel()
	h := newCommandsHelper()
	require.Panics(t, func() {
		h.handleActivityTaskResolved("999")
	})
}

func Test_DuplicateCommandPanics(t *testing.T) {
	t.Parallel()
	h := newCommandsHelper()
	h.scheduleActivityTask(1, scheduleAttributes(1))
	require.Panics(t, func() {
		h.scheduleActivityTask(1, scheduleAttributes(1))
	})
}
