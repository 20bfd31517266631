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

func newTestEnvironment(t *testing.T) *workflowEnvironmentImpl {
	t.Helper()
	info := &WorkflowInfo{
		WorkflowExecution: WorkflowExecution{ID: "test-wf-id", RunID: "test-run-id"},
		WorkflowType:      WorkflowType{Name: "TestWorkflow"},
		Namespace:         "default",
		TaskQueue:         "test-queue",
	}
	env := newWorkflowEnvironment(info, NewRegistry(), nil, nil, nil, nil, nil, 42)
	env.dispatcher = &dispatcherImpl{}
	return env
}

func Test_TimerSequenceMonotonic(t *testing.T) {
	t.Parallel()
	env := newTestEnvironment(t)

	noop := func(*Payloads, error) {}
	seq1 := env.NewTimer(time.Second, "", noop)
	seq2 := env.NewTimer(time.Second, "", noop)
	seq3 := env.NewTimer(time.Second, "", noop)
	require.Less(t, seq1, seq2)
	require.Less(t, seq2, seq3)
}

func Test_ZeroDurationTimerNormalized(t *testing.T) {
	t.Parallel()
	env := newTestEnvironment(t)

	env.NewTimer(0, "", func(*Payloads, error) {})
	commands := env.commandsHelper.getCommands(true)
	require.Len(t, commands, 1)
	require.Equal(t, time.Millisecond, commands[0].StartTimer.Duration)
}

func Test_TimerFireResumesContinuation(t *testing.T) {
	t.Parallel()
	env := newTestEnvironment(t)

	var fired bool
	seq := env.NewTimer(time.Minute, "", func(result *Payloads, err error) {
		require.NoError(t, err)
		fired = true
	})
	env.commandsHelper.getCommands(true)

	env.handleTimerFired(seq)
	require.True(t, fired)

	// A duplicate fire for the same sequence is dropped, not double-resumed.
	fired = false
	env.handleTimerFired(seq)
	require.False(t, fired)
}

func Test_TimerCancelResumesWithCanceled(t *testing.T) {
	t.Parallel()
	env := newTestEnvironment(t)

	var gotErr error
	seq := env.NewTimer(time.Minute, "", func(result *Payloads, err error) {
		gotErr = err
	})
	env.commandsHelper.getCommands(true)
	env.RequestCancelTimer(seq)
	require.True(t, IsCanceledError(gotErr))

	commands := env.commandsHelper.getCommands(true)
	require.Len(t, commands, 1)
	require.NotNil(t, commands[0].CancelTimer)
}

func Test_ActivityResolution(t *testing.T) {
	t.Parallel()
	env := newTestEnvironment(t)

	var result *Payloads
	var gotErr error
	seq := env.ExecuteActivity(executeActivityParams{
		ActivityType: "SayHello",
		Options:      ActivityOptions{StartToCloseTimeout: time.Minute},
	}, func(r *Payloads, err error) {
		result = r
		gotErr = err
	})
	commands := env.commandsHelper.getCommands(true)
	require.Len(t, commands, 1)
	require.Equal(t, "SayHello", commands[0].ScheduleActivity.ActivityType)
	require.Equal(t, "test-queue", commands[0].ScheduleActivity.TaskQueue, "empty task queue falls back to the workflow's")

	payload, err := env.dataConverter.ToPayloads("hello")
	require.NoError(t, err)
	env.handleActivityResolved(seq, coresdk.ActivityResolution{
		Completed: &coresdk.ActivityResolutionCompleted{Result: payload},
	})
	require.NoError(t, gotErr)
	var decoded string
	require.NoError(t, env.dataConverter.FromPayloads(result, &decoded))
	require.Equal(t, "hello", decoded)
}

func Test_ActivityFailureResolution(t *testing.T) {
	t.Parallel()
	env := newTestEnvironment(t)

	var gotErr error
	seq := env.ExecuteActivity(executeActivityParams{ActivityType: "Charge"}, func(r *Payloads, err error) {
		gotErr = err
	})
	env.commandsHelper.getCommands(true)

	failure := convertErrorToFailure(
		NewActivityError(5, 6, "worker@host", "Charge", "1", 0,
			NewApplicationError("insufficient funds", true, nil)),
		env.dataConverter)
	env.handleActivityResolved(seq, coresdk.ActivityResolution{Failed: failure})

	var activityErr *ActivityError
	require.ErrorAs(t, gotErr, &activityErr)
	var appErr *ApplicationError
	require.ErrorAs(t, gotErr, &appErr)
	require.True(t, appErr.NonRetryable())
}

func Test_LocalActivityBackoffSchedulesTimer(t *testing.T) {
	t.Parallel()
	env := newTestEnvironment(t)

	var resolved bool
	seq := env.ExecuteActivity(executeActivityParams{
		ActivityType: "LocalOp",
		IsLocal:      true,
	}, func(r *Payloads, err error) {
		resolved = true
	})
	env.commandsHelper.getCommands(true)

	env.handleActivityResolved(seq, coresdk.ActivityResolution{
		Backoff: &coresdk.ActivityResolutionBackoff{Duration: 100 * time.Millisecond, Attempt: 2},
	})
	require.False(t, resolved, "backoff does not resolve the continuation")

	commands := env.commandsHelper.getCommands(true)
	require.Len(t, commands, 1)
	require.NotNil(t, commands[0].StartTimer, "backoff sleeps on a server-visible timer")
	require.Equal(t, 100*time.Millisecond, commands[0].StartTimer.Duration)

	// Firing the backoff timer re-issues the schedule under a fresh sequence.
	env.handleTimerFired(commands[0].StartTimer.Seq)
	commands = env.commandsHelper.getCommands(true)
	require.Len(t, commands, 1)
	require.NotNil(t, commands[0].ScheduleActivity)
	require.Greater(t, commands[0].ScheduleActivity.Seq, seq)
}

func Test_ReadOnlyGuardRejectsMutations(t *testing.T) {
	t.Parallel()
	env := newTestEnvironment(t)

	env.readOnly = true
	require.Panics(t, func() {
		env.NewTimer(time.Second, "", func(*Payloads, error) {})
	})
	require.Panics(t, func() {
		env.ExecuteActivity(executeActivityParams{ActivityType: "X"}, func(*Payloads, error) {})
	})
	require.Panics(t, func() {
		_ = env.UpsertMemo(map[string]*Payload{"k": nil})
	})
}

func Test_QueryHandlerRunsFrozen(t *testing.T) {
	t.Parallel()
	env := newTestEnvironment(t)

	require.NoError(t, env.RegisterQueryHandler("mutating", func(input *Payloads, header map[string]*Payload) (*Payloads, error) {
		// Any command append inside a query is a bug; the freeze turns it
		// into a query failure instead of corrupted history.
		env.NewTimer(time.Second, "", func(*Payloads, error) {})
		return nil, nil
	}))
	env.handleQuery(&coresdk.QueryWorkflow{QueryID: "q1", QueryType: "mutating"})

	commands := env.commandsHelper.getCommands(true)
	require.Len(t, commands, 1)
	require.NotNil(t, commands[0].RespondToQuery)
	require.NotNil(t, commands[0].RespondToQuery.Failure, "freeze violation surfaces as query failure")
}

func Test_QueryUnknownType(t *testing.T) {
	t.Parallel()
	env := newTestEnvironment(t)

	env.handleQuery(&coresdk.QueryWorkflow{QueryID: "q1", QueryType: "nope"})
	commands := env.commandsHelper.getCommands(true)
	require.Len(t, commands, 1)
	require.NotNil(t, commands[0].RespondToQuery.Failure)
}

func Test_PatchedRecordsMarkerOnce(t *testing.T) {
	t.Parallel()
	env := newTestEnvironment(t)

	require.True(t, env.Patched("my-change", false))
	require.True(t, env.Patched("my-change", false), "memoized")

	commands := env.commandsHelper.getCommands(true)
	require.Len(t, commands, 1)
	require.NotNil(t, commands[0].SetPatchMarker)
	require.Equal(t, "my-change", commands[0].SetPatchMarker.PatchID)
}

func Test_PatchedDuringReplay(t *testing.T) {
	t.Parallel()
	env := newTestEnvironment(t)
	env.replaying = true

	require.False(t, env.Patched("unknown-change", false), "replay without notifyHasPatch")

	env.handleNotifyHasPatch("known-change")
	require.True(t, env.Patched("known-change", false), "replay after notifyHasPatch")
}

func Test_UpsertMergesDeterministicView(t *testing.T) {
	t.Parallel()
	env := newTestEnvironment(t)

	attr, err := env.dataConverter.ToPayloads("value")
	require.NoError(t, err)
	payload := attr.GetPayloads()[0]

	require.NoError(t, env.UpsertSearchAttributes(map[string]*Payload{"CustomKeyword": payload}))
	require.Equal(t, payload, env.workflowInfo.SearchAttributes["CustomKeyword"])

	require.NoError(t, env.UpsertMemo(map[string]*Payload{"note": payload}))
	require.Equal(t, payload, env.workflowInfo.Memo["note"])

	commands := env.commandsHelper.getCommands(true)
	require.Len(t, commands, 2)
	require.NotNil(t, commands[0].UpsertSearchAttributes)
	require.NotNil(t, commands[1].UpsertMemo)
}

func Test_RandomSeedDeterministic(t *testing.T) {
	t.Parallel()
	env1 := newTestEnvironment(t)
	env2 := newTestEnvironment(t)

	require.Equal(t, env1.Random().Int63(), env2.Random().Int63(),
		"same seed produces the same draw sequence")

	env1.rng = newDeterministicRand(99)
	env2.rng = newDeterministicRand(99)
	require.Equal(t, env1.Random().Int63(), env2.Random().Int63(),
		"reseed applies to both identically")
}

func Test_CompletionTerminalCommand(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		env := newTestEnvironment(t)
		result, _ := env.dataConverter.ToPayloads("done")
		env.Complete(result, nil)
		terminal := env.terminalCommand()
		require.NotNil(t, terminal.CompleteWorkflow)
	})
	t.Run("failure", func(t *testing.T) {
		env := newTestEnvironment(t)
		env.Complete(nil, NewApplicationError("boom", false, nil))
		terminal := env.terminalCommand()
		require.NotNil(t, terminal.FailWorkflow)
		require.NotNil(t, terminal.FailWorkflow.Failure.Info.Application)
	})
	t.Run("cancellation", func(t *testing.T) {
		env := newTestEnvironment(t)
		env.Complete(nil, NewCanceledError())
		terminal := env.terminalCommand()
		require.NotNil(t, terminal.FailWorkflow)
		require.NotNil(t, terminal.FailWorkflow.Failure.Info.Cancelled)
	})
	t.Run("first completion wins", func(t *testing.T) {
		env := newTestEnvironment(t)
		env.Complete(nil, nil)
		env.Complete(nil, NewApplicationError("late", false, nil))
		require.NotNil(t, env.terminalCommand().CompleteWorkflow)
	})
}
