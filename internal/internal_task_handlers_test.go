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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go.flowbridge.dev/sdk/internal/coresdk"
)

// testHost drives a workflowTaskHandlerImpl with synthetic activations the
// way the bridge would, cleaning up any instance a test leaves cached.
type testHost struct {
	t       *testing.T
	handler *workflowTaskHandlerImpl
}

func newTestHost(t *testing.T, register func(r *Registry)) *testHost {
	t.Helper()
	registry := NewRegistry()
	if register != nil {
		register(registry)
	}
	handler := newWorkflowTaskHandler(workflowTaskHandlerParams{
		Namespace: "default",
		TaskQueue: "test-queue",
		Identity:  "test-worker",
		Registry:  registry,
	})
	host := &testHost{t: t, handler: handler}
	t.Cleanup(func() {
		host.handler.cache.mu.Lock()
		var leftover []*workflowExecutionContextImpl
		for _, elem := range host.handler.cache.entries {
			leftover = append(leftover, elem.Value.(*cacheEntry).wc)
		}
		host.handler.cache.mu.Unlock()
		for _, wc := range leftover {
			wc.destroy()
		}
	})
	return host
}

func (h *testHost) initActivation(runID, workflowType string, args ...interface{}) *coresdk.WorkflowActivation {
	h.t.Helper()
	input, err := getDefaultDataConverter().ToPayloads(args...)
	require.NoError(h.t, err)
	return &coresdk.WorkflowActivation{
		RunID:     runID,
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Jobs: []coresdk.WorkflowActivationJob{{
			InitializeWorkflow: &coresdk.InitializeWorkflow{
				WorkflowID:   "wf-" + runID,
				WorkflowType: workflowType,
				TaskQueue:    "test-queue",
				Arguments:    input,
				RandomSeed:   7,
				StartTime:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
			},
		}},
	}
}

func (h *testHost) process(activation *coresdk.WorkflowActivation) *coresdk.WorkflowActivationCompletion {
	h.t.Helper()
	return h.handler.ProcessWorkflowActivation(activation)
}

func (h *testHost) succeed(activation *coresdk.WorkflowActivation) []coresdk.WorkflowCommand {
	h.t.Helper()
	completion := h.process(activation)
	require.NotNil(h.t, completion.Success, "activation failed: %v", completion.Failed)
	return completion.Success.Commands
}

func activityResult(t *testing.T, seq uint32, value interface{}) coresdk.WorkflowActivationJob {
	t.Helper()
	payloads, err := getDefaultDataConverter().ToPayloads(value)
	require.NoError(t, err)
	return coresdk.WorkflowActivationJob{
		ResolveActivity: &coresdk.ResolveActivity{
			Seq:    seq,
			Result: coresdk.ActivityResolution{Completed: &coresdk.ActivityResolutionCompleted{Result: payloads}},
		},
	}
}

func decodeResult(t *testing.T, payloads *Payloads, valuePtr interface{}) {
	t.Helper()
	require.NoError(t, getDefaultDataConverter().FromPayloads(payloads, valuePtr))
}

func greetingWorkflow(ctx Context, name string) (string, error) {
	ctx = WithActivityOptions(ctx, ActivityOptions{StartToCloseTimeout: time.Minute})
	var greeting string
	if err := ExecuteActivity(ctx, "SayHello", name).Get(ctx, &greeting); err != nil {
		return "", err
	}
	return greeting, nil
}

func Test_GreetingWorkflow(t *testing.T) {
	host := newTestHost(t, func(r *Registry) {
		r.RegisterWorkflow(greetingWorkflow, RegisterWorkflowOptions{Name: "Greeting"})
	})

	commands := host.succeed(host.initActivation("run1", "Greeting", "World"))
	require.Len(t, commands, 1)
	schedule := commands[0].ScheduleActivity
	require.NotNil(t, schedule)
	require.Equal(t, "SayHello", schedule.ActivityType)
	var input string
	decodeResult(t, schedule.Input, &input)
	require.Equal(t, "World", input)

	commands = host.succeed(&coresdk.WorkflowActivation{
		RunID: "run1",
		Jobs:  []coresdk.WorkflowActivationJob{activityResult(t, schedule.Seq, "Hello, World!")},
	})
	require.Len(t, commands, 1)
	require.NotNil(t, commands[0].CompleteWorkflow)
	var result string
	decodeResult(t, commands[0].CompleteWorkflow.Result, &result)
	require.Equal(t, "Hello, World!", result)
}

func signalQueryWorkflow(ctx Context) (string, error) {
	var state string
	if err := SetQueryHandler(ctx, "get", func() (string, error) { return state, nil }); err != nil {
		return "", err
	}
	GetSignalChannel(ctx, "set").Receive(ctx, &state)
	return state, nil
}

func Test_SignalThenQuery(t *testing.T) {
	host := newTestHost(t, func(r *Registry) {
		r.RegisterWorkflow(signalQueryWorkflow, RegisterWorkflowOptions{Name: "SignalQuery"})
	})

	commands := host.succeed(host.initActivation("run1", "SignalQuery"))
	require.Empty(t, commands, "blocked on signal, nothing to commit")

	signalInput, err := getDefaultDataConverter().ToPayloads("abc")
	require.NoError(t, err)
	commands = host.succeed(&coresdk.WorkflowActivation{
		RunID: "run1",
		Jobs: []coresdk.WorkflowActivationJob{
			{SignalWorkflow: &coresdk.SignalWorkflow{SignalName: "set", Input: signalInput}},
			{QueryWorkflow: &coresdk.QueryWorkflow{QueryID: "q1", QueryType: "get"}},
		},
	})
	require.Len(t, commands, 2)
	require.NotNil(t, commands[0].RespondToQuery)
	var queryResult string
	decodeResult(t, commands[0].RespondToQuery.Result, &queryResult)
	require.Equal(t, "abc", queryResult, "query observes state left by the same activation's signal")
	require.NotNil(t, commands[1].CompleteWorkflow)
	var result string
	decodeResult(t, commands[1].CompleteWorkflow.Result, &result)
	require.Equal(t, "abc", result)
}

func Test_SignalBeforeChannelCreated(t *testing.T) {
	host := newTestHost(t, func(r *Registry) {
		r.RegisterWorkflow(signalQueryWorkflow, RegisterWorkflowOptions{Name: "SignalQuery"})
	})

	// Signal delivered in the same activation as initialization, before the
	// workflow ever called GetSignalChannel: it must be buffered and
	// delivered in order.
	activation := host.initActivation("run1", "SignalQuery")
	signalInput, err := getDefaultDataConverter().ToPayloads("early")
	require.NoError(t, err)
	activation.Jobs = append(activation.Jobs, coresdk.WorkflowActivationJob{
		SignalWorkflow: &coresdk.SignalWorkflow{SignalName: "set", Input: signalInput},
	})
	commands := host.succeed(activation)
	require.Len(t, commands, 1)
	require.NotNil(t, commands[0].CompleteWorkflow)
	var result string
	decodeResult(t, commands[0].CompleteWorkflow.Result, &result)
	require.Equal(t, "early", result)
}

func fanOutWorkflow(ctx Context) ([]int, error) {
	ctx = WithActivityOptions(ctx, ActivityOptions{StartToCloseTimeout: time.Minute})
	futures := make([]Future, 10)
	for i := range futures {
		futures[i] = ExecuteActivity(ctx, "Index", i)
	}
	results := make([]int, len(futures))
	for i, future := range futures {
		if err := future.Get(ctx, &results[i]); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func Test_ParallelFanOut(t *testing.T) {
	host := newTestHost(t, func(r *Registry) {
		r.RegisterWorkflow(fanOutWorkflow, RegisterWorkflowOptions{Name: "FanOut"})
	})

	commands := host.succeed(host.initActivation("run1", "FanOut"))
	require.Len(t, commands, 10, "one commit containing all schedule commands")
	var resolutions []coresdk.WorkflowActivationJob
	for i, command := range commands {
		require.NotNil(t, command.ScheduleActivity)
		var arg int
		decodeResult(t, command.ScheduleActivity.Input, &arg)
		require.Equal(t, i, arg, "schedule commands in submission order")
		resolutions = append(resolutions, activityResult(t, command.ScheduleActivity.Seq, arg))
	}

	commands = host.succeed(&coresdk.WorkflowActivation{RunID: "run1", Jobs: resolutions})
	require.Len(t, commands, 1)
	require.NotNil(t, commands[0].CompleteWorkflow)
	var results []int
	decodeResult(t, commands[0].CompleteWorkflow.Result, &results)
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, results)
}

func Test_ReplayDeterminism(t *testing.T) {
	buildActivations := func(host *testHost) ([]coresdk.WorkflowCommand, []coresdk.WorkflowCommand) {
		first := host.succeed(host.initActivation("run1", "FanOut"))
		var resolutions []coresdk.WorkflowActivationJob
		for _, command := range first {
			var arg int
			decodeResult(t, command.ScheduleActivity.Input, &arg)
			resolutions = append(resolutions, activityResult(t, command.ScheduleActivity.Seq, arg))
		}
		second := host.succeed(&coresdk.WorkflowActivation{RunID: "run1", IsReplaying: true, Jobs: resolutions})
		return first, second
	}

	register := func(r *Registry) {
		r.RegisterWorkflow(fanOutWorkflow, RegisterWorkflowOptions{Name: "FanOut"})
	}
	firstA, secondA := buildActivations(newTestHost(t, register))
	firstB, secondB := buildActivations(newTestHost(t, register))

	require.Equal(t, firstA, firstB, "identical command sequences across replays")
	require.Equal(t, secondA, secondB)
}

func cancelableWorkflow(ctx Context) error {
	return Sleep(ctx, time.Hour)
}

func Test_CancelWorkflow(t *testing.T) {
	host := newTestHost(t, func(r *Registry) {
		r.RegisterWorkflow(cancelableWorkflow, RegisterWorkflowOptions{Name: "Cancelable"})
	})

	commands := host.succeed(host.initActivation("run1", "Cancelable"))
	require.Len(t, commands, 1)
	require.NotNil(t, commands[0].StartTimer)

	commands = host.succeed(&coresdk.WorkflowActivation{
		RunID: "run1",
		Jobs:  []coresdk.WorkflowActivationJob{{CancelWorkflow: &coresdk.CancelWorkflow{Reason: "user requested"}}},
	})
	require.Len(t, commands, 2)
	require.NotNil(t, commands[0].CancelTimer)
	require.NotNil(t, commands[1].FailWorkflow)
	require.NotNil(t, commands[1].FailWorkflow.Failure.Info.Cancelled, "cancellation surfaces as a cancelled failure")
}

func shieldedCleanupWorkflow(ctx Context) error {
	err := Sleep(ctx, time.Hour)
	if !IsCanceledError(err) {
		return err
	}
	// Cleanup keeps running under a shield even though the run is canceled.
	cleanupCtx, _ := NewDisconnectedContext(ctx)
	cleanupCtx = WithActivityOptions(cleanupCtx, ActivityOptions{StartToCloseTimeout: time.Minute})
	if cleanupErr := ExecuteActivity(cleanupCtx, "Cleanup").Get(cleanupCtx, nil); cleanupErr != nil {
		return cleanupErr
	}
	return err
}

func Test_CancellationShield(t *testing.T) {
	host := newTestHost(t, func(r *Registry) {
		r.RegisterWorkflow(shieldedCleanupWorkflow, RegisterWorkflowOptions{Name: "ShieldedCleanup"})
	})

	host.succeed(host.initActivation("run1", "ShieldedCleanup"))
	commands := host.succeed(&coresdk.WorkflowActivation{
		RunID: "run1",
		Jobs:  []coresdk.WorkflowActivationJob{{CancelWorkflow: &coresdk.CancelWorkflow{}}},
	})
	// Cancel timer plus the shielded cleanup activity; no terminal command
	// yet because the cleanup still runs.
	require.Len(t, commands, 2)
	require.NotNil(t, commands[0].CancelTimer)
	require.NotNil(t, commands[1].ScheduleActivity)
	require.Equal(t, "Cleanup", commands[1].ScheduleActivity.ActivityType)

	commands = host.succeed(&coresdk.WorkflowActivation{
		RunID: "run1",
		Jobs:  []coresdk.WorkflowActivationJob{activityResult(t, commands[1].ScheduleActivity.Seq, "ok")},
	})
	require.Len(t, commands, 1)
	require.NotNil(t, commands[0].FailWorkflow)
	require.NotNil(t, commands[0].FailWorkflow.Failure.Info.Cancelled)
}

func updateWorkflow(ctx Context) (string, error) {
	var state string
	err := SetUpdateHandler(ctx, "setState",
		func(ctx Context, v string) (string, error) {
			state = v
			return v, nil
		},
		UpdateHandlerOptions{Validator: func(v string) error {
			if v == "" {
				return errors.New("state must not be empty")
			}
			return nil
		}})
	if err != nil {
		return "", err
	}
	if err := Await(ctx, func() bool { return state != "" }); err != nil {
		return "", err
	}
	return state, nil
}

func Test_UpdateLifecycle(t *testing.T) {
	host := newTestHost(t, func(r *Registry) {
		r.RegisterWorkflow(updateWorkflow, RegisterWorkflowOptions{Name: "Updatable"})
	})

	require.Empty(t, host.succeed(host.initActivation("run1", "Updatable")))

	rejectedInput, err := getDefaultDataConverter().ToPayloads("")
	require.NoError(t, err)
	commands := host.succeed(&coresdk.WorkflowActivation{
		RunID: "run1",
		Jobs: []coresdk.WorkflowActivationJob{{
			DoUpdate: &coresdk.DoUpdate{ID: "u1", UpdateName: "setState", Arguments: rejectedInput, RunValidator: true},
		}},
	})
	require.Len(t, commands, 1)
	require.NotNil(t, commands[0].UpdateRejected)
	require.Equal(t, "u1", commands[0].UpdateRejected.ID)

	acceptedInput, err := getDefaultDataConverter().ToPayloads("abc")
	require.NoError(t, err)
	commands = host.succeed(&coresdk.WorkflowActivation{
		RunID: "run1",
		Jobs: []coresdk.WorkflowActivationJob{{
			DoUpdate: &coresdk.DoUpdate{ID: "u2", UpdateName: "setState", Arguments: acceptedInput, RunValidator: true},
		}},
	})
	require.Len(t, commands, 3)
	require.NotNil(t, commands[0].UpdateAccepted)
	require.NotNil(t, commands[1].UpdateCompleted)
	var updateResult string
	decodeResult(t, commands[1].UpdateCompleted.Result, &updateResult)
	require.Equal(t, "abc", updateResult)
	require.NotNil(t, commands[2].CompleteWorkflow)
}

func continueAsNewWorkflow(ctx Context, round int) error {
	if round >= 1 {
		return nil
	}
	return NewContinueAsNewError(ctx, continueAsNewWorkflow, round+1)
}

func Test_ContinueAsNew(t *testing.T) {
	host := newTestHost(t, func(r *Registry) {
		r.RegisterWorkflow(continueAsNewWorkflow, RegisterWorkflowOptions{})
	})

	commands := host.succeed(host.initActivation("run1", "continueAsNewWorkflow", 0))
	require.Len(t, commands, 1)
	can := commands[0].ContinueAsNewWorkflow
	require.NotNil(t, can)
	require.Equal(t, "continueAsNewWorkflow", can.WorkflowType)
	require.Equal(t, "test-queue", can.TaskQueue)
	var round int
	decodeResult(t, can.Arguments, &round)
	require.Equal(t, 1, round)
}

func Test_RemoveFromCache(t *testing.T) {
	host := newTestHost(t, func(r *Registry) {
		r.RegisterWorkflow(cancelableWorkflow, RegisterWorkflowOptions{Name: "Cancelable"})
	})

	host.succeed(host.initActivation("run1", "Cancelable"))
	require.Equal(t, 1, host.handler.cache.size())

	commands := host.succeed(&coresdk.WorkflowActivation{
		RunID: "run1",
		Jobs:  []coresdk.WorkflowActivationJob{{RemoveFromCache: &coresdk.RemoveFromCache{Reason: "lru"}}},
	})
	require.Empty(t, commands)
	require.Equal(t, 0, host.handler.cache.size())
}

func Test_UnregisteredWorkflowFailsTask(t *testing.T) {
	host := newTestHost(t, nil)
	completion := host.process(host.initActivation("run1", "Nope"))
	require.Nil(t, completion.Success)
	require.NotNil(t, completion.Failed)
}

func panickyWorkflow(ctx Context) error {
	panic("boom")
}

func Test_WorkflowPanicFailsTaskNotProcess(t *testing.T) {
	host := newTestHost(t, func(r *Registry) {
		r.RegisterWorkflow(panickyWorkflow, RegisterWorkflowOptions{Name: "Panicky"})
	})
	completion := host.process(host.initActivation("run1", "Panicky"))
	require.Nil(t, completion.Success)
	require.NotNil(t, completion.Failed)
	require.Equal(t, 0, host.handler.cache.size(), "panicked instance is evicted")
}

func Test_WorkflowTimeIsActivationTime(t *testing.T) {
	var observed time.Time
	host := newTestHost(t, func(r *Registry) {
		r.RegisterWorkflow(func(ctx Context) error {
			observed = Now(ctx)
			return nil
		}, RegisterWorkflowOptions{Name: "Clock"})
	})
	activation := host.initActivation("run1", "Clock")
	host.succeed(activation)
	require.Equal(t, activation.Timestamp, observed)
}
