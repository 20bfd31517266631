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
	"sync"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	"go.uber.org/zap"

	"go.flowbridge.dev/sdk/internal/common/metrics"
	"go.flowbridge.dev/sdk/internal/coresdk"
)

func zapNop() *zap.Logger { return zap.NewNop() }

func noopScope() tally.Scope { return metrics.NewNoopScope() }

func Test_HeartbeatThrottleInterval(t *testing.T) {
	t.Parallel()
	require.Equal(t, 8*time.Second,
		heartbeatThrottleInterval(10*time.Second, 30*time.Second, 60*time.Second),
		"0.8 of the heartbeat timeout")
	require.Equal(t, 30*time.Second,
		heartbeatThrottleInterval(0, 30*time.Second, 60*time.Second),
		"default when no heartbeat timeout is set")
	require.Equal(t, 60*time.Second,
		heartbeatThrottleInterval(10*time.Minute, 30*time.Second, 60*time.Second),
		"bounded by the maximum")
}

func Test_HeartbeatThrottle_CoalescesRecords(t *testing.T) {
	t.Parallel()
	mockClock := clock.NewMock()
	var mu sync.Mutex
	var sent []*Payloads
	throttle := &heartbeatThrottle{
		clock:    mockClock,
		interval: 8 * time.Second,
		send: func(details *Payloads) {
			mu.Lock()
			sent = append(sent, details)
			mu.Unlock()
		},
	}

	details := func(v string) *Payloads {
		p, err := getDefaultDataConverter().ToPayloads(v)
		require.NoError(t, err)
		return p
	}

	// First record in a quiet period goes out immediately.
	throttle.record(details("a"))
	require.Len(t, sent, 1)

	// A burst within the interval coalesces to the latest details.
	for i := 0; i < 100; i++ {
		throttle.record(details("burst"))
	}
	require.Len(t, sent, 1, "burst throttled")

	mockClock.Add(8 * time.Second)
	require.Len(t, sent, 2, "latest pending details flushed at the interval")

	// A full quiet interval with nothing pending re-arms immediate sending.
	mockClock.Add(8 * time.Second)
	throttle.record(details("later"))
	require.Len(t, sent, 3)

	// A stopped throttle drops further records.
	throttle.stop()
	throttle.record(details("after-stop"))
	require.Len(t, sent, 3, "stopped throttle drops records")
}

type fakeBridge struct {
	mu          sync.Mutex
	completions []*coresdk.ActivityTaskCompletion
	heartbeats  []*coresdk.ActivityHeartbeat
	hbResponse  coresdk.ActivityHeartbeatResponse
	hbErr       error
}

func (b *fakeBridge) PollWorkflowActivation(ctx context.Context) (*coresdk.WorkflowActivation, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (b *fakeBridge) CompleteWorkflowActivation(ctx context.Context, completion *coresdk.WorkflowActivationCompletion) error {
	return nil
}

func (b *fakeBridge) PollActivityTask(ctx context.Context) (*coresdk.PolledActivityTask, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (b *fakeBridge) CompleteActivityTask(ctx context.Context, completion *coresdk.ActivityTaskCompletion) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.completions = append(b.completions, completion)
	return nil
}

func (b *fakeBridge) RecordActivityHeartbeat(ctx context.Context, heartbeat *coresdk.ActivityHeartbeat) (*coresdk.ActivityHeartbeatResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.heartbeats = append(b.heartbeats, heartbeat)
	response := b.hbResponse
	return &response, b.hbErr
}

func newTestActivityHandler(t *testing.T, register func(r *Registry)) *activityTaskHandlerImpl {
	t.Helper()
	registry := NewRegistry()
	if register != nil {
		register(registry)
	}
	return newActivityTaskHandler(registry, nil, zapNop(), nil, context.Background())
}

func executeActivityTask(t *testing.T, handler *activityTaskHandlerImpl, task *coresdk.ActivityTask) *coresdk.ActivityTaskCompletion {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env := &activityEnvironment{
		info:          ActivityInfo{TaskToken: task.TaskToken, ActivityType: task.ActivityType},
		logger:        zapNop(),
		metricsScope:  noopScope(),
		dataConverter: handler.dataConverter,
		doCancel:      cancel,
	}
	return handler.Execute(withActivityEnvironment(ctx, env), task, env)
}

func Test_ActivityExecute_Success(t *testing.T) {
	t.Parallel()
	handler := newTestActivityHandler(t, func(r *Registry) {
		r.RegisterActivity(func(ctx context.Context, name string) (string, error) {
			return "Hello, " + name + "!", nil
		}, RegisterActivityOptions{Name: "SayHello"})
	})

	input, err := getDefaultDataConverter().ToPayloads("World")
	require.NoError(t, err)
	completion := executeActivityTask(t, handler, &coresdk.ActivityTask{
		TaskToken:    []byte("token"),
		ActivityType: "SayHello",
		Input:        input,
	})
	require.NotNil(t, completion.Result.Completed)
	var result string
	require.NoError(t, getDefaultDataConverter().FromPayloads(completion.Result.Completed, &result))
	require.Equal(t, "Hello, World!", result)
}

func Test_ActivityExecute_NotRegistered(t *testing.T) {
	t.Parallel()
	handler := newTestActivityHandler(t, nil)
	completion := executeActivityTask(t, handler, &coresdk.ActivityTask{
		TaskToken:    []byte("token"),
		ActivityType: "Missing",
	})
	require.NotNil(t, completion.Result.Failed)
	require.NotNil(t, completion.Result.Failed.Info.Application)
}

func Test_ActivityExecute_NonRetryableClassification(t *testing.T) {
	t.Parallel()
	handler := newTestActivityHandler(t, func(r *Registry) {
		r.RegisterActivity(func(ctx context.Context) error {
			return NewApplicationError("insufficient funds", true, nil)
		}, RegisterActivityOptions{Name: "Charge"})
		r.RegisterActivity(func(ctx context.Context) error {
			return errors.New("transient glitch")
		}, RegisterActivityOptions{Name: "Flaky"})
	})

	completion := executeActivityTask(t, handler, &coresdk.ActivityTask{
		TaskToken:    []byte("t1"),
		ActivityType: "Charge",
	})
	require.NotNil(t, completion.Result.Failed)
	require.True(t, completion.Result.Failed.Info.Application.NonRetryable,
		"explicitly non-retryable application error")

	completion = executeActivityTask(t, handler, &coresdk.ActivityTask{
		TaskToken:    []byte("t2"),
		ActivityType: "Flaky",
		RetryPolicy:  &coresdk.RetryPolicy{NonRetryableErrorTypes: []string{"errorString"}},
	})
	require.NotNil(t, completion.Result.Failed)
	require.True(t, completion.Result.Failed.Info.Application.NonRetryable,
		"retry policy's nonRetryableErrorTypes match marks the failure non-retryable")

	completion = executeActivityTask(t, handler, &coresdk.ActivityTask{
		TaskToken:    []byte("t3"),
		ActivityType: "Flaky",
	})
	require.NotNil(t, completion.Result.Failed)
	require.False(t, completion.Result.Failed.Info.Application.NonRetryable,
		"arbitrary errors stay retryable by default")
}

func Test_ActivityExecute_WillCompleteAsync(t *testing.T) {
	t.Parallel()
	handler := newTestActivityHandler(t, func(r *Registry) {
		r.RegisterActivity(func(ctx context.Context) error {
			return ErrActivityResultPending
		}, RegisterActivityOptions{Name: "Async"})
	})
	completion := executeActivityTask(t, handler, &coresdk.ActivityTask{
		TaskToken:    []byte("token"),
		ActivityType: "Async",
	})
	require.True(t, completion.Result.WillCompleteAsync)
	require.Nil(t, completion.Result.Completed)
	require.Nil(t, completion.Result.Failed)
}

func Test_ActivityExecute_Canceled(t *testing.T) {
	t.Parallel()
	handler := newTestActivityHandler(t, func(r *Registry) {
		r.RegisterActivity(func(ctx context.Context) error {
			return NewCanceledError("giving up")
		}, RegisterActivityOptions{Name: "Cancelable"})
	})
	completion := executeActivityTask(t, handler, &coresdk.ActivityTask{
		TaskToken:    []byte("token"),
		ActivityType: "Cancelable",
	})
	require.NotNil(t, completion.Result.Cancelled)
	require.NotNil(t, completion.Result.Cancelled.Info.Cancelled)
}

func Test_ActivityExecute_PanicBecomesFailure(t *testing.T) {
	t.Parallel()
	handler := newTestActivityHandler(t, func(r *Registry) {
		r.RegisterActivity(func(ctx context.Context) error {
			panic("kaboom")
		}, RegisterActivityOptions{Name: "Panicky"})
	})
	completion := executeActivityTask(t, handler, &coresdk.ActivityTask{
		TaskToken:    []byte("token"),
		ActivityType: "Panicky",
	})
	require.NotNil(t, completion.Result.Failed)
	require.Contains(t, completion.Result.Failed.Message, "kaboom")
}

func Test_ActivityPump_HeartbeatCancellation(t *testing.T) {
	t.Parallel()
	bridge := &fakeBridge{hbResponse: coresdk.ActivityHeartbeatResponse{CancelRequested: true}}
	queue := newBridgeClientQueue()
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := queue.Run(); err != nil {
			t.Errorf("queue run: %v", err)
		}
	}()
	defer func() {
		queue.Shutdown()
		<-runDone
	}()

	observedReason := make(chan coresdk.ActivityCancellationReason, 1)
	handler := newTestActivityHandler(t, func(r *Registry) {
		r.RegisterActivity(func(ctx context.Context) error {
			RecordActivityHeartbeat(ctx, "progress")
			select {
			case <-ctx.Done():
				observedReason <- GetActivityCancellationReason(ctx)
				return NewCanceledError()
			case <-time.After(10 * time.Second):
				return errors.New("cancellation never arrived")
			}
		}, RegisterActivityOptions{Name: "LongRunning"})
	})
	pump := newActivityTaskPoller(bridge, handler, queue, zapNop(), noopScope(), clock.New(), "id", 0, 0)

	pump.runActivity(&coresdk.ActivityTask{
		TaskToken:        []byte("token"),
		ActivityType:     "LongRunning",
		HeartbeatTimeout: time.Second,
	})

	select {
	case reason := <-observedReason:
		require.Equal(t, coresdk.ActivityCancellationServerRequest, reason)
	default:
		t.Fatal("activity never observed cancellation")
	}
	// The completion report travels through the bridge queue asynchronously.
	require.Eventually(t, func() bool {
		bridge.mu.Lock()
		defer bridge.mu.Unlock()
		return len(bridge.completions) == 1
	}, 5*time.Second, 10*time.Millisecond)
	bridge.mu.Lock()
	defer bridge.mu.Unlock()
	require.NotEmpty(t, bridge.heartbeats)
	require.NotNil(t, bridge.completions[0].Result.Cancelled)
}

func Test_ActivityPump_WorkerShutdownCancellation(t *testing.T) {
	t.Parallel()
	pump := newActivityTaskPoller(&fakeBridge{}, newTestActivityHandler(t, nil), newBridgeClientQueue(), zapNop(), noopScope(), clock.New(), "id", 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	env := &activityEnvironment{logger: zapNop(), doCancel: cancel}
	pump.running["tok"] = &runningActivity{env: env, doneC: make(chan struct{})}

	pump.cancelAll(coresdk.ActivityCancellationWorkerShutdown)
	require.Equal(t, coresdk.ActivityCancellationWorkerShutdown, env.cancelReason)
	require.Error(t, ctx.Err())
}
