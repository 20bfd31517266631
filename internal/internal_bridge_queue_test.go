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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_BridgeQueue_BuffersBeforeRun(t *testing.T) {
	q := newBridgeClientQueue()
	var wg sync.WaitGroup
	results := make([]string, 3)
	for i := 0; i < 3; i++ {
		ii := i
		wg.Add(1)
		require.NoError(t, q.Submit(
			func(ctx context.Context) (interface{}, error) { return "ok", nil },
			func(result interface{}, err error) {
				defer wg.Done()
				require.NoError(t, err)
				results[ii] = result.(string)
			}))
	}

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := q.Run(); err != nil {
			t.Errorf("queue run: %v", err)
		}
	}()

	wg.Wait()
	require.Equal(t, []string{"ok", "ok", "ok"}, results)

	q.Shutdown()
	<-runDone
}

func Test_BridgeQueue_SubmitWhileRunning(t *testing.T) {
	q := newBridgeClientQueue()
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := q.Run(); err != nil {
			t.Errorf("queue run: %v", err)
		}
	}()

	completed := make(chan error, 1)
	require.NoError(t, q.Submit(
		func(ctx context.Context) (interface{}, error) { return nil, nil },
		func(result interface{}, err error) { completed <- err }))

	select {
	case err := <-completed:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("completion never delivered")
	}

	q.Shutdown()
	<-runDone
}

func Test_BridgeQueue_RunTwiceErrors(t *testing.T) {
	q := newBridgeClientQueue()
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := q.Run(); err != nil {
			t.Errorf("queue run: %v", err)
		}
	}()
	// Give the first Run a moment to claim the processing state.
	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return q.state == bridgeQueueProcessing
	}, time.Second, time.Millisecond)

	require.Error(t, q.Run())
	q.Shutdown()
	<-runDone
}

func Test_BridgeQueue_ShutdownWhileIdleFailsBuffered(t *testing.T) {
	q := newBridgeClientQueue()
	var completionErr error
	require.NoError(t, q.Submit(
		func(ctx context.Context) (interface{}, error) { return nil, nil },
		func(result interface{}, err error) { completionErr = err }))

	q.Shutdown()
	require.ErrorIs(t, completionErr, ErrBridgeQueueShutdown)
	require.ErrorIs(t, q.Run(), ErrBridgeQueueShutdown)
}

func Test_BridgeQueue_SubmitAfterShutdown(t *testing.T) {
	q := newBridgeClientQueue()
	q.Shutdown()

	var completionErr error
	err := q.Submit(
		func(ctx context.Context) (interface{}, error) { return nil, nil },
		func(result interface{}, err error) { completionErr = err })
	require.ErrorIs(t, err, ErrBridgeQueueShutdown)
	require.ErrorIs(t, completionErr, ErrBridgeQueueShutdown)
}

func Test_BridgeQueue_DoubleShutdownPanics(t *testing.T) {
	q := newBridgeClientQueue()
	q.Shutdown()
	require.Panics(t, func() { q.Shutdown() })
}

func Test_BridgeQueue_ShutdownCancelsOutstandingWork(t *testing.T) {
	q := newBridgeClientQueue()
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := q.Run(); err != nil {
			t.Errorf("queue run: %v", err)
		}
	}()

	started := make(chan struct{})
	completed := make(chan error, 1)
	require.NoError(t, q.Submit(
		func(ctx context.Context) (interface{}, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
		func(result interface{}, err error) { completed <- err }))

	<-started
	q.Shutdown()
	select {
	case err := <-completed:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("outstanding work never canceled")
	}
	<-runDone
}
