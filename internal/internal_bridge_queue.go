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
)

// ErrBridgeQueueShutdown is delivered to the completion callback of any work
// item that was still queued (or submitted) after Shutdown.
var ErrBridgeQueueShutdown = errors.New("bridge client queue is shut down")

type (
	bridgeQueueState int

	bridgeQueueItem struct {
		work       func(ctx context.Context) (interface{}, error)
		completion func(result interface{}, err error)
	}

	// bridgeClientQueue serializes every outbound RPC the worker issues
	// (polls, completions, heartbeats) through one lifecycle-managed FIFO.
	// Items submitted before Run are buffered; once running, each item is
	// processed on its own goroutine under a queue-wide context that Shutdown
	// cancels.
	bridgeClientQueue struct {
		mu     sync.Mutex
		state  bridgeQueueState
		buffer []bridgeQueueItem
		itemC  chan bridgeQueueItem
		stopC  chan struct{}
	}
)

const (
	bridgeQueueIdle bridgeQueueState = iota
	bridgeQueueProcessing
	bridgeQueueShutdown
)

func newBridgeClientQueue() *bridgeClientQueue {
	return &bridgeClientQueue{
		itemC: make(chan bridgeQueueItem),
		stopC: make(chan struct{}),
	}
}

// Submit enqueues work and the completion that receives its outcome. Before
// Run, items accumulate in the buffer; after Shutdown, the completion is
// invoked inline with ErrBridgeQueueShutdown and Submit returns that same
// error.
func (q *bridgeClientQueue) Submit(work func(ctx context.Context) (interface{}, error), completion func(result interface{}, err error)) error {
	item := bridgeQueueItem{work: work, completion: completion}
	q.mu.Lock()
	switch q.state {
	case bridgeQueueIdle:
		q.buffer = append(q.buffer, item)
		q.mu.Unlock()
		return nil
	case bridgeQueueShutdown:
		q.mu.Unlock()
		completion(nil, ErrBridgeQueueShutdown)
		return ErrBridgeQueueShutdown
	}
	q.mu.Unlock()

	select {
	case q.itemC <- item:
		return nil
	case <-q.stopC:
		completion(nil, ErrBridgeQueueShutdown)
		return ErrBridgeQueueShutdown
	}
}

// Run drains the queue, spawning one goroutine per item, until Shutdown is
// called; it then cancels outstanding work, waits for it to settle, and
// returns. Calling Run on a queue that is already processing or shut down is
// an error.
func (q *bridgeClientQueue) Run() error {
	q.mu.Lock()
	switch q.state {
	case bridgeQueueProcessing:
		q.mu.Unlock()
		return errors.New("bridge client queue is already running")
	case bridgeQueueShutdown:
		q.mu.Unlock()
		return ErrBridgeQueueShutdown
	}
	q.state = bridgeQueueProcessing
	buffered := q.buffer
	q.buffer = nil
	q.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	process := func(item bridgeQueueItem) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := item.work(ctx)
			item.completion(result, err)
		}()
	}
	for _, item := range buffered {
		process(item)
	}
	for {
		select {
		case item := <-q.itemC:
			process(item)
		case <-q.stopC:
			cancel()
			wg.Wait()
			return nil
		}
	}
}

// Shutdown finishes the stream: Run cancels outstanding work and returns,
// buffered never-run items complete with ErrBridgeQueueShutdown, and later
// Submit calls fail. Shutting down twice is a programmer error.
func (q *bridgeClientQueue) Shutdown() {
	q.mu.Lock()
	if q.state == bridgeQueueShutdown {
		q.mu.Unlock()
		panic("bridge client queue shut down twice")
	}
	wasIdle := q.state == bridgeQueueIdle
	q.state = bridgeQueueShutdown
	buffered := q.buffer
	q.buffer = nil
	q.mu.Unlock()

	close(q.stopC)
	if wasIdle {
		for _, item := range buffered {
			item.completion(nil, ErrBridgeQueueShutdown)
		}
	}
}
