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

package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	"google.golang.org/grpc"

	"go.flowbridge.dev/sdk/internal/workflowservice"
)

// capturingStatsReporter records every counter/timer emission for
// assertions.
type capturingStatsReporter struct {
	mu       sync.Mutex
	counters []capturedCount
	timers   []capturedTimer
}

type capturedCount struct {
	name string
	tags map[string]string
}

type capturedTimer struct {
	name string
}

func (r *capturingStatsReporter) ReportCounter(name string, tags map[string]string, value int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters = append(r.counters, capturedCount{name: name, tags: tags})
}

func (r *capturingStatsReporter) ReportGauge(name string, tags map[string]string, value float64) {}

func (r *capturingStatsReporter) ReportTimer(name string, tags map[string]string, interval time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timers = append(r.timers, capturedTimer{name: name})
}

func (r *capturingStatsReporter) ReportHistogramValueSamples(name string, tags map[string]string,
	buckets tally.Buckets, bucketLowerBound, bucketUpperBound float64, samples int64) {
}

func (r *capturingStatsReporter) ReportHistogramDurationSamples(name string, tags map[string]string,
	buckets tally.Buckets, bucketLowerBound, bucketUpperBound time.Duration, samples int64) {
}

func (r *capturingStatsReporter) Capabilities() tally.Capabilities { return r }
func (r *capturingStatsReporter) Reporting() bool                  { return true }
func (r *capturingStatsReporter) Tagging() bool                    { return true }
func (r *capturingStatsReporter) Flush()                           {}

// failingService errors every call; used to assert the failure counter.
type failingService struct {
	workflowservice.WorkflowServiceClient
	err error
}

func (s *failingService) StartWorkflowExecution(ctx context.Context, in *workflowservice.StartWorkflowExecutionRequest, opts ...grpc.CallOption) (*workflowservice.StartWorkflowExecutionResponse, error) {
	return nil, s.err
}

// succeedingService answers every call with a zero-value response.
type succeedingService struct {
	workflowservice.WorkflowServiceClient
}

func (s *succeedingService) StartWorkflowExecution(ctx context.Context, in *workflowservice.StartWorkflowExecutionRequest, opts ...grpc.CallOption) (*workflowservice.StartWorkflowExecutionResponse, error) {
	return &workflowservice.StartWorkflowExecutionResponse{}, nil
}

func (s *succeedingService) QueryWorkflow(ctx context.Context, in *workflowservice.QueryWorkflowRequest, opts ...grpc.CallOption) (*workflowservice.QueryWorkflowResponse, error) {
	return &workflowservice.QueryWorkflowResponse{}, nil
}

func newCapturingScope(t *testing.T) (tally.Scope, *capturingStatsReporter, func()) {
	t.Helper()
	reporter := &capturingStatsReporter{}
	scope, closer := tally.NewRootScope(tally.ScopeOptions{Reporter: reporter}, time.Millisecond)
	return scope, reporter, func() { _ = closer.Close() }
}

func (r *capturingStatsReporter) countNamed(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.counters {
		if c.name == name {
			n++
		}
	}
	return n
}

func Test_Wrapper_SuccessEmitsRequestAndLatency(t *testing.T) {
	scope, reporter, stop := newCapturingScope(t)
	defer stop()

	wrapped := NewWorkflowServiceWrapper(&succeedingService{}, scope)
	_, err := wrapped.StartWorkflowExecution(context.Background(), &workflowservice.StartWorkflowExecutionRequest{})
	require.NoError(t, err)
	_, err = wrapped.QueryWorkflow(context.Background(), &workflowservice.QueryWorkflowRequest{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return reporter.countNamed(SDKRequest) == 2
	}, time.Second, time.Millisecond)
	require.Zero(t, reporter.countNamed(SDKRequestFailure))

	reporter.mu.Lock()
	defer reporter.mu.Unlock()
	operations := map[string]bool{}
	for _, c := range reporter.counters {
		operations[c.tags[TagOperation]] = true
	}
	require.True(t, operations["StartWorkflowExecution"])
	require.True(t, operations["QueryWorkflow"])
}

func Test_Wrapper_FailureEmitsFailureCounter(t *testing.T) {
	scope, reporter, stop := newCapturingScope(t)
	defer stop()

	wrapped := NewWorkflowServiceWrapper(&failingService{err: errors.New("boom")}, scope)
	_, err := wrapped.StartWorkflowExecution(context.Background(), &workflowservice.StartWorkflowExecutionRequest{})
	require.Error(t, err)

	require.Eventually(t, func() bool {
		return reporter.countNamed(SDKRequest) == 1 &&
			reporter.countNamed(SDKRequestFailure) == 1
	}, time.Second, time.Millisecond)
}
