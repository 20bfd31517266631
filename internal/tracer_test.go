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

	"github.com/stretchr/testify/require"
	"github.com/uber/jaeger-client-go"
)

func Test_TracingContextPropagator_RoundTrip(t *testing.T) {
	tracer, closer := jaeger.NewTracer("test-service",
		jaeger.NewConstSampler(true), jaeger.NewInMemoryReporter())
	defer func() { _ = closer.Close() }()

	propagator := NewTracingContextPropagator(tracer)

	span := tracer.StartSpan("client-start-workflow")
	defer span.Finish()
	ctx := WithSpanContext(Background(), span.Context())

	header := &Header{Fields: make(map[string]*Payload)}
	require.NoError(t, propagator.Inject(ctx, header))
	payload, ok := header.Get(DefaultTracerHeaderKey)
	require.True(t, ok, "span context rides the default tracer header key")
	require.NotEmpty(t, payload.GetData())

	extracted, err := propagator.Extract(Background(), header)
	require.NoError(t, err)
	extractedSpanCtx := SpanContextFromWorkflowContext(extracted)
	require.NotNil(t, extractedSpanCtx)
	require.Equal(t,
		span.Context().(jaeger.SpanContext).TraceID(),
		extractedSpanCtx.(jaeger.SpanContext).TraceID(),
		"trace identity survives the header round trip")
}

func Test_TracingContextPropagator_NoSpanIsNoop(t *testing.T) {
	tracer, closer := jaeger.NewTracer("test-service",
		jaeger.NewConstSampler(true), jaeger.NewInMemoryReporter())
	defer func() { _ = closer.Close() }()

	propagator := NewTracingContextPropagator(tracer)
	header := &Header{Fields: make(map[string]*Payload)}
	require.NoError(t, propagator.Inject(Background(), header))
	require.Empty(t, header.Fields, "nothing written without an active span")
}
