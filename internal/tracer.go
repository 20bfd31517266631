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
	"encoding/json"

	"github.com/opentracing/opentracing-go"

	"go.flowbridge.dev/sdk/converter"
)

// DefaultTracerHeaderKey is the header field the tracing propagator writes
// its serialized span context under; override via
// NewTracingContextPropagatorWithKey.
const DefaultTracerHeaderKey = "_tracer-data"

type tracerSpanContextKeyType struct{}

var tracerSpanContextKey = tracerSpanContextKeyType{}

// tracingContextPropagator rides an opentracing span context on the wire
// Header of every workflow start, signal, query, update, and activity
// schedule, so traces stitch across the client/worker boundary.
type tracingContextPropagator struct {
	tracer    opentracing.Tracer
	headerKey string
}

// NewTracingContextPropagator creates a ContextPropagator for tracer using
// the default header key.
func NewTracingContextPropagator(tracer opentracing.Tracer) ContextPropagator {
	return NewTracingContextPropagatorWithKey(tracer, DefaultTracerHeaderKey)
}

// NewTracingContextPropagatorWithKey is NewTracingContextPropagator with a
// custom header key.
func NewTracingContextPropagatorWithKey(tracer opentracing.Tracer, headerKey string) ContextPropagator {
	return &tracingContextPropagator{tracer: tracer, headerKey: headerKey}
}

// SpanContextFromWorkflowContext returns the span context extracted into a
// workflow Context by the tracing propagator, or nil.
func SpanContextFromWorkflowContext(ctx Context) opentracing.SpanContext {
	spanCtx, _ := ctx.Value(tracerSpanContextKey).(opentracing.SpanContext)
	return spanCtx
}

// WithSpanContext returns a workflow Context carrying spanCtx for the
// tracing propagator to inject on outbound operations.
func WithSpanContext(ctx Context, spanCtx opentracing.SpanContext) Context {
	return WithValue(ctx, tracerSpanContextKey, spanCtx)
}

func (t *tracingContextPropagator) Inject(ctx Context, writer HeaderWriter) error {
	spanCtx := SpanContextFromWorkflowContext(ctx)
	if spanCtx == nil {
		return nil
	}
	carrier := opentracing.TextMapCarrier{}
	if err := t.tracer.Inject(spanCtx, opentracing.TextMap, carrier); err != nil {
		return err
	}
	data, err := json.Marshal(map[string]string(carrier))
	if err != nil {
		return err
	}
	writer.Set(t.headerKey, &Payload{
		Metadata: map[string][]byte{converter.MetadataEncoding: []byte(converter.MetadataEncodingJSON)},
		Data:     data,
	})
	return nil
}

func (t *tracingContextPropagator) Extract(ctx Context, reader HeaderReader) (Context, error) {
	payload, ok := reader.Get(t.headerKey)
	if !ok || payload == nil {
		return ctx, nil
	}
	var fields map[string]string
	if err := json.Unmarshal(payload.GetData(), &fields); err != nil {
		return ctx, err
	}
	spanCtx, err := t.tracer.Extract(opentracing.TextMap, opentracing.TextMapCarrier(fields))
	if err != nil {
		// A header written by a differently-configured tracer is not fatal;
		// the trace link is simply dropped.
		return ctx, nil
	}
	return WithSpanContext(ctx, spanCtx), nil
}
