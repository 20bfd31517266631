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

// Package serviceerror mirrors the typed error taxonomy the bridge's RPC
// layer raises, one concrete type per gRPC status code it cares about, so
// callers can errors.As() instead of comparing codes.Code values directly.
package serviceerror

import "fmt"

// NotFound indicates the requested resource does not exist.
type NotFound struct{ Message string }

func NewNotFound(message string) *NotFound { return &NotFound{Message: message} }
func (e *NotFound) Error() string          { return e.Message }

// InvalidArgument indicates a request failed validation.
type InvalidArgument struct{ Message string }

func NewInvalidArgument(message string) *InvalidArgument { return &InvalidArgument{Message: message} }
func (e *InvalidArgument) Error() string                 { return e.Message }

// DeadlineExceeded indicates the call's context deadline elapsed server-side.
type DeadlineExceeded struct{ Message string }

func NewDeadlineExceeded(message string) *DeadlineExceeded {
	return &DeadlineExceeded{Message: message}
}
func (e *DeadlineExceeded) Error() string { return e.Message }

// Canceled indicates the call's context was canceled server-side.
type Canceled struct{ Message string }

func NewCanceled(message string) *Canceled { return &Canceled{Message: message} }
func (e *Canceled) Error() string          { return e.Message }

// PermissionDenied indicates the caller lacks authorization for the request.
type PermissionDenied struct{ Message string }

func NewPermissionDenied(message string) *PermissionDenied {
	return &PermissionDenied{Message: message}
}
func (e *PermissionDenied) Error() string { return e.Message }

// ResourceExhausted indicates a rate limit or quota was exceeded.
type ResourceExhausted struct{ Message string }

func NewResourceExhausted(message string) *ResourceExhausted {
	return &ResourceExhausted{Message: message}
}
func (e *ResourceExhausted) Error() string { return e.Message }

// Unavailable indicates the server is transiently unreachable; callers may
// retry.
type Unavailable struct{ Message string }

func NewUnavailable(message string) *Unavailable { return &Unavailable{Message: message} }
func (e *Unavailable) Error() string             { return e.Message }

// Internal indicates an unexpected server-side failure.
type Internal struct{ Message string }

func NewInternal(message string) *Internal { return &Internal{Message: message} }
func (e *Internal) Error() string          { return e.Message }

// FailedPrecondition indicates the request conflicts with the resource's
// current state (e.g. namespace not registered).
type FailedPrecondition struct{ Message string }

func NewFailedPrecondition(message string) *FailedPrecondition {
	return &FailedPrecondition{Message: message}
}
func (e *FailedPrecondition) Error() string { return e.Message }

// WorkflowExecutionAlreadyStarted indicates a StartWorkflowExecution (or
// SignalWithStart) call collided with an existing, still-running execution
// of the same workflow id.
type WorkflowExecutionAlreadyStarted struct {
	Message        string
	StartRequestID string
	RunID          string
}

func (e *WorkflowExecutionAlreadyStarted) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("%s (runID: %s)", e.Message, e.RunID)
	}
	return e.Message
}

// NotActive indicates the request landed on a namespace replica that is not
// currently the active cluster.
type NotActive struct {
	Message     string
	Namespace   string
	ActiveCluster string
}

func (e *NotActive) Error() string { return e.Message }

// QueryFailed indicates a synchronous query's handler returned an error.
type QueryFailed struct{ Message string }

func NewQueryFailed(message string) *QueryFailed { return &QueryFailed{Message: message} }
func (e *QueryFailed) Error() string             { return e.Message }
