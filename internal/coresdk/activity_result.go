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

package coresdk

import (
	"go.flowbridge.dev/sdk/converter"
)

// PolledActivityTask is one item of the bridge's activity task stream:
// either a fresh invocation to start or a cancellation of a running one.
type PolledActivityTask struct {
	Start  *ActivityTask
	Cancel *ActivityTaskCancel
}

// ActivityTaskCompletion reports one activity invocation's outcome back over
// the bridge.
type ActivityTaskCompletion struct {
	TaskToken []byte
	Result    ActivityExecutionResult
}

// ActivityExecutionResult is the explicit return tag of an activity
// invocation; exactly one field is set. The user-facing sentinel error for
// async completion is translated into WillCompleteAsync before anything
// crosses the bridge.
type ActivityExecutionResult struct {
	Completed         *converter.Payloads
	Failed            *converter.Failure
	Cancelled         *converter.Failure
	WillCompleteAsync bool
}

// ActivityHeartbeat is a throttled keepalive carrying the latest recorded
// details for one running activity.
type ActivityHeartbeat struct {
	TaskToken []byte
	Details   *converter.Payloads
}

// ActivityHeartbeatResponse is the server's piggybacked state on a
// heartbeat: a cancellation request, a pause, or nothing.
type ActivityHeartbeatResponse struct {
	CancelRequested bool
	Paused          bool
}
