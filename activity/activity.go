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

// Package activity is the API available to activity function bodies:
// invocation info, heartbeating, and cancellation observation.
package activity

import (
	"context"

	"github.com/uber-go/tally"
	"go.uber.org/zap"

	"go.flowbridge.dev/sdk/internal"
)

type (
	// Info is the read-only view of the current invocation.
	Info = internal.ActivityInfo

	// CancellationReason tells a canceled activity why.
	CancellationReason = internal.ActivityCancellationReason
)

// ErrResultPending is returned from an activity to indicate it will be
// completed later through the client's async activity handle.
var ErrResultPending = internal.ErrActivityResultPending

// GetInfo returns information about the current invocation.
func GetInfo(ctx context.Context) Info { return internal.GetActivityInfo(ctx) }

// GetLogger returns a logger tagged with the invocation's identifiers.
func GetLogger(ctx context.Context) *zap.Logger { return internal.GetActivityLogger(ctx) }

// GetMetricsScope returns the worker's scope tagged by activity type.
func GetMetricsScope(ctx context.Context) tally.Scope { return internal.GetActivityMetricsScope(ctx) }

// RecordHeartbeat records progress details, throttled per the activity's
// heartbeat timeout before reaching the server.
func RecordHeartbeat(ctx context.Context, details ...interface{}) {
	internal.RecordActivityHeartbeat(ctx, details...)
}

// GetCancellationReason reports why ctx was canceled; meaningful only after
// ctx.Done() fires.
func GetCancellationReason(ctx context.Context) CancellationReason {
	return internal.GetActivityCancellationReason(ctx)
}

// HasHeartbeatDetails reports whether the previous attempt recorded
// heartbeat details.
func HasHeartbeatDetails(ctx context.Context) bool { return internal.HasHeartbeatDetails(ctx) }

// GetHeartbeatDetails extracts the previous attempt's last recorded
// heartbeat details into d.
func GetHeartbeatDetails(ctx context.Context, d ...interface{}) error {
	return internal.GetHeartbeatDetails(ctx, d...)
}
