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
	"time"

	"github.com/uber-go/tally"
	"go.uber.org/zap"

	"go.flowbridge.dev/sdk/internal/coresdk"
)

// ActivityCancellationReason tells a canceled activity why: observable via
// GetActivityCancellationReason inside the invocation.
type ActivityCancellationReason = coresdk.ActivityCancellationReason

type (
	// ActivityInfo is the read-only view of the current invocation exposed
	// to activity code via GetActivityInfo.
	ActivityInfo struct {
		TaskToken         []byte
		ActivityID        string
		ActivityType      string
		WorkflowExecution WorkflowExecution
		WorkflowType      string
		Attempt           int32
		ScheduledTime     time.Time
		HeartbeatTimeout  time.Duration
		IsLocalActivity   bool
	}

	// activityEnvironment is the per-invocation state installed into the
	// context.Context every activity function receives.
	activityEnvironment struct {
		info          ActivityInfo
		logger        *zap.Logger
		metricsScope  tally.Scope
		dataConverter DataConverter

		heartbeatDetails *Payloads
		recordHeartbeat  func(details *Payloads)
		doCancel         context.CancelFunc

		cancelReason coresdk.ActivityCancellationReason
		cancelCause  error
	}
)

type activityEnvContextKey struct{}

func withActivityEnvironment(ctx context.Context, env *activityEnvironment) context.Context {
	return context.WithValue(ctx, activityEnvContextKey{}, env)
}

func getActivityEnvironment(ctx context.Context) *activityEnvironment {
	env, ok := ctx.Value(activityEnvContextKey{}).(*activityEnvironment)
	if !ok || env == nil {
		panic("not an activity context: this API must be called from inside an activity invocation")
	}
	return env
}

// GetActivityInfo returns information about the current activity invocation.
func GetActivityInfo(ctx context.Context) ActivityInfo {
	return getActivityEnvironment(ctx).info
}

// GetActivityLogger returns a logger tagged with the current invocation's
// identifiers.
func GetActivityLogger(ctx context.Context) *zap.Logger {
	return getActivityEnvironment(ctx).logger
}

// GetActivityMetricsScope returns the worker's metrics scope tagged with
// this activity type.
func GetActivityMetricsScope(ctx context.Context) tally.Scope {
	return getActivityEnvironment(ctx).metricsScope
}

// GetActivityCancellationReason reports why ctx was canceled; meaningful
// only once ctx.Done() is closed.
func GetActivityCancellationReason(ctx context.Context) coresdk.ActivityCancellationReason {
	return getActivityEnvironment(ctx).cancelReason
}

// RecordActivityHeartbeat records progress details and, subject to the
// per-activity throttle, reports them to the server. Failing to encode
// details cancels the invocation with reason heartbeatRecordFailure.
func RecordActivityHeartbeat(ctx context.Context, details ...interface{}) {
	env := getActivityEnvironment(ctx)
	if env.info.IsLocalActivity {
		return
	}
	payloads, err := encodeArgs(env.dataConverter, details)
	if err != nil {
		env.logger.Error("unable to encode heartbeat details", zap.Error(err))
		env.cancelWith(coresdk.ActivityCancellationHeartbeatRecordFailure, err)
		return
	}
	if env.recordHeartbeat != nil {
		env.recordHeartbeat(payloads)
	}
}

// HasHeartbeatDetails reports whether the previous attempt recorded
// heartbeat details.
func HasHeartbeatDetails(ctx context.Context) bool {
	env := getActivityEnvironment(ctx)
	return env.heartbeatDetails.Size() > 0
}

// GetHeartbeatDetails extracts the previous attempt's last recorded
// heartbeat details into d, for resuming a long operation mid-way.
func GetHeartbeatDetails(ctx context.Context, d ...interface{}) error {
	env := getActivityEnvironment(ctx)
	return newEncodedValues(env.heartbeatDetails, env.dataConverter).Get(d...)
}

// cancelWith records the reason, then cancels the invocation's context; set
// by the task pump when the environment is built.
func (env *activityEnvironment) cancelWith(reason coresdk.ActivityCancellationReason, cause error) {
	if env.cancelCause != nil {
		return
	}
	env.cancelReason = reason
	if env.doCancel != nil {
		env.doCancel()
	}
	env.cancelCause = causeOrReason(cause, reason)
}

func causeOrReason(cause error, reason coresdk.ActivityCancellationReason) error {
	if cause != nil {
		return cause
	}
	return NewCanceledError(reason.String())
}
