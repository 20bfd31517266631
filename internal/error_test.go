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
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"go.flowbridge.dev/sdk/converter"
)

func Test_ApplicationError_RoundTrip(t *testing.T) {
	t.Parallel()
	dc := getDefaultDataConverter()

	original := NewApplicationError("insufficient funds", true, nil, "account-123", 42)
	failure := convertErrorToFailure(original, dc)
	require.Equal(t, "insufficient funds", failure.Message)
	require.NotNil(t, failure.Info.Application)
	require.True(t, failure.Info.Application.NonRetryable)
	require.Equal(t, 2, failure.Info.Application.Details.Size())

	decoded := convertFailureToError(failure, dc)
	var appErr *ApplicationError
	require.ErrorAs(t, decoded, &appErr)
	require.Equal(t, "insufficient funds", appErr.Error())
	require.True(t, appErr.NonRetryable())
	var account string
	var amount int
	require.NoError(t, appErr.Details(&account, &amount))
	require.Equal(t, "account-123", account)
	require.Equal(t, 42, amount)
}

func Test_CanceledError_RoundTrip(t *testing.T) {
	t.Parallel()
	dc := getDefaultDataConverter()

	failure := convertErrorToFailure(NewCanceledError("cleanup done"), dc)
	require.NotNil(t, failure.Info.Cancelled)

	decoded := convertFailureToError(failure, dc)
	var canceledErr *CanceledError
	require.ErrorAs(t, decoded, &canceledErr)
	var detail string
	require.NoError(t, canceledErr.Details(&detail))
	require.Equal(t, "cleanup done", detail)
	require.True(t, IsCanceledError(decoded))
}

func Test_TimeoutError_RoundTrip(t *testing.T) {
	t.Parallel()
	dc := getDefaultDataConverter()

	original := NewHeartbeatTimeoutError("checkpoint-7")
	failure := convertErrorToFailure(original, dc)
	require.NotNil(t, failure.Info.Timeout)
	require.Equal(t, converter.TimeoutTypeHeartbeat, failure.Info.Timeout.TimeoutType)

	decoded := convertFailureToError(failure, dc)
	var timeoutErr *TimeoutError
	require.ErrorAs(t, decoded, &timeoutErr)
	require.Equal(t, converter.TimeoutTypeHeartbeat, timeoutErr.TimeoutType())
	var checkpoint string
	require.NoError(t, timeoutErr.LastHeartbeatDetails(&checkpoint))
	require.Equal(t, "checkpoint-7", checkpoint)
}

func Test_TerminatedError_RoundTrip(t *testing.T) {
	t.Parallel()
	dc := getDefaultDataConverter()

	failure := convertErrorToFailure(newTerminatedError(), dc)
	require.NotNil(t, failure.Info.Terminated)

	decoded := convertFailureToError(failure, dc)
	var terminatedErr *TerminatedError
	require.ErrorAs(t, decoded, &terminatedErr)
}

func Test_ServerError_RoundTrip(t *testing.T) {
	t.Parallel()
	dc := getDefaultDataConverter()

	failure := convertErrorToFailure(NewServerError("shard unavailable", true, nil), dc)
	require.NotNil(t, failure.Info.Server)
	require.True(t, failure.Info.Server.NonRetryable)

	decoded := convertFailureToError(failure, dc)
	var serverErr *ServerError
	require.ErrorAs(t, decoded, &serverErr)
}

func Test_ActivityError_PreservesCauseChain(t *testing.T) {
	t.Parallel()
	dc := getDefaultDataConverter()

	cause := NewApplicationError("InsufficientFunds", true, nil)
	original := NewActivityError(21, 22, "worker@host", "Charge", "activity-1",
		converter.RetryStateNonRetryableFailure, cause)
	failure := convertErrorToFailure(original, dc)
	require.NotNil(t, failure.Info.Activity)
	require.Equal(t, "Charge", failure.Info.Activity.ActivityType)
	require.NotNil(t, failure.Cause)
	require.NotNil(t, failure.Cause.Info.Application)

	decoded := convertFailureToError(failure, dc)
	var activityErr *ActivityError
	require.ErrorAs(t, decoded, &activityErr)
	var appErr *ApplicationError
	require.ErrorAs(t, decoded, &appErr, "cause chain survives the round trip")
	require.True(t, appErr.NonRetryable())
}

func Test_ChildWorkflowExecutionError_RoundTrip(t *testing.T) {
	t.Parallel()
	dc := getDefaultDataConverter()

	original := NewChildWorkflowExecutionError("default", "child-wf", "run-9", "ChildType",
		10, 11, converter.RetryStateMaximumAttemptsReached,
		NewApplicationError("child blew up", false, nil))
	failure := convertErrorToFailure(original, dc)
	require.NotNil(t, failure.Info.ChildWorkflowExecution)
	require.Equal(t, "child-wf", failure.Info.ChildWorkflowExecution.WorkflowID)

	decoded := convertFailureToError(failure, dc)
	var childErr *ChildWorkflowExecutionError
	require.ErrorAs(t, decoded, &childErr)
	var appErr *ApplicationError
	require.ErrorAs(t, decoded, &appErr)
}

func Test_ArbitraryErrorBecomesRetryableApplicationFailure(t *testing.T) {
	t.Parallel()
	dc := getDefaultDataConverter()

	failure := convertErrorToFailure(errors.New("some random error"), dc)
	require.NotNil(t, failure.Info.Application)
	require.False(t, failure.Info.Application.NonRetryable)
	require.Equal(t, "errorString", failure.Info.Application.Type)

	decoded := convertFailureToError(failure, dc)
	var appErr *ApplicationError
	require.ErrorAs(t, decoded, &appErr)
	require.Equal(t, "errorString", appErr.OriginalType())
}

func Test_PanicError_RoundTrip(t *testing.T) {
	t.Parallel()
	dc := getDefaultDataConverter()

	failure := convertErrorToFailure(newPanicError("nil pointer dereference", "stack trace here"), dc)
	require.NotNil(t, failure.Info.Application)
	require.Equal(t, "stack trace here", failure.StackTrace)

	decoded := convertFailureToError(failure, dc)
	var panicErr *PanicError
	require.ErrorAs(t, decoded, &panicErr)
	require.Equal(t, "stack trace here", panicErr.StackTrace())
}

func Test_OriginalFailureReusedOnReconversion(t *testing.T) {
	t.Parallel()
	dc := getDefaultDataConverter()

	failure := convertErrorToFailure(NewApplicationError("original", false, nil), dc)
	decoded := convertFailureToError(failure, dc)
	// Converting a decoded error back must return the failure it came from
	// verbatim, so round trips are lossless even for unknown fields.
	require.Same(t, failure, convertErrorToFailure(decoded, dc))
}

func Test_IsRetryable(t *testing.T) {
	t.Parallel()

	require.False(t, IsRetryable(nil, nil))
	require.False(t, IsRetryable(newTerminatedError(), nil))
	require.False(t, IsRetryable(NewCanceledError(), nil))
	require.False(t, IsRetryable(NewApplicationError("x", true, nil), nil))
	require.True(t, IsRetryable(NewApplicationError("x", false, nil), nil))
	require.True(t, IsRetryable(errors.New("plain"), nil))
	require.False(t, IsRetryable(errors.New("plain"), []string{"errorString"}))
	require.False(t, IsRetryable(NewTimeoutError(converter.TimeoutTypeScheduleToStart, nil), nil))
	require.True(t, IsRetryable(NewTimeoutError(converter.TimeoutTypeStartToClose, nil), nil))
	require.False(t, IsRetryable(NewServerError("x", true, nil), nil))
	require.True(t, IsRetryable(NewServerError("x", false, nil), nil))
}

func Test_EncodeCommonAttributes(t *testing.T) {
	t.Parallel()
	dc := getDefaultDataConverter()
	fc := converter.NewDefaultFailureConverter(true)

	failure := convertErrorToFailure(NewApplicationError("secret message", false, nil), dc)
	encoded := fc.EncodeFailure(failure, dc)
	require.NotEqual(t, "secret message", encoded.Message)
	require.NotNil(t, encoded.EncodedAttributes)

	decoded := fc.DecodeFailure(encoded, dc)
	require.Equal(t, "secret message", decoded.Message)
}
