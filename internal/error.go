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
	"fmt"
	"reflect"

	"go.flowbridge.dev/sdk/converter"
)

/*
If activity fails then *ActivityError is returned to the workflow code. The error has important information about activity
and actual error which caused activity failure. This internal error can be unwrapped using errors.Unwrap() or checked using errors.As().
Below are the possible types of internal error:
1) *ApplicationError: (this should be the most common one)
	*ApplicationError can be returned in two cases:
		- If activity implementation returns *ApplicationError by using NewApplicationError() API.
		  The err would contain a message, details, and NonRetryable flag. Workflow code could check this flag and details to determine
		  what kind of error it was and take actions based on it. The details is encoded payload which workflow code could extract
		  to strong typed variable. Workflow code needs to know what the types of the encoded details are before extracting them.
		- If activity implementation returns errors other than from NewApplicationError() API. In this case OriginalType()
		  will return orginal type of an error represented as string. Workflow code could check this type to determine what kind of error it was
		  and take actions based on the type. These errors are retryable by default, unless error type is specified in retry policy.
2) *CanceledError:
	If activity was canceled, internal error will be an instance of *CanceledError. When activity cancels itself by
	returning NewCanceledError() it would supply optional details which could be extracted by workflow code.
3) *TimeoutError:
	If activity was timed out (several timeout types), internal error will be an instance of *TimeoutError. The err contains
	details about what type of timeout it was.
4) *PanicError:
	If activity code panic while executing, temporal activity worker will report it as activity failure to temporal server.
	The SDK will present that failure as *PanicError. The err contains a string	representation of the panic message and
	the call stack when panic was happen.

Workflow code could handle errors based on different types of error. Below is sample code of how error handling looks like.

err := workflow.ExecuteActivity(ctx, MyActivity, ...).Get(ctx, nil)
if err != nil {
	var applicationErr *ApplicationError
	if errors.As(err, &applicationError) {
		// handle activity errors (created via NewApplicationError() API)
		if !applicationErr.NonRetryable() {
			// manually retry activity
		}
		var detailMsg string // assuming activity return error by NewApplicationError("message", true, "string details")
		applicationErr.Details(&detailMsg) // extract strong typed details

		// handle activity errors (errors created other than using NewApplicationError() API)
		switch err.OriginalType() {
		case "CustomErrTypeA":
			// handle CustomErrTypeA
		case CustomErrTypeB:
			// handle CustomErrTypeB
		default:
			// newer version of activity could return new errors that workflow was not aware of.
		}
	}

	var canceledErr *CanceledError
	if errors.As(err, &canceledErr) {
		// handle cancellation
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		// handle timeout, could check timeout type by timeoutErr.TimeoutType()
        switch err.TimeoutType() {
        case converter.TimeoutTypeScheduleToStart:
                // Handle ScheduleToStart timeout.
        case converter.TimeoutTypeStartToClose:
                // Handle StartToClose timeout.
        case converter.TimeoutTypeHeartbeat:
                // Handle heartbeat timeout.
        default:
        }
	}

	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		// handle panic, message and stack trace are available by panicErr.Error() and panicErr.StackTrace()
	}
}

Errors from child workflow should be handled in a similar way, except that instance of *ChildWorkflowExecutionError is returned to
workflow code. It will contains *ActivityError, which in turn will contains on of the errors above.
When panic happen in workflow implementation code, SDK catches that panic, fails the workflow task and evicts
the cached workflow instance; the process keeps running.

Workflow consumers will get an instance of *WorkflowExecutionError. This error will contains one of errors above.
*/

type (
	// ApplicationError returned from activity implementations with message and optional details.
	ApplicationError struct {
		temporalError
		message      string
		originalType string
		nonRetryable bool
		cause        error
		details      Values
	}

	// TimeoutError returned when activity or child workflow timed out.
	TimeoutError struct {
		temporalError
		timeoutType          converter.TimeoutType
		lastHeartbeatDetails Values
		cause                error
	}

	// CanceledError returned when operation was canceled.
	CanceledError struct {
		temporalError
		details Values
	}

	// TerminatedError returned when workflow was terminated.
	TerminatedError struct {
		temporalError
	}

	// PanicError contains information about panicked workflow/activity.
	PanicError struct {
		temporalError
		value      interface{}
		stackTrace string
	}

	// workflowPanicError contains information about panicked workflow.
	// Used to distinguish go panic in the workflow code from a PanicError returned from a workflow function.
	workflowPanicError struct {
		value      interface{}
		stackTrace string
	}

	// ContinueAsNewError contains information about how to continue the workflow as new.
	ContinueAsNewError struct {
		wfn    interface{}
		args   []interface{}
		params *ExecuteWorkflowParams
	}

	// UnknownExternalWorkflowExecutionError can be returned when external workflow doesn't exist
	UnknownExternalWorkflowExecutionError struct{}

	// ChildWorkflowExecutionAlreadyStartedError is returned from
	// ExecuteChildWorkflow when the server refuses the start because an
	// execution with the same workflow ID is already running.
	ChildWorkflowExecutionAlreadyStartedError struct {
		WorkflowID string
	}

	// ServerError can be returned from server.
	ServerError struct {
		temporalError
		message      string
		nonRetryable bool
		cause        error
	}

	// ActivityError is returned from workflow when activity returned an error.
	// Unwrap this error to get actual cause.
	ActivityError struct {
		temporalError
		scheduledEventID int64
		startedEventID   int64
		identity         string
		activityType     string
		activityID       string
		retryState       converter.RetryState
		cause            error
	}

	// ChildWorkflowExecutionError is returned from workflow when child workflow returned an error.
	// Unwrap this error to get actual cause.
	ChildWorkflowExecutionError struct {
		temporalError
		namespace        string
		workflowID       string
		runID            string
		workflowType     string
		initiatedEventID int64
		startedEventID   int64
		retryState       converter.RetryState
		cause            error
	}

	// WorkflowExecutionError is returned from workflow.
	// Unwrap this error to get actual cause.
	WorkflowExecutionError struct {
		workflowID   string
		runID        string
		workflowType string
		cause        error
	}

	// WorkflowExecutionAlreadyStartedError is returned from a start when an
	// execution with the same workflow id is already running and the id
	// reuse/conflict policy rejects the collision.
	WorkflowExecutionAlreadyStartedError struct {
		WorkflowID   string
		RunID        string
		WorkflowType string
	}

	// WorkflowUpdateFailedError is returned from WorkflowUpdateHandle.Get
	// when the update was rejected or its handler failed.
	// Unwrap this error to get actual cause.
	WorkflowUpdateFailedError struct {
		WorkflowID string
		RunID      string
		UpdateID   string
		cause      error
	}

	// AsyncActivityCanceledError is returned from an async activity
	// heartbeat when the server has requested cancellation of the activity.
	AsyncActivityCanceledError struct{}

	temporalError struct {
		originalFailure *converter.Failure
	}

	failureHolder interface {
		setFailure(*converter.Failure)
		failure() *converter.Failure
	}
)

// ErrActivityResultPending is returned from activity's implementation to indicate the activity is not completed when
// activity method returns. Activity needs to be completed by Client.AsyncActivityHandle(...).Complete() separately. For
// example, if an activity require human interaction (like approve an expense report), the activity could return
// activity.ErrResultPending which indicate the activity is not done yet. Then, when the waited human action happened, it
// needs to trigger something that could report the activity completed event to temporal server via
// Client.AsyncActivityHandle(...).Complete().
var ErrActivityResultPending = errors.New("not error: do not autocomplete, using Client.AsyncActivityHandle(...).Complete() to complete")

// NewApplicationError create new instance of *ApplicationError with message and optional details.
func NewApplicationError(message string, nonRetryable bool, cause error, details ...interface{}) *ApplicationError {
	applicationErr := &ApplicationError{
		message:      message,
		originalType: getErrorType(&ApplicationError{}),
		nonRetryable: nonRetryable,
		cause:        cause}

	// When return error to user, use EncodedValues as details and data is ready to be decoded by calling Get
	if len(details) == 1 {
		if d, ok := details[0].(*EncodedValues); ok {
			applicationErr.details = d
			return applicationErr
		}
	}

	// When create error for server, use ErrorDetailsValues as details to hold values and encode later
	applicationErr.details = ErrorDetailsValues(details)
	return applicationErr
}

// NewTimeoutError creates TimeoutError instance.
// Use NewHeartbeatTimeoutError to create heartbeat TimeoutError.
func NewTimeoutError(timeoutType converter.TimeoutType, cause error, lastHeatbeatDetails ...interface{}) *TimeoutError {
	timeoutErr := &TimeoutError{
		timeoutType: timeoutType,
		cause:       cause,
	}

	if len(lastHeatbeatDetails) == 1 {
		if d, ok := lastHeatbeatDetails[0].(*EncodedValues); ok {
			timeoutErr.lastHeartbeatDetails = d
			return timeoutErr
		}
	}
	timeoutErr.lastHeartbeatDetails = ErrorDetailsValues(lastHeatbeatDetails)
	return timeoutErr
}

// NewHeartbeatTimeoutError creates TimeoutError instance.
func NewHeartbeatTimeoutError(details ...interface{}) *TimeoutError {
	return NewTimeoutError(converter.TimeoutTypeHeartbeat, nil, details...)
}

// NewCanceledError creates CanceledError instance.
func NewCanceledError(details ...interface{}) *CanceledError {
	if len(details) == 1 {
		if d, ok := details[0].(*EncodedValues); ok {
			return &CanceledError{details: d}
		}
	}
	return &CanceledError{details: ErrorDetailsValues(details)}
}

// NewServerError create new instance of *ServerError with message.
func NewServerError(message string, nonRetryable bool, cause error) *ServerError {
	return &ServerError{message: message, nonRetryable: nonRetryable, cause: cause}
}

// NewActivityError creates ActivityError instance.
func NewActivityError(
	scheduledEventID int64,
	startedEventID int64,
	identity string,
	activityType string,
	activityID string,
	retryState converter.RetryState,
	cause error,
) *ActivityError {
	return &ActivityError{
		scheduledEventID: scheduledEventID,
		startedEventID:   startedEventID,
		identity:         identity,
		activityType:     activityType,
		activityID:       activityID,
		retryState:       retryState,
		cause:            cause,
	}
}

// NewChildWorkflowExecutionError creates ChildWorkflowExecutionError instance.
func NewChildWorkflowExecutionError(
	namespace string,
	workflowID string,
	runID string,
	workflowType string,
	initiatedEventID int64,
	startedEventID int64,
	retryState converter.RetryState,
	cause error,
) *ChildWorkflowExecutionError {
	return &ChildWorkflowExecutionError{
		namespace:        namespace,
		workflowID:       workflowID,
		runID:            runID,
		workflowType:     workflowType,
		initiatedEventID: initiatedEventID,
		startedEventID:   startedEventID,
		retryState:       retryState,
		cause:            cause,
	}
}

// NewWorkflowExecutionError creates WorkflowExecutionError instance.
func NewWorkflowExecutionError(
	workflowID string,
	runID string,
	workflowType string,
	cause error,
) *WorkflowExecutionError {
	return &WorkflowExecutionError{
		workflowID:   workflowID,
		runID:        runID,
		workflowType: workflowType,
		cause:        cause,
	}
}

func (e *temporalError) setFailure(f *converter.Failure) {
	e.originalFailure = f
}

func (e *temporalError) failure() *converter.Failure {
	return e.originalFailure
}

// IsCanceledError returns whether error in CanceledError.
func IsCanceledError(err error) bool {
	var canceledErr *CanceledError
	return errors.As(err, &canceledErr)
}

// NewContinueAsNewError creates ContinueAsNewError instance
// If the workflow main function returns this error then the current execution is ended and
// the new execution with same workflow ID is started automatically with options
// provided to this function.
//  ctx - the new workflow takes its options (task queue, run timeout, task timeout, retry policy, memo,
//	  search attributes) from the workflow options carried in ctx, which are those of the current run.
//  wfn - workflow function. for new execution it can be different from the currently running.
//  args - arguments for the new workflow.
//
func NewContinueAsNewError(ctx Context, wfn interface{}, args ...interface{}) *ContinueAsNewError {
	// Validate type and its arguments.
	options := getWorkflowEnvOptions(ctx)
	if options == nil {
		panic("context is missing required options for continue as new")
	}
	env := getWorkflowEnvironment(ctx)
	workflowType, input, err := getValidatedWorkflowFunction(wfn, args, options.DataConverter, env.GetRegistry())
	if err != nil {
		panic(err)
	}

	params := &ExecuteWorkflowParams{
		WorkflowOptions: *options,
		WorkflowType:    workflowType,
		Input:           input,
		Header:          getWorkflowHeader(ctx, options.ContextPropagators),
	}
	return &ContinueAsNewError{wfn: wfn, args: args, params: params}
}

// Error from error interface
func (e *ApplicationError) Error() string {
	return e.message
}

// OriginalType returns original error type represented as string.
func (e *ApplicationError) OriginalType() string {
	return e.originalType
}

// HasDetails return if this error has strong typed detail data.
func (e *ApplicationError) HasDetails() bool {
	return e.details != nil && e.details.HasValues()
}

// Details extracts strong typed detail data of this custom error. If there is no details, it will return ErrNoData.
func (e *ApplicationError) Details(d ...interface{}) error {
	if !e.HasDetails() {
		return ErrNoData
	}
	return e.details.Get(d...)
}

// NonRetryable indicated if error is not retryable.
func (e *ApplicationError) NonRetryable() bool {
	return e.nonRetryable
}

func (e *ApplicationError) Unwrap() error {
	return e.cause
}

// Error from error interface
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("TimeoutType: %v, Cause: %v", e.timeoutType, e.cause)
}

func (e *TimeoutError) Unwrap() error {
	return e.cause
}

// TimeoutType return timeout type of this error
func (e *TimeoutError) TimeoutType() converter.TimeoutType {
	return e.timeoutType
}

// HasLastHeartbeatDetails return if this error has strong typed detail data.
func (e *TimeoutError) HasLastHeartbeatDetails() bool {
	return e.lastHeartbeatDetails != nil && e.lastHeartbeatDetails.HasValues()
}

// LastHeartbeatDetails extracts strong typed detail data of this error. If there is no details, it will return ErrNoData.
func (e *TimeoutError) LastHeartbeatDetails(d ...interface{}) error {
	if !e.HasLastHeartbeatDetails() {
		return ErrNoData
	}
	return e.lastHeartbeatDetails.Get(d...)
}

// Error from error interface
func (e *CanceledError) Error() string {
	return "Canceled"
}

// HasDetails return if this error has strong typed detail data.
func (e *CanceledError) HasDetails() bool {
	return e.details != nil && e.details.HasValues()
}

// Details extracts strong typed detail data of this error.
func (e *CanceledError) Details(d ...interface{}) error {
	if !e.HasDetails() {
		return ErrNoData
	}
	return e.details.Get(d...)
}

func newPanicError(value interface{}, stackTrace string) *PanicError {
	return &PanicError{value: value, stackTrace: stackTrace}
}

func newWorkflowPanicError(value interface{}, stackTrace string) *workflowPanicError {
	return &workflowPanicError{value: value, stackTrace: stackTrace}
}

// Error from error interface
func (e *PanicError) Error() string {
	return fmt.Sprintf("%v", e.value)
}

// StackTrace return stack trace of the panic
func (e *PanicError) StackTrace() string {
	return e.stackTrace
}

// Error from error interface
func (e *workflowPanicError) Error() string {
	return fmt.Sprintf("%v", e.value)
}

// StackTrace return stack trace of the panic
func (e *workflowPanicError) StackTrace() string {
	return e.stackTrace
}

// Error from error interface
func (e *ContinueAsNewError) Error() string {
	return "ContinueAsNew"
}

// WorkflowType return WorkflowType of the new run
func (e *ContinueAsNewError) WorkflowType() *WorkflowType {
	return e.params.WorkflowType
}

// Args return workflow argument of the new run
func (e *ContinueAsNewError) Args() []interface{} {
	return e.args
}

// newTerminatedError creates NewTerminatedError instance
func newTerminatedError() *TerminatedError {
	return &TerminatedError{}
}

// Error from error interface
func (e *TerminatedError) Error() string {
	return "Terminated"
}

// newUnknownExternalWorkflowExecutionError creates UnknownExternalWorkflowExecutionError instance
func newUnknownExternalWorkflowExecutionError() *UnknownExternalWorkflowExecutionError {
	return &UnknownExternalWorkflowExecutionError{}
}

// Error from error interface
func (e *UnknownExternalWorkflowExecutionError) Error() string {
	return "UnknownExternalWorkflowExecution"
}

// Error from error interface
func (e *ChildWorkflowExecutionAlreadyStartedError) Error() string {
	return fmt.Sprintf("child workflow already started (workflowID: %s)", e.WorkflowID)
}

// Error from error interface
func (e *ServerError) Error() string {
	return e.message
}

func (e *ServerError) Unwrap() error {
	return e.cause
}

func (e *ActivityError) Error() string {
	return fmt.Sprintf("activity task error (scheduledEventID: %d, startedEventID: %d, identity: %s): %v", e.scheduledEventID, e.startedEventID, e.identity, e.cause)
}

func (e *ActivityError) Unwrap() error {
	return e.cause
}

// Error from error interface
func (e *ChildWorkflowExecutionError) Error() string {
	return fmt.Sprintf("child workflow execution error (workflowID: %s, runID: %s, initiatedEventID: %d, startedEventID: %d, workflowType: %s): %v",
		e.workflowID, e.runID, e.initiatedEventID, e.startedEventID, e.workflowType, e.cause)
}

func (e *ChildWorkflowExecutionError) Unwrap() error {
	return e.cause
}

// Error from error interface
func (e *WorkflowExecutionError) Error() string {
	return fmt.Sprintf("workflow execution error (workflowID: %s, runID: %s, workflowType: %s): %v",
		e.workflowID, e.runID, e.workflowType, e.cause)
}

func (e *WorkflowExecutionError) Unwrap() error {
	return e.cause
}

// Error from error interface
func (e *WorkflowExecutionAlreadyStartedError) Error() string {
	return fmt.Sprintf("workflow execution already started (workflowID: %s, runID: %s, workflowType: %s)",
		e.WorkflowID, e.RunID, e.WorkflowType)
}

// Error from error interface
func (e *WorkflowUpdateFailedError) Error() string {
	return fmt.Sprintf("workflow update failed (workflowID: %s, runID: %s, updateID: %s): %v",
		e.WorkflowID, e.RunID, e.UpdateID, e.cause)
}

func (e *WorkflowUpdateFailedError) Unwrap() error {
	return e.cause
}

// Error from error interface
func (e *AsyncActivityCanceledError) Error() string {
	return "activity cancellation requested by server"
}

func convertErrDetailsToPayloads(details Values, dc DataConverter) *converter.Payloads {
	switch d := details.(type) {
	case ErrorDetailsValues:
		data, err := encodeArgs(dc, d)
		if err != nil {
			panic(err)
		}
		return data
	case *EncodedValues:
		return d.values
	default:
		panic(fmt.Sprintf("unknown error details type %T", details))
	}
}

// IsRetryable returns if error retryable or not.
func IsRetryable(err error, nonRetryableTypes []string) bool {
	if err == nil {
		return false
	}

	var terminatedErr *TerminatedError
	var canceledErr *CanceledError
	var workflowPanicErr *workflowPanicError
	if errors.As(err, &terminatedErr) || errors.As(err, &canceledErr) || errors.As(err, &workflowPanicErr) {
		return false
	}

	var applicationErr *ApplicationError
	var applicationErrOriginalType string
	if errors.As(err, &applicationErr) {
		if applicationErr.nonRetryable {
			return false
		}
		applicationErrOriginalType = applicationErr.originalType
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		if timeoutErr.timeoutType != converter.TimeoutTypeStartToClose &&
			timeoutErr.timeoutType != converter.TimeoutTypeHeartbeat {
			return false
		}
	}

	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		if serverErr.nonRetryable {
			return false
		}
	}

	for {
		causeErr := errors.Unwrap(err)
		if causeErr == nil {
			break
		}
		err = causeErr
	}
	errType := getErrorType(err)
	for _, nonRetryableType := range nonRetryableTypes {
		if nonRetryableType == errType || nonRetryableType == applicationErrOriginalType {
			return false
		}
	}

	return true
}

func getErrorType(err error) string {
	var t reflect.Type
	for t = reflect.TypeOf(err); t.Kind() == reflect.Ptr; t = t.Elem() {
	}

	return t.Name()
}

// convertErrorToFailure converts error to failure.
func convertErrorToFailure(err error, dc DataConverter) *converter.Failure {
	if err == nil {
		return nil
	}

	if fh, ok := err.(failureHolder); ok {
		if fh.failure() != nil {
			return fh.failure()
		}
	}

	failure := &converter.Failure{
		Source:  "GoSDK",
		Message: err.Error(),
	}

	switch err := err.(type) {
	case *ApplicationError:
		failure.Info.Application = &converter.ApplicationFailureInfo{
			Type:         getErrorType(err),
			NonRetryable: err.nonRetryable,
			Details:      convertErrDetailsToPayloads(err.details, dc),
		}
	case *CanceledError:
		failure.Info.Cancelled = &converter.CancelledFailureInfo{
			Details: convertErrDetailsToPayloads(err.details, dc),
		}
	case *PanicError:
		failure.Info.Application = &converter.ApplicationFailureInfo{
			Type: getErrorType(err),
		}
		failure.StackTrace = err.StackTrace()
	case *workflowPanicError:
		failure.Info.Application = &converter.ApplicationFailureInfo{
			Type:         getErrorType(&PanicError{}),
			NonRetryable: true,
		}
		failure.StackTrace = err.StackTrace()
	case *TimeoutError:
		failure.Info.Timeout = &converter.TimeoutFailureInfo{
			TimeoutType:          err.timeoutType,
			LastHeartbeatDetails: convertErrDetailsToPayloads(err.lastHeartbeatDetails, dc),
		}
	case *TerminatedError:
		failure.Info.Terminated = &converter.TerminatedFailureInfo{}
	case *ServerError:
		failure.Info.Server = &converter.ServerFailureInfo{
			NonRetryable: err.nonRetryable,
		}
	case *ActivityError:
		failure.Info.Activity = &converter.ActivityFailureInfo{
			ScheduledEventID: err.scheduledEventID,
			StartedEventID:   err.startedEventID,
			Identity:         err.identity,
			ActivityType:     err.activityType,
			ActivityID:       err.activityID,
			RetryState:       err.retryState,
		}
	case *ChildWorkflowExecutionError:
		failure.Info.ChildWorkflowExecution = &converter.ChildWorkflowExecutionFailureInfo{
			Namespace:        err.namespace,
			WorkflowID:       err.workflowID,
			RunID:            err.runID,
			WorkflowType:     err.workflowType,
			InitiatedEventID: err.initiatedEventID,
			StartedEventID:   err.startedEventID,
			RetryState:       err.retryState,
		}
	default: // All unknown errors are considered to be retryable ApplicationFailureInfo.
		failure.Info.Application = &converter.ApplicationFailureInfo{
			Type:         getErrorType(err),
			NonRetryable: false,
		}
	}

	failure.Cause = convertErrorToFailure(errors.Unwrap(err), dc)

	return failure
}

// convertFailureToError converts failure to error.
func convertFailureToError(failure *converter.Failure, dc DataConverter) error {
	if failure == nil {
		return nil
	}

	var err error

	switch info := failure.Info; {
	case info.Application != nil:
		details := newEncodedValues(info.Application.Details, dc)
		switch info.Application.Type {
		case getErrorType(&ApplicationError{}):
			err = NewApplicationError(failure.Message, info.Application.NonRetryable, convertFailureToError(failure.Cause, dc), details)
		case getErrorType(&PanicError{}):
			err = newPanicError(failure.Message, failure.StackTrace)
		default:
			applicationErr := NewApplicationError(failure.Message, false, convertFailureToError(failure.Cause, dc))
			applicationErr.originalType = info.Application.Type
			err = applicationErr
		}
	case info.Cancelled != nil:
		details := newEncodedValues(info.Cancelled.Details, dc)
		err = NewCanceledError(details)
	case info.Timeout != nil:
		lastHeartbeatDetails := newEncodedValues(info.Timeout.LastHeartbeatDetails, dc)
		err = NewTimeoutError(
			info.Timeout.TimeoutType,
			convertFailureToError(failure.Cause, dc),
			lastHeartbeatDetails)
	case info.Terminated != nil:
		err = newTerminatedError()
	case info.Server != nil:
		err = NewServerError(failure.Message, info.Server.NonRetryable, convertFailureToError(failure.Cause, dc))
	case info.Activity != nil:
		err = NewActivityError(
			info.Activity.ScheduledEventID,
			info.Activity.StartedEventID,
			info.Activity.Identity,
			info.Activity.ActivityType,
			info.Activity.ActivityID,
			info.Activity.RetryState,
			convertFailureToError(failure.Cause, dc),
		)
	case info.ChildWorkflowExecution != nil:
		err = NewChildWorkflowExecutionError(
			info.ChildWorkflowExecution.Namespace,
			info.ChildWorkflowExecution.WorkflowID,
			info.ChildWorkflowExecution.RunID,
			info.ChildWorkflowExecution.WorkflowType,
			info.ChildWorkflowExecution.InitiatedEventID,
			info.ChildWorkflowExecution.StartedEventID,
			info.ChildWorkflowExecution.RetryState,
			convertFailureToError(failure.Cause, dc),
		)
	}

	if err == nil {
		// All unknown types are considered to be retryable ApplicationError.
		err = NewApplicationError(failure.Message, false, convertFailureToError(failure.Cause, dc))
	}

	if fh, ok := err.(failureHolder); ok {
		fh.setFailure(failure)
	}

	return err
}
