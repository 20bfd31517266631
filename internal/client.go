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
	"fmt"
	"io"
	"time"

	"github.com/pborman/uuid"
	"github.com/uber-go/tally"
	"go.uber.org/zap"

	"go.flowbridge.dev/sdk/converter"
	"go.flowbridge.dev/sdk/internal/common/metrics"
	"go.flowbridge.dev/sdk/internal/common/rpc"
	"go.flowbridge.dev/sdk/internal/coresdk"
	"go.flowbridge.dev/sdk/internal/serviceerror"
	"go.flowbridge.dev/sdk/internal/workflowservice"
)

const (
	// QueryTypeStackTrace is the built-in query returning a rendering of
	// every blocked coroutine, for debugging a stuck workflow.
	QueryTypeStackTrace = "__stack_trace"

	// QueryTypeCurrentDetails is the built-in query returning the string
	// last set via SetCurrentDetails.
	QueryTypeCurrentDetails = "__current_details"
)

type (
	// ClientOptions configures a client.
	ClientOptions struct {
		Namespace          string
		Identity           string
		Logger             *zap.Logger
		MetricsScope       tally.Scope
		DataConverter      DataConverter
		FailureConverter   converter.FailureConverter
		ContextPropagators []ContextPropagator
		Interceptors       []ClientInterceptor
	}

	// StartWorkflowOptions configures one workflow start.
	StartWorkflowOptions struct {
		// ID is the caller-chosen workflow id; a fresh UUID when empty.
		ID        string
		TaskQueue string

		WorkflowExecutionTimeout time.Duration
		WorkflowRunTimeout       time.Duration
		WorkflowTaskTimeout      time.Duration

		WorkflowIDReusePolicy    workflowservice.WorkflowIDReusePolicy
		WorkflowIDConflictPolicy workflowservice.WorkflowIDConflictPolicy
		RetryPolicy              *coresdk.RetryPolicy
		CronSchedule             string
		Memo                     map[string]interface{}
		SearchAttributes         map[string]interface{}
		// StartDelay holds the first workflow task back for the given
		// duration; incompatible with CronSchedule.
		StartDelay time.Duration
	}

	// Client starts and manages workflow executions, drives async activity
	// completion, and manages schedules, all through the interceptor chain.
	Client interface {
		// ExecuteWorkflow starts a workflow and returns its run handle.
		// workflow is a registered function or a type name string.
		ExecuteWorkflow(ctx context.Context, options StartWorkflowOptions, workflow interface{}, args ...interface{}) (WorkflowRun, error)

		// GetWorkflow returns a run handle for an existing execution; an
		// empty runID targets whichever run is current.
		GetWorkflow(ctx context.Context, workflowID, runID string) WorkflowRun

		// SignalWorkflow delivers a signal, fire-and-forget.
		SignalWorkflow(ctx context.Context, workflowID, runID, signalName string, arg interface{}) error

		// SignalWithStartWorkflow signals workflowID, starting a new run
		// first if none is executing.
		SignalWithStartWorkflow(ctx context.Context, workflowID, signalName string, signalArg interface{},
			options StartWorkflowOptions, workflow interface{}, workflowArgs ...interface{}) (WorkflowRun, error)

		// CancelWorkflow requests cooperative cancellation.
		CancelWorkflow(ctx context.Context, workflowID, runID string) error

		// TerminateWorkflow forcibly stops an execution.
		TerminateWorkflow(ctx context.Context, workflowID, runID, reason string, details ...interface{}) error

		// QueryWorkflow runs a synchronous query against the execution.
		QueryWorkflow(ctx context.Context, workflowID, runID, queryType string, args ...interface{}) (converter.Value, error)

		// QueryWorkflowWithOptions is QueryWorkflow with a reject condition.
		QueryWorkflowWithOptions(ctx context.Context, in *QueryWorkflowInput) (converter.Value, error)

		// UpdateWorkflow starts an update and returns its handle once it
		// reaches options' wait stage.
		UpdateWorkflow(ctx context.Context, options UpdateWorkflowOptions) (WorkflowUpdateHandle, error)

		// DescribeWorkflowExecution snapshots the execution's current state,
		// including pending activities.
		DescribeWorkflowExecution(ctx context.Context, workflowID, runID string) (*WorkflowExecutionDescription, error)

		// AsyncActivityHandle addresses an activity that returned
		// ErrActivityResultPending, by task token or by id triple.
		AsyncActivityHandle(taskToken []byte, id *AsyncActivityID) AsyncActivityHandle

		// ScheduleClient returns the schedule management surface.
		ScheduleClient() ScheduleClient

		// Close releases the underlying connection, if the client owns one.
		Close()
	}

	// WorkflowRun is a value-like reference to one started execution chain.
	WorkflowRun interface {
		// GetID returns the workflow id.
		GetID() string
		// GetRunID returns the run id the handle was created with (the first
		// run of the chain for a fresh start).
		GetRunID() string
		// Get blocks until the chain reaches a terminal state and decodes
		// the result into valuePtr. By default continue-as-new is followed
		// to the final run.
		Get(ctx context.Context, valuePtr interface{}) error
		// GetWithOptions is Get with the follow behavior made explicit.
		GetWithOptions(ctx context.Context, valuePtr interface{}, options WorkflowRunGetOptions) error
	}

	// WorkflowRunGetOptions tunes WorkflowRun.Get.
	WorkflowRunGetOptions struct {
		// DisableFollowingRuns stops at the first terminal event even when
		// it chains into a new run (continue-as-new, retry, cron).
		DisableFollowingRuns bool
	}

	// UpdateWorkflowOptions configures one workflow update.
	UpdateWorkflowOptions struct {
		WorkflowID   string
		RunID        string
		UpdateName   string
		UpdateID     string
		Args         []interface{}
		WaitForStage workflowservice.UpdateWorkflowStage
	}

	// WorkflowUpdateHandle tracks one update through completion.
	WorkflowUpdateHandle interface {
		WorkflowID() string
		RunID() string
		UpdateID() string
		// Get blocks until the update completes and decodes its result;
		// rejection or handler failure surfaces as WorkflowUpdateFailedError.
		Get(ctx context.Context, valuePtr interface{}) error
	}

	// AsyncActivityHandle drives completion of an activity that returned
	// ErrActivityResultPending.
	AsyncActivityHandle interface {
		// Heartbeat records progress; returns AsyncActivityCanceledError if
		// the server has requested cancellation, or a NotFound serviceerror
		// if the activity no longer exists.
		Heartbeat(ctx context.Context, details ...interface{}) error
		// Complete reports the activity's result.
		Complete(ctx context.Context, result interface{}) error
		// Fail reports the activity's failure.
		Fail(ctx context.Context, err error) error
		// ReportCancellation acknowledges a requested cancellation.
		ReportCancellation(ctx context.Context, details ...interface{}) error
	}

	// WorkflowExecutionDescription is the decoded form of a describe call.
	WorkflowExecutionDescription struct {
		Execution         WorkflowExecution
		WorkflowType      string
		TaskQueue         string
		Status            string
		StartTime         time.Time
		CloseTime         time.Time
		Memo              map[string]*Payload
		SearchAttributes  map[string]*Payload
		PendingActivities []*workflowservice.PendingActivityInfo
	}

	// WorkflowClient implements Client over a WorkflowServiceClient.
	WorkflowClient struct {
		service            workflowservice.WorkflowServiceClient
		connectionCloser   io.Closer
		namespace          string
		identity           string
		logger             *zap.Logger
		metricsScope       tally.Scope
		dataConverter      DataConverter
		failureConverter   converter.FailureConverter
		contextPropagators []ContextPropagator
		interceptor        ClientOutboundInterceptor
	}

	workflowRunImpl struct {
		client     *WorkflowClient
		workflowID string
		firstRunID string
	}

	workflowUpdateHandleImpl struct {
		client     *WorkflowClient
		workflowID string
		runID      string
		updateID   string
		outcome    *workflowservice.UpdateOutcome
	}

	asyncActivityHandleImpl struct {
		client    *WorkflowClient
		taskToken []byte
		id        *AsyncActivityID
	}

	// clientOutboundImpl is the terminal interceptor: the implementation
	// that actually speaks gRPC.
	clientOutboundImpl struct {
		client *WorkflowClient
	}
)

// NewServiceClient creates a client over service. The service is wrapped so
// RPC errors surface as typed serviceerrors, and the interceptor chain is
// composed once here.
func NewServiceClient(service workflowservice.WorkflowServiceClient, connectionCloser io.Closer, options ClientOptions) *WorkflowClient {
	if options.Namespace == "" {
		options.Namespace = "default"
	}
	if options.Identity == "" {
		options.Identity = getWorkerIdentity()
	}
	if options.Logger == nil {
		options.Logger = zap.NewNop()
	}
	if options.MetricsScope == nil {
		options.MetricsScope = metrics.NewNoopScope()
	}
	if options.DataConverter == nil {
		options.DataConverter = getDefaultDataConverter()
	}
	if options.FailureConverter == nil {
		options.FailureConverter = converter.DefaultFailureConverterInstance
	}
	// Error conversion innermost, then per-operation metrics: callers see
	// typed serviceerrors and every RPC is counted and timed exactly once.
	wrapped := metrics.NewWorkflowServiceWrapper(rpc.NewWorkflowServiceErrorWrapper(service), options.MetricsScope)
	client := &WorkflowClient{
		service:            wrapped,
		connectionCloser:   connectionCloser,
		namespace:          options.Namespace,
		identity:           options.Identity,
		logger:             options.Logger,
		metricsScope:       options.MetricsScope,
		dataConverter:      options.DataConverter,
		failureConverter:   options.FailureConverter,
		contextPropagators: options.ContextPropagators,
	}
	client.interceptor = newInterceptorChain(&clientOutboundImpl{client: client}, options.Interceptors)
	return client
}

func (wc *WorkflowClient) ExecuteWorkflow(ctx context.Context, options StartWorkflowOptions, workflow interface{}, args ...interface{}) (WorkflowRun, error) {
	workflowType, err := workflowTypeName(workflow)
	if err != nil {
		return nil, err
	}
	return wc.interceptor.ExecuteWorkflow(ctx, &StartWorkflowInput{
		WorkflowType: workflowType,
		Options:      options,
		Args:         args,
	})
}

func (wc *WorkflowClient) GetWorkflow(ctx context.Context, workflowID, runID string) WorkflowRun {
	return &workflowRunImpl{client: wc, workflowID: workflowID, firstRunID: runID}
}

func (wc *WorkflowClient) SignalWorkflow(ctx context.Context, workflowID, runID, signalName string, arg interface{}) error {
	return wc.interceptor.SignalWorkflow(ctx, &SignalWorkflowInput{
		WorkflowID: workflowID,
		RunID:      runID,
		SignalName: signalName,
		Arg:        arg,
	})
}

func (wc *WorkflowClient) SignalWithStartWorkflow(ctx context.Context, workflowID, signalName string, signalArg interface{},
	options StartWorkflowOptions, workflow interface{}, workflowArgs ...interface{}) (WorkflowRun, error) {
	workflowType, err := workflowTypeName(workflow)
	if err != nil {
		return nil, err
	}
	options.ID = workflowID
	return wc.interceptor.SignalWithStartWorkflow(ctx, &SignalWithStartWorkflowInput{
		SignalName:   signalName,
		SignalArg:    signalArg,
		WorkflowType: workflowType,
		Options:      options,
		Args:         workflowArgs,
	})
}

func (wc *WorkflowClient) CancelWorkflow(ctx context.Context, workflowID, runID string) error {
	return wc.interceptor.CancelWorkflow(ctx, &CancelWorkflowInput{WorkflowID: workflowID, RunID: runID})
}

func (wc *WorkflowClient) TerminateWorkflow(ctx context.Context, workflowID, runID, reason string, details ...interface{}) error {
	return wc.interceptor.TerminateWorkflow(ctx, &TerminateWorkflowInput{
		WorkflowID: workflowID,
		RunID:      runID,
		Reason:     reason,
		Details:    details,
	})
}

func (wc *WorkflowClient) QueryWorkflow(ctx context.Context, workflowID, runID, queryType string, args ...interface{}) (converter.Value, error) {
	return wc.QueryWorkflowWithOptions(ctx, &QueryWorkflowInput{
		WorkflowID: workflowID,
		RunID:      runID,
		QueryType:  queryType,
		Args:       args,
	})
}

func (wc *WorkflowClient) QueryWorkflowWithOptions(ctx context.Context, in *QueryWorkflowInput) (converter.Value, error) {
	return wc.interceptor.QueryWorkflow(ctx, in)
}

func (wc *WorkflowClient) UpdateWorkflow(ctx context.Context, options UpdateWorkflowOptions) (WorkflowUpdateHandle, error) {
	if options.UpdateName == "" {
		return nil, errors.New("UpdateName is required")
	}
	return wc.interceptor.UpdateWorkflow(ctx, &UpdateWorkflowInput{
		WorkflowID:   options.WorkflowID,
		RunID:        options.RunID,
		UpdateName:   options.UpdateName,
		UpdateID:     options.UpdateID,
		Args:         options.Args,
		WaitForStage: options.WaitForStage,
	})
}

func (wc *WorkflowClient) DescribeWorkflowExecution(ctx context.Context, workflowID, runID string) (*WorkflowExecutionDescription, error) {
	return wc.interceptor.DescribeWorkflow(ctx, &DescribeWorkflowInput{WorkflowID: workflowID, RunID: runID})
}

func (wc *WorkflowClient) AsyncActivityHandle(taskToken []byte, id *AsyncActivityID) AsyncActivityHandle {
	return &asyncActivityHandleImpl{client: wc, taskToken: taskToken, id: id}
}

func (wc *WorkflowClient) ScheduleClient() ScheduleClient {
	return &scheduleClientImpl{client: wc}
}

func (wc *WorkflowClient) Close() {
	if wc.connectionCloser != nil {
		if err := wc.connectionCloser.Close(); err != nil {
			wc.logger.Warn("failed to close client connection", zap.Error(err))
		}
	}
}

func workflowTypeName(workflow interface{}) (string, error) {
	switch w := workflow.(type) {
	case string:
		if w == "" {
			return "", errors.New("workflow type name must not be empty")
		}
		return w, nil
	default:
		return functionName(workflow)
	}
}

// ---------------------------------------------------------------------------
// Terminal interceptor: the gRPC-speaking implementation
// ---------------------------------------------------------------------------

func (t *clientOutboundImpl) ExecuteWorkflow(ctx context.Context, in *StartWorkflowInput) (WorkflowRun, error) {
	wc := t.client
	options := in.Options
	if options.TaskQueue == "" {
		return nil, errors.New("TaskQueue is required")
	}
	workflowID := options.ID
	if workflowID == "" {
		workflowID = uuid.New()
	}
	input, err := encodeArgs(wc.dataConverter, in.Args)
	if err != nil {
		return nil, err
	}
	memo, searchAttributes, err := wc.encodeMetadata(options)
	if err != nil {
		return nil, err
	}

	request := &workflowservice.StartWorkflowExecutionRequest{
		Namespace:                wc.namespace,
		WorkflowID:               workflowID,
		WorkflowType:             in.WorkflowType,
		TaskQueue:                options.TaskQueue,
		Input:                    input,
		Memo:                     memo,
		SearchAttributes:         searchAttributes,
		CronSchedule:             options.CronSchedule,
		RetryPolicy:              toWireRetryPolicy(options.RetryPolicy),
		RequestID:                uuid.New(),
		Identity:                 wc.identity,
		WorkflowExecutionTimeout: options.WorkflowExecutionTimeout,
		WorkflowRunTimeout:       options.WorkflowRunTimeout,
		WorkflowTaskTimeout:      options.WorkflowTaskTimeout,
		StartDelay:               options.StartDelay,
		WorkflowIDReusePolicy:    options.WorkflowIDReusePolicy,
		WorkflowIDConflictPolicy: options.WorkflowIDConflictPolicy,
	}
	response, err := wc.service.StartWorkflowExecution(ctx, request)
	if err != nil {
		var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &alreadyStarted) {
			return nil, &WorkflowExecutionAlreadyStartedError{
				WorkflowID:   workflowID,
				RunID:        alreadyStarted.RunID,
				WorkflowType: in.WorkflowType,
			}
		}
		return nil, err
	}
	return &workflowRunImpl{client: wc, workflowID: workflowID, firstRunID: response.RunID}, nil
}

func (t *clientOutboundImpl) SignalWorkflow(ctx context.Context, in *SignalWorkflowInput) error {
	wc := t.client
	input, err := encodeArgs(wc.dataConverter, []interface{}{in.Arg})
	if err != nil {
		return err
	}
	_, err = wc.service.SignalWorkflowExecution(ctx, &workflowservice.SignalWorkflowExecutionRequest{
		Namespace:  wc.namespace,
		Execution:  workflowservice.WorkflowExecution{WorkflowID: in.WorkflowID, RunID: in.RunID},
		SignalName: in.SignalName,
		Input:      input,
		RequestID:  uuid.New(),
	})
	return err
}

func (t *clientOutboundImpl) SignalWithStartWorkflow(ctx context.Context, in *SignalWithStartWorkflowInput) (WorkflowRun, error) {
	wc := t.client
	options := in.Options
	if options.TaskQueue == "" {
		return nil, errors.New("TaskQueue is required")
	}
	signalInput, err := encodeArgs(wc.dataConverter, []interface{}{in.SignalArg})
	if err != nil {
		return nil, err
	}
	input, err := encodeArgs(wc.dataConverter, in.Args)
	if err != nil {
		return nil, err
	}
	memo, searchAttributes, err := wc.encodeMetadata(options)
	if err != nil {
		return nil, err
	}
	response, err := wc.service.SignalWithStartWorkflowExecution(ctx, &workflowservice.SignalWithStartWorkflowExecutionRequest{
		Namespace:             wc.namespace,
		WorkflowID:            options.ID,
		WorkflowType:          in.WorkflowType,
		TaskQueue:             options.TaskQueue,
		SignalName:            in.SignalName,
		SignalInput:           signalInput,
		Input:                 input,
		Memo:                  memo,
		SearchAttributes:      searchAttributes,
		CronSchedule:          options.CronSchedule,
		RetryPolicy:           toWireRetryPolicy(options.RetryPolicy),
		RequestID:             uuid.New(),
		WorkflowIDReusePolicy: options.WorkflowIDReusePolicy,
	})
	if err != nil {
		return nil, err
	}
	return &workflowRunImpl{client: wc, workflowID: options.ID, firstRunID: response.RunID}, nil
}

func (t *clientOutboundImpl) QueryWorkflow(ctx context.Context, in *QueryWorkflowInput) (converter.Value, error) {
	wc := t.client
	args, err := encodeArgs(wc.dataConverter, in.Args)
	if err != nil {
		return nil, err
	}
	response, err := wc.service.QueryWorkflow(ctx, &workflowservice.QueryWorkflowRequest{
		Namespace:       wc.namespace,
		Execution:       workflowservice.WorkflowExecution{WorkflowID: in.WorkflowID, RunID: in.RunID},
		QueryType:       in.QueryType,
		Arguments:       args,
		RejectCondition: workflowservice.QueryRejectCondition(in.RejectCondition),
	})
	if err != nil {
		return nil, err
	}
	if response.QueryRejected != "" {
		return nil, serviceerror.NewQueryFailed(fmt.Sprintf("query rejected: %s", response.QueryRejected))
	}
	if response.Result.Size() == 0 {
		return newEncodedValue(nil, wc.dataConverter), nil
	}
	return newEncodedValue(response.Result.GetPayloads()[0], wc.dataConverter), nil
}

func (t *clientOutboundImpl) UpdateWorkflow(ctx context.Context, in *UpdateWorkflowInput) (WorkflowUpdateHandle, error) {
	wc := t.client
	args, err := encodeArgs(wc.dataConverter, in.Args)
	if err != nil {
		return nil, err
	}
	updateID := in.UpdateID
	if updateID == "" {
		updateID = uuid.New()
	}
	response, err := wc.service.UpdateWorkflowExecution(ctx, &workflowservice.UpdateWorkflowExecutionRequest{
		Namespace:    wc.namespace,
		Execution:    workflowservice.WorkflowExecution{WorkflowID: in.WorkflowID, RunID: in.RunID},
		UpdateID:     updateID,
		UpdateName:   in.UpdateName,
		Arguments:    args,
		WaitForStage: in.WaitForStage,
		RequestID:    uuid.New(),
	})
	if err != nil {
		return nil, err
	}
	return &workflowUpdateHandleImpl{
		client:     wc,
		workflowID: in.WorkflowID,
		runID:      response.RunID,
		updateID:   response.UpdateID,
		outcome:    response.Outcome,
	}, nil
}

func (t *clientOutboundImpl) CancelWorkflow(ctx context.Context, in *CancelWorkflowInput) error {
	wc := t.client
	_, err := wc.service.RequestCancelWorkflowExecution(ctx, &workflowservice.RequestCancelWorkflowExecutionRequest{
		Namespace: wc.namespace,
		Execution: workflowservice.WorkflowExecution{WorkflowID: in.WorkflowID, RunID: in.RunID},
		RequestID: uuid.New(),
		Reason:    in.Reason,
	})
	return err
}

func (t *clientOutboundImpl) TerminateWorkflow(ctx context.Context, in *TerminateWorkflowInput) error {
	wc := t.client
	details, err := encodeArgs(wc.dataConverter, in.Details)
	if err != nil {
		return err
	}
	_, err = wc.service.TerminateWorkflowExecution(ctx, &workflowservice.TerminateWorkflowExecutionRequest{
		Namespace: wc.namespace,
		Execution: workflowservice.WorkflowExecution{WorkflowID: in.WorkflowID, RunID: in.RunID},
		Reason:    in.Reason,
		Details:   details,
	})
	return err
}

func (t *clientOutboundImpl) DescribeWorkflow(ctx context.Context, in *DescribeWorkflowInput) (*WorkflowExecutionDescription, error) {
	wc := t.client
	response, err := wc.service.DescribeWorkflowExecution(ctx, &workflowservice.DescribeWorkflowExecutionRequest{
		Namespace: wc.namespace,
		Execution: workflowservice.WorkflowExecution{WorkflowID: in.WorkflowID, RunID: in.RunID},
	})
	if err != nil {
		return nil, err
	}
	return &WorkflowExecutionDescription{
		Execution:         WorkflowExecution{ID: in.WorkflowID, RunID: in.RunID},
		WorkflowType:      response.WorkflowType,
		TaskQueue:         response.TaskQueue,
		Status:            response.Status,
		StartTime:         time.Unix(0, response.StartTime),
		CloseTime:         time.Unix(0, response.CloseTime),
		Memo:              response.Memo,
		SearchAttributes:  response.SearchAttributes,
		PendingActivities: response.PendingActivities,
	}, nil
}

func (t *clientOutboundImpl) HeartbeatAsyncActivity(ctx context.Context, in *HeartbeatAsyncActivityInput) error {
	wc := t.client
	details, err := encodeArgs(wc.dataConverter, in.Details)
	if err != nil {
		return err
	}
	var response *workflowservice.RecordActivityTaskHeartbeatResponse
	if in.ID != nil {
		response, err = wc.service.RecordActivityTaskHeartbeatByID(ctx, &workflowservice.RecordActivityTaskHeartbeatByIDRequest{
			Namespace:  wc.namespace,
			WorkflowID: in.ID.WorkflowID,
			RunID:      in.ID.RunID,
			ActivityID: in.ID.ActivityID,
			Details:    details,
			Identity:   wc.identity,
		})
	} else {
		response, err = wc.service.RecordActivityTaskHeartbeat(ctx, &workflowservice.RecordActivityTaskHeartbeatRequest{
			Namespace: wc.namespace,
			TaskToken: in.TaskToken,
			Details:   details,
			Identity:  wc.identity,
		})
	}
	if err != nil {
		return err
	}
	if response.CancelRequested {
		return &AsyncActivityCanceledError{}
	}
	return nil
}

func (t *clientOutboundImpl) CompleteAsyncActivity(ctx context.Context, in *CompleteAsyncActivityInput) error {
	wc := t.client
	result, err := encodeArgs(wc.dataConverter, []interface{}{in.Result})
	if err != nil {
		return err
	}
	if in.ID != nil {
		_, err = wc.service.RespondActivityTaskCompletedByID(ctx, &workflowservice.RespondActivityTaskCompletedByIDRequest{
			Namespace:  wc.namespace,
			WorkflowID: in.ID.WorkflowID,
			RunID:      in.ID.RunID,
			ActivityID: in.ID.ActivityID,
			Result:     result,
			Identity:   wc.identity,
		})
		return err
	}
	_, err = wc.service.RespondActivityTaskCompleted(ctx, &workflowservice.RespondActivityTaskCompletedRequest{
		Namespace: wc.namespace,
		TaskToken: in.TaskToken,
		Result:    result,
		Identity:  wc.identity,
	})
	return err
}

func (t *clientOutboundImpl) FailAsyncActivity(ctx context.Context, in *FailAsyncActivityInput) error {
	wc := t.client
	failure := wc.failureConverter.EncodeFailure(convertErrorToFailure(in.Err, wc.dataConverter), wc.dataConverter)
	var err error
	if in.ID != nil {
		_, err = wc.service.RespondActivityTaskFailedByID(ctx, &workflowservice.RespondActivityTaskFailedByIDRequest{
			Namespace:  wc.namespace,
			WorkflowID: in.ID.WorkflowID,
			RunID:      in.ID.RunID,
			ActivityID: in.ID.ActivityID,
			Failure:    failure,
			Identity:   wc.identity,
		})
		return err
	}
	_, err = wc.service.RespondActivityTaskFailed(ctx, &workflowservice.RespondActivityTaskFailedRequest{
		Namespace: wc.namespace,
		TaskToken: in.TaskToken,
		Failure:   failure,
		Identity:  wc.identity,
	})
	return err
}

func (t *clientOutboundImpl) ReportCancellationAsyncActivity(ctx context.Context, in *ReportCancellationAsyncActivityInput) error {
	wc := t.client
	details, err := encodeArgs(wc.dataConverter, in.Details)
	if err != nil {
		return err
	}
	if in.ID != nil {
		_, err = wc.service.RespondActivityTaskCanceledByID(ctx, &workflowservice.RespondActivityTaskCanceledByIDRequest{
			Namespace:  wc.namespace,
			WorkflowID: in.ID.WorkflowID,
			RunID:      in.ID.RunID,
			ActivityID: in.ID.ActivityID,
			Details:    details,
			Identity:   wc.identity,
		})
		return err
	}
	_, err = wc.service.RespondActivityTaskCanceled(ctx, &workflowservice.RespondActivityTaskCanceledRequest{
		Namespace: wc.namespace,
		TaskToken: in.TaskToken,
		Details:   details,
		Identity:  wc.identity,
	})
	return err
}

func (wc *WorkflowClient) encodeMetadata(options StartWorkflowOptions) (memo, searchAttributes map[string]*Payload, err error) {
	if len(options.Memo) > 0 {
		memo, err = encodeValueMap(wc.dataConverter, options.Memo)
		if err != nil {
			return nil, nil, fmt.Errorf("encode memo: %w", err)
		}
	}
	if len(options.SearchAttributes) > 0 {
		searchAttributes, err = encodeValueMap(wc.dataConverter, options.SearchAttributes)
		if err != nil {
			return nil, nil, fmt.Errorf("encode search attributes: %w", err)
		}
	}
	return memo, searchAttributes, nil
}

func toWireRetryPolicy(policy *coresdk.RetryPolicy) *workflowservice.RetryPolicy {
	if policy == nil {
		return nil
	}
	return &workflowservice.RetryPolicy{
		InitialIntervalNanos:   policy.InitialInterval.Nanoseconds(),
		BackoffCoefficient:     policy.BackoffCoefficient,
		MaximumIntervalNanos:   policy.MaximumInterval.Nanoseconds(),
		MaximumAttempts:        policy.MaximumAttempts,
		NonRetryableErrorTypes: policy.NonRetryableErrorTypes,
	}
}

// ---------------------------------------------------------------------------
// WorkflowRun
// ---------------------------------------------------------------------------

func (r *workflowRunImpl) GetID() string    { return r.workflowID }
func (r *workflowRunImpl) GetRunID() string { return r.firstRunID }

func (r *workflowRunImpl) Get(ctx context.Context, valuePtr interface{}) error {
	return r.GetWithOptions(ctx, valuePtr, WorkflowRunGetOptions{})
}

// GetWithOptions long-polls history for the chain's close event, following
// run chaining (continue-as-new, retry, cron) unless disabled.
func (r *workflowRunImpl) GetWithOptions(ctx context.Context, valuePtr interface{}, options WorkflowRunGetOptions) error {
	wc := r.client
	runID := r.firstRunID
	for {
		event, err := wc.getCloseEvent(ctx, r.workflowID, runID)
		if err != nil {
			return err
		}
		switch {
		case event.WorkflowExecutionCompletedEventAttributes != nil:
			attrs := event.WorkflowExecutionCompletedEventAttributes
			if attrs.NewExecutionRunID != "" && !options.DisableFollowingRuns {
				runID = attrs.NewExecutionRunID
				continue
			}
			if valuePtr == nil || attrs.Result.Size() == 0 {
				return nil
			}
			return wc.dataConverter.FromPayloads(attrs.Result, valuePtr)
		case event.WorkflowExecutionFailedEventAttributes != nil:
			attrs := event.WorkflowExecutionFailedEventAttributes
			if attrs.NewExecutionRunID != "" && !options.DisableFollowingRuns {
				runID = attrs.NewExecutionRunID
				continue
			}
			return NewWorkflowExecutionError(r.workflowID, runID, "",
				convertFailureToError(wc.failureConverter.DecodeFailure(attrs.Failure, wc.dataConverter), wc.dataConverter))
		case event.WorkflowExecutionCanceledEventAttributes != nil:
			details := newEncodedValues(event.WorkflowExecutionCanceledEventAttributes.Details, wc.dataConverter)
			return NewCanceledError(details)
		case event.WorkflowExecutionTerminatedEventAttributes != nil:
			return newTerminatedError()
		case event.WorkflowExecutionTimedOutEventAttributes != nil:
			attrs := event.WorkflowExecutionTimedOutEventAttributes
			if attrs.NewExecutionRunID != "" && !options.DisableFollowingRuns {
				runID = attrs.NewExecutionRunID
				continue
			}
			return NewTimeoutError(converter.TimeoutTypeStartToClose, nil)
		case event.WorkflowExecutionContinuedAsNewEventAttributes != nil:
			attrs := event.WorkflowExecutionContinuedAsNewEventAttributes
			if options.DisableFollowingRuns {
				return fmt.Errorf("workflow continued as new (newRunID: %s)", attrs.NewExecutionRunID)
			}
			runID = attrs.NewExecutionRunID
		default:
			return fmt.Errorf("unexpected close event for workflow %s run %s", r.workflowID, runID)
		}
	}
}

// getCloseEvent long-polls one run's history until its close event arrives.
func (wc *WorkflowClient) getCloseEvent(ctx context.Context, workflowID, runID string) (*workflowservice.HistoryEvent, error) {
	var nextPageToken []byte
	for {
		response, err := wc.service.GetWorkflowExecutionHistory(ctx, &workflowservice.GetWorkflowExecutionHistoryRequest{
			Namespace:              wc.namespace,
			Execution:              workflowservice.WorkflowExecution{WorkflowID: workflowID, RunID: runID},
			WaitNewEvent:           true,
			HistoryEventFilterType: workflowservice.HistoryEventFilterTypeCloseEvent,
			NextPageToken:          nextPageToken,
		})
		if err != nil {
			return nil, err
		}
		if response.History != nil {
			for _, event := range response.History.Events {
				if event.IsTerminal() {
					return event, nil
				}
			}
		}
		nextPageToken = response.NextPageToken
	}
}

// ---------------------------------------------------------------------------
// Update handle
// ---------------------------------------------------------------------------

func (h *workflowUpdateHandleImpl) WorkflowID() string { return h.workflowID }
func (h *workflowUpdateHandleImpl) RunID() string      { return h.runID }
func (h *workflowUpdateHandleImpl) UpdateID() string   { return h.updateID }

func (h *workflowUpdateHandleImpl) Get(ctx context.Context, valuePtr interface{}) error {
	wc := h.client
	outcome := h.outcome
	for outcome == nil {
		response, err := wc.service.PollWorkflowExecutionUpdate(ctx, &workflowservice.PollWorkflowExecutionUpdateRequest{
			Namespace: wc.namespace,
			Execution: workflowservice.WorkflowExecution{WorkflowID: h.workflowID, RunID: h.runID},
			UpdateID:  h.updateID,
		})
		if err != nil {
			return err
		}
		outcome = response.Outcome
	}
	h.outcome = outcome
	if outcome.Failure != nil {
		return &WorkflowUpdateFailedError{
			WorkflowID: h.workflowID,
			RunID:      h.runID,
			UpdateID:   h.updateID,
			cause:      convertFailureToError(wc.failureConverter.DecodeFailure(outcome.Failure, wc.dataConverter), wc.dataConverter),
		}
	}
	if valuePtr == nil || outcome.Success.Size() == 0 {
		return nil
	}
	return wc.dataConverter.FromPayloads(outcome.Success, valuePtr)
}

// ---------------------------------------------------------------------------
// Async activity handle
// ---------------------------------------------------------------------------

func (h *asyncActivityHandleImpl) Heartbeat(ctx context.Context, details ...interface{}) error {
	return h.client.interceptor.HeartbeatAsyncActivity(ctx, &HeartbeatAsyncActivityInput{
		TaskToken: h.taskToken, ID: h.id, Details: details,
	})
}

func (h *asyncActivityHandleImpl) Complete(ctx context.Context, result interface{}) error {
	return h.client.interceptor.CompleteAsyncActivity(ctx, &CompleteAsyncActivityInput{
		TaskToken: h.taskToken, ID: h.id, Result: result,
	})
}

func (h *asyncActivityHandleImpl) Fail(ctx context.Context, err error) error {
	return h.client.interceptor.FailAsyncActivity(ctx, &FailAsyncActivityInput{
		TaskToken: h.taskToken, ID: h.id, Err: err,
	})
}

func (h *asyncActivityHandleImpl) ReportCancellation(ctx context.Context, details ...interface{}) error {
	return h.client.interceptor.ReportCancellationAsyncActivity(ctx, &ReportCancellationAsyncActivityInput{
		TaskToken: h.taskToken, ID: h.id, Details: details,
	})
}
