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
	"time"

	"github.com/pborman/uuid"
	"github.com/robfig/cron"

	"go.flowbridge.dev/sdk/internal/coresdk"
	"go.flowbridge.dev/sdk/internal/workflowservice"
)

type (
	// ScheduleClient manages server-side schedules.
	ScheduleClient interface {
		// Create registers a new schedule and returns its handle.
		Create(ctx context.Context, options ScheduleOptions) (ScheduleHandle, error)
		// GetHandle returns a handle for an existing schedule without
		// validating that it exists.
		GetHandle(id string) ScheduleHandle
		// List returns a lazily-paginated iterator over the namespace's
		// schedules.
		List(ctx context.Context, options ScheduleListOptions) (ScheduleListIterator, error)
	}

	// ScheduleOptions configures Create.
	ScheduleOptions struct {
		// ID is the caller-chosen schedule id; a fresh UUID when empty.
		ID     string
		Spec   workflowservice.ScheduleSpec
		Action *ScheduleWorkflowAction

		Overlap        workflowservice.ScheduleOverlapPolicy
		CatchupWindow  time.Duration
		PauseOnFailure bool

		Note             string
		Paused           bool
		RemainingActions int64

		TriggerImmediately bool
		ScheduleBackfill   []workflowservice.ScheduleBackfill

		Memo             map[string]interface{}
		SearchAttributes map[string]interface{}
	}

	// ScheduleWorkflowAction starts a workflow per triggered action.
	ScheduleWorkflowAction struct {
		// ID is the base workflow id; the server appends the nominal action
		// time per started run.
		ID       string
		Workflow interface{}
		Args     []interface{}

		TaskQueue                string
		WorkflowExecutionTimeout time.Duration
		WorkflowRunTimeout       time.Duration
		WorkflowTaskTimeout      time.Duration
		RetryPolicy              *coresdk.RetryPolicy
		Memo                     map[string]interface{}
		SearchAttributes         map[string]interface{}
	}

	// ScheduleHandle is a value-like reference to one schedule.
	ScheduleHandle interface {
		GetID() string
		Describe(ctx context.Context) (*ScheduleDescription, error)
		// Update applies an optimistic-concurrency read-modify-write: the
		// mutator receives the current schedule and returns the replacement,
		// or nil to cancel the update.
		Update(ctx context.Context, options ScheduleUpdateOptions) error
		Trigger(ctx context.Context, options ScheduleTriggerOptions) error
		Pause(ctx context.Context, options SchedulePauseOptions) error
		Unpause(ctx context.Context, options ScheduleUnpauseOptions) error
		Backfill(ctx context.Context, options ScheduleBackfillOptions) error
		Delete(ctx context.Context) error
	}

	// ScheduleDescription is the decoded form of a schedule describe.
	ScheduleDescription struct {
		ID               string
		Schedule         *workflowservice.Schedule
		Info             *workflowservice.ScheduleInfo
		Memo             map[string]*Payload
		SearchAttributes map[string]*Payload
		ConflictToken    []byte
	}

	// ScheduleUpdate is what the Update mutator reads and rewrites.
	ScheduleUpdate struct {
		Schedule *workflowservice.Schedule
	}

	// ScheduleUpdateOptions configures ScheduleHandle.Update.
	ScheduleUpdateOptions struct {
		DoUpdate func(ScheduleUpdate) (*ScheduleUpdate, error)
	}

	// ScheduleTriggerOptions configures ScheduleHandle.Trigger.
	ScheduleTriggerOptions struct {
		Overlap workflowservice.ScheduleOverlapPolicy
	}

	// SchedulePauseOptions configures ScheduleHandle.Pause.
	SchedulePauseOptions struct {
		Note string
	}

	// ScheduleUnpauseOptions configures ScheduleHandle.Unpause.
	ScheduleUnpauseOptions struct {
		Note string
	}

	// ScheduleBackfillOptions configures ScheduleHandle.Backfill.
	ScheduleBackfillOptions struct {
		Backfill []workflowservice.ScheduleBackfill
	}

	// ScheduleListOptions configures ScheduleClient.List.
	ScheduleListOptions struct {
		PageSize int32
		Query    string
	}

	// ScheduleListIterator pages through schedule listings lazily.
	ScheduleListIterator interface {
		HasNext() bool
		Next() (*workflowservice.ScheduleListEntry, error)
	}

	scheduleClientImpl struct {
		client *WorkflowClient
	}

	scheduleHandleImpl struct {
		client *WorkflowClient
		id     string
	}

	scheduleListIteratorImpl struct {
		ctx           context.Context
		client        *WorkflowClient
		options       ScheduleListOptions
		page          []*workflowservice.ScheduleListEntry
		index         int
		nextPageToken []byte
		exhausted     bool
		err           error
	}
)

// ErrScheduleUpdateCancelled reports that the Update mutator returned nil,
// canceling the read-modify-write without touching the schedule. Callers
// that cancel on purpose can errors.Is for it and move on.
var ErrScheduleUpdateCancelled = errors.New("schedule update cancelled by mutator")

func (sc *scheduleClientImpl) Create(ctx context.Context, options ScheduleOptions) (ScheduleHandle, error) {
	if options.ID == "" {
		options.ID = uuid.New()
	}
	if options.Action == nil || options.Action.Workflow == nil {
		return nil, errors.New("schedule requires an action starting a workflow")
	}
	if err := validateScheduleSpec(options.Spec); err != nil {
		return nil, err
	}
	return sc.client.interceptor.CreateSchedule(ctx, &CreateScheduleInput{Options: options})
}

func (sc *scheduleClientImpl) GetHandle(id string) ScheduleHandle {
	return &scheduleHandleImpl{client: sc.client, id: id}
}

func (sc *scheduleClientImpl) List(ctx context.Context, options ScheduleListOptions) (ScheduleListIterator, error) {
	iterator := &scheduleListIteratorImpl{ctx: ctx, client: sc.client, options: options}
	if err := iterator.fetchNextPage(); err != nil {
		return nil, err
	}
	return iterator, nil
}

// validateScheduleSpec rejects malformed recurrence rules client-side so a
// bad cron line fails fast instead of after a round-trip.
func validateScheduleSpec(spec workflowservice.ScheduleSpec) error {
	for _, line := range spec.CronStrings {
		if _, err := cron.ParseStandard(line); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", line, err)
		}
	}
	for _, interval := range spec.Intervals {
		if interval.Every <= 0 {
			return fmt.Errorf("schedule interval must be positive, got %v", interval.Every)
		}
		if interval.Offset < 0 || interval.Offset >= interval.Every {
			return fmt.Errorf("schedule interval offset %v out of range [0, %v)", interval.Offset, interval.Every)
		}
	}
	if !spec.EndAt.IsZero() && !spec.StartAt.IsZero() && spec.EndAt.Before(spec.StartAt) {
		return errors.New("schedule endAt precedes startAt")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Terminal interceptor hooks for schedules
// ---------------------------------------------------------------------------

func (t *clientOutboundImpl) CreateSchedule(ctx context.Context, in *CreateScheduleInput) (ScheduleHandle, error) {
	wc := t.client
	options := in.Options
	action, err := wc.encodeScheduleAction(options.Action)
	if err != nil {
		return nil, err
	}
	memo, searchAttributes, err := wc.encodeMetadata(StartWorkflowOptions{
		Memo: options.Memo, SearchAttributes: options.SearchAttributes,
	})
	if err != nil {
		return nil, err
	}

	schedule := &workflowservice.Schedule{
		Spec:   &options.Spec,
		Action: &workflowservice.ScheduleAction{StartWorkflow: action},
		Policies: &workflowservice.SchedulePolicies{
			OverlapPolicy:  options.Overlap,
			CatchupWindow:  options.CatchupWindow,
			PauseOnFailure: options.PauseOnFailure,
		},
		State: &workflowservice.ScheduleState{
			Note:             options.Note,
			Paused:           options.Paused,
			LimitedActions:   options.RemainingActions > 0,
			RemainingActions: options.RemainingActions,
		},
	}
	var initialPatch *workflowservice.SchedulePatch
	if options.TriggerImmediately || len(options.ScheduleBackfill) > 0 {
		initialPatch = &workflowservice.SchedulePatch{
			BackfillRequest: options.ScheduleBackfill,
		}
		if options.TriggerImmediately {
			initialPatch.TriggerImmediately = &workflowservice.ScheduleTriggerImmediately{OverlapPolicy: options.Overlap}
		}
	}

	_, err = wc.service.CreateSchedule(ctx, &workflowservice.CreateScheduleRequest{
		Namespace:        wc.namespace,
		ScheduleID:       options.ID,
		Schedule:         schedule,
		InitialPatch:     initialPatch,
		Memo:             memo,
		SearchAttributes: searchAttributes,
		RequestID:        uuid.New(),
		Identity:         wc.identity,
	})
	if err != nil {
		return nil, err
	}
	return &scheduleHandleImpl{client: wc, id: options.ID}, nil
}

func (t *clientOutboundImpl) DescribeSchedule(ctx context.Context, in *DescribeScheduleInput) (*ScheduleDescription, error) {
	wc := t.client
	response, err := wc.service.DescribeSchedule(ctx, &workflowservice.DescribeScheduleRequest{
		Namespace:  wc.namespace,
		ScheduleID: in.ID,
	})
	if err != nil {
		return nil, err
	}
	return &ScheduleDescription{
		ID:               in.ID,
		Schedule:         response.Schedule,
		Info:             response.Info,
		Memo:             response.Memo,
		SearchAttributes: response.SearchAttributes,
		ConflictToken:    response.ConflictToken,
	}, nil
}

func (t *clientOutboundImpl) UpdateSchedule(ctx context.Context, in *UpdateScheduleInput) error {
	wc := t.client
	_, err := wc.service.UpdateSchedule(ctx, &workflowservice.UpdateScheduleRequest{
		Namespace:     wc.namespace,
		ScheduleID:    in.ID,
		Schedule:      in.Schedule,
		ConflictToken: in.ConflictToken,
		RequestID:     uuid.New(),
		Identity:      wc.identity,
	})
	return err
}

func (t *clientOutboundImpl) PatchSchedule(ctx context.Context, in *PatchScheduleInput) error {
	wc := t.client
	_, err := wc.service.PatchSchedule(ctx, &workflowservice.PatchScheduleRequest{
		Namespace:  wc.namespace,
		ScheduleID: in.ID,
		Patch:      in.Patch,
		RequestID:  uuid.New(),
		Identity:   wc.identity,
	})
	return err
}

func (t *clientOutboundImpl) DeleteSchedule(ctx context.Context, in *DeleteScheduleInput) error {
	wc := t.client
	_, err := wc.service.DeleteSchedule(ctx, &workflowservice.DeleteScheduleRequest{
		Namespace:  wc.namespace,
		ScheduleID: in.ID,
		Identity:   wc.identity,
	})
	return err
}

func (t *clientOutboundImpl) ListSchedules(ctx context.Context, in *ListSchedulesInput) (*workflowservice.ListSchedulesResponse, error) {
	wc := t.client
	response, err := wc.service.ListSchedules(ctx, &workflowservice.ListSchedulesRequest{
		Namespace:     wc.namespace,
		PageSize:      in.PageSize,
		NextPageToken: in.NextPageToken,
		Query:         in.Query,
	})
	return response, err
}

func (wc *WorkflowClient) encodeScheduleAction(action *ScheduleWorkflowAction) (*workflowservice.ScheduleWorkflowAction, error) {
	workflowType, err := workflowTypeName(action.Workflow)
	if err != nil {
		return nil, err
	}
	input, err := encodeArgs(wc.dataConverter, action.Args)
	if err != nil {
		return nil, err
	}
	memo, searchAttributes, err := wc.encodeMetadata(StartWorkflowOptions{
		Memo: action.Memo, SearchAttributes: action.SearchAttributes,
	})
	if err != nil {
		return nil, err
	}
	workflowID := action.ID
	if workflowID == "" {
		workflowID = uuid.New()
	}
	return &workflowservice.ScheduleWorkflowAction{
		WorkflowID:               workflowID,
		WorkflowType:             workflowType,
		TaskQueue:                action.TaskQueue,
		Input:                    input,
		Memo:                     memo,
		SearchAttributes:         searchAttributes,
		WorkflowExecutionTimeout: action.WorkflowExecutionTimeout,
		WorkflowRunTimeout:       action.WorkflowRunTimeout,
		WorkflowTaskTimeout:      action.WorkflowTaskTimeout,
		RetryPolicy:              toWireRetryPolicy(action.RetryPolicy),
	}, nil
}

// ---------------------------------------------------------------------------
// Schedule handle
// ---------------------------------------------------------------------------

func (h *scheduleHandleImpl) GetID() string { return h.id }

func (h *scheduleHandleImpl) Describe(ctx context.Context) (*ScheduleDescription, error) {
	return h.client.interceptor.DescribeSchedule(ctx, &DescribeScheduleInput{ID: h.id})
}

func (h *scheduleHandleImpl) Update(ctx context.Context, options ScheduleUpdateOptions) error {
	if options.DoUpdate == nil {
		return errors.New("DoUpdate is required")
	}
	description, err := h.Describe(ctx)
	if err != nil {
		return err
	}
	updated, err := options.DoUpdate(ScheduleUpdate{Schedule: description.Schedule})
	if err != nil {
		return err
	}
	if updated == nil {
		return ErrScheduleUpdateCancelled
	}
	return h.client.interceptor.UpdateSchedule(ctx, &UpdateScheduleInput{
		ID:            h.id,
		Schedule:      updated.Schedule,
		ConflictToken: description.ConflictToken,
	})
}

func (h *scheduleHandleImpl) Trigger(ctx context.Context, options ScheduleTriggerOptions) error {
	return h.client.interceptor.PatchSchedule(ctx, &PatchScheduleInput{
		ID: h.id,
		Patch: &workflowservice.SchedulePatch{
			TriggerImmediately: &workflowservice.ScheduleTriggerImmediately{OverlapPolicy: options.Overlap},
		},
	})
}

func (h *scheduleHandleImpl) Pause(ctx context.Context, options SchedulePauseOptions) error {
	note := options.Note
	if note == "" {
		note = "paused via client"
	}
	return h.client.interceptor.PatchSchedule(ctx, &PatchScheduleInput{
		ID:    h.id,
		Patch: &workflowservice.SchedulePatch{Pause: note},
	})
}

func (h *scheduleHandleImpl) Unpause(ctx context.Context, options ScheduleUnpauseOptions) error {
	note := options.Note
	if note == "" {
		note = "unpaused via client"
	}
	return h.client.interceptor.PatchSchedule(ctx, &PatchScheduleInput{
		ID:    h.id,
		Patch: &workflowservice.SchedulePatch{Unpause: note},
	})
}

func (h *scheduleHandleImpl) Backfill(ctx context.Context, options ScheduleBackfillOptions) error {
	return h.client.interceptor.PatchSchedule(ctx, &PatchScheduleInput{
		ID:    h.id,
		Patch: &workflowservice.SchedulePatch{BackfillRequest: options.Backfill},
	})
}

func (h *scheduleHandleImpl) Delete(ctx context.Context) error {
	return h.client.interceptor.DeleteSchedule(ctx, &DeleteScheduleInput{ID: h.id})
}

// ---------------------------------------------------------------------------
// List iterator
// ---------------------------------------------------------------------------

func (it *scheduleListIteratorImpl) HasNext() bool {
	if it.err != nil {
		return true // surface the error through Next
	}
	if it.index < len(it.page) {
		return true
	}
	if it.exhausted {
		return false
	}
	it.err = it.fetchNextPage()
	return it.err != nil || it.index < len(it.page)
}

func (it *scheduleListIteratorImpl) Next() (*workflowservice.ScheduleListEntry, error) {
	if it.err != nil {
		err := it.err
		it.err = nil
		return nil, err
	}
	if !it.HasNext() {
		return nil, errors.New("iterator exhausted")
	}
	if it.err != nil {
		err := it.err
		it.err = nil
		return nil, err
	}
	entry := it.page[it.index]
	it.index++
	return entry, nil
}

func (it *scheduleListIteratorImpl) fetchNextPage() error {
	response, err := it.client.interceptor.ListSchedules(it.ctx, &ListSchedulesInput{
		PageSize:      it.options.PageSize,
		NextPageToken: it.nextPageToken,
		Query:         it.options.Query,
	})
	if err != nil {
		return err
	}
	it.page = response.Schedules
	it.index = 0
	it.nextPageToken = response.NextPageToken
	it.exhausted = len(it.nextPageToken) == 0
	return nil
}
