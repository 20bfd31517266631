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

package workflowservice

import (
	"time"

	"go.flowbridge.dev/sdk/converter"
)

// Schedule is the wire shape of a server-managed recurrence rule.
type Schedule struct {
	Spec     *ScheduleSpec
	Action   *ScheduleAction
	Policies *SchedulePolicies
	State    *ScheduleState
}

// ScheduleSpec describes when a schedule takes its action: structured
// calendars, fixed intervals, and classic cron lines, minus skip exclusions,
// bounded by start/end and smeared by jitter.
type ScheduleSpec struct {
	Calendars     []ScheduleCalendarSpec
	Intervals     []ScheduleIntervalSpec
	CronStrings   []string
	Skip          []ScheduleCalendarSpec
	StartAt       time.Time
	EndAt         time.Time
	Jitter        time.Duration
	TimeZoneName  string
}

// ScheduleCalendarSpec matches timestamps by calendar field ranges, rendered
// as cron-like expressions ("*" when empty).
type ScheduleCalendarSpec struct {
	Second     string
	Minute     string
	Hour       string
	DayOfMonth string
	Month      string
	Year       string
	DayOfWeek  string
	Comment    string
}

// ScheduleIntervalSpec matches timestamps on a fixed period, phase-shifted
// by Offset from the epoch.
type ScheduleIntervalSpec struct {
	Every  time.Duration
	Offset time.Duration
}

// ScheduleAction is what a schedule does when the spec matches; starting a
// workflow is the only action.
type ScheduleAction struct {
	StartWorkflow *ScheduleWorkflowAction
}

// ScheduleWorkflowAction starts a workflow per triggered action.
type ScheduleWorkflowAction struct {
	WorkflowID               string
	WorkflowType             string
	TaskQueue                string
	Input                    *converter.Payloads
	Headers                  map[string]*converter.Payload
	Memo                     map[string]*converter.Payload
	SearchAttributes         map[string]*converter.Payload
	WorkflowExecutionTimeout time.Duration
	WorkflowRunTimeout       time.Duration
	WorkflowTaskTimeout      time.Duration
	RetryPolicy              *RetryPolicy
}

// SchedulePolicies modulate schedule behavior under overlap and outage.
type SchedulePolicies struct {
	OverlapPolicy  ScheduleOverlapPolicy
	CatchupWindow  time.Duration
	PauseOnFailure bool
}

// ScheduleOverlapPolicy controls what happens when an action would start
// while the previous one is still running.
type ScheduleOverlapPolicy int

const (
	ScheduleOverlapPolicySkip ScheduleOverlapPolicy = iota
	ScheduleOverlapPolicyBufferOne
	ScheduleOverlapPolicyBufferAll
	ScheduleOverlapPolicyCancelOther
	ScheduleOverlapPolicyTerminateOther
	ScheduleOverlapPolicyAllowAll
)

// ScheduleState is the mutable operator-facing state of a schedule.
type ScheduleState struct {
	Note             string
	Paused           bool
	LimitedActions   bool
	RemainingActions int64
}

// ScheduleBackfill replays a schedule over a past time range as if it had
// been running then, under the given overlap policy.
type ScheduleBackfill struct {
	StartAt       time.Time
	EndAt         time.Time
	OverlapPolicy ScheduleOverlapPolicy
}

// SchedulePatch is a one-shot mutation applied by PatchSchedule: any
// combination of an immediate trigger, backfills, and a pause/unpause flip.
type SchedulePatch struct {
	TriggerImmediately *ScheduleTriggerImmediately
	BackfillRequest    []ScheduleBackfill
	Pause              string // non-empty: pause with this note
	Unpause            string // non-empty: unpause with this note
}

// ScheduleTriggerImmediately requests one action now.
type ScheduleTriggerImmediately struct {
	OverlapPolicy ScheduleOverlapPolicy
}

// ScheduleInfo is the server's read-only bookkeeping for a schedule.
type ScheduleInfo struct {
	NumActions              int64
	NumActionsMissedCatchup int64
	NumActionsSkippedOverlap int64
	RunningWorkflows        []WorkflowExecution
	RecentActionTimes       []time.Time
	FutureActionTimes       []time.Time
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// CreateScheduleRequest registers a new schedule.
type CreateScheduleRequest struct {
	Namespace        string
	ScheduleID       string
	Schedule         *Schedule
	InitialPatch     *SchedulePatch
	Memo             map[string]*converter.Payload
	SearchAttributes map[string]*converter.Payload
	RequestID        string
	Identity         string
}

// CreateScheduleResponse carries the created schedule's conflict token.
type CreateScheduleResponse struct {
	ConflictToken []byte
}

// DescribeScheduleRequest reads a schedule's definition and state.
type DescribeScheduleRequest struct {
	Namespace  string
	ScheduleID string
}

// DescribeScheduleResponse carries the schedule, its server-side info, and
// the conflict token to pass to UpdateSchedule.
type DescribeScheduleResponse struct {
	Schedule         *Schedule
	Info             *ScheduleInfo
	Memo             map[string]*converter.Payload
	SearchAttributes map[string]*converter.Payload
	ConflictToken    []byte
}

// UpdateScheduleRequest replaces a schedule's definition, guarded by the
// conflict token from a preceding describe (optimistic concurrency).
type UpdateScheduleRequest struct {
	Namespace     string
	ScheduleID    string
	Schedule      *Schedule
	ConflictToken []byte
	RequestID     string
	Identity      string
}

// UpdateScheduleResponse is empty; success is the absence of an error.
type UpdateScheduleResponse struct{}

// PatchScheduleRequest applies a one-shot patch (trigger, backfill,
// pause/unpause).
type PatchScheduleRequest struct {
	Namespace  string
	ScheduleID string
	Patch      *SchedulePatch
	RequestID  string
	Identity   string
}

// PatchScheduleResponse is empty; success is the absence of an error.
type PatchScheduleResponse struct{}

// ListSchedulesRequest pages through the namespace's schedules, optionally
// filtered by a visibility query.
type ListSchedulesRequest struct {
	Namespace     string
	PageSize      int32
	NextPageToken []byte
	Query         string
}

// ListSchedulesResponse is one page of schedule listings.
type ListSchedulesResponse struct {
	Schedules     []*ScheduleListEntry
	NextPageToken []byte
}

// ScheduleListEntry is the compact projection of one schedule returned by
// ListSchedules.
type ScheduleListEntry struct {
	ScheduleID        string
	Spec              *ScheduleSpec
	WorkflowType      string
	Paused            bool
	Note              string
	RecentActionTimes []time.Time
	FutureActionTimes []time.Time
	Memo              map[string]*converter.Payload
	SearchAttributes  map[string]*converter.Payload
}

// DeleteScheduleRequest removes a schedule; running workflows it started are
// left untouched.
type DeleteScheduleRequest struct {
	Namespace  string
	ScheduleID string
	Identity   string
}

// DeleteScheduleResponse is empty; success is the absence of an error.
type DeleteScheduleResponse struct{}
