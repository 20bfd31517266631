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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go.flowbridge.dev/sdk/internal/serviceerror"
	"go.flowbridge.dev/sdk/internal/workflowservice"
)

func testScheduleOptions() ScheduleOptions {
	return ScheduleOptions{
		ID: "sched-1",
		Spec: workflowservice.ScheduleSpec{
			CronStrings: []string{"0 12 * * MON"},
		},
		Action: &ScheduleWorkflowAction{
			ID:        "wf-echo",
			Workflow:  "Echo",
			Args:      []interface{}{"x"},
			TaskQueue: "tq",
		},
		Paused: true,
	}
}

func Test_CreateSchedule(t *testing.T) {
	t.Parallel()
	service := &fakeService{}
	client := newTestClient(service)

	handle, err := client.ScheduleClient().Create(context.Background(), testScheduleOptions())
	require.NoError(t, err)
	require.Equal(t, "sched-1", handle.GetID())

	require.Len(t, service.createScheduleRequests, 1)
	request := service.createScheduleRequests[0]
	require.Equal(t, "unit-test", request.Namespace)
	require.Equal(t, "sched-1", request.ScheduleID)
	require.NotEmpty(t, request.RequestID)
	require.True(t, request.Schedule.State.Paused)
	action := request.Schedule.Action.StartWorkflow
	require.Equal(t, "Echo", action.WorkflowType)
	require.Equal(t, "tq", action.TaskQueue)
	var input string
	decodeResult(t, action.Input, &input)
	require.Equal(t, "x", input)
}

func Test_CreateSchedule_InvalidCron(t *testing.T) {
	t.Parallel()
	client := newTestClient(&fakeService{})

	options := testScheduleOptions()
	options.Spec.CronStrings = []string{"not a cron line"}
	_, err := client.ScheduleClient().Create(context.Background(), options)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid cron expression")
}

func Test_CreateSchedule_InvalidInterval(t *testing.T) {
	t.Parallel()
	client := newTestClient(&fakeService{})

	options := testScheduleOptions()
	options.Spec.CronStrings = nil
	options.Spec.Intervals = []workflowservice.ScheduleIntervalSpec{{Every: -time.Minute}}
	_, err := client.ScheduleClient().Create(context.Background(), options)
	require.Error(t, err)
}

func Test_ScheduleTriggerPauseUnpause(t *testing.T) {
	t.Parallel()
	service := &fakeService{}
	client := newTestClient(service)
	handle := client.ScheduleClient().GetHandle("sched-1")

	require.NoError(t, handle.Trigger(context.Background(), ScheduleTriggerOptions{}))
	require.NoError(t, handle.Pause(context.Background(), SchedulePauseOptions{Note: "maintenance"}))
	require.NoError(t, handle.Unpause(context.Background(), ScheduleUnpauseOptions{}))
	require.NoError(t, handle.Backfill(context.Background(), ScheduleBackfillOptions{
		Backfill: []workflowservice.ScheduleBackfill{{
			StartAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			EndAt:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		}},
	}))

	require.Len(t, service.patchScheduleRequests, 4)
	require.NotNil(t, service.patchScheduleRequests[0].Patch.TriggerImmediately)
	require.Equal(t, "maintenance", service.patchScheduleRequests[1].Patch.Pause)
	require.NotEmpty(t, service.patchScheduleRequests[2].Patch.Unpause)
	require.Len(t, service.patchScheduleRequests[3].Patch.BackfillRequest, 1)
}

func Test_ScheduleUpdate_UsesConflictToken(t *testing.T) {
	t.Parallel()
	service := &fakeService{
		describeScheduleResponse: &workflowservice.DescribeScheduleResponse{
			Schedule: &workflowservice.Schedule{
				State: &workflowservice.ScheduleState{Paused: false},
			},
			Info:          &workflowservice.ScheduleInfo{NumActions: 1},
			ConflictToken: []byte("token-7"),
		},
	}
	client := newTestClient(service)
	handle := client.ScheduleClient().GetHandle("sched-1")

	require.NoError(t, handle.Update(context.Background(), ScheduleUpdateOptions{
		DoUpdate: func(update ScheduleUpdate) (*ScheduleUpdate, error) {
			update.Schedule.State.Note = "touched"
			return &update, nil
		},
	}))
	require.Len(t, service.updateScheduleRequests, 1)
	require.Equal(t, []byte("token-7"), service.updateScheduleRequests[0].ConflictToken)
	require.Equal(t, "touched", service.updateScheduleRequests[0].Schedule.State.Note)
}

func Test_ScheduleUpdate_MutatorCancels(t *testing.T) {
	t.Parallel()
	service := &fakeService{
		describeScheduleResponse: &workflowservice.DescribeScheduleResponse{
			Schedule: &workflowservice.Schedule{State: &workflowservice.ScheduleState{}},
		},
	}
	client := newTestClient(service)
	handle := client.ScheduleClient().GetHandle("sched-1")

	err := handle.Update(context.Background(), ScheduleUpdateOptions{
		DoUpdate: func(update ScheduleUpdate) (*ScheduleUpdate, error) { return nil, nil },
	})
	require.ErrorIs(t, err, ErrScheduleUpdateCancelled)
	require.Empty(t, service.updateScheduleRequests)
}

func Test_ScheduleDescribe_NotFoundAfterDelete(t *testing.T) {
	t.Parallel()
	service := &fakeService{}
	client := newTestClient(service)
	handle := client.ScheduleClient().GetHandle("sched-1")

	require.NoError(t, handle.Delete(context.Background()))
	require.Len(t, service.deleteScheduleRequests, 1)

	_, err := handle.Describe(context.Background())
	var notFound *serviceerror.NotFound
	require.ErrorAs(t, err, &notFound)
}

func Test_ScheduleList_Paginates(t *testing.T) {
	t.Parallel()
	service := &fakeService{
		listSchedulesResponses: []*workflowservice.ListSchedulesResponse{
			{
				Schedules:     []*workflowservice.ScheduleListEntry{{ScheduleID: "a"}, {ScheduleID: "b"}},
				NextPageToken: []byte("page2"),
			},
			{
				Schedules: []*workflowservice.ScheduleListEntry{{ScheduleID: "c"}},
			},
		},
	}
	client := newTestClient(service)

	iterator, err := client.ScheduleClient().List(context.Background(), ScheduleListOptions{PageSize: 2})
	require.NoError(t, err)

	var ids []string
	for iterator.HasNext() {
		entry, err := iterator.Next()
		require.NoError(t, err)
		ids = append(ids, entry.ScheduleID)
	}
	require.Equal(t, []string{"a", "b", "c"}, ids)
}
