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
	"container/list"
	"fmt"

	"go.flowbridge.dev/sdk/converter"
	"go.flowbridge.dev/sdk/internal/coresdk"
)

// This file tracks the lifecycle of every buffered outbound command across
// the activation/completion boundary: a command is born when workflow code
// calls into the runtime, and dies once the job resolving it has been
// applied. Inputs are coresdk jobs and outputs are coresdk.WorkflowCommand
// values rather than raw history-event-derived protos, but the underlying
// state machine shape (ordered list + id-indexed map, "illegal state
// transition" panics on invalid moves) is unchanged from a classic
// decision-ledger design.
type (
	commandState int32
	commandType  int32

	commandID struct {
		commandType commandType
		id          string
	}

	commandStateMachine interface {
		getState() commandState
		getID() commandID
		isDone() bool
		getCommand() *coresdk.WorkflowCommand // return nil if there is no command in current state
		cancel()

		handleStartedEvent()
		handleCancelInitiatedEvent()
		handleCanceledEvent()
		handleCancelFailedEvent()
		handleCompletionEvent()
		handleInitiationFailedEvent()
		handleInitiatedEvent()

		handleCommandSent()

		setData(data interface{})
		getData() interface{}
	}

	commandStateMachineBase struct {
		id      commandID
		state   commandState
		history []string
		data    interface{}
		helper  *commandsHelper
	}

	activityCommandStateMachine struct {
		*commandStateMachineBase
		seq        uint32
		attributes *coresdk.ScheduleActivity
	}

	timerCommandStateMachine struct {
		*commandStateMachineBase
		attributes *coresdk.StartTimer
		canceled   bool
	}

	childWorkflowCommandStateMachine struct {
		*commandStateMachineBase
		attributes *coresdk.StartChildWorkflow
	}

	naiveCommandStateMachine struct {
		*commandStateMachineBase
		command *coresdk.WorkflowCommand
	}

	// only possible state transition is: CREATED->INITIATED->COMPLETED
	cancelExternalWorkflowCommandStateMachine struct {
		*naiveCommandStateMachine
	}

	signalExternalWorkflowCommandStateMachine struct {
		*naiveCommandStateMachine
	}

	// only possible state transition is: CREATED->COMPLETED (on send)
	markerCommandStateMachine struct {
		*naiveCommandStateMachine
	}

	upsertSearchAttributesCommandStateMachine struct {
		*naiveCommandStateMachine
	}

	// patchCommandStateMachine, updateCommandStateMachine, queryResponseCommandStateMachine
	// and upsertMemoCommandStateMachine share the naive machine's
	// complete-on-send behavior: none of them are resolved by a later job,
	// so there is nothing to wait for once the command has been sent.
	patchCommandStateMachine struct {
		*naiveCommandStateMachine
	}

	updateCommandStateMachine struct {
		*naiveCommandStateMachine
	}

	queryResponseCommandStateMachine struct {
		*naiveCommandStateMachine
	}

	upsertMemoCommandStateMachine struct {
		*naiveCommandStateMachine
	}

	commandsHelper struct {
		nextCommandEventID int64
		orderedCommands    *list.List
		commands           map[commandID]*list.Element

		scheduledEventIDToActivityID     map[int64]string
		scheduledEventIDToCancellationID map[int64]string
		scheduledEventIDToSignalID       map[int64]string
	}

	// panic when command state machine is in illegal state
	stateMachineIllegalStatePanic struct {
		message string
	}
)

const (
	commandStateCreated                                commandState = 0
	commandStateCommandSent                            commandState = 1
	commandStateCanceledBeforeInitiated                commandState = 2
	commandStateInitiated                              commandState = 3
	commandStateStarted                                commandState = 4
	commandStateCanceledAfterInitiated                 commandState = 5
	commandStateCanceledAfterStarted                   commandState = 6
	commandStateCancellationCommandSent                commandState = 7
	commandStateCompletedAfterCancellationCommandSent  commandState = 8
	commandStateCompleted                              commandState = 9
)

const (
	commandTypeActivity               commandType = 0
	commandTypeChildWorkflow          commandType = 1
	commandTypeCancellation           commandType = 2
	commandTypeMarker                 commandType = 3
	commandTypeTimer                  commandType = 4
	commandTypeSignal                 commandType = 5
	commandTypeUpsertSearchAttributes commandType = 6
	commandTypePatch                  commandType = 7
	commandTypeUpdate                 commandType = 8
	commandTypeQueryResponse          commandType = 9
	commandTypeUpsertMemo             commandType = 10
)

const (
	eventCancel           = "cancel"
	eventCommandSent      = "handleCommandSent"
	eventInitiated        = "handleInitiatedEvent"
	eventInitiationFailed = "handleInitiationFailedEvent"
	eventStarted          = "handleStartedEvent"
	eventCompletion       = "handleCompletionEvent"
	eventCancelInitiated  = "handleCancelInitiatedEvent"
	eventCancelFailed     = "handleCancelFailedEvent"
	eventCanceled         = "handleCanceledEvent"
)

const localActivityMarkerName = "LocalActivity"

func (d commandState) String() string {
	switch d {
	case commandStateCreated:
		return "Created"
	case commandStateCommandSent:
		return "CommandSent"
	case commandStateCanceledBeforeInitiated:
		return "CanceledBeforeInitiated"
	case commandStateInitiated:
		return "Initiated"
	case commandStateStarted:
		return "Started"
	case commandStateCanceledAfterInitiated:
		return "CanceledAfterInitiated"
	case commandStateCanceledAfterStarted:
		return "CanceledAfterStarted"
	case commandStateCancellationCommandSent:
		return "CancellationCommandSent"
	case commandStateCompletedAfterCancellationCommandSent:
		return "CompletedAfterCancellationCommandSent"
	case commandStateCompleted:
		return "Completed"
	default:
		return "Unknown"
	}
}

func (d commandType) String() string {
	switch d {
	case commandTypeActivity:
		return "Activity"
	case commandTypeChildWorkflow:
		return "ChildWorkflow"
	case commandTypeCancellation:
		return "Cancellation"
	case commandTypeMarker:
		return "Marker"
	case commandTypeTimer:
		return "Timer"
	case commandTypeSignal:
		return "Signal"
	case commandTypeUpsertSearchAttributes:
		return "UpsertSearchAttributes"
	default:
		return "Unknown"
	}
}

func (d commandID) String() string {
	return fmt.Sprintf("CommandType: %v, ID: %v", d.commandType, d.id)
}

func makeCommandID(commandType commandType, id string) commandID {
	return commandID{commandType: commandType, id: id}
}

func (h *commandsHelper) newCommandStateMachineBase(commandType commandType, id string) *commandStateMachineBase {
	return &commandStateMachineBase{
		id:      makeCommandID(commandType, id),
		state:   commandStateCreated,
		history: []string{commandStateCreated.String()},
		helper:  h,
	}
}

func (h *commandsHelper) newActivityCommandStateMachine(
	seq uint32,
	attributes *coresdk.ScheduleActivity,
) *activityCommandStateMachine {
	base := h.newCommandStateMachineBase(commandTypeActivity, attributes.ActivityID)
	return &activityCommandStateMachine{
		commandStateMachineBase: base,
		seq:                     seq,
		attributes:              attributes,
	}
}

func (h *commandsHelper) newTimerCommandStateMachine(attributes *coresdk.StartTimer, timerID string) *timerCommandStateMachine {
	base := h.newCommandStateMachineBase(commandTypeTimer, timerID)
	return &timerCommandStateMachine{
		commandStateMachineBase: base,
		attributes:              attributes,
	}
}

func (h *commandsHelper) newChildWorkflowCommandStateMachine(attributes *coresdk.StartChildWorkflow) *childWorkflowCommandStateMachine {
	base := h.newCommandStateMachineBase(commandTypeChildWorkflow, attributes.WorkflowID)
	return &childWorkflowCommandStateMachine{
		commandStateMachineBase: base,
		attributes:              attributes,
	}
}

func (h *commandsHelper) newNaiveCommandStateMachine(commandType commandType, id string, command *coresdk.WorkflowCommand) *naiveCommandStateMachine {
	base := h.newCommandStateMachineBase(commandType, id)
	return &naiveCommandStateMachine{
		commandStateMachineBase: base,
		command:                 command,
	}
}

func (h *commandsHelper) newMarkerCommandStateMachine(id string, attributes *coresdk.RecordMarker) *markerCommandStateMachine {
	c := &coresdk.WorkflowCommand{RecordMarker: attributes}
	return &markerCommandStateMachine{
		naiveCommandStateMachine: h.newNaiveCommandStateMachine(commandTypeMarker, id, c),
	}
}

func (h *commandsHelper) newCancelExternalWorkflowStateMachine(attributes *coresdk.CancelExternalWorkflow, cancellationID string) *cancelExternalWorkflowCommandStateMachine {
	c := &coresdk.WorkflowCommand{CancelExternalWorkflow: attributes}
	return &cancelExternalWorkflowCommandStateMachine{
		naiveCommandStateMachine: h.newNaiveCommandStateMachine(commandTypeCancellation, cancellationID, c),
	}
}

func (h *commandsHelper) newSignalExternalWorkflowStateMachine(attributes *coresdk.SignalExternalWorkflow, signalID string) *signalExternalWorkflowCommandStateMachine {
	c := &coresdk.WorkflowCommand{SignalExternalWorkflow: attributes}
	return &signalExternalWorkflowCommandStateMachine{
		naiveCommandStateMachine: h.newNaiveCommandStateMachine(commandTypeSignal, signalID, c),
	}
}

func (h *commandsHelper) newUpsertSearchAttributesStateMachine(attributes *coresdk.UpsertSearchAttributes, upsertID string) *upsertSearchAttributesCommandStateMachine {
	c := &coresdk.WorkflowCommand{UpsertSearchAttributes: attributes}
	return &upsertSearchAttributesCommandStateMachine{
		naiveCommandStateMachine: h.newNaiveCommandStateMachine(commandTypeUpsertSearchAttributes, upsertID, c),
	}
}

func (h *commandsHelper) newPatchStateMachine(attributes *coresdk.SetPatchMarker) *patchCommandStateMachine {
	c := &coresdk.WorkflowCommand{SetPatchMarker: attributes}
	return &patchCommandStateMachine{
		naiveCommandStateMachine: h.newNaiveCommandStateMachine(commandTypePatch, attributes.PatchID, c),
	}
}

func (h *commandsHelper) newUpdateAcceptedStateMachine(updateID string) *updateCommandStateMachine {
	c := &coresdk.WorkflowCommand{UpdateAccepted: &coresdk.UpdateAccepted{ID: updateID}}
	return &updateCommandStateMachine{
		naiveCommandStateMachine: h.newNaiveCommandStateMachine(commandTypeUpdate, updateID+"_accepted", c),
	}
}

func (h *commandsHelper) newUpdateCompletedStateMachine(updateID string, result *converter.Payloads) *updateCommandStateMachine {
	c := &coresdk.WorkflowCommand{UpdateCompleted: &coresdk.UpdateCompleted{ID: updateID, Result: result}}
	return &updateCommandStateMachine{
		naiveCommandStateMachine: h.newNaiveCommandStateMachine(commandTypeUpdate, updateID+"_completed", c),
	}
}

func (h *commandsHelper) newUpdateRejectedStateMachine(updateID string, failure *converter.Failure) *updateCommandStateMachine {
	c := &coresdk.WorkflowCommand{UpdateRejected: &coresdk.UpdateRejected{ID: updateID, Failure: failure}}
	return &updateCommandStateMachine{
		naiveCommandStateMachine: h.newNaiveCommandStateMachine(commandTypeUpdate, updateID+"_rejected", c),
	}
}

func (h *commandsHelper) newQueryResponseStateMachine(attributes *coresdk.RespondToQuery) *queryResponseCommandStateMachine {
	c := &coresdk.WorkflowCommand{RespondToQuery: attributes}
	return &queryResponseCommandStateMachine{
		naiveCommandStateMachine: h.newNaiveCommandStateMachine(commandTypeQueryResponse, attributes.QueryID, c),
	}
}

func (h *commandsHelper) newUpsertMemoStateMachine(attributes *coresdk.UpsertMemo, upsertID string) *upsertMemoCommandStateMachine {
	c := &coresdk.WorkflowCommand{UpsertMemo: attributes}
	return &upsertMemoCommandStateMachine{
		naiveCommandStateMachine: h.newNaiveCommandStateMachine(commandTypeUpsertMemo, upsertID, c),
	}
}

func (d *commandStateMachineBase) getState() commandState {
	return d.state
}

func (d *commandStateMachineBase) getID() commandID {
	return d.id
}

func (d *commandStateMachineBase) isDone() bool {
	return d.state == commandStateCompleted || d.state == commandStateCompletedAfterCancellationCommandSent
}

func (d *commandStateMachineBase) setData(data interface{}) {
	d.data = data
}

func (d *commandStateMachineBase) getData() interface{} {
	return d.data
}

func (d *commandStateMachineBase) moveState(newState commandState, event string) {
	d.history = append(d.history, event)
	d.state = newState
	d.history = append(d.history, newState.String())

	if newState == commandStateCompleted {
		if elem, ok := d.helper.commands[d.getID()]; ok {
			d.helper.orderedCommands.Remove(elem)
			delete(d.helper.commands, d.getID())
		}
	}
}

func (d stateMachineIllegalStatePanic) String() string {
	return d.message
}

func panicIllegalState(message string) {
	panic(stateMachineIllegalStatePanic{message: message})
}

func (d *commandStateMachineBase) failStateTransition(event string) {
	// this is when we detect illegal state transition, likely due to ill history sequence or nondeterministic workflow code
	panicIllegalState(fmt.Sprintf("invalid state transition: attempt to %v, %v", event, d))
}

func (d *commandStateMachineBase) handleCommandSent() {
	// Harvesting a command into an activation completion is this protocol's
	// initiation: the bridge guarantees the write, and resolution arrives as
	// a job keyed by sequence number, never as a separate initiated event.
	switch d.state {
	case commandStateCreated:
		d.moveState(commandStateInitiated, eventCommandSent)
	}
}

func (d *commandStateMachineBase) cancel() {
	switch d.state {
	case commandStateCompleted, commandStateCompletedAfterCancellationCommandSent:
		// No op. This is legit. People could cancel context after timer/activity is done.
	case commandStateCreated:
		d.moveState(commandStateCompleted, eventCancel)
	case commandStateCommandSent:
		d.moveState(commandStateCanceledBeforeInitiated, eventCancel)
	case commandStateInitiated:
		d.moveState(commandStateCanceledAfterInitiated, eventCancel)
	default:
		d.failStateTransition(eventCancel)
	}
}

func (d *commandStateMachineBase) handleInitiatedEvent() {
	switch d.state {
	case commandStateCommandSent:
		d.moveState(commandStateInitiated, eventInitiated)
	case commandStateCanceledBeforeInitiated:
		d.moveState(commandStateCanceledAfterInitiated, eventInitiated)
	default:
		d.failStateTransition(eventInitiated)
	}
}

func (d *commandStateMachineBase) handleInitiationFailedEvent() {
	switch d.state {
	case commandStateInitiated, commandStateCommandSent, commandStateCanceledBeforeInitiated:
		d.moveState(commandStateCompleted, eventInitiationFailed)
	default:
		d.failStateTransition(eventInitiationFailed)
	}
}

func (d *commandStateMachineBase) handleStartedEvent() {
	d.history = append(d.history, eventStarted)
}

func (d *commandStateMachineBase) handleCompletionEvent() {
	switch d.state {
	case commandStateCanceledAfterInitiated, commandStateInitiated:
		d.moveState(commandStateCompleted, eventCompletion)
	case commandStateCancellationCommandSent:
		d.moveState(commandStateCompletedAfterCancellationCommandSent, eventCompletion)
	default:
		d.failStateTransition(eventCompletion)
	}
}

func (d *commandStateMachineBase) handleCancelInitiatedEvent() {
	d.history = append(d.history, eventCancelInitiated)
	switch d.state {
	case commandStateCancellationCommandSent:
	// No state change
	default:
		d.failStateTransition(eventCancelInitiated)
	}
}

func (d *commandStateMachineBase) handleCancelFailedEvent() {
	switch d.state {
	case commandStateCompletedAfterCancellationCommandSent:
		d.moveState(commandStateCompleted, eventCancelFailed)
	default:
		d.failStateTransition(eventCancelFailed)
	}
}

func (d *commandStateMachineBase) handleCanceledEvent() {
	switch d.state {
	case commandStateCancellationCommandSent:
		d.moveState(commandStateCompleted, eventCanceled)
	default:
		d.failStateTransition(eventCanceled)
	}
}

func (d *commandStateMachineBase) String() string {
	return fmt.Sprintf("%v, state=%v, isDone()=%v, history=%v",
		d.id, d.state, d.isDone(), d.history)
}

func (d *activityCommandStateMachine) getCommand() *coresdk.WorkflowCommand {
	switch d.state {
	case commandStateCreated:
		return &coresdk.WorkflowCommand{ScheduleActivity: d.attributes}
	case commandStateCanceledAfterInitiated:
		return &coresdk.WorkflowCommand{RequestCancelActivity: &coresdk.RequestCancelActivity{Seq: d.seq}}
	default:
		return nil
	}
}

func (d *activityCommandStateMachine) handleCommandSent() {
	switch d.state {
	case commandStateCanceledAfterInitiated:
		d.moveState(commandStateCancellationCommandSent, eventCommandSent)
	default:
		d.commandStateMachineBase.handleCommandSent()
	}
}

func (d *activityCommandStateMachine) handleCancelFailedEvent() {
	// Request to cancel activity now results in either activity completion, failed, timedout, or canceled.
	// Request to cancel itself can never fail.
	d.failStateTransition(eventCancelFailed)
}

func (d *timerCommandStateMachine) cancel() {
	d.canceled = true
	d.commandStateMachineBase.cancel()
}

func (d *timerCommandStateMachine) isDone() bool {
	return d.state == commandStateCompleted || d.canceled
}

func (d *timerCommandStateMachine) handleCommandSent() {
	switch d.state {
	case commandStateCanceledAfterInitiated:
		d.moveState(commandStateCancellationCommandSent, eventCommandSent)
	default:
		d.commandStateMachineBase.handleCommandSent()
	}
}

func (d *timerCommandStateMachine) handleCancelFailedEvent() {
	switch d.state {
	case commandStateCancellationCommandSent:
		d.moveState(commandStateInitiated, eventCancelFailed)
	default:
		d.commandStateMachineBase.handleCancelFailedEvent()
	}
}

func (d *timerCommandStateMachine) getCommand() *coresdk.WorkflowCommand {
	switch d.state {
	case commandStateCreated:
		return &coresdk.WorkflowCommand{StartTimer: d.attributes}
	case commandStateCanceledAfterInitiated:
		return &coresdk.WorkflowCommand{CancelTimer: &coresdk.CancelTimer{Seq: d.attributes.Seq}}
	default:
		return nil
	}
}

func (d *childWorkflowCommandStateMachine) getCommand() *coresdk.WorkflowCommand {
	switch d.state {
	case commandStateCreated:
		return &coresdk.WorkflowCommand{StartChildWorkflow: d.attributes}
	case commandStateCanceledAfterStarted:
		return &coresdk.WorkflowCommand{CancelChildWorkflow: &coresdk.CancelChildWorkflow{Seq: d.attributes.Seq}}
	default:
		return nil
	}
}

func (d *childWorkflowCommandStateMachine) handleCommandSent() {
	switch d.state {
	case commandStateCanceledAfterStarted:
		d.moveState(commandStateCancellationCommandSent, eventCommandSent)
	default:
		d.commandStateMachineBase.handleCommandSent()
	}
}

func (d *childWorkflowCommandStateMachine) handleStartedEvent() {
	switch d.state {
	case commandStateInitiated:
		d.moveState(commandStateStarted, eventStarted)
	case commandStateCanceledAfterInitiated:
		d.moveState(commandStateCanceledAfterStarted, eventStarted)
	default:
		d.commandStateMachineBase.handleStartedEvent()
	}
}

func (d *childWorkflowCommandStateMachine) handleCancelFailedEvent() {
	switch d.state {
	case commandStateCancellationCommandSent:
		d.moveState(commandStateStarted, eventCancelFailed)
	default:
		d.commandStateMachineBase.handleCancelFailedEvent()
	}
}

func (d *childWorkflowCommandStateMachine) cancel() {
	switch d.state {
	case commandStateStarted:
		d.moveState(commandStateCanceledAfterStarted, eventCancel)
	default:
		d.commandStateMachineBase.cancel()
	}
}

func (d *childWorkflowCommandStateMachine) handleCanceledEvent() {
	switch d.state {
	case commandStateStarted:
		d.moveState(commandStateCompleted, eventCanceled)
	default:
		d.commandStateMachineBase.handleCanceledEvent()
	}
}

func (d *childWorkflowCommandStateMachine) handleCompletionEvent() {
	switch d.state {
	case commandStateStarted, commandStateCanceledAfterStarted:
		d.moveState(commandStateCompleted, eventCompletion)
	default:
		d.commandStateMachineBase.handleCompletionEvent()
	}
}

func (d *naiveCommandStateMachine) getCommand() *coresdk.WorkflowCommand {
	switch d.state {
	case commandStateCreated:
		return d.command
	default:
		return nil
	}
}

func (d *naiveCommandStateMachine) cancel() {
	panic("unsupported operation")
}

func (d *naiveCommandStateMachine) handleCompletionEvent() {
	panic("unsupported operation")
}

func (d *naiveCommandStateMachine) handleInitiatedEvent() {
	panic("unsupported operation")
}

func (d *naiveCommandStateMachine) handleInitiationFailedEvent() {
	panic("unsupported operation")
}

func (d *naiveCommandStateMachine) handleStartedEvent() {
	panic("unsupported operation")
}

func (d *naiveCommandStateMachine) handleCanceledEvent() {
	panic("unsupported operation")
}

func (d *naiveCommandStateMachine) handleCancelFailedEvent() {
	panic("unsupported operation")
}

func (d *naiveCommandStateMachine) handleCancelInitiatedEvent() {
	panic("unsupported operation")
}

func (d *cancelExternalWorkflowCommandStateMachine) handleCommandSent() {
	switch d.state {
	case commandStateCreated:
		d.moveState(commandStateInitiated, eventCommandSent)
	}
}

func (d *cancelExternalWorkflowCommandStateMachine) handleCompletionEvent() {
	switch d.state {
	case commandStateInitiated:
		d.moveState(commandStateCompleted, eventCompletion)
	default:
		d.failStateTransition(eventCompletion)
	}
}

func (d *signalExternalWorkflowCommandStateMachine) handleCommandSent() {
	switch d.state {
	case commandStateCreated:
		d.moveState(commandStateInitiated, eventCommandSent)
	}
}

func (d *signalExternalWorkflowCommandStateMachine) handleCompletionEvent() {
	switch d.state {
	case commandStateInitiated:
		d.moveState(commandStateCompleted, eventCompletion)
	default:
		d.failStateTransition(eventCompletion)
	}
}

func (d *markerCommandStateMachine) handleCommandSent() {
	// Marker commands are considered complete once sent: there is no
	// resolving job, the value is simply replayed from the command itself.
	switch d.state {
	case commandStateCreated:
		d.moveState(commandStateCompleted, eventCommandSent)
	}
}

func (d *upsertSearchAttributesCommandStateMachine) handleCommandSent() {
	// This command is considered complete once sent.
	switch d.state {
	case commandStateCreated:
		d.moveState(commandStateCompleted, eventCommandSent)
	}
}

func (d *patchCommandStateMachine) handleCommandSent() {
	switch d.state {
	case commandStateCreated:
		d.moveState(commandStateCompleted, eventCommandSent)
	}
}

func (d *updateCommandStateMachine) handleCommandSent() {
	switch d.state {
	case commandStateCreated:
		d.moveState(commandStateCompleted, eventCommandSent)
	}
}

func (d *queryResponseCommandStateMachine) handleCommandSent() {
	switch d.state {
	case commandStateCreated:
		d.moveState(commandStateCompleted, eventCommandSent)
	}
}

func (d *upsertMemoCommandStateMachine) handleCommandSent() {
	switch d.state {
	case commandStateCreated:
		d.moveState(commandStateCompleted, eventCommandSent)
	}
}

func newCommandsHelper() *commandsHelper {
	return &commandsHelper{
		orderedCommands: list.New(),
		commands:        make(map[commandID]*list.Element),

		scheduledEventIDToActivityID:     make(map[int64]string),
		scheduledEventIDToCancellationID: make(map[int64]string),
		scheduledEventIDToSignalID:       make(map[int64]string),
	}
}

func (h *commandsHelper) getNextID() int64 {
	return h.nextCommandEventID
}

func (h *commandsHelper) getCommand(id commandID) commandStateMachine {
	command, ok := h.commands[id]
	if !ok {
		panicMsg := fmt.Sprintf("unknown command %v, possible causes are nondeterministic workflow definition code"+
			" or incompatible change in the workflow definition", id)
		panicIllegalState(panicMsg)
	}
	// Move the last updated command state machine to the back of the list.
	// Otherwise commands (like timer cancellations) can end up out of order.
	h.orderedCommands.MoveToBack(command)
	return command.Value.(commandStateMachine)
}

func (h *commandsHelper) addCommand(command commandStateMachine) {
	if _, ok := h.commands[command.getID()]; ok {
		panicMsg := fmt.Sprintf("adding duplicate command %v", command)
		panicIllegalState(panicMsg)
	}
	element := h.orderedCommands.PushBack(command)
	h.commands[command.getID()] = element

	h.nextCommandEventID++
}

func (h *commandsHelper) scheduleActivityTask(seq uint32, attributes *coresdk.ScheduleActivity) commandStateMachine {
	h.scheduledEventIDToActivityID[int64(seq)] = attributes.ActivityID
	command := h.newActivityCommandStateMachine(seq, attributes)
	h.addCommand(command)
	return command
}

func (h *commandsHelper) requestCancelActivityTask(activityID string) commandStateMachine {
	id := makeCommandID(commandTypeActivity, activityID)
	command := h.getCommand(id)
	command.cancel()
	return command
}

func (h *commandsHelper) handleActivityTaskResolved(activityID string) commandStateMachine {
	command := h.getCommand(makeCommandID(commandTypeActivity, activityID))
	command.handleCompletionEvent()
	return command
}

func (h *commandsHelper) recordLocalActivityMarker(activityID string, result *converter.Payloads) commandStateMachine {
	markerID := fmt.Sprintf("%v_%v", localActivityMarkerName, activityID)
	attributes := &coresdk.RecordMarker{
		MarkerName: localActivityMarkerName,
		Details:    payloadsToMap(result),
	}
	command := h.newMarkerCommandStateMachine(markerID, attributes)
	h.addCommand(command)
	return command
}

// payloadsToMap adapts a single-Payloads marker attribute to the coresdk
// RecordMarker shape, which carries a name-keyed Payload map instead of a
// positional Payloads list; "data" is the conventional single key used for
// markers that only ever carry one value.
func payloadsToMap(p *converter.Payloads) map[string]*converter.Payload {
	if p == nil || len(p.Payloads) == 0 {
		return nil
	}
	return map[string]*converter.Payload{"data": p.Payloads[0]}
}

func (h *commandsHelper) startChildWorkflowExecution(attributes *coresdk.StartChildWorkflow) commandStateMachine {
	command := h.newChildWorkflowCommandStateMachine(attributes)
	h.addCommand(command)
	return command
}

func (h *commandsHelper) handleStartChildWorkflowExecutionFailed(workflowID string) commandStateMachine {
	command := h.getCommand(makeCommandID(commandTypeChildWorkflow, workflowID))
	command.handleInitiationFailedEvent()
	return command
}

func (h *commandsHelper) handleChildWorkflowExecutionStarted(workflowID string) commandStateMachine {
	command := h.getCommand(makeCommandID(commandTypeChildWorkflow, workflowID))
	command.handleStartedEvent()
	return command
}

func (h *commandsHelper) handleChildWorkflowExecutionResolved(workflowID string) commandStateMachine {
	command := h.getCommand(makeCommandID(commandTypeChildWorkflow, workflowID))
	command.handleCompletionEvent()
	return command
}

func (h *commandsHelper) handleChildWorkflowExecutionCanceled(workflowID string) commandStateMachine {
	command := h.getCommand(makeCommandID(commandTypeChildWorkflow, workflowID))
	command.handleCanceledEvent()
	return command
}

func (h *commandsHelper) requestCancelExternalWorkflowExecution(seq uint32, attributes *coresdk.CancelExternalWorkflow) commandStateMachine {
	cancellationID := sequenceID(seq)
	h.scheduledEventIDToCancellationID[int64(seq)] = cancellationID
	command := h.newCancelExternalWorkflowStateMachine(attributes, cancellationID)
	h.addCommand(command)
	return command
}

func (h *commandsHelper) handleRequestCancelExternalWorkflowExecutionResolved(seq uint32) commandStateMachine {
	cancellationID, ok := h.scheduledEventIDToCancellationID[int64(seq)]
	if !ok {
		panicIllegalState(fmt.Sprintf("unable to find cancellation ID for sequence: %v", seq))
	}
	command := h.getCommand(makeCommandID(commandTypeCancellation, cancellationID))
	command.handleCompletionEvent()
	return command
}

func (h *commandsHelper) signalExternalWorkflowExecution(seq uint32, attributes *coresdk.SignalExternalWorkflow) commandStateMachine {
	signalID := sequenceID(seq)
	h.scheduledEventIDToSignalID[int64(seq)] = signalID
	command := h.newSignalExternalWorkflowStateMachine(attributes, signalID)
	h.addCommand(command)
	return command
}

func (h *commandsHelper) upsertSearchAttributes(upsertID string, searchAttr map[string]*converter.Payload) commandStateMachine {
	attributes := &coresdk.UpsertSearchAttributes{
		SearchAttributes: searchAttr,
	}
	command := h.newUpsertSearchAttributesStateMachine(attributes, upsertID)
	h.addCommand(command)
	return command
}

func (h *commandsHelper) handleSignalExternalWorkflowExecutionResolved(seq uint32) commandStateMachine {
	command := h.getCommand(makeCommandID(commandTypeSignal, h.getSignalID(seq)))
	command.handleCompletionEvent()
	return command
}

func (h *commandsHelper) getSignalID(seq uint32) string {
	signalID, ok := h.scheduledEventIDToSignalID[int64(seq)]
	if !ok {
		panic(fmt.Sprintf("unable to find signal ID for sequence: %v", seq))
	}
	return signalID
}

func (h *commandsHelper) startTimer(attributes *coresdk.StartTimer, timerID string) commandStateMachine {
	command := h.newTimerCommandStateMachine(attributes, timerID)
	h.addCommand(command)
	return command
}

func (h *commandsHelper) cancelTimer(timerID string) commandStateMachine {
	command := h.getCommand(makeCommandID(commandTypeTimer, timerID))
	command.cancel()
	return command
}

func (h *commandsHelper) handleTimerResolved(timerID string) commandStateMachine {
	command := h.getCommand(makeCommandID(commandTypeTimer, timerID))
	command.handleCompletionEvent()
	return command
}

// getCommands drains the ordered command list into coresdk.WorkflowCommand
// values for one WorkflowActivationCompletion, optionally marking every
// emitted state machine as sent and reaping the ones that completed as a
// result (naive/marker commands complete immediately on send).
func (h *commandsHelper) getCommands(markAsSent bool) []coresdk.WorkflowCommand {
	var result []coresdk.WorkflowCommand
	for curr := h.orderedCommands.Front(); curr != nil; {
		next := curr.Next() // get next item here as we might need to remove curr in the loop
		d := curr.Value.(commandStateMachine)
		command := d.getCommand()
		if command != nil {
			result = append(result, *command)
		}

		if markAsSent {
			d.handleCommandSent()
		}

		// remove completed command state machines
		if d.getState() == commandStateCompleted {
			h.orderedCommands.Remove(curr)
			delete(h.commands, d.getID())
		}

		curr = next
	}

	return result
}

// requestCancelChildWorkflow routes a cancellation through the child's own
// state machine: the cancelChildWorkflow command is only emitted once the
// child is confirmed started, earlier cancels suppress the start command.
func (h *commandsHelper) requestCancelChildWorkflow(workflowID string) commandStateMachine {
	command := h.getCommand(makeCommandID(commandTypeChildWorkflow, workflowID))
	command.cancel()
	return command
}

func (h *commandsHelper) setPatchMarker(patchID string, deprecated bool) commandStateMachine {
	command := h.newPatchStateMachine(&coresdk.SetPatchMarker{PatchID: patchID, Deprecated: deprecated})
	h.addCommand(command)
	return command
}

func (h *commandsHelper) updateAccepted(updateID string) commandStateMachine {
	command := h.newUpdateAcceptedStateMachine(updateID)
	h.addCommand(command)
	return command
}

func (h *commandsHelper) updateCompleted(updateID string, result *converter.Payloads) commandStateMachine {
	command := h.newUpdateCompletedStateMachine(updateID, result)
	h.addCommand(command)
	return command
}

func (h *commandsHelper) updateRejected(updateID string, failure *converter.Failure) commandStateMachine {
	command := h.newUpdateRejectedStateMachine(updateID, failure)
	h.addCommand(command)
	return command
}

func (h *commandsHelper) respondToQuery(queryID string, result *converter.Payloads, failure *converter.Failure) commandStateMachine {
	command := h.newQueryResponseStateMachine(&coresdk.RespondToQuery{QueryID: queryID, Result: result, Failure: failure})
	h.addCommand(command)
	return command
}

func (h *commandsHelper) upsertMemo(upsertID string, memo map[string]*converter.Payload) commandStateMachine {
	command := h.newUpsertMemoStateMachine(&coresdk.UpsertMemo{Memo: memo}, upsertID)
	h.addCommand(command)
	return command
}
