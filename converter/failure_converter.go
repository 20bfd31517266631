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

package converter

import "encoding/json"

// RetryState mirrors the server's classification of why a retryable
// execution (activity or child workflow) stopped retrying, surfaced on the
// corresponding failure wrapper.
type RetryState int

const (
	RetryStateUnspecified RetryState = iota
	RetryStateInProgress
	RetryStateBackoffPossible
	RetryStateTimeout
	RetryStateRetryPolicyNotSet
	RetryStateNonRetryableFailure
	RetryStateMaximumAttemptsReached
	RetryStateInternalServerError
	RetryStateCancelRequested
)

// TimeoutType enumerates which workflow/activity timeout elapsed.
type TimeoutType int

const (
	TimeoutTypeUnspecified TimeoutType = iota
	TimeoutTypeStartToClose
	TimeoutTypeScheduleToStart
	TimeoutTypeScheduleToClose
	TimeoutTypeHeartbeat
)

// Failure is the wire shape of a failure: a recursive record carrying a
// human message, provenance, and exactly one populated field of Info
// describing what kind of failure this is. Modeled as a plain Go sum type
// (one nilable pointer field per kind) rather than a protobuf oneof
// wrapper, so callers switch on which field of Info is non-nil instead of
// dispatching on a string-typed "kind".
type Failure struct {
	Message           string
	Source            string
	StackTrace        string
	EncodedAttributes *Payload
	Cause             *Failure
	Info              FailureInfo
}

// FailureInfo is the failure kind's tagged union: exactly one field is
// populated for any given Failure.
type FailureInfo struct {
	Application            *ApplicationFailureInfo
	Cancelled              *CancelledFailureInfo
	Terminated             *TerminatedFailureInfo
	Timeout                *TimeoutFailureInfo
	Activity               *ActivityFailureInfo
	ChildWorkflowExecution *ChildWorkflowExecutionFailureInfo
	Server                 *ServerFailureInfo
}

// ApplicationFailureInfo carries a user-raised, typed error.
type ApplicationFailureInfo struct {
	Type           string
	NonRetryable   bool
	NextRetryDelay int64 // nanoseconds; 0 means "let the retry policy decide"
	Details        *Payloads
}

// CancelledFailureInfo carries a cooperative-cancellation acknowledgment.
type CancelledFailureInfo struct {
	Details *Payloads
}

// TerminatedFailureInfo carries a forcible server-side stop; it has no
// fields of its own beyond the enclosing Failure's message/details.
type TerminatedFailureInfo struct{}

// TimeoutFailureInfo carries which timeout elapsed and, for a heartbeat
// timeout, the last details the activity recorded.
type TimeoutFailureInfo struct {
	TimeoutType          TimeoutType
	LastHeartbeatDetails *Payloads
}

// ActivityFailureInfo wraps a cause with the scheduling identifiers of the
// activity that produced it.
type ActivityFailureInfo struct {
	ScheduledEventID int64
	StartedEventID   int64
	Identity         string
	ActivityType     string
	ActivityID       string
	RetryState       RetryState
}

// ChildWorkflowExecutionFailureInfo wraps a cause with the identity of the
// child workflow that produced it.
type ChildWorkflowExecutionFailureInfo struct {
	Namespace        string
	WorkflowID       string
	RunID            string
	WorkflowType     string
	InitiatedEventID int64
	StartedEventID   int64
	RetryState       RetryState
}

// ServerFailureInfo carries a server-reported failure, optionally marked
// non-retryable.
type ServerFailureInfo struct {
	NonRetryable bool
}

// encodedCommonAttributes is the JSON shape stored in a Failure's
// EncodedAttributes payload when FailureConverter.EncodeCommonAttributes is
// enabled.
type encodedCommonAttributes struct {
	Message    string `json:"message"`
	StackTrace string `json:"stack_trace"`
}

const redactedFailureMessage = "Encoded failure"

// FailureConverter is the synchronous, deterministic half of failure
// conversion: it only ever rearranges Failure fields (moving
// message/stackTrace into an encoded payload and back), never the Go
// error <-> Failure mapping, which needs the error taxonomy defined in
// package internal and stays there to avoid an import cycle. See
// DefaultFailureConverter.
type FailureConverter interface {
	// EncodeFailure applies EncodeCommonAttributes (if enabled) to a
	// freshly-built Failure. DefaultFailureConverter builds the attributes
	// payload with encoding/json and does not use dc.
	EncodeFailure(f *Failure, dc DataConverter) *Failure
	// DecodeFailure reverses EncodeFailure.
	DecodeFailure(f *Failure, dc DataConverter) *Failure
}

// DefaultFailureConverter implements FailureConverter. When
// EncodeCommonAttributes is true, Message and StackTrace are replaced with
// sentinel values and moved into an encoded JSON payload in
// EncodedAttributes; this hides user data (which may include stack frames
// referencing sensitive closures) from anything that only forwards failures
// without decoding them (the server, an intermediate proxy).
type DefaultFailureConverter struct {
	EncodeCommonAttributes bool
}

// NewDefaultFailureConverter creates a DefaultFailureConverter.
func NewDefaultFailureConverter(encodeCommonAttributes bool) *DefaultFailureConverter {
	return &DefaultFailureConverter{EncodeCommonAttributes: encodeCommonAttributes}
}

// EncodeFailure implements FailureConverter.
func (c *DefaultFailureConverter) EncodeFailure(f *Failure, dc DataConverter) *Failure {
	if f == nil {
		return nil
	}
	out := *f
	out.Cause = c.EncodeFailure(f.Cause, dc)
	if !c.EncodeCommonAttributes {
		return &out
	}

	attrs := encodedCommonAttributes{Message: f.Message, StackTrace: f.StackTrace}
	data, err := json.Marshal(attrs)
	if err != nil {
		return &out
	}
	out.EncodedAttributes = &Payload{
		Metadata: map[string][]byte{MetadataEncoding: []byte(MetadataEncodingJSON)},
		Data:     data,
	}
	out.Message = redactedFailureMessage
	out.StackTrace = ""
	return &out
}

// DecodeFailure implements FailureConverter, reversing EncodeFailure.
func (c *DefaultFailureConverter) DecodeFailure(f *Failure, dc DataConverter) *Failure {
	if f == nil {
		return nil
	}
	out := *f
	out.Cause = c.DecodeFailure(f.Cause, dc)
	if out.EncodedAttributes == nil {
		return &out
	}

	var attrs encodedCommonAttributes
	if err := json.Unmarshal(out.EncodedAttributes.GetData(), &attrs); err != nil {
		return &out
	}
	out.Message = attrs.Message
	out.StackTrace = attrs.StackTrace
	return &out
}

// DefaultFailureConverterInstance is the package-level default: common
// attributes are not encoded unless a worker/client opts in.
var DefaultFailureConverterInstance = NewDefaultFailureConverter(false)
