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

// Package converter implements the data conversion pipeline: the chain of
// PayloadConverters that turns Go values into wire Payloads (and back), the
// FailureConverter that does the same for errors, and the outer PayloadCodec
// layer for compression/encryption.
package converter

import (
	"errors"
)

// Metadata encoding tags, as carried on Payload.Metadata["encoding"].
// A PayloadConverter claims exactly one of these via Encoding().
const (
	MetadataEncoding = "encoding"
	MetadataName     = "name"

	MetadataEncodingNil        = "binary/null"
	MetadataEncodingBinary     = "binary/plain"
	MetadataEncodingProtoJSON  = "json/protobuf"
	MetadataEncodingProto      = "binary/protobuf"
	MetadataEncodingJSON       = "json/plain"
)

var (
	// ErrUnableToEncode is returned when a payload cannot be converted to bytes.
	ErrUnableToEncode = errors.New("unable to encode")
	// ErrUnableToDecode is returned when a payload cannot be converted from bytes.
	ErrUnableToDecode = errors.New("unable to decode")
	// ErrUnableToSetValue is returned when the decoded value can't be assigned
	// to the destination pointer.
	ErrUnableToSetValue = errors.New("unable to set value")
	// ErrValueIsNotPointer is returned when FromPayload's destination isn't a pointer.
	ErrValueIsNotPointer = errors.New("value is not a pointer")
	// ErrValueDoesntImplementProtoMessage is returned when a value claiming to
	// be handled by a proto converter implements neither proto.Message nor
	// gogoproto.Message.
	ErrValueDoesntImplementProtoMessage = errors.New("value doesn't implement proto.Message")
	// ErrMetadataIsNotSet is returned when a Payload has no Metadata map.
	ErrMetadataIsNotSet = errors.New("metadata is not set")
	// ErrEncodingIsNotSet is returned when Payload.Metadata["encoding"] is missing.
	ErrEncodingIsNotSet = errors.New("payload encoding metadata is not set")
	// ErrEncodingIsNotSupported is returned when no registered converter claims
	// the payload's encoding tag.
	ErrEncodingIsNotSupported = errors.New("payload encoding is not supported")
)

type (
	// Value is used to encapsulate/extract an encoded value from a workflow
	// or activity invocation.
	Value interface {
		// HasValue returns whether there is a value encoded.
		HasValue() bool
		// Get extracts the encoded value into a strongly typed value pointer.
		Get(valuePtr interface{}) error
	}

	// Values is used to encapsulate/extract one or more encoded values from a
	// workflow or activity invocation.
	Values interface {
		// HasValues returns whether there are values encoded.
		HasValues() bool
		// Get extracts the encoded values into strongly typed value pointers.
		Get(valuePtr ...interface{}) error
	}

	// DataConverter serializes/deserializes the arguments and return values of
	// workflows and activities that cross the wire. A custom DataConverter can
	// be installed on ClientOptions and on WorkerOptions; they must agree for a
	// given namespace or decoding will fail downstream.
	DataConverter interface {
		// ToPayload converts a single value into a wire Payload.
		ToPayload(value interface{}) (*Payload, error)
		// FromPayload converts a single wire Payload into valuePtr.
		FromPayload(payload *Payload, valuePtr interface{}) error
		// ToPayloads converts a list of values into wire Payloads.
		ToPayloads(value ...interface{}) (*Payloads, error)
		// FromPayloads converts wire Payloads into a list of value pointers.
		FromPayloads(payloads *Payloads, valuePtrs ...interface{}) error
		// ToString renders a single Payload as a human-readable string, used
		// for diagnostics (stack-trace queries, CLI describe output).
		ToString(input *Payload) string
		// ToStrings renders every payload via ToString.
		ToStrings(input *Payloads) []string
	}

	// ContextAware is an optional DataConverter extension: a converter that
	// specializes itself from a call-scoped value (e.g. a tenant key used to
	// select an encryption key).
	ContextAware interface {
		WithValue(v interface{}) DataConverter
	}

	// PayloadConverter converts a single Go value to/from a wire Payload. The
	// data conversion pipeline tries a fixed, ordered chain of these; the
	// first whose ToPayload returns a non-nil Payload wins.
	PayloadConverter interface {
		// ToPayload converts a single value to a payload, or returns (nil, nil)
		// if this converter doesn't apply to the value's type.
		ToPayload(value interface{}) (*Payload, error)
		// FromPayload converts a single payload back into valuePtr.
		FromPayload(payload *Payload, valuePtr interface{}) error
		// ToString renders the payload as a human-readable string.
		ToString(payload *Payload) string
		// Encoding returns the MetadataEncoding* value this converter claims.
		Encoding() string
	}
)

// WithValue specializes dc for a call-scoped value when it is ContextAware;
// other converters are returned unchanged.
func WithValue(dc DataConverter, v interface{}) DataConverter {
	if ca, ok := dc.(ContextAware); ok {
		return ca.WithValue(v)
	}
	return dc
}

func newPayload(data []byte, c PayloadConverter) *Payload {
	return &Payload{
		Metadata: map[string][]byte{
			MetadataEncoding: []byte(c.Encoding()),
		},
		Data: data,
	}
}

func newPayloadWithName(data []byte, c PayloadConverter, name string) *Payload {
	p := newPayload(data, c)
	p.Metadata[MetadataName] = []byte(name)
	return p
}
