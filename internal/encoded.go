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


	"go.flowbridge.dev/sdk/converter"
)

// The data conversion pipeline lives in package converter; these are thin
// aliases so the rest of internal can keep referring to
// Value/Values/DataConverter without every file needing to import converter
// directly.
type (
	// Value is an alias of converter.Value.
	Value = converter.Value
	// Values is an alias of converter.Values.
	Values = converter.Values
	// DataConverter is an alias of converter.DataConverter.
	DataConverter = converter.DataConverter
	// Payload is an alias of converter.Payload.
	Payload = converter.Payload
	// Payloads is an alias of converter.Payloads.
	Payloads = converter.Payloads
)

// ErrNoData is returned when trying to extract strong typed data while there is no data available.
var ErrNoData = errors.New("no data available")

// ErrTooManyArg is returned when trying to extract strong typed data with more arguments than available data.
var ErrTooManyArg = errors.New("too many arguments")

// getDefaultDataConverter returns the default data converter used when no
// custom DataConverter is configured on the client or worker.
func getDefaultDataConverter() DataConverter {
	return converter.DefaultDataConverter
}

type (
	// EncodedValues holds a Payloads that has already been fetched from the
	// server/activation but not yet unmarshaled into Go types. Get() performs
	// the decode lazily.
	EncodedValues struct {
		values        *converter.Payloads
		dataConverter DataConverter
	}

	// ErrorDetailsValues is a plain []interface{} implementation of Values,
	// used when constructing an error client-side (e.g. via
	// NewApplicationError) before it is ever serialized.
	ErrorDetailsValues []interface{}
)

// EncodedValue holds a single Payload fetched from the server but not yet
// unmarshaled; Get performs the decode lazily.
type EncodedValue struct {
	value         *converter.Payload
	dataConverter DataConverter
}

func newEncodedValue(value *converter.Payload, dc DataConverter) Value {
	if dc == nil {
		dc = getDefaultDataConverter()
	}
	return &EncodedValue{value: value, dataConverter: dc}
}

// HasValue returns whether there is a value encoded.
func (b *EncodedValue) HasValue() bool {
	return b.value != nil
}

// Get extracts the encoded value into valuePtr.
func (b *EncodedValue) Get(valuePtr interface{}) error {
	if !b.HasValue() {
		return ErrNoData
	}
	return b.dataConverter.FromPayloads(&converter.Payloads{Payloads: []*converter.Payload{b.value}}, valuePtr)
}

func newEncodedValues(values *converter.Payloads, dc DataConverter) Values {
	if dc == nil {
		dc = getDefaultDataConverter()
	}
	return &EncodedValues{values: values, dataConverter: dc}
}

// HasValues returns whether there are values encoded.
func (b *EncodedValues) HasValues() bool {
	return b.values != nil && len(b.values.GetPayloads()) > 0
}

// Get extracts the encoded values into valuePtrs.
func (b *EncodedValues) Get(valuePtrs ...interface{}) error {
	if !b.HasValues() {
		return ErrNoData
	}
	if len(valuePtrs) > len(b.values.GetPayloads()) {
		return ErrTooManyArg
	}
	return b.dataConverter.FromPayloads(b.values, valuePtrs...)
}

// HasValues returns true if there is at least one value.
func (b ErrorDetailsValues) HasValues() bool {
	return len(b) > 0
}

// Get copies values into valuePtrs directly (no decoding: these were never
// serialized).
func (b ErrorDetailsValues) Get(valuePtrs ...interface{}) error {
	if !b.HasValues() {
		return ErrNoData
	}
	if len(valuePtrs) > len(b) {
		return ErrTooManyArg
	}
	for i, valuePtr := range valuePtrs {
		if err := assignValue(b[i], valuePtr); err != nil {
			return err
		}
	}
	return nil
}

func assignValue(src interface{}, dst interface{}) error {
	switch d := dst.(type) {
	case *interface{}:
		*d = src
		return nil
	default:
		// best-effort: callers extracting ErrorDetailsValues into typed
		// pointers are expected to pass matching types, mirroring the
		// original in-process call that produced them.
		return encodeInto(src, dst)
	}
}

func encodeInto(src interface{}, dst interface{}) error {
	switch s := src.(type) {
	case string:
		if p, ok := dst.(*string); ok {
			*p = s
			return nil
		}
	case []byte:
		if p, ok := dst.(*[]byte); ok {
			*p = s
			return nil
		}
	case error:
		if p, ok := dst.(*error); ok {
			*p = s
			return nil
		}
	}
	return nil
}

func encodeArgs(dc DataConverter, args []interface{}) (*converter.Payloads, error) {
	if dc == nil {
		dc = getDefaultDataConverter()
	}
	return dc.ToPayloads(args...)
}
