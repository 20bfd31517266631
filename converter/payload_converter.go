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

import (
	"encoding/json"
	"fmt"
	"reflect"


	"go.flowbridge.dev/sdk/internal/common/util"
)

type (
	// NilPayloadConverter handles nil/untyped-nil values. It claims
	// MetadataEncodingNil and must run before any converter that would
	// otherwise choke on a nil interface.
	NilPayloadConverter struct{}

	// ByteSlicePayloadConverter passes []byte through unchanged.
	ByteSlicePayloadConverter struct{}

	// JSONPayloadConverter is the fallback converter: anything that reaches
	// it is marshaled with encoding/json.
	JSONPayloadConverter struct{}

	// CompositeDataConverter is a DataConverter built from an ordered chain of
	// PayloadConverters. The first converter in the chain whose ToPayload
	// returns a non-nil payload wins; FromPayload dispatches purely on the
	// payload's encoding metadata, independent of chain order.
	CompositeDataConverter struct {
		converters    []PayloadConverter
		byEncoding    map[string]PayloadConverter
	}
)

var (
	_ PayloadConverter = (*NilPayloadConverter)(nil)
	_ PayloadConverter = (*ByteSlicePayloadConverter)(nil)
	_ PayloadConverter = (*JSONPayloadConverter)(nil)
)

// NewNilPayloadConverter creates a new NilPayloadConverter.
func NewNilPayloadConverter() *NilPayloadConverter {
	return &NilPayloadConverter{}
}

// ToPayload converts a nil value to a payload, or returns (nil, nil) for
// anything else.
func (c *NilPayloadConverter) ToPayload(value interface{}) (*Payload, error) {
	if !util.IsInterfaceNil(value) {
		return nil, nil
	}
	return newPayload([]byte{}, c), nil
}

// FromPayload does nothing: a nil payload has nothing to assign.
func (c *NilPayloadConverter) FromPayload(payload *Payload, valuePtr interface{}) error {
	return nil
}

// ToString returns "nil".
func (c *NilPayloadConverter) ToString(payload *Payload) string {
	return "nil"
}

// Encoding returns MetadataEncodingNil.
func (c *NilPayloadConverter) Encoding() string {
	return MetadataEncodingNil
}

// NewByteSlicePayloadConverter creates a new ByteSlicePayloadConverter.
func NewByteSlicePayloadConverter() *ByteSlicePayloadConverter {
	return &ByteSlicePayloadConverter{}
}

// ToPayload converts a []byte value to a payload, or returns (nil, nil) for
// anything else.
func (c *ByteSlicePayloadConverter) ToPayload(value interface{}) (*Payload, error) {
	if bytes, ok := value.([]byte); ok {
		return newPayload(bytes, c), nil
	}
	return nil, nil
}

// FromPayload converts a payload to a *[]byte value pointer.
func (c *ByteSlicePayloadConverter) FromPayload(payload *Payload, valuePtr interface{}) error {
	value := reflect.ValueOf(valuePtr).Elem()
	if !value.CanSet() {
		return fmt.Errorf("type: %T: %w", valuePtr, ErrUnableToSetValue)
	}
	value.SetBytes(payload.GetData())
	return nil
}

// ToString renders the payload data as a string.
func (c *ByteSlicePayloadConverter) ToString(payload *Payload) string {
	return string(payload.GetData())
}

// Encoding returns MetadataEncodingBinary.
func (c *ByteSlicePayloadConverter) Encoding() string {
	return MetadataEncodingBinary
}

// NewJSONPayloadConverter creates a new JSONPayloadConverter.
func NewJSONPayloadConverter() *JSONPayloadConverter {
	return &JSONPayloadConverter{}
}

// ToPayload converts any value to a JSON payload. It is the chain's catch-all
// and never returns (nil, nil).
func (c *JSONPayloadConverter) ToPayload(value interface{}) (*Payload, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnableToEncode, err)
	}
	return newPayload(data, c), nil
}

// FromPayload unmarshals a JSON payload into valuePtr.
func (c *JSONPayloadConverter) FromPayload(payload *Payload, valuePtr interface{}) error {
	if err := json.Unmarshal(payload.GetData(), valuePtr); err != nil {
		return fmt.Errorf("%w: %v", ErrUnableToDecode, err)
	}
	return nil
}

// ToString renders the payload data as-is (it is already JSON text).
func (c *JSONPayloadConverter) ToString(payload *Payload) string {
	return string(payload.GetData())
}

// Encoding returns MetadataEncodingJSON.
func (c *JSONPayloadConverter) Encoding() string {
	return MetadataEncodingJSON
}

// NewCompositeDataConverter creates a DataConverter from an ordered chain of
// PayloadConverters. Encode order matters (first match wins); decode
// dispatches on the payload's own encoding tag.
func NewCompositeDataConverter(converters ...PayloadConverter) *CompositeDataConverter {
	byEncoding := make(map[string]PayloadConverter, len(converters))
	for _, c := range converters {
		byEncoding[c.Encoding()] = c
	}
	return &CompositeDataConverter{converters: converters, byEncoding: byEncoding}
}

// ToPayloads converts values into wire Payloads by running each through the
// chain in order.
func (dc *CompositeDataConverter) ToPayloads(values ...interface{}) (*Payloads, error) {
	if len(values) == 0 {
		return nil, nil
	}

	result := &Payloads{}
	for i, value := range values {
		payload, err := dc.toPayload(value)
		if err != nil {
			return nil, fmt.Errorf("values[%d]: %w", i, err)
		}
		result.Payloads = append(result.Payloads, payload)
	}
	return result, nil
}

// ToPayload converts a single value by running it through the chain in
// order; the first converter to claim it wins.
func (dc *CompositeDataConverter) ToPayload(value interface{}) (*Payload, error) {
	return dc.toPayload(value)
}

func (dc *CompositeDataConverter) toPayload(value interface{}) (*Payload, error) {
	for _, conv := range dc.converters {
		payload, err := conv.ToPayload(value)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			return payload, nil
		}
	}
	return nil, fmt.Errorf("value %v of type %T: %w", value, value, ErrUnableToEncode)
}

// FromPayload converts a single payload, dispatching on its encoding
// metadata.
func (dc *CompositeDataConverter) FromPayload(payload *Payload, valuePtr interface{}) error {
	return dc.fromPayload(payload, valuePtr)
}

// ToStrings renders every payload via ToString.
func (dc *CompositeDataConverter) ToStrings(input *Payloads) []string {
	var result []string
	for _, payload := range input.GetPayloads() {
		result = append(result, dc.ToString(payload))
	}
	return result
}

// FromPayloads converts wire Payloads into valuePtrs, dispatching each by its
// own encoding metadata.
func (dc *CompositeDataConverter) FromPayloads(payloads *Payloads, valuePtrs ...interface{}) error {
	if payloads == nil {
		return nil
	}

	for i, payload := range payloads.GetPayloads() {
		if i >= len(valuePtrs) {
			break
		}
		if err := dc.fromPayload(payload, valuePtrs[i]); err != nil {
			return fmt.Errorf("payload item %d: %w", i, err)
		}
	}
	return nil
}

func (dc *CompositeDataConverter) fromPayload(payload *Payload, valuePtr interface{}) error {
	metadata := payload.GetMetadata()
	if metadata == nil {
		return ErrMetadataIsNotSet
	}
	encoding, ok := metadata[MetadataEncoding]
	if !ok {
		return ErrEncodingIsNotSet
	}
	conv, ok := dc.byEncoding[string(encoding)]
	if !ok {
		return fmt.Errorf("encoding %s: %w", encoding, ErrEncodingIsNotSupported)
	}
	return conv.FromPayload(payload, valuePtr)
}

// ToString renders a single payload using whichever converter claims its
// encoding, or a raw fallback if none does.
func (dc *CompositeDataConverter) ToString(payload *Payload) string {
	metadata := payload.GetMetadata()
	if metadata == nil {
		return "[invalid payload: no metadata]"
	}
	encoding, ok := metadata[MetadataEncoding]
	if !ok {
		return "[invalid payload: no encoding]"
	}
	conv, ok := dc.byEncoding[string(encoding)]
	if !ok {
		return fmt.Sprintf("[invalid payload: unknown encoding %s]", encoding)
	}
	return conv.ToString(payload)
}

// DefaultDataConverter is the composite chain used when no custom
// DataConverter is supplied: nil, []byte, proto-JSON, proto-binary, then
// plain JSON as the catch-all. Encode order is the chain's priority;
// decode dispatches on each payload's own encoding tag.
var DefaultDataConverter = NewCompositeDataConverter(
	NewNilPayloadConverter(),
	NewByteSlicePayloadConverter(),
	NewProtoJSONPayloadConverter(),
	NewProtoPayloadConverter(),
	NewJSONPayloadConverter(),
)

// defaultDataConverter is the package-internal alias tests use.
var defaultDataConverter DataConverter = DefaultDataConverter
