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
	"fmt"
	"reflect"

	gogoproto "github.com/gogo/protobuf/proto"
	"google.golang.org/protobuf/proto"

	"go.flowbridge.dev/sdk/internal/common/util"
)

// ProtoPayloadConverter converts proto objects to/from the protobuf binary
// wire format. Sibling of ProtoJSONPayloadConverter; same dual
// golang-protobuf/gogo-protobuf handling, see that file's comment for why.
type ProtoPayloadConverter struct{}

// NewProtoPayloadConverter creates a new ProtoPayloadConverter.
func NewProtoPayloadConverter() *ProtoPayloadConverter {
	return &ProtoPayloadConverter{}
}

// ToPayload converts a single proto value to a payload using binary
// encoding, or returns (nil, nil) if value implements neither proto.Message
// nor gogoproto.Message.
func (c *ProtoPayloadConverter) ToPayload(value interface{}) (*Payload, error) {
	if valueProto, ok := value.(proto.Message); ok {
		byteSlice, err := proto.Marshal(valueProto)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnableToEncode, err)
		}
		return newPayloadWithName(byteSlice, c, string(valueProto.ProtoReflect().Descriptor().FullName())), nil
	}

	if valueGogoProto, ok := value.(gogoproto.Message); ok {
		byteSlice, err := gogoproto.Marshal(valueGogoProto)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnableToEncode, err)
		}
		return newPayloadWithName(byteSlice, c, gogoproto.MessageName(valueGogoProto)), nil
	}

	return nil, nil
}

// FromPayload converts a single proto value from a payload.
func (c *ProtoPayloadConverter) FromPayload(payload *Payload, valuePtr interface{}) error {
	value := reflect.ValueOf(valuePtr).Elem()
	if !value.CanSet() {
		return fmt.Errorf("type: %T: %w", valuePtr, ErrUnableToSetValue)
	}
	if value.Kind() != reflect.Ptr {
		return ErrValueIsNotPointer
	}

	protoValue := value.Interface()
	gogoProtoMessage, isGogoProtoMessage := protoValue.(gogoproto.Message)
	protoMessage, isProtoMessage := protoValue.(proto.Message)
	if !isGogoProtoMessage && !isProtoMessage {
		return fmt.Errorf("value: %v of type: %T: %w", value, value, ErrValueDoesntImplementProtoMessage)
	}

	if util.IsInterfaceNil(protoValue) {
		protoType := value.Type().Elem()
		newProtoValue := reflect.New(protoType)
		if isProtoMessage {
			protoMessage = newProtoValue.Interface().(proto.Message)
		} else if isGogoProtoMessage {
			gogoProtoMessage = newProtoValue.Interface().(gogoproto.Message)
		}
		value.Set(newProtoValue)
	}

	var err error
	if isProtoMessage {
		err = proto.Unmarshal(payload.GetData(), protoMessage)
	} else if isGogoProtoMessage {
		err = gogoproto.Unmarshal(payload.GetData(), gogoProtoMessage)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnableToDecode, err)
	}
	return nil
}

// ToString converts a payload into a human-readable string. Binary proto
// can't be rendered better than its byte length.
func (c *ProtoPayloadConverter) ToString(payload *Payload) string {
	return fmt.Sprintf("%d bytes of proto", len(payload.GetData()))
}

// Encoding returns MetadataEncodingProto.
func (c *ProtoPayloadConverter) Encoding() string {
	return MetadataEncodingProto
}
