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

import "context"

// PayloadCodec is the outer, asynchronous, non-deterministic layer of the
// conversion pipeline: compression, encryption, or any other transform that
// must not run inside the workflow-deterministic context. It is applied
// only at the bridge boundary (values entering/leaving the worker process)
// and when traversing a Failure's encoded attributes and details.
type PayloadCodec interface {
	// Encode transforms payloads for transmission (e.g. compress then
	// encrypt). Implementations must preserve slice length and order.
	Encode(ctx context.Context, payloads []*Payload) ([]*Payload, error)
	// Decode reverses Encode.
	Decode(ctx context.Context, payloads []*Payload) ([]*Payload, error)
}

// CodecDataConverter wraps a DataConverter with a chain of PayloadCodecs
// applied outside the deterministic converter: ToPayloads runs the inner
// converter, then encodes the result through every codec in order; decode
// reverses the codec chain before running the inner converter.
type CodecDataConverter struct {
	inner  DataConverter
	codecs []PayloadCodec
}

// NewCodecDataConverter wraps inner with codecs, applied in order on encode
// and reverse order on decode.
func NewCodecDataConverter(inner DataConverter, codecs ...PayloadCodec) *CodecDataConverter {
	return &CodecDataConverter{inner: inner, codecs: codecs}
}

// ToPayloads implements DataConverter.
func (dc *CodecDataConverter) ToPayloads(values ...interface{}) (*Payloads, error) {
	payloads, err := dc.inner.ToPayloads(values...)
	if err != nil {
		return nil, err
	}
	return dc.encode(context.Background(), payloads)
}

// FromPayloads implements DataConverter.
func (dc *CodecDataConverter) FromPayloads(payloads *Payloads, valuePtrs ...interface{}) error {
	decoded, err := dc.decode(context.Background(), payloads)
	if err != nil {
		return err
	}
	return dc.inner.FromPayloads(decoded, valuePtrs...)
}

// ToPayload implements DataConverter.
func (dc *CodecDataConverter) ToPayload(value interface{}) (*Payload, error) {
	payload, err := dc.inner.ToPayload(value)
	if err != nil || payload == nil {
		return payload, err
	}
	encoded, err := dc.encode(context.Background(), &Payloads{Payloads: []*Payload{payload}})
	if err != nil {
		return nil, err
	}
	return encoded.GetPayloads()[0], nil
}

// FromPayload implements DataConverter.
func (dc *CodecDataConverter) FromPayload(payload *Payload, valuePtr interface{}) error {
	decoded, err := dc.decode(context.Background(), &Payloads{Payloads: []*Payload{payload}})
	if err != nil {
		return err
	}
	return dc.inner.FromPayload(decoded.GetPayloads()[0], valuePtr)
}

// ToString implements DataConverter. The payload is assumed already decoded
// (diagnostics never see codec-wrapped bytes).
func (dc *CodecDataConverter) ToString(input *Payload) string {
	return dc.inner.ToString(input)
}

// ToStrings implements DataConverter.
func (dc *CodecDataConverter) ToStrings(input *Payloads) []string {
	var result []string
	for _, payload := range input.GetPayloads() {
		result = append(result, dc.ToString(payload))
	}
	return result
}

// EncodePayloads runs values through every codec in order; used both by
// ToPayloads and directly by callers encoding a Failure's nested payloads
// (details, lastHeartbeatDetails, encodedAttributes).
func (dc *CodecDataConverter) EncodePayloads(ctx context.Context, payloads *Payloads) (*Payloads, error) {
	return dc.encode(ctx, payloads)
}

// DecodePayloads reverses EncodePayloads.
func (dc *CodecDataConverter) DecodePayloads(ctx context.Context, payloads *Payloads) (*Payloads, error) {
	return dc.decode(ctx, payloads)
}

func (dc *CodecDataConverter) encode(ctx context.Context, payloads *Payloads) (*Payloads, error) {
	if payloads == nil || len(dc.codecs) == 0 {
		return payloads, nil
	}
	items := payloads.GetPayloads()
	for _, codec := range dc.codecs {
		var err error
		items, err = codec.Encode(ctx, items)
		if err != nil {
			return nil, err
		}
	}
	return &Payloads{Payloads: items}, nil
}

func (dc *CodecDataConverter) decode(ctx context.Context, payloads *Payloads) (*Payloads, error) {
	if payloads == nil || len(dc.codecs) == 0 {
		return payloads, nil
	}
	items := payloads.GetPayloads()
	for i := len(dc.codecs) - 1; i >= 0; i-- {
		var err error
		items, err = dc.codecs[i].Decode(ctx, items)
		if err != nil {
			return nil, err
		}
	}
	return &Payloads{Payloads: items}, nil
}
