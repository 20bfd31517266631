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
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_CompositeChainPriority(t *testing.T) {
	t.Parallel()
	dc := DefaultDataConverter

	t.Run("nil wins first", func(t *testing.T) {
		payload, err := dc.ToPayload(nil)
		require.NoError(t, err)
		require.Equal(t, MetadataEncodingNil, string(payload.Metadata[MetadataEncoding]))
		require.Empty(t, payload.Data)
	})
	t.Run("bytes pass through", func(t *testing.T) {
		payload, err := dc.ToPayload([]byte{1, 2, 3})
		require.NoError(t, err)
		require.Equal(t, MetadataEncodingBinary, string(payload.Metadata[MetadataEncoding]))
		require.Equal(t, []byte{1, 2, 3}, payload.Data)
	})
	t.Run("proto json before plain json", func(t *testing.T) {
		payload, err := dc.ToPayload(&GoogleGenerated{Name: "qol", BirthDay: 1})
		require.NoError(t, err)
		require.Equal(t, MetadataEncodingProtoJSON, string(payload.Metadata[MetadataEncoding]))
	})
	t.Run("json catch-all", func(t *testing.T) {
		payload, err := dc.ToPayload(map[string]int{"a": 1})
		require.NoError(t, err)
		require.Equal(t, MetadataEncodingJSON, string(payload.Metadata[MetadataEncoding]))
	})
}

func Test_RoundTrip(t *testing.T) {
	t.Parallel()
	dc := DefaultDataConverter

	payloads, err := dc.ToPayloads("a string", 42, []byte{9}, nil)
	require.NoError(t, err)
	require.Equal(t, 4, payloads.Size())

	var s string
	var i int
	var b []byte
	var n interface{}
	require.NoError(t, dc.FromPayloads(payloads, &s, &i, &b, &n))
	require.Equal(t, "a string", s)
	require.Equal(t, 42, i)
	require.Equal(t, []byte{9}, b)
	require.Nil(t, n)
}

func Test_ProtoJSONRoundTrip(t *testing.T) {
	t.Parallel()
	dc := DefaultDataConverter

	original := &GoogleGenerated{Name: "kate", BirthDay: 1712, Phone: "555-1212"}
	payload, err := dc.ToPayload(original)
	require.NoError(t, err)
	require.NotEmpty(t, payload.Metadata[MetadataName], "proto payloads record their message type name")

	decoded := &GoogleGenerated{}
	require.NoError(t, dc.FromPayload(payload, &decoded))
	require.Equal(t, "kate", decoded.Name)
	require.Equal(t, int64(1712), decoded.BirthDay)
}

func Test_EncodeIsDeterministic(t *testing.T) {
	t.Parallel()
	dc := DefaultDataConverter

	first, err := dc.ToPayloads("x", 1, []byte{5})
	require.NoError(t, err)
	second, err := dc.ToPayloads("x", 1, []byte{5})
	require.NoError(t, err)
	require.Equal(t, first, second, "same input always yields the same payloads")
}

func Test_MissingEncodingRejected(t *testing.T) {
	t.Parallel()
	dc := DefaultDataConverter

	var out string
	err := dc.FromPayload(&Payload{Data: []byte(`"x"`)}, &out)
	require.ErrorIs(t, err, ErrMetadataIsNotSet)

	err = dc.FromPayload(&Payload{Metadata: map[string][]byte{"other": nil}, Data: []byte(`"x"`)}, &out)
	require.ErrorIs(t, err, ErrEncodingIsNotSet)

	err = dc.FromPayload(&Payload{Metadata: map[string][]byte{MetadataEncoding: []byte("mystery/format")}}, &out)
	require.ErrorIs(t, err, ErrEncodingIsNotSupported)
}

// reversingCodec is a trivial codec that reverses payload bytes, enough to
// prove the codec layer is applied outside the deterministic converter and
// reversed on decode.
type reversingCodec struct{}

func (reversingCodec) Encode(ctx context.Context, payloads []*Payload) ([]*Payload, error) {
	result := make([]*Payload, len(payloads))
	for i, p := range payloads {
		reversed := make([]byte, len(p.Data))
		for j, b := range p.Data {
			reversed[len(p.Data)-1-j] = b
		}
		result[i] = &Payload{Metadata: p.Metadata, Data: reversed}
	}
	return result, nil
}

func (c reversingCodec) Decode(ctx context.Context, payloads []*Payload) ([]*Payload, error) {
	return c.Encode(ctx, payloads)
}

func Test_CodecDataConverter(t *testing.T) {
	t.Parallel()
	dc := NewCodecDataConverter(DefaultDataConverter, reversingCodec{})

	payloads, err := dc.ToPayloads("hello")
	require.NoError(t, err)
	inner, err := DefaultDataConverter.ToPayloads("hello")
	require.NoError(t, err)
	require.NotEqual(t, inner.GetPayloads()[0].Data, payloads.GetPayloads()[0].Data,
		"codec transformed the wire bytes")

	var decoded string
	require.NoError(t, dc.FromPayloads(payloads, &decoded))
	require.Equal(t, "hello", decoded)
}

func Test_FailureConverterTraversesCause(t *testing.T) {
	t.Parallel()
	fc := NewDefaultFailureConverter(true)

	failure := &Failure{
		Message: "outer",
		Cause: &Failure{
			Message: "inner",
			Info:    FailureInfo{Application: &ApplicationFailureInfo{Type: "X"}},
		},
		Info: FailureInfo{Activity: &ActivityFailureInfo{ActivityType: "A"}},
	}
	encoded := fc.EncodeFailure(failure, DefaultDataConverter)
	require.NotEqual(t, "outer", encoded.Message)
	require.NotEqual(t, "inner", encoded.Cause.Message, "cause chain is traversed recursively")
	require.NotNil(t, encoded.Cause.EncodedAttributes)

	decoded := fc.DecodeFailure(encoded, DefaultDataConverter)
	require.Equal(t, "outer", decoded.Message)
	require.Equal(t, "inner", decoded.Cause.Message)
	require.NotNil(t, decoded.Info.Activity)
	require.NotNil(t, decoded.Cause.Info.Application)
}
