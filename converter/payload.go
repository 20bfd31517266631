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

// Payload is the wire unit of data exchanged with the server: an opaque
// byte string tagged with metadata. The "encoding" metadata key names the
// PayloadConverter that produced it; a Payload with no encoding key is
// invalid and must be rejected by every decoder.
type Payload struct {
	Metadata map[string][]byte
	Data     []byte
}

// GetData returns p.Data, tolerating a nil Payload.
func (p *Payload) GetData() []byte {
	if p == nil {
		return nil
	}
	return p.Data
}

// GetMetadata returns p.Metadata, tolerating a nil Payload.
func (p *Payload) GetMetadata() map[string][]byte {
	if p == nil {
		return nil
	}
	return p.Metadata
}

// Payloads is an ordered list of Payload, the unit exchanged for a function
// call's full argument or return list.
type Payloads struct {
	Payloads []*Payload
}

// GetPayloads returns ps.Payloads, tolerating a nil Payloads.
func (ps *Payloads) GetPayloads() []*Payload {
	if ps == nil {
		return nil
	}
	return ps.Payloads
}

// Size returns the number of payloads, tolerating a nil Payloads.
func (ps *Payloads) Size() int {
	if ps == nil {
		return 0
	}
	return len(ps.Payloads)
}
