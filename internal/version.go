// Copyright (c) 2017 Uber Technologies, Inc.
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

// Below are the version metadata of this client library. No code in this
// module attaches them to RPC headers or worker polls.

// Update to the metadata below is typically done as part of a major feature
// or behavior change.

// SDKVersion is a semver that represents the version of this client
// library. This represents API changes visible to consumers, i.e.
// developers that are writing workflows, so every API change that can
// affect them has to change this number.
// Format: MAJOR.MINOR.PATCH
const SDKVersion = "0.20.0"

// SDKFeatureVersion is a semver that represents the feature set of this
// client library. The server uses it for client capability checks and
// backward compatibility.
// Format: MAJOR.MINOR.PATCH
const SDKFeatureVersion = "0.20.0"

// SDKName is the name of this client library.
const SDKName = "flowbridge-go"
