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

package metrics

import (
	"time"

	"github.com/uber-go/tally"
)

var safeCharacters = []rune{'_'}

var sanitizeOptions = tally.SanitizeOptions{
	NameCharacters:       tally.ValidCharacters{Ranges: tally.AlphanumericRange, Characters: safeCharacters},
	KeyCharacters:        tally.ValidCharacters{Ranges: tally.AlphanumericRange, Characters: safeCharacters},
	ValueCharacters:      tally.ValidCharacters{Ranges: tally.AlphanumericRange, Characters: safeCharacters},
	ReplacementCharacter: tally.DefaultReplacementCharacter,
}

// NewNoopScope returns a tally scope that discards everything, used as the
// default when WorkerOptions/ClientOptions don't configure one.
func NewNoopScope() tally.Scope {
	scope, _ := tally.NewRootScope(tally.ScopeOptions{
		Reporter:        tally.NullStatsReporter,
		SanitizeOptions: &sanitizeOptions,
	}, time.Second)
	return scope
}

// TaggedScope returns scope with the given key/value tag pairs applied, e.g.
// TaggedScope(scope, TagWorkflowType, "MyWorkflow").
func TaggedScope(scope tally.Scope, keyValues ...string) tally.Scope {
	if len(keyValues)%2 != 0 {
		panic("metrics.TaggedScope called with an odd number of key/value arguments")
	}
	tags := make(map[string]string, len(keyValues)/2)
	for i := 0; i < len(keyValues); i += 2 {
		tags[keyValues[i]] = keyValues[i+1]
	}
	return scope.Tagged(tags)
}
