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

package backoff

import (
	"math/rand"
	"time"

	"github.com/facebookgo/clock"
)

// done is returned by Retrier.NextBackOff to signal the caller should stop
// retrying: either the policy's maximum attempts/elapsed time was reached.
const done time.Duration = -1

// NoInterval can be passed as RetryPolicy.MaximumInterval to mean "no cap";
// the backoff interval grows unbounded (until MaximumAttempts or
// ExpirationInterval stop it).
const NoInterval time.Duration = 0

type (
	// RetryPolicy describes an exponential backoff schedule: each attempt's
	// interval is InitialInterval * BackoffCoefficient^attempt, jittered and
	// capped at MaximumInterval, until MaximumAttempts or ExpirationInterval
	// is reached (zero means unbounded for either).
	RetryPolicy struct {
		InitialInterval    time.Duration
		BackoffCoefficient float64
		MaximumInterval    time.Duration
		ExpirationInterval time.Duration
		MaximumAttempts    int
	}

	// Retrier computes the sequence of backoff intervals for one retry
	// policy, carrying its own attempt counter and start time.
	Retrier interface {
		// NextBackOff returns the interval to wait before the next attempt,
		// or `done` if no more retries should be attempted.
		NextBackOff() time.Duration
		// Reset clears the attempt counter, e.g. after a successful call.
		Reset()
	}

	retrierImpl struct {
		policy    RetryPolicy
		clock     clock.Clock
		startTime time.Time
		attempts  int
	}
)

// SystemClock is the real wall-clock, used everywhere outside of tests.
var SystemClock = clock.New()

// NewRetryPolicy creates a RetryPolicy with the given initial interval; the
// other fields default to 2x backoff, no interval cap, and unbounded
// attempts/elapsed time.
func NewRetryPolicy(initialInterval time.Duration) RetryPolicy {
	return RetryPolicy{
		InitialInterval:    initialInterval,
		BackoffCoefficient: 2.0,
		MaximumInterval:    NoInterval,
	}
}

// NewRetrier creates a Retrier for the given policy, driven by clk (pass
// backoff.SystemClock in production, a facebookgo/clock.Mock in tests).
func NewRetrier(policy RetryPolicy, clk clock.Clock) Retrier {
	return &retrierImpl{policy: policy, clock: clk}
}

func (r *retrierImpl) Reset() {
	r.attempts = 0
	r.startTime = time.Time{}
}

func (r *retrierImpl) NextBackOff() time.Duration {
	if r.startTime.IsZero() {
		r.startTime = r.clock.Now()
	}

	if r.policy.MaximumAttempts > 0 && r.attempts >= r.policy.MaximumAttempts {
		return done
	}

	elapsed := r.clock.Now().Sub(r.startTime)
	if r.policy.ExpirationInterval > 0 && elapsed > r.policy.ExpirationInterval {
		return done
	}

	interval := float64(r.policy.InitialInterval)
	coefficient := r.policy.BackoffCoefficient
	if coefficient <= 0 {
		coefficient = 2.0
	}
	for i := 0; i < r.attempts; i++ {
		interval *= coefficient
	}

	if r.policy.MaximumInterval > 0 && interval > float64(r.policy.MaximumInterval) {
		interval = float64(r.policy.MaximumInterval)
	}

	// +/-20% jitter to avoid thundering-herd retries across many workers.
	jitter := 0.8 + 0.4*rand.Float64()
	next := time.Duration(interval * jitter)

	r.attempts++

	if r.policy.ExpirationInterval > 0 && elapsed+next > r.policy.ExpirationInterval {
		return done
	}

	return next
}
