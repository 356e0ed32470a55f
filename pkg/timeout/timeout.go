// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package timeout bounds how long a caller waits for an operation.
//
// Do only unblocks the waiting caller: the operation keeps running in its
// own goroutine until it returns. DoWithAbort additionally hands the
// operation a context that is cancelled when the deadline passes or when the
// caller's context is cancelled, so cooperative operations can unwind.
//
//	out, err := timeout.DoWithAbort(runCtx, 2*time.Minute, func(ctx context.Context) (string, error) {
//	    return agent.Run(ctx, input)
//	}, "research agent timed out")
//
// Every call produces exactly one outcome: the operation's result, the
// operation's own error, a *errors.TimeoutError, or a *errors.CancelledError.
package timeout

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/uptimizeai/zenthia/pkg/errors"
)

type result[T any] struct {
	value T
	err   error
}

// Do runs op and waits at most d for it to return. If d elapses first, Do
// returns a *errors.TimeoutError whose Duration is d and whose message is
// message (or a default text when message is empty). op is not interrupted.
func Do[T any](d time.Duration, op func() (T, error), message string) (T, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	done := make(chan result[T], 1)
	go func() {
		done <- call(op)
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-timer.C:
		var zero T
		return zero, &errors.TimeoutError{Duration: d, Message: message}
	}
}

// DoWithAbort runs op with a context derived from parent and waits at most d
// for it to return.
//
// Cancelling parent cancels op's context; cancelling op's context never
// touches parent. When d elapses, op's context is cancelled with the
// *errors.TimeoutError as cause before that error is returned. When op fails
// because it observed cancellation, the failure is reported as a
// *errors.CancelledError instead of the raw context error.
func DoWithAbort[T any](parent context.Context, d time.Duration, op func(ctx context.Context) (T, error), message string) (T, error) {
	if parent == nil {
		parent = context.Background()
	}

	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)

	timer := time.NewTimer(d)
	defer timer.Stop()

	done := make(chan result[T], 1)
	go func() {
		done <- call(func() (T, error) { return op(ctx) })
	}()

	select {
	case res := <-done:
		if res.err != nil && observedCancellation(ctx, res.err) {
			var zero T
			cause := context.Cause(ctx)
			if cause == nil {
				cause = res.err
			}
			return zero, &errors.CancelledError{Cause: cause}
		}
		return res.value, res.err
	case <-timer.C:
		var zero T
		timeoutErr := &errors.TimeoutError{Duration: d, Message: message}
		cancel(timeoutErr)
		return zero, timeoutErr
	}
}

// observedCancellation reports whether err came from op noticing that its
// context was cancelled.
func observedCancellation(ctx context.Context, err error) bool {
	if stderrors.Is(err, context.Canceled) {
		return true
	}
	if ctx.Err() == nil {
		return false
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	cause := context.Cause(ctx)
	return cause != nil && stderrors.Is(err, cause)
}

// call invokes fn and converts a panic into an error so a misbehaving
// operation cannot take the process down from a background goroutine.
func call[T any](fn func() (T, error)) (res result[T]) {
	defer func() {
		if r := recover(); r != nil {
			res = result[T]{err: fmt.Errorf("operation panicked: %v", r)}
		}
	}()
	v, err := fn()
	return result[T]{value: v, err: err}
}
