/*
Copyright © 2022-2025 SUSE LLC
SPDX-License-Identifier: Apache-2.0

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package cleanstack provides a LIFO stack of cleanup callbacks, used by the
// staging protocol to unwind bind-mounts and staged
// subvolumes on every exit path, success or error alike.
package cleanstack

import "errors"

type runMode int

const (
	always runMode = iota
	successOnly
	errorOnly
)

type job struct {
	callback func() error
	mode     runMode
}

// Job is a single callback popped off the stack, ready to run independently
// of Cleanup.
type Job struct {
	callback func() error
}

// Run executes the job's callback. Running a nil Job is a no-op.
func (j *Job) Run() error {
	if j == nil || j.callback == nil {
		return nil
	}
	return j.callback()
}

// CleanStack accumulates cleanup callbacks and runs them in reverse push
// order on Cleanup.
type CleanStack struct {
	stack []job
}

// NewCleanStack returns an empty stack.
func NewCleanStack() *CleanStack {
	return &CleanStack{}
}

// Push adds a callback that always runs on Cleanup.
func (c *CleanStack) Push(callback func() error) {
	c.stack = append(c.stack, job{callback: callback, mode: always})
}

// PushErrorOnly adds a callback that only runs on Cleanup if an error has
// been observed so far (the former error, or one raised by a job already
// unwound in this same Cleanup call).
func (c *CleanStack) PushErrorOnly(callback func() error) {
	c.stack = append(c.stack, job{callback: callback, mode: errorOnly})
}

// PushSuccessOnly adds a callback that only runs on Cleanup if no error has
// been observed so far.
func (c *CleanStack) PushSuccessOnly(callback func() error) {
	c.stack = append(c.stack, job{callback: callback, mode: successOnly})
}

// Pop removes and returns the most recently pushed job, or nil if the stack
// is empty. Unlike Cleanup, Pop does not run the callback.
func (c *CleanStack) Pop() *Job {
	if len(c.stack) == 0 {
		return nil
	}
	last := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
	return &Job{callback: last.callback}
}

// Cleanup runs every remaining job in reverse (LIFO) push order. formerErr,
// if non-nil, seeds the error state seen by errorOnly/successOnly gating and
// is joined into the returned error. Every job in the stack runs regardless
// of whether earlier jobs in this call returned an error; all errors
// encountered are joined together and returned.
func (c *CleanStack) Cleanup(formerErr error) error {
	err := formerErr
	hasError := formerErr != nil

	for len(c.stack) > 0 {
		j := c.stack[len(c.stack)-1]
		c.stack = c.stack[:len(c.stack)-1]

		switch j.mode {
		case errorOnly:
			if !hasError {
				continue
			}
		case successOnly:
			if hasError {
				continue
			}
		}

		if cbErr := j.callback(); cbErr != nil {
			hasError = true
			err = errors.Join(err, cbErr)
		}
	}

	return err
}
