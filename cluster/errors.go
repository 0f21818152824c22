// Copyright (c) 2023 The KBase Project and its Contributors
// Copyright (c) 2023 Cohere Consulting, LLC
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package cluster

import (
	"fmt"
)

// indicates a submission without a command to run
type EmptyCommandError struct{}

func (e EmptyCommandError) Error() string {
	return "The submitted job has no command."
}

// indicates a submission without somewhere to put its run directory
type NoRunDirectoryError struct{}

func (e NoRunDirectoryError) Error() string {
	return "No run_parent_dir was given in submit_args."
}

// indicates that the scheduler rejected a job, or that a waited-on job failed
type SubmissionError struct {
	Script string
	Output string
	Err    error
}

func (e SubmissionError) Error() string {
	return fmt.Sprintf("Submission of %s failed: %s (%s)", e.Script, e.Err.Error(), e.Output)
}

func (e SubmissionError) Unwrap() error {
	return e.Err
}
