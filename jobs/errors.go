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

package jobs

import (
	"fmt"
)

// indicates that an enabled stage is missing something it needs
type PrerequisiteError struct {
	Stage, Message string
}

func (e PrerequisiteError) Error() string {
	return fmt.Sprintf("Can't run stage %s: %s", e.Stage, e.Message)
}

// indicates that the raw image directory holds no images to transcode
type NoImagesError struct {
	Dir string
}

func (e NoImagesError) Error() string {
	return fmt.Sprintf("No images to transcode were found in %s", e.Dir)
}

// indicates that a stage failed, carrying the underlying error
type StageError struct {
	Stage string
	Err   error
}

func (e StageError) Error() string {
	return fmt.Sprintf("Stage %s failed: %s", e.Stage, e.Err.Error())
}

func (e StageError) Unwrap() error {
	return e.Err
}
