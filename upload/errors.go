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

package upload

import (
	"fmt"
)

// indicates a cloud URL that can't be parsed
type InvalidURLError struct {
	URL, Message string
}

func (e InvalidURLError) Error() string {
	return fmt.Sprintf("Invalid cloud URL '%s': %s", e.URL, e.Message)
}

// indicates a cloud provider with no object store
type UnsupportedProviderError struct {
	Provider string
}

func (e UnsupportedProviderError) Error() string {
	return fmt.Sprintf("Unsupported cloud provider: %s", e.Provider)
}

// indicates that a destination bucket can't be reached
type BucketUnavailableError struct {
	Provider, Bucket string
	Err              error
}

func (e BucketUnavailableError) Error() string {
	return fmt.Sprintf("Bucket %s://%s is unavailable: %s", e.Provider, e.Bucket, e.Err.Error())
}

func (e BucketUnavailableError) Unwrap() error {
	return e.Err
}

// indicates a failure to upload a single file
type PutError struct {
	Key, Path string
	Err       error
}

func (e PutError) Error() string {
	return fmt.Sprintf("Uploading %s to %s: %s", e.Path, e.Key, e.Err.Error())
}

func (e PutError) Unwrap() error {
	return e.Err
}
