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

package config

import (
	"fmt"
)

// indicates that a job configuration document could not be parsed
type ParseError struct {
	Message string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("Invalid job configuration: %s", e.Message)
}

// indicates that a configuration field holds a value that breaks a rule
type InvalidFieldError struct {
	Field string // dotted YAML path of the field, e.g. transcode_job.chunk_size
	Rule  string // the violated rule (e.g. "gt", "email")
	Value any
}

func (e InvalidFieldError) Error() string {
	return fmt.Sprintf("Invalid value for %s: %v (fails rule '%s')", e.Field, e.Value, e.Rule)
}

// indicates a voxel size string that isn't 1-3 comma-separated positive numbers
type VoxelSizeError struct {
	Voxsize string
}

func (e VoxelSizeError) Error() string {
	return fmt.Sprintf("Invalid voxel size '%s' (expected \"x,y,z\")", e.Voxsize)
}
