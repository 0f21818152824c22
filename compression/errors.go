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

package compression

import (
	"fmt"
)

// indicates that a compressor names a codec Blosc doesn't provide
type UnsupportedCodecError struct {
	Codec string
}

func (e UnsupportedCodecError) Error() string {
	return fmt.Sprintf("Unsupported Blosc codec: %s", e.Codec)
}

// indicates that a compressor keyword argument has an unusable value
type InvalidKwargError struct {
	Name  string
	Value any
}

func (e InvalidKwargError) Error() string {
	return fmt.Sprintf("Invalid compressor argument %s: %v", e.Name, e.Value)
}

// indicates a zip compression level outside 1-9
type InvalidLevelError struct {
	Level int
}

func (e InvalidLevelError) Error() string {
	return fmt.Sprintf("Invalid compression level: %d (must be 1-9)", e.Level)
}
