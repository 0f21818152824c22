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

// This package describes chunk shapes for transcoded arrays. All shapes are
// handled in 5D TCZYX order; shorter shapes are padded with leading 1s.
package chunks

// Pads the given shape with leading 1s to five dimensions.
func EnsureShape5D(shape []int) ([]int, error) {
	if len(shape) > 5 {
		return nil, &DimensionError{Shape: shape}
	}
	padded := make([]int, 5)
	offset := 5 - len(shape)
	for i := range padded {
		if i < offset {
			padded[i] = 1
		} else {
			padded[i] = shape[i-offset]
		}
	}
	return padded, nil
}

// Returns the size in bytes of a chunk with the given shape.
func Bytes(chunks []int, itemSize int) int64 {
	size := int64(itemSize)
	for _, n := range chunks {
		size *= int64(n)
	}
	return size
}
