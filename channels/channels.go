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

// This package reads channel information from image file names.
package channels

import (
	"fmt"
	"regexp"
	"strings"
)

// matches the channel wavelengths in file names like tile_X_0002_ch_488_561.tiff
var channelRegexp = regexp.MustCompile(`ch_([0-9_]{3,})\.`)

// Parses the channel wavelengths (e.g. ["488", "561"]) from an image path.
func ParseChannelNames(path string) ([]string, error) {
	match := channelRegexp.FindStringSubmatch(path)
	if match == nil {
		return nil, fmt.Errorf("file name does not match channel pattern: %s", path)
	}
	names := make([]string, 0)
	for _, name := range strings.Split(strings.Trim(match[1], "_"), "_") {
		if name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}
