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

// This package recognizes the layout of raw imaging datasets.
package readers

import (
	"fmt"
	"os"
	"path/filepath"
)

// identifies the acquisition layout of a dataset
type Reader string

const (
	ExaSPIM  Reader = "exaspim"
	MesoSPIM Reader = "mesospim"
)

// the directory (relative to the dataset root) holding each reader's images
var rawDirectories = map[Reader]string{
	ExaSPIM:  "exaSPIM",
	MesoSPIM: "micr",
}

// Determines the reader for the dataset at dataDir from the name of its raw
// image directory.
func ReaderName(dataDir string) (Reader, error) {
	for _, reader := range []Reader{ExaSPIM, MesoSPIM} {
		info, err := os.Stat(filepath.Join(dataDir, rawDirectories[reader]))
		if err == nil && info.IsDir() {
			return reader, nil
		}
	}
	return "", &UnknownLayoutError{Dir: dataDir}
}

// Returns the raw image directory for the given reader within dataDir.
func RawDataDir(reader Reader, dataDir string) (string, error) {
	name, found := rawDirectories[reader]
	if !found {
		return "", fmt.Errorf("Unknown reader: %s", reader)
	}
	return filepath.Join(dataDir, name), nil
}

// indicates a dataset whose layout isn't recognized
type UnknownLayoutError struct {
	Dir string
}

func (e UnknownLayoutError) Error() string {
	return fmt.Sprintf("No raw image directory (exaSPIM/ or micr/) found in %s", e.Dir)
}
