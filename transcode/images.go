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

package transcode

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// extensions of image files (and directory stores) the transcoder can read
var ImageExtensions = []string{".tif", ".tiff", ".h5", ".ims", ".n5", ".zarr"}

func isImage(path string) bool {
	return slices.Contains(ImageExtensions, strings.ToLower(filepath.Ext(path)))
}

// Collects the images in the given directory (and, if recursive is set, its
// subdirectories), leaving out any that match the exclude patterns. N5 and
// Zarr directories count as single images. Paths are returned sorted.
func CollectImages(dir string, recursive bool, exclude []string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &NotADirectoryError{Path: dir}
	}

	images := make([]string, 0)
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		if isImage(path) {
			if !Excluded(path, exclude) {
				images = append(images, path)
			}
			if d.IsDir() { // don't descend into chunked stores
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() && !recursive {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(images)
	return images, nil
}

// Returns the name of the Zarr group for the given image: its file name
// without extension.
func TileName(imagePath string) string {
	base := filepath.Base(imagePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Returns true if the last pyramid level of the given tile has been written
// to the local Zarr store at zarrPath, in which case a resumed job skips it.
func TileExists(zarrPath, tile string, nLevels int) (bool, error) {
	if nLevels < 1 {
		return false, nil
	}
	level := filepath.Join(zarrPath, tile, strconv.Itoa(nLevels-1))
	for _, marker := range []string{".zarray", "zarr.json"} {
		_, err := os.Stat(filepath.Join(level, marker))
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return false, err
		}
	}
	return false, nil
}
