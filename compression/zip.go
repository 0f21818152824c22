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
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fernet/fernet-go"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// default zip compression level
const DefaultLevel = 5

// file extensions of videos handled by VideoCompressor
var VideoExtensions = []string{".mp4", ".mov", ".wmv", ".avi"}

// This type compresses video files in place: each video becomes a zip archive
// next to it and the original is removed.
type VideoCompressor struct {
	// compression level, 1-9 (0 means DefaultLevel)
	Level int
	// base64-encoded Fernet key used to seal each archive (optional)
	EncryptionKey string
}

// returns true if the given path has one of the recognized video extensions
func IsVideo(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, videoExt := range VideoExtensions {
		if ext == videoExt {
			return true
		}
	}
	return false
}

// Compresses (and optionally seals) every video file beneath videoDir,
// returning the paths of the archives it created.
func (c VideoCompressor) CompressVideos(ctx context.Context, videoDir string) ([]string, error) {
	level, err := checkLevel(c.Level)
	if err != nil {
		return nil, err
	}
	key, err := decodeKey(c.EncryptionKey)
	if err != nil {
		return nil, err
	}

	var videos []string
	err = filepath.WalkDir(videoDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsVideo(path) {
			videos = append(videos, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	archives := make([]string, 0, len(videos))
	for _, video := range videos {
		if err := ctx.Err(); err != nil {
			return archives, err
		}
		var buf bytes.Buffer
		archive := newZipWriter(&buf, level)
		if err := addFile(archive, video, filepath.Base(video)); err != nil {
			archive.Close()
			return archives, err
		}
		if err := archive.Close(); err != nil {
			return archives, err
		}
		data := buf.Bytes()
		if key != nil {
			if data, err = fernet.EncryptAndSign(data, key); err != nil {
				return archives, err
			}
		}
		archivePath := video + ".zip"
		if err := os.WriteFile(archivePath, data, 0644); err != nil {
			return archives, err
		}
		if err := os.Remove(video); err != nil {
			return archives, err
		}
		archives = append(archives, archivePath)
	}
	return archives, nil
}

func checkLevel(level int) (int, error) {
	if level == 0 {
		return DefaultLevel, nil
	}
	if level < 1 || level > 9 {
		return 0, &InvalidLevelError{Level: level}
	}
	return level, nil
}

func decodeKey(encoded string) (*fernet.Key, error) {
	if encoded == "" {
		return nil, nil
	}
	key, err := fernet.DecodeKey(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	return key, nil
}

func newZipWriter(w io.Writer, level int) *zip.Writer {
	archive := zip.NewWriter(w)
	archive.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})
	return archive
}

// copies the file at path into the archive under the given name
func addFile(archive *zip.Writer, path, name string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate
	w, err := archive.CreateHeader(header)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
