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

// This package contains testing utilities for the transcode job driver.
package jobtest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Enables DEBUG log messages for the structured log (slog).
func EnableDebugLogging() {
	logLevel := new(slog.LevelVar)
	logLevel.Set(slog.LevelDebug)
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(h))
}

//------------------
// Dataset Fixtures
//------------------

// name of the dataset directory created by MakeDataset
const DatasetName = "exaSPIM_653431_2023-05-06_10-21-43"

// Creates a dataset directory beneath root whose raw images (one per tile,
// named tile_<i>.ims) live in the given raw directory ("exaSPIM" or "micr"),
// alongside a few auxiliary files. Returns the dataset directory.
func MakeDataset(root, rawDir string, numTiles int) (string, error) {
	dataDir := filepath.Join(root, DatasetName)
	files := map[string]string{
		"derivatives/acquisition.json": `{"instrument": "exaSPIM"}`,
		"derivatives/settings.yml":     "laser: 488\n",
		"notes.txt":                    "looks good\n",
	}
	for i := 0; i < numTiles; i++ {
		files[fmt.Sprintf("%s/tile_%d.ims", rawDir, i)] = "pixels"
	}
	for path, content := range files {
		full := filepath.Join(dataDir, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			return "", err
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			return "", err
		}
	}
	return dataDir, nil
}

//-----------------
// Runner Fixtures
//-----------------

// Runner stands in for the cluster scheduler: it records each command it's
// asked to run and answers like sbatch. If OnRun is set, it's called for each
// command before the response is returned.
type Runner struct {
	JobId  int
	Output string // overrides the sbatch response if set
	Err    error
	OnRun  func(dir, name string, args ...string) error

	mu    sync.Mutex
	Calls [][]string
}

func (r *Runner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.Calls = append(r.Calls, append([]string{name}, args...))
	r.mu.Unlock()
	if r.OnRun != nil {
		if err := r.OnRun(dir, name, args...); err != nil {
			return []byte(err.Error()), err
		}
	}
	if r.Err != nil {
		return []byte(r.Output), r.Err
	}
	if r.Output != "" {
		return []byte(r.Output), nil
	}
	return []byte(fmt.Sprintf("Submitted batch job %d\n", r.JobId)), nil
}

// returns the number of commands run so far
func (r *Runner) NumCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Calls)
}

// Writes a minimal Zarr store with the given tiles, each with nLevels
// pyramid levels, as the OME-Zarr writer would.
func WriteZarrStore(zarrPath string, tiles []string, nLevels int) error {
	for _, tile := range tiles {
		tileDir := filepath.Join(zarrPath, tile)
		if err := os.MkdirAll(tileDir, 0755); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(tileDir, ".zattrs"), []byte("{}"), 0644); err != nil {
			return err
		}
		for level := 0; level < nLevels; level++ {
			levelDir := filepath.Join(tileDir, fmt.Sprint(level))
			if err := os.MkdirAll(levelDir, 0755); err != nil {
				return err
			}
			if err := os.WriteFile(filepath.Join(levelDir, ".zarray"), []byte("{}"), 0644); err != nil {
				return err
			}
		}
	}
	return nil
}

//---------------------------
// Metadata Service Fixtures
//---------------------------

// Starts a stand-in metadata service that knows about the subject in
// DatasetName. Close it when done.
func NewMetadataService() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 2 || parts[1] != "653431" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message": "No data found!", "data": null}`))
			return
		}
		switch parts[0] {
		case "subject":
			w.Write([]byte(`{"message": "Valid Model.", "data": {"subject_id": "653431", "sex": "Female"}}`))
		case "procedures":
			w.Write([]byte(`{"message": "Valid Model.", "data": {"subject_id": "653431", "subject_procedures": []}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message": "Not Found", "data": null}`))
		}
	})
	return httptest.NewServer(mux)
}
