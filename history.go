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

package main

import (
	"encoding/json"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/aind/transcode/journal"
)

// a journaled run along with the manifest of its uploaded files
type jobReport struct {
	journal.Record
	Manifest map[string]any `json:"manifest,omitempty"`
}

// writes the journaled runs that started and finished within the given
// period before now, one JSON object per line
func listJobs(w io.Writer, since time.Duration) error {
	stop := time.Now().UTC()
	records, err := journal.Records(stop.Add(-since), stop)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(w)
	for _, record := range records {
		if err := encoder.Encode(record); err != nil {
			return err
		}
	}
	return nil
}

// writes the journaled run with the given ID, including its manifest
func showJob(w io.Writer, jobId string) error {
	id, err := uuid.Parse(jobId)
	if err != nil {
		return err
	}
	record, err := journal.JobRecord(id)
	if err != nil {
		return err
	}
	report := jobReport{Record: record}
	if record.Manifest != nil {
		report.Manifest = record.Manifest.Descriptor()
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
