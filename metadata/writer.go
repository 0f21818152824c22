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

package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// names of the documents written into a dataset directory
const (
	SubjectFile         = "subject.json"
	ProceduresFile      = "procedures.json"
	DataDescriptionFile = "data_description.json"
)

// A Writer writes metadata documents for one dataset.
type Writer struct {
	Dataset   DatasetName
	Client    *Client
	Validator *Validator
}

// Creates a writer for the dataset in dataDir, fetching records from the
// metadata service at serviceURL and validating against the schemas in
// schemaDir (which may be blank).
func NewWriter(dataDir, serviceURL, schemaDir string) (*Writer, error) {
	dataset, err := ParseDatasetName(dataDir)
	if err != nil {
		return nil, err
	}
	return &Writer{
		Dataset:   dataset,
		Client:    NewClient(serviceURL),
		Validator: NewValidator(schemaDir),
	}, nil
}

// Fetches the subject record and writes it to subject.json in outputDir.
func (w *Writer) WriteSubject(ctx context.Context, outputDir string) error {
	data, err := w.Client.Subject(ctx, w.Dataset.SubjectId)
	if err != nil {
		return err
	}
	return w.write(outputDir, SubjectFile, data)
}

// Fetches the procedures record and writes it to procedures.json in outputDir.
func (w *Writer) WriteProcedures(ctx context.Context, outputDir string) error {
	data, err := w.Client.Procedures(ctx, w.Dataset.SubjectId)
	if err != nil {
		return err
	}
	return w.write(outputDir, ProceduresFile, data)
}

// a description of a raw dataset
type DataDescription struct {
	Name         string `json:"name"`
	Modality     string `json:"modality"`
	SubjectId    string `json:"subject_id"`
	CreationDate string `json:"creation_date"`
	CreationTime string `json:"creation_time"`
	DataLevel    string `json:"data_level"`
	Institution  string `json:"institution"`
}

// Writes data_description.json for the dataset to outputDir.
func (w *Writer) WriteDataDescription(_ context.Context, outputDir string) error {
	acquired := w.Dataset.Acquired
	description := DataDescription{
		Name: fmt.Sprintf("%s_%s_%s", w.Dataset.Modality, w.Dataset.SubjectId,
			acquired.Format("2006-01-02_15-04-05")),
		Modality:     w.Dataset.Modality,
		SubjectId:    w.Dataset.SubjectId,
		CreationDate: acquired.Format(time.DateOnly),
		CreationTime: acquired.Format(time.TimeOnly),
		DataLevel:    "raw",
		Institution:  "AIND",
	}
	data, err := json.Marshal(description)
	if err != nil {
		return err
	}
	return w.write(outputDir, DataDescriptionFile, data)
}

// validates the document, then writes it indented
func (w *Writer) write(outputDir, name string, data []byte) error {
	if w.Validator != nil {
		if err := w.Validator.Validate(name, data); err != nil {
			return err
		}
	}
	var indented bytes.Buffer
	if err := json.Indent(&indented, data, "", "  "); err != nil {
		return err
	}
	path := filepath.Join(outputDir, name)
	if err := os.WriteFile(path, indented.Bytes(), 0644); err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("Wrote %s", path))
	return nil
}
