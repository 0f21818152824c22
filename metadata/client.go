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

// This package fetches subject and procedure metadata for a dataset from the
// metadata service and writes it, along with a data description, next to the
// raw data.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// timeout for metadata service requests
const DefaultTimeout = 2 * time.Minute

// kinds of records served by the metadata service
const (
	SubjectKind    = "subject"
	ProceduresKind = "procedures"
)

// the envelope wrapping metadata service responses
type serviceResponse struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// A Client fetches records from the metadata service at BaseURL.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// Creates a client for the metadata service at the given URL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTP:    SecureHttpClient(DefaultTimeout),
	}
}

// Fetches the subject record for the given subject ID.
func (c *Client) Subject(ctx context.Context, subjectId string) (json.RawMessage, error) {
	return c.fetch(ctx, SubjectKind, subjectId)
}

// Fetches the procedures record for the given subject ID.
func (c *Client) Procedures(ctx context.Context, subjectId string) (json.RawMessage, error) {
	return c.fetch(ctx, ProceduresKind, subjectId)
}

func (c *Client) fetch(ctx context.Context, kind, subjectId string) (json.RawMessage, error) {
	resource := fmt.Sprintf("%s/%s/%s", c.BaseURL, kind, url.PathEscape(subjectId))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resource, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	slog.Debug(fmt.Sprintf("GET %s", resource))
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var payload serviceResponse
	decodeErr := json.Unmarshal(body, &payload)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNotAcceptable:
		// 406 carries a record that failed the service's own validation
		if decodeErr != nil {
			return nil, &ServiceError{
				Kind:       kind,
				SubjectId:  subjectId,
				StatusCode: resp.StatusCode,
				Message:    fmt.Sprintf("malformed response: %s", decodeErr.Error()),
			}
		}
		if len(payload.Data) == 0 || string(payload.Data) == "null" {
			return nil, &NoDataError{Kind: kind, SubjectId: subjectId}
		}
		if resp.StatusCode == http.StatusNotAcceptable {
			slog.Warn(fmt.Sprintf("%s record for subject %s: %s", kind, subjectId, payload.Message))
		}
		return payload.Data, nil
	case http.StatusNotFound:
		return nil, &NoDataError{Kind: kind, SubjectId: subjectId}
	default:
		message := strings.TrimSpace(string(body))
		if decodeErr == nil && payload.Message != "" {
			message = payload.Message
		}
		return nil, &ServiceError{
			Kind:       kind,
			SubjectId:  subjectId,
			StatusCode: resp.StatusCode,
			Message:    message,
		}
	}
}

// the parts of a dataset directory name
type DatasetName struct {
	Modality, SubjectId string
	Acquired            time.Time
}

var datasetNameRegexp = regexp.MustCompile(`^([A-Za-z0-9-]+)_([^_]+)_(\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2})$`)

// Parses a dataset directory name like exaSPIM_653431_2023-05-06_10-21-43.
func ParseDatasetName(dataDir string) (DatasetName, error) {
	name := filepath.Base(strings.TrimSuffix(dataDir, "/"))
	match := datasetNameRegexp.FindStringSubmatch(name)
	if match == nil {
		return DatasetName{}, &DatasetNameError{Name: name}
	}
	acquired, err := time.Parse("2006-01-02_15-04-05", match[3])
	if err != nil {
		return DatasetName{}, &DatasetNameError{Name: name}
	}
	return DatasetName{
		Modality:  match[1],
		SubjectId: match[2],
		Acquired:  acquired,
	}, nil
}
