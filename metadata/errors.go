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
	"fmt"
)

// this error type is emitted if an endpoint redirects an HTTPS request to an
// HTTP endpoint
type DowngradedRedirectError struct {
	Endpoint string
}

func (e DowngradedRedirectError) Error() string {
	return fmt.Sprintf("The endpoint %s is attempting to downgrade an HTTPS request to HTTP",
		e.Endpoint)
}

// indicates that the metadata service has no records for a subject
type NoDataError struct {
	Kind, SubjectId string
}

func (e NoDataError) Error() string {
	return fmt.Sprintf("The metadata service has no %s data for subject %s", e.Kind, e.SubjectId)
}

// indicates an unexpected response from the metadata service
type ServiceError struct {
	Kind, SubjectId string
	StatusCode      int
	Message         string
}

func (e ServiceError) Error() string {
	return fmt.Sprintf("Metadata service request for %s of subject %s failed (%d): %s",
		e.Kind, e.SubjectId, e.StatusCode, e.Message)
}

// indicates a dataset directory whose name doesn't follow the
// <modality>_<subject>_<date>_<time> convention
type DatasetNameError struct {
	Name string
}

func (e DatasetNameError) Error() string {
	return fmt.Sprintf("Dataset name '%s' is not of the form <modality>_<subject>_<YYYY-MM-DD>_<HH-MM-SS>",
		e.Name)
}

// indicates a metadata document that doesn't satisfy its schema
type SchemaViolationError struct {
	Document, Message string
}

func (e SchemaViolationError) Error() string {
	return fmt.Sprintf("%s does not satisfy its schema: %s", e.Document, e.Message)
}
