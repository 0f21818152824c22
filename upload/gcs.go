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

package upload

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"
)

// overrides for the Google Cloud Storage client
type GCSOptions struct {
	CredentialsFile string
	Endpoint        string
}

// GCSStore implements ObjectStore for a Google Cloud Storage bucket.
type GCSStore struct {
	service *storage.Service
	bucket  string
}

// Creates a GCS store for the given bucket.
func NewGCSStore(ctx context.Context, bucket string, opts GCSOptions) (*GCSStore, error) {
	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}
	service, err := storage.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSStore{service: service, bucket: bucket}, nil
}

func (s *GCSStore) Put(ctx context.Context, key, localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = s.service.Objects.Insert(s.bucket, &storage.Object{Name: key}).
		Media(file).Context(ctx).Do()
	if err != nil {
		return &PutError{Key: key, Path: localPath, Err: err}
	}
	return nil
}

func (s *GCSStore) Check(ctx context.Context) error {
	_, err := s.service.Buckets.Get(s.bucket).Context(ctx).Do()
	if err != nil {
		return &BucketUnavailableError{Provider: GCS, Bucket: s.bucket, Err: err}
	}
	return nil
}
