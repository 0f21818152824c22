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

// This package copies a dataset's auxiliary files (everything but its raw
// images) to a local directory or a cloud bucket, and records what it copied
// in a Frictionless data package manifest.
package upload

import (
	"context"
	"net/url"
	"strings"
)

// supported cloud providers
const (
	S3  = "s3"
	GCS = "gs"
)

// An ObjectStore puts files into a single cloud bucket.
type ObjectStore interface {
	// uploads the file at localPath to the given key
	Put(ctx context.Context, key, localPath string) error
	// checks that the bucket exists and is accessible
	Check(ctx context.Context) error
}

// Returns true if the given location is an s3:// or gs:// URL.
func IsCloudURL(location string) bool {
	return strings.HasPrefix(location, S3+"://") || strings.HasPrefix(location, GCS+"://")
}

// Splits a cloud URL like s3://bucket/some/prefix into its provider, bucket
// and key prefix (without leading or trailing slashes).
func ParseCloudURL(location string) (provider, bucket, prefix string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", "", &InvalidURLError{URL: location, Message: err.Error()}
	}
	if u.Scheme != S3 && u.Scheme != GCS {
		return "", "", "", &UnsupportedProviderError{Provider: u.Scheme}
	}
	if u.Host == "" {
		return "", "", "", &InvalidURLError{URL: location, Message: "no bucket given"}
	}
	return u.Scheme, u.Host, strings.Trim(u.Path, "/"), nil
}

// Creates an object store for the given provider and bucket using ambient
// credentials.
func NewObjectStore(ctx context.Context, provider, bucket string) (ObjectStore, error) {
	return StoreFactory(S3Options{}, GCSOptions{})(ctx, provider, bucket)
}

// Returns a function that creates object stores with the given client
// options.
func StoreFactory(s3Opts S3Options, gcsOpts GCSOptions) func(ctx context.Context, provider, bucket string) (ObjectStore, error) {
	return func(ctx context.Context, provider, bucket string) (ObjectStore, error) {
		switch provider {
		case S3:
			return NewS3Store(ctx, bucket, s3Opts)
		case GCS:
			return NewGCSStore(ctx, bucket, gcsOpts)
		default:
			return nil, &UnsupportedProviderError{Provider: provider}
		}
	}
}

// joins a key prefix and a slash-separated relative path
func objectKey(prefix, relPath string) string {
	if prefix == "" {
		return relPath
	}
	return prefix + "/" + relPath
}
