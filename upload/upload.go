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
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/frictionlessdata/datapackage-go/datapackage"
	"github.com/frictionlessdata/datapackage-go/validator"
	"golang.org/x/sync/errgroup"

	"github.com/aind/transcode/compression"
	"github.com/aind/transcode/config"
)

// number of files uploaded at once
const DefaultThreads = 4

// name of the manifest written to the destination
const ManifestFile = "manifest.json"

// a file to be uploaded
type file struct {
	Path    string // absolute path
	RelPath string // slash-separated path relative to the source
	Size    int64
}

// summarizes an upload
type Result struct {
	Files    int
	Bytes    int64
	Manifest string // location of the manifest at the destination
	Package  *datapackage.Package
}

// An Uploader copies files to local or cloud destinations.
type Uploader struct {
	// number of concurrent transfers
	Threads int
	// creates object stores for cloud destinations
	NewStore func(ctx context.Context, provider, bucket string) (ObjectStore, error)
	// if set, videos are zipped in a staging area and their archives are
	// uploaded in their place
	Videos *compression.VideoCompressor
}

// Creates an uploader with default settings.
func NewUploader() *Uploader {
	return &Uploader{
		Threads:  DefaultThreads,
		NewStore: NewObjectStore,
	}
}

// Creates an uploader from the upload job configuration.
func NewUploaderFromConfig(conf config.UploadJobConfig) *Uploader {
	u := &Uploader{
		Threads: conf.Threads,
		NewStore: StoreFactory(
			S3Options{
				Region:          conf.S3.Region,
				Endpoint:        conf.S3.Endpoint,
				AccessKeyId:     conf.S3.AccessKeyId,
				SecretAccessKey: conf.S3.SecretAccessKey,
			},
			GCSOptions{
				CredentialsFile: conf.GCS.CredentialsFile,
				Endpoint:        conf.GCS.Endpoint,
			},
		),
	}
	if conf.CompressVideos {
		u.Videos = &compression.VideoCompressor{
			Level:         conf.CompressionLevel,
			EncryptionKey: conf.EncryptionKey,
		}
	}
	return u
}

// Checks that the destination can receive files: a cloud bucket must exist,
// and a local directory is created if needed.
func (u *Uploader) ValidateDestination(ctx context.Context, dest string) error {
	if !IsCloudURL(dest) {
		return os.MkdirAll(dest, 0755)
	}
	provider, bucket, _, err := ParseCloudURL(dest)
	if err != nil {
		return err
	}
	store, err := u.NewStore(ctx, provider, bucket)
	if err != nil {
		return err
	}
	return store.Check(ctx)
}

// Checks the destination with a default uploader.
func ValidateDestination(ctx context.Context, dest string) error {
	return NewUploader().ValidateDestination(ctx, dest)
}

// Uploads every file beneath src to dest, skipping directories named
// excludeDirName, then writes a manifest of the uploaded files to dest.
func (u *Uploader) Upload(ctx context.Context, src, dest, excludeDirName string) (Result, error) {
	files, err := collectFiles(src, excludeDirName)
	if err != nil {
		return Result{}, err
	}
	if u.Videos != nil {
		staging, err := os.MkdirTemp("", "videos-")
		if err != nil {
			return Result{}, err
		}
		defer os.RemoveAll(staging)
		if files, err = u.stageVideos(ctx, files, staging); err != nil {
			return Result{}, err
		}
	}
	slog.Info(fmt.Sprintf("Uploading %d file(s) from %s to %s", len(files), src, dest))

	var put func(ctx context.Context, f file) error
	var manifestDest string
	if IsCloudURL(dest) {
		provider, bucket, prefix, err := ParseCloudURL(dest)
		if err != nil {
			return Result{}, err
		}
		store, err := u.NewStore(ctx, provider, bucket)
		if err != nil {
			return Result{}, err
		}
		put = func(ctx context.Context, f file) error {
			return store.Put(ctx, objectKey(prefix, f.RelPath), f.Path)
		}
		manifestDest = strings.TrimSuffix(dest, "/") + "/" + ManifestFile
	} else {
		put = func(ctx context.Context, f file) error {
			return copyFile(f.Path, filepath.Join(dest, filepath.FromSlash(f.RelPath)))
		}
		manifestDest = filepath.Join(dest, ManifestFile)
	}

	threads := u.Threads
	if threads < 1 {
		threads = DefaultThreads
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)
	var numBytes atomic.Int64
	for _, f := range files {
		if gctx.Err() != nil {
			break
		}
		f := f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := put(gctx, f); err != nil {
				return err
			}
			numBytes.Add(f.Size)
			slog.Debug(fmt.Sprintf("Uploaded %s", f.RelPath))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if len(files) == 0 {
		slog.Warn(fmt.Sprintf("No files to upload from %s", src))
		return Result{}, nil
	}

	manifest, err := newManifest(files)
	if err != nil {
		return Result{}, err
	}
	manifestFile, err := os.CreateTemp("", "manifest-*.json")
	if err != nil {
		return Result{}, err
	}
	manifestFile.Close()
	defer os.Remove(manifestFile.Name())
	if err := manifest.SaveDescriptor(manifestFile.Name()); err != nil {
		return Result{}, fmt.Errorf("creating manifest file: %s", err.Error())
	}
	manifestInfo, err := os.Stat(manifestFile.Name())
	if err != nil {
		return Result{}, err
	}
	if err := put(ctx, file{
		Path:    manifestFile.Name(),
		RelPath: ManifestFile,
		Size:    manifestInfo.Size(),
	}); err != nil {
		return Result{}, err
	}

	result := Result{
		Files:    len(files),
		Bytes:    numBytes.Load(),
		Manifest: manifestDest,
		Package:  manifest,
	}
	slog.Info(fmt.Sprintf("Uploaded %d file(s) (%d bytes) to %s", result.Files, result.Bytes, dest))
	return result, nil
}

// gathers the files beneath src, leaving out directories named excludeDirName
// and any manifest from an earlier upload
func collectFiles(src, excludeDirName string) ([]file, error) {
	files := make([]file, 0)
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != src && excludeDirName != "" && d.Name() == excludeDirName {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		relPath, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if relPath == ManifestFile {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, file{
			Path:    path,
			RelPath: filepath.ToSlash(relPath),
			Size:    info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

// copies the videos among the given files into the staging directory and
// compresses them there, returning the file list with each video replaced by
// its archive
func (u *Uploader) stageVideos(ctx context.Context, files []file, staging string) ([]file, error) {
	videos := 0
	for _, f := range files {
		if compression.IsVideo(f.RelPath) {
			if err := copyFile(f.Path, filepath.Join(staging, filepath.FromSlash(f.RelPath))); err != nil {
				return nil, err
			}
			videos++
		}
	}
	if videos == 0 {
		return files, nil
	}
	archives, err := u.Videos.CompressVideos(ctx, staging)
	if err != nil {
		return nil, err
	}
	slog.Info(fmt.Sprintf("Compressed %d video(s) for upload", len(archives)))

	staged := make([]file, len(files))
	for i, f := range files {
		if !compression.IsVideo(f.RelPath) {
			staged[i] = f
			continue
		}
		archive := filepath.Join(staging, filepath.FromSlash(f.RelPath)) + ".zip"
		info, err := os.Stat(archive)
		if err != nil {
			return nil, err
		}
		staged[i] = file{Path: archive, RelPath: f.RelPath + ".zip", Size: info.Size()}
	}
	sort.Slice(staged, func(i, j int) bool { return staged[i].RelPath < staged[j].RelPath })
	return staged, nil
}

// copies a file into place, creating its directory if needed
func copyFile(sourcePath, destPath string) error {
	sourceFileInfo, err := os.Stat(sourcePath)
	if err != nil {
		return err
	}
	destDir := filepath.Dir(destPath)
	if _, err := os.Stat(destDir); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		if err := os.MkdirAll(destDir, 0755); err != nil {
			return err
		}
	}
	source, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer source.Close()
	dest, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, sourceFileInfo.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(dest, source); err != nil {
		dest.Close()
		return err
	}
	return dest.Close()
}

// characters not allowed in data resource names
var invalidNameChars = regexp.MustCompile(`[^-a-z0-9._/]+`)

// builds a data package describing the uploaded files
func newManifest(files []file) (*datapackage.Package, error) {
	descriptors := make([]any, len(files))
	names := make(map[string]bool, len(files))
	for i, f := range files {
		hash, err := md5Hash(f.Path)
		if err != nil {
			return nil, err
		}
		name := resourceName(f.RelPath, names)
		descriptors[i] = map[string]any{
			"name":   name,
			"path":   f.RelPath,
			"bytes":  f.Size,
			"format": strings.TrimPrefix(filepath.Ext(f.RelPath), "."),
			"hash":   hash,
		}
	}
	descriptor := map[string]any{
		"name":      "manifest",
		"resources": descriptors,
		"created":   time.Now().Format(time.RFC3339),
		"profile":   "data-package",
		"keywords":  []any{"aind", "manifest"},
	}
	return datapackage.New(descriptor, ".", validator.InMemoryLoader())
}

// derives a resource name from a relative path that is not among the given
// taken names, and marks it taken
func resourceName(relPath string, taken map[string]bool) string {
	base := invalidNameChars.ReplaceAllString(strings.ToLower(relPath), "-")
	name := base
	for n := 2; taken[name]; n++ {
		name = fmt.Sprintf("%s-%d", base, n)
	}
	taken[name] = true
	return name
}

func md5Hash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	hash := md5.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
