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

// This package runs the stages of a transcode job as configured by the
// config package.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/aind/transcode/channels"
	"github.com/aind/transcode/chunks"
	"github.com/aind/transcode/cluster"
	"github.com/aind/transcode/compression"
	"github.com/aind/transcode/config"
	"github.com/aind/transcode/journal"
	"github.com/aind/transcode/metadata"
	"github.com/aind/transcode/nglink"
	"github.com/aind/transcode/readers"
	"github.com/aind/transcode/transcode"
	"github.com/aind/transcode/upload"
)

// job stages, in the order they run
const (
	StageTranscode      = "transcode"
	StageCreateNgLink   = "create_ng_link"
	StageCreateMetadata = "create_metadata"
	StageUploadAuxFiles = "upload_aux_files"
)

// bytes per voxel written by the transcoder (uint16)
const voxelBytes = 2

// A Runner runs jobs, submitting cluster work through Submitter and sending
// files through Uploader.
type Runner struct {
	Submitter *cluster.Submitter
	Uploader  *upload.Uploader
}

// Creates a runner that submits with sbatch and uploads as the current
// upload job configuration says.
func NewRunner() *Runner {
	return &Runner{
		Submitter: cluster.NewSubmitter(),
		Uploader:  upload.NewUploaderFromConfig(config.UploadJob),
	}
}

// Runs the job described by the current configuration with a default runner.
func Run(ctx context.Context) (journal.Record, error) {
	return NewRunner().Run(ctx)
}

// Runs the enabled stages of the job described by the current configuration,
// stopping at the first required stage that fails. A failed link stage is
// logged and skipped. The returned record (also written to the
// journal when it's open) describes the run.
func (r *Runner) Run(ctx context.Context) (journal.Record, error) {
	conf := config.Current()
	record := journal.Record{
		Id:          uuid.New(),
		DataName:    conf.Data.Name,
		RawDataDir:  conf.Endpoints.RawDataDir,
		Destination: conf.Endpoints.DestDataDir,
		Stages:      make([]string, 0),
		StartTime:   time.Now().UTC(),
	}
	err := r.run(ctx, conf, &record)
	finish(ctx, &record, err)
	return record, err
}

func (r *Runner) run(ctx context.Context, conf config.Configuration, record *journal.Record) error {
	if err := checkPrerequisites(conf); err != nil {
		return err
	}
	rawDataDir := conf.Endpoints.RawDataDir
	reader, err := readers.ReaderName(rawDataDir)
	if err != nil {
		return err
	}
	rawImageDir, err := readers.RawDataDir(reader, rawDataDir)
	if err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("Running job %s for %s dataset %s (reader: %s)",
		record.Id.String(), conf.Data.Name, rawDataDir, reader))

	dest := conf.Endpoints.DestDataDir
	if conf.Jobs.Transcode || conf.Jobs.UploadAuxFiles {
		if err := r.Uploader.ValidateDestination(ctx, dest); err != nil {
			return err
		}
	}
	zarrOut := transcode.ZarrOutput(dest, rawImageDir)

	// a failed optional stage is logged and left out of the record, and the
	// run goes on
	stages := []struct {
		Name     string
		Enabled  bool
		Optional bool
		Run      func() error
	}{
		{StageTranscode, conf.Jobs.Transcode, false, func() error {
			return r.transcode(ctx, conf, rawImageDir, zarrOut)
		}},
		{StageCreateNgLink, conf.Jobs.CreateNgLink, true, func() error {
			return createNgLink(conf, rawDataDir, zarrOut)
		}},
		{StageCreateMetadata, conf.Jobs.CreateMetadata, false, func() error {
			return createMetadata(ctx, conf, reader, rawDataDir)
		}},
		{StageUploadAuxFiles, conf.Jobs.UploadAuxFiles, false, func() error {
			result, err := r.Uploader.Upload(ctx, rawDataDir, dest, filepath.Base(rawImageDir))
			record.Manifest = result.Package
			return err
		}},
	}
	for _, stage := range stages {
		if !stage.Enabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		slog.Info(fmt.Sprintf("Starting stage %s", stage.Name))
		start := time.Now()
		if err := stage.Run(); err != nil {
			if stage.Optional && ctx.Err() == nil {
				slog.Error(fmt.Sprintf("Stage %s failed: %s", stage.Name, err.Error()))
				continue
			}
			return &StageError{Stage: stage.Name, Err: err}
		}
		record.Stages = append(record.Stages, stage.Name)
		slog.Info(fmt.Sprintf("Finished stage %s in %s", stage.Name,
			time.Since(start).Round(time.Millisecond)))
	}
	return nil
}

// checks the configuration for everything the enabled stages need
func checkPrerequisites(conf config.Configuration) error {
	jobs := conf.Jobs
	endpoints := conf.Endpoints
	enabled := map[string]bool{
		StageTranscode:      jobs.Transcode,
		StageCreateNgLink:   jobs.CreateNgLink,
		StageCreateMetadata: jobs.CreateMetadata,
		StageUploadAuxFiles: jobs.UploadAuxFiles,
	}
	for _, stage := range []string{StageTranscode, StageCreateNgLink, StageCreateMetadata, StageUploadAuxFiles} {
		if !enabled[stage] {
			continue
		}
		if endpoints.RawDataDir == "" {
			return &PrerequisiteError{Stage: stage, Message: "endpoints.raw_data_dir is not set"}
		}
		info, err := os.Stat(endpoints.RawDataDir)
		if err != nil || !info.IsDir() {
			return &PrerequisiteError{Stage: stage,
				Message: fmt.Sprintf("raw data directory %s is not a directory", endpoints.RawDataDir)}
		}
	}
	// the link stage reads the transcoded store from the destination
	if endpoints.DestDataDir == "" {
		for _, stage := range []string{StageTranscode, StageCreateNgLink, StageUploadAuxFiles} {
			if enabled[stage] {
				return &PrerequisiteError{Stage: stage, Message: "endpoints.dest_data_dir is not set"}
			}
		}
	}
	if jobs.Transcode && conf.TranscodeJob.SubmitArgs.RunParentDir == "" {
		return &PrerequisiteError{Stage: StageTranscode,
			Message: "transcode_job.submit_args.run_parent_dir is not set"}
	}
	if jobs.CreateMetadata && endpoints.MetadataServiceURL == "" {
		return &PrerequisiteError{Stage: StageCreateMetadata,
			Message: "endpoints.metadata_service_url is not set"}
	}
	return nil
}

// submits the OME-Zarr writer to the cluster, waiting for it if a link is
// to be made from its output
func (r *Runner) transcode(ctx context.Context, conf config.Configuration, rawImageDir, zarrOut string) error {
	job := conf.TranscodeJob
	images, err := transcode.CollectImages(rawImageDir, false, job.Exclude)
	if err != nil {
		return err
	}
	if len(images) == 0 {
		return &NoImagesError{Dir: rawImageDir}
	}
	if names, err := channels.ParseChannelNames(images[0]); err == nil {
		slog.Info(fmt.Sprintf("Found %d image(s) with channels %v", len(images), names))
	} else {
		slog.Info(fmt.Sprintf("Found %d image(s)", len(images)))
	}

	if job.Resume && !upload.IsCloudURL(zarrOut) {
		remaining := 0
		for _, image := range images {
			done, err := transcode.TileExists(zarrOut, transcode.TileName(image), job.NLevels)
			if err != nil {
				return err
			}
			if !done {
				remaining++
			}
		}
		if remaining == 0 {
			slog.Info(fmt.Sprintf("All %d tile(s) already written to %s; nothing to resume",
				len(images), zarrOut))
			return nil
		}
		slog.Info(fmt.Sprintf("Resuming: %d of %d tile(s) remain", remaining, len(images)))
	}

	opts, err := compression.ResolveOptions(job)
	if err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("Compressor: %v", opts.Params()))
	if len(job.ChunkShape) > 0 {
		shape, err := chunks.EnsureShape5D(job.ChunkShape)
		if err != nil {
			return err
		}
		chunkMB := float64(chunks.Bytes(shape, voxelBytes)) / (1024 * 1024)
		if chunkMB > float64(job.ChunkSize) {
			slog.Warn(fmt.Sprintf("Chunk shape %s (%.1f MB) exceeds chunk_size (%d MB)",
				transcode.FormatShape(shape), chunkMB, job.ChunkSize))
		}
	}

	cmd, err := transcode.BuildCommand(rawImageDir, zarrOut, job)
	if err != nil {
		return err
	}
	run, err := r.Submitter.Submit(ctx, cluster.Submission{
		Name:       "transcode-" + filepath.Base(filepath.Dir(rawImageDir)),
		JobCommand: cmd,
		Args:       job.SubmitArgs,
		Wait:       conf.Jobs.CreateNgLink,
	})
	if err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("Transcode job %s submitted from %s", run.JobId, run.Dir))
	return nil
}

// writes a neuroglancer link for the transcoded store into the dataset
func createNgLink(conf config.Configuration, rawDataDir, zarrOut string) error {
	vmin, vmax := conf.CreateNgLinkJob.Vmin, conf.CreateNgLinkJob.Vmax
	if _, err := nglink.Create(zarrOut, rawDataDir, vmin, vmax); err != nil {
		return fmt.Errorf("creating neuroglancer link: %w", err)
	}
	return nil
}

// fetches and writes subject, procedures and data description metadata
func createMetadata(ctx context.Context, conf config.Configuration, reader readers.Reader,
	rawDataDir string) error {
	if reader != readers.ExaSPIM {
		slog.Error(fmt.Sprintf("Fetching metadata not implemented for %s", reader))
		return nil
	}
	writer, err := metadata.NewWriter(rawDataDir, conf.Endpoints.MetadataServiceURL,
		conf.Endpoints.MetadataSchemas)
	if err != nil {
		return err
	}
	if err := writer.WriteSubject(ctx, rawDataDir); err != nil {
		return err
	}
	if err := writer.WriteProcedures(ctx, rawDataDir); err != nil {
		return err
	}
	return writer.WriteDataDescription(ctx, rawDataDir)
}

// fills in the outcome of a run and journals it
func finish(ctx context.Context, record *journal.Record, err error) {
	record.StopTime = time.Now().UTC()
	switch {
	case err == nil:
		record.Status = journal.StatusSucceeded
		slog.Info(fmt.Sprintf("Job %s succeeded (stages: %v)", record.Id.String(), record.Stages))
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		record.Status = journal.StatusCanceled
		record.Message = err.Error()
		slog.Warn(fmt.Sprintf("Job %s canceled: %s", record.Id.String(), err.Error()))
	default:
		record.Status = journal.StatusFailed
		record.Message = err.Error()
		slog.Error(fmt.Sprintf("Job %s failed: %s", record.Id.String(), err.Error()))
	}
	if journal.IsOpen() {
		if jerr := journal.RecordJob(*record); jerr != nil {
			slog.Error(fmt.Sprintf("Couldn't journal job %s: %s", record.Id.String(), jerr.Error()))
		}
	}
}
