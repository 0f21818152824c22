package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aind/transcode/cluster"
	"github.com/aind/transcode/config"
	"github.com/aind/transcode/jobtest"
	"github.com/aind/transcode/journal"
	"github.com/aind/transcode/upload"
)

// This runs setup, runs all tests, and does breakdown.
func TestMain(m *testing.M) {
	var status int
	setup()
	status = m.Run()
	breakdown()
	os.Exit(status)
}

// this function gets called at the beginning of a test session
func setup() {
	jobtest.EnableDebugLogging()

	var err error
	TESTING_DIR, err = os.MkdirTemp(os.TempDir(), "transcode-jobs-tests-")
	if err != nil {
		log.Panicf("Couldn't create testing directory: %s", err)
	}
	err = journal.Init(filepath.Join(TESTING_DIR, "jobs.db"))
	if err != nil {
		log.Panicf("Couldn't open job journal: %s", err)
	}
}

// this function gets called after all tests have been run
func breakdown() {
	journal.Finalize()
	if TESTING_DIR != "" {
		os.RemoveAll(TESTING_DIR)
	}
}

// a scratch area with a dataset, a destination and a run parent directory
type workspace struct {
	DataDir, DestDir, RunDir string
}

func newWorkspace(t *testing.T, rawDir string) workspace {
	root := t.TempDir()
	dataDir, err := jobtest.MakeDataset(filepath.Join(root, "raw"), rawDir, 2)
	require.Nil(t, err)
	return workspace{
		DataDir: dataDir,
		DestDir: filepath.Join(root, "dest"),
		RunDir:  filepath.Join(root, "runs"),
	}
}

// initializes the configuration for the given workspace, enabling the given
// stages and appending any extra YAML
func initConfig(t *testing.T, ws workspace, serviceURL string, stages []string, extra string) {
	enabled := map[string]bool{}
	for _, stage := range stages {
		enabled[stage] = true
	}
	yaml := fmt.Sprintf(`
endpoints:
  raw_data_dir: %s
  dest_data_dir: %s
  metadata_service_url: %s
jobs:
  upload_aux_files: %t
  transcode: %t
  create_ng_link: %t
  create_metadata: %t
transcode_job:
  n_levels: 3
  submit_args:
    run_parent_dir: %s
%s`, ws.DataDir, ws.DestDir, serviceURL,
		enabled[StageUploadAuxFiles], enabled[StageTranscode],
		enabled[StageCreateNgLink], enabled[StageCreateMetadata],
		ws.RunDir, extra)
	require.Nil(t, config.Init([]byte(yaml)))
}

func testRunner(clusterRunner *jobtest.Runner) *Runner {
	return &Runner{
		Submitter: &cluster.Submitter{Runner: clusterRunner, Sbatch: "sbatch"},
		Uploader:  upload.NewUploader(),
	}
}

func TestRunAllStages(t *testing.T) {
	assert := assert.New(t)
	service := jobtest.NewMetadataService()
	defer service.Close()
	ws := newWorkspace(t, "exaSPIM")
	initConfig(t, ws, service.URL,
		[]string{StageTranscode, StageCreateNgLink, StageCreateMetadata, StageUploadAuxFiles}, "")

	zarrOut := filepath.Join(ws.DestDir, "exaSPIM.zarr")
	clusterRunner := &jobtest.Runner{
		JobId: 1234,
		OnRun: func(dir, name string, args ...string) error {
			return jobtest.WriteZarrStore(zarrOut, []string{"tile_0", "tile_1"}, 3)
		},
	}
	record, err := testRunner(clusterRunner).Run(context.Background())
	assert.Nil(err)
	assert.Equal(journal.StatusSucceeded, record.Status)
	assert.Equal([]string{StageTranscode, StageCreateNgLink, StageCreateMetadata, StageUploadAuxFiles},
		record.Stages)
	assert.Equal("exaSPIM", record.DataName)

	// the transcode job was waited on, since a link was made from its output
	require.Equal(t, 1, clusterRunner.NumCalls())
	call := clusterRunner.Calls[0]
	assert.Equal([]string{"sbatch", "--wait"}, call[:2])
	script, err := os.ReadFile(call[2])
	assert.Nil(err)
	assert.Contains(string(script), "--input="+filepath.Join(ws.DataDir, "exaSPIM"))
	assert.Contains(string(script), "--output="+zarrOut)
	assert.Contains(string(script), "--n_levels=3")

	// the link and metadata land in the dataset and are uploaded with it
	for _, name := range []string{"process_output.json", "subject.json", "procedures.json",
		"data_description.json"} {
		assert.FileExists(filepath.Join(ws.DataDir, name))
		assert.FileExists(filepath.Join(ws.DestDir, name))
	}
	assert.FileExists(filepath.Join(ws.DestDir, "derivatives", "settings.yml"))
	assert.FileExists(filepath.Join(ws.DestDir, upload.ManifestFile))
	assert.NoDirExists(filepath.Join(ws.DestDir, "exaSPIM"))
	link, err := os.ReadFile(filepath.Join(ws.DataDir, "process_output.json"))
	assert.Nil(err)
	assert.Contains(string(link), "zarr://"+zarrOut+"/tile_1")

	// the run is journaled with its manifest
	assert.NotNil(record.Manifest)
	journaled, err := journal.JobRecord(record.Id)
	assert.Nil(err)
	assert.Equal(record.Stages, journaled.Stages)
	assert.Equal(journal.StatusSucceeded, journaled.Status)
	assert.NotNil(journaled.Manifest)
}

func TestRunTranscodeWithoutWaiting(t *testing.T) {
	assert := assert.New(t)
	ws := newWorkspace(t, "exaSPIM")
	initConfig(t, ws, "", []string{StageTranscode}, `    queue: gpu
  exclude:
    - "*tile_1*"
`)
	clusterRunner := &jobtest.Runner{JobId: 99}
	record, err := testRunner(clusterRunner).Run(context.Background())
	assert.Nil(err)
	assert.Equal([]string{StageTranscode}, record.Stages)
	require.Equal(t, 1, clusterRunner.NumCalls())
	assert.Equal(2, len(clusterRunner.Calls[0]))
	assert.NotContains(clusterRunner.Calls[0], "--wait")

	script, err := os.ReadFile(clusterRunner.Calls[0][1])
	assert.Nil(err)
	assert.Contains(string(script), "#SBATCH --partition=gpu")
	assert.Contains(string(script), "--exclude '*tile_1*'")
}

func TestRunResumeSkipsWrittenTiles(t *testing.T) {
	assert := assert.New(t)
	ws := newWorkspace(t, "exaSPIM")
	initConfig(t, ws, "", []string{StageTranscode}, "  resume: true\n")
	zarrOut := filepath.Join(ws.DestDir, "exaSPIM.zarr")
	require.Nil(t, jobtest.WriteZarrStore(zarrOut, []string{"tile_0", "tile_1"}, 3))

	clusterRunner := &jobtest.Runner{JobId: 1}
	record, err := testRunner(clusterRunner).Run(context.Background())
	assert.Nil(err)
	assert.Equal(journal.StatusSucceeded, record.Status)
	assert.Equal(0, clusterRunner.NumCalls())

	// with a tile unfinished, the job is resubmitted
	require.Nil(t, os.RemoveAll(filepath.Join(zarrOut, "tile_1", "2")))
	_, err = testRunner(clusterRunner).Run(context.Background())
	assert.Nil(err)
	assert.Equal(1, clusterRunner.NumCalls())
}

func TestRunTranscodeFailure(t *testing.T) {
	assert := assert.New(t)
	ws := newWorkspace(t, "exaSPIM")
	initConfig(t, ws, "", []string{StageTranscode, StageCreateNgLink}, "")
	clusterRunner := &jobtest.Runner{
		Output: "sbatch: error: invalid partition specified: aind",
		Err:    fmt.Errorf("exit status 1"),
	}
	record, err := testRunner(clusterRunner).Run(context.Background())
	var stageErr *StageError
	assert.True(errors.As(err, &stageErr))
	assert.Equal(StageTranscode, stageErr.Stage)
	var submissionErr *cluster.SubmissionError
	assert.True(errors.As(err, &submissionErr))
	assert.Equal(journal.StatusFailed, record.Status)
	assert.True(strings.Contains(record.Message, "transcode"))
	assert.Equal(0, len(record.Stages))
	assert.NoFileExists(filepath.Join(ws.DataDir, "process_output.json"))
}

// tests whether a failed link stage is logged and the remaining stages run
func TestRunContinuesAfterLinkFailure(t *testing.T) {
	assert := assert.New(t)
	ws := newWorkspace(t, "exaSPIM")

	// no store to link to
	initConfig(t, ws, "", []string{StageCreateNgLink, StageUploadAuxFiles}, "")
	record, err := testRunner(&jobtest.Runner{}).Run(context.Background())
	assert.Nil(err)
	assert.Equal(journal.StatusSucceeded, record.Status)
	assert.Equal([]string{StageUploadAuxFiles}, record.Stages)
	assert.NoFileExists(filepath.Join(ws.DataDir, "process_output.json"))
	assert.FileExists(filepath.Join(ws.DestDir, upload.ManifestFile))

	// an inverted intensity range
	zarrOut := filepath.Join(ws.DestDir, "exaSPIM.zarr")
	require.Nil(t, jobtest.WriteZarrStore(zarrOut, []string{"tile_0"}, 3))
	initConfig(t, ws, "", []string{StageCreateNgLink, StageUploadAuxFiles},
		"create_ng_link_job:\n  vmin: 600\n  vmax: 500\n")
	record, err = testRunner(&jobtest.Runner{}).Run(context.Background())
	assert.Nil(err)
	assert.Equal([]string{StageUploadAuxFiles}, record.Stages)
	assert.NoFileExists(filepath.Join(ws.DataDir, "process_output.json"))
}

func TestRunWithoutImages(t *testing.T) {
	ws := newWorkspace(t, "exaSPIM")
	initConfig(t, ws, "", []string{StageTranscode}, `  exclude:
    - "*.ims"
`)
	_, err := testRunner(&jobtest.Runner{}).Run(context.Background())
	var noImages *NoImagesError
	assert.True(t, errors.As(err, &noImages))
}

func TestRunMetadataSkippedForMesoSPIM(t *testing.T) {
	assert := assert.New(t)
	service := jobtest.NewMetadataService()
	defer service.Close()
	ws := newWorkspace(t, "micr")
	initConfig(t, ws, service.URL, []string{StageCreateMetadata}, "")

	record, err := testRunner(&jobtest.Runner{}).Run(context.Background())
	assert.Nil(err)
	assert.Equal([]string{StageCreateMetadata}, record.Stages)
	assert.NoFileExists(filepath.Join(ws.DataDir, "subject.json"))
}

func TestRunMetadataServiceMissingSubject(t *testing.T) {
	assert := assert.New(t)
	service := jobtest.NewMetadataService()
	defer service.Close()
	root := t.TempDir()
	dataDir := filepath.Join(root, "exaSPIM_000001_2023-05-06_10-21-43")
	require.Nil(t, os.MkdirAll(filepath.Join(dataDir, "exaSPIM"), 0755))
	initConfig(t, workspace{DataDir: dataDir, DestDir: filepath.Join(root, "dest"),
		RunDir: filepath.Join(root, "runs")}, service.URL, []string{StageCreateMetadata}, "")

	record, err := testRunner(&jobtest.Runner{}).Run(context.Background())
	assert.NotNil(err)
	assert.Equal(journal.StatusFailed, record.Status)
}

func TestRunPrerequisites(t *testing.T) {
	assert := assert.New(t)
	ws := newWorkspace(t, "exaSPIM")

	// no metadata service
	initConfig(t, ws, "", []string{StageCreateMetadata}, "")
	_, err := testRunner(&jobtest.Runner{}).Run(context.Background())
	var prereqErr *PrerequisiteError
	assert.True(errors.As(err, &prereqErr))
	assert.Equal(StageCreateMetadata, prereqErr.Stage)

	// no run directory
	initConfig(t, workspace{DataDir: ws.DataDir, DestDir: ws.DestDir}, "",
		[]string{StageTranscode}, "")
	_, err = testRunner(&jobtest.Runner{}).Run(context.Background())
	assert.True(errors.As(err, &prereqErr))
	assert.Equal(StageTranscode, prereqErr.Stage)

	// no destination for the link stage to read the store from
	initConfig(t, workspace{DataDir: ws.DataDir, RunDir: ws.RunDir}, "",
		[]string{StageCreateNgLink}, "")
	record, err := testRunner(&jobtest.Runner{}).Run(context.Background())
	assert.True(errors.As(err, &prereqErr))
	assert.Equal(StageCreateNgLink, prereqErr.Stage)
	assert.Equal(journal.StatusFailed, record.Status)

	// no raw data
	initConfig(t, workspace{DataDir: filepath.Join(ws.DataDir, "missing"), DestDir: ws.DestDir},
		"", []string{StageUploadAuxFiles}, "")
	record, err = testRunner(&jobtest.Runner{}).Run(context.Background())
	assert.True(errors.As(err, &prereqErr))
	assert.Equal(StageUploadAuxFiles, prereqErr.Stage)
	assert.Equal(journal.StatusFailed, record.Status)

	// an unrecognized dataset layout
	initConfig(t, workspace{DataDir: t.TempDir(), DestDir: ws.DestDir}, "",
		[]string{StageUploadAuxFiles}, "")
	_, err = testRunner(&jobtest.Runner{}).Run(context.Background())
	assert.NotNil(err)
}

func TestRunCanceled(t *testing.T) {
	assert := assert.New(t)
	ws := newWorkspace(t, "exaSPIM")
	initConfig(t, ws, "", []string{StageUploadAuxFiles}, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	record, err := testRunner(&jobtest.Runner{}).Run(ctx)
	assert.True(errors.Is(err, context.Canceled))
	assert.Equal(journal.StatusCanceled, record.Status)
	assert.Equal(0, len(record.Stages))
}

// temporary testing directory
var TESTING_DIR string
