package cluster

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aind/transcode/config"
)

// a Runner that records invocations and replies with canned output
type fakeRunner struct {
	Dir    string
	Name   string
	Args   []string
	Output string
	Err    error
}

func (r *fakeRunner) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	r.Dir, r.Name, r.Args = dir, name, args
	return []byte(r.Output), r.Err
}

func testSubmitArgs(t *testing.T) config.SubmitArgs {
	args := config.Defaults().TranscodeJob.SubmitArgs
	args.RunParentDir = t.TempDir()
	args.CondaActivate = "/opt/conda/bin/activate"
	args.CondaEnv = "nd-data-transfer"
	args.MailUser = "someone@example.com"
	return args
}

func TestGenerateRun(t *testing.T) {
	assert := assert.New(t)
	args := testSubmitArgs(t)
	run, err := GenerateRun(Submission{
		JobCommand: []string{"python", "write.py", "--exclude", "*.memento"},
		Args:       args,
	})
	require.Nil(t, err)

	assert.Equal(args.RunParentDir, filepath.Dir(run.Dir))
	assert.True(strings.HasPrefix(filepath.Base(run.Dir), "run-"+run.Id.String()[:8]))
	assert.Equal(filepath.Join(run.Dir, ScriptName), run.Script)

	data, err := os.ReadFile(run.Script)
	require.Nil(t, err)
	script := string(data)
	assert.True(strings.HasPrefix(script, "#!/bin/bash\n"))
	for _, line := range []string{
		"#SBATCH --job-name=transcode",
		"#SBATCH --nodes=8",
		"#SBATCH --ntasks-per-node=8",
		"#SBATCH --cpus-per-task=1",
		"#SBATCH --mem-per-cpu=3000M",
		"#SBATCH --time=72:00:00",
		"#SBATCH --tmp=8GB",
		"#SBATCH --partition=aind",
		"#SBATCH --mail-user=someone@example.com",
		"#SBATCH --output=" + run.Dir + "/output-%j.log",
		"source /opt/conda/bin/activate nd-data-transfer",
		"cd " + run.Dir,
		"python write.py --exclude '*.memento'",
	} {
		assert.Contains(script, line+"\n")
	}
}

func TestGenerateRunOmitsBlankDirectives(t *testing.T) {
	assert := assert.New(t)
	args := config.SubmitArgs{Nodes: 1, NTasksPerNode: 1, CpusPerTask: 1, MemPerCpu: 100,
		RunParentDir: t.TempDir()}
	run, err := GenerateRun(Submission{Name: "tiny", JobCommand: []string{"true"}, Args: args})
	require.Nil(t, err)
	data, err := os.ReadFile(run.Script)
	require.Nil(t, err)
	script := string(data)
	assert.Contains(script, "#SBATCH --job-name=tiny\n")
	assert.NotContains(script, "--time")
	assert.NotContains(script, "--partition")
	assert.NotContains(script, "--mail-user")
	assert.NotContains(script, "source ")
}

// tests whether paths and names with spaces are quoted in the batch script
func TestGenerateRunQuotesPaths(t *testing.T) {
	assert := assert.New(t)
	args := testSubmitArgs(t)
	args.RunParentDir = filepath.Join(args.RunParentDir, "my runs")
	args.CondaActivate = "/opt/my conda/bin/activate"
	run, err := GenerateRun(Submission{Name: "tile 0", JobCommand: []string{"true"}, Args: args})
	require.Nil(t, err)
	data, err := os.ReadFile(run.Script)
	require.Nil(t, err)
	script := string(data)
	for _, line := range []string{
		"#SBATCH --job-name='tile 0'",
		"#SBATCH --output='" + run.Dir + "/output-%j.log'",
		"#SBATCH --error='" + run.Dir + "/error-%j.log'",
		"source '/opt/my conda/bin/activate' nd-data-transfer",
		"cd '" + run.Dir + "'",
	} {
		assert.Contains(script, line+"\n")
	}
}

func TestGenerateRunRejectsBadSubmissions(t *testing.T) {
	assert := assert.New(t)
	_, err := GenerateRun(Submission{Args: testSubmitArgs(t)})
	var emptyErr *EmptyCommandError
	assert.True(errors.As(err, &emptyErr))

	_, err = GenerateRun(Submission{JobCommand: []string{"true"}})
	var noDirErr *NoRunDirectoryError
	assert.True(errors.As(err, &noDirErr))
}

func TestSubmit(t *testing.T) {
	assert := assert.New(t)
	runner := &fakeRunner{Output: "Submitted batch job 4242\n"}
	submitter := &Submitter{Runner: runner, Sbatch: "/usr/bin/sbatch"}

	run, err := submitter.Submit(context.Background(), Submission{
		JobCommand: []string{"true"},
		Args:       testSubmitArgs(t),
	})
	assert.Nil(err)
	assert.Equal("4242", run.JobId)
	assert.Equal("/usr/bin/sbatch", runner.Name)
	assert.Equal([]string{run.Script}, runner.Args)
	assert.Equal(run.Dir, runner.Dir)
}

func TestSubmitAndWait(t *testing.T) {
	runner := &fakeRunner{Output: "Submitted batch job 7\n"}
	submitter := &Submitter{Runner: runner}
	run, err := submitter.Submit(context.Background(), Submission{
		JobCommand: []string{"true"},
		Args:       testSubmitArgs(t),
		Wait:       true,
	})
	assert.Nil(t, err)
	assert.Equal(t, "sbatch", runner.Name)
	assert.Equal(t, []string{"--wait", run.Script}, runner.Args)
}

func TestSubmitReportsFailures(t *testing.T) {
	assert := assert.New(t)

	// the scheduler refuses the job
	runner := &fakeRunner{Output: "sbatch: error: invalid partition\n", Err: errors.New("exit status 1")}
	_, err := (&Submitter{Runner: runner}).Submit(context.Background(), Submission{
		JobCommand: []string{"true"},
		Args:       testSubmitArgs(t),
	})
	var subErr *SubmissionError
	if assert.True(errors.As(err, &subErr)) {
		assert.Equal("sbatch: error: invalid partition", subErr.Output)
	}

	// the scheduler says something unexpected
	runner = &fakeRunner{Output: "hello\n"}
	_, err = (&Submitter{Runner: runner}).Submit(context.Background(), Submission{
		JobCommand: []string{"true"},
		Args:       testSubmitArgs(t),
	})
	assert.True(errors.As(err, &subErr))
}

func TestJoinCommand(t *testing.T) {
	assert := assert.New(t)
	assert.Equal("python -m w --input=/a/b --n_levels=8", JoinCommand([]string{"python", "-m", "w", "--input=/a/b", "--n_levels=8"}))
	assert.Equal(`echo 'a b' '*.tif' 'it'"'"'s'`, JoinCommand([]string{"echo", "a b", "*.tif", "it's"}))
	assert.Equal("--output=s3://bucket/x.zarr", JoinCommand([]string{"--output=s3://bucket/x.zarr"}))
}
