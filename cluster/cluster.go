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

// This package submits jobs to a SLURM cluster. Each submission gets its own
// run directory holding a generated batch script and the job's logs.
package cluster

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"

	"github.com/google/uuid"

	"github.com/aind/transcode/config"
)

// name of the batch script within a run directory
const ScriptName = "job.sh"

// This type runs external commands. It exists so that tests can stand in for
// the scheduler.
type Runner interface {
	// runs the named program with the given arguments in the given directory,
	// returning its combined output
	Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error)
}

// runs commands with os/exec
type ExecRunner struct{}

func (r ExecRunner) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// a job to be submitted
type Submission struct {
	// descriptive job name (default: "transcode")
	Name string
	// the command run by the job
	JobCommand []string
	// scheduler resource arguments
	Args config.SubmitArgs
	// if true, Submit blocks until the job terminates
	Wait bool
}

// a submitted (or generated) run
type Run struct {
	Id     uuid.UUID
	Dir    string // run directory
	Script string // path of the batch script
	JobId  string // scheduler job ID (set once submitted)
}

var batchScript = template.Must(template.New("job").Funcs(template.FuncMap{
	"quote": quoteArg,
}).Parse(`#!/bin/bash
#SBATCH --job-name={{quote .Name}}
#SBATCH --nodes={{.Args.Nodes}}
#SBATCH --ntasks-per-node={{.Args.NTasksPerNode}}
#SBATCH --cpus-per-task={{.Args.CpusPerTask}}
#SBATCH --mem-per-cpu={{.Args.MemPerCpu}}M
{{- if .Args.Walltime}}
#SBATCH --time={{.Args.Walltime}}
{{- end}}
{{- if .Args.TmpSpace}}
#SBATCH --tmp={{.Args.TmpSpace}}
{{- end}}
{{- if .Args.Queue}}
#SBATCH --partition={{.Args.Queue}}
{{- end}}
{{- if .Args.MailUser}}
#SBATCH --mail-type=END,FAIL
#SBATCH --mail-user={{.Args.MailUser}}
{{- end}}
#SBATCH --output={{quote .Output}}
#SBATCH --error={{quote .Error}}

set -e
{{- if .Args.CondaActivate}}
source {{quote .Args.CondaActivate}}{{if .Args.CondaEnv}} {{quote .Args.CondaEnv}}{{end}}
{{- end}}
export HDF5_USE_FILE_LOCKING=FALSE
export OMP_NUM_THREADS=1
export MALLOC_TRIM_THRESHOLD_=0

cd {{quote .Dir}}
{{.Command}}
`))

// Creates a run directory beneath the submission's run parent directory and
// writes the batch script for the submission into it.
func GenerateRun(sub Submission) (Run, error) {
	if len(sub.JobCommand) == 0 {
		return Run{}, &EmptyCommandError{}
	}
	if sub.Args.RunParentDir == "" {
		return Run{}, &NoRunDirectoryError{}
	}
	name := sub.Name
	if name == "" {
		name = "transcode"
	}

	run := Run{Id: uuid.New()}
	run.Dir = filepath.Join(sub.Args.RunParentDir, "run-"+run.Id.String())
	if err := os.MkdirAll(run.Dir, 0755); err != nil {
		return Run{}, err
	}

	var script bytes.Buffer
	err := batchScript.Execute(&script, map[string]any{
		"Name":    name,
		"Args":    sub.Args,
		"Dir":     run.Dir,
		"Output":  filepath.Join(run.Dir, "output-%j.log"),
		"Error":   filepath.Join(run.Dir, "error-%j.log"),
		"Command": JoinCommand(sub.JobCommand),
	})
	if err != nil {
		return Run{}, err
	}
	run.Script = filepath.Join(run.Dir, ScriptName)
	if err := os.WriteFile(run.Script, script.Bytes(), 0755); err != nil {
		return Run{}, err
	}
	return run, nil
}

// This type submits jobs to SLURM via sbatch.
type Submitter struct {
	Runner Runner
	// the sbatch program (default: "sbatch")
	Sbatch string
}

// creates a submitter that runs the real sbatch
func NewSubmitter() *Submitter {
	return &Submitter{
		Runner: ExecRunner{},
		Sbatch: "sbatch",
	}
}

var jobIdRegexp = regexp.MustCompile(`Submitted batch job (\d+)`)

// Generates a run for the given submission and hands its batch script to the
// scheduler. If the submission asks to wait, Submit returns only once the job
// has terminated, and a failed job is reported as an error.
func (s *Submitter) Submit(ctx context.Context, sub Submission) (Run, error) {
	run, err := GenerateRun(sub)
	if err != nil {
		return run, err
	}

	sbatch := s.Sbatch
	if sbatch == "" {
		sbatch = "sbatch"
	}
	args := make([]string, 0, 2)
	if sub.Wait {
		args = append(args, "--wait")
	}
	args = append(args, run.Script)

	slog.Info(fmt.Sprintf("Submitting %s (run directory: %s)", run.Script, run.Dir))
	output, err := s.Runner.Run(ctx, run.Dir, sbatch, args...)
	if match := jobIdRegexp.FindSubmatch(output); match != nil {
		run.JobId = string(match[1])
	}
	if err != nil {
		return run, &SubmissionError{
			Script: run.Script,
			Output: strings.TrimSpace(string(output)),
			Err:    err,
		}
	}
	if run.JobId == "" {
		return run, &SubmissionError{
			Script: run.Script,
			Output: strings.TrimSpace(string(output)),
			Err:    fmt.Errorf("no job ID in scheduler output"),
		}
	}
	slog.Info(fmt.Sprintf("Submitted job %s", run.JobId))
	return run, nil
}

// shell-safe characters that need no quoting
var plainArgRegexp = regexp.MustCompile(`^[A-Za-z0-9_./=:,+@%-]+$`)

// Joins the given arguments into a single shell command line, quoting any
// argument that needs it.
func JoinCommand(args []string) string {
	quoted := make([]string, len(args))
	for i, arg := range args {
		quoted[i] = quoteArg(arg)
	}
	return strings.Join(quoted, " ")
}

func quoteArg(arg string) string {
	if plainArgRegexp.MatchString(arg) {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'"'"'`) + "'"
}
