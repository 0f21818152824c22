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

// This package builds the OME-Zarr transcode command for a dataset and
// provides the file-level helpers the transcoder relies on.
package transcode

import (
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/aind/transcode/compression"
	"github.com/aind/transcode/config"
)

// downsampling factor between pyramid levels (X, Y and Z)
const ScaleFactor = 2

// the OME-Zarr writer invoked on the cluster
var WriterCommand = []string{"python", "-m", "aind_data_transfer.transcode.write_ome_zarr"}

// Returns the location of the Zarr store for the given raw image directory
// beneath the destination.
func ZarrOutput(destDataDir, rawImageDir string) string {
	name := filepath.Base(rawImageDir) + ".zarr"
	if strings.Contains(destDataDir, "://") { // cloud URL
		return strings.TrimSuffix(destDataDir, "/") + "/" + name
	}
	return filepath.Join(destDataDir, name)
}

// Builds the argument vector for the OME-Zarr writer that transcodes the
// images in rawImageDir into the store at zarrOut.
func BuildCommand(rawImageDir, zarrOut string, job config.TranscodeJobConfig) ([]string, error) {
	opts, err := compression.ResolveOptions(job)
	if err != nil {
		return nil, err
	}

	cmd := append([]string{}, WriterCommand...)
	cmd = append(cmd,
		"--input="+rawImageDir,
		"--output="+zarrOut,
		"--codec="+opts.Cname,
		"--clevel="+strconv.Itoa(opts.Clevel),
		"--n_levels="+strconv.Itoa(job.NLevels),
		"--chunk_size="+strconv.Itoa(job.ChunkSize),
		"--scale_factor="+strconv.Itoa(ScaleFactor),
		"--deployment=slurm",
	)
	if len(job.ChunkShape) > 0 {
		cmd = append(cmd, "--chunk_shape")
		for _, n := range job.ChunkShape {
			cmd = append(cmd, strconv.Itoa(n))
		}
	}
	if len(job.Exclude) > 0 {
		cmd = append(cmd, "--exclude")
		cmd = append(cmd, job.Exclude...)
	}
	if job.Resume {
		cmd = append(cmd, "--resume")
	}
	if job.Voxsize != "" {
		if _, err := config.ParseVoxelSize(job.Voxsize); err != nil {
			return nil, err
		}
		cmd = append(cmd, "--voxsize", job.Voxsize)
	}
	return cmd, nil
}

// Returns true if the given path (or its base name) matches any of the given
// shell-style patterns. As with fnmatch, "*" and "?" also match "/".
func Excluded(filePath string, patterns []string) bool {
	filePath = filepath.ToSlash(filePath)
	base := path.Base(filePath)
	for _, pattern := range patterns {
		re, err := patternRegexp(pattern)
		if err != nil {
			slog.Debug(fmt.Sprintf("Ignoring exclude pattern %q: %s", pattern, err.Error()))
			continue
		}
		if re.MatchString(filePath) || re.MatchString(base) {
			return true
		}
	}
	return false
}

// translates a shell-style pattern ("*", "?", "[seq]", "[!seq]") into an
// anchored regular expression
func patternRegexp(pattern string) (*regexp.Regexp, error) {
	runes := []rune(pattern)
	var b strings.Builder
	b.WriteString(`(?s)^`)
	for i := 0; i < len(runes); i++ {
		switch c := runes[i]; c {
		case '*':
			b.WriteString(`.*`)
		case '?':
			b.WriteString(`.`)
		case '[':
			j := i + 1
			if j < len(runes) && runes[j] == '!' {
				j++
			}
			if j < len(runes) && runes[j] == ']' {
				j++
			}
			for j < len(runes) && runes[j] != ']' {
				j++
			}
			if j >= len(runes) { // unterminated: a literal bracket
				b.WriteString(`\[`)
				continue
			}
			class := string(runes[i+1 : j])
			class = strings.NewReplacer(`\`, `\\`, `[`, `\[`, `]`, `\]`).Replace(class)
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			} else if strings.HasPrefix(class, "^") {
				class = `\` + class
			}
			b.WriteString("[" + class + "]")
			i = j
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString(`$`)
	return regexp.Compile(b.String())
}

// formats a chunk shape for log messages
func FormatShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, n := range shape {
		parts[i] = strconv.Itoa(n)
	}
	return fmt.Sprintf("(%s)", strings.Join(parts, ", "))
}
