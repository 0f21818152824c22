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

// This package resolves compressor settings for transcode jobs and provides
// zip archiving for auxiliary data (e.g. behavior videos).
package compression

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aind/transcode/config"
)

// Blosc shuffle modes
const (
	NoShuffle   = 0
	ByteShuffle = 1
	BitShuffle  = 2
	AutoShuffle = -1
)

// codecs understood by Blosc
var bloscCodecs = map[string]bool{
	"blosclz": true,
	"lz4":     true,
	"lz4hc":   true,
	"snappy":  true,
	"zlib":    true,
	"zstd":    true,
}

// resolved Blosc compression options for a transcode job
type Options struct {
	Cname   string // codec name
	Clevel  int    // compression level (0-9)
	Shuffle int    // shuffle mode
}

// Resolves compression options from the job's compressor kwargs, falling back
// to zstd, level 1, byte shuffle for anything left unspecified.
func ResolveOptions(job config.TranscodeJobConfig) (Options, error) {
	opts := Options{
		Cname:   "zstd",
		Clevel:  1,
		Shuffle: ByteShuffle,
	}
	kwargs := job.Compressor.Kwargs

	if value, found := kwargs["cname"]; found && value != nil {
		opts.Cname = strings.ToLower(fmt.Sprintf("%v", value))
	}
	if !bloscCodecs[opts.Cname] {
		return opts, &UnsupportedCodecError{Codec: opts.Cname}
	}

	if value, found := kwargs["clevel"]; found && value != nil {
		clevel, err := asInt(value)
		if err != nil || clevel < 0 || clevel > 9 {
			return opts, &InvalidKwargError{Name: "clevel", Value: value}
		}
		opts.Clevel = clevel
	}

	if value, found := kwargs["shuffle"]; found && value != nil {
		shuffle, err := asShuffle(value)
		if err != nil {
			return opts, &InvalidKwargError{Name: "shuffle", Value: value}
		}
		opts.Shuffle = shuffle
	}
	return opts, nil
}

// Returns the parameters recorded alongside per-tile metrics.
func (o Options) Params() map[string]any {
	return map[string]any{
		"name":    "blosc-" + o.Cname,
		"level":   o.Clevel,
		"shuffle": o.Shuffle,
	}
}

// YAML numbers arrive as int or float64; strings are accepted as well
func asInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("%g is not an integer", v)
		}
		return int(v), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(v))
	default:
		return 0, fmt.Errorf("%v is not an integer", value)
	}
}

func asShuffle(value any) (int, error) {
	if s, ok := value.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "noshuffle":
			return NoShuffle, nil
		case "shuffle":
			return ByteShuffle, nil
		case "bitshuffle":
			return BitShuffle, nil
		case "autoshuffle":
			return AutoShuffle, nil
		}
	}
	if b, ok := value.(bool); ok {
		if b {
			return ByteShuffle, nil
		}
		return NoShuffle, nil
	}
	shuffle, err := asInt(value)
	if err != nil {
		return 0, err
	}
	if shuffle < AutoShuffle || shuffle > BitShuffle {
		return 0, fmt.Errorf("unknown shuffle mode: %d", shuffle)
	}
	return shuffle, nil
}
