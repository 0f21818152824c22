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

// This package generates neuroglancer viewer links for transcoded Zarr
// stores.
package nglink

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// viewer that serves the generated links
const DefaultBaseURL = "https://neuroglancer-demo.appspot.com/"

// name of the file that receives the link and its state
const OutputFile = "process_output.json"

// shader mapping intensities in the normalized range onto grayscale
const grayscaleShader = "#uicontrol invlerp normalized\nvoid main() {\n  emitGrayscale(normalized());\n}\n"

// a range control for the shader's normalized intensities
type NormalizedControl struct {
	Range [2]float64 `json:"range"`
}

// an image layer within a neuroglancer state
type Layer struct {
	Type           string                       `json:"type"`
	Source         string                       `json:"source"`
	Name           string                       `json:"name"`
	Shader         string                       `json:"shader"`
	ShaderControls map[string]NormalizedControl `json:"shaderControls"`
	Visible        bool                         `json:"visible"`
}

// neuroglancer viewer state
type State struct {
	Layers          []Layer `json:"layers"`
	SelectedLayer   string  `json:"selectedLayer,omitempty"`
	Layout          string  `json:"layout"`
	ShowScaleBar    bool    `json:"showScaleBar"`
	ShowAxisLines   bool    `json:"showAxisLines"`
	CrossSectionBkg string  `json:"crossSectionBackgroundColor,omitempty"`
}

// the contents of process_output.json
type Output struct {
	Link  string `json:"ng_link"`
	State State  `json:"ng_state"`
}

// indicates an intensity range that can't be displayed
type RangeError struct {
	Vmin, Vmax float64
}

func (e RangeError) Error() string {
	return fmt.Sprintf("invalid intensity range [%g, %g]", e.Vmin, e.Vmax)
}

// Builds a viewer state with one image layer per tile of the Zarr store at
// zarrOut, each normalized to [vmin, vmax]. With no tiles, the store itself
// becomes the only layer.
func Build(zarrOut string, tiles []string, vmin, vmax float64) (State, error) {
	if vmin >= vmax {
		return State{}, &RangeError{Vmin: vmin, Vmax: vmax}
	}
	store := sourceURL(zarrOut)
	if len(tiles) == 0 {
		tiles = []string{""}
	}
	state := State{
		Layers:        make([]Layer, len(tiles)),
		Layout:        "4panel",
		ShowScaleBar:  true,
		ShowAxisLines: true,
	}
	for i, tile := range tiles {
		source, name := store, filepath.Base(strings.TrimSuffix(zarrOut, "/"))
		if tile != "" {
			source, name = store+"/"+tile, tile
		}
		state.Layers[i] = Layer{
			Type:   "image",
			Source: "zarr://" + source,
			Name:   name,
			Shader: grayscaleShader,
			ShaderControls: map[string]NormalizedControl{
				"normalized": {Range: [2]float64{vmin, vmax}},
			},
			Visible: true,
		}
	}
	state.SelectedLayer = state.Layers[0].Name
	return state, nil
}

// Returns a link that opens the state in the viewer at baseURL (or
// DefaultBaseURL if blank).
func (s State) URL(baseURL string) (string, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(baseURL, "/") + "/#!" + url.PathEscape(string(data)), nil
}

// Creates a link for the Zarr store at zarrOut and writes it, with its
// state, to process_output.json within outputDir.
func Create(zarrOut, outputDir string, vmin, vmax float64) (Output, error) {
	var tiles []string
	if !strings.Contains(zarrOut, "://") {
		var err error
		tiles, err = FindTiles(zarrOut)
		if err != nil {
			return Output{}, err
		}
	}
	state, err := Build(zarrOut, tiles, vmin, vmax)
	if err != nil {
		return Output{}, err
	}
	link, err := state.URL("")
	if err != nil {
		return Output{}, err
	}
	output := Output{Link: link, State: state}
	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return Output{}, err
	}
	outputFile := filepath.Join(outputDir, OutputFile)
	if err := os.WriteFile(outputFile, data, 0644); err != nil {
		return Output{}, err
	}
	slog.Info(fmt.Sprintf("Wrote neuroglancer link for %d layer(s) to %s",
		len(state.Layers), outputFile))
	return output, nil
}

// Returns the sorted names of the tile groups within a local Zarr store.
func FindTiles(zarrPath string) ([]string, error) {
	entries, err := os.ReadDir(zarrPath)
	if err != nil {
		return nil, err
	}
	tiles := make([]string, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		for _, marker := range []string{".zattrs", ".zgroup", "zarr.json"} {
			_, err := os.Stat(filepath.Join(zarrPath, entry.Name(), marker))
			if err == nil {
				tiles = append(tiles, entry.Name())
				break
			}
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		}
	}
	sort.Strings(tiles)
	return tiles, nil
}

// converts gs:// URLs to the HTTPS form the viewer fetches
func sourceURL(zarrOut string) string {
	zarrOut = strings.TrimSuffix(zarrOut, "/")
	if after, found := strings.CutPrefix(zarrOut, "gs://"); found {
		return "https://storage.googleapis.com/" + after
	}
	return zarrOut
}
