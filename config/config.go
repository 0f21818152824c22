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

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"
)

// global config variables, set by Init
var Endpoints EndpointsConfig
var Jobs JobsConfig
var Data DataConfig
var TranscodeJob TranscodeJobConfig
var CreateNgLinkJob NgLinkJobConfig
var UploadJob UploadJobConfig

// This helper overlays the given YAML data onto the built-in defaults,
// returning the resulting configuration. All environment variables of the form
// ${ENV_VAR} are expanded first.
func readConfig(data []byte) (Configuration, error) {
	// Before we do anything else, expand any provided environment variables.
	data = []byte(os.ExpandEnv(string(data)))

	conf := Defaults()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	err := decoder.Decode(&conf)
	if err != nil && !errors.Is(err, io.EOF) { // an empty document leaves defaults in place
		slog.Error(fmt.Sprintf("Couldn't parse configuration data: %s", err.Error()))
		return Configuration{}, &ParseError{Message: err.Error()}
	}
	if err == nil {
		// yaml.v3 truncates floats decoded into integer fields, so check the
		// scalar tags against the destination types
		var doc yaml.Node
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return Configuration{}, &ParseError{Message: err.Error()}
		}
		if err := checkIntegers(&doc, reflect.TypeOf(conf), ""); err != nil {
			slog.Error(fmt.Sprintf("Couldn't parse configuration data: %s", err.Error()))
			return Configuration{}, err
		}
	}
	normalize(&conf)
	return conf, nil
}

// returns a ParseError if a non-integer scalar is given for an integer field
// of the given type
func checkIntegers(node *yaml.Node, t reflect.Type, path string) error {
	for node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	if node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	switch t.Kind() {
	case reflect.Struct:
		if node.Kind != yaml.MappingNode {
			return nil
		}
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i].Value
			field, found := fieldByYAMLName(t, key)
			if !found {
				continue
			}
			if err := checkIntegers(node.Content[i+1], field.Type, joinPath(path, key)); err != nil {
				return err
			}
		}
	case reflect.Slice:
		if node.Kind != yaml.SequenceNode {
			return nil
		}
		for i, item := range node.Content {
			if err := checkIntegers(item, t.Elem(), fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if node.Kind != yaml.ScalarNode {
			return nil
		}
		if tag := node.ShortTag(); tag != "!!int" && tag != "!!null" {
			return &ParseError{
				Message: fmt.Sprintf("%s: %s is not an integer", path, node.Value),
			}
		}
	}
	return nil
}

func fieldByYAMLName(t reflect.Type, name string) (reflect.StructField, bool) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0] == name {
			return field, true
		}
	}
	return reflect.StructField{}, false
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// brings equivalent representations of absent fields into a single form
func normalize(conf *Configuration) {
	if conf.TranscodeJob.Exclude == nil {
		conf.TranscodeJob.Exclude = []string{}
	}
	if len(conf.TranscodeJob.ChunkShape) == 0 {
		conf.TranscodeJob.ChunkShape = nil
	}
	// an explicit null leaves the defaults in place, as an absent entry does
	if conf.TranscodeJob.Compressor.Kwargs == nil {
		conf.TranscodeJob.Compressor.Kwargs = Defaults().TranscodeJob.Compressor.Kwargs
	}
	for key, value := range conf.TranscodeJob.Compressor.Kwargs {
		if f, ok := value.(float64); ok && f == math.Trunc(f) && math.Abs(f) < math.MaxInt32 {
			conf.TranscodeJob.Compressor.Kwargs[key] = int(f)
		}
	}
	conf.Endpoints.DestDataDir = trimTrailingSlash(conf.Endpoints.DestDataDir)
}

func trimTrailingSlash(dir string) string {
	if len(dir) > 1 && strings.HasSuffix(dir, "/") {
		return dir[:len(dir)-1]
	}
	return dir
}

// Parses the given YAML job configuration, overlaying it onto the built-in
// defaults and validating the result. The package globals are not touched.
func Parse(yamlData []byte) (Configuration, error) {
	conf, err := readConfig(yamlData)
	if err != nil {
		return conf, err
	}
	if err = validateConfig(conf); err != nil {
		return Configuration{}, err
	}
	if conf.CreateNgLinkJob.Vmin >= conf.CreateNgLinkJob.Vmax {
		slog.Warn(fmt.Sprintf("create_ng_link_job: vmin (%g) is not less than vmax (%g)",
			conf.CreateNgLinkJob.Vmin, conf.CreateNgLinkJob.Vmax))
	}
	return conf, nil
}

// Initializes the job configuration using the given YAML byte data.
func Init(yamlData []byte) error {
	conf, err := Parse(yamlData)
	if err != nil {
		return err
	}

	// copy the config data into place
	Endpoints = conf.Endpoints
	Jobs = conf.Jobs
	Data = conf.Data
	TranscodeJob = conf.TranscodeJob
	CreateNgLinkJob = conf.CreateNgLinkJob
	UploadJob = conf.UploadJob
	return nil
}

// Returns the configuration currently held in the package globals.
func Current() Configuration {
	return Configuration{
		Endpoints:       Endpoints,
		Jobs:            Jobs,
		Data:            Data,
		TranscodeJob:    TranscodeJob,
		CreateNgLinkJob: CreateNgLinkJob,
		UploadJob:       UploadJob,
	}
}

// Serializes the given configuration to its YAML document form. Parsing the
// result yields an equivalent configuration.
func Marshal(conf Configuration) ([]byte, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(conf); err != nil {
		return nil, err
	}
	if err := encoder.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// values given on the command line that take precedence over the file
type Overrides struct {
	RawDataDir  string
	DestDataDir string
}

// Applies non-empty overrides to the global configuration.
func ApplyOverrides(o Overrides) {
	if o.RawDataDir != "" {
		Endpoints.RawDataDir = o.RawDataDir
	}
	if o.DestDataDir != "" {
		Endpoints.DestDataDir = trimTrailingSlash(o.DestDataDir)
	}
}
