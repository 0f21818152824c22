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

package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema"
)

// A Validator checks metadata documents against JSON schemas kept in a
// directory, one per document (subject.json is checked against
// <dir>/subject.json). Documents without a schema pass.
type Validator struct {
	Dir string

	mu      sync.Mutex
	schemas map[string]*jsonschema.Schema
}

// Creates a validator for the schemas in dir. A blank dir disables
// validation.
func NewValidator(dir string) *Validator {
	return &Validator{
		Dir:     dir,
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Validates the named document against its schema, if there is one.
func (v *Validator) Validate(document string, data []byte) error {
	schema, err := v.schema(document)
	if err != nil || schema == nil {
		return err
	}
	if err := schema.Validate(bytes.NewReader(data)); err != nil {
		var validationErr *jsonschema.ValidationError
		if errors.As(err, &validationErr) {
			return &SchemaViolationError{Document: document, Message: validationErr.Error()}
		}
		return err
	}
	return nil
}

// loads (and caches) the schema for the given document, returning nil if
// it has none
func (v *Validator) schema(document string) (*jsonschema.Schema, error) {
	if v.Dir == "" {
		return nil, nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if schema, found := v.schemas[document]; found {
		return schema, nil
	}

	path, err := filepath.Abs(filepath.Join(v.Dir, document))
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug(fmt.Sprintf("No schema for %s in %s", document, v.Dir))
			v.schemas[document] = nil
			return nil, nil
		}
		return nil, err
	}
	schemaURL := "file://" + filepath.ToSlash(path)
	if !strings.HasPrefix(filepath.ToSlash(path), "/") {
		schemaURL = "file:///" + filepath.ToSlash(path)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(data)); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, err
	}
	v.schemas[document] = schema
	return schema, nil
}
