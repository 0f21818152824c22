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
	"errors"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// SLURM time limit: [days-]hours:minutes:seconds
var walltimeRegexp = regexp.MustCompile(`^(\d+-)?\d{1,3}:[0-5]\d:[0-5]\d$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// report fields by their YAML names
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	v.RegisterValidation("walltime", func(fl validator.FieldLevel) bool {
		return walltimeRegexp.MatchString(fl.Field().String())
	})
	v.RegisterValidation("voxsize", func(fl validator.FieldLevel) bool {
		_, err := ParseVoxelSize(fl.Field().String())
		return err == nil
	})
	return v
}

// Parses a voxel size given as "x,y,z" into ZYX order. Values left out at the
// end default to 1.
func ParseVoxelSize(voxsize string) ([]float64, error) {
	fields := strings.Split(voxsize, ",")
	if len(fields) > 3 {
		return nil, &VoxelSizeError{Voxsize: voxsize}
	}
	xyz := []float64{1, 1, 1}
	for i, field := range fields {
		value, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil || value <= 0 {
			return nil, &VoxelSizeError{Voxsize: voxsize}
		}
		xyz[i] = value
	}
	return []float64{xyz[2], xyz[1], xyz[0]}, nil
}

// This helper validates the given configuration, returning an error that
// indicates success or failure.
func validateConfig(conf Configuration) error {
	err := validate.Struct(conf)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
		fe := fieldErrors[0]
		// drop the leading "Configuration." from the namespace
		field := fe.Namespace()
		if dot := strings.Index(field, "."); dot != -1 {
			field = field[dot+1:]
		}
		return &InvalidFieldError{
			Field: field,
			Rule:  fe.Tag(),
			Value: fe.Value(),
		}
	}
	return err
}
