package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const subjectSchema = `{
  "type": "object",
  "required": ["subject_id"],
  "properties": {
    "subject_id": {"type": "string"}
  }
}`

// a stand-in for the metadata service
func newService(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/subject/653431", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message": "Valid Model.", "data": {"subject_id": "653431", "sex": "Male"}}`))
	})
	mux.HandleFunc("/procedures/653431", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotAcceptable)
		w.Write([]byte(`{"message": "Validation Errors", "data": {"subject_id": "653431", "subject_procedures": []}}`))
	})
	mux.HandleFunc("/subject/000000", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message": "No data found!", "data": null}`))
	})
	mux.HandleFunc("/subject/111111", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message": "Valid Model.", "data": {"subject_id": 111111}}`))
	})
	mux.HandleFunc("/procedures/000000", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "database unavailable", http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestSecureHttpClient(t *testing.T) {
	client := SecureHttpClient(time.Second * 10)
	assert.Equal(t, time.Second*10, client.Timeout)
	assert.NotNil(t, client.Transport)

	secure := &http.Request{URL: &url.URL{Scheme: "https", Host: "example.com", Path: "/"}}
	insecure := &http.Request{URL: &url.URL{Scheme: "http", Host: "example.com", Path: "/"}}
	secureTarget := &http.Request{URL: &url.URL{Scheme: "https", Host: "redirect.com", Path: "/"}}
	insecureTarget := &http.Request{URL: &url.URL{Scheme: "http", Host: "redirect.com", Path: "/"}}

	assert.Nil(t, client.CheckRedirect(secureTarget, []*http.Request{secure}))
	assert.Nil(t, client.CheckRedirect(secureTarget, []*http.Request{insecure}))
	assert.Nil(t, client.CheckRedirect(insecureTarget, []*http.Request{insecure}))

	err := client.CheckRedirect(insecureTarget, []*http.Request{secure})
	assert.IsType(t, &DowngradedRedirectError{}, err)
	assert.Equal(t, "redirect.com/", err.(*DowngradedRedirectError).Endpoint)
}

func TestParseDatasetName(t *testing.T) {
	assert := assert.New(t)
	name, err := ParseDatasetName("/allen/exaSPIM_653431_2023-05-06_10-21-43/")
	assert.Nil(err)
	assert.Equal("exaSPIM", name.Modality)
	assert.Equal("653431", name.SubjectId)
	assert.Equal(time.Date(2023, 5, 6, 10, 21, 43, 0, time.UTC), name.Acquired)

	for _, bad := range []string{"exaSPIM_653431", "exaSPIM_653431_2023-13-06_10-21-43", "data"} {
		_, err = ParseDatasetName(bad)
		var nameErr *DatasetNameError
		assert.True(errors.As(err, &nameErr), bad)
	}
}

func TestClient(t *testing.T) {
	assert := assert.New(t)
	service := newService(t)
	client := NewClient(service.URL + "/")
	ctx := context.Background()

	subject, err := client.Subject(ctx, "653431")
	assert.Nil(err)
	assert.JSONEq(`{"subject_id": "653431", "sex": "Male"}`, string(subject))

	procedures, err := client.Procedures(ctx, "653431")
	assert.Nil(err)
	assert.JSONEq(`{"subject_id": "653431", "subject_procedures": []}`, string(procedures))

	_, err = client.Subject(ctx, "000000")
	var noData *NoDataError
	assert.True(errors.As(err, &noData))
	assert.Equal(SubjectKind, noData.Kind)

	_, err = client.Procedures(ctx, "000000")
	var serviceErr *ServiceError
	assert.True(errors.As(err, &serviceErr))
	assert.Equal(http.StatusInternalServerError, serviceErr.StatusCode)
	assert.Equal("database unavailable", serviceErr.Message)
}

func TestWriter(t *testing.T) {
	assert := assert.New(t)
	service := newService(t)
	dataDir := filepath.Join(t.TempDir(), "exaSPIM_653431_2023-05-06_10-21-43")
	require.Nil(t, os.Mkdir(dataDir, 0755))
	schemaDir := t.TempDir()
	require.Nil(t, os.WriteFile(filepath.Join(schemaDir, SubjectFile), []byte(subjectSchema), 0644))

	writer, err := NewWriter(dataDir, service.URL, schemaDir)
	require.Nil(t, err)
	ctx := context.Background()
	assert.Nil(writer.WriteSubject(ctx, dataDir))
	assert.Nil(writer.WriteProcedures(ctx, dataDir))
	assert.Nil(writer.WriteDataDescription(ctx, dataDir))

	data, err := os.ReadFile(filepath.Join(dataDir, SubjectFile))
	assert.Nil(err)
	assert.JSONEq(`{"subject_id": "653431", "sex": "Male"}`, string(data))

	data, err = os.ReadFile(filepath.Join(dataDir, DataDescriptionFile))
	assert.Nil(err)
	var description DataDescription
	assert.Nil(json.Unmarshal(data, &description))
	assert.Equal("exaSPIM_653431_2023-05-06_10-21-43", description.Name)
	assert.Equal("2023-05-06", description.CreationDate)
	assert.Equal("10:21:43", description.CreationTime)

	// a subject record that violates the schema isn't written
	badDir := filepath.Join(t.TempDir(), "exaSPIM_111111_2023-05-06_10-21-43")
	require.Nil(t, os.Mkdir(badDir, 0755))
	writer, err = NewWriter(badDir, service.URL, schemaDir)
	require.Nil(t, err)
	err = writer.WriteSubject(ctx, badDir)
	var violation *SchemaViolationError
	assert.True(errors.As(err, &violation))
	assert.NoFileExists(filepath.Join(badDir, SubjectFile))
}

func TestNewWriterRejectsBadNames(t *testing.T) {
	_, err := NewWriter("/data/raw", "http://localhost", "")
	assert.NotNil(t, err)
}

func TestValidatorWithoutSchemas(t *testing.T) {
	validator := NewValidator("")
	assert.Nil(t, validator.Validate(SubjectFile, []byte(`{"anything": 1}`)))

	validator = NewValidator(t.TempDir())
	assert.Nil(t, validator.Validate(ProceduresFile, []byte(`{}`)))
}
