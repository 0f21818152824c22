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

// locations of the data and services a job talks to; any of these may be left
// blank and resolved elsewhere (e.g. on the command line)
type EndpointsConfig struct {
	// directory holding the raw dataset (auxiliary files + raw image directory)
	RawDataDir string `json:"raw_data_dir" yaml:"raw_data_dir,omitempty"`
	// destination for transcoded and auxiliary data (local path, s3:// or gs://)
	DestDataDir string `json:"dest_data_dir" yaml:"dest_data_dir,omitempty"`
	// directory of JSON schemas used to validate generated metadata
	MetadataSchemas string `json:"metadata_schemas" yaml:"metadata_schemas,omitempty"`
	// base URL of the metadata service
	MetadataServiceURL string `json:"metadata_service_url" yaml:"metadata_service_url,omitempty" validate:"omitempty,url"`
	// location of the code repository that produced the job
	CodeRepoLocation string `json:"code_repo_location" yaml:"code_repo_location,omitempty"`
}

// flags that select the pipeline stages to run
type JobsConfig struct {
	UploadAuxFiles bool `json:"upload_aux_files" yaml:"upload_aux_files"`
	Transcode      bool `json:"transcode" yaml:"transcode"`
	CreateNgLink   bool `json:"create_ng_link" yaml:"create_ng_link"`
	CreateMetadata bool `json:"create_metadata" yaml:"create_metadata"`
}

// information about the dataset itself
type DataConfig struct {
	// name of the imaging modality (e.g. "exaSPIM")
	Name string `json:"name" yaml:"name"`
}

// compressor selection for the transcode job
type CompressorConfig struct {
	// name of the compressor (e.g. "blosc")
	Name string `json:"compressor_name" yaml:"compressor_name"`
	// compressor keyword arguments (e.g. cname, clevel, shuffle)
	Kwargs map[string]any `json:"kwargs" yaml:"kwargs"`
}

// arguments passed to the cluster scheduler when the transcode job is
// submitted
type SubmitArgs struct {
	Nodes         int    `json:"nodes" yaml:"nodes" validate:"gt=0"`
	NTasksPerNode int    `json:"ntasks_per_node" yaml:"ntasks_per_node" validate:"gt=0"`
	CpusPerTask   int    `json:"cpus_per_task" yaml:"cpus_per_task" validate:"gt=0"`
	MemPerCpu     int    `json:"mem_per_cpu" yaml:"mem_per_cpu" validate:"gt=0"` // megabytes
	CondaActivate string `json:"conda_activate" yaml:"conda_activate,omitempty"`
	CondaEnv      string `json:"conda_env" yaml:"conda_env,omitempty"`
	RunParentDir  string `json:"run_parent_dir" yaml:"run_parent_dir,omitempty"`
	Walltime      string `json:"walltime" yaml:"walltime,omitempty" validate:"omitempty,walltime"`
	TmpSpace      string `json:"tmp_space" yaml:"tmp_space,omitempty"`
	MailUser      string `json:"mail_user" yaml:"mail_user,omitempty" validate:"omitempty,email"`
	Queue         string `json:"queue" yaml:"queue,omitempty"`
}

// parameters for the transcode (OME-Zarr conversion) job
type TranscodeJobConfig struct {
	Compressor CompressorConfig `json:"compressor" yaml:"compressor"`
	// target chunk size in megabytes
	ChunkSize int `json:"chunk_size" yaml:"chunk_size" validate:"gt=0"`
	// explicit chunk shape (TCZYX, trailing dims); nil means infer from ChunkSize
	ChunkShape []int `json:"chunk_shape" yaml:"chunk_shape,omitempty" validate:"omitempty,min=1,max=5,dive,gt=0"`
	// skip tiles that have already been written
	Resume bool `json:"resume" yaml:"resume"`
	// number of pyramid levels
	NLevels int `json:"n_levels" yaml:"n_levels" validate:"gte=1"`
	// voxel size as "x,y,z"; blank means read it from the image metadata
	Voxsize string `json:"voxsize" yaml:"voxsize,omitempty" validate:"omitempty,voxsize"`
	// filename patterns excluded from transcoding
	Exclude    []string   `json:"exclude" yaml:"exclude"`
	SubmitArgs SubmitArgs `json:"submit_args" yaml:"submit_args"`
}

// S3 client settings; blank fields fall back to the SDK's ambient
// configuration
type S3Config struct {
	Region          string `json:"region" yaml:"region,omitempty"`
	Endpoint        string `json:"endpoint" yaml:"endpoint,omitempty" validate:"omitempty,url"`
	AccessKeyId     string `json:"access_key_id" yaml:"access_key_id,omitempty" validate:"required_with=SecretAccessKey"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key,omitempty" validate:"required_with=AccessKeyId"`
}

// Google Cloud Storage client settings; blank fields fall back to application
// default credentials
type GCSConfig struct {
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file,omitempty"`
	Endpoint        string `json:"endpoint" yaml:"endpoint,omitempty" validate:"omitempty,url"`
}

// parameters for the auxiliary file upload
type UploadJobConfig struct {
	// number of files transferred at once
	Threads int `json:"threads" yaml:"threads" validate:"gt=0"`
	// zip behavior videos before they're uploaded
	CompressVideos bool `json:"compress_videos" yaml:"compress_videos"`
	// zip compression level for videos
	CompressionLevel int `json:"compression_level" yaml:"compression_level" validate:"gte=1,lte=9"`
	// base64-encoded Fernet key that seals video archives (optional)
	EncryptionKey string    `json:"encryption_key" yaml:"encryption_key,omitempty"`
	S3            S3Config  `json:"s3" yaml:"s3"`
	GCS           GCSConfig `json:"gcs" yaml:"gcs"`
}

// intensity range for the neuroglancer link
type NgLinkJobConfig struct {
	Vmin float64 `json:"vmin" yaml:"vmin"`
	Vmax float64 `json:"vmax" yaml:"vmax"`
}

// A fully resolved job configuration.
type Configuration struct {
	Endpoints       EndpointsConfig    `json:"endpoints" yaml:"endpoints"`
	Jobs            JobsConfig         `json:"jobs" yaml:"jobs"`
	Data            DataConfig         `json:"data" yaml:"data"`
	TranscodeJob    TranscodeJobConfig `json:"transcode_job" yaml:"transcode_job"`
	CreateNgLinkJob NgLinkJobConfig    `json:"create_ng_link_job" yaml:"create_ng_link_job"`
	UploadJob       UploadJobConfig    `json:"upload_job" yaml:"upload_job"`
}

// Returns the built-in defaults onto which job configuration documents are
// overlaid. Each call returns a fresh value.
func Defaults() Configuration {
	return Configuration{
		Jobs: JobsConfig{
			UploadAuxFiles: true,
			Transcode:      true,
			CreateNgLink:   true,
			CreateMetadata: true,
		},
		Data: DataConfig{
			Name: "exaSPIM",
		},
		TranscodeJob: TranscodeJobConfig{
			Compressor: CompressorConfig{
				Name: "blosc",
				Kwargs: map[string]any{
					"cname":   "zstd",
					"clevel":  1,
					"shuffle": 1,
				},
			},
			ChunkSize: 64,
			NLevels:   8,
			Exclude:   []string{},
			SubmitArgs: SubmitArgs{
				Nodes:         8,
				NTasksPerNode: 8,
				CpusPerTask:   1,
				MemPerCpu:     3000,
				Walltime:      "72:00:00",
				TmpSpace:      "8GB",
				Queue:         "aind",
			},
		},
		CreateNgLinkJob: NgLinkJobConfig{
			Vmin: 0,
			Vmax: 500,
		},
		UploadJob: UploadJobConfig{
			Threads:          4,
			CompressionLevel: 5,
		},
	}
}
