package transcode

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aind/transcode/config"
)

func TestZarrOutput(t *testing.T) {
	assert := assert.New(t)
	assert.Equal("/mnt/out/exaSPIM.zarr", ZarrOutput("/mnt/out", "/data/ds/exaSPIM"))
	assert.Equal("s3://bucket/ds/exaSPIM.zarr", ZarrOutput("s3://bucket/ds/", "/data/ds/exaSPIM/"))
	assert.Equal("gs://bucket/micr.zarr", ZarrOutput("gs://bucket", "/data/ds/micr"))
}

func TestBuildCommandDefaults(t *testing.T) {
	job := config.Defaults().TranscodeJob
	cmd, err := BuildCommand("/data/ds/exaSPIM", "s3://bucket/ds/exaSPIM.zarr", job)
	assert.Nil(t, err)
	expected := append(append([]string{}, WriterCommand...),
		"--input=/data/ds/exaSPIM",
		"--output=s3://bucket/ds/exaSPIM.zarr",
		"--codec=zstd",
		"--clevel=1",
		"--n_levels=8",
		"--chunk_size=64",
		"--scale_factor=2",
		"--deployment=slurm",
	)
	assert.Equal(t, expected, cmd)
}

func TestBuildCommandOptionalArguments(t *testing.T) {
	assert := assert.New(t)
	job := config.Defaults().TranscodeJob
	job.Compressor.Kwargs = map[string]any{"cname": "lz4", "clevel": 4}
	job.ChunkShape = []int{1, 1, 64, 128, 128}
	job.Exclude = []string{"*.memento", "tile_X_0000*"}
	job.Resume = true
	job.Voxsize = "0.748,0.748,1.0"

	cmd, err := BuildCommand("/in", "/out.zarr", job)
	assert.Nil(err)
	tail := cmd[len(WriterCommand)+8:]
	assert.Equal([]string{
		"--chunk_shape", "1", "1", "64", "128", "128",
		"--exclude", "*.memento", "tile_X_0000*",
		"--resume",
		"--voxsize", "0.748,0.748,1.0",
	}, tail)
	assert.Contains(cmd, "--codec=lz4")
	assert.Contains(cmd, "--clevel=4")
}

func TestBuildCommandRejectsBadCompressor(t *testing.T) {
	job := config.Defaults().TranscodeJob
	job.Compressor.Kwargs = map[string]any{"cname": "lzma"}
	_, err := BuildCommand("/in", "/out.zarr", job)
	assert.NotNil(t, err)
}

func TestBuildCommandRejectsBadVoxelSize(t *testing.T) {
	job := config.Defaults().TranscodeJob
	job.Voxsize = "1,0,3"
	_, err := BuildCommand("/in", "/out.zarr", job)
	var voxErr *config.VoxelSizeError
	assert.True(t, errors.As(err, &voxErr))
}

func TestExcluded(t *testing.T) {
	assert := assert.New(t)
	patterns := []string{"*.memento", "/data/skip/*"}
	assert.True(Excluded("/data/tiles/tile_0.memento", patterns))
	assert.True(Excluded("/data/skip/tile_1.tif", patterns))
	assert.False(Excluded("/data/tiles/tile_1.tif", patterns))
	assert.False(Excluded("/data/tiles/tile_1.tif", nil))
}

// tests whether wildcards span directories, as fnmatch's do
func TestExcludedMatchesAcrossDirectories(t *testing.T) {
	assert := assert.New(t)
	assert.True(Excluded("/data/exaSPIM/tile_1.ims", []string{"*/exaSPIM/tile_1*"}))
	assert.True(Excluded("/data/skip/nested/tile_1.tif", []string{"/data/skip/*"}))
	assert.True(Excluded("/data/a/tile_7.tif", []string{"*/tile_?.tif"}))
	assert.False(Excluded("/data/a/tile_17.tif", []string{"*/tile_?.tif"}))
}

// tests character classes and literal metacharacters in patterns
func TestExcludedPatternSyntax(t *testing.T) {
	assert := assert.New(t)
	assert.True(Excluded("/d/tile_1.tif", []string{"tile_[0-3].tif"}))
	assert.False(Excluded("/d/tile_5.tif", []string{"tile_[0-3].tif"}))
	assert.True(Excluded("/d/tile_5.tif", []string{"tile_[!0-3].tif"}))
	assert.True(Excluded("/d/a+b (1).tif", []string{"a+b (1).tif"}))
	assert.True(Excluded("/d/x[1.tif", []string{"x[1.tif"}))
	assert.False(Excluded("/d/tile_0.tif", []string{"tile_[.tif"}))
}

// lays out a raw image directory
func makeImageDir(t *testing.T) string {
	dir := t.TempDir()
	for _, name := range []string{
		"tile_0.tif",
		"tile_1.TIFF",
		"tile_2.ims",
		"tile_3.memento",
		"notes.txt",
		"nested/tile_4.h5",
		"store.zarr/0/.zarray",
	} {
		path := filepath.Join(dir, name)
		require.Nil(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.Nil(t, os.WriteFile(path, []byte{}, 0644))
	}
	return dir
}

func TestCollectImages(t *testing.T) {
	assert := assert.New(t)
	dir := makeImageDir(t)

	images, err := CollectImages(dir, false, nil)
	assert.Nil(err)
	assert.Equal([]string{
		filepath.Join(dir, "store.zarr"),
		filepath.Join(dir, "tile_0.tif"),
		filepath.Join(dir, "tile_1.TIFF"),
		filepath.Join(dir, "tile_2.ims"),
	}, images)

	images, err = CollectImages(dir, true, []string{"*.ims", "store*"})
	assert.Nil(err)
	assert.Equal([]string{
		filepath.Join(dir, "nested/tile_4.h5"),
		filepath.Join(dir, "tile_0.tif"),
		filepath.Join(dir, "tile_1.TIFF"),
	}, images)
}

func TestCollectImagesRejectsFiles(t *testing.T) {
	dir := makeImageDir(t)
	_, err := CollectImages(filepath.Join(dir, "tile_0.tif"), false, nil)
	var notDirErr *NotADirectoryError
	assert.True(t, errors.As(err, &notDirErr))

	_, err = CollectImages(filepath.Join(dir, "missing"), false, nil)
	assert.NotNil(t, err)
}

func TestTileName(t *testing.T) {
	assert.Equal(t, "tile_X_0001_Y_0002_Z_0000_ch_488", TileName("/d/tile_X_0001_Y_0002_Z_0000_ch_488.ims"))
}

func TestTileExists(t *testing.T) {
	assert := assert.New(t)
	store := t.TempDir()
	require.Nil(t, os.MkdirAll(filepath.Join(store, "tile_0", "3"), 0755))
	require.Nil(t, os.WriteFile(filepath.Join(store, "tile_0", "3", ".zarray"), []byte("{}"), 0644))

	exists, err := TileExists(store, "tile_0", 4)
	assert.Nil(err)
	assert.True(exists)

	exists, err = TileExists(store, "tile_0", 5)
	assert.Nil(err)
	assert.False(exists)

	exists, err = TileExists(store, "tile_1", 4)
	assert.Nil(err)
	assert.False(exists)
}

func TestFormatShape(t *testing.T) {
	assert.Equal(t, "(1, 1, 64, 128, 128)", FormatShape([]int{1, 1, 64, 128, 128}))
}
