package readers

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderName(t *testing.T) {
	assert := assert.New(t)

	exaspim := t.TempDir()
	require.Nil(t, os.Mkdir(filepath.Join(exaspim, "exaSPIM"), 0755))
	reader, err := ReaderName(exaspim)
	assert.Nil(err)
	assert.Equal(ExaSPIM, reader)

	mesospim := t.TempDir()
	require.Nil(t, os.Mkdir(filepath.Join(mesospim, "micr"), 0755))
	reader, err = ReaderName(mesospim)
	assert.Nil(err)
	assert.Equal(MesoSPIM, reader)

	// a file named like a raw directory doesn't count
	neither := t.TempDir()
	require.Nil(t, os.WriteFile(filepath.Join(neither, "micr"), []byte{}, 0644))
	_, err = ReaderName(neither)
	var layoutErr *UnknownLayoutError
	assert.True(errors.As(err, &layoutErr))
}

func TestRawDataDir(t *testing.T) {
	assert := assert.New(t)
	dir, err := RawDataDir(ExaSPIM, "/data/ds")
	assert.Nil(err)
	assert.Equal("/data/ds/exaSPIM", dir)

	dir, err = RawDataDir(MesoSPIM, "/data/ds")
	assert.Nil(err)
	assert.Equal("/data/ds/micr", dir)

	_, err = RawDataDir(Reader("dispim"), "/data/ds")
	assert.NotNil(err)
}
