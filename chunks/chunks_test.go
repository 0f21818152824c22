package chunks

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnsureShape5D(t *testing.T) {
	assert := assert.New(t)
	shape, err := EnsureShape5D([]int{64, 128, 128})
	assert.Nil(err)
	assert.Equal([]int{1, 1, 64, 128, 128}, shape)

	shape, err = EnsureShape5D([]int{2, 3, 4, 5, 6})
	assert.Nil(err)
	assert.Equal([]int{2, 3, 4, 5, 6}, shape)

	_, err = EnsureShape5D([]int{1, 2, 3, 4, 5, 6})
	var dimErr *DimensionError
	assert.True(errors.As(err, &dimErr))
}

func TestBytes(t *testing.T) {
	assert.Equal(t, int64(2*8*2048*2048), Bytes([]int{1, 1, 8, 2048, 2048}, 2))
}
