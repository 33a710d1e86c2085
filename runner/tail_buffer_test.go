package runner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTailBufferKeepsMostRecentBytes(t *testing.T) {
	buf := newTailBuffer(10)

	_, err := buf.Write([]byte("0123456789abcdef"))
	require.NoError(t, err)

	assert.Equal(t, "6789abcdef", buf.String())
	assert.Equal(t, int64(16), buf.TotalBytes())
	assert.True(t, buf.Truncated())
}

func TestTailBufferUnderCapacity(t *testing.T) {
	buf := newTailBuffer(64)

	_, err := buf.Write([]byte("ok\n"))
	require.NoError(t, err)

	assert.Equal(t, "ok\n", buf.String())
	assert.False(t, buf.Truncated())
}

func TestTailBufferStripsANSISequences(t *testing.T) {
	buf := newTailBuffer(64)

	_, err := buf.Write([]byte("\x1b[32mPASS\x1b[0m\n"))
	require.NoError(t, err)

	assert.Equal(t, "PASS\n", buf.String())
}

func TestTailBufferAccumulatesAcrossWrites(t *testing.T) {
	buf := newTailBuffer(8)

	for i := 0; i < 4; i++ {
		_, err := buf.Write([]byte("abcd"))
		require.NoError(t, err)
	}

	assert.Equal(t, strings.Repeat("abcd", 2), buf.String())
	assert.Equal(t, int64(16), buf.TotalBytes())
}
