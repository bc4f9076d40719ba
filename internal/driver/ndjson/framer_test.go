package ndjson

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramer_SingleChunkMultipleLines(t *testing.T) {
	f := New()
	results := f.Feed([]byte("{\"a\":1}\n{\"b\":2}\n"))
	require.Len(t, results, 2)
	assert.True(t, results[0].OK)
	assert.Equal(t, float64(1), results[0].Value["a"])
	assert.True(t, results[1].OK)
	assert.Equal(t, float64(2), results[1].Value["b"])
	assert.Empty(t, f.Close())
}

func TestFramer_PartialLineAcrossChunks(t *testing.T) {
	f := New()
	results := f.Feed([]byte("{\"a\":"))
	assert.Empty(t, results)

	results = f.Feed([]byte("1}\n"))
	require.Len(t, results, 1)
	assert.True(t, results[0].OK)
	assert.Equal(t, float64(1), results[0].Value["a"])
}

func TestFramer_SkipsBlankAndWhitespaceLines(t *testing.T) {
	f := New()
	results := f.Feed([]byte("\n   \n{\"a\":1}\n\t\n"))
	require.Len(t, results, 1)
	assert.True(t, results[0].OK)
}

func TestFramer_StripsTrailingCR(t *testing.T) {
	f := New()
	results := f.Feed([]byte("{\"a\":1}\r\n"))
	require.Len(t, results, 1)
	assert.Equal(t, "{\"a\":1}", results[0].RawLine)
}

func TestFramer_MalformedJSONDoesNotRaise(t *testing.T) {
	f := New()
	results := f.Feed([]byte("not json\n{\"a\":1}\n"))
	require.Len(t, results, 2)
	assert.False(t, results[0].OK)
	assert.Error(t, results[0].Err)
	assert.Equal(t, "not json", results[0].RawLine)
	assert.True(t, results[1].OK)
}

func TestFramer_ResidualAtCloseIsParsed(t *testing.T) {
	f := New()
	results := f.Feed([]byte("{\"a\":1}\n{\"b\":2}"))
	require.Len(t, results, 1)

	final := f.Close()
	require.Len(t, final, 1)
	assert.True(t, final[0].OK)
	assert.Equal(t, float64(2), final[0].Value["b"])
}

func TestFramer_EmptyResidualAtCloseYieldsNothing(t *testing.T) {
	f := New()
	f.Feed([]byte("{\"a\":1}\n"))
	assert.Empty(t, f.Close())
}

func TestReadAll(t *testing.T) {
	r := strings.NewReader("{\"a\":1}\n{\"b\":2}\nnot json\n{\"c\":3}")
	results, err := ReadAll(r)
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.True(t, results[0].OK)
	assert.True(t, results[1].OK)
	assert.False(t, results[2].OK)
	assert.True(t, results[3].OK)
}
