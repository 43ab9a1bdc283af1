package fixture

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRecords(t *testing.T, path string, values []int32) {
	t.Helper()
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
	require.NoError(t, os.WriteFile(path, buf, 0o644))
}

func readRecords(t *testing.T, path string) []int32 {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Zero(t, len(data)%4)
	out := make([]int32, len(data)/4)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

func TestProcessAddsOffsetPerRecord(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.bin")
	const n = 1000
	values := make([]int32, n)
	for i := range values {
		values[i] = int32(i) // offset_in == 0, record i carries value i
	}
	writeRecords(t, in, values)

	c := New(23, [][]string{{in}})
	require.NoError(t, c.StartDataset(0, filepath.Join(dir, "out.bin")))
	total, err := c.StartFile(0)
	require.NoError(t, err)
	require.Equal(t, uint64(n), total)

	nbytes, err := c.Process(0, uint64(n))
	require.NoError(t, err)
	assert.Equal(t, uint64(4*n), nbytes)
	require.NoError(t, c.StartDataset(-1, ""))

	out := readRecords(t, filepath.Join(dir, "out.bin"))
	require.Len(t, out, n)
	for i, v := range out {
		assert.Equal(t, int32(i+23), v)
	}
}

func TestStartDatasetIsIdempotentForSamePath(t *testing.T) {
	dir := t.TempDir()
	c := New(0, [][]string{{}})
	outPath := filepath.Join(dir, "out.bin")
	require.NoError(t, c.StartDataset(0, outPath))
	first := c.outFile
	require.NoError(t, c.StartDataset(0, outPath))
	assert.Same(t, first, c.outFile)
}

func TestMergeAppendsAndRemovesByDefault(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.bin")
	b := filepath.Join(dir, "b.bin")
	writeRecords(t, a, []int32{1, 2, 3})
	writeRecords(t, b, []int32{4, 5})

	c := New(0, nil)
	require.NoError(t, c.Merge("Events", a, b, false))

	merged := readRecords(t, a)
	assert.Equal(t, []int32{1, 2, 3, 4, 5}, merged)
	_, err := os.Stat(b)
	assert.True(t, os.IsNotExist(err))
}

func TestMergeKeepsMergedFileWhenConfigured(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.bin")
	b := filepath.Join(dir, "b.bin")
	writeRecords(t, a, []int32{1})
	writeRecords(t, b, []int32{2})

	c := New(0, nil)
	require.NoError(t, c.Merge("Events", a, b, true))
	_, err := os.Stat(b)
	assert.NoError(t, err)
}

func TestProcessRangeOutOfBoundsErrors(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.bin")
	writeRecords(t, in, []int32{1, 2, 3})

	c := New(0, [][]string{{in}})
	require.NoError(t, c.StartDataset(0, filepath.Join(dir, "out.bin")))
	_, err := c.StartFile(0)
	require.NoError(t, err)

	_, err = c.Process(0, 10)
	assert.Error(t, err)
}
