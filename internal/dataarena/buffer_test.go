package dataarena

import (
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/require"
)

func initTest(t *testing.T) string {
	dir := path.Join("testdata", t.Name())
	require.NoError(t, os.RemoveAll(dir))
	require.NoError(t, os.MkdirAll(dir, 0755))
	return dir
}

func TestBuffersReserveReadRelease(t *testing.T) {
	dir := initTest(t)
	a, err := Open(path.Join(dir, "test_mabain_d"))
	require.NoError(t, err)
	defer a.Close()

	b := NewBuffers(a)
	off, err := b.Reserve([]byte("hello world"))
	require.NoError(t, err)
	require.False(t, off.IsNull())

	got, err := b.Read(off)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), got)

	require.NoError(t, b.Release(off))
	require.Equal(t, int64(BucketSize(2+len("hello world"))), b.Pending())
}

func TestBuffersReuseFreedBuffer(t *testing.T) {
	dir := initTest(t)
	a, err := Open(path.Join(dir, "test_mabain_d"))
	require.NoError(t, err)
	defer a.Close()

	b := NewBuffers(a)
	off1, err := b.Reserve([]byte("0123456789"))
	require.NoError(t, err)
	require.NoError(t, b.Release(off1))

	highBefore := b.HighWater()
	off2, err := b.Reserve([]byte("abcdefghij"))
	require.NoError(t, err)
	require.Equal(t, off1, off2)
	require.Equal(t, highBefore, b.HighWater())
}

func TestBuffersRejectsOversizedPayload(t *testing.T) {
	dir := initTest(t)
	a, err := Open(path.Join(dir, "test_mabain_d"))
	require.NoError(t, err)
	defer a.Close()

	b := NewBuffers(a)
	_, err = b.Reserve(make([]byte, MaxDataSize+1))
	require.Error(t, err)
}

func TestFreeListSaveLoad(t *testing.T) {
	dir := initTest(t)
	a, err := Open(path.Join(dir, "test_mabain_d"))
	require.NoError(t, err)
	defer a.Close()

	b := NewBuffers(a)
	var offsets []Offset
	for i := 0; i < 8; i++ {
		off, err := b.Reserve([]byte("same-size"))
		require.NoError(t, err)
		offsets = append(offsets, off)
	}
	for _, off := range offsets {
		require.NoError(t, b.Release(off))
	}

	dumpPath := path.Join(dir, "test_dbfl")
	require.NoError(t, b.free.Save(dumpPath))

	reloaded := NewFreeList(a)
	require.NoError(t, reloaded.Load(dumpPath))

	off, ok, err := reloaded.Pop(2 + len("same-size"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, offsets, off)
}

func TestBuffersReset(t *testing.T) {
	dir := initTest(t)
	a, err := Open(path.Join(dir, "test_mabain_d"))
	require.NoError(t, err)
	defer a.Close()

	b := NewBuffers(a)
	_, err = b.Reserve([]byte("payload"))
	require.NoError(t, err)
	b.Reset()
	require.Equal(t, int64(HeaderSize), b.HighWater())
	require.Equal(t, int64(0), b.Pending())
}
