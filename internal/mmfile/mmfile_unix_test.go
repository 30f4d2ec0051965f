//go:build unix

package mmfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/dmabufkit/dmabuf"
)

func openTestFile(t *testing.T, size int) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.bin")
	want := make([]byte, size)
	for i := range want {
		want[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(path, want, 0o644))
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestMapFDShared(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping mmap test in short mode")
	}
	f := openTestFile(t, 8192)

	data, err := MapFD(int(f.Fd()), 4096, 4096, Access{Read: true, Write: true})
	require.NoError(t, err, "MapFD should not error")
	assert.Len(t, data, 4096)
	assert.Equal(t, byte(4096&0xff), data[0], "mapping should start at the offset")

	data[1] = 0xEE
	require.NoError(t, Unmap(data))

	got := make([]byte, 1)
	_, err = f.ReadAt(got, 4097)
	require.NoError(t, err)
	assert.Equal(t, byte(0xEE), got[0], "shared mapping writes through to the file")
}

func TestMapFDPrivate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping mmap test in short mode")
	}
	f := openTestFile(t, 4096)

	data, err := MapFD(int(f.Fd()), 0, 4096, Access{Read: true, Write: true, Private: true})
	require.NoError(t, err)
	data[0] = 0xAA
	require.NoError(t, Unmap(data))

	got := make([]byte, 1)
	_, err = f.ReadAt(got, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(0), got[0], "private mapping must not write through")
}

func TestMapFDInvalid(t *testing.T) {
	_, err := MapFD(-1, 0, 0, Access{Read: true})
	require.Error(t, err)

	_, err = MapFD(-1, 0, 4096, Access{Read: true})
	require.Error(t, err, "bad descriptor must fail")
}

func TestUnmapNil(t *testing.T) {
	require.NoError(t, Unmap(nil))
}

func TestAccessOf(t *testing.T) {
	assert.Equal(t, Access{Read: true}, AccessOf(dmabuf.MapRead))
	assert.Equal(t, Access{Read: true, Write: true, Private: true}, AccessOf(dmabuf.MapReadWrite|dmabuf.MapPrivate))
	assert.Equal(t, Access{Write: true}, AccessOf(dmabuf.MapWrite|dmabuf.MapManualSync))
}
