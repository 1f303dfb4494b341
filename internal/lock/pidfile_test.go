package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber map[int]bool

func (f fakeProber) Alive(pid int) bool { return f[pid] }

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestPIDFile_AcquireFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collector.pid")
	p := &PIDFile{Path: path, Prober: fakeProber{}}

	require.NoError(t, p.Acquire())
	assert.Equal(t, fmt.Sprintf("%d\n", os.Getpid()), readFile(t, path))

	require.NoError(t, p.Release())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestPIDFile_LiveOwner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collector.pid")
	require.NoError(t, os.WriteFile(path, []byte("4242\n"), 0644))
	p := &PIDFile{Path: path, Prober: fakeProber{4242: true}}

	err := p.Acquire()
	assert.True(t, errors.Is(err, ErrAlreadyRunning))
	assert.Equal(t, "4242\n", readFile(t, path), "a live owner's pid file is left alone")

	require.NoError(t, p.Release())
	assert.Equal(t, "4242\n", readFile(t, path))
}

func TestPIDFile_StaleOwner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collector.pid")
	require.NoError(t, os.WriteFile(path, []byte("4242\n"), 0644))
	p := &PIDFile{Path: path, Prober: fakeProber{}}

	require.NoError(t, p.Acquire())
	assert.Equal(t, fmt.Sprintf("%d\n", os.Getpid()), readFile(t, path))
}

func TestPIDFile_Garbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collector.pid")
	require.NoError(t, os.WriteFile(path, []byte("not a pid"), 0644))
	p := &PIDFile{Path: path, Prober: fakeProber{}}

	require.NoError(t, p.Acquire())
	assert.Equal(t, fmt.Sprintf("%d\n", os.Getpid()), readFile(t, path))
}

func TestPIDFile_ReleaseKeepsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collector.pid")
	p := &PIDFile{Path: path, Prober: fakeProber{}}
	require.NoError(t, p.Acquire())

	require.NoError(t, os.WriteFile(path, []byte("777\n"), 0644))
	require.NoError(t, p.Release())
	assert.Equal(t, "777\n", readFile(t, path))
}

func TestSignalProber(t *testing.T) {
	var sp SignalProber
	assert.True(t, sp.Alive(os.Getpid()))
	assert.False(t, sp.Alive(0))
	assert.False(t, sp.Alive(-5))
}
