package filelock

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryLockExcludesSecondHolder(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "run", "filestage.lock")

	first := NewFileLock(lockPath)
	second := NewFileLock(lockPath)
	assert.Equal(t, lockPath, first.Path())

	acquired, err := first.TryLock()
	require.NoError(t, err)
	require.True(t, acquired, "first TryLock should succeed")

	acquired, err = second.TryLock()
	require.NoError(t, err)
	assert.False(t, acquired, "second TryLock should fail while the lock is held")

	require.NoError(t, first.Unlock())

	acquired, err = second.TryLock()
	require.NoError(t, err)
	assert.True(t, acquired, "TryLock should succeed after unlock")
	require.NoError(t, second.Unlock())
}

func TestLockUnlock(t *testing.T) {
	lock := NewFileLock(filepath.Join(t.TempDir(), "test.lock"))

	require.NoError(t, lock.Lock())
	require.NoError(t, lock.Unlock())
}

func TestAtomicWriteReplacesContent(t *testing.T) {
	target := filepath.Join(t.TempDir(), "report-1")

	require.NoError(t, AtomicWrite(target, []byte("hello")))
	require.NoError(t, AtomicWrite(target, []byte("goodbye")))

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "goodbye", string(got))

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())
}

func TestAtomicWriteReaderCountsBytes(t *testing.T) {
	target := filepath.Join(t.TempDir(), "users")

	n, err := AtomicWriteReader(target, strings.NewReader("a:1\nb:2\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestAtomicWriteReaderKeepsOldContentOnFailure(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "users")
	require.NoError(t, os.WriteFile(target, []byte("original"), 0644))

	_, err := AtomicWriteReader(target, failingReader{})
	require.Error(t, err)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "original", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file should be removed after a failed write")
}

func TestAtomicWriteNoTempFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, AtomicWrite(filepath.Join(dir, "users"), []byte("x")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "users", entries[0].Name())
	assert.False(t, strings.HasPrefix(entries[0].Name(), TempPrefix))
}

func TestAtomicWriteMissingDirectory(t *testing.T) {
	target := filepath.Join(t.TempDir(), "missing", "users")

	err := AtomicWrite(target, []byte("x"))
	assert.Error(t, err)
}

func TestConcurrentAtomicWritesLastWins(t *testing.T) {
	target := filepath.Join(t.TempDir(), "users")

	const goroutines = 10
	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			if err := AtomicWrite(target, []byte(string(rune('A'+id)))); err != nil {
				t.Errorf("AtomicWrite failed for goroutine %d: %v", id, err)
			}
		}(i)
	}
	wg.Wait()

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Len(t, content, 1, "exactly one whole write should survive")
}
