package romulus

import (
	"os"
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxLog_coalescesRangesWithinOneCacheLine(t *testing.T) {
	t.Parallel()

	l := newTxLog(0)
	l.add(0, 4)
	l.add(8, 4)
	require.Len(t, l.entries, 1)
	assert.Equal(t, uint64(0), l.entries[0].offset)
	assert.Equal(t, uint64(12), l.entries[0].length)
}

func TestTxLog_doesNotCoalesceAcrossCacheLines(t *testing.T) {
	t.Parallel()

	l := newTxLog(0)
	l.add(0, 8)
	l.add(cacheLine, 8)
	require.Len(t, l.entries, 2)
}

func TestTxLog_disablesItselfPastMaxBytes(t *testing.T) {
	t.Parallel()

	l := newTxLog(32) // room for ~2 entries at 16 bytes of bookkeeping each
	l.add(0, 4)
	l.add(1000, 4)
	l.add(2000, 4)
	assert.True(t, l.disabled)
	assert.Empty(t, l.entries)
}

// snapshot copies path's current on-disk bytes to a new file, standing in
// for a crash: the copy captures whatever state was durable at that
// instant, with no further writes ever reaching it.
func snapshot(t *testing.T, src string) string {
	t.Helper()
	b, err := os.ReadFile(src)
	require.NoError(t, err)
	dst := filepath.Join(t.TempDir(), "crash-snapshot.db")
	require.NoError(t, os.WriteFile(dst, b, 0o644))
	return dst
}

func TestShared_recoversFromCrashDuringMutating(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "romulus-shared.db")
	s, recovered, err := openShared(path, 1<<14, 0, nil)
	require.NoError(t, err)
	require.False(t, recovered)

	// establish a known-good baseline, fully replicated
	s.beginMutation()
	*(*int64)(unsafe.Pointer(&s.main()[100])) = 1
	s.log.add(100, 8)
	s.finishMutation(s.main(), s.back())

	// simulate a crash mid-write: state left at MUTATING, main diverged
	// from back, and the write never made it to the log-replication step.
	s.beginMutation()
	*(*int64)(unsafe.Pointer(&s.main()[100])) = 2
	s.log.add(100, 8)

	crashPath := snapshot(t, path)
	require.NoError(t, s.Close())

	s2, recovered2, err := openShared(crashPath, 1<<14, 0, nil)
	require.NoError(t, err)
	require.True(t, recovered2)
	t.Cleanup(func() { _ = s2.Close() })

	got := *(*int64)(unsafe.Pointer(&s2.main()[100]))
	assert.EqualValues(t, 1, got, "recovery from MUTATING must roll main back to back's last known-good value")
	backGot := *(*int64)(unsafe.Pointer(&s2.back()[100]))
	assert.EqualValues(t, 1, backGot)
}

func TestShared_recoversFromCrashDuringCopying(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "romulus-shared.db")
	s, recovered, err := openShared(path, 1<<14, 0, nil)
	require.NoError(t, err)
	require.False(t, recovered)

	s.beginMutation()
	*(*int64)(unsafe.Pointer(&s.main()[200])) = 9
	s.log.add(200, 8)
	// simulate the crash landing after state flips to COPYING but before
	// the replication copy reaches back.
	s.storeState(stateCopying)

	crashPath := snapshot(t, path)
	require.NoError(t, s.Close())

	s2, recovered2, err := openShared(crashPath, 1<<14, 0, nil)
	require.NoError(t, err)
	require.True(t, recovered2)
	t.Cleanup(func() { _ = s2.Close() })

	mainGot := *(*int64)(unsafe.Pointer(&s2.main()[200]))
	backGot := *(*int64)(unsafe.Pointer(&s2.back()[200]))
	assert.EqualValues(t, 9, mainGot, "recovery from COPYING treats main as authoritative")
	assert.EqualValues(t, 9, backGot, "recovery from COPYING must finish replicating main to back")
}
