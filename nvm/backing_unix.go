//go:build unix

package nvm

import (
	"fmt"
	"os"

	"github.com/google/renameio/v2"
	"golang.org/x/sys/unix"
)

// mmapBacking is the real backing: an mmap'd file, synced with msync.
type mmapBacking struct {
	f   *os.File
	buf []byte
}

func openMapped(path string, size int64) (buf []byte, existed bool, bk backing, err error) {
	f, openErr := os.OpenFile(path, os.O_RDWR, 0o644)
	switch {
	case openErr == nil:
		existed = true
	case os.IsNotExist(openErr):
		if err := createDurably(path, size); err != nil {
			return nil, false, nil, err
		}
		f, openErr = os.OpenFile(path, os.O_RDWR, 0o644)
		if openErr != nil {
			return nil, false, nil, fmt.Errorf("%w: %v", ErrMapFailed, openErr)
		}
	default:
		return nil, false, nil, fmt.Errorf("%w: %v", ErrMapFailed, openErr)
	}

	info, statErr := f.Stat()
	if statErr != nil {
		f.Close()
		return nil, false, nil, fmt.Errorf("%w: %v", ErrMapFailed, statErr)
	}
	if info.Size() < size {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, false, nil, fmt.Errorf("%w: %v", ErrMapFailed, err)
		}
	}

	buf, mmapErr := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if mmapErr != nil {
		f.Close()
		return nil, false, nil, fmt.Errorf("%w: %v", ErrMapFailed, mmapErr)
	}
	return buf, existed, &mmapBacking{f: f, buf: buf}, nil
}

// createDurably writes a zero-filled file of the requested size through
// renameio's temp-file-plus-fsync-plus-atomic-rename sequence, so a crash
// partway through creation can never leave a torn file for the next
// OpenRegion/OpenRaw to mistake for valid state.
func createDurably(path string, size int64) error {
	t, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMapFailed, err)
	}
	defer t.Cleanup()
	if err := t.Truncate(size); err != nil {
		return fmt.Errorf("%w: %v", ErrMapFailed, err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("%w: %v", ErrMapFailed, err)
	}
	return nil
}

func (m *mmapBacking) sync() error { return unix.Msync(m.buf, unix.MS_SYNC) }

func (m *mmapBacking) close() error {
	unmapErr := unix.Munmap(m.buf)
	closeErr := m.f.Close()
	if unmapErr != nil {
		return unmapErr
	}
	return closeErr
}
