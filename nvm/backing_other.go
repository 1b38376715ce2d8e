//go:build !unix

package nvm

import "os"

// heapBacking is the fallback for platforms without golang.org/x/sys/unix
// mmap support: an ordinary heap-allocated byte slice with no durability at
// all. Nothing is ever written to path, so a reopen never sees what an
// earlier open stored. It exists so this module builds on every GOOS; it is
// not fit for production NVM use.
type heapBacking struct{}

func openMapped(path string, size int64) (buf []byte, existed bool, bk backing, err error) {
	if _, statErr := os.Stat(path); statErr == nil {
		existed = true
	}
	return make([]byte, size), existed, heapBacking{}, nil
}

func (heapBacking) sync() error  { return nil }
func (heapBacking) close() error { return nil }
