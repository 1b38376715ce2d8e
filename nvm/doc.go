// Package nvm provides the PWB/PFENCE/PSYNC durability abstraction
// (interface Durable) and the byte-addressable mapped Region that stands in
// for NVM in this module: a small persistent header (magic id, one control
// word the hosting engine uses for curTx or state, and a 100-slot root
// table) followed by a heap that package esloco manages.
//
// Real byte-addressable NVM isn't available in a portable Go test
// environment, so Region is backed by an ordinary memory-mapped file
// (golang.org/x/sys/unix.Mmap, synced with Msync) on unix targets, and by a
// plain heap-allocated byte slice (no durability at all) elsewhere. The
// no-op Durable implementation, Volatile, is what the oflf, ofwf and esloco
// unit tests use, matching the design notes' guidance to "allow a no-op
// implementation for volatile testing"; the nvm and romulus tests open real
// file-backed regions.
//
// A region's first-time creation goes through
// github.com/google/renameio/v2 (write, fsync, atomic rename) so a crash
// during initialization can never leave a torn region file for the next
// OpenRegion to misinterpret as already-initialized.
package nvm
