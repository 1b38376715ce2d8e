// Package crwwp implements a C-RW-WP reader/writer lock: a cohort spin-lock
// guarding writer access, composed with a readind.Indicator so writers wait
// for present readers to drain and readers always give way to a waiting
// writer (writer preference, non-starving).
//
// Grounded directly on the C-RW-WP design
// (_examples/original_source/ptms/rwlocks/CRWWP_SpinLock.hpp): Romulus Log
// uses one instance of this lock to serialize its flat-combining writer
// lane against concurrent readers.
package crwwp
