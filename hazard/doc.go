// Package hazard implements hazard pointers: a safe-reclamation scheme that
// lets a thread publish the pointers it is about to dereference, so a
// concurrent retirer knows not to free them yet.
//
// Grounded directly on
// _examples/original_source/common/HazardPointers.hpp, generified with Go
// type parameters in place of the C++ template parameter. The "heads" pool
// (ProtectHead/Heads) is carried over from the original's CX-mutation
// integration point; nothing else in this module uses it, but it is kept
// public rather than dropped.
package hazard
