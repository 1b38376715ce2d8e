// Package hazardera implements hazard eras: a reclamation scheme for
// objects tagged with an epoch interval, rather than hazard pointers'
// per-object publish/protect. It backs ofwf's closure reclamation: a
// retired Closure records the [newEra, delEra] transaction-sequence window
// during which it may still be invoked by a helper, and is only finalized
// once no live thread's published era falls inside that window.
//
// There is no standalone original_source file for this: the original
// design inlines era tracking into OneFilePTMWF.hpp's operation-slot and
// closure-retirement logic. This package extracts that into its own
// reusable, independently testable domain, mirroring how hazard is already
// factored out of the OF engines.
package hazardera
