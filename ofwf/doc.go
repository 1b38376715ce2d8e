// Package ofwf implements OneFile-WF, the wait-free sibling of package
// oflf. Where oflf lets a committing thread's write-set carry only its own
// writer's work, ofwf has every thread announce its whole transaction body
// as a closure first; whichever thread next manages to commit picks up
// every other thread's still-pending closure, runs it, and folds its
// writes into the very same write-set before attempting one combined CAS.
// That "transform-all, commit-once" step is what bounds a thread's wait:
// every other active thread's commit attempt makes progress on its behalf
// too, so no thread can be stalled indefinitely no matter how many others
// are running concurrently.
//
// A read transaction tries up to MaxReadTries times to take a consistent
// snapshot without announcing anything; if it keeps losing the race to a
// committer, it gives up and re-poses as an update transaction (whose
// wait-freedom doesn't depend on ever seeing a quiescent moment).
//
// Every announced closure is protected while it might still be read by a
// helper using package hazardera: the era window between the closure's
// announcement and its seq's ultimate visibility in results. Go's garbage
// collector would reclaim a superseded closure safely either way, but
// wiring hazardera here keeps the same retire/protect/clean discipline the
// original relies on for the one part that would otherwise be unsafe on a
// manually-managed heap, and keeps this engine exercising the same
// component the spec calls out for it.
package ofwf
