// Package registry assigns compact, dense identifiers to concurrent callers
// of a PTM engine.
//
// Every engine in this module (oflf, ofwf, romulus) needs a small integer id
// per concurrent caller: it indexes per-thread write-sets, persistent logs,
// hazard pointer slots and read-indicator presence flags. The original
// design assigns this id once per OS thread and releases it via a
// thread-local destructor when the thread exits. Go has neither
// goroutine-local storage nor destructors, so this package exposes an
// explicit checkout handle instead: callers acquire a Handle with Join and
// must Release it (typically via defer) when done.
package registry
