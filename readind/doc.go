// Package readind implements a distributed presence counter: a wait-free,
// population-oblivious way for readers to announce "I am active" and for a
// writer to ask "is anyone active right now".
//
// It backs crwwp's writer-preference reader/writer lock and, via
// DualIndicator, Romulus LR's two-sided scheduling (writers drain the
// currently-active side while readers populate the other).
package readind
