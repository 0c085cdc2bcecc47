// Package order holds the cake order conversation: the phone validator,
// the per-stage session variants and the pure transition function that
// turns an inbound event into the next session and the effects to run.
//
// Nothing in this package performs I/O. Effects are returned as values
// and executed by the dispatch layer.
package order
