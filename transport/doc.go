// Package transport is the message-passing layer of the simulation and
// the only place cross-process communication happens. It offers the
// three primitives the protocol is written against: one-to-many
// broadcast, tagged point-to-point send/receive, and a collective
// barrier.
//
// The in-process ChanBus implementation maps each (receiver, tag) pair
// onto one buffered Go channel, so per-triple FIFO ordering falls out of
// channel semantics. Every blocking primitive takes a context; the
// coordinator wraps its receives in deadlines and the orchestrator
// cancels the shared run context to unblock everything on teardown.
package transport
