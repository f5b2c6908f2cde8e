// Package protocol holds the pure logic of the capture/dissemination
// simulation: site and fragment types, capture-order generation, the
// typed message variants exchanged during a run, and the shared run
// configuration.
//
// The simulated scenario: N sites are captured one at a time in a
// randomized order by a coordinator. Each captured site contributes one
// secret fragment, and by the end of the run every captured site must
// hold the complete set of all N fragments.
//
// The package performs no I/O and owns no concurrency. The concurrent
// processes live in package sim, and all cross-process state exchange
// goes through package transport.
//
// # Message tagging
//
// Every point-to-point exchange is addressed by a Tag: a message kind
// plus a step number. Fragment exchanges use the step of the capture
// they belong to, so messages of different steps cannot be confused even
// if a participant runs ahead. Coordinator announcements (order, step,
// terminate, abort) share one control tag per receiver; FIFO delivery
// between a fixed sender/receiver pair orders them.
package protocol
