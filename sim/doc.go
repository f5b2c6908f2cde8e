// Package sim contains the concurrent processes of the capture
// simulation: the coordinator that sequences capture events, the site
// processes that accumulate cipher fragments, and the orchestrator that
// deploys one coordinator plus N sites over an in-process bus.
//
// Each participant is one goroutine. They share no mutable memory; all
// state exchange goes through the transport bus, so the run is
// analyzable purely as a message-passing protocol. The coordinator is
// the sole owner of the captured set and the central fragment ledger,
// and every blocking receive on its side carries a timeout: an
// unresponsive site aborts the whole run instead of deadlocking it.
package sim
