// Package daemonproc runs a registered target function in a separate OS
// process and relays its events back to the parent.
//
// The child is the current executable re-launched with RELEASEKIT_WORKER_TARGET
// set; main (and TestMain) must call RunIfChild before doing anything else.
// Standard input carries the input queue and standard output the output queue,
// both as newline-delimited JSON frames. The child wrapper always finishes with
// a terminated frame, and the parent injects one if the process dies first, so
// Join never waits on a message that cannot arrive.
package daemonproc
