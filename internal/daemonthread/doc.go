// Package daemonthread runs a Worker's Work step repeatedly on a dedicated,
// OS-thread-locked goroutine, parking between steps until Unblock is called.
//
// Use it for work that blocks (polling, small network loops, draining a queue
// fed by another job) but must stay in-process. Failures from Initialize,
// Work, or Terminate are captured, stop the loop, and surface from Join.
package daemonthread
