// Package job provides the unit of pipeline work: a named operation with
// append-only output and error lists, a write-once fatal error, a finished
// state that every waiter observes together, and an on-disk cache of prior
// output.
//
// A Job delegates its actual work to a Handler. Execute may finish the job
// synchronously or start a daemonthread.Thread or daemonproc.Process whose
// callbacks call Send, Error, Exception and finally Finish. Collaborators
// observe a job through its signals (output, error, info, finished) and the
// chain package wires jobs into pipelines on top of them.
package job
