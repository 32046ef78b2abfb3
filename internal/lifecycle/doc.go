// Package lifecycle models process shutdown as an explicit state machine.
//
// A Controller starts Running, moves to Quiescing when an interrupt arrives or
// a caller asks it to, and ends Terminated once cleanup finishes. Transitions
// only move forward. Components observe shutdown through Done or Context
// instead of polling process-wide flags; the client's reader and command loop
// and the server's dispatcher all share one Controller per process.
package lifecycle
