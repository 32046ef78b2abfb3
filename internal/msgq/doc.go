// Package msgq owns the shared message queue every mqfile process talks
// through.
//
// A single kernel queue is partitioned logically by the message type field:
// ServerAddress carries requests, and every other type is the process id of
// the client a response is destined for. The System V implementation wraps
// msgget/msgsnd/msgrcv/msgctl; Memory provides the same contract in-process so
// the protocol can run (and be tested) without kernel IPC.
//
// Receive never blocks and reports ErrNoMessage when nothing is queued for the
// requested type. Send blocks while the queue is full, which is the only
// back-pressure mechanism in the system.
package msgq
