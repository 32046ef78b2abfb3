// Package server implements the mqfile file server.
//
// Server.Run polls the shared queue for requests addressed to the server,
// schedules them by priority onto a bounded pool of transfer workers, and
// streams each file back as data chunks followed by exactly one final
// message. Transfers to the same destination never interleave.
//
// Shutdown is driven by a lifecycle.Controller. Once it leaves Running the
// server stops accepting requests, lets each active transfer finish the chunk
// in hand, answers every accepted or still-queued request with an error chunk
// and a final, waits for clients to collect their messages, and finally
// removes the queue.
package server
