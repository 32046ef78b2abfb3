// Package wire defines what travels inside a queue message.
//
// Requests are small CBOR maps addressed to msgq.ServerAddress. Responses are
// addressed to the destination client's pid and start with a one-byte kind
// tag: data chunks carry raw file bytes, error chunks carry a human-readable
// message. A zero-length payload is the final sentinel and never carries
// meaning beyond "this transfer is complete"; a failed transfer is always an
// error chunk followed by a final.
package wire
