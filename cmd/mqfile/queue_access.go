package main

import "mqfile/internal/msgq"

// queueHandle is a transport that can also report queue statistics.
type queueHandle interface {
	msgq.Transport
	Stat() (msgq.Stats, error)
}

// openQueueFunc and attachQueueFunc reach the kernel queue. They are
// package-level variables so tests can substitute an in-memory queue.
var (
	openQueueFunc = func(key int, perm uint32) (queueHandle, error) {
		q, err := msgq.Open(key, perm)
		if err != nil {
			return nil, err
		}
		return q, nil
	}
	attachQueueFunc = func(key int) (queueHandle, error) {
		q, err := msgq.Attach(key)
		if err != nil {
			return nil, err
		}
		return q, nil
	}
)
