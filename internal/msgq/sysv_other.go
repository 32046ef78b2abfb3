//go:build !(linux && (amd64 || arm64))

package msgq

import (
	"context"
	"fmt"
	"runtime"
)

// SysV is unavailable on this platform; Open and Attach always fail.
type SysV struct{}

var _ Transport = (*SysV)(nil)

// Open reports that System V message queues are not supported here.
func Open(key int, perm uint32) (*SysV, error) {
	return nil, fmt.Errorf("%w: System V queues unsupported on %s/%s", ErrQueueUnavailable, runtime.GOOS, runtime.GOARCH)
}

// Attach reports that System V message queues are not supported here.
func Attach(key int) (*SysV, error) {
	return Open(key, 0)
}

func (q *SysV) ID() int { return -1 }

func (q *SysV) Key() int { return 0 }

func (q *SysV) Send(context.Context, Message) error { return ErrQueueClosed }

func (q *SysV) Receive(Address) (Message, error) { return Message{}, ErrQueueClosed }

func (q *SysV) Destroy() error { return ErrQueueAlreadyRemoved }

func (q *SysV) Close() error { return nil }

func (q *SysV) Stat() (Stats, error) { return Stats{}, ErrQueueClosed }
