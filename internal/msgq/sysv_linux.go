//go:build linux && (amd64 || arm64)

package msgq

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// msgNoError is MSG_NOERROR from <linux/msg.h>; golang.org/x/sys/unix does
// not export it.
const msgNoError = 0o10000

// sysvBuffer mirrors struct msgbuf: a C long type followed by the text. The
// spare byte lets Receive tell an oversized message from a full one.
type sysvBuffer struct {
	mtype int64
	mtext [MaxPayload + 1]byte
}

// sysvIPCPerm mirrors struct ipc64_perm on 64-bit Linux.
type sysvIPCPerm struct {
	key     int32
	uid     uint32
	gid     uint32
	cuid    uint32
	cgid    uint32
	mode    uint32
	seq     uint16
	_       uint16
	_       uint64
	_       uint64
}

// sysvQueueDS mirrors struct msqid64_ds on 64-bit Linux.
type sysvQueueDS struct {
	perm   sysvIPCPerm
	stime  int64
	rtime  int64
	ctime  int64
	cbytes uint64
	qnum   uint64
	qbytes uint64
	lspid  int32
	lrpid  int32
	_      uint64
	_      uint64
}

// SysV is a handle on a System V message queue.
type SysV struct {
	id     int
	key    int
	closed atomic.Bool
}

var _ Transport = (*SysV)(nil)

// Open creates the queue identified by key, or attaches to it when another
// process already created it.
func Open(key int, perm uint32) (*SysV, error) {
	id, errno := msgget(key, unix.IPC_CREAT|int(perm&0o777))
	if errno != 0 {
		return nil, fmt.Errorf("%w: msgget key %#x: %v", ErrQueueUnavailable, key, errno)
	}
	return &SysV{id: id, key: key}, nil
}

// Attach binds to an existing queue without creating it.
func Attach(key int) (*SysV, error) {
	id, errno := msgget(key, 0)
	if errno != 0 {
		if errno == unix.ENOENT {
			return nil, fmt.Errorf("%w: no queue with key %#x", ErrQueueUnavailable, key)
		}
		return nil, fmt.Errorf("%w: msgget key %#x: %v", ErrQueueUnavailable, key, errno)
	}
	return &SysV{id: id, key: key}, nil
}

// ID returns the kernel queue identifier.
func (q *SysV) ID() int {
	return q.id
}

// Key returns the key the queue was opened with.
func (q *SysV) Key() int {
	return q.key
}

// Send enqueues msg. A full queue suspends the caller until space frees up or
// ctx is done.
func (q *SysV) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var buf sysvBuffer
	buf.mtype = int64(msg.Type)
	n := copy(buf.mtext[:], msg.Payload)
	return retryFull(ctx, func() (bool, error) {
		if q.closed.Load() {
			return false, ErrQueueClosed
		}
		_, _, errno := unix.Syscall6(unix.SYS_MSGSND,
			uintptr(q.id),
			uintptr(unsafe.Pointer(&buf)),
			uintptr(n),
			uintptr(unix.IPC_NOWAIT),
			0, 0)
		switch errno {
		case 0:
			return false, nil
		case unix.EAGAIN, unix.EINTR:
			return true, nil
		case unix.EIDRM, unix.EINVAL:
			q.closed.Store(true)
			return false, ErrQueueClosed
		default:
			return false, fmt.Errorf("msgsnd: %w", errno)
		}
	})
}

// Receive dequeues the oldest message of type to, or returns ErrNoMessage.
func (q *SysV) Receive(to Address) (Message, error) {
	if !to.Valid() {
		return Message{}, fmt.Errorf("%w: %d", ErrInvalidAddress, int64(to))
	}
	for {
		if q.closed.Load() {
			return Message{}, ErrQueueClosed
		}
		var buf sysvBuffer
		r1, _, errno := unix.Syscall6(unix.SYS_MSGRCV,
			uintptr(q.id),
			uintptr(unsafe.Pointer(&buf)),
			uintptr(len(buf.mtext)),
			uintptr(to),
			uintptr(unix.IPC_NOWAIT|msgNoError),
			0)
		switch errno {
		case 0:
			if int(r1) > MaxPayload {
				// Oversized messages come from foreign writers; drop them.
				continue
			}
			payload := make([]byte, int(r1))
			copy(payload, buf.mtext[:r1])
			return Message{Type: Address(buf.mtype), Payload: payload}, nil
		case unix.ENOMSG, unix.EAGAIN:
			return Message{}, ErrNoMessage
		case unix.EINTR, unix.E2BIG:
			continue
		case unix.EIDRM, unix.EINVAL:
			q.closed.Store(true)
			return Message{}, ErrQueueClosed
		default:
			return Message{}, fmt.Errorf("msgrcv: %w", errno)
		}
	}
}

// Destroy removes the queue from the system. Removing a queue that is already
// gone reports ErrQueueAlreadyRemoved.
func (q *SysV) Destroy() error {
	_, _, errno := unix.Syscall(unix.SYS_MSGCTL, uintptr(q.id), uintptr(unix.IPC_RMID), 0)
	q.closed.Store(true)
	switch errno {
	case 0:
		return nil
	case unix.EIDRM, unix.EINVAL:
		return ErrQueueAlreadyRemoved
	default:
		return fmt.Errorf("msgctl IPC_RMID: %w", errno)
	}
}

// Close marks the handle unusable. The queue itself stays in place.
func (q *SysV) Close() error {
	q.closed.Store(true)
	return nil
}

// Stat reports the kernel's view of the queue.
func (q *SysV) Stat() (Stats, error) {
	var ds sysvQueueDS
	_, _, errno := unix.Syscall(unix.SYS_MSGCTL, uintptr(q.id), uintptr(unix.IPC_STAT), uintptr(unsafe.Pointer(&ds)))
	if errno != 0 {
		if errors.Is(errno, unix.EIDRM) || errors.Is(errno, unix.EINVAL) {
			return Stats{}, ErrQueueClosed
		}
		return Stats{}, fmt.Errorf("msgctl IPC_STAT: %w", errno)
	}
	return Stats{
		ID:          q.id,
		Key:         ds.perm.key,
		Messages:    ds.qnum,
		Bytes:       ds.cbytes,
		MaxBytes:    ds.qbytes,
		LastSendPID: int(ds.lspid),
		LastRecvPID: int(ds.lrpid),
		LastSend:    unixTime(ds.stime),
		LastReceive: unixTime(ds.rtime),
		LastChange:  unixTime(ds.ctime),
		Permissions: ds.perm.mode & 0o777,
		OwnerUID:    ds.perm.uid,
	}, nil
}

func msgget(key int, flags int) (int, unix.Errno) {
	r1, _, errno := unix.Syscall(unix.SYS_MSGGET, uintptr(key), uintptr(flags), 0)
	return int(r1), errno
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
