package sys

import "errors"

// TaskID identifies one incarnation of a task. The low 16 bits are the
// task's slot in the kernel task table; the high 16 bits are a restart
// generation. A restarted task keeps its slot but gets a new generation,
// so stale TaskIDs held by peers stop matching.
type TaskID uint32

// Kernel is the pseudo-task the kernel uses as the sender of
// notification messages.
const Kernel TaskID = 0xFFFFFFFF

// MakeTaskID builds a TaskID from a table index and a generation.
func MakeTaskID(index, generation uint16) TaskID {
	return TaskID(uint32(generation)<<16 | uint32(index))
}

// Index returns the task-table slot encoded in the ID.
func (t TaskID) Index() uint16 { return uint16(t) }

// Generation returns the restart generation encoded in the ID.
func (t TaskID) Generation() uint16 { return uint16(t >> 16) }

// LeaseAttributes describes the access a lender granted on a loaned
// memory region.
type LeaseAttributes uint32

const (
	// AttrRead grants the borrower permission to read the region.
	AttrRead LeaseAttributes = 1 << iota
	// AttrWrite grants the borrower permission to write the region.
	AttrWrite
)

// Contains reports whether a includes every bit in need.
func (a LeaseAttributes) Contains(need LeaseAttributes) bool {
	return a&need == need
}

// RecvMessage describes one received message. MessageLen is the length
// the sender actually sent, which may exceed the receive buffer; the
// kernel delivers at most the buffer's worth of bytes and callers must
// check MessageLen before trusting the buffer contents.
type RecvMessage struct {
	Sender           TaskID
	Operation        uint32
	MessageLen       int
	ResponseCapacity int
	LeaseCount       int
}

// BorrowInfo describes a loaned region: its byte length and the access
// the lender granted.
type BorrowInfo struct {
	Len        int
	Attributes LeaseAttributes
}

// ErrSenderLost is returned by Recv when a closed receive named a
// sender that no longer exists.
var ErrSenderLost = errors.New("sys: designated sender no longer exists")

// ErrPortClosed is returned by Recv when the calling task's port has
// been shut down and no further messages can arrive.
var ErrPortClosed = errors.New("sys: port closed")

// Borrower is the raw borrow surface the kernel exposes to a server
// while a client's send is in progress. A copy succeeded only when the
// error is nil and the returned count equals the full buffer length;
// any other outcome means the loan is no longer valid.
type Borrower interface {
	// BorrowInfo reports the length and attributes of the loan at
	// index in lender's loan table, or false if the lender is gone or
	// the index is invalid.
	BorrowInfo(lender TaskID, index int) (BorrowInfo, bool)

	// BorrowRead copies bytes from the loaned region, starting at
	// byte offset, into dest. It returns the number of bytes copied.
	BorrowRead(lender TaskID, index, offset int, dest []byte) (int, error)

	// BorrowWrite copies src into the loaned region starting at byte
	// offset. It returns the number of bytes copied.
	BorrowWrite(lender TaskID, index, offset int, src []byte) (int, error)
}

// IPC is the message-passing surface a server task needs from the
// kernel. Implementations are per-task: the calling task is implicit.
type IPC interface {
	// Recv blocks until a message or a permitted notification
	// arrives. A nonzero notificationMask admits kernel notifications
	// whose bits intersect the mask; they are delivered with Sender ==
	// Kernel and the bits in Operation. A non-nil source restricts
	// delivery to that task (closed receive) and fails with
	// ErrSenderLost if the task is gone.
	Recv(buf []byte, notificationMask uint32, source *TaskID) (RecvMessage, error)

	// Reply sends a response to an earlier message. Fire and forget:
	// there is no confirmation and no retry.
	Reply(to TaskID, code uint32, payload []byte)

	Borrower
}
