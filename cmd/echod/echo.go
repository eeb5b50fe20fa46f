package main

import (
	"bytes"
	"encoding/binary"

	"go.uber.org/zap"

	"github.com/wrenos/taskrt/dispatch"
	"github.com/wrenos/taskrt/lease"
	"github.com/wrenos/taskrt/sys"
)

// The echo interface. In a real system this enum and the lease
// plumbing in handle() would come out of the interface compiler; here
// they are written out by hand.
type echoOp uint32

const (
	opPing  echoOp = 1 // echo the message payload back
	opSum   echoOp = 2 // sum a leased read-only []uint32, reply uint64
	opFill  echoOp = 3 // fill a leased write-only []byte with a pattern
	opScale echoOp = 4 // multiply a leased read-write []uint32 in place
	opPeek  echoOp = 5 // read a leased uint64, reply its value
	opPoke  echoOp = 6 // write a uint64 into a leased cell
)

// FromCode implements dispatch.Op.
func (echoOp) FromCode(code uint32) (echoOp, bool) {
	switch op := echoOp(code); op {
	case opPing, opSum, opFill, opScale, opPeek, opPoke:
		return op, true
	default:
		return 0, false
	}
}

// MaxReplySize implements dispatch.Op.
func (o echoOp) MaxReplySize() int {
	switch o {
	case opPing:
		return maxPingReply
	case opSum, opPeek:
		return 8
	default:
		return 0
	}
}

const maxPingReply = 64

// notifTick is the notification bit the daemon's ticker posts.
const notifTick uint32 = 1

// Handler-defined reply codes for the echo interface.
const (
	codeMalformed    dispatch.ReplyCode = 0x10
	codeLeaseInvalid dispatch.ReplyCode = 0x11
	codeLeaseGone    dispatch.ReplyCode = 0x12
)

type echoServer struct {
	port  sys.IPC
	log   *zap.Logger
	ticks uint64
}

func newEchoServer(port sys.IPC, log *zap.Logger) *echoServer {
	return &echoServer{port: port, log: log}
}

// RecvSource implements dispatch.Server: the echo server accepts any
// sender.
func (s *echoServer) RecvSource() (sys.TaskID, bool) { return 0, false }

// ClosedRecvFail implements dispatch.Server. Unreachable with an open
// receive, but the contract requires it.
func (s *echoServer) ClosedRecvFail() {
	s.log.Warn("closed receive failed")
}

// NotificationMask implements dispatch.NotificationHandler.
func (s *echoServer) NotificationMask() uint32 { return notifTick }

// HandleNotification implements dispatch.NotificationHandler.
func (s *echoServer) HandleNotification(bits uint32) {
	if bits&notifTick != 0 {
		s.ticks++
		s.log.Debug("tick", zap.Uint64("count", s.ticks))
	}
}

// Handle implements dispatch.Server.
func (s *echoServer) Handle(op echoOp, incoming []byte, rm *sys.RecvMessage) error {
	switch op {
	case opPing:
		reply := incoming
		if len(reply) > maxPingReply {
			reply = reply[:maxPingReply]
		}
		s.port.Reply(rm.Sender, 0, reply)
		return nil

	case opSum:
		l, err := lease.NewReadOnlySlice[uint32](s.port, rm.Sender, 0, 0)
		if err != nil {
			return codeLeaseInvalid
		}
		values := make([]uint32, l.Len())
		if err := l.ReadRange(0, l.Len(), values); err != nil {
			return codeLeaseGone
		}
		var sum uint64
		for _, v := range values {
			sum += uint64(v)
		}
		var out [8]byte
		binary.LittleEndian.PutUint64(out[:], sum)
		s.port.Reply(rm.Sender, 0, out[:])
		return nil

	case opFill:
		if len(incoming) != 1 {
			return codeMalformed
		}
		l, err := lease.NewWriteOnlySlice[byte](s.port, rm.Sender, 0, 0)
		if err != nil {
			return codeLeaseInvalid
		}
		pattern := bytes.Repeat(incoming[:1], l.Len())
		if err := l.WriteRange(0, l.Len(), pattern); err != nil {
			return codeLeaseGone
		}
		s.port.Reply(rm.Sender, 0, nil)
		return nil

	case opScale:
		if len(incoming) != 4 {
			return codeMalformed
		}
		factor := binary.LittleEndian.Uint32(incoming)
		l, err := lease.NewReadWriteSlice[uint32](s.port, rm.Sender, 0, 0)
		if err != nil {
			return codeLeaseInvalid
		}
		for i := 0; i < l.Len(); i++ {
			v, err := l.ReadAt(i)
			if err != nil {
				return codeLeaseGone
			}
			if err := l.WriteAt(i, v*factor); err != nil {
				return codeLeaseGone
			}
		}
		s.port.Reply(rm.Sender, 0, nil)
		return nil

	case opPeek:
		l, err := lease.NewReadOnly[uint64](s.port, rm.Sender, 0)
		if err != nil {
			return codeLeaseInvalid
		}
		v, err := l.Read()
		if err != nil {
			return codeLeaseGone
		}
		var out [8]byte
		binary.LittleEndian.PutUint64(out[:], v)
		s.port.Reply(rm.Sender, 0, out[:])
		return nil

	case opPoke:
		if len(incoming) != 8 {
			return codeMalformed
		}
		l, err := lease.NewWriteOnly[uint64](s.port, rm.Sender, 0)
		if err != nil {
			return codeLeaseInvalid
		}
		if err := l.Write(binary.LittleEndian.Uint64(incoming)); err != nil {
			return codeLeaseGone
		}
		s.port.Reply(rm.Sender, 0, nil)
		return nil

	default:
		return dispatch.CodeUnknownOp
	}
}
