package dispatch_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrenos/taskrt/dispatch"
	"github.com/wrenos/taskrt/sys"
)

// testOp is a two-member interface enumeration.
type testOp uint32

const (
	opEcho testOp = 1 // small reply
	opBulk testOp = 2 // large reply
)

func (testOp) FromCode(code uint32) (testOp, bool) {
	switch op := testOp(code); op {
	case opEcho, opBulk:
		return op, true
	default:
		return 0, false
	}
}

func (o testOp) MaxReplySize() int {
	if o == opBulk {
		return 128
	}
	return 8
}

type reply struct {
	to      sys.TaskID
	code    uint32
	payload []byte
}

// fakeIPC scripts exactly one receive and records replies and the
// receive arguments.
type fakeIPC struct {
	rm      sys.RecvMessage
	msg     []byte
	recvErr error

	gotMask   uint32
	gotSource *sys.TaskID
	replies   []reply
}

func (f *fakeIPC) Recv(buf []byte, notificationMask uint32, source *sys.TaskID) (sys.RecvMessage, error) {
	f.gotMask = notificationMask
	f.gotSource = source
	if f.recvErr != nil {
		return sys.RecvMessage{}, f.recvErr
	}
	copy(buf, f.msg)
	return f.rm, nil
}

func (f *fakeIPC) Reply(to sys.TaskID, code uint32, payload []byte) {
	f.replies = append(f.replies, reply{to: to, code: code, payload: append([]byte(nil), payload...)})
}

func (f *fakeIPC) BorrowInfo(lender sys.TaskID, index int) (sys.BorrowInfo, bool) {
	return sys.BorrowInfo{}, false
}

func (f *fakeIPC) BorrowRead(lender sys.TaskID, index, offset int, dest []byte) (int, error) {
	return 0, errors.New("no loans")
}

func (f *fakeIPC) BorrowWrite(lender sys.TaskID, index, offset int, src []byte) (int, error) {
	return 0, errors.New("no loans")
}

type handled struct {
	op       testOp
	incoming []byte
	rm       sys.RecvMessage
}

type testServer struct {
	source      *sys.TaskID
	handleErr   error
	mask        uint32
	calls       []handled
	notes       []uint32
	closedFails int
}

func (s *testServer) RecvSource() (sys.TaskID, bool) {
	if s.source == nil {
		return 0, false
	}
	return *s.source, true
}

func (s *testServer) ClosedRecvFail() { s.closedFails++ }

func (s *testServer) Handle(op testOp, incoming []byte, rm *sys.RecvMessage) error {
	s.calls = append(s.calls, handled{op: op, incoming: append([]byte(nil), incoming...), rm: *rm})
	return s.handleErr
}

func (s *testServer) NotificationMask() uint32 { return s.mask }

func (s *testServer) HandleNotification(bits uint32) { s.notes = append(s.notes, bits) }

const sender sys.TaskID = 7

func TestDispatchHandled(t *testing.T) {
	k := &fakeIPC{
		rm:  sys.RecvMessage{Sender: sender, Operation: uint32(opEcho), MessageLen: 4, ResponseCapacity: 8},
		msg: []byte("ping"),
	}
	srv := &testServer{}
	buf := make([]byte, 16)

	outcome := dispatch.Dispatch[testOp](k, buf, srv)

	assert.Equal(t, dispatch.OutcomeHandled, outcome)
	require.Len(t, srv.calls, 1)
	assert.Equal(t, opEcho, srv.calls[0].op)
	assert.Equal(t, []byte("ping"), srv.calls[0].incoming)
	assert.Equal(t, sender, srv.calls[0].rm.Sender)
	// The handler replies itself; the loop must not.
	assert.Empty(t, k.replies)
}

func TestDispatchUnknownOp(t *testing.T) {
	k := &fakeIPC{
		rm: sys.RecvMessage{Sender: sender, Operation: 99, MessageLen: 0, ResponseCapacity: 256},
	}
	srv := &testServer{}

	outcome := dispatch.Dispatch[testOp](k, make([]byte, 16), srv)

	assert.Equal(t, dispatch.OutcomeUnknownOp, outcome)
	assert.Empty(t, srv.calls)
	require.Len(t, k.replies, 1)
	assert.Equal(t, sender, k.replies[0].to)
	assert.Equal(t, uint32(dispatch.CodeUnknownOp), k.replies[0].code)
	assert.Empty(t, k.replies[0].payload)
}

func TestDispatchIncomingTooLarge(t *testing.T) {
	buf := make([]byte, 16)
	k := &fakeIPC{
		rm: sys.RecvMessage{Sender: sender, Operation: uint32(opEcho), MessageLen: len(buf) + 1, ResponseCapacity: 256},
	}
	srv := &testServer{}

	outcome := dispatch.Dispatch[testOp](k, buf, srv)

	assert.Equal(t, dispatch.OutcomeTruncated, outcome)
	assert.Empty(t, srv.calls)
	require.Len(t, k.replies, 1)
	assert.Equal(t, uint32(dispatch.CodeTruncated), k.replies[0].code)
	assert.Empty(t, k.replies[0].payload)
}

func TestDispatchReplyCapacityTooSmall(t *testing.T) {
	k := &fakeIPC{
		rm: sys.RecvMessage{Sender: sender, Operation: uint32(opBulk), MessageLen: 0, ResponseCapacity: 64},
	}
	srv := &testServer{}

	outcome := dispatch.Dispatch[testOp](k, make([]byte, 16), srv)

	assert.Equal(t, dispatch.OutcomeTruncated, outcome)
	assert.Empty(t, srv.calls)
	require.Len(t, k.replies, 1)
	assert.Equal(t, uint32(dispatch.CodeTruncated), k.replies[0].code)
}

func TestDispatchHandlerReplyCode(t *testing.T) {
	k := &fakeIPC{
		rm: sys.RecvMessage{Sender: sender, Operation: uint32(opEcho), MessageLen: 0, ResponseCapacity: 8},
	}
	srv := &testServer{handleErr: dispatch.ReplyCode(0x42)}

	outcome := dispatch.Dispatch[testOp](k, make([]byte, 16), srv)

	assert.Equal(t, dispatch.OutcomeHandlerError, outcome)
	require.Len(t, k.replies, 1)
	assert.Equal(t, uint32(0x42), k.replies[0].code)
	assert.Empty(t, k.replies[0].payload)
}

func TestDispatchHandlerWrappedReplyCode(t *testing.T) {
	k := &fakeIPC{
		rm: sys.RecvMessage{Sender: sender, Operation: uint32(opEcho), MessageLen: 0, ResponseCapacity: 8},
	}
	srv := &testServer{handleErr: fmt.Errorf("lease gone: %w", dispatch.ReplyCode(9))}

	outcome := dispatch.Dispatch[testOp](k, make([]byte, 16), srv)

	assert.Equal(t, dispatch.OutcomeHandlerError, outcome)
	require.Len(t, k.replies, 1)
	assert.Equal(t, uint32(9), k.replies[0].code)
}

func TestDispatchHandlerBadErrorPanics(t *testing.T) {
	k := &fakeIPC{
		rm: sys.RecvMessage{Sender: sender, Operation: uint32(opEcho), MessageLen: 0, ResponseCapacity: 8},
	}
	srv := &testServer{handleErr: errors.New("not a reply code")}

	assert.Panics(t, func() {
		dispatch.Dispatch[testOp](k, make([]byte, 16), srv)
	})
	assert.Empty(t, k.replies)
}

func TestDispatchClosedRecvFail(t *testing.T) {
	peer := sender
	k := &fakeIPC{recvErr: sys.ErrSenderLost}
	srv := &testServer{source: &peer}

	outcome := dispatch.Dispatch[testOp](k, make([]byte, 16), srv)

	assert.Equal(t, dispatch.OutcomeRecvFailed, outcome)
	assert.Equal(t, 1, srv.closedFails)
	assert.Empty(t, k.replies)
	require.NotNil(t, k.gotSource)
	assert.Equal(t, peer, *k.gotSource)
}

func TestDispatchPortClosed(t *testing.T) {
	k := &fakeIPC{recvErr: sys.ErrPortClosed}
	srv := &testServer{}

	outcome := dispatch.Dispatch[testOp](k, make([]byte, 16), srv)

	assert.Equal(t, dispatch.OutcomePortClosed, outcome)
	// Port shutdown is not a peer failure.
	assert.Zero(t, srv.closedFails)
	assert.Empty(t, k.replies)
}

func TestDispatchOpenReceiveMask(t *testing.T) {
	k := &fakeIPC{
		rm: sys.RecvMessage{Sender: sender, Operation: uint32(opEcho), MessageLen: 0, ResponseCapacity: 8},
	}
	// A plain Dispatch never admits notifications, whatever the server
	// type implements.
	srv := &testServer{mask: 0xFF}

	dispatch.Dispatch[testOp](k, make([]byte, 16), srv)

	assert.Zero(t, k.gotMask)
	assert.Nil(t, k.gotSource)
}

func TestDispatchNotifyNotification(t *testing.T) {
	k := &fakeIPC{
		rm: sys.RecvMessage{Sender: sys.Kernel, Operation: 0x4},
	}
	srv := &testServer{mask: 0x6}

	outcome := dispatch.DispatchNotify[testOp](k, make([]byte, 16), srv)

	assert.Equal(t, dispatch.OutcomeNotification, outcome)
	assert.Equal(t, uint32(0x6), k.gotMask)
	assert.Equal(t, []uint32{0x4}, srv.notes)
	// Notifications have no sender to answer.
	assert.Empty(t, k.replies)
	assert.Empty(t, srv.calls)
}

func TestDispatchNotifyStillValidatesBounds(t *testing.T) {
	buf := make([]byte, 16)
	k := &fakeIPC{
		rm: sys.RecvMessage{Sender: sender, Operation: uint32(opEcho), MessageLen: len(buf) + 1, ResponseCapacity: 256},
	}
	srv := &testServer{mask: 0x1}

	outcome := dispatch.DispatchNotify[testOp](k, buf, srv)

	assert.Equal(t, dispatch.OutcomeTruncated, outcome)
	assert.Empty(t, srv.calls)
	require.Len(t, k.replies, 1)
	assert.Equal(t, uint32(dispatch.CodeTruncated), k.replies[0].code)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "handled", dispatch.OutcomeHandled.String())
	assert.Equal(t, "port_closed", dispatch.OutcomePortClosed.String())
	assert.Equal(t, "invalid", dispatch.Outcome(99).String())
}
