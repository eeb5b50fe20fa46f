package dispatch

import (
	"errors"
	"fmt"

	"github.com/wrenos/taskrt/sys"
)

// Op is the contract an interface's operation enumeration satisfies.
// The concrete type is a closed, dense enum generated per interface;
// FromCode converts the numeric code carried in a message and fails for
// codes outside the enumeration.
type Op[O any] interface {
	// FromCode converts a wire operation code to an enum member.
	FromCode(code uint32) (O, bool)
	// MaxReplySize reports the largest reply this operation may
	// produce, in bytes. The dispatch loop rejects messages whose
	// declared reply capacity is smaller, so handler code is never
	// asked to produce a reply that cannot be returned.
	MaxReplySize() int
}

// Server is implemented once per server type, normally by generated
// stub code wrapping the handwritten implementation.
type Server[O Op[O]] interface {
	// RecvSource names the only sender to accept (closed receive).
	// Returning false selects an open receive.
	RecvSource() (sys.TaskID, bool)

	// ClosedRecvFail is called when a closed receive failed because
	// the named task died. Typically the server drops its record of
	// the peer. No reply is sent; there is no remaining recipient.
	ClosedRecvFail()

	// Handle processes one message. Returning nil means the server
	// has already replied; returning a ReplyCode asks the loop to
	// emit that code with an empty payload. Any other error is a bug
	// and panics.
	Handle(op O, incoming []byte, rm *sys.RecvMessage) error
}

// NotificationHandler is implemented, by hand, by servers that accept
// kernel notifications. Dispatch loops that route notifications require
// it in addition to Server.
type NotificationHandler interface {
	// NotificationMask returns the mask to pass to receive. Zero
	// accepts no notifications.
	NotificationMask() uint32

	// HandleNotification processes notification bits that were
	// observed set (and atomically cleared).
	HandleNotification(bits uint32)
}

// NotifyServer is a Server that also routes notifications.
type NotifyServer[O Op[O]] interface {
	Server[O]
	NotificationHandler
}

// ReplyCode is a status code sent back to a client with an empty
// payload. Codes 1 and 2 are reserved by the dispatch loop; everything
// else is handler-defined per interface.
type ReplyCode uint32

const (
	// CodeUnknownOp is replied when the operation code does not match
	// any member of the interface's enumeration.
	CodeUnknownOp ReplyCode = 1
	// CodeTruncated is replied when the incoming message is larger
	// than the scratch buffer, or the declared reply capacity is
	// smaller than the operation's maximum reply size.
	CodeTruncated ReplyCode = 2
)

// Error implements error so handlers can short-circuit with a code.
func (c ReplyCode) Error() string {
	return fmt.Sprintf("reply code %d", uint32(c))
}

// Outcome reports how one dispatch call disposed of its message.
type Outcome int

const (
	// OutcomeRecvFailed: the closed receive's named sender died; the
	// server's ClosedRecvFail hook ran and no reply was sent.
	OutcomeRecvFailed Outcome = iota
	// OutcomePortClosed: the port was shut down; nothing was received
	// and no hook ran.
	OutcomePortClosed
	// OutcomeNotification: kernel notification forwarded to the
	// server's notification hook; no reply.
	OutcomeNotification
	// OutcomeUnknownOp: rejected with CodeUnknownOp before the
	// handler ran.
	OutcomeUnknownOp
	// OutcomeTruncated: rejected with CodeTruncated before the
	// handler ran.
	OutcomeTruncated
	// OutcomeHandled: the handler accepted the message and replied
	// itself.
	OutcomeHandled
	// OutcomeHandlerError: the handler returned a ReplyCode and the
	// loop emitted it with an empty payload.
	OutcomeHandlerError
)

// String returns a stable label, used for logging and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeRecvFailed:
		return "recv_failed"
	case OutcomePortClosed:
		return "port_closed"
	case OutcomeNotification:
		return "notification"
	case OutcomeUnknownOp:
		return "unknown_op"
	case OutcomeTruncated:
		return "truncated"
	case OutcomeHandled:
		return "handled"
	case OutcomeHandlerError:
		return "handler_error"
	default:
		return "invalid"
	}
}

// Dispatch receives and fully disposes of exactly one message on behalf
// of srv. buf is scratch space for incoming messages and must be large
// enough for any message in the interface srv implements. The call
// always returns after one message: forwarded, rejected, or handled.
// Callers invoke it again for the next message; there is no internal
// iteration.
//
// Servers that accept notifications use DispatchNotify instead.
func Dispatch[O Op[O]](k sys.IPC, buf []byte, srv Server[O]) Outcome {
	return run[O](k, buf, srv, nil)
}

// DispatchNotify is Dispatch for servers that accept kernel
// notifications: the receive admits the server's current notification
// mask, and a kernel-originated message is forwarded to the
// notification hook with no further processing and no reply.
func DispatchNotify[O Op[O]](k sys.IPC, buf []byte, srv NotifyServer[O]) Outcome {
	return run[O](k, buf, srv, srv)
}

func run[O Op[O]](k sys.IPC, buf []byte, srv Server[O], nh NotificationHandler) Outcome {
	var mask uint32
	if nh != nil {
		mask = nh.NotificationMask()
	}

	var source *sys.TaskID
	if id, ok := srv.RecvSource(); ok {
		source = &id
	}

	rm, err := k.Recv(buf, mask, source)
	if err != nil {
		if errors.Is(err, sys.ErrPortClosed) {
			return OutcomePortClosed
		}
		srv.ClosedRecvFail()
		return OutcomeRecvFailed
	}

	if nh != nil && rm.Sender == sys.Kernel {
		nh.HandleNotification(rm.Operation)
		return OutcomeNotification
	}

	var probe O
	op, ok := probe.FromCode(rm.Operation)
	if !ok {
		k.Reply(rm.Sender, uint32(CodeUnknownOp), nil)
		return OutcomeUnknownOp
	}

	// Both bounds must hold before the handler runs: the message must
	// have fit the scratch buffer, and the caller must be able to
	// accept the largest reply this operation can produce.
	if rm.MessageLen > len(buf) || rm.ResponseCapacity < op.MaxReplySize() {
		k.Reply(rm.Sender, uint32(CodeTruncated), nil)
		return OutcomeTruncated
	}

	if err := srv.Handle(op, buf[:rm.MessageLen], &rm); err != nil {
		var code ReplyCode
		if !errors.As(err, &code) {
			panic(fmt.Sprintf("dispatch: handler returned non-ReplyCode error: %v", err))
		}
		k.Reply(rm.Sender, uint32(code), nil)
		return OutcomeHandlerError
	}
	// The handler replied itself.
	return OutcomeHandled
}
