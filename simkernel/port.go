package simkernel

import (
	"go.uber.org/zap"

	"github.com/wrenos/taskrt/sys"
)

// Port is one task's handle on the kernel. It implements sys.IPC for
// the server side and adds Send for the client side. A port belongs to
// one incarnation: after the task is restarted, the stale port's calls
// fail.
type Port struct {
	k  *Kernel
	id sys.TaskID
}

// ID returns the task's identity as peers see it.
func (p *Port) ID() sys.TaskID { return p.id }

// Send delivers one message to another task and blocks until that task
// replies or dies. replyCap declares how many reply payload bytes the
// sender can accept; longer replies are truncated to it. Each loan is
// visible to the receiver, through the borrow primitives, for the
// duration of this exchange only.
func (p *Port) Send(to sys.TaskID, op uint32, msg []byte, replyCap int, loans ...Loan) (uint32, []byte, error) {
	k := p.k
	k.mu.Lock()

	if k.closed {
		k.mu.Unlock()
		return 0, nil, sys.ErrPortClosed
	}
	if k.lookup(p.id) == nil {
		k.mu.Unlock()
		return 0, nil, ErrRestarted
	}
	target := k.lookup(to)
	if target == nil {
		k.mu.Unlock()
		return 0, nil, ErrPeerGone
	}

	body := make([]byte, len(msg))
	copy(body, msg)
	ex := &exchange{
		from:     p.id,
		op:       op,
		msg:      body,
		replyCap: replyCap,
		loans:    loans,
		done:     make(chan result, 1),
	}
	target.queue = append(target.queue, ex)
	k.cond.Broadcast()
	k.mu.Unlock()

	res := <-ex.done
	if res.err != nil {
		return 0, nil, res.err
	}
	return res.code, res.payload, nil
}

// Recv implements sys.IPC. It blocks until a message or an admitted
// notification is available for this task.
func (p *Port) Recv(buf []byte, notificationMask uint32, source *sys.TaskID) (sys.RecvMessage, error) {
	k := p.k
	k.mu.Lock()
	defer k.mu.Unlock()

	for {
		if k.closed {
			return sys.RecvMessage{}, sys.ErrPortClosed
		}
		self := k.lookup(p.id)
		if self == nil {
			// This incarnation was restarted out from under us.
			return sys.RecvMessage{}, sys.ErrPortClosed
		}

		if bits := self.notif & notificationMask; bits != 0 {
			self.notif &^= bits
			return sys.RecvMessage{Sender: sys.Kernel, Operation: bits}, nil
		}

		for i, ex := range self.queue {
			if source != nil && ex.from != *source {
				continue
			}
			self.queue = append(self.queue[:i], self.queue[i+1:]...)
			k.active[exchangeKey{server: p.id, sender: ex.from}] = ex
			copy(buf, ex.msg)
			return sys.RecvMessage{
				Sender:           ex.from,
				Operation:        ex.op,
				MessageLen:       len(ex.msg),
				ResponseCapacity: ex.replyCap,
				LeaseCount:       len(ex.loans),
			}, nil
		}

		if source != nil && k.lookup(*source) == nil {
			return sys.RecvMessage{}, sys.ErrSenderLost
		}

		k.cond.Wait()
	}
}

// Reply implements sys.IPC. It completes the pending exchange from the
// given sender; the payload is truncated to the sender's declared reply
// capacity. A reply with no pending exchange is dropped: the send side
// already failed and there is no recipient.
func (p *Port) Reply(to sys.TaskID, code uint32, payload []byte) {
	k := p.k
	k.mu.Lock()
	defer k.mu.Unlock()

	key := exchangeKey{server: p.id, sender: to}
	ex := k.active[key]
	if ex == nil {
		k.log.Warn("reply with no pending exchange",
			zap.Uint32("server", uint32(p.id)),
			zap.Uint32("to", uint32(to)),
		)
		return
	}
	delete(k.active, key)

	if len(payload) > ex.replyCap {
		payload = payload[:ex.replyCap]
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	ex.done <- result{code: code, payload: out}
}

// loan resolves a borrow against the live exchange from lender to this
// task. Callers hold k.mu.
func (p *Port) loan(lender sys.TaskID, index int) (Loan, bool) {
	ex := p.k.active[exchangeKey{server: p.id, sender: lender}]
	if ex == nil || index < 0 || index >= len(ex.loans) {
		return Loan{}, false
	}
	return ex.loans[index], true
}

// BorrowInfo implements sys.Borrower.
func (p *Port) BorrowInfo(lender sys.TaskID, index int) (sys.BorrowInfo, bool) {
	p.k.mu.Lock()
	defer p.k.mu.Unlock()

	l, ok := p.loan(lender, index)
	if !ok {
		return sys.BorrowInfo{}, false
	}
	return sys.BorrowInfo{Len: len(l.Data), Attributes: l.Attributes}, true
}

// BorrowRead implements sys.Borrower. It copies at most len(dest) bytes
// from the loan, starting at offset, and fails if the loan is gone,
// unreadable, or the offset is out of range.
func (p *Port) BorrowRead(lender sys.TaskID, index, offset int, dest []byte) (int, error) {
	p.k.mu.Lock()
	defer p.k.mu.Unlock()

	l, ok := p.loan(lender, index)
	if !ok || !l.Attributes.Contains(sys.AttrRead) {
		return 0, errBorrow
	}
	if offset < 0 || offset > len(l.Data) {
		return 0, errBorrow
	}
	return copy(dest, l.Data[offset:]), nil
}

// BorrowWrite implements sys.Borrower. It copies at most len(src) bytes
// into the loan, starting at offset, and fails if the loan is gone,
// unwritable, or the offset is out of range.
func (p *Port) BorrowWrite(lender sys.TaskID, index, offset int, src []byte) (int, error) {
	p.k.mu.Lock()
	defer p.k.mu.Unlock()

	l, ok := p.loan(lender, index)
	if !ok || !l.Attributes.Contains(sys.AttrWrite) {
		return 0, errBorrow
	}
	if offset < 0 || offset > len(l.Data) {
		return 0, errBorrow
	}
	return copy(l.Data[offset:], src), nil
}
