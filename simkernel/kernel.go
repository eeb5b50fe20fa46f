package simkernel

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wrenos/taskrt/sys"
)

var (
	// ErrPeerGone means the peer task is dead, restarted, or never
	// existed.
	ErrPeerGone = errors.New("simkernel: peer task is gone")
	// ErrRestarted means the calling task's incarnation was restarted
	// while it was blocked.
	ErrRestarted = errors.New("simkernel: task restarted")
	// ErrTaskNotFound means no live task matches the given ID.
	ErrTaskNotFound = errors.New("simkernel: task not found")

	errBorrow = errors.New("simkernel: invalid borrow")
)

// Loan declares one entry in a send's loan table: the client's memory
// and the access granted on it. The server reaches the data only
// through the borrow primitives; Data stays owned by the client.
type Loan struct {
	Data       []byte
	Attributes sys.LeaseAttributes
}

// Kernel is an in-memory implementation of the sys contracts: tasks
// with restart generations, synchronous send/receive/reply rendezvous,
// per-exchange loan tables, and notification bits. It exists for
// host-side development and tests; on a real target the contracts are
// backed by system calls.
type Kernel struct {
	log *zap.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	closed bool

	tasks     map[uint16]*task
	nextIndex uint16

	// active holds exchanges that a server has received but not yet
	// replied to, keyed by (server, sender). Borrow calls resolve
	// against this table.
	active map[exchangeKey]*exchange
}

type exchangeKey struct {
	server sys.TaskID
	sender sys.TaskID
}

type task struct {
	id    sys.TaskID
	label string
	queue []*exchange
	notif uint32
}

// exchange is one in-flight send: message, declared reply capacity,
// loan table, and the channel the sender blocks on.
type exchange struct {
	from     sys.TaskID
	op       uint32
	msg      []byte
	replyCap int
	loans    []Loan
	done     chan result
}

type result struct {
	code    uint32
	payload []byte
	err     error
}

// New creates an empty kernel. A nil logger disables logging.
func New(log *zap.Logger) *Kernel {
	if log == nil {
		log = zap.NewNop()
	}
	k := &Kernel{
		log:    log,
		tasks:  make(map[uint16]*task),
		active: make(map[exchangeKey]*exchange),
	}
	k.cond = sync.NewCond(&k.mu)
	return k
}

// Spawn creates a task and returns its port. label is for logs only; an
// empty label gets a generated one.
func (k *Kernel) Spawn(label string) *Port {
	k.mu.Lock()
	defer k.mu.Unlock()

	if label == "" {
		label = uuid.NewString()
	}
	index := k.nextIndex
	k.nextIndex++
	t := &task{id: sys.MakeTaskID(index, 0), label: label}
	k.tasks[index] = t

	k.log.Info("task spawned",
		zap.String("label", label),
		zap.Uint32("task", uint32(t.id)),
	)
	return &Port{k: k, id: t.id}
}

// lookup resolves an ID to a live task, requiring the generation to
// match. Callers hold k.mu.
func (k *Kernel) lookup(id sys.TaskID) *task {
	t := k.tasks[id.Index()]
	if t == nil || t.id != id {
		return nil
	}
	return t
}

// Restart destroys the task's current incarnation and starts a new one
// in the same slot with a bumped generation. Messages queued to or from
// the old incarnation are aborted, in-flight exchanges involving it are
// torn down (revoking its loans), and blocked peers are woken. It
// returns the new incarnation's port.
func (k *Kernel) Restart(id sys.TaskID) (*Port, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	old := k.lookup(id)
	if old == nil {
		return nil, ErrTaskNotFound
	}

	// Abort sends queued to the old incarnation.
	for _, ex := range old.queue {
		ex.done <- result{err: ErrPeerGone}
	}

	// Abort sends queued from the old incarnation to anyone else.
	for _, t := range k.tasks {
		if t == old {
			continue
		}
		kept := t.queue[:0]
		for _, ex := range t.queue {
			if ex.from == id {
				ex.done <- result{err: ErrRestarted}
				continue
			}
			kept = append(kept, ex)
		}
		t.queue = kept
	}

	// Tear down in-flight exchanges: loans from the old incarnation
	// are revoked, and senders blocked on it are failed.
	for key, ex := range k.active {
		switch id {
		case key.sender:
			ex.done <- result{err: ErrRestarted}
			delete(k.active, key)
		case key.server:
			ex.done <- result{err: ErrPeerGone}
			delete(k.active, key)
		}
	}

	fresh := &task{
		id:    sys.MakeTaskID(id.Index(), id.Generation()+1),
		label: old.label,
	}
	k.tasks[id.Index()] = fresh
	k.cond.Broadcast()

	k.log.Info("task restarted",
		zap.String("label", fresh.label),
		zap.Uint32("old", uint32(id)),
		zap.Uint32("new", uint32(fresh.id)),
	)
	return &Port{k: k, id: fresh.id}, nil
}

// Notify posts notification bits to a task. The bits accumulate until a
// receive whose mask admits them observes and clears them.
func (k *Kernel) Notify(id sys.TaskID, bits uint32) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	t := k.lookup(id)
	if t == nil {
		return ErrTaskNotFound
	}
	t.notif |= bits
	k.cond.Broadcast()
	return nil
}

// Close shuts the kernel down: every blocked send fails, every blocked
// receive returns sys.ErrPortClosed, and further calls fail.
func (k *Kernel) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return
	}
	k.closed = true

	for _, t := range k.tasks {
		for _, ex := range t.queue {
			ex.done <- result{err: sys.ErrPortClosed}
		}
		t.queue = nil
	}
	for key, ex := range k.active {
		ex.done <- result{err: sys.ErrPortClosed}
		delete(k.active, key)
	}
	k.cond.Broadcast()
	k.log.Info("kernel closed")
}
