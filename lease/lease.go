package lease

import (
	"errors"

	"github.com/wrenos/taskrt/sys"
)

// Construction errors. A constructor that fails never yields a handle.
var (
	// ErrUnavailable means the lender is gone or the loan index is
	// invalid.
	ErrUnavailable = errors.New("lease: loan unavailable")
	// ErrAccess means the lender's attributes do not grant the
	// capability the handle requires.
	ErrAccess = errors.New("lease: attributes insufficient")
	// ErrSize means the loaned region does not hold an exact integral
	// number of elements, or the element type has zero size.
	ErrSize = errors.New("lease: region size mismatch")
	// ErrTooLong means the loaned region holds more elements than the
	// declared maximum.
	ErrTooLong = errors.New("lease: region exceeds maximum length")
)

// Access errors.
var (
	// ErrRevoked means a raw copy failed after the handle was
	// validated: the lender restarted and the loan's data is gone.
	// Handlers should abandon the request; the condition is not
	// transient.
	ErrRevoked = errors.New("lease: loan revoked")
	// ErrOverflow means an offset or length computation would wrap.
	ErrOverflow = errors.New("lease: offset arithmetic overflow")
)

// handle is the capability-free core shared by every lease type: the
// lender's identity, the loan's index in the lender's table, and the
// element count validated at construction. The access capability lives
// in the concrete type wrapping it, never as runtime data.
type handle struct {
	borrower sys.Borrower
	lender   sys.TaskID
	index    int
	count    int
}

// Lender returns the task that is lending the data.
func (h handle) Lender() sys.TaskID { return h.lender }

// LeaseIndex returns the loan's index in the lender's loan table, for
// raw operations outside this API.
func (h handle) LeaseIndex() int { return h.index }

// checkValue validates a single-value loan: the lender must exist, its
// attributes must include need, and the region must hold exactly one T.
func checkValue[T any](b sys.Borrower, lender sys.TaskID, index int, need sys.LeaseAttributes) (handle, error) {
	size := Sizeof[T]()
	if size == 0 {
		return handle{}, ErrSize
	}
	info, ok := b.BorrowInfo(lender, index)
	if !ok {
		return handle{}, ErrUnavailable
	}
	if !info.Attributes.Contains(need) {
		return handle{}, ErrAccess
	}
	if info.Len != size {
		return handle{}, ErrSize
	}
	return handle{borrower: b, lender: lender, index: index, count: 1}, nil
}

// checkSlice validates a slice loan: the region must be an exact
// multiple of the element size, and no longer than maxLen elements when
// maxLen is positive.
func checkSlice[T any](b sys.Borrower, lender sys.TaskID, index int, need sys.LeaseAttributes, maxLen int) (handle, error) {
	size := Sizeof[T]()
	if size == 0 {
		return handle{}, ErrSize
	}
	info, ok := b.BorrowInfo(lender, index)
	if !ok {
		return handle{}, ErrUnavailable
	}
	if !info.Attributes.Contains(need) {
		return handle{}, ErrAccess
	}
	if info.Len%size != 0 {
		return handle{}, ErrSize
	}
	count := info.Len / size
	if maxLen > 0 && count > maxLen {
		return handle{}, ErrTooLong
	}
	return handle{borrower: b, lender: lender, index: index, count: count}, nil
}

// ReadOnly is a lease of a single value of type T that may only be
// read.
type ReadOnly[T any] struct{ handle }

// WriteOnly is a lease of a single value of type T that may only be
// written.
type WriteOnly[T any] struct{ handle }

// ReadWrite is a lease of a single value of type T that may be both
// read and written.
type ReadWrite[T any] struct{ handle }

// ReadOnlySlice is a lease of a slice of T that may only be read.
type ReadOnlySlice[T any] struct{ handle }

// WriteOnlySlice is a lease of a slice of T that may only be written.
type WriteOnlySlice[T any] struct{ handle }

// ReadWriteSlice is a lease of a slice of T that may be both read and
// written.
type ReadWriteSlice[T any] struct{ handle }

// NewReadOnly validates and constructs a read-only lease of a single T.
// Intended to be called from generated server stub code, once per
// operation, before handler code runs.
func NewReadOnly[T any](b sys.Borrower, lender sys.TaskID, index int) (ReadOnly[T], error) {
	h, err := checkValue[T](b, lender, index, sys.AttrRead)
	if err != nil {
		return ReadOnly[T]{}, err
	}
	return ReadOnly[T]{h}, nil
}

// NewWriteOnly validates and constructs a write-only lease of a single
// T. Intended to be called from generated server stub code.
func NewWriteOnly[T any](b sys.Borrower, lender sys.TaskID, index int) (WriteOnly[T], error) {
	h, err := checkValue[T](b, lender, index, sys.AttrWrite)
	if err != nil {
		return WriteOnly[T]{}, err
	}
	return WriteOnly[T]{h}, nil
}

// NewReadWrite validates and constructs a read-write lease of a single
// T. The lender's attributes must grant both directions. Intended to be
// called from generated server stub code.
func NewReadWrite[T any](b sys.Borrower, lender sys.TaskID, index int) (ReadWrite[T], error) {
	h, err := checkValue[T](b, lender, index, sys.AttrRead|sys.AttrWrite)
	if err != nil {
		return ReadWrite[T]{}, err
	}
	return ReadWrite[T]{h}, nil
}

// NewReadOnlySlice validates and constructs a read-only slice lease.
// maxLen bounds the element count when positive; zero means unbounded.
func NewReadOnlySlice[T any](b sys.Borrower, lender sys.TaskID, index, maxLen int) (ReadOnlySlice[T], error) {
	h, err := checkSlice[T](b, lender, index, sys.AttrRead, maxLen)
	if err != nil {
		return ReadOnlySlice[T]{}, err
	}
	return ReadOnlySlice[T]{h}, nil
}

// NewWriteOnlySlice validates and constructs a write-only slice lease.
// maxLen bounds the element count when positive; zero means unbounded.
func NewWriteOnlySlice[T any](b sys.Borrower, lender sys.TaskID, index, maxLen int) (WriteOnlySlice[T], error) {
	h, err := checkSlice[T](b, lender, index, sys.AttrWrite, maxLen)
	if err != nil {
		return WriteOnlySlice[T]{}, err
	}
	return WriteOnlySlice[T]{h}, nil
}

// NewReadWriteSlice validates and constructs a read-write slice lease.
// The lender's attributes must grant both directions. maxLen bounds the
// element count when positive; zero means unbounded.
func NewReadWriteSlice[T any](b sys.Borrower, lender sys.TaskID, index, maxLen int) (ReadWriteSlice[T], error) {
	h, err := checkSlice[T](b, lender, index, sys.AttrRead|sys.AttrWrite, maxLen)
	if err != nil {
		return ReadWriteSlice[T]{}, err
	}
	return ReadWriteSlice[T]{h}, nil
}

// Len returns the number of elements validated at construction.
func (l ReadOnlySlice[T]) Len() int { return l.count }

// IsEmpty reports whether the leased slice has no elements.
func (l ReadOnlySlice[T]) IsEmpty() bool { return l.count == 0 }

// Len returns the number of elements validated at construction.
func (l WriteOnlySlice[T]) Len() int { return l.count }

// IsEmpty reports whether the leased slice has no elements.
func (l WriteOnlySlice[T]) IsEmpty() bool { return l.count == 0 }

// Len returns the number of elements validated at construction.
func (l ReadWriteSlice[T]) Len() int { return l.count }

// IsEmpty reports whether the leased slice has no elements.
func (l ReadWriteSlice[T]) IsEmpty() bool { return l.count == 0 }
