package lease

import "fmt"

// Accessors re-validate at the moment of access: every raw copy must
// return the full expected byte count, and anything else means the
// lender restarted since construction. That outcome is recoverable and
// surfaces as ErrRevoked. Index and range misuse, by contrast, is a bug
// in handler code and panics.

// readValue copies the whole region into a fresh T.
func readValue[T any](h handle) (T, error) {
	var v T
	dest := valueBytes(&v)
	n, err := h.borrower.BorrowRead(h.lender, h.index, 0, dest)
	if err != nil || n != len(dest) {
		var zero T
		return zero, ErrRevoked
	}
	return v, nil
}

// writeValue copies v over the whole region.
func writeValue[T any](h handle, v T) error {
	src := valueBytes(&v)
	n, err := h.borrower.BorrowWrite(h.lender, h.index, 0, src)
	if err != nil || n != len(src) {
		return ErrRevoked
	}
	return nil
}

// readElem copies element i of the region into a fresh T.
func readElem[T any](h handle, i int) (T, error) {
	var zero T
	if i < 0 || i >= h.count {
		panic(fmt.Sprintf("lease: element index %d out of range [0:%d]", i, h.count))
	}
	offset, err := mulCheck(Sizeof[T](), i)
	if err != nil {
		return zero, err
	}
	var v T
	dest := valueBytes(&v)
	n, rerr := h.borrower.BorrowRead(h.lender, h.index, offset, dest)
	if rerr != nil || n != len(dest) {
		return zero, ErrRevoked
	}
	return v, nil
}

// writeElem copies v over element i of the region.
func writeElem[T any](h handle, i int, v T) error {
	if i < 0 || i >= h.count {
		panic(fmt.Sprintf("lease: element index %d out of range [0:%d]", i, h.count))
	}
	offset, err := mulCheck(Sizeof[T](), i)
	if err != nil {
		return err
	}
	src := valueBytes(&v)
	n, werr := h.borrower.BorrowWrite(h.lender, h.index, offset, src)
	if werr != nil || n != len(src) {
		return ErrRevoked
	}
	return nil
}

// checkRange validates [start:end) against the element count and the
// caller's storage, panicking on misuse. start == end is a legal empty
// range.
func checkRange(count, start, end, storage int) {
	if start < 0 || start > end || end > count {
		panic(fmt.Sprintf("lease: range [%d:%d] out of range [0:%d]", start, end, count))
	}
	if storage < end-start {
		panic(fmt.Sprintf("lease: storage holds %d elements, range needs %d", storage, end-start))
	}
}

// readRange copies elements [start:end) into dest.
func readRange[T any](h handle, start, end int, dest []T) error {
	checkRange(h.count, start, end, len(dest))
	offset, err := mulCheck(Sizeof[T](), start)
	if err != nil {
		return err
	}
	want, err := mulCheck(Sizeof[T](), end-start)
	if err != nil {
		return err
	}
	buf := sliceBytes(dest[:end-start])
	n, rerr := h.borrower.BorrowRead(h.lender, h.index, offset, buf)
	if rerr != nil || n != want {
		return ErrRevoked
	}
	return nil
}

// writeRange copies elements [start:end) from src.
func writeRange[T any](h handle, start, end int, src []T) error {
	checkRange(h.count, start, end, len(src))
	offset, err := mulCheck(Sizeof[T](), start)
	if err != nil {
		return err
	}
	want, err := mulCheck(Sizeof[T](), end-start)
	if err != nil {
		return err
	}
	buf := sliceBytes(src[:end-start])
	n, werr := h.borrower.BorrowWrite(h.lender, h.index, offset, buf)
	if werr != nil || n != want {
		return ErrRevoked
	}
	return nil
}

// Read copies the leased value out of the lender's memory. ErrRevoked
// means the lender restarted since the handle was validated; treat it
// as aborting the request.
func (l ReadOnly[T]) Read() (T, error) { return readValue[T](l.handle) }

// Read copies the leased value out of the lender's memory.
func (l ReadWrite[T]) Read() (T, error) { return readValue[T](l.handle) }

// Write copies v into the lender's memory. ErrRevoked means the lender
// restarted since the handle was validated; treat it as aborting the
// request.
func (l WriteOnly[T]) Write(v T) error { return writeValue(l.handle, v) }

// Write copies v into the lender's memory.
func (l ReadWrite[T]) Write(v T) error { return writeValue(l.handle, v) }

// ReadAt copies element i out of the leased slice. i must be less than
// Len or ReadAt panics, as with indexing a native slice.
func (l ReadOnlySlice[T]) ReadAt(i int) (T, error) { return readElem[T](l.handle, i) }

// ReadAt copies element i out of the leased slice. i must be less than
// Len or ReadAt panics.
func (l ReadWriteSlice[T]) ReadAt(i int) (T, error) { return readElem[T](l.handle, i) }

// ReadRange copies elements [start:end) into dest, which must hold at
// least end-start elements. Bounds misuse panics, as with slicing a
// native slice.
func (l ReadOnlySlice[T]) ReadRange(start, end int, dest []T) error {
	return readRange(l.handle, start, end, dest)
}

// ReadRange copies elements [start:end) into dest.
func (l ReadWriteSlice[T]) ReadRange(start, end int, dest []T) error {
	return readRange(l.handle, start, end, dest)
}

// WriteAt copies v over element i of the leased slice. i must be less
// than Len or WriteAt panics.
func (l WriteOnlySlice[T]) WriteAt(i int, v T) error { return writeElem(l.handle, i, v) }

// WriteAt copies v over element i of the leased slice. i must be less
// than Len or WriteAt panics.
func (l ReadWriteSlice[T]) WriteAt(i int, v T) error { return writeElem(l.handle, i, v) }

// WriteRange copies elements [start:end) from src, which must hold at
// least end-start elements. Bounds misuse panics.
func (l WriteOnlySlice[T]) WriteRange(start, end int, src []T) error {
	return writeRange(l.handle, start, end, src)
}

// WriteRange copies elements [start:end) from src.
func (l ReadWriteSlice[T]) WriteRange(start, end int, src []T) error {
	return writeRange(l.handle, start, end, src)
}
