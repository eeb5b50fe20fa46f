// Package lease provides capability-typed handles to memory regions a
// client task loans to a server for the duration of one exchange.
//
// A handle never owns or dereferences the lender's memory; every access
// goes through the kernel's raw borrow primitives and is re-validated
// at the moment of use, because the lender may be destroyed and
// restarted at any point between validation and access.
//
// Capabilities are encoded in the type, not in runtime data: read
// methods exist only on ReadOnly/ReadWrite handles and write methods
// only on WriteOnly/ReadWrite handles, so an illegal access pattern is
// a compile error. Six concrete types cover {read, write, read-write}
// x {single value, slice}.
//
// Failure discipline:
//   - Construction failures (lender gone, attributes insufficient,
//     size mismatch) return an error and no handle.
//   - Access races (lender restarted after construction) return
//     ErrRevoked; handlers should abandon the request.
//   - Index/range misuse panics: it is a bug in handler code, never an
//     environmental condition.
package lease
