package lease

import (
	"math"
	"unsafe"
)

// Element types must be plain old data: fixed size, no pointers, no
// padding whose contents matter. The accessors move values by naive
// byte copy through these views.

// Sizeof reports the in-memory size of one element of type T.
func Sizeof[T any]() int {
	var v T
	return int(unsafe.Sizeof(v))
}

// valueBytes views a single value as its raw bytes.
func valueBytes[T any](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), unsafe.Sizeof(*v))
}

// sliceBytes views a slice's backing array as raw bytes.
func sliceBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*Sizeof[T]())
}

// mulCheck multiplies two non-negative ints, failing rather than
// wrapping.
func mulCheck(a, b int) (int, error) {
	if a != 0 && b > math.MaxInt/a {
		return 0, ErrOverflow
	}
	return a * b, nil
}
