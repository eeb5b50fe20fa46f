// Package sys defines the kernel primitive contracts the runtime is
// built against: task identity, received-message metadata, lease
// attributes, and the Borrower/IPC interfaces.
//
// The kernel itself lives elsewhere. On a real target these contracts
// are backed by system calls; package simkernel provides an in-memory
// implementation for host-side development and tests.
package sys
