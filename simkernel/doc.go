// Package simkernel is an in-memory kernel implementing the sys
// contracts, for host-side development and tests.
//
// Semantics mirror the real kernel's message passing:
//   - Send is a synchronous rendezvous: the sender blocks until the
//     receiver replies or dies.
//   - Loans attached to a send are visible to the receiver through the
//     borrow primitives for the duration of that exchange only.
//   - Restarting a task bumps its generation: stale TaskIDs stop
//     matching, its loans are revoked, and peers blocked on it fail
//     rather than hang.
//   - Notifications are sticky bits cleared atomically by the receive
//     that observes them.
//
// Example:
//
//	k := simkernel.New(logger)
//	server := k.Spawn("echo-server")
//	client := k.Spawn("client")
//
//	go serve.Run(ctx, server, buf, srv, serve.Options{Logger: logger})
//
//	data := []byte("hello")
//	code, reply, err := client.Send(server.ID(), opEcho, nil, 64,
//		simkernel.Loan{Data: data, Attributes: sys.AttrRead})
package simkernel
