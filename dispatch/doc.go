// Package dispatch provides the generic server dispatch loop: receive
// one message, resolve it to an operation, validate size bounds, and
// invoke handler code.
//
// Two variants exist. Dispatch serves interfaces without notifications;
// DispatchNotify additionally merges in kernel-originated notification
// bits and forwards them to the server's notification hook. Both handle
// exactly one message per call.
//
// Error protocol: the loop itself replies with CodeUnknownOp (1) for
// unrecognized operation codes and CodeTruncated (2) when a size bound
// fails, always with an empty payload. A handler either replies on its
// own (returning nil) or short-circuits with a ReplyCode, which the
// loop emits with an empty payload. Malformed and rejected requests
// therefore never require handler code to construct replies.
package dispatch
