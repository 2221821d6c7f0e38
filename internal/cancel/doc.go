// Package cancel provides cooperative cancellation for in-flight async work.
//
// A Source owns the state machine; the Token it hands out is the read and
// register side given to validators and submit handlers:
//
//	Open ──Cancel()──▶ CancellationRequested
//	  │
//	  └───Close()───▶ Closed
//
// Both terminal states are final. Cancelling never aborts work by itself:
// the work polls IsCancellationRequested or registers a callback.
//
// Sources and tokens are safe for concurrent use. Callbacks run on the
// goroutine that calls Cancel (or Register, if cancellation already
// happened), never while an internal lock is held.
package cancel
