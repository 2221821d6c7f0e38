// Package engine implements the slowforest form-state controller.
//
// The controller tracks field values over logical time, drives async
// validation requests through pending, running and resolved stages, runs
// one cancellable submit at a time, and aggregates errors from sync
// validators, the latest submit and resolved async validations, flagging
// errors whose inputs have since changed as outdated.
//
// ARCHITECTURE:
//
// Single-Writer Loop:
// All controller state is owned by one goroutine. Reads and mutations are
// commands executed in FIFO order, so there is no concurrent mutation and
// no lock around the state. Async validators and submit handlers run
// concurrently on caller goroutines; their results re-enter the loop as
// ordinary commands.
//
// Mutation Flow:
//  1. A public method enqueues a command and waits for it
//  2. The loop runs the command against the state (a txn)
//  3. The txn's events are delivered to observers, inside the loop
//  4. Deferred effects (token cancellation, AfterSubmit) and the change
//     handler run on the calling goroutine, outside the loop
//
// Acceptance:
// A late result is applied only if the request or attempt that produced it
// is still the current one. Last started wins, not last finished.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Every externally observable mutation ticks the Clock exactly once.
// NEVER use wall-clock timestamps for ordering.
//
// Cooperative Cancellation:
// Cancelling a token only notifies the work; the controller's acceptance
// check is what keeps a cancelled result out of the state.
package engine
