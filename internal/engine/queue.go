package engine

import "sync"

// command is one unit of work executed by the controller loop.
// done is closed once run has returned.
type command struct {
	run  func()
	done chan struct{}
}

// commandQueue is a thread-safe, unbounded FIFO of commands.
//
// Validator and submit handler goroutines enqueue their results while the
// controller loop dequeues, so producers never block on a slow consumer.
//
// The queue uses a channel for signaling so the loop can wait without
// polling. The signal channel is buffered (size 1) and coalesces multiple
// enqueues; closing the queue closes it, which wakes the loop for good.
type commandQueue struct {
	mu       sync.Mutex
	commands []command
	closed   bool
	signal   chan struct{}
}

func newCommandQueue() *commandQueue {
	return &commandQueue{
		commands: make([]command, 0, 16),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds cmd to the back of the queue.
// Returns false if the queue is closed.
func (q *commandQueue) Enqueue(cmd command) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.commands = append(q.commands, cmd)

	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes and returns the front command without blocking.
func (q *commandQueue) TryDequeue() (command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.commands) == 0 {
		return command{}, false
	}

	cmd := q.commands[0]

	// Nil out the slot so the closure can be collected.
	q.commands[0] = command{}
	if len(q.commands) == 1 {
		q.commands = q.commands[:0]
	} else {
		q.commands = q.commands[1:]
	}

	return cmd, true
}

// Wait returns a channel that signals when commands may be available.
func (q *commandQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *commandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.commands)
}

// Drained reports whether the queue is closed and empty. A drained queue
// never yields another command.
func (q *commandQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.commands) == 0
}

// Close stops accepting commands. Commands already queued are still
// dequeued.
func (q *commandQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
