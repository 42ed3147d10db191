// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package software

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/mnca/internal/device"
)

// commandQueue executes commands one at a time, in submission order, on its
// own goroutine. It plays the role of the device queue: enqueue returns as
// soon as the command is accepted, wait returns once everything enqueued
// before it has run.
type commandQueue struct {
	mu       sync.Mutex
	commands chan func()
	closed   bool
	stopped  chan struct{}
}

func newCommandQueue(depth int) *commandQueue {
	q := &commandQueue{
		commands: make(chan func(), depth),
		stopped:  make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *commandQueue) run() {
	defer close(q.stopped)
	for cmd := range q.commands {
		q.execute(cmd)
	}
}

func (q *commandQueue) execute(cmd func()) {
	defer func() {
		if r := recover(); r != nil {
			slogger().Error("software: command panicked", "panic", fmt.Sprint(r))
		}
	}()
	cmd()
}

// enqueue appends cmd to the queue. It blocks only while the queue is full.
func (q *commandQueue) enqueue(cmd func()) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return device.ErrClosed
	}
	q.commands <- cmd
	return nil
}

// wait blocks until every command enqueued so far has executed.
func (q *commandQueue) wait(timeout time.Duration) error {
	fence := make(chan struct{})
	if err := q.enqueue(func() { close(fence) }); err != nil {
		return err
	}
	select {
	case <-fence:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("software: queue wait timed out after %v", timeout)
	}
}

// close stops accepting commands, lets the queued ones finish and stops the
// queue goroutine. Safe to call multiple times.
func (q *commandQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.stopped
		return
	}
	q.closed = true
	close(q.commands)
	q.mu.Unlock()
	<-q.stopped
}
