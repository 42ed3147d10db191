// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package parallel runs compute workgroups on a fixed set of goroutines.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool executes a 2-D grid of workgroups in parallel, the way a GPU
// spreads a dispatch over its execution units.
//
// Each worker owns a queue and steals from the others when its own queue is
// empty, which balances rows of uneven cost.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers int

	// queues holds one queue of workgroup rows per worker.
	queues []chan func()

	// enqueue is held shared while Dispatch hands out rows and exclusively
	// while Close stops the workers, so no row is queued after they exit.
	enqueue sync.RWMutex

	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewWorkerPool starts a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	queueSize := workers * 4
	if queueSize < 8 {
		queueSize = 8
	}

	p := &WorkerPool{
		workers: workers,
		queues:  make([]chan func(), workers),
		done:    make(chan struct{}),
	}
	for i := range workers {
		p.queues[i] = make(chan func(), queueSize)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

// worker runs rows from its own queue. When that queue is empty it takes a
// row from a neighbour before blocking; a large neighbourhood makes rows
// expensive, so an idle worker should not wait while others are backed up.
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	rows := p.queues[id]
	for {
		select {
		case <-p.done:
			runQueued(rows)
			return
		case row := <-rows:
			row()
		default:
			if row := p.takeRow(id); row != nil {
				row()
				continue
			}
			select {
			case <-p.done:
				runQueued(rows)
				return
			case row := <-rows:
				row()
			}
		}
	}
}

// runQueued runs the rows still queued when the pool stops. Every row
// carries a pending count that its Dispatch is waiting on.
func runQueued(rows chan func()) {
	for {
		select {
		case row := <-rows:
			row()
		default:
			return
		}
	}
}

// takeRow returns a queued row from any other worker, or nil.
func (p *WorkerPool) takeRow(id int) func() {
	for i := range p.workers {
		if i == id {
			continue
		}
		select {
		case row := <-p.queues[i]:
			return row
		default:
		}
	}
	return nil
}

// Dispatch runs fn once for every workgroup (wx, wy) with wx < groupsX and
// wy < groupsY, and returns when all of them have finished. Workgroups are
// handed out row by row, round-robin across workers.
//
// If the pool is closed, the workgroups run on the caller's goroutine so
// that a dispatch is never half applied.
func (p *WorkerPool) Dispatch(groupsX, groupsY uint32, fn func(wx, wy uint32)) {
	if groupsX == 0 || groupsY == 0 {
		return
	}

	var pending sync.WaitGroup
	pending.Add(int(groupsY))

	p.enqueue.RLock()
	inline := !p.running.Load()
	for wy := uint32(0); wy < groupsY; wy++ {
		row := wy
		work := func() {
			defer pending.Done()
			for wx := uint32(0); wx < groupsX; wx++ {
				fn(wx, row)
			}
		}
		if inline {
			work()
			continue
		}
		p.queues[int(row)%p.workers] <- work
	}
	p.enqueue.RUnlock()

	pending.Wait()
}

// Close stops the pool after the queued rows have run.
// Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	p.enqueue.Lock()
	close(p.done)
	p.enqueue.Unlock()
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning reports whether the pool accepts work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}
