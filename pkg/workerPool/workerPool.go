// Package workerpool runs jobs on a fixed set of goroutines. Jobs are
// grouped in rooms; a room hands back its results in submission order.
package workerpool

import (
	"context"
	"errors"
	"runtime"
	"sync"
)

var (
	ErrQueueFull = errors.New("workerpool: global buffer is full")
	ErrRoomFull  = errors.New("workerpool: room buffer is full")
	ErrClosed    = errors.New("workerpool: closed")
)

type WorkerPool struct {
	config    Config
	taskQueue chan func()

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

type Config struct {
	// WorkerCount defaults to three workers per CPU.
	WorkerCount int
	// GlobalBuffer bounds the number of queued jobs across all rooms.
	GlobalBuffer int
}

func NewWorkerPool(config Config) *WorkerPool {
	if config.WorkerCount < 1 {
		config.WorkerCount = runtime.NumCPU() * 3
	}
	if config.GlobalBuffer < 1 {
		config.GlobalBuffer = 10000
	}

	wp := &WorkerPool{
		config:    config,
		taskQueue: make(chan func(), config.GlobalBuffer),
	}
	wp.wg.Add(config.WorkerCount)
	for i := 0; i < config.WorkerCount; i++ {
		go wp.worker()
	}
	return wp
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()
	for run := range wp.taskQueue {
		run()
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (wp *WorkerPool) Close() {
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return
	}
	wp.closed = true
	close(wp.taskQueue)
	wp.mu.Unlock()
	wp.wg.Wait()
}

func (wp *WorkerPool) enqueue(ctx context.Context, run func(), wait bool) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		return ErrClosed
	}
	if !wait {
		select {
		case wp.taskQueue <- run:
			return nil
		default:
			return ErrQueueFull
		}
	}
	select {
	case wp.taskQueue <- run:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Result is the outcome of one job.
type Result[T any] struct {
	Value T
	Err   error
}

// Room collects the results of a batch of jobs.
type Room[T any] struct {
	wp   *WorkerPool
	size int

	mu      sync.Mutex
	results []Result[T]
	wg      sync.WaitGroup
}

// NewRoom opens a room accepting up to size jobs. size < 1 means unbounded.
func NewRoom[T any](wp *WorkerPool, size int) *Room[T] {
	return &Room[T]{wp: wp, size: size}
}

func (ro *Room[T]) slot() (int, error) {
	ro.mu.Lock()
	defer ro.mu.Unlock()
	if ro.size > 0 && len(ro.results) >= ro.size {
		return 0, ErrRoomFull
	}
	ro.results = append(ro.results, Result[T]{})
	return len(ro.results) - 1, nil
}

func (ro *Room[T]) release() {
	ro.mu.Lock()
	ro.results = ro.results[:len(ro.results)-1]
	ro.mu.Unlock()
}

func (ro *Room[T]) submit(ctx context.Context, job func(context.Context) (T, error), wait bool) error {
	idx, err := ro.slot()
	if err != nil {
		return err
	}
	ro.wg.Add(1)
	run := func() {
		defer ro.wg.Done()
		v, err := job(ctx)
		ro.mu.Lock()
		ro.results[idx] = Result[T]{Value: v, Err: err}
		ro.mu.Unlock()
	}
	if err := ro.wp.enqueue(ctx, run, wait); err != nil {
		ro.wg.Done()
		ro.release()
		return err
	}
	return nil
}

// NewTaskWaitForFreeSlot queues job, blocking until the pool has room or
// ctx is done. Rooms are not safe for concurrent submission.
func (ro *Room[T]) NewTaskWaitForFreeSlot(ctx context.Context, job func(context.Context) (T, error)) error {
	return ro.submit(ctx, job, true)
}

// NewTask queues job or fails right away when a buffer is full.
func (ro *Room[T]) NewTask(ctx context.Context, job func(context.Context) (T, error)) error {
	return ro.submit(ctx, job, false)
}

// Collect waits for every queued job and returns the results in the order
// the jobs were submitted.
func (ro *Room[T]) Collect() []Result[T] {
	ro.wg.Wait()
	ro.mu.Lock()
	defer ro.mu.Unlock()
	out := make([]Result[T], len(ro.results))
	copy(out, ro.results)
	return out
}
