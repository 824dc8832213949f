package utils

import (
	"context"
	"sync"
	"time"
)

// WorkerPool runs jobs on a bounded number of goroutines, optionally spacing
// job starts by a minimum interval.
type WorkerPool struct {
	size        int
	minInterval time.Duration
	semaphore   chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	lastStart   time.Time
}

// NewWorkerPool creates a WorkerPool with the given concurrency and start
// spacing in milliseconds. A size below one is treated as one.
func NewWorkerPool(size, rateLimitMs int) *WorkerPool {
	if size < 1 {
		size = 1
	}
	return &WorkerPool{
		size:        size,
		minInterval: time.Duration(rateLimitMs) * time.Millisecond,
		semaphore:   make(chan struct{}, size),
	}
}

// PoolSize returns one worker per job, capped at limit.
func PoolSize(jobs, limit int) int {
	if limit > 0 && jobs > limit {
		return limit
	}
	if jobs < 1 {
		return 1
	}
	return jobs
}

// Size reports the number of concurrent workers.
func (wp *WorkerPool) Size() int {
	return wp.size
}

// Submit enqueues a job for execution in the pool. It blocks while every
// worker is busy. The job always runs, even when ctx is already done, so the
// caller can record the cancellation as the job's outcome.
func (wp *WorkerPool) Submit(ctx context.Context, job func(ctx context.Context)) {
	wp.wg.Add(1)
	wp.semaphore <- struct{}{}

	go func() {
		defer wp.wg.Done()
		defer func() { <-wp.semaphore }()

		wp.waitTurn(ctx)
		job(ctx)
	}()
}

// Wait blocks until all submitted jobs have completed.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

func (wp *WorkerPool) waitTurn(ctx context.Context) {
	if wp.minInterval <= 0 {
		return
	}
	wp.mu.Lock()
	defer wp.mu.Unlock()

	elapsed := time.Since(wp.lastStart)
	if elapsed < wp.minInterval {
		t := time.NewTimer(wp.minInterval - elapsed)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
		}
	}
	wp.lastStart = time.Now()
}

// URLSet is a thread-safe, insertion-ordered set of URLs.
type URLSet struct {
	mu    sync.RWMutex
	seen  map[string]struct{}
	order []string
}

// NewURLSet creates an empty URLSet.
func NewURLSet() *URLSet {
	return &URLSet{seen: make(map[string]struct{})}
}

// Add returns true if the URL was newly added, false if already present.
func (s *URLSet) Add(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[url]; exists {
		return false
	}
	s.seen[url] = struct{}{}
	s.order = append(s.order, url)
	return true
}

// Contains returns true if the URL is in the set.
func (s *URLSet) Contains(url string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.seen[url]
	return exists
}

// Size returns the number of unique URLs tracked.
func (s *URLSet) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}

// List returns the URLs in first-insertion order.
func (s *URLSet) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
