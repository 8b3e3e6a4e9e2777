package analyzer

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
)

func TestNewWorkerPool_DefaultsToNumCPU(t *testing.T) {
	if stats := NewWorkerPool(0).GetStats(); stats.Workers != runtime.NumCPU() {
		t.Errorf("Expected %d workers, got %d", runtime.NumCPU(), stats.Workers)
	}
	if stats := NewWorkerPool(4).GetStats(); stats.Workers != 4 {
		t.Errorf("Expected 4 workers, got %d", stats.Workers)
	}
}

func TestWorkerPool_CloseDrainsQueuedJobs(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Start()
	pool.Start()

	var ran atomic.Int32
	const jobs = 8
	for i := 0; i < jobs; i++ {
		if !pool.Submit(func() { ran.Add(1) }) {
			t.Fatal("Expected Submit to accept jobs while open")
		}
	}
	pool.Close()

	if ran.Load() != jobs {
		t.Errorf("Expected %d jobs to run before Close returned, got %d", jobs, ran.Load())
	}
	stats := pool.GetStats()
	if stats.TotalJobs != jobs || stats.CompletedJobs != jobs || stats.ActiveWorkers != 0 {
		t.Errorf("Unexpected stats after drain: %+v", stats)
	}
}

func TestWorkerPool_SubmitAfterCloseIsRejected(t *testing.T) {
	pool := NewWorkerPool(1)
	pool.Start()
	pool.Close()

	if pool.Submit(func() {}) {
		t.Error("Expected Submit to be rejected after close")
	}
	pool.Close()
	if stats := pool.GetStats(); stats.TotalJobs != 0 {
		t.Errorf("Rejected jobs must not be counted, got %d", stats.TotalJobs)
	}
}

func TestWorkerPool_SubmitRacesClose(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Start()

	var accepted, ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if pool.Submit(func() { ran.Add(1) }) {
				accepted.Add(1)
			}
		}()
	}
	pool.Close()
	wg.Wait()

	if ran.Load() != accepted.Load() {
		t.Errorf("Expected every accepted job to run: accepted %d, ran %d", accepted.Load(), ran.Load())
	}
}
