// Package jobs runs CPU-bound work units on a fixed pool of workers.
package jobs

import (
	"context"
	"errors"
	"time"
)

// ErrWorkerQueueFull is returned by Submit when the queue has no room.
var ErrWorkerQueueFull = errors.New("worker queue full")

// PoolType indicates what kind of work this pool handles.
type PoolType string

const (
	PoolTypeCPU PoolType = "cpu"
)

// WorkUnitType identifies which pool type a unit is meant for.
type WorkUnitType string

const (
	WorkUnitTypeCPU WorkUnitType = "cpu"
)

// WorkUnit is one schedulable piece of work.
type WorkUnit struct {
	ID    string
	JobID string
	Type  WorkUnitType

	CPURequest *CPUWorkRequest
}

// CPUWorkRequest names a registered task and carries its input.
type CPUWorkRequest struct {
	Task string
	Data any
}

// CPUWorkResult carries a handler's output.
type CPUWorkResult struct {
	Data any
}

// WorkResult is the outcome of one work unit.
type WorkResult struct {
	WorkUnitID string
	JobID      string
	Success    bool
	Error      error
	CPUResult  *CPUWorkResult

	// ExecutionTime covers the handler call only.
	ExecutionTime time.Duration
}

// CPUTaskHandler processes a CPU work request and returns a result.
// Implementations should be safe for concurrent use.
type CPUTaskHandler func(ctx context.Context, req *CPUWorkRequest) (*CPUWorkResult, error)

// WorkerPool manages a pool of workers for a specific workload type.
type WorkerPool interface {
	// Name returns the pool name (e.g., "ocr").
	Name() string

	// Type returns the pool type.
	Type() PoolType

	// Start begins the pool's processing. Blocks until ctx cancelled.
	Start(ctx context.Context)

	// Submit adds a work unit to the pool's queue.
	// Returns error if queue is full.
	Submit(unit *WorkUnit) error

	// Results delivers one WorkResult per submitted unit.
	Results() <-chan WorkResult

	// Status returns current pool status.
	Status() PoolStatus
}

// PoolStatus reports a pool's current state.
type PoolStatus struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Workers    int    `json:"workers"`
	InFlight   int    `json:"in_flight"`
	QueueDepth int    `json:"queue_depth"`
	Completed  int64  `json:"completed"`
	Failed     int64  `json:"failed"`
}
