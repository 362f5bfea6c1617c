package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// CPUWorkerPool manages a pool of workers for CPU-bound tasks.
// All workers share a single queue - natural load balancing via Go channel semantics.
type CPUWorkerPool struct {
	name        string
	logger      *slog.Logger
	workerCount int

	// Single shared queue (all workers pull from this)
	queue chan *WorkUnit

	// Results channel (workers -> scheduler)
	results chan WorkResult

	// Task handlers by task name
	handlers map[string]CPUTaskHandler
	mu       sync.RWMutex

	startOnce sync.Once

	// In-flight tracking
	inFlight  atomic.Int32
	completed atomic.Int64
	failed    atomic.Int64
}

// CPUWorkerPoolConfig configures a new CPU worker pool.
type CPUWorkerPoolConfig struct {
	Name        string
	Logger      *slog.Logger
	WorkerCount int // Number of worker goroutines (default: DefaultWorkerCount())
	QueueSize   int // Queue size (default: 10000)
}

// DefaultWorkerCount is half the available CPUs, at least one.
func DefaultWorkerCount() int {
	return max(1, runtime.NumCPU()/2)
}

// NewCPUWorkerPool creates a new CPU worker pool.
func NewCPUWorkerPool(cfg CPUWorkerPoolConfig) *CPUWorkerPool {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	name := cfg.Name
	if name == "" {
		name = "cpu"
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 10000
	}

	workerCount := cfg.WorkerCount
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount()
	}

	return &CPUWorkerPool{
		name:        name,
		logger:      logger.With("pool", name, "type", PoolTypeCPU, "workers", workerCount),
		workerCount: workerCount,
		queue:       make(chan *WorkUnit, queueSize),
		results:     make(chan WorkResult, queueSize),
		handlers:    make(map[string]CPUTaskHandler),
	}
}

// RegisterHandler registers a handler for a task type.
// Must be called before Start.
func (p *CPUWorkerPool) RegisterHandler(taskName string, handler CPUTaskHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[taskName] = handler
	p.logger.Debug("registered CPU task handler", "task", taskName)
}

// Name returns the pool name.
func (p *CPUWorkerPool) Name() string {
	return p.name
}

// Type returns PoolTypeCPU.
func (p *CPUWorkerPool) Type() PoolType {
	return PoolTypeCPU
}

// Workers returns the number of worker goroutines.
func (p *CPUWorkerPool) Workers() int {
	return p.workerCount
}

// Results returns the channel workers publish to.
func (p *CPUWorkerPool) Results() <-chan WorkResult {
	return p.results
}

// Start begins the pool's processing. Blocks until ctx cancelled.
// Calling Start more than once has no further effect.
func (p *CPUWorkerPool) Start(ctx context.Context) {
	started := false
	p.startOnce.Do(func() {
		started = true
		p.logger.Debug("cpu pool starting")

		var wg sync.WaitGroup
		for i := 0; i < p.workerCount; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				p.worker(ctx, id)
			}(i)
		}

		<-ctx.Done()
		wg.Wait()
		p.logger.Debug("pool stopped")
	})
	if !started {
		<-ctx.Done()
	}
}

// worker processes work units from the shared queue.
func (p *CPUWorkerPool) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return

		case unit := <-p.queue:
			p.logger.Debug("cpu worker received unit", "worker_id", id, "unit_id", unit.ID)
			p.inFlight.Add(1)
			result := p.process(ctx, unit)
			p.inFlight.Add(-1)
			if result.Success {
				p.completed.Add(1)
			} else {
				p.failed.Add(1)
			}

			select {
			case p.results <- result:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Submit adds a work unit to the pool's queue.
func (p *CPUWorkerPool) Submit(unit *WorkUnit) error {
	select {
	case p.queue <- unit:
		p.logger.Debug("cpu pool accepted unit", "unit_id", unit.ID, "queue_len", len(p.queue))
		return nil
	default:
		p.logger.Warn("cpu pool queue full", "unit_id", unit.ID)
		return fmt.Errorf("%w: %s", ErrWorkerQueueFull, p.name)
	}
}

// Status returns current pool status.
func (p *CPUWorkerPool) Status() PoolStatus {
	return PoolStatus{
		Name:       p.name,
		Type:       string(PoolTypeCPU),
		Workers:    p.workerCount,
		InFlight:   int(p.inFlight.Load()),
		QueueDepth: len(p.queue),
		Completed:  p.completed.Load(),
		Failed:     p.failed.Load(),
	}
}

// process executes a CPU work unit. A panicking handler fails only its unit.
func (p *CPUWorkerPool) process(ctx context.Context, unit *WorkUnit) (result WorkResult) {
	result = WorkResult{
		WorkUnitID: unit.ID,
		JobID:      unit.JobID,
	}

	// Validate work unit type
	if unit.Type != WorkUnitTypeCPU {
		result.Error = fmt.Errorf("work unit type %s does not match pool type cpu", unit.Type)
		return result
	}

	if unit.CPURequest == nil {
		result.Error = fmt.Errorf("CPU work unit missing CPURequest")
		return result
	}

	// Find handler for this task
	p.mu.RLock()
	handler, ok := p.handlers[unit.CPURequest.Task]
	p.mu.RUnlock()

	if !ok {
		result.Error = fmt.Errorf("no handler registered for CPU task: %s", unit.CPURequest.Task)
		return result
	}

	start := time.Now()
	defer func() {
		result.ExecutionTime = time.Since(start)
		if r := recover(); r != nil {
			p.logger.Error("CPU task panicked", "unit_id", unit.ID, "task", unit.CPURequest.Task, "panic", r, "stack", string(debug.Stack()))
			result.Success = false
			result.CPUResult = nil
			result.Error = fmt.Errorf("task %s panicked: %v", unit.CPURequest.Task, r)
		}
	}()

	cpuResult, err := handler(ctx, unit.CPURequest)
	if err != nil {
		result.Error = err
		p.logger.Debug("CPU work unit failed", "unit_id", unit.ID, "task", unit.CPURequest.Task, "error", err)
		return result
	}

	result.Success = true
	result.CPUResult = cpuResult
	p.logger.Debug("CPU work unit completed", "unit_id", unit.ID, "task", unit.CPURequest.Task)

	return result
}

// Verify interface compliance
var _ WorkerPool = (*CPUWorkerPool)(nil)
