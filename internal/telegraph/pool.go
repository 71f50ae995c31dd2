package telegraph

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"
	"sync"
)

// HandleFunc processes one inbound event.
type HandleFunc func(ctx context.Context, msg InboundMessage)

// WorkerPool fans inbound events out to a fixed set of workers. Events are
// sharded by user ID, so one user's events are handled in arrival order
// while different users are handled in parallel.
type WorkerPool struct {
	workers   int
	queueSize int
	handle    HandleFunc
}

// WorkerPoolOpts holds parameters for creating a WorkerPool.
type WorkerPoolOpts struct {
	Workers   int // default 4
	QueueSize int // per-worker buffer, default 64
	Handle    HandleFunc
}

// NewWorkerPool creates a WorkerPool.
func NewWorkerPool(opts WorkerPoolOpts) (*WorkerPool, error) {
	if opts.Handle == nil {
		return nil, fmt.Errorf("telegraph: worker pool: handler is required")
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	return &WorkerPool{workers: opts.Workers, queueSize: opts.QueueSize, handle: opts.Handle}, nil
}

// Run feeds events from in to the workers until in is closed or ctx is
// cancelled, then waits for queued events to finish.
func (p *WorkerPool) Run(ctx context.Context, in <-chan InboundMessage) {
	queues := make([]chan InboundMessage, p.workers)
	var wg sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan InboundMessage, p.queueSize)
		wg.Add(1)
		go func(q <-chan InboundMessage) {
			defer wg.Done()
			for msg := range q {
				p.safeHandle(ctx, msg)
			}
		}(queues[i])
	}

	defer func() {
		for _, q := range queues {
			close(q)
		}
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case queues[shard(msg.UserID, p.workers)] <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

// safeHandle runs the handler, keeping the worker alive if it panics.
func (p *WorkerPool) safeHandle(ctx context.Context, msg InboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("telegraph: worker pool: handler panic for user %s: %v", msg.UserID, r)
		}
	}()
	p.handle(ctx, msg)
}

// shard maps a user ID onto one of n workers.
func shard(userID string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return int(h.Sum32() % uint32(n))
}
