package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool runs batches of node tiles and raster bands on a fixed set of
// goroutines.
//
// Each worker owns a buffered queue. Work is dealt round-robin, and a worker
// whose queue is empty steals from the others before it blocks, so a batch
// with uneven tasks still finishes close to together.
//
// Thread safety: WorkerPool is safe for concurrent use. Several ExecuteAll
// calls may be in flight at once; each waits only for its own items.
type WorkerPool struct {
	workers int

	// queues holds one work queue per worker.
	queues []chan func()

	// done is closed by Close to stop the workers. closeMu orders the close
	// after every in-flight enqueue.
	done    chan struct{}
	closeMu sync.RWMutex

	wg      sync.WaitGroup
	running atomic.Bool
}

// NewWorkerPool creates a pool with the given number of workers and starts
// them. Zero or negative means GOMAXPROCS.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	depth := max(workers*4, 8)

	p := &WorkerPool{
		workers: workers,
		queues:  make([]chan func(), workers),
		done:    make(chan struct{}),
	}
	for i := range p.queues {
		p.queues[i] = make(chan func(), depth)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.loop(i)
	}
	return p
}

func (p *WorkerPool) loop(id int) {
	defer p.wg.Done()
	own := p.queues[id]
	for {
		select {
		case <-p.done:
			drain(own)
			return
		case fn := <-own:
			run(fn)
			continue
		default:
		}

		if fn := p.steal(id); fn != nil {
			fn()
			continue
		}

		select {
		case <-p.done:
			drain(own)
			return
		case fn := <-own:
			run(fn)
		}
	}
}

func run(fn func()) {
	if fn != nil {
		fn()
	}
}

// drain runs whatever is left in a queue without blocking.
func drain(q chan func()) {
	for {
		select {
		case fn := <-q:
			run(fn)
		default:
			return
		}
	}
}

// steal takes one item from any other worker's queue, or returns nil.
func (p *WorkerPool) steal(id int) func() {
	for i, q := range p.queues {
		if i == id {
			continue
		}
		select {
		case fn := <-q:
			return fn
		default:
		}
	}
	return nil
}

// enqueue puts fn on worker i's queue. It reports false if the pool shut
// down first.
func (p *WorkerPool) enqueue(i int, fn func()) bool {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	select {
	case <-p.done:
		return false
	default:
	}
	// Workers keep draining until done is closed, which needs closeMu.
	p.queues[i%p.workers] <- fn
	return true
}

// ExecuteAll runs every item on the pool and returns when all have
// finished. On a closed pool it does nothing.
func (p *WorkerPool) ExecuteAll(work []func()) {
	if len(work) == 0 || !p.running.Load() {
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(work))
	for i, fn := range work {
		ok := p.enqueue(i, func() {
			defer wg.Done()
			fn()
		})
		if !ok {
			wg.Done()
		}
	}
	wg.Wait()
}

// ExecuteAsync queues every item and returns without waiting.
// On a closed pool it does nothing.
func (p *WorkerPool) ExecuteAsync(work []func()) {
	if len(work) == 0 || !p.running.Load() {
		return
	}
	for i, fn := range work {
		if !p.enqueue(i, fn) {
			return
		}
	}
}

// Submit queues a single item on the least loaded worker.
// On a closed pool, or for a nil fn, it does nothing.
func (p *WorkerPool) Submit(fn func()) {
	if fn == nil || !p.running.Load() {
		return
	}
	best := 0
	for i := 1; i < p.workers; i++ {
		if len(p.queues[i]) < len(p.queues[best]) {
			best = i
		}
	}
	p.enqueue(best, fn)
}

// Close stops accepting work, lets the workers finish what is queued and
// waits for them to exit. It is safe to call more than once.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	p.closeMu.Lock()
	close(p.done)
	p.closeMu.Unlock()
	p.wg.Wait()
}

// Workers returns the number of workers.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning reports whether the pool still accepts work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}

// QueuedWork returns an approximate count of queued items.
func (p *WorkerPool) QueuedWork() int {
	n := 0
	for _, q := range p.queues {
		n += len(q)
	}
	return n
}
