package solver

import "sync"

// span is an inclusive range of derivative-space indices assigned to one
// worker goroutine.
type span struct{ start, end int }

// pool runs the interior sweeps of a step across persistent goroutines.
// Each sweep partitions the index range into disjoint spans, so workers
// never write the same cell and the result is bit-identical to a serial
// sweep regardless of worker count.
type pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	step    int
	pending int
	parts   []span
	kernel  func(lo, hi int)
	count   int
	started bool
}

func newPool(count int) *pool {
	if count < 1 {
		count = 1
	}
	p := &pool{count: count, parts: make([]span, count)}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *pool) start() {
	if p.started {
		return
	}
	p.started = true
	for i := 0; i < p.count; i++ {
		go p.loop(i)
	}
}

func (p *pool) loop(index int) {
	lastStep := 0
	p.mu.Lock()
	for {
		for p.step == lastStep {
			p.cond.Wait()
		}
		lastStep = p.step
		part := p.parts[index]
		kernel := p.kernel
		p.mu.Unlock()

		if part.end >= part.start {
			kernel(part.start, part.end)
		}

		p.mu.Lock()
		p.pending--
		if p.pending == 0 {
			p.cond.Broadcast()
		}
	}
}

// sweep applies kernel over the inclusive range [lo, hi], split evenly
// across the workers, and blocks until every span is done.
func (p *pool) sweep(lo, hi int, kernel func(lo, hi int)) {
	if hi < lo {
		return
	}
	if p.count == 1 {
		kernel(lo, hi)
		return
	}
	p.start()

	p.mu.Lock()
	total := hi - lo + 1
	chunk := total / p.count
	rem := total % p.count
	next := lo
	for i := range p.parts {
		size := chunk
		if i < rem {
			size++
		}
		if size == 0 {
			p.parts[i] = span{start: 1, end: 0}
			continue
		}
		p.parts[i] = span{start: next, end: next + size - 1}
		next += size
	}
	p.kernel = kernel
	p.pending = p.count
	p.step++
	p.cond.Broadcast()
	for p.pending > 0 {
		p.cond.Wait()
	}
	p.mu.Unlock()
}
