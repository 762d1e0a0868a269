package jobcentre

import (
	"container/heap"
	"context"
	"encoding/json"
	"sync"

	"github.com/cyberinferno/protohackers/idgenerator"
)

// Job is a unit of work in a named queue.
type Job struct {
	ID    uint64
	Queue string
	Pri   uint64
	Body  json.RawMessage

	owner uint64 // client working on it; 0 while queued
	index int    // position in its queue's heap; -1 while held
}

// jobHeap orders jobs by priority, highest first, then by id.
type jobHeap []*Job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool { return before(h[i], h[j]) }

func before(a, b *Job) bool {
	if a.Pri != b.Pri {
		return a.Pri > b.Pri
	}
	return a.ID < b.ID
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *jobHeap) Push(x any) {
	job := x.(*Job)
	job.index = len(*h)
	*h = append(*h, job)
}

func (h *jobHeap) Pop() any {
	old := *h
	job := old[len(old)-1]
	old[len(old)-1] = nil
	*h = old[:len(old)-1]
	job.index = -1
	return job
}

// Centre holds every queue and every live job. It is safe for concurrent
// use by all client sessions.
type Centre struct {
	mu      sync.Mutex
	queues  map[string]*jobHeap
	jobs    map[uint64]*Job
	ids     *idgenerator.IdGenerator
	changed chan struct{} // closed and replaced whenever a job is queued
}

// NewCentre returns an empty centre. Job ids start at 1.
func NewCentre() *Centre {
	return &Centre{
		queues:  make(map[string]*jobHeap),
		jobs:    make(map[uint64]*Job),
		ids:     idgenerator.NewIdGenerator(0),
		changed: make(chan struct{}),
	}
}

// Put queues a new job and returns its id.
func (c *Centre) Put(queue string, body json.RawMessage, pri uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	job := &Job{ID: c.ids.Id(), Queue: queue, Pri: pri, Body: body}
	c.jobs[job.ID] = job
	c.enqueueLocked(job)

	return job.ID
}

// Get hands client the highest priority job across queues. With wait it
// blocks until a job is available or ctx is done; otherwise it returns nil
// when every queue is empty.
//
// Parameters:
//   - ctx: Ends a waiting Get, typically when the client disconnects
//   - client: The id of the requesting client
//   - queues: Queue names to take from
//   - wait: Block instead of returning nil
//
// Returns:
//   - A copy of the job now held by client, or nil
//   - ctx.Err() if ctx ended a wait
func (c *Centre) Get(ctx context.Context, client uint64, queues []string, wait bool) (*Job, error) {
	for {
		c.mu.Lock()
		var best *jobHeap
		for _, name := range queues {
			q, ok := c.queues[name]
			if !ok || q.Len() == 0 {
				continue
			}
			if best == nil || before((*q)[0], (*best)[0]) {
				best = q
			}
		}

		if best != nil {
			job := heap.Pop(best).(*Job)
			job.owner = client
			out := *job
			c.mu.Unlock()
			return &out, nil
		}

		changed := c.changed
		c.mu.Unlock()

		if !wait {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-changed:
		}
	}
}

// Delete removes a job whether queued or held. It reports whether the job
// existed.
func (c *Centre) Delete(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	job, ok := c.jobs[id]
	if !ok {
		return false
	}

	delete(c.jobs, id)
	if job.index >= 0 {
		heap.Remove(c.queues[job.Queue], job.index)
	}

	return true
}

// AbortResult is the outcome of Abort.
type AbortResult int

const (
	Aborted    AbortResult = iota // job returned to its queue
	NoJob                         // no such job
	NotHolding                    // job exists but client does not hold it
)

// Abort returns a job held by client to its queue.
func (c *Centre) Abort(client, id uint64) AbortResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	job, ok := c.jobs[id]
	if !ok {
		return NoJob
	}
	if job.owner != client {
		return NotHolding
	}

	c.enqueueLocked(job)
	return Aborted
}

// Release returns every job held by client to its queue. Called when the
// client disconnects.
func (c *Centre) Release(client uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, job := range c.jobs {
		if job.owner == client {
			c.enqueueLocked(job)
			n++
		}
	}

	return n
}

// Len returns the number of queued jobs in queue.
func (c *Centre) Len(queue string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if q, ok := c.queues[queue]; ok {
		return q.Len()
	}

	return 0
}

func (c *Centre) enqueueLocked(job *Job) {
	q, ok := c.queues[job.Queue]
	if !ok {
		q = &jobHeap{}
		c.queues[job.Queue] = q
	}

	job.owner = 0
	heap.Push(q, job)

	close(c.changed)
	c.changed = make(chan struct{})
}
