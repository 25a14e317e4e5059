package hook

import (
	"sync"

	"github.com/rs/zerolog"
)

// Dispatcher runs fire-and-forget deliveries on a small worker pool with a
// bounded queue. Under overload the oldest pending job is dropped, keeping
// the producer (the ingestion pipeline) from ever blocking.
type Dispatcher struct {
	log  zerolog.Logger
	jobs chan func()
	wg   sync.WaitGroup
	once sync.Once
}

// NewDispatcher starts workers goroutines draining a queue of depth jobs.
func NewDispatcher(workers, depth int, log zerolog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 2
	}
	if depth <= 0 {
		depth = 64
	}
	d := &Dispatcher{
		log:  log,
		jobs: make(chan func(), depth),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for job := range d.jobs {
				job()
			}
		}()
	}
	return d
}

// Submit enqueues a delivery. Never blocks: when the queue is full, the
// oldest pending job is discarded to make room.
func (d *Dispatcher) Submit(name string, job func()) {
	select {
	case d.jobs <- job:
		return
	default:
	}

	select {
	case <-d.jobs:
		d.log.Warn().Str("job", name).Msg("delivery queue full, dropped oldest")
	default:
	}
	select {
	case d.jobs <- job:
	default:
		d.log.Warn().Str("job", name).Msg("delivery queue full, dropped")
	}
}

// Close stops accepting jobs and waits for in-flight deliveries.
func (d *Dispatcher) Close() {
	d.once.Do(func() { close(d.jobs) })
	d.wg.Wait()
}
