package systems

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// Job is one unit of work. A failing job does not stop the others.
type Job func() error

var ErrNoWorkers = errors.New("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = errors.New("attempting to create worker pool with a negative channel size")
var ErrShutdown = errors.New("job system is shut down")

// JobSystem runs submitted jobs on a fixed number of worker goroutines.
type JobSystem struct {
	numWorkers int
	jobQueue   chan Job
	wg         sync.WaitGroup
	pending    sync.WaitGroup

	// held for reading while a job is being queued
	queueMutex sync.RWMutex
	closed     bool

	errMutex sync.Mutex
	err      error
}

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan Job, channelSize),
	}
	js.start()
	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				if err := job(); err != nil {
					js.errMutex.Lock()
					js.err = errors.CombineErrors(js.err, err)
					js.errMutex.Unlock()
				}
				js.pending.Done()
			}
		}()
	}
}

func (js *JobSystem) Workers() int { return js.numWorkers }

// Submit queues job, blocking while the queue is full.
func (js *JobSystem) Submit(job Job) error {
	js.queueMutex.RLock()
	defer js.queueMutex.RUnlock()
	if js.closed {
		return ErrShutdown
	}
	js.pending.Add(1)
	js.jobQueue <- job
	return nil
}

// Wait blocks until every submitted job has run and returns the errors they
// reported since the last Wait.
func (js *JobSystem) Wait() error {
	js.pending.Wait()
	js.errMutex.Lock()
	defer js.errMutex.Unlock()
	err := js.err
	js.err = nil
	return err
}

// ForEach runs fn for every i in [0, n) and waits for all of them.
func (js *JobSystem) ForEach(n int, fn func(i int) error) error {
	for i := 0; i < n; i++ {
		if err := js.Submit(func() error { return fn(i) }); err != nil {
			return errors.CombineErrors(err, js.Wait())
		}
	}
	return js.Wait()
}

// Shutdown lets the queued jobs finish and stops the workers. Later
// submissions fail with ErrShutdown.
func (js *JobSystem) Shutdown() error {
	js.queueMutex.Lock()
	if js.closed {
		js.queueMutex.Unlock()
		return nil
	}
	js.closed = true
	close(js.jobQueue)
	js.queueMutex.Unlock()
	js.wg.Wait()
	return nil
}
