package mirror

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/solusnoir/solus/media"
	"github.com/solusnoir/solus/server/util"
	"github.com/solusnoir/solus/storage/ledger"
)

type Job struct {
	Filename   string
	StoredPath string
	Category   media.Category
}

type Outcome int

const (
	OutcomeMirrored Outcome = iota
	OutcomeFailed
	OutcomeQueued
	OutcomeDropped
)

var outcomeName = map[Outcome]string{
	OutcomeMirrored: "mirrored",
	OutcomeFailed:   "failed",
	OutcomeQueued:   "queued",
	OutcomeDropped:  "dropped",
}

func (o Outcome) String() string {
	return outcomeName[o]
}

type DispatcherOptions struct {
	// Workers is the number of background mirror goroutines. Zero mirrors
	// inline on the submitting goroutine.
	Workers    int
	QueueSize  int
	Timeout    time.Duration
	MaxRetries uint64
	Backoff    time.Duration
	Logger     util.Logger
}

// Dispatcher runs mirror jobs without ever failing the caller. Errors are
// logged and the job is forgotten once its retries are spent.
type Dispatcher struct {
	mirror Mirror
	ledger ledger.Ledger
	opts   DispatcherOptions
	logger util.Logger

	jobs   chan Job
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	stop   context.Context
	cancel context.CancelFunc
}

func NewDispatcher(m Mirror, l ledger.Ledger, opts DispatcherOptions) *Dispatcher {
	if l == nil {
		l = ledger.NoopLedger{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	if opts.Workers < 0 {
		opts.Workers = 0
	}

	stop, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		mirror: m,
		ledger: l,
		opts:   opts,
		logger: logger,
		stop:   stop,
		cancel: cancel,
	}

	if opts.Workers > 0 {
		d.jobs = make(chan Job, max(opts.QueueSize, 0))
		for i := 0; i < opts.Workers; i++ {
			d.wg.Add(1)
			go d.work()
		}
	}

	return d
}

// Submit hands off a job. With no workers the mirror runs before Submit
// returns; otherwise the job is queued, or dropped when the queue is full.
func (d *Dispatcher) Submit(ctx context.Context, job Job) Outcome {
	if d.opts.Workers == 0 {
		if err := d.run(ctx, job); err != nil {
			return OutcomeFailed
		}
		return OutcomeMirrored
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Printf("ERROR: mirror of %q dropped: dispatcher is closed", job.Filename)
		return OutcomeDropped
	}

	select {
	case d.jobs <- job:
		return OutcomeQueued
	default:
		d.logger.Printf("ERROR: mirror of %q dropped: queue is full", job.Filename)
		return OutcomeDropped
	}
}

// Close stops accepting jobs and waits for queued ones to finish. When ctx
// ends first, in-flight retries are abandoned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		if d.jobs != nil {
			close(d.jobs)
		}
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()

	for job := range d.jobs {
		_ = d.run(d.stop, job)
	}
}

func (d *Dispatcher) run(ctx context.Context, job Job) error {
	bucket := BucketFor(job.Category)

	attempt := func() (string, error) {
		actx, cancel := d.attemptContext(ctx)
		defer cancel()
		return d.mirror.Mirror(actx, job.StoredPath, job.Category)
	}

	expo := backoff.NewExponentialBackOff()
	if d.opts.Backoff > 0 {
		expo.InitialInterval = d.opts.Backoff
	}
	expo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, d.opts.MaxRetries), ctx)

	notify := func(err error, wait time.Duration) {
		d.logger.Printf("ERROR: mirror of %q to %s failed, retrying in %v: %v", job.Filename, bucket, wait, err)
	}

	id, err := backoff.RetryNotifyWithData(attempt, policy, notify)
	if err != nil {
		d.logger.Printf("ERROR: mirror of %q to %s failed: %v", job.Filename, bucket, err)
		return err
	}

	d.logger.Printf("INFO: mirrored %q to %s with id %s", job.Filename, bucket, id)

	entry := ledger.Entry{
		Filename:   job.Filename,
		Category:   job.Category.String(),
		Bucket:     bucket.String(),
		RemoteID:   id,
		MirroredAt: time.Now().UTC(),
	}
	if err := d.ledger.Record(context.WithoutCancel(ctx), entry); err != nil {
		d.logger.Printf("ERROR: could not record mirror of %q: %v", job.Filename, err)
	}

	return nil
}

func (d *Dispatcher) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.opts.Timeout > 0 {
		return context.WithTimeout(ctx, d.opts.Timeout)
	}

	return context.WithCancel(ctx)
}
