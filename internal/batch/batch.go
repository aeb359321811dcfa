// Package batch implements the bounded-concurrency driver that runs many
// per-zone migrations against a worker pool, honoring an on-error policy,
// graceful cancellation with a grace period, and periodic progress
// reporting. The worker pool is a buffered channel semaphore plus a
// sync.WaitGroup.
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/xid"

	"pdns-migrate/internal/migerr"
	"pdns-migrate/internal/zonemodel"
)

// OnError selects what the driver does when a zone fails.
type OnError string

const (
	OnErrorContinue OnError = "continue"
	OnErrorStop     OnError = "stop"
)

// MigrateFunc runs one zone's migration pipeline to completion.
type MigrateFunc func(ctx context.Context, zone string) zonemodel.MigrationResult

// Options configures one Driver run.
type Options struct {
	Concurrency      int
	OnError          OnError
	GracefulTimeout  time.Duration
	ProgressInterval time.Duration

	// OnProgress, if non-nil, is invoked with every progress snapshot,
	// including the final one, which is always emitted.
	OnProgress func(Snapshot)
}

// Snapshot is a point-in-time view of a batch run's progress.
type Snapshot struct {
	Total     int
	Completed int
	Succeeded int
	Failed    int
	InFlight  int
	Elapsed   time.Duration
}

// Report is the aggregated outcome of one batch run, in input order.
type Report struct {
	RunID      string
	Source     string
	Target     string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []zonemodel.MigrationResult
	StoppedBy  error
}

// Driver runs a bounded worker pool of zone migrations.
type Driver struct {
	Opts Options
}

// New builds a Driver from Options, filling in the same defaults the CLI
// documents: a concurrency of at least 1 and a continue error policy.
func New(opts Options) *Driver {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.OnError == "" {
		opts.OnError = OnErrorContinue
	}
	return &Driver{Opts: opts}
}

// Run executes migrate once per zone in zones, respecting the bounded
// concurrency, on-error policy, and progress interval configured on the
// Driver. ctx cancellation begins graceful cancellation: no further zones
// are dispatched and in-flight ones are asked to stop, with up to
// GracefulTimeout to unwind (0 means wait indefinitely). hardCtx
// cancellation forces immediate abandonment of whatever is in flight,
// modeling a second external interrupt during the grace period.
func (d *Driver) Run(ctx context.Context, hardCtx context.Context, zones []string, migrate MigrateFunc) Report {
	started := time.Now()
	report := Report{
		RunID:     xid.New().String(),
		StartedAt: started,
		Results:   make([]zonemodel.MigrationResult, len(zones)),
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	var stopOnce sync.Once
	var stopErr error
	stopped := make(chan struct{})
	triggerStop := func(err error) {
		stopOnce.Do(func() {
			stopErr = err
			close(stopped)
			cancelRun()
		})
	}

	var mu sync.Mutex
	var completed, succeeded, failed, inFlight int

	snapshot := func() Snapshot {
		mu.Lock()
		defer mu.Unlock()
		return Snapshot{
			Total:     len(zones),
			Completed: completed,
			Succeeded: succeeded,
			Failed:    failed,
			InFlight:  inFlight,
			Elapsed:   time.Since(started),
		}
	}

	var tickerDone chan struct{}
	if d.Opts.ProgressInterval > 0 && d.Opts.OnProgress != nil {
		tickerDone = make(chan struct{})
		go func() {
			ticker := time.NewTicker(d.Opts.ProgressInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					d.Opts.OnProgress(snapshot())
				case <-tickerDone:
					return
				}
			}
		}()
	}

	jobs := make(chan int)
	var wg sync.WaitGroup

	go func() {
		defer close(jobs)
		for i := range zones {
			select {
			case <-stopped:
				return
			case <-hardCtx.Done():
				return
			case jobs <- i:
			}
		}
	}()

	semaphore := make(chan struct{}, d.Opts.Concurrency)
	for idx := range jobs {
		select {
		case <-hardCtx.Done():
			report.Results[idx] = abandonedResult(zones[idx])
			continue
		default:
		}

		select {
		case semaphore <- struct{}{}:
		case <-runCtx.Done():
			continue
		case <-hardCtx.Done():
			report.Results[idx] = abandonedResult(zones[idx])
			continue
		}
		if runCtx.Err() != nil {
			// Cancelled while waiting for a slot: never dispatched, and
			// recorded as cancelled by markRemainingCancelled below.
			<-semaphore
			continue
		}
		wg.Add(1)
		mu.Lock()
		inFlight++
		mu.Unlock()

		go func(i int) {
			defer wg.Done()
			defer func() { <-semaphore }()

			select {
			case <-hardCtx.Done():
				report.Results[i] = abandonedResult(zones[i])
				mu.Lock()
				inFlight--
				completed++
				failed++
				mu.Unlock()
				return
			default:
			}

			zoneCtx, zoneCancel := context.WithCancel(runCtx)
			watchDone := make(chan struct{})
			go func() {
				select {
				case <-hardCtx.Done():
					zoneCancel()
				case <-watchDone:
				}
			}()

			result := migrate(zoneCtx, zones[i])
			close(watchDone)
			zoneCancel()
			report.Results[i] = result

			mu.Lock()
			inFlight--
			completed++
			if result.Succeeded() {
				succeeded++
			} else {
				failed++
			}
			mu.Unlock()

			if !result.Succeeded() && d.Opts.OnError == OnErrorStop {
				triggerStop(&migerr.CancelledError{Zone: zones[i], Reason: "stop-on-error policy triggered"})
			}
		}(idx)
	}

	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-hardCtx.Done():
		<-waitDone // workers observe hardCtx.Done() themselves and unwind quickly
	case <-runCtx.Done():
		if d.Opts.GracefulTimeout > 0 {
			select {
			case <-waitDone:
			case <-time.After(d.Opts.GracefulTimeout):
				markRemainingCancelled(&report, zones)
			case <-hardCtx.Done():
				markRemainingCancelled(&report, zones)
			}
		} else {
			select {
			case <-waitDone:
			case <-hardCtx.Done():
				markRemainingCancelled(&report, zones)
			}
		}
	}

	markRemainingCancelled(&report, zones)

	if tickerDone != nil {
		close(tickerDone)
	}
	if d.Opts.OnProgress != nil {
		d.Opts.OnProgress(snapshot())
	}

	report.StoppedBy = stopErr
	report.FinishedAt = time.Now()
	return report
}

// markRemainingCancelled fills in any not-yet-populated results (those
// whose Zone is still "") with a CancelledError: zones never dispatched
// after a stop or an interrupt, and zones abandoned when the grace period
// expires or a second interrupt forces abandonment.
func markRemainingCancelled(report *Report, zones []string) {
	for i, r := range report.Results {
		if r.Zone == "" {
			report.Results[i] = abandonedResult(zones[i])
		}
	}
}

func abandonedResult(zone string) zonemodel.MigrationResult {
	return zonemodel.MigrationResult{
		Zone: zone,
		Err:  &migerr.CancelledError{Zone: zone, Reason: "abandoned: graceful timeout expired or forced abandonment"},
	}
}
