package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	godebug "github.com/Shyp/go-debug"
	"github.com/Shyp/go-simple-metrics"
	"github.com/forgehq/forge/backend"
	"github.com/forgehq/forge/models"
	"github.com/forgehq/forge/storage"
)

// Set DEBUG=forge.queue to print queue debugging information to stderr.
var debug = godebug.Debug("forge.queue")

// Processor is the default implementation of the Worker interface. It runs
// the backend registered for the job's kind and records the outcome on the
// store.
type Processor struct {
	Store    storage.Store
	Backends *backend.Registry
	Policy   Policy
}

func NewProcessor(store storage.Store, backends *backend.Registry) *Processor {
	return &Processor{
		Store:    store,
		Backends: backends,
		Policy:   DefaultPolicy,
	}
}

// DoBuild executes the given acquired job. The error return reports problems
// recording the outcome, not the build outcome itself: a backend fault is
// written to the job record and DoBuild returns nil.
func (p *Processor) DoBuild(job *models.BuildJob) error {
	log.Printf("processing build %s (project %s, kind %s)", job.ID.String(), job.ProjectRef, job.Kind)
	b, err := p.Backends.Get(job.Kind)
	if err != nil {
		// Only possible if a job of a since-unregistered kind is still queued.
		return p.recordFailure(job, err.Error())
	}

	timeout := p.Policy.Timeout
	if timeout <= 0 {
		timeout = DefaultPolicy.Timeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	debug("starting build %s with %d attempts remaining, params %s", job.ID.String(), job.Attempts, string(job.Params))
	start := time.Now()
	result, err := b.Build(ctx, job)
	go metrics.Time("build.latency", time.Since(start))
	go metrics.Time(fmt.Sprintf("build.%s.latency", job.Kind), time.Since(start))

	if err != nil {
		message := err.Error()
		if ctx.Err() == context.DeadlineExceeded {
			message = fmt.Sprintf("build timed out after %s", timeout)
			go metrics.Increment(fmt.Sprintf("build.%s.timeout", job.Kind))
		}
		go metrics.Increment(fmt.Sprintf("build.%s.error", job.Kind))
		return p.recordFailure(job, message)
	}
	if result == nil || result.ArtifactURL == "" {
		return p.recordFailure(job, "backend returned no artifact locator")
	}
	return p.recordSuccess(job, result)
}

func (p *Processor) recordSuccess(job *models.BuildJob, result *models.BuildResult) error {
	err := p.Store.Succeed(job.ID, result.ArtifactURL)
	if err != nil {
		if alreadyTerminal(err) {
			log.Printf("build %s was already terminal, leaving record untouched", job.ID.String())
			return nil
		}
		go metrics.Increment("build.record.success.error")
		return err
	}
	log.Printf("build %s succeeded, artifact at %s", job.ID.String(), result.ArtifactURL)
	go metrics.Increment(fmt.Sprintf("build.%s.succeeded", job.Kind))
	go metrics.Increment("build.succeeded")
	return nil
}

// recordFailure marks a failed attempt: the job is re-queued with backoff if
// attempts remain, and marked failed with the message otherwise.
func (p *Processor) recordFailure(job *models.BuildJob, message string) error {
	var remaining uint8
	if job.Attempts > 0 {
		remaining = job.Attempts - 1
	}
	if remaining == 0 {
		err := p.Store.Fail(job.ID, message)
		if err != nil {
			if alreadyTerminal(err) {
				return nil
			}
			go metrics.Increment("build.record.failed.error")
			return err
		}
		log.Printf("build %s failed permanently: %s", job.ID.String(), message)
		go metrics.Increment(fmt.Sprintf("build.%s.failed", job.Kind))
		go metrics.Increment("build.failed")
		return nil
	}
	runAfter := getRunAfter(p.Policy.MaxAttempts, remaining)
	_, err := p.Store.Retry(job.ID, job.Attempts, runAfter)
	if err != nil {
		if alreadyTerminal(err) {
			return nil
		}
		go metrics.Increment("build.record.retry.error")
		return err
	}
	log.Printf("build %s failed (%s), %d attempts remaining, retrying after %s",
		job.ID.String(), message, remaining, runAfter.Format(time.RFC3339))
	go metrics.Increment(fmt.Sprintf("build.%s.retried", job.Kind))
	return nil
}

// alreadyTerminal reports whether err means another thread finished the job
// first. Terminal records are immutable, so losing that race is benign.
func alreadyTerminal(err error) bool {
	var ite *storage.InvalidTransitionError
	if errors.As(err, &ite) {
		return ite.Status.Terminal()
	}
	return false
}

// getRunAfter gets the time this job should run after, given the current
// attempt number and the attempts remaining.
func getRunAfter(totalAttempts, remainingAttempts uint8) time.Time {
	if remainingAttempts >= totalAttempts {
		return time.Now().UTC()
	}
	backoff := totalAttempts - remainingAttempts
	return time.Now().UTC().Add(time.Duration(math.Pow(2, float64(backoff))) * time.Second)
}
