package queue

import (
	"log"
	"time"
)

// FailStuckBuilds treats any running job with an updated_at timestamp older
// than the olderThan value as a failed attempt: most likely the worker
// holding it crashed. Jobs with attempts remaining are re-queued, the rest
// are marked as failed.
func (p *Processor) FailStuckBuilds(olderThan time.Duration) error {
	var olderThanTime time.Time
	if olderThan >= 0 {
		olderThanTime = time.Now().Add(-1 * olderThan)
	} else {
		olderThanTime = time.Now().Add(olderThan)
	}
	jobs, err := p.Store.GetStuck(olderThanTime)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		err = p.recordFailure(job, "worker stopped reporting progress")
		if err == nil {
			log.Printf("Found stuck build %s and recorded the failed attempt", job.ID.String())
		} else {
			// There may easily be race/idempotence errors with a stuck build
			// watcher. If it errors we'll grab it on the next sweep.
			log.Printf("Found stuck build %s but could not process it: %s", job.ID.String(), err.Error())
		}
	}
	return nil
}

// WatchStuckBuilds polls for stuck builds (running jobs that haven't been
// updated in olderThan time) and records a failed attempt for each.
func (p *Processor) WatchStuckBuilds(interval time.Duration, olderThan time.Duration) {
	for range time.Tick(interval) {
		go func() {
			if err := p.FailStuckBuilds(olderThan); err != nil {
				log.Printf("Error sweeping stuck builds: %s\n", err.Error())
			}
		}()
	}
}
