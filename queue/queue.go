// Package queue accepts build submissions and executes them against builder
// backends with a pool of workers.
//
// Submit is fire-and-continue: it creates the job in the pending state and
// returns immediately. Workers poll the store for ready jobs, run the backend
// for the job's kind under a deadline, and record the terminal state on the
// job. Callers observe progress by polling the store.
package queue

import (
	"errors"
	"fmt"
	"time"

	"github.com/Shyp/go-simple-metrics"
	"github.com/forgehq/forge/backend"
	"github.com/forgehq/forge/models"
	"github.com/forgehq/forge/storage"
)

// ErrMissingProject is returned by Submit when no project reference is given.
var ErrMissingProject = errors.New("queue: project reference is required")

// An UnknownKindError is returned by Submit for kinds with no registered
// backend. Rejecting at submission time keeps the closed kind set honest; a
// pending job of an unknown kind would sit in the store forever.
type UnknownKindError struct {
	Kind models.BuildKind
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("queue: unknown build kind %q", e.Kind)
}

// A Policy bounds execution of submitted jobs.
type Policy struct {
	// Number of times a job may be attempted before it is marked as failed.
	MaxAttempts uint8
	// How long a single backend invocation may run.
	Timeout time.Duration
}

// DefaultPolicy allows three attempts with a five minute deadline each.
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	Timeout:     5 * time.Minute,
}

// A Queue validates and records build submissions.
type Queue struct {
	Store    storage.Store
	Backends *backend.Registry
	Policy   Policy
}

func New(store storage.Store, backends *backend.Registry) *Queue {
	return &Queue{
		Store:    store,
		Backends: backends,
		Policy:   DefaultPolicy,
	}
}

// Submit creates a new pending build job and returns it. The build itself
// runs later on a worker; a backend fault is recorded on the job, never
// returned here. attempts overrides the policy's MaxAttempts when nonzero.
//
// Validation failures are returned before any record is created.
func (q *Queue) Submit(projectRef string, kind models.BuildKind, params []byte, attempts uint8) (*models.BuildJob, error) {
	if projectRef == "" {
		return nil, ErrMissingProject
	}
	if !q.Backends.Supported(kind) {
		return nil, &UnknownKindError{Kind: kind}
	}
	if attempts == 0 {
		attempts = q.Policy.MaxAttempts
	}
	start := time.Now()
	job, err := q.Store.Create(projectRef, kind, params, attempts, time.Now().UTC())
	go metrics.Time("submit.latency", time.Since(start))
	if err != nil {
		go metrics.Increment("submit.error")
		return nil, err
	}
	go metrics.Increment(fmt.Sprintf("submit.%s.success", kind))
	go metrics.Increment("submit.success")
	return job, nil
}
