// Package storage defines the build job store.
//
// Two implementations exist: memstore (in-memory, used by tests and
// single-process deployments) and pgstore (Postgres). Both serialize writes
// to a given job id and allow concurrent reads.
package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/Shyp/go-types"
	"github.com/forgehq/forge/models"
)

// Prefix is prepended to every build job UUID.
const Prefix = "bld_"

// ErrNotFound indicates that no job exists with the requested id.
var ErrNotFound = errors.New("storage: build job not found")

// ErrNonePending is returned by Acquire when no pending job of the requested
// kind is ready to run.
var ErrNonePending = errors.New("storage: no pending jobs ready")

// An InvalidTransitionError is returned when a mutation targets a job that is
// terminal, missing, or not in the state the mutation requires. Normal
// operation never triggers it for missing or terminal jobs except when two
// completion paths race, in which case the loser receives it and the job
// record is left untouched.
type InvalidTransitionError struct {
	ID     types.PrefixUUID
	Status models.JobStatus
}

func (e *InvalidTransitionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("storage: cannot transition job %s (status %q)", e.ID.String(), e.Status)
}

// A Store holds build job records addressable by id.
//
// Create and Get form the public surface used by the API server. Acquire,
// Succeed, Fail and Retry are the worker-side protocol: Acquire atomically
// flips the oldest ready pending job of a kind to running, and the terminal
// writes are conditional on the job still being in the running state, so a
// second completion for the same job is rejected rather than applied.
type Store interface {
	// Create inserts a new pending job with a freshly generated id.
	Create(projectRef string, kind models.BuildKind, params []byte, attempts uint8, runAfter time.Time) (*models.BuildJob, error)

	// Get returns the current job record, or ErrNotFound.
	Get(id types.PrefixUUID) (*models.BuildJob, error)

	// Acquire marks the oldest pending job of the given kind whose run_after
	// has passed as running, and returns it. Returns ErrNonePending if there
	// is no such job.
	Acquire(kind models.BuildKind) (*models.BuildJob, error)

	// Succeed marks a running job as succeeded and records the artifact
	// locator. Returns an *InvalidTransitionError if the job is not running.
	Succeed(id types.PrefixUUID, artifactURL string) error

	// Fail marks a running job as failed and records the error message.
	// Returns an *InvalidTransitionError if the job is not running.
	Fail(id types.PrefixUUID, message string) error

	// Retry flips a running job back to pending with one fewer attempt
	// remaining, to be picked up again once runAfter has passed. The attempts
	// argument must match the job's current counter; on a mismatch (another
	// thread got there first) an *InvalidTransitionError is returned.
	Retry(id types.PrefixUUID, attempts uint8, runAfter time.Time) (*models.BuildJob, error)

	// GetStuck returns running jobs whose updated_at is older than olderThan.
	GetStuck(olderThan time.Time) ([]*models.BuildJob, error)

	// CountByStatus returns the number of jobs with the given status.
	CountByStatus(status models.JobStatus) (int64, error)
}
