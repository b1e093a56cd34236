package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Shyp/go-types"
)

type JobStatus string

// StatusPending indicates a BuildJob has been accepted but no worker has
// picked it up yet.
const StatusPending = JobStatus("pending")

// StatusRunning indicates a worker is executing the build.
const StatusRunning = JobStatus("running")

// StatusSucceeded and StatusFailed are terminal; a job in either state never
// changes again.
const StatusSucceeded = JobStatus("succeeded")
const StatusFailed = JobStatus("failed")

// Terminal reports whether no further transitions are permitted for a job
// with this status.
func (j JobStatus) Terminal() bool {
	return j == StatusSucceeded || j == StatusFailed
}

// A BuildKind names the builder backend that should execute a job. The set of
// kinds is closed; submissions with an unregistered kind are rejected.
type BuildKind string

// KindMobilePackage builds an installable mobile package for a project.
const KindMobilePackage = BuildKind("mobile-package")

// KindGameScene generates a game scene from a natural-language prompt.
const KindGameScene = BuildKind("game-scene")

// A BuildJob is a tracked unit of build work. Jobs are created in the pending
// state, flipped to running when a worker acquires them, and finish as either
// succeeded (with an artifact locator) or failed (with an error message).
//
// Attempts counts down; it holds the number of tries remaining including the
// one currently in flight.
type BuildJob struct {
	ID          types.PrefixUUID `json:"id"`
	ProjectRef  string           `json:"project_ref"`
	Kind        BuildKind        `json:"kind"`
	Status      JobStatus        `json:"status"`
	Attempts    uint8            `json:"attempts"`
	Params      json.RawMessage  `json:"params"`
	ArtifactURL string           `json:"artifact_url,omitempty"`
	Error       string           `json:"error,omitempty"`
	RunAfter    time.Time        `json:"run_after"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// A BuildResult is produced by a builder backend on success. The queue treats
// the locator as opaque; it's stored on the job record verbatim.
type BuildResult struct {
	ArtifactURL string `json:"artifact_url"`
}

// Scan implements the Scanner interface.
func (j *JobStatus) Scan(src interface{}) error {
	if src == nil {
		return nil
	} else if txt, ok := src.(string); ok {
		*j = JobStatus(txt)
		return nil
	} else if txt, ok := src.([]byte); ok {
		*j = JobStatus(string(txt))
		return nil
	}
	return fmt.Errorf("Unsupported JobStatus: %#v", src)
}

func (j JobStatus) Value() (driver.Value, error) {
	return string(j), nil
}

// Scan implements the Scanner interface.
func (k *BuildKind) Scan(src interface{}) error {
	if src == nil {
		return nil
	} else if txt, ok := src.(string); ok {
		*k = BuildKind(txt)
		return nil
	} else if txt, ok := src.([]byte); ok {
		*k = BuildKind(string(txt))
		return nil
	}
	return fmt.Errorf("Unsupported BuildKind: %#v", src)
}

func (k BuildKind) Value() (driver.Value, error) {
	return string(k), nil
}
