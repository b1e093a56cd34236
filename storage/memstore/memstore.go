// In-memory implementation of the build job store.
//
// Records live in a map guarded by a single mutex; readers get copies, so a
// caller can never observe a partial write. There is no persistence across
// process restarts - use pgstore for that.
package memstore

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/Shyp/go-types"
	"github.com/forgehq/forge/models"
	"github.com/forgehq/forge/storage"
)

type Store struct {
	mu   sync.Mutex
	jobs map[string]*models.BuildJob
}

func New() *Store {
	return &Store{
		jobs: make(map[string]*models.BuildJob),
	}
}

// copyJob returns a copy that's safe to hand to callers; Params is aliased
// but treated as immutable everywhere.
func copyJob(job *models.BuildJob) *models.BuildJob {
	c := *job
	return &c
}

func (s *Store) Create(projectRef string, kind models.BuildKind, params []byte, attempts uint8, runAfter time.Time) (*models.BuildJob, error) {
	id := types.GenerateUUID(storage.Prefix)
	now := time.Now().UTC()
	job := &models.BuildJob{
		ID:         id,
		ProjectRef: projectRef,
		Kind:       kind,
		Status:     models.StatusPending,
		Attempts:   attempts,
		Params:     json.RawMessage(params),
		RunAfter:   runAfter,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id.String()] = job
	return copyJob(job), nil
}

func (s *Store) Get(id types.PrefixUUID) (*models.BuildJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id.String()]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyJob(job), nil
}

func (s *Store) Acquire(kind models.BuildKind) (*models.BuildJob, error) {
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	var ready []*models.BuildJob
	for _, job := range s.jobs {
		if job.Kind == kind && job.Status == models.StatusPending && !job.RunAfter.After(now) {
			ready = append(ready, job)
		}
	}
	if len(ready) == 0 {
		return nil, storage.ErrNonePending
	}
	sort.Slice(ready, func(i, j int) bool {
		return ready[i].CreatedAt.Before(ready[j].CreatedAt)
	})
	job := ready[0]
	job.Status = models.StatusRunning
	job.UpdatedAt = now
	return copyJob(job), nil
}

func (s *Store) Succeed(id types.PrefixUUID, artifactURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id.String()]
	if !ok {
		return &storage.InvalidTransitionError{ID: id}
	}
	if job.Status != models.StatusRunning {
		return &storage.InvalidTransitionError{ID: id, Status: job.Status}
	}
	job.Status = models.StatusSucceeded
	job.ArtifactURL = artifactURL
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) Fail(id types.PrefixUUID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id.String()]
	if !ok {
		return &storage.InvalidTransitionError{ID: id}
	}
	if job.Status != models.StatusRunning {
		return &storage.InvalidTransitionError{ID: id, Status: job.Status}
	}
	job.Status = models.StatusFailed
	job.Error = message
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) Retry(id types.PrefixUUID, attempts uint8, runAfter time.Time) (*models.BuildJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id.String()]
	if !ok {
		return nil, &storage.InvalidTransitionError{ID: id}
	}
	if job.Status != models.StatusRunning || job.Attempts != attempts {
		return nil, &storage.InvalidTransitionError{ID: id, Status: job.Status}
	}
	job.Status = models.StatusPending
	job.Attempts = attempts - 1
	job.RunAfter = runAfter
	job.UpdatedAt = time.Now().UTC()
	return copyJob(job), nil
}

func (s *Store) GetStuck(olderThan time.Time) ([]*models.BuildJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stuck []*models.BuildJob
	for _, job := range s.jobs {
		if job.Status == models.StatusRunning && job.UpdatedAt.Before(olderThan) {
			stuck = append(stuck, copyJob(job))
		}
	}
	return stuck, nil
}

func (s *Store) CountByStatus(status models.JobStatus) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := int64(0)
	for _, job := range s.jobs {
		if job.Status == status {
			count++
		}
	}
	return count, nil
}

// Len returns the total number of records in the store, any status.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}
