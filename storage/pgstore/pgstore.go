// Postgres implementation of the build job store.
package pgstore

import (
	"database/sql"
	"fmt"
	"time"

	dberror "github.com/Shyp/go-dberror"
	"github.com/Shyp/go-types"
	uuid "github.com/kevinburke/go.uuid"
	"github.com/forgehq/forge/models"
	"github.com/forgehq/forge/storage"
	"github.com/lib/pq"
)

func init() {
	dberror.RegisterConstraint(attemptsConstraint)
	dberror.RegisterConstraint(statusConstraint)
}

// StuckBuildLimit is the maximum number of stuck builds to fetch in one
// database query.
var StuckBuildLimit = 100

// PG is a storage.Store backed by the "build_jobs" table. All queries are
// prepared once in New.
type PG struct {
	conn *sql.DB

	createStmt   *sql.Stmt
	getStmt      *sql.Stmt
	acquireStmt  *sql.Stmt
	succeedStmt  *sql.Stmt
	failStmt     *sql.Stmt
	retryStmt    *sql.Stmt
	stuckStmt    *sql.Stmt
	countStmt    *sql.Stmt
	statusOfStmt *sql.Stmt
}

// New prepares all build_jobs queries against conn.
func New(conn *sql.DB) (*PG, error) {
	if conn == nil {
		return nil, fmt.Errorf("pgstore: nil database connection")
	}
	p := &PG{conn: conn}

	var err error
	p.createStmt, err = conn.Prepare(fmt.Sprintf(`-- pgstore.Create
INSERT INTO build_jobs (id, project_ref, kind, status, attempts, params, run_after)
VALUES ($1, $2, $3, '%s', $4, $5, $6)
RETURNING %s`, models.StatusPending, fields()))
	if err != nil {
		return nil, err
	}

	p.getStmt, err = conn.Prepare(fmt.Sprintf(`-- pgstore.Get
SELECT %s
FROM build_jobs
WHERE id = $1`, fields()))
	if err != nil {
		return nil, err
	}

	p.acquireStmt, err = conn.Prepare(fmt.Sprintf(`-- pgstore.Acquire
WITH ready AS (
	SELECT id AS inner_id
	FROM build_jobs
	WHERE status='%[1]s'
		AND kind = $1
		AND run_after <= now()
	ORDER BY created_at ASC
	LIMIT 1
	FOR UPDATE
) UPDATE build_jobs
SET status='%[2]s',
	updated_at=now()
FROM ready
WHERE build_jobs.id = ready.inner_id
	AND status='%[1]s'
RETURNING %[3]s`, models.StatusPending, models.StatusRunning, fields()))
	if err != nil {
		return nil, err
	}

	p.succeedStmt, err = conn.Prepare(fmt.Sprintf(`-- pgstore.Succeed
UPDATE build_jobs
SET status = '%s',
	artifact_url = $2,
	updated_at = now()
WHERE id = $1
	AND status = '%s'`, models.StatusSucceeded, models.StatusRunning))
	if err != nil {
		return nil, err
	}

	p.failStmt, err = conn.Prepare(fmt.Sprintf(`-- pgstore.Fail
UPDATE build_jobs
SET status = '%s',
	error = $2,
	updated_at = now()
WHERE id = $1
	AND status = '%s'`, models.StatusFailed, models.StatusRunning))
	if err != nil {
		return nil, err
	}

	p.retryStmt, err = conn.Prepare(fmt.Sprintf(`-- pgstore.Retry
UPDATE build_jobs
SET status = '%s',
	updated_at = now(),
	attempts = attempts - 1,
	run_after = $3
WHERE id = $1
	AND status = '%s'
	AND attempts = $2
RETURNING %s`, models.StatusPending, models.StatusRunning, fields()))
	if err != nil {
		return nil, err
	}

	p.stuckStmt, err = conn.Prepare(fmt.Sprintf(`-- pgstore.GetStuck
SELECT %s FROM build_jobs WHERE status='%s' AND updated_at < $1 LIMIT %d`,
		fields(), models.StatusRunning, StuckBuildLimit))
	if err != nil {
		return nil, err
	}

	p.countStmt, err = conn.Prepare(`-- pgstore.CountByStatus
SELECT count(*) FROM build_jobs WHERE status = $1`)
	if err != nil {
		return nil, err
	}

	p.statusOfStmt, err = conn.Prepare(`-- pgstore.statusOf
SELECT status FROM build_jobs WHERE id = $1`)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PG) Create(projectRef string, kind models.BuildKind, params []byte, attempts uint8, runAfter time.Time) (*models.BuildJob, error) {
	id := types.GenerateUUID(storage.Prefix)
	if len(params) == 0 {
		params = []byte("null")
	}
	job := new(models.BuildJob)
	var bt []byte
	err := p.createStmt.QueryRow(id, projectRef, kind, attempts, params, runAfter).Scan(args(job, &bt)...)
	if err != nil {
		return nil, dberror.GetError(err)
	}
	job.Params = bt
	return job, nil
}

func (p *PG) Get(id types.PrefixUUID) (*models.BuildJob, error) {
	if id.UUID == uuid.Nil {
		return nil, storage.ErrNotFound
	}
	job := new(models.BuildJob)
	var bt []byte
	err := p.getStmt.QueryRow(id).Scan(args(job, &bt)...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, dberror.GetError(err)
	}
	job.Params = bt
	return job, nil
}

// GetRetry attempts to retrieve the job attempts times before giving up.
func (p *PG) GetRetry(id types.PrefixUUID, attempts uint8) (job *models.BuildJob, err error) {
	for i := uint8(0); i < attempts; i++ {
		job, err = p.Get(id)
		if err == nil || err == storage.ErrNotFound {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	return
}

func (p *PG) Acquire(kind models.BuildKind) (*models.BuildJob, error) {
	job := new(models.BuildJob)
	var bt []byte
	err := p.acquireStmt.QueryRow(kind).Scan(args(job, &bt)...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNonePending
		}
		return nil, dberror.GetError(err)
	}
	job.Params = bt
	return job, nil
}

func (p *PG) Succeed(id types.PrefixUUID, artifactURL string) error {
	return p.finish(p.succeedStmt, id, artifactURL)
}

func (p *PG) Fail(id types.PrefixUUID, message string) error {
	return p.finish(p.failStmt, id, message)
}

// finish runs a conditional terminal update. Zero rows affected means the job
// was not in the running state; the current status is fetched to build the
// transition error.
func (p *PG) finish(stmt *sql.Stmt, id types.PrefixUUID, value string) error {
	res, err := stmt.Exec(id, value)
	if err != nil {
		return dberror.GetError(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 1 {
		return nil
	}
	var status models.JobStatus
	err = p.statusOfStmt.QueryRow(id).Scan(&status)
	if err == sql.ErrNoRows {
		return &storage.InvalidTransitionError{ID: id}
	}
	if err != nil {
		return dberror.GetError(err)
	}
	return &storage.InvalidTransitionError{ID: id, Status: status}
}

func (p *PG) Retry(id types.PrefixUUID, attempts uint8, runAfter time.Time) (*models.BuildJob, error) {
	job := new(models.BuildJob)
	var bt []byte
	err := p.retryStmt.QueryRow(id, attempts, runAfter).Scan(args(job, &bt)...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &storage.InvalidTransitionError{ID: id}
		}
		return nil, dberror.GetError(err)
	}
	job.Params = bt
	return job, nil
}

func (p *PG) GetStuck(olderThan time.Time) ([]*models.BuildJob, error) {
	rows, err := p.stuckStmt.Query(olderThan)
	var jobs []*models.BuildJob
	if err != nil {
		return jobs, err
	}
	defer rows.Close()
	for rows.Next() {
		job := new(models.BuildJob)
		var bt []byte
		if err := rows.Scan(args(job, &bt)...); err != nil {
			return jobs, err
		}
		job.Params = bt
		jobs = append(jobs, job)
	}
	err = rows.Err()
	return jobs, err
}

func (p *PG) CountByStatus(status models.JobStatus) (count int64, err error) {
	err = p.countStmt.QueryRow(status).Scan(&count)
	return
}

func fields() string {
	return fmt.Sprintf(`'%s' || id,
	project_ref,
	kind,
	status,
	attempts,
	params,
	artifact_url,
	error,
	run_after,
	created_at,
	updated_at`, storage.Prefix)
}

func args(job *models.BuildJob, byteptr *[]byte) []interface{} {
	return []interface{}{
		&job.ID,
		&job.ProjectRef,
		&job.Kind,
		&job.Status,
		&job.Attempts,
		// can't scan into Params because of https://github.com/golang/go/issues/13905
		byteptr,
		&job.ArtifactURL,
		&job.Error,
		&job.RunAfter,
		&job.CreatedAt,
		&job.UpdatedAt,
	}
}

var attemptsConstraint = &dberror.Constraint{
	Name: "build_jobs_attempts_check",
	GetError: func(e *pq.Error) *dberror.Error {
		return &dberror.Error{
			Message:    "Please set a greater-than-zero number of attempts",
			Constraint: e.Constraint,
			Table:      e.Table,
			Severity:   e.Severity,
			Detail:     e.Detail,
		}
	},
}

var statusConstraint = &dberror.Constraint{
	Name: "build_jobs_status_check",
	GetError: func(e *pq.Error) *dberror.Error {
		return &dberror.Error{
			Message:    "Invalid job status",
			Constraint: e.Constraint,
			Table:      e.Table,
			Severity:   e.Severity,
			Detail:     e.Detail,
		}
	},
}
