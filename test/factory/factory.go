// Package factory contains helpers for instantiating tests.
package factory

import (
	"encoding/json"
	"testing"
	"time"

	types "github.com/Shyp/go-types"
	"github.com/forgehq/forge/models"
	"github.com/forgehq/forge/storage"
	"github.com/forgehq/forge/test"
	uuid "github.com/kevinburke/go.uuid"
)

var EmptyData = json.RawMessage([]byte("{}"))

var JobId types.PrefixUUID

func init() {
	id, _ := types.NewPrefixUUID("bld_6740b44e-13b9-475d-af06-979627e0e0d6")
	JobId = id
}

// MobileParams is a valid params document for a mobile-package build.
var MobileParams = json.RawMessage([]byte(`{"platform": "android", "version": "1.2.3"}`))

// SceneParams is a valid params document for a game-scene build.
var SceneParams = json.RawMessage([]byte(`{"prompt": "a player and two enemies on a platform", "width": 800, "height": 600}`))

// RandomId returns a random UUID with the given prefix.
func RandomId(prefix string) types.PrefixUUID {
	id := uuid.NewV4()
	return types.PrefixUUID{
		UUID:   id,
		Prefix: prefix,
	}
}

// CreateBuildJob creates a pending mobile-package job with three attempts in
// the given store.
func CreateBuildJob(t testing.TB, store storage.Store) *models.BuildJob {
	t.Helper()
	job, err := store.Create("proj-screech", models.KindMobilePackage, MobileParams, 3, time.Now().UTC())
	test.AssertNotError(t, err, "creating build job")
	return job
}

// CreateRunningBuildJob creates a job and acquires it, returning the record in
// the running state.
func CreateRunningBuildJob(t testing.TB, store storage.Store) *models.BuildJob {
	t.Helper()
	CreateBuildJob(t, store)
	job, err := store.Acquire(models.KindMobilePackage)
	test.AssertNotError(t, err, "acquiring build job")
	test.AssertEquals(t, job.Status, models.StatusRunning)
	return job
}
