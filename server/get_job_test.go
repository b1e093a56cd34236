package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/forgehq/forge/models"
	"github.com/forgehq/forge/rest"
	"github.com/forgehq/forge/storage"
	"github.com/forgehq/forge/test"
	"github.com/forgehq/forge/test/factory"
)

func getJobRecord(s http.Handler, id string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", fmt.Sprintf("/v1/jobs/%s", id), nil)
	req.SetBasicAuth("foo", "bar")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func TestGetJobReturnsRecord(t *testing.T) {
	t.Parallel()
	s, store := testServer(&UnsafeBypassAuthorizer{})
	created := factory.CreateBuildJob(t, store)

	w := getJobRecord(s, created.ID.String())
	test.AssertEquals(t, w.Code, http.StatusOK)

	var job models.BuildJob
	err := json.Unmarshal(w.Body.Bytes(), &job)
	test.AssertNotError(t, err, "unmarshaling response")
	test.AssertEquals(t, job.ID.String(), created.ID.String())
	test.AssertEquals(t, job.Status, models.StatusPending)
	test.AssertEquals(t, job.ProjectRef, created.ProjectRef)
}

func TestGetJobTerminalRecordIncludesOutcome(t *testing.T) {
	t.Parallel()
	s, store := testServer(&UnsafeBypassAuthorizer{})
	created := factory.CreateRunningBuildJob(t, store)
	err := store.Fail(created.ID, "disk full")
	test.AssertNotError(t, err, "failing job")

	w := getJobRecord(s, created.ID.String())
	test.AssertEquals(t, w.Code, http.StatusOK)

	var job models.BuildJob
	err = json.Unmarshal(w.Body.Bytes(), &job)
	test.AssertNotError(t, err, "unmarshaling response")
	test.AssertEquals(t, job.Status, models.StatusFailed)
	test.AssertEquals(t, job.Error, "disk full")
}

func TestGetJobUnknownId404(t *testing.T) {
	t.Parallel()
	s, _ := testServer(&UnsafeBypassAuthorizer{})
	w := getJobRecord(s, factory.RandomId(storage.Prefix).String())
	test.AssertEquals(t, w.Code, http.StatusNotFound)
	var e rest.Error
	err := json.Unmarshal(w.Body.Bytes(), &e)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, e.ID, "not_found")
}

func TestGetJobInvalidUUID400(t *testing.T) {
	t.Parallel()
	s, _ := testServer(&UnsafeBypassAuthorizer{})
	w := getJobRecord(s, "bld_notauuid")
	test.AssertEquals(t, w.Code, http.StatusBadRequest)
	var e rest.Error
	err := json.Unmarshal(w.Body.Bytes(), &e)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, e.ID, "invalid_uuid")
}

func TestGetJobWrongPrefix404(t *testing.T) {
	t.Parallel()
	s, _ := testServer(&UnsafeBypassAuthorizer{})
	// The route only matches bld_ ids, anything else falls through to the 404
	// handler.
	w := getJobRecord(s, "job_6740b44e-13b9-475d-af06-979627e0e0d6")
	test.AssertEquals(t, w.Code, http.StatusNotFound)
}
