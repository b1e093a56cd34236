package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/forgehq/forge/models"
	"github.com/forgehq/forge/rest"
	"github.com/forgehq/forge/test"
)

func postBuild(s http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/v1/builds", strings.NewReader(body))
	req.SetBasicAuth("foo", "bar")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func TestCreateBuildReturnsPendingJob(t *testing.T) {
	t.Parallel()
	s, store := testServer(&UnsafeBypassAuthorizer{})
	w := postBuild(s, `{"project_ref": "proj-screech", "kind": "mobile-package", "params": {"platform": "android"}}`)
	test.AssertEquals(t, w.Code, http.StatusAccepted)

	var job models.BuildJob
	err := json.Unmarshal(w.Body.Bytes(), &job)
	test.AssertNotError(t, err, "unmarshaling response")
	test.AssertEquals(t, job.Status, models.StatusPending)
	test.AssertEquals(t, job.ProjectRef, "proj-screech")
	test.Assert(t, strings.HasPrefix(job.ID.String(), "bld_"), "id should carry the bld_ prefix")
	test.AssertEquals(t, store.Len(), 1)
}

func TestCreateBuildMissingProjectRef(t *testing.T) {
	t.Parallel()
	s, store := testServer(&UnsafeBypassAuthorizer{})
	w := postBuild(s, `{"kind": "mobile-package"}`)
	test.AssertEquals(t, w.Code, http.StatusBadRequest)
	var e rest.Error
	err := json.Unmarshal(w.Body.Bytes(), &e)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, e.ID, "missing_parameter")
	test.AssertEquals(t, e.Title, "Missing required field: project_ref")
	test.AssertEquals(t, store.Len(), 0)
}

func TestCreateBuildMissingKind(t *testing.T) {
	t.Parallel()
	s, store := testServer(&UnsafeBypassAuthorizer{})
	w := postBuild(s, `{"project_ref": "proj-screech"}`)
	test.AssertEquals(t, w.Code, http.StatusBadRequest)
	var e rest.Error
	err := json.Unmarshal(w.Body.Bytes(), &e)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, e.ID, "missing_parameter")
	test.AssertEquals(t, e.Title, "Missing required field: kind")
	test.AssertEquals(t, store.Len(), 0)
}

func TestCreateBuildBadJSON(t *testing.T) {
	t.Parallel()
	s, store := testServer(&UnsafeBypassAuthorizer{})
	w := postBuild(s, `{"project_ref": `)
	test.AssertEquals(t, w.Code, http.StatusBadRequest)
	var e rest.Error
	err := json.Unmarshal(w.Body.Bytes(), &e)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, e.ID, "invalid_request")
	test.AssertEquals(t, store.Len(), 0)
}

func TestCreateBuildUnknownKind(t *testing.T) {
	t.Parallel()
	s, store := testServer(&UnsafeBypassAuthorizer{})
	w := postBuild(s, `{"project_ref": "proj-screech", "kind": "teleport"}`)
	test.AssertEquals(t, w.Code, http.StatusBadRequest)
	var e rest.Error
	err := json.Unmarshal(w.Body.Bytes(), &e)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, e.ID, "invalid_kind")
	test.AssertEquals(t, e.Title, "Unknown build kind: teleport")
	test.AssertEquals(t, store.Len(), 0)
}

func TestCreateBuildParamsTooLarge(t *testing.T) {
	t.Parallel()
	s, store := testServer(&UnsafeBypassAuthorizer{})
	big := bytes.Repeat([]byte("a"), MAX_PARAMS_SIZE+1)
	body := fmt.Sprintf(`{"project_ref": "proj-screech", "kind": "mobile-package", "params": {"blob": %q}}`, big)
	w := postBuild(s, body)
	test.AssertEquals(t, w.Code, http.StatusRequestEntityTooLarge)
	var e rest.Error
	err := json.Unmarshal(w.Body.Bytes(), &e)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, e.ID, "entity_too_large")
	test.AssertEquals(t, store.Len(), 0)
}

func TestCreateBuildRequiresAuth(t *testing.T) {
	t.Parallel()
	s, store := testServer(NewSharedSecretAuthorizer())
	req := httptest.NewRequest("POST", "/v1/builds", strings.NewReader(`{"project_ref": "proj-screech", "kind": "mobile-package"}`))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusUnauthorized)
	test.AssertEquals(t, store.Len(), 0)
}
