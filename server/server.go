// Package server provides the HTTP interface for the build queue.
package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/http/httputil"
	"net/http/pprof"
	"os"
	"regexp"
	"strings"
	"time"

	dberror "github.com/Shyp/go-dberror"
	"github.com/Shyp/go-simple-metrics"
	"github.com/forgehq/forge/config"
	"github.com/forgehq/forge/models"
	"github.com/forgehq/forge/queue"
	"github.com/forgehq/forge/rest"
	"github.com/forgehq/forge/storage"
)

// The maximum size of the params document that can be sent in the body of a
// build submission.
const MAX_PARAMS_SIZE = 100 * 1024

var disallowUnencryptedRequests = true

// POST /v1/builds
var buildsRoute = regexp.MustCompile(`^/v1/builds$`)

// GET /v1/jobs/bld_123
var getJobRoute = regexp.MustCompile(`^/v1/jobs/(?P<id>bld_[^\s\/]+)$`)

func init() {
	disallowUnencryptedRequests = os.Getenv("ALLOW_UNENCRYPTED_PROXY_TRAFFIC") != "true"
}

// Get returns a http.Handler with all routes initialized using the given
// Authorizer and Queue. The healthcheck route is served without
// authentication.
func Get(a Authorizer, q *queue.Queue) http.Handler {
	h := new(RegexpHandler)

	h.Handler(buildsRoute, []string{"POST"}, authHandler(createBuild(q), a))
	h.Handler(getJobRoute, []string{"GET"}, authHandler(getJob(q), a))

	h.Handler(regexp.MustCompile("^/healthcheck$"), []string{"GET"}, http.HandlerFunc(healthcheck))

	h.Handler(regexp.MustCompile("^/debug/pprof$"), []string{"GET"}, authHandler(http.HandlerFunc(pprof.Index), a))
	h.Handler(regexp.MustCompile("^/debug/pprof/cmdline$"), []string{"GET"}, authHandler(http.HandlerFunc(pprof.Cmdline), a))
	h.Handler(regexp.MustCompile("^/debug/pprof/profile$"), []string{"GET"}, authHandler(http.HandlerFunc(pprof.Profile), a))
	h.Handler(regexp.MustCompile("^/debug/pprof/symbol$"), []string{"GET"}, authHandler(http.HandlerFunc(pprof.Symbol), a))
	h.Handler(regexp.MustCompile("^/debug/pprof/trace$"), []string{"GET"}, authHandler(http.HandlerFunc(pprof.Trace), a))

	h.Handler(regexp.MustCompile("^/$"), []string{"GET"}, authHandler(http.HandlerFunc(renderHomepage), a))

	return debugRequestBodyHandler(
		serverHeaderHandler(
			forbidNonTLSTrafficHandler(h),
		),
	)
}

func serverHeaderHandler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// hack, figure out how to put middleware on a subset of responses
		if strings.Contains(r.URL.Path, "/debug/pprof") {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		} else if r.URL.Path == "/" {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
		} else {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
		}
		w.Header().Set("Server", fmt.Sprintf("forge/%s", config.Version))
		h.ServeHTTP(w, r)
	})
}

// forbidNonTLSTrafficHandler returns a 403 to traffic that is sent via a proxy
func forbidNonTLSTrafficHandler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if disallowUnencryptedRequests == true {
			if r.Header.Get("X-Forwarded-Proto") == "http" {
				// It should always be set, but if it's not, let the request
				// through.
				forbidden(w, insecure403(r))
				return
			}
		}
		// This header doesn't mean anything when served over HTTP, but
		// detecting HTTPS is a general way is hard, so let's just send it
		// every time.
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		h.ServeHTTP(w, r)
	})
}

func authHandler(h http.Handler, a Authorizer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userId, token, ok := r.BasicAuth()
		if !ok {
			authenticate(w, new401(r))
			return
		}
		err := a.Authorize(userId, token)
		if err != nil {
			metrics.Increment("auth.error")
			handleAuthorizeError(w, r, err)
			return
		}
		metrics.Increment("auth.success")
		h.ServeHTTP(w, r)
	})
}

// debugRequestBodyHandler prints all incoming and outgoing HTTP traffic if the
// DEBUG_HTTP_TRAFFIC environment variable is set to true. Note that the output
// will be jumbled if the server is handling multiple requests at the same
// time.
func debugRequestBodyHandler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if os.Getenv("DEBUG_HTTP_TRAFFIC") == "true" {
			// You need to write the entire thing in one Write, otherwise the
			// output will be jumbled with other requests.
			b := new(bytes.Buffer)
			bits, err := httputil.DumpRequest(r, true)
			if err != nil {
				_, _ = b.WriteString(err.Error())
			} else {
				_, _ = b.Write(bits)
			}
			res := httptest.NewRecorder()
			h.ServeHTTP(res, r)

			_, _ = b.WriteString(fmt.Sprintf("HTTP/1.1 %d\r\n", res.Code))
			_ = res.Result().Header.Write(b)
			for k, v := range res.Result().Header {
				w.Header()[k] = v
			}
			w.WriteHeader(res.Code)
			_, _ = b.WriteString("\r\n")
			writer := io.MultiWriter(w, b)
			_, _ = res.Body.WriteTo(writer)
			_, _ = b.WriteTo(os.Stderr)
		} else {
			h.ServeHTTP(w, r)
		}
	})
}

func healthcheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// CreateBuildRequest is a struct of data sent in the body of a request to
// /v1/builds.
type CreateBuildRequest struct {
	ProjectRef string           `json:"project_ref"`
	Kind       models.BuildKind `json:"kind"`
	// Backend-specific parameters, stored on the job verbatim.
	Params json.RawMessage `json:"params"`
	// Overrides the queue's retry policy for this job if nonzero.
	Attempts uint8 `json:"attempts"`
}

// POST /v1/builds
//
// createBuild validates a build submission and creates a pending job for it.
// The response is written before the build runs; poll GET /v1/jobs/:id for
// the outcome.
func createBuild(q *queue.Queue) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body == nil {
			badRequest(w, r, createEmptyErr("project_ref", r.URL.Path))
			return
		}
		defer r.Body.Close()
		var cbr CreateBuildRequest
		// XXX check for content-type
		err := json.NewDecoder(r.Body).Decode(&cbr)
		if err != nil {
			badRequest(w, r, &rest.Error{
				ID:    "invalid_request",
				Title: "Invalid request: bad JSON. Double check the types of the fields you sent",
			})
			return
		}
		if cbr.ProjectRef == "" {
			badRequest(w, r, createEmptyErr("project_ref", r.URL.Path))
			return
		}
		if cbr.Kind == models.BuildKind("") {
			badRequest(w, r, createEmptyErr("kind", r.URL.Path))
			return
		}
		if len(cbr.Params) > MAX_PARAMS_SIZE {
			err := &rest.Error{
				ID:    "entity_too_large",
				Title: "Params field is too large (100KB max)",
			}
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			json.NewEncoder(w).Encode(err)
			return
		}

		start := time.Now()
		job, err := q.Submit(cbr.ProjectRef, cbr.Kind, cbr.Params, cbr.Attempts)
		go metrics.Time("builds.create.latency", time.Since(start))
		if err != nil {
			switch terr := err.(type) {
			case *queue.UnknownKindError:
				badRequest(w, r, &rest.Error{
					Title:    fmt.Sprintf("Unknown build kind: %s", terr.Kind),
					ID:       "invalid_kind",
					Instance: r.URL.Path,
				})
				return
			case *dberror.Error:
				badRequest(w, r, &rest.Error{
					Title:    terr.Message,
					ID:       "invalid_parameter",
					Instance: r.URL.Path,
				})
				return
			default:
				writeServerError(w, r, err)
				return
			}
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(job)
		go metrics.Increment("builds.create.success")
	})
}

// GET /v1/jobs/:id
//
// Return the current record for a build job, terminal or not. Returns a 404
// Not Found error if no job has that id.
func getJob(q *queue.Queue) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idStr := getJobRoute.FindStringSubmatch(r.URL.Path)[1]
		id, wroteResponse := getId(w, r, idStr)
		if wroteResponse == true {
			return
		}
		job, err := getRetry(q.Store, id, 3)
		if err == storage.ErrNotFound {
			notFound(w, new404(r))
			go metrics.Increment("job.get.not_found")
			return
		}
		if err != nil {
			writeServerError(w, r, err)
			go metrics.Increment("job.get.error")
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(job)
		go metrics.Increment("job.get.success")
	})
}
