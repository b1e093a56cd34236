// Builder backend that delegates a build to an external builder service over
// HTTP. The service receives the job on POST /v1/builds/:kind and is expected
// to respond 200 with the artifact locator once the build completes.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/forgehq/forge/models"
	"github.com/forgehq/forge/rest"
)

// DefaultTimeout bounds a single request to the builder service. The caller's
// context deadline still applies on top of it.
const DefaultTimeout = 5 * time.Minute

// BuildRequest is the body posted to the builder service.
type BuildRequest struct {
	ID         string          `json:"id"`
	ProjectRef string          `json:"project_ref"`
	Params     json.RawMessage `json:"params"`
	Attempts   uint8           `json:"attempts"`
}

// BuildResponse is the expected 2xx response body.
type BuildResponse struct {
	ArtifactURL string `json:"artifact_url"`
}

type Builder struct {
	Client *rest.Client
}

// NewBuilder creates a Builder that posts jobs to the service at base.
//
// By default the Client uses Basic Auth with "builds" as the username, and
// the configured password as the password.
func NewBuilder(base string, password string) *Builder {
	c := rest.NewClient("builds", password, base)
	c.Client = &http.Client{Timeout: DefaultTimeout}
	return &Builder{Client: c}
}

func (b *Builder) Build(ctx context.Context, job *models.BuildJob) (*models.BuildResult, error) {
	body := &BuildRequest{
		ID:         job.ID.String(),
		ProjectRef: job.ProjectRef,
		Params:     job.Params,
		Attempts:   job.Attempts,
	}
	if len(body.Params) == 0 {
		body.Params = []byte("null")
	}
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return nil, err
	}
	req, err := b.Client.NewRequest("POST", fmt.Sprintf("/v1/builds/%s", job.Kind), buf)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	var resp BuildResponse
	if err := b.Client.Do(req, &resp); err != nil {
		return nil, err
	}
	if resp.ArtifactURL == "" {
		return nil, errors.New("remote: builder service returned no artifact locator")
	}
	return &models.BuildResult{ArtifactURL: resp.ArtifactURL}, nil
}
