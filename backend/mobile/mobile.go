// Builder backend for the "mobile-package" kind: assembles an installable
// package archive for a project and stores it as the job's artifact.
package mobile

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/forgehq/forge/artifacts"
	"github.com/forgehq/forge/models"
)

// Params are the backend-specific parameters accepted in the "params" field
// of a mobile-package submission.
type Params struct {
	// Target platform, "android" or "ios". Defaults to "android".
	Platform string `json:"platform"`
	// Version string stamped into the package manifest.
	Version string `json:"version"`
}

var extensions = map[string]string{
	"android": "apk",
	"ios":     "ipa",
}

type Packager struct {
	Artifacts artifacts.Store
}

func New(store artifacts.Store) *Packager {
	return &Packager{Artifacts: store}
}

type manifest struct {
	ProjectRef string    `json:"project_ref"`
	Platform   string    `json:"platform"`
	Version    string    `json:"version"`
	BuiltAt    time.Time `json:"built_at"`
}

func (p *Packager) Build(ctx context.Context, job *models.BuildJob) (*models.BuildResult, error) {
	var params Params
	if len(job.Params) > 0 {
		if err := json.Unmarshal(job.Params, &params); err != nil {
			return nil, fmt.Errorf("mobile: invalid params: %v", err)
		}
	}
	if params.Platform == "" {
		params.Platform = "android"
	}
	ext, ok := extensions[params.Platform]
	if !ok {
		return nil, fmt.Errorf("mobile: unsupported platform %q", params.Platform)
	}
	if params.Version == "" {
		params.Version = "0.0.1"
	}

	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	mf, err := zw.Create("META-INF/manifest.json")
	if err != nil {
		return nil, err
	}
	err = json.NewEncoder(mf).Encode(manifest{
		ProjectRef: job.ProjectRef,
		Platform:   params.Platform,
		Version:    params.Version,
		BuiltAt:    time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s/%s.%s", job.ProjectRef, job.ID.String(), ext)
	locator, err := p.Artifacts.Put(key, buf)
	if err != nil {
		return nil, fmt.Errorf("mobile: storing package: %v", err)
	}
	return &models.BuildResult{ArtifactURL: locator}, nil
}
