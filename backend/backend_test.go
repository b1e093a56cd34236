package backend

import (
	"context"
	"testing"

	"github.com/forgehq/forge/models"
	"github.com/forgehq/forge/test"
)

type nopBackend struct{}

func (nopBackend) Build(ctx context.Context, job *models.BuildJob) (*models.BuildResult, error) {
	return &models.BuildResult{ArtifactURL: "nop://"}, nil
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	test.AssertEquals(t, r.Supported(models.KindMobilePackage), false)
	_, err := r.Get(models.KindMobilePackage)
	test.AssertError(t, err, "getting unregistered kind")

	r.Register(models.KindMobilePackage, nopBackend{})
	test.AssertEquals(t, r.Supported(models.KindMobilePackage), true)
	b, err := r.Get(models.KindMobilePackage)
	test.AssertNotError(t, err, "getting registered kind")
	test.Assert(t, b != nil, "expected a backend")

	test.AssertEquals(t, len(r.Kinds()), 1)
	test.AssertEquals(t, r.Kinds()[0], models.KindMobilePackage)
}
