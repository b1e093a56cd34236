package models_test

import (
	"testing"

	"github.com/forgehq/forge/models"
	"github.com/forgehq/forge/test"
)

func TestTerminal(t *testing.T) {
	t.Parallel()
	test.AssertEquals(t, models.StatusPending.Terminal(), false)
	test.AssertEquals(t, models.StatusRunning.Terminal(), false)
	test.AssertEquals(t, models.StatusSucceeded.Terminal(), true)
	test.AssertEquals(t, models.StatusFailed.Terminal(), true)
}

func TestJobStatusScan(t *testing.T) {
	t.Parallel()
	var s models.JobStatus
	err := s.Scan("running")
	test.AssertNotError(t, err, "scanning string")
	test.AssertEquals(t, s, models.StatusRunning)

	err = s.Scan([]byte("failed"))
	test.AssertNotError(t, err, "scanning bytes")
	test.AssertEquals(t, s, models.StatusFailed)

	err = s.Scan(7)
	test.AssertError(t, err, "scanning an int")
}

func TestBuildKindScan(t *testing.T) {
	t.Parallel()
	var k models.BuildKind
	err := k.Scan("mobile-package")
	test.AssertNotError(t, err, "scanning string")
	test.AssertEquals(t, k, models.KindMobilePackage)

	err = k.Scan(false)
	test.AssertError(t, err, "scanning a bool")
}
