package gamescene

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/forgehq/forge/artifacts"
	"github.com/forgehq/forge/models"
	"github.com/forgehq/forge/test"
	"github.com/forgehq/forge/test/factory"
)

func TestGenerateMapsVocabulary(t *testing.T) {
	t.Parallel()
	scene := Generate("a player, two enemies and a door", 800, 600)
	test.AssertEquals(t, len(scene.Entities), 3)
	test.AssertEquals(t, scene.Entities[0].Type, "player")
	test.AssertEquals(t, scene.Entities[1].Type, "enemy")
	test.AssertEquals(t, scene.Entities[2].Type, "exit")
	for _, e := range scene.Entities {
		test.Assert(t, e.X >= 0 && e.X < 800, "entity x out of bounds")
		test.Assert(t, e.Y >= 0 && e.Y < 600, "entity y out of bounds")
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	t.Parallel()
	one := Generate("player with coins on a platform", 800, 600)
	two := Generate("player with coins on a platform", 800, 600)
	test.AssertDeepEquals(t, one, two)
}

func TestGenerateIgnoresUnknownWords(t *testing.T) {
	t.Parallel()
	scene := Generate("a serene mountain landscape", 800, 600)
	test.AssertEquals(t, len(scene.Entities), 0)
}

func TestBuildStoresScene(t *testing.T) {
	t.Parallel()
	g := New(artifacts.Discard{})
	job := &models.BuildJob{
		ID:         factory.JobId,
		ProjectRef: "proj-koel",
		Kind:       models.KindGameScene,
		Params:     factory.SceneParams,
	}
	result, err := g.Build(context.Background(), job)
	test.AssertNotError(t, err, "building scene")
	test.Assert(t, strings.HasPrefix(result.ArtifactURL, "discard://proj-koel/"), "unexpected locator")
	test.Assert(t, strings.HasSuffix(result.ArtifactURL, ".scene.json"), "unexpected locator suffix")
}

func TestBuildEmptyPromptFails(t *testing.T) {
	t.Parallel()
	g := New(artifacts.Discard{})
	job := &models.BuildJob{
		ID:         factory.JobId,
		ProjectRef: "proj-koel",
		Kind:       models.KindGameScene,
		Params:     json.RawMessage(`{"prompt": "   "}`),
	}
	_, err := g.Build(context.Background(), job)
	test.AssertError(t, err, "building with an empty prompt")
	test.AssertEquals(t, err.Error(), "gamescene: prompt is required")
}

func TestBuildBadParamsFails(t *testing.T) {
	t.Parallel()
	g := New(artifacts.Discard{})
	job := &models.BuildJob{
		ID:     factory.JobId,
		Params: json.RawMessage(`{"prompt": 12}`),
	}
	_, err := g.Build(context.Background(), job)
	test.AssertError(t, err, "building with bad params")
}
