// Builder backend for the "game-scene" kind: turns a natural-language prompt
// into a scene description document and stores it as the job's artifact.
package gamescene

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/forgehq/forge/artifacts"
	"github.com/forgehq/forge/models"
)

// Params are the backend-specific parameters accepted in the "params" field
// of a game-scene submission.
type Params struct {
	// Natural-language description of the scene to generate.
	Prompt string `json:"prompt"`
	// Scene dimensions in pixels. Defaults to 800x600.
	Width  int `json:"width"`
	Height int `json:"height"`
}

// known prompt words and the entity type each one maps to
var vocabulary = map[string]string{
	"player":   "player",
	"enemy":    "enemy",
	"enemies":  "enemy",
	"platform": "platform",
	"coin":     "collectible",
	"coins":    "collectible",
	"door":     "exit",
	"exit":     "exit",
}

type Scene struct {
	Prompt   string   `json:"prompt"`
	Width    int      `json:"width"`
	Height   int      `json:"height"`
	Entities []Entity `json:"entities"`
}

type Entity struct {
	Type string `json:"type"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
}

type Generator struct {
	Artifacts artifacts.Store
}

func New(store artifacts.Store) *Generator {
	return &Generator{Artifacts: store}
}

// Generate builds the scene document for a prompt. Entity positions are
// deterministic for a given prompt so repeated builds of the same submission
// produce identical artifacts.
func Generate(prompt string, width, height int) *Scene {
	scene := &Scene{
		Prompt: prompt,
		Width:  width,
		Height: height,
	}
	words := strings.Fields(strings.ToLower(prompt))
	i := 0
	for _, word := range words {
		typ, ok := vocabulary[strings.Trim(word, ".,!?")]
		if !ok {
			continue
		}
		scene.Entities = append(scene.Entities, Entity{
			Type: typ,
			X:    (i*97 + 40) % width,
			Y:    (i*53 + 80) % height,
		})
		i++
	}
	return scene
}

func (g *Generator) Build(ctx context.Context, job *models.BuildJob) (*models.BuildResult, error) {
	var params Params
	if len(job.Params) > 0 {
		if err := json.Unmarshal(job.Params, &params); err != nil {
			return nil, fmt.Errorf("gamescene: invalid params: %v", err)
		}
	}
	if strings.TrimSpace(params.Prompt) == "" {
		return nil, errors.New("gamescene: prompt is required")
	}
	if params.Width <= 0 {
		params.Width = 800
	}
	if params.Height <= 0 {
		params.Height = 600
	}

	scene := Generate(params.Prompt, params.Width, params.Height)
	buf := new(bytes.Buffer)
	enc := json.NewEncoder(buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(scene); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s/%s.scene.json", job.ProjectRef, job.ID.String())
	locator, err := g.Artifacts.Put(key, buf)
	if err != nil {
		return nil, fmt.Errorf("gamescene: storing scene: %v", err)
	}
	return &models.BuildResult{ArtifactURL: locator}, nil
}
