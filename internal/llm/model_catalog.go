package llm

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/danshapiro/gamecrew/internal/modelmeta"
)

// ModelInfo is the normalized metadata of a Gemini model. It is used to keep
// requests inside the model's limits, never to pick a call path.
type ModelInfo struct {
	ID               string   `json:"id"`
	Provider         string   `json:"provider"`
	DisplayName      string   `json:"display_name"`
	InputTokenLimit  int      `json:"input_token_limit"`
	OutputTokenLimit int      `json:"output_token_limit,omitempty"`
	Aliases          []string `json:"aliases,omitempty"`
}

// ModelCatalog is safe for concurrent lookups once built. Models must not be
// modified after the first lookup.
type ModelCatalog struct {
	Models []ModelInfo

	once sync.Once
	byID map[string]ModelInfo
}

// DefaultModelCatalog lists the Gemini models gamecrew is tuned for.
func DefaultModelCatalog() *ModelCatalog {
	return &ModelCatalog{Models: []ModelInfo{
		{ID: "gemini-1.5-pro-002", Provider: "google", DisplayName: "Gemini 1.5 Pro", InputTokenLimit: 2097152, OutputTokenLimit: 8192, Aliases: []string{"gemini-1.5-pro", "gemini-1.5-pro-latest"}},
		{ID: "gemini-1.5-flash-002", Provider: "google", DisplayName: "Gemini 1.5 Flash", InputTokenLimit: 1048576, OutputTokenLimit: 8192, Aliases: []string{"gemini-1.5-flash", "gemini-1.5-flash-latest"}},
		{ID: "gemini-2.0-flash-001", Provider: "google", DisplayName: "Gemini 2.0 Flash", InputTokenLimit: 1048576, OutputTokenLimit: 8192, Aliases: []string{"gemini-2.0-flash"}},
		{ID: "gemini-2.5-flash", Provider: "google", DisplayName: "Gemini 2.5 Flash", InputTokenLimit: 1048576, OutputTokenLimit: 65536},
		{ID: "gemini-2.5-pro", Provider: "google", DisplayName: "Gemini 2.5 Pro", InputTokenLimit: 1048576, OutputTokenLimit: 65536},
	}}
}

// GetModelInfo resolves an id, alias or "models/..." resource name.
func (c *ModelCatalog) GetModelInfo(modelID string) *ModelInfo {
	if c == nil {
		return nil
	}
	c.once.Do(c.buildIndex)
	if mi, ok := c.byID[strings.ToLower(modelmeta.ModelIDFromResourceName(modelID))]; ok {
		out := mi
		return &out
	}
	return nil
}

func (c *ModelCatalog) ListModels(provider string) []ModelInfo {
	if c == nil {
		return nil
	}
	p := modelmeta.NormalizeProvider(provider)
	if p == "" {
		return append([]ModelInfo{}, c.Models...)
	}
	var out []ModelInfo
	for _, m := range c.Models {
		if modelmeta.NormalizeProvider(m.Provider) == p {
			out = append(out, m)
		}
	}
	return out
}

func (c *ModelCatalog) buildIndex() {
	by := make(map[string]ModelInfo, len(c.Models))
	add := func(key string, m ModelInfo) {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			return
		}
		if _, exists := by[key]; exists {
			// Leave the first entry to avoid silently changing behavior on duplicates.
			return
		}
		by[key] = m
	}
	for _, m := range c.Models {
		add(m.ID, m)
	}
	for _, m := range c.Models {
		for _, a := range m.Aliases {
			add(a, m)
		}
	}
	c.byID = by
}

type geminiModelsPayload struct {
	Models []geminiModel `json:"models"`
}

type geminiModel struct {
	Name                       string   `json:"name"`
	BaseModelID                string   `json:"baseModelId"`
	DisplayName                string   `json:"displayName"`
	InputTokenLimit            int      `json:"inputTokenLimit"`
	OutputTokenLimit           int      `json:"outputTokenLimit"`
	SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
}

// LoadModelCatalogFromGeminiJSON loads model metadata from the Gemini
// ListModels payload shape: {"models":[...]}. Models that cannot serve
// generateContent are skipped.
func LoadModelCatalogFromGeminiJSON(path string) (*ModelCatalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var payload geminiModelsPayload
	if err := json.Unmarshal(b, &payload); err != nil {
		return nil, err
	}

	var models []ModelInfo
	for _, v := range payload.Models {
		id := modelmeta.ModelIDFromResourceName(v.Name)
		if id == "" {
			continue
		}
		if !modelmeta.ContainsFold(v.SupportedGenerationMethods, "generateContent") {
			continue
		}
		name := strings.TrimSpace(v.DisplayName)
		if name == "" {
			name = id
		}
		var aliases []string
		if base := strings.TrimSpace(v.BaseModelID); base != "" && base != id {
			aliases = []string{base}
		}
		models = append(models, ModelInfo{
			ID:               id,
			Provider:         "google",
			DisplayName:      name,
			InputTokenLimit:  v.InputTokenLimit,
			OutputTokenLimit: v.OutputTokenLimit,
			Aliases:          aliases,
		})
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("gemini model catalog has no generateContent models: %s", path)
	}

	// Stable ordering.
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return &ModelCatalog{Models: models}, nil
}
