package store

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/memorybank/membank/internal/errs"
)

// StoreConfig is the on-disk config.json schema, bit-exact with §6:
//
//	{version, ollama{base_url,embed_model,chat_model},
//	 chunking{max_tokens,overlap_tokens},
//	 decay{enabled,half_life_days},
//	 pack_modes{<mode>{<section>: fraction}}}
type StoreConfig struct {
	Version   int              `json:"version"`
	Ollama    OllamaConfig     `json:"ollama"`
	Chunking  ChunkingConfig   `json:"chunking"`
	Decay     DecayConfig      `json:"decay"`
	PackModes map[string]map[string]float64 `json:"pack_modes"`
}

type OllamaConfig struct {
	BaseURL    string `json:"base_url"`
	EmbedModel string `json:"embed_model"`
	ChatModel  string `json:"chat_model"`
}

type ChunkingConfig struct {
	MaxTokens     int `json:"max_tokens"`
	OverlapTokens int `json:"overlap_tokens"`
}

type DecayConfig struct {
	Enabled       bool    `json:"enabled"`
	HalfLifeDays  float64 `json:"half_life_days"`
}

// DefaultStoreConfig mirrors the defaults named throughout §4: 512/50
// token chunking, 14-day decay half-life, and the pack mode weight
// table from §4.8.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Version: 1,
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			EmbedModel: "nomic-embed-text",
			ChatModel:  "llama3.1",
		},
		Chunking: ChunkingConfig{MaxTokens: 512, OverlapTokens: 50},
		Decay:    DecayConfig{Enabled: true, HalfLifeDays: 14},
		PackModes: map[string]map[string]float64{
			"auto": {
				"project_state": 0.15, "decisions": 0.15, "active_tasks": 0.15,
				"plans": 0.15, "recent_context": 0.40,
			},
			"debug": {
				"project_state": 0.10, "decisions": 0.05, "active_tasks": 0.05,
				"plans": 0.05, "recent_context": 0.75,
			},
			"build": {
				"project_state": 0.15, "decisions": 0.20, "active_tasks": 0.20,
				"plans": 0.20, "recent_context": 0.25,
			},
			"explore": {
				"project_state": 0.25, "decisions": 0.15, "active_tasks": 0.05,
				"plans": 0.15, "recent_context": 0.40,
			},
		},
	}
}

// LoadStoreConfig reads config.json, returning defaults if absent.
func LoadStoreConfig(path string) (StoreConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultStoreConfig(), nil
		}
		return StoreConfig{}, errs.Wrap(errs.ErrStorageCorrupt, "read config.json", err)
	}
	var cfg StoreConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return StoreConfig{}, errs.Wrap(errs.ErrStorageCorrupt, "parse config.json", err)
	}
	return cfg, nil
}

// Save writes config.json.
func (c StoreConfig) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config.json: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
