// Package config loads and stores CLI configuration in the XDG config dir.
// Only non-secret settings are kept here; secrets (database DSN, model API key)
// go to the OS keychain or environment variables.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"cohortiq/assistant/internal/xdg"
)

// Config holds non-sensitive assistant settings.
type Config struct {
	LogLevel  string          `json:"log_level"`
	LLM       LLMConfig       `json:"llm"`
	Retrieval RetrievalConfig `json:"retrieval"`
	Schema    SchemaConfig    `json:"schema"`
	Server    ServerConfig    `json:"server"`
}

// LLMConfig holds model collaborator settings for an OpenAI-compatible endpoint.
type LLMConfig struct {
	BaseURL    string `json:"base_url"`
	ChatModel  string `json:"chat_model"`
	EmbedModel string `json:"embed_model"`
}

// RetrievalConfig holds vector retrieval settings.
type RetrievalConfig struct {
	ChunkTable string `json:"chunk_table"`
	TopK       int    `json:"top_k"`
}

// SchemaConfig holds schema snapshot settings.
type SchemaConfig struct {
	// Tables is the allow-list of tables exposed to the SQL generator.
	// Never expanded to all tables; unrelated schema must not leak into prompts.
	Tables     []string `json:"tables"`
	SampleRows int      `json:"sample_rows"`
}

// ServerConfig holds HTTP server settings for `cohortiq serve`.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// path returns the path to the config file.
func path() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Defaults returns the default configuration.
func Defaults() Config {
	return Config{
		LogLevel: "info",
		LLM: LLMConfig{
			BaseURL:    "https://api.openai.com/v1",
			ChatModel:  "gpt-4o-mini",
			EmbedModel: "text-embedding-3-small",
		},
		Retrieval: RetrievalConfig{
			ChunkTable: "rag_chunks4",
			TopK:       50,
		},
		Schema: SchemaConfig{
			Tables: []string{
				"students", "units", "grades", "attendance", "bootcamps",
				"assessments", "grades_summary", "classroom_synthetic_data_filtered",
			},
			SampleRows: 10,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8787,
		},
	}
}

// Load reads configuration; missing file returns defaults.
func Load() (Config, error) {
	c := Defaults()
	p, err := path()
	if err != nil {
		return c, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Defaults (DB credentials loaded from env/keychain, not config)
			return c, nil
		}
		return c, err
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, err
	}
	applyFallbacks(&c)
	return c, nil
}

// applyFallbacks fills zero values left by partial config files.
func applyFallbacks(c *Config) {
	d := Defaults()
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = d.LLM.BaseURL
	}
	if c.LLM.ChatModel == "" {
		c.LLM.ChatModel = d.LLM.ChatModel
	}
	if c.LLM.EmbedModel == "" {
		c.LLM.EmbedModel = d.LLM.EmbedModel
	}
	if c.Retrieval.ChunkTable == "" {
		c.Retrieval.ChunkTable = d.Retrieval.ChunkTable
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = d.Retrieval.TopK
	}
	if len(c.Schema.Tables) == 0 {
		c.Schema.Tables = d.Schema.Tables
	}
	if c.Schema.SampleRows <= 0 {
		c.Schema.SampleRows = d.Schema.SampleRows
	}
	if c.Server.Host == "" {
		c.Server.Host = d.Server.Host
	}
	if c.Server.Port <= 0 {
		c.Server.Port = d.Server.Port
	}
}

// Save writes configuration with 0600 permissions.
func Save(c Config) error {
	p, err := path()
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, b, 0o600)
}
