// Copyright (c) 2025 CohortIQ
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"cohortiq/assistant/internal/answer"
	"cohortiq/assistant/internal/assistant"
	"cohortiq/assistant/internal/config"
	"cohortiq/assistant/internal/dsn"
	"cohortiq/assistant/internal/keychain"
	"cohortiq/assistant/internal/llm"
	"cohortiq/assistant/internal/schema"
	"cohortiq/assistant/internal/session"
	"cohortiq/assistant/internal/sqlexec"
	"cohortiq/assistant/internal/sqlgen"
	"cohortiq/assistant/internal/vector"

	"github.com/jackc/pgx/v5/pgxpool"
)

// resolveDSN returns the database DSN: COHORTIQ_DSN, then DATABASE_URL,
// then the OS keychain. The result is parsed and normalized.
func resolveDSN() (string, error) {
	raw := ""
	if env := strings.TrimSpace(os.Getenv("COHORTIQ_DSN")); env != "" {
		raw = env
	} else if env := strings.TrimSpace(os.Getenv("DATABASE_URL")); env != "" {
		raw = env
	}

	if raw == "" {
		km, err := keychain.GetManager()
		if err != nil {
			return "", fmt.Errorf("no DSN in environment and secure storage unavailable: %w", err)
		}
		stored, err := km.LoadDBDSN()
		if err != nil {
			return "", errors.New("no database connection configured, run: cohortiq connect")
		}
		raw = stored
	}

	return dsn.Parse(raw)
}

// resolveAPIKey returns the model API key: OPENAI_API_KEY, then
// COHORTIQ_API_KEY, then the OS keychain.
func resolveAPIKey() (string, error) {
	if env := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); env != "" {
		return env, nil
	}
	if env := strings.TrimSpace(os.Getenv("COHORTIQ_API_KEY")); env != "" {
		return env, nil
	}

	km, err := keychain.GetManager()
	if err != nil {
		return "", fmt.Errorf("no API key in environment and secure storage unavailable: %w", err)
	}
	key, err := km.LoadAPIKey()
	if err != nil {
		return "", errors.New("no model API key configured, run: cohortiq apikey")
	}
	return key, nil
}

// pipelineDeps bundles everything a question-answering command needs.
type pipelineDeps struct {
	cfg          config.Config
	pool         *pgxpool.Pool
	snapshotter  *schema.Snapshotter
	orchestrator *assistant.Orchestrator
	store        *session.Store
}

// buildPipeline wires the full answering pipeline from config, env, and
// keychain. The caller owns the returned pool via Close.
func buildPipeline(ctx context.Context) (*pipelineDeps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	connString, err := resolveDSN()
	if err != nil {
		return nil, err
	}
	apiKey, err := resolveAPIKey()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	client := llm.NewClient(cfg.LLM.BaseURL, apiKey, cfg.LLM.ChatModel, cfg.LLM.EmbedModel)
	snapshotter := schema.New(pool, cfg.Schema.Tables, cfg.Schema.SampleRows)
	orchestrator := assistant.New(
		snapshotter,
		sqlgen.New(client),
		sqlexec.New(pool),
		vector.NewRetriever(pool, client, cfg.Retrieval.ChunkTable),
		answer.New(client),
		cfg.Retrieval.TopK,
	)

	return &pipelineDeps{
		cfg:          cfg,
		pool:         pool,
		snapshotter:  snapshotter,
		orchestrator: orchestrator,
		store:        session.NewStore(pool),
	}, nil
}

// Close releases the pipeline's database resources.
func (d *pipelineDeps) Close() {
	if d.pool != nil {
		d.pool.Close()
	}
}
