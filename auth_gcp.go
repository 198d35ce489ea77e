package main

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiClient is the Solver backed by a Gemini model on VertexAI. It asks
// the model for a full fill of the session's grid and checks the answer
// against the blocked layout and fixed letters before it is applied.
type GeminiClient struct {
	client    *genai.Client
	modelName string
}

// NewGeminiClient creates a client using Application Default Credentials.
// Set GOOGLE_APPLICATION_CREDENTIALS to the service account key file path.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  cfg.ProjectID,
		Location: region,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiClient{
		client:    client,
		modelName: model,
	}, nil
}
