package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/AnTengye/dealflow/config"
)

// VertexCompleter runs prompts against a Gemini model on Vertex AI
type VertexCompleter struct {
	client *genai.Client
	model  string
}

func NewVertexCompleter(ctx context.Context, cfg *config.AIConfig) (*VertexCompleter, error) {
	if cfg.ProjectID == "" || cfg.Region == "" {
		return nil, errors.New("vertex: project_id and region cannot be empty")
	}

	client, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	return &VertexCompleter{client: client, model: cfg.Model}, nil
}

func (c *VertexCompleter) Complete(ctx context.Context, prompt, system string) (string, error) {
	// One GenerativeModel per call since its fields are set below.
	model := c.client.GenerativeModel(c.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(system)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.0),
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("vertex generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("vertex returned no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("vertex returned an empty answer")
	}
	return sb.String(), nil
}

func (c *VertexCompleter) Close() error {
	return c.client.Close()
}
