package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Gemini generates text with Google's Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

// NewGemini creates a client bound to model with system as the system instruction.
func NewGemini(ctx context.Context, apiKey, model, system string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	return &Gemini{client: client, model: model, config: cfg}, nil
}

// Complete sends prompt as a single user turn.
func (g *Gemini) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), g.config)
	if err != nil {
		return "", fmt.Errorf("gemini: generate: %w", err)
	}
	return resp.Text(), nil
}
