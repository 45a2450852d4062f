// Package enrich turns match commonalities into natural opening lines using
// a hosted language model.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultModel = "gemini-2.5-flash"

// Gemini wraps the Google GenAI client for single-prompt generation.
type Gemini struct {
	client    *genai.Client
	modelName string
	config    *genai.GenerateContentConfig
}

// NewGemini creates a Gemini generator for the Gemini API backend.
func NewGemini(ctx context.Context, apiKey, model string, temperature float32) (*Gemini, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}

	g := &Gemini{client: client, modelName: model}
	if temperature > 0 {
		g.config = &genai.GenerateContentConfig{Temperature: genai.Ptr(temperature)}
	}
	return g, nil
}

// GenerateContent sends prompt and returns the concatenated text parts of
// the response.
func (g *Gemini) GenerateContent(ctx context.Context, prompt string) (string, error) {
	if g == nil || g.client == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.modelName, genai.Text(prompt), g.config)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}
	return output, nil
}

// Model returns the configured model name.
func (g *Gemini) Model() string {
	if g == nil {
		return ""
	}
	return g.modelName
}
