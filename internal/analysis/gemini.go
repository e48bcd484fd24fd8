package analysis

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// Request is one inference call: inline audio plus the instruction text.
type Request struct {
	Model    string
	MIMEType string
	Audio    []byte
	Prompt   string
}

// Response is the text-level outcome of an inference call.
type Response struct {
	Text         string
	Candidates   int
	FinishReason string
	BlockReason  string
}

// Generator performs the single remote inference call.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// GeminiConfig configures the genai-backed generator.
type GeminiConfig struct {
	APIKey     string
	BaseURL    string
	APIVersion string
	HTTPClient *http.Client
}

var _ Generator = (*GeminiGenerator)(nil)

// GeminiGenerator calls models/{model}:generateContent through the genai SDK.
type GeminiGenerator struct {
	Client *genai.Client
}

// NewGeminiGenerator builds a Gemini API client. The key must be non-empty.
func NewGeminiGenerator(ctx context.Context, cfg GeminiConfig) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    cfg.BaseURL,
			APIVersion: cfg.APIVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiGenerator{Client: client}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (Response, error) {
	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: req.MIMEType, Data: req.Audio}},
			{Text: req.Prompt},
		},
	}}
	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}

	resp, err := g.Client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return Response{}, err
	}

	out := Response{Candidates: len(resp.Candidates)}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		out.BlockReason = string(resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return out, nil
	}

	candidate := resp.Candidates[0]
	out.FinishReason = string(candidate.FinishReason)
	if candidate.Content != nil {
		var sb strings.Builder
		for _, part := range candidate.Content.Parts {
			if part != nil && part.Text != "" && !part.Thought {
				sb.WriteString(part.Text)
			}
		}
		out.Text = sb.String()
	}
	return out, nil
}
