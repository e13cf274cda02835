// Package backend wraps the Research Backend: a natural-language query
// service that can optionally ground answers with live web search. The
// orchestrator treats it as a black box; responses are free text that the
// parse helpers turn into structured data on a best-effort basis.
package backend

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// ResearchClient is the contract the pipeline depends on. Implementations
// may fail or return malformed text; callers substitute structural defaults.
type ResearchClient interface {
	// Query sends a prompt and returns the response text. When grounded is
	// true the backend may consult live web search.
	Query(ctx context.Context, prompt string, grounded bool) (string, error)

	// ContinuityToken returns an opaque handle for resuming the backend
	// conversation context, or "" when none has been captured.
	ContinuityToken() string

	// SetContinuityToken re-injects a token captured from a checkpoint.
	SetContinuityToken(token string)
}

// GeminiConfig configures the Gemini research backend.
type GeminiConfig struct {
	APIKey       string
	Model        string
	EnableSearch bool
}

// DefaultGeminiConfig returns sensible defaults for the given key.
func DefaultGeminiConfig(apiKey string) GeminiConfig {
	return GeminiConfig{
		APIKey:       apiKey,
		Model:        "gemini-2.5-flash",
		EnableSearch: true,
	}
}

// GeminiBackend implements ResearchClient on the Gemini API. Each mission
// run constructs its own backend with explicit credentials; there is no
// process-wide client.
type GeminiBackend struct {
	client       *genai.Client
	model        string
	enableSearch bool
	log          *zap.Logger

	mu         sync.Mutex
	continuity string
}

// NewGeminiBackend creates a backend client for one mission run.
func NewGeminiBackend(ctx context.Context, cfg GeminiConfig, log *zap.Logger) (*GeminiBackend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("research backend API key is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}

	return &GeminiBackend{
		client:       client,
		model:        model,
		enableSearch: cfg.EnableSearch,
		log:          log,
	}, nil
}

// Query sends the prompt, optionally with the Google Search tool attached.
func (b *GeminiBackend) Query(ctx context.Context, prompt string, grounded bool) (string, error) {
	var config *genai.GenerateContentConfig
	if grounded && b.enableSearch {
		config = &genai.GenerateContentConfig{
			Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
		}
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := b.client.Models.GenerateContent(ctx, b.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("backend query failed: %w", err)
	}

	b.captureContinuity(resp)
	return extractText(resp), nil
}

// ContinuityToken returns the last captured thought signature, encoded.
func (b *GeminiBackend) ContinuityToken() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.continuity
}

// SetContinuityToken restores a token captured from a checkpoint.
func (b *GeminiBackend) SetContinuityToken(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.continuity = token
}

// captureContinuity records the model's thought signature, if present, so a
// paused mission can hand the conversation context back on resume.
func (b *GeminiBackend) captureContinuity(resp *genai.GenerateContentResponse) {
	if resp == nil || len(resp.Candidates) == 0 {
		return
	}
	content := resp.Candidates[0].Content
	if content == nil {
		return
	}
	for _, part := range content.Parts {
		if part == nil || len(part.ThoughtSignature) == 0 {
			continue
		}
		b.mu.Lock()
		b.continuity = base64.StdEncoding.EncodeToString(part.ThoughtSignature)
		b.mu.Unlock()
		return
	}
}

// extractText walks the response candidates defensively; a response with no
// text parts yields "".
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	content := resp.Candidates[0].Content
	if content == nil {
		return ""
	}
	var parts []string
	for _, part := range content.Parts {
		if part == nil || part.Text == "" || part.Thought {
			continue
		}
		parts = append(parts, part.Text)
	}
	return strings.Join(parts, "\n")
}
