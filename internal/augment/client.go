// Package augment generates tutor guidance from an external chat-completions API
// and splices it into tutoring requests.
package augment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/tutorlens/internal/config"
	"github.com/ashureev/tutorlens/internal/domain"
	"github.com/go-resty/resty/v2"
)

// ChatMessage is one entry of the completion prompt.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the completion request body.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

// ChatResponse is the subset of the completion response we read.
type ChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Client calls the LLM endpoint once per tutoring turn.
type Client struct {
	http    *resty.Client
	llm     config.LLMConfig
	prompts config.PromptTemplates
	logger  *slog.Logger
}

// NewClient creates a guidance client. httpClient may be nil.
func NewClient(llm config.LLMConfig, prompts config.PromptTemplates, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	var rc *resty.Client
	if httpClient != nil {
		rc = resty.NewWithClient(httpClient)
	} else {
		rc = resty.New()
	}
	// Exactly one attempt per turn. Timeout 0 leaves the call unbounded.
	rc.SetRetryCount(0).
		SetTimeout(llm.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:    rc,
		llm:     llm,
		prompts: prompts,
		logger:  logger,
	}
}

// GenerateGuidance asks the LLM endpoint for tutor guidance on studentMessage.
// A missing credential or empty message yields a *ConfigurationError without
// any network call; endpoint failures yield an *UpstreamAPIError.
func (c *Client) GenerateGuidance(ctx context.Context, studentMessage, credential string, flags domain.Flags) (string, error) {
	credential = domain.NormalizeCredential(credential)
	if credential == "" {
		c.logger.Warn("Guidance skipped: missing API key")
		return "", &ConfigurationError{Err: ErrMissingCredential}
	}
	if strings.TrimSpace(studentMessage) == "" {
		c.logger.Warn("Guidance skipped: empty student message")
		return "", &ConfigurationError{Err: ErrEmptyMessage}
	}

	body := ChatRequest{
		Model:       c.llm.Model,
		Messages:    BuildPrompt(c.prompts, studentMessage, flags),
		Temperature: c.llm.Temperature,
		MaxTokens:   c.llm.MaxTokens,
		Stream:      false,
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(credential).
		SetBody(body).
		Post(c.llm.Endpoint)
	if err != nil {
		return "", &UpstreamAPIError{Err: fmt.Errorf("post completion: %w", err)}
	}
	if !resp.IsSuccess() {
		return "", &UpstreamAPIError{Status: resp.StatusCode(), Err: errors.New(http.StatusText(resp.StatusCode()))}
	}

	var parsed ChatResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return "", &UpstreamAPIError{Status: resp.StatusCode(), Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", &UpstreamAPIError{Status: resp.StatusCode(), Err: ErrMalformedResponse}
	}

	guidance := parsed.Choices[0].Message.Content
	c.logger.Debug("Guidance generated", "guidance_len", len(guidance))
	return guidance, nil
}

// BuildPrompt returns the fixed two-message prompt. Enabled flags append
// their instruction to the system message.
func BuildPrompt(p config.PromptTemplates, studentMessage string, flags domain.Flags) []ChatMessage {
	system := p.System
	addenda := []struct {
		on   bool
		text string
	}{
		{flags.SocraticQuestioning, p.Socratic},
		{flags.ErrorPrevention, p.ErrorPrevention},
		{flags.InteractiveChecks, p.InteractiveChecks},
	}
	for _, a := range addenda {
		if a.on && a.text != "" {
			system += "\n" + a.text
		}
	}

	return []ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: fmt.Sprintf(p.UserTemplate, studentMessage)},
	}
}
