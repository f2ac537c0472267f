// File: internal/llmclient/gemini_client.go
package llmclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/slidescope/slidescope/api/schemas"
	"github.com/slidescope/slidescope/internal/config"
)

// GeminiClient implements schemas.LLMClient against the Gemini REST API with
// multimodal (text + inline JPEG) content.
type GeminiClient struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	cfg        config.LLMConfig
}

// -- Gemini API request/response structures (internal to this file) --

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiSystemInstruction struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"response_mime_type,omitempty"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequestPayload struct {
	Contents          []geminiContent          `json:"contents"`
	SystemInstruction *geminiSystemInstruction `json:"system_instruction,omitempty"`
	GenerationConfig  geminiGenerationConfig   `json:"generationConfig,omitempty"`
}

type geminiResponsePayload struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// NewGeminiClient initializes the client. A missing API key fails fast,
// before any run starts.
func NewGeminiClient(cfg config.LLMConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent", cfg.Model)
	}

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}

	return &GeminiClient{
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		cfg:      cfg,
		httpClient: &http.Client{
			Timeout: cfg.APITimeout,
		},
		// The limiter gates each individual attempt, retries included: a
		// limiter wrapping only the outer call under-counts retries and can
		// exceed real request-rate limits during provider outages.
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		logger:  logger.Named("llm_client.gemini"),
	}, nil
}

// GenerateStep sends the message history and returns the parsed step
// response with usage. Transient HTTP failures are retried with exponential
// backoff; structural violations of the response contract surface as
// *schemas.ParseError without further HTTP retries.
func (c *GeminiClient) GenerateStep(ctx context.Context, messages []schemas.Message) (schemas.StepResult, error) {
	payload := c.buildRequestPayload(messages)

	body, err := json.Marshal(payload)
	if err != nil {
		return schemas.StepResult{}, &schemas.ProviderError{Provider: "gemini",
			Err: fmt.Errorf("failed to marshal request payload: %w", err)}
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	b.MaxInterval = 30 * time.Second

	var result schemas.StepResult

	operation := func() error {
		// Each attempt waits for the limiter, so retried attempts count
		// against the request rate like first attempts do.
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(&schemas.ProviderError{Provider: "gemini", Err: err})
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(&schemas.ProviderError{Provider: "gemini",
				Err: fmt.Errorf("failed to create HTTP request: %w", err)})
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-goog-api-key", c.apiKey)

		startTime := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		duration := time.Since(startTime)

		if err != nil {
			c.logger.Warn("Network error during LLM request, retrying...", zap.Error(err))
			return &schemas.ProviderError{Provider: "gemini", Err: err}
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return &schemas.ProviderError{Provider: "gemini",
				Err: fmt.Errorf("failed to read response body: %w", err)}
		}

		if resp.StatusCode != http.StatusOK {
			return c.handleAPIError(resp.StatusCode, respBody)
		}

		var responsePayload geminiResponsePayload
		if err := json.Unmarshal(respBody, &responsePayload); err != nil {
			return backoff.Permanent(&schemas.ParseError{Raw: string(respBody),
				Err: fmt.Errorf("failed to decode response payload: %w", err)})
		}

		if len(responsePayload.Candidates) == 0 {
			return backoff.Permanent(&schemas.ProviderError{Provider: "gemini",
				Err: fmt.Errorf("gemini API returned no candidates")})
		}

		candidate := responsePayload.Candidates[0]
		if len(candidate.Content.Parts) == 0 {
			if candidate.FinishReason == "SAFETY" || candidate.FinishReason == "BLOCKLIST" {
				return backoff.Permanent(&schemas.ProviderError{Provider: "gemini",
					Err: fmt.Errorf("gemini API blocked the request (reason: %s)", candidate.FinishReason)})
			}
			return &schemas.ProviderError{Provider: "gemini",
				Err: fmt.Errorf("gemini API returned empty content parts (reason: %s)", candidate.FinishReason)}
		}

		raw := candidate.Content.Parts[0].Text
		stepResponse, perr := parseStepResponse(raw)
		if perr != nil {
			return backoff.Permanent(perr)
		}

		usage := schemas.Usage{
			PromptTokens:     responsePayload.UsageMetadata.PromptTokenCount,
			CompletionTokens: responsePayload.UsageMetadata.CandidatesTokenCount,
		}
		usage.CostUSD = c.computeCost(usage)

		c.logger.Info("LLM generation complete (Gemini)",
			zap.Duration("duration", duration),
			zap.Int("prompt_tokens", usage.PromptTokens),
			zap.Int("completion_tokens", usage.CompletionTokens),
			zap.Float64("cost_usd", usage.CostUSD),
		)

		result = schemas.StepResult{Response: *stepResponse, Usage: usage}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return schemas.StepResult{}, err
	}
	return result, nil
}

// parseStepResponse extracts and validates the structured step response,
// classifying every failure as a *schemas.ParseError.
func parseStepResponse(raw string) (*schemas.StepResponse, error) {
	resp, err := parseJSONResponse[schemas.StepResponse](raw)
	if err != nil {
		return nil, &schemas.ParseError{Raw: raw, Err: err}
	}
	if err := resp.Validate(); err != nil {
		return nil, &schemas.ParseError{Raw: raw, Err: err}
	}
	return resp, nil
}

func (c *GeminiClient) buildRequestPayload(messages []schemas.Message) geminiRequestPayload {
	payload := geminiRequestPayload{
		GenerationConfig: geminiGenerationConfig{
			Temperature:      float64(c.cfg.Temperature),
			ResponseMimeType: "application/json",
			MaxOutputTokens:  c.cfg.MaxTokens,
		},
	}

	for _, msg := range messages {
		parts := make([]geminiPart, 0, len(msg.Parts))
		for _, p := range msg.Parts {
			if p.ImageJPEG != nil {
				parts = append(parts, geminiPart{InlineData: &geminiInlineData{
					MimeType: "image/jpeg",
					Data:     base64.StdEncoding.EncodeToString(p.ImageJPEG),
				}})
				continue
			}
			if p.Text != "" {
				parts = append(parts, geminiPart{Text: p.Text})
			}
		}
		if len(parts) == 0 {
			continue
		}

		switch msg.Role {
		case schemas.RoleSystem:
			payload.SystemInstruction = &geminiSystemInstruction{Parts: parts}
		case schemas.RoleModel:
			payload.Contents = append(payload.Contents, geminiContent{Role: "model", Parts: parts})
		default:
			payload.Contents = append(payload.Contents, geminiContent{Role: "user", Parts: parts})
		}
	}
	return payload
}

// computeCost prices the call from the configured per-million-token rates.
func (c *GeminiClient) computeCost(u schemas.Usage) float64 {
	return float64(u.PromptTokens)/1e6*c.cfg.PromptPricePerM +
		float64(u.CompletionTokens)/1e6*c.cfg.CompletionPricePerM
}

func (c *GeminiClient) handleAPIError(statusCode int, body []byte) error {
	c.logger.Error("Gemini API returned error status", zap.Int("status", statusCode), zap.ByteString("response", body))
	perr := &schemas.ProviderError{Provider: "gemini", Status: statusCode,
		Err: fmt.Errorf("gemini API error: %s", string(body))}

	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError:
		return perr // Transient errors, retry.
	default:
		return backoff.Permanent(perr)
	}
}
