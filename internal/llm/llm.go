package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"scrapeforge/internal/config"
)

// Provider represents a logical vision LLM provider.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
)

// Client is the abstraction used by the vision extractor. It sends a PNG
// screenshot plus a transcription prompt and returns the model's raw text.
type Client interface {
	ExtractText(ctx context.Context, png []byte, prompt string) (string, error)
}

// NewClientFromConfig constructs a Client for the configured default provider.
func NewClientFromConfig(cfg *config.Config) (Client, Provider, string, error) {
	prov := Provider(cfg.Vision.DefaultProvider)

	switch prov {
	case ProviderOpenAI:
		openaiCfg := cfg.Vision.OpenAI
		if openaiCfg.APIKey == "" || openaiCfg.Model == "" {
			return nil, prov, openaiCfg.Model, errors.New("openai vision provider is not fully configured")
		}
		return &openAIClient{
			apiKey:  openaiCfg.APIKey,
			baseURL: openaiCfg.BaseURL,
			model:   openaiCfg.Model,
			http:    &http.Client{Timeout: 60 * time.Second},
		}, prov, openaiCfg.Model, nil
	case ProviderAnthropic:
		anthCfg := cfg.Vision.Anthropic
		if anthCfg.APIKey == "" || anthCfg.Model == "" {
			return nil, prov, anthCfg.Model, errors.New("anthropic vision provider is not fully configured")
		}
		return &anthropicClient{
			apiKey: anthCfg.APIKey,
			model:  anthCfg.Model,
			http:   &http.Client{Timeout: 60 * time.Second},
		}, prov, anthCfg.Model, nil
	case ProviderGoogle:
		googleCfg := cfg.Vision.Google
		if googleCfg.APIKey == "" || googleCfg.Model == "" {
			return nil, prov, googleCfg.Model, errors.New("google vision provider is not fully configured")
		}
		return &googleClient{
			apiKey: googleCfg.APIKey,
			model:  googleCfg.Model,
			http:   &http.Client{Timeout: 60 * time.Second},
		}, prov, googleCfg.Model, nil
	default:
		return nil, prov, "", fmt.Errorf("unsupported vision provider: %s", cfg.Vision.DefaultProvider)
	}
}

// openAIClient implements Client using OpenAI-compatible Chat Completions.
type openAIClient struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

// anthropicClient implements Client using Anthropic's Messages API.
type anthropicClient struct {
	apiKey string
	model  string
	http   *http.Client
}

// googleClient implements Client using Google Gemini (Generative Language API).
type googleClient struct {
	apiKey string
	model  string
	http   *http.Client
}

// openAIChatRequest is a minimal representation of the Chat Completions API
// with multimodal message content.
type openAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
}

type openAIChatMessage struct {
	Role    string              `json:"role"`
	Content []openAIContentPart `json:"content"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

// Response message content comes back as a plain string even when the
// request content was a part list.
type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// anthropicMessagesRequest & response are minimal shapes for Anthropic's Messages API.
type anthropicMessagesRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type   string               `json:"type"`
	Text   string               `json:"text,omitempty"`
	Source *anthropicImageParam `json:"source,omitempty"`
}

type anthropicImageParam struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicMessagesResponse struct {
	Content []anthropicContent `json:"content"`
}

// googleGenerateContentRequest & response are minimal shapes for Gemini's generateContent.
type googleGenerateContentRequest struct {
	Contents []googleContent `json:"contents"`
}

type googleContent struct {
	Parts []googlePart `json:"parts"`
}

type googlePart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *googleInlineData `json:"inline_data,omitempty"`
}

type googleInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type googleGenerateContentResponse struct {
	Candidates []struct {
		Content googleContent `json:"content"`
	} `json:"candidates"`
}

func (c *openAIClient) ExtractText(ctx context.Context, png []byte, prompt string) (string, error) {
	dataURI := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)

	body := openAIChatRequest{
		Model: c.model,
		Messages: []openAIChatMessage{
			{
				Role: "user",
				Content: []openAIContentPart{
					{Type: "text", Text: prompt},
					{Type: "image_url", ImageURL: &openAIImageURL{URL: dataURI}},
				},
			},
		},
		Temperature: 0.0,
		MaxTokens:   4096,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	endpoint := c.baseURL
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1"
	}
	endpoint = endpoint + "/chat/completions"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("openai chat completion failed with status %d", resp.StatusCode)
	}

	var parsed openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("openai chat completion returned no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}

// ExtractText for anthropicClient uses Anthropic's Messages API.
func (c *anthropicClient) ExtractText(ctx context.Context, png []byte, prompt string) (string, error) {
	body := anthropicMessagesRequest{
		Model:     c.model,
		MaxTokens: 4096,
		Messages: []anthropicMessage{
			{
				Role: "user",
				Content: []anthropicContent{
					{
						Type: "image",
						Source: &anthropicImageParam{
							Type:      "base64",
							MediaType: "image/png",
							Data:      base64.StdEncoding.EncodeToString(png),
						},
					},
					{Type: "text", Text: prompt},
				},
			},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	endpoint := "https://api.anthropic.com/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("anthropic messages request failed with status %d", resp.StatusCode)
	}

	var parsed anthropicMessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Content) == 0 {
		return "", errors.New("anthropic messages returned no content")
	}

	return parsed.Content[0].Text, nil
}

// ExtractText for googleClient uses Gemini's generateContent API.
func (c *googleClient) ExtractText(ctx context.Context, png []byte, prompt string) (string, error) {
	body := googleGenerateContentRequest{
		Contents: []googleContent{
			{
				Parts: []googlePart{
					{Text: prompt},
					{InlineData: &googleInlineData{
						MimeType: "image/png",
						Data:     base64.StdEncoding.EncodeToString(png),
					}},
				},
			},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	base := "https://generativelanguage.googleapis.com/v1beta"
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", base, c.model, url.QueryEscape(c.apiKey))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("google generateContent failed with status %d", resp.StatusCode)
	}

	var parsed googleGenerateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("google generateContent returned no candidates")
	}

	// Gemini can split the transcription across parts.
	var sb strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}
