package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Client enhances user prompts through a chat-completion model.
type Client struct {
	httpClient *http.Client
	apiKey     string
	model      string
	// BaseURL may be overridden in tests.
	BaseURL string
}

func NewClient(apiKey, model string) *Client {
	return &Client{
		httpClient: &http.Client{},
		apiKey:     apiKey,
		model:      model,
		BaseURL:    defaultBaseURL,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Enhance rewrites a prompt so it works well with the image model, keeping
// the trigger word in the result.
func (c *Client) Enhance(ctx context.Context, prompt, triggerWord string) (string, error) {
	if triggerWord == "" {
		triggerWord = "TOK"
	}

	system := fmt.Sprintf(`You are an expert at writing prompts for FLUX image generation models.

Your task is to enhance user prompts to work optimally with FLUX, while incorporating the trigger word %q naturally into the prompt.

Guidelines:
1. The trigger word %q MUST be included in the enhanced prompt
2. Make the prompt detailed and descriptive
3. Include relevant art style, lighting, composition details
4. Keep it concise but effective (max 200 words)
5. Focus on visual elements and artistic quality
6. Return ONLY the enhanced prompt text, nothing else`, triggerWord, triggerWord)

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.7,
		MaxTokens:   300,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusUnauthorized {
			return "", fmt.Errorf("openai authentication failed (401 Unauthorized); verify the configured API key: %s", raw)
		}
		return "", fmt.Errorf("openai request failed with status %d: %s", resp.StatusCode, raw)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode openai response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("openai returned empty response")
	}

	enhanced := strings.TrimSpace(out.Choices[0].Message.Content)
	log.Printf("Prompt enhanced (original %d chars, enhanced %d chars)", len(prompt), len(enhanced))
	return enhanced, nil
}
