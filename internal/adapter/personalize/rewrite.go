package personalize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RemoteRewriter calls a chat-completions-style endpoint to rewrite a
// rendered subject/body for tone or length, reusing the scoring adapter's
// HTTP client construction pattern.
type RemoteRewriter struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// NewRemoteRewriter builds a RemoteRewriter.
func NewRemoteRewriter(baseURL, apiKey, model string, timeout time.Duration) *RemoteRewriter {
	return &RemoteRewriter{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
	}
}

type rewriteRequest struct {
	Model          string         `json:"model"`
	Messages       []rewriteMsg   `json:"messages"`
	ResponseFormat map[string]any `json:"response_format"`
	Temperature    float64        `json:"temperature"`
}

type rewriteMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type rewriteChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type rewriteStructuredResult struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Rewrite implements Rewriter.
func (r *RemoteRewriter) Rewrite(ctx context.Context, subject, body, instructions string) (string, string, error) {
	userPrompt := fmt.Sprintf(
		"Rewrite the following outreach message per these instructions: %s\n\nSubject: %s\n\nBody: %s",
		instructions, subject, body,
	)
	reqBody := rewriteRequest{
		Model: r.model,
		Messages: []rewriteMsg{
			{Role: "system", Content: "You rewrite outbound sales emails. Return JSON {subject, body} only."},
			{Role: "user", Content: userPrompt},
		},
		ResponseFormat: map[string]any{"type": "json_object"},
		Temperature:    0.4,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", "", fmt.Errorf("op=personalize.rewrite.marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", "", fmt.Errorf("op=personalize.rewrite.newrequest: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("op=personalize.rewrite.do: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("op=personalize.rewrite.readbody: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", "", fmt.Errorf("op=personalize.rewrite.status: unexpected status %d: %s", resp.StatusCode, respBody)
	}

	var cr rewriteChatResponse
	if err := json.Unmarshal(respBody, &cr); err != nil || len(cr.Choices) == 0 {
		return "", "", fmt.Errorf("op=personalize.rewrite.decode: malformed chat response")
	}

	var sr rewriteStructuredResult
	if err := json.Unmarshal([]byte(cr.Choices[0].Message.Content), &sr); err != nil {
		return "", "", fmt.Errorf("op=personalize.rewrite.decode_structured: %w", err)
	}
	return sr.Subject, sr.Body, nil
}
