package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/bishnubista/pipeline-whisperer/internal/adapter/circuitbreaker"
	"github.com/bishnubista/pipeline-whisperer/internal/observability"
	"github.com/bishnubista/pipeline-whisperer/internal/usecase"
)

const systemPrompt = `You are an expert B2B lead qualification system. Analyze company data and return a JSON object with:
- score: number between 0.0 and 1.0 (lead quality)
- persona: string (enterprise, smb, startup, or individual)
- reasoning: brief explanation

Scoring rules:
- HIGH (0.8-1.0): 500+ employees OR $10M+ revenue
- MEDIUM (0.5-0.79): 100-500 employees, $1M-$10M revenue
- LOW (0.0-0.49): <100 employees, <$1M revenue

Return ONLY valid JSON, no other text.`

// RealClient calls a structured-output chat completions endpoint, falling
// back to a HeuristicClient when the circuit is open, the call fails, or
// the response doesn't parse.
type RealClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string

	breaker  *circuitbreaker.Breaker
	fallback *HeuristicClient

	maxRetries   int
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
}

// NewRealClient builds a RealClient.
func NewRealClient(baseURL, apiKey, model string, timeout time.Duration, breaker *circuitbreaker.Breaker, fallback *HeuristicClient, maxRetries int, initialDelay, maxDelay time.Duration, multiplier float64) *RealClient {
	return &RealClient{
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      baseURL,
		apiKey:       apiKey,
		model:        model,
		breaker:      breaker,
		fallback:     fallback,
		maxRetries:   maxRetries,
		initialDelay: initialDelay,
		maxDelay:     maxDelay,
		multiplier:   multiplier,
	}
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat map[string]any `json:"response_format"`
	Temperature    float64        `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type structuredResult struct {
	Score     float64 `json:"score"`
	Persona   string  `json:"persona"`
	Reasoning string  `json:"reasoning"`
}

// Score implements Client. Scoring never fails to the caller: any error
// along the live path falls back to the heuristic scorer.
func (c *RealClient) Score(ctx context.Context, company usecase.NormalizedCompany) (Result, error) {
	observability.RecordCircuitState("scoring", c.breaker.State().String())
	if !c.breaker.ShouldAttempt() {
		slog.Warn("scoring circuit open, using fallback", slog.String("company", company.CompanyName))
		observability.ScoringRequestsTotal.WithLabelValues("real", "circuit_open").Inc()
		return c.fallback.Score(ctx, company)
	}

	res, err := c.callWithRetry(ctx, company)
	if err != nil {
		slog.Error("scoring call failed, using fallback", slog.Any("error", err))
		c.breaker.RecordFailure()
		observability.RecordCircuitState("scoring", c.breaker.State().String())
		observability.ScoringRequestsTotal.WithLabelValues("real", "error").Inc()
		return c.fallback.Score(ctx, company)
	}
	c.breaker.RecordSuccess()
	observability.RecordCircuitState("scoring", c.breaker.State().String())
	observability.ScoringRequestsTotal.WithLabelValues("real", "success").Inc()
	return res, nil
}

func (c *RealClient) callWithRetry(ctx context.Context, company usecase.NormalizedCompany) (Result, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialDelay
	bo.MaxInterval = c.maxDelay
	bo.Multiplier = c.multiplier
	boCtx := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.maxRetries)), ctx)

	var result Result
	op := func() error {
		r, err := c.callOnce(ctx, company)
		if err != nil {
			return err
		}
		result = r
		return nil
	}
	if err := backoff.Retry(op, boCtx); err != nil {
		return Result{}, err
	}
	return result, nil
}

func (c *RealClient) callOnce(ctx context.Context, company usecase.NormalizedCompany) (Result, error) {
	userPrompt := fmt.Sprintf(
		"Lead payload: company_name=%s industry=%s employee_count=%d revenue=%.0f website=%s",
		company.CompanyName, company.Industry, company.EmployeeCount, company.Revenue, company.Website,
	)

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		ResponseFormat: map[string]any{"type": "json_object"},
		Temperature:    0.3,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, fmt.Errorf("op=scoring.marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("op=scoring.newrequest: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("op=scoring.do: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("op=scoring.readbody: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Result{}, fmt.Errorf("op=scoring.status: unexpected status %d: %s", resp.StatusCode, body)
	}

	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil || len(cr.Choices) == 0 {
		return Result{}, fmt.Errorf("op=scoring.decode: malformed chat response")
	}

	var sr structuredResult
	if err := json.Unmarshal([]byte(cr.Choices[0].Message.Content), &sr); err != nil {
		return Result{}, fmt.Errorf("op=scoring.decode_structured: %w", err)
	}
	if sr.Persona == "" {
		return Result{}, fmt.Errorf("op=scoring.validate: missing persona")
	}

	return Result{
		Score:        sr.Score,
		Persona:      sr.Persona,
		Reasoning:    sr.Reasoning,
		ModelVersion: c.model,
		Mock:         false,
		Confidence:   0.85,
	}, nil
}
