package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bishnubista/pipeline-whisperer/internal/adapter/circuitbreaker"
	"github.com/bishnubista/pipeline-whisperer/internal/observability"
)

// HTTPClient is the live delivery path for one channel: bearer auth, JSON
// body, a bounded request timeout. HTTP 4xx/5xx never propagates as an
// error to the caller; it is mapped to a failed Result.
type HTTPClient struct {
	channel    string
	httpClient *http.Client
	baseURL    string
	apiKey     string
	provider   string
	breaker    *circuitbreaker.Breaker
}

// NewHTTPClient builds an HTTPClient for one channel.
func NewHTTPClient(channel, baseURL, apiKey, provider string, timeout time.Duration, breaker *circuitbreaker.Breaker) *HTTPClient {
	return &HTTPClient{
		channel:    channel,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		provider:   provider,
		breaker:    breaker,
	}
}

// Channel implements Messenger.
func (c *HTTPClient) Channel() string { return c.channel }

type sendRequest struct {
	ToEmail    string `json:"to_email"`
	ToName     string `json:"to_name"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	TrackingID string `json:"tracking_id"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
}

// Send implements Messenger. Never returns an error for an unavailable or
// rejecting provider; delivery failures are reported via Result.Status.
func (c *HTTPClient) Send(ctx context.Context, msg Message) (Result, error) {
	if c.breaker != nil && !c.breaker.ShouldAttempt() {
		observability.DeliveryRequestsTotal.WithLabelValues(c.channel, "circuit_open").Inc()
		return Result{Status: "failed", Error: "delivery circuit open"}, nil
	}

	res, err := c.send(ctx, msg)
	if err != nil {
		if c.breaker != nil {
			c.breaker.RecordFailure()
			observability.RecordCircuitState("delivery."+c.channel, c.breaker.State().String())
		}
		slog.Warn("delivery send failed", slog.String("channel", c.channel), slog.Any("error", err))
		observability.DeliveryRequestsTotal.WithLabelValues(c.channel, "error").Inc()
		return Result{Status: "failed", Error: err.Error()}, nil
	}
	if c.breaker != nil {
		c.breaker.RecordSuccess()
		observability.RecordCircuitState("delivery."+c.channel, c.breaker.State().String())
	}
	observability.DeliveryRequestsTotal.WithLabelValues(c.channel, "success").Inc()
	return res, nil
}

func (c *HTTPClient) send(ctx context.Context, msg Message) (Result, error) {
	payload, err := json.Marshal(sendRequest{
		ToEmail:    msg.ToEmail,
		ToName:     msg.ToName,
		Subject:    msg.Subject,
		Body:       msg.Body,
		TrackingID: msg.TrackingID,
	})
	if err != nil {
		return Result{}, fmt.Errorf("op=delivery.marshal: %w", err)
	}

	endpoint := fmt.Sprintf("%s/messages/%s/send", c.baseURL, c.channel)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("op=delivery.newrequest: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("op=delivery.do: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("op=delivery.readbody: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Result{}, fmt.Errorf("op=delivery.status: unexpected status %d: %s", resp.StatusCode, body)
	}

	var sr sendResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return Result{}, fmt.Errorf("op=delivery.decode: %w", err)
	}

	return Result{
		MessageID: sr.MessageID,
		Status:    "sent",
		Provider:  c.provider,
		SentAt:    time.Now().UTC().Format(time.RFC3339),
	}, nil
}
