package delivery

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bishnubista/pipeline-whisperer/internal/observability"
)

// SimulateClient stands in for a channel when live credentials are absent
// or simulation is explicitly enabled. It never fails.
type SimulateClient struct {
	channel string
}

// NewSimulateClient builds a SimulateClient for one channel.
func NewSimulateClient(channel string) *SimulateClient {
	return &SimulateClient{channel: channel}
}

// Channel implements Messenger.
func (c *SimulateClient) Channel() string { return c.channel }

// Send implements Messenger by synthesizing a successful delivery.
func (c *SimulateClient) Send(_ context.Context, msg Message) (Result, error) {
	res := Result{
		MessageID: uuid.NewString(),
		Status:    "sent",
		Provider:  "simulate",
		SentAt:    time.Now().UTC().Format(time.RFC3339),
	}
	slog.Info("simulated delivery send",
		slog.String("channel", c.channel),
		slog.String("to_email", msg.ToEmail),
		slog.String("tracking_id", msg.TrackingID),
		slog.String("message_id", res.MessageID),
	)
	observability.DeliveryRequestsTotal.WithLabelValues(c.channel, "success").Inc()
	return res, nil
}
